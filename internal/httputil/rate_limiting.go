// Package httputil holds small HTTP/transport-adjacent helpers that
// don't belong to any one domain component: a JSON response writer and
// a per-connection inbound frame limiter.
package httputil

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var (
	framesAllowed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "frames_allowed_total",
		Help:      "Total number of inbound frames accepted for processing.",
	})
	framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "frames_rate_limited_total",
		Help:      "Total number of inbound frames dropped for exceeding the per-connection rate limit.",
	})
)

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesAllowed, framesDropped)
	})
}

// FrameLimiter bounds how fast one connection may have inbound frames
// processed. An exceeded limiter silently drops the frame, the same
// treatment as a decode failure, rather than disconnecting the client.
type FrameLimiter struct {
	limiter *rate.Limiter
}

// NewFrameLimiter constructs a limiter allowing burst frames immediately
// and refillPerSecond thereafter.
func NewFrameLimiter(burst int, refillPerSecond float64) *FrameLimiter {
	return &FrameLimiter{limiter: rate.NewLimiter(rate.Limit(refillPerSecond), burst)}
}

// Allow reports whether the current frame may proceed, recording the
// outcome in the allowed/dropped counters.
func (f *FrameLimiter) Allow() bool {
	if f.limiter.Allow() {
		framesAllowed.Inc()
		return true
	}
	framesDropped.Inc()
	return false
}
