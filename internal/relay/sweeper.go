package relay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tanvirul-I/Collab-Notes/internal/caching"
	"github.com/Tanvirul-I/Collab-Notes/internal/room"
)

// Sweeper is the process-wide periodic liveness task: each tick it
// evicts members whose heartbeat went stale, reclaims empty rooms,
// pings every open connection at the transport layer, and re-probes a
// downed cache so it can flip back to ready.
type Sweeper struct {
	handler  *Handler
	rooms    *room.Registry
	cache    *caching.SnapshotCache // nil when no cache tier is configured
	interval time.Duration
	timeout  time.Duration
	log      *logrus.Entry
}

// NewSweeper constructs a Sweeper; interval is the tick cadence and
// timeout the heartbeat staleness cutoff.
func NewSweeper(handler *Handler, rooms *room.Registry, cache *caching.SnapshotCache, interval, timeout time.Duration, log *logrus.Entry) *Sweeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		handler:  handler,
		rooms:    rooms,
		cache:    cache,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Run ticks until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	cutoff := nowMillis() - s.timeout.Milliseconds()
	s.rooms.Sweep(cutoff)
	s.handler.pingAll()
	if s.cache != nil && !s.cache.Ready() {
		s.cache.Probe(ctx)
	}
}
