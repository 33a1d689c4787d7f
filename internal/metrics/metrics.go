// Package metrics tracks the active-room/connection gauges and the
// rolling 60s operation counter exposed at /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activeRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "active_documents",
		Help:      "Number of documents with at least one active connection or a pending persist.",
	})
	activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "active_connections",
		Help:      "Number of currently joined connections across all rooms.",
	})
	operationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "operations_total",
		Help:      "Total number of successfully applied editor/owner updates.",
	})
)

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(activeRooms, activeConnections, operationsTotal)
	})
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Collector tracks active rooms/connections and a rolling 60s window of
// recorded edit operations: only successfully applied editor/owner
// updates within the last 60s count.
type Collector struct {
	mu    sync.Mutex
	rooms int
	conns int
	ops   []time.Time // timestamps of recent operations, oldest first
}

// NewCollector constructs an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetActiveRooms records the current room count.
func (c *Collector) SetActiveRooms(n int) {
	c.mu.Lock()
	c.rooms = n
	c.mu.Unlock()
	activeRooms.Set(float64(n))
}

// SetActiveConnections records the current connection count.
func (c *Collector) SetActiveConnections(n int) {
	c.mu.Lock()
	c.conns = n
	c.mu.Unlock()
	activeConnections.Set(float64(n))
}

// RecordOperation registers one successfully applied update for the
// rolling op-per-minute window. Entries older than 60s are discarded
// lazily here as well as on read.
func (c *Collector) RecordOperation() {
	now := nowFunc()
	c.mu.Lock()
	c.ops = append(c.ops, now)
	c.ops = pruneOlderThan(c.ops, now)
	c.mu.Unlock()
	operationsTotal.Inc()
}

func pruneOlderThan(ops []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-60 * time.Second)
	i := 0
	for i < len(ops) && ops[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ops
	}
	return append([]time.Time(nil), ops[i:]...)
}

// Snapshot is the JSON body returned at /metrics.
type Snapshot struct {
	ActiveDocuments   int `json:"activeDocuments"`
	ActiveConnections int `json:"activeConnections"`
	OpsPerMinute      int `json:"opsPerMinute"`
}

// Snapshot reads the current gauges and prunes the rolling op window.
func (c *Collector) Snapshot() Snapshot {
	now := nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = pruneOlderThan(c.ops, now)
	return Snapshot{
		ActiveDocuments:   c.rooms,
		ActiveConnections: c.conns,
		OpsPerMinute:      len(c.ops),
	}
}
