package room

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tanvirul-I/Collab-Notes/internal/metrics"
	"github.com/Tanvirul-I/Collab-Notes/internal/snapshot"
)

// Registry maps documentId -> Room, creating lazily on first join and
// reclaiming on the sweeper pass once a Room has no members and no
// pending persist: a Room stays registered iff at least one connection
// is joined to it or a persist is still outstanding.
type Registry struct {
	store   *snapshot.Store
	metrics *metrics.Collector
	cfg     Config
	log     *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry constructs an empty Registry.
func NewRegistry(store *snapshot.Store, mc *metrics.Collector, cfg Config, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{store: store, metrics: mc, cfg: cfg, log: log, rooms: make(map[string]*Room)}
}

// GetOrCreate returns the existing Room for documentID, or creates one
// by loading its latest snapshot.
func (reg *Registry) GetOrCreate(ctx context.Context, documentID, ownerID string) (*Room, error) {
	reg.mu.Lock()
	if r, ok := reg.rooms[documentID]; ok {
		reg.mu.Unlock()
		return r, nil
	}
	reg.mu.Unlock()

	r, err := New(ctx, documentID, ownerID, reg.store, reg.metrics, reg.cfg, reg.log)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	// Another joiner may have created the Room while we were loading its
	// snapshot; the first one to land under the lock wins and the loser
	// is discarded (it never registered any member, so there is nothing
	// to reconcile).
	if existing, ok := reg.rooms[documentID]; ok {
		return existing, nil
	}
	reg.rooms[documentID] = r
	reg.updateGaugeLocked()
	return r, nil
}

// Sweep evicts stale members from every Room (heartbeat older than
// cutoff) and removes any Room that ends up with zero members and no
// pending persist. Called periodically by the process-wide sweeper.
func (reg *Registry) Sweep(cutoff int64) {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	for _, r := range rooms {
		r.EvictStale(cutoff)
	}

	reg.mu.Lock()
	for id, r := range reg.rooms {
		if r.MemberCount() == 0 && !r.PersistPending() {
			delete(reg.rooms, id)
		}
	}
	reg.updateGaugeLocked()
	reg.mu.Unlock()
}

// Remove flushes documentID's pending persist (if any) and removes it
// from the registry if it is empty. Called from the connection-close
// path so a Room does not linger an extra sweeper tick after its last
// member leaves.
func (reg *Registry) Remove(ctx context.Context, documentID string) {
	reg.mu.Lock()
	r, ok := reg.rooms[documentID]
	reg.mu.Unlock()
	if !ok {
		return
	}
	if r.MemberCount() > 0 {
		return
	}

	r.Flush(ctx)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r.MemberCount() == 0 && !r.PersistPending() {
		delete(reg.rooms, documentID)
		reg.updateGaugeLocked()
	}
}

// FlushAll runs every Room's pending persist immediately. Called once
// at process shutdown so the last burst of edits is not lost with the
// debounce timers.
func (reg *Registry) FlushAll(ctx context.Context) {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	for _, r := range rooms {
		r.Flush(ctx)
	}
}

// Count returns the number of currently registered Rooms.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// updateGaugeLocked publishes the current room count to metrics. Caller
// must hold reg.mu.
func (reg *Registry) updateGaugeLocked() {
	if reg.metrics != nil {
		reg.metrics.SetActiveRooms(len(reg.rooms))
	}
}

// SweepInterval is the default sweeper cadence.
const SweepInterval = 5 * time.Second
