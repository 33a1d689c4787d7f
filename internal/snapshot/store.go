// Package snapshot implements the tiered Snapshot Store: an optional
// fast cache in front of the required durable version store.
// The load path prefers the cache; the save path writes to the cache and
// stops, or falls back to a rate-limited durable write when the cache is
// not ready.
package snapshot

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tanvirul-I/Collab-Notes/internal/caching"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

// Store is the relay's view of document persistence: an optional
// caching.SnapshotCache tier plus a required storage.Store durable tier.
type Store struct {
	cache       *caching.SnapshotCache // nil disables the fast tier entirely
	durable     storage.Store
	writeFloor  time.Duration
	log         *logrus.Entry

	mu       sync.Mutex
	lastSave map[string]time.Time // documentID -> last durable auto-save
}

// New constructs a Store. cache may be nil, in which case every save goes
// through the rate-limited durable path.
func New(cache *caching.SnapshotCache, durable storage.Store, writeFloor time.Duration, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		cache:      cache,
		durable:    durable,
		writeFloor: writeFloor,
		log:        log,
		lastSave:   make(map[string]time.Time),
	}
}

// CacheReady reports whether the fast cache tier is currently believed
// reachable. Room uses this to pick the debounced-persist delay.
func (s *Store) CacheReady() bool {
	return s.cache != nil && s.cache.Ready()
}

// LoadLatest returns the most recent state bytes for documentID, trying
// the cache first and falling back to the durable store on a miss or
// outage. ok is false if neither tier has data, or the durable lookup
// itself failed; a join-time durable failure is treated identically to
// "no prior snapshot" so the Room starts empty rather than failing the
// join.
func (s *Store) LoadLatest(ctx context.Context, documentID string) (data []byte, ok bool) {
	if s.cache != nil && s.cache.Ready() {
		if b, found := s.cache.Get(ctx, documentID); found {
			return b, true
		}
	}

	v, err := s.durable.FindLatestVersion(ctx, documentID)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.log.WithField("documentId", documentID).WithError(err).
				Warn("snapshot: durable load failed, starting empty room")
		}
		return nil, false
	}
	return v.Snapshot, true
}

// SaveSnapshot persists the encoded CRDT state for documentID. If the
// cache is ready, it writes there and stops — the cache is authoritative
// during active collaboration. Otherwise it
// performs a rate-limited durable write: at most one auto-save per
// document per writeFloor, and only when the bytes differ from the
// latest existing version.
func (s *Store) SaveSnapshot(ctx context.Context, documentID, ownerID string, data []byte) error {
	if s.cache != nil && s.cache.Ready() {
		if s.cache.Set(ctx, documentID, data) {
			return nil
		}
		// Set() already flipped Ready() to false on a connection-lost
		// signal; fall through to the durable path below.
	}

	now := time.Now()
	s.mu.Lock()
	last, seen := s.lastSave[documentID]
	if seen && now.Sub(last) < s.writeFloor {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if latest, err := s.durable.FindLatestVersion(ctx, documentID); err == nil {
		if bytes.Equal(latest.Snapshot, data) {
			return nil
		}
	}

	if _, err := s.durable.CreateVersion(ctx, documentID, ownerID, "Auto-save", data); err != nil {
		s.log.WithField("documentId", documentID).WithError(err).
			Warn("snapshot: durable auto-save failed, will retry on next update")
		return err
	}

	s.mu.Lock()
	s.lastSave[documentID] = now
	s.mu.Unlock()
	return nil
}
