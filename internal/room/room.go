// Package room implements the per-document Room: the in-memory state
// one active document's collaborators share (a merged CRDT replica, the
// set of joined connections, a presence map, and a debounced-persist
// timer), all guarded by a single mutex so every mutation goes through
// one serialization point.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tanvirul-I/Collab-Notes/internal/crdt"
	"github.com/Tanvirul-I/Collab-Notes/internal/metrics"
	"github.com/Tanvirul-I/Collab-Notes/internal/presence"
	"github.com/Tanvirul-I/Collab-Notes/internal/proto"
	"github.com/Tanvirul-I/Collab-Notes/internal/snapshot"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

// Sender is the connection-facing side of a Room member: enough to push
// frames to one client and force-close it. internal/relay's connection
// handler implements this; Room never depends on the transport package.
type Sender interface {
	// ID uniquely identifies this connection for the lifetime of the process.
	ID() string
	// Send writes one frame to the client. Implementations must be
	// non-blocking/best-effort: a slow or dead peer must never stall
	// the Room's single serialization point, and one peer's failed
	// write must not affect the others.
	Send(frame any) error
	// Close force-terminates the underlying stream (used by the sweeper
	// on heartbeat eviction).
	Close() error
}

type member struct {
	sender     Sender
	userID     string
	permission storage.Permission
}

// Room owns one document's merged CRDT state and connection set. Every
// exported method changes Room state only while holding the Room's
// mutex: ApplyUpdate decodes, applies, picks its broadcast recipients
// and schedules the persist as one atomic step, then releases the lock
// before enqueueing the broadcast frames (as Join, UpdatePresence, Leave
// and EvictStale do for their presence broadcasts).
type Room struct {
	DocumentID string
	ownerID    string

	store   *snapshot.Store
	metrics *metrics.Collector
	log     *logrus.Entry

	debounceCache   time.Duration
	debounceDurable time.Duration

	mu             sync.Mutex
	replica        *crdt.Replica
	members        map[string]*member
	presenceByConn map[string]*presence.Entry
	persistTimer   *time.Timer
	persistPending bool
}

// Config bundles the fixed per-Room settings that come from process
// configuration rather than from any one join.
type Config struct {
	DebounceCache   time.Duration
	DebounceDurable time.Duration
}

// New creates a Room for documentID, loading its latest snapshot
// (cache-first, then durable store) as the CRDT's initial state. A
// missing snapshot in either tier leaves the CRDT empty.
func New(ctx context.Context, documentID, ownerID string, store *snapshot.Store, mc *metrics.Collector, cfg Config, log *logrus.Entry) (*Room, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("documentId", documentID)

	replica := crdt.New("server")
	if data, ok := store.LoadLatest(ctx, documentID); ok {
		if err := replica.ApplyUpdate(data); err != nil {
			log.WithError(err).Warn("room: discarding corrupt snapshot, starting empty")
			replica = crdt.New("server")
		}
	}

	return &Room{
		DocumentID:      documentID,
		ownerID:         ownerID,
		store:           store,
		metrics:         mc,
		log:             log,
		debounceCache:   cfg.DebounceCache,
		debounceDurable: cfg.DebounceDurable,
		replica:         replica,
		members:         make(map[string]*member),
		presenceByConn:  make(map[string]*presence.Entry),
	}, nil
}

// Join registers sender as a member with permission, creates its
// presence entry, sends it a doc_sync frame with the Room's current full
// state, and broadcasts the updated presence view to everyone.
func (r *Room) Join(sender Sender, userID string, permission storage.Permission, name, avatarColor string, cursorPos int, sel presence.SelectionRange, now int64) {
	r.mu.Lock()
	r.members[sender.ID()] = &member{sender: sender, userID: userID, permission: permission}
	r.presenceByConn[sender.ID()] = &presence.Entry{
		ConnectionID:  sender.ID(),
		UserID:        userID,
		Name:          name,
		AvatarColor:   avatarColor,
		CursorPos:     cursorPos,
		Selection:     sel,
		LastHeartbeat: now,
	}
	state, err := r.replica.EncodeState()
	if err != nil {
		r.log.WithError(err).Error("room: encode state for doc_sync failed")
		state = nil
	}
	// Sent under the lock so no concurrent update broadcast can reach
	// the joiner ahead of its sync frame; Send only enqueues.
	if err := sender.Send(proto.DocSync{Type: proto.TypeDocSync, Update: state}); err != nil {
		r.log.WithField("connectionId", sender.ID()).WithError(err).Warn("room: doc_sync send failed")
	}
	r.mu.Unlock()

	r.broadcastPresence()
}

// ApplyUpdate runs the apply path for one inbound update. Viewers are refused
// with a single error frame and no further effect on the Room. Decode
// or apply failures are logged and dropped without disconnecting the
// sender, since convergence of everyone else is unaffected.
func (r *Room) ApplyUpdate(connID string, update []byte) {
	r.mu.Lock()
	m, ok := r.members[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if m.permission == storage.PermissionViewer {
		r.mu.Unlock()
		if err := m.sender.Send(proto.NewError(proto.MsgReadOnlyAccess)); err != nil {
			r.log.WithField("connectionId", connID).WithError(err).Warn("room: error-frame send failed")
		}
		return
	}

	if err := r.replica.ApplyUpdate(update); err != nil {
		r.mu.Unlock()
		r.log.WithField("connectionId", connID).WithError(err).Warn("room: dropping undecodable update")
		return
	}

	others := make([]Sender, 0, len(r.members)-1)
	for id, other := range r.members {
		if id != connID {
			others = append(others, other.sender)
		}
	}
	r.schedulePersistLocked()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordOperation()
	}

	frame := proto.YjsUpdate{Type: proto.TypeYjsUpdate, Update: update}
	for _, s := range others {
		if err := s.Send(frame); err != nil {
			r.log.WithField("connectionId", s.ID()).WithError(err).Warn("room: broadcast send failed")
		}
	}
}

// UpdatePresence merges a partial cursor_update into connID's presence
// entry, refreshes its heartbeat, and broadcasts the new presence view.
func (r *Room) UpdatePresence(connID string, u presence.Update, now int64) {
	r.mu.Lock()
	entry, ok := r.presenceByConn[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.Apply(u)
	entry.LastHeartbeat = now
	r.mu.Unlock()

	r.broadcastPresence()
}

// Heartbeat refreshes connID's lastHeartbeat without broadcasting.
func (r *Room) Heartbeat(connID string, now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.presenceByConn[connID]; ok {
		entry.LastHeartbeat = now
	}
}

// Leave removes connID from the Room's three tracking structures and
// broadcasts the resulting presence view. It is idempotent: leaving twice, or leaving a
// connection that was never a member, is a no-op.
func (r *Room) Leave(connID string) {
	r.mu.Lock()
	_, wasMember := r.members[connID]
	delete(r.members, connID)
	delete(r.presenceByConn, connID)
	r.mu.Unlock()

	if wasMember {
		r.broadcastPresence()
	}
}

// EvictStale removes every member whose presence heartbeat is older than
// cutoff, force-closes their connections, and broadcasts presence if
// anything changed. Used by the process-wide sweeper.
func (r *Room) EvictStale(cutoff int64) {
	r.mu.Lock()
	var evicted []Sender
	for id, entry := range r.presenceByConn {
		if entry.LastHeartbeat < cutoff {
			if m, ok := r.members[id]; ok {
				evicted = append(evicted, m.sender)
			}
			delete(r.members, id)
			delete(r.presenceByConn, id)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		if err := s.Close(); err != nil {
			r.log.WithField("connectionId", s.ID()).WithError(err).Debug("room: close on eviction failed")
		}
	}
	if len(evicted) > 0 {
		r.broadcastPresence()
	}
}

// MemberCount returns the number of currently joined connections.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// PersistPending reports whether a debounced persist timer is still
// armed; the registry keeps a Room alive while this is true even with
// zero members.
func (r *Room) PersistPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistPending
}

// Flush immediately runs (and awaits) any pending persist, bypassing the
// debounce delay. Used when the last connection leaves a Room and at
// process shutdown.
func (r *Room) Flush(ctx context.Context) {
	r.mu.Lock()
	if !r.persistPending {
		r.mu.Unlock()
		return
	}
	if r.persistTimer != nil {
		r.persistTimer.Stop()
	}
	r.persistPending = false
	r.mu.Unlock()

	r.persist(ctx)
}

// schedulePersistLocked arms a single debounced persist timer if none is
// already pending. Caller must hold r.mu. Delay is short while the
// cache tier is ready, longer when only durable writes remain.
func (r *Room) schedulePersistLocked() {
	if r.persistPending {
		return
	}
	r.persistPending = true
	delay := r.debounceDurable
	if r.store.CacheReady() {
		delay = r.debounceCache
	}
	r.persistTimer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		r.persistPending = false
		r.mu.Unlock()
		r.persist(context.Background())
	})
}

func (r *Room) persist(ctx context.Context) {
	r.mu.Lock()
	state, err := r.replica.EncodeState()
	r.mu.Unlock()
	if err != nil {
		r.log.WithError(err).Error("room: encode state for persist failed")
		return
	}
	if err := r.store.SaveSnapshot(ctx, r.DocumentID, r.ownerID, state); err != nil {
		r.log.WithError(err).Warn("room: persist failed, will retry on next update")
	}
}

// broadcastPresence computes the deduplicated presence view and sends
// it to every current member.
func (r *Room) broadcastPresence() {
	r.mu.Lock()
	deduped := presence.Dedup(r.presenceByConn)
	users := make([]proto.PresenceUser, 0, len(deduped))
	for _, e := range deduped {
		users = append(users, proto.PresenceUser{
			UserID:         e.UserID,
			Name:           e.Name,
			AvatarColor:    e.AvatarColor,
			CursorPosition: e.CursorPos,
			SelectionRange: proto.SelectionRange{Start: e.Selection.Start, End: e.Selection.End},
			IsTyping:       e.IsTyping,
		})
	}
	recipients := make([]Sender, 0, len(r.members))
	for _, m := range r.members {
		recipients = append(recipients, m.sender)
	}
	frame := proto.PresenceUpdate{Type: proto.TypePresenceUpdate, DocumentID: r.DocumentID, Users: users}
	r.mu.Unlock()

	for _, s := range recipients {
		if err := s.Send(frame); err != nil {
			r.log.WithField("connectionId", s.ID()).WithError(err).Warn("room: presence broadcast send failed")
		}
	}
}
