// Package relay implements the bidirectional-stream endpoint: websocket
// upgrade, per-connection serial frame dispatch, the connection
// lifecycle state machine (Unjoined -> Joined -> Closing -> Closed), and
// the process-wide heartbeat sweeper.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Tanvirul-I/Collab-Notes/internal/access"
	"github.com/Tanvirul-I/Collab-Notes/internal/auth"
	"github.com/Tanvirul-I/Collab-Notes/internal/httputil"
	"github.com/Tanvirul-I/Collab-Notes/internal/metrics"
	"github.com/Tanvirul-I/Collab-Notes/internal/presence"
	"github.com/Tanvirul-I/Collab-Notes/internal/proto"
	"github.com/Tanvirul-I/Collab-Notes/internal/room"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Session tokens, not origins, are what gate access here; the
	// browser client may be served from any host.
	CheckOrigin: func(*http.Request) bool { return true },
}

// connState records what a joined connection is joined to. A connection
// is a key in this map iff it is a member of the Room's connection set
// iff it has a presence entry there; handleJoin and cleanup update all
// three together.
type connState struct {
	room       *room.Room
	userID     string
	permission storage.Permission
}

// Handler owns every live connection and dispatches their inbound frames.
type Handler struct {
	verifier *auth.Verifier
	resolver *access.Resolver
	store    storage.Store
	rooms    *room.Registry
	metrics  *metrics.Collector
	log      *logrus.Entry

	limiterBurst  int
	limiterRefill float64

	mu     sync.Mutex
	conns  map[string]*conn      // every open socket, joined or not
	states map[string]*connState // joined connections only
}

// NewHandler constructs the connection handler.
func NewHandler(verifier *auth.Verifier, resolver *access.Resolver, store storage.Store, rooms *room.Registry, mc *metrics.Collector, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		verifier:      verifier,
		resolver:      resolver,
		store:         store,
		rooms:         rooms,
		metrics:       mc,
		log:           log,
		limiterBurst:  40,
		limiterRefill: 20,
		conns:         make(map[string]*conn),
		states:        make(map[string]*connState),
	}
}

// nowMillis is the heartbeat clock, overridable in tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// ServeWS upgrades the request and runs the connection's read loop until
// the stream closes. One goroutine per connection; all of a connection's
// frames are processed serially here.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("relay: websocket upgrade failed")
		return
	}

	c := newConn(ws, h.log)
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	go c.writePump()
	h.readLoop(c)
}

func (h *Handler) readLoop(c *conn) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.WithField("panic", rec).Error("relay: recovered panic in connection loop")
			sentry.CurrentHub().Recover(rec)
		}
		h.cleanup(c)
	}()

	c.ws.SetPongHandler(func(string) error {
		h.refreshHeartbeat(c.id)
		return nil
	})

	limiter := httputil.NewFrameLimiter(h.limiterBurst, h.limiterRefill)

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !limiter.Allow() {
			c.log.Warn("relay: dropping frame over rate limit")
			continue
		}
		h.dispatch(c, payload)
	}
}

// dispatch decodes one inbound frame and routes it by type. Unknown or
// malformed frames are logged and ignored: no error frame, and the
// connection stays open.
func (h *Handler) dispatch(c *conn, payload []byte) {
	var env proto.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.log.WithError(err).Warn("relay: ignoring undecodable frame")
		return
	}

	if env.Type == proto.TypeJoinDocument {
		var frame proto.JoinDocument
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.log.WithError(err).Warn("relay: ignoring malformed join_document")
			return
		}
		h.handleJoin(c, frame)
		return
	}

	st := h.stateOf(c.id)
	if st == nil {
		if err := c.Send(proto.NewError(proto.MsgNotJoined)); err != nil {
			c.log.WithError(err).Debug("relay: error-frame send failed")
		}
		return
	}

	// Any inbound frame from a joined connection counts as liveness.
	st.room.Heartbeat(c.id, nowMillis())

	switch env.Type {
	case proto.TypeYjsUpdate:
		var frame proto.YjsUpdate
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.log.WithError(err).Warn("relay: ignoring malformed yjs_update")
			return
		}
		st.room.ApplyUpdate(c.id, frame.Update)

	case proto.TypeCursorUpdate:
		var frame proto.CursorUpdate
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.log.WithError(err).Warn("relay: ignoring malformed cursor_update")
			return
		}
		st.room.UpdatePresence(c.id, presenceUpdateFrom(frame), nowMillis())

	case proto.TypeHeartbeat:
		// Heartbeat was already refreshed above; nothing to broadcast.

	case proto.TypeLeaveDocument:
		h.leaveRoom(c)

	default:
		c.log.WithField("frameType", env.Type).Warn("relay: ignoring unknown frame type")
	}
}

// handleJoin runs the full admission path: token verification, access
// resolution, room lookup/creation, registration, sync-on-join. A
// connection that is already joined to another room and joins again is
// moved: it leaves its current room first, so the at-most-one-document
// invariant holds. A repeat join to the room it is already in just
// re-registers it there.
func (h *Handler) handleJoin(c *conn, frame proto.JoinDocument) {
	identity, err := h.verifier.Verify(frame.Token)
	if err != nil {
		h.deny(c, proto.MsgUnauthorized)
		return
	}

	perm, err := h.resolver.Resolve(context.Background(), frame.DocumentID, identity.UserID, frame.ShareToken)
	if err != nil {
		msg := proto.MsgDocumentNotFound
		if ae, ok := err.(*access.Error); ok && ae.Denial == access.DenialNoAccess {
			msg = proto.MsgAccessDenied
		}
		h.deny(c, msg)
		return
	}

	doc, err := h.store.FindDocumentByID(context.Background(), frame.DocumentID)
	if err != nil {
		h.deny(c, proto.MsgDocumentNotFound)
		return
	}

	rm, err := h.rooms.GetOrCreate(context.Background(), doc.ID, doc.OwnerID)
	if err != nil {
		h.deny(c, proto.MsgDocumentNotFound)
		return
	}

	if st := h.stateOf(c.id); st != nil && st.room != rm {
		h.leaveRoom(c)
	}

	var name, avatarColor string
	if frame.User != nil {
		name = frame.User.Name
		avatarColor = frame.User.AvatarColor
	}
	if name == "" {
		name = identity.Email
	}
	cursorPos := 0
	if frame.CursorPosition != nil && *frame.CursorPosition >= 0 {
		cursorPos = *frame.CursorPosition
	}
	var sel presence.SelectionRange
	if frame.SelectionRange != nil && frame.SelectionRange.Start <= frame.SelectionRange.End {
		sel = presence.SelectionRange{Start: frame.SelectionRange.Start, End: frame.SelectionRange.End}
	}

	h.mu.Lock()
	h.states[c.id] = &connState{room: rm, userID: identity.UserID, permission: perm}
	joined := len(h.states)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.SetActiveConnections(joined)
	}

	rm.Join(c, identity.UserID, perm, name, avatarColor, cursorPos, sel, nowMillis())

	c.log.WithFields(logrus.Fields{
		"documentId": doc.ID,
		"userId":     identity.UserID,
		"permission": perm,
	}).Info("relay: connection joined")
}

// deny sends a single error frame and closes the connection, per the
// join-denial taxonomy. The frame is flushed before the socket closes.
func (h *Handler) deny(c *conn, message string) {
	if err := c.Send(proto.NewError(message)); err != nil {
		c.log.WithError(err).Debug("relay: denial send failed")
	}
	c.log.WithField("reason", message).Info("relay: join denied")
	c.Close()
}

// leaveRoom detaches c from its room, if joined: removes it from the
// Room's membership and presence, drops its connection state, and lets
// the registry flush+reclaim the room if it is now empty. Idempotent —
// the sweeper's eviction, an inbound leave_document, and transport close
// all funnel here, possibly more than once for the same connection.
func (h *Handler) leaveRoom(c *conn) {
	h.mu.Lock()
	st, ok := h.states[c.id]
	if ok {
		delete(h.states, c.id)
	}
	joined := len(h.states)
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.SetActiveConnections(joined)
	}

	st.room.Leave(c.id)
	h.rooms.Remove(context.Background(), st.room.DocumentID)

	c.log.WithFields(logrus.Fields{
		"documentId": st.room.DocumentID,
		"userId":     st.userID,
		"permission": st.permission,
	}).Info("relay: connection left")
}

// cleanup runs the Closing -> Closed transition. Total: reached from
// every earlier state, whether the trigger was leave_document + close,
// sweeper eviction, a transport error, or a recovered panic.
func (h *Handler) cleanup(c *conn) {
	h.leaveRoom(c)

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	c.Close()
}

func (h *Handler) stateOf(connID string) *connState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.states[connID]
}

// refreshHeartbeat records liveness for a joined connection; pongs from
// unjoined connections are ignored (there is no presence entry yet).
func (h *Handler) refreshHeartbeat(connID string) {
	if st := h.stateOf(connID); st != nil {
		st.room.Heartbeat(connID, nowMillis())
	}
}

// pingAll sends a transport ping on every open connection. Called from
// the sweeper each tick.
func (h *Handler) pingAll() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.ping()
	}
}

// presenceUpdateFrom converts a cursor_update frame's partial fields
// into a presence.Update, dropping out-of-range values (negative
// cursor, inverted selection) as if they were absent.
func presenceUpdateFrom(frame proto.CursorUpdate) presence.Update {
	var u presence.Update
	if frame.CursorPosition != nil && *frame.CursorPosition >= 0 {
		u.CursorPos = frame.CursorPosition
	}
	if frame.SelectionRange != nil && frame.SelectionRange.Start <= frame.SelectionRange.End {
		u.Selection = &presence.SelectionRange{
			Start: frame.SelectionRange.Start,
			End:   frame.SelectionRange.End,
		}
	}
	u.IsTyping = frame.IsTyping
	return u
}
