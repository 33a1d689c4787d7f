package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// writeWait bounds how long a single frame write may take before the
	// peer is considered dead. Applies to data frames and pings alike.
	writeWait = 10 * time.Second

	// sendBuffer is the per-connection outbound frame queue. A peer that
	// cannot drain this many frames is too slow to matter; further
	// frames to it are dropped rather than stalling a Room's broadcast.
	sendBuffer = 256
)

// conn wraps one websocket with an outbound queue so that Send never
// blocks the caller. It implements room.Sender: Room broadcasts enqueue
// here and a single writer goroutine owns all writes to the socket,
// which gorilla/websocket requires (one concurrent writer per Conn).
type conn struct {
	id  string
	ws  *websocket.Conn
	log *logrus.Entry

	sendCh chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, log *logrus.Entry) *conn {
	id := uuid.NewString()
	return &conn{
		id:     id,
		ws:     ws,
		log:    log.WithField("connectionId", id),
		sendCh: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// ID uniquely identifies this connection for the lifetime of the process.
func (c *conn) ID() string { return c.id }

// Send marshals frame and enqueues it for the writer goroutine. It is
// best-effort: frames to a closed or saturated connection are dropped,
// never blocking a Room's serialization point.
func (c *conn) Send(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.sendCh <- payload:
		return nil
	default:
		c.log.Warn("relay: outbound queue full, dropping frame")
		return nil
	}
}

// Close terminates the stream. Already-enqueued frames (an error frame
// sent just before a join denial, for instance) are flushed by the
// writer goroutine before the underlying socket closes, which in turn
// unblocks the read loop so cleanup runs. Safe to call more than once
// and from any goroutine.
func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// ping sends a transport-level ping control frame. The peer's pong is
// observed by the read loop's pong handler, which refreshes the
// connection's presence heartbeat.
func (c *conn) ping() {
	select {
	case <-c.done:
		return
	default:
	}
	if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.log.WithError(err).Debug("relay: ping failed")
	}
}

// writePump drains the outbound queue onto the socket and owns the
// socket's lifetime: it is the only goroutine that writes data frames,
// and it closes the socket when it exits.
func (c *conn) writePump() {
	defer c.ws.Close()
	for {
		select {
		case payload := <-c.sendCh:
			if !c.write(payload) {
				return
			}
		case <-c.done:
			// Flush whatever was enqueued before Close, then say
			// goodbye properly so well-behaved clients don't log an
			// abnormal closure.
			for {
				select {
				case payload := <-c.sendCh:
					if !c.write(payload) {
						return
					}
				default:
					deadline := time.Now().Add(writeWait)
					_ = c.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
					return
				}
			}
		}
	}
}

func (c *conn) write(payload []byte) bool {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.WithError(err).Debug("relay: write failed, closing connection")
		c.Close()
		return false
	}
	return true
}
