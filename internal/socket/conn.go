package socket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lichess-org/lila-ws/internal/model"
)

// outboxCapacity bounds the per-socket outbound queue. A peer that can't
// keep up with this many buffered messages is treated as dead: Send starts
// failing for it rather than growing the buffer further, matching
// spec.md's "never queued unboundedly" non-goal for client delivery (the
// backend-bound queue in internal/bus is the one queue spec.md allows to
// grow unbounded).
const outboxCapacity = 256

// wsConn adapts a gorilla/websocket connection to hub.Sender. send is
// drained by a dedicated writePump goroutine so that fan-out callers
// (TellAll, TellUsers, ...) never block on a single slow socket.
type wsConn struct {
	id     model.SocketId
	conn   *websocket.Conn
	send   chan []byte
	stop   chan struct{}
	closed atomic.Bool
}

func newWSConn(id model.SocketId, conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:   id,
		conn: conn,
		send: make(chan []byte, outboxCapacity),
		stop: make(chan struct{}),
	}
}

// ID implements hub.Sender.
func (c *wsConn) ID() model.SocketId { return c.id }

// Send implements hub.Sender: non-blocking, fails if the peer is closed or
// its outbound queue is already full.
func (c *wsConn) Send(data []byte) error {
	if c.closed.Load() {
		return errClosedSocket
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

// writePump owns the connection's write side exclusively, the gorilla
// requirement that at most one goroutine call WriteMessage/NextWriter at a
// time.
func (c *wsConn) writePump() {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

// shutdown marks the socket closed, stops writePump, and sends a close
// frame with code before dropping the TCP connection. Safe to call only
// once per connection; callers serialise through connection.closeOnce.
func (c *wsConn) shutdown(code int, reason string) {
	c.closed.Store(true)
	close(c.stop)

	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}

const writeWait = 10 * time.Second
