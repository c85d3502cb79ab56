package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 1 << 20
)

// wsConn is the session.Handle for one websocket. Only the writer goroutine
// touches the socket for writes; Send just enqueues.
type wsConn struct {
	id      string
	conn    *websocket.Conn
	metrics *observability.Metrics
	out     chan protocol.Outbound

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newWSConn(conn *websocket.Conn, buffer int, metrics *observability.Metrics) *wsConn {
	if buffer <= 0 {
		buffer = 256
	}
	return &wsConn{
		id:      uuid.NewString(),
		conn:    conn,
		metrics: metrics,
		out:     make(chan protocol.Outbound, buffer),
		done:    make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send never blocks; a saturated queue drops the frame.
func (c *wsConn) Send(msg protocol.Outbound) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- msg:
		return true
	default:
		c.metrics.ObserveDropped(string(msg.Kind()))
		return false
	}
}

// Close stops accepting frames. The writer flushes what is queued, sends a
// close frame and shuts the socket, which ends the read loop.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *wsConn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
			return
		case msg := <-c.out:
			if err := c.write(msg); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case msg := <-c.out:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(msg protocol.Outbound) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.metrics.ObserveWSMessage("write_error", string(msg.Kind()))
		return err
	}
	c.metrics.ObserveWSMessage("outbound", string(msg.Kind()))
	return nil
}
