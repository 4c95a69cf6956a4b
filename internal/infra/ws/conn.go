package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatrelay/internal/app/realtime"
)

// Conn adapts a gorilla websocket to realtime.Conn. Outgoing envelopes go
// through a bounded queue drained by the write pump.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan realtime.Envelope
	done   chan struct{}
	once   sync.Once
	opts   Options
	closed chan struct{}
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan realtime.Envelope, opts.SendBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		opts:   opts,
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues env without blocking.
func (c *Conn) Send(env realtime.Envelope) error {
	select {
	case <-c.done:
		return realtime.ErrConnClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	default:
		return realtime.ErrSendBufferFull
	}
}

// Close asks the write pump to flush what is queued and close the socket.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.closed)
	}()
	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) drain() {
	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(env realtime.Envelope) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteJSON(env)
}

var _ realtime.Conn = (*Conn)(nil)
