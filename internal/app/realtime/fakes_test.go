package realtime

import (
	"context"
	"errors"
	"sync"

	"chatrelay/internal/domain/messages"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	sent   []Envelope
	closed bool
	full   bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.full {
		return ErrSendBufferFull
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) ofType(typ string) []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Envelope
	for _, env := range c.sent {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type failingRepo struct {
	messages.Repository
}

func (failingRepo) Create(context.Context, messages.Draft) (messages.Message, error) {
	return messages.Message{}, errors.New("connection reset")
}
