package mocks

import (
	"context"
	"shop-chat/errors"
	"shop-chat/protocol"
	"sync"
)

// FakeConn is an in-memory contract.Conn that records what is sent to it.
type FakeConn struct {
	id string

	mu          sync.Mutex
	sent        []protocol.Envelope
	closed      bool
	closeReason string
	sendErr     error
}

func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

func (c *FakeConn) ID() string { return c.id }

func (c *FakeConn) RemoteAddr() string { return "127.0.0.1:0" }

func (c *FakeConn) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *FakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeReason = reason
	return nil
}

// FailWith makes every following Send return err.
func (c *FakeConn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *FakeConn) Sent() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.sent...)
}

func (c *FakeConn) SentOfType(t protocol.Type) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range c.Sent() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (c *FakeConn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}
