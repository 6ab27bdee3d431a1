// Package websocket adapts gorilla websockets to the runtime: one read loop
// per socket, synchronous writes, and close frames carrying the eviction reason.
package websocket

import (
	"context"
	"fmt"
	"shop-chat/domain"
	"shop-chat/errors"
	"shop-chat/protocol"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Application close codes live in the 4000-4999 range.
const (
	CloseSessionReplaced   = 4001
	CloseHandshakeTimeout  = 4002
	CloseHeartbeatTimeout  = 4003
	CloseTooManyAttempts   = 4004
	defaultCloseWriteDelay = time.Second
)

// CloseCode maps an eviction reason to the code sent in the close frame.
func CloseCode(reason string) int {
	switch reason {
	case domain.ReasonSessionReplaced:
		return CloseSessionReplaced
	case domain.ReasonHandshakeTimeout:
		return CloseHandshakeTimeout
	case domain.ReasonHeartbeatTimeout:
		return CloseHeartbeatTimeout
	case domain.ReasonTooManyAttempts:
		return CloseTooManyAttempts
	case domain.ReasonShutdown:
		return websocket.CloseGoingAway
	case domain.ReasonInternal, domain.ReasonWriteFailed:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseNormalClosure
	}
}

// Conn is a contract.Conn over a gorilla socket.
// Writes are serialized; a nil error from Send means the frame was written.
type Conn struct {
	id           string
	remoteAddr   string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	once   sync.Once
	closed chan struct{}
}

func NewConn(id string, ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		id:           id,
		remoteAddr:   ws.RemoteAddr().String(),
		ws:           ws,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Conn) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDelivery, err)
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", errors.ErrInternal, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDelivery, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDelivery, err)
	}
	return nil
}

// Close sends a close frame then drops the socket, which also ends the read loop.
func (c *Conn) Close(reason string) error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		timeout := c.writeTimeout
		if timeout <= 0 {
			timeout = defaultCloseWriteDelay
		}
		// WriteControl may run concurrently with a pending WriteMessage
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCode(reason), reason),
			time.Now().Add(timeout))
		err = c.ws.Close()
	})
	return err
}
