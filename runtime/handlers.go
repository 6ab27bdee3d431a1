package runtime

import (
	"context"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/errors"
	"shop-chat/protocol"
	"time"
)

// Handler processes one inbound frame of a given type.
// A returned error is reported to the sender as an error frame.
type Handler func(ctx context.Context, connID string, env protocol.Envelope) error

// Dispatcher routes inbound frames through a type -> handler table.
type Dispatcher struct {
	log           *slog.Logger
	registry      contract.IRegistry
	authenticator *Authenticator
	router        *Router
	telemetry     chan<- event.Event
	writeTimeout  time.Duration
	handlers      map[protocol.Type]Handler
	// types usable before authentication
	public map[protocol.Type]bool
	now    func() time.Time
}

func NewDispatcher(log *slog.Logger,
	registry contract.IRegistry,
	authenticator *Authenticator,
	router *Router,
	telemetry chan<- event.Event,
	writeTimeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		log:           log,
		registry:      registry,
		authenticator: authenticator,
		router:        router,
		telemetry:     telemetry,
		writeTimeout:  writeTimeout,
		public: map[protocol.Type]bool{
			protocol.Auth: true,
			protocol.Ping: true,
			protocol.Pong: true,
		},
		now: time.Now,
	}
	d.handlers = map[protocol.Type]Handler{
		protocol.Auth:                  d.handleAuth,
		protocol.SendMessage:           d.handleSendMessage,
		protocol.SendMultimediaMessage: d.handleSendMultimedia,
		protocol.Typing:                d.handleTyping,
		protocol.History:               d.handleHistory,
		protocol.Ping:                  d.handlePing,
		protocol.Pong:                  d.handlePong,
	}
	return d
}

// Dispatch handles one raw frame read from connID.
// Every failure is answered with an error frame. Only an exhausted
// handshake closes the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, data []byte) {
	d.registry.Touch(connID, d.now())

	env, err := protocol.Decode(data)
	if err != nil {
		d.fail(ctx, connID, err, "")
		return
	}
	handler, ok := d.handlers[env.Type]
	if !ok {
		d.fail(ctx, connID, errors.ErrUnknownType, env.Type)
		return
	}
	if !d.public[env.Type] {
		info, ok := d.registry.Connection(connID)
		if !ok || !info.IsAuthenticated() {
			d.fail(ctx, connID, errors.ErrNotAuthenticated, env.Type)
			return
		}
	}
	if err := handler(ctx, connID, env); err != nil {
		d.fail(ctx, connID, err, env.Type)
	}
}

func (d *Dispatcher) fail(ctx context.Context, connID string, err error, requestType protocol.Type) {
	d.log.Debug("Request failed", "connection_id", connID, "type", requestType, "error", err)
	d.write(ctx, connID, protocol.NewError(err, requestType))

	if errors.Is(err, errors.ErrTooManyAttempts) {
		d.evict(connID, domain.ReasonTooManyAttempts)
	}
}

func (d *Dispatcher) reply(ctx context.Context, connID string, t protocol.Type, payload any) error {
	env, err := protocol.New(t, payload)
	if err != nil {
		return err
	}
	d.write(ctx, connID, env)
	return nil
}

// write sends a direct answer. A connection that cannot be written to is dead.
func (d *Dispatcher) write(ctx context.Context, connID string, env protocol.Envelope) {
	conn, ok := d.registry.Get(connID)
	if !ok {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, d.writeTimeout)
	defer cancel()
	if err := conn.Send(writeCtx, env); err != nil {
		d.log.Debug("Unable to answer", "connection_id", connID, "type", env.Type, "error", err)
		d.evict(connID, domain.ReasonWriteFailed)
	}
}

func (d *Dispatcher) evict(connID, reason string) {
	if !d.registry.Evict(connID, reason) {
		return
	}
	event.Publish(d.telemetry, event.New(event.ConnectionEvictedType, event.ConnectionEvicted{
		ConnectionID: connID,
		Reason:       reason,
	}))
}

func (d *Dispatcher) handleAuth(ctx context.Context, connID string, env protocol.Envelope) error {
	var p protocol.AuthPayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	success, err := d.authenticator.Authenticate(ctx, connID, p)
	if err != nil {
		return err
	}
	return d.reply(ctx, connID, protocol.AuthSuccess, success)
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, connID string, env protocol.Envelope) error {
	var p protocol.SendMessagePayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	_, err := d.router.Send(ctx, connID, p)
	return err
}

func (d *Dispatcher) handleSendMultimedia(ctx context.Context, connID string, env protocol.Envelope) error {
	var p protocol.SendMultimediaPayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	_, err := d.router.Send(ctx, connID, p.ToSend())
	return err
}

func (d *Dispatcher) handleTyping(ctx context.Context, connID string, env protocol.Envelope) error {
	var p protocol.TypingPayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	return d.router.Typing(ctx, connID, p)
}

// handleHistory replays messages as new_message frames closed by history_end.
func (d *Dispatcher) handleHistory(ctx context.Context, connID string, env protocol.Envelope) error {
	var p protocol.HistoryPayload
	if len(env.Payload) > 0 {
		if err := env.Bind(&p); err != nil {
			return err
		}
	}
	info, ok := d.registry.Connection(connID)
	if !ok || !info.IsAuthenticated() {
		return errors.ErrNotAuthenticated
	}
	conversationID := p.ConversationID
	if conversationID == "" {
		conversationID = info.ConversationID
	}
	if conversationID == "" {
		return errors.ErrConversationNotFound
	}

	messages, cursor, err := d.router.History(ctx, *info.Identity, conversationID, p.AfterSeq, p.AfterID, p.Limit)
	if err != nil {
		return err
	}
	end := protocol.HistoryEndPayload{ConversationID: conversationID, LastSeq: cursor, Count: len(messages)}
	for _, msg := range messages {
		if err := d.reply(ctx, connID, protocol.NewMessage, protocol.ToNewMessage(msg)); err != nil {
			return err
		}
		end.LastSeq = msg.Seq
	}
	return d.reply(ctx, connID, protocol.HistoryEnd, end)
}

func (d *Dispatcher) handlePing(ctx context.Context, connID string, _ protocol.Envelope) error {
	return d.reply(ctx, connID, protocol.Pong, protocol.PingPayload{Timestamp: d.now().UTC()})
}

// handlePong has nothing left to do: Dispatch already refreshed activity.
func (d *Dispatcher) handlePong(context.Context, string, protocol.Envelope) error {
	return nil
}
