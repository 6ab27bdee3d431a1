package runtime

import (
	"context"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/infrastructure/storage"
	"shop-chat/protocol"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// Fanout is the only place that pushes frames to several connections.
// Each live recipient is written at most once per call, and a recipient
// whose write fails is treated as dead: evicted, never retried.
type Fanout struct {
	log          *slog.Logger
	registry     contract.IRegistry
	messages     storage.IMessageRepository
	telemetry    chan<- event.Event
	writeTimeout time.Duration
}

func NewFanout(log *slog.Logger,
	registry contract.IRegistry,
	messages storage.IMessageRepository,
	telemetry chan<- event.Event,
	writeTimeout time.Duration) *Fanout {
	return &Fanout{
		log:          log,
		registry:     registry,
		messages:     messages,
		telemetry:    telemetry,
		writeTimeout: writeTimeout,
	}
}

// Deliver pushes a persisted message and records the resulting delivery state.
// Errors stay here: the sender is never told that a recipient was gone.
func (f *Fanout) Deliver(ctx context.Context, msg domain.Message, recipients []string) domain.DeliveryState {
	state := domain.Queued
	written := 0
	env, err := protocol.ForRecipients(msg)
	if err != nil {
		f.log.Error("Unable to encode message for recipients", "message_id", msg.ID, "error", err)
	} else {
		written = f.Push(ctx, env, recipients)
	}
	if written > 0 {
		state = domain.Delivered
	}

	if err := f.messages.UpdateDeliveryState(ctx, msg.ConversationID, msg.Seq, state); err != nil {
		f.log.Warn("Unable to store delivery state",
			"message_id", msg.ID, "state", state, "error", err)
	}

	event.Publish(f.telemetry, event.New(event.DeliveryCompletedType, event.DeliveryCompleted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Recipients:     len(recipients),
		Written:        written,
		State:          string(state),
		PersistedAt:    msg.CreatedAt,
		CompletedAt:    time.Now().UTC(),
	}))
	return state
}

// Push writes env to every distinct recipient concurrently and returns how
// many writes succeeded. It waits for all of them before returning.
func (f *Fanout) Push(ctx context.Context, env protocol.Envelope, recipients []string) int {
	var written atomic.Int32
	var wg sync.WaitGroup

	for _, connID := range lo.Uniq(recipients) {
		conn, ok := f.registry.Get(connID)
		if !ok {
			f.log.Debug("Recipient no longer registered", "connection_id", connID)
			continue
		}
		wg.Add(1)
		go func(conn contract.Conn) {
			defer wg.Done()
			writeCtx, cancel := context.WithTimeout(ctx, f.writeTimeout)
			defer cancel()
			if err := conn.Send(writeCtx, env); err != nil {
				f.log.Debug("Write failed, evicting", "connection_id", conn.ID(), "type", env.Type, "error", err)
				f.evict(conn.ID())
				return
			}
			written.Add(1)
		}(conn)
	}
	wg.Wait()
	return int(written.Load())
}

func (f *Fanout) evict(connID string) {
	if !f.registry.Evict(connID, domain.ReasonWriteFailed) {
		return
	}
	event.Publish(f.telemetry, event.New(event.ConnectionEvictedType, event.ConnectionEvicted{
		ConnectionID: connID,
		Reason:       domain.ReasonWriteFailed,
	}))
}
