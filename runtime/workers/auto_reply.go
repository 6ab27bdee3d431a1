package workers

import (
	"context"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"time"
)

// AutoReplyWorker answers customer messages off the send path.
// Replies re-enter the router as staff messages through the injector.
type AutoReplyWorker struct {
	log       *slog.Logger
	replier   contract.AutoReplier
	injector  contract.MessageInjector
	messages  <-chan domain.Message
	telemetry chan<- event.Event
	timeout   time.Duration
}

func NewAutoReplyWorker(log *slog.Logger,
	replier contract.AutoReplier,
	injector contract.MessageInjector,
	messages <-chan domain.Message,
	telemetry chan<- event.Event,
	timeout time.Duration) *AutoReplyWorker {
	return &AutoReplyWorker{
		log:       log,
		replier:   replier,
		injector:  injector,
		messages:  messages,
		telemetry: telemetry,
		timeout:   timeout,
	}
}

func (w *AutoReplyWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-w.messages:
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *AutoReplyWorker) handle(ctx context.Context, msg domain.Message) {
	reply, ok := w.replier.Reply(ctx, msg)
	if !ok {
		return
	}
	replyCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if _, err := w.injector.PostAutoReply(replyCtx, msg.ConversationID, reply.Content); err != nil {
		w.log.Warn("Auto-reply not posted", "conversation_id", msg.ConversationID, "rule", reply.Rule, "error", err)
		return
	}
	event.Publish(w.telemetry, event.New(event.AutoReplySentType, event.AutoReplySent{
		ConversationID: msg.ConversationID,
		Language:       reply.Language,
		Rule:           reply.Rule,
	}))
}
