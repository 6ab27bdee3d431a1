package event

import (
	"log/slog"
	"shop-chat/errors"
)

type EvictionHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewEvictionHandler(log *slog.Logger, counter *Counter) *EvictionHandler {
	return &EvictionHandler{log: log, counter: counter}
}

func (h *EvictionHandler) Handle(event Event) {
	switch event.Type {
	case ConnectionEvictedType:
		payload, ok := event.Payload.(ConnectionEvicted)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(ConnectionEvictedType)
		h.counter.IncrementLabel("evicted:" + payload.Reason)
		h.log.Info("Connection evicted", "connection_id", payload.ConnectionID, "reason", payload.Reason)
	case AutoReplySentType:
		if _, ok := event.Payload.(AutoReplySent); !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(AutoReplySentType)
	}
}
