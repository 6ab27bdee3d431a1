package event

import (
	"log/slog"
	"shop-chat/errors"
)

// DeliveryHandler counts messages through persistence and fan-out.
// Queued is the interesting number: a recipient was gone and will have to pull history.
type DeliveryHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewDeliveryHandler(log *slog.Logger, counter *Counter) *DeliveryHandler {
	return &DeliveryHandler{log: log, counter: counter}
}

func (h *DeliveryHandler) Handle(event Event) {
	switch event.Type {
	case MessagePersistedType:
		if _, ok := event.Payload.(MessagePersisted); !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(MessagePersistedType)
	case DeliveryCompletedType:
		payload, ok := event.Payload.(DeliveryCompleted)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(DeliveryCompletedType)
		h.counter.IncrementLabel(payload.State)
		if payload.Written < payload.Recipients {
			h.log.Debug("Partial delivery",
				"message_id", payload.MessageID,
				"written", payload.Written,
				"recipients", payload.Recipients)
		}
	}
}
