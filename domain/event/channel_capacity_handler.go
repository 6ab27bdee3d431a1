package event

import (
	"fmt"
	"log/slog"
	"shop-chat/errors"
)

// ChannelCapacityHandler warns when an internal buffer is close to full.
// A full auto-reply or telemetry channel means events are being dropped.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{log: log, lowCapacityThreshold: lowCapacityThreshold}
}

func (h ChannelCapacityHandler) Handle(event Event) {
	if event.Type != ChannelCapacityType {
		return
	}
	payload, ok := event.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.log.Debug(fmt.Sprintf("Channel %s usage: %d / %d", payload.ChannelName, payload.Length, payload.Capacity))
	if payload.Capacity <= 0 {
		return
	}
	if left := payload.Capacity - payload.Length; left <= h.lowCapacityThreshold {
		h.log.Warn("Channel almost full", "channel", payload.ChannelName, "capacity_left", left)
	}
}
