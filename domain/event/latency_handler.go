package event

import (
	"log/slog"
	"time"
)

// LatencyHandler watches the time between persistence and the end of fan-out.
type LatencyHandler struct {
	log              *slog.Logger
	latencyThreshold time.Duration
}

func NewLatencyHandler(log *slog.Logger, latencyThreshold time.Duration) *LatencyHandler {
	return &LatencyHandler{log: log, latencyThreshold: latencyThreshold}
}

func (h *LatencyHandler) Handle(e Event) {
	if payload, ok := e.Payload.(DeliveryCompleted); ok {
		leadTime := payload.CompletedAt.Sub(payload.PersistedAt)

		h.log.Debug("telemetry: delivery latency",
			"conversation_id", payload.ConversationID,
			"message_id", payload.MessageID,
			"lead_time_ms", leadTime.Milliseconds(),
		)

		if leadTime > h.latencyThreshold {
			h.log.Warn("high latency detected", "lead_time", leadTime)
		}
	}
}
