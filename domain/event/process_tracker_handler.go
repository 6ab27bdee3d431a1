package event

import (
	"fmt"
	"log/slog"
	"shop-chat/errors"
	"sync"
)

// ProcessTrackerHandler keeps the latest process sample for the stats endpoint.
type ProcessTrackerHandler struct {
	log    *slog.Logger
	mu     sync.RWMutex
	latest ProcessStats
}

func NewProcessTrackerHandler(log *slog.Logger) *ProcessTrackerHandler {
	return &ProcessTrackerHandler{log: log}
}

func (h *ProcessTrackerHandler) Handle(event Event) {
	switch event.Type {
	case ProcessStatsType:
		payload, ok := event.Payload.(ProcessStats)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.mu.Lock()
		h.latest = payload
		h.mu.Unlock()
		h.log.Debug(fmt.Sprintf("[PROCESS] PID %d | STATUS %s | CPU %.2f%% | RSS %d | CONNECTIONS %d",
			payload.PID, payload.Status, payload.Cpu, payload.Ram, payload.Connections))
	}
}

func (h *ProcessTrackerHandler) Latest() ProcessStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}
