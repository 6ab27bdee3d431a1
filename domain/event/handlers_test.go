package event

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDeliveryHandler_CountsStates(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	h := NewDeliveryHandler(slog.Default(), counter)

	// Given one persisted message delivered and one queued
	h.Handle(New(MessagePersistedType, MessagePersisted{MessageID: uuid.New()}))
	h.Handle(New(DeliveryCompletedType, DeliveryCompleted{MessageID: uuid.New(), Recipients: 2, Written: 1, State: "delivered"}))
	h.Handle(New(DeliveryCompletedType, DeliveryCompleted{MessageID: uuid.New(), Recipients: 1, Written: 0, State: "queued"}))

	// Then counters follow
	req.Equal(uint64(1), counter.Get(MessagePersistedType))
	req.Equal(uint64(2), counter.Get(DeliveryCompletedType))
	req.Equal(uint64(1), counter.GetLabel("delivered"))
	req.Equal(uint64(1), counter.GetLabel("queued"))
}

func TestDeliveryHandler_IgnoresWrongPayload(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	h := NewDeliveryHandler(slog.Default(), counter)

	h.Handle(New(DeliveryCompletedType, "not a report"))

	req.Zero(counter.Get(DeliveryCompletedType))
}

func TestEvictionHandler_CountsReasons(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	h := NewEvictionHandler(slog.Default(), counter)

	h.Handle(New(ConnectionEvictedType, ConnectionEvicted{ConnectionID: "c1", Reason: "heartbeat timeout"}))
	h.Handle(New(ConnectionEvictedType, ConnectionEvicted{ConnectionID: "c2", Reason: "heartbeat timeout"}))

	req.Equal(uint64(2), counter.Get(ConnectionEvictedType))
	req.Equal(uint64(2), counter.GetLabel("evicted:heartbeat timeout"))
}

func TestProcessTrackerHandler_KeepsLatest(t *testing.T) {
	req := require.New(t)
	h := NewProcessTrackerHandler(slog.Default())

	h.Handle(Event{Type: ProcessStatsType, CreatedAt: time.Now(), Payload: ProcessStats{PID: 1, Connections: 3}})
	h.Handle(Event{Type: ProcessStatsType, CreatedAt: time.Now(), Payload: ProcessStats{PID: 1, Connections: 5}})

	req.Equal(5, h.Latest().Connections)
}

func TestCensoredHandler_CountsWords(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	h := NewCensoredHandler(slog.Default(), counter)

	h.Handle(New(CensorshipHit, Censored{ConversationID: "conv", Word: "badword"}))
	h.Handle(New(CensorshipHit, Censored{ConversationID: "conv", Word: "badword"}))

	req.Equal(uint64(2), h.Hits("badword"))
	req.Equal(uint64(2), counter.Get(CensorshipHit))
}
