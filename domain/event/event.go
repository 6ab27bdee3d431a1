package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	MessagePersistedType  Type = "MESSAGE_PERSISTED"
	DeliveryCompletedType Type = "DELIVERY_COMPLETED"
	ConnectionEvictedType Type = "CONNECTION_EVICTED"
	CensorshipHit         Type = "CENSORSHIP_HIT"
	AutoReplySentType     Type = "AUTO_REPLY_SENT"
)

// Event is a telemetry record. Losing one is acceptable, blocking a sender is not.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

func New(t Type, payload any) Event {
	return Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}
}

type MessagePersisted struct {
	MessageID      uuid.UUID
	ConversationID string
	ShopID         string
	At             time.Time
}

type DeliveryCompleted struct {
	MessageID      uuid.UUID
	ConversationID string
	Recipients     int
	Written        int
	State          string
	PersistedAt    time.Time
	CompletedAt    time.Time
}

type ConnectionEvicted struct {
	ConnectionID string
	Reason       string
}

type Censored struct {
	ConversationID string
	Word           string
}

type AutoReplySent struct {
	ConversationID string
	Language       string
	Rule           string
}

// Publish hands an event to the telemetry channel without ever blocking.
// It reports whether the event was accepted.
func Publish(ch chan<- Event, evt Event) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- evt:
		return true
	default:
		return false
	}
}
