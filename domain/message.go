// Package domain contains core concepts of the chat system.
// This file defines Message records and their delivery lifecycle.
// Messages are immutable once persisted, only DeliveryState moves forward.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// IsMedia reports whether the content is a reference to stored media.
func (t MessageType) IsMedia() bool {
	return t == MessageImage || t == MessageFile
}

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

type DeliveryState string

const (
	Persisted DeliveryState = "persisted"
	Delivered DeliveryState = "delivered"
	Queued    DeliveryState = "queued"
)

// Message is a persisted chat record.
// Seq is the per-conversation position assigned by the store and is the
// only ordering a reader should trust.
type Message struct {
	ID             uuid.UUID
	Seq            uint64
	ConversationID string
	ShopID         string
	SenderID       string
	SenderRole     Role
	Type           MessageType
	Content        string
	CreatedAt      time.Time
	DeliveryState  DeliveryState
}
