package domain

import "time"

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationClosed   ConversationStatus = "closed"
	ConversationArchived ConversationStatus = "archived"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationClosed, ConversationArchived:
		return true
	}
	return false
}

// Conversation is the durable thread between one customer and the staff of a shop.
// It is created on the customer's first handshake and never hard-deleted.
type Conversation struct {
	ID             string
	ShopID         string
	CustomerID     string
	Status         ConversationStatus
	CreatedAt      time.Time
	LastActivityAt time.Time
}

func (c Conversation) IsActive() bool {
	return c.Status == ConversationActive
}

// Customer is the identity the conversation belongs to.
func (c Conversation) Customer() Identity {
	return Identity{ShopID: c.ShopID, UserID: c.CustomerID, Role: RoleCustomer}
}
