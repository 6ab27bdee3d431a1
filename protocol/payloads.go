package protocol

import (
	"shop-chat/domain"
	"shop-chat/errors"
	"time"
)

// AuthPayload carries either a customer credential (shopKey + userId)
// or a staff credential (sessionToken), never both.
type AuthPayload struct {
	ShopKey      string `json:"shopKey,omitempty" validate:"required_without=SessionToken,excluded_with=SessionToken,max=128"`
	ShopID       string `json:"shopId,omitempty" validate:"max=128"`
	UserID       string `json:"userId,omitempty" validate:"required_with=ShopKey,max=128"`
	SessionToken string `json:"sessionToken,omitempty" validate:"required_without=ShopKey,max=4096"`
}

func (p AuthPayload) IsStaff() bool {
	return p.SessionToken != ""
}

type AuthSuccessPayload struct {
	ConnectionID   string      `json:"connectionId"`
	ShopID         string      `json:"shopId"`
	UserID         string      `json:"userId"`
	Role           domain.Role `json:"role"`
	ConversationID string      `json:"conversationId,omitempty"`
}

// SendMessagePayload is used for send_message. Customers may omit
// ConversationID, staff must name the conversation they answer.
type SendMessagePayload struct {
	ConversationID string             `json:"conversationId,omitempty" validate:"max=128"`
	Type           domain.MessageType `json:"type,omitempty"`
	Content        string             `json:"content"`
	ClientMsgID    string             `json:"clientMsgId,omitempty" validate:"max=128"`
}

type SendMultimediaPayload struct {
	ConversationID string             `json:"conversationId,omitempty" validate:"max=128"`
	Type           domain.MessageType `json:"type" validate:"required,oneof=image file"`
	MediaRef       string             `json:"mediaRef" validate:"required,max=256"`
	ClientMsgID    string             `json:"clientMsgId,omitempty" validate:"max=128"`
}

func (p SendMultimediaPayload) ToSend() SendMessagePayload {
	return SendMessagePayload{
		ConversationID: p.ConversationID,
		Type:           p.Type,
		Content:        p.MediaRef,
		ClientMsgID:    p.ClientMsgID,
	}
}

type MessageSentPayload struct {
	ID             string    `json:"id"`
	Seq            uint64    `json:"seq"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
	ClientMsgID    string    `json:"clientMsgId,omitempty"`
}

// NewUserMessagePayload is what staff receive when a customer writes.
type NewUserMessagePayload struct {
	ID             string             `json:"id"`
	Seq            uint64             `json:"seq"`
	ShopID         string             `json:"shopId"`
	UserID         string             `json:"userId"`
	ConversationID string             `json:"conversationId"`
	Type           domain.MessageType `json:"type"`
	Message        string             `json:"message"`
	Timestamp      time.Time          `json:"timestamp"`
}

// StaffMessagePayload is what a customer receives when staff answers.
type StaffMessagePayload struct {
	ID             string             `json:"id"`
	Seq            uint64             `json:"seq"`
	ConversationID string             `json:"conversationId"`
	StaffID        string             `json:"staffId"`
	Type           domain.MessageType `json:"type"`
	Content        string             `json:"content"`
	Timestamp      time.Time          `json:"timestamp"`
}

// NewMessagePayload is a full message record, used when replaying history.
type NewMessagePayload struct {
	ID             string               `json:"id"`
	Seq            uint64               `json:"seq"`
	ConversationID string               `json:"conversationId"`
	SenderID       string               `json:"senderId"`
	SenderRole     domain.Role          `json:"senderRole"`
	Type           domain.MessageType   `json:"type"`
	Content        string               `json:"content"`
	Timestamp      time.Time            `json:"timestamp"`
	DeliveryState  domain.DeliveryState `json:"deliveryState"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId,omitempty" validate:"max=128"`
	UserID         string `json:"userId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

type PingPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

type ConnectionEstablishedPayload struct {
	ConnectionID       string    `json:"connectionId"`
	ServerTime         time.Time `json:"serverTime"`
	HandshakeTimeoutMs int64     `json:"handshakeTimeoutMs"`
}

type ErrorPayload struct {
	Code        errors.Code `json:"code"`
	Message     string      `json:"message"`
	RequestType Type        `json:"requestType,omitempty"`
}

// HistoryPayload asks for messages strictly after a cursor. AfterID wins over AfterSeq.
type HistoryPayload struct {
	ConversationID string `json:"conversationId,omitempty" validate:"max=128"`
	AfterID        string `json:"afterId,omitempty" validate:"omitempty,uuid"`
	AfterSeq       uint64 `json:"afterSeq,omitempty"`
	Limit          int    `json:"limit,omitempty" validate:"min=0,max=500"`
}

type HistoryEndPayload struct {
	ConversationID string `json:"conversationId"`
	LastSeq        uint64 `json:"lastSeq"`
	Count          int    `json:"count"`
}

func ToMessageSent(m domain.Message, clientMsgID string) MessageSentPayload {
	return MessageSentPayload{
		ID:             m.ID.String(),
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		Timestamp:      m.CreatedAt,
		ClientMsgID:    clientMsgID,
	}
}

func ToNewUserMessage(m domain.Message) NewUserMessagePayload {
	return NewUserMessagePayload{
		ID:             m.ID.String(),
		Seq:            m.Seq,
		ShopID:         m.ShopID,
		UserID:         m.SenderID,
		ConversationID: m.ConversationID,
		Type:           m.Type,
		Message:        m.Content,
		Timestamp:      m.CreatedAt,
	}
}

func ToStaffMessage(m domain.Message) StaffMessagePayload {
	return StaffMessagePayload{
		ID:             m.ID.String(),
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		StaffID:        m.SenderID,
		Type:           m.Type,
		Content:        m.Content,
		Timestamp:      m.CreatedAt,
	}
}

func ToNewMessage(m domain.Message) NewMessagePayload {
	return NewMessagePayload{
		ID:             m.ID.String(),
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderRole:     m.SenderRole,
		Type:           m.Type,
		Content:        m.Content,
		Timestamp:      m.CreatedAt,
		DeliveryState:  m.DeliveryState,
	}
}

// ForRecipients picks the push frame for a message depending on who wrote it.
func ForRecipients(m domain.Message) (Envelope, error) {
	if m.SenderRole == domain.RoleCustomer {
		return New(NewUserMessage, ToNewUserMessage(m))
	}
	return New(StaffMessage, ToStaffMessage(m))
}
