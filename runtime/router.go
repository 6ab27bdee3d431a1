package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/domain/mimetypes"
	"shop-chat/errors"
	"shop-chat/infrastructure/storage"
	"shop-chat/protocol"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// AutoReplySenderID is the sender of synthetic staff messages.
const AutoReplySenderID = "auto-reply"

// Router validates, persists and fans out chat messages.
// Persistence and fan-out of one conversation run under the same lock,
// so recipients see messages in store order.
type Router struct {
	log              *slog.Logger
	registry         contract.IRegistry
	conversations    storage.IConversationRepository
	messages         storage.IMessageRepository
	fanout           *Fanout
	media            contract.MediaResolver
	telemetry        chan<- event.Event
	locks            *KeyedMutex
	maxContentLength int
	persistTimeout   time.Duration

	censor      contract.Censor
	index       contract.MessageIndex
	autoReplies chan<- domain.Message
}

type RouterOption func(*Router)

// WithCensor rewrites text content before it is stored.
func WithCensor(censor contract.Censor) RouterOption {
	return func(r *Router) { r.censor = censor }
}

func WithIndex(index contract.MessageIndex) RouterOption {
	return func(r *Router) { r.index = index }
}

// WithAutoReply hands every persisted customer message to ch, dropping it when ch is full.
func WithAutoReply(ch chan<- domain.Message) RouterOption {
	return func(r *Router) { r.autoReplies = ch }
}

func NewRouter(log *slog.Logger,
	registry contract.IRegistry,
	conversations storage.IConversationRepository,
	messages storage.IMessageRepository,
	fanout *Fanout,
	media contract.MediaResolver,
	telemetry chan<- event.Event,
	maxContentLength int,
	persistTimeout time.Duration,
	opts ...RouterOption) *Router {
	r := &Router{
		log:              log,
		registry:         registry,
		conversations:    conversations,
		messages:         messages,
		fanout:           fanout,
		media:            media,
		telemetry:        telemetry,
		locks:            NewKeyedMutex(),
		maxContentLength: maxContentLength,
		persistTimeout:   persistTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send handles a message written on an authenticated socket.
// On success the sender has already received message_sent when Send returns.
func (r *Router) Send(ctx context.Context, connID string, p protocol.SendMessagePayload) (domain.Message, error) {
	info, ok := r.registry.Connection(connID)
	if !ok {
		return domain.Message{}, errors.ErrUnknownConnection
	}
	if !info.IsAuthenticated() {
		return domain.Message{}, errors.ErrNotAuthenticated
	}
	identity := *info.Identity

	p, err := r.validate(p)
	if err != nil {
		return domain.Message{}, err
	}

	var conversation domain.Conversation
	if identity.IsStaff() {
		conversation, err = r.staffConversation(ctx, identity, p.ConversationID)
	} else {
		conversation, err = r.customerConversation(ctx, identity, info.ConversationID, p.ConversationID)
	}
	if err != nil {
		return domain.Message{}, err
	}

	ack := func(msg domain.Message) {
		env, err := protocol.New(protocol.MessageSent, protocol.ToMessageSent(msg, p.ClientMsgID))
		if err != nil {
			r.log.Error("Unable to encode acknowledgment", "message_id", msg.ID, "error", err)
			return
		}
		conn, ok := r.registry.Get(connID)
		if !ok {
			return
		}
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fanout.writeTimeout)
		defer cancel()
		if err := conn.Send(writeCtx, env); err != nil {
			r.log.Debug("Sender gone before acknowledgment", "connection_id", connID, "error", err)
			r.fanout.evict(connID)
		}
	}
	return r.post(ctx, conversation, identity, p.Type, p.Content, ack)
}

// Reply is the request/response entry point for staff without a socket.
func (r *Router) Reply(ctx context.Context, identity domain.Identity, conversationID string, p protocol.SendMessagePayload) (domain.Message, error) {
	if !identity.IsStaff() {
		return domain.Message{}, errors.ErrForbidden
	}
	p, err := r.validate(p)
	if err != nil {
		return domain.Message{}, err
	}
	conversation, err := r.staffConversation(ctx, identity, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	return r.post(ctx, conversation, identity, p.Type, p.Content, nil)
}

// PostAutoReply stores and pushes a synthetic staff message.
func (r *Router) PostAutoReply(ctx context.Context, conversationID, content string) (domain.Message, error) {
	conversation, err := r.conversations.Get(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conversation.IsActive() {
		return domain.Message{}, errors.ErrConversationNotActive
	}
	p, err := r.validate(protocol.SendMessagePayload{Type: domain.MessageText, Content: content})
	if err != nil {
		return domain.Message{}, err
	}
	sender := domain.Identity{ShopID: conversation.ShopID, UserID: AutoReplySenderID, Role: domain.RoleStaff}
	return r.post(ctx, conversation, sender, p.Type, p.Content, nil)
}

// Typing forwards a typing hint to the counterpart. Nothing is stored.
func (r *Router) Typing(ctx context.Context, connID string, p protocol.TypingPayload) error {
	info, ok := r.registry.Connection(connID)
	if !ok {
		return errors.ErrUnknownConnection
	}
	if !info.IsAuthenticated() {
		return errors.ErrNotAuthenticated
	}
	identity := *info.Identity

	var (
		conversation domain.Conversation
		err          error
	)
	if identity.IsStaff() {
		conversation, err = r.staffConversation(ctx, identity, p.ConversationID)
	} else {
		conversation, err = r.customerConversation(ctx, identity, info.ConversationID, p.ConversationID)
	}
	if err != nil {
		return err
	}

	env, err := protocol.New(protocol.Typing, protocol.TypingPayload{
		ConversationID: conversation.ID,
		UserID:         identity.UserID,
		IsTyping:       p.IsTyping,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	r.fanout.Push(ctx, env, r.recipients(conversation, identity))
	return nil
}

// History returns the messages stored strictly after a cursor, in store order.
// afterID wins over afterSeq when both are given.
// History returns the messages after the cursor and the seq the cursor resolved to.
// afterID, when set, wins over afterSeq.
func (r *Router) History(ctx context.Context, identity domain.Identity, conversationID string, afterSeq uint64, afterID string, limit int) ([]domain.Message, uint64, error) {
	conversation, err := r.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if conversation.ShopID != identity.ShopID {
		return nil, 0, errors.ErrConversationNotFound
	}
	if !identity.IsStaff() && conversation.CustomerID != identity.UserID {
		return nil, 0, errors.ErrConversationNotFound
	}

	if afterID != "" {
		id, err := uuid.Parse(afterID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: afterId: %v", errors.ErrValidation, err)
		}
		located, seq, err := r.messages.Locate(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if located != conversation.ID {
			return nil, 0, errors.ErrMessageNotFound
		}
		afterSeq = seq
	}
	messages, err := r.messages.History(ctx, conversation.ID, afterSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	return messages, afterSeq, nil
}

func (r *Router) validate(p protocol.SendMessagePayload) (protocol.SendMessagePayload, error) {
	if p.Type == "" {
		p.Type = domain.MessageText
	}
	if !p.Type.Valid() {
		return p, errors.ErrInvalidMessageType
	}
	if strings.TrimSpace(p.Content) == "" {
		return p, errors.ErrEmptyContent
	}
	if r.maxContentLength > 0 && len(p.Content) > r.maxContentLength {
		return p, errors.ErrContentTooLong
	}
	if !p.Type.IsMedia() {
		return p, nil
	}

	if r.media == nil {
		return p, errors.ErrMediaNotFound
	}
	media, err := r.media.Resolve(p.Content)
	if err != nil {
		return p, err
	}
	if p.Type == domain.MessageImage && !mimetypes.IsImage(media.MimeType) {
		return p, errors.ErrInvalidMedia
	}
	return p, nil
}

func (r *Router) customerConversation(ctx context.Context, identity domain.Identity, bound, requested string) (domain.Conversation, error) {
	if bound == "" {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if requested != "" && requested != bound {
		return domain.Conversation{}, errors.ErrForbidden
	}
	conversation, err := r.conversations.Get(ctx, bound)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conversation.ShopID != identity.ShopID || conversation.CustomerID != identity.UserID {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if !conversation.IsActive() {
		return domain.Conversation{}, errors.ErrConversationNotActive
	}
	return conversation, nil
}

func (r *Router) staffConversation(ctx context.Context, identity domain.Identity, conversationID string) (domain.Conversation, error) {
	if conversationID == "" {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	conversation, err := r.conversations.Get(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	// Another tenant's conversation does not exist for this caller
	if conversation.ShopID != identity.ShopID {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if !conversation.IsActive() {
		return domain.Conversation{}, errors.ErrConversationNotActive
	}
	return conversation, nil
}

// post persists a validated message then delivers it. ack, when set, runs
// between persistence and fan-out.
func (r *Router) post(ctx context.Context, conversation domain.Conversation, sender domain.Identity,
	messageType domain.MessageType, content string, ack func(domain.Message)) (domain.Message, error) {
	if r.censor != nil && messageType == domain.MessageText {
		censored, words := r.censor.Censor(content)
		for _, word := range words {
			event.Publish(r.telemetry, event.New(event.CensorshipHit, event.Censored{
				ConversationID: conversation.ID,
				Word:           word,
			}))
		}
		content = censored
	}

	// A sender leaving does not cancel what it already submitted
	detached := context.WithoutCancel(ctx)

	unlock := r.locks.Lock(conversation.ID)
	defer unlock()

	persistCtx, cancel := context.WithTimeout(detached, r.persistTimeout)
	defer cancel()
	msg, err := r.messages.Append(persistCtx, domain.Message{
		ConversationID: conversation.ID,
		ShopID:         conversation.ShopID,
		SenderID:       sender.UserID,
		SenderRole:     sender.Role,
		Type:           messageType,
		Content:        content,
		DeliveryState:  domain.Persisted,
	})
	if err != nil {
		r.log.Error("Message persistence failed", "conversation_id", conversation.ID, "error", err)
		if errors.CodeOf(err) == errors.CodeInternal {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	event.Publish(r.telemetry, event.New(event.MessagePersistedType, event.MessagePersisted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		ShopID:         msg.ShopID,
		At:             msg.CreatedAt,
	}))

	if ack != nil {
		ack(msg)
	}

	msg.DeliveryState = r.fanout.Deliver(detached, msg, r.recipients(conversation, sender))
	r.afterDelivery(detached, msg)
	return msg, nil
}

// recipients computes who should see something written by sender in conversation.
// Customers reach every staff connection of their shop, staff reach the
// customer bound to the conversation.
func (r *Router) recipients(conversation domain.Conversation, sender domain.Identity) []string {
	if sender.IsStaff() {
		connID, ok := r.registry.LookupByIdentity(conversation.Customer())
		if !ok {
			return nil
		}
		info, ok := r.registry.Connection(connID)
		if !ok || !info.IsAuthenticated() || info.Identity.IsStaff() || info.ConversationID != conversation.ID {
			return nil
		}
		return []string{connID}
	}

	return lo.Filter(r.registry.LookupTenant(conversation.ShopID), func(connID string, _ int) bool {
		info, ok := r.registry.Connection(connID)
		return ok && info.IsAuthenticated() && info.Identity.IsStaff()
	})
}

func (r *Router) afterDelivery(ctx context.Context, msg domain.Message) {
	if err := r.conversations.Touch(ctx, msg.ConversationID, msg.CreatedAt); err != nil {
		r.log.Warn("Unable to touch conversation", "conversation_id", msg.ConversationID, "error", err)
	}
	if r.index != nil {
		if err := r.index.Index(msg); err != nil {
			r.log.Warn("Unable to index message", "message_id", msg.ID, "error", err)
		}
	}
	if r.autoReplies != nil && msg.SenderRole == domain.RoleCustomer {
		select {
		case r.autoReplies <- msg:
		default:
			r.log.Warn("Auto-reply channel full, message skipped", "message_id", msg.ID)
		}
	}
}
