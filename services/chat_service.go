//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"io"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/errors"
	"shop-chat/infrastructure/storage"
	"shop-chat/protocol"
	"shop-chat/runtime"
	"time"

	"github.com/samber/lo"
)

type IChatService interface {
	Reply(ctx context.Context, identity domain.Identity, conversationID string, p protocol.SendMessagePayload) (domain.Message, error)
	History(ctx context.Context, identity domain.Identity, conversationID string, afterSeq uint64, afterID string, limit int) ([]domain.Message, error)
	Conversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error)
	SetStatus(ctx context.Context, identity domain.Identity, conversationID string, status domain.ConversationStatus) (domain.Conversation, error)
	Upload(name string, r io.Reader) (domain.Media, error)
	Search(ctx context.Context, identity domain.Identity, query string, limit int) ([]contract.SearchHit, error)
	Stats() domain.Stats
}

// MediaStore is the upload side of the file store.
type MediaStore interface {
	Save(name string, r io.Reader) (domain.Media, error)
}

// ChatService is what the HTTP API sees of the chat.
type ChatService struct {
	router        *runtime.Router
	registry      contract.IRegistry
	conversations storage.IConversationRepository
	media         MediaStore
	index         contract.MessageIndex
	counter       *event.Counter
	process       *event.ProcessTrackerHandler
}

func NewChatService(router *runtime.Router,
	registry contract.IRegistry,
	conversations storage.IConversationRepository,
	media MediaStore,
	index contract.MessageIndex,
	counter *event.Counter,
	process *event.ProcessTrackerHandler) *ChatService {
	return &ChatService{
		router:        router,
		registry:      registry,
		conversations: conversations,
		media:         media,
		index:         index,
		counter:       counter,
		process:       process,
	}
}

func (s *ChatService) Reply(ctx context.Context, identity domain.Identity, conversationID string, p protocol.SendMessagePayload) (domain.Message, error) {
	return s.router.Reply(ctx, identity, conversationID, p)
}

func (s *ChatService) History(ctx context.Context, identity domain.Identity, conversationID string, afterSeq uint64, afterID string, limit int) ([]domain.Message, error) {
	messages, _, err := s.router.History(ctx, identity, conversationID, afterSeq, afterID, limit)
	return messages, err
}

func (s *ChatService) Conversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error) {
	if !identity.IsStaff() {
		return nil, errors.ErrForbidden
	}
	return s.conversations.ListByShop(ctx, identity.ShopID)
}

func (s *ChatService) SetStatus(ctx context.Context, identity domain.Identity, conversationID string, status domain.ConversationStatus) (domain.Conversation, error) {
	if !identity.IsStaff() {
		return domain.Conversation{}, errors.ErrForbidden
	}
	if !status.Valid() {
		return domain.Conversation{}, errors.ErrValidation
	}
	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conversation.ShopID != identity.ShopID {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	return s.conversations.SetStatus(ctx, conversationID, status)
}

func (s *ChatService) Upload(name string, r io.Reader) (domain.Media, error) {
	return s.media.Save(name, r)
}

func (s *ChatService) Search(ctx context.Context, identity domain.Identity, query string, limit int) ([]contract.SearchHit, error) {
	if !identity.IsStaff() {
		return nil, errors.ErrForbidden
	}
	if s.index == nil {
		return []contract.SearchHit{}, nil
	}
	return s.index.Search(ctx, identity.ShopID, query, limit)
}

func (s *ChatService) Stats() domain.Stats {
	connections := s.registry.Snapshot()
	stats := domain.Stats{
		Connections:    len(connections),
		Authenticated:  lo.CountBy(connections, func(c domain.Connection) bool { return c.IsAuthenticated() }),
		Persisted:      s.counter.Get(event.MessagePersistedType),
		Delivered:      s.counter.GetLabel(string(domain.Delivered)),
		Queued:         s.counter.GetLabel(string(domain.Queued)),
		Evicted:        s.counter.Get(event.ConnectionEvictedType),
		WorkerRestarts: s.counter.Get(event.RestartedAfterPanicType),
		CensoredWords:  s.counter.Get(event.CensorshipHit),
		SampledAt:      time.Now().UTC(),
	}
	if s.process != nil {
		latest := s.process.Latest()
		stats.ProcessRSS = latest.Ram
		stats.ProcessCPU = latest.Cpu
		stats.ProcessStatus = latest.Status
	}
	return stats
}
