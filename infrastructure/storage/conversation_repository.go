//go:generate go run go.uber.org/mock/mockgen -source=conversation_repository.go -destination=../../mocks/mock_conversation_repository.go -package=mocks
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"shop-chat/domain"
	"shop-chat/errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IConversationRepository interface {
	GetOrCreate(ctx context.Context, shopID, customerID string) (domain.Conversation, error)
	Get(ctx context.Context, id string) (domain.Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
	SetStatus(ctx context.Context, id string, status domain.ConversationStatus) (domain.Conversation, error)
	ListByShop(ctx context.Context, shopID string) ([]domain.Conversation, error)
}

// ConversationRepository keeps three kinds of keys:
//   - "conv:{id}" holds the conversation itself
//   - "conv_customer:{shop}:{customer}" points to the active conversation of a customer
//   - "conv_shop:{shop}:{id}" lists the conversations of a shop
type ConversationRepository struct {
	db *badger.DB
	// serializes create-or-get so a customer never ends up with two active conversations
	mu sync.Mutex
}

func NewConversationRepository(db *badger.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

type diskConversation struct {
	ID             string `json:"id"`
	ShopID         string `json:"shop_id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	CreatedAt      int64  `json:"created_at"`
	LastActivityAt int64  `json:"last_activity_at"`
}

func conversationKey(id string) []byte {
	return []byte("conv:" + id)
}

func customerKey(shopID, customerID string) []byte {
	return []byte(fmt.Sprintf("conv_customer:%s:%s", shopID, customerID))
}

func shopConversationPrefix(shopID string) string {
	return fmt.Sprintf("conv_shop:%s:", shopID)
}

// GetOrCreate returns the active conversation of a customer, opening one if needed.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, shopID, customerID string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: get or create conversation: %v", errors.ErrInternal, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var conversation domain.Conversation
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(customerKey(shopID, customerID))
		switch {
		case err == nil:
			var id string
			if err := item.Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			existing, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			if existing.IsActive() {
				conversation = existing
				return nil
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		now := time.Now().UTC()
		conversation = domain.Conversation{
			ID:             uuid.NewString(),
			ShopID:         shopID,
			CustomerID:     customerID,
			Status:         domain.ConversationActive,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		if err := setConversation(txn, conversation); err != nil {
			return err
		}
		if err := txn.Set(customerKey(shopID, customerID), []byte(conversation.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(shopConversationPrefix(shopID)+conversation.ID), nil)
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: get or create conversation: %v", errors.ErrInternal, err)
	}
	return conversation, nil
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: get conversation: %v", errors.ErrInternal, err)
	}
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: get conversation: %v", errors.ErrInternal, err)
	}
	return conversation, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.update(ctx, id, func(c *domain.Conversation) error {
		if at.After(c.LastActivityAt) {
			c.LastActivityAt = at
		}
		return nil
	})
	return err
}

// SetStatus moves a conversation through its lifecycle.
// Archived is final. Reopening is refused when the customer already has another active conversation.
func (r *ConversationRepository) SetStatus(ctx context.Context, id string, status domain.ConversationStatus) (domain.Conversation, error) {
	if !status.Valid() {
		return domain.Conversation{}, fmt.Errorf("%w: unknown status %q", errors.ErrValidation, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var active string
	var hasActive bool
	updated, err := r.update(ctx, id, func(c *domain.Conversation) error {
		if c.Status == domain.ConversationArchived && status != domain.ConversationArchived {
			return fmt.Errorf("%w: conversation is archived", errors.ErrValidation)
		}
		c.Status = status
		return nil
	}, func(txn *badger.Txn, c domain.Conversation) error {
		key := customerKey(c.ShopID, c.CustomerID)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			hasActive = true
			if err := item.Value(func(val []byte) error {
				active = string(val)
				return nil
			}); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if c.IsActive() {
			if hasActive && active != c.ID {
				other, err := getConversation(txn, active)
				if err != nil {
					return err
				}
				if other.IsActive() {
					return fmt.Errorf("%w: customer already has an active conversation", errors.ErrValidation)
				}
			}
			return txn.Set(key, []byte(c.ID))
		}
		if hasActive && active == c.ID {
			return txn.Delete(key)
		}
		return nil
	})
	return updated, err
}

func (r *ConversationRepository) ListByShop(ctx context.Context, shopID string) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", errors.ErrInternal, err)
	}
	conversations := make([]domain.Conversation, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(shopConversationPrefix(shopID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", errors.ErrInternal, err)
	}
	return conversations, nil
}

func (r *ConversationRepository) update(ctx context.Context, id string,
	mutate func(c *domain.Conversation) error,
	after ...func(txn *badger.Txn, c domain.Conversation) error) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: update conversation: %v", errors.ErrInternal, err)
	}
	var conversation domain.Conversation
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		if err != nil {
			return err
		}
		if err := mutate(&conversation); err != nil {
			return err
		}
		if err := setConversation(txn, conversation); err != nil {
			return err
		}
		for _, fn := range after {
			if err := fn(txn, conversation); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return conversation, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return domain.Conversation{}, errors.ErrConversationNotFound
	case errors.Is(err, errors.ErrValidation):
		return domain.Conversation{}, err
	default:
		return domain.Conversation{}, fmt.Errorf("%w: update conversation: %v", errors.ErrInternal, err)
	}
}

func getConversation(txn *badger.Txn, id string) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if err != nil {
		return domain.Conversation{}, err
	}
	var dc diskConversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &dc)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:             dc.ID,
		ShopID:         dc.ShopID,
		CustomerID:     dc.CustomerID,
		Status:         domain.ConversationStatus(dc.Status),
		CreatedAt:      time.Unix(0, dc.CreatedAt).UTC(),
		LastActivityAt: time.Unix(0, dc.LastActivityAt).UTC(),
	}, nil
}

func setConversation(txn *badger.Txn, c domain.Conversation) error {
	bytes, err := json.Marshal(diskConversation{
		ID:             c.ID,
		ShopID:         c.ShopID,
		CustomerID:     c.CustomerID,
		Status:         string(c.Status),
		CreatedAt:      c.CreatedAt.UnixNano(),
		LastActivityAt: c.LastActivityAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return txn.Set(conversationKey(c.ID), bytes)
}
