//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"shop-chat/domain"
	"shop-chat/errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	defaultLimitMessages = 100
	sequenceBandwidth    = 100
	maxOpenSequences     = 1024
)

type IMessageRepository interface {
	Append(ctx context.Context, msg domain.Message) (domain.Message, error)
	UpdateDeliveryState(ctx context.Context, conversationID string, seq uint64, state domain.DeliveryState) error
	History(ctx context.Context, conversationID string, afterSeq uint64, limit int) ([]domain.Message, error)
	Latest(ctx context.Context, conversationID string, cursor *string) ([]domain.Message, *string, error)
	Locate(ctx context.Context, id uuid.UUID) (string, uint64, error)
	Get(ctx context.Context, conversationID string, seq uint64) (domain.Message, error)
}

// MessageRepository stores messages under "msg:{conversation}:{seq}".
// Seq comes from a badger sequence per conversation, so it only grows,
// even across restarts (leased numbers that were never used are skipped).
// At most maxSequences sequences stay leased, the least recently used one
// is released to make room.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int

	mu           sync.Mutex
	sequences    map[string]*leasedSequence
	tick         uint64
	maxSequences int
}

type leasedSequence struct {
	seq  *badger.Sequence
	used uint64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		sequences:     make(map[string]*leasedSequence),
		maxSequences:  maxOpenSequences,
	}
}

type diskMessage struct {
	ID             string `json:"id"`
	Seq            uint64 `json:"seq"`
	ConversationID string `json:"conversation_id"`
	ShopID         string `json:"shop_id"`
	SenderID       string `json:"sender_id"`
	SenderRole     string `json:"sender_role"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
	DeliveryState  string `json:"delivery_state"`
}

func messagePrefix(conversationID string) string {
	return fmt.Sprintf("msg:%s:", conversationID)
}

// messageKey pads seq to 20 digits so lexicographic order is numeric order.
func messageKey(conversationID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", conversationID, seq))
}

func messageIDKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

// Append assigns id, timestamp and seq, then writes the message and its id index atomically.
func (m *MessageRepository) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: append: %v", errors.ErrInternal, err)
	}
	seq, err := m.nextSeq(msg.ConversationID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: sequence: %v", errors.ErrInternal, err)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Seq = seq
	msg.DeliveryState = domain.Persisted

	bytes, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: marshal: %v", errors.ErrInternal, err)
	}
	location := fmt.Sprintf("%s:%d", msg.ConversationID, seq)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg.ConversationID, seq), bytes); err != nil {
			return err
		}
		return txn.Set(messageIDKey(msg.ID), []byte(location))
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: store message: %v", errors.ErrInternal, err)
	}
	return msg, nil
}

func (m *MessageRepository) nextSeq(conversationID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	leased, ok := m.sequences[conversationID]
	if !ok {
		if len(m.sequences) >= m.maxSequences {
			m.releaseOldest()
		}
		seq, err := m.db.GetSequence([]byte("seq:"+conversationID), sequenceBandwidth)
		if err != nil {
			return 0, err
		}
		leased = &leasedSequence{seq: seq}
		m.sequences[conversationID] = leased
	}
	m.tick++
	leased.used = m.tick

	// Sequences start at 0, positions start at 1
	n, err := leased.seq.Next()
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// releaseOldest hands the unused numbers of the least recently used sequence
// back to badger. The next append to that conversation leases it again.
func (m *MessageRepository) releaseOldest() {
	var oldest *string
	var used uint64
	for conversationID, leased := range m.sequences {
		if oldest == nil || leased.used < used {
			id := conversationID
			oldest, used = &id, leased.used
		}
	}
	if oldest == nil {
		return
	}
	if err := m.sequences[*oldest].seq.Release(); err != nil {
		m.log.Warn("Unable to release sequence", "conversation_id", *oldest, "error", err)
	}
	delete(m.sequences, *oldest)
}

func (m *MessageRepository) UpdateDeliveryState(ctx context.Context, conversationID string, seq uint64, state domain.DeliveryState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: update delivery state: %v", errors.ErrInternal, err)
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		key := messageKey(conversationID, seq)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var dm diskMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dm)
		}); err != nil {
			return err
		}
		dm.DeliveryState = string(state)
		bytes, err := json.Marshal(dm)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrMessageNotFound
	}
	return err
}

// History returns messages strictly after afterSeq, oldest first.
func (m *MessageRepository) History(ctx context.Context, conversationID string, afterSeq uint64, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: history: %v", errors.ErrInternal, err)
	}
	limit = m.limit(limit)
	messages := make([]domain.Message, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(conversationID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(messageKey(conversationID, afterSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			msg, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Latest walks a conversation backwards, newest first.
// The returned cursor is the seq of the last message read and can be passed back
// to continue with older messages.
func (m *MessageRepository) Latest(ctx context.Context, conversationID string, cursor *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: latest: %v", errors.ErrInternal, err)
	}
	limit := m.limit(0)
	var messages []domain.Message
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(conversationID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append([]byte(prefixStr), []byte(strings.Repeat("9", 20))...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			msg, err := decodeItem(item)
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// Locate resolves a message id to its conversation and position.
func (m *MessageRepository) Locate(ctx context.Context, id uuid.UUID) (string, uint64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, fmt.Errorf("%w: locate: %v", errors.ErrInternal, err)
	}
	var location string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIDKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			location = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", 0, errors.ErrMessageNotFound
	}
	if err != nil {
		return "", 0, err
	}
	idx := strings.LastIndex(location, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("%w: corrupted index for %s", errors.ErrInternal, id)
	}
	seq, err := strconv.ParseUint(location[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: corrupted index for %s", errors.ErrInternal, id)
	}
	return location[:idx], seq, nil
}

func (m *MessageRepository) Get(ctx context.Context, conversationID string, seq uint64) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: get: %v", errors.ErrInternal, err)
	}
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(conversationID, seq))
		if err != nil {
			return err
		}
		msg, err = decodeItem(item)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	return msg, err
}

// Close returns leased sequence numbers to badger. Call it before closing the DB.
func (m *MessageRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for conversationID, leased := range m.sequences {
		if err := leased.seq.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.sequences, conversationID)
	}
	return firstErr
}

func (m *MessageRepository) limit(requested int) int {
	ceiling := defaultLimitMessages
	if m.limitMessages != nil && *m.limitMessages > 0 {
		ceiling = *m.limitMessages
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

func decodeItem(item *badger.Item) (domain.Message, error) {
	var dm diskMessage
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &dm)
	}); err != nil {
		return domain.Message{}, err
	}
	return toMessage(dm)
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:             msg.ID.String(),
		Seq:            msg.Seq,
		ConversationID: msg.ConversationID,
		ShopID:         msg.ShopID,
		SenderID:       msg.SenderID,
		SenderRole:     string(msg.SenderRole),
		Type:           string(msg.Type),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.UnixNano(),
		DeliveryState:  string(msg.DeliveryState),
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             parsedID,
		Seq:            dm.Seq,
		ConversationID: dm.ConversationID,
		ShopID:         dm.ShopID,
		SenderID:       dm.SenderID,
		SenderRole:     domain.Role(dm.SenderRole),
		Type:           domain.MessageType(dm.Type),
		Content:        dm.Content,
		CreatedAt:      time.Unix(0, dm.CreatedAt).UTC(),
		DeliveryState:  domain.DeliveryState(dm.DeliveryState),
	}, nil
}
