//go:generate go run go.uber.org/mock/mockgen -source=session_repository.go -destination=../../mocks/mock_session_repository.go -package=mocks
package storage

import (
	"encoding/json"
	"fmt"
	"shop-chat/domain"
	"shop-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type ISessionRepository interface {
	Create(session domain.StaffSession) error
	Get(id string) (domain.StaffSession, error)
	Delete(id string) error
}

// SessionRepository relies on badger TTL so expired sessions disappear by themselves.
type SessionRepository struct {
	db *badger.DB
}

func NewSessionRepository(db *badger.DB) ISessionRepository {
	return &SessionRepository{db: db}
}

type diskSession struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	ShopID    string `json:"shop_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func sessionKey(id string) []byte {
	return []byte("session:" + id)
}

func (s SessionRepository) Create(session domain.StaffSession) error {
	data, err := json.Marshal(diskSession{
		ID:        session.ID,
		StaffID:   session.StaffID,
		ShopID:    session.ShopID,
		CreatedAt: session.CreatedAt.UnixNano(),
		ExpiresAt: session.ExpiresAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	entry := badger.NewEntry(sessionKey(session.ID), data)
	if ttl := time.Until(session.ExpiresAt); !session.ExpiresAt.IsZero() && ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

func (s SessionRepository) Get(id string) (domain.StaffSession, error) {
	var ds diskSession
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ds)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.StaffSession{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return domain.StaffSession{}, err
	}
	return domain.StaffSession{
		ID:        ds.ID,
		StaffID:   ds.StaffID,
		ShopID:    ds.ShopID,
		CreatedAt: time.Unix(0, ds.CreatedAt).UTC(),
		ExpiresAt: time.Unix(0, ds.ExpiresAt).UTC(),
	}, nil
}

func (s SessionRepository) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}
