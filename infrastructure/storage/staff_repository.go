//go:generate go run go.uber.org/mock/mockgen -source=staff_repository.go -destination=../../mocks/mock_staff_repository.go -package=mocks
package storage

import (
	"encoding/json"
	"fmt"
	"shop-chat/domain"
	"shop-chat/errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IStaffRepository interface {
	CreateStaff(shopID, email, hashedPassword string) (string, error)
	GetStaffByEmail(email string) (domain.Staff, error)
	GetStaff(id string) (domain.Staff, error)
}

type StaffRepository struct {
	db *badger.DB
}

func NewStaffRepository(db *badger.DB) IStaffRepository {
	return &StaffRepository{db: db}
}

type diskStaff struct {
	ID           string `json:"id"`
	ShopID       string `json:"shop_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

func staffKey(id string) []byte {
	return []byte("staff:" + id)
}

func staffEmailKey(email string) []byte {
	return []byte("staff_email:" + strings.ToLower(email))
}

// CreateStaff persists a staff member. Emails are unique across shops.
func (s StaffRepository) CreateStaff(shopID, email, hashedPassword string) (string, error) {
	staff := diskStaff{
		ID:           uuid.NewString(),
		ShopID:       shopID,
		Email:        strings.ToLower(email),
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC().UnixNano(),
	}
	data, err := json.Marshal(staff)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(staffEmailKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(staffKey(staff.ID), data); err != nil {
			return err
		}
		return txn.Set(staffEmailKey(email), []byte(staff.ID))
	})
	if err != nil {
		return "", err
	}
	return staff.ID, nil
}

func (s StaffRepository) GetStaffByEmail(email string) (domain.Staff, error) {
	var staff domain.Staff
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(staffEmailKey(email))
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		staff, err = getStaff(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Staff{}, errors.ErrStaffNotFound
	}
	return staff, err
}

func (s StaffRepository) GetStaff(id string) (domain.Staff, error) {
	var staff domain.Staff
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		staff, err = getStaff(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Staff{}, errors.ErrStaffNotFound
	}
	return staff, err
}

func getStaff(txn *badger.Txn, id string) (domain.Staff, error) {
	item, err := txn.Get(staffKey(id))
	if err != nil {
		return domain.Staff{}, err
	}
	var ds diskStaff
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ds)
	}); err != nil {
		return domain.Staff{}, err
	}
	return domain.Staff{
		ID:           ds.ID,
		ShopID:       ds.ShopID,
		Email:        ds.Email,
		PasswordHash: ds.PasswordHash,
		CreatedAt:    time.Unix(0, ds.CreatedAt).UTC(),
	}, nil
}
