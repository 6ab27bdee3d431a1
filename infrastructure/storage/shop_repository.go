package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"shop-chat/domain"
	"shop-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IShopRepository interface {
	Create(ctx context.Context, name string) (domain.Shop, error)
	Get(ctx context.Context, id string) (domain.Shop, error)
	GetByKey(ctx context.Context, apiKey string) (domain.Shop, error)
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context) ([]domain.Shop, error)
}

type ShopRepository struct {
	db *badger.DB
}

func NewShopRepository(db *badger.DB) *ShopRepository {
	return &ShopRepository{db: db}
}

type diskShop struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}

const shopPrefix = "shop:"

func shopKey(id string) []byte {
	return []byte(shopPrefix + id)
}

func shopAPIKey(apiKey string) []byte {
	return []byte("shop_key:" + apiKey)
}

// Create registers an active shop with a freshly generated public key.
func (r *ShopRepository) Create(ctx context.Context, name string) (domain.Shop, error) {
	if err := ctx.Err(); err != nil {
		return domain.Shop{}, fmt.Errorf("%w: create shop: %v", errors.ErrInternal, err)
	}
	apiKey, err := newAPIKey()
	if err != nil {
		return domain.Shop{}, fmt.Errorf("%w: api key: %v", errors.ErrInternal, err)
	}
	shop := domain.Shop{
		ID:        uuid.NewString(),
		Name:      name,
		APIKey:    apiKey,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := setShop(txn, shop); err != nil {
			return err
		}
		return txn.Set(shopAPIKey(shop.APIKey), []byte(shop.ID))
	})
	if err != nil {
		return domain.Shop{}, fmt.Errorf("%w: create shop: %v", errors.ErrInternal, err)
	}
	return shop, nil
}

func (r *ShopRepository) Get(ctx context.Context, id string) (domain.Shop, error) {
	if err := ctx.Err(); err != nil {
		return domain.Shop{}, fmt.Errorf("%w: get shop: %v", errors.ErrInternal, err)
	}
	var shop domain.Shop
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		shop, err = getShop(txn, id)
		return err
	})
	return shop, shopError(err)
}

func (r *ShopRepository) GetByKey(ctx context.Context, apiKey string) (domain.Shop, error) {
	if err := ctx.Err(); err != nil {
		return domain.Shop{}, fmt.Errorf("%w: get shop: %v", errors.ErrInternal, err)
	}
	var shop domain.Shop
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(shopAPIKey(apiKey))
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
		shop, err = getShop(txn, id)
		return err
	})
	return shop, shopError(err)
}

func (r *ShopRepository) SetActive(ctx context.Context, id string, active bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: set shop active: %v", errors.ErrInternal, err)
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		shop, err := getShop(txn, id)
		if err != nil {
			return err
		}
		shop.Active = active
		return setShop(txn, shop)
	})
	return shopError(err)
}

func (r *ShopRepository) List(ctx context.Context) ([]domain.Shop, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list shops: %v", errors.ErrInternal, err)
	}
	shops := make([]domain.Shop, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(shopPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ds diskShop
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ds)
			}); err != nil {
				return err
			}
			shops = append(shops, toShop(ds))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list shops: %v", errors.ErrInternal, err)
	}
	return shops, nil
}

func shopError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return errors.ErrShopNotFound
	default:
		return fmt.Errorf("%w: shop: %v", errors.ErrInternal, err)
	}
}

func getShop(txn *badger.Txn, id string) (domain.Shop, error) {
	item, err := txn.Get(shopKey(id))
	if err != nil {
		return domain.Shop{}, err
	}
	var ds diskShop
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ds)
	}); err != nil {
		return domain.Shop{}, err
	}
	return toShop(ds), nil
}

func setShop(txn *badger.Txn, shop domain.Shop) error {
	bytes, err := json.Marshal(diskShop{
		ID:        shop.ID,
		Name:      shop.Name,
		APIKey:    shop.APIKey,
		Active:    shop.Active,
		CreatedAt: shop.CreatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return txn.Set(shopKey(shop.ID), bytes)
}

func toShop(ds diskShop) domain.Shop {
	return domain.Shop{
		ID:        ds.ID,
		Name:      ds.Name,
		APIKey:    ds.APIKey,
		Active:    ds.Active,
		CreatedAt: time.Unix(0, ds.CreatedAt).UTC(),
	}
}

func newAPIKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "pk_" + hex.EncodeToString(b), nil
}
