package runtime

import (
	"context"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/errors"
	"shop-chat/infrastructure/storage"
	"shop-chat/protocol"
)

// IdentityVerifier resolves a staff session token.
type IdentityVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Authenticator promotes a raw connection to an authenticated one.
type Authenticator struct {
	log           *slog.Logger
	registry      contract.IRegistry
	shops         storage.IShopRepository
	conversations storage.IConversationRepository
	verifier      IdentityVerifier
	telemetry     chan<- event.Event
	maxAttempts   int
}

func NewAuthenticator(log *slog.Logger,
	registry contract.IRegistry,
	shops storage.IShopRepository,
	conversations storage.IConversationRepository,
	verifier IdentityVerifier,
	telemetry chan<- event.Event,
	maxAttempts int) *Authenticator {
	return &Authenticator{
		log:           log,
		registry:      registry,
		shops:         shops,
		conversations: conversations,
		verifier:      verifier,
		telemetry:     telemetry,
		maxAttempts:   maxAttempts,
	}
}

// Authenticate checks a credential and registers the connection.
// A failed attempt leaves the connection Connected. Once maxAttempts
// failures are reached ErrTooManyAttempts is returned and the caller is
// expected to close the socket after reporting it.
func (a *Authenticator) Authenticate(ctx context.Context, connID string, p protocol.AuthPayload) (protocol.AuthSuccessPayload, error) {
	info, ok := a.registry.Connection(connID)
	if !ok {
		return protocol.AuthSuccessPayload{}, errors.ErrUnknownConnection
	}
	if info.IsAuthenticated() {
		return protocol.AuthSuccessPayload{}, errors.ErrAlreadyAuthenticated
	}

	a.registry.SetState(connID, domain.Authenticating)
	identity, conversationID, err := a.resolve(ctx, p)
	if err != nil {
		a.registry.SetState(connID, domain.Connected)
		attempts := a.registry.IncrAuthAttempts(connID)
		a.log.Debug("Authentication failed", "connection_id", connID, "attempts", attempts, "error", err)
		if a.maxAttempts > 0 && attempts >= a.maxAttempts {
			// The last cause stays in the log, it may carry store details
			a.log.Warn("Authentication attempts exhausted", "connection_id", connID, "attempts", attempts, "error", err)
			return protocol.AuthSuccessPayload{}, errors.ErrTooManyAttempts
		}
		return protocol.AuthSuccessPayload{}, err
	}

	previous, err := a.registry.Register(connID, identity, conversationID)
	if err != nil {
		return protocol.AuthSuccessPayload{}, err
	}
	if previous != "" && a.registry.Evict(previous, domain.ReasonSessionReplaced) {
		a.log.Info("Previous connection replaced",
			"identity", identity.Key(), "previous", previous, "connection_id", connID)
		event.Publish(a.telemetry, event.New(event.ConnectionEvictedType, event.ConnectionEvicted{
			ConnectionID: previous,
			Reason:       domain.ReasonSessionReplaced,
		}))
	}

	a.log.Info("Connection authenticated",
		"connection_id", connID, "shop_id", identity.ShopID, "user_id", identity.UserID, "role", identity.Role)
	return protocol.AuthSuccessPayload{
		ConnectionID:   connID,
		ShopID:         identity.ShopID,
		UserID:         identity.UserID,
		Role:           identity.Role,
		ConversationID: conversationID,
	}, nil
}

func (a *Authenticator) resolve(ctx context.Context, p protocol.AuthPayload) (domain.Identity, string, error) {
	if p.IsStaff() {
		identity, err := a.verifier.Verify(p.SessionToken)
		if err != nil {
			return domain.Identity{}, "", err
		}
		shop, err := a.shops.Get(ctx, identity.ShopID)
		if err != nil {
			return domain.Identity{}, "", err
		}
		if !shop.Active {
			return domain.Identity{}, "", errors.ErrShopInactive
		}
		return identity, "", nil
	}

	shop, err := a.shops.GetByKey(ctx, p.ShopKey)
	if err != nil {
		return domain.Identity{}, "", err
	}
	if p.ShopID != "" && p.ShopID != shop.ID {
		return domain.Identity{}, "", errors.ErrInvalidCredentials
	}
	if !shop.Active {
		return domain.Identity{}, "", errors.ErrShopInactive
	}
	conversation, err := a.conversations.GetOrCreate(ctx, shop.ID, p.UserID)
	if err != nil {
		return domain.Identity{}, "", err
	}
	identity := domain.Identity{ShopID: shop.ID, UserID: p.UserID, Role: domain.RoleCustomer}
	return identity, conversation.ID, nil
}
