package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/errors"
	"shop-chat/infrastructure/storage"
	"shop-chat/mocks"
	"shop-chat/protocol"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_Customer(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.open("c1")

	success, err := f.authenticator.Authenticate(context.Background(), "c1",
		protocol.AuthPayload{ShopKey: f.shop.APIKey, ShopID: f.shop.ID, UserID: "u1"})
	req.NoError(err)
	req.Equal("c1", success.ConnectionID)
	req.Equal(f.shop.ID, success.ShopID)
	req.Equal("u1", success.UserID)
	req.Equal(domain.RoleCustomer, success.Role)
	req.NotEmpty(success.ConversationID)

	info, ok := f.registry.Connection("c1")
	req.True(ok)
	req.Equal(domain.Authenticated, info.State)
	req.Equal(success.ConversationID, info.ConversationID)

	// The conversation is resumed on the next handshake
	f.open("c2")
	again, err := f.authenticator.Authenticate(context.Background(), "c2",
		protocol.AuthPayload{ShopKey: f.shop.APIKey, UserID: "u1"})
	req.NoError(err)
	req.Equal(success.ConversationID, again.ConversationID)
}

func TestAuthenticate_Staff(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.open("s1")

	success, err := f.authenticator.Authenticate(context.Background(), "s1",
		protocol.AuthPayload{SessionToken: f.staffToken("staff-1")})
	req.NoError(err)
	req.Equal(domain.RoleStaff, success.Role)
	req.Equal("staff-1", success.UserID)
	req.Empty(success.ConversationID)
	req.Equal([]string{"s1"}, f.registry.LookupTenant(f.shop.ID))
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		payload func(f *fixture) protocol.AuthPayload
		target  error
		code    errors.Code
	}{
		{
			name:    "unknown shop key",
			payload: func(f *fixture) protocol.AuthPayload { return protocol.AuthPayload{ShopKey: "pk_unknown", UserID: "u1"} },
			target:  errors.ErrShopNotFound,
			code:    errors.CodeNotFound,
		},
		{
			name: "shop id does not match the key",
			payload: func(f *fixture) protocol.AuthPayload {
				return protocol.AuthPayload{ShopKey: f.shop.APIKey, ShopID: "other", UserID: "u1"}
			},
			target: errors.ErrInvalidCredentials,
			code:   errors.CodeAuthentication,
		},
		{
			name:    "forged token",
			payload: func(f *fixture) protocol.AuthPayload { return protocol.AuthPayload{SessionToken: "not-a-jwt"} },
			target:  errors.ErrInvalidCredentials,
			code:    errors.CodeAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.open("c1")

			_, err := f.authenticator.Authenticate(context.Background(), "c1", tt.payload(f))
			req.ErrorIs(err, tt.target)
			req.Equal(tt.code, errors.CodeOf(err))

			// The connection stays open and unauthenticated
			info, ok := f.registry.Connection("c1")
			req.True(ok)
			req.Equal(domain.Connected, info.State)
			req.Nil(info.Identity)
		})
	}
}

func TestAuthenticate_Inactive_Shop(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	req.NoError(f.shops.SetActive(context.Background(), f.shop.ID, false))
	f.open("c1")

	_, err := f.authenticator.Authenticate(context.Background(), "c1",
		protocol.AuthPayload{ShopKey: f.shop.APIKey, UserID: "u1"})
	req.ErrorIs(err, errors.ErrShopInactive)
}

func TestAuthenticate_Revoked_Session(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	token := f.staffToken("staff-1")
	claims, err := f.tokens.ValidateToken(token)
	req.NoError(err)
	req.NoError(f.sessions.Delete(claims.SessionID()))
	f.open("s1")

	_, err = f.authenticator.Authenticate(context.Background(), "s1", protocol.AuthPayload{SessionToken: token})
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestAuthenticate_Too_Many_Attempts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.open("c1")
	bad := protocol.AuthPayload{ShopKey: "pk_unknown", UserID: "u1"}

	for i := 1; i < testMaxAttempts; i++ {
		_, err := f.authenticator.Authenticate(context.Background(), "c1", bad)
		req.ErrorIs(err, errors.ErrShopNotFound)
	}
	_, err := f.authenticator.Authenticate(context.Background(), "c1", bad)
	req.ErrorIs(err, errors.ErrTooManyAttempts)
	req.Equal(errors.CodeAuthentication, errors.CodeOf(err))
}

func TestAuthenticate_Only_Once(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.connectCustomer("c1", "u1")

	_, err := f.authenticator.Authenticate(context.Background(), "c1",
		protocol.AuthPayload{ShopKey: f.shop.APIKey, UserID: "u2"})
	req.ErrorIs(err, errors.ErrAlreadyAuthenticated)
}

// Scenario D: the most recent connection wins, the previous one is closed.
func TestAuthenticate_Same_Identity_Replaces_Previous_Connection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	first, _ := f.connectCustomer("c1", "u1")
	f.drain()

	_, success := f.connectCustomer("c2", "u1")
	req.Equal("c2", success.ConnectionID)

	connID, ok := f.registry.LookupByIdentity(customer(f.shop.ID, "u1"))
	req.True(ok)
	req.Equal("c2", connID)

	closed, reason := first.Closed()
	req.True(closed)
	req.Equal(domain.ReasonSessionReplaced, reason)
	_, ok = f.registry.Get("c1")
	req.False(ok)

	events := f.drain()
	req.Len(events, 1)
	req.Equal(event.ConnectionEvictedType, events[0].Type)
	req.Equal(event.ConnectionEvicted{ConnectionID: "c1", Reason: domain.ReasonSessionReplaced}, events[0].Payload)
}

func TestAuthenticate_Customer_Cannot_Replace_Staff_With_Same_User_ID(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	staffConn := f.connectStaff("s1", "staff-1")
	f.connectCustomer("c1", "staff-1")

	closed, _ := staffConn.Closed()
	req.False(closed)
	_, ok := f.registry.Get("s1")
	req.True(ok)

	// The staff member still receives customer messages
	f.connectCustomer("c2", "u2")
	_, err := f.router.Send(context.Background(), "c2", protocol.SendMessagePayload{Content: "hello"})
	req.NoError(err)
	req.Len(staffConn.SentOfType(protocol.NewUserMessage), 1)
}

// failingShops breaks every lookup the way a broken store would.
type failingShops struct {
	storage.IShopRepository
}

func (failingShops) GetByKey(context.Context, string) (domain.Shop, error) {
	return domain.Shop{}, fmt.Errorf("%w: badger: value log truncated", errors.ErrInternal)
}

func TestAuthenticate_Too_Many_Attempts_Hides_Last_Cause(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	authenticator := NewAuthenticator(logs.GetLoggerFromLevel(slog.LevelDebug),
		registry, failingShops{}, nil, nil, nil, 2)
	registry.Add(mocks.NewFakeConn("c1"))
	bad := protocol.AuthPayload{ShopKey: "pk_any", UserID: "u1"}

	_, err := authenticator.Authenticate(context.Background(), "c1", bad)
	req.ErrorIs(err, errors.ErrInternal)
	_, err = authenticator.Authenticate(context.Background(), "c1", bad)
	req.ErrorIs(err, errors.ErrTooManyAttempts)
	req.NotErrorIs(err, errors.ErrInternal)
	req.Equal(errors.CodeAuthentication, errors.CodeOf(err))
	req.NotContains(errors.PublicMessage(err), "badger")
}
