package runtime

import (
	"context"
	"log/slog"
	"shop-chat/auth"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/infrastructure/storage"
	"shop-chat/mocks"
	"shop-chat/protocol"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const (
	testMaxContentLength = 64
	testMaxAttempts      = 3
)

type fixture struct {
	t             *testing.T
	log           *slog.Logger
	db            *badger.DB
	registry      *Registry
	shops         *storage.ShopRepository
	conversations *storage.ConversationRepository
	messages      *storage.MessageRepository
	sessions      storage.ISessionRepository
	tokens        *auth.TokenManager
	telemetry     chan event.Event
	fanout        *Fanout
	router        *Router
	authenticator *Authenticator
	shop          domain.Shop
}

// newFixture wires the runtime on a badger store living in a temp dir.
func newFixture(t *testing.T, opts ...RouterOption) *fixture {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	messages := storage.NewMessageRepository(db, log, nil)
	t.Cleanup(func() {
		_ = messages.Close()
		_ = db.Close()
	})

	f := &fixture{
		t:             t,
		log:           log,
		db:            db,
		registry:      NewRegistry(),
		shops:         storage.NewShopRepository(db),
		conversations: storage.NewConversationRepository(db),
		messages:      messages,
		sessions:      storage.NewSessionRepository(db),
		tokens:        auth.NewTokenManager("test-secret", time.Hour),
		telemetry:     make(chan event.Event, 1000),
	}
	f.fanout = NewFanout(log, f.registry, f.messages, f.telemetry, time.Second)
	f.router = NewRouter(log, f.registry, f.conversations, f.messages, f.fanout, nil,
		f.telemetry, testMaxContentLength, time.Second, opts...)
	f.authenticator = NewAuthenticator(log, f.registry, f.shops, f.conversations,
		auth.NewSessionVerifier(f.tokens, f.sessions), f.telemetry, testMaxAttempts)

	f.shop, err = f.shops.Create(context.Background(), "Shop")
	require.NoError(t, err)
	return f
}

func (f *fixture) staffToken(staffID string) string {
	session := domain.StaffSession{
		ID:        uuid.NewString(),
		StaffID:   staffID,
		ShopID:    f.shop.ID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(f.t, f.sessions.Create(session))
	token, err := f.tokens.GenerateToken(staffID, f.shop.ID, session.ID, time.Now())
	require.NoError(f.t, err)
	return token
}

func (f *fixture) open(connID string) *mocks.FakeConn {
	conn := mocks.NewFakeConn(connID)
	f.registry.Add(conn)
	return conn
}

func (f *fixture) connectCustomer(connID, userID string) (*mocks.FakeConn, protocol.AuthSuccessPayload) {
	conn := f.open(connID)
	success, err := f.authenticator.Authenticate(context.Background(), connID,
		protocol.AuthPayload{ShopKey: f.shop.APIKey, UserID: userID})
	require.NoError(f.t, err)
	return conn, success
}

func (f *fixture) connectStaff(connID, staffID string) *mocks.FakeConn {
	conn := f.open(connID)
	_, err := f.authenticator.Authenticate(context.Background(), connID,
		protocol.AuthPayload{SessionToken: f.staffToken(staffID)})
	require.NoError(f.t, err)
	return conn
}

// drain returns every telemetry event published so far.
func (f *fixture) drain() []event.Event {
	var events []event.Event
	for {
		select {
		case evt := <-f.telemetry:
			events = append(events, evt)
		default:
			return events
		}
	}
}

func bind[T any](t *testing.T, env protocol.Envelope) T {
	var payload T
	require.NoError(t, env.Bind(&payload))
	return payload
}
