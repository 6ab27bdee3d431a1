package runtime

import (
	"fmt"
	"shop-chat/domain"
	"shop-chat/errors"
	"shop-chat/mocks"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func customer(shopID, userID string) domain.Identity {
	return domain.Identity{ShopID: shopID, UserID: userID, Role: domain.RoleCustomer}
}

func staff(shopID, userID string) domain.Identity {
	return domain.Identity{ShopID: shopID, UserID: userID, Role: domain.RoleStaff}
}

func TestRegistry_Register_Then_Lookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := mocks.NewFakeConn("c1")

	// Given an accepted connection
	registry.Add(conn)
	info, ok := registry.Connection("c1")
	req.True(ok)
	req.Equal(domain.Connected, info.State)
	req.Nil(info.Identity)

	// When it authenticates
	previous, err := registry.Register("c1", customer("shop-1", "u1"), "conv-1")
	req.NoError(err)
	req.Empty(previous)

	// Then it can be found by identity and tenant
	connID, ok := registry.LookupByIdentity(customer("shop-1", "u1"))
	req.True(ok)
	req.Equal("c1", connID)
	req.Equal([]string{"c1"}, registry.LookupTenant("shop-1"))

	info, ok = registry.Connection("c1")
	req.True(ok)
	req.Equal(domain.Authenticated, info.State)
	req.Equal("conv-1", info.ConversationID)
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(mocks.NewFakeConn("c1"))
	_, err := registry.Register("c1", customer("shop-1", "u1"), "conv-1")
	req.NoError(err)

	// When unregistering twice
	conn, removed := registry.Unregister("c1")
	req.True(removed)
	req.Equal("c1", conn.ID())
	_, removed = registry.Unregister("c1")
	req.False(removed)

	// Then nothing is left
	_, ok := registry.LookupByIdentity(customer("shop-1", "u1"))
	req.False(ok)
	req.Empty(registry.LookupTenant("shop-1"))
	req.Zero(registry.Len())
	req.Empty(registry.tenants)
}

func TestRegistry_Register_Returns_Previous_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(mocks.NewFakeConn("c1"))
	registry.Add(mocks.NewFakeConn("c2"))

	_, err := registry.Register("c1", customer("shop-1", "u1"), "conv-1")
	req.NoError(err)

	// When the same identity authenticates on a second socket
	previous, err := registry.Register("c2", customer("shop-1", "u1"), "conv-1")
	req.NoError(err)

	// Then the first one is reported and lookups follow the newest
	req.Equal("c1", previous)
	connID, ok := registry.LookupByIdentity(customer("shop-1", "u1"))
	req.True(ok)
	req.Equal("c2", connID)

	// And removing the old socket keeps the new binding
	_, removed := registry.Unregister("c1")
	req.True(removed)
	connID, ok = registry.LookupByIdentity(customer("shop-1", "u1"))
	req.True(ok)
	req.Equal("c2", connID)
	req.Equal([]string{"c2"}, registry.LookupTenant("shop-1"))
}

func TestRegistry_Customer_And_Staff_With_Same_User_ID_Coexist(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(mocks.NewFakeConn("s1"))
	registry.Add(mocks.NewFakeConn("c1"))

	_, err := registry.Register("s1", staff("shop-1", "staff-1"), "")
	req.NoError(err)

	// When a customer claims the staff user id
	previous, err := registry.Register("c1", customer("shop-1", "staff-1"), "conv-1")
	req.NoError(err)

	// Then nothing is replaced and each role keeps its own binding
	req.Empty(previous)
	connID, ok := registry.LookupByIdentity(staff("shop-1", "staff-1"))
	req.True(ok)
	req.Equal("s1", connID)
	connID, ok = registry.LookupByIdentity(customer("shop-1", "staff-1"))
	req.True(ok)
	req.Equal("c1", connID)
	req.ElementsMatch([]string{"s1", "c1"}, registry.LookupTenant("shop-1"))
}

func TestRegistry_Authenticates_Once(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(mocks.NewFakeConn("c1"))

	_, err := registry.Register("c1", customer("shop-1", "u1"), "conv-1")
	req.NoError(err)
	_, err = registry.Register("c1", customer("shop-1", "u2"), "conv-2")
	req.ErrorIs(err, errors.ErrAlreadyAuthenticated)

	_, err = registry.Register("unknown", customer("shop-1", "u3"), "")
	req.ErrorIs(err, errors.ErrValidation)

	req.False(registry.SetState("c1", domain.Connected))
}

func TestRegistry_LookupTenant_Returns_A_Copy(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("c%d", i)
		registry.Add(mocks.NewFakeConn(id))
		_, err := registry.Register(id, staff("shop-1", fmt.Sprintf("staff-%d", i)), "")
		req.NoError(err)
	}

	snapshot := registry.LookupTenant("shop-1")
	req.Len(snapshot, 3)

	// When the registry changes after the read
	registry.Unregister("c0")

	// Then the snapshot is untouched
	req.Len(snapshot, 3)
	req.Len(registry.LookupTenant("shop-1"), 2)
}

func TestRegistry_Tenants_Are_Isolated(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(mocks.NewFakeConn("c1"))
	registry.Add(mocks.NewFakeConn("c2"))
	_, err := registry.Register("c1", staff("shop-1", "staff-1"), "")
	req.NoError(err)
	_, err = registry.Register("c2", staff("shop-2", "staff-1"), "")
	req.NoError(err)

	req.Equal([]string{"c1"}, registry.LookupTenant("shop-1"))
	req.Equal([]string{"c2"}, registry.LookupTenant("shop-2"))
}

func TestRegistry_Touch_Clears_Probe(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Add(mocks.NewFakeConn("c1"))
	now := time.Now()

	registry.MarkProbed("c1", now)
	info, _ := registry.Connection("c1")
	req.True(info.ProbeOutstanding())

	registry.Touch("c1", now.Add(time.Second))
	info, _ = registry.Connection("c1")
	req.False(info.ProbeOutstanding())
	req.Equal(now.Add(time.Second), info.LastActivityAt)

	req.Equal(1, registry.IncrAuthAttempts("c1"))
	req.Equal(2, registry.IncrAuthAttempts("c1"))
}

func TestRegistry_Concurrent_Register_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			registry.Add(mocks.NewFakeConn(id))
			_, _ = registry.Register(id, customer("shop-1", fmt.Sprintf("u%d", i%10)), "")
			if i%2 == 0 {
				registry.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	// Every identity binding points to a live connection of the tenant
	tenant := registry.LookupTenant("shop-1")
	req.Len(tenant, 50)
	for i := 0; i < 10; i++ {
		if connID, ok := registry.LookupByIdentity(customer("shop-1", fmt.Sprintf("u%d", i))); ok {
			_, live := registry.Get(connID)
			req.True(live)
		}
	}
}
