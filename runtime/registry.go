package runtime

import (
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/errors"
	"sync"
	"time"
)

type Set map[string]struct{}

type entry struct {
	conn contract.Conn
	info domain.Connection
}

// Registry is the single in-memory view of live connections.
// Every mutation goes through mu, so register, unregister and lookups
// never observe a half-updated state.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*entry // connection id -> entry
	identities map[string]string // identity key -> connection id
	tenants    map[string]Set    // shop id -> connection ids
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries:    make(map[string]*entry),
		identities: make(map[string]string),
		tenants:    make(map[string]Set),
		now:        time.Now,
	}
}

// Add records a freshly accepted, not yet authenticated connection.
func (r *Registry) Add(conn contract.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.entries[conn.ID()] = &entry{
		conn: conn,
		info: domain.Connection{
			ID:             conn.ID(),
			RemoteAddr:     conn.RemoteAddr(),
			EstablishedAt:  now,
			LastActivityAt: now,
			State:          domain.Connected,
		},
	}
}

// Register binds an identity to a connection and returns the connection
// that was previously bound to the same identity, if any.
// The previous connection is left in place: evicting it is the caller's decision.
// A connection can only be authenticated once.
func (r *Registry) Register(connID string, identity domain.Identity, conversationID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return "", errors.ErrUnknownConnection
	}
	if e.info.IsAuthenticated() {
		return "", errors.ErrAlreadyAuthenticated
	}

	key := identity.Key()
	previous := r.identities[key]
	if previous == connID {
		previous = ""
	}

	id := identity
	e.info.Identity = &id
	e.info.ConversationID = conversationID
	e.info.State = domain.Authenticated
	e.info.LastActivityAt = r.now()

	r.identities[key] = connID
	if _, ok := r.tenants[identity.ShopID]; !ok {
		r.tenants[identity.ShopID] = make(Set)
	}
	r.tenants[identity.ShopID][connID] = struct{}{}
	return previous, nil
}

// Unregister removes every trace of a connection. Calling it twice is harmless.
// An identity binding is only dropped if it still points to this connection.
func (r *Registry) Unregister(connID string) (contract.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return nil, false
	}
	delete(r.entries, connID)

	if identity := e.info.Identity; identity != nil {
		key := identity.Key()
		if r.identities[key] == connID {
			delete(r.identities, key)
		}
		if members, ok := r.tenants[identity.ShopID]; ok {
			delete(members, connID)
			// No empty sets left behind
			if len(members) == 0 {
				delete(r.tenants, identity.ShopID)
			}
		}
	}
	e.info.State = domain.Closed
	return e.conn, true
}

func (r *Registry) Get(connID string) (contract.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Connection returns a copy of the bookkeeping of a connection.
func (r *Registry) Connection(connID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok {
		return domain.Connection{}, false
	}
	return copyInfo(e.info), true
}

func (r *Registry) LookupByIdentity(identity domain.Identity) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.identities[identity.Key()]
	return connID, ok
}

// LookupTenant returns a copy of the connection ids of a shop.
// Callers can iterate it while the registry keeps changing.
func (r *Registry) LookupTenant(shopID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.tenants[shopID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// SetState is used around the handshake. Authenticated is only reachable through Register.
func (r *Registry) SetState(connID string, state domain.ConnectionState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if !ok || e.info.IsAuthenticated() || state == domain.Authenticated {
		return false
	}
	e.info.State = state
	return true
}

func (r *Registry) IncrAuthAttempts(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if !ok {
		return 0
	}
	e.info.AuthAttempts++
	return e.info.AuthAttempts
}

// Touch records inbound traffic and clears any outstanding liveness probe.
func (r *Registry) Touch(connID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[connID]; ok {
		e.info.LastActivityAt = at
		e.info.ProbeSentAt = time.Time{}
	}
}

func (r *Registry) MarkProbed(connID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[connID]; ok {
		e.info.ProbeSentAt = at
	}
}

func (r *Registry) Snapshot() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connections := make([]domain.Connection, 0, len(r.entries))
	for _, e := range r.entries {
		connections = append(connections, copyInfo(e.info))
	}
	return connections
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func copyInfo(info domain.Connection) domain.Connection {
	if info.Identity != nil {
		identity := *info.Identity
		info.Identity = &identity
	}
	return info
}

// Evict unregisters a connection and closes its socket.
// It returns false when the connection was already gone.
func (r *Registry) Evict(connID, reason string) bool {
	conn, ok := r.Unregister(connID)
	if !ok {
		return false
	}
	_ = conn.Close(reason)
	return true
}
