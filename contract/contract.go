//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"shop-chat/domain"
	"shop-chat/protocol"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is one live client socket.
// Send is synchronous: a nil error means the frame reached the socket.
// Close is idempotent.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(ctx context.Context, env protocol.Envelope) error
	Close(reason string) error
}

// IRegistry tracks live connections by id, identity and tenant.
type IRegistry interface {
	Add(conn Conn)
	Register(connID string, identity domain.Identity, conversationID string) (string, error)
	Unregister(connID string) (Conn, bool)
	Evict(connID, reason string) bool
	Get(connID string) (Conn, bool)
	Connection(connID string) (domain.Connection, bool)
	LookupByIdentity(identity domain.Identity) (string, bool)
	LookupTenant(shopID string) []string
	SetState(connID string, state domain.ConnectionState) bool
	IncrAuthAttempts(connID string) int
	Touch(connID string, at time.Time)
	MarkProbed(connID string, at time.Time)
	Snapshot() []domain.Connection
	Len() int
}

// MessageInjector lets background collaborators post into a conversation
// through the regular persist and fan-out path.
type MessageInjector interface {
	PostAutoReply(ctx context.Context, conversationID, content string) (domain.Message, error)
}

// AutoReplier decides whether a customer message deserves an automatic answer.
type AutoReplier interface {
	Reply(ctx context.Context, msg domain.Message) (AutoReply, bool)
}

type AutoReply struct {
	Content  string
	Language string
	Rule     string
}

// MediaResolver returns the stored media behind a reference.
type MediaResolver interface {
	Resolve(ref string) (domain.Media, error)
}

// MessageIndex makes persisted messages searchable.
type MessageIndex interface {
	Index(msg domain.Message) error
	Search(ctx context.Context, shopID, query string, limit int) ([]SearchHit, error)
}

type SearchHit struct {
	MessageID      string
	ConversationID string
	Seq            uint64
	Score          float64
}

// Censor rewrites forbidden words and reports which ones it found.
type Censor interface {
	Censor(original string) (string, []string)
}
