package domain

import "time"

type ConnectionState int

const (
	Connected ConnectionState = iota
	Authenticating
	Authenticated
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the registry view of one live socket.
// It lives in memory only and disappears with the process.
type Connection struct {
	ID             string
	RemoteAddr     string
	EstablishedAt  time.Time
	LastActivityAt time.Time
	State          ConnectionState
	Identity       *Identity
	ConversationID string
	ProbeSentAt    time.Time
	AuthAttempts   int
}

func (c Connection) IsAuthenticated() bool {
	return c.State == Authenticated && c.Identity != nil
}

// ProbeOutstanding reports whether a ping was sent and nothing came back since.
func (c Connection) ProbeOutstanding() bool {
	return !c.ProbeSentAt.IsZero()
}

// Close reasons, also used to pick the websocket close code.
const (
	ReasonSessionReplaced  = "session replaced"
	ReasonWriteFailed      = "write failed"
	ReasonHandshakeTimeout = "handshake timeout"
	ReasonHeartbeatTimeout = "heartbeat timeout"
	ReasonTooManyAttempts  = "too many authentication attempts"
	ReasonShutdown         = "server shutdown"
	ReasonInternal         = "internal error"
)
