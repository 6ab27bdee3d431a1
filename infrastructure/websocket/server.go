package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"shop-chat/contract"
	"shop-chat/domain"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Listener receives the socket lifecycle. The orchestrator implements it.
type Listener interface {
	OnOpen(ctx context.Context, conn contract.Conn) error
	OnMessage(ctx context.Context, connID string, data []byte)
	OnClose(connID string)
}

type Server struct {
	log          *slog.Logger
	listener     Listener
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration
}

func NewServer(log *slog.Logger, listener Listener, readLimit int64, writeTimeout time.Duration) *Server {
	return &Server{
		log:      log,
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Widget pages are served from the shops' own domains
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		readLimit:    readLimit,
		writeTimeout: writeTimeout,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		s.log.Debug("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn := NewConn(uuid.NewString(), ws, s.writeTimeout)
	s.serve(r.Context(), conn)
}

// serve runs the read loop of one socket until it closes.
func (s *Server) serve(ctx context.Context, conn *Conn) {
	defer s.listener.OnClose(conn.ID())
	defer func() { _ = conn.Close("") }()

	if s.readLimit > 0 {
		conn.ws.SetReadLimit(s.readLimit)
	}
	if err := s.listener.OnOpen(ctx, conn); err != nil {
		s.log.Debug("Connection refused", "connection_id", conn.ID(), "error", err)
		return
	}

	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("Websocket read failed", "connection_id", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !s.handle(ctx, conn, data) {
			return
		}
	}
}

// handle isolates a panic to the connection that triggered it.
func (s *Server) handle(ctx context.Context, conn *Conn, data []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Panic while handling frame", "connection_id", conn.ID(), "panic", fmt.Sprint(r))
			_ = conn.Close(domain.ReasonInternal)
			ok = false
		}
	}()
	s.listener.OnMessage(ctx, conn.ID(), data)
	return true
}
