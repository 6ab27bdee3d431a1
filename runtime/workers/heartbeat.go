package workers

import (
	"context"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/protocol"
	"sync"
	"time"
)

// HeartbeatWorker closes connections that stopped answering.
// Every interval it:
//   - closes unauthenticated connections older than the handshake timeout
//   - closes connections whose ping stayed unanswered for the grace window
//   - pings connections idle for a full interval
//
// Any inbound frame clears the outstanding ping (see Registry.Touch).
type HeartbeatWorker struct {
	log              *slog.Logger
	registry         contract.IRegistry
	telemetry        chan<- event.Event
	interval         time.Duration
	grace            time.Duration
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	now              func() time.Time
}

func NewHeartbeatWorker(log *slog.Logger,
	registry contract.IRegistry,
	telemetry chan<- event.Event,
	interval, grace, handshakeTimeout, writeTimeout time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:              log,
		registry:         registry,
		telemetry:        telemetry,
		interval:         interval,
		grace:            grace,
		handshakeTimeout: handshakeTimeout,
		writeTimeout:     writeTimeout,
		now:              time.Now,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval, "grace", w.grace)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one liveness pass over the registry.
func (w *HeartbeatWorker) Tick(ctx context.Context) {
	now := w.now()
	var wg sync.WaitGroup

	for _, info := range w.registry.Snapshot() {
		switch {
		case !info.IsAuthenticated() && w.handshakeTimeout > 0 && now.Sub(info.EstablishedAt) >= w.handshakeTimeout:
			w.evict(info.ID, domain.ReasonHandshakeTimeout)
		case info.ProbeOutstanding() && now.Sub(info.ProbeSentAt) >= w.grace:
			w.evict(info.ID, domain.ReasonHeartbeatTimeout)
		case !info.ProbeOutstanding() && now.Sub(info.LastActivityAt) >= w.interval:
			conn, ok := w.registry.Get(info.ID)
			if !ok {
				continue
			}
			w.registry.MarkProbed(info.ID, now)
			wg.Add(1)
			go func(conn contract.Conn) {
				defer wg.Done()
				w.ping(ctx, conn, now)
			}(conn)
		}
	}
	wg.Wait()
}

func (w *HeartbeatWorker) ping(ctx context.Context, conn contract.Conn, now time.Time) {
	env, err := protocol.New(protocol.Ping, protocol.PingPayload{Timestamp: now.UTC()})
	if err != nil {
		w.log.Error("Unable to encode ping", "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()
	if err := conn.Send(writeCtx, env); err != nil {
		w.log.Debug("Ping failed", "connection_id", conn.ID(), "error", err)
		w.evict(conn.ID(), domain.ReasonWriteFailed)
	}
}

func (w *HeartbeatWorker) evict(connID, reason string) {
	if !w.registry.Evict(connID, reason) {
		return
	}
	w.log.Info("Connection closed by heartbeat", "connection_id", connID, "reason", reason)
	event.Publish(w.telemetry, event.New(event.ConnectionEvictedType, event.ConnectionEvicted{
		ConnectionID: connID,
		Reason:       reason,
	}))
}
