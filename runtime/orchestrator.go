// Package runtime owns the live side of the chat: the connection registry,
// the handshake, routing and fan-out, and the supervised background workers.
// Storage and transport are injected.
package runtime

import (
	"context"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/protocol"
	"shop-chat/runtime/workers"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatGrace    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	PersistTimeout    time.Duration
	MetricInterval    time.Duration
}

// Orchestrator is what the transport talks to: one call per socket event.
type Orchestrator struct {
	mu          sync.Mutex
	log         *slog.Logger
	config      Config
	supervisor  contract.ISupervisor
	registry    contract.IRegistry
	dispatcher  *Dispatcher
	router      *Router
	telemetry   chan event.Event
	handlers    []event.Handler
	replier     contract.AutoReplier
	autoReplies chan domain.Message
	running     atomic.Bool
}

func NewOrchestrator(log *slog.Logger,
	config Config,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	dispatcher *Dispatcher,
	router *Router,
	telemetry chan event.Event,
	handlers []event.Handler) *Orchestrator {
	return &Orchestrator{
		log:        log,
		config:     config,
		supervisor: supervisor,
		registry:   registry,
		dispatcher: dispatcher,
		router:     router,
		telemetry:  telemetry,
		handlers:   handlers,
	}
}

// EnableAutoReply starts an auto-reply worker reading ch on Start.
// ch must be the one given to the router with WithAutoReply.
func (o *Orchestrator) EnableAutoReply(replier contract.AutoReplier, ch chan domain.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replier = replier
	o.autoReplies = ch
}

// OnOpen registers a freshly accepted socket and greets it.
func (o *Orchestrator) OnOpen(ctx context.Context, conn contract.Conn) error {
	o.registry.Add(conn)
	env, err := protocol.New(protocol.ConnectionEstablished, protocol.ConnectionEstablishedPayload{
		ConnectionID:       conn.ID(),
		ServerTime:         time.Now().UTC(),
		HandshakeTimeoutMs: o.config.HandshakeTimeout.Milliseconds(),
	})
	if err != nil {
		o.registry.Evict(conn.ID(), domain.ReasonInternal)
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, o.config.WriteTimeout)
	defer cancel()
	if err := conn.Send(writeCtx, env); err != nil {
		o.registry.Evict(conn.ID(), domain.ReasonWriteFailed)
		return err
	}
	o.log.Debug("Connection opened", "connection_id", conn.ID(), "remote_addr", conn.RemoteAddr())
	return nil
}

func (o *Orchestrator) OnMessage(ctx context.Context, connID string, data []byte) {
	o.dispatcher.Dispatch(ctx, connID, data)
}

// OnClose is called by the transport once the socket is gone.
func (o *Orchestrator) OnClose(connID string) {
	if _, ok := o.registry.Unregister(connID); ok {
		o.log.Debug("Connection closed", "connection_id", connID)
	}
}

func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Start prepares the background workers and blocks while they run.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.supervisor.Add(o.prepareWorkers()...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.running.Store(true)
	defer o.running.Store(false)
	o.supervisor.Run(ctx)
	return nil
}

func (o *Orchestrator) prepareWorkers() []contract.Worker {
	gauges := []workers.ChannelGauge{workers.Gauge("telemetry", o.telemetry)}
	res := []contract.Worker{
		workers.NewHeartbeatWorker(o.log, o.registry, o.telemetry,
			o.config.HeartbeatInterval, o.config.HeartbeatGrace, o.config.HandshakeTimeout, o.config.WriteTimeout),
		workers.NewTelemetryWorker(o.log, o.telemetry, o.handlers),
		workers.NewProcessStatsWorker(o.log, o.registry, o.telemetry, o.config.MetricInterval),
	}
	if o.replier != nil && o.autoReplies != nil {
		res = append(res, workers.NewAutoReplyWorker(o.log, o.replier, o.router, o.autoReplies, o.telemetry, o.config.PersistTimeout))
		gauges = append(gauges, workers.Gauge("auto_reply", o.autoReplies))
	}
	return append(res, workers.NewChannelCapacityWorker(o.log, gauges, o.telemetry, o.config.MetricInterval))
}

// Stop closes every live connection and stops the workers.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.running.Store(false)
	for _, info := range o.registry.Snapshot() {
		o.registry.Evict(info.ID, domain.ReasonShutdown)
	}
	o.supervisor.Stop()
}
