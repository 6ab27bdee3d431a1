package server

import (
	"log/slog"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ChatService is the name probes can ask for besides the overall "" status.
const ChatService = "shopchat.Chat"

// Health reports whether the chat runtime accepts traffic.
// It starts NOT_SERVING until the orchestrator is up.
type Health struct {
	log    *slog.Logger
	server *health.Server
}

func NewHealth(log *slog.Logger) *Health {
	h := &Health{log: log, server: health.NewServer()}
	h.SetServing(false)
	return h
}

// NewGRPCServer builds a gRPC server carrying the health service and request logging.
func NewGRPCServer(log *slog.Logger, h *Health) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	healthpb.RegisterHealthServer(s, h.server)
	return s
}

func (h *Health) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ChatService, status)
	h.log.Debug("Health status changed", "status", status.String())
}

// Shutdown flips every service to NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
