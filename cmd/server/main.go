package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"shop-chat/auth"
	"shop-chat/autoreply"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/infrastructure/api"
	"shop-chat/infrastructure/grpc/server"
	"shop-chat/infrastructure/search"
	"shop-chat/infrastructure/storage"
	"shop-chat/infrastructure/websocket"
	"shop-chat/internal"
	"shop-chat/moderation"
	"shop-chat/runtime"
	"shop-chat/runtime/workers"
	"shop-chat/services"
	media "shop-chat/storage"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes for the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal error.
// Returning instead of exiting lets the deferred closes run.
func run() (int, error) {
	// 1. Configuration & Logger
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Storage
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, ChatMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	diskStore, err := media.NewDiskStore(logger, config.UploadDir, config.MaxUploadSize)
	if err != nil {
		return exitRuntime, fmt.Errorf("upload directory: %w", err)
	}

	shopRepository := storage.NewShopRepository(db)
	staffRepository := storage.NewStaffRepository(db)
	sessionRepository := storage.NewSessionRepository(db)
	conversationRepository := storage.NewConversationRepository(db)
	messageRepository := storage.NewMessageRepository(db, logger, config.LimitMessages)
	defer func() { _ = messageRepository.Close() }()
	index := search.NewMessageIndex(logger, blugeWriter)

	// 3. Runtime
	telemetry := make(chan event.Event, config.BufferSize)
	counter := event.NewCounter()
	processTracker := event.NewProcessTrackerHandler(logger)
	handlers := []event.Handler{
		event.NewDeliveryHandler(logger, counter),
		event.NewEvictionHandler(logger, counter),
		event.NewCensoredHandler(logger, counter),
		event.NewLatencyHandler(logger, config.LatencyThreshold),
		event.NewChannelCapacityHandler(logger, config.LowCapacityThreshold),
		event.NewWorkerRestartedAfterPanicHandler(logger, counter),
		processTracker,
	}

	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)
	verifier := auth.NewSessionVerifier(tokens, sessionRepository)
	registry := runtime.NewRegistry()
	fanout := runtime.NewFanout(logger, registry, messageRepository, telemetry, config.WriteTimeout)

	options := []runtime.RouterOption{runtime.WithIndex(index)}
	if config.CensorEnabled {
		data, err := moderation.NewDefaultLoader().LoadAll("censored")
		if err != nil {
			return exitConfig, fmt.Errorf("censored words: %w", err)
		}
		moderator, err := moderation.NewModerator(data.Words, charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderator: %w", err)
		}
		logger.Info("Censorship enabled", "languages", data.Languages, "words", len(data.Words))
		options = append(options, runtime.WithCensor(moderator))
	}
	var autoReplies chan domain.Message
	if config.AutoReplyEnabled {
		autoReplies = make(chan domain.Message, config.BufferSize)
		options = append(options, runtime.WithAutoReply(autoReplies))
	}

	router := runtime.NewRouter(logger, registry, conversationRepository, messageRepository, fanout, diskStore,
		telemetry, config.MaxContentLength, config.PersistTimeout, options...)
	authenticator := runtime.NewAuthenticator(logger, registry, shopRepository, conversationRepository,
		verifier, telemetry, config.MaxAuthAttempts)
	dispatcher := runtime.NewDispatcher(logger, registry, authenticator, router, telemetry, config.WriteTimeout)
	supervisor := workers.NewSupervisor(logger, telemetry, config.RestartInterval)

	orchestrator := runtime.NewOrchestrator(logger, runtime.Config{
		HeartbeatInterval: config.HeartbeatInterval,
		HeartbeatGrace:    config.HeartbeatGrace,
		HandshakeTimeout:  config.HandshakeTimeout,
		WriteTimeout:      config.WriteTimeout,
		PersistTimeout:    config.PersistTimeout,
		MetricInterval:    config.MetricInterval,
	}, supervisor, registry, dispatcher, router, telemetry, handlers)

	if config.AutoReplyEnabled {
		rules, err := autoreply.DefaultRules()
		if err != nil {
			return exitConfig, fmt.Errorf("auto-reply rules: %w", err)
		}
		replier, err := autoreply.NewKeywordReplier(logger, rules)
		if err != nil {
			return exitConfig, fmt.Errorf("auto-reply: %w", err)
		}
		orchestrator.EnableAutoReply(replier, autoReplies)
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errChan := make(chan error, 3)

	health := server.NewHealth(logger)
	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()
	health.SetServing(true)

	// 5. HTTP (API + websocket)
	chatService := services.NewChatService(router, registry, conversationRepository, diskStore, index, counter, processTracker)
	authService := services.NewAuthService(staffRepository, sessionRepository, tokens)
	socket := websocket.NewServer(logger, orchestrator, config.ReadLimit, config.WriteTimeout)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           api.NewServer(logger, chatService, authService, verifier, socket, config.MaxUploadSize).Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 6. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := server.NewGRPCServer(logger, health)
	go func() {
		logger.Info("Starting gRPC health server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	exitCode := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		exitCode = exitRuntime
	}

	// 8. Graceful shutdown: refuse new traffic first, then close live sockets
	logger.Info("Shutting down gracefully...")
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	orchestrator.Stop()
	grpcServer.GracefulStop()
	logger.Info("Program stopped cleanly")
	return exitCode, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// ChatMapper renders stored records in the debug inspector.
func ChatMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	kind, rest, _ := strings.Cut(key, ":")
	row.Type = strings.ToUpper(kind)
	row.Namespace = rest

	var fields map[string]any
	if err := json.Unmarshal(val, &fields); err != nil {
		return row
	}
	switch kind {
	case "msg":
		row.EntityID = fmt.Sprint(fields["sender_id"])
		row.Detail = fmt.Sprintf("[%v] %v", fields["delivery_state"], fields["content"])
		if ts, ok := fields["created_at"].(float64); ok {
			row.Timestamp = time.Unix(0, int64(ts)).Format("15:04:05")
		}
	case "conv":
		row.EntityID = fmt.Sprint(fields["customer_id"])
		row.Detail = fmt.Sprint(fields["status"])
	case "shop":
		row.EntityID = fmt.Sprint(fields["id"])
		row.Detail = fmt.Sprintf("%v active=%v", fields["name"], fields["active"])
	}
	return row
}
