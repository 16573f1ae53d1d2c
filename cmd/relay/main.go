package main

import (
	relaygrpc "chat-relay/grpc"
	"chat-relay/errors"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/storage"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns their lifecycle, so deferred closes run before exit.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Message store
	repository, err := openRepository(config, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing message store...")
		_ = repository.Close()
	}()

	// 3. Search index and uploads
	index, err := search.Open(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() { _ = index.Close() }()

	blobs, err := storage.NewDiskBlobStore(config.UploadDir, config.PublicURL, log)
	if err != nil {
		return fmt.Errorf("upload directory failed: %w", err)
	}

	// 4. Supervision & Orchestration
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	healthWorker := relaygrpc.NewHealthWorker(log, repository, 5*time.Second)
	supervisor.Add(healthWorker)

	orchestrator := runtime.NewOrchestrator(log, supervisor, runtime.NewRegistry(), repository, index,
		runtime.OrchestratorConfig{
			Settings: runtime.Settings{
				HistoryLimit:     config.HistoryLimit,
				MaxMessageLength: config.MaxMessageLength,
				TypingScope:      runtime.ParseTypingScope(config.TypingScope),
				UploadScope:      runtime.ParseUploadScope(config.UploadScope),
				SeedRooms:        config.Rooms(),
			},
			BufferSize:     config.BufferSize,
			SinkTimeout:    config.SinkTimeout,
			MetricInterval: config.MetricInterval,
		})

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	orchestrator.Start(ctx)

	// 6. HTTP & WebSocket
	origins := splitOrigins(config.AllowedOrigins)
	coordinator := orchestrator.Coordinator()
	router := api.NewRouter(log, api.Routes{
		WebSocket: ws.NewHandler(ctx, log, coordinator, ws.Options{
			BufferSize:     config.ConnectionBufferSize,
			PingInterval:   config.PingInterval,
			AllowedOrigins: origins,
		}),
		Upload:         api.NewUploadHandler(log, blobs, coordinator, config.MaxUploadBytes),
		Read:           api.NewReadHandler(log, coordinator, index, repository, orchestrator.Monitoring()),
		UploadDir:      blobs.Dir(),
		AllowedOrigins: origins,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		orchestrator.Stop()
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := grpc.NewServer()
	healthWorker.Register(grpcServer)

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting gRPC health server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		log.Info("Starting chat relay", "address", httpServer.Addr, "store", config.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	var failure error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case failure = <-errChan:
		log.Error("Server failed, shutting down", "error", failure)
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()
	orchestrator.Stop()
	log.Info("Program stopped cleanly")
	return failure
}

func openRepository(config internal.Config, log *slog.Logger) (repositories.IMessageRepository, error) {
	switch strings.ToLower(config.StoreDriver) {
	case "badger":
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return repositories.NewMessageRepository(db, log, config.LimitMessages), nil
	case "sqlite":
		repository, err := repositories.OpenSQLite(config.SqliteFilepath, log, config.LimitMessages)
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return repository, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownStoreDriver, config.StoreDriver)
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
