// Package grpc exposes the relay's liveness over the standard gRPC health protocol,
// so orchestrators and the e2e suite can probe it without speaking WebSocket.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service key reporting the relay itself.
const ServiceName = "chatrelay.Relay"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthWorker mirrors the message store availability into the gRPC health status.
// It is run by the supervisor like any other worker.
type HealthWorker struct {
	log      *slog.Logger
	server   *health.Server
	store    Pinger
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, store Pinger, interval time.Duration) *HealthWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	server := health.NewServer()
	server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthWorker{log: log, server: server, store: store, interval: interval}
}

func (w *HealthWorker) Register(s *gogrpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, w.server)
}

// Run probes the store until ctx ends, then marks every service as not serving for good.
func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			w.server.Shutdown()
			return nil
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

func (w *HealthWorker) probe(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := w.store.Ping(ctx); err != nil {
		w.log.Warn("Store probe failed", "error", err)
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	w.server.SetServingStatus("", status)
	w.server.SetServingStatus(ServiceName, status)
}

// WaitForHealth blocks until the service reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string) error {
	client := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}
