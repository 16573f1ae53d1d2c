package grpc

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type switchableStore struct {
	down atomic.Bool
}

func (s *switchableStore) Ping(context.Context) error {
	if s.down.Load() {
		return context.DeadlineExceeded
	}
	return nil
}

func dialHealth(t *testing.T, worker *HealthWorker) *gogrpc.ClientConn {
	listener := bufconn.Listen(1 << 16)
	server := gogrpc.NewServer()
	worker.Register(server)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := gogrpc.NewClient("passthrough:///bufnet",
		gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHealthWorker_Follows_Store(t *testing.T) {
	req := require.New(t)
	store := &switchableStore{}
	worker := NewHealthWorker(slog.Default(), store, 10*time.Millisecond)
	conn := dialHealth(t, worker)
	client := grpc_health_v1.NewHealthClient(conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Given a reachable store the relay becomes SERVING
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	req.NoError(WaitForHealth(waitCtx, conn, ServiceName))

	// When the store goes away
	store.down.Store(true)

	// Then the status follows
	req.Eventually(func() bool {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)

	cancel()
	req.NoError(<-done)
}

func TestWaitForHealth_Gives_Up_With_Context(t *testing.T) {
	store := &switchableStore{}
	store.down.Store(true)
	conn := dialHealth(t, NewHealthWorker(slog.Default(), store, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, WaitForHealth(ctx, conn, ServiceName), context.DeadlineExceeded)
}
