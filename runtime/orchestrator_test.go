package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/sink"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrchestrator_Pipeline(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	index, err := search.Open(t.TempDir(), log)
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })

	o := NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond), NewRegistry(),
		badgerRepository(t), index, OrchestratorConfig{
			Settings:    Settings{SeedRooms: domain.DefaultSeedRooms},
			BufferSize:  64,
			SinkTimeout: 100 * time.Millisecond,
		})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Stop()

	// Given a connected user
	alice := sink.NewConnectionSink(64)
	_, err = o.Coordinator().Connect(ctx, "a", "Alice", alice)
	req.NoError(err)

	// When a message is sent
	_, err = o.Coordinator().SendMessage(ctx, "a", "Deploy is green")
	req.NoError(err)

	// Then the user gets it through the fanout worker
	req.Eventually(func() bool {
		for {
			select {
			case e := <-alice.ConnectedUserEvent:
				if m, ok := e.(event.ReceiveMessage); ok && m.Message.Body == "Deploy is green" {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)

	// And the permanent sinks saw it
	req.Eventually(func() bool {
		hits, err := index.Search(ctx, search.NewQuery("deploy"))
		return err == nil && len(hits) == 1
	}, time.Second, 10*time.Millisecond)
	req.Eventually(func() bool {
		return o.Monitoring().Refresh().MessagesPersisted == 1
	}, time.Second, 10*time.Millisecond)
	stats := o.Monitoring().Refresh()
	req.Equal(1, stats.Connections)
	req.Equal(64, stats.QueueCapacity)
}

func TestOrchestrator_Stop_Without_Start(t *testing.T) {
	log := slog.Default()
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), NewRegistry(), badgerRepository(t), nil,
		OrchestratorConfig{BufferSize: 1, SinkTimeout: time.Millisecond})
	o.Stop()
	require.NotNil(t, o.Coordinator())
}
