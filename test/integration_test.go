package test

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/ws"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/storage"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// relay starts the whole stack on SQLite, the way cmd/relay wires it.
func relay(t *testing.T) *httptest.Server {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dir := t.TempDir()

	repository, err := repositories.OpenSQLite(filepath.Join(dir, "chat.db"), log, lo.ToPtr(100))
	req.NoError(err)
	index, err := search.Open(filepath.Join(dir, "bluge"), log)
	req.NoError(err)
	blobs, err := storage.NewDiskBlobStore(filepath.Join(dir, "uploads"), "", log)
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 50*time.Millisecond), runtime.NewRegistry(),
		repository, index, runtime.OrchestratorConfig{
			Settings:       runtime.Settings{SeedRooms: domain.DefaultSeedRooms},
			BufferSize:     256,
			SinkTimeout:    time.Second,
			MetricInterval: 100 * time.Millisecond,
		})
	orchestrator.Start(ctx)

	coordinator := orchestrator.Coordinator()
	server := httptest.NewServer(api.NewRouter(log, api.Routes{
		WebSocket: ws.NewHandler(ctx, log, coordinator, ws.Options{BufferSize: 64}),
		Upload:    api.NewUploadHandler(log, blobs, coordinator, 1<<20),
		Read:      api.NewReadHandler(log, coordinator, index, repository, orchestrator.Monitoring()),
		UploadDir: blobs.Dir(),
	}))

	// Clean everything at the end of the test
	t.Cleanup(func() {
		server.Close()
		cancel()
		orchestrator.Stop()
		_ = index.Close()
		_ = repository.Close()
	})
	return server
}

func join(t *testing.T, server *httptest.Server, username string) (*websocket.Conn, string) {
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?username="+username, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	var me domain.Member
	expect(t, conn, "connected", &me)
	return conn, me.ID
}

func expect(t *testing.T, conn *websocket.Conn, event string, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			require.NoError(t, json.Unmarshal(f.Data, v))
			return
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame{Event: event, Data: raw}))
}

func Test_Scenario(t *testing.T) {
	req := require.New(t)
	server := relay(t)

	// Given Alice and Bob in General
	alice, aliceID := join(t, server, "alice")
	bob, _ := join(t, server, "bob")
	var history []domain.Message
	expect(t, bob, "message_history", &history)

	// When Alice posts, then whispers to Bob
	send(t, alice, domain.SendMessageEvent, map[string]string{"message": "standup moved to 10am"})
	var m domain.Message
	for m.Body != "standup moved to 10am" {
		expect(t, bob, "receive_message", &m)
	}
	bobID := lo.Must(lookupID(server, "bob"))
	send(t, alice, domain.PrivateMessageEvent, map[string]string{"to": bobID, "message": "bring coffee"})
	var private domain.Message
	for !private.Private {
		expect(t, bob, "receive_message", &private)
	}

	// Then the private message reached Bob but was never stored
	req.Equal("bring coffee", private.Body)
	req.Equal(aliceID, private.SenderID)

	resp, err := http.Get(server.URL + "/api/rooms/General/messages")
	req.NoError(err)
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	_ = resp.Body.Close()
	req.Len(history, 1)
	req.Equal(m.ID, history[0].ID)

	// And the public one is searchable
	req.Eventually(func() bool {
		resp, err := http.Get(server.URL + "/api/messages/search?q=standup")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var hits []search.Hit
		return json.NewDecoder(resp.Body).Decode(&hits) == nil && len(hits) == 1
	}, 2*time.Second, 20*time.Millisecond)

	var health api.HealthResponse
	resp, err = http.Get(server.URL + "/api/health")
	req.NoError(err)
	req.NoError(json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	req.Equal("ok", health.Status)
	req.Equal(2, health.Connections)
	req.Equal(uint64(1), health.Stats.PrivateMessages)
}

func lookupID(server *httptest.Server, username string) (string, error) {
	resp, err := http.Get(server.URL + "/api/rooms/General/users")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var members []domain.Member
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return "", err
	}
	member, _ := lo.Find(members, func(m domain.Member) bool { return m.Username == username })
	return member.ID, nil
}
