// Package ws is the WebSocket transport: handshake, inbound frame decoding and the outbound write loop.
package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/sink"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait            = 10 * time.Second
	defaultPingInterval  = 25 * time.Second
	defaultMaxFrameBytes = 64 * 1024
)

// Coordinator is what a connection needs from the chat state.
type Coordinator interface {
	Connect(ctx context.Context, connectionID, username string, sink contract.EventSink) (domain.Connection, error)
	Disconnect(ctx context.Context, connectionID string)
	Dispatch(ctx context.Context, connectionID string, cmd domain.Command) error
}

type Options struct {
	BufferSize     int
	PingInterval   time.Duration
	MaxFrameBytes  int64
	AllowedOrigins []string
}

// Handler serves GET /ws?username=<name>.
// Every connection gets one read goroutine (the handler itself) and one write goroutine.
type Handler struct {
	ctx         context.Context
	log         *slog.Logger
	coordinator Coordinator
	upgrader    websocket.Upgrader
	options     Options
}

// NewHandler builds the handler. Commands and disconnects run under ctx, the server lifetime,
// not under the request context.
func NewHandler(ctx context.Context, log *slog.Logger, coordinator Coordinator, options Options) *Handler {
	if options.PingInterval <= 0 {
		options.PingInterval = defaultPingInterval
	}
	if options.MaxFrameBytes <= 0 {
		options.MaxFrameBytes = defaultMaxFrameBytes
	}
	if options.BufferSize <= 0 {
		options.BufferSize = 256
	}
	return &Handler{
		ctx:         ctx,
		log:         log,
		coordinator: coordinator,
		options:     options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(options.AllowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(allowed) == 0 || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		http.Error(w, errors.ErrAuthenticationFailed.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	connectionSink := sink.NewConnectionSink(h.options.BufferSize)
	if _, err := h.coordinator.Connect(h.ctx, connectionID, username, connectionSink); err != nil {
		h.log.Warn("Connection refused", "username", username, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errors.Code(err)), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	readDone := make(chan struct{})
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		h.writeLoop(conn, connectionID, connectionSink, readDone)
	}()

	h.readLoop(conn, connectionID, connectionSink)
	close(readDone)
	<-writeDone
	h.coordinator.Disconnect(h.ctx, connectionID)
}

// readLoop decodes frames until the socket fails or is closed by the write loop.
func (h *Handler) readLoop(conn *websocket.Conn, connectionID string, connectionSink *sink.ConnectionSink) {
	pongWait := h.options.PingInterval * 10 / 9
	conn.SetReadLimit(h.options.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Connection lost", "connection", connectionID, "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reject(connectionID, connectionSink, "", errors.ErrInvalidPayload)
			continue
		}
		cmd, err := Decode(frame)
		if err != nil {
			h.reject(connectionID, connectionSink, frame.Event, err)
			continue
		}
		// The coordinator acknowledges its own failures
		_ = h.coordinator.Dispatch(h.ctx, connectionID, cmd)
	}
}

// reject acknowledges a frame that never reached the coordinator.
func (h *Handler) reject(connectionID string, connectionSink *sink.ConnectionSink, eventName string, err error) {
	h.log.Debug("Frame rejected", "connection", connectionID, "event", eventName, "error", err)
	ctx, cancel := context.WithTimeout(h.ctx, writeWait)
	defer cancel()
	_ = connectionSink.Consume(ctx, event.Failure{Event: eventName, Code: errors.Code(err), Message: err.Error()})
}

// writeLoop drains the connection's sink onto the socket and keeps it alive with pings.
// It closes the socket on exit, which also ends the read loop.
func (h *Handler) writeLoop(conn *websocket.Conn, connectionID string, connectionSink *sink.ConnectionSink, readDone <-chan struct{}) {
	ticker := time.NewTicker(h.options.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case e := <-connectionSink.ConnectedUserEvent:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(encode(e)); err != nil {
				h.log.Debug("Write failed", "connection", connectionID, "event", e.Name(), "error", err)
				return
			}
		case <-connectionSink.Lagging():
			h.log.Warn("Connection too slow, closing", "connection", connectionID)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readDone:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-h.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			return
		}
	}
}
