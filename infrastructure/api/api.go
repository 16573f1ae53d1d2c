// Package api is the HTTP surface of the relay: uploads, read-only chat state, search and health.
package api

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/search"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type ChatState interface {
	Rooms() []string
	Members(room string) ([]domain.Member, error)
	History(ctx context.Context, room string, limit int) ([]domain.Message, error)
	ConnectionCount() int
}

type Searcher interface {
	Search(ctx context.Context, query search.Query) ([]search.Hit, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitoring interface {
	Refresh() observability.MonitoringStats
}

type HealthResponse struct {
	Status      string                        `json:"status"`
	Store       string                        `json:"store"`
	Connections int                           `json:"connections"`
	Rooms       int                           `json:"rooms"`
	Stats       observability.MonitoringStats `json:"stats"`
}

// ReadHandler serves the read-only endpoints under /api.
type ReadHandler struct {
	log        *slog.Logger
	state      ChatState
	searcher   Searcher
	store      Pinger
	monitoring Monitoring
}

// NewReadHandler wires the endpoints. searcher may be nil, search then always answers an empty list.
func NewReadHandler(log *slog.Logger, state ChatState, searcher Searcher, store Pinger, monitoring Monitoring) *ReadHandler {
	return &ReadHandler{log: log, state: state, searcher: searcher, store: store, monitoring: monitoring}
}

func (h *ReadHandler) Register(api *gin.RouterGroup) {
	api.GET("/rooms", h.rooms)
	api.GET("/rooms/:room/users", h.users)
	api.GET("/rooms/:room/messages", h.messages)
	api.GET("/messages/search", h.search)
	api.GET("/health", h.health)
}

func (h *ReadHandler) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Rooms())
}

func (h *ReadHandler) users(c *gin.Context) {
	members, err := h.state.Members(c.Param("room"))
	if err != nil {
		writeError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *ReadHandler) messages(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	messages, err := h.state.History(c.Request.Context(), c.Param("room"), limit)
	if err != nil {
		writeError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, nonNil(messages))
}

// search answers GET /api/messages/search?q=. The query accepts --room, --from and --limit.
func (h *ReadHandler) search(c *gin.Context) {
	query := search.NewQuery(c.Query("q"))
	if h.searcher == nil || query.IsEmpty() {
		c.JSON(http.StatusOK, []search.Hit{})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if limit > 0 {
		query.Limit = limit
	}
	hits, err := h.searcher.Search(c.Request.Context(), query)
	if err != nil {
		h.log.Error("Search failed", "query", query.RawInput, "error", err)
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(hits))
}

func (h *ReadHandler) health(c *gin.Context) {
	response := HealthResponse{
		Status:      "ok",
		Store:       "connected",
		Connections: h.state.ConnectionCount(),
		Rooms:       len(h.state.Rooms()),
		Stats:       h.monitoring.Refresh(),
	}
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", "error", err)
		response.Status = "error"
		response.Store = "not connected"
		c.JSON(http.StatusInternalServerError, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.ErrInvalidPayload
	}
	return value, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
