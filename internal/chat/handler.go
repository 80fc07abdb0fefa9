package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	myMiddleware "roomchat/internal/middleware"
	"roomchat/internal/rooms"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 200
)

// HandlerConfig holds the per-connection limits applied by ServeWs.
type HandlerConfig struct {
	AllowedOrigins []string
	MaxMessageSize int64
	RatePerSecond  float64
	RateBurst      int
}

type Handler struct {
	hub      *Hub
	router   *Router
	store    MessageStore
	policy   *rooms.Policy
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, router *Router, store MessageStore, policy *rooms.Policy, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	origins := newOriginPolicy(cfg.AllowedOrigins)
	return &Handler{
		hub:    hub,
		router: router,
		store:  store,
		policy: policy,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		logger: logger,
	}
}

// ServeWs upgrades the request and starts the client's pumps. A username
// placed in the context by the auth middleware pins the connection.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(myMiddleware.UsernameKey).(string)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	var limiter *rate.Limiter
	if h.cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.RatePerSecond), h.cfg.RateBurst)
	}

	client := NewClient(
		context.WithoutCancel(r.Context()),
		uuid.NewString(),
		h.hub,
		conn,
		h.router,
		limiter,
		h.cfg.MaxMessageSize,
	)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	h.router.HandleConnect(client.ID, username)

	go client.WritePump()
	go client.ReadPump()
}

// GetRoomMessages returns the oldest messages of one room in the order they
// were sent.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if !h.policy.Allowed(room) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Room not found"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxHistoryLimit)
		}
	}

	msgs, err := h.store.ListGroupMessages(r.Context(), room, limit)
	if err != nil {
		h.logger.Error("failed to load room messages", slog.String("room", room), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Could not load room messages"})
		return
	}
	if msgs == nil {
		msgs = []*GroupMessage{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

// ListRooms returns the rooms a client may join with the number of
// connections currently subscribed to each.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	names := h.policy.Rooms()
	members := make(map[string]int, len(names))
	for _, room := range names {
		members[room] = h.hub.RoomSize(room)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rooms": names, "members": members})
}

// ListOnlineUsers returns the usernames with at least one live connection.
func (h *Handler) ListOnlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": h.router.registry.OnlineUsernames()})
}

// Health reports liveness along with transport and presence counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.hub.ClientCount(),
		"tracked":     h.router.registry.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
