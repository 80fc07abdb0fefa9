package chat

import (
	"context"
	"log/slog"
	"sync"

	"roomchat/internal/metrics"
)

// Hub is the WebSocket Transport. It owns the set of live clients and the
// room groups used for broadcast addressing.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connection id -> client
	rooms   map[string]map[string]*Client // room -> connection id -> client
	closed  bool

	Unregister chan *Client // Client leaves (sent by its read pump)

	cbMu         sync.RWMutex
	onDisconnect []func(connID string)

	done    chan struct{}
	metrics metrics.Recorder
	logger  *slog.Logger
}

func NewHub(recorder metrics.Recorder, logger *slog.Logger) *Hub {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    recorder,
		logger:     logger,
	}
}

// Run processes disconnects until ctx is cancelled, then closes every
// client connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.Unregister:
			h.disconnect(client)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register adds a client. It returns false once the hub has shut down.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.logger.Info("client registered", slog.String("conn_id", c.ID), slog.Int("clients", count))
	return true
}

// OnDisconnect adds a callback fired exactly once per client after it has
// stopped reading.
func (h *Hub) OnDisconnect(fn func(connID string)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.onDisconnect = append(h.onDisconnect, fn)
}

// unregister hands c to the Run loop, or finishes it inline after shutdown.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
		h.disconnect(c)
	}
}

func (h *Hub) disconnect(c *Client) {
	h.detach(c)

	h.cbMu.RLock()
	callbacks := append([]func(string)(nil), h.onDisconnect...)
	h.cbMu.RUnlock()
	for _, fn := range callbacks {
		fn(c.ID)
	}

	h.metrics.ConnectionClosed()
	h.logger.Info("client unregistered", slog.String("conn_id", c.ID))
}

// detach stops all delivery to c and closes its send channel. Safe to call
// more than once.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.ID] != c {
		return
	}
	delete(h.clients, c.ID)
	h.leaveLocked(c)
	// Senders hold the read lock, so closing under the write lock is safe.
	close(c.Send)
}

func (h *Hub) JoinRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if c.room == room {
		return
	}
	h.leaveLocked(c)

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = c
	c.room = room
}

func (h *Hub) LeaveRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok || c.room != room {
		return
	}
	h.leaveLocked(c)
}

// leaveLocked removes c from its current room group. Callers hold h.mu.
func (h *Hub) leaveLocked(c *Client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) SendTo(connID, event string, payload any) {
	msg, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	c, found := h.clients[connID]
	var slow []*Client
	if found && !h.trySend(c, msg) {
		slow = append(slow, c)
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
}

func (h *Hub) SendToRoom(room, event string, payload any) {
	h.SendToRoomExcept(room, "", event, payload)
}

func (h *Hub) SendToRoomExcept(room, exceptConnID, event string, payload any) {
	msg, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	var slow []*Client
	for id, c := range h.rooms[room] {
		if id == exceptConnID {
			continue
		}
		if !h.trySend(c, msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
}

// trySend queues msg without blocking. Callers hold h.mu for reading.
func (h *Hub) trySend(c *Client, msg []byte) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// dropSlow disconnects clients whose buffers are full. Their write pumps
// close the sockets, which ends the read pumps and fires the callbacks.
func (h *Hub) dropSlow(slow []*Client) {
	for _, c := range slow {
		h.metrics.DeliveryDropped()
		h.logger.Warn("dropping slow client", slog.String("conn_id", c.ID))
		h.detach(c)
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	msg, err := encodeEnvelope(event, payload)
	if err != nil {
		h.logger.Error("failed to encode outbound event", slog.String("event", event), slog.Any("error", err))
		return nil, false
	}
	return msg, true
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// shutdownClients stops accepting clients and closes every connection.
func (h *Hub) shutdownClients() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.detach(c)
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
	h.logger.Info("closed client connections", slog.Int("clients", len(clients)))
}
