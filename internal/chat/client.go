package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	sendBufferSize = 256
)

// EventHandler consumes inbound events. *Router implements it.
type EventHandler interface {
	Handle(ctx context.Context, connID, event string, data map[string]any) error
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	// Buffered channel of outbound frames. Closed by the hub.
	Send chan []byte

	handler        EventHandler
	limiter        *rate.Limiter
	maxMessageSize int64
	ctx            context.Context
	logger         *slog.Logger

	room string // guarded by Hub.mu
}

// NewClient wires a connection to the hub and the event handler. A nil
// limiter disables rate limiting.
func NewClient(ctx context.Context, id string, hub *Hub, conn *websocket.Conn, handler EventHandler, limiter *rate.Limiter, maxMessageSize int64) *Client {
	return &Client{
		ID:             id,
		Hub:            hub,
		Conn:           conn,
		Send:           make(chan []byte, sendBufferSize),
		handler:        handler,
		limiter:        limiter,
		maxMessageSize: maxMessageSize,
		ctx:            ctx,
		logger:         hub.logger.With(slog.String("conn_id", id)),
	}
}

// ReadPump pumps events from the websocket connection to the handler, one
// at a time. When it returns the client is unregistered.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	if c.maxMessageSize > 0 {
		c.Conn.SetReadLimit(c.maxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				c.logger.Warn("frame exceeded read limit", slog.Int64("limit", c.maxMessageSize))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected close", slog.Any("error", err))
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded; discarding event")
			continue
		}

		event, data, err := decodeEvent(raw)
		if err != nil {
			c.logger.Debug("discarding malformed frame", slog.Any("error", err))
			continue
		}

		if err := c.handler.Handle(c.ctx, c.ID, event, data); err != nil {
			c.logger.Info("event rejected", slog.String("event", event), slog.Any("error", err))
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection, one
// frame per message.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// decodeEvent parses an inbound frame. A missing or non-object data field
// yields an empty map so every field reads as absent.
func decodeEvent(raw []byte) (string, map[string]any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, err
	}
	if env.Event == "" {
		return "", nil, errors.New("chat: frame has no event name")
	}

	data := map[string]any{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil || data == nil {
			data = map[string]any{}
		}
	}
	return env.Event, data, nil
}
