package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"roomchat/internal/metrics"
	"roomchat/internal/presence"
	"roomchat/internal/rooms"
	"roomchat/internal/sanitize"
)

const defaultStoreTimeout = 5 * time.Second

// RouterDeps are the collaborators a Router needs. Metrics, Logger and
// StoreTimeout are optional.
type RouterDeps struct {
	Registry     *presence.Registry
	Policy       *rooms.Policy
	Store        MessageStore
	Users        UserDirectory
	Transport    Transport
	Metrics      metrics.Recorder
	Logger       *slog.Logger
	StoreTimeout time.Duration
}

// Router validates inbound events against presence and room policy,
// persists messages, and picks the connections each outbound event goes to.
type Router struct {
	registry     *presence.Registry
	policy       *rooms.Policy
	store        MessageStore
	users        UserDirectory
	transport    Transport
	metrics      metrics.Recorder
	logger       *slog.Logger
	storeTimeout time.Duration
}

// NewRouter builds a Router and subscribes it to transport disconnects.
func NewRouter(d RouterDeps) *Router {
	r := &Router{
		registry:     d.Registry,
		policy:       d.Policy,
		store:        d.Store,
		users:        d.Users,
		transport:    d.Transport,
		metrics:      d.Metrics,
		logger:       d.Logger,
		storeTimeout: d.StoreTimeout,
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = defaultStoreTimeout
	}

	r.transport.OnDisconnect(r.HandleDisconnect)
	return r
}

// HandleConnect records a new connection. A non-empty username comes from a
// verified token and pins the connection's identity.
func (r *Router) HandleConnect(connID, username string) {
	if username == "" {
		return
	}
	r.registry.PinUsername(connID, username)
	r.logger.Debug("connection pinned", slog.String("conn_id", connID), slog.String("username", username))
}

// HandleDisconnect forgets everything about connID.
func (r *Router) HandleDisconnect(connID string) {
	r.registry.Remove(connID)
	r.logger.Debug("connection removed", slog.String("conn_id", connID))
}

// Handle dispatches one inbound event. Expected failures are reported to
// the client where the event calls for feedback and are returned for
// logging; they never abort the connection.
func (r *Router) Handle(ctx context.Context, connID, event string, data map[string]any) error {
	r.metrics.EventReceived(event)

	var err error
	switch event {
	case EventRegisterUser:
		r.registerUser(connID, data)
	case EventJoinRoom:
		err = r.joinRoom(connID, data)
	case EventLeaveRoom:
		r.leaveRoom(connID, data)
	case EventGroupMessage:
		err = r.groupMessage(ctx, connID, data)
	case EventPrivateMessage:
		err = r.privateMessage(ctx, connID, data)
	case EventTyping:
		r.typing(connID, data)
	default:
		err = fmt.Errorf("chat: unknown event %q", event)
	}

	if err != nil {
		r.metrics.EventRejected(event, reasonOf(err))
	}
	return err
}

func (r *Router) registerUser(connID string, data map[string]any) {
	username := sanitize.Username(data["username"])
	if username == "" {
		return
	}
	r.register(connID, username)
}

// register claims username for connID unless the connection is pinned to a
// different identity.
func (r *Router) register(connID, username string) {
	if c, ok := r.registry.Lookup(connID); ok && c.Pinned && c.Username != username {
		r.logger.Warn("ignoring username change on pinned connection",
			slog.String("conn_id", connID),
			slog.String("username", c.Username),
			slog.String("claimed", username),
		)
		return
	}
	r.registry.RegisterUsername(connID, username)
}

func (r *Router) joinRoom(connID string, data map[string]any) error {
	room := sanitize.Room(data["room"])
	if room == "" || !r.policy.Allowed(room) {
		r.transport.SendTo(connID, EventServerError, ErrorPayload{Message: msgInvalidRoom})
		return ErrRoomNotAllowed
	}

	if username := sanitize.Username(data["username"]); username != "" {
		r.register(connID, username)
	}

	if prev := r.registry.RoomOf(connID); prev != "" && prev != room {
		r.transport.LeaveRoom(connID, prev)
	}
	r.transport.JoinRoom(connID, room)
	r.registry.SetRoom(connID, room)

	r.transport.SendTo(connID, EventRoomJoined, RoomPayload{Room: room})
	return nil
}

func (r *Router) leaveRoom(connID string, data map[string]any) {
	room := sanitize.Room(data["room"])
	if room == "" || r.registry.RoomOf(connID) != room {
		return
	}
	r.transport.LeaveRoom(connID, room)
	r.registry.SetRoom(connID, "")
}

func (r *Router) groupMessage(ctx context.Context, connID string, data map[string]any) error {
	from := sanitize.Username(data["from_user"])
	room := sanitize.Room(data["room"])
	body := sanitize.Message(data["message"])

	if err := r.checkGroupMessage(connID, from, room, body); err != nil {
		r.transport.SendTo(connID, EventServerError, ErrorPayload{Message: clientMessage(err, msgGroupSendFailed)})
		return err
	}

	saved, err := r.persistGroup(ctx, from, room, body)
	if err != nil {
		r.transport.SendTo(connID, EventServerError, ErrorPayload{Message: msgGroupSendFailed})
		return err
	}

	r.transport.SendToRoom(saved.Room, EventGroupMessage, saved)
	if r.logger.Enabled(ctx, slog.LevelDebug) {
		r.logger.Debug("group message delivered",
			slog.String("room", saved.Room),
			slog.Int64("id", saved.ID),
			slog.Int("recipients", len(r.registry.ConnectionsInRoom(saved.Room))),
		)
	}
	return nil
}

func (r *Router) checkGroupMessage(connID, from, room, body string) error {
	if from == "" || room == "" || body == "" {
		return ErrInvalidMessage
	}
	if !r.policy.Allowed(room) {
		return ErrRoomNotAllowed
	}

	c, _ := r.registry.Lookup(connID)
	if c.Username != from {
		return ErrIdentityMismatch
	}
	if c.Room != room {
		return ErrNotInRoom
	}
	return nil
}

func (r *Router) persistGroup(ctx context.Context, from, room, body string) (*GroupMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	start := time.Now()
	saved, err := r.store.AppendGroupMessage(ctx, from, room, body)
	if err != nil {
		r.metrics.PersistFailed("group")
		r.logger.Error("failed to store group message",
			slog.String("username", from),
			slog.String("room", room),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	r.metrics.MessagePersisted("group", time.Since(start))
	return saved, nil
}

func (r *Router) privateMessage(ctx context.Context, connID string, data map[string]any) error {
	from := sanitize.Username(data["from_user"])
	to := sanitize.Username(data["to_user"])
	body := sanitize.Message(data["message"])

	if err := r.checkPrivateMessage(ctx, connID, from, to, body); err != nil {
		r.transport.SendTo(connID, EventServerError, ErrorPayload{Message: clientMessage(err, msgPrivateSendFailed)})
		return err
	}

	saved, err := r.persistPrivate(ctx, from, to, body)
	if err != nil {
		r.transport.SendTo(connID, EventServerError, ErrorPayload{Message: msgPrivateSendFailed})
		return err
	}

	for _, target := range union(r.registry.ConnectionsFor(from), r.registry.ConnectionsFor(to)) {
		r.transport.SendTo(target, EventPrivateMessage, saved)
	}
	return nil
}

func (r *Router) checkPrivateMessage(ctx context.Context, connID, from, to, body string) error {
	if from == "" || to == "" || body == "" {
		return ErrInvalidMessage
	}
	if r.registry.UsernameOf(connID) != from {
		return ErrIdentityMismatch
	}

	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	exists, err := r.users.UsernameExists(ctx, to)
	if err != nil {
		r.logger.Error("failed to look up recipient", slog.String("to_user", to), slog.Any("error", err))
		return fmt.Errorf("look up recipient: %w", err)
	}
	if !exists {
		return ErrUnknownRecipient
	}
	return nil
}

func (r *Router) persistPrivate(ctx context.Context, from, to, body string) (*PrivateMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	start := time.Now()
	saved, err := r.store.AppendPrivateMessage(ctx, from, to, body)
	if err != nil {
		r.metrics.PersistFailed("private")
		r.logger.Error("failed to store private message",
			slog.String("username", from),
			slog.String("to_user", to),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	r.metrics.MessagePersisted("private", time.Since(start))
	return saved, nil
}

// typing relays a typing signal. Every failed precondition drops the event
// silently.
func (r *Router) typing(connID string, data map[string]any) {
	username := sanitize.Username(data["username"])
	if username == "" {
		return
	}

	c, ok := r.registry.Lookup(connID)
	if !ok || c.Username != username {
		return
	}

	if to := sanitize.Username(data["to_user"]); to != "" {
		for _, target := range r.registry.ConnectionsFor(to) {
			r.transport.SendTo(target, EventPrivateTyping, PrivateTypingPayload{FromUser: username})
		}
		return
	}

	room := sanitize.Room(data["room"])
	if room == "" || !r.policy.Allowed(room) || c.Room != room {
		return
	}
	r.transport.SendToRoomExcept(room, connID, EventTyping, TypingPayload{Room: room, Username: username})
}

// union merges connection id sets into one sorted, duplicate-free slice.
func union(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, id := range set {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
