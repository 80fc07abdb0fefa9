package chat

import "context"

// MessageStore is the durable, append-only message log.
type MessageStore interface {
	AppendGroupMessage(ctx context.Context, sender, room, body string) (*GroupMessage, error)
	AppendPrivateMessage(ctx context.Context, sender, recipient, body string) (*PrivateMessage, error)
	// ListGroupMessages returns the first limit messages in room, ordered by
	// date sent ascending.
	ListGroupMessages(ctx context.Context, room string, limit int) ([]*GroupMessage, error)
}

// UserDirectory answers questions about known (signed-up) users.
type UserDirectory interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	ListUsernames(ctx context.Context, exclude string) ([]string, error)
}

// Transport delivers events to live connections. Implementations must be
// safe for concurrent use; delivery is best-effort.
type Transport interface {
	SendTo(connID, event string, payload any)
	SendToRoom(room, event string, payload any)
	SendToRoomExcept(room, exceptConnID, event string, payload any)
	JoinRoom(connID, room string)
	LeaveRoom(connID, room string)
	OnDisconnect(fn func(connID string))
}
