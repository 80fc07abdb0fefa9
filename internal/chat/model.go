package chat

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

// GroupMessage is a persisted message sent to a room.
type GroupMessage struct {
	ID       int64     `json:"-"`
	FromUser string    `json:"from_user"`
	Room     string    `json:"room"`
	Message  string    `json:"message"`
	DateSent time.Time `json:"date_sent"`
}

// PrivateMessage is a persisted direct message between two users.
type PrivateMessage struct {
	ID       int64     `json:"-"`
	FromUser string    `json:"from_user"`
	ToUser   string    `json:"to_user"`
	Message  string    `json:"message"`
	DateSent time.Time `json:"date_sent"`
}

// ---------------------------------------------
// ⚡ WebSocket Protocol
// ---------------------------------------------

// Event names, inbound and outbound.
const (
	EventRegisterUser   = "registerUser"
	EventJoinRoom       = "joinRoom"
	EventRoomJoined     = "roomJoined"
	EventLeaveRoom      = "leaveRoom"
	EventGroupMessage   = "groupMessage"
	EventPrivateMessage = "privateMessage"
	EventTyping         = "typing"
	EventPrivateTyping  = "privateTyping"
	EventServerError    = "serverError"
)

// Envelope is one JSON text frame on the wire, in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomPayload is sent with roomJoined.
type RoomPayload struct {
	Room string `json:"room"`
}

// ErrorPayload is sent with serverError.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TypingPayload is the room-scoped typing notification.
type TypingPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// PrivateTypingPayload is the recipient-scoped typing notification.
type PrivateTypingPayload struct {
	FromUser string `json:"from_user"`
}

// encodeEnvelope renders an outbound frame.
func encodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
