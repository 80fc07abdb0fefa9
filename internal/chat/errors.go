package chat

import "errors"

// Rejections the router reports for inbound events.
var (
	ErrInvalidMessage   = errors.New("chat: required message fields are missing")
	ErrRoomNotAllowed   = errors.New("chat: room is not allowed")
	ErrIdentityMismatch = errors.New("chat: sender does not match the connection's registered user")
	ErrNotInRoom        = errors.New("chat: connection is not in the room")
	ErrUnknownRecipient = errors.New("chat: recipient does not exist")
	ErrPersist          = errors.New("chat: message could not be stored")
)

// Messages shown to clients. They never carry storage details.
const (
	msgInvalidRoom       = "Room is not available"
	msgMissingFields     = "Message could not be sent: missing fields"
	msgIdentityMismatch  = "You can only send messages as yourself"
	msgNotInRoom         = "Join the room before sending messages"
	msgUnknownRecipient  = "Recipient not found"
	msgGroupSendFailed   = "Could not send group message"
	msgPrivateSendFailed = "Could not send private message"
)

// clientMessage maps a rejection to the text sent in serverError.
func clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrRoomNotAllowed):
		return msgInvalidRoom
	case errors.Is(err, ErrInvalidMessage):
		return msgMissingFields
	case errors.Is(err, ErrIdentityMismatch):
		return msgIdentityMismatch
	case errors.Is(err, ErrNotInRoom):
		return msgNotInRoom
	case errors.Is(err, ErrUnknownRecipient):
		return msgUnknownRecipient
	default:
		return fallback
	}
}

// reasonOf gives the metrics label for a rejection.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotAllowed):
		return "room_not_allowed"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrUnknownRecipient):
		return "unknown_recipient"
	case errors.Is(err, ErrPersist):
		return "persist_failed"
	default:
		return "other"
	}
}
