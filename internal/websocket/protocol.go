package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event types for client -> server. The wire envelope is realtime.Event; the
// hub switches on Type and unmarshals the matching payload below.
const (
	EventTypeAuth         = "auth"
	EventTypeRoomJoin     = "room.join"
	EventTypeRoomLeave    = "room.leave"
	EventTypeMessageSend  = "message.send"
	EventTypeMessageEdit  = "message.edit"
	EventTypeOffer        = "signal.offer"
	EventTypeAnswer       = "signal.answer"
	EventTypeICECandidate = "signal.ice_candidate"
)

// Event types for server -> client that originate in the transport layer.
// Delivery events (message.receive, call.incoming, ...) live in realtime.
const (
	EventTypeError       = "error"
	EventTypeAuthSuccess = "auth.success"
	EventTypeSignalError = "signal.error"
)

// AuthPayload authenticates the connection and registers the session. The
// token's claims carry the user identity.
type AuthPayload struct {
	Token string `json:"token"` // JWT access token
}

// RoomJoinPayload for joining a channel room
type RoomJoinPayload struct {
	ChannelID string `json:"channel_id"`
}

// RoomLeavePayload for leaving a channel room
type RoomLeavePayload struct {
	ChannelID string `json:"channel_id"`
}

// MessageSendPayload for sending a message. Exactly one of ChannelID or
// RecipientID must be set.
type MessageSendPayload struct {
	ChannelID   string `json:"channel_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Content     string `json:"content"`
	TempID      string `json:"temp_id,omitempty"` // client-side temp ID for optimistic UI
}

// MessageEditPayload for editing a previously sent message
type MessageEditPayload struct {
	MessageID   string `json:"message_id"`
	ChannelID   string `json:"channel_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	NewContent  string `json:"new_content"`
}

// SignalSendPayload addresses a negotiation payload at another user
type SignalSendPayload struct {
	To   string          `json:"to"`
	Body json.RawMessage `json:"body"`
}

// ErrorPayload for error responses
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthSuccessPayload confirms successful authentication
type AuthSuccessPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}
