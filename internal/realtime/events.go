package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Outbound event types, server -> client. Defined here because both the
// transport hub and the REST layer address them through the dispatcher.
const (
	EventMessageReceive = "message.receive" // channel broadcast
	EventDirectMessage  = "dm.receive"      // direct / mailbox delivery
	EventMessageUpdated = "message.updated"

	EventUserJoinedChannel  = "channel.user_joined"
	EventUserLeftChannel    = "channel.user_left"
	EventUserAddedToChannel = "channel.user_added"
	EventUserRemovedChannel = "channel.user_removed"

	EventCallIncoming      = "call.incoming"
	EventCallIncomingGroup = "call.incoming_group"
	EventCallEnded         = "call.ended"
	EventCallUserJoined    = "call.user_joined"
)

// MessagePayload carries a chat message to channel members or a DM recipient
type MessagePayload struct {
	ID          uuid.UUID `json:"id"`
	ChannelID   uuid.UUID `json:"channel_id,omitempty"`
	RecipientID uuid.UUID `json:"recipient_id,omitempty"`
	SenderID    uuid.UUID `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	TempID      string    `json:"temp_id,omitempty"` // echoed back for optimistic UI
}

// MessageUpdatedPayload notifies recipients (and the sender's other devices)
// that a message was edited
type MessageUpdatedPayload struct {
	MessageID  uuid.UUID `json:"message_id"`
	ChannelID  uuid.UUID `json:"channel_id,omitempty"`
	SenderID   uuid.UUID `json:"sender_id"`
	NewContent string    `json:"new_content"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChannelMembershipPayload announces a membership change to a channel
type ChannelMembershipPayload struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	ActorID     uuid.UUID `json:"actor_id,omitempty"` // who added/removed, when not the user themselves
}

// CallIncomingPayload rings a direct call recipient
type CallIncomingPayload struct {
	CallID     uuid.UUID `json:"call_id"`
	CallerID   uuid.UUID `json:"caller_id"`
	CallerName string    `json:"caller_name,omitempty"`
	IsVideo    bool      `json:"is_video"`
}

// GroupCallPayload announces a group call in a channel
type GroupCallPayload struct {
	CallID    uuid.UUID `json:"call_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	RoomName  string    `json:"room_name"`
	CallerID  uuid.UUID `json:"caller_id"`
}

// CallEndedPayload tells participants the call is over
type CallEndedPayload struct {
	CallID  uuid.UUID `json:"call_id"`
	EndedBy uuid.UUID `json:"ended_by,omitempty"`
}

// CallUserJoinedPayload announces a participant joining a group call room
type CallUserJoinedPayload struct {
	CallID uuid.UUID `json:"call_id"`
	UserID uuid.UUID `json:"user_id"`
}
