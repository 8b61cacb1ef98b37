package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a named broadcast group inside a workspace. The channel table is
// the membership-of-record; the realtime room index mirrors it through
// explicit join/leave calls.
type Channel struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`

	// Populated from joins
	Members []ChannelMember `json:"members,omitempty"`
}

// ChannelMember is one user's membership in a channel
type ChannelMember struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
