package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxMessageLength bounds message content
const MaxMessageLength = 10000

// Message is a persisted chat message. Exactly one of ChannelID or
// RecipientID is set: channel messages fan out to the channel room, direct
// messages go to the recipient's sessions or their mailbox.
type Message struct {
	ID          uuid.UUID  `json:"id"`
	ChannelID   *uuid.UUID `json:"channel_id,omitempty"`
	RecipientID *uuid.UUID `json:"recipient_id,omitempty"`
	SenderID    uuid.UUID  `json:"sender_id"`
	Content     string     `json:"content"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	// Populated from joins
	SenderName string `json:"sender_name,omitempty"`
}

// Validate checks message content bounds
func (m *Message) Validate() error {
	if m.Content == "" {
		return ErrEmptyMessage
	}
	if len(m.Content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
