// Package realtime implements the live-delivery core: the connection
// registry, room membership, offline mailbox, delivery dispatcher, and call
// signaling relay. It owns all process-wide presence state; every mutation
// goes through the operations defined here.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope delivered to sessions. The same shape goes over the
// wire, so transports can forward it without re-encoding.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// NewEvent creates an event with the current timestamp
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

// Delivery addresses an outbound event. Exactly one of Channel or Recipients
// should be set: a channel ID means room broadcast, recipients mean direct
// per-user delivery with multi-device fan-out.
type Delivery struct {
	Channel    uuid.UUID   `json:"channel_id,omitempty"`
	Recipients []uuid.UUID `json:"recipients,omitempty"`
	Event      *Event      `json:"event"`
}

// IsBroadcast reports whether the delivery targets a room rather than users
func (d *Delivery) IsBroadcast() bool {
	return d.Channel != uuid.Nil
}
