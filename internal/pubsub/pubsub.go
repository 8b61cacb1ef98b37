// Package pubsub provides the interface-driven pub/sub fabric that bridges
// the REST layer and the realtime core. The in-memory backend serves a single
// instance; the Redis backend fans dispatch traffic out across instances.
package pubsub

import (
	"context"
	"encoding/json"
)

// Message represents a pub/sub message with typed payload
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is a callback for processing messages
type Handler func(ctx context.Context, msg *Message)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of the given topic.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the given topic and
	// returns a Subscription used to remove it.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// TopicBuilder helps construct consistent topic names
type TopicBuilder struct{}

// Dispatch is the stream of outbound deliveries consumed by every instance's
// dispatch source
func (t TopicBuilder) Dispatch() string {
	return "dispatch"
}

// Topics is a helper for building topic names
var Topics = TopicBuilder{}
