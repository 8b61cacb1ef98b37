package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/observer/huddle/internal/pubsub"
)

// Publisher is the inbound edge for components that do not hold a transport
// session (the REST layer). Each call becomes a task on the dispatch topic;
// a Source on every instance picks it up and routes it, which decouples
// handler goroutines from registry mutation and, with the Redis backend,
// fans out across instances.
type Publisher struct {
	ps pubsub.PubSub
}

// NewPublisher creates a publisher over the given pub/sub backend
func NewPublisher(ps pubsub.PubSub) *Publisher {
	return &Publisher{ps: ps}
}

// Broadcast publishes a room-targeted delivery
func (p *Publisher) Broadcast(ctx context.Context, channelID uuid.UUID, event *Event) error {
	return p.publish(ctx, &Delivery{Channel: channelID, Event: event})
}

// Direct publishes a delivery addressed to one or more users
func (p *Publisher) Direct(ctx context.Context, event *Event, recipients ...uuid.UUID) error {
	return p.publish(ctx, &Delivery{Recipients: recipients, Event: event})
}

func (p *Publisher) publish(ctx context.Context, delivery *Delivery) error {
	payload, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	topic := pubsub.Topics.Dispatch()
	return p.ps.Publish(ctx, topic, &pubsub.Message{
		Topic:   topic,
		Type:    delivery.Event.Type,
		Payload: payload,
	})
}

// Source subscribes to the dispatch topic and feeds deliveries into the
// dispatcher. Unknown-recipient failures on this path were already handled
// by the REST layer's validation, so here they are only logged.
type Source struct {
	ps         pubsub.PubSub
	dispatcher *Dispatcher
	sub        pubsub.Subscription
	logger     *slog.Logger
}

// NewSource creates a dispatch source over the given pub/sub backend
func NewSource(ps pubsub.PubSub, dispatcher *Dispatcher, logger *slog.Logger) *Source {
	return &Source{
		ps:         ps,
		dispatcher: dispatcher,
		logger:     logger.With("component", "dispatch_source"),
	}
}

// Start subscribes to the dispatch topic. Call Stop to unsubscribe.
func (s *Source) Start(ctx context.Context) error {
	sub, err := s.ps.Subscribe(ctx, pubsub.Topics.Dispatch(), s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Stop removes the dispatch subscription
func (s *Source) Stop() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}

func (s *Source) handle(ctx context.Context, msg *pubsub.Message) {
	var delivery Delivery
	if err := json.Unmarshal(msg.Payload, &delivery); err != nil {
		s.logger.Error("malformed delivery on dispatch topic", "msg_type", msg.Type, "error", err)
		return
	}
	if err := s.dispatcher.Route(ctx, &delivery); err != nil {
		s.logger.Warn("dispatch route failed", "msg_type", msg.Type, "error", err)
	}
}
