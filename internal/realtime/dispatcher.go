package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Dispatcher errors
var (
	// ErrUnknownRecipient means the direct target does not exist in the user
	// directory at all. Surfaced to the sender instead of silently dropped.
	ErrUnknownRecipient = errors.New("unknown recipient")

	ErrNoTarget = errors.New("delivery has neither channel nor recipients")
)

// Dispatcher routes outbound events either to room membership (broadcast) or
// to the registry/mailbox (direct, per-user). It also owns the session
// lifecycle hooks so that registration, mailbox flush, and disconnect cleanup
// stay in one place.
type Dispatcher struct {
	registry *Registry
	rooms    *Rooms
	mailbox  *Mailbox
	users    UserDirectory
	cluster  ClusterPresence // nil outside fleet mode
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher to the registry, rooms, mailbox, and the
// user directory used to validate unknown recipients.
func NewDispatcher(registry *Registry, rooms *Rooms, mailbox *Mailbox, users UserDirectory, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		mailbox:  mailbox,
		users:    users,
		logger:   logger.With("component", "dispatcher"),
	}
}

// UseClusterPresence enables fleet-wide presence tracking. Call before the
// dispatch source starts; deliveries routed afterwards consult it on the
// offline path.
func (d *Dispatcher) UseClusterPresence(cluster ClusterPresence) {
	d.cluster = cluster
}

// SessionConnected registers the session and flushes the owner's mailbox to
// it, in that order. Once Register returns, concurrent direct deliveries see
// the user online; anything they raced into the mailbox is drained by the
// flush. Exactly one flush per registration.
func (d *Dispatcher) SessionConnected(sess Session) {
	d.registry.Register(sess)
	if d.cluster != nil {
		if err := d.cluster.Connected(context.Background(), sess.UserID(), sess.ID()); err != nil {
			d.logger.Warn("cluster presence connect failed", "user_id", sess.UserID(), "error", err)
		}
	}
	if n := d.mailbox.Flush(sess.UserID(), sess); n > 0 {
		d.logger.Info("delivered buffered messages", "user_id", sess.UserID(), "count", n)
	}
}

// SessionDisconnected removes the session from presence and from every room
// it had joined, as one logical cleanup step. Disconnect is the sole
// cancellation signal for a session; after this returns no newly computed
// fan-out can target it.
func (d *Dispatcher) SessionDisconnected(sess Session) {
	d.registry.Unregister(sess)
	d.rooms.SessionDestroyed(sess)
	if d.cluster != nil {
		if err := d.cluster.Disconnected(context.Background(), sess.UserID(), sess.ID()); err != nil {
			d.logger.Warn("cluster presence disconnect failed", "user_id", sess.UserID(), "error", err)
		}
	}
}

// Route fans the delivery out. Broadcast deliveries go to the room's current
// membership snapshot with no offline buffering (channel history belongs to
// the persistence layer). Direct deliveries reach every session of each
// online recipient; offline recipients are mailboxed; recipients missing from
// the user directory produce ErrUnknownRecipient.
func (d *Dispatcher) Route(ctx context.Context, delivery *Delivery) error {
	if delivery.IsBroadcast() {
		d.broadcast(delivery.Channel, delivery.Event)
		return nil
	}
	if len(delivery.Recipients) == 0 {
		return ErrNoTarget
	}

	var firstErr error
	for _, recipient := range delivery.Recipients {
		if err := d.deliverDirect(ctx, recipient, delivery.Event); err != nil {
			d.logger.Warn("direct delivery failed", "recipient", recipient, "event_type", delivery.Event.Type, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (d *Dispatcher) broadcast(roomID uuid.UUID, event *Event) {
	stale := d.rooms.Broadcast(roomID, event)
	for _, sess := range stale {
		d.SessionDisconnected(sess)
	}
}

// deliverDirect sends the event to every live session of the recipient, or
// buffers it when the recipient is offline. A write failure on one session
// unregisters that session and does not abort delivery to the others.
func (d *Dispatcher) deliverDirect(ctx context.Context, recipient uuid.UUID, event *Event) error {
	for {
		sessions := d.registry.SessionsOf(recipient)
		if len(sessions) > 0 {
			delivered := 0
			for _, sess := range sessions {
				if err := sess.Send(event); err != nil {
					d.logger.Warn("session write failed, unregistering",
						"recipient", recipient, "session_id", sess.ID(), "error", err)
					d.SessionDisconnected(sess)
					continue
				}
				delivered++
			}
			if delivered > 0 {
				return nil
			}
			// Every session turned out stale; fall through to the offline path
		}

		known, err := d.users.UserExists(ctx, recipient)
		if err != nil {
			return fmt.Errorf("verify recipient %s: %w", recipient, err)
		}
		if !known {
			return fmt.Errorf("%w: %s", ErrUnknownRecipient, recipient)
		}

		// In fleet mode every instance routes every delivery, so the mailbox
		// has a single owner: a recipient online on another instance gets the
		// event there, and buffering a copy here would flush a duplicate when
		// they later connect to this instance.
		if d.cluster != nil {
			online, err := d.cluster.Online(ctx, recipient)
			if err != nil {
				// Presence store unreachable: buffer locally rather than lose
				// the event.
				d.logger.Warn("cluster presence check failed, buffering locally", "recipient", recipient, "error", err)
			} else if online {
				if d.registry.IsOnline(recipient) {
					// Reconnected to this instance; retry the direct path.
					continue
				}
				return nil
			}
		}

		if d.mailbox.Enqueue(recipient, event, d.registry.IsOnline) {
			return nil
		}
		// The recipient registered between the presence check and the enqueue;
		// loop and deliver through the now-online direct path.
	}
}
