package realtime

import (
	"context"

	"github.com/google/uuid"
)

// Session is one live transport connection belonging to exactly one user.
// The core never touches the underlying connection; it only needs an identity
// and a way to hand an event to the transport. Send must not block on network
// I/O (the websocket client queues into a buffered channel).
type Session interface {
	// ID is the opaque per-connection identifier
	ID() uuid.UUID

	// UserID is the owning user. Fixed for the session's entire lifetime.
	UserID() uuid.UUID

	// Send queues an event for delivery. An error marks the session stale:
	// the caller unregisters it and carries on with the remaining targets.
	Send(event *Event) error
}

// UserDirectory is the membership-of-record collaborator consulted when a
// direct delivery targets a user the registry has never seen. It lets the
// dispatcher distinguish "offline" (mailbox) from "does not exist" (error
// back to the sender).
type UserDirectory interface {
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// ClusterPresence tracks which users hold a session anywhere in the fleet.
// With the Redis pub/sub backend every instance's dispatch source routes
// every delivery, so offline buffering must have a single owner: an instance
// only mailboxes a recipient when NO instance has them. Single-instance
// deployments run without one (nil) and the local registry is the sole
// authority.
type ClusterPresence interface {
	// Connected records a session for the user
	Connected(ctx context.Context, userID, sessionID uuid.UUID) error

	// Disconnected removes a session for the user
	Disconnected(ctx context.Context, userID, sessionID uuid.UUID) error

	// Online reports whether any instance currently has a session for the user
	Online(ctx context.Context, userID uuid.UUID) (bool, error)
}
