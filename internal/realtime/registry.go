package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Registry maps user identity to the set of live sessions for that user.
// It is the source of truth for presence: a user is online iff their session
// set is non-empty. Safe for concurrent use across sessions and users.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]sessionRecord // user ID -> session ID -> record
	seq      uint64
	logger   *slog.Logger
}

// sessionRecord pairs a session with its registration order so the relay can
// pick the most-recently-registered device deterministically.
type sessionRecord struct {
	session Session
	seq     uint64
}

// NewRegistry creates an empty connection registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]map[uuid.UUID]sessionRecord),
		logger:   logger.With("component", "registry"),
	}
}

// Register adds a session to its owner's presence set. Idempotent: registering
// the same session twice refreshes its registration order but adds nothing.
func (r *Registry) Register(sess Session) {
	userID := sess.UserID()
	if userID == uuid.Nil {
		return
	}

	r.mu.Lock()
	if r.sessions[userID] == nil {
		r.sessions[userID] = make(map[uuid.UUID]sessionRecord)
	}
	r.seq++
	r.sessions[userID][sess.ID()] = sessionRecord{session: sess, seq: r.seq}
	count := len(r.sessions[userID])
	r.mu.Unlock()

	r.logger.Debug("session registered", "user_id", userID, "session_id", sess.ID(), "sessions", count)
}

// Unregister removes the mapping for the given session, but only if the
// registered session is still this one (compare-and-remove). A disconnect
// event for a stale session racing a rapid reconnect that already replaced
// it under the same session ID must not evict the replacement.
func (r *Registry) Unregister(sess Session) {
	userID := sess.UserID()
	if userID == uuid.Nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, ok := r.sessions[userID]
	if !ok {
		return
	}
	current, ok := records[sess.ID()]
	if !ok || current.session != sess {
		return
	}
	delete(records, sess.ID())
	if len(records) == 0 {
		delete(r.sessions, userID)
	}
}

// SessionsOf returns a snapshot of the user's current session set. The slice
// is a copy; callers may write to the sessions without holding any lock.
func (r *Registry) SessionsOf(userID uuid.UUID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	sessions := make([]Session, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, rec.session)
	}
	return sessions
}

// LatestSession returns the user's most-recently-registered session, or nil
// if the user is offline. Signaling targets a single deterministic endpoint
// rather than fanning out to every device.
func (r *Registry) LatestSession(userID uuid.UUID) Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest sessionRecord
	for _, rec := range r.sessions[userID] {
		if rec.seq > latest.seq {
			latest = rec
		}
	}
	return latest.session
}

// IsOnline reports whether the user has at least one live session
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// OnlineUsers returns the IDs of every user with a non-empty session set
func (r *Registry) OnlineUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
