package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Rooms maps room identity to the set of sessions currently joined, plus a
// session -> rooms reverse index so that a disconnect can clear every
// membership without relying on transport-library bookkeeping.
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[uuid.UUID]map[uuid.UUID]Session  // room ID -> session ID -> session
	bySess map[uuid.UUID]map[uuid.UUID]struct{} // session ID -> room IDs
	logger *slog.Logger
}

// NewRooms creates an empty room membership index
func NewRooms(logger *slog.Logger) *Rooms {
	return &Rooms{
		byRoom: make(map[uuid.UUID]map[uuid.UUID]Session),
		bySess: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		logger: logger.With("component", "rooms"),
	}
}

// Join adds the session to the room. Idempotent.
func (r *Rooms) Join(sess Session, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byRoom[roomID] == nil {
		r.byRoom[roomID] = make(map[uuid.UUID]Session)
	}
	r.byRoom[roomID][sess.ID()] = sess

	if r.bySess[sess.ID()] == nil {
		r.bySess[sess.ID()] = make(map[uuid.UUID]struct{})
	}
	r.bySess[sess.ID()][roomID] = struct{}{}
}

// Leave removes the session from the room
func (r *Rooms) Leave(sess Session, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sess.ID(), roomID)
}

// SessionDestroyed removes the session from every room it had joined, using
// the reverse index. Called exactly once as part of disconnect cleanup; after
// it returns no new broadcast snapshot can include the session.
func (r *Rooms) SessionDestroyed(sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.bySess[sess.ID()] {
		r.removeLocked(sess.ID(), roomID)
	}
	delete(r.bySess, sess.ID())
}

func (r *Rooms) removeLocked(sessID, roomID uuid.UUID) {
	if room, ok := r.byRoom[roomID]; ok {
		delete(room, sessID)
		if len(room) == 0 {
			delete(r.byRoom, roomID)
		}
	}
	if rooms, ok := r.bySess[sessID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.bySess, sessID)
		}
	}
}

// Broadcast delivers the event to every session in the room's membership set
// as of the snapshot taken at call time. Sessions joining afterwards do not
// receive it. Best-effort: a failed write is reported through the returned
// slice of stale sessions and does not stop the fan-out.
func (r *Rooms) Broadcast(roomID uuid.UUID, event *Event) []Session {
	r.mu.RLock()
	room, ok := r.byRoom[roomID]
	if !ok {
		r.mu.RUnlock()
		return nil
	}
	// Copy the set so no lock is held during transport writes
	targets := make([]Session, 0, len(room))
	for _, sess := range room {
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	var stale []Session
	for _, sess := range targets {
		if err := sess.Send(event); err != nil {
			r.logger.Warn("broadcast write failed", "room_id", roomID, "session_id", sess.ID(), "error", err)
			stale = append(stale, sess)
		}
	}
	return stale
}

// RoomsOf returns the rooms the session is currently joined to
func (r *Rooms) RoomsOf(sess Session) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]uuid.UUID, 0, len(r.bySess[sess.ID()]))
	for id := range r.bySess[sess.ID()] {
		rooms = append(rooms, id)
	}
	return rooms
}

// MemberCount returns the number of sessions currently in the room
func (r *Rooms) MemberCount(roomID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[roomID])
}
