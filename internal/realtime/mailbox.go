package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMailboxCap is the per-user entry limit. On overflow the oldest
	// entry is dropped so the newest traffic survives.
	DefaultMailboxCap = 200

	// DefaultMailboxTTL expires entries that were never flushed
	DefaultMailboxTTL = 72 * time.Hour
)

// mailboxEntry is one buffered event with its enqueue sequence number
type mailboxEntry struct {
	seq        uint64
	enqueuedAt time.Time
	event      *Event
}

// Mailbox buffers events for users with no active session, per recipient, in
// FIFO order. Queues are bounded by count and TTL; drops are logged, never
// silent growth.
//
// A single mutex covers every queue. That is deliberate: Flush must be atomic
// with respect to Enqueue for the same user, and the enqueue path re-checks
// presence under this mutex so a message racing a reconnect lands either in
// the flush or on the now-online direct path, never in limbo.
type Mailbox struct {
	mu     sync.Mutex
	queues map[uuid.UUID][]mailboxEntry
	seq    uint64
	cap    int
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewMailbox creates a mailbox with the given per-user cap and entry TTL.
// Zero values fall back to the defaults.
func NewMailbox(capacity int, ttl time.Duration, logger *slog.Logger) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCap
	}
	if ttl <= 0 {
		ttl = DefaultMailboxTTL
	}
	return &Mailbox{
		queues: make(map[uuid.UUID][]mailboxEntry),
		cap:    capacity,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "mailbox"),
	}
}

// Enqueue appends the event to the tail of the user's queue. If the queue is
// at capacity the oldest entry is dropped and the drop is logged. online is
// re-checked under the mailbox lock; when it reports true the event is NOT
// enqueued and Enqueue returns false so the caller retries direct delivery.
func (m *Mailbox) Enqueue(userID uuid.UUID, event *Event, online func(uuid.UUID) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if online != nil && online(userID) {
		// Recipient reconnected between the presence check and this enqueue.
		// Their registration flush has either already run (queue is empty) or
		// will run under this same mutex, so buffering now would strand the
		// event until the next reconnect.
		return false
	}

	queue := m.dropExpiredLocked(userID)

	if len(queue) >= m.cap {
		dropped := queue[0]
		queue = queue[1:]
		m.logger.Warn("mailbox full, dropping oldest entry",
			"user_id", userID, "dropped_seq", dropped.seq, "event_type", dropped.event.Type, "cap", m.cap)
	}

	m.seq++
	m.queues[userID] = append(queue, mailboxEntry{
		seq:        m.seq,
		enqueuedAt: m.now(),
		event:      event,
	})
	return true
}

// Flush dequeues all pending entries for the user in FIFO order and delivers
// each to the given session, then clears the queue. Called exactly once per
// registration. Entries are drained under the lock; transport writes happen
// after release.
func (m *Mailbox) Flush(userID uuid.UUID, sess Session) int {
	m.mu.Lock()
	queue := m.dropExpiredLocked(userID)
	delete(m.queues, userID)
	m.mu.Unlock()

	if len(queue) == 0 {
		return 0
	}

	delivered := 0
	for _, entry := range queue {
		if err := sess.Send(entry.event); err != nil {
			m.logger.Warn("mailbox flush write failed",
				"user_id", userID, "session_id", sess.ID(), "delivered", delivered, "pending", len(queue)-delivered, "error", err)
			// Keep the undelivered tail for the next registration, ahead of
			// anything enqueued while we were writing.
			m.mu.Lock()
			m.queues[userID] = append(append([]mailboxEntry{}, queue[delivered:]...), m.queues[userID]...)
			m.mu.Unlock()
			return delivered
		}
		delivered++
	}

	m.logger.Debug("mailbox flushed", "user_id", userID, "delivered", delivered)
	return delivered
}

// Sweep drops expired entries across all queues. Expiry also happens lazily
// on every enqueue and flush; the sweep only reclaims memory for users who
// never come back.
func (m *Mailbox) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID := range m.queues {
		m.dropExpiredLocked(userID)
	}
}

// Pending returns the number of buffered entries for the user
func (m *Mailbox) Pending(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dropExpiredLocked(userID))
}

// dropExpiredLocked removes entries older than the TTL from the head of the
// user's queue and returns the surviving queue. Caller holds mu.
func (m *Mailbox) dropExpiredLocked(userID uuid.UUID) []mailboxEntry {
	queue := m.queues[userID]
	cutoff := m.now().Add(-m.ttl)

	expired := 0
	for expired < len(queue) && queue[expired].enqueuedAt.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		m.logger.Warn("mailbox entries expired", "user_id", userID, "count", expired)
		queue = queue[expired:]
		if len(queue) == 0 {
			delete(m.queues, userID)
		} else {
			m.queues[userID] = queue
		}
	}
	return queue
}
