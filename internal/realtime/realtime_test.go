package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// fakeSession records delivered events and can be made to fail writes
type fakeSession struct {
	id     uuid.UUID
	userID uuid.UUID

	mu      sync.Mutex
	events  []*Event
	sendErr error
}

func newFakeSession(userID uuid.UUID) *fakeSession {
	return &fakeSession{id: uuid.New(), userID: userID}
}

func (s *fakeSession) ID() uuid.UUID     { return s.id }
func (s *fakeSession) UserID() uuid.UUID { return s.userID }

func (s *fakeSession) Send(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSession) received() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event{}, s.events...)
}

func (s *fakeSession) failWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = errors.New("connection gone")
}

// fakeDirectory is a user directory backed by a set. onLookup, when set, runs
// on every UserExists call, which lets tests inject state changes at the
// exact point between the dispatcher's presence snapshot and its mailbox
// enqueue.
type fakeDirectory struct {
	mu       sync.Mutex
	known    map[uuid.UUID]bool
	err      error
	onLookup func(uuid.UUID)
}

func newFakeDirectory(ids ...uuid.UUID) *fakeDirectory {
	known := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return &fakeDirectory{known: known}
}

func (d *fakeDirectory) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	d.mu.Lock()
	hook := d.onLookup
	err := d.err
	known := d.known[userID]
	d.mu.Unlock()

	if hook != nil {
		hook(userID)
	}
	if err != nil {
		return false, err
	}
	return known, nil
}

// fakeCluster is an in-memory ClusterPresence. online marks users with a
// session on some other instance; err, when set, fails Online lookups.
type fakeCluster struct {
	mu          sync.Mutex
	online      map[uuid.UUID]bool
	err         error
	connects    []uuid.UUID
	disconnects []uuid.UUID
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{online: make(map[uuid.UUID]bool)}
}

func (c *fakeCluster) Connected(_ context.Context, userID, _ uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, userID)
	return nil
}

func (c *fakeCluster) Disconnected(_ context.Context, userID, _ uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects = append(c.disconnects, userID)
	return nil
}

func (c *fakeCluster) Online(_ context.Context, userID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.online[userID], nil
}

func (c *fakeCluster) setOnline(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online[userID] = true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustEvent(eventType string, payload interface{}) *Event {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		panic(err)
	}
	return event
}
