package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndPresence(t *testing.T) {
	reg := NewRegistry(testLogger())
	userID := uuid.New()

	assert.False(t, reg.IsOnline(userID))
	assert.Empty(t, reg.SessionsOf(userID))

	sess := newFakeSession(userID)
	reg.Register(sess)

	assert.True(t, reg.IsOnline(userID))
	require.Len(t, reg.SessionsOf(userID), 1)
}

func TestRegistry_MultiDevice(t *testing.T) {
	reg := NewRegistry(testLogger())
	userID := uuid.New()

	phone := newFakeSession(userID)
	laptop := newFakeSession(userID)
	reg.Register(phone)
	reg.Register(laptop)

	sessions := reg.SessionsOf(userID)
	assert.Len(t, sessions, 2)

	// Dropping one device keeps the user online
	reg.Unregister(phone)
	assert.True(t, reg.IsOnline(userID))
	require.Len(t, reg.SessionsOf(userID), 1)
	assert.Equal(t, laptop.ID(), reg.SessionsOf(userID)[0].ID())

	// Dropping the last device takes the user offline
	reg.Unregister(laptop)
	assert.False(t, reg.IsOnline(userID))
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	reg := NewRegistry(testLogger())
	sess := newFakeSession(uuid.New())

	reg.Register(sess)
	reg.Register(sess)

	assert.Len(t, reg.SessionsOf(sess.UserID()), 1)
}

func TestRegistry_UnregisterCompareAndRemove(t *testing.T) {
	reg := NewRegistry(testLogger())
	userID := uuid.New()

	old := newFakeSession(userID)
	reg.Register(old)

	// A reconnect reuses the same session ID with a fresh session value
	replacement := &fakeSession{id: old.ID(), userID: userID}
	reg.Register(replacement)

	// The stale session's disconnect must not evict the replacement
	reg.Unregister(old)
	assert.True(t, reg.IsOnline(userID))

	reg.Unregister(replacement)
	assert.False(t, reg.IsOnline(userID))
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Unregister(newFakeSession(uuid.New()))
}

func TestRegistry_LatestSession(t *testing.T) {
	reg := NewRegistry(testLogger())
	userID := uuid.New()

	assert.Nil(t, reg.LatestSession(userID))

	first := newFakeSession(userID)
	second := newFakeSession(userID)
	reg.Register(first)
	reg.Register(second)
	assert.Equal(t, second.ID(), reg.LatestSession(userID).ID())

	// Re-registering refreshes the registration order
	reg.Register(first)
	assert.Equal(t, first.ID(), reg.LatestSession(userID).ID())

	reg.Unregister(first)
	assert.Equal(t, second.ID(), reg.LatestSession(userID).ID())
}

func TestRegistry_OnlineUsers(t *testing.T) {
	reg := NewRegistry(testLogger())
	alice := uuid.New()
	bob := uuid.New()

	reg.Register(newFakeSession(alice))
	reg.Register(newFakeSession(bob))
	reg.Register(newFakeSession(bob))

	online := reg.OnlineUsers()
	assert.Len(t, online, 2)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, online)
}

func TestRegistry_NilUserIgnored(t *testing.T) {
	reg := NewRegistry(testLogger())
	sess := &fakeSession{id: uuid.New(), userID: uuid.Nil}

	reg.Register(sess)
	assert.Empty(t, reg.OnlineUsers())
}
