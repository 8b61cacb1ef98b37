package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(dir *fakeDirectory) (*Dispatcher, *Registry, *Rooms, *Mailbox) {
	logger := testLogger()
	registry := NewRegistry(logger)
	rooms := NewRooms(logger)
	mailbox := NewMailbox(0, 0, logger)
	return NewDispatcher(registry, rooms, mailbox, dir, logger), registry, rooms, mailbox
}

func TestDispatcher_BroadcastToRoomMembers(t *testing.T) {
	d, _, rooms, _ := newTestDispatcher(newFakeDirectory())
	roomID := uuid.New()

	member := newFakeSession(uuid.New())
	outsider := newFakeSession(uuid.New())
	d.SessionConnected(member)
	d.SessionConnected(outsider)
	rooms.Join(member, roomID)

	err := d.Route(context.Background(), &Delivery{
		Channel: roomID,
		Event:   mustEvent(EventMessageReceive, nil),
	})

	require.NoError(t, err)
	assert.Len(t, member.received(), 1)
	assert.Empty(t, outsider.received())
}

func TestDispatcher_BroadcastUnregistersStaleSessions(t *testing.T) {
	d, registry, rooms, _ := newTestDispatcher(newFakeDirectory())
	roomID := uuid.New()

	broken := newFakeSession(uuid.New())
	d.SessionConnected(broken)
	rooms.Join(broken, roomID)
	broken.failWrites()

	err := d.Route(context.Background(), &Delivery{
		Channel: roomID,
		Event:   mustEvent(EventMessageReceive, nil),
	})

	require.NoError(t, err)
	// The failed write tore the session down completely
	assert.False(t, registry.IsOnline(broken.UserID()))
	assert.Equal(t, 0, rooms.MemberCount(roomID))
}

func TestDispatcher_DirectReachesAllDevices(t *testing.T) {
	userID := uuid.New()
	d, _, _, _ := newTestDispatcher(newFakeDirectory(userID))

	phone := newFakeSession(userID)
	laptop := newFakeSession(userID)
	d.SessionConnected(phone)
	d.SessionConnected(laptop)

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, nil),
	})

	require.NoError(t, err)
	assert.Len(t, phone.received(), 1)
	assert.Len(t, laptop.received(), 1)
}

func TestDispatcher_DirectOfflineGoesToMailbox(t *testing.T) {
	userID := uuid.New()
	d, _, _, mailbox := newTestDispatcher(newFakeDirectory(userID))

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, map[string]string{"content": "hello"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, mailbox.Pending(userID))

	// Connecting later drains the mailbox into the new session
	sess := newFakeSession(userID)
	d.SessionConnected(sess)
	assert.Len(t, sess.received(), 1)
	assert.Equal(t, 0, mailbox.Pending(userID))
}

func TestDispatcher_ReconnectDuringRouteDeliversDirectExactlyOnce(t *testing.T) {
	userID := uuid.New()
	dir := newFakeDirectory(userID)
	d, registry, _, mailbox := newTestDispatcher(dir)

	// The recipient registers between the dispatcher's empty presence
	// snapshot and the mailbox enqueue: the directory lookup sits exactly in
	// that window, so registering from it forces the enqueue to be refused
	// and the dispatcher to loop back to the direct path.
	sess := newFakeSession(userID)
	dir.onLookup = func(uuid.UUID) {
		registry.Register(sess)
	}

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, map[string]string{"content": "hi"}),
	})

	require.NoError(t, err)
	assert.Len(t, sess.received(), 1)
	assert.Equal(t, 0, mailbox.Pending(userID))
}

func TestDispatcher_UnknownRecipient(t *testing.T) {
	d, _, _, mailbox := newTestDispatcher(newFakeDirectory())
	stranger := uuid.New()

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{stranger},
		Event:      mustEvent(EventDirectMessage, nil),
	})

	assert.ErrorIs(t, err, ErrUnknownRecipient)
	assert.Equal(t, 0, mailbox.Pending(stranger))
}

func TestDispatcher_DirectoryErrorPropagates(t *testing.T) {
	dir := newFakeDirectory()
	dir.err = errors.New("database down")
	d, _, _, _ := newTestDispatcher(dir)

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{uuid.New()},
		Event:      mustEvent(EventDirectMessage, nil),
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownRecipient)
}

func TestDispatcher_FailedDeviceDoesNotBlockOthers(t *testing.T) {
	userID := uuid.New()
	d, registry, _, _ := newTestDispatcher(newFakeDirectory(userID))

	broken := newFakeSession(userID)
	healthy := newFakeSession(userID)
	d.SessionConnected(broken)
	d.SessionConnected(healthy)
	broken.failWrites()

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, nil),
	})

	require.NoError(t, err)
	assert.Len(t, healthy.received(), 1)

	// The broken session was unregistered; the healthy one remains
	sessions := registry.SessionsOf(userID)
	require.Len(t, sessions, 1)
	assert.Equal(t, healthy.ID(), sessions[0].ID())
}

func TestDispatcher_AllDevicesStaleFallsBackToMailbox(t *testing.T) {
	userID := uuid.New()
	d, registry, _, mailbox := newTestDispatcher(newFakeDirectory(userID))

	broken := newFakeSession(userID)
	d.SessionConnected(broken)
	broken.failWrites()

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, nil),
	})

	require.NoError(t, err)
	assert.False(t, registry.IsOnline(userID))
	assert.Equal(t, 1, mailbox.Pending(userID))
}

func TestDispatcher_MultipleRecipients(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	d, _, _, mailbox := newTestDispatcher(newFakeDirectory(alice, bob))

	aliceSess := newFakeSession(alice)
	d.SessionConnected(aliceSess)

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{alice, bob},
		Event:      mustEvent(EventMessageUpdated, nil),
	})

	require.NoError(t, err)
	assert.Len(t, aliceSess.received(), 1)
	assert.Equal(t, 1, mailbox.Pending(bob))
}

func TestDispatcher_NoTarget(t *testing.T) {
	d, _, _, _ := newTestDispatcher(newFakeDirectory())

	err := d.Route(context.Background(), &Delivery{Event: mustEvent(EventDirectMessage, nil)})
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestDispatcher_SessionDisconnectedCleansUpEverything(t *testing.T) {
	d, registry, rooms, _ := newTestDispatcher(newFakeDirectory())
	roomID := uuid.New()

	sess := newFakeSession(uuid.New())
	d.SessionConnected(sess)
	rooms.Join(sess, roomID)

	d.SessionDisconnected(sess)

	assert.False(t, registry.IsOnline(sess.UserID()))
	assert.Equal(t, 0, rooms.MemberCount(roomID))
}

func TestDispatcher_BroadcastHasNoOfflineBuffering(t *testing.T) {
	userID := uuid.New()
	d, _, _, mailbox := newTestDispatcher(newFakeDirectory(userID))
	roomID := uuid.New()

	// User is offline and a member of nothing; a room broadcast must not
	// touch their mailbox
	err := d.Route(context.Background(), &Delivery{
		Channel: roomID,
		Event:   mustEvent(EventMessageReceive, nil),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, mailbox.Pending(userID))
}

func TestDispatcher_FleetRecipientOnlineElsewhereSkipsMailbox(t *testing.T) {
	userID := uuid.New()
	d, _, _, mailbox := newTestDispatcher(newFakeDirectory(userID))
	cluster := newFakeCluster()
	cluster.setOnline(userID)
	d.UseClusterPresence(cluster)

	// No local session, but another instance holds one: that instance owns
	// the delivery, so nothing lands in this instance's mailbox
	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, map[string]string{"content": "hi"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, mailbox.Pending(userID))
}

func TestDispatcher_FleetPresenceErrorBuffersLocally(t *testing.T) {
	userID := uuid.New()
	d, _, _, mailbox := newTestDispatcher(newFakeDirectory(userID))
	cluster := newFakeCluster()
	cluster.err = errors.New("redis down")
	d.UseClusterPresence(cluster)

	// When the presence store is unreachable, buffer locally rather than
	// risk dropping the delivery
	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, map[string]string{"content": "hi"}),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, mailbox.Pending(userID))
}

func TestDispatcher_FleetOfflineEverywhereBuffersLocally(t *testing.T) {
	userID := uuid.New()
	d, _, _, mailbox := newTestDispatcher(newFakeDirectory(userID))
	d.UseClusterPresence(newFakeCluster())

	err := d.Route(context.Background(), &Delivery{
		Recipients: []uuid.UUID{userID},
		Event:      mustEvent(EventDirectMessage, nil),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, mailbox.Pending(userID))
}

func TestDispatcher_FleetSessionLifecycleNotifiesCluster(t *testing.T) {
	d, _, _, _ := newTestDispatcher(newFakeDirectory())
	cluster := newFakeCluster()
	d.UseClusterPresence(cluster)

	sess := newFakeSession(uuid.New())
	d.SessionConnected(sess)
	d.SessionDisconnected(sess)

	assert.Equal(t, []uuid.UUID{sess.UserID()}, cluster.connects)
	assert.Equal(t, []uuid.UUID{sess.UserID()}, cluster.disconnects)
}
