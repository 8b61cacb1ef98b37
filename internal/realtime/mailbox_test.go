package realtime

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_EnqueueAndFlushFIFO(t *testing.T) {
	mb := NewMailbox(0, 0, testLogger())
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		ok := mb.Enqueue(userID, mustEvent("dm.receive", map[string]int{"n": i}), nil)
		assert.True(t, ok)
	}
	assert.Equal(t, 5, mb.Pending(userID))

	sess := newFakeSession(userID)
	delivered := mb.Flush(userID, sess)

	assert.Equal(t, 5, delivered)
	assert.Equal(t, 0, mb.Pending(userID))

	events := sess.received()
	require.Len(t, events, 5)
	for i, event := range events {
		var payload map[string]int
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		assert.Equal(t, i, payload["n"], "flush must preserve enqueue order")
	}
}

func TestMailbox_FlushEmptyQueue(t *testing.T) {
	mb := NewMailbox(0, 0, testLogger())
	userID := uuid.New()

	assert.Equal(t, 0, mb.Flush(userID, newFakeSession(userID)))
}

func TestMailbox_SecondFlushDeliversNothing(t *testing.T) {
	mb := NewMailbox(0, 0, testLogger())
	userID := uuid.New()

	mb.Enqueue(userID, mustEvent("dm.receive", nil), nil)
	first := newFakeSession(userID)
	second := newFakeSession(userID)

	assert.Equal(t, 1, mb.Flush(userID, first))
	assert.Equal(t, 0, mb.Flush(userID, second))
	assert.Empty(t, second.received())
}

func TestMailbox_CapDropsOldest(t *testing.T) {
	mb := NewMailbox(3, 0, testLogger())
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		mb.Enqueue(userID, mustEvent("dm.receive", map[string]int{"n": i}), nil)
	}
	assert.Equal(t, 3, mb.Pending(userID))

	sess := newFakeSession(userID)
	mb.Flush(userID, sess)

	// Oldest two were dropped; the newest three survive in order
	events := sess.received()
	require.Len(t, events, 3)
	for i, event := range events {
		var payload map[string]int
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		assert.Equal(t, i+2, payload["n"])
	}
}

func TestMailbox_TTLExpiry(t *testing.T) {
	mb := NewMailbox(0, time.Hour, testLogger())
	userID := uuid.New()

	clock := time.Now()
	mb.now = func() time.Time { return clock }

	mb.Enqueue(userID, mustEvent("dm.receive", map[string]string{"age": "old"}), nil)

	clock = clock.Add(30 * time.Minute)
	mb.Enqueue(userID, mustEvent("dm.receive", map[string]string{"age": "fresh"}), nil)

	// First entry crosses the TTL, second does not
	clock = clock.Add(45 * time.Minute)

	sess := newFakeSession(userID)
	assert.Equal(t, 1, mb.Flush(userID, sess))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(sess.received()[0].Payload, &payload))
	assert.Equal(t, "fresh", payload["age"])
}

func TestMailbox_Sweep(t *testing.T) {
	mb := NewMailbox(0, time.Hour, testLogger())
	userID := uuid.New()

	clock := time.Now()
	mb.now = func() time.Time { return clock }

	mb.Enqueue(userID, mustEvent("dm.receive", nil), nil)
	clock = clock.Add(2 * time.Hour)
	mb.Sweep()

	mb.mu.Lock()
	_, exists := mb.queues[userID]
	mb.mu.Unlock()
	assert.False(t, exists, "sweep must reclaim fully-expired queues")
}

func TestMailbox_EnqueueRefusedWhenOnline(t *testing.T) {
	mb := NewMailbox(0, 0, testLogger())
	userID := uuid.New()

	ok := mb.Enqueue(userID, mustEvent("dm.receive", nil), func(uuid.UUID) bool { return true })

	assert.False(t, ok, "enqueue must refuse when the presence re-check says online")
	assert.Equal(t, 0, mb.Pending(userID))
}

func TestMailbox_FlushRequeuesUndeliveredTail(t *testing.T) {
	mb := NewMailbox(0, 0, testLogger())
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		mb.Enqueue(userID, mustEvent("dm.receive", map[string]int{"n": i}), nil)
	}

	broken := newFakeSession(userID)
	broken.failWrites()
	assert.Equal(t, 0, mb.Flush(userID, broken))

	// Nothing was delivered, so nothing may be lost
	assert.Equal(t, 3, mb.Pending(userID))

	healthy := newFakeSession(userID)
	assert.Equal(t, 3, mb.Flush(userID, healthy))
}

func TestMailbox_PerUserIsolation(t *testing.T) {
	mb := NewMailbox(0, 0, testLogger())
	alice := uuid.New()
	bob := uuid.New()

	mb.Enqueue(alice, mustEvent("dm.receive", nil), nil)
	mb.Enqueue(bob, mustEvent("dm.receive", nil), nil)
	mb.Enqueue(bob, mustEvent("dm.receive", nil), nil)

	assert.Equal(t, 1, mb.Pending(alice))
	assert.Equal(t, 2, mb.Pending(bob))

	mb.Flush(alice, newFakeSession(alice))
	assert.Equal(t, 0, mb.Pending(alice))
	assert.Equal(t, 2, mb.Pending(bob))
}

func TestMailbox_ConcurrentEnqueue(t *testing.T) {
	mb := NewMailbox(1000, 0, testLogger())
	userID := uuid.New()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				mb.Enqueue(userID, mustEvent("dm.receive", fmt.Sprintf("%d-%d", g, i)), nil)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	assert.Equal(t, 400, mb.Pending(userID))
}
