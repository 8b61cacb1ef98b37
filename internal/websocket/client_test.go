package websocket

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/observer/huddle/internal/realtime"
)

func newTestClient(buffer int) *Client {
	return &Client{
		id:         uuid.New(),
		send:       make(chan []byte, buffer),
		sigLimiter: rate.NewLimiter(rate.Limit(signalRate), signalBurst),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_SetUser(t *testing.T) {
	client := newTestClient(256)

	userID := uuid.New()
	client.SetUser(userID, "alice")

	assert.Equal(t, userID, client.UserID())
	assert.Equal(t, "alice", client.Username())
}

func TestClient_IsAuthenticated_FalseByDefault(t *testing.T) {
	client := newTestClient(256)
	assert.False(t, client.IsAuthenticated())
}

func TestClient_IsAuthenticated_TrueAfterSetUser(t *testing.T) {
	client := newTestClient(256)
	client.SetUser(uuid.New(), "bob")
	assert.True(t, client.IsAuthenticated())
}

func TestClient_IsAuthenticated_FalseForNilUUID(t *testing.T) {
	client := newTestClient(256)
	client.SetUser(uuid.Nil, "ghost")
	assert.False(t, client.IsAuthenticated())
}

func TestClient_ID_Stable(t *testing.T) {
	client := newTestClient(256)
	assert.NotEqual(t, uuid.Nil, client.ID())
	assert.Equal(t, client.ID(), client.ID())
}

func TestClient_Send_Normal(t *testing.T) {
	client := newTestClient(256)

	event, err := realtime.NewEvent("test.event", map[string]string{"key": "value"})
	require.NoError(t, err)
	require.NoError(t, client.Send(event))

	select {
	case data := <-client.send:
		assert.Contains(t, string(data), "test.event")
	default:
		t.Fatal("event was not queued to send channel")
	}
}

func TestClient_Send_BufferFull(t *testing.T) {
	client := newTestClient(1)

	event, err := realtime.NewEvent("test.event", nil)
	require.NoError(t, err)

	// First send fills the buffer; the second must fail fast so the
	// dispatcher can treat the session as stale instead of blocking.
	require.NoError(t, client.Send(event))
	assert.ErrorIs(t, client.Send(event), ErrSendBufferFull)
}

func TestClient_SendError(t *testing.T) {
	client := newTestClient(256)

	client.sendError("test_code", "test message")

	select {
	case data := <-client.send:
		assert.Contains(t, string(data), EventTypeError)
		assert.Contains(t, string(data), "test_code")
		assert.Contains(t, string(data), "test message")
	default:
		t.Fatal("error event was not queued")
	}
}

func TestClient_Send_AfterShutdownReturnsError(t *testing.T) {
	client := newTestClient(256)
	client.shutdown()

	event, err := realtime.NewEvent("test.event", nil)
	require.NoError(t, err)

	// A fan-out that snapshotted this session before the disconnect must get
	// an error, not a panic on the closed channel.
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, client.Send(event), ErrSessionClosed)
	})
}

func TestClient_Shutdown_Idempotent(t *testing.T) {
	client := newTestClient(256)
	assert.NotPanics(t, func() {
		client.shutdown()
		client.shutdown()
	})
}

func TestClient_Send_ConcurrentWithShutdown(t *testing.T) {
	client := newTestClient(4)
	event, err := realtime.NewEvent("test.event", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = client.Send(event)
			}
		}()
	}
	client.shutdown()
	wg.Wait()

	assert.ErrorIs(t, client.Send(event), ErrSessionClosed)
}

func TestClient_AllowSignal_RateLimited(t *testing.T) {
	client := newTestClient(256)
	client.sigLimiter = rate.NewLimiter(rate.Limit(1), 2)

	assert.True(t, client.allowSignal())
	assert.True(t, client.allowSignal())
	assert.False(t, client.allowSignal())
}
