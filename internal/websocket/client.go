package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/observer/huddle/internal/realtime"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (64KB covers SDP bodies)
	maxMessageSize = 65536

	// Signaling events allowed per second per session. ICE gathering bursts,
	// so the burst is generous.
	signalRate  = 20
	signalBurst = 60
)

// ErrSendBufferFull marks a session whose outbound queue is saturated. The
// dispatcher treats it like any other write failure: the session is stale.
var ErrSendBufferFull = errors.New("websocket: send buffer full")

// ErrSessionClosed is returned by Send after the session has been torn down.
// A fan-out that snapshotted its targets before the disconnect gets this
// error instead of a send on a closed channel.
var ErrSessionClosed = errors.New("websocket: session closed")

// Client represents one connected WebSocket session. It implements
// realtime.Session: the core addresses it only through ID, UserID and Send.
type Client struct {
	id         uuid.UUID
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	sigLimiter *rate.Limiter
	mu         sync.RWMutex
	userID     uuid.UUID
	username   string
	closed     bool
	logger     *slog.Logger
	cancel     context.CancelFunc
}

// NewClient creates a new client for an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:         uuid.New(),
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		sigLimiter: rate.NewLimiter(rate.Limit(signalRate), signalBurst),
		logger:     logger,
	}
}

// ID returns the opaque session identifier
func (c *Client) ID() uuid.UUID {
	return c.id
}

// SetCancelFunc sets the context cancel function for cleanup
func (c *Client) SetCancelFunc(cancel context.CancelFunc) {
	c.cancel = cancel
}

// SetUser binds the session to its owning user. Called once, on successful
// auth; the binding never changes for the session's lifetime.
func (c *Client) SetUser(userID uuid.UUID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.username = username
}

// UserID returns the owning user, or uuid.Nil before authentication
func (c *Client) UserID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Username returns the client's username
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// IsAuthenticated returns true if the client has authenticated
func (c *Client) IsAuthenticated() bool {
	return c.UserID() != uuid.Nil
}

// ReadPump pumps events from the WebSocket connection into the hub. It owns
// disconnect: when the loop exits, presence and room cleanup run before the
// connection is torn down.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
		if c.cancel != nil {
			c.cancel()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "error", err, "user_id", c.UserID())
				}
				return
			}

			var event realtime.Event
			if err := json.Unmarshal(data, &event); err != nil {
				c.sendError("invalid_message", "Failed to parse message")
				continue
			}

			c.hub.HandleEvent(c, &event)
		}
	}
}

// WritePump pumps queued events to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(data)

			// Drain queued events into the same websocket frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues an event for delivery. It never blocks on the network; a full
// buffer returns ErrSendBufferFull so the core unregisters the session
// instead of letting one slow reader stall a fan-out.
//
// The read lock is held across the channel send: shutdown takes the write
// lock before closing the channel, so a Send racing a disconnect observes the
// closed flag rather than panicking on a closed channel.
func (c *Client) Send(event *realtime.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrSessionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("client send buffer full", "user_id", c.userID, "session_id", c.id)
		return ErrSendBufferFull
	}
}

// shutdown marks the session closed and closes the send channel, which ends
// WritePump. Idempotent. Core cleanup must already have run: after this, any
// straggling fan-out gets ErrSessionClosed from Send.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// allowSignal applies the per-session signaling rate limit
func (c *Client) allowSignal() bool {
	return c.sigLimiter.Allow()
}

// sendError sends an error event to the client
func (c *Client) sendError(code, message string) {
	event, _ := realtime.NewEvent(EventTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
	_ = c.Send(event)
}
