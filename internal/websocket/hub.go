package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/observer/huddle/internal/auth"
	"github.com/observer/huddle/internal/database"
	"github.com/observer/huddle/internal/domain"
	"github.com/observer/huddle/internal/realtime"
)

// Hub is the transport edge of the realtime core. It authenticates sessions,
// translates protocol events into core operations, and owns the connect /
// disconnect lifecycle. All presence state lives in the core, not here.
type Hub struct {
	// Channel for registering clients
	register chan *Client

	// Channel for unregistering clients
	unregister chan *Client

	// Dependencies
	authService *auth.Service
	dispatcher  *realtime.Dispatcher
	rooms       *realtime.Rooms
	relay       *realtime.Relay
	channels    *database.ChannelRepository
	users       *database.UserRepository
	logger      *slog.Logger
}

// NewHub creates a new Hub over the realtime core
func NewHub(authService *auth.Service, dispatcher *realtime.Dispatcher, rooms *realtime.Rooms, relay *realtime.Relay, channels *database.ChannelRepository, users *database.UserRepository, logger *slog.Logger) *Hub {
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		authService: authService,
		dispatcher:  dispatcher,
		rooms:       rooms,
		relay:       relay,
		channels:    channels,
		users:       users,
		logger:      logger,
	}
}

// Run starts the hub's lifecycle loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			// Not authenticated yet, just track the connection
			h.logger.Debug("client connected", "session_id", client.ID())
		case client := <-h.unregister:
			h.handleDisconnect(client)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// handleDisconnect is the implicit disconnect event: presence removal and
// room cleanup complete as one step before the send channel is closed.
func (h *Hub) handleDisconnect(client *Client) {
	if client.IsAuthenticated() {
		h.dispatcher.SessionDisconnected(client)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.users.TouchLastSeen(ctx, client.UserID()); err != nil {
			h.logger.Warn("update last seen failed", "user_id", client.UserID(), "error", err)
		}
		cancel()
	}

	client.shutdown()
	h.logger.Debug("client disconnected", "session_id", client.ID(), "user_id", client.UserID())
}

// HandleEvent processes one inbound event. Failures are isolated per event:
// a panicking handler is logged and answered with an error, and never
// corrupts shared state or other sessions.
func (h *Hub) HandleEvent(client *Client, event *realtime.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event handler panicked", "event_type", event.Type, "session_id", client.ID(), "panic", r)
			client.sendError("internal_error", "Failed to process event")
		}
	}()

	switch event.Type {
	case EventTypeAuth:
		h.handleAuth(client, event.Payload)
	case EventTypeRoomJoin:
		h.handleRoomJoin(client, event.Payload)
	case EventTypeRoomLeave:
		h.handleRoomLeave(client, event.Payload)
	case EventTypeMessageSend:
		h.handleMessageSend(client, event.Payload)
	case EventTypeMessageEdit:
		h.handleMessageEdit(client, event.Payload)
	case EventTypeOffer:
		h.handleSignal(client, realtime.SignalOffer, event.Payload)
	case EventTypeAnswer:
		h.handleSignal(client, realtime.SignalAnswer, event.Payload)
	case EventTypeICECandidate:
		h.handleSignal(client, realtime.SignalICECandidate, event.Payload)
	default:
		client.sendError("unknown_event", "Unknown event type: "+event.Type)
	}
}

// handleAuth validates the token, binds the session to its user, and brings
// the session online: registration and the mailbox flush happen inside
// SessionConnected, exactly once.
func (h *Hub) handleAuth(client *Client, payload json.RawMessage) {
	var p AuthPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.sendError("invalid_payload", "Invalid auth payload")
		return
	}

	claims, err := h.authService.ValidateToken(p.Token)
	if err != nil {
		client.sendError("auth_failed", "Invalid or expired token")
		return
	}

	if client.IsAuthenticated() {
		// Re-auth on a live session must not re-run the registration flush
		client.sendError("already_authenticated", "Session is already authenticated")
		return
	}

	client.SetUser(claims.UserID, claims.Username)
	h.dispatcher.SessionConnected(client)

	event, _ := realtime.NewEvent(EventTypeAuthSuccess, AuthSuccessPayload{
		UserID:   claims.UserID,
		Username: claims.Username,
	})
	_ = client.Send(event)

	h.logger.Info("client authenticated", "user_id", claims.UserID, "username", claims.Username, "session_id", client.ID())
}

func (h *Hub) handleRoomJoin(client *Client, payload json.RawMessage) {
	if !client.IsAuthenticated() {
		client.sendError("not_authenticated", "Must authenticate first")
		return
	}

	var p RoomJoinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.sendError("invalid_payload", "Invalid room join payload")
		return
	}

	channelID, err := uuid.Parse(p.ChannelID)
	if err != nil {
		client.sendError("invalid_channel", "Invalid channel ID")
		return
	}

	// Room membership mirrors the membership-of-record
	isMember, err := h.channels.IsMember(context.Background(), channelID, client.UserID())
	if err != nil || !isMember {
		client.sendError("not_member", "Not a member of this channel")
		return
	}

	h.rooms.Join(client, channelID)
	h.logger.Debug("client joined room", "user_id", client.UserID(), "channel_id", channelID)
}

func (h *Hub) handleRoomLeave(client *Client, payload json.RawMessage) {
	var p RoomLeavePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}

	channelID, err := uuid.Parse(p.ChannelID)
	if err != nil {
		return
	}

	h.rooms.Leave(client, channelID)
}

func (h *Hub) handleMessageSend(client *Client, payload json.RawMessage) {
	if !client.IsAuthenticated() {
		client.sendError("not_authenticated", "Must authenticate first")
		return
	}

	var p MessageSendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.sendError("invalid_payload", "Invalid message payload")
		return
	}

	if p.Content == "" {
		client.sendError("empty_message", "Message cannot be empty")
		return
	}
	if len(p.Content) > domain.MaxMessageLength {
		client.sendError("message_too_long", "Message exceeds 10000 characters")
		return
	}

	msg := realtime.MessagePayload{
		ID:         uuid.New(),
		SenderID:   client.UserID(),
		SenderName: client.Username(),
		Content:    p.Content,
		CreatedAt:  time.Now(),
		TempID:     p.TempID,
	}

	switch {
	case p.ChannelID != "":
		channelID, err := uuid.Parse(p.ChannelID)
		if err != nil {
			client.sendError("invalid_channel", "Invalid channel ID")
			return
		}
		isMember, err := h.channels.IsMember(context.Background(), channelID, client.UserID())
		if err != nil || !isMember {
			client.sendError("not_member", "Not a member of this channel")
			return
		}

		msg.ChannelID = channelID
		event, err := realtime.NewEvent(realtime.EventMessageReceive, msg)
		if err != nil {
			client.sendError("internal_error", "Failed to encode message")
			return
		}
		_ = h.dispatcher.Route(context.Background(), &realtime.Delivery{Channel: channelID, Event: event})

	case p.RecipientID != "":
		recipientID, err := uuid.Parse(p.RecipientID)
		if err != nil {
			client.sendError("invalid_recipient", "Invalid recipient ID")
			return
		}

		msg.RecipientID = recipientID
		event, err := realtime.NewEvent(realtime.EventDirectMessage, msg)
		if err != nil {
			client.sendError("internal_error", "Failed to encode message")
			return
		}
		err = h.dispatcher.Route(context.Background(), &realtime.Delivery{Recipients: []uuid.UUID{recipientID}, Event: event})
		if errors.Is(err, realtime.ErrUnknownRecipient) {
			client.sendError("unknown_recipient", "Recipient does not exist")
		}

	default:
		client.sendError("no_target", "Message needs a channel or a recipient")
	}
}

// handleMessageEdit notifies the recipient's devices and the sender's other
// devices that a message changed. History itself lives in the message store.
func (h *Hub) handleMessageEdit(client *Client, payload json.RawMessage) {
	if !client.IsAuthenticated() {
		client.sendError("not_authenticated", "Must authenticate first")
		return
	}

	var p MessageEditPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.sendError("invalid_payload", "Invalid edit payload")
		return
	}

	messageID, err := uuid.Parse(p.MessageID)
	if err != nil || p.NewContent == "" {
		client.sendError("invalid_payload", "Invalid edit payload")
		return
	}

	updated := realtime.MessageUpdatedPayload{
		MessageID:  messageID,
		SenderID:   client.UserID(),
		NewContent: p.NewContent,
		UpdatedAt:  time.Now(),
	}

	switch {
	case p.ChannelID != "":
		channelID, err := uuid.Parse(p.ChannelID)
		if err != nil {
			client.sendError("invalid_channel", "Invalid channel ID")
			return
		}
		updated.ChannelID = channelID
		event, _ := realtime.NewEvent(realtime.EventMessageUpdated, updated)
		_ = h.dispatcher.Route(context.Background(), &realtime.Delivery{Channel: channelID, Event: event})

	case p.RecipientID != "":
		recipientID, err := uuid.Parse(p.RecipientID)
		if err != nil {
			client.sendError("invalid_recipient", "Invalid recipient ID")
			return
		}
		event, _ := realtime.NewEvent(realtime.EventMessageUpdated, updated)
		// Recipient's devices plus the sender's other devices see the edit
		err = h.dispatcher.Route(context.Background(), &realtime.Delivery{
			Recipients: []uuid.UUID{recipientID, client.UserID()},
			Event:      event,
		})
		if errors.Is(err, realtime.ErrUnknownRecipient) {
			client.sendError("unknown_recipient", "Recipient does not exist")
		}

	default:
		client.sendError("no_target", "Edit needs a channel or a recipient")
	}
}

func (h *Hub) handleSignal(client *Client, sigType realtime.SignalType, payload json.RawMessage) {
	if !client.IsAuthenticated() {
		client.sendError("not_authenticated", "Must authenticate first")
		return
	}

	if !client.allowSignal() {
		client.sendError("rate_limited", "Too many signaling events")
		return
	}

	var p SignalSendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.sendError("invalid_payload", "Invalid signal payload")
		return
	}

	targetID, err := uuid.Parse(p.To)
	if err != nil {
		client.sendError("invalid_target", "Invalid signal target")
		return
	}

	if err := h.relay.Relay(sigType, client.UserID(), targetID, client.Username(), p.Body); err != nil {
		h.sendSignalError(client, sigType, err)
	}
}

// sendSignalError maps relay failures onto signal.error so the caller learns
// the negotiation cannot proceed
func (h *Hub) sendSignalError(client *Client, sigType realtime.SignalType, err error) {
	code := "relay_failed"
	switch {
	case errors.Is(err, realtime.ErrTargetOffline):
		code = "target_offline"
	case errors.Is(err, realtime.ErrMalformedSignal), errors.Is(err, realtime.ErrInvalidSignalType):
		code = "malformed_signal"
	}

	event, _ := realtime.NewEvent(EventTypeSignalError, ErrorPayload{
		Code:    code,
		Message: string(sigType) + ": " + err.Error(),
	})
	_ = client.Send(event)
}
