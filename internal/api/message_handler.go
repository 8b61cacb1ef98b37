package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/observer/huddle/internal/auth"
	"github.com/observer/huddle/internal/database"
	"github.com/observer/huddle/internal/domain"
	"github.com/observer/huddle/internal/email"
	"github.com/observer/huddle/internal/realtime"
)

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_]{3,32})`)

// MessageHandler persists messages and hands delivery to the dispatcher.
// Mentioned users with no active session additionally get an email nudge.
type MessageHandler struct {
	messageRepo *database.MessageRepository
	channelRepo *database.ChannelRepository
	userRepo    *database.UserRepository
	publisher   *realtime.Publisher
	registry    *realtime.Registry
	mailer      email.Sender
	logger      *slog.Logger
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(
	messageRepo *database.MessageRepository,
	channelRepo *database.ChannelRepository,
	userRepo *database.UserRepository,
	publisher *realtime.Publisher,
	registry *realtime.Registry,
	mailer email.Sender,
	logger *slog.Logger,
) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		channelRepo: channelRepo,
		userRepo:    userRepo,
		publisher:   publisher,
		registry:    registry,
		mailer:      mailer,
		logger:      logger,
	}
}

type sendMessageRequest struct {
	ChannelID   string `json:"channel_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Content     string `json:"content"`
}

// Send persists and delivers a message to a channel or a direct recipient
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	username, _ := auth.GetUsername(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg := &domain.Message{
		ID:        uuid.New(),
		SenderID:  userID,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	if err := msg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := realtime.MessagePayload{
		ID:         msg.ID,
		SenderID:   userID,
		SenderName: username,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}

	switch {
	case req.ChannelID != "":
		channelID, err := uuid.Parse(req.ChannelID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid channel ID")
			return
		}
		isMember, err := h.channelRepo.IsMember(r.Context(), channelID, userID)
		if err != nil || !isMember {
			writeError(w, http.StatusForbidden, "not a member of this channel")
			return
		}

		msg.ChannelID = &channelID
		payload.ChannelID = channelID
		if err := h.messageRepo.Create(r.Context(), msg); err != nil {
			h.logger.Error("persist message failed", "error", err, "channel_id", channelID)
			writeError(w, http.StatusInternalServerError, "failed to send message")
			return
		}

		event, err := realtime.NewEvent(realtime.EventMessageReceive, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode message")
			return
		}
		if err := h.publisher.Broadcast(r.Context(), channelID, event); err != nil {
			h.logger.Error("broadcast message failed", "error", err, "channel_id", channelID)
		}

		go h.notifyMentions(context.WithoutCancel(r.Context()), msg, username, channelID)

	case req.RecipientID != "":
		recipientID, err := uuid.Parse(req.RecipientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recipient ID")
			return
		}
		exists, err := h.userRepo.UserExists(r.Context(), recipientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to send message")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "recipient does not exist")
			return
		}

		msg.RecipientID = &recipientID
		payload.RecipientID = recipientID
		if err := h.messageRepo.Create(r.Context(), msg); err != nil {
			h.logger.Error("persist message failed", "error", err, "recipient_id", recipientID)
			writeError(w, http.StatusInternalServerError, "failed to send message")
			return
		}

		event, err := realtime.NewEvent(realtime.EventDirectMessage, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode message")
			return
		}
		if err := h.publisher.Direct(r.Context(), event, recipientID); err != nil {
			h.logger.Error("deliver direct message failed", "error", err, "recipient_id", recipientID)
		}

	default:
		writeError(w, http.StatusBadRequest, "message needs a channel or a recipient")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Edit updates a message's content and notifies its audience
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Content) > domain.MaxMessageLength {
		writeError(w, http.StatusBadRequest, domain.ErrMessageTooLong.Error())
		return
	}

	if err := h.messageRepo.UpdateContent(r.Context(), messageID, userID, req.Content); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found or not yours")
			return
		}
		h.logger.Error("edit message failed", "error", err, "message_id", messageID)
		writeError(w, http.StatusInternalServerError, "failed to edit message")
		return
	}

	msg, err := h.messageRepo.GetByID(r.Context(), messageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	updated := realtime.MessageUpdatedPayload{
		MessageID:  msg.ID,
		SenderID:   userID,
		NewContent: req.Content,
		UpdatedAt:  time.Now(),
	}

	event, err := realtime.NewEvent(realtime.EventMessageUpdated, updated)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode update")
		return
	}

	switch {
	case msg.ChannelID != nil:
		updated.ChannelID = *msg.ChannelID
		event, _ = realtime.NewEvent(realtime.EventMessageUpdated, updated)
		if err := h.publisher.Broadcast(r.Context(), *msg.ChannelID, event); err != nil {
			h.logger.Error("broadcast edit failed", "error", err, "message_id", messageID)
		}
	case msg.RecipientID != nil:
		if err := h.publisher.Direct(r.Context(), event, *msg.RecipientID, userID); err != nil {
			h.logger.Error("deliver edit failed", "error", err, "message_id", messageID)
		}
	}

	writeJSON(w, http.StatusOK, msg)
}

// ChannelHistory returns messages in a channel, newest first
func (h *MessageHandler) ChannelHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	isMember, err := h.channelRepo.IsMember(r.Context(), channelID, userID)
	if err != nil || !isMember {
		writeError(w, http.StatusForbidden, "not a member of this channel")
		return
	}

	limit := parseLimit(r, 50)
	var before *uuid.UUID
	if b := r.URL.Query().Get("before"); b != "" {
		if id, err := uuid.Parse(b); err == nil {
			before = &id
		}
	}

	messages, err := h.messageRepo.ListForChannel(r.Context(), channelID, limit, before)
	if err != nil {
		h.logger.Error("channel history failed", "error", err, "channel_id", channelID)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// DirectHistory returns the DM history between the caller and another user
func (h *MessageHandler) DirectHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	otherID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	messages, err := h.messageRepo.ListDirect(r.Context(), userID, otherID, parseLimit(r, 50))
	if err != nil {
		h.logger.Error("direct history failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// notifyMentions emails channel members who were @-mentioned but have no
// active session. Best effort; failures are logged, never surfaced.
func (h *MessageHandler) notifyMentions(ctx context.Context, msg *domain.Message, senderName string, channelID uuid.UUID) {
	names := lo.Uniq(lo.Map(mentionPattern.FindAllStringSubmatch(msg.Content, -1), func(m []string, _ int) string {
		return m[1]
	}))
	if len(names) == 0 {
		return
	}

	for _, name := range names {
		user, err := h.userRepo.GetByUsername(ctx, name)
		if err != nil {
			continue
		}
		if user.ID == msg.SenderID || h.registry.IsOnline(user.ID) {
			continue
		}
		isMember, err := h.channelRepo.IsMember(ctx, channelID, user.ID)
		if err != nil || !isMember {
			continue
		}

		body := senderName + " mentioned you:\n\n" + msg.Content
		if err := h.mailer.Send(user.Email, "You were mentioned", body); err != nil {
			h.logger.Warn("mention email failed", "user_id", user.ID, "error", err)
		}
	}
}

func parseLimit(r *http.Request, def int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}
