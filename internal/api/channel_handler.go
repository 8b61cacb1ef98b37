package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/observer/huddle/internal/auth"
	"github.com/observer/huddle/internal/database"
	"github.com/observer/huddle/internal/domain"
	"github.com/observer/huddle/internal/realtime"
)

// ChannelHandler handles channel CRUD and membership. Membership changes are
// written to the database first, then announced through the dispatcher so
// every member's connected devices learn about them.
type ChannelHandler struct {
	channelRepo *database.ChannelRepository
	userRepo    *database.UserRepository
	publisher   *realtime.Publisher
	logger      *slog.Logger
}

// NewChannelHandler creates a new ChannelHandler
func NewChannelHandler(channelRepo *database.ChannelRepository, userRepo *database.UserRepository, publisher *realtime.Publisher, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{
		channelRepo: channelRepo,
		userRepo:    userRepo,
		publisher:   publisher,
		logger:      logger,
	}
}

// Create creates a channel with the caller as owner
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var input struct {
		WorkspaceID string `json:"workspace_id"`
		Name        string `json:"name"`
		IsPrivate   bool   `json:"is_private"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	workspaceID, err := uuid.Parse(input.WorkspaceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace ID")
		return
	}

	ch := &domain.Channel{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        input.Name,
		IsPrivate:   input.IsPrivate,
		CreatedBy:   userID,
	}
	if err := h.channelRepo.Create(r.Context(), ch); err != nil {
		h.logger.Error("create channel failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to create channel")
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

// List returns the caller's channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	channels, err := h.channelRepo.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list channels failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	if channels == nil {
		channels = []domain.Channel{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}

// Members returns the channel's membership, visible to members only
func (h *ChannelHandler) Members(w http.ResponseWriter, r *http.Request) {
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

	members, err := h.channelRepo.Members(r.Context(), channelID)
	if err != nil {
		h.logger.Error("list members failed", "error", err, "channel_id", channelID)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": lo.Map(members, func(m domain.ChannelMember, _ int) map[string]interface{} {
			return map[string]interface{}{
				"user_id":   m.UserID,
				"username":  m.Username,
				"role":      m.Role,
				"joined_at": m.JoinedAt,
			}
		}),
	})
}

// Join adds the caller to a public channel and announces it
func (h *ChannelHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	username, _ := auth.GetUsername(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	ch, err := h.channelRepo.GetByID(r.Context(), channelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if ch.IsPrivate {
		writeError(w, http.StatusForbidden, "cannot join a private channel")
		return
	}

	if err := h.channelRepo.AddMember(r.Context(), channelID, userID); err != nil {
		if errors.Is(err, domain.ErrAlreadyMember) {
			writeError(w, http.StatusConflict, "already a member")
			return
		}
		h.logger.Error("join channel failed", "error", err, "channel_id", channelID)
		writeError(w, http.StatusInternalServerError, "failed to join channel")
		return
	}

	h.announce(r, realtime.EventUserJoinedChannel, ch, userID, username, uuid.Nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// Leave removes the caller from a channel and announces it
func (h *ChannelHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	username, _ := auth.GetUsername(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	ch, err := h.channelRepo.GetByID(r.Context(), channelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	if err := h.channelRepo.RemoveMember(r.Context(), channelID, userID); err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			writeError(w, http.StatusNotFound, "not a member")
			return
		}
		h.logger.Error("leave channel failed", "error", err, "channel_id", channelID)
		writeError(w, http.StatusInternalServerError, "failed to leave channel")
		return
	}

	h.announce(r, realtime.EventUserLeftChannel, ch, userID, username, uuid.Nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// AddMember adds another user to the channel. The added user gets a direct
// notification (mailboxed if offline); the channel sees a join announcement.
func (h *ChannelHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	var input struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	targetID, err := uuid.Parse(input.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	isMember, err := h.channelRepo.IsMember(r.Context(), channelID, actorID)
	if err != nil || !isMember {
		writeError(w, http.StatusForbidden, "not a member of this channel")
		return
	}

	target, err := h.userRepo.GetByID(r.Context(), targetID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	ch, err := h.channelRepo.GetByID(r.Context(), channelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	if err := h.channelRepo.AddMember(r.Context(), channelID, targetID); err != nil {
		if errors.Is(err, domain.ErrAlreadyMember) {
			writeError(w, http.StatusConflict, "already a member")
			return
		}
		h.logger.Error("add member failed", "error", err, "channel_id", channelID)
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	payload := realtime.ChannelMembershipPayload{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		UserID:      target.ID,
		Username:    target.Username,
		ActorID:     actorID,
	}
	if event, err := realtime.NewEvent(realtime.EventUserAddedToChannel, payload); err == nil {
		if err := h.publisher.Direct(r.Context(), event, targetID); err != nil {
			h.logger.Warn("notify added user failed", "error", err, "user_id", targetID)
		}
	}
	h.announce(r, realtime.EventUserJoinedChannel, ch, target.ID, target.Username, actorID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// RemoveMember removes a user from the channel. The removed user is told
// directly; the channel sees a leave announcement.
func (h *ChannelHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}
	targetID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	ch, err := h.channelRepo.GetByID(r.Context(), channelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if ch.CreatedBy != actorID {
		writeError(w, http.StatusForbidden, "only the channel owner can remove members")
		return
	}

	target, err := h.userRepo.GetByID(r.Context(), targetID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.channelRepo.RemoveMember(r.Context(), channelID, targetID); err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			writeError(w, http.StatusNotFound, "not a member")
			return
		}
		h.logger.Error("remove member failed", "error", err, "channel_id", channelID)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	payload := realtime.ChannelMembershipPayload{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		UserID:      target.ID,
		Username:    target.Username,
		ActorID:     actorID,
	}
	if event, err := realtime.NewEvent(realtime.EventUserRemovedChannel, payload); err == nil {
		if err := h.publisher.Direct(r.Context(), event, targetID); err != nil {
			h.logger.Warn("notify removed user failed", "error", err, "user_id", targetID)
		}
	}
	h.announce(r, realtime.EventUserLeftChannel, ch, target.ID, target.Username, actorID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *ChannelHandler) announce(r *http.Request, eventType string, ch *domain.Channel, userID uuid.UUID, username string, actorID uuid.UUID) {
	event, err := realtime.NewEvent(eventType, realtime.ChannelMembershipPayload{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		UserID:      userID,
		Username:    username,
		ActorID:     actorID,
	})
	if err != nil {
		return
	}
	if err := h.publisher.Broadcast(r.Context(), ch.ID, event); err != nil {
		h.logger.Warn("membership announcement failed", "event_type", eventType, "channel_id", ch.ID, "error", err)
	}
}
