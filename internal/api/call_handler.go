package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/samber/lo"

	"github.com/observer/huddle/internal/auth"
	"github.com/observer/huddle/internal/calls"
	"github.com/observer/huddle/internal/domain"
)

// CallHandler exposes the call lifecycle over REST. Ringing and hangup fan
// out through the dispatcher; SDP and ICE go over the signaling relay on the
// socket.
type CallHandler struct {
	callService *calls.Service
	logger      *slog.Logger
}

// NewCallHandler creates a new CallHandler
func NewCallHandler(callService *calls.Service, logger *slog.Logger) *CallHandler {
	return &CallHandler{
		callService: callService,
		logger:      logger,
	}
}

// StartDirect rings another user
func (h *CallHandler) StartDirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	username, _ := auth.GetUsername(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req struct {
		CalleeID string `json:"callee_id"`
		IsVideo  bool   `json:"is_video"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	calleeID, err := uuid.Parse(req.CalleeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid callee ID")
		return
	}
	if calleeID == userID {
		writeError(w, http.StatusBadRequest, "cannot call yourself")
		return
	}

	call, err := h.callService.StartDirect(r.Context(), userID, username, calleeID, req.IsVideo)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "callee does not exist")
			return
		}
		h.logger.Error("start direct call failed", "error", err, "caller_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to start call")
		return
	}

	writeJSON(w, http.StatusCreated, call)
}

// StartGroup starts (or joins the live) group call in a channel
func (h *CallHandler) StartGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	username, _ := auth.GetUsername(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req struct {
		ChannelID string `json:"channel_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	call, token, err := h.callService.StartGroup(r.Context(), userID, username, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			writeError(w, http.StatusForbidden, "not a member of this channel")
			return
		}
		h.logger.Error("start group call failed", "error", err, "channel_id", channelID)
		writeError(w, http.StatusInternalServerError, "failed to start group call")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"call":       call,
		"room_token": token,
	})
}

// Join mints a room token for a live group call
func (h *CallHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	username, _ := auth.GetUsername(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call ID")
		return
	}

	token, expiresAt, err := h.callService.Join(r.Context(), userID, username, callID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCallNotFound):
			writeError(w, http.StatusNotFound, "call not found")
		case errors.Is(err, domain.ErrCallEnded):
			writeError(w, http.StatusGone, "call has ended")
		case errors.Is(err, domain.ErrNotMember):
			writeError(w, http.StatusForbidden, "not a member of this channel")
		default:
			h.logger.Error("join call failed", "error", err, "call_id", callID)
			writeError(w, http.StatusInternalServerError, "failed to join call")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_token": token,
		"expires_at": expiresAt,
	})
}

// End hangs up a call
func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call ID")
		return
	}

	if err := h.callService.End(r.Context(), userID, callID); err != nil {
		switch {
		case errors.Is(err, domain.ErrCallNotFound):
			writeError(w, http.StatusNotFound, "call not found")
		case errors.Is(err, domain.ErrCallEnded):
			writeError(w, http.StatusConflict, "call already ended")
		case errors.Is(err, domain.ErrNotMember):
			writeError(w, http.StatusForbidden, "not a call participant")
		default:
			h.logger.Error("end call failed", "error", err, "call_id", callID)
			writeError(w, http.StatusInternalServerError, "failed to end call")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// ICEServers returns the STUN/TURN servers clients should use
func (h *CallHandler) ICEServers(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserID(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	servers := h.callService.ICEServers().Servers()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ice_servers": lo.Map(servers, func(s webrtc.ICEServer, _ int) map[string]interface{} {
			entry := map[string]interface{}{"urls": s.URLs}
			if s.Username != "" {
				entry["username"] = s.Username
				entry["credential"] = s.Credential
			}
			return entry
		}),
	})
}
