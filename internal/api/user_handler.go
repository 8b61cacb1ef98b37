package api

import (
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

// UserHandler exposes user lookup and presence
type UserHandler struct {
	userRepo *database.UserRepository
	registry *realtime.Registry
	logger   *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userRepo *database.UserRepository, registry *realtime.Registry, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		userRepo: userRepo,
		registry: registry,
		logger:   logger,
	}
}

// Get returns one user's public profile, with live presence
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserID(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("get user failed", "error", err, "user_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	pub := user.ToPublic()
	pub.IsOnline = h.registry.IsOnline(user.ID)
	writeJSON(w, http.StatusOK, pub)
}

// Search finds users by username prefix
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserID(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	query := r.URL.Query().Get("q")
	if len(query) < 2 {
		writeError(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}

	users, err := h.userRepo.SearchByUsername(r.Context(), query, parseLimit(r, 20))
	if err != nil {
		h.logger.Error("user search failed", "error", err, "query", query)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": lo.Map(users, func(u domain.User, _ int) domain.PublicUser {
			pub := u.ToPublic()
			pub.IsOnline = h.registry.IsOnline(u.ID)
			return pub
		}),
	})
}

// Online returns the IDs of users with at least one active session on this
// instance
func (h *UserHandler) Online(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserID(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_ids": h.registry.OnlineUsers(),
	})
}
