package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/observer/huddle/internal/auth"
	"github.com/observer/huddle/internal/storage"
)

const presignExpiry = 15 * time.Minute

// UploadHandler issues presigned URLs; file bytes go straight to object
// storage without touching this server
type UploadHandler struct {
	store          *storage.ObjectStore
	maxUploadBytes int64
	allowedTypes   []string
	logger         *slog.Logger
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(store *storage.ObjectStore, maxUploadBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		store:          store,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		allowedTypes: []string{
			"image/", "video/", "audio/",
			"application/pdf",
			"text/plain",
		},
	}
}

// Init validates the upload request and returns a presigned PUT URL
func (h *UploadHandler) Init(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req struct {
		Filename  string `json:"filename"`
		MimeType  string `json:"mime_type"`
		SizeBytes int64  `json:"size_bytes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" || req.MimeType == "" || req.SizeBytes <= 0 {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if req.SizeBytes > h.maxUploadBytes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file too large (max %d bytes)", h.maxUploadBytes))
		return
	}

	allowed := false
	for _, prefix := range h.allowedTypes {
		if strings.HasPrefix(req.MimeType, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	}

	key := storage.ObjectKey(userID, req.Filename)
	url, err := h.store.PresignPut(r.Context(), key, req.MimeType, presignExpiry)
	if err != nil {
		h.logger.Error("presign upload failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to initialize upload")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"upload_url": url,
		"object_key": key,
		"expires_in": int(presignExpiry.Seconds()),
	})
}

// Download returns a presigned GET URL for an object
func (h *UploadHandler) Download(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserID(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" || !strings.HasPrefix(key, "uploads/") {
		writeError(w, http.StatusBadRequest, "invalid object key")
		return
	}

	url, err := h.store.PresignGet(r.Context(), key, presignExpiry)
	if err != nil {
		h.logger.Error("presign download failed", "error", err, "key", key)
		writeError(w, http.StatusInternalServerError, "failed to generate download URL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"download_url": url,
		"expires_in":   int(presignExpiry.Seconds()),
	})
}

// Remove deletes an object. Only the uploader may delete: keys are prefixed
// with the owner's user ID.
func (h *UploadHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	key := r.URL.Query().Get("key")
	if !strings.HasPrefix(key, "uploads/"+userID.String()+"/") {
		writeError(w, http.StatusForbidden, "cannot delete this object")
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		h.logger.Error("delete object failed", "error", err, "key", key)
		writeError(w, http.StatusInternalServerError, "failed to delete object")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
