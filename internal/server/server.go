package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/observer/huddle/internal/api"
	"github.com/observer/huddle/internal/auth"
	"github.com/observer/huddle/internal/config"
	"github.com/observer/huddle/internal/database"
	"github.com/observer/huddle/internal/middleware"
	"github.com/observer/huddle/internal/websocket"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	DB             *database.DB
	AuthService    *auth.Service
	AuthHandler    *api.AuthHandler
	UserHandler    *api.UserHandler
	ChannelHandler *api.ChannelHandler
	MessageHandler *api.MessageHandler
	CallHandler    *api.CallHandler
	UploadHandler  *api.UploadHandler
	WSHandler      *websocket.Handler
	RateLimiter    *middleware.RateLimiter
	Logger         *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, deps)

	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health check - essential for docker, k8s, load balancers
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Ready check - verifies DB connectivity
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := deps.DB.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","error":"database unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// Auth routes (public)
	mux.HandleFunc("POST /auth/register", deps.AuthHandler.Register)
	mux.HandleFunc("POST /auth/login", deps.AuthHandler.Login)

	// Protected routes share the auth + per-user rate limit chain
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(deps.AuthService)(deps.RateLimiter.Middleware(h))
	}

	// User routes
	mux.Handle("GET /users/search", protected(deps.UserHandler.Search))
	mux.Handle("GET /users/online", protected(deps.UserHandler.Online))
	mux.Handle("GET /users/{id}", protected(deps.UserHandler.Get))

	// Channel routes
	mux.Handle("POST /channels", protected(deps.ChannelHandler.Create))
	mux.Handle("GET /channels", protected(deps.ChannelHandler.List))
	mux.Handle("GET /channels/{id}/members", protected(deps.ChannelHandler.Members))
	mux.Handle("POST /channels/{id}/join", protected(deps.ChannelHandler.Join))
	mux.Handle("POST /channels/{id}/leave", protected(deps.ChannelHandler.Leave))
	mux.Handle("POST /channels/{id}/members", protected(deps.ChannelHandler.AddMember))
	mux.Handle("DELETE /channels/{id}/members/{userID}", protected(deps.ChannelHandler.RemoveMember))

	// Message routes
	mux.Handle("POST /messages", protected(deps.MessageHandler.Send))
	mux.Handle("PATCH /messages/{id}", protected(deps.MessageHandler.Edit))
	mux.Handle("GET /channels/{id}/messages", protected(deps.MessageHandler.ChannelHistory))
	mux.Handle("GET /messages/direct/{userID}", protected(deps.MessageHandler.DirectHistory))

	// Call routes
	mux.Handle("POST /calls/direct", protected(deps.CallHandler.StartDirect))
	mux.Handle("POST /calls/group", protected(deps.CallHandler.StartGroup))
	mux.Handle("POST /calls/{id}/join", protected(deps.CallHandler.Join))
	mux.Handle("POST /calls/{id}/end", protected(deps.CallHandler.End))
	mux.Handle("GET /calls/ice-servers", protected(deps.CallHandler.ICEServers))

	// Upload routes (absent when object storage is not configured)
	if deps.UploadHandler != nil {
		mux.Handle("POST /uploads/init", protected(deps.UploadHandler.Init))
		mux.Handle("GET /uploads/url", protected(deps.UploadHandler.Download))
		mux.Handle("DELETE /uploads", protected(deps.UploadHandler.Remove))
	}

	// WebSocket route; the socket authenticates itself via the auth event
	mux.Handle("GET /ws", deps.WSHandler)
}
