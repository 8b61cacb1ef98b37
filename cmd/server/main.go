package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/observer/huddle/internal/api"
	"github.com/observer/huddle/internal/auth"
	"github.com/observer/huddle/internal/calls"
	"github.com/observer/huddle/internal/config"
	"github.com/observer/huddle/internal/database"
	"github.com/observer/huddle/internal/email"
	"github.com/observer/huddle/internal/middleware"
	"github.com/observer/huddle/internal/presence"
	"github.com/observer/huddle/internal/pubsub"
	"github.com/observer/huddle/internal/realtime"
	"github.com/observer/huddle/internal/server"
	"github.com/observer/huddle/internal/storage"
	"github.com/observer/huddle/internal/websocket"
)

func main() {
	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create context for initialization
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()

	// Database
	db, err := database.New(initCtx, cfg.DatabaseURL, database.PoolSettings{
		MaxConns:        int32(cfg.DBMaxConns),
		MinConns:        int32(cfg.DBMinConns),
		MaxConnLifetime: cfg.DBConnLifetime,
		MaxConnIdleTime: cfg.DBConnIdleTime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.EnsureSchema(initCtx, db, logger); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// Repositories
	userRepo := database.NewUserRepository(db)
	channelRepo := database.NewChannelRepository(db)
	messageRepo := database.NewMessageRepository(db)
	callRepo := database.NewCallRepository(db)

	// Auth
	tokenService, err := auth.NewTokenService(cfg.JWTSigningKey, cfg.TokenTTL)
	if err != nil {
		logger.Error("failed to create token service", "error", err)
		os.Exit(1)
	}
	authService := auth.NewService(userRepo, tokenService)

	// Pub/sub backend: memory for single instance, redis for fleets
	var ps pubsub.PubSub
	switch cfg.PubSubType {
	case "redis":
		rps, err := pubsub.NewRedisPubSub(cfg.RedisURL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		ps = rps
		logger.Info("pubsub backend", "type", "redis")
	default:
		ps = pubsub.NewMemoryPubSub(logger)
		logger.Info("pubsub backend", "type", "memory")
	}
	defer func() { _ = ps.Close() }()

	// Realtime core
	registry := realtime.NewRegistry(logger)
	rooms := realtime.NewRooms(logger)
	mailbox := realtime.NewMailbox(cfg.MailboxCap, cfg.MailboxTTL, logger)
	dispatcher := realtime.NewDispatcher(registry, rooms, mailbox, userRepo, logger)
	relay := realtime.NewRelay(registry, logger)
	publisher := realtime.NewPublisher(ps)

	// Fleet mode: shared presence so exactly one instance buffers offline
	// deliveries for a user
	var tracker *presence.RedisTracker
	if cfg.PubSubType == "redis" {
		tracker, err = presence.NewRedisTracker(cfg.RedisURL, presence.DefaultTTL, logger)
		if err != nil {
			logger.Error("failed to connect presence tracker", "error", err)
			os.Exit(1)
		}
		defer func() { _ = tracker.Close() }()
		dispatcher.UseClusterPresence(tracker)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := realtime.NewSource(ps, dispatcher, logger)
	if err := source.Start(rootCtx); err != nil {
		logger.Error("failed to start dispatch source", "error", err)
		os.Exit(1)
	}
	defer source.Stop()

	// Calls
	callTokens, err := calls.NewTokenMinter(cfg.CallTokenKey, cfg.CallTokenTTL)
	if err != nil {
		logger.Error("failed to create call token minter", "error", err)
		os.Exit(1)
	}
	iceConfig := calls.ICEConfig{
		STUNURLs:     cfg.ICESTUNURLs,
		TURNURLs:     cfg.ICETURNURLs,
		TURNUsername: cfg.TURNUsername,
		TURNPassword: cfg.TURNPassword,
	}
	callService := calls.NewService(callRepo, channelRepo, userRepo, publisher, callTokens, iceConfig, logger)

	// Email notifications
	var mailer email.Sender = email.NopSender{}
	if cfg.SMTPEnabled() {
		mailer = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		logger.Info("smtp notifications enabled", "host", cfg.SMTPHost)
	}

	// WebSocket transport
	hub := websocket.NewHub(authService, dispatcher, rooms, relay, channelRepo, userRepo, logger)
	go hub.Run(rootCtx)
	wsHandler := websocket.NewHandler(hub, cfg.AllowedOrigins, logger)

	// HTTP handlers
	deps := &server.Dependencies{
		DB:             db,
		AuthService:    authService,
		AuthHandler:    api.NewAuthHandler(authService, logger),
		UserHandler:    api.NewUserHandler(userRepo, registry, logger),
		ChannelHandler: api.NewChannelHandler(channelRepo, userRepo, publisher, logger),
		MessageHandler: api.NewMessageHandler(messageRepo, channelRepo, userRepo, publisher, registry, mailer, logger),
		CallHandler:    api.NewCallHandler(callService, logger),
		WSHandler:      wsHandler,
		RateLimiter:    middleware.NewRateLimiter(cfg.RequestsPerMin),
		Logger:         logger,
	}

	if cfg.StorageEnabled() {
		store, err := storage.New(storage.Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
		})
		if err != nil {
			logger.Error("failed to create object store", "error", err)
			os.Exit(1)
		}
		deps.UploadHandler = api.NewUploadHandler(store, cfg.MaxUploadBytes, logger)
		logger.Info("object storage enabled", "bucket", cfg.S3Bucket)
	}

	// Periodic housekeeping: mailbox TTL sweep and stale rate limiters
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				mailbox.Sweep()
				deps.RateLimiter.Cleanup()
				if tracker != nil {
					for _, userID := range registry.OnlineUsers() {
						ids := make([]uuid.UUID, 0, 2)
						for _, sess := range registry.SessionsOf(userID) {
							ids = append(ids, sess.ID())
						}
						if err := tracker.Refresh(rootCtx, userID, ids); err != nil {
							logger.Warn("presence refresh failed", "user_id", userID, "error", err)
						}
					}
				}
			}
		}
	}()

	srv := server.New(cfg, deps)

	go func() {
		logger.Info("server starting", "addr", cfg.ServerAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
