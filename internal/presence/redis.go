// Package presence tracks fleet-wide user presence in Redis. Each user maps
// to a set of session IDs contributed by every instance; a user is online
// anywhere iff their set is non-empty. The dispatcher consults this before
// mailboxing so that exactly one instance owns offline buffering.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed instance's sessions linger. Live
// instances refresh their users' keys well inside this window.
const DefaultTTL = 15 * time.Minute

// RedisTracker implements realtime.ClusterPresence over a Redis set per user
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisTracker connects to Redis and verifies the connection. A zero ttl
// falls back to DefaultTTL.
func NewRedisTracker(url string, ttl time.Duration, logger *slog.Logger) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisTracker{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "presence"),
	}, nil
}

func presenceKey(userID uuid.UUID) string {
	return "presence:user:" + userID.String()
}

// Connected records a session for the user and refreshes the key's TTL
func (t *RedisTracker) Connected(ctx context.Context, userID, sessionID uuid.UUID) error {
	key := presenceKey(userID)
	pipe := t.client.Pipeline()
	pipe.SAdd(ctx, key, sessionID.String())
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record presence: %w", err)
	}
	return nil
}

// Disconnected removes a session for the user. The key expires on its own
// once empty; the TTL also covers sessions a crashed instance never removed.
func (t *RedisTracker) Disconnected(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := t.client.SRem(ctx, presenceKey(userID), sessionID.String()).Err(); err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	return nil
}

// Online reports whether any instance has a session for the user
func (t *RedisTracker) Online(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := t.client.SCard(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence: %w", err)
	}
	return n > 0, nil
}

// Refresh re-records the given sessions and extends the TTL. Instances call
// this periodically for their locally connected users so live presence never
// expires.
func (t *RedisTracker) Refresh(ctx context.Context, userID uuid.UUID, sessionIDs []uuid.UUID) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(sessionIDs))
	for i, id := range sessionIDs {
		members[i] = id.String()
	}

	key := presenceKey(userID)
	pipe := t.client.Pipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
