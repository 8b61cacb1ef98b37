package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by repositories when a row does not exist
var ErrNotFound = errors.New("record not found")

// PoolSettings sizes the connection pool. Most of this service's load rides
// the websocket, so the REST-facing pool stays small; zero values fall back
// to the defaults below.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

const (
	defaultMaxConns        = 16
	defaultMinConns        = 2
	defaultConnLifetime    = 30 * time.Minute
	defaultConnIdleTime    = 5 * time.Minute
	defaultHealthCheckTick = time.Minute
)

// DB owns the pgx connection pool shared by all repositories
type DB struct {
	Pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection
func New(ctx context.Context, databaseURL string, settings PoolSettings) (*DB, error) {
	config, err := poolConfig(databaseURL, settings)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// poolConfig parses the URL and applies pool settings with defaults
func poolConfig(databaseURL string, settings PoolSettings) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MaxConns = settings.MaxConns
	if config.MaxConns <= 0 {
		config.MaxConns = defaultMaxConns
	}
	config.MinConns = settings.MinConns
	if config.MinConns <= 0 {
		config.MinConns = defaultMinConns
	}
	config.MaxConnLifetime = settings.MaxConnLifetime
	if config.MaxConnLifetime <= 0 {
		config.MaxConnLifetime = defaultConnLifetime
	}
	config.MaxConnIdleTime = settings.MaxConnIdleTime
	if config.MaxConnIdleTime <= 0 {
		config.MaxConnIdleTime = defaultConnIdleTime
	}
	config.HealthCheckPeriod = defaultHealthCheckTick

	return config, nil
}

// Close releases the pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Health pings the database; used by the readiness endpoint
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
