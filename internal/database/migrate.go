package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed schema.sql
var schema string

// EnsureSchema applies the embedded schema. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so running it on every boot is safe and keeps
// deployments to a single binary with no migrations directory to ship.
func EnsureSchema(ctx context.Context, db *DB, logger *slog.Logger) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	logger.Info("database schema ensured")
	return nil
}
