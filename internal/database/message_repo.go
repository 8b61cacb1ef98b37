package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/observer/huddle/internal/domain"
)

// MessageRepository handles message history. Delivery is the realtime core's
// job; this is only the durable record clients page through.
type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a new message
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, recipient_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ChannelID, msg.RecipientID, msg.SenderID, msg.Content, msg.CreatedAt)
	return err
}

// GetByID finds a message by ID
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg := &domain.Message{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT m.id, m.channel_id, m.recipient_id, m.sender_id, m.content, m.edited_at, m.created_at, u.username
		FROM messages m
		INNER JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`, id).Scan(
		&msg.ID, &msg.ChannelID, &msg.RecipientID, &msg.SenderID,
		&msg.Content, &msg.EditedAt, &msg.CreatedAt, &msg.SenderName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// UpdateContent edits a message's content. Only the original sender may edit;
// the WHERE clause enforces it without a read-modify-write.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, senderID uuid.UUID, content string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE messages SET content = $3, edited_at = NOW()
		WHERE id = $1 AND sender_id = $2
	`, id, senderID, content)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForChannel returns channel history, newest first
func (r *MessageRepository) ListForChannel(ctx context.Context, channelID uuid.UUID, limit int, before *uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.recipient_id, m.sender_id, m.content, m.edited_at, m.created_at, u.username
		FROM messages m
		INNER JOIN users u ON u.id = m.sender_id
		WHERE m.channel_id = $1`
	args := []any{channelID}

	if before != nil {
		query += ` AND m.created_at < (SELECT created_at FROM messages WHERE id = $2)`
		args = append(args, *before)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d`, len(args))

	return r.queryMessages(ctx, query, args...)
}

// ListDirect returns the direct-message history between two users, newest first
func (r *MessageRepository) ListDirect(ctx context.Context, a, b uuid.UUID, limit int) ([]domain.Message, error) {
	return r.queryMessages(ctx, `
		SELECT m.id, m.channel_id, m.recipient_id, m.sender_id, m.content, m.edited_at, m.created_at, u.username
		FROM messages m
		INNER JOIN users u ON u.id = m.sender_id
		WHERE (m.sender_id = $1 AND m.recipient_id = $2)
		   OR (m.sender_id = $2 AND m.recipient_id = $1)
		ORDER BY m.created_at DESC
		LIMIT $3
	`, a, b, limit)
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		err := rows.Scan(
			&m.ID, &m.ChannelID, &m.RecipientID, &m.SenderID,
			&m.Content, &m.EditedAt, &m.CreatedAt, &m.SenderName,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
