package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/observer/huddle/internal/domain"
)

// ChannelRepository handles channel and membership data access. Membership
// here is the record of truth; the realtime room index only mirrors it for
// connected sessions.
type ChannelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Create creates a channel and adds the creator as its first member
func (r *ChannelRepository) Create(ctx context.Context, ch *domain.Channel) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO channels (id, workspace_id, name, is_private, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, ch.ID, ch.WorkspaceID, ch.Name, ch.IsPrivate, ch.CreatedBy)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, 'owner')
	`, ch.ID, ch.CreatedBy)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID finds a channel by ID
func (r *ChannelRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	ch := &domain.Channel{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, workspace_id, name, is_private, created_by, created_at
		FROM channels WHERE id = $1
	`, id).Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.IsPrivate, &ch.CreatedBy, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	return ch, err
}

// IsMember checks whether the user belongs to the channel
func (r *ChannelRepository) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)
	`, channelID, userID).Scan(&exists)
	return exists, err
}

// MemberIDs returns the IDs of all channel members
func (r *ChannelRepository) MemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT user_id FROM channel_members WHERE channel_id = $1
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Members returns the channel's membership with usernames
func (r *ChannelRepository) Members(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT cm.user_id, u.username, cm.role, cm.joined_at
		FROM channel_members cm
		INNER JOIN users u ON u.id = cm.user_id
		WHERE cm.channel_id = $1
		ORDER BY cm.joined_at
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.ChannelMember
	for rows.Next() {
		var m domain.ChannelMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember adds a user to a channel. Returns domain.ErrAlreadyMember on a
// duplicate insert.
func (r *ChannelRepository) AddMember(ctx context.Context, channelID, userID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO NOTHING
	`, channelID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyMember
	}
	return nil
}

// RemoveMember removes a user from a channel
func (r *ChannelRepository) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotMember
	}
	return nil
}

// ListForUser returns the channels the user is a member of
func (r *ChannelRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id, c.workspace_id, c.name, c.is_private, c.created_by, c.created_at
		FROM channels c
		INNER JOIN channel_members cm ON cm.channel_id = c.id
		WHERE cm.user_id = $1
		ORDER BY c.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var c domain.Channel
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.IsPrivate, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}
