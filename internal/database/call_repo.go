package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/observer/huddle/internal/domain"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusEnded     CallStatus = "ended"
)

// Call is one call record, direct (callee set) or group (channel set)
type Call struct {
	ID        uuid.UUID  `json:"id"`
	CallerID  uuid.UUID  `json:"caller_id"`
	CalleeID  *uuid.UUID `json:"callee_id,omitempty"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	RoomName  string     `json:"room_name,omitempty"`
	IsVideo   bool       `json:"is_video"`
	Status    CallStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// CallRepository handles call lifecycle records
type CallRepository struct {
	db *DB
}

func NewCallRepository(db *DB) *CallRepository {
	return &CallRepository{db: db}
}

// Create inserts a new call in the initiated state
func (r *CallRepository) Create(ctx context.Context, call *Call) error {
	call.Status = CallStatusInitiated
	call.StartedAt = time.Now()
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO calls (id, caller_id, callee_id, channel_id, room_name, is_video, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, call.ID, call.CallerID, call.CalleeID, call.ChannelID, call.RoomName, call.IsVideo, call.Status, call.StartedAt)
	return err
}

// GetByID finds a call by ID
func (r *CallRepository) GetByID(ctx context.Context, id uuid.UUID) (*Call, error) {
	call := &Call{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, caller_id, callee_id, channel_id, room_name, is_video, status, started_at, ended_at
		FROM calls WHERE id = $1
	`, id).Scan(
		&call.ID, &call.CallerID, &call.CalleeID, &call.ChannelID,
		&call.RoomName, &call.IsVideo, &call.Status, &call.StartedAt, &call.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCallNotFound
	}
	return call, err
}

// End marks a call as ended. Ending an already-ended call returns
// domain.ErrCallEnded so double hang-ups do not fan out twice.
func (r *CallRepository) End(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE calls SET status = $2, ended_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, CallStatusEnded, CallStatusInitiated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrCallEnded
	}
	return nil
}

// ActiveForChannel returns the live group call in a channel, if any
func (r *CallRepository) ActiveForChannel(ctx context.Context, channelID uuid.UUID) (*Call, error) {
	call := &Call{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, caller_id, callee_id, channel_id, room_name, is_video, status, started_at, ended_at
		FROM calls
		WHERE channel_id = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1
	`, channelID, CallStatusInitiated).Scan(
		&call.ID, &call.CallerID, &call.CalleeID, &call.ChannelID,
		&call.RoomName, &call.IsVideo, &call.Status, &call.StartedAt, &call.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCallNotFound
	}
	return call, err
}
