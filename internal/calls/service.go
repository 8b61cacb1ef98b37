package calls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/observer/huddle/internal/database"
	"github.com/observer/huddle/internal/domain"
	"github.com/observer/huddle/internal/realtime"
)

// Service owns the call lifecycle: create the record, ring the other side,
// tear down. Media never touches this server; clients negotiate peer to peer
// over the signaling relay, and group calls meet in an external SFU room the
// token grants access to.
type Service struct {
	calls     *database.CallRepository
	channels  *database.ChannelRepository
	users     *database.UserRepository
	publisher *realtime.Publisher
	minter    *TokenMinter
	ice       ICEConfig
	logger    *slog.Logger
}

// NewService creates a call service
func NewService(calls *database.CallRepository, channels *database.ChannelRepository, users *database.UserRepository, publisher *realtime.Publisher, minter *TokenMinter, ice ICEConfig, logger *slog.Logger) *Service {
	return &Service{
		calls:     calls,
		channels:  channels,
		users:     users,
		publisher: publisher,
		minter:    minter,
		ice:       ice,
		logger:    logger.With("component", "calls"),
	}
}

// StartDirect creates a direct call and rings the callee. The ring event goes
// through the dispatcher, so an offline callee finds it in their mailbox.
func (s *Service) StartDirect(ctx context.Context, callerID uuid.UUID, callerName string, calleeID uuid.UUID, isVideo bool) (*database.Call, error) {
	exists, err := s.users.UserExists(ctx, calleeID)
	if err != nil {
		return nil, fmt.Errorf("check callee: %w", err)
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	call := &database.Call{
		ID:       uuid.New(),
		CallerID: callerID,
		CalleeID: &calleeID,
		IsVideo:  isVideo,
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}

	event, err := realtime.NewEvent(realtime.EventCallIncoming, realtime.CallIncomingPayload{
		CallID:     call.ID,
		CallerID:   callerID,
		CallerName: callerName,
		IsVideo:    isVideo,
	})
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Direct(ctx, event, calleeID); err != nil {
		return nil, fmt.Errorf("ring callee: %w", err)
	}

	s.logger.Info("direct call started", "call_id", call.ID, "caller_id", callerID, "callee_id", calleeID)
	return call, nil
}

// StartGroup creates a group call in a channel and announces it to members.
// At most one live group call per channel; starting over a live one returns
// the existing call so two initiators converge on the same room.
func (s *Service) StartGroup(ctx context.Context, callerID uuid.UUID, callerName string, channelID uuid.UUID) (*database.Call, string, error) {
	isMember, err := s.channels.IsMember(ctx, channelID, callerID)
	if err != nil {
		return nil, "", fmt.Errorf("check membership: %w", err)
	}
	if !isMember {
		return nil, "", domain.ErrNotMember
	}

	if existing, err := s.calls.ActiveForChannel(ctx, channelID); err == nil {
		token, _, err := s.minter.Mint(callerID, callerName, existing.RoomName)
		if err != nil {
			return nil, "", err
		}
		return existing, token, nil
	}

	call := &database.Call{
		ID:        uuid.New(),
		CallerID:  callerID,
		ChannelID: &channelID,
		RoomName:  "huddle-" + uuid.NewString(),
		IsVideo:   true,
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, "", fmt.Errorf("create group call: %w", err)
	}

	event, err := realtime.NewEvent(realtime.EventCallIncomingGroup, realtime.GroupCallPayload{
		CallID:    call.ID,
		ChannelID: channelID,
		RoomName:  call.RoomName,
		CallerID:  callerID,
	})
	if err != nil {
		return nil, "", err
	}
	if err := s.publisher.Broadcast(ctx, channelID, event); err != nil {
		return nil, "", fmt.Errorf("announce group call: %w", err)
	}

	token, _, err := s.minter.Mint(callerID, callerName, call.RoomName)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("group call started", "call_id", call.ID, "channel_id", channelID, "room", call.RoomName)
	return call, token, nil
}

// Join mints a room token for a participant of a live group call and
// announces them to the channel
func (s *Service) Join(ctx context.Context, userID uuid.UUID, username string, callID uuid.UUID) (string, time.Time, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return "", time.Time{}, err
	}
	if call.Status != database.CallStatusInitiated {
		return "", time.Time{}, domain.ErrCallEnded
	}
	if call.ChannelID == nil {
		return "", time.Time{}, fmt.Errorf("call %s is not a group call", callID)
	}

	isMember, err := s.channels.IsMember(ctx, *call.ChannelID, userID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("check membership: %w", err)
	}
	if !isMember {
		return "", time.Time{}, domain.ErrNotMember
	}

	token, expiresAt, err := s.minter.Mint(userID, username, call.RoomName)
	if err != nil {
		return "", time.Time{}, err
	}

	event, err := realtime.NewEvent(realtime.EventCallUserJoined, realtime.CallUserJoinedPayload{
		CallID: call.ID,
		UserID: userID,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.publisher.Broadcast(ctx, *call.ChannelID, event); err != nil {
		s.logger.Warn("announce call join failed", "call_id", call.ID, "error", err)
	}

	return token, expiresAt, nil
}

// End terminates a call and notifies the other participants. Only a call
// participant may end it.
func (s *Service) End(ctx context.Context, userID uuid.UUID, callID uuid.UUID) error {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return err
	}

	allowed := call.CallerID == userID
	if call.CalleeID != nil && *call.CalleeID == userID {
		allowed = true
	}
	if call.ChannelID != nil {
		isMember, err := s.channels.IsMember(ctx, *call.ChannelID, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		allowed = allowed || isMember
	}
	if !allowed {
		return domain.ErrNotMember
	}

	if err := s.calls.End(ctx, callID); err != nil {
		return err
	}

	event, err := realtime.NewEvent(realtime.EventCallEnded, realtime.CallEndedPayload{
		CallID:  call.ID,
		EndedBy: userID,
	})
	if err != nil {
		return err
	}

	switch {
	case call.ChannelID != nil:
		err = s.publisher.Broadcast(ctx, *call.ChannelID, event)
	case call.CalleeID != nil:
		// Both sides learn the call ended, whichever hung up
		err = s.publisher.Direct(ctx, event, call.CallerID, *call.CalleeID)
	}
	if err != nil {
		return fmt.Errorf("notify call end: %w", err)
	}

	s.logger.Info("call ended", "call_id", call.ID, "ended_by", userID)
	return nil
}

// ICEServers returns the STUN/TURN configuration clients use for negotiation
func (s *Service) ICEServers() ICEConfig {
	return s.ice
}
