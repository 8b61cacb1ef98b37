package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	// Auth errors
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")

	// Channel errors
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotMember       = errors.New("user is not a member of this channel")
	ErrAlreadyMember   = errors.New("user is already a member")

	// Message errors
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds the maximum length")

	// Call errors
	ErrCallNotFound = errors.New("call not found")
	ErrCallEnded    = errors.New("call has already ended")
)
