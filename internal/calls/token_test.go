package calls

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-call-signing-key-0123456789abcdef"

func TestNewTokenMinter_RejectsShortKey(t *testing.T) {
	_, err := NewTokenMinter("too-short", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 characters")
}

func TestTokenMinter_MintAndVerify(t *testing.T) {
	minter, err := NewTokenMinter(testSigningKey, time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	token, expiresAt, err := minter.Mint(userID, "himmel", "huddle-abc123")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := minter.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "himmel", claims.Username)
	assert.Equal(t, "huddle-abc123", claims.Room)
	assert.Equal(t, "huddle-calls", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestTokenMinter_RejectsExpiredToken(t *testing.T) {
	minter, err := NewTokenMinter(testSigningKey, -time.Minute)
	require.NoError(t, err)

	token, _, err := minter.Mint(uuid.New(), "eisen", "huddle-expired")
	require.NoError(t, err)

	_, err = minter.Verify(token)
	require.Error(t, err)
}

func TestTokenMinter_RejectsWrongKey(t *testing.T) {
	minter, err := NewTokenMinter(testSigningKey, time.Hour)
	require.NoError(t, err)
	other, err := NewTokenMinter(strings.Repeat("x", 40), time.Hour)
	require.NoError(t, err)

	token, _, err := minter.Mint(uuid.New(), "heiter", "huddle-room")
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.Error(t, err)
}

func TestTokenMinter_RejectsTamperedToken(t *testing.T) {
	minter, err := NewTokenMinter(testSigningKey, time.Hour)
	require.NoError(t, err)

	token, _, err := minter.Mint(uuid.New(), "fern", "huddle-room")
	require.NoError(t, err)

	_, err = minter.Verify(token + "x")
	require.Error(t, err)
}
