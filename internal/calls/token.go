package calls

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoomClaims grant a user access to one call room for the token's lifetime
type RoomClaims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID `json:"uid"`
	Username string    `json:"username"`
	Room     string    `json:"room"`
}

// TokenMinter issues short-lived room-scoped tokens. These are separate from
// access tokens: a leaked call token admits its holder to one room, not to
// the account.
type TokenMinter struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenMinter creates a call token minter
func NewTokenMinter(signingKey string, ttl time.Duration) (*TokenMinter, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("call token signing key must be at least 32 characters")
	}
	return &TokenMinter{
		signingKey: []byte(signingKey),
		ttl:        ttl,
	}, nil
}

// Mint issues a room token for the user
func (m *TokenMinter) Mint(userID uuid.UUID, username, room string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)

	claims := RoomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "huddle-calls",
		},
		UserID:   userID,
		Username: username,
		Room:     room,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign call token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify parses a room token and returns its claims
func (m *TokenMinter) Verify(tokenString string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse call token: %w", err)
	}

	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid call token claims")
	}

	return claims, nil
}
