// Package middleware provides HTTP middleware for the Huddle API.
package middleware

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/observer/huddle/internal/auth"
)

// RateLimiter bounds REST traffic per authenticated user. The websocket has
// its own per-session signaling limiter; this one covers the HTTP surface,
// where the bursty pattern is a client opening a channel and paging through
// history, so the burst allowance is sized for that rather than for steady
// throughput.
type RateLimiter struct {
	mu      sync.RWMutex
	perUser map[uuid.UUID]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewRateLimiter creates a limiter allowing requestsPerMin sustained requests
// per user. Burst covers a history-pagination run: a sixth of the per-minute
// budget, never below 10.
func NewRateLimiter(requestsPerMin int) *RateLimiter {
	return &RateLimiter{
		perUser: make(map[uuid.UUID]*rate.Limiter),
		limit:   rate.Limit(float64(requestsPerMin) / 60.0),
		burst:   max(requestsPerMin/6, 10),
	}
}

// Allow reports whether the user may make a request now
func (rl *RateLimiter) Allow(userID uuid.UUID) bool {
	rl.mu.RLock()
	limiter := rl.perUser[userID]
	rl.mu.RUnlock()

	if limiter == nil {
		rl.mu.Lock()
		// Re-check: another request may have created it
		if limiter = rl.perUser[userID]; limiter == nil {
			limiter = rate.NewLimiter(rl.limit, rl.burst)
			rl.perUser[userID] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter.Allow()
}

// Middleware rejects over-limit requests with 429. Unauthenticated requests
// pass through; the auth middleware ahead of this one already rejected them,
// so reaching here without a user ID means a public route.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserID(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.Allow(userID) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup drops limiters that have refilled to full burst, meaning the user
// has been idle long enough to start fresh next time. Run periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for userID, limiter := range rl.perUser {
		if limiter.Tokens() >= float64(rl.burst) {
			delete(rl.perUser, userID)
		}
	}
}
