// Package ratelimit gates job admission per user against a fixed rolling
// window stored in the shared key-value store, so every process instance
// observes the same quota.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/store"
)

const keyPrefix = "ratelimit:user:"

// Decision reports the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	RetryAfter time.Duration
}

// Limiter is a fixed-window per-user admission gate. The window lives in the
// store as a counter with a TTL: the first increment of a window creates the
// key and arms its expiry in the same admission call, so the reset and the
// first count of a new window are never observed separately.
type Limiter struct {
	store  store.Store
	limit  int64
	window time.Duration
}

// New creates a limiter allowing limit admissions per user per window.
func New(s store.Store, limit int64, window time.Duration) *Limiter {
	return &Limiter{store: s, limit: limit, window: window}
}

// Admit checks and consumes one unit of the user's quota. On denial the
// counter is left untouched and the decision carries the time until the
// window resets. If the store is unreachable the limiter fails closed and
// returns model.ErrStorageFailure so callers can tell "rate limited" from
// "limiter unavailable".
func (l *Limiter) Admit(ctx context.Context, userID int64) (Decision, error) {
	key := fmt.Sprintf("%s%d", keyPrefix, userID)

	count, err := l.store.IncrBy(ctx, key, 1)
	if err != nil {
		slog.Error("rate limiter store unreachable, failing closed", "user_id", userID, "error", err)
		return Decision{Allowed: false, Limit: l.limit}, fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}

	if count == 1 {
		// New window: arm the reset before anything can observe the count.
		if err := l.store.Expire(ctx, key, l.window); err != nil {
			slog.Error("rate limiter failed to arm window expiry", "user_id", userID, "error", err)
			return Decision{Allowed: false, Limit: l.limit}, fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
		}
	}

	if count > l.limit {
		// Denials must not consume quota; give the unit back.
		if _, err := l.store.IncrBy(ctx, key, -1); err != nil {
			slog.Warn("rate limiter failed to roll back denied increment", "user_id", userID, "error", err)
		}

		retryAfter, err := l.store.TTL(ctx, key)
		if err != nil || retryAfter <= 0 {
			retryAfter = l.window
		}

		return Decision{
			Allowed:    false,
			Remaining:  0,
			Limit:      l.limit,
			RetryAfter: retryAfter,
		}, &model.RateLimitError{RetryAfter: retryAfter, Limit: l.limit}
	}

	return Decision{
		Allowed:   true,
		Remaining: l.limit - count,
		Limit:     l.limit,
	}, nil
}
