// Package store defines the persistent key-value boundary used by the rate
// limiter, the stats aggregator and the bot's preference/selection caches.
// All mutating operations are atomic at the storage layer so concurrent
// workers never perform an unsynchronized read-modify-write.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// ScoredMember is one entry of a sorted set, used for the leaderboard.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the injected persistence boundary. Implementations must make
// IncrBy and SetNX atomic under concurrent access.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes key=value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes key=value only if the key is absent and reports whether
	// the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// IncrBy atomically adds delta to the integer at key (missing keys count
	// as zero) and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Expire sets the remaining lifetime of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key, or zero if the key has no
	// expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SortedIncrBy atomically adds delta to member's score in the sorted set
	// at key and returns the new score.
	SortedIncrBy(ctx context.Context, key, member string, delta float64) (float64, error)

	// SortedTop returns up to k members of the sorted set at key, highest
	// score first.
	SortedTop(ctx context.Context, key string, k int64) ([]ScoredMember, error)

	// SortedRank returns the zero-based rank of member in descending score
	// order, or ErrNotFound if the member is absent.
	SortedRank(ctx context.Context, key, member string) (int64, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
