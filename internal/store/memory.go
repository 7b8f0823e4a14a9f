package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and as a degraded-mode
// fallback when no Redis is configured. All operations are guarded by a
// single mutex, which gives the same atomicity the Redis commands provide.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	sorted  map[string]map[string]float64
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		sorted:  make(map[string]map[string]float64),
		now:     time.Now,
	}
}

// SetClock replaces the store's time source. Tests use it to step through
// expiry windows deterministically.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry for key if it exists and has not expired. Expired
// entries are removed on access. Caller must hold the lock.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); ok {
		return false, nil
	}

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return true, nil
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	e, ok := s.live(key)
	if ok {
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = n
	}

	current += delta
	s.entries[key] = memoryEntry{value: strconv.FormatInt(current, 10), expiresAt: e.expiresAt}
	return current, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = s.now().Add(ttl)
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) SortedIncrBy(_ context.Context, key, member string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sorted[key]
	if !ok {
		set = make(map[string]float64)
		s.sorted[key] = set
	}
	set[member] += delta
	return set[member], nil
}

func (s *MemoryStore) SortedTop(_ context.Context, key string, k int64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sorted[key]
	members := make([]ScoredMember, 0, len(set))
	for m, score := range set {
		members = append(members, ScoredMember{Member: m, Score: score})
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member < members[j].Member
	})

	if int64(len(members)) > k {
		members = members[:k]
	}
	return members, nil
}

func (s *MemoryStore) SortedRank(_ context.Context, key, member string) (int64, error) {
	members, err := s.SortedTop(nil, key, int64(1<<31))
	if err != nil {
		return 0, err
	}
	for i, m := range members {
		if m.Member == member {
			return int64(i), nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
