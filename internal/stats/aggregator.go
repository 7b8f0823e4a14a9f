// Package stats records completed downloads into durable counters and
// answers the aggregate and leaderboard queries behind the dashboard and the
// /stats command. Every update is a single atomic increment at the store
// layer, so concurrent workers never lose counts.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/store"
)

const (
	dateFormat     = "2006-01-02"
	leaderboardKey = "stats:leaderboard"
)

// GlobalStats are the monotonically non-decreasing process-wide totals.
type GlobalStats struct {
	TotalUsers     int64            `json:"total_users"`
	TotalDownloads int64            `json:"total_downloads"`
	TotalBytes     int64            `json:"total_bytes"`
	ByTier         map[string]int64 `json:"by_tier"`
}

// DailyStat is one day of aggregate counts.
type DailyStat struct {
	Date      string           `json:"date"`
	Downloads int64            `json:"downloads"`
	Bytes     int64            `json:"bytes"`
	ByTier    map[string]int64 `json:"by_tier"`
}

// TopUser is one leaderboard row.
type TopUser struct {
	UserID    int64     `json:"user_id"`
	Downloads int64     `json:"downloads"`
	Bytes     int64     `json:"bytes"`
	FirstSeen time.Time `json:"first_seen"`
}

// UserSummary backs the per-user /stats command.
type UserSummary struct {
	UserID    int64            `json:"user_id"`
	Downloads int64            `json:"downloads"`
	Bytes     int64            `json:"bytes"`
	ByTier    map[string]int64 `json:"by_tier"`
	Rank      int64            `json:"rank"` // 1-based; 0 when unranked
}

// Aggregator writes and reads the stats counters.
type Aggregator struct {
	store store.Store
	now   func() time.Time
}

// NewAggregator creates an aggregator on the given store.
func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s, now: time.Now}
}

// SetClock replaces the time source; tests use it to pin date buckets.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Record adds one completed download to the user, daily and global counters.
// The scheduler calls it exactly once per job, on the Succeeded transition.
// A store outage is surfaced as ErrStorageFailure but must never fail a job
// that already delivered its artifact, so callers log and move on.
func (a *Aggregator) Record(ctx context.Context, userID int64, tier model.Tier, bytes int64) error {
	date := a.now().Format(dateFormat)
	user := strconv.FormatInt(userID, 10)

	created, err := a.store.SetNX(ctx, "stats:user:"+user+":first_seen", a.now().Format(time.RFC3339), 0)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}
	if created {
		if _, err := a.store.IncrBy(ctx, "stats:global:users", 1); err != nil {
			return fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
		}
	}

	increments := []struct {
		key   string
		delta int64
	}{
		{"stats:user:" + user + ":downloads", 1},
		{"stats:user:" + user + ":bytes", bytes},
		{"stats:user:" + user + ":tier:" + tier.String(), 1},
		{"stats:user:" + user + ":day:" + date + ":tier:" + tier.String(), 1},
		{"stats:daily:" + date + ":downloads", 1},
		{"stats:daily:" + date + ":bytes", bytes},
		{"stats:daily:" + date + ":tier:" + tier.String(), 1},
		{"stats:global:downloads", 1},
		{"stats:global:bytes", bytes},
		{"stats:global:tier:" + tier.String(), 1},
	}

	for _, inc := range increments {
		if _, err := a.store.IncrBy(ctx, inc.key, inc.delta); err != nil {
			return fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
		}
	}

	if _, err := a.store.SortedIncrBy(ctx, leaderboardKey, user, 1); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}

	slog.Info("recorded download", "user_id", userID, "tier", tier.String(), "bytes", bytes, "date", date)
	return nil
}

// Global returns the process-wide totals.
func (a *Aggregator) Global(ctx context.Context) (*GlobalStats, error) {
	g := &GlobalStats{ByTier: make(map[string]int64)}

	var err error
	if g.TotalUsers, err = a.getInt(ctx, "stats:global:users"); err != nil {
		return nil, err
	}
	if g.TotalDownloads, err = a.getInt(ctx, "stats:global:downloads"); err != nil {
		return nil, err
	}
	if g.TotalBytes, err = a.getInt(ctx, "stats:global:bytes"); err != nil {
		return nil, err
	}

	for _, tier := range model.Tiers() {
		n, err := a.getInt(ctx, "stats:global:tier:"+tier.String())
		if err != nil {
			return nil, err
		}
		g.ByTier[tier.String()] = n
	}
	return g, nil
}

// Daily returns aggregate counts for the trailing window of days, most
// recent day first.
func (a *Aggregator) Daily(ctx context.Context, days int) ([]DailyStat, error) {
	if days <= 0 {
		days = 7
	}

	out := make([]DailyStat, 0, days)
	for i := 0; i < days; i++ {
		date := a.now().AddDate(0, 0, -i).Format(dateFormat)
		d := DailyStat{Date: date, ByTier: make(map[string]int64)}

		var err error
		if d.Downloads, err = a.getInt(ctx, "stats:daily:"+date+":downloads"); err != nil {
			return nil, err
		}
		if d.Bytes, err = a.getInt(ctx, "stats:daily:"+date+":bytes"); err != nil {
			return nil, err
		}
		for _, tier := range model.Tiers() {
			n, err := a.getInt(ctx, "stats:daily:"+date+":tier:"+tier.String())
			if err != nil {
				return nil, err
			}
			d.ByTier[tier.String()] = n
		}
		out = append(out, d)
	}
	return out, nil
}

// TodayDownloads returns today's download count, shared with /health.
func (a *Aggregator) TodayDownloads(ctx context.Context) (int64, error) {
	return a.getInt(ctx, "stats:daily:"+a.now().Format(dateFormat)+":downloads")
}

// TopUsers returns the k users with the highest download counts, ties broken
// by earliest first-seen. The leaderboard is over-fetched because the store
// orders by score only.
func (a *Aggregator) TopUsers(ctx context.Context, k int) ([]TopUser, error) {
	if k <= 0 {
		return nil, nil
	}

	members, err := a.store.SortedTop(ctx, leaderboardKey, int64(k*3))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}

	users := make([]TopUser, 0, len(members))
	for _, m := range members {
		uid, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}

		u := TopUser{UserID: uid, Downloads: int64(m.Score)}
		if u.Bytes, err = a.getInt(ctx, "stats:user:"+m.Member+":bytes"); err != nil {
			return nil, err
		}
		if raw, err := a.store.Get(ctx, "stats:user:"+m.Member+":first_seen"); err == nil {
			u.FirstSeen, _ = time.Parse(time.RFC3339, raw)
		}
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].Downloads != users[j].Downloads {
			return users[i].Downloads > users[j].Downloads
		}
		if !users[i].FirstSeen.Equal(users[j].FirstSeen) {
			return users[i].FirstSeen.Before(users[j].FirstSeen)
		}
		return users[i].UserID < users[j].UserID
	})

	if len(users) > k {
		users = users[:k]
	}
	return users, nil
}

// User returns one user's summary, including their leaderboard rank.
func (a *Aggregator) User(ctx context.Context, userID int64) (*UserSummary, error) {
	user := strconv.FormatInt(userID, 10)
	s := &UserSummary{UserID: userID, ByTier: make(map[string]int64)}

	var err error
	if s.Downloads, err = a.getInt(ctx, "stats:user:"+user+":downloads"); err != nil {
		return nil, err
	}
	if s.Bytes, err = a.getInt(ctx, "stats:user:"+user+":bytes"); err != nil {
		return nil, err
	}
	for _, tier := range model.Tiers() {
		n, err := a.getInt(ctx, "stats:user:"+user+":tier:"+tier.String())
		if err != nil {
			return nil, err
		}
		s.ByTier[tier.String()] = n
	}

	rank, err := a.store.SortedRank(ctx, leaderboardKey, user)
	switch {
	case err == nil:
		s.Rank = rank + 1
	case errors.Is(err, store.ErrNotFound):
		s.Rank = 0
	default:
		return nil, fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}

	return s, nil
}

// getInt reads an integer counter, treating a missing key as zero.
func (a *Aggregator) getInt(ctx context.Context, key string) (int64, error) {
	raw, err := a.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds non-integer %q", key, raw)
	}
	return n, nil
}
