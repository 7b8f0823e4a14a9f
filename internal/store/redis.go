package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis server. Every operation maps to a
// single Redis command, so the atomicity guarantees come straight from the
// server.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance described by url
// (redis://[user:pass@]host:port/db) and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	val, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	if d < 0 {
		// -1 (no expiry) and -2 (missing key) both normalize to zero.
		return 0, nil
	}
	return d, nil
}

func (s *RedisStore) SortedIncrBy(ctx context.Context, key, member string, delta float64) (float64, error) {
	score, err := s.client.ZIncrBy(ctx, key, delta, member).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zincrby %s: %w", key, err)
	}
	return score, nil
}

func (s *RedisStore) SortedTop(ctx context.Context, key string, k int64) ([]ScoredMember, error) {
	if k <= 0 {
		return nil, nil
	}

	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, k-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange %s: %w", key, err)
	}

	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

func (s *RedisStore) SortedRank(ctx context.Context, key, member string) (int64, error) {
	rank, err := s.client.ZRevRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis zrevrank %s: %w", key, err)
	}
	return rank, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
