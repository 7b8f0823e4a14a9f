package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing key, got %v", err)
	}

	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "v" {
		t.Errorf("Expected 'v', got '%s'", val)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := s.TTL(ctx, "k")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl != time.Minute {
		t.Errorf("Expected TTL 1m, got %s", ttl)
	}

	// Advance past the expiry
	now = now.Add(61 * time.Second)
	s.SetClock(func() time.Time { return now })

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired key to be gone, got %v", err)
	}
}

func TestMemoryStore_SetNX(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", "first", 0)
	if err != nil || !ok {
		t.Fatalf("Expected first SetNX to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = s.SetNX(ctx, "k", "second", 0)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if ok {
		t.Error("Expected second SetNX to report no write")
	}

	val, _ := s.Get(ctx, "k")
	if val != "first" {
		t.Errorf("Expected value 'first' to survive, got '%s'", val)
	}
}

func TestMemoryStore_IncrByConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := s.IncrBy(ctx, "counter", 1); err != nil {
					t.Errorf("IncrBy failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	total, err := s.IncrBy(ctx, "counter", 0)
	if err != nil {
		t.Fatalf("IncrBy failed: %v", err)
	}
	if total != workers*perWorker {
		t.Errorf("Expected %d, got %d (lost updates)", workers*perWorker, total)
	}
}

func TestMemoryStore_SortedSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.SortedIncrBy(ctx, "board", "alice", 1); err != nil {
			t.Fatalf("SortedIncrBy failed: %v", err)
		}
	}
	if _, err := s.SortedIncrBy(ctx, "board", "bob", 1); err != nil {
		t.Fatalf("SortedIncrBy failed: %v", err)
	}

	top, err := s.SortedTop(ctx, "board", 10)
	if err != nil {
		t.Fatalf("SortedTop failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(top))
	}
	if top[0].Member != "alice" || top[0].Score != 3 {
		t.Errorf("Expected alice with score 3 first, got %+v", top[0])
	}

	rank, err := s.SortedRank(ctx, "board", "bob")
	if err != nil {
		t.Fatalf("SortedRank failed: %v", err)
	}
	if rank != 1 {
		t.Errorf("Expected bob at rank 1, got %d", rank)
	}

	if _, err := s.SortedRank(ctx, "board", "carol"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for absent member, got %v", err)
	}
}
