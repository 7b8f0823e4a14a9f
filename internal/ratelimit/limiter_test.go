package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/store"
)

func TestAdmit_DeniesAfterLimit(t *testing.T) {
	mem := store.NewMemoryStore()
	l := New(mem, 5, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Admit(ctx, 42)
		if err != nil {
			t.Fatalf("Admission %d failed: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("Expected admission %d to be allowed", i+1)
		}
		if d.Remaining != int64(4-i) {
			t.Errorf("Expected %d remaining after admission %d, got %d", 4-i, i+1, d.Remaining)
		}
	}

	d, err := l.Admit(ctx, 42)
	if d.Allowed {
		t.Fatal("Expected 6th request to be denied")
	}
	var rl *model.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected RateLimitError, got %v", err)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("Expected positive RetryAfter, got %s", d.RetryAfter)
	}
}

func TestAdmit_DenialDoesNotConsumeQuota(t *testing.T) {
	mem := store.NewMemoryStore()
	l := New(mem, 1, time.Hour)
	ctx := context.Background()

	if d, _ := l.Admit(ctx, 7); !d.Allowed {
		t.Fatal("Expected first admission to pass")
	}

	// Repeated denials must not inflate the stored count.
	for i := 0; i < 3; i++ {
		if d, _ := l.Admit(ctx, 7); d.Allowed {
			t.Fatalf("Expected denial on attempt %d", i+1)
		}
	}

	count, err := mem.IncrBy(ctx, "ratelimit:user:7", 0)
	if err != nil {
		t.Fatalf("Reading counter failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected counter to stay at 1, got %d", count)
	}
}

func TestAdmit_WindowResets(t *testing.T) {
	mem := store.NewMemoryStore()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	l := New(mem, 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.Admit(ctx, 9); !d.Allowed {
			t.Fatalf("Expected admission %d to pass", i+1)
		}
	}
	if d, _ := l.Admit(ctx, 9); d.Allowed {
		t.Fatal("Expected denial at the limit")
	}

	// Step just past the window boundary: counter expires, quota is fresh.
	now = now.Add(time.Hour + time.Second)
	mem.SetClock(func() time.Time { return now })

	d, err := l.Admit(ctx, 9)
	if err != nil {
		t.Fatalf("Admission after reset failed: %v", err)
	}
	if !d.Allowed {
		t.Fatal("Expected admission to pass after window reset")
	}
	if d.Remaining != 1 {
		t.Errorf("Expected fresh window with 1 remaining, got %d", d.Remaining)
	}
}

func TestAdmit_ConcurrentRequestsNeverOverAdmit(t *testing.T) {
	mem := store.NewMemoryStore()
	const limit = 5
	l := New(mem, limit, time.Hour)
	ctx := context.Background()

	// A burst of simultaneous requests for one user: the increment decides
	// admission atomically, so exactly limit of them get through, no matter
	// how the goroutines interleave.
	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Admit(ctx, 42)
			if err == nil && d.Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("Expected exactly %d admissions under concurrency, got %d", limit, admitted)
	}

	count, err := mem.IncrBy(ctx, "ratelimit:user:42", 0)
	if err != nil {
		t.Fatalf("Reading counter failed: %v", err)
	}
	if count != limit {
		t.Errorf("Expected counter settled at %d after denials rolled back, got %d", limit, count)
	}
}

func TestAdmit_PerUserIsolation(t *testing.T) {
	mem := store.NewMemoryStore()
	l := New(mem, 1, time.Hour)
	ctx := context.Background()

	if d, _ := l.Admit(ctx, 1); !d.Allowed {
		t.Fatal("Expected user 1 to be admitted")
	}
	if d, _ := l.Admit(ctx, 1); d.Allowed {
		t.Fatal("Expected user 1 to be denied")
	}
	if d, _ := l.Admit(ctx, 2); !d.Allowed {
		t.Fatal("Expected user 2 to be unaffected by user 1's quota")
	}
}

// failingStore simulates an unreachable backing store.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) IncrBy(context.Context, string, int64) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestAdmit_FailsClosedOnStorageFailure(t *testing.T) {
	l := New(&failingStore{store.NewMemoryStore()}, 5, time.Hour)

	d, err := l.Admit(context.Background(), 3)
	if d.Allowed {
		t.Fatal("Expected limiter to fail closed when the store is down")
	}
	if !errors.Is(err, model.ErrStorageFailure) {
		t.Errorf("Expected ErrStorageFailure, got %v", err)
	}

	var rl *model.RateLimitError
	if errors.As(err, &rl) {
		t.Error("Storage failure must be distinguishable from rate limiting")
	}
}
