package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryLimiterAllowsUpToMax(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Limit(ctx, "k")
		if err != nil {
			t.Fatalf("limit %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d rejected", i+1)
		}
		if d.Remaining != 3-(i+1) {
			t.Fatalf("attempt %d remaining = %d", i+1, d.Remaining)
		}
	}

	d, err := l.Limit(ctx, "k")
	if err != nil {
		t.Fatalf("limit over max: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected rejection past max")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after: %v", d.RetryAfter)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	if d, _ := l.Limit(ctx, "a"); !d.Allowed {
		t.Fatal("first attempt on a rejected")
	}
	if d, _ := l.Limit(ctx, "a"); d.Allowed {
		t.Fatal("second attempt on a allowed")
	}
	if d, _ := l.Limit(ctx, "b"); !d.Allowed {
		t.Fatal("fresh key b throttled by key a")
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	clock := time.Now()
	l.now = func() time.Time { return clock }

	if d, _ := l.Limit(ctx, "k"); !d.Allowed {
		t.Fatal("first attempt rejected")
	}
	if d, _ := l.Limit(ctx, "k"); d.Allowed {
		t.Fatal("second attempt in window allowed")
	}

	clock = clock.Add(time.Minute + time.Second)
	if d, _ := l.Limit(ctx, "k"); !d.Allowed {
		t.Fatal("attempt after window reset rejected")
	}
}

func TestMemoryLimiterSweepEvictsOnlyExpired(t *testing.T) {
	l := NewMemoryLimiter(5, time.Minute)
	ctx := context.Background()

	clock := time.Now()
	l.now = func() time.Time { return clock }

	if _, err := l.Limit(ctx, "old"); err != nil {
		t.Fatalf("limit old: %v", err)
	}
	clock = clock.Add(30 * time.Second)
	if _, err := l.Limit(ctx, "fresh"); err != nil {
		t.Fatalf("limit fresh: %v", err)
	}

	clock = clock.Add(45 * time.Second) // old has reset, fresh has not
	l.Sweep()

	l.mu.Lock()
	_, oldKept := l.windows["old"]
	_, freshKept := l.windows["fresh"]
	l.mu.Unlock()

	if oldKept {
		t.Fatal("expired window survived sweep")
	}
	if !freshKept {
		t.Fatal("live window evicted by sweep")
	}
}

func TestMemoryLimiterConcurrentCounts(t *testing.T) {
	l := NewMemoryLimiter(100, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	allowed := make([]bool, 150)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := l.Limit(ctx, "k")
			if err != nil {
				t.Errorf("limit: %v", err)
				return
			}
			allowed[i] = d.Allowed
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", count)
	}
}

func TestStartSweeperStopIsIdempotent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Millisecond)
	stop := l.StartSweeper(time.Millisecond)
	stop()
	stop() // second call must not panic
}
