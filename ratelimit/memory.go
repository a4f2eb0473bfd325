package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is an in-process fixed-window limiter. All state sits
// behind one mutex so Limit and Sweep are safe to call concurrently; the
// sweep only evicts windows that have already reset, so running it has no
// observable effect on decisions.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter builds an in-process limiter. Callers that keep one
// for the process lifetime should also run StartSweeper to bound memory.
func NewMemoryLimiter(max int, windowSize time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		max:     max,
		window:  windowSize,
		now:     time.Now,
	}
}

// Limit counts one attempt for key and decides.
func (l *MemoryLimiter) Limit(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !w.resetAt.After(now) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}

	w.count++
	if w.count > l.max {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.max - w.count}, nil
}

// Sweep evicts windows that have already reset.
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if !w.resetAt.After(now) {
			delete(l.windows, key)
		}
	}
}

// StartSweeper runs Sweep on a fixed interval until the returned stop
// function is called.
func (l *MemoryLimiter) StartSweeper(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
