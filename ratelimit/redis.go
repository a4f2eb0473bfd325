package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport failures.
var ErrUnavailable = errors.New("rate limiter unavailable")

// RedisLimiter is a fixed-window counter: INCR on every call, EXPIRE on
// the first call of a window, reject once the count exceeds the maximum.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter builds a fixed-window limiter. prefix namespaces the
// counter keys, e.g. "rl".
func NewRedisLimiter(rdb redis.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, max: max, window: window}
}

// Limit counts one attempt for key and decides.
func (l *RedisLimiter) Limit(ctx context.Context, key string) (Decision, error) {
	counter := l.prefix + ":" + key

	count, err := l.rdb.Incr(ctx, counter).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, counter, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(l.max) {
		retry := l.window
		if ttl, err := l.rdb.TTL(ctx, counter).Result(); err == nil && ttl > 0 {
			retry = ttl
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	return Decision{Allowed: true, Remaining: l.max - int(count)}, nil
}
