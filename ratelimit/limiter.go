// Package ratelimit provides the throttle capability consumed by the
// rate-limit gate. The gate is a pass-through policy layer; the actual
// counting lives here, either in Redis (fixed window, shared across
// processes) or in an in-process map with a periodic sweep.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Limit call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the action identified by key may proceed.
type Limiter interface {
	Limit(ctx context.Context, key string) (Decision, error)
}
