// Package cache holds the Redis projection of session records. Entries
// are derived, expendable state: the store remains the fallback source of
// truth, so a lost or evicted entry only costs one extra round-trip.
//
// Because Redis receives no revocation push, a revoked session can be
// served from cache until its TTL lapses or a Revoke* operation evicts
// the key. Revocations always delete their keys synchronously, so the
// residual staleness window is bounded by the cache TTL. This trade-off
// is accepted by design; do not add an invalidation broadcast here.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every Redis transport failure so callers can treat
// the cache as a single dependency.
var ErrUnavailable = errors.New("session cache unavailable")

// DefaultPrefix is the key namespace: "session:<sessionId>".
const DefaultPrefix = "session"

// Entry is the cached projection of a session joined with its user.
type Entry struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expiresAt"`
	DeviceID   string    `json:"deviceId,omitempty"`
	DeviceName string    `json:"deviceName,omitempty"`
}

// Sessions is the Redis-backed session projection store.
type Sessions struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewSessions creates a projection store on the given client. An empty
// prefix selects DefaultPrefix.
func NewSessions(rdb redis.UniversalClient, prefix string) *Sessions {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sessions{rdb: rdb, prefix: prefix}
}

func (s *Sessions) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Get returns the cached entry or (nil, nil) on a miss. A corrupt entry
// is deleted and reported as a miss so the read path self-heals from the
// store.
func (s *Sessions) Get(ctx context.Context, sessionID string) (*Entry, error) {
	data, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = s.rdb.Del(ctx, s.key(sessionID)).Err()
		return nil, nil
	}
	return &e, nil
}

// Set writes the projection with the given TTL.
func (s *Sessions) Set(ctx context.Context, sessionID string, e *Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete evicts the given session projections. Missing keys are fine.
func (s *Sessions) Delete(ctx context.Context, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		keys = append(keys, s.key(id))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
