package cache

import (
	"context"
	"time"
)

// Store is the key/value contract shared by the database, Redis and in-process tiers.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	// PurgeExpired removes entries past their expiry and reports how many were dropped.
	// Stores that expire entries on their own return zero.
	PurgeExpired(ctx context.Context) (int64, error)
}

// Clock returns the current time. Stores default to time.Now.
type Clock func() time.Time

func nowOrDefault(clock Clock) Clock {
	if clock == nil {
		return time.Now
	}
	return clock
}
