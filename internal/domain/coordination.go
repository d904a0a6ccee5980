package domain

import (
	"context"
	"time"
)

// LockManager provides mutual exclusion across process instances. Acquire
// returns an unlock function on success and ErrLockHeld when another holder
// has the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles requests per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
