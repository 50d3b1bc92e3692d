package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the key-value surface SignalDesk needs: JSON values with TTL
// and short-lived exclusive locks.
type Service interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Get decodes the value stored under key into dest, or returns
	// ErrCacheMiss.
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
	// TryLock takes key for ttl if nobody holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}
