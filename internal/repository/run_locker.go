package repository

import (
	"context"
	"time"

	pkgcache "SignalDesk/pkg/cache"
)

// CacheRunLocker hands out run leases from the shared cache: SET NX PX on
// Redis, or the in-process cache when Redis is disabled.
type CacheRunLocker struct {
	c pkgcache.Service
}

func NewCacheRunLocker(c pkgcache.Service) *CacheRunLocker {
	return &CacheRunLocker{c: c}
}

func (l *CacheRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.c.TryLock(ctx, key, ttl)
}

func (l *CacheRunLocker) Release(ctx context.Context, key string) error {
	return l.c.Unlock(ctx, key)
}
