package usecase

import (
	"context"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/util"
)

func leaseKey(date time.Time, market domrepo.Market) string {
	return fmt.Sprintf("run:%s:%s", util.FormatDate(date), domrepo.NormalizeMarket(string(market)))
}

// withLease runs fn while holding key. A held key yields ErrRunInProgress.
// A nil locker runs fn unguarded.
func withLease(ctx context.Context, locker domrepo.RunLocker, key string, ttl time.Duration, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	ok, err := locker.Acquire(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrRunInProgress, key)
	}
	defer func() {
		// release on a fresh context so a cancelled run still frees the key
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = locker.Release(rctx, key)
	}()
	return fn(ctx)
}
