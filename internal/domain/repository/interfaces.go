package repository

import (
	"context"
	"time"

	"SignalDesk/internal/domain/models"
)

type SignalFilter struct {
	Date   *time.Time
	Status models.SignalStatus
	Limit  int
}

// SignalRepository persists pending signals. Mutating methods run their
// callback inside a transaction holding row locks, so a concurrent caller for
// the same rows waits instead of losing an update.
type SignalRepository interface {
	// InsertPending stores new PENDING rows and ignores ones whose
	// (symbol, date, strategy) already exists. Returns the inserted count.
	InsertPending(ctx context.Context, signals []models.PendingSignal) (int, error)
	Get(ctx context.Context, id uint64) (*models.PendingSignal, error)
	List(ctx context.Context, f SignalFilter) ([]models.PendingSignal, error)
	// PendingOn returns every PENDING signal of date, without a row limit.
	PendingOn(ctx context.Context, date time.Time) ([]models.PendingSignal, error)
	// ListPending returns PENDING signals dated on or before upTo.
	ListPending(ctx context.Context, upTo time.Time) ([]models.PendingSignal, error)
	// MutatePending locks the PENDING signals of date, hands them to fn and
	// saves their rank fields.
	MutatePending(ctx context.Context, date time.Time, fn func([]*models.PendingSignal) error) (int, error)
	// Decide locks one signal, applies fn and saves its status.
	Decide(ctx context.Context, id uint64, fn func(*models.PendingSignal) error) (*models.PendingSignal, error)
	// Execute locks one signal, lets fn transition it and build the position,
	// then saves both atomically.
	Execute(ctx context.Context, id uint64, fn func(*models.PendingSignal) (*models.Position, error)) (*models.PendingSignal, *models.Position, error)
}

type PositionFilter struct {
	Status models.PositionStatus
	Limit  int
}

type PositionRepository interface {
	Get(ctx context.Context, id uint64) (*models.Position, error)
	List(ctx context.Context, f PositionFilter) ([]models.Position, error)
	// Update locks one position, applies fn and saves it.
	Update(ctx context.Context, id uint64, fn func(*models.Position) error) (*models.Position, error)
	// WinRate returns the profitable share of closed positions for a strategy
	// code and the number of closed positions it is based on.
	WinRate(ctx context.Context, strategyCode string) (float64, int, error)
}

type AllocationRepository interface {
	// Allocate reads the PENDING signals of date in rank order, passes them
	// to simulate and stores the snapshot, all in one transaction.
	Allocate(ctx context.Context, date time.Time, simulate func([]models.PendingSignal) (*models.AllocationSnapshot, error)) (*models.AllocationSnapshot, error)
	Latest(ctx context.Context, date time.Time) (*models.AllocationSnapshot, error)
	// LatestForSignal returns the newest committed allocation for a signal,
	// or nil when none exists.
	LatestForSignal(ctx context.Context, signalID uint64) (*models.AllocationPosition, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Close() error
}

// QuoteProvider returns the latest traded price for a symbol.
type QuoteProvider interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// RunLocker hands out short leases keyed by name.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// JobDispatcher schedules background work by job type.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobType string, payload any) error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSignals(stage string, n int)
	RecordTransition(entity, status string)
	RecordDeployed(date string, pct float64)
}
