package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

const insertBatchSize = 500

// Store persists signals, positions and allocation snapshots in Postgres.
// One Store satisfies SignalRepository, PositionRepository and
// AllocationRepository; DI exposes it through three narrow views.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables SignalDesk owns.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.PendingSignal{},
		&models.Position{},
		&models.AllocationSnapshot{},
		&models.AllocationPosition{},
	)
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// --- signals ----------------------------------------------------------------

func (s *Store) InsertPending(ctx context.Context, signals []models.PendingSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "trade_date"}, {Name: "strategy_code"}},
		DoNothing: true,
	}).CreateInBatches(&signals, insertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert pending: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) Get(ctx context.Context, id uint64) (*models.PendingSignal, error) {
	var sig models.PendingSignal
	if err := s.db.WithContext(ctx).First(&sig, id).Error; err != nil {
		return nil, signalErr(err, id)
	}
	return &sig, nil
}

func (s *Store) List(ctx context.Context, f domrepo.SignalFilter) ([]models.PendingSignal, error) {
	query := s.db.WithContext(ctx).Model(&models.PendingSignal{})
	if f.Date != nil {
		query = query.Where("trade_date = ?", *f.Date)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	var items []models.PendingSignal
	err := query.Order("rank_score desc").Order("id asc").
		Limit(normalizeLimit(f.Limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return items, nil
}

func (s *Store) PendingOn(ctx context.Context, date time.Time) ([]models.PendingSignal, error) {
	var items []models.PendingSignal
	err := s.db.WithContext(ctx).
		Where("trade_date = ? AND status = ?", date, models.SignalPending).
		Order("rank_score desc").Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("pending on %s: %w", date.Format("2006-01-02"), err)
	}
	return items, nil
}

func (s *Store) ListPending(ctx context.Context, upTo time.Time) ([]models.PendingSignal, error) {
	var items []models.PendingSignal
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SignalPending).
		Where("trade_date <= ?", upTo).
		Order("rank_score desc").Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return items, nil
}

func (s *Store) MutatePending(ctx context.Context, date time.Time, fn func([]*models.PendingSignal) error) (int, error) {
	n := 0
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		var rows []models.PendingSignal
		if err := forUpdate(tx).
			Where("trade_date = ? AND status = ?", date, models.SignalPending).
			Order("id asc").
			Find(&rows).Error; err != nil {
			return fmt.Errorf("lock pending: %w", err)
		}
		ptrs := make([]*models.PendingSignal, len(rows))
		for i := range rows {
			ptrs[i] = &rows[i]
		}
		if err := fn(ptrs); err != nil {
			return err
		}
		for _, r := range rows {
			if err := tx.Model(&models.PendingSignal{}).Where("id = ?", r.ID).Updates(map[string]any{
				"rank_score":     r.RankScore,
				"r_multiple":     r.RMultiple,
				"liquidity":      r.Liquidity,
				"volatility_fit": r.VolatilityFit,
			}).Error; err != nil {
				return fmt.Errorf("save rank %d: %w", r.ID, err)
			}
		}
		n = len(rows)
		return nil
	})
	return n, err
}

func (s *Store) Decide(ctx context.Context, id uint64, fn func(*models.PendingSignal) error) (*models.PendingSignal, error) {
	var sig models.PendingSignal
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&sig, id).Error; err != nil {
			return signalErr(err, id)
		}
		if err := fn(&sig); err != nil {
			return err
		}
		return saveDecision(tx, &sig)
	})
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *Store) Execute(ctx context.Context, id uint64, fn func(*models.PendingSignal) (*models.Position, error)) (*models.PendingSignal, *models.Position, error) {
	var (
		sig models.PendingSignal
		pos *models.Position
	)
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&sig, id).Error; err != nil {
			return signalErr(err, id)
		}
		p, err := fn(&sig)
		if err != nil {
			return err
		}
		if err := saveDecision(tx, &sig); err != nil {
			return err
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create position: %w", err)
		}
		pos = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &sig, pos, nil
}

func saveDecision(tx *gorm.DB, sig *models.PendingSignal) error {
	err := tx.Model(sig).Updates(map[string]any{
		"status":     sig.Status,
		"decided_at": sig.DecidedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("save signal %d: %w", sig.ID, err)
	}
	return nil
}

func signalErr(err error, id uint64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", models.ErrSignalNotFound, id)
	}
	return fmt.Errorf("get signal %d: %w", id, err)
}

// --- positions --------------------------------------------------------------

// PositionStore is the PositionRepository view of Store.
type PositionStore struct{ *Store }

func (s PositionStore) Get(ctx context.Context, id uint64) (*models.Position, error) {
	var p models.Position
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, positionErr(err, id)
	}
	return &p, nil
}

func (s PositionStore) List(ctx context.Context, f domrepo.PositionFilter) ([]models.Position, error) {
	query := s.db.WithContext(ctx).Model(&models.Position{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	var items []models.Position
	if err := query.Order("id asc").Limit(normalizeLimit(f.Limit, 1000)).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return items, nil
}

func (s PositionStore) Update(ctx context.Context, id uint64, fn func(*models.Position) error) (*models.Position, error) {
	var p models.Position
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&p, id).Error; err != nil {
			return positionErr(err, id)
		}
		if err := fn(&p); err != nil {
			return err
		}
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("save position %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s PositionStore) WinRate(ctx context.Context, strategyCode string) (float64, int, error) {
	var row struct {
		Closed int64
		Wins   int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Position{}).
		Select("COUNT(*) AS closed, COUNT(*) FILTER (WHERE realized_pnl > 0) AS wins").
		Where("strategy_code = ? AND status = ?", strategyCode, models.PositionClosed).
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("win rate %s: %w", strategyCode, err)
	}
	if row.Closed == 0 {
		return 0, 0, nil
	}
	return float64(row.Wins) / float64(row.Closed), int(row.Closed), nil
}

func positionErr(err error, id uint64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", models.ErrPositionNotFound, id)
	}
	return fmt.Errorf("get position %d: %w", id, err)
}

// --- allocations ------------------------------------------------------------

// AllocationStore is the AllocationRepository view of Store.
type AllocationStore struct{ *Store }

func (s AllocationStore) Allocate(ctx context.Context, date time.Time, simulate func([]models.PendingSignal) (*models.AllocationSnapshot, error)) (*models.AllocationSnapshot, error) {
	var snap *models.AllocationSnapshot
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		var candidates []models.PendingSignal
		if err := forUpdate(tx).
			Where("trade_date = ? AND status = ?", date, models.SignalPending).
			Order("rank_score desc").Order("id asc").
			Find(&candidates).Error; err != nil {
			return fmt.Errorf("lock candidates: %w", err)
		}
		out, err := simulate(candidates)
		if err != nil {
			return err
		}
		if err := tx.Create(out).Error; err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
		snap = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s AllocationStore) Latest(ctx context.Context, date time.Time) (*models.AllocationSnapshot, error) {
	var snap models.AllocationSnapshot
	err := s.db.WithContext(ctx).
		Preload("Positions", func(db *gorm.DB) *gorm.DB { return db.Order("rank asc") }).
		Where("run_date = ?", date).
		Order("created_at desc").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &snap, nil
}

func (s AllocationStore) LatestForSignal(ctx context.Context, signalID uint64) (*models.AllocationPosition, error) {
	var items []models.AllocationPosition
	err := s.db.WithContext(ctx).
		Table("allocation_positions AS p").
		Select("p.*").
		Joins("JOIN allocation_snapshots AS s ON s.id = p.snapshot_id").
		Where("p.signal_id = ?", signalID).
		Order("s.created_at desc").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("allocation for signal %d: %w", signalID, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 5000 {
		return 5000
	}
	return limit
}
