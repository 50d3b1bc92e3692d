package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type AllocationParams struct {
	Date            time.Time
	TotalCapital    float64
	RiskPerTradePct float64 // percent units, 1 means 1%
	MaxOpenTrades   int
}

func (p AllocationParams) Validate() error {
	switch {
	case p.TotalCapital <= 0:
		return fmt.Errorf("%w: total capital must be positive", models.ErrInvalidAllocation)
	case p.RiskPerTradePct <= 0 || p.RiskPerTradePct > 100:
		return fmt.Errorf("%w: risk per trade must be in (0, 100]", models.ErrInvalidAllocation)
	case p.MaxOpenTrades <= 0:
		return fmt.Errorf("%w: max open trades must be positive", models.ErrInvalidAllocation)
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// Simulate greedily sizes candidates in rank order. Candidates with a missing
// or inverted stop, or that size to zero shares, are skipped without using a
// slot. Processing stops after MaxOpenTrades commits or once free capital
// drops below twice the per-trade risk.
func Simulate(candidates []models.PendingSignal, p AllocationParams) (*models.AllocationSnapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ranked := make([]models.PendingSignal, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RankScore != ranked[j].RankScore {
			return ranked[i].RankScore > ranked[j].RankScore
		}
		return ranked[i].ID < ranked[j].ID
	})

	total := decimal.NewFromFloat(p.TotalCapital)
	riskAmount := total.Mul(decimal.NewFromFloat(p.RiskPerTradePct)).Div(hundred)
	floor := riskAmount.Mul(decimal.NewFromInt(2))
	available := total

	snap := &models.AllocationSnapshot{
		RunDate:         util.Day(p.Date),
		TotalCapital:    total,
		RiskPerTradePct: p.RiskPerTradePct,
		MaxOpenTrades:   p.MaxOpenTrades,
	}

	for _, c := range ranked {
		if len(snap.Positions) >= p.MaxOpenTrades {
			break
		}
		if c.Entry <= 0 || c.StopLoss <= 0 || c.StopLoss >= c.Entry {
			continue
		}
		entry := decimal.NewFromFloat(c.Entry)
		perShare := entry.Sub(decimal.NewFromFloat(c.StopLoss))

		qty := riskAmount.Div(perShare).Floor()
		if qty.Mul(entry).GreaterThan(available) {
			qty = available.Div(entry).Floor()
		}
		if !qty.IsPositive() {
			continue
		}

		used := qty.Mul(entry)
		expectedR := models.RMultiple(c.Entry, c.StopLoss, c.Target)
		available = available.Sub(used)
		snap.ExpectedR += expectedR
		snap.Positions = append(snap.Positions, models.AllocationPosition{
			Rank:          len(snap.Positions) + 1,
			SignalID:      c.ID,
			Symbol:        c.Symbol,
			Quantity:      qty.IntPart(),
			Entry:         c.Entry,
			StopLoss:      c.StopLoss,
			CapitalUsed:   used,
			RiskAmount:    riskAmount,
			ExpectedR:     expectedR,
			AllocationPct: used.Div(total).Mul(hundred).InexactFloat64(),
		})

		if available.LessThan(floor) {
			break
		}
	}

	snap.FreeCapital = available
	snap.DeployedCapital = total.Sub(available)
	return snap, nil
}

type AllocationService struct {
	allocations domrepo.AllocationRepository
	events      emitter
	lgr         *applogger.Logger
	metrics     domrepo.Metrics
	now         func() time.Time
}

func NewAllocationService(allocations domrepo.AllocationRepository, publisher domrepo.EventPublisher, lgr *applogger.Logger, metrics domrepo.Metrics) *AllocationService {
	return &AllocationService{
		allocations: allocations,
		events:      emitter{pub: publisher, lgr: lgr, now: time.Now},
		lgr:         lgr,
		metrics:     metricsOrNop(metrics),
		now:         time.Now,
	}
}

// Allocate simulates over the date's PENDING signals and stores the snapshot
// in the same transaction.
func (s *AllocationService) Allocate(ctx context.Context, p AllocationParams) (*models.AllocationSnapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer observe(s.metrics, "allocate", start)

	date := util.Day(p.Date)
	p.Date = date
	snap, err := s.allocations.Allocate(ctx, date, func(candidates []models.PendingSignal) (*models.AllocationSnapshot, error) {
		snap, err := Simulate(candidates, p)
		if err != nil {
			return nil, err
		}
		snap.ID = uuid.NewString()
		snap.CreatedAt = s.now().UTC()
		return snap, nil
	})
	if err != nil {
		s.metrics.RecordError("allocate")
		return nil, fmt.Errorf("allocate %s: %w", util.FormatDate(date), err)
	}

	deployedPct := snap.DeployedCapital.Div(snap.TotalCapital).Mul(hundred).InexactFloat64()
	s.metrics.RecordDeployed(util.FormatDate(date), deployedPct)
	s.events.emit(ctx, models.EventAllocationCreated, util.FormatDate(date), snap)

	s.lgr.Info("allocation created",
		applogger.String("snapshot_id", snap.ID),
		applogger.Date("date", date),
		applogger.Int("positions", len(snap.Positions)),
		applogger.String("deployed", snap.DeployedCapital.StringFixed(2)),
		applogger.Float64("expected_r", snap.ExpectedR))
	return snap, nil
}

func (s *AllocationService) Latest(ctx context.Context, date time.Time) (*models.AllocationSnapshot, error) {
	snap, err := s.allocations.Latest(ctx, util.Day(date))
	if err != nil {
		return nil, fmt.Errorf("latest allocation: %w", err)
	}
	return snap, nil
}
