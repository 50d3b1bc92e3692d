package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type LifecycleConfig struct {
	// MaxHoldDays closes positions held this long with reason TIME. 0 disables.
	MaxHoldDays int
}

type LifecycleService struct {
	signals     domrepo.SignalRepository
	positions   domrepo.PositionRepository
	allocations domrepo.AllocationRepository
	quotes      domrepo.QuoteProvider
	cfg         LifecycleConfig
	events      emitter
	lgr         *applogger.Logger
	metrics     domrepo.Metrics
	now         func() time.Time
}

func NewLifecycleService(
	signals domrepo.SignalRepository,
	positions domrepo.PositionRepository,
	allocations domrepo.AllocationRepository,
	quotes domrepo.QuoteProvider,
	publisher domrepo.EventPublisher,
	cfg LifecycleConfig,
	lgr *applogger.Logger,
	metrics domrepo.Metrics,
) *LifecycleService {
	return &LifecycleService{
		signals:     signals,
		positions:   positions,
		allocations: allocations,
		quotes:      quotes,
		cfg:         cfg,
		events:      emitter{pub: publisher, lgr: lgr, now: time.Now},
		lgr:         lgr,
		metrics:     metricsOrNop(metrics),
		now:         time.Now,
	}
}

// BatchResult summarises one periodic lifecycle pass.
type BatchResult struct {
	Processed    int      `json:"processed"`
	Transitioned int      `json:"transitioned"`
	Skipped      int      `json:"skipped"`
	Failed       int      `json:"failed"`
	FailedSyms   []string `json:"failed_symbols,omitempty"`
}

func (r *BatchResult) fail(symbol string) {
	r.Failed++
	r.FailedSyms = append(r.FailedSyms, symbol)
}

type ExecuteOptions struct {
	Quantity   *int64
	EntryPrice *float64
}

// ExecuteSignal moves a PENDING signal to EXECUTED and opens its position in
// one transaction. Without an explicit quantity the latest allocation for the
// signal is used; if the entry price is overridden as well, the quantity is
// capped so the position never costs more than the allocated capital.
func (s *LifecycleService) ExecuteSignal(ctx context.Context, id uint64, opts ExecuteOptions) (*models.PendingSignal, *models.Position, error) {
	qty, alloc, err := s.quantity(ctx, id, opts.Quantity)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	sig, pos, err := s.signals.Execute(ctx, id, func(sig *models.PendingSignal) (*models.Position, error) {
		entry := sig.Entry
		if opts.EntryPrice != nil {
			entry = *opts.EntryPrice
		}
		size := qty
		if alloc != nil && opts.EntryPrice != nil {
			size = capToAllocation(qty, alloc, entry)
		}
		if err := sig.Execute(now); err != nil {
			return nil, err
		}
		p, err := models.OpenPosition(sig, size, entry, now)
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("execute signal %d: %w", id, err)
	}
	s.afterExecute(ctx, sig, pos)
	return sig, pos, nil
}

// quantity resolves the position size. The allocation is returned when the
// size came from a snapshot.
func (s *LifecycleService) quantity(ctx context.Context, id uint64, explicit *int64) (int64, *models.AllocationPosition, error) {
	if explicit != nil {
		if *explicit <= 0 {
			return 0, nil, fmt.Errorf("%w: quantity must be positive", models.ErrInvalidSetup)
		}
		return *explicit, nil, nil
	}
	sig, err := s.signals.Get(ctx, id)
	if err != nil {
		return 0, nil, fmt.Errorf("get signal %d: %w", id, err)
	}
	if sig.Status.Terminal() {
		return 0, nil, fmt.Errorf("%w: signal %d is %s", models.ErrInvalidTransition, id, sig.Status)
	}
	alloc, err := s.allocations.LatestForSignal(ctx, id)
	if err != nil {
		return 0, nil, fmt.Errorf("allocation for signal %d: %w", id, err)
	}
	if alloc == nil || alloc.Quantity <= 0 {
		return 0, nil, fmt.Errorf("%w: signal %d has no allocation", models.ErrQuantityRequired, id)
	}
	return alloc.Quantity, alloc, nil
}

// capToAllocation lowers qty to floor(capitalUsed / entry) when entry is above
// the price the allocation was sized at.
func capToAllocation(qty int64, alloc *models.AllocationPosition, entry float64) int64 {
	if entry <= 0 || !alloc.CapitalUsed.IsPositive() {
		return qty
	}
	limit := alloc.CapitalUsed.Div(decimal.NewFromFloat(entry)).Floor().IntPart()
	if limit < qty {
		return limit
	}
	return qty
}

func (s *LifecycleService) afterExecute(ctx context.Context, sig *models.PendingSignal, pos *models.Position) {
	s.metrics.RecordTransition("signal", string(models.SignalExecuted))
	s.metrics.RecordTransition("position", string(models.PositionOpen))
	s.events.emit(ctx, models.EventSignalExecuted, sig.Symbol, sig)
	s.events.emit(ctx, models.EventPositionOpened, pos.Symbol, pos)
	s.lgr.Info("signal executed",
		applogger.Uint64("signal_id", sig.ID),
		applogger.Uint64("position_id", pos.ID),
		applogger.String("symbol", sig.Symbol),
		applogger.Int64("quantity", pos.Quantity),
		applogger.Float64("entry", pos.EntryPrice))
}

func (s *LifecycleService) IgnoreSignal(ctx context.Context, id uint64) (*models.PendingSignal, error) {
	now := s.now()
	sig, err := s.signals.Decide(ctx, id, func(sig *models.PendingSignal) error {
		return sig.Ignore(now)
	})
	if err != nil {
		return nil, fmt.Errorf("ignore signal %d: %w", id, err)
	}
	s.metrics.RecordTransition("signal", string(models.SignalIgnored))
	s.events.emit(ctx, models.EventSignalIgnored, sig.Symbol, sig)
	return sig, nil
}

// ClosePosition closes an OPEN position manually. A nil exit price uses the
// latest quote.
func (s *LifecycleService) ClosePosition(ctx context.Context, id uint64, exitPrice *float64) (*models.Position, error) {
	var price float64
	if exitPrice != nil {
		price = *exitPrice
	} else {
		current, err := s.positions.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get position %d: %w", id, err)
		}
		if price, err = s.quotes.LatestPrice(ctx, current.Symbol); err != nil {
			return nil, fmt.Errorf("quote %s: %w", current.Symbol, err)
		}
	}
	now := s.now()
	pos, err := s.positions.Update(ctx, id, func(p *models.Position) error {
		return p.Close(price, models.ExitManual, now)
	})
	if err != nil {
		return nil, fmt.Errorf("close position %d: %w", id, err)
	}
	s.afterClose(ctx, pos)
	return pos, nil
}

func (s *LifecycleService) afterClose(ctx context.Context, pos *models.Position) {
	s.metrics.RecordTransition("position", string(models.PositionClosed))
	s.events.emit(ctx, models.EventPositionClosed, pos.Symbol, pos)
	s.lgr.Info("position closed",
		applogger.Uint64("position_id", pos.ID),
		applogger.String("symbol", pos.Symbol),
		applogger.String("reason", string(pos.ExitReason)),
		applogger.Float64("pnl", models.Deref(pos.RealizedPnL)))
}

// quote fetches a price for a batch step. Failures are logged and counted
// by the caller, never returned.
func (s *LifecycleService) quote(ctx context.Context, symbol string) (float64, bool) {
	price, err := s.quotes.LatestPrice(ctx, symbol)
	if err != nil || price <= 0 {
		if err == nil {
			err = fmt.Errorf("non-positive price %v", price)
		}
		s.metrics.RecordError("quote")
		s.lgr.Warn("quote unavailable, skipping",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return 0, false
	}
	return price, true
}

// Triggered reports whether price has reached the entry of a long signal.
// Positions are long only, so other sides never trigger.
func Triggered(sig *models.PendingSignal, price float64) bool {
	if sig.Side != models.SideBuy {
		return false
	}
	return price >= sig.Entry
}

// CheckEntryTriggers executes PENDING signals whose entry has been reached,
// at the signal's entry and the allocated quantity.
func (s *LifecycleService) CheckEntryTriggers(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	now := s.now()
	pending, err := s.signals.ListPending(ctx, util.Day(now))
	if err != nil {
		return res, fmt.Errorf("list pending: %w", err)
	}
	for i := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		sig := &pending[i]
		res.Processed++
		price, ok := s.quote(ctx, sig.Symbol)
		if !ok {
			res.fail(sig.Symbol)
			continue
		}
		if !Triggered(sig, price) {
			continue
		}
		// open at the planned entry, which is the price the allocation sized for
		_, _, err := s.ExecuteSignal(ctx, sig.ID, ExecuteOptions{})
		switch {
		case err == nil:
			res.Transitioned++
		case errors.Is(err, models.ErrQuantityRequired), errors.Is(err, models.ErrInvalidSetup):
			res.Skipped++
			s.lgr.Warn("entry triggered but not executable",
				applogger.Uint64("signal_id", sig.ID),
				applogger.String("symbol", sig.Symbol),
				applogger.Error(err))
		case errors.Is(err, models.ErrInvalidTransition):
			res.Skipped++
		default:
			res.fail(sig.Symbol)
			s.lgr.Error("auto execute failed",
				applogger.Uint64("signal_id", sig.ID),
				applogger.Error(err))
		}
	}
	s.logBatch("entry triggers", res)
	return res, nil
}

// UpdateUnrealizedPnL marks every OPEN position to its latest quote.
func (s *LifecycleService) UpdateUnrealizedPnL(ctx context.Context) (BatchResult, error) {
	return s.eachOpen(ctx, "unrealized pnl", func(pos *models.Position, price float64) (bool, error) {
		_, err := s.positions.Update(ctx, pos.ID, func(p *models.Position) error {
			return p.MarkToMarket(price)
		})
		return err == nil, err
	})
}

// CheckStopLossAndTargets closes OPEN positions whose stop, target or
// holding period has been hit.
func (s *LifecycleService) CheckStopLossAndTargets(ctx context.Context) (BatchResult, error) {
	now := s.now()
	return s.eachOpen(ctx, "exit checks", func(pos *models.Position, price float64) (bool, error) {
		if _, hit := pos.ExitTrigger(price, now, s.cfg.MaxHoldDays); !hit {
			return false, nil
		}
		closed, err := s.positions.Update(ctx, pos.ID, func(p *models.Position) error {
			// the locked row is authoritative
			reason, hit := p.ExitTrigger(price, now, s.cfg.MaxHoldDays)
			if !hit {
				return errNoExit
			}
			return p.Close(price, reason, now)
		})
		if errors.Is(err, errNoExit) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		s.afterClose(ctx, closed)
		return true, nil
	})
}

var errNoExit = errors.New("no exit")

func (s *LifecycleService) eachOpen(ctx context.Context, name string, step func(pos *models.Position, price float64) (bool, error)) (BatchResult, error) {
	var res BatchResult
	open, err := s.positions.List(ctx, domrepo.PositionFilter{Status: models.PositionOpen})
	if err != nil {
		return res, fmt.Errorf("list open positions: %w", err)
	}
	for i := range open {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		pos := &open[i]
		res.Processed++
		price, ok := s.quote(ctx, pos.Symbol)
		if !ok {
			res.fail(pos.Symbol)
			continue
		}
		changed, err := step(pos, price)
		switch {
		case err == nil:
			if changed {
				res.Transitioned++
			}
		case errors.Is(err, models.ErrInvalidTransition):
			res.Skipped++
		default:
			res.fail(pos.Symbol)
			s.lgr.Error(name+" step failed",
				applogger.Uint64("position_id", pos.ID),
				applogger.Error(err))
		}
	}
	s.logBatch(name, res)
	return res, nil
}

func (s *LifecycleService) logBatch(name string, res BatchResult) {
	s.lgr.Info(name+" completed",
		applogger.Int("processed", res.Processed),
		applogger.Int("transitioned", res.Transitioned),
		applogger.Int("skipped", res.Skipped),
		applogger.Int("failed", res.Failed))
}

// Refresh runs the periodic lifecycle checks in order: entries, marks, exits.
func (s *LifecycleService) Refresh(ctx context.Context) (map[string]BatchResult, error) {
	out := make(map[string]BatchResult, 3)
	steps := []struct {
		name string
		fn   func(context.Context) (BatchResult, error)
	}{
		{"entry_triggers", s.CheckEntryTriggers},
		{"unrealized_pnl", s.UpdateUnrealizedPnL},
		{"exits", s.CheckStopLossAndTargets},
	}
	for _, st := range steps {
		res, err := st.fn(ctx)
		out[st.name] = res
		if err != nil {
			return out, fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return out, nil
}
