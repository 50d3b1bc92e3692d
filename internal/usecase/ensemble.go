package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/scoring"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

// StrategyWeights maps strategy code to voting weight. Unknown codes weigh 1.
type StrategyWeights map[string]float64

func (w StrategyWeights) Of(code string) float64 {
	if v, ok := w[code]; ok && v > 0 {
		return v
	}
	return 1.0
}

// Vote merges raw signals into consensus signals. A symbol needs at least two
// contributing strategies and at least two BUY votes. The result carries no
// sub-scores and is sorted by symbol.
func Vote(signals []models.RawSignal, totalStrategies int, weights StrategyWeights) []models.EnsembleSignal {
	bySymbol := make(map[string]map[string]models.RawSignal)
	for _, sig := range signals {
		m, ok := bySymbol[sig.Symbol]
		if !ok {
			m = make(map[string]models.RawSignal)
			bySymbol[sig.Symbol] = m
		}
		prev, seen := m[sig.StrategyCode]
		if !seen || !sig.Date.Before(prev.Date) {
			m[sig.StrategyCode] = sig
		}
	}

	out := make([]models.EnsembleSignal, 0, len(bySymbol))
	for symbol, votes := range bySymbol {
		if len(votes) < 2 {
			continue
		}
		e := models.EnsembleSignal{
			Symbol:          symbol,
			Side:            models.SideBuy,
			TotalStrategies: totalStrategies,
			Votes:           make(map[string]models.Side, len(votes)),
		}
		var entry, stop, target mean
		for code, sig := range votes {
			e.Votes[code] = sig.Side
			if sig.Date.After(e.Date) {
				e.Date = sig.Date
			}
			if sig.Side == models.SideBuy {
				e.VoteCount++
				e.Confidence += weights.Of(code)
			}
			if sig.Entry > 0 {
				entry.add(sig.Entry)
			}
			if sig.StopLoss != nil {
				stop.add(*sig.StopLoss)
			}
			if sig.Target != nil {
				target.add(*sig.Target)
			}
		}
		if e.VoteCount < 2 {
			continue
		}
		e.Entry, e.StopLoss, e.Target = entry.value(), stop.value(), target.value()
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

// value is 0 when nothing was added; downstream treats 0 as unavailable.
func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// ScoreEnsemble attaches R-multiple, liquidity, volatility fit and the
// volatility-fit-path rank score.
func ScoreEnsemble(e *models.EnsembleSignal, candles []models.Candle) {
	e.RMultiple = scoring.RMultiple(e.Entry, e.StopLoss, e.Target)
	e.Liquidity = scoring.Liquidity(candles)
	e.VolatilityFit = scoring.VolatilityFit(e.Entry, e.StopLoss, candles)
	e.RankScore = scoring.Composite(scoring.Components{
		Confidence:    e.Confidence,
		RMultiple:     e.RMultiple,
		Liquidity:     e.Liquidity,
		VolatilityFit: e.VolatilityFit,
	}, scoring.SelectVolatilityFit)
}

// SortByRank orders by rank score descending, then symbol.
func SortByRank(signals []models.EnsembleSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].RankScore != signals[j].RankScore {
			return signals[i].RankScore > signals[j].RankScore
		}
		return signals[i].Symbol < signals[j].Symbol
	})
}

type EnsembleService struct {
	screener *Screener
	signals  domrepo.SignalRepository
	locker   domrepo.RunLocker
	weights  StrategyWeights
	leaseTTL time.Duration
	events   emitter
	lgr      *applogger.Logger
	metrics  domrepo.Metrics
	now      func() time.Time
}

func NewEnsembleService(
	screener *Screener,
	signals domrepo.SignalRepository,
	locker domrepo.RunLocker,
	publisher domrepo.EventPublisher,
	weights StrategyWeights,
	leaseTTL time.Duration,
	lgr *applogger.Logger,
	metrics domrepo.Metrics,
) *EnsembleService {
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Minute
	}
	return &EnsembleService{
		screener: screener,
		signals:  signals,
		locker:   locker,
		weights:  weights,
		leaseTTL: leaseTTL,
		events:   emitter{pub: publisher, lgr: lgr, now: time.Now},
		lgr:      lgr,
		metrics:  metricsOrNop(metrics),
		now:      time.Now,
	}
}

type EnsembleParams struct {
	Strategies []string
	Date       time.Time
	Market     domrepo.Market
	Symbols    []string
	Params     map[string]service.Params
	Persist    bool
}

type EnsembleResult struct {
	Summary models.RunSummary       `json:"summary"`
	Signals []models.EnsembleSignal `json:"signals"`
}

// Run screens, votes and scores. With Persist it holds the per-date lease and
// stores each consensus signal as PENDING.
func (s *EnsembleService) Run(ctx context.Context, p EnsembleParams) (*EnsembleResult, error) {
	if !p.Persist {
		res, _, err := s.run(ctx, p, uuid.NewString())
		return res, err
	}
	var res *EnsembleResult
	err := withLease(ctx, s.locker, leaseKey(p.Date, p.Market), s.leaseTTL, func(ctx context.Context) error {
		var err error
		res, _, err = s.run(ctx, p, uuid.NewString())
		return err
	})
	return res, err
}

// run assumes the caller holds the lease when p.Persist is set. It also
// returns the screen so callers can reuse the raw signals.
func (s *EnsembleService) run(ctx context.Context, p EnsembleParams, runID string) (*EnsembleResult, *ScreenResult, error) {
	screened, err := s.screener.Screen(ctx, ScreenRequest{
		Strategies: p.Strategies,
		Date:       p.Date,
		Market:     p.Market,
		Symbols:    p.Symbols,
		Params:     p.Params,
	})
	if err != nil {
		return nil, nil, err
	}
	total := len(util.NormalizeSymbols(p.Strategies))
	ensemble := Vote(screened.Signals, total, s.weights)
	for i := range ensemble {
		ScoreEnsemble(&ensemble[i], screened.Candles[ensemble[i].Symbol])
	}
	SortByRank(ensemble)
	s.metrics.RecordSignals("ensemble", len(ensemble))

	summary := models.RunSummary{
		RunID:       runID,
		Date:        screened.Date,
		Market:      string(p.Market),
		Symbols:     screened.Universe,
		RawSignals:  len(screened.Signals),
		Ensemble:    len(ensemble),
		SkippedSyms: screened.Skipped,
	}

	if p.Persist && len(ensemble) > 0 {
		rows := make([]models.PendingSignal, 0, len(ensemble))
		for _, e := range ensemble {
			rows = append(rows, models.PendingFromEnsemble(e, runID))
		}
		n, err := s.signals.InsertPending(ctx, rows)
		if err != nil {
			s.metrics.RecordError("persist")
			return nil, nil, fmt.Errorf("persist ensemble signals: %w", err)
		}
		summary.Persisted = n
		s.metrics.RecordSignals("persisted", n)
	}
	if p.Persist {
		s.events.emit(ctx, models.EventEnsembleCompleted, util.FormatDate(screened.Date), summary)
	}

	s.lgr.Info("ensemble completed",
		applogger.String("run_id", runID),
		applogger.Date("date", screened.Date),
		applogger.Int("raw", summary.RawSignals),
		applogger.Int("ensemble", summary.Ensemble),
		applogger.Int("persisted", summary.Persisted))
	return &EnsembleResult{Summary: summary, Signals: ensemble}, screened, nil
}
