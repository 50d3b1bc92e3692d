package usecase

import (
	"context"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/services/scoring"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type RankingService struct {
	signals     domrepo.SignalRepository
	positions   domrepo.PositionRepository
	candles     domrepo.CandleStore
	historyBars int
	lgr         *applogger.Logger
	metrics     domrepo.Metrics
}

func NewRankingService(signals domrepo.SignalRepository, positions domrepo.PositionRepository, candles domrepo.CandleStore, historyBars int, lgr *applogger.Logger, metrics domrepo.Metrics) *RankingService {
	if historyBars < scoring.LiquidityWindow+1 {
		historyBars = 60
	}
	return &RankingService{
		signals:     signals,
		positions:   positions,
		candles:     candles,
		historyBars: historyBars,
		lgr:         lgr,
		metrics:     metricsOrNop(metrics),
	}
}

// rankInputs are the external inputs of one ranking pass. Missing entries
// fall back to the default sub-scores.
type rankInputs struct {
	candles map[string][]models.Candle
	winRate map[string]float64
}

// RankSignal recomputes the rank fields of sig in place. Ensemble signals use
// the volatility-fit path, the rest use the strategy's win rate.
func RankSignal(sig *models.PendingSignal, candles []models.Candle, winRate float64) {
	c := scoring.Components{
		Confidence:    sig.Confidence,
		RMultiple:     scoring.RMultiple(sig.Entry, sig.StopLoss, sig.Target),
		Liquidity:     scoring.Liquidity(candles),
		WinRate:       winRate,
		VolatilityFit: scoring.VolatilityFit(sig.Entry, sig.StopLoss, candles),
	}
	sel := scoring.SelectWinRate
	if sig.FromEnsemble() {
		sel = scoring.SelectVolatilityFit
	}
	sig.RMultiple = c.RMultiple
	sig.Liquidity = c.Liquidity
	sig.VolatilityFit = c.VolatilityFit
	sig.RankScore = scoring.Composite(c, sel)
}

// RankPending rescores every PENDING signal of date inside one transaction.
// Candle and win-rate lookups happen before the transaction; failures there
// only degrade the affected signal to default sub-scores.
func (s *RankingService) RankPending(ctx context.Context, date time.Time) (int, error) {
	start := time.Now()
	defer observe(s.metrics, "rank", start)
	date = util.Day(date)

	pending, err := s.signals.PendingOn(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	in := s.prefetch(ctx, date, pending)

	n, err := s.signals.MutatePending(ctx, date, func(rows []*models.PendingSignal) error {
		for _, sig := range rows {
			candles, ok := in.candles[sig.Symbol]
			if !ok {
				candles = s.history(ctx, sig.Symbol, date)
			}
			rate, ok := in.winRate[sig.StrategyCode]
			if !ok && !sig.FromEnsemble() {
				rate = s.winRate(ctx, sig.StrategyCode)
			}
			RankSignal(sig, candles, rate)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordError("rank")
		return 0, fmt.Errorf("rank pending %s: %w", util.FormatDate(date), err)
	}
	s.metrics.RecordSignals("ranked", n)
	s.lgr.Info("ranked pending signals",
		applogger.Date("date", date),
		applogger.Int("count", n),
		applogger.Duration("took_ms", time.Since(start)))
	return n, nil
}

func (s *RankingService) prefetch(ctx context.Context, date time.Time, pending []models.PendingSignal) rankInputs {
	in := rankInputs{
		candles: make(map[string][]models.Candle),
		winRate: make(map[string]float64),
	}
	for _, sig := range pending {
		if _, ok := in.candles[sig.Symbol]; !ok {
			in.candles[sig.Symbol] = s.history(ctx, sig.Symbol, date)
		}
		if sig.FromEnsemble() {
			continue
		}
		if _, ok := in.winRate[sig.StrategyCode]; !ok {
			in.winRate[sig.StrategyCode] = s.winRate(ctx, sig.StrategyCode)
		}
	}
	return in
}

func (s *RankingService) history(ctx context.Context, symbol string, date time.Time) []models.Candle {
	candles, err := s.candles.GetHistory(ctx, symbol, date, s.historyBars)
	if err != nil {
		s.metrics.RecordError("candles")
		s.lgr.Warn("ranking without candles",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return nil
	}
	return candles
}

func (s *RankingService) winRate(ctx context.Context, code string) float64 {
	rate, closed, err := s.positions.WinRate(ctx, code)
	if err != nil {
		s.lgr.Warn("win rate lookup failed",
			applogger.String("strategy", code),
			applogger.Error(err))
		return scoring.DefaultScore
	}
	return scoring.WinRate(rate, closed)
}
