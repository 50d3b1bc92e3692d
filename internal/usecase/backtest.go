package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type Outcome string

const (
	OutcomeTarget Outcome = "TARGET"
	OutcomeStop   Outcome = "STOP_LOSS"
	OutcomeOpen   Outcome = "OPEN"
)

type BacktestTrade struct {
	models.RawSignal
	Outcome   Outcome    `json:"outcome"`
	ExitDate  *time.Time `json:"exit_date,omitempty"`
	ExitPrice float64    `json:"exit_price,omitempty"`
	RMultiple float64    `json:"r_multiple"`
}

type SymbolBacktest struct {
	Symbol  string          `json:"symbol"`
	Candles int             `json:"candles"`
	Trades  []BacktestTrade `json:"trades"`
	Error   string          `json:"error,omitempty"`
}

type BacktestReport struct {
	Strategy string           `json:"strategy"`
	Date     time.Time        `json:"date"`
	Symbols  []SymbolBacktest `json:"symbols"`
	Signals  int              `json:"signals"`
	Wins     int              `json:"wins"`
	Losses   int              `json:"losses"`
	Open     int              `json:"open"`
	WinRate  float64          `json:"win_rate"`
}

type BacktestParams struct {
	Strategy string
	Symbols  []string
	Market   domrepo.Market
	Date     time.Time
	Bars     int
	Params   service.Params
}

// BacktestService replays one strategy in BACKTEST mode on the smaller pool.
type BacktestService struct {
	candles  domrepo.CandleStore
	registry service.StrategyRegistry
	cfg      ScreenConfig
	lgr      *applogger.Logger
}

func NewBacktestService(candles domrepo.CandleStore, registry service.StrategyRegistry, cfg ScreenConfig, lgr *applogger.Logger) *BacktestService {
	return &BacktestService{candles: candles, registry: registry, cfg: cfg.withDefaults(), lgr: lgr}
}

func (s *BacktestService) Run(ctx context.Context, p BacktestParams) (*BacktestReport, error) {
	strat, ok := s.registry.Get(p.Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStrategy, p.Strategy)
	}
	if _, err := strat.Evaluate(nil, service.ModeBacktest, p.Params); err != nil {
		return nil, err
	}
	if p.Bars <= 0 {
		p.Bars = 500
	}
	date := util.Day(p.Date)
	symbols := util.NormalizeSymbols(p.Symbols)
	if len(symbols) == 0 {
		var err error
		if symbols, err = s.candles.ListSymbols(ctx, p.Market); err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
	}

	results := make([]SymbolBacktest, len(symbols))
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.BacktestWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				results[i] = s.runSymbol(ctx, strat, symbols[i], date, p)
			}
		}()
	}
	for i := range symbols {
		idx <- i
	}
	close(idx)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	rep := &BacktestReport{Strategy: strat.Code(), Date: date, Symbols: results}
	for _, r := range results {
		for _, t := range r.Trades {
			rep.Signals++
			switch t.Outcome {
			case OutcomeTarget:
				rep.Wins++
			case OutcomeStop:
				rep.Losses++
			default:
				rep.Open++
			}
		}
	}
	if resolved := rep.Wins + rep.Losses; resolved > 0 {
		rep.WinRate = float64(rep.Wins) / float64(resolved)
	}
	s.lgr.Info("backtest completed",
		applogger.String("strategy", rep.Strategy),
		applogger.Int("symbols", len(results)),
		applogger.Int("signals", rep.Signals),
		applogger.Float64("win_rate", rep.WinRate))
	return rep, nil
}

func (s *BacktestService) runSymbol(ctx context.Context, strat service.Strategy, symbol string, date time.Time, p BacktestParams) SymbolBacktest {
	out := SymbolBacktest{Symbol: symbol}
	candles, err := util.Retry(ctx, 1+s.cfg.FetchRetries, s.cfg.FetchTimeout, 200*time.Millisecond,
		func(ctx context.Context) ([]models.Candle, error) {
			return s.candles.GetHistory(ctx, symbol, date, p.Bars)
		})
	if err != nil {
		s.lgr.Warn("backtest skipping symbol",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		out.Error = err.Error()
		return out
	}
	out.Candles = len(candles)
	res, err := strat.Evaluate(candles, service.ModeBacktest, p.Params)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	pos := make(map[time.Time]int, len(candles))
	for i, c := range candles {
		pos[util.Day(c.Date)] = i
	}
	for _, sig := range res.Signals {
		i, ok := pos[util.Day(sig.Date)]
		if !ok {
			continue
		}
		out.Trades = append(out.Trades, Resolve(sig, candles[i+1:]))
	}
	return out
}

// Resolve walks the candles after a signal until its stop or target is hit.
// When one bar touches both, the stop wins. Signals without both levels stay
// open.
func Resolve(sig models.RawSignal, after []models.Candle) BacktestTrade {
	t := BacktestTrade{RawSignal: sig, Outcome: OutcomeOpen}
	if sig.StopLoss == nil || sig.Target == nil {
		return t
	}
	stop, target := *sig.StopLoss, *sig.Target
	long := sig.Side != models.SideSell
	for _, c := range after {
		var hitStop, hitTarget bool
		if long {
			hitStop, hitTarget = c.Low <= stop, c.High >= target
		} else {
			hitStop, hitTarget = c.High >= stop, c.Low <= target
		}
		if !hitStop && !hitTarget {
			continue
		}
		d := c.Date
		t.ExitDate = &d
		if hitStop {
			t.Outcome, t.ExitPrice, t.RMultiple = OutcomeStop, stop, -1
		} else {
			t.Outcome, t.ExitPrice = OutcomeTarget, target
			if risk := sig.Entry - stop; long && risk > 0 {
				t.RMultiple = (target - sig.Entry) / risk
			} else if risk := stop - sig.Entry; !long && risk > 0 {
				t.RMultiple = (sig.Entry - target) / risk
			}
		}
		return t
	}
	return t
}
