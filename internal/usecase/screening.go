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
	"SignalDesk/internal/services/strategies"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type ScreenConfig struct {
	Workers         int
	BacktestWorkers int
	FetchTimeout    time.Duration
	FetchRetries    int
	HistoryBars     int
}

func (c ScreenConfig) withDefaults() ScreenConfig {
	if c.Workers <= 0 {
		c.Workers = 16
	}
	if c.BacktestWorkers <= 0 {
		c.BacktestWorkers = 4
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	if c.HistoryBars <= 0 {
		c.HistoryBars = 300
	}
	return c
}

// Screener fans strategy evaluation out over (strategy, symbol) pairs.
type Screener struct {
	candles  domrepo.CandleStore
	registry service.StrategyRegistry
	lgr      *applogger.Logger
	metrics  domrepo.Metrics
	cfg      ScreenConfig
}

func NewScreener(candles domrepo.CandleStore, registry service.StrategyRegistry, lgr *applogger.Logger, metrics domrepo.Metrics, cfg ScreenConfig) *Screener {
	return &Screener{
		candles:  candles,
		registry: registry,
		lgr:      lgr,
		metrics:  metricsOrNop(metrics),
		cfg:      cfg.withDefaults(),
	}
}

type ScreenRequest struct {
	Strategies []string
	Date       time.Time
	Market     domrepo.Market
	// Symbols limits the universe. Empty means every symbol of Market.
	Symbols []string
	Params  map[string]service.Params
}

type ScreenResult struct {
	Date     time.Time
	Signals  []models.RawSignal
	Candles  map[string][]models.Candle
	Universe int
	Skipped  []string
}

// candleMemo loads each symbol's history at most once per run.
type candleMemo struct {
	once    sync.Once
	candles []models.Candle
	err     error
}

// Screen runs every requested strategy in SCREEN mode on every symbol. A
// symbol whose candles cannot be fetched is skipped; the run still succeeds.
func (s *Screener) Screen(ctx context.Context, req ScreenRequest) (*ScreenResult, error) {
	start := time.Now()
	defer observe(s.metrics, "screen", start)

	strats, err := strategies.Resolve(s.registry, req.Strategies)
	if err != nil {
		return nil, err
	}
	if len(strats) == 0 {
		return nil, fmt.Errorf("%w: no strategies requested", models.ErrInvalidParams)
	}
	// fail fast on bad params before touching market data
	for _, st := range strats {
		if _, err := st.Evaluate(nil, service.ModeScreen, req.Params[st.Code()]); err != nil {
			return nil, err
		}
	}

	date := util.Day(req.Date)
	symbols := util.NormalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		symbols, err = s.candles.ListSymbols(ctx, req.Market)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
	}

	memo := make(map[string]*candleMemo, len(symbols))
	for _, sym := range symbols {
		memo[sym] = &candleMemo{}
	}

	type pair struct {
		strategy service.Strategy
		symbol   string
	}
	jobs := make(chan pair)
	var (
		mu      sync.Mutex
		signals []models.RawSignal
		skipped = map[string]bool{}
		wg      sync.WaitGroup
	)

	workers := s.cfg.Workers
	if n := len(symbols) * len(strats); n < workers {
		workers = n
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				m := memo[p.symbol]
				m.once.Do(func() {
					m.candles, m.err = s.history(ctx, p.symbol, date)
				})
				if m.err != nil {
					mu.Lock()
					skipped[p.symbol] = true
					mu.Unlock()
					continue
				}
				res, err := p.strategy.Evaluate(m.candles, service.ModeScreen, req.Params[p.strategy.Code()])
				if err != nil {
					s.lgr.Warn("strategy evaluation failed",
						applogger.String("strategy", p.strategy.Code()),
						applogger.String("symbol", p.symbol),
						applogger.Error(err))
					continue
				}
				fresh := make([]models.RawSignal, 0, len(res.Signals))
				for _, sig := range res.Signals {
					if util.Day(sig.Date).Equal(date) {
						fresh = append(fresh, sig)
					}
				}
				if len(fresh) == 0 {
					continue
				}
				mu.Lock()
				signals = append(signals, fresh...)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, st := range strats {
		for _, sym := range symbols {
			select {
			case <-ctx.Done():
				break feed
			case jobs <- pair{strategy: st, symbol: sym}:
			}
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("screen cancelled: %w", err)
	}

	out := &ScreenResult{
		Date:     date,
		Signals:  signals,
		Candles:  make(map[string][]models.Candle, len(memo)),
		Universe: len(symbols),
	}
	for sym, m := range memo {
		if m.err == nil && m.candles != nil {
			out.Candles[sym] = m.candles
		}
	}
	for sym := range skipped {
		out.Skipped = append(out.Skipped, sym)
	}
	sort.Strings(out.Skipped)
	s.metrics.RecordSignals("raw", len(signals))

	s.lgr.Info("screen completed",
		applogger.Date("date", date),
		applogger.Int("symbols", len(symbols)),
		applogger.Int("strategies", len(strats)),
		applogger.Int("signals", len(signals)),
		applogger.Int("skipped", len(out.Skipped)),
		applogger.Duration("took_ms", time.Since(start)))
	return out, nil
}

// history fetches candles up to date with a per-attempt timeout and the
// configured retries.
func (s *Screener) history(ctx context.Context, symbol string, date time.Time) ([]models.Candle, error) {
	candles, err := util.Retry(ctx, 1+s.cfg.FetchRetries, s.cfg.FetchTimeout, 200*time.Millisecond,
		func(ctx context.Context) ([]models.Candle, error) {
			return s.candles.GetHistory(ctx, symbol, date, s.cfg.HistoryBars)
		})
	if err != nil {
		s.metrics.RecordError("candles")
		s.lgr.Warn("skipping symbol, candle fetch failed",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return nil, err
	}
	return candles, nil
}
