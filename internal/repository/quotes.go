package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	svccache "SignalDesk/internal/service/cache"
	svcmetrics "SignalDesk/internal/service/metrics"
	"SignalDesk/internal/service/ratelimit"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type latestTrader interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

type AlpacaQuoteConfig struct {
	Feed     string
	CacheTTL time.Duration
	Timeout  time.Duration
	Retries  int
}

// AlpacaQuoteProvider serves the latest trade price from Alpaca market data,
// throttled by a token bucket and fronted by a short-TTL cache.
type AlpacaQuoteProvider struct {
	client  latestTrader
	limiter *ratelimit.Limiter
	cache   svccache.BytesCache
	cfg     AlpacaQuoteConfig
	l       *applogger.Logger
}

func NewAlpacaClient(apiKey, apiSecret, baseURL string) *marketdata.Client {
	return marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

func NewAlpacaQuoteProvider(client latestTrader, limiter *ratelimit.Limiter, cache svccache.BytesCache, cfg AlpacaQuoteConfig, l *applogger.Logger) *AlpacaQuoteProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	svcmetrics.Register()
	return &AlpacaQuoteProvider{client: client, limiter: limiter, cache: cache, cfg: cfg, l: l}
}

func (p *AlpacaQuoteProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	key := "quote:" + symbol
	if p.cache != nil {
		if b, ok, err := p.cache.GetBytes(ctx, key); err == nil && ok {
			if price, perr := strconv.ParseFloat(string(b), 64); perr == nil {
				svcmetrics.QuoteRequests.WithLabelValues("alpaca", "hit").Inc()
				return price, nil
			}
		}
	}

	start := time.Now()
	price, err := util.Retry(ctx, 1+p.cfg.Retries, p.cfg.Timeout, 250*time.Millisecond, func(ctx context.Context) (float64, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, "alpaca"); err != nil {
				return 0, err
			}
		}
		return p.fetch(ctx, symbol)
	})
	svcmetrics.QuoteLatency.WithLabelValues("alpaca").Observe(time.Since(start).Seconds())
	if err != nil {
		svcmetrics.QuoteRequests.WithLabelValues("alpaca", "error").Inc()
		p.l.Warn("alpaca quote failed", applogger.String("symbol", symbol), applogger.Error(err))
		return 0, fmt.Errorf("quote %s: %w", symbol, err)
	}
	svcmetrics.QuoteRequests.WithLabelValues("alpaca", "ok").Inc()

	if p.cache != nil && p.cfg.CacheTTL > 0 {
		_ = p.cache.SetBytes(ctx, key, []byte(strconv.FormatFloat(price, 'f', -1, 64)), p.cfg.CacheTTL)
	}
	return price, nil
}

// fetch runs the blocking SDK call and gives up when ctx ends.
func (p *AlpacaQuoteProvider) fetch(ctx context.Context, symbol string) (float64, error) {
	type result struct {
		price float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		trade, err := p.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{
			Feed: marketdata.Feed(p.cfg.Feed),
		})
		switch {
		case err != nil:
			ch <- result{err: err}
		case trade == nil || trade.Price <= 0:
			ch <- result{err: fmt.Errorf("no trade for %s", symbol)}
		default:
			ch <- result{price: trade.Price}
		}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		return r.price, r.err
	}
}

// CandleQuoteProvider quotes the last stored close. It serves offline runs
// and environments without market-data credentials.
type CandleQuoteProvider struct {
	candles domrepo.CandleStore
	now     func() time.Time
}

func NewCandleQuoteProvider(candles domrepo.CandleStore) *CandleQuoteProvider {
	return &CandleQuoteProvider{candles: candles, now: time.Now}
}

func (p *CandleQuoteProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := p.candles.GetHistory(ctx, symbol, p.now().UTC(), 1)
	if err != nil {
		return 0, err
	}
	last, ok := models.Last(candles)
	if !ok {
		return 0, fmt.Errorf("no candles for %s", symbol)
	}
	return last.Close, nil
}
