package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	svccache "SignalDesk/internal/service/cache"
)

type stubTrader struct {
	mu    sync.Mutex
	calls int
	fails int
	price float64
}

func (s *stubTrader) GetLatestTrade(symbol string, _ marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return nil, errors.New("upstream 503")
	}
	return &marketdata.Trade{Price: s.price}, nil
}

func TestAlpacaQuoteRetriesOnceThenCaches(t *testing.T) {
	trader := &stubTrader{fails: 1, price: 187.25}
	p := NewAlpacaQuoteProvider(trader, nil, svccache.NewTTLCache(0), AlpacaQuoteConfig{
		Feed:     "iex",
		CacheTTL: time.Minute,
		Timeout:  time.Second,
		Retries:  1,
	}, nil)

	price, err := p.LatestPrice(context.Background(), "AAPL")
	if err != nil || price != 187.25 {
		t.Fatalf("want 187.25, got %v err %v", price, err)
	}
	if _, err := p.LatestPrice(context.Background(), "AAPL"); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if trader.calls != 2 {
		t.Fatalf("want 2 upstream calls (fail, ok), got %d", trader.calls)
	}
}

func TestAlpacaQuoteGivesUpAfterRetries(t *testing.T) {
	trader := &stubTrader{fails: 5, price: 10}
	p := NewAlpacaQuoteProvider(trader, nil, nil, AlpacaQuoteConfig{Timeout: time.Second, Retries: 1}, nil)
	if _, err := p.LatestPrice(context.Background(), "MSFT"); err == nil {
		t.Fatalf("want error")
	}
	if trader.calls != 2 {
		t.Fatalf("want 2 attempts, got %d", trader.calls)
	}
}

type oneCandle struct{ c []models.Candle }

func (o oneCandle) ListSymbols(context.Context, domrepo.Market) ([]string, error) { return nil, nil }

func (o oneCandle) GetHistory(context.Context, string, time.Time, int) ([]models.Candle, error) {
	return o.c, nil
}

func TestCandleQuoteUsesLastClose(t *testing.T) {
	p := NewCandleQuoteProvider(oneCandle{c: []models.Candle{{Symbol: "AAPL", Close: 101.5}}})
	if price, err := p.LatestPrice(context.Background(), "AAPL"); err != nil || price != 101.5 {
		t.Fatalf("want 101.5, got %v %v", price, err)
	}
	empty := NewCandleQuoteProvider(oneCandle{})
	if _, err := empty.LatestPrice(context.Background(), "AAPL"); err == nil {
		t.Fatalf("want error without candles")
	}
}
