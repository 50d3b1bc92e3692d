package usecase

import (
	"context"
	"errors"
	"testing"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

func TestScreenRejectsBadParamsBeforeFetching(t *testing.T) {
	candles := newFakeCandles()
	candles.data["AAA"] = breakoutBars("AAA")
	_, err := newTestScreener(candles).Screen(context.Background(), ScreenRequest{
		Strategies: []string{"BREAKOUT"},
		Date:       lastDay,
		Params:     map[string]service.Params{"BREAKOUT": {"lookback": 1}},
	})
	if !errors.Is(err, models.ErrInvalidParams) {
		t.Fatalf("want ErrInvalidParams, got %v", err)
	}
	if candles.calls["AAA"] != 0 {
		t.Fatalf("candles fetched before validation")
	}
}

func TestScreenIgnoresStaleLastBar(t *testing.T) {
	candles := newFakeCandles()
	candles.data["OLD"] = breakoutBars("OLD")
	res, err := newTestScreener(candles).Screen(context.Background(), ScreenRequest{
		Strategies: []string{"BREAKOUT"},
		Date:       lastDay.AddDate(0, 0, 3),
	})
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if len(res.Signals) != 0 {
		t.Fatalf("signal from an earlier day leaked into the run: %+v", res.Signals)
	}
}

func TestScreenExplicitSymbols(t *testing.T) {
	candles := newFakeCandles()
	candles.data["AAA"] = breakoutBars("AAA")
	candles.data["BBB"] = breakoutBars("BBB")
	res, err := newTestScreener(candles).Screen(context.Background(), ScreenRequest{
		Strategies: []string{"BREAKOUT"},
		Date:       lastDay,
		Symbols:    []string{"bbb"},
	})
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if res.Universe != 1 || len(res.Signals) != 1 || res.Signals[0].Symbol != "BBB" {
		t.Fatalf("result: %+v", res)
	}
	if candles.calls["AAA"] != 0 {
		t.Fatalf("AAA outside the requested universe was fetched")
	}
}

func TestScreenSkipsFailingSymbolAfterOneRetry(t *testing.T) {
	candles := newFakeCandles()
	candles.data["AAA"] = breakoutBars("AAA")
	candles.errs["DOWN"] = errUnavailable
	res, err := newTestScreener(candles).Screen(context.Background(), ScreenRequest{
		Strategies: []string{"BREAKOUT", "MA_CROSS"},
		Date:       lastDay,
	})
	if err != nil {
		t.Fatalf("a failing symbol must not fail the run: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "DOWN" {
		t.Fatalf("skipped: %v", res.Skipped)
	}
	if candles.calls["DOWN"] != 2 {
		t.Fatalf("want one try plus one retry, got %d calls", candles.calls["DOWN"])
	}
	if candles.calls["AAA"] != 1 {
		t.Fatalf("candles should be loaded once per symbol, got %d", candles.calls["AAA"])
	}
	if _, ok := res.Candles["AAA"]; !ok {
		t.Fatalf("AAA history missing from result")
	}
}
