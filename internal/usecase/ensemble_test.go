package usecase

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/services/strategies"
	applogger "SignalDesk/pkg/logger"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func raw(symbol, code string, side models.Side, entry float64, stop, target *float64) models.RawSignal {
	return models.RawSignal{
		Symbol:       symbol,
		Date:         lastDay,
		Side:         side,
		Entry:        entry,
		StopLoss:     stop,
		Target:       target,
		StrategyCode: code,
	}
}

func TestVoteTwoBuyersAveragesLevels(t *testing.T) {
	signals := []models.RawSignal{
		raw("X", "S1", models.SideBuy, 100, models.Float(95), nil),
		raw("X", "S2", models.SideBuy, 102, models.Float(96), nil),
	}
	got := Vote(signals, 2, StrategyWeights{"S1": 1.0, "S2": 1.2})
	if len(got) != 1 {
		t.Fatalf("want one ensemble signal, got %d", len(got))
	}
	e := got[0]
	if !near(e.Confidence, 2.2) || !near(e.Entry, 101) || !near(e.StopLoss, 95.5) {
		t.Fatalf("confidence/entry/stop: %v %v %v", e.Confidence, e.Entry, e.StopLoss)
	}
	if e.VoteCount != 2 || e.TotalStrategies != 2 || e.Side != models.SideBuy {
		t.Fatalf("votes: %+v", e)
	}
	if e.Target != 0 {
		t.Fatalf("no contributor supplied a target, want 0, got %v", e.Target)
	}
}

func TestVoteGates(t *testing.T) {
	signals := []models.RawSignal{
		// one strategy only
		raw("SOLO", "S1", models.SideBuy, 10, nil, nil),
		// two strategies, one BUY vote
		raw("SPLIT", "S1", models.SideBuy, 10, nil, nil),
		raw("SPLIT", "S2", models.SideSell, 10, nil, nil),
		// three strategies, two BUY votes
		raw("OK", "S1", models.SideBuy, 10, nil, nil),
		raw("OK", "S2", models.SideBuy, 12, nil, nil),
		raw("OK", "S3", models.SideSell, 14, nil, nil),
	}
	got := Vote(signals, 3, nil)
	if len(got) != 1 || got[0].Symbol != "OK" {
		t.Fatalf("want only OK, got %+v", got)
	}
	e := got[0]
	if e.VoteCount != 2 || e.Confidence != 2 || len(e.Votes) != 3 || e.Votes["S3"] != models.SideSell {
		t.Fatalf("unexpected votes %+v", e)
	}
	if !near(e.Entry, 12) {
		t.Fatalf("entry averages all contributors, got %v", e.Entry)
	}
}

func TestVoteLastSignalPerStrategyCounts(t *testing.T) {
	first := raw("X", "S1", models.SideSell, 10, nil, nil)
	first.Date = lastDay.AddDate(0, 0, -1)
	signals := []models.RawSignal{
		first,
		raw("X", "S1", models.SideBuy, 11, nil, nil),
		raw("X", "S2", models.SideBuy, 11, nil, nil),
	}
	got := Vote(signals, 2, nil)
	if len(got) != 1 || got[0].VoteCount != 2 {
		t.Fatalf("latest S1 signal should count as BUY, got %+v", got)
	}
}

func TestVoteOrderIndependent(t *testing.T) {
	signals := []models.RawSignal{
		raw("A", "S1", models.SideBuy, 10, models.Float(9), models.Float(12)),
		raw("B", "S1", models.SideBuy, 20, models.Float(18), nil),
		raw("A", "S2", models.SideBuy, 11, models.Float(9.5), models.Float(13)),
		raw("B", "S2", models.SideBuy, 21, nil, models.Float(25)),
	}
	reversed := make([]models.RawSignal, len(signals))
	for i := range signals {
		reversed[len(signals)-1-i] = signals[i]
	}
	a, b := Vote(signals, 2, nil), Vote(reversed, 2, nil)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("vote depends on input order:\n%+v\n%+v", a, b)
	}
}

func newTestScreener(candles *fakeCandles) *Screener {
	return NewScreener(candles, strategies.Default(), applogger.NewNop(), nil, ScreenConfig{
		Workers:      4,
		FetchTimeout: time.Second,
		FetchRetries: 1,
		HistoryBars:  300,
	})
}

func TestEnsembleRunPersistsAndScores(t *testing.T) {
	candles := newFakeCandles()
	candles.data["AAA"] = breakoutBars("AAA")
	candles.data["BBB"] = breakoutBars("BBB")
	candles.data["FLAT"] = bars("FLAT", make([]float64, 40)...)
	candles.errs["DOWN"] = errUnavailable

	store := newMemStore()
	pub := &capturePublisher{}
	svc := NewEnsembleService(newTestScreener(candles), store, newFakeLocker(), pub, nil, time.Minute, applogger.NewNop(), nil)

	res, err := svc.Run(context.Background(), EnsembleParams{
		Strategies: []string{"MA_CROSS", "BREAKOUT"},
		Date:       lastDay,
		Market:     domrepo.MarketUS,
		Persist:    true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Signals) != 2 {
		t.Fatalf("want AAA and BBB, got %+v", res.Signals)
	}
	e := res.Signals[0]
	if e.Symbol != "AAA" || !near(e.Entry, 110) || !near(e.StopLoss, 101.75) || !near(e.Target, 126.5) {
		t.Fatalf("unexpected ensemble %+v", e)
	}
	if e.Confidence != 2 || e.RankScore == 0 || e.Liquidity == 0 {
		t.Fatalf("sub-scores not attached: %+v", e)
	}
	if !reflect.DeepEqual(res.Summary.SkippedSyms, []string{"DOWN"}) {
		t.Fatalf("skipped: %v", res.Summary.SkippedSyms)
	}
	if candles.calls["DOWN"] != 2 {
		t.Fatalf("failing symbol should be tried once plus one retry, got %d", candles.calls["DOWN"])
	}
	if candles.calls["AAA"] != 1 {
		t.Fatalf("candles should be fetched once per symbol, got %d", candles.calls["AAA"])
	}

	rows, _ := store.List(context.Background(), domrepo.SignalFilter{})
	if len(rows) != 2 || rows[0].StrategyCode != models.EnsembleStrategyCode || rows[0].Status != models.SignalPending {
		t.Fatalf("persisted rows: %+v", rows)
	}
	if res.Summary.Persisted != 2 || !pub.has(models.EventEnsembleCompleted) {
		t.Fatalf("summary %+v events %v", res.Summary, pub.types())
	}
}

func TestEnsembleRunRejectsUnknownStrategy(t *testing.T) {
	svc := NewEnsembleService(newTestScreener(newFakeCandles()), newMemStore(), nil, nil, nil, 0, applogger.NewNop(), nil)
	_, err := svc.Run(context.Background(), EnsembleParams{Strategies: []string{"MA_CROSS", "NOPE"}, Date: lastDay})
	if !errors.Is(err, models.ErrUnknownStrategy) {
		t.Fatalf("want ErrUnknownStrategy, got %v", err)
	}
}

func TestEnsembleRunHonoursLease(t *testing.T) {
	locker := newFakeLocker()
	_, _ = locker.Acquire(context.Background(), leaseKey(lastDay, domrepo.MarketUS), time.Minute)

	svc := NewEnsembleService(newTestScreener(newFakeCandles()), newMemStore(), locker, nil, nil, 0, applogger.NewNop(), nil)
	_, err := svc.Run(context.Background(), EnsembleParams{
		Strategies: []string{"MA_CROSS", "BREAKOUT"},
		Date:       lastDay,
		Market:     domrepo.MarketUS,
		Persist:    true,
	})
	if !errors.Is(err, models.ErrRunInProgress) {
		t.Fatalf("want ErrRunInProgress, got %v", err)
	}
}
