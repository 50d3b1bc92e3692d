package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

type lifecycleFixture struct {
	store  *memStore
	quotes *fakeQuotes
	pub    *capturePublisher
	svc    *LifecycleService
	now    time.Time
}

func newLifecycleFixture(maxHold int) *lifecycleFixture {
	f := &lifecycleFixture{
		store:  newMemStore(),
		quotes: newFakeQuotes(),
		pub:    &capturePublisher{},
		now:    lastDay.Add(15 * time.Hour),
	}
	f.svc = NewLifecycleService(f.store, memPositions{f.store}, memAllocations{f.store}, f.quotes, f.pub,
		LifecycleConfig{MaxHoldDays: maxHold}, applogger.NewNop(), nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func i64(v int64) *int64 { return &v }

func TestTargetCloseBooksTwoR(t *testing.T) {
	f := newLifecycleFixture(0)
	id := f.store.add(models.PendingSignal{Symbol: "C", TradeDate: lastDay, StrategyCode: "BREAKOUT", Side: models.SideBuy, Entry: 50, StopLoss: 45, Target: 60})

	_, pos, err := f.svc.ExecuteSignal(context.Background(), id, ExecuteOptions{Quantity: i64(10)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if pos.Status != models.PositionOpen || pos.StopLoss != 45 || pos.Target != 60 || pos.EntryPrice != 50 {
		t.Fatalf("opened position: %+v", pos)
	}

	f.quotes.set("C", 60)
	res, err := f.svc.CheckStopLossAndTargets(context.Background())
	if err != nil {
		t.Fatalf("check exits: %v", err)
	}
	if res.Processed != 1 || res.Transitioned != 1 {
		t.Fatalf("batch: %+v", res)
	}
	closed, _ := memPositions{f.store}.Get(context.Background(), pos.ID)
	if closed.Status != models.PositionClosed || closed.ExitReason != models.ExitTarget {
		t.Fatalf("closed: %+v", closed)
	}
	if models.Deref(closed.RealizedPnL) != 100 || !near(closed.RMultiple, 2.0) {
		t.Fatalf("pnl=%v r=%v", models.Deref(closed.RealizedPnL), closed.RMultiple)
	}
	if closed.UnrealizedPnL != nil || closed.CurrentPrice != nil {
		t.Fatalf("unrealized fields should be cleared")
	}
	for _, want := range []models.EventType{models.EventSignalExecuted, models.EventPositionOpened, models.EventPositionClosed} {
		if !f.pub.has(want) {
			t.Fatalf("missing event %s in %v", want, f.pub.types())
		}
	}
}

func TestSignalTransitionsAreMonotonic(t *testing.T) {
	f := newLifecycleFixture(0)
	ctx := context.Background()
	id := f.store.add(models.PendingSignal{Symbol: "M", TradeDate: lastDay, StrategyCode: "MA_CROSS", Side: models.SideBuy, Entry: 10, StopLoss: 9, Target: 12})

	if _, err := f.svc.IgnoreSignal(ctx, id); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	if _, _, err := f.svc.ExecuteSignal(ctx, id, ExecuteOptions{Quantity: i64(1)}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("execute after ignore: want ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.IgnoreSignal(ctx, id); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("second ignore: want ErrInvalidTransition, got %v", err)
	}
	sig, _ := f.store.Get(ctx, id)
	if sig.Status != models.SignalIgnored {
		t.Fatalf("status changed to %s", sig.Status)
	}
	if _, err := f.svc.IgnoreSignal(ctx, 999); !errors.Is(err, models.ErrSignalNotFound) {
		t.Fatalf("want ErrSignalNotFound, got %v", err)
	}
}

func TestExecuteQuantityFromAllocation(t *testing.T) {
	f := newLifecycleFixture(0)
	ctx := context.Background()
	id := f.store.add(models.PendingSignal{Symbol: "Q", TradeDate: lastDay, StrategyCode: "MA_CROSS", Side: models.SideBuy, Entry: 100, StopLoss: 90, Target: 120})

	if _, _, err := f.svc.ExecuteSignal(ctx, id, ExecuteOptions{}); !errors.Is(err, models.ErrQuantityRequired) {
		t.Fatalf("want ErrQuantityRequired, got %v", err)
	}

	alloc := NewAllocationService(memAllocations{f.store}, nil, applogger.NewNop(), nil)
	if _, err := alloc.Allocate(ctx, AllocationParams{Date: lastDay, TotalCapital: 100_000, RiskPerTradePct: 1, MaxOpenTrades: 1}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	_, pos, err := f.svc.ExecuteSignal(ctx, id, ExecuteOptions{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if pos.Quantity != 100 {
		t.Fatalf("want allocated quantity 100, got %d", pos.Quantity)
	}
}

func TestInvalidExecutionLeavesSignalPending(t *testing.T) {
	f := newLifecycleFixture(0)
	ctx := context.Background()
	id := f.store.add(models.PendingSignal{Symbol: "Z", TradeDate: lastDay, StrategyCode: "MA_CROSS", Side: models.SideBuy, Entry: 10})

	if _, _, err := f.svc.ExecuteSignal(ctx, id, ExecuteOptions{Quantity: i64(5), EntryPrice: models.Float(-1)}); !errors.Is(err, models.ErrInvalidSetup) {
		t.Fatalf("want ErrInvalidSetup, got %v", err)
	}
	sig, _ := f.store.Get(ctx, id)
	if sig.Status != models.SignalPending {
		t.Fatalf("failed execution must not transition, got %s", sig.Status)
	}
}

func TestRoundTripCloseIsFlat(t *testing.T) {
	f := newLifecycleFixture(0)
	ctx := context.Background()
	pid := memPositions{f.store}.addPosition(models.Position{Symbol: "R", EntryDate: lastDay, EntryPrice: 42.5, Quantity: 7, StopLoss: 40, Target: 50})

	pos, err := f.svc.ClosePosition(ctx, pid, models.Float(42.5))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if models.Deref(pos.RealizedPnL) != 0 || models.Deref(pos.RealizedPnLPct) != 0 || pos.ExitReason != models.ExitManual {
		t.Fatalf("round trip: %+v", pos)
	}
	if _, err := f.svc.ClosePosition(ctx, pid, models.Float(43)); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("closing twice: want ErrInvalidTransition, got %v", err)
	}
}

func TestUnrealizedRefreshToleratesQuoteFailures(t *testing.T) {
	f := newLifecycleFixture(0)
	positions := memPositions{f.store}
	good := positions.addPosition(models.Position{Symbol: "GOOD", EntryDate: lastDay, EntryPrice: 100, Quantity: 10, StopLoss: 90, Target: 120})
	positions.addPosition(models.Position{Symbol: "BAD", EntryDate: lastDay, EntryPrice: 10, Quantity: 10})
	f.quotes.set("GOOD", 105)
	f.quotes.errs["BAD"] = errUnavailable

	res, err := f.svc.UpdateUnrealizedPnL(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Processed != 2 || res.Transitioned != 1 || res.Failed != 1 || res.FailedSyms[0] != "BAD" {
		t.Fatalf("batch: %+v", res)
	}
	pos, _ := positions.Get(context.Background(), good)
	if models.Deref(pos.UnrealizedPnL) != 50 || !near(models.Deref(pos.UnrealizedPnLPct), 5) || !near(pos.RMultiple, 2) {
		t.Fatalf("marked position: %+v", pos)
	}
}

func TestTimeExit(t *testing.T) {
	f := newLifecycleFixture(5)
	positions := memPositions{f.store}
	pid := positions.addPosition(models.Position{Symbol: "T", EntryDate: lastDay, EntryPrice: 100, Quantity: 1, StopLoss: 90, Target: 120})
	f.quotes.set("T", 101)

	f.now = lastDay.AddDate(0, 0, 4)
	if res, _ := f.svc.CheckStopLossAndTargets(context.Background()); res.Transitioned != 0 {
		t.Fatalf("closed too early: %+v", res)
	}
	f.now = lastDay.AddDate(0, 0, 5)
	if res, _ := f.svc.CheckStopLossAndTargets(context.Background()); res.Transitioned != 1 {
		t.Fatalf("expected TIME close: %+v", res)
	}
	pos, _ := positions.Get(context.Background(), pid)
	if pos.ExitReason != models.ExitTime || models.Deref(pos.RealizedPnL) != 1 {
		t.Fatalf("time exit: %+v", pos)
	}
}

func TestStopLossBeatsTarget(t *testing.T) {
	f := newLifecycleFixture(0)
	positions := memPositions{f.store}
	pid := positions.addPosition(models.Position{Symbol: "S", EntryDate: lastDay, EntryPrice: 100, Quantity: 2, StopLoss: 95, Target: 110})
	f.quotes.set("S", 94)

	if _, err := f.svc.CheckStopLossAndTargets(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	pos, _ := positions.Get(context.Background(), pid)
	if pos.ExitReason != models.ExitStopLoss || models.Deref(pos.RealizedPnL) != -12 {
		t.Fatalf("stop exit: %+v", pos)
	}
}

func TestEntryTriggers(t *testing.T) {
	f := newLifecycleFixture(0)
	ctx := context.Background()
	buy := f.store.add(models.PendingSignal{Symbol: "BUY", TradeDate: lastDay, StrategyCode: "MA_CROSS", Side: models.SideBuy, Entry: 100, StopLoss: 90, Target: 120, RankScore: 2})
	sell := f.store.add(models.PendingSignal{Symbol: "SELL", TradeDate: lastDay, StrategyCode: "MA_CROSS", Side: models.SideSell, Entry: 50, StopLoss: 55, Target: 40, RankScore: 1})
	unallocated := f.store.add(models.PendingSignal{Symbol: "NOALLOC", TradeDate: lastDay, StrategyCode: "MA_CROSS", Side: models.SideBuy, Entry: 10, StopLoss: 0})
	f.quotes.set("BUY", 101)
	f.quotes.set("SELL", 51)
	f.quotes.set("NOALLOC", 11)

	alloc := NewAllocationService(memAllocations{f.store}, nil, applogger.NewNop(), nil)
	if _, err := alloc.Allocate(ctx, AllocationParams{Date: lastDay, TotalCapital: 100_000, RiskPerTradePct: 1, MaxOpenTrades: 5}); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	res, err := f.svc.CheckEntryTriggers(ctx)
	if err != nil {
		t.Fatalf("entry triggers: %v", err)
	}
	if res.Processed != 3 || res.Transitioned != 1 || res.Skipped != 1 {
		t.Fatalf("batch: %+v", res)
	}
	if s, _ := f.store.Get(ctx, buy); s.Status != models.SignalExecuted {
		t.Fatalf("BUY should execute, got %s", s.Status)
	}
	if s, _ := f.store.Get(ctx, sell); s.Status != models.SignalPending {
		t.Fatalf("SELL above entry must not trigger, got %s", s.Status)
	}
	if s, _ := f.store.Get(ctx, unallocated); s.Status != models.SignalPending {
		t.Fatalf("unallocated signal must stay pending, got %s", s.Status)
	}
	open, _ := memPositions{f.store}.List(ctx, domrepo.PositionFilter{Status: models.PositionOpen})
	if len(open) != 1 || open[0].EntryPrice != 100 || open[0].Quantity != 100 {
		t.Fatalf("opened: %+v", open)
	}
}

// allocatedSignal stores a BUY at entry 100, stop 90, target 120 and sizes it
// at 1% risk of 100k: 100 shares, 10,000 of capital.
func allocatedSignal(t *testing.T, f *lifecycleFixture) uint64 {
	t.Helper()
	id := f.store.add(models.PendingSignal{Symbol: "GAP", TradeDate: lastDay, StrategyCode: "BREAKOUT", Side: models.SideBuy, Entry: 100, StopLoss: 90, Target: 120})
	alloc := NewAllocationService(memAllocations{f.store}, nil, applogger.NewNop(), nil)
	if _, err := alloc.Allocate(context.Background(), AllocationParams{Date: lastDay, TotalCapital: 100_000, RiskPerTradePct: 1, MaxOpenTrades: 5}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return id
}

func TestGapUpTriggerStaysWithinAllocation(t *testing.T) {
	f := newLifecycleFixture(0)
	ctx := context.Background()
	allocatedSignal(t, f)
	f.quotes.set("GAP", 130)

	res, err := f.svc.CheckEntryTriggers(ctx)
	if err != nil || res.Transitioned != 1 {
		t.Fatalf("entry triggers: %+v %v", res, err)
	}
	open, _ := memPositions{f.store}.List(ctx, domrepo.PositionFilter{Status: models.PositionOpen})
	if len(open) != 1 {
		t.Fatalf("opened: %+v", open)
	}
	pos := open[0]
	if cost := float64(pos.Quantity) * pos.EntryPrice; cost > 10_000 {
		t.Fatalf("position costs %v, allocation was 10000", cost)
	}
	if pos.EntryPrice != 100 || pos.RMultiple != 2 {
		t.Fatalf("want planned entry and R 2, got entry=%v r=%v", pos.EntryPrice, pos.RMultiple)
	}
}

func TestEntryOverrideCapsAllocatedQuantity(t *testing.T) {
	f := newLifecycleFixture(0)
	id := allocatedSignal(t, f)

	_, pos, err := f.svc.ExecuteSignal(context.Background(), id, ExecuteOptions{EntryPrice: models.Float(125)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if pos.Quantity != 80 || pos.EntryPrice != 125 {
		t.Fatalf("want 80 @ 125, got %d @ %v", pos.Quantity, pos.EntryPrice)
	}
}

func TestExplicitQuantityIsNotCapped(t *testing.T) {
	f := newLifecycleFixture(0)
	id := allocatedSignal(t, f)

	_, pos, err := f.svc.ExecuteSignal(context.Background(), id, ExecuteOptions{Quantity: i64(100), EntryPrice: models.Float(125)})
	if err != nil || pos.Quantity != 100 {
		t.Fatalf("explicit quantity should win: %+v %v", pos, err)
	}
}

func TestSellSignalCannotOpenPosition(t *testing.T) {
	f := newLifecycleFixture(0)
	ctx := context.Background()
	id := f.store.add(models.PendingSignal{Symbol: "SHORT", TradeDate: lastDay, StrategyCode: "MA_CROSS", Side: models.SideSell, Entry: 100, StopLoss: 105, Target: 90})

	_, _, err := f.svc.ExecuteSignal(ctx, id, ExecuteOptions{Quantity: i64(10)})
	if !errors.Is(err, models.ErrInvalidSetup) {
		t.Fatalf("want ErrInvalidSetup, got %v", err)
	}
	if s, _ := f.store.Get(ctx, id); s.Status != models.SignalPending {
		t.Fatalf("rejected SELL must stay pending, got %s", s.Status)
	}
	open, _ := memPositions{f.store}.List(ctx, domrepo.PositionFilter{})
	if len(open) != 0 {
		t.Fatalf("no position should exist: %+v", open)
	}

	f.quotes.set("SHORT", 99)
	if res, _ := f.svc.CheckEntryTriggers(ctx); res.Transitioned != 0 {
		t.Fatalf("SELL must not auto-execute: %+v", res)
	}
}
