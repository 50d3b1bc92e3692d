package models

import (
	"errors"
	"testing"
	"time"
)

func TestSignalTransitionsAreMonotonic(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	s := &PendingSignal{ID: 1, Status: SignalPending}
	if err := s.Execute(now); err != nil {
		t.Fatalf("execute pending: %v", err)
	}
	if s.Status != SignalExecuted || s.DecidedAt == nil {
		t.Fatalf("unexpected state %s decided=%v", s.Status, s.DecidedAt)
	}
	if err := s.Ignore(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.Execute(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on re-execute, got %v", err)
	}
	if s.Status != SignalExecuted {
		t.Fatalf("status changed after rejected transition: %s", s.Status)
	}

	ignored := &PendingSignal{ID: 2, Status: SignalPending}
	if err := ignored.Ignore(now); err != nil {
		t.Fatalf("ignore pending: %v", err)
	}
	if err := ignored.Execute(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPositionCloseAtTarget(t *testing.T) {
	sig := &PendingSignal{ID: 7, Symbol: "X", StrategyCode: "MA_CROSS", Side: SideBuy, StopLoss: 45, Target: 60}
	opened := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p, err := OpenPosition(sig, 10, 50, opened)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	reason, ok := p.ExitTrigger(60, opened, 0)
	if !ok || reason != ExitTarget {
		t.Fatalf("expected TARGET trigger, got %q %v", reason, ok)
	}
	if err := p.Close(60, reason, opened.Add(48*time.Hour)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if p.Status != PositionClosed || p.ExitReason != ExitTarget {
		t.Fatalf("unexpected close state %s %s", p.Status, p.ExitReason)
	}
	if *p.RealizedPnL != 100 {
		t.Fatalf("pnl: want 100, got %v", *p.RealizedPnL)
	}
	if p.RMultiple != 2.0 {
		t.Fatalf("r multiple: want 2, got %v", p.RMultiple)
	}
	if p.UnrealizedPnL != nil || p.CurrentPrice != nil || p.UnrealizedPnLPct != nil {
		t.Fatalf("unrealized fields not cleared")
	}
	if err := p.Close(61, ExitManual, opened); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double close, got %v", err)
	}
	if err := p.MarkToMarket(55); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on mark of closed, got %v", err)
	}
}

func TestPositionRoundTripIsFlat(t *testing.T) {
	sig := &PendingSignal{ID: 3, Symbol: "Y", Side: SideBuy, StopLoss: 90, Target: 120}
	p, err := OpenPosition(sig, 37, 100, time.Now())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := p.Close(100, ExitManual, time.Now()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if *p.RealizedPnL != 0 || *p.RealizedPnLPct != 0 {
		t.Fatalf("round trip not flat: %v %v", *p.RealizedPnL, *p.RealizedPnLPct)
	}
}

func TestExitTriggerPriority(t *testing.T) {
	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p := Position{Status: PositionOpen, EntryPrice: 50, StopLoss: 45, Target: 60, EntryDate: entry}

	cases := []struct {
		name   string
		price  float64
		now    time.Time
		hold   int
		want   ExitReason
		exited bool
	}{
		{"stop", 44, entry, 0, ExitStopLoss, true},
		{"stop at level", 45, entry, 0, ExitStopLoss, true},
		{"target", 61, entry, 0, ExitTarget, true},
		{"inside band", 52, entry, 0, "", false},
		{"time rule", 52, entry.AddDate(0, 0, 10), 10, ExitTime, true},
		{"time rule disabled", 52, entry.AddDate(0, 0, 100), 0, "", false},
	}
	for _, tc := range cases {
		got, ok := p.ExitTrigger(tc.price, tc.now, tc.hold)
		if ok != tc.exited || got != tc.want {
			t.Errorf("%s: got %q %v, want %q %v", tc.name, got, ok, tc.want, tc.exited)
		}
	}
}

func TestRMultipleUnavailable(t *testing.T) {
	if got := RMultiple(100, 0, 120); got != 0 {
		t.Fatalf("missing stop: got %v", got)
	}
	if got := RMultiple(100, 95, 0); got != 0 {
		t.Fatalf("missing target: got %v", got)
	}
	if got := RMultiple(100, 101, 120); got != 0 {
		t.Fatalf("stop above entry: got %v", got)
	}
	if got := RMultiple(50, 45, 60); got != 2 {
		t.Fatalf("want 2, got %v", got)
	}
}

func TestVoteMapDecodesStoredVotes(t *testing.T) {
	s := PendingFromEnsemble(EnsembleSignal{
		Symbol: "AAA",
		Votes:  map[string]Side{"MA_CROSS": SideBuy, "RSI": SideSell},
	}, "run")
	votes, err := s.VoteMap()
	if err != nil || len(votes) != 2 || votes["RSI"] != SideSell {
		t.Fatalf("votes: %v %v", votes, err)
	}

	empty := PendingSignal{ID: 2}
	if votes, err := empty.VoteMap(); err != nil || len(votes) != 0 {
		t.Fatalf("no votes should decode empty: %v %v", votes, err)
	}
}

func TestVoteMapReportsCorruptVotes(t *testing.T) {
	s := PendingSignal{ID: 7, Votes: []byte(`{"MA_CROSS":`)}
	votes, err := s.VoteMap()
	if err == nil || votes != nil {
		t.Fatalf("corrupt votes should fail, got %v", votes)
	}
}

func TestOpenPositionRejectsSell(t *testing.T) {
	sig := &PendingSignal{ID: 3, Side: SideSell, Entry: 100, StopLoss: 105, Target: 90}
	if _, err := OpenPosition(sig, 10, 100, time.Now()); !errors.Is(err, ErrInvalidSetup) {
		t.Fatalf("SELL should not open, got %v", err)
	}
}
