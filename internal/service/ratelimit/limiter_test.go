package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowRefills(t *testing.T) {
	l := New(2, 1)
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("alpaca") || !l.Allow("alpaca") {
		t.Fatalf("burst of 2 should pass")
	}
	if l.Allow("alpaca") {
		t.Fatalf("third call should be limited")
	}
	now = now.Add(time.Second)
	if !l.Allow("alpaca") {
		t.Fatalf("one token should refill after 1s")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(1, 0.001)
	l.Allow("k")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k"); err == nil {
		t.Fatalf("want context error")
	}
}
