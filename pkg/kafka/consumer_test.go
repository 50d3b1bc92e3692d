package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type flakyHandler struct {
	failures int
	calls    int
	panics   bool
}

func (h *flakyHandler) Topic() string { return "candles" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.panics {
		panic("boom")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T) *Consumer {
	t.Helper()
	c, err := NewConsumer(nil,
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func TestHandleWithRetryRecovers(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{failures: 2}
	if err := c.handleWithRetry(h, kafka.Message{Topic: "candles"}); err != nil {
		t.Fatalf("want success on third attempt, got %v", err)
	}
	if h.calls != 3 {
		t.Fatalf("want 3 calls, got %d", h.calls)
	}
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{failures: 10}
	if err := c.handleWithRetry(h, kafka.Message{Topic: "candles"}); err == nil {
		t.Fatalf("want error after retries")
	}
	if h.calls != 3 {
		t.Fatalf("want 1 try + 2 retries, got %d", h.calls)
	}
}

func TestSafeHandleRecoversPanic(t *testing.T) {
	c := newTestConsumer(t)
	if err := c.safeHandle(&flakyHandler{panics: true}, kafka.Message{}); err == nil {
		t.Fatalf("panic should become an error")
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 1; attempt < 20; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: backoff %v out of bounds", attempt, d)
		}
	}
}

func TestStartNeedsHandlers(t *testing.T) {
	if err := newTestConsumer(t).Start(); err == nil {
		t.Fatalf("want error without handlers")
	}
}
