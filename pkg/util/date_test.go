package util

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"
)

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	inputs := []string{
		"2024-10-10",
		"2024-10-10T10:10:10Z",
		strconv.FormatInt(time.Date(2024, 10, 10, 22, 0, 0, 0, time.UTC).Unix(), 10),
	}
	for _, in := range inputs {
		got, ok := ParseDate(in)
		if !ok || !got.Equal(want) {
			t.Fatalf("%q: got %v %v", in, got, ok)
		}
	}
	if _, ok := ParseDate("10/10/2024"); ok {
		t.Fatalf("expected failure for unsupported layout")
	}
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	if got := ParseDateDefault("", def); !got.Equal(Day(def)) {
		t.Fatalf("expected default day, got %v", got)
	}
}

func TestRetryStopsAfterSuccess(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), 2, time.Second, 0, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("flaky")
		}
		return 7, nil
	})
	if err != nil || v != 7 || calls != 2 {
		t.Fatalf("got v=%d err=%v calls=%d", v, err, calls)
	}
}

func TestRetryAppliesTimeout(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), 2, 10*time.Millisecond, 0, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) || calls != 2 {
		t.Fatalf("want deadline after 2 calls, got %v after %d", err, calls)
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" aapl", "MSFT", "aapl", ""})
	if !reflect.DeepEqual(got, []string{"AAPL", "MSFT"}) {
		t.Fatalf("got %v", got)
	}
}
