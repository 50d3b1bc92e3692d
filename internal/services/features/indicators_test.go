package features

import (
	"math"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
)

func flatCandles(n int, price, rng, vol float64) []models.Candle {
	out := make([]models.Candle, n)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = models.Candle{
			Symbol: "T",
			Date:   day.AddDate(0, 0, i),
			Open:   price,
			High:   price + rng/2,
			Low:    price - rng/2,
			Close:  price,
			Volume: vol,
		}
	}
	return out
}

func TestTrueRangeUsesGap(t *testing.T) {
	c := models.Candle{High: 105, Low: 103, Close: 104}
	if got := TrueRange(c, 100); got != 5 {
		t.Fatalf("gap up: want 5, got %v", got)
	}
	if got := TrueRange(c, 104); got != 2 {
		t.Fatalf("no gap: want 2, got %v", got)
	}
}

func TestATRNeedsFifteenCandles(t *testing.T) {
	if got := ATR(flatCandles(14, 100, 2, 1), ATRPeriod); got != 0 {
		t.Fatalf("short history: want 0, got %v", got)
	}
	if got := ATR(flatCandles(15, 100, 2, 1), ATRPeriod); math.Abs(got-2) > 1e-9 {
		t.Fatalf("want 2, got %v", got)
	}
}

func TestAverageVolumeWindow(t *testing.T) {
	candles := flatCandles(30, 10, 1, 1000)
	for i := 0; i < 10; i++ {
		candles[i].Volume = 1
	}
	avg, ok := AverageVolume(candles, 20)
	if !ok || avg != 1000 {
		t.Fatalf("want 1000 over last 20, got %v %v", avg, ok)
	}
	if _, ok := AverageVolume(nil, 20); ok {
		t.Fatalf("empty history should report no data")
	}
}

func TestSMA(t *testing.T) {
	candles := flatCandles(5, 0, 0, 0)
	for i := range candles {
		candles[i].Close = float64(i + 1)
	}
	if got := SMA(candles, 4, 5); got != 3 {
		t.Fatalf("want 3, got %v", got)
	}
	if got := SMA(candles, 2, 5); got != 0 {
		t.Fatalf("insufficient window: want 0, got %v", got)
	}
}
