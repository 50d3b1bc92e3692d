package scoring

import (
	"math"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLiquidityBands(t *testing.T) {
	cases := []struct {
		vol  float64
		want float64
	}{
		{0, 0.3},
		{500_000, 0.45},
		{1_000_000, 0.6},
		{25_500_000, 0.75},
		{50_000_000, 0.9},
		{275_000_000, 0.95},
		{2_000_000_000, 1.0},
	}
	for _, tc := range cases {
		if got := LiquidityFromVolume(tc.vol); !approx(got, tc.want) {
			t.Errorf("volume %.0f: want %v, got %v", tc.vol, tc.want, got)
		}
	}
	if got := Liquidity(nil); got != DefaultScore {
		t.Fatalf("no history: want default, got %v", got)
	}
}

func TestVolatilityFitCurve(t *testing.T) {
	cases := []struct {
		ratio float64
		want  float64
	}{
		{0, 0.2},
		{0.5, 0.35},
		{1.0, 0.5},
		{1.25, 0.6},
		{1.5, 0.7},
		{2.0, 0.85},
		{2.5, 1.0},
		{4.0, 0.6},
		{5.0, 0.5},
		{20.0, 0.3},
	}
	for _, tc := range cases {
		if got := VolatilityFitFromRatio(tc.ratio); !approx(got, tc.want) {
			t.Errorf("ratio %v: want %v, got %v", tc.ratio, tc.want, got)
		}
	}
}

func TestVolatilityFitDefaults(t *testing.T) {
	candles := make([]models.Candle, 20)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = models.Candle{Date: day.AddDate(0, 0, i), High: 101, Low: 99, Close: 100}
	}
	if got := VolatilityFit(100, 0, candles); got != DefaultScore {
		t.Fatalf("missing stop: got %v", got)
	}
	if got := VolatilityFit(100, 101, candles); got != DefaultScore {
		t.Fatalf("stop above entry: got %v", got)
	}
	if got := VolatilityFit(100, 95, candles[:10]); got != DefaultScore {
		t.Fatalf("short history: got %v", got)
	}
	// ATR = 2, stop distance = 4 -> ratio 2 -> 0.85
	if got := VolatilityFit(100, 96, candles); !approx(got, 0.85) {
		t.Fatalf("want 0.85, got %v", got)
	}
}

func TestCompositeSelector(t *testing.T) {
	c := Components{Confidence: 2, RMultiple: 3, Liquidity: 0.8, WinRate: 0.6, VolatilityFit: 0.9}
	base := 0.35*2 + 0.25*3 + 0.15*0.8

	if got := Composite(c, SelectWinRate); !approx(got, base+0.15*0.6) {
		t.Fatalf("win-rate path: got %v", got)
	}
	if got := Composite(c, SelectVolatilityFit); !approx(got, base+0.10*0.9) {
		t.Fatalf("volatility path: got %v", got)
	}
	if Composite(c, SelectWinRate) != Composite(c, SelectWinRate) {
		t.Fatalf("composite not deterministic")
	}
}

func TestWinRateDefault(t *testing.T) {
	if got := WinRate(0, 0); got != DefaultScore {
		t.Fatalf("no history: got %v", got)
	}
	if got := WinRate(0.25, 4); got != 0.25 {
		t.Fatalf("want 0.25, got %v", got)
	}
}
