package features

import (
	"math"

	"SignalDesk/internal/domain/models"
)

// ATRPeriod is the number of day-pairs averaged by ATR14.
const ATRPeriod = 14

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(cur models.Candle, prevClose float64) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
}

// ATR averages the true range over the last period day-pairs. It returns 0
// when fewer than period+1 candles are available.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	return sum / float64(period)
}

// AverageVolume is the mean volume of the last n candles (fewer if the
// history is shorter). The second result is false for an empty history.
func AverageVolume(candles []models.Candle, n int) (float64, bool) {
	if len(candles) == 0 || n <= 0 {
		return 0, false
	}
	start := len(candles) - n
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, c := range candles[start:] {
		sum += c.Volume
	}
	return sum / float64(len(candles)-start), true
}

// SMA is the simple moving average of closes over the window ending at idx.
func SMA(candles []models.Candle, idx, window int) float64 {
	if window <= 0 || idx+1 < window || idx >= len(candles) {
		return 0
	}
	sum := 0.0
	for i := idx - window + 1; i <= idx; i++ {
		sum += candles[i].Close
	}
	return sum / float64(window)
}

// HighestHigh returns the max high over [from, to).
func HighestHigh(candles []models.Candle, from, to int) float64 {
	out := math.Inf(-1)
	for i := from; i < to; i++ {
		out = math.Max(out, candles[i].High)
	}
	return out
}

// LowestLow returns the min low over [from, to).
func LowestLow(candles []models.Candle, from, to int) float64 {
	out := math.Inf(1)
	for i := from; i < to; i++ {
		out = math.Min(out, candles[i].Low)
	}
	return out
}
