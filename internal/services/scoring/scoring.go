package scoring

import (
	"math"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/features"
)

// Selector picks the fourth sub-score of the composite. Standalone signals
// use their strategy's win rate; ensemble signals use volatility fit.
type Selector int

const (
	SelectWinRate Selector = iota
	SelectVolatilityFit
)

func (s Selector) String() string {
	if s == SelectVolatilityFit {
		return "volatility_fit"
	}
	return "win_rate"
}

// DefaultScore is used whenever an input is unavailable.
const DefaultScore = 0.5

// LiquidityWindow is the number of recent candles averaged for liquidity.
const LiquidityWindow = 20

type Weights struct {
	Confidence    float64
	RMultiple     float64
	Liquidity     float64
	WinRate       float64
	VolatilityFit float64
}

var DefaultWeights = Weights{
	Confidence:    0.35,
	RMultiple:     0.25,
	Liquidity:     0.15,
	WinRate:       0.15,
	VolatilityFit: 0.10,
}

// Components are the raw inputs of a rank score. RMultiple is used unbounded.
type Components struct {
	Confidence    float64
	RMultiple     float64
	Liquidity     float64
	WinRate       float64
	VolatilityFit float64
}

// Composite scores c with the default weights.
func Composite(c Components, sel Selector) float64 {
	return DefaultWeights.Composite(c, sel)
}

// Composite is the weighted sum of confidence, R-multiple, liquidity and the
// selected fourth component.
func (w Weights) Composite(c Components, sel Selector) float64 {
	score := w.Confidence*c.Confidence + w.RMultiple*c.RMultiple + w.Liquidity*c.Liquidity
	switch sel {
	case SelectVolatilityFit:
		score += w.VolatilityFit * c.VolatilityFit
	default:
		score += w.WinRate * c.WinRate
	}
	return score
}

// Liquidity maps the mean volume of the last 20 candles onto [0.3, 1.0].
func Liquidity(candles []models.Candle) float64 {
	avg, ok := features.AverageVolume(candles, LiquidityWindow)
	if !ok {
		return DefaultScore
	}
	return LiquidityFromVolume(avg)
}

// LiquidityFromVolume applies the three linear volume bands:
// [0,1M) -> [0.3,0.6), [1M,50M) -> [0.6,0.9), [50M,500M] -> [0.9,1.0].
func LiquidityFromVolume(v float64) float64 {
	const (
		low  = 1_000_000.0
		high = 50_000_000.0
		top  = 500_000_000.0
	)
	switch {
	case v <= 0:
		return 0.3
	case v < low:
		return 0.3 + 0.3*v/low
	case v < high:
		return 0.6 + 0.3*(v-low)/(high-low)
	default:
		return 0.9 + 0.1*math.Min(1, (v-high)/(top-high))
	}
}

// VolatilityFit compares the stop distance with ATR14, both as a share of
// entry. Unavailable stop or ATR scores DefaultScore.
func VolatilityFit(entry, stop float64, candles []models.Candle) float64 {
	if entry <= 0 || stop <= 0 || stop >= entry {
		return DefaultScore
	}
	atr := features.ATR(candles, features.ATRPeriod)
	if atr <= 0 {
		return DefaultScore
	}
	stopPct := (entry - stop) / entry * 100
	atrPct := atr / entry * 100
	return VolatilityFitFromRatio(stopPct / atrPct)
}

// VolatilityFitFromRatio is the piecewise-linear fit curve. Stops between
// 1.5 and 2.5 ATR score best; very wide stops decay toward a 0.3 floor.
func VolatilityFitFromRatio(r float64) float64 {
	switch {
	case r < 0:
		return DefaultScore
	case r < 1.0:
		return 0.2 + 0.3*r
	case r < 1.5:
		return 0.5 + 0.2*(r-1.0)/0.5
	case r < 2.5:
		return 0.7 + 0.3*(r-1.5)
	case r <= 4.0:
		return 1.0 - 0.4*(r-2.5)/1.5
	default:
		return math.Max(0.3, 0.6-0.1*(r-4.0))
	}
}

// WinRate falls back to DefaultScore without closed history.
func WinRate(rate float64, closed int) float64 {
	if closed <= 0 {
		return DefaultScore
	}
	return rate
}

// RMultiple is the planned reward-to-risk ratio, 0 when unavailable.
func RMultiple(entry, stop, target float64) float64 {
	return models.RMultiple(entry, stop, target)
}
