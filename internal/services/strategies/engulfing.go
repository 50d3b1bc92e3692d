package strategies

import (
	"math"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

type engulfingParams struct {
	TrendLookback int `json:"trend_lookback" default:"5" validate:"gte=2"`
}

// Engulfing buys a bullish engulfing bar after a short decline. It sets a
// structural stop below the two-bar pattern and no target.
type Engulfing struct{}

func NewEngulfing() *Engulfing { return &Engulfing{} }

func (Engulfing) Code() string { return "ENGULFING" }

func (Engulfing) MinCandles() int { return 6 }

func (s Engulfing) Evaluate(candles []models.Candle, mode service.Mode, params service.Params) (service.Result, error) {
	var p engulfingParams
	if err := decodeParams(s.Code(), params, &p); err != nil {
		return service.Result{}, err
	}
	if err := checkMode(mode); err != nil {
		return service.Result{}, err
	}
	required := maxInt(s.MinCandles(), p.TrendLookback+1)
	return scan(candles, mode, required, func(i int) []models.RawSignal {
		prev, cur := candles[i-1], candles[i]
		declining := prev.Close < candles[i-p.TrendLookback].Close
		bearishPrev := prev.Close < prev.Open
		engulfs := cur.Close > cur.Open && cur.Open <= prev.Close && cur.Close >= prev.Open
		if !declining || !bearishPrev || !engulfs {
			return nil
		}
		stop := math.Min(cur.Low, prev.Low)
		return []models.RawSignal{longSignal(s.Code(), cur, stop, 0)}
	}), nil
}
