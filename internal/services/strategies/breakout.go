package strategies

import (
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/features"
)

type breakoutParams struct {
	Lookback       int     `json:"lookback" default:"20" validate:"gte=2"`
	RewardRatio    float64 `json:"reward_ratio" default:"2" validate:"gt=0"`
	VolumeMultiple float64 `json:"volume_multiple" default:"0" validate:"gte=0"`
}

// Breakout buys a close above the highest high of the prior window, with
// the stop at the window's lowest low. A positive volume multiple also
// requires volume above that multiple of the window's average.
type Breakout struct{}

func NewBreakout() *Breakout { return &Breakout{} }

func (Breakout) Code() string { return "BREAKOUT" }

func (Breakout) MinCandles() int { return 21 }

func (s Breakout) Evaluate(candles []models.Candle, mode service.Mode, params service.Params) (service.Result, error) {
	var p breakoutParams
	if err := decodeParams(s.Code(), params, &p); err != nil {
		return service.Result{}, err
	}
	if err := checkMode(mode); err != nil {
		return service.Result{}, err
	}
	required := maxInt(s.MinCandles(), p.Lookback+1)
	return scan(candles, mode, required, func(i int) []models.RawSignal {
		from := i - p.Lookback
		c := candles[i]
		if c.Close <= features.HighestHigh(candles, from, i) {
			return nil
		}
		if p.VolumeMultiple > 0 {
			avg, _ := features.AverageVolume(candles[from:i], p.Lookback)
			if c.Volume < p.VolumeMultiple*avg {
				return nil
			}
		}
		return []models.RawSignal{longSignal(s.Code(), c, features.LowestLow(candles, from, i), p.RewardRatio)}
	}), nil
}
