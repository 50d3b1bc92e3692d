package strategies

import (
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/features"
)

type maCrossParams struct {
	Fast        int     `json:"fast" default:"10" validate:"gte=2"`
	Slow        int     `json:"slow" default:"30" validate:"gtfield=Fast"`
	StopPct     float64 `json:"stop_pct" default:"0.05" validate:"gt=0,lt=1"`
	RewardRatio float64 `json:"reward_ratio" default:"2" validate:"gt=0"`
	EmitSell    bool    `json:"emit_sell" default:"true"`
}

// MACross fires when the fast close SMA crosses the slow one: BUY on an
// up-cross, SELL on a down-cross.
type MACross struct{}

func NewMACross() *MACross { return &MACross{} }

func (MACross) Code() string { return "MA_CROSS" }

func (MACross) MinCandles() int { return 31 }

func (s MACross) Evaluate(candles []models.Candle, mode service.Mode, params service.Params) (service.Result, error) {
	var p maCrossParams
	if err := decodeParams(s.Code(), params, &p); err != nil {
		return service.Result{}, err
	}
	if err := checkMode(mode); err != nil {
		return service.Result{}, err
	}
	required := maxInt(s.MinCandles(), p.Slow+1)
	return scan(candles, mode, required, func(i int) []models.RawSignal {
		fastPrev, slowPrev := features.SMA(candles, i-1, p.Fast), features.SMA(candles, i-1, p.Slow)
		fast, slow := features.SMA(candles, i, p.Fast), features.SMA(candles, i, p.Slow)
		c := candles[i]
		switch {
		case fastPrev <= slowPrev && fast > slow:
			return []models.RawSignal{longSignal(s.Code(), c, c.Close*(1-p.StopPct), p.RewardRatio)}
		case p.EmitSell && fastPrev >= slowPrev && fast < slow:
			return []models.RawSignal{shortSignal(s.Code(), c, c.Close*(1+p.StopPct), p.RewardRatio)}
		}
		return nil
	}), nil
}
