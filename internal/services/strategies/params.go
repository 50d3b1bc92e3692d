package strategies

import (
	"encoding/json"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

var validate = validator.New()

// decodeParams fills out from defaults, overlays params and validates the
// result. Any failure wraps models.ErrInvalidParams.
func decodeParams(code string, params service.Params, out any) error {
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("%w: %s defaults: %v", models.ErrInvalidParams, code, err)
	}
	if len(params) > 0 {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", models.ErrInvalidParams, code, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %s: %v", models.ErrInvalidParams, code, err)
		}
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrInvalidParams, code, err)
	}
	return nil
}

func checkMode(mode service.Mode) error {
	switch mode {
	case service.ModeBacktest, service.ModeScreen:
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", models.ErrInvalidParams, mode)
	}
}

// scan runs at over the indices allowed by mode. required is the number of
// candles that must exist up to and including an evaluated index.
func scan(candles []models.Candle, mode service.Mode, required int, at func(i int) []models.RawSignal) service.Result {
	if required < 1 {
		required = 1
	}
	if len(candles) < required {
		return service.Result{}
	}
	if mode == service.ModeScreen {
		sigs := at(len(candles) - 1)
		return service.Result{Signals: sigs, Actionable: len(sigs) > 0}
	}
	var out []models.RawSignal
	for i := required - 1; i < len(candles); i++ {
		out = append(out, at(i)...)
	}
	return service.Result{Signals: out}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// longSignal builds a BUY with a target at rewardRatio times the risk. A zero
// ratio leaves the target empty.
func longSignal(code string, c models.Candle, stop, rewardRatio float64) models.RawSignal {
	sig := models.RawSignal{
		Symbol:       c.Symbol,
		Date:         c.Date,
		Side:         models.SideBuy,
		Entry:        c.Close,
		StopLoss:     models.Float(stop),
		StrategyCode: code,
	}
	if rewardRatio > 0 {
		sig.Target = models.Float(c.Close + rewardRatio*(c.Close-stop))
	}
	return sig
}

func shortSignal(code string, c models.Candle, stop, rewardRatio float64) models.RawSignal {
	sig := models.RawSignal{
		Symbol:       c.Symbol,
		Date:         c.Date,
		Side:         models.SideSell,
		Entry:        c.Close,
		StopLoss:     models.Float(stop),
		StrategyCode: code,
	}
	if rewardRatio > 0 {
		sig.Target = models.Float(c.Close - rewardRatio*(stop-c.Close))
	}
	return sig
}
