package service

import "SignalDesk/internal/domain/models"

// Mode selects which candle indices a strategy scans.
type Mode string

const (
	// ModeBacktest scans every index with enough lookback and returns
	// historical, non-actionable signals.
	ModeBacktest Mode = "BACKTEST"
	// ModeScreen evaluates only the final candle.
	ModeScreen Mode = "SCREEN"
)

// Params are named numeric/boolean strategy options.
type Params map[string]any

// Result is the output of one evaluation.
type Result struct {
	Signals    []models.RawSignal
	Actionable bool
}

// Strategy is a pure function over an ascending candle sequence. It must not
// depend on anything but the candles and its params.
type Strategy interface {
	Code() string
	// MinCandles is the shortest history the strategy accepts with default
	// params. Shorter input yields an empty result, not an error.
	MinCandles() int
	// Evaluate validates params before scanning and wraps
	// models.ErrInvalidParams on failure.
	Evaluate(candles []models.Candle, mode Mode, params Params) (Result, error)
}

// StrategyRegistry resolves strategies by code.
type StrategyRegistry interface {
	Get(code string) (Strategy, bool)
	Codes() []string
}
