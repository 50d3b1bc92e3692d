package models

import "time"

// RMultiple is the planned reward-to-risk ratio (target-entry)/(entry-stop).
// Zero or negative stop/target count as unavailable and yield 0, as does a
// non-positive risk.
func RMultiple(entry, stop, target float64) float64 {
	if stop <= 0 || target <= 0 {
		return 0
	}
	risk := entry - stop
	if risk <= 0 {
		return 0
	}
	return (target - entry) / risk
}

// PnL returns the absolute and percent profit of a long trade.
func PnL(entry, exit float64, quantity int64) (float64, float64) {
	pnl := (exit - entry) * float64(quantity)
	if entry == 0 {
		return pnl, 0
	}
	return pnl, (exit - entry) / entry * 100
}

// TradingDay truncates t to its UTC calendar day.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
