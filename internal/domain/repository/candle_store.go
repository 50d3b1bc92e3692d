package repository

import (
	"context"
	"time"

	"SignalDesk/internal/domain/models"
)

// CandleStore provides read-only access to end-of-day candles.
type CandleStore interface {
	// ListSymbols returns the instrument universe for a market.
	ListSymbols(ctx context.Context, market Market) ([]string, error)
	// GetHistory returns up to limit candles dated on or before upTo, in
	// ascending date order.
	GetHistory(ctx context.Context, symbol string, upTo time.Time, limit int) ([]models.Candle, error)
}
