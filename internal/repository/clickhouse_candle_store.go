package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgch "SignalDesk/pkg/clickhouse"
	applogger "SignalDesk/pkg/logger"
)

// CandleSchema creates the read model the ingestion side loads daily bars
// into. SignalDesk never writes to it.
var CandleSchema = []string{
	`CREATE DATABASE IF NOT EXISTS signaldesk`,
	`CREATE TABLE IF NOT EXISTS signaldesk.instruments (
        symbol  LowCardinality(String),
        market  LowCardinality(String),
        active  UInt8 DEFAULT 1
    ) ENGINE = ReplacingMergeTree
    ORDER BY (market, symbol)`,
	`CREATE TABLE IF NOT EXISTS signaldesk.daily_candles (
        symbol  LowCardinality(String),
        date    Date,
        open    Float64,
        high    Float64,
        low     Float64,
        close   Float64,
        volume  Float64
    ) ENGINE = ReplacingMergeTree
    PARTITION BY toYYYYMM(date)
    ORDER BY (symbol, date)`,
}

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHCandleStore{db: ch.DB(), l: l}
}

func (s *CHCandleStore) ListSymbols(ctx context.Context, market domrepo.Market) ([]string, error) {
	const q = `
        SELECT symbol
        FROM signaldesk.instruments FINAL
        WHERE market = ? AND active = 1
        ORDER BY symbol ASC
    `
	rows, err := s.db.QueryContext(ctx, q, string(market))
	if err != nil {
		s.l.Error("clickhouse list_symbols query error",
			applogger.String("market", string(market)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHCandleStore) GetHistory(ctx context.Context, symbol string, upTo time.Time, limit int) ([]models.Candle, error) {
	start := time.Now()
	const q = `
        SELECT symbol, date, open, high, low, close, volume
        FROM signaldesk.daily_candles FINAL
        WHERE symbol = ? AND date <= ?
        ORDER BY date DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, upTo.Format("2006-01-02"), limit)
	if err != nil {
		s.l.Error("clickhouse get_history query error",
			applogger.String("symbol", symbol),
			applogger.Date("up_to", upTo),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, limit)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Symbol, &c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse get_history scan error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Date = models.TradingDay(c.Date)
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// newest first from the query; callers want ascending
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse get_history ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}
