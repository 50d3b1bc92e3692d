package models

// Requests for the desk HTTP endpoints. Dates are YYYY-MM-DD; empty means today.

type EnsembleRunRequest struct {
	Strategies []string                  `json:"strategies" validate:"required,min=1,dive,required"`
	Symbols    []string                  `json:"symbols" validate:"omitempty,dive,required"`
	Date       string                    `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Market     string                    `json:"market" default:"US" validate:"oneof=US IN CRYPTO"`
	Persist    bool                      `json:"persist"`
	Params     map[string]map[string]any `json:"params"`
}

type RankRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type ListSignalsRequest struct {
	Date   string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	Status string `query:"status" validate:"omitempty,oneof=PENDING IGNORED EXECUTED"`
	Limit  int    `query:"limit" default:"200" validate:"gte=1,lte=1000"`
}

type ExecuteSignalRequest struct {
	ID         uint64   `param:"id" validate:"required"`
	Quantity   *int64   `json:"quantity" validate:"omitempty,gt=0"`
	EntryPrice *float64 `json:"entry_price" validate:"omitempty,gt=0"`
}

type SignalIDRequest struct {
	ID uint64 `param:"id" validate:"required"`
}

type AllocationRequest struct {
	Date            string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	TotalCapital    float64 `json:"total_capital" validate:"gt=0"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct" default:"1" validate:"gt=0,lte=100"`
	MaxOpenTrades   int     `json:"max_open_trades" default:"5" validate:"gte=1,lte=100"`
}

type LatestAllocationRequest struct {
	Date string `query:"date" validate:"omitempty,datetime=2006-01-02"`
}

type ListPositionsRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=OPEN CLOSED"`
	Limit  int    `query:"limit" default:"200" validate:"gte=1,lte=1000"`
}

type ClosePositionRequest struct {
	ID        uint64   `param:"id" validate:"required"`
	ExitPrice *float64 `json:"exit_price" validate:"omitempty,gt=0"`
}

type BacktestRequest struct {
	Strategy string         `json:"strategy" validate:"required"`
	Symbols  []string       `json:"symbols" validate:"omitempty,dive,required"`
	Market   string         `json:"market" default:"US" validate:"oneof=US IN CRYPTO"`
	Date     string         `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Bars     int            `json:"bars" default:"500" validate:"gte=10,lte=5000"`
	Params   map[string]any `json:"params"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	Date   string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	Limit  int    `query:"limit" default:"250" validate:"gte=1,lte=5000"`
}

type JobRequest struct {
	Type   string `param:"type" validate:"required,oneof=daily_screen rank_pending lifecycle_refresh"`
	Date   string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Market string `json:"market" validate:"omitempty,oneof=US IN CRYPTO"`
}
