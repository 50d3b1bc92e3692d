package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationSnapshot is the immutable result of one allocation simulation.
type AllocationSnapshot struct {
	ID              string               `gorm:"type:varchar(36);primaryKey" json:"id"`
	RunDate         time.Time            `gorm:"type:date;not null;index" json:"run_date"`
	TotalCapital    decimal.Decimal      `gorm:"type:numeric(24,6);not null" json:"total_capital"`
	DeployedCapital decimal.Decimal      `gorm:"type:numeric(24,6);not null" json:"deployed_capital"`
	FreeCapital     decimal.Decimal      `gorm:"type:numeric(24,6);not null" json:"free_capital"`
	ExpectedR       float64              `gorm:"column:expected_r;not null;default:0" json:"expected_r"`
	RiskPerTradePct float64              `gorm:"not null" json:"risk_per_trade_pct"`
	MaxOpenTrades   int                  `gorm:"not null" json:"max_open_trades"`
	Positions       []AllocationPosition `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE" json:"positions"`
	CreatedAt       time.Time            `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (AllocationSnapshot) TableName() string {
	return "allocation_snapshots"
}

// AllocationPosition is one sized candidate inside a snapshot.
type AllocationPosition struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"-"`
	SnapshotID    string          `gorm:"type:varchar(36);not null;index" json:"-"`
	Rank          int             `gorm:"not null" json:"rank"`
	SignalID      uint64          `gorm:"not null;index" json:"signal_id"`
	Symbol        string          `gorm:"type:varchar(32);not null" json:"symbol"`
	Quantity      int64           `gorm:"not null" json:"quantity"`
	Entry         float64         `gorm:"not null" json:"entry"`
	StopLoss      float64         `gorm:"not null" json:"stop_loss"`
	CapitalUsed   decimal.Decimal `gorm:"type:numeric(24,6);not null" json:"capital_used"`
	RiskAmount    decimal.Decimal `gorm:"type:numeric(24,6);not null" json:"risk_amount"`
	ExpectedR     float64         `gorm:"column:expected_r;not null;default:0" json:"expected_r"`
	AllocationPct float64         `gorm:"not null" json:"allocation_pct"`
}

func (AllocationPosition) TableName() string {
	return "allocation_positions"
}

// PositionFor returns the committed position for a signal, if any.
func (s *AllocationSnapshot) PositionFor(signalID uint64) (AllocationPosition, bool) {
	for _, p := range s.Positions {
		if p.SignalID == signalID {
			return p, true
		}
	}
	return AllocationPosition{}, false
}
