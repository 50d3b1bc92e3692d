package models

import (
	"fmt"
	"time"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

type ExitReason string

const (
	ExitStopLoss ExitReason = "STOP_LOSS"
	ExitTarget   ExitReason = "TARGET"
	ExitTime     ExitReason = "TIME"
	ExitManual   ExitReason = "MANUAL"
)

// Position is a paper trade opened from an executed signal. Closed positions
// are kept for win-rate statistics.
type Position struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SignalID     uint64         `gorm:"not null;uniqueIndex" json:"signal_id"`
	Symbol       string         `gorm:"type:varchar(32);not null;index" json:"symbol"`
	StrategyCode string         `gorm:"type:varchar(64);not null;index" json:"strategy_code"`
	EntryDate    time.Time      `gorm:"type:date;not null" json:"entry_date"`
	EntryPrice   float64        `gorm:"not null" json:"entry_price"`
	Quantity     int64          `gorm:"not null" json:"quantity"`
	StopLoss     float64        `gorm:"not null;default:0" json:"stop_loss"`
	Target       float64        `gorm:"not null;default:0" json:"target"`
	Status       PositionStatus `gorm:"type:varchar(16);not null;default:'OPEN';index" json:"status"`
	ExitReason   ExitReason     `gorm:"type:varchar(16)" json:"exit_reason,omitempty"`
	ExitDate     *time.Time     `gorm:"type:date" json:"exit_date,omitempty"`
	ExitPrice    *float64       `json:"exit_price,omitempty"`

	CurrentPrice     *float64 `json:"current_price,omitempty"`
	UnrealizedPnL    *float64 `gorm:"column:unrealized_pnl" json:"unrealized_pnl,omitempty"`
	UnrealizedPnLPct *float64 `gorm:"column:unrealized_pnl_pct" json:"unrealized_pnl_pct,omitempty"`
	RealizedPnL      *float64 `gorm:"column:realized_pnl" json:"realized_pnl,omitempty"`
	RealizedPnLPct   *float64 `gorm:"column:realized_pnl_pct" json:"realized_pnl_pct,omitempty"`
	RMultiple        float64  `gorm:"column:r_multiple;not null;default:0" json:"r_multiple"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// OpenPosition builds an OPEN position for an executed signal. Stop and target
// are copied verbatim. Positions are long only: exits, P&L and R-multiple all
// assume a BUY, so any other side is rejected.
func OpenPosition(sig *PendingSignal, quantity int64, entry float64, at time.Time) (Position, error) {
	if sig.Side != SideBuy {
		return Position{}, fmt.Errorf("%w: signal %d is %s, only BUY signals open positions", ErrInvalidSetup, sig.ID, sig.Side)
	}
	if quantity <= 0 {
		return Position{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidSetup, quantity)
	}
	if entry <= 0 {
		return Position{}, fmt.Errorf("%w: entry price must be positive, got %v", ErrInvalidSetup, entry)
	}
	return Position{
		SignalID:     sig.ID,
		Symbol:       sig.Symbol,
		StrategyCode: sig.StrategyCode,
		EntryDate:    TradingDay(at),
		EntryPrice:   entry,
		Quantity:     quantity,
		StopLoss:     sig.StopLoss,
		Target:       sig.Target,
		Status:       PositionOpen,
		RMultiple:    RMultiple(entry, sig.StopLoss, sig.Target),
	}, nil
}

// MarkToMarket refreshes the unrealized fields of an OPEN position.
func (p *Position) MarkToMarket(price float64) error {
	if p.Status != PositionOpen {
		return fmt.Errorf("%w: position %d is %s", ErrInvalidTransition, p.ID, p.Status)
	}
	pnl, pct := PnL(p.EntryPrice, price, p.Quantity)
	p.CurrentPrice = Float(price)
	p.UnrealizedPnL = Float(pnl)
	p.UnrealizedPnLPct = Float(pct)
	p.RMultiple = RMultiple(p.EntryPrice, p.StopLoss, p.Target)
	return nil
}

// Close moves an OPEN position to CLOSED, books realized P&L and clears the
// unrealized fields.
func (p *Position) Close(price float64, reason ExitReason, at time.Time) error {
	if p.Status != PositionOpen {
		return fmt.Errorf("%w: position %d is %s", ErrInvalidTransition, p.ID, p.Status)
	}
	if price <= 0 {
		return fmt.Errorf("%w: exit price must be positive, got %v", ErrInvalidSetup, price)
	}
	pnl, pct := PnL(p.EntryPrice, price, p.Quantity)
	day := TradingDay(at)
	p.Status = PositionClosed
	p.ExitReason = reason
	p.ExitDate = &day
	p.ExitPrice = Float(price)
	p.RealizedPnL = Float(pnl)
	p.RealizedPnLPct = Float(pct)
	p.CurrentPrice = nil
	p.UnrealizedPnL = nil
	p.UnrealizedPnLPct = nil
	p.RMultiple = RMultiple(p.EntryPrice, p.StopLoss, p.Target)
	return nil
}

// ExitTrigger picks the automatic exit for price, if any. Stop-loss wins over
// target, and both win over the holding-period rule. maxHoldDays <= 0
// disables the TIME rule.
func (p *Position) ExitTrigger(price float64, now time.Time, maxHoldDays int) (ExitReason, bool) {
	switch {
	case p.StopLoss > 0 && price <= p.StopLoss:
		return ExitStopLoss, true
	case p.Target > 0 && price >= p.Target:
		return ExitTarget, true
	case maxHoldDays > 0 && p.HeldDays(now) >= maxHoldDays:
		return ExitTime, true
	}
	return "", false
}

// HeldDays counts calendar days since entry.
func (p *Position) HeldDays(now time.Time) int {
	return int(TradingDay(now).Sub(p.EntryDate).Hours() / 24)
}

// Profitable reports whether a closed position booked a gain.
func (p *Position) Profitable() bool {
	return p.Status == PositionClosed && p.RealizedPnL != nil && *p.RealizedPnL > 0
}
