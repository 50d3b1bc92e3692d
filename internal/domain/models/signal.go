package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// EnsembleStrategyCode marks persisted signals produced by ensemble voting.
const EnsembleStrategyCode = "ENSEMBLE"

// RawSignal is one strategy's opinion on one symbol for one date. Stop and
// target are nil when the strategy does not supply them.
type RawSignal struct {
	Symbol       string    `json:"symbol"`
	Date         time.Time `json:"date"`
	Side         Side      `json:"side"`
	Entry        float64   `json:"entry"`
	StopLoss     *float64  `json:"stop_loss,omitempty"`
	Target       *float64  `json:"target,omitempty"`
	StrategyCode string    `json:"strategy_code"`
}

// EnsembleSignal is the consensus of at least two BUY-voting strategies.
// Entry, StopLoss and Target are averages; 0 means no contributor supplied
// the field.
type EnsembleSignal struct {
	Symbol          string          `json:"symbol"`
	Date            time.Time       `json:"date"`
	Side            Side            `json:"side"`
	Entry           float64         `json:"entry"`
	StopLoss        float64         `json:"stop_loss"`
	Target          float64         `json:"target"`
	VoteCount       int             `json:"vote_count"`
	TotalStrategies int             `json:"total_strategies"`
	Confidence      float64         `json:"confidence"`
	Votes           map[string]Side `json:"votes"`
	RankScore       float64         `json:"rank_score"`
	RMultiple       float64         `json:"r_multiple"`
	Liquidity       float64         `json:"liquidity_score"`
	VolatilityFit   float64         `json:"volatility_fit"`
}

type SignalStatus string

const (
	SignalPending  SignalStatus = "PENDING"
	SignalIgnored  SignalStatus = "IGNORED"
	SignalExecuted SignalStatus = "EXECUTED"
)

// Terminal reports whether no further transitions are allowed.
func (s SignalStatus) Terminal() bool {
	return s == SignalIgnored || s == SignalExecuted
}

// PendingSignal is a persisted signal awaiting a decision.
type PendingSignal struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID           string         `gorm:"type:varchar(64);index" json:"run_id"`
	Symbol          string         `gorm:"type:varchar(32);not null;uniqueIndex:ux_signal_key,priority:1" json:"symbol"`
	TradeDate       time.Time      `gorm:"type:date;not null;uniqueIndex:ux_signal_key,priority:2;index" json:"trade_date"`
	StrategyCode    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_signal_key,priority:3;index" json:"strategy_code"`
	Side            Side           `gorm:"type:varchar(8);not null" json:"side"`
	Entry           float64        `gorm:"not null" json:"entry"`
	StopLoss        float64        `gorm:"not null;default:0" json:"stop_loss"`
	Target          float64        `gorm:"not null;default:0" json:"target"`
	Confidence      float64        `gorm:"not null;default:1" json:"confidence"`
	VoteCount       int            `gorm:"not null;default:1" json:"vote_count"`
	TotalStrategies int            `gorm:"not null;default:1" json:"total_strategies"`
	Votes           datatypes.JSON `gorm:"type:jsonb" json:"votes,omitempty"`
	Liquidity       float64        `gorm:"not null;default:0" json:"liquidity_score"`
	VolatilityFit   float64        `gorm:"not null;default:0" json:"volatility_fit"`
	Status          SignalStatus   `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	RankScore       float64        `gorm:"not null;default:0;index" json:"rank_score"`
	RMultiple       float64        `gorm:"column:r_multiple;not null;default:0" json:"r_multiple"`
	DecidedAt       *time.Time     `gorm:"type:timestamptz" json:"decided_at,omitempty"`
	CreatedAt       time.Time      `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (PendingSignal) TableName() string {
	return "signals"
}

// FromEnsemble reports whether the signal was produced by ensemble voting.
func (s *PendingSignal) FromEnsemble() bool {
	return s.StrategyCode == EnsembleStrategyCode
}

// Execute moves the signal from PENDING to EXECUTED.
func (s *PendingSignal) Execute(at time.Time) error {
	return s.transition(SignalExecuted, at)
}

// Ignore moves the signal from PENDING to IGNORED.
func (s *PendingSignal) Ignore(at time.Time) error {
	return s.transition(SignalIgnored, at)
}

func (s *PendingSignal) transition(to SignalStatus, at time.Time) error {
	if s.Status != SignalPending {
		return fmt.Errorf("%w: signal %d is %s, cannot become %s", ErrInvalidTransition, s.ID, s.Status, to)
	}
	s.Status = to
	s.DecidedAt = &at
	return nil
}

// VoteMap decodes the stored per-strategy votes. Rows without votes decode
// to an empty map.
func (s *PendingSignal) VoteMap() (map[string]Side, error) {
	out := map[string]Side{}
	if len(s.Votes) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.Votes, &out); err != nil {
		return nil, fmt.Errorf("decode votes of signal %d: %w", s.ID, err)
	}
	return out, nil
}

// PendingFromEnsemble converts a consensus signal into a persisted PENDING row.
func PendingFromEnsemble(e EnsembleSignal, runID string) PendingSignal {
	votes, _ := json.Marshal(e.Votes)
	return PendingSignal{
		RunID:           runID,
		Symbol:          e.Symbol,
		TradeDate:       e.Date,
		StrategyCode:    EnsembleStrategyCode,
		Side:            e.Side,
		Entry:           e.Entry,
		StopLoss:        e.StopLoss,
		Target:          e.Target,
		Confidence:      e.Confidence,
		VoteCount:       e.VoteCount,
		TotalStrategies: e.TotalStrategies,
		Votes:           datatypes.JSON(votes),
		Liquidity:       e.Liquidity,
		VolatilityFit:   e.VolatilityFit,
		Status:          SignalPending,
		RankScore:       e.RankScore,
		RMultiple:       e.RMultiple,
	}
}

// PendingFromRaw converts a single strategy signal into a persisted PENDING
// row with the default confidence of 1.
func PendingFromRaw(r RawSignal, runID string) PendingSignal {
	return PendingSignal{
		RunID:           runID,
		Symbol:          r.Symbol,
		TradeDate:       r.Date,
		StrategyCode:    r.StrategyCode,
		Side:            r.Side,
		Entry:           r.Entry,
		StopLoss:        Deref(r.StopLoss),
		Target:          Deref(r.Target),
		Confidence:      1.0,
		VoteCount:       1,
		TotalStrategies: 1,
		Status:          SignalPending,
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Deref returns *p or 0 for nil.
func Deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
