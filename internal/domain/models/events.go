package models

import "time"

type EventType string

const (
	EventEnsembleCompleted EventType = "ensemble.completed"
	EventPipelineCompleted EventType = "pipeline.completed"
	EventSignalExecuted    EventType = "signal.executed"
	EventSignalIgnored     EventType = "signal.ignored"
	EventPositionOpened    EventType = "position.opened"
	EventPositionClosed    EventType = "position.closed"
	EventAllocationCreated EventType = "allocation.created"
)

// Event is a domain notification published after a state change commits.
// Key orders events per symbol (or per date for batch events).
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// CandlesReady is sent by the ingestion side once a trading day's candles
// are loaded.
type CandlesReady struct {
	Date   string `json:"date"`
	Market string `json:"market"`
}

// RunSummary describes one completed screening or pipeline run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Date        time.Time `json:"date"`
	Market      string    `json:"market"`
	Symbols     int       `json:"symbols"`
	RawSignals  int       `json:"raw_signals"`
	Ensemble    int       `json:"ensemble_signals"`
	Persisted   int       `json:"persisted"`
	Ranked      int       `json:"ranked"`
	SkippedSyms []string  `json:"skipped_symbols,omitempty"`
}
