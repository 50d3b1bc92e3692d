package models

import "errors"

var (
	ErrSignalNotFound    = errors.New("signal not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidParams     = errors.New("invalid strategy params")
	ErrInvalidSetup      = errors.New("invalid risk setup")
	ErrQuantityRequired  = errors.New("quantity required")
	ErrRunInProgress     = errors.New("run already in progress for date")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrSnapshotNotFound  = errors.New("allocation snapshot not found")
	ErrInvalidAllocation = errors.New("invalid allocation request")
)
