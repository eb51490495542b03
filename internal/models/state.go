package models

import (
	"time"
)

// AlertState tracks where an instrument is in its single-alert lifecycle.
type AlertState int

const (
	// Pending instruments are polled every cycle.
	Pending AlertState = iota
	// Alerted instruments fired once and are never polled again.
	Alerted
	// Skipped instruments had no usable band and never alert.
	Skipped
)

func (s AlertState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Alerted:
		return "alerted"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Done reports whether the state no longer blocks completion.
func (s AlertState) Done() bool {
	return s == Alerted || s == Skipped
}

// Alert is a fired breakout.
type Alert struct {
	ID         string
	RunID      string
	Instrument Instrument
	Side       Side

	PreviousClose  float64
	CurrentPrice   float64
	Deviation      float64
	Threshold      float64
	ThresholdPrice float64

	DetectedAt time.Time
	Notified   bool
}

// InstrumentStatus is a read-only view of one instrument for status reporting.
type InstrumentStatus struct {
	Instrument Instrument
	State      AlertState
	Band       *Band
	LastSide   Side
}
