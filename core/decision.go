package core

import "time"

// SignalSource identifies which detection strategy produced a failure signal.
type SignalSource string

const (
	SignalSignature SignalSource = "signature"
	SignalSequence  SignalSource = "sequence"
)

// FailureSignal is emitted by the correlator once per detected failure.
type FailureSignal struct {
	DeviceID MacAddress
	Source   SignalSource
	Pattern  PatternID
	At       time.Time
}

// BlockDecision is emitted when a device crosses the attempt limit.
type BlockDecision struct {
	ID           string
	DeviceID     MacAddress
	Attempts     uint32
	DecidedAt    time.Time
	BlockedUntil time.Time
}

// SignalOutcome describes what the rate limiter did with a signal.
type SignalOutcome string

const (
	// OutcomeCounted means the failure counter was incremented
	OutcomeCounted SignalOutcome = "counted"
	// OutcomeBlocked means the signal crossed the limit and produced a decision
	OutcomeBlocked SignalOutcome = "blocked"
	// OutcomeSuppressed means the device is inside its block window
	OutcomeSuppressed SignalOutcome = "suppressed"
	// OutcomeDuplicate means the signal was folded into an earlier episode
	OutcomeDuplicate SignalOutcome = "duplicate"
)
