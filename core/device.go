package core

import "time"

// SequenceState is the position of a device in the
// associate -> reject -> disassociate sequence.
type SequenceState int

const (
	SequenceIdle SequenceState = iota
	SequenceAssociated
	SequenceRejected
)

// String implements fmt.Stringer.
func (s SequenceState) String() string {
	switch s {
	case SequenceIdle:
		return "idle"
	case SequenceAssociated:
		return "associated"
	case SequenceRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// DeviceRecord is the tracking state for one device.
// FailureCount is only ever reset to zero when a block is applied or expires.
type DeviceRecord struct {
	DeviceID      MacAddress
	FailureCount  uint32
	SequenceState SequenceState
	BlockedUntil  *time.Time

	// LastSignal and LastSignalSource support episode deduplication.
	LastSignal       time.Time
	LastSignalSource SignalSource
	// LastSeen is updated on every event and drives idle eviction.
	LastSeen time.Time
}

// IsBlocked reports whether the device is inside its block window at now.
func (r *DeviceRecord) IsBlocked(now time.Time) bool {
	return r.BlockedUntil != nil && now.Before(*r.BlockedUntil)
}

// BlockExpired reports whether the device has a block window that ended
// at or before now.
func (r *DeviceRecord) BlockExpired(now time.Time) bool {
	return r.BlockedUntil != nil && !now.Before(*r.BlockedUntil)
}
