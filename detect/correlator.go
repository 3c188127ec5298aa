package detect

import (
	"apguard/core"
)

// Correlator turns auth events into failure signals using two independent
// strategies that feed the same counter:
//
//   - signature: every event whose line matched a failure pattern emits one
//     signal, regardless of sequence state
//   - sequence: Associated -> NotAllowed -> Disassociated for one device emits
//     exactly one signal when the disassociation completes the sequence
//
// A line that is both a sequence step and a signature match contributes to
// both. Collapsing those into one episode is the rate limiter's job when an
// episode window is configured.
type Correlator struct{}

// NewCorrelator creates a correlator.
func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Observe advances rec's sequence state for ev and returns the signals it
// produced (zero, one or two). The caller must hold exclusive access to rec.
func (c *Correlator) Observe(rec *core.DeviceRecord, ev core.AuthEvent) []core.FailureSignal {
	var signals []core.FailureSignal

	if ev.HasPattern() {
		signals = append(signals, core.FailureSignal{
			DeviceID: ev.DeviceID,
			Source:   core.SignalSignature,
			Pattern:  ev.Pattern(),
			At:       ev.Timestamp,
		})
	}

	if c.advance(rec, ev.Kind) {
		signals = append(signals, core.FailureSignal{
			DeviceID: ev.DeviceID,
			Source:   core.SignalSequence,
			At:       ev.Timestamp,
		})
	}

	return signals
}

// advance applies one event to the sequence state machine and reports
// whether it completed a failure sequence.
func (c *Correlator) advance(rec *core.DeviceRecord, kind core.EventKind) bool {
	switch kind {
	case core.EventAssociated:
		// always (re)starts the sequence
		rec.SequenceState = core.SequenceAssociated

	case core.EventNotAllowed:
		if rec.SequenceState == core.SequenceAssociated {
			rec.SequenceState = core.SequenceRejected
		}

	case core.EventDisassociated:
		completed := rec.SequenceState == core.SequenceRejected
		// completed or abandoned, either way the sequence is over
		rec.SequenceState = core.SequenceIdle
		return completed
	}
	return false
}
