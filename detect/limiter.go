package detect

import (
	"fmt"
	"time"

	"apguard/config"
	"apguard/core"

	"github.com/google/uuid"
)

// RateLimiter accumulates failure signals per device and decides when a
// device crosses the attempt limit.
//
// The failure counter is reset to zero exactly when a block is issued or a
// block window expires. Because the reset happens together with setting
// BlockedUntil, a device cannot produce a second decision until it climbs to
// the limit again after its window ends.
type RateLimiter struct {
	attemptLimit  uint32
	blockDuration time.Duration
	episodeWindow time.Duration
}

// NewRateLimiter validates the limits and returns a limiter.
// episodeWindow of zero counts every signal.
func NewRateLimiter(attemptLimit uint32, blockDuration, episodeWindow time.Duration) (*RateLimiter, error) {
	if attemptLimit == 0 {
		return nil, fmt.Errorf("%w: attempt limit must be at least 1", config.ErrConfigInvalid)
	}
	if blockDuration <= 0 {
		return nil, fmt.Errorf("%w: block duration must be positive, got %s", config.ErrConfigInvalid, blockDuration)
	}
	if episodeWindow < 0 {
		return nil, fmt.Errorf("%w: episode window must not be negative, got %s", config.ErrConfigInvalid, episodeWindow)
	}
	return &RateLimiter{
		attemptLimit:  attemptLimit,
		blockDuration: blockDuration,
		episodeWindow: episodeWindow,
	}, nil
}

// OnFailureSignal applies sig to rec at now. A decision is returned only for
// OutcomeBlocked. The caller must hold exclusive access to rec.
func (l *RateLimiter) OnFailureSignal(rec *core.DeviceRecord, sig core.FailureSignal, now time.Time) (core.SignalOutcome, *core.BlockDecision) {
	if rec.IsBlocked(now) {
		return core.OutcomeSuppressed, nil
	}

	if l.isSameEpisode(rec, sig, now) {
		return core.OutcomeDuplicate, nil
	}

	rec.FailureCount++
	rec.LastSignal = now
	rec.LastSignalSource = sig.Source

	if rec.FailureCount < l.attemptLimit {
		return core.OutcomeCounted, nil
	}

	until := now.Add(l.blockDuration)
	decision := &core.BlockDecision{
		ID:           uuid.NewString(),
		DeviceID:     rec.DeviceID,
		Attempts:     rec.FailureCount,
		DecidedAt:    now,
		BlockedUntil: until,
	}

	rec.FailureCount = 0
	rec.BlockedUntil = &until
	rec.LastSignal = time.Time{}
	rec.LastSignalSource = ""

	return core.OutcomeBlocked, decision
}

// isSameEpisode reports whether sig is the other strategy's view of the
// failure already counted by the previous signal.
func (l *RateLimiter) isSameEpisode(rec *core.DeviceRecord, sig core.FailureSignal, now time.Time) bool {
	if l.episodeWindow == 0 || rec.LastSignal.IsZero() {
		return false
	}
	if rec.LastSignalSource == sig.Source {
		return false
	}
	return now.Sub(rec.LastSignal) <= l.episodeWindow
}

// Expire forgives rec if its block window ended at or before now: the block
// is cleared and the counter reset. Reports whether anything changed.
func (l *RateLimiter) Expire(rec *core.DeviceRecord, now time.Time) bool {
	if !rec.BlockExpired(now) {
		return false
	}
	rec.BlockedUntil = nil
	rec.FailureCount = 0
	rec.LastSignal = time.Time{}
	rec.LastSignalSource = ""
	return true
}

// AttemptLimit returns the configured threshold.
func (l *RateLimiter) AttemptLimit() uint32 {
	return l.attemptLimit
}

// BlockDuration returns the configured block window.
func (l *RateLimiter) BlockDuration() time.Duration {
	return l.blockDuration
}
