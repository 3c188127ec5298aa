package acl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"apguard/metrics"

	"go.uber.org/zap"
)

// ErrApplySuspended is returned while reloads are skipped after repeated
// apply failures. The list itself has still been written.
var ErrApplySuspended = errors.New("acl apply suspended after repeated failures")

// BreakerState is the state of a BreakerApplier
type BreakerState string

const (
	// BreakerClosed passes every reload through
	BreakerClosed BreakerState = "closed"
	// BreakerOpen skips reloads until the cooldown elapses
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen lets one trial reload through
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerApplier wraps an Applier so a broken reload command does not run
// on every block. After maxFailures consecutive failures it stops calling
// the command for cooldown, then allows a single trial.
type BreakerApplier struct {
	next        Applier
	maxFailures uint32
	cooldown    time.Duration
	clock       func() time.Time
	logger      *zap.SugaredLogger

	mu       sync.Mutex
	state    BreakerState
	failures uint32
	openedAt time.Time
}

// NewBreakerApplier returns a breaker around next.
func NewBreakerApplier(next Applier, maxFailures uint32, cooldown time.Duration, logger *zap.SugaredLogger) (*BreakerApplier, error) {
	if next == nil {
		return nil, errors.New("breaker requires an applier")
	}
	if maxFailures == 0 {
		return nil, errors.New("apply max failures must be greater than 0")
	}
	if cooldown <= 0 {
		return nil, errors.New("apply cooldown must be greater than 0")
	}
	return &BreakerApplier{
		next:        next,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		clock:       time.Now,
		logger:      logger,
		state:       BreakerClosed,
	}, nil
}

// Apply implements Applier.
func (b *BreakerApplier) Apply(ctx context.Context) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.next.Apply(ctx)
	b.record(err)
	return err
}

// State returns the current breaker state.
func (b *BreakerApplier) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerApplier) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		remaining := b.cooldown - b.clock().Sub(b.openedAt)
		if remaining > 0 {
			metrics.ApplySuspended.Inc()
			return fmt.Errorf("%w: retry in %s", ErrApplySuspended, remaining.Round(time.Second))
		}
		b.state = BreakerHalfOpen
		b.logger.Infow("Retrying ACL apply after cooldown", "cooldown", b.cooldown)
	case BreakerHalfOpen:
		// callers are serialized by Sink; a second caller here means the
		// trial is still running
		metrics.ApplySuspended.Inc()
		return fmt.Errorf("%w: trial reload in progress", ErrApplySuspended)
	}
	return nil
}

func (b *BreakerApplier) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != BreakerClosed {
			b.logger.Infow("ACL apply recovered", "previous_failures", b.failures)
			metrics.ApplyBreakerOpen.Set(0)
		}
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
		if b.state != BreakerOpen {
			b.logger.Warnw("Suspending ACL apply after repeated failures",
				"failures", b.failures,
				"cooldown", b.cooldown,
				"error", err)
		}
		b.state = BreakerOpen
		b.openedAt = b.clock()
		metrics.ApplyBreakerOpen.Set(1)
	}
}
