package acl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBreaker(t *testing.T, next Applier, now *time.Time) *BreakerApplier {
	t.Helper()
	b, err := NewBreakerApplier(next, 2, time.Minute, zap.NewNop().Sugar())
	require.NoError(t, err)
	b.clock = func() time.Time { return *now }
	return b
}

func TestBreakerApplier_OpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &countingApplier{err: errors.New("reload failed")}
	b := newTestBreaker(t, next, &now)
	ctx := context.Background()

	assert.Error(t, b.Apply(ctx))
	assert.Equal(t, BreakerClosed, b.State())
	assert.Error(t, b.Apply(ctx))
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Apply(ctx)
	assert.ErrorIs(t, err, ErrApplySuspended)
	assert.Equal(t, 2, next.calls, "open breaker must not run the command")
}

func TestBreakerApplier_HalfOpenTrial(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &countingApplier{err: errors.New("reload failed")}
	b := newTestBreaker(t, next, &now)
	ctx := context.Background()

	_ = b.Apply(ctx)
	_ = b.Apply(ctx)
	require.Equal(t, BreakerOpen, b.State())

	// failed trial reopens for another cooldown
	now = now.Add(time.Minute)
	assert.Error(t, b.Apply(ctx))
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Apply(ctx), ErrApplySuspended)

	// successful trial closes
	now = now.Add(time.Minute)
	next.err = nil
	assert.NoError(t, b.Apply(ctx))
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Apply(ctx))
	assert.Equal(t, 5, next.calls)
}

func TestBreakerApplier_SuccessResetsFailures(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &countingApplier{err: errors.New("reload failed")}
	b := newTestBreaker(t, next, &now)
	ctx := context.Background()

	_ = b.Apply(ctx)
	next.err = nil
	require.NoError(t, b.Apply(ctx))
	next.err = errors.New("reload failed")
	_ = b.Apply(ctx)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerApplier_SuspendedIsSinkApplyError(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &countingApplier{err: errors.New("reload failed")}
	b := newTestBreaker(t, next, &now)
	_ = b.Apply(context.Background())
	_ = b.Apply(context.Background())

	sink := NewSink(NewDenyFile(t.TempDir()+"/deny"), b, zap.NewNop().Sugar())
	err := sink.ApplyBlock(context.Background(), testMAC)

	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, StepApply, sinkErr.Step)
	assert.ErrorIs(t, err, ErrApplySuspended)
}

func TestNewBreakerApplier_Validation(t *testing.T) {
	_, err := NewBreakerApplier(nil, 1, time.Second, zap.NewNop().Sugar())
	assert.Error(t, err)
	_, err = NewBreakerApplier(&countingApplier{}, 0, time.Second, zap.NewNop().Sugar())
	assert.Error(t, err)
	_, err = NewBreakerApplier(&countingApplier{}, 1, 0, zap.NewNop().Sugar())
	assert.Error(t, err)
}
