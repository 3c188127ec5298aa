// Package acl applies block decisions to the access point's MAC access
// control list.
//
// The list itself (a UCI wireless config or a hostapd deny file) and the
// command that reloads it are external; this package only queries
// membership, appends or removes entries, and triggers the reload.
package acl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"apguard/core"
	"apguard/metrics"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyBlocked is returned when the device is already in the list
	ErrAlreadyBlocked = errors.New("device already in access control list")

	// ErrNotBlocked is returned by ReleaseBlock when the device is not in the list
	ErrNotBlocked = errors.New("device not in access control list")
)

// Step identifies which part of an ACL operation failed.
type Step string

const (
	StepRead   Step = "read"
	StepWrite  Step = "write"
	StepApply  Step = "apply"
	StepRemove Step = "remove"
)

// SinkError reports a failed ACL operation and the step that failed.
type SinkError struct {
	Step     Step
	DeviceID core.MacAddress
	Err      error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("acl %s failed for %s: %v", e.Step, e.DeviceID, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// ListStore is a MAC list persisted in some external format.
type ListStore interface {
	Contains(mac core.MacAddress) (bool, error)
	Append(mac core.MacAddress) error
	Remove(mac core.MacAddress) (bool, error)
	List() ([]core.MacAddress, error)
}

// Applier makes the current list take effect.
type Applier interface {
	Apply(ctx context.Context) error
}

// Sink is the idempotent block writer. Operations are serialized within the
// process; concurrent writers outside the process can still race between the
// membership check and the append, at worst leaving a harmless duplicate.
type Sink struct {
	store   ListStore
	applier Applier
	logger  *zap.SugaredLogger
	mu      sync.Mutex
}

// NewSink creates a sink. A nil applier skips the apply step.
func NewSink(store ListStore, applier Applier, logger *zap.SugaredLogger) *Sink {
	return &Sink{
		store:   store,
		applier: applier,
		logger:  logger,
	}
}

// ApplyBlock adds mac to the list and applies the change. It returns
// ErrAlreadyBlocked without writing if mac is already present, and a
// *SinkError naming the failed step otherwise.
func (s *Sink) ApplyBlock(ctx context.Context, mac core.MacAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	present, err := s.store.Contains(mac)
	if err != nil {
		return s.fail(StepRead, mac, err)
	}
	if present {
		metrics.SinkResults.WithLabelValues("block", "already_blocked").Inc()
		return ErrAlreadyBlocked
	}

	if err := s.store.Append(mac); err != nil {
		return s.fail(StepWrite, mac, err)
	}
	if err := s.apply(ctx); err != nil {
		return s.fail(StepApply, mac, err)
	}

	metrics.SinkResults.WithLabelValues("block", "applied").Inc()
	return nil
}

// ReleaseBlock removes mac from the list and applies the change.
func (s *Sink) ReleaseBlock(ctx context.Context, mac core.MacAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.store.Remove(mac)
	if err != nil {
		return s.fail(StepRemove, mac, err)
	}
	if !removed {
		metrics.SinkResults.WithLabelValues("release", "not_blocked").Inc()
		return ErrNotBlocked
	}
	if err := s.apply(ctx); err != nil {
		return s.fail(StepApply, mac, err)
	}

	metrics.SinkResults.WithLabelValues("release", "applied").Inc()
	return nil
}

// List returns the devices currently in the list.
func (s *Sink) List() ([]core.MacAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List()
}

func (s *Sink) apply(ctx context.Context) error {
	if s.applier == nil {
		return nil
	}
	return s.applier.Apply(ctx)
}

func (s *Sink) fail(step Step, mac core.MacAddress, err error) error {
	metrics.SinkErrors.WithLabelValues(string(step)).Inc()
	return &SinkError{Step: step, DeviceID: mac, Err: err}
}
