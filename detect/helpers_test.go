package detect

import (
	"context"
	"sync"
	"testing"
	"time"

	"apguard/acl"
	"apguard/config"
	"apguard/core"
	"apguard/ingest"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	macA = core.MacAddress("aa:bb:cc:dd:ee:ff")
	macB = core.MacAddress("11:22:33:44:55:66")
)

// simClock is a manually advanced clock
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSimClock() *simClock {
	return &simClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSink is an in-memory ACL that mirrors acl.Sink error semantics
type fakeSink struct {
	mu       sync.Mutex
	blocked  map[core.MacAddress]bool
	applied  []core.MacAddress
	released []core.MacAddress
	err      error
}

func newFakeSink() *fakeSink {
	return &fakeSink{blocked: make(map[core.MacAddress]bool)}
}

func (s *fakeSink) ApplyBlock(ctx context.Context, mac core.MacAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, mac)
	if s.err != nil {
		return s.err
	}
	if s.blocked[mac] {
		return acl.ErrAlreadyBlocked
	}
	s.blocked[mac] = true
	return nil
}

func (s *fakeSink) ReleaseBlock(ctx context.Context, mac core.MacAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.blocked[mac] {
		return acl.ErrNotBlocked
	}
	delete(s.blocked, mac)
	s.released = append(s.released, mac)
	return nil
}

func (s *fakeSink) Applied() []core.MacAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.MacAddress(nil), s.applied...)
}

// fakeAuditor collects audit entries. When holdExpire is set, recording the
// first expire entry closes expireSeen and blocks until holdExpire closes.
type fakeAuditor struct {
	mu      sync.Mutex
	entries []core.AuditEntry

	expireSeen chan struct{}
	holdExpire chan struct{}
	holdOnce   sync.Once
}

func (a *fakeAuditor) Record(ctx context.Context, entry core.AuditEntry) error {
	if entry.Action == core.AuditExpire && a.holdExpire != nil {
		a.holdOnce.Do(func() {
			close(a.expireSeen)
			<-a.holdExpire
		})
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAuditor) Results(action core.AuditAction) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e.Result)
		}
	}
	return out
}

func (s *fakeSink) Contains(mac core.MacAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[mac]
}

func (a *fakeAuditor) Actions() []core.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type engineFixture struct {
	engine  *Engine
	clock   *simClock
	sink    *fakeSink
	auditor *fakeAuditor
	logs    *observer.ObservedLogs
}

func newTestEngine(t *testing.T, mutate func(cfg *EngineConfig)) *engineFixture {
	t.Helper()

	sigs, err := ingest.CompileSignatures(config.DefaultFailurePatterns(), 0)
	require.NoError(t, err)

	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(obsCore).Sugar()

	store, err := NewStore(0, logger)
	require.NoError(t, err)

	clock := newSimClock()
	cfg := EngineConfig{
		AttemptLimit:  3,
		BlockDuration: time.Hour,
		SweepInterval: 30 * time.Second,
		Clock:         clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	sink := newFakeSink()
	auditor := &fakeAuditor{}
	engine, err := NewEngine(cfg, ingest.NewParser(sigs), store, sink, auditor, logger)
	require.NoError(t, err)

	return &engineFixture{engine: engine, clock: clock, sink: sink, auditor: auditor, logs: logs}
}

func invalidMIC(mac core.MacAddress) string {
	return "wlan0: STA " + string(mac) + " WPA: invalid MIC in msg 2/4 of 4-Way Handshake"
}
