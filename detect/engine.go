package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"apguard/acl"
	"apguard/core"
	"apguard/ingest"
	"apguard/metrics"
	"apguard/util/goroutine"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxLoggedLine truncates raw lines in log output
const maxLoggedLine = 256

// EngineConfig holds the detection limits for one engine.
type EngineConfig struct {
	AttemptLimit    uint32
	BlockDuration   time.Duration
	SweepInterval   time.Duration
	EpisodeWindow   time.Duration
	IdleTTL         time.Duration
	UnblockOnExpiry bool

	// Clock defaults to time.Now. Tests inject a simulated clock.
	Clock func() time.Time
}

// Sink receives block decisions. Implemented by *acl.Sink.
type Sink interface {
	ApplyBlock(ctx context.Context, mac core.MacAddress) error
	ReleaseBlock(ctx context.Context, mac core.MacAddress) error
}

// Auditor records block history. Implemented by *storage.AuditStore.
type Auditor interface {
	Record(ctx context.Context, entry core.AuditEntry) error
}

// EngineStats is a point-in-time view of engine activity.
type EngineStats struct {
	LinesProcessed uint64
	EventsParsed   uint64
	ParseMisses    uint64
	Signals        uint64
	Decisions      uint64
	Expired        uint64
	TrackedDevices int
	BlockedDevices int
}

// Engine wires parsing, correlation, rate limiting and the ACL sink
// together. One engine owns one device store; the event path and the
// expiry sweep are the only writers and both go through the store lock.
type Engine struct {
	cfg        EngineConfig
	parser     *ingest.Parser
	store      *Store
	correlator *Correlator
	limiter    *RateLimiter
	sink       Sink
	auditor    Auditor
	logger     *zap.SugaredLogger
	clock      func() time.Time

	missLog *rate.Limiter

	// aclMu orders list writes so a release decided by the sweep cannot
	// undo a block issued after it
	aclMu sync.Mutex

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepWg     sync.WaitGroup

	linesProcessed atomic.Uint64
	eventsParsed   atomic.Uint64
	parseMisses    atomic.Uint64
	signals        atomic.Uint64
	decisions      atomic.Uint64
	expired        atomic.Uint64
}

// NewEngine creates an engine. auditor may be nil.
func NewEngine(cfg EngineConfig, parser *ingest.Parser, store *Store, sink Sink, auditor Auditor, logger *zap.SugaredLogger) (*Engine, error) {
	if parser == nil || store == nil || sink == nil {
		return nil, errors.New("engine requires a parser, a store and a sink")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", cfg.SweepInterval)
	}

	limiter, err := NewRateLimiter(cfg.AttemptLimit, cfg.BlockDuration, cfg.EpisodeWindow)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		cfg:        cfg,
		parser:     parser,
		store:      store,
		correlator: NewCorrelator(),
		limiter:    limiter,
		sink:       sink,
		auditor:    auditor,
		logger:     logger,
		clock:      clock,
		missLog:    rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// Process parses one raw line and handles the resulting event, if any.
// Returns the block decisions the line produced.
func (e *Engine) Process(ctx context.Context, line string) []core.BlockDecision {
	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()
	e.linesProcessed.Add(1)

	ev, err := e.parser.Parse(line, e.clock())
	if err != nil {
		e.parseMisses.Add(1)
		metrics.ParseMisses.Inc()
		if e.missLog.Allow() {
			e.logger.Warnw("Skipping event line without device identifier",
				"error", err,
				"line", truncate(line, maxLoggedLine))
		}
		return nil
	}
	if ev == nil {
		return nil
	}

	e.eventsParsed.Add(1)
	metrics.EventsParsed.WithLabelValues(string(ev.Kind)).Inc()
	return e.HandleEvent(ctx, *ev)
}

// HandleEvent runs one event through correlation and rate limiting, then
// hands any resulting decisions to the sink. The event timestamp is the
// current time for limiting purposes; a zero timestamp uses the clock.
//
// A block that expired before this event is forgiven first, so an event
// never counts against a stale window.
func (e *Engine) HandleEvent(ctx context.Context, ev core.AuthEvent) []core.BlockDecision {
	now := ev.Timestamp
	if now.IsZero() {
		now = e.clock()
		ev.Timestamp = now
	}

	var (
		decisions []core.BlockDecision
		expired   bool
	)
	e.store.Update(ev.DeviceID, now, func(rec *core.DeviceRecord) {
		expired = e.limiter.Expire(rec, now)

		for _, sig := range e.correlator.Observe(rec, ev) {
			e.signals.Add(1)
			metrics.FailureSignals.WithLabelValues(string(sig.Source)).Inc()

			outcome, decision := e.limiter.OnFailureSignal(rec, sig, now)
			metrics.SignalOutcomes.WithLabelValues(string(outcome)).Inc()
			e.logger.Debugw("Failure signal",
				"mac", sig.DeviceID,
				"source", sig.Source,
				"pattern", sig.Pattern,
				"outcome", outcome,
				"failure_count", rec.FailureCount)

			if decision != nil {
				decisions = append(decisions, *decision)
			}
		}
	})

	if expired {
		e.onExpired(ctx, ev.DeviceID, now)
	}
	for _, d := range decisions {
		e.applyBlock(ctx, d)
	}
	return decisions
}

// applyBlock hands a decision to the sink. Sink failures are logged and
// audited but never roll back the in-memory block.
func (e *Engine) applyBlock(ctx context.Context, d core.BlockDecision) {
	e.decisions.Add(1)
	metrics.BlockDecisions.Inc()
	e.logger.Warnw("Blocking device",
		"mac", d.DeviceID,
		"attempts", d.Attempts,
		"blocked_until", d.BlockedUntil,
		"decision_id", d.ID)
	e.audit(ctx, core.AuditEntry{
		At:         d.DecidedAt,
		DeviceID:   d.DeviceID,
		Action:     core.AuditBlock,
		DecisionID: d.ID,
		Result:     "decided",
		Detail:     fmt.Sprintf("%d attempts, blocked until %s", d.Attempts, d.BlockedUntil.Format(time.RFC3339)),
	})

	// the write must finish even if shutdown started
	e.aclMu.Lock()
	err := e.sink.ApplyBlock(context.WithoutCancel(ctx), d.DeviceID)
	e.aclMu.Unlock()

	entry := core.AuditEntry{
		At:         e.clock(),
		DeviceID:   d.DeviceID,
		Action:     core.AuditApply,
		DecisionID: d.ID,
	}
	var sinkErr *acl.SinkError
	switch {
	case err == nil:
		entry.Result = "applied"
		e.logger.Infow("Device added to access control list", "mac", d.DeviceID, "decision_id", d.ID)
	case errors.Is(err, acl.ErrAlreadyBlocked):
		entry.Result = "already_blocked"
		e.logger.Infow("Device already in access control list", "mac", d.DeviceID, "decision_id", d.ID)
	case errors.As(err, &sinkErr):
		entry.Result = "error"
		entry.Detail = err.Error()
		e.logger.Errorw("Failed to apply block",
			"mac", d.DeviceID,
			"decision_id", d.ID,
			"step", sinkErr.Step,
			"error", sinkErr.Err)
	default:
		entry.Result = "error"
		entry.Detail = err.Error()
		e.logger.Errorw("Failed to apply block", "mac", d.DeviceID, "decision_id", d.ID, "error", err)
	}
	e.audit(ctx, entry)
}

// onExpired runs after a block window has been forgiven.
func (e *Engine) onExpired(ctx context.Context, mac core.MacAddress, now time.Time) {
	e.expired.Add(1)
	metrics.BlocksExpired.Inc()
	e.logger.Infow("Block window expired", "mac", mac)
	e.audit(ctx, core.AuditEntry{At: now, DeviceID: mac, Action: core.AuditExpire, Result: "forgiven"})

	if !e.cfg.UnblockOnExpiry {
		return
	}

	entry := core.AuditEntry{At: now, DeviceID: mac, Action: core.AuditRelease}
	reblocked, err := e.releaseIfUnblocked(ctx, mac)
	switch {
	case reblocked:
		entry.Result = "reblocked"
		e.logger.Infow("Device blocked again before release, keeping list entry", "mac", mac)
	case err == nil:
		entry.Result = "released"
		e.logger.Infow("Device removed from access control list", "mac", mac)
	case errors.Is(err, acl.ErrNotBlocked):
		entry.Result = "not_blocked"
		e.logger.Debugw("Expired device was not in access control list", "mac", mac)
	default:
		entry.Result = "error"
		entry.Detail = err.Error()
		e.logger.Errorw("Failed to release block", "mac", mac, "error", err)
	}
	e.audit(ctx, entry)
}

// releaseIfUnblocked removes mac from the list unless the event path has
// blocked it again since the window expired.
func (e *Engine) releaseIfUnblocked(ctx context.Context, mac core.MacAddress) (bool, error) {
	e.aclMu.Lock()
	defer e.aclMu.Unlock()
	if rec, ok := e.store.Get(mac); ok && rec.BlockedUntil != nil {
		return true, nil
	}
	return false, e.sink.ReleaseBlock(context.WithoutCancel(ctx), mac)
}

func (e *Engine) audit(ctx context.Context, entry core.AuditEntry) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Record(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warnw("Failed to record block history", "mac", entry.DeviceID, "action", entry.Action, "error", err)
	}
}

// Sweep forgives every block whose window has ended and, when an idle TTL
// is configured, drops devices that have gone quiet. Returns the devices
// whose blocks expired.
func (e *Engine) Sweep(ctx context.Context) []core.MacAddress {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := e.clock()
	var (
		expired []core.MacAddress
		blocked int
	)
	e.store.Range(func(rec *core.DeviceRecord) {
		if e.limiter.Expire(rec, now) {
			expired = append(expired, rec.DeviceID)
			return
		}
		if rec.BlockedUntil != nil {
			blocked++
		}
	})
	metrics.BlockedDevices.Set(float64(blocked))

	for _, mac := range expired {
		e.onExpired(ctx, mac, now)
	}

	if e.cfg.IdleTTL > 0 {
		if evicted := e.store.EvictIdle(now, e.cfg.IdleTTL); len(evicted) > 0 {
			e.logger.Debugw("Evicted idle devices", "count", len(evicted), "idle_ttl", e.cfg.IdleTTL)
		}
	}

	return expired
}

// StartSweeper runs Sweep every SweepInterval until Stop or ctx ends.
func (e *Engine) StartSweeper(ctx context.Context) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if e.sweepCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.sweepCancel = cancel
	goroutine.Go("expiry-sweeper", &e.sweepWg, e.logger, func() {
		ticker := time.NewTicker(e.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Sweep(ctx)
			}
		}
	})
}

// Stop halts the sweeper and waits for it to exit.
func (e *Engine) Stop() {
	e.sweepMu.Lock()
	cancel := e.sweepCancel
	e.sweepCancel = nil
	e.sweepMu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.sweepWg.Wait()
}

// Consume feeds lines from src into Process until the source ends or ctx
// is cancelled. Returns nil on cancellation, otherwise the source error
// (ingest.ErrSourceExhausted when the stream simply ended).
func (e *Engine) Consume(ctx context.Context, src ingest.Source) error {
	for {
		line, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		e.Process(ctx, line)
	}
}

// Run consumes src with the sweeper running alongside, and stops the
// sweeper before returning.
func (e *Engine) Run(ctx context.Context, src ingest.Source) error {
	e.StartSweeper(ctx)
	defer e.Stop()
	return e.Consume(ctx, src)
}

// Stats returns current counters.
func (e *Engine) Stats() EngineStats {
	now := e.clock()
	stats := EngineStats{
		LinesProcessed: e.linesProcessed.Load(),
		EventsParsed:   e.eventsParsed.Load(),
		ParseMisses:    e.parseMisses.Load(),
		Signals:        e.signals.Load(),
		Decisions:      e.decisions.Load(),
		Expired:        e.expired.Load(),
	}
	for _, rec := range e.store.Snapshot() {
		stats.TrackedDevices++
		if rec.IsBlocked(now) {
			stats.BlockedDevices++
		}
	}
	return stats
}

// Device returns a copy of the state held for mac.
func (e *Engine) Device(mac core.MacAddress) (core.DeviceRecord, bool) {
	return e.store.Get(mac)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
