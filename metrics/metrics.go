package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apguard_events_parsed_total",
			Help: "Total number of log lines parsed into auth events",
		},
		[]string{"kind"},
	)

	ParseMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apguard_parse_misses_total",
			Help: "Lines with an event keyword but no extractable MAC address",
		},
	)

	RegexErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apguard_signature_regex_errors_total",
			Help: "Failure signature evaluations that timed out or errored",
		},
	)

	FailureSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apguard_failure_signals_total",
			Help: "Failure signals emitted by the correlator",
		},
		[]string{"source"},
	)

	SignalOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apguard_signal_outcomes_total",
			Help: "What the rate limiter did with each failure signal",
		},
		[]string{"outcome"},
	)

	BlockDecisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apguard_block_decisions_total",
			Help: "Total number of block decisions issued",
		},
	)

	SinkResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apguard_acl_results_total",
			Help: "Access control list operation results",
		},
		[]string{"op", "result"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apguard_acl_errors_total",
			Help: "Access control list failures by failing step",
		},
		[]string{"step"},
	)

	BlocksExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apguard_blocks_expired_total",
			Help: "Block windows cleared by the expiry sweep",
		},
	)

	DevicesEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apguard_devices_evicted_total",
			Help: "Device records dropped from the state store",
		},
		[]string{"reason"},
	)

	TrackedDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "apguard_tracked_devices",
			Help: "Device records currently held in the state store",
		},
	)

	BlockedDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "apguard_blocked_devices",
			Help: "Devices currently inside a block window",
		},
	)

	SourceRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apguard_source_restarts_total",
			Help: "Times the event source was reopened after exhaustion",
		},
	)

	ApplySuspended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apguard_apply_suspended_total",
			Help: "ACL reloads skipped while the apply breaker was open",
		},
	)

	ApplyBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "apguard_apply_breaker_open",
			Help: "1 while ACL reloads are suspended after repeated failures",
		},
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apguard_event_processing_duration_seconds",
			Help:    "Time taken to process one log line end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apguard_sweep_duration_seconds",
			Help:    "Time taken by one expiry sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)
