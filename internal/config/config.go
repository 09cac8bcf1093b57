// Package config holds package-level configuration for the control plane,
// following the teacher's config package idiom: exported vars with
// sensible defaults, populated from flags/env by ParseCli in cli.go.
package config

import "time"

// Version is set at build time via -ldflags.
var Version string

// Heartbeat/stall timeouts (spec §5).
var (
	HeartbeatTimeout  = 90 * time.Second
	JobStallTimeout   = 120 * time.Second
	HeartbeatInterval = 30 * time.Second
)

// Encoder assignment retry budget.
var DefaultMaxAttempts = 3

// Progress persistence throttling (spec §4.5).
var (
	ProgressWriteInterval = 5 * time.Second
	ProgressFlushInterval = 2 * time.Second
)

// Circuit breaker defaults (spec §4.9).
var (
	BreakerFailureThreshold = 3
	BreakerHalfOpenAfter    = 5 * time.Minute
	BreakerSuccessThreshold = 2
)

// Recovery worker cadences (spec §4.8, "≥1 min cadence").
var (
	DownloadRecoveryInterval = 2 * time.Minute
	EncoderMonitorInterval   = 1 * time.Minute
	StuckItemInterval        = 5 * time.Minute
	StuckItemGracePeriod     = 5 * time.Minute
)

// TV continuation (spec §4.6, §9 — tunable, not load-bearing):
// ContinuationDelay gates how long a delivering item must sit paused on a
// failed transfer before the reconciler loops it back to pending;
// ContinuationCheckInterval is that reconciler's own sweep cadence.
var (
	ContinuationDelay         = 2 * time.Second
	ContinuationCheckInterval = 1 * time.Minute
)

// MaxActiveExecutions holds the --max-active-executions value. The pipeline
// executor does not read it, so the number of concurrently running
// executions is not limited.
var MaxActiveExecutions = 64

// DB-reach retry budget for transient store errors (spec §5).
var (
	DBRetryAttempts = 3
	DBRetryMaxJitter = 1 * time.Second
)

// RequireAllServersSuccess governs Deliver step's outer success semantics
// (spec §4.6, §9 Open Question — this spec tightens the contract).
var RequireAllServersSuccess = true

// Naming roots used by the delivery collaborator (spec §4.6).
var (
	MoviesRoot = "/media/movies"
	TVRoot     = "/media/tv"
)
