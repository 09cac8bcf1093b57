// Package metrics exposes Prometheus instrumentation for the pipeline
// orchestrator and encoder dispatch fabric, following the teacher's
// promauto-based metrics package idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StepMetrics instruments pipeline step execution (C4/C5).
type StepMetrics struct {
	Executions *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// DispatchMetrics instruments the encoder dispatch fabric (C9).
type DispatchMetrics struct {
	ConnectedEncoders prometheus.Gauge
	AssignmentsByStatus *prometheus.GaugeVec
	ProgressWrites      prometheus.Counter
	Stalls              prometheus.Counter
	Reassignments        prometheus.Counter
}

// BreakerMetrics instruments circuit breakers (C8).
type BreakerMetrics struct {
	State *prometheus.GaugeVec
}

// RecoveryMetrics instruments recovery worker sweeps (C7).
type RecoveryMetrics struct {
	SweepRuns  *prometheus.CounterVec
	ItemsFixed *prometheus.CounterVec
}

// Metrics is the root metrics bundle, analogous to the teacher's
// CatalystAPIMetrics root struct.
type Metrics struct {
	Step     StepMetrics
	Dispatch DispatchMetrics
	Breaker  BreakerMetrics
	Recovery RecoveryMetrics
}

// New registers and returns a fresh Metrics bundle against the default
// Prometheus registerer, mirroring the teacher's package-level NewMetrics().
func New() *Metrics {
	return &Metrics{
		Step: StepMetrics{
			Executions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ingestctl_step_executions_total",
				Help: "Count of pipeline step executions by step type and outcome.",
			}, []string{"step_type", "outcome"}),
			Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name: "ingestctl_step_duration_seconds",
				Help: "Duration of pipeline step executions by step type.",
			}, []string{"step_type"}),
		},
		Dispatch: DispatchMetrics{
			ConnectedEncoders: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "ingestctl_dispatch_connected_encoders",
				Help: "Number of encoders currently connected to the dispatcher.",
			}),
			AssignmentsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ingestctl_dispatch_assignments",
				Help: "Number of encoder assignments by status.",
			}, []string{"status"}),
			ProgressWrites: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ingestctl_dispatch_progress_writes_total",
				Help: "Count of progress writes persisted to the store.",
			}),
			Stalls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ingestctl_dispatch_stalls_total",
				Help: "Count of assignments declared stalled.",
			}),
			Reassignments: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ingestctl_dispatch_reassignments_total",
				Help: "Count of assignments reassigned to a different encoder.",
			}),
		},
		Breaker: BreakerMetrics{
			State: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ingestctl_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half_open, 2=open) by service.",
			}, []string{"service"}),
		},
		Recovery: RecoveryMetrics{
			SweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ingestctl_recovery_sweep_runs_total",
				Help: "Count of recovery worker sweep runs by worker name.",
			}, []string{"worker"}),
			ItemsFixed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "ingestctl_recovery_items_fixed_total",
				Help: "Count of items repaired by a recovery worker sweep.",
			}, []string{"worker"}),
		},
	}
}
