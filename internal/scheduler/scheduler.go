// Package scheduler implements C10: the cron-driven loop that calls every
// periodic reconciler (recovery sweeps, dispatch stall detection, progress
// flush) on its own cadence. Nothing here has domain knowledge; it only
// knows how often to call what, following the teacher's
// reconcile-on-a-ticker shape (balancer/mist's reconcileBalancerLoop) but
// built on a real cron scheduler so cadences can be tuned independently
// without hand-rolling a ticker per job.
package scheduler

import (
	"context"

	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/recovery"
	"github.com/robfig/cron/v3"
)

// Scheduler owns the registered periodic jobs and the cron runner that
// fires them.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// New builds a Scheduler bound to ctx: every registered job runs with ctx
// as its root, so shutting ctx down (via its parent cancel) makes in-flight
// jobs observe cancellation the same way a step-chain execution does.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{cron: cron.New(), ctx: ctx}
}

// RegisterRecovery wires the four C7 reconcilers at their configured
// cadences (spec §4.8, "≥1 min cadence" — DownloadRecoveryWorker every
// DownloadRecoveryInterval, EncoderMonitorWorker every
// EncoderMonitorInterval, StuckItemRecoveryWorker every StuckItemInterval,
// TVContinuationWorker every ContinuationCheckInterval).
func (s *Scheduler) RegisterRecovery(w *recovery.Workers) error {
	if _, err := s.cron.AddFunc(everySpec(config.DownloadRecoveryInterval), s.runLogged("download-recovery", w.DownloadRecoveryWorker)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(everySpec(config.EncoderMonitorInterval), s.runLogged("encoder-monitor", w.EncoderMonitorWorker)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(everySpec(config.StuckItemInterval), s.runLogged("stuck-item-recovery", w.StuckItemRecoveryWorker)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(everySpec(config.ContinuationCheckInterval), s.runLogged("tv-continuation", w.TVContinuationWorker)); err != nil {
		return err
	}
	return nil
}

// RegisterDispatch wires the dispatch fabric's own periodic concerns:
// capacity-aware queue sweep, stall detection and throttled progress
// flush. FlushProgress has no error return, so it's adapted to the same
// runLogged shape with a nil-returning wrapper.
func (s *Scheduler) RegisterDispatch(d *dispatch.Dispatcher) error {
	if _, err := s.cron.AddFunc(everySpec(config.EncoderMonitorInterval), s.runLogged("dispatch-sweep", d.Sweep)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(everySpec(config.HeartbeatInterval), s.runLogged("dispatch-stall-detect", d.DetectStalls)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(everySpec(config.ProgressFlushInterval), s.runLogged("dispatch-flush-progress", func(ctx context.Context) error {
		d.FlushProgress(ctx)
		return nil
	})); err != nil {
		return err
	}
	return nil
}

// runLogged adapts a sweep function to a cron.FuncJob, logging (not
// panicking on, not propagating) any error the same way recovery.Workers
// logs per-item failures: a scheduled job failing once must never stop the
// schedule.
func (s *Scheduler) runLogged(name string, fn func(ctx context.Context) error) func() {
	return func() {
		if err := fn(s.ctx); err != nil {
			logx.LogError("", "scheduled job failed", err, "job", name)
		}
	}
}

// Start begins firing registered jobs on their schedules. It does not
// block; call Stop to shut down. Cancelling the Scheduler's ctx does not
// stop the cron runner; jobs keep firing and receive the cancelled ctx.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron runner and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// everySpec renders d as a cron "@every" spec, robfig/cron's shorthand for
// fixed-interval schedules rather than calendar-based ones.
func everySpec(d interface{ String() string }) string {
	return "@every " + d.String()
}
