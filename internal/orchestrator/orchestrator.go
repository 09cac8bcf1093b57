// Package orchestrator implements C6: the only writer of
// ProcessingItem.status, the request-status aggregator, and the narrow
// programmatic surface (§6) a caller uses to create, cancel, retry and
// unblock requests. It is also the glue between the dispatch fabric (C9)
// and the pipeline executor (C2-C5): dispatch.Callback resumes a paused
// encode step once a remote encoder reports completion or permanent
// failure.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
	"github.com/livepeer-forks/ingestctl/internal/statemachine"
	"github.com/livepeer-forks/ingestctl/internal/store"
)

// Orchestrator is C6. It holds no state of its own beyond the wiring needed
// to reach the store, the executor and the dispatcher; every operation
// below reads fresh state, decides, and persists before returning.
type Orchestrator struct {
	Store      store.Store
	Executor   *pipeline.Executor
	Dispatcher *dispatch.Dispatcher
	Templates  map[string]pipeline.Template
	Profiles   map[string]dispatch.Profile
	Clock      clock.Clock
}

func New(st store.Store, exec *pipeline.Executor, disp *dispatch.Dispatcher, templates map[string]pipeline.Template, profiles map[string]dispatch.Profile) *Orchestrator {
	return &Orchestrator{
		Store:      st,
		Executor:   exec,
		Dispatcher: disp,
		Templates:  templates,
		Profiles:   profiles,
		Clock:      clock.New(),
	}
}

// ItemSpec describes one ProcessingItem to create alongside a new Request:
// a single movie item, or one item per requested episode.
type ItemSpec struct {
	Type    domain.ItemType
	Season  int
	Episode int
}

// TransitionStatus is the sole writer of ProcessingItem.status (invariant
// 2), implementing pipeline.Transitioner. Every call is validated against
// the C1 state machine before anything is persisted, then the parent
// Request's aggregate status is recomputed.
func (o *Orchestrator) TransitionStatus(ctx context.Context, itemID string, newStatus domain.ProcessingStatus, patch func(*domain.ProcessingItem)) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	if _, err := statemachine.Transition(item.Status, newStatus); err != nil {
		return err
	}
	if patch != nil {
		patch(&item)
	}
	item.Status = newStatus
	item.UpdatedAt = o.Clock.Now()
	if err := o.Store.UpdateProcessingItem(ctx, item); err != nil {
		return err
	}
	if err := o.appendActivity(ctx, item.RequestID, item.ID, fmt.Sprintf("item transitioned to %s", newStatus), ""); err != nil {
		return err
	}
	return o.recomputeRequestStatus(ctx, item.RequestID)
}

// deriveRequestStatus implements Open Question decision 2: a pure,
// monotone aggregation satisfying invariant 6 only. A Request already in a
// terminal state never moves (monotone); otherwise it is "completed" iff
// every item is completed or skipped, "failed" if every non-terminal item
// has failed, and "running" otherwise. Cancellation is deliberately NOT
// derived here: Cancel/CancelItem set it explicitly, since a cancelled
// Request is a caller decision, not a fact about its items.
func deriveRequestStatus(current domain.RequestStatus, items []domain.ProcessingItem) domain.RequestStatus {
	if current.IsTerminal() {
		return current
	}
	if len(items) == 0 {
		return current
	}
	allDone := true
	anyFailed := false
	anyActive := false
	for _, it := range items {
		switch it.Status {
		case domain.StatusCompleted, domain.StatusSkipped:
		case domain.StatusFailed:
			anyFailed = true
			allDone = false
		default:
			allDone = false
			anyActive = true
		}
	}
	switch {
	case allDone:
		return domain.RequestCompleted
	case anyFailed && !anyActive:
		return domain.RequestFailed
	default:
		return domain.RequestRunning
	}
}

func (o *Orchestrator) recomputeRequestStatus(ctx context.Context, requestID string) error {
	req, ok, err := o.Store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	items, err := o.Store.ListItemsByRequest(ctx, requestID)
	if err != nil {
		return err
	}
	next := deriveRequestStatus(req.Status, items)
	if next == req.Status {
		return nil
	}
	req.Status = next
	// Any natural aggregate transition moving off of a continuation-pending
	// wait (set by ContinueTVDelivery, which deriveRequestStatus itself can
	// never produce) supersedes that wait's "N episode(s) remaining" label.
	req.StatusLabel = ""
	req.UpdatedAt = o.Clock.Now()
	return o.Store.UpdateRequest(ctx, req)
}

// CreateRequest persists req and one ProcessingItem per spec, then starts a
// root PipelineExecution for each item against the default template for
// req.Kind.
func (o *Orchestrator) CreateRequest(ctx context.Context, req domain.Request, specs []ItemSpec) (domain.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = domain.RequestPending
	req.CreatedAt = o.Clock.Now()
	req.UpdatedAt = o.Clock.Now()

	templateID, ok := defaultTemplateFor(o.Templates, req.Kind)
	if !ok {
		return domain.Request{}, ingesterr.New(ingesterr.ConfigError, fmt.Sprintf("no default pipeline template for media kind %q", req.Kind))
	}
	if err := o.Store.CreateRequest(ctx, req); err != nil {
		return domain.Request{}, err
	}

	for _, spec := range specs {
		item := domain.ProcessingItem{
			ID:          uuid.NewString(),
			RequestID:   req.ID,
			Type:        spec.Type,
			Season:      spec.Season,
			Episode:     spec.Episode,
			Status:      domain.StatusPending,
			MaxAttempts: config.DefaultMaxAttempts,
			CreatedAt:   o.Clock.Now(),
			UpdatedAt:   o.Clock.Now(),
		}
		if err := o.Store.CreateProcessingItem(ctx, item); err != nil {
			return domain.Request{}, err
		}
		if _, err := o.Executor.StartExecution(ctx, &req, &item, templateID, ""); err != nil {
			logx.LogError(req.ID, "failed to start pipeline execution", err, "itemId", item.ID)
		}
	}

	if err := o.appendActivity(ctx, req.ID, "", "request created", ""); err != nil {
		return req, err
	}
	return req, nil
}

// CancelItem requires item to be non-terminal, transitions it to
// cancelled, and cancels its encoder assignment (if any) per §4.7.
func (o *Orchestrator) CancelItem(ctx context.Context, itemID string) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	if statemachine.IsTerminal(item.Status) {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("item %s is already terminal (%s)", itemID, item.Status))
	}
	jobID := item.EncodingJobID

	if err := o.TransitionStatus(ctx, itemID, domain.StatusCancelled, nil); err != nil {
		return err
	}
	if jobID != "" && o.Dispatcher != nil {
		if err := o.Dispatcher.CancelJob(ctx, jobID, "item cancelled"); err != nil {
			logx.LogError(item.RequestID, "failed to cancel encoder job on item cancel", err, "itemId", itemID, "jobId", jobID)
		}
	}
	return o.appendActivity(ctx, item.RequestID, itemID, "item cancelled", "")
}

// Cancel requires req to be non-terminal, cancels every non-terminal item
// under it, then forces the Request itself to cancelled — deriveRequestStatus
// deliberately never produces "cancelled" on its own.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string) error {
	req, ok, err := o.Store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+requestID)
	}
	if req.Status.IsTerminal() {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("request %s is already terminal (%s)", requestID, req.Status))
	}
	items, err := o.Store.ListItemsByRequest(ctx, requestID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if statemachine.IsTerminal(it.Status) {
			continue
		}
		if err := o.CancelItem(ctx, it.ID); err != nil {
			logx.LogError(requestID, "failed to cancel item during request cancel", err, "itemId", it.ID)
		}
	}

	req, ok, err = o.Store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if ok && !req.Status.IsTerminal() {
		req.Status = domain.RequestCancelled
		req.UpdatedAt = o.Clock.Now()
		if err := o.Store.UpdateRequest(ctx, req); err != nil {
			return err
		}
	}
	return o.appendActivity(ctx, requestID, "", "request cancelled", "")
}

// RetryItem requires item.Status == failed (§4.7): resets the attempt
// budget, clears the last error, transitions back to pending, and ensures a
// root execution exists for it — a branch execution's original template
// may have been ephemeral, so a missing execution falls back to the
// Request kind's default template.
func (o *Orchestrator) RetryItem(ctx context.Context, itemID string) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	if !statemachine.CanRetry(item.Status) {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("item %s is not failed (status=%s)", itemID, item.Status))
	}
	req, ok, err := o.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+item.RequestID)
	}

	if err := o.TransitionStatus(ctx, itemID, domain.StatusPending, func(it *domain.ProcessingItem) {
		it.Attempts = 0
		it.LastError = ""
		it.NextRetryAt = nil
	}); err != nil {
		return err
	}

	item, ok, err = o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}

	if _, active, err := o.Store.GetActiveExecutionForItem(ctx, itemID); err != nil {
		return err
	} else if !active {
		templateID, ok := defaultTemplateFor(o.Templates, req.Kind)
		if !ok {
			return ingesterr.New(ingesterr.ConfigError, fmt.Sprintf("no default pipeline template for media kind %q", req.Kind))
		}
		if _, err := o.Executor.StartExecution(ctx, &req, &item, templateID, ""); err != nil {
			return err
		}
	}

	return o.appendActivity(ctx, item.RequestID, itemID, "item retried", "")
}

// Retry retries every failed item under requestID. It keeps going on a
// per-item failure and returns the first error encountered, if any.
func (o *Orchestrator) Retry(ctx context.Context, requestID string) error {
	items, err := o.Store.ListItemsByRequest(ctx, requestID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, it := range items {
		if !statemachine.CanRetry(it.Status) {
			continue
		}
		if err := o.RetryItem(ctx, it.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolveQualityGate is shared by AcceptLowerQuality and
// OverrideDiscoveredRelease: both unblock the search step's "quality-gate"
// pause by stashing a chosen (non-meeting) release onto the blackboard and
// resuming.
func (o *Orchestrator) resolveQualityGate(ctx context.Context, itemID string, release domain.Release) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	exec, ok, err := o.Store.GetActiveExecutionForItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok || exec.Status != domain.ExecutionPaused || exec.PauseCorrelation != "quality-gate" {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("item %s has no pending quality gate", itemID))
	}
	req, ok, err := o.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+item.RequestID)
	}

	release.MeetsQuality = false
	sc := &domain.SearchContext{SelectedRelease: &release}
	exec.Context.Search = sc
	if err := o.Store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	// Resume re-enters one step past the search step, so the search step's
	// own "found" transition will never fire on its own; apply it here as
	// part of resolving the external wait, same as the step would have done
	// had a release met quality on the first pass.
	if err := o.TransitionStatus(ctx, itemID, domain.StatusFound, func(it *domain.ProcessingItem) {
		it.StepContext.Search = sc
	}); err != nil {
		return err
	}

	req.Status = domain.RequestRunning
	req.AvailableReleases = nil
	req.UpdatedAt = o.Clock.Now()
	if err := o.Store.UpdateRequest(ctx, req); err != nil {
		return err
	}

	if err := o.appendActivity(ctx, item.RequestID, itemID, fmt.Sprintf("quality gate resolved with %q (%s)", release.Title, release.Resolution), ""); err != nil {
		return err
	}
	_, err = o.Executor.Resume(ctx, exec.ID)
	return err
}

// AcceptLowerQuality picks the best-ranked stashed alternative (index 0,
// already sorted by the search step's tie-break chain) despite it not
// meeting the requested quality target.
func (o *Orchestrator) AcceptLowerQuality(ctx context.Context, itemID string) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	req, ok, err := o.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+item.RequestID)
	}
	if len(req.AvailableReleases) == 0 {
		return ingesterr.New(ingesterr.PreconditionFailed, "no available releases to accept")
	}
	return o.resolveQualityGate(ctx, itemID, req.AvailableReleases[0])
}

// OverrideDiscoveredRelease picks a specific stashed alternative by index
// rather than the top-ranked one.
func (o *Orchestrator) OverrideDiscoveredRelease(ctx context.Context, itemID string, releaseIndex int) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	req, ok, err := o.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+item.RequestID)
	}
	if releaseIndex < 0 || releaseIndex >= len(req.AvailableReleases) {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("release index %d out of range (%d available)", releaseIndex, len(req.AvailableReleases)))
	}
	return o.resolveQualityGate(ctx, itemID, req.AvailableReleases[releaseIndex])
}

// ApproveDiscoveredItem grants or denies the manual Approval step's pause
// for itemID. Resume always re-enters one step past a pause point (the
// suspended step's external wait is resolved by the caller before Resume
// runs, not by re-invoking the step), so a denial is resolved here
// directly — failing the item and its execution outright — rather than by
// letting the Approval step itself observe the denial on a re-run that
// will never happen.
func (o *Orchestrator) ApproveDiscoveredItem(ctx context.Context, itemID string, granted bool) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	exec, ok, err := o.Store.GetActiveExecutionForItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok || exec.Status != domain.ExecutionPaused || exec.Context.Approval == nil || exec.Context.Approval.ApprovalID == "" {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("item %s has no pending approval", itemID))
	}

	if !granted {
		exec.Status = domain.ExecutionFailed
		exec.UpdatedAt = o.Clock.Now()
		if err := o.Store.UpdateExecution(ctx, exec); err != nil {
			return err
		}
		if err := o.TransitionStatus(ctx, itemID, domain.StatusFailed, func(it *domain.ProcessingItem) {
			it.LastError = "approval denied"
		}); err != nil {
			return err
		}
		return o.appendActivity(ctx, item.RequestID, itemID, "discovered item rejected", "")
	}

	approval := &domain.ApprovalContext{ApprovalID: exec.Context.Approval.ApprovalID, Granted: true}
	exec.Context.Approval = approval
	if err := o.Store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	item.StepContext.Approval = approval
	item.UpdatedAt = o.Clock.Now()
	if err := o.Store.UpdateProcessingItem(ctx, item); err != nil {
		return err
	}
	if err := o.appendActivity(ctx, item.RequestID, itemID, "discovered item approved", ""); err != nil {
		return err
	}
	_, err = o.Executor.Resume(ctx, exec.ID)
	return err
}

// OnJobComplete implements dispatch.Callback: it reconstructs the encode
// step's EncodedFile list from the completed assignment plus the Request's
// delivery targets, stashes it on the blackboard, and resumes the paused
// encode step.
func (o *Orchestrator) OnJobComplete(ctx context.Context, jobID string, a domain.EncoderAssignment) error {
	item, ok, err := o.findItemByEncodingJobID(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		logx.Log("", "job completion callback for unknown item", "jobId", jobID)
		return nil
	}
	exec, ok, err := o.Store.GetActiveExecutionForItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if !ok || exec.Status != domain.ExecutionPaused || exec.PauseCorrelation != jobID {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("item %s has no paused encode matching job %s", item.ID, jobID))
	}
	req, ok, err := o.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+item.RequestID)
	}

	profile := o.Profiles[a.ProfileID]
	serverIDs := make([]string, 0, len(req.Targets))
	for _, t := range req.Targets {
		serverIDs = append(serverIDs, t.ServerID)
	}
	enc := &domain.EncodeContext{EncodedFiles: []domain.EncodedFile{{
		Path:            a.OutputPath,
		Resolution:      profile.VideoMaxResolution,
		Codec:           profile.VideoEncoder,
		TargetServerIDs: serverIDs,
		Season:          item.Season,
		Episode:         item.Episode,
	}}}
	exec.Context.Encode = enc
	if err := o.Store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	// As with the quality gate, Resume re-enters one step past the encode
	// step, so its own "encoded" transition will never fire on its own;
	// apply it here as part of resolving the external wait.
	if err := o.TransitionStatus(ctx, item.ID, domain.StatusEncoded, func(it *domain.ProcessingItem) {
		it.StepContext.Encode = enc
	}); err != nil {
		return err
	}

	if err := o.appendActivity(ctx, item.RequestID, item.ID, "encode job completed", ""); err != nil {
		return err
	}
	_, err = o.Executor.Resume(ctx, exec.ID)
	return err
}

// OnJobFailed implements dispatch.Callback: the dispatcher only calls this
// once its own retry budget is exhausted, so the item fails outright
// rather than resuming the execution.
func (o *Orchestrator) OnJobFailed(ctx context.Context, jobID string, errMsg string) error {
	item, ok, err := o.findItemByEncodingJobID(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		logx.Log("", "job failure callback for unknown item", "jobId", jobID, "error", errMsg)
		return nil
	}
	if exec, ok, err := o.Store.GetActiveExecutionForItem(ctx, item.ID); err == nil && ok {
		exec.Status = domain.ExecutionFailed
		exec.UpdatedAt = o.Clock.Now()
		_ = o.Store.UpdateExecution(ctx, exec)
	}
	if err := o.TransitionStatus(ctx, item.ID, domain.StatusFailed, func(it *domain.ProcessingItem) {
		it.LastError = errMsg
	}); err != nil {
		return err
	}
	return o.appendActivity(ctx, item.RequestID, item.ID, "encode job failed permanently", errMsg)
}

// findItemByEncodingJobID scans items currently in the encoding status for
// one carrying jobID. The dispatcher only ever calls back while exactly one
// item owns a given encoding job, so this is a small linear scan rather
// than a secondary index.
func (o *Orchestrator) findItemByEncodingJobID(ctx context.Context, jobID string) (domain.ProcessingItem, bool, error) {
	items, err := o.Store.ListItemsByStatus(ctx, domain.StatusEncoding)
	if err != nil {
		return domain.ProcessingItem{}, false, err
	}
	for _, it := range items {
		if it.EncodingJobID == jobID {
			return it, true, nil
		}
	}
	return domain.ProcessingItem{}, false, nil
}

// ResolveDownload implements the recovery-driven resolution of a paused
// download step (§4.8 DownloadRecoveryWorker and StuckItemRecoveryWorker
// sub-sweep 2): the caller has already confirmed the torrent is 100%
// complete and located the concrete video file. The item transition happens
// unconditionally, since that's the worker's literal mandate; Resume is only
// called when the owning execution is actually paused waiting on this exact
// torrent, since resuming anything else would be a guess.
func (o *Orchestrator) ResolveDownload(ctx context.Context, itemID, torrentHash, sourceFilePath string) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}

	dl := &domain.DownloadContext{TorrentHash: torrentHash, SourceFilePath: sourceFilePath}
	if err := o.TransitionStatus(ctx, itemID, domain.StatusDownloaded, func(it *domain.ProcessingItem) {
		it.StepContext.Download = dl
		it.SourceFilePath = sourceFilePath
		if it.DownloadID == "" {
			it.DownloadID = uuid.NewString()
		}
	}); err != nil {
		return err
	}
	if err := o.appendActivity(ctx, item.RequestID, itemID, "download resolved by recovery sweep", ""); err != nil {
		return err
	}

	exec, active, err := o.Store.GetActiveExecutionForItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !active || exec.Status != domain.ExecutionPaused || exec.PauseCorrelation != torrentHash {
		return nil
	}
	exec.Context.Download = dl
	if err := o.Store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	_, err = o.Executor.Resume(ctx, exec.ID)
	return err
}

// LinkSeasonStraggler implements StuckItemRecoveryWorker sub-sweep 3: an
// episode in the same (request, season) group as an already-downloading or
// downloaded sibling inherits the shared torrent so the next
// DownloadRecoveryWorker sweep picks it up too, instead of waiting forever
// on a search it will never need to run.
func (o *Orchestrator) LinkSeasonStraggler(ctx context.Context, itemID, downloadID, torrentHash string) error {
	return o.TransitionStatus(ctx, itemID, domain.StatusDownloading, func(it *domain.ProcessingItem) {
		it.DownloadID = downloadID
		it.StepContext.Download = &domain.DownloadContext{TorrentHash: torrentHash}
	})
}

// ResetStuckItem implements StuckItemRecoveryWorker sub-sweeps 1 and 2's
// fallback branch: found or downloading with no forward progress for longer
// than the grace period. The item's presumed-orphaned execution (it never
// advanced and never failed) is itself marked failed so it stops counting as
// active, the item resets to pending with its step context cleared, and a
// fresh execution starts against the default template — mirroring RetryItem's
// fallback for a branch execution whose original template may be gone.
func (o *Orchestrator) ResetStuckItem(ctx context.Context, itemID string) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	if !statemachine.CanRecoveryReset(item.Status) {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("item %s in status %q is not eligible for a recovery reset", itemID, item.Status))
	}
	req, ok, err := o.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+item.RequestID)
	}

	if exec, active, err := o.Store.GetActiveExecutionForItem(ctx, itemID); err != nil {
		return err
	} else if active {
		exec.Status = domain.ExecutionFailed
		exec.UpdatedAt = o.Clock.Now()
		if err := o.Store.UpdateExecution(ctx, exec); err != nil {
			return err
		}
	}

	item.Status = domain.StatusPending
	item.StepContext = domain.StepContext{}
	item.DownloadID = ""
	item.SourceFilePath = ""
	item.NextRetryAt = nil
	item.UpdatedAt = o.Clock.Now()
	if err := o.Store.UpdateProcessingItem(ctx, item); err != nil {
		return err
	}

	templateID, ok := defaultTemplateFor(o.Templates, req.Kind)
	if !ok {
		return ingesterr.New(ingesterr.ConfigError, fmt.Sprintf("no default pipeline template for media kind %q", req.Kind))
	}
	if _, err := o.Executor.StartExecution(ctx, &req, &item, templateID, ""); err != nil {
		return err
	}

	if err := o.appendActivity(ctx, item.RequestID, itemID, "item reset to pending by recovery sweep", ""); err != nil {
		return err
	}
	return o.recomputeRequestStatus(ctx, item.RequestID)
}

// ContinueTVDelivery implements §4.6's TV continuation: a delivering item
// whose execution paused after a failed transfer is reset to pending (step
// context cleared, so the stashed selectedRelease goes with it) and started
// fresh against the default template, the same reset ResetStuckItem performs
// for a stuck found/downloading item. The difference is what happens to the
// Request: deriveRequestStatus can never produce pending on its own (Open
// Question 2), so this is one of the few places besides Cancel that sets
// Request.Status directly, pulling it back to pending with an "N episode(s)
// remaining" label until the fresh execution's own progress moves it on.
func (o *Orchestrator) ContinueTVDelivery(ctx context.Context, itemID string) error {
	item, ok, err := o.Store.GetProcessingItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "processing item not found: "+itemID)
	}
	if !statemachine.CanContinueTVDelivery(item.Status) {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("item %s in status %q is not eligible for TV continuation", itemID, item.Status))
	}
	req, ok, err := o.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "request not found: "+item.RequestID)
	}
	if req.Kind != domain.KindTV {
		return ingesterr.New(ingesterr.PreconditionFailed, fmt.Sprintf("request %s is not a TV request", req.ID))
	}

	if exec, active, err := o.Store.GetActiveExecutionForItem(ctx, itemID); err != nil {
		return err
	} else if active {
		exec.Status = domain.ExecutionFailed
		exec.UpdatedAt = o.Clock.Now()
		if err := o.Store.UpdateExecution(ctx, exec); err != nil {
			return err
		}
	}

	item.Status = domain.StatusPending
	item.StepContext = domain.StepContext{}
	item.DownloadID = ""
	item.SourceFilePath = ""
	item.NextRetryAt = nil
	item.UpdatedAt = o.Clock.Now()
	if err := o.Store.UpdateProcessingItem(ctx, item); err != nil {
		return err
	}

	templateID, ok := defaultTemplateFor(o.Templates, req.Kind)
	if !ok {
		return ingesterr.New(ingesterr.ConfigError, fmt.Sprintf("no default pipeline template for media kind %q", req.Kind))
	}
	if _, err := o.Executor.StartExecution(ctx, &req, &item, templateID, ""); err != nil {
		return err
	}

	remaining, err := o.countRemainingEpisodes(ctx, req.ID)
	if err != nil {
		return err
	}
	unit := "episodes"
	if remaining == 1 {
		unit = "episode"
	}
	req.Status = domain.RequestPending
	req.StatusLabel = fmt.Sprintf("%d %s remaining", remaining, unit)
	req.UpdatedAt = o.Clock.Now()
	if err := o.Store.UpdateRequest(ctx, req); err != nil {
		return err
	}

	return o.appendActivity(ctx, item.RequestID, itemID, fmt.Sprintf("delivery incomplete, looping back to pending (%s)", req.StatusLabel), "")
}

// countRemainingEpisodes counts items under requestID not yet in a
// terminal-positive state (completed or skipped), the same definition
// deriveRequestStatus uses for "allDone".
func (o *Orchestrator) countRemainingEpisodes(ctx context.Context, requestID string) (int, error) {
	items, err := o.Store.ListItemsByRequest(ctx, requestID)
	if err != nil {
		return 0, err
	}
	remaining := 0
	for _, it := range items {
		switch it.Status {
		case domain.StatusCompleted, domain.StatusSkipped:
		default:
			remaining++
		}
	}
	return remaining, nil
}

func (o *Orchestrator) appendActivity(ctx context.Context, requestID, itemID, message, errMsg string) error {
	return o.Store.AppendActivity(ctx, domain.ActivityLogEntry{
		ID:        uuid.NewString(),
		RequestID: requestID,
		ItemID:    itemID,
		Message:   message,
		Error:     errMsg,
		CreatedAt: o.Clock.Now(),
	})
}

// defaultTemplateFor picks templates[*].IsDefault for kind, falling back to
// any template registered for kind if none is explicitly marked default.
func defaultTemplateFor(templates map[string]pipeline.Template, kind domain.MediaKind) (string, bool) {
	for id, t := range templates {
		if t.MediaKind == kind && t.IsDefault {
			return id, true
		}
	}
	for id, t := range templates {
		if t.MediaKind == kind {
			return id, true
		}
	}
	return "", false
}
