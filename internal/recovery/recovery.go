// Package recovery implements C7: periodic reconcilers that scan persisted
// rows for items an external wait never resolved (or, for TV continuation, a
// delivery that needs another pass) and unstick them. Every sweep is a
// safety net, not a business operation: a failure on one row is logged and
// the sweep moves on to the next rather than aborting (spec §7 "Recovery
// workers... never propagate errors").
package recovery

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/livepeer-forks/ingestctl/internal/collaborators"
	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/orchestrator"
	"github.com/livepeer-forks/ingestctl/internal/pipeline/steps"
	"github.com/livepeer-forks/ingestctl/internal/statemachine"
	"github.com/livepeer-forks/ingestctl/internal/store"
)

// Workers bundles the reconcilers over one Store/Orchestrator pair,
// following the same plain-method-per-concern shape as dispatch.Dispatcher's
// Sweep/DetectStalls/FlushProgress: a scheduler (C10) calls each method on
// its own cadence, nothing here runs its own ticker loop.
type Workers struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Downloader   collaborators.Downloader
	Clock        clock.Clock
}

// New builds a Workers bundle with a real wall clock.
func New(st store.Store, orch *orchestrator.Orchestrator, dl collaborators.Downloader) *Workers {
	return &Workers{Store: st, Orchestrator: orch, Downloader: dl, Clock: clock.New()}
}

// DownloadRecoveryWorker implements §4.8's first reconciler: every item
// still waiting on a download gets its torrent re-checked by parsed-name
// match, and any that completed "while we weren't looking" is resolved.
func (w *Workers) DownloadRecoveryWorker(ctx context.Context) error {
	items, err := w.Store.ListItemsByStatus(ctx, domain.StatusDownloading)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := w.resolveIfComplete(ctx, item); err != nil {
			logx.LogError(item.RequestID, "download recovery failed for item", err, "itemId", item.ID)
		}
	}
	return nil
}

// resolveIfComplete locates item's matching Download row by parsed name and,
// if the torrent is fully downloaded, finishes file selection (falling back
// to the live downloader collaborator when the Download row has no file path
// yet) and resolves the paused download step.
func (w *Workers) resolveIfComplete(ctx context.Context, item domain.ProcessingItem) error {
	req, ok, err := w.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	dl, found, err := w.Store.FindDownloadByParsedName(ctx, req.Title, req.Year, item.Season)
	if err != nil {
		return err
	}
	if !found || dl.PercentDone < 100 {
		return nil
	}

	sourcePath := dl.SourceFilePath
	if sourcePath == "" {
		if w.Downloader == nil {
			return nil
		}
		files, err := w.Downloader.ListFiles(ctx, dl.TorrentHash)
		if err != nil {
			return err
		}
		path, ok := steps.SelectVideoFile(files, item.Type, item.Season, item.Episode)
		if !ok {
			return nil
		}
		sourcePath = path
		dl.SourceFilePath = path
		if err := w.Store.UpsertDownload(ctx, dl); err != nil {
			return err
		}
	}
	return w.Orchestrator.ResolveDownload(ctx, item.ID, dl.TorrentHash, sourcePath)
}

// EncoderMonitorWorker implements §4.8's second reconciler: every item
// waiting on an encode job is re-checked against its owning request and its
// assignment row, covering both orphaned items (the request is gone or
// terminal) and completed/failed jobs the dispatcher's own callback never
// reached (e.g. a controller restart between job completion and callback).
func (w *Workers) EncoderMonitorWorker(ctx context.Context) error {
	items, err := w.Store.ListItemsByStatus(ctx, domain.StatusEncoding)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := w.monitorOne(ctx, item); err != nil {
			logx.LogError(item.RequestID, "encoder monitor failed for item", err, "itemId", item.ID)
		}
	}
	return nil
}

func (w *Workers) monitorOne(ctx context.Context, item domain.ProcessingItem) error {
	req, ok, err := w.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok || req.Status.IsTerminal() {
		return w.Orchestrator.TransitionStatus(ctx, item.ID, domain.StatusFailed, func(it *domain.ProcessingItem) {
			it.LastError = "orphaned: owning request is gone or terminal"
		})
	}
	if item.EncodingJobID == "" {
		return nil
	}
	a, ok, err := w.Store.GetAssignmentByJobID(ctx, item.EncodingJobID)
	if err != nil || !ok {
		return err
	}
	switch a.Status {
	case domain.AssignmentCompleted:
		return w.Orchestrator.OnJobComplete(ctx, item.EncodingJobID, a)
	case domain.AssignmentFailed, domain.AssignmentCancelled:
		return w.Orchestrator.OnJobFailed(ctx, item.EncodingJobID, a.Error)
	default:
		return nil
	}
}

// StuckItemRecoveryWorker implements §4.8's third reconciler, three
// sub-sweeps over items that made no forward progress within the grace
// period and the TV season straggler-linking pass.
func (w *Workers) StuckItemRecoveryWorker(ctx context.Context) error {
	now := w.Clock.Now()

	found, err := w.Store.ListItemsByStatus(ctx, domain.StatusFound)
	if err != nil {
		return err
	}
	for _, item := range found {
		if item.DownloadID != "" {
			continue
		}
		if now.Sub(item.UpdatedAt) <= config.StuckItemGracePeriod {
			continue
		}
		if err := w.Orchestrator.ResetStuckItem(ctx, item.ID); err != nil {
			logx.LogError(item.RequestID, "stuck-item reset failed", err, "itemId", item.ID)
		}
	}

	downloading, err := w.Store.ListItemsByStatus(ctx, domain.StatusDownloading)
	if err != nil {
		return err
	}
	for _, item := range downloading {
		if now.Sub(item.UpdatedAt) <= config.StuckItemGracePeriod {
			continue
		}
		if err := w.settleStuckDownload(ctx, item); err != nil {
			logx.LogError(item.RequestID, "stuck-item download settle failed", err, "itemId", item.ID)
		}
	}

	if err := w.linkSeasonStragglers(ctx, downloading); err != nil {
		logx.LogError("", "season straggler linking failed", err)
	}
	return nil
}

func (w *Workers) settleStuckDownload(ctx context.Context, item domain.ProcessingItem) error {
	req, ok, err := w.Store.GetRequest(ctx, item.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	dl, found, err := w.Store.FindDownloadByParsedName(ctx, req.Title, req.Year, item.Season)
	if err != nil {
		return err
	}
	if found && dl.PercentDone >= 100 && dl.SourceFilePath != "" {
		return w.Orchestrator.ResolveDownload(ctx, item.ID, dl.TorrentHash, dl.SourceFilePath)
	}
	return w.Orchestrator.ResetStuckItem(ctx, item.ID)
}

// TVContinuationWorker implements §4.6's TV continuation reconciler: an
// episode item whose delivery failed sits paused in delivering with no
// forward progress, the same shape StuckItemRecoveryWorker's sub-sweeps
// handle for found/downloading, but here it is deliberately looped back to
// pending and re-searched rather than eventually failed — closing the wait
// config.ContinuationDelay configures instead of leaving it unused.
func (w *Workers) TVContinuationWorker(ctx context.Context) error {
	now := w.Clock.Now()
	items, err := w.Store.ListItemsByStatus(ctx, domain.StatusDelivering)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Type != domain.ItemEpisode || now.Sub(item.UpdatedAt) <= config.ContinuationDelay {
			continue
		}
		exec, active, err := w.Store.GetActiveExecutionForItem(ctx, item.ID)
		if err != nil {
			logx.LogError(item.RequestID, "tv continuation lookup failed", err, "itemId", item.ID)
			continue
		}
		if !active || exec.Status != domain.ExecutionPaused {
			continue
		}
		if err := w.Orchestrator.ContinueTVDelivery(ctx, item.ID); err != nil {
			logx.LogError(item.RequestID, "tv continuation failed", err, "itemId", item.ID)
		}
	}
	return nil
}

// linkSeasonStragglers implements sub-sweep 3: group every non-terminal item
// sharing (requestId, season) with an anchor already carrying a downloadId,
// and move the stragglers (no downloadId yet) to downloading so the next
// DownloadRecoveryWorker sweep's parsed-name match covers them too. anchors
// are drawn from the already-downloading set plus the one just listed by the
// caller, since the Store exposes no direct "list all requests" query.
func (w *Workers) linkSeasonStragglers(ctx context.Context, downloadingAnchors []domain.ProcessingItem) error {
	seenRequests := map[string]bool{}
	for _, anchor := range downloadingAnchors {
		if anchor.Type != domain.ItemEpisode || anchor.DownloadID == "" || seenRequests[anchor.RequestID] {
			continue
		}
		seenRequests[anchor.RequestID] = true
		if err := w.linkStragglersForRequest(ctx, anchor.RequestID); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workers) linkStragglersForRequest(ctx context.Context, requestID string) error {
	siblings, err := w.Store.ListItemsByRequest(ctx, requestID)
	if err != nil {
		return err
	}
	anchorsBySeason := map[int]domain.ProcessingItem{}
	for _, it := range siblings {
		if it.Type == domain.ItemEpisode && it.DownloadID != "" {
			anchorsBySeason[it.Season] = it
		}
	}
	for _, it := range siblings {
		if it.Type != domain.ItemEpisode || it.DownloadID != "" {
			continue
		}
		anchor, ok := anchorsBySeason[it.Season]
		if !ok || statemachine.IsTerminal(it.Status) {
			continue
		}
		torrentHash := ""
		if anchor.StepContext.Download != nil {
			torrentHash = anchor.StepContext.Download.TorrentHash
		}
		if torrentHash == "" {
			continue
		}
		if err := w.Orchestrator.LinkSeasonStraggler(ctx, it.ID, anchor.DownloadID, torrentHash); err != nil {
			logx.LogError(requestID, "failed to link season straggler", err, "itemId", it.ID)
		}
	}
	return nil
}
