package steps

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/livepeer-forks/ingestctl/internal/collaborators"
	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/delivery"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
	"github.com/livepeer-forks/ingestctl/internal/store"
)

// Deliver implements the Deliver step (§4.6).
type Deliver struct {
	Transport collaborators.Delivery
	Store     store.Store
}

func (Deliver) Type() string { return "deliver" }

func (Deliver) ValidateConfig(cfg map[string]any) error { return nil }

func (d Deliver) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
	if pctx.Encode == nil || len(pctx.Encode.EncodedFiles) == 0 {
		return pipeline.StepOutput{}, nil
	}

	deliverCtx := pctx.Deliver
	if deliverCtx == nil {
		deliverCtx = &domain.DeliverContext{}
	}
	delivered := toSet(deliverCtx.DeliveredServers)
	recovered := toSet(deliverCtx.Recovered)
	var failed []string

	for _, f := range pctx.Encode.EncodedFiles {
		for _, serverID := range f.TargetServerIDs {
			key := serverID + "|" + f.Path
			if delivered[key] || recovered[key] {
				continue
			}
			destPath := destinationFor(req, item, f)
			exists, err := d.Transport.Exists(ctx, serverID, destPath)
			if err == nil && exists {
				recovered[key] = true
				d.syncLibrary(ctx, req, serverID, f)
				continue
			}
			progressFloor := 75.0
			err = d.Transport.Transfer(ctx, serverID, f.Path, destPath, func(sent, total int64) {
				if total <= 0 {
					return
				}
				item.Progress = progressFloor + (float64(sent)/float64(total))*20
			})
			if err != nil {
				failed = append(failed, key)
				logx.LogError(req.ID, "delivery failed", err, "server", serverID, "path", destPath)
				continue
			}
			delivered[key] = true
			d.syncLibrary(ctx, req, serverID, f)
		}
	}

	deliverCtx.DeliveredServers = toSlice(delivered)
	deliverCtx.Recovered = toSlice(recovered)
	deliverCtx.FailedServers = failed
	pctx.Deliver = deliverCtx

	if len(failed) == 0 {
		cleanupTempFiles(pctx.Encode.EncodedFiles)
	}

	success := len(delivered) > 0 || len(recovered) > 0
	out := pipeline.StepOutput{Success: success, ShouldRetry: len(failed) > 0}
	if config.RequireAllServersSuccess && len(failed) > 0 {
		out.Success = false
		out.Error = "delivery failed on one or more target servers"
	}
	return out, nil
}

// syncLibrary upserts the (tmdbId, kind, serverId) LibraryItem row for a
// server the content now resides on, and triggers a library scan on that
// server if its DeliveryTarget asked for one (§4.6 step 3).
func (d Deliver) syncLibrary(ctx context.Context, req *domain.Request, serverID string, f domain.EncodedFile) {
	if d.Store == nil {
		return
	}
	now := time.Now()
	li := domain.LibraryItem{
		TMDBID:   req.ExternalID,
		Kind:     req.Kind,
		ServerID: serverID,
		Quality:  f.Resolution,
		AddedAt:  now,
		SyncedAt: now,
	}
	if err := d.Store.UpsertLibraryItem(ctx, li); err != nil {
		logx.LogError(req.ID, "failed to upsert library item", err, "server", serverID)
		return
	}
	for _, t := range req.Targets {
		if t.ServerID == serverID && t.RequestScanAfter {
			if err := d.Transport.TriggerScan(ctx, serverID); err != nil {
				logx.LogError(req.ID, "failed to trigger library scan", err, "server", serverID)
			}
			break
		}
	}
}

func destinationFor(req *domain.Request, item *domain.ProcessingItem, f domain.EncodedFile) string {
	ext := strings.TrimPrefix(path.Ext(f.Path), ".")
	if req.Kind == domain.KindTV {
		return delivery.EpisodePath(config.TVRoot, req.Title, req.Year, f.Season, f.Episode, f.EpisodeTitle, f.Resolution, f.Codec, ext)
	}
	return delivery.MoviePath(config.MoviesRoot, req.Title, req.Year, req.ExternalID, f.Resolution, f.Codec, ext)
}

func cleanupTempFiles(files []domain.EncodedFile) {
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			logx.LogError("", "failed to clean up encoded temp file", err, "path", f.Path)
		}
	}
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func toSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
