package steps

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/collaborators"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
)

var (
	episodeMarkerRe = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,2})`)
	episodeXRe      = regexp.MustCompile(`(?i)(\d{1,2})x(\d{2})`)
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true, ".ts": true,
}

// Download implements the Download step (§4.4): enqueues the torrent, pauses
// until the downloader reports completion, then locates the concrete video
// file inside the torrent content.
type Download struct {
	Downloader collaborators.Downloader
}

func (Download) Type() string { return "download" }

func (Download) ValidateConfig(cfg map[string]any) error { return nil }

func (d Download) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
	release := selectedRelease(pctx)
	if release == nil {
		return pipeline.StepOutput{}, fmt.Errorf("download step: no selected or existing release in context")
	}

	// Already resumed with a resolved torrent whose file is located: finish.
	if pctx.Download != nil && pctx.Download.TorrentHash == release.TorrentHash && pctx.Download.SourceFilePath != "" {
		return pipeline.StepOutput{Success: true}, nil
	}

	status, found, err := d.Downloader.Status(ctx, release.TorrentHash)
	if err != nil {
		return pipeline.StepOutput{Success: false, ShouldRetry: true, Error: err.Error()}, nil
	}
	if !found {
		if err := d.Downloader.AddTorrent(ctx, release.TorrentHash, release.Title); err != nil {
			return pipeline.StepOutput{Success: false, ShouldRetry: true, Error: err.Error()}, nil
		}
		return pipeline.StepOutput{Success: true, ShouldPause: true, Correlation: release.TorrentHash}, nil
	}
	if status.PercentDone < 100 {
		return pipeline.StepOutput{Success: true, ShouldPause: true, Correlation: release.TorrentHash}, nil
	}

	files, err := d.Downloader.ListFiles(ctx, release.TorrentHash)
	if err != nil {
		return pipeline.StepOutput{Success: false, ShouldRetry: true, Error: err.Error()}, nil
	}
	filePath, ok := SelectVideoFile(files, item.Type, item.Season, item.Episode)
	if !ok {
		return pipeline.StepOutput{}, fmt.Errorf("download step: no video file found in torrent %s", release.TorrentHash)
	}

	pctx.Download = &domain.DownloadContext{
		TorrentHash:    release.TorrentHash,
		SourceFilePath: filePath,
	}
	item.DownloadID = uuid.NewString()
	item.SourceFilePath = filePath
	return pipeline.StepOutput{Success: true}, nil
}

func selectedRelease(pctx *domain.StepContext) *domain.Release {
	if pctx.Search == nil {
		return nil
	}
	if pctx.Search.SelectedRelease != nil {
		return pctx.Search.SelectedRelease
	}
	return pctx.Search.ExistingDownload
}

// SelectVideoFile implements the file-selection policy from §4.4.
func SelectVideoFile(files []collaborators.TorrentFile, itemType domain.ItemType, season, episode int) (string, bool) {
	if itemType == domain.ItemEpisode {
		for _, f := range files {
			if !videoExtensions[strings.ToLower(path.Ext(f.Path))] {
				continue
			}
			if matchesEpisode(f.Path, season, episode) {
				return f.Path, true
			}
		}
		return "", false
	}

	var best collaborators.TorrentFile
	found := false
	for _, f := range files {
		ext := strings.ToLower(path.Ext(f.Path))
		if !videoExtensions[ext] || isSample(f.Path) {
			continue
		}
		if !found || f.Size > best.Size {
			best = f
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best.Path, true
}

func isSample(f string) bool {
	lower := strings.ToLower(f)
	if strings.Contains(lower, "/sample/") {
		return true
	}
	base := path.Base(lower)
	return strings.HasPrefix(base, "sample") || strings.Contains(base, ".sample.") || strings.Contains(base, "-sample")
}

func matchesEpisode(filename string, season, episode int) bool {
	if m := episodeMarkerRe.FindStringSubmatch(filename); m != nil {
		s, _ := strconv.Atoi(m[1])
		e, _ := strconv.Atoi(m[2])
		return s == season && e == episode
	}
	if m := episodeXRe.FindStringSubmatch(filename); m != nil {
		s, _ := strconv.Atoi(m[1])
		e, _ := strconv.Atoi(m[2])
		return s == season && e == episode
	}
	return false
}
