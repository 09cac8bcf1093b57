// Package steps holds the concrete Step implementations registered against
// internal/pipeline.Registry: search, download, encode, deliver, approval,
// notification and conditional gating (§4.3-§4.6).
package steps

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/livepeer-forks/ingestctl/internal/collaborators"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
)

// resolutionRank orders resolutions worst-to-best for the "meets target
// most closely" tie-break.
var resolutionRank = map[string]int{
	"480p": 1, "576p": 2, "720p": 3, "1080p": 4, "1440p": 5, "2160p": 6, "4320p": 7,
}

func rankOf(res string) int {
	return resolutionRank[strings.ToLower(res)]
}

// Search implements the Search step (§4.3).
type Search struct {
	Indexer    collaborators.Indexer
	Downloader collaborators.Downloader
}

func (Search) Type() string { return "search" }

func (Search) ValidateConfig(cfg map[string]any) error {
	return nil
}

func (s Search) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
	season := item.Season
	strictest := strictestResolution(req.Targets)

	if s.Downloader != nil {
		existing, found, err := s.Downloader.FindExisting(ctx, req.Title, req.Year, season)
		if err == nil && found && rankOf(existing.Resolution) >= rankOf(strictest) {
			pctx.Search = &domain.SearchContext{
				ExistingDownload: &domain.Release{
					Title:       existing.Title,
					TorrentHash: existing.TorrentHash,
					Resolution:  existing.Resolution,
				},
			}
			return pipeline.StepOutput{Success: true}, nil
		}
	}

	releases, err := s.Indexer.Search(ctx, req.Title, req.Year, season)
	if err != nil {
		return pipeline.StepOutput{Success: false, ShouldRetry: true, Error: err.Error()}, nil
	}
	if len(releases) == 0 {
		return pipeline.StepOutput{Success: false, ShouldRetry: true, Error: "no releases found"}, nil
	}

	preferredCodec := preferredCodecOf(req.Targets)
	meets, alternatives := partition(releases, strictest)
	sortCandidates(meets, strictest, preferredCodec)
	sortCandidates(alternatives, strictest, preferredCodec)

	if len(meets) > 0 {
		best := meets[0]
		pctx.Search = &domain.SearchContext{SelectedRelease: toRelease(best, true)}
		return pipeline.StepOutput{Success: true}, nil
	}

	// Only alternatives: stash them on the request and pause until a human
	// calls acceptLowerQuality, approveDiscoveredItem or
	// overrideDiscoveredRelease.
	req.AvailableReleases = toReleases(alternatives, false)
	req.Status = domain.RequestQualityUnavailable
	return pipeline.StepOutput{Success: true, ShouldPause: true, Correlation: "quality-gate"}, nil
}

func strictestResolution(targets []domain.DeliveryTarget) string {
	best := ""
	bestRank := -1
	for _, t := range targets {
		if r := rankOf(t.MinResolution); r > bestRank {
			bestRank = r
			best = t.MinResolution
		}
	}
	return best
}

func preferredCodecOf(targets []domain.DeliveryTarget) string {
	for _, t := range targets {
		if t.PreferredCodec != "" {
			return t.PreferredCodec
		}
	}
	return ""
}

func partition(releases []collaborators.IndexedRelease, minRes string) (meets, alternatives []collaborators.IndexedRelease) {
	for _, r := range releases {
		if rankOf(r.Resolution) >= rankOf(minRes) {
			meets = append(meets, r)
		} else {
			alternatives = append(alternatives, r)
		}
	}
	return
}

// sortCandidates orders by the tie-break chain in §4.3: resolution closest
// to target at or above it, higher seeders, preferred codec, smaller size
// within a 30% band, more recent publish date. No upper resolution bound is
// applied, and resolutions below the target all tie on the first key.
func sortCandidates(releases []collaborators.IndexedRelease, minRes, preferredCodec string) {
	targetRank := rankOf(minRes)
	sort.SliceStable(releases, func(i, j int) bool {
		a, b := releases[i], releases[j]
		da, db := resDistance(a.Resolution, targetRank), resDistance(b.Resolution, targetRank)
		if da != db {
			return da < db
		}
		if a.Seeders != b.Seeders {
			return a.Seeders > b.Seeders
		}
		ac, bc := a.Codec == preferredCodec, b.Codec == preferredCodec
		if ac != bc {
			return ac
		}
		if !sizeWithinBand(a.SizeBytes, b.SizeBytes) {
			return a.SizeBytes < b.SizeBytes
		}
		return a.PublishDate.After(b.PublishDate)
	})
}

func resDistance(res string, targetRank int) int {
	d := rankOf(res) - targetRank
	if d < 0 {
		return math.MaxInt32
	}
	return d
}

func sizeWithinBand(a, b int64) bool {
	if a == 0 || b == 0 {
		return true
	}
	ratio := float64(a) / float64(b)
	return ratio >= 0.7 && ratio <= 1.3
}

func toRelease(r collaborators.IndexedRelease, meetsQuality bool) *domain.Release {
	return &domain.Release{
		Title:        r.Title,
		TorrentHash:  r.TorrentHash,
		Resolution:   r.Resolution,
		Codec:        r.Codec,
		SizeBytes:    r.SizeBytes,
		Seeders:      r.Seeders,
		PublishDate:  r.PublishDate,
		MeetsQuality: meetsQuality,
	}
}

func toReleases(releases []collaborators.IndexedRelease, meetsQuality bool) []domain.Release {
	out := make([]domain.Release, 0, len(releases))
	for _, r := range releases {
		out = append(out, *toRelease(r, meetsQuality))
	}
	return out
}
