package orchestrator

import (
	"context"
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
	"github.com/livepeer-forks/ingestctl/internal/store"
	"github.com/stretchr/testify/require"
)

func alwaysSucceeds(typeName string) pipeline.StubStep {
	return pipeline.StubStep{
		TypeName: typeName,
		Run: func(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
			return pipeline.StepOutput{Success: true}, nil
		},
	}
}

func newTestOrchestrator(t *testing.T, templates map[string]pipeline.Template, registry *pipeline.Registry) (*Orchestrator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	exec := pipeline.NewExecutor(mem, registry, templates, nil)
	profiles := map[string]dispatch.Profile{"hd": {ID: "hd", VideoEncoder: "hevc", VideoMaxResolution: "1080p"}}
	orch := New(mem, exec, nil, templates, profiles)
	exec.Trans = orch
	disp := dispatch.NewDispatcher(mem, nil, nil, orch)
	orch.Dispatcher = disp
	return orch, mem
}

func movieTemplates(reg *pipeline.Registry) map[string]pipeline.Template {
	reg.Register(alwaysSucceeds("search"))
	reg.Register(alwaysSucceeds("download"))
	return map[string]pipeline.Template{
		"movie-default": {
			ID:        "movie-default",
			MediaKind: domain.KindMovie,
			IsDefault: true,
			Steps: []pipeline.StepDescriptor{
				{Type: "search", Name: "search"},
				{Type: "download", Name: "download"},
			},
		},
	}
}

func tvTemplates(reg *pipeline.Registry) map[string]pipeline.Template {
	reg.Register(alwaysSucceeds("search"))
	return map[string]pipeline.Template{
		"tv-default": {
			ID:        "tv-default",
			MediaKind: domain.KindTV,
			IsDefault: true,
			Steps:     []pipeline.StepDescriptor{{Type: "search", Name: "search"}},
		},
	}
}

func TestContinueTVDeliveryResetsItemAndPullsRequestBackToPending(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := tvTemplates(reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindTV, Title: "Show", Status: domain.RequestRunning}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{
		ID: "ep1", RequestID: "req1", Type: domain.ItemEpisode, Season: 1, Episode: 1, Status: domain.StatusCompleted,
	}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{
		ID: "ep2", RequestID: "req1", Type: domain.ItemEpisode, Season: 1, Episode: 2, Status: domain.StatusDelivering,
		StepContext: domain.StepContext{Search: &domain.SearchContext{SelectedRelease: &domain.Release{Title: "Show S01E02"}}},
	}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec2", RequestID: "req1", ItemID: "ep2", TemplateID: "tv-default",
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0},
	}))

	require.NoError(t, orch.ContinueTVDelivery(ctx, "ep2"))

	stale, _, _ := mem.GetExecution(ctx, "exec2")
	require.Equal(t, domain.ExecutionFailed, stale.Status)

	req, _, _ := mem.GetRequest(ctx, "req1")
	require.Equal(t, domain.RequestPending, req.Status)
	require.Equal(t, "1 episode remaining", req.StatusLabel)
}

func TestContinueTVDeliveryRejectsNonDeliveringItem(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := tvTemplates(reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindTV}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "ep1", RequestID: "req1", Type: domain.ItemEpisode, Status: domain.StatusEncoding}))

	require.Error(t, orch.ContinueTVDelivery(ctx, "ep1"))
}

func TestCreateRequestStartsExecutionAndAdvancesStatus(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := movieTemplates(reg)
	orch, mem := newTestOrchestrator(t, templates, reg)

	req, err := orch.CreateRequest(context.Background(), domain.Request{Kind: domain.KindMovie, Title: "A Movie", Year: 2024}, []ItemSpec{{Type: domain.ItemMovie}})
	require.NoError(t, err)

	items, err := mem.ListItemsByRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, domain.StatusDownloaded, items[0].Status)

	stored, ok, err := mem.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.RequestRunning, stored.Status, "the item only reaches downloaded, never completed, with this two-step template")
}

func TestRetryItemResetsAttemptsAndRestartsExecution(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := movieTemplates(reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	req := domain.Request{ID: "req1", Kind: domain.KindMovie, Title: "A Movie"}
	require.NoError(t, mem.CreateRequest(ctx, req))
	item := domain.ProcessingItem{ID: "item1", RequestID: "req1", Type: domain.ItemMovie, Status: domain.StatusFailed, Attempts: 3, LastError: "boom"}
	require.NoError(t, mem.CreateProcessingItem(ctx, item))

	require.NoError(t, orch.RetryItem(ctx, "item1"))

	got, ok, err := mem.GetProcessingItem(ctx, "item1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusDownloaded, got.Status)
	require.Equal(t, 0, got.Attempts)
	require.Empty(t, got.LastError)
}

func TestRetryItemRejectsNonFailedItem(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := movieTemplates(reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindMovie}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusDownloading}))

	err := orch.RetryItem(ctx, "item1")
	require.Error(t, err)
}

func TestCancelItemTransitionsToCancelled(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := movieTemplates(reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindMovie}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusEncoding, EncodingJobID: "job-x"}))

	require.NoError(t, orch.CancelItem(ctx, "item1"))

	got, _, _ := mem.GetProcessingItem(ctx, "item1")
	require.Equal(t, domain.StatusCancelled, got.Status)
}

func TestCancelRequestCancelsAllNonTerminalItems(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := movieTemplates(reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindTV, Status: domain.RequestRunning}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusDownloading}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item2", RequestID: "req1", Status: domain.StatusCompleted}))

	require.NoError(t, orch.Cancel(ctx, "req1"))

	i1, _, _ := mem.GetProcessingItem(ctx, "item1")
	require.Equal(t, domain.StatusCancelled, i1.Status)
	i2, _, _ := mem.GetProcessingItem(ctx, "item2")
	require.Equal(t, domain.StatusCompleted, i2.Status, "already-completed items are untouched by a request cancel")

	req, _, _ := mem.GetRequest(ctx, "req1")
	require.Equal(t, domain.RequestCancelled, req.Status)
}

func setupQualityGate(t *testing.T, reg *pipeline.Registry) (map[string]pipeline.Template, string) {
	t.Helper()
	reg.Register(alwaysSucceeds("search"))
	reg.Register(alwaysSucceeds("download"))
	return map[string]pipeline.Template{
		"movie-default": {
			ID:        "movie-default",
			MediaKind: domain.KindMovie,
			IsDefault: true,
			Steps: []pipeline.StepDescriptor{
				{Type: "search", Name: "search"},
				{Type: "download", Name: "download"},
			},
		},
	}, "movie-default"
}

func TestAcceptLowerQualityResumesWithTopRankedAlternative(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates, templateID := setupQualityGate(t, reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	req := domain.Request{
		ID: "req1", Kind: domain.KindMovie, Status: domain.RequestQualityUnavailable,
		AvailableReleases: []domain.Release{{Title: "Alt1", Resolution: "720p"}, {Title: "Alt2", Resolution: "480p"}},
	}
	require.NoError(t, mem.CreateRequest(ctx, req))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusSearching}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec1", RequestID: "req1", ItemID: "item1", TemplateID: templateID,
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0}, PauseCorrelation: "quality-gate",
	}))

	require.NoError(t, orch.AcceptLowerQuality(ctx, "item1"))

	item, _, _ := mem.GetProcessingItem(ctx, "item1")
	require.Equal(t, domain.StatusDownloaded, item.Status)
	require.NotNil(t, item.StepContext.Search)
	require.Equal(t, "Alt1", item.StepContext.Search.SelectedRelease.Title)
	require.False(t, item.StepContext.Search.SelectedRelease.MeetsQuality)

	stored, _, _ := mem.GetRequest(ctx, "req1")
	require.Equal(t, domain.RequestRunning, stored.Status)
	require.Empty(t, stored.AvailableReleases)
}

func TestOverrideDiscoveredReleasePicksSpecificIndex(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates, templateID := setupQualityGate(t, reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	req := domain.Request{
		ID: "req1", Kind: domain.KindMovie, Status: domain.RequestQualityUnavailable,
		AvailableReleases: []domain.Release{{Title: "Alt1", Resolution: "720p"}, {Title: "Alt2", Resolution: "480p"}},
	}
	require.NoError(t, mem.CreateRequest(ctx, req))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusSearching}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec1", RequestID: "req1", ItemID: "item1", TemplateID: templateID,
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0}, PauseCorrelation: "quality-gate",
	}))

	require.NoError(t, orch.OverrideDiscoveredRelease(ctx, "item1", 1))

	item, _, _ := mem.GetProcessingItem(ctx, "item1")
	require.Equal(t, "Alt2", item.StepContext.Search.SelectedRelease.Title)
}

func TestOverrideDiscoveredReleaseRejectsOutOfRangeIndex(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates, templateID := setupQualityGate(t, reg)
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindMovie, AvailableReleases: []domain.Release{{Title: "Alt1"}}}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusSearching}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec1", RequestID: "req1", ItemID: "item1", TemplateID: templateID,
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0}, PauseCorrelation: "quality-gate",
	}))

	err := orch.OverrideDiscoveredRelease(ctx, "item1", 5)
	require.Error(t, err)
}

func TestApproveDiscoveredItemGrantedAdvancesToNextStep(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register(alwaysSucceeds("after"))
	templates := map[string]pipeline.Template{
		"gate-then-after": {ID: "gate-then-after", MediaKind: domain.KindMovie, Steps: []pipeline.StepDescriptor{
			{Type: "approval", Name: "approval"},
			{Type: "after", Name: "after"},
		}},
	}
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindMovie}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusPending}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec1", RequestID: "req1", ItemID: "item1", TemplateID: "gate-then-after",
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0},
		Context: domain.StepContext{Approval: &domain.ApprovalContext{ApprovalID: "appr-1"}},
	}))

	require.NoError(t, orch.ApproveDiscoveredItem(ctx, "item1", true))

	exec, _, _ := mem.GetExecution(ctx, "exec1")
	require.Equal(t, domain.ExecutionCompleted, exec.Status, "resume re-enters one step past the approval pause, not the approval step itself")
}

func TestApproveDiscoveredItemDeniedFailsItemWithoutResuming(t *testing.T) {
	reg := pipeline.NewRegistry()
	templates := map[string]pipeline.Template{
		"gate-only": {ID: "gate-only", MediaKind: domain.KindMovie, Steps: []pipeline.StepDescriptor{{Type: "approval", Name: "approval"}}},
	}
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindMovie}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusPending}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec1", RequestID: "req1", ItemID: "item1", TemplateID: "gate-only",
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0},
		Context: domain.StepContext{Approval: &domain.ApprovalContext{ApprovalID: "appr-1"}},
	}))

	require.NoError(t, orch.ApproveDiscoveredItem(ctx, "item1", false))

	item, _, _ := mem.GetProcessingItem(ctx, "item1")
	require.Equal(t, domain.StatusFailed, item.Status)
	require.Equal(t, "approval denied", item.LastError)

	exec, _, _ := mem.GetExecution(ctx, "exec1")
	require.Equal(t, domain.ExecutionFailed, exec.Status)
}

func TestOnJobCompleteReconstructsEncodedFilesAndResumes(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register(alwaysSucceeds("encode"))
	templates := map[string]pipeline.Template{
		"encode-only": {ID: "encode-only", MediaKind: domain.KindMovie, Steps: []pipeline.StepDescriptor{{Type: "encode", Name: "encode"}}},
	}
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindMovie, Targets: []domain.DeliveryTarget{{ServerID: "srv1"}, {ServerID: "srv2"}}}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusEncoding, EncodingJobID: "job-1"}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec1", RequestID: "req1", ItemID: "item1", TemplateID: "encode-only",
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0}, PauseCorrelation: "job-1",
	}))

	a := domain.EncoderAssignment{ID: "a1", JobID: "job-1", OutputPath: "/out/job-1.mkv", ProfileID: "hd"}
	require.NoError(t, orch.OnJobComplete(ctx, "job-1", a))

	item, _, _ := mem.GetProcessingItem(ctx, "item1")
	require.Equal(t, domain.StatusEncoded, item.Status)
	require.NotNil(t, item.StepContext.Encode)
	require.Len(t, item.StepContext.Encode.EncodedFiles, 1)
	ef := item.StepContext.Encode.EncodedFiles[0]
	require.Equal(t, "/out/job-1.mkv", ef.Path)
	require.Equal(t, "1080p", ef.Resolution)
	require.Equal(t, "hevc", ef.Codec)
	require.ElementsMatch(t, []string{"srv1", "srv2"}, ef.TargetServerIDs)
}

func TestOnJobFailedFailsItemWithoutResuming(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register(alwaysSucceeds("encode"))
	templates := map[string]pipeline.Template{
		"encode-only": {ID: "encode-only", MediaKind: domain.KindMovie, Steps: []pipeline.StepDescriptor{{Type: "encode", Name: "encode"}}},
	}
	orch, mem := newTestOrchestrator(t, templates, reg)
	ctx := context.Background()

	require.NoError(t, mem.CreateRequest(ctx, domain.Request{ID: "req1", Kind: domain.KindMovie}))
	require.NoError(t, mem.CreateProcessingItem(ctx, domain.ProcessingItem{ID: "item1", RequestID: "req1", Status: domain.StatusEncoding, EncodingJobID: "job-2"}))
	require.NoError(t, mem.CreateExecution(ctx, domain.PipelineExecution{
		ID: "exec2", RequestID: "req1", ItemID: "item1", TemplateID: "encode-only",
		Status: domain.ExecutionPaused, CurrentStepPath: []int{0}, PauseCorrelation: "job-2",
	}))

	require.NoError(t, orch.OnJobFailed(ctx, "job-2", "encoder crashed"))

	item, _, _ := mem.GetProcessingItem(ctx, "item1")
	require.Equal(t, domain.StatusFailed, item.Status)
	require.Equal(t, "encoder crashed", item.LastError)

	exec, _, _ := mem.GetExecution(ctx, "exec2")
	require.Equal(t, domain.ExecutionFailed, exec.Status)
}

func TestDeriveRequestStatusIsMonotoneOverTerminalStates(t *testing.T) {
	items := []domain.ProcessingItem{{Status: domain.StatusFailed}}
	require.Equal(t, domain.RequestCancelled, deriveRequestStatus(domain.RequestCancelled, items), "a terminal current status never moves")

	items = []domain.ProcessingItem{{Status: domain.StatusCompleted}, {Status: domain.StatusSkipped}}
	require.Equal(t, domain.RequestCompleted, deriveRequestStatus(domain.RequestRunning, items))

	items = []domain.ProcessingItem{{Status: domain.StatusFailed}, {Status: domain.StatusCompleted}}
	require.Equal(t, domain.RequestFailed, deriveRequestStatus(domain.RequestRunning, items))

	items = []domain.ProcessingItem{{Status: domain.StatusDownloading}, {Status: domain.StatusCompleted}}
	require.Equal(t, domain.RequestRunning, deriveRequestStatus(domain.RequestRunning, items))
}
