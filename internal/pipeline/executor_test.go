package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/store"
	"github.com/stretchr/testify/require"
)

type stubTransitioner struct{}

func (stubTransitioner) TransitionStatus(ctx context.Context, itemID string, newStatus domain.ProcessingStatus, patch func(*domain.ProcessingItem)) error {
	return nil
}

func newTestItem(mem *store.Memory, req domain.Request) domain.ProcessingItem {
	item := domain.ProcessingItem{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Type:      domain.ItemMovie,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_ = mem.CreateRequest(context.Background(), req)
	_ = mem.CreateProcessingItem(context.Background(), item)
	return item
}

func TestExecutorRunsStepsToCompletion(t *testing.T) {
	mem := store.NewMemory()
	req := domain.Request{ID: uuid.NewString(), Kind: domain.KindMovie, Title: "Test Movie", Year: 2020}
	item := newTestItem(mem, req)

	var ran []string
	reg := NewRegistry()
	reg.Register(StubStep{TypeName: "a", Run: func(ctx context.Context, pctx *domain.StepContext, it *domain.ProcessingItem, r *domain.Request, cfg map[string]any) (StepOutput, error) {
		ran = append(ran, "a")
		return StepOutput{Success: true}, nil
	}})
	reg.Register(StubStep{TypeName: "b", Run: func(ctx context.Context, pctx *domain.StepContext, it *domain.ProcessingItem, r *domain.Request, cfg map[string]any) (StepOutput, error) {
		ran = append(ran, "b")
		return StepOutput{Success: true}, nil
	}})

	tmpl := Template{ID: "default-movie", MediaKind: domain.KindMovie, Steps: []StepDescriptor{
		{Type: "a", Name: "step-a"},
		{Type: "b", Name: "step-b"},
	}}

	exec := NewExecutor(mem, reg, map[string]Template{tmpl.ID: tmpl}, stubTransitioner{})
	result, err := exec.StartExecution(context.Background(), &req, &item, tmpl.ID, "")
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionCompleted, result.Status)
	require.Equal(t, []string{"a", "b"}, ran)
}

func TestExecutorPausesAndResumesAfterPausedStep(t *testing.T) {
	mem := store.NewMemory()
	req := domain.Request{ID: uuid.NewString(), Kind: domain.KindMovie, Title: "Test Movie", Year: 2020}
	item := newTestItem(mem, req)

	var secondRan bool
	reg := NewRegistry()
	reg.Register(StubStep{TypeName: "wait", Run: func(ctx context.Context, pctx *domain.StepContext, it *domain.ProcessingItem, r *domain.Request, cfg map[string]any) (StepOutput, error) {
		return StepOutput{Success: true, ShouldPause: true, Correlation: "job-1"}, nil
	}})
	reg.Register(StubStep{TypeName: "after", Run: func(ctx context.Context, pctx *domain.StepContext, it *domain.ProcessingItem, r *domain.Request, cfg map[string]any) (StepOutput, error) {
		secondRan = true
		return StepOutput{Success: true}, nil
	}})

	tmpl := Template{ID: "t", Steps: []StepDescriptor{
		{Type: "wait", Name: "wait-step"},
		{Type: "after", Name: "after-step"},
	}}

	exec := NewExecutor(mem, reg, map[string]Template{tmpl.ID: tmpl}, stubTransitioner{})
	result, err := exec.StartExecution(context.Background(), &req, &item, tmpl.ID, "")
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionPaused, result.Status)
	require.False(t, secondRan)
	require.Equal(t, "job-1", result.PauseCorrelation)

	resumed, err := exec.Resume(context.Background(), result.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionCompleted, resumed.Status)
	require.True(t, secondRan)
}

func TestExecutorSkipsFalseConditionSubtree(t *testing.T) {
	mem := store.NewMemory()
	req := domain.Request{ID: uuid.NewString(), Kind: domain.KindMovie, Title: "Test Movie", Year: 2020}
	item := newTestItem(mem, req)

	var childRan bool
	reg := NewRegistry()
	reg.Register(StubStep{TypeName: "gate"})
	reg.Register(StubStep{TypeName: "child", Run: func(ctx context.Context, pctx *domain.StepContext, it *domain.ProcessingItem, r *domain.Request, cfg map[string]any) (StepOutput, error) {
		childRan = true
		return StepOutput{Success: true}, nil
	}})

	tmpl := Template{ID: "t", Steps: []StepDescriptor{
		{
			Type:      "gate",
			Name:      "gate-step",
			Condition: &Condition{Path: "nonexistent", Operator: "==", Value: "x"},
			Children:  []StepDescriptor{{Type: "child", Name: "child-step"}},
		},
	}}

	exec := NewExecutor(mem, reg, map[string]Template{tmpl.ID: tmpl}, stubTransitioner{})
	result, err := exec.StartExecution(context.Background(), &req, &item, tmpl.ID, "")
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionCompleted, result.Status)
	require.False(t, childRan)
}
