package steps

import (
	"context"
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestApprovalPausesOnFirstRun(t *testing.T) {
	step := Approval{}
	pctx := &domain.StepContext{}
	out, err := step.Execute(context.Background(), pctx, &domain.ProcessingItem{}, &domain.Request{}, nil)
	require.NoError(t, err)
	require.True(t, out.ShouldPause)
	require.NotEmpty(t, out.Correlation)
	require.Equal(t, out.Correlation, pctx.Approval.ApprovalID)
}

func TestApprovalSucceedsWhenGranted(t *testing.T) {
	step := Approval{}
	pctx := &domain.StepContext{Approval: &domain.ApprovalContext{ApprovalID: "a1", Granted: true}}
	out, err := step.Execute(context.Background(), pctx, &domain.ProcessingItem{}, &domain.Request{}, nil)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.False(t, out.ShouldPause)
}

func TestApprovalFailsWhenDenied(t *testing.T) {
	step := Approval{}
	pctx := &domain.StepContext{Approval: &domain.ApprovalContext{ApprovalID: "a1", Granted: false}}
	out, err := step.Execute(context.Background(), pctx, &domain.ProcessingItem{}, &domain.Request{}, nil)
	require.NoError(t, err)
	require.False(t, out.Success)
}
