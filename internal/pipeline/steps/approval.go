package steps

import (
	"context"

	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
)

// Approval implements a manual-gate step: it pauses the execution until an
// external actor calls back with a grant/deny decision keyed by the
// correlation id it hands out.
type Approval struct{}

func (Approval) Type() string { return "approval" }

func (Approval) ValidateConfig(cfg map[string]any) error { return nil }

func (Approval) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
	if pctx.Approval != nil && pctx.Approval.ApprovalID != "" {
		if !pctx.Approval.Granted {
			return pipeline.StepOutput{Success: false, Error: "approval denied"}, nil
		}
		return pipeline.StepOutput{Success: true}, nil
	}
	approvalID := uuid.NewString()
	pctx.Approval = &domain.ApprovalContext{ApprovalID: approvalID}
	return pipeline.StepOutput{Success: true, ShouldPause: true, Correlation: approvalID}, nil
}
