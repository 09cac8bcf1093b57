package pipeline

import (
	"context"

	"github.com/livepeer-forks/ingestctl/internal/domain"
)

// StepOutput is the uniform result every step implementation returns (§4.2).
type StepOutput struct {
	Success      bool
	ShouldRetry  bool
	ShouldPause  bool
	Correlation  string
	NextStep     *int
	Error        string
}

// Step is one pluggable unit of pipeline work, keyed by Type() in the
// Registry. Implementers mirror the teacher's Handler interface
// (pipeline/handler.go): the executor drives ordering, pausing and status
// transitions, steps only worry about their own logic.
type Step interface {
	Type() string
	ValidateConfig(cfg map[string]any) error
	Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (StepOutput, error)
}

// StubStep is a hand-written fake for tests, in the same shape as the
// teacher's pipeline.StubHandler.
type StubStep struct {
	TypeName string
	Validate func(cfg map[string]any) error
	Run      func(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (StepOutput, error)
}

func (s StubStep) Type() string { return s.TypeName }

func (s StubStep) ValidateConfig(cfg map[string]any) error {
	if s.Validate == nil {
		return nil
	}
	return s.Validate(cfg)
}

func (s StubStep) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (StepOutput, error) {
	if s.Run == nil {
		return StepOutput{}, nil
	}
	return s.Run(ctx, pctx, item, req, cfg)
}
