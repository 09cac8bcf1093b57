package steps

import (
	"context"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
)

// Conditional is a pure gate: the executor already skips a descriptor (and
// its whole subtree) when its Condition evaluates false, so this step's
// body never does anything beyond reporting success. Its only purpose is to
// give template authors an explicit branch node distinct from a real
// work step that merely happens to carry a condition.
type Conditional struct{}

func (Conditional) Type() string { return "conditional" }

func (Conditional) ValidateConfig(cfg map[string]any) error { return nil }

func (Conditional) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
	return pipeline.StepOutput{Success: true}, nil
}
