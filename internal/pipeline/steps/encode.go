package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
)

// Encode implements the Encode step (§4.5): thin handoff to the dispatch
// fabric, suspending on the assignment it creates.
type Encode struct {
	Dispatcher *dispatch.Dispatcher
	Profiles   map[string]dispatch.Profile
}

func (Encode) Type() string { return "encode" }

func (e Encode) ValidateConfig(cfg map[string]any) error {
	profileID, _ := cfg["profileId"].(string)
	if profileID == "" {
		return fmt.Errorf("encode step: config.profileId is required")
	}
	if _, ok := e.Profiles[profileID]; !ok {
		return fmt.Errorf("encode step: unknown profileId %q", profileID)
	}
	return nil
}

func (e Encode) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
	profileID, _ := cfg["profileId"].(string)
	outputDir, _ := cfg["outputDir"].(string)

	if item.EncodingJobID == "" {
		item.EncodingJobID = uuid.NewString()
	}
	outputPath := fmt.Sprintf("%s/%s.mkv", outputDir, item.EncodingJobID)

	if err := e.Dispatcher.QueueEncodingJob(ctx, item.EncodingJobID, item.SourceFilePath, outputPath, profileID); err != nil {
		return pipeline.StepOutput{Success: false, ShouldRetry: true, Error: err.Error()}, nil
	}
	return pipeline.StepOutput{Success: true, ShouldPause: true, Correlation: item.EncodingJobID}, nil
}
