package steps

import (
	"context"
	"fmt"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
)

// Notifier sends a user-facing message; concrete transports (webhook, email)
// live outside this module.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Notification is a fire-and-forget step: a delivery failure here never
// fails the pipeline, it only logs.
type Notification struct {
	Notifier Notifier
}

func (Notification) Type() string { return "notification" }

func (Notification) ValidateConfig(cfg map[string]any) error {
	if _, ok := cfg["message"].(string); !ok {
		return fmt.Errorf("notification step: config.message is required")
	}
	return nil
}

func (n Notification) Execute(ctx context.Context, pctx *domain.StepContext, item *domain.ProcessingItem, req *domain.Request, cfg map[string]any) (pipeline.StepOutput, error) {
	message, _ := cfg["message"].(string)
	if n.Notifier != nil {
		if err := n.Notifier.Notify(ctx, message); err != nil {
			logx.LogError(req.ID, "notification failed", err)
		}
	}
	return pipeline.StepOutput{Success: true}, nil
}
