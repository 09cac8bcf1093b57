package pipeline

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/store"
)

// Transitioner is the narrow slice of the orchestrator (C6) the executor
// needs: the single writer of ProcessingItem.status. Kept as an interface
// here to avoid an import cycle between internal/pipeline and
// internal/orchestrator.
type Transitioner interface {
	TransitionStatus(ctx context.Context, itemID string, newStatus domain.ProcessingStatus, patch func(*domain.ProcessingItem)) error
}

// Executor walks a Template's step tree for one PipelineExecution (C5),
// pausing the row whenever a step suspends and resuming from the recorded
// CurrentStepPath.
type Executor struct {
	Store     store.Store
	Registry  *Registry
	Templates map[string]Template
	Trans     Transitioner
	Clock     clock.Clock
}

func NewExecutor(st store.Store, reg *Registry, templates map[string]Template, trans Transitioner) *Executor {
	return &Executor{Store: st, Registry: reg, Templates: templates, Trans: trans, Clock: clock.New()}
}

// StartExecution creates a root (or branch) PipelineExecution for item
// against templateID and runs it until completion or the first suspension.
func (e *Executor) StartExecution(ctx context.Context, req *domain.Request, item *domain.ProcessingItem, templateID, parentExecutionID string) (domain.PipelineExecution, error) {
	tmpl, ok := e.Templates[templateID]
	if !ok {
		return domain.PipelineExecution{}, ingesterr.New(ingesterr.ConfigError, fmt.Sprintf("unknown pipeline template %q", templateID))
	}
	exec := domain.PipelineExecution{
		ID:                uuid.NewString(),
		RequestID:         req.ID,
		ItemID:            item.ID,
		TemplateID:        templateID,
		ParentExecutionID: parentExecutionID,
		Status:            domain.ExecutionRunning,
		CurrentStepPath:   nil,
		Context:           item.StepContext,
		StartedAt:         e.Clock.Now(),
		UpdatedAt:         e.Clock.Now(),
	}
	if err := e.Store.CreateExecution(ctx, exec); err != nil {
		return domain.PipelineExecution{}, err
	}
	return e.run(ctx, tmpl, exec, req, item)
}

// Resume reloads a paused execution and continues from its recorded index.
func (e *Executor) Resume(ctx context.Context, executionID string) (domain.PipelineExecution, error) {
	exec, ok, err := e.Store.GetExecution(ctx, executionID)
	if err != nil {
		return domain.PipelineExecution{}, err
	}
	if !ok {
		return domain.PipelineExecution{}, ingesterr.New(ingesterr.NotFound, "execution not found")
	}
	if exec.Status != domain.ExecutionPaused {
		return exec, nil
	}
	tmpl, ok := e.Templates[exec.TemplateID]
	if !ok {
		return domain.PipelineExecution{}, ingesterr.New(ingesterr.ConfigError, fmt.Sprintf("unknown pipeline template %q", exec.TemplateID))
	}
	item, ok, err := e.Store.GetProcessingItem(ctx, exec.ItemID)
	if err != nil {
		return domain.PipelineExecution{}, err
	}
	if !ok {
		return domain.PipelineExecution{}, ingesterr.New(ingesterr.NotFound, "processing item not found")
	}
	req, ok, err := e.Store.GetRequest(ctx, exec.RequestID)
	if err != nil {
		return domain.PipelineExecution{}, err
	}
	if !ok {
		return domain.PipelineExecution{}, ingesterr.New(ingesterr.NotFound, "request not found")
	}
	exec.Status = domain.ExecutionRunning
	return e.run(ctx, tmpl, exec, &req, &item)
}

// stepStatus maps a step type to the ProcessingStatus the orchestrator
// should hold while that step is running ("before") and the status it
// advances to once the step fully completes without pausing ("after"). Step
// types with no entry (approval, notification, conditional) never drive
// ProcessingItem.status on their own.
func stepStatus(stepType string) (before, after domain.ProcessingStatus, ok bool) {
	switch stepType {
	case "search":
		return domain.StatusSearching, domain.StatusFound, true
	case "download":
		return domain.StatusDownloading, domain.StatusDownloaded, true
	case "encode":
		return domain.StatusEncoding, domain.StatusEncoded, true
	case "deliver":
		return domain.StatusDelivering, domain.StatusCompleted, true
	default:
		return "", "", false
	}
}

// transitionItem is the executor's only path to mutating ProcessingItem.status:
// it always goes through Trans (the orchestrator), which is the sole writer
// per invariant 2, and mirrors the result onto the executor's local item so
// the next iteration sees a consistent view.
func (e *Executor) transitionItem(ctx context.Context, item *domain.ProcessingItem, to domain.ProcessingStatus, patch func(*domain.ProcessingItem)) error {
	if err := e.Trans.TransitionStatus(ctx, item.ID, to, patch); err != nil {
		return err
	}
	item.Status = to
	if patch != nil {
		patch(item)
	}
	return nil
}

// run walks the flattened step list starting at exec.CurrentStepPath,
// advancing until a step pauses or the tree is exhausted.
func (e *Executor) run(ctx context.Context, tmpl Template, exec domain.PipelineExecution, req *domain.Request, item *domain.ProcessingItem) (domain.PipelineExecution, error) {
	flat := tmpl.Flatten()
	startIdx := indexOfPath(flat, exec.CurrentStepPath)

	for i := startIdx; i < len(flat); i++ {
		fs := flat[i]
		priorPath := exec.CurrentStepPath
		if fs.Descriptor.Condition != nil && !Evaluate(*fs.Descriptor.Condition, exec.Context) {
			// A false condition skips this node AND its whole subtree: a
			// conditional step is a gate, not merely a no-op one step wide.
			i = lastDescendant(flat, i)
			continue
		}
		step, ok := e.Registry.Lookup(fs.Descriptor.Type)
		if !ok {
			return e.fail(ctx, exec, item, fmt.Sprintf("unregistered step type %q", fs.Descriptor.Type))
		}
		if before, _, hasStatus := stepStatus(fs.Descriptor.Type); hasStatus {
			if err := e.transitionItem(ctx, item, before, nil); err != nil {
				return exec, err
			}
		}
		logx.Log(exec.RequestID, "pipeline step starting", "step", fs.Descriptor.Name, "type", fs.Descriptor.Type, "executionId", exec.ID)

		out, err := step.Execute(ctx, &exec.Context, item, req, fs.Descriptor.Config)
		if err != nil {
			return e.fail(ctx, exec, item, err.Error())
		}
		if !out.Success {
			if out.ShouldRetry {
				// Leave CurrentStepPath at the last successfully completed
				// step (not this one) so Resume's i+1 re-enters the same
				// step on the next scheduled attempt instead of skipping it.
				exec.CurrentStepPath = priorPath
				exec.Status = domain.ExecutionPaused
				exec.UpdatedAt = e.Clock.Now()
				if uerr := e.Store.UpdateExecution(ctx, exec); uerr != nil {
					return exec, uerr
				}
				return exec, ingesterr.New(ingesterr.ExternalUnavailable, out.Error)
			}
			return e.fail(ctx, exec, item, out.Error)
		}

		blackboard := func(it *domain.ProcessingItem) {
			it.StepContext = exec.Context
			it.DownloadID = item.DownloadID
			it.EncodingJobID = item.EncodingJobID
			it.SourceFilePath = item.SourceFilePath
			it.CurrentStep = fs.Descriptor.Name
		}

		// A step may have mutated req directly (e.g. search stashing
		// availableReleases on a quality-gate pause); persist it alongside
		// the item since both sides of the blackboard can change per step.
		req.UpdatedAt = e.Clock.Now()
		if err := e.Store.UpdateRequest(ctx, *req); err != nil {
			return exec, err
		}

		if out.ShouldPause {
			exec.Status = domain.ExecutionPaused
			exec.CurrentStepPath = fs.Path
			exec.PauseCorrelation = out.Correlation
			exec.UpdatedAt = e.Clock.Now()
			if err := e.Store.UpdateExecution(ctx, exec); err != nil {
				return exec, err
			}
			// Self-transition (item.Status is already the "before" status
			// set above): persists the blackboard without advancing status,
			// since the step's external wait hasn't resolved yet.
			if err := e.transitionItem(ctx, item, item.Status, blackboard); err != nil {
				return exec, err
			}
			logx.Log(exec.RequestID, "pipeline execution paused", "executionId", exec.ID, "step", fs.Descriptor.Name, "correlation", out.Correlation)
			return exec, nil
		}

		// Persist blackboard progress after every successful step so a crash
		// mid-tree resumes with the most recent Context, not a stale one.
		// When this step type owns a forward status transition, advance it.
		exec.CurrentStepPath = fs.Path
		to := item.Status
		if _, after, hasStatus := stepStatus(fs.Descriptor.Type); hasStatus {
			to = after
		}
		if err := e.transitionItem(ctx, item, to, blackboard); err != nil {
			return exec, err
		}
	}

	exec.Status = domain.ExecutionCompleted
	exec.UpdatedAt = e.Clock.Now()
	if err := e.Store.UpdateExecution(ctx, exec); err != nil {
		return exec, err
	}
	logx.Log(exec.RequestID, "pipeline execution completed", "executionId", exec.ID)
	return exec, nil
}

func (e *Executor) fail(ctx context.Context, exec domain.PipelineExecution, item *domain.ProcessingItem, msg string) (domain.PipelineExecution, error) {
	exec.Status = domain.ExecutionFailed
	exec.UpdatedAt = e.Clock.Now()
	_ = e.Store.UpdateExecution(ctx, exec)
	if item != nil {
		_ = e.transitionItem(ctx, item, domain.StatusFailed, func(it *domain.ProcessingItem) {
			it.LastError = msg
		})
	}
	logx.LogError(exec.RequestID, "pipeline execution failed", fmt.Errorf("%s", msg), "executionId", exec.ID)
	return exec, ingesterr.New(ingesterr.IntegrityError, msg)
}

// indexOfPath returns the flattened index to resume at: the step *after*
// path, since path marks the step that suspended (or last completed) and its
// external wait is already resolved by the caller before Resume runs. An
// empty path means a fresh execution, starting at the root.
func indexOfPath(flat []FlatStep, path []int) int {
	if len(path) == 0 {
		return 0
	}
	for i, fs := range flat {
		if pathEqual(fs.Path, path) {
			return i + 1
		}
	}
	return 0
}

// lastDescendant returns the index of the last flattened entry whose Path is
// a descendant of flat[i].Path, or i itself if it has no children.
func lastDescendant(flat []FlatStep, i int) int {
	root := flat[i].Path
	j := i
	for k := i + 1; k < len(flat); k++ {
		if isDescendant(flat[k].Path, root) {
			j = k
		} else {
			break
		}
	}
	return j
}

func isDescendant(path, root []int) bool {
	if len(path) <= len(root) {
		return false
	}
	for k := range root {
		if path[k] != root[k] {
			return false
		}
	}
	return true
}

func pathEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
