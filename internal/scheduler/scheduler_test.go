package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/orchestrator"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
	"github.com/livepeer-forks/ingestctl/internal/recovery"
	"github.com/livepeer-forks/ingestctl/internal/store"
	"github.com/stretchr/testify/require"
)

func TestRegisterRecoveryAndDispatchWireWithoutError(t *testing.T) {
	mem := store.NewMemory()
	reg := pipeline.NewRegistry()
	templates := map[string]pipeline.Template{}
	exec := pipeline.NewExecutor(mem, reg, templates, nil)
	orch := orchestrator.New(mem, exec, nil, templates, nil)
	exec.Trans = orch
	disp := dispatch.NewDispatcher(mem, nil, nil, orch)
	orch.Dispatcher = disp

	w := recovery.New(mem, orch, nil)

	s := New(context.Background())
	require.NoError(t, s.RegisterRecovery(w))
	require.NoError(t, s.RegisterDispatch(disp))
}

func TestRunLoggedSwallowsError(t *testing.T) {
	s := New(context.Background())
	var called int32
	job := s.runLogged("boom", func(ctx context.Context) error {
		atomic.AddInt32(&called, 1)
		return errors.New("boom")
	})
	require.NotPanics(t, func() { job() })
	require.Equal(t, int32(1), atomic.LoadInt32(&called))
}
