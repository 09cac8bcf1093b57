package steps

import (
	"context"
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/store"
	"github.com/stretchr/testify/require"
)

func TestEncodeValidateConfigRequiresKnownProfile(t *testing.T) {
	e := Encode{Profiles: map[string]dispatch.Profile{"p1": {ID: "p1"}}}
	require.Error(t, e.ValidateConfig(map[string]any{}))
	require.Error(t, e.ValidateConfig(map[string]any{"profileId": "unknown"}))
	require.NoError(t, e.ValidateConfig(map[string]any{"profileId": "p1"}))
}

func TestEncodeQueuesJobAndPauses(t *testing.T) {
	mem := store.NewMemory()
	d := dispatch.NewDispatcher(mem, nil, nil, nil)
	e := Encode{Dispatcher: d, Profiles: map[string]dispatch.Profile{"p1": {ID: "p1"}}}

	item := &domain.ProcessingItem{SourceFilePath: "/in/movie.mkv"}
	out, err := e.Execute(context.Background(), &domain.StepContext{}, item, &domain.Request{}, map[string]any{"profileId": "p1", "outputDir": "/out"})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.True(t, out.ShouldPause)
	require.NotEmpty(t, item.EncodingJobID)
	require.Equal(t, item.EncodingJobID, out.Correlation)

	assignment, ok, err := mem.GetAssignmentByJobID(context.Background(), item.EncodingJobID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/in/movie.mkv", assignment.InputPath)
}
