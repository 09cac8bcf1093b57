package steps

import (
	"context"
	"os"
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/collaborators"
	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeDelivery struct {
	existsResult map[string]bool
	failServers  map[string]bool
	scanned      []string
}

func (f *fakeDelivery) Exists(ctx context.Context, serverID, destPath string) (bool, error) {
	return f.existsResult[serverID], nil
}

func (f *fakeDelivery) Transfer(ctx context.Context, serverID, sourcePath, destPath string, onProgress collaborators.DeliveryProgress) error {
	if onProgress != nil {
		onProgress(50, 100)
	}
	if f.failServers[serverID] {
		return os.ErrClosed
	}
	return nil
}

func (f *fakeDelivery) TriggerScan(ctx context.Context, serverID string) error {
	f.scanned = append(f.scanned, serverID)
	return nil
}

func tempVideoFile(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "encoded-*.mkv")
	require.NoError(t, err)
	f.Close()
	return f.Name()
}

func TestDeliverTransfersToAllTargetServers(t *testing.T) {
	file := tempVideoFile(t)
	transport := &fakeDelivery{existsResult: map[string]bool{}, failServers: map[string]bool{}}
	step := Deliver{Transport: transport}
	req := &domain.Request{Kind: domain.KindMovie, Title: "A Movie", Year: 2022}
	item := &domain.ProcessingItem{}
	pctx := &domain.StepContext{Encode: &domain.EncodeContext{EncodedFiles: []domain.EncodedFile{
		{Path: file, Resolution: "1080p", Codec: "hevc", TargetServerIDs: []string{"srv1", "srv2"}},
	}}}

	out, err := step.Execute(context.Background(), pctx, item, req, nil)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, pctx.Deliver.DeliveredServers, 2)
	require.Empty(t, pctx.Deliver.FailedServers)
	_, statErr := os.Stat(file)
	require.True(t, os.IsNotExist(statErr), "encoded temp file should be cleaned up after full success")
}

func TestDeliverUpsertsLibraryItemAndTriggersScan(t *testing.T) {
	file := tempVideoFile(t)
	transport := &fakeDelivery{existsResult: map[string]bool{}, failServers: map[string]bool{}}
	mem := store.NewMemory()
	step := Deliver{Transport: transport, Store: mem}
	req := &domain.Request{
		ID: "req1", Kind: domain.KindMovie, Title: "A Movie", Year: 2022, ExternalID: "tt123",
		Targets: []domain.DeliveryTarget{{ServerID: "srv1", RequestScanAfter: true}, {ServerID: "srv2"}},
	}
	item := &domain.ProcessingItem{}
	pctx := &domain.StepContext{Encode: &domain.EncodeContext{EncodedFiles: []domain.EncodedFile{
		{Path: file, Resolution: "1080p", Codec: "hevc", TargetServerIDs: []string{"srv1", "srv2"}},
	}}}

	out, err := step.Execute(context.Background(), pctx, item, req, nil)
	require.NoError(t, err)
	require.True(t, out.Success)

	li1, ok, err := mem.GetLibraryItem(context.Background(), "tt123", domain.KindMovie, "srv1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1080p", li1.Quality)

	li2, ok, err := mem.GetLibraryItem(context.Background(), "tt123", domain.KindMovie, "srv2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1080p", li2.Quality)

	require.Equal(t, []string{"srv1"}, transport.scanned, "only srv1's target asked for a scan")
}

func TestDeliverSkipsAlreadyRecoveredDestination(t *testing.T) {
	file := tempVideoFile(t)
	transport := &fakeDelivery{existsResult: map[string]bool{"srv1": true}, failServers: map[string]bool{}}
	step := Deliver{Transport: transport}
	req := &domain.Request{Kind: domain.KindMovie, Title: "A Movie", Year: 2022}
	item := &domain.ProcessingItem{}
	pctx := &domain.StepContext{Encode: &domain.EncodeContext{EncodedFiles: []domain.EncodedFile{
		{Path: file, Resolution: "1080p", Codec: "hevc", TargetServerIDs: []string{"srv1"}},
	}}}

	out, err := step.Execute(context.Background(), pctx, item, req, nil)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Contains(t, pctx.Deliver.Recovered, "srv1|"+file)
}

func TestDeliverFailureWithRequireAllServersSuccessRetries(t *testing.T) {
	prev := config.RequireAllServersSuccess
	config.RequireAllServersSuccess = true
	defer func() { config.RequireAllServersSuccess = prev }()

	file := tempVideoFile(t)
	transport := &fakeDelivery{existsResult: map[string]bool{}, failServers: map[string]bool{"srv2": true}}
	step := Deliver{Transport: transport}
	req := &domain.Request{Kind: domain.KindMovie, Title: "A Movie", Year: 2022}
	item := &domain.ProcessingItem{}
	pctx := &domain.StepContext{Encode: &domain.EncodeContext{EncodedFiles: []domain.EncodedFile{
		{Path: file, Resolution: "1080p", Codec: "hevc", TargetServerIDs: []string{"srv1", "srv2"}},
	}}}

	out, err := step.Execute(context.Background(), pctx, item, req, nil)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.True(t, out.ShouldRetry)
	_, statErr := os.Stat(file)
	require.NoError(t, statErr, "temp file must survive a partial-failure delivery so retry can resend it")
}

func TestDeliverFailureWithoutRequireAllServersSuccessStillReportsSuccess(t *testing.T) {
	prev := config.RequireAllServersSuccess
	config.RequireAllServersSuccess = false
	defer func() { config.RequireAllServersSuccess = prev }()

	file := tempVideoFile(t)
	transport := &fakeDelivery{existsResult: map[string]bool{}, failServers: map[string]bool{"srv2": true}}
	step := Deliver{Transport: transport}
	req := &domain.Request{Kind: domain.KindMovie, Title: "A Movie", Year: 2022}
	item := &domain.ProcessingItem{}
	pctx := &domain.StepContext{Encode: &domain.EncodeContext{EncodedFiles: []domain.EncodedFile{
		{Path: file, Resolution: "1080p", Codec: "hevc", TargetServerIDs: []string{"srv1", "srv2"}},
	}}}

	out, err := step.Execute(context.Background(), pctx, item, req, nil)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.True(t, out.ShouldRetry)
	require.Contains(t, pctx.Deliver.FailedServers, "srv2|"+file)
}
