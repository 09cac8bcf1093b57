package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingComponents is a single fake satisfying scheduler, progressDispatcher
// and httpServer so the test can assert the exact call order Shutdown
// produces, rather than inferring it from side effects on real sockets.
type recordingComponents struct {
	calls *[]string
}

func (r recordingComponents) Stop() {
	*r.calls = append(*r.calls, "scheduler:stop")
}

func (r recordingComponents) FlushProgress(ctx context.Context) {
	*r.calls = append(*r.calls, "dispatcher:flush")
}

func (r recordingComponents) Broadcast(msg any) {
	*r.calls = append(*r.calls, "dispatcher:broadcast")
}

func (r recordingComponents) CloseAll() {
	*r.calls = append(*r.calls, "dispatcher:closeall")
}

type recordingServer struct {
	name  string
	calls *[]string
}

func (s recordingServer) Shutdown(ctx context.Context) error {
	*s.calls = append(*s.calls, s.name+":shutdown")
	return nil
}

func TestShutdownRunsStepsInDocumentedOrder(t *testing.T) {
	var calls []string
	shared := recordingComponents{calls: &calls}

	a := &Application{
		Scheduler:  shared,
		Dispatcher: shared,
		WSServer:   recordingServer{name: "ws", calls: &calls},
		HTTPServer: recordingServer{name: "http", calls: &calls},
	}

	require.NoError(t, a.Shutdown(context.Background()))
	require.Equal(t, []string{
		"scheduler:stop",
		"dispatcher:flush",
		"dispatcher:broadcast",
		"ws:shutdown",
		"dispatcher:closeall",
		"http:shutdown",
	}, calls)
}

func TestShutdownToleratesNilComponents(t *testing.T) {
	a := &Application{}
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestShutdownReturnsFirstServerError(t *testing.T) {
	wantErr := require.Error
	a := &Application{
		HTTPServer: erroringServer{},
	}
	err := a.Shutdown(context.Background())
	wantErr(t, err)
}

type erroringServer struct{}

func (erroringServer) Shutdown(ctx context.Context) error {
	return errBoom
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
