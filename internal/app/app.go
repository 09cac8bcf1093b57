// Package app wires the long-running pieces of the control plane together
// (HTTP API, encoder WebSocket listener, scheduler) and owns the shutdown
// sequence spec §5 documents, so the ordering is a unit-testable function
// rather than scattered defer statements in main.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/logx"
)

// scheduler is the narrow surface Shutdown needs from internal/scheduler.Scheduler.
type scheduler interface {
	Stop()
}

// progressDispatcher is the narrow surface Shutdown needs from
// internal/dispatch.Dispatcher; named separately from the package so tests
// can substitute a recorder without standing up a real Store.
type progressDispatcher interface {
	FlushProgress(ctx context.Context)
	Broadcast(msg any)
	CloseAll()
}

// httpServer is the narrow surface Shutdown needs from *http.Server.
type httpServer interface {
	Shutdown(ctx context.Context) error
}

// Application holds the servers and background loops one control plane
// process runs, purely so Shutdown can sequence their teardown.
type Application struct {
	Scheduler  scheduler
	Dispatcher progressDispatcher
	HTTPServer httpServer
	WSServer   httpServer

	// ShutdownTimeout bounds each server's graceful drain; defaults to 5s
	// when zero, matching the teacher's api.ListenAndServe.
	ShutdownTimeout time.Duration
}

// New builds an Application from the concrete components cmd/controlplane
// wires up; a plain struct literal works too, but this keeps the concrete
// *http.Server/*dispatch.Dispatcher/*scheduler.Scheduler types out of
// callers that only need to hand Shutdown something that satisfies the
// interfaces above.
func New(sched scheduler, disp progressDispatcher, httpSrv, wsSrv *http.Server) *Application {
	a := &Application{Scheduler: sched, Dispatcher: disp}
	if httpSrv != nil {
		a.HTTPServer = httpSrv
	}
	if wsSrv != nil {
		a.WSServer = wsSrv
	}
	return a
}

// Shutdown runs the documented shutdown sequence in order: stop accepting
// new scheduled work, flush in-memory progress synchronously so no metrics
// are lost, tell every connected encoder the server is going away, then
// close the listeners. Each step still runs even if an earlier one errors,
// so a failure never strands the process half torn-down; the first error
// encountered is returned.
func (a *Application) Shutdown(ctx context.Context) error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Dispatcher != nil {
		a.Dispatcher.FlushProgress(ctx)
		a.Dispatcher.Broadcast(dispatch.ServerShutdownMsg{Type: "server:shutdown", ReconnectDelay: 5})
	}

	timeout := a.ShutdownTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.WSServer != nil {
		record(a.WSServer.Shutdown(shutdownCtx))
	}
	if a.Dispatcher != nil {
		a.Dispatcher.CloseAll()
	}
	if a.HTTPServer != nil {
		record(a.HTTPServer.Shutdown(shutdownCtx))
	}

	logx.LogNoID("control plane shutdown complete")
	return first
}
