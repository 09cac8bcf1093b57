// Package api exposes the orchestrator's narrow programmatic surface (§6)
// over HTTP, following the teacher's handlers.CatalystAPIHandlersCollection
// shape: one struct embedding its dependency, one method per route
// returning an httprouter.Handle closure.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/orchestrator"
)

// Handlers wraps the Orchestrator that every route delegates to.
type Handlers struct {
	Orchestrator *orchestrator.Orchestrator
}

// Router builds the httprouter mux for every C6 operation, mirroring
// cmd/http-server/http-server.go's StartCatalystAPIRouter wiring. apiToken
// empty disables auth, matching the dev-mode escape hatch the teacher's own
// -api-token flag allows.
func (h *Handlers) Router(apiToken string) *httprouter.Router {
	auth := func(next httprouter.Handle) httprouter.Handle {
		if apiToken == "" {
			return next
		}
		return RequireBearerToken(apiToken, next)
	}
	r := httprouter.New()
	r.GET("/ok", h.Ok())
	r.POST("/api/requests", auth(h.CreateRequest()))
	r.POST("/api/requests/:requestId/cancel", auth(h.Cancel()))
	r.POST("/api/requests/:requestId/retry", auth(h.Retry()))
	r.POST("/api/items/:itemId/cancel", auth(h.CancelItem()))
	r.POST("/api/items/:itemId/retry", auth(h.RetryItem()))
	r.POST("/api/items/:itemId/accept-lower-quality", auth(h.AcceptLowerQuality()))
	r.POST("/api/items/:itemId/override-release", auth(h.OverrideDiscoveredRelease()))
	r.POST("/api/items/:itemId/approve", auth(h.ApproveDiscoveredItem()))
	return r
}

func (h *Handlers) Ok() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Write([]byte("OK"))
	}
}

type createRequestBody struct {
	Request orchestratorRequest `json:"request"`
	Items   []itemSpecBody      `json:"items"`
}

func (h *Handlers) CreateRequest() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body createRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, err)
			return
		}
		req, err := h.Orchestrator.CreateRequest(r.Context(), body.Request.toDomain(), toItemSpecs(body.Items))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func (h *Handlers) Cancel() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := h.Orchestrator.Cancel(r.Context(), ps.ByName("requestId")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) Retry() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := h.Orchestrator.Retry(r.Context(), ps.ByName("requestId")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) CancelItem() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := h.Orchestrator.CancelItem(r.Context(), ps.ByName("itemId")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) RetryItem() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := h.Orchestrator.RetryItem(r.Context(), ps.ByName("itemId")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) AcceptLowerQuality() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := h.Orchestrator.AcceptLowerQuality(r.Context(), ps.ByName("itemId")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type overrideReleaseBody struct {
	ReleaseIndex int `json:"releaseIndex"`
}

func (h *Handlers) OverrideDiscoveredRelease() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body overrideReleaseBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := h.Orchestrator.OverrideDiscoveredRelease(r.Context(), ps.ByName("itemId"), body.ReleaseIndex); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type approveBody struct {
	Granted bool `json:"granted"`
}

func (h *Handlers) ApproveDiscoveredItem() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body approveBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := h.Orchestrator.ApproveDiscoveredItem(r.Context(), ps.ByName("itemId"), body.Granted); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "malformed request body: " + err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.LogNoID("error writing JSON response", "err", err.Error())
	}
}

// writeError maps an ingesterr.Kind to the HTTP status a caller should act
// on, following the teacher's errors.writeHttpError shape but keyed off our
// own typed error kind instead of a bespoke per-call status argument.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := ingesterr.KindOf(err); ok {
		switch kind {
		case ingesterr.NotFound:
			status = http.StatusNotFound
		case ingesterr.InvalidTransition, ingesterr.PreconditionFailed, ingesterr.ConfigError, ingesterr.DuplicateWork:
			status = http.StatusConflict
		case ingesterr.ExternalUnavailable, ingesterr.Timeout, ingesterr.WorkerDisconnected:
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
