package api

import (
	"net/http"
)

// RunsHandler exposes the run registry.
type RunsHandler struct {
	deps Dependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

// HandleList handles GET /runs requests.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Authorize(r.Context(), principalFrom(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ListRuns())
}

// HandleGet handles GET /runs/{id} requests.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Authorize(r.Context(), principalFrom(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	run, err := h.deps.GetRun(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
