package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/reconcile/internal/app"
	"github.com/okian/reconcile/internal/domain/result"
)

// JobsHandler lists and triggers reconciliation jobs.
type JobsHandler struct {
	deps Dependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// runRequest mirrors the OpenAPI schema for POST /jobs/{name}.
type runRequest struct {
	OrganizationID string `json:"organization_id"`
	DryRun         bool   `json:"dry_run"`
}

type submitResponse struct {
	Run       service.Run `json:"run"`
	Duplicate bool        `json:"duplicate"`
}

type readFailedResponse struct {
	errorResponse
	Result result.JobResult `json:"result"`
}

// HandleList handles GET /jobs requests.
func (h *JobsHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Jobs())
}

// HandleRun handles POST /jobs/{name} requests. The job runs inline unless
// async=true is set, in which case it is queued and 202 returns the run.
// A synchronous run is cancelled when the client disconnects.
func (h *JobsHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_job"
	name := r.PathValue("name")
	params, err := decodeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	async, err := boolQuery(r, "async")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	principal := principalFrom(r)

	if async {
		run, dup, err := h.deps.Submit(r.Context(), principal, name, params, strings.TrimSpace(r.Header.Get(IdempotencyHeader)))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Location", "/runs/"+run.ID)
		status := http.StatusAccepted
		if dup {
			status = http.StatusOK
		}
		writeJSON(w, status, submitResponse{Run: run, Duplicate: dup})
		return
	}

	res, err := h.deps.Run(r.Context(), principal, name, params)
	switch {
	case errors.Is(err, service.ErrReadFailed):
		status, code := statusFor(err)
		writeJSON(w, status, readFailedResponse{
			errorResponse: errorResponse{Code: code, Message: err.Error()},
			Result:        res,
		})
	case err != nil:
		writeServiceError(w, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// decodeParams reads an optional JSON body; org_id and dry_run query
// parameters override it.
func decodeParams(r *http.Request) (service.Params, error) {
	var req runRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return service.Params{}, err
		}
	}
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("org_id")); v != "" {
		req.OrganizationID = v
	}
	if q.Has("dry_run") {
		dry, err := boolQuery(r, "dry_run")
		if err != nil {
			return service.Params{}, err
		}
		req.DryRun = dry
	}
	return service.Params{OrganizationID: strings.TrimSpace(req.OrganizationID), DryRun: req.DryRun}, nil
}

func boolQuery(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("invalid " + key + "; must be a boolean")
	}
	return b, nil
}
