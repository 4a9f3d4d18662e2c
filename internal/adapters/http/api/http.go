// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/reconcile/internal/app"
	"github.com/okian/reconcile/internal/auth"
	"github.com/okian/reconcile/internal/domain/result"
	"github.com/okian/reconcile/pkg/metrics"
)

// PrincipalHeader optionally names the caller in run records and logs.
const PrincipalHeader = "X-Principal"

// IdempotencyHeader deduplicates asynchronous submissions.
const IdempotencyHeader = "Idempotency-Key"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Authorize(ctx context.Context, principal auth.Principal) error
	Jobs() []service.JobInfo
	Run(ctx context.Context, principal auth.Principal, name string, p service.Params) (result.JobResult, error)
	Submit(ctx context.Context, principal auth.Principal, name string, p service.Params, idempotencyKey string) (service.Run, bool, error)
	GetRun(id string) (service.Run, error)
	ListRuns() []service.Run
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	jobsHandler   *JobsHandler
	runsHandler   *RunsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		jobsHandler:   NewJobsHandler(deps),
		runsHandler:   NewRunsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /jobs", MetricsMiddleware(s.jobsHandler.HandleList, "jobs"))
	mux.HandleFunc("POST /jobs/{name}", MetricsMiddleware(s.jobsHandler.HandleRun, "jobs_run"))
	mux.HandleFunc("GET /runs", MetricsMiddleware(s.runsHandler.HandleList, "runs"))
	mux.HandleFunc("GET /runs/{id}", MetricsMiddleware(s.runsHandler.HandleGet, "runs_get"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="reconcile"`)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates a service error into its HTTP form.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// principalFrom reads the bearer token and the optional caller name.
func principalFrom(r *http.Request) auth.Principal {
	subject := strings.TrimSpace(r.Header.Get(PrincipalHeader))
	if subject == "" {
		subject = "api"
	}
	return auth.Principal{
		Subject: subject,
		Token:   auth.BearerToken(r.Header.Get("Authorization")),
	}
}
