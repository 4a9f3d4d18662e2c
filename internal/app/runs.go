package service

import (
	"sort"
	"sync"
	"time"

	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/internal/domain/result"
)

const defaultMaxRuns = 1000

// Run is the record of one job run, kept in memory until process exit.
type Run struct {
	ID             string            `json:"id"`
	Job            string            `json:"job"`
	OrganizationID string            `json:"organization_id,omitempty"`
	DryRun         bool              `json:"dry_run"`
	Principal      string            `json:"principal,omitempty"`
	Status         string            `json:"status"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
	Result         *result.JobResult `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Runs is a bounded registry of runs. Once full, the oldest finished run is
// dropped to make room.
type Runs struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string
	max   int
}

// NewRuns creates a registry holding at most max runs.
func NewRuns(max int) *Runs {
	if max <= 0 {
		max = defaultMaxRuns
	}
	return &Runs{runs: make(map[string]*Run), max: max}
}

// Add registers a queued run for req.
func (r *Runs) Add(req model.JobRequest) Run { //nolint:gocritic // hugeParam: JobRequest is copied into the registry
	r.mu.Lock()
	defer r.mu.Unlock()

	run := &Run{
		ID:             req.RunID,
		Job:            req.Job,
		OrganizationID: req.OrganizationID,
		DryRun:         req.DryRun,
		Principal:      req.Principal,
		Status:         StatusQueued,
		SubmittedAt:    req.SubmittedAt,
	}
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	r.evict()
	return *run
}

// Start marks a run as running.
func (r *Runs) Start(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run, ok := r.runs[id]; ok {
		run.Status = StatusRunning
		run.StartedAt = &at
	}
}

// Finish stores the outcome of a run.
func (r *Runs) Finish(id string, res result.JobResult, err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return
	}
	run.FinishedAt = &at
	run.Result = &res
	switch {
	case res.Cancelled:
		run.Status = StatusCancelled
	case err != nil:
		run.Status = StatusFailed
		run.Error = err.Error()
	case !res.Success:
		run.Status = StatusFailed
	default:
		run.Status = completedStatus(res)
	}
}

// Remove drops a run, used when it could not be queued.
func (r *Runs) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runs, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of a run.
func (r *Runs) Get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns every run, newest first.
func (r *Runs) List() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, *run)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// CountByStatus tallies runs per status.
func (r *Runs) CountByStatus() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, run := range r.runs {
		counts[run.Status]++
	}
	return counts
}

// evict must be called with r.mu held.
func (r *Runs) evict() {
	for len(r.order) > r.max {
		dropped := false
		for i, id := range r.order {
			if run := r.runs[id]; run.FinishedAt != nil {
				delete(r.runs, id)
				r.order = append(r.order[:i], r.order[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}
