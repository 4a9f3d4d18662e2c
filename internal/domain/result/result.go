// Package result accumulates per-record outcomes into a job summary.
package result

import (
	"time"

	"github.com/okian/reconcile/internal/domain/execute"
)

// DefaultSampleSize caps the number of failures kept with their message.
const DefaultSampleSize = 10

// Counts holds the per-outcome tallies of a run.
type Counts struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// SampledError is one failed record kept for the operator.
type SampledError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// JobResult is the summary returned to the caller of a job.
type JobResult struct {
	Job           string         `json:"job"`
	RunID         string         `json:"run_id,omitempty"`
	Success       bool           `json:"success"`
	DryRun        bool           `json:"dry_run"`
	Cancelled     bool           `json:"cancelled"`
	Counts        Counts         `json:"counts"`
	TotalScanned  int            `json:"total_scanned"`
	SampledErrors []SampledError `json:"sampled_errors"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	DurationMS    int64          `json:"duration_ms"`
}

// Progress is handed to the progress callback.
type Progress struct {
	Scanned int
	Counts  Counts
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithSampleSize sets how many failures keep their message.
func WithSampleSize(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.sampleSize = n
		}
	}
}

// WithProgress calls fn after every n recorded outcomes.
func WithProgress(n int, fn func(Progress)) Option {
	return func(a *Aggregator) {
		if n > 0 && fn != nil {
			a.progressEvery = n
			a.progress = fn
		}
	}
}

// Aggregator collects outcomes for one run. It has a single writer and no locking.
type Aggregator struct {
	counts        Counts
	scanned       int
	samples       []SampledError
	sampleSize    int
	progressEvery int
	progress      func(Progress)
}

// New creates an empty Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{sampleSize: DefaultSampleSize}
	for _, opt := range opts {
		opt(a)
	}
	a.samples = make([]SampledError, 0, a.sampleSize)
	return a
}

// Record adds the outcome for record id.
func (a *Aggregator) Record(id string, out execute.Outcome) {
	a.scanned++
	switch out.Kind {
	case execute.Updated:
		a.counts.Updated++
	case execute.Deleted:
		a.counts.Deleted++
	case execute.Failed:
		a.counts.Errors++
		if len(a.samples) < a.sampleSize {
			msg := "unknown error"
			if out.Err != nil {
				msg = out.Err.Error()
			}
			a.samples = append(a.samples, SampledError{ID: id, Message: msg})
		}
	default:
		a.counts.Skipped++
	}

	if a.progress != nil && a.scanned%a.progressEvery == 0 {
		a.progress(Progress{Scanned: a.scanned, Counts: a.counts})
	}
}

// Counts returns the tallies so far.
func (a *Aggregator) Counts() Counts { return a.counts }

// Scanned returns the number of recorded outcomes.
func (a *Aggregator) Scanned() int { return a.scanned }

// Summarize returns the result so far. Success is true: per-record failures
// only show in Counts.Errors. Callers clear it for aborted runs.
func (a *Aggregator) Summarize() JobResult {
	samples := make([]SampledError, len(a.samples))
	copy(samples, a.samples)
	return JobResult{
		Success:       true,
		Counts:        a.counts,
		TotalScanned:  a.scanned,
		SampledErrors: samples,
	}
}
