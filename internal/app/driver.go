package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/auth"
	"github.com/okian/reconcile/internal/domain/execute"
	"github.com/okian/reconcile/internal/domain/index"
	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/internal/domain/result"
	"github.com/okian/reconcile/internal/domain/scan"
	"github.com/okian/reconcile/pkg/logger"
	"github.com/okian/reconcile/pkg/metrics"
)

// Run statuses used for metrics and the run registry. A run that completes
// with per-record failures is StatusCompletedWithErrors, still a success.
const (
	StatusQueued              = "queued"
	StatusRunning             = "running"
	StatusSucceeded           = "succeeded"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
	StatusCancelled           = "cancelled"
	StatusRejected            = "rejected"
)

// Driver runs named reconciliation jobs against a store.
//
// Each run owns its index, executor and aggregator. A Driver may run several
// jobs concurrently; runs sharing a collection wait for each other.
type Driver struct {
	store      repository.Store
	authorizer auth.Authorizer
	jobs       map[string]job
	locks      *collectionLocks

	pageSize      int
	sortKey       string
	policy        execute.Policy
	paceEvery     int
	paceDelay     time.Duration
	sampleSize    int
	progressEvery int
	tieBreak      index.TieBreak
	teamSentinel  string
	jobSlots      int
	now           func() time.Time

	logger logger.Logger
}

// DriverOption applies a configuration option to the Driver.
type DriverOption func(*Driver)

// WithPageSize sets the scan page size.
func WithPageSize(n int) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

// WithSortKey sets the field pages are ordered by.
func WithSortKey(key string) DriverOption {
	return func(d *Driver) {
		if key != "" {
			d.sortKey = key
		}
	}
}

// WithRetryPolicy sets the retry policy for store writes.
func WithRetryPolicy(p execute.Policy) DriverOption {
	return func(d *Driver) {
		d.policy = p
	}
}

// WithPacing sleeps delay after every n processed records.
func WithPacing(n int, delay time.Duration) DriverOption {
	return func(d *Driver) {
		d.paceEvery = n
		d.paceDelay = delay
	}
}

// WithSampleSize sets how many failures a result keeps with their message.
func WithSampleSize(n int) DriverOption {
	return func(d *Driver) {
		if n >= 0 {
			d.sampleSize = n
		}
	}
}

// WithProgressEvery logs progress after every n records. 0 disables it.
func WithProgressEvery(n int) DriverOption {
	return func(d *Driver) {
		d.progressEvery = n
	}
}

// WithTieBreak sets the duplicate key policy for relationship indexes.
func WithTieBreak(tb index.TieBreak) DriverOption {
	return func(d *Driver) {
		d.tieBreak = tb
	}
}

// WithTeamSentinel sets the placeholder removed by cleanup-unknown-team.
func WithTeamSentinel(s string) DriverOption {
	return func(d *Driver) {
		if s != "" {
			d.teamSentinel = s
		}
	}
}

// WithJobSlots bounds how many jobs RunMany executes at once.
func WithJobSlots(n int) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.jobSlots = n
		}
	}
}

// WithDriverLogger sets a custom logger.
func WithDriverLogger(l logger.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDriver creates a Driver over store guarded by authorizer.
func NewDriver(store repository.Store, authorizer auth.Authorizer, opts ...DriverOption) *Driver {
	d := &Driver{
		store:        store,
		authorizer:   authorizer,
		jobs:         make(map[string]job),
		locks:        newCollectionLocks(),
		pageSize:     scan.DefaultPageSize,
		policy:       execute.DefaultPolicy(),
		sampleSize:   result.DefaultSampleSize,
		teamSentinel: "unknown",
		jobSlots:     2,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.authorizer == nil {
		d.authorizer = auth.AllowAll{}
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("driver")
	}
	d.registerJobs()
	return d
}

// Jobs lists the registered jobs by name.
func (d *Driver) Jobs() []JobInfo {
	out := make([]JobInfo, 0, len(d.jobs))
	for _, j := range d.jobs {
		out = append(out, j.JobInfo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Authorize checks that principal holds the administrative capability.
func (d *Driver) Authorize(ctx context.Context, principal auth.Principal) error {
	if err := d.authorizer.Authorize(ctx, principal); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// Check authorizes principal and validates the request without reading data.
func (d *Driver) Check(ctx context.Context, principal auth.Principal, name string, p Params) error {
	if err := d.Authorize(ctx, principal); err != nil {
		return err
	}
	j, ok := d.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if j.OrgScoped && strings.TrimSpace(p.OrganizationID) == "" {
		return fmt.Errorf("%s: %w", name, ErrMissingOrganization)
	}
	return nil
}

// Run checks the request and executes it.
func (d *Driver) Run(ctx context.Context, principal auth.Principal, name string, p Params) (result.JobResult, error) {
	if err := d.Check(ctx, principal, name, p); err != nil {
		metrics.RecordJobRun(name, StatusRejected, 0)
		d.logger.Warn(ctx, "job rejected",
			logger.String("job", name),
			logger.String("principal", principal.Subject),
			logger.Error(err))
		return result.JobResult{Job: name, DryRun: p.DryRun, SampledErrors: []result.SampledError{}, Error: err.Error()}, err
	}
	return d.Execute(ctx, "", name, p)
}

// Execute runs an already checked request. A read failure returns
// ErrReadFailed together with the counts gathered before the abort; a
// cancelled context returns the partial result with Cancelled set and no error.
func (d *Driver) Execute(ctx context.Context, runID, name string, p Params) (result.JobResult, error) {
	started := d.now()
	log := d.logger.With(logger.String("job", name), logger.String("run_id", runID))

	finish := func(res result.JobResult, status string, err error) (result.JobResult, error) {
		res.Job = name
		res.RunID = runID
		res.DryRun = p.DryRun
		res.StartedAt = started
		elapsed := d.now().Sub(started)
		res.DurationMS = elapsed.Milliseconds()
		if err != nil {
			res.Error = err.Error()
		}
		metrics.RecordJobRun(name, status, elapsed.Seconds())
		log.Info(ctx, "job finished",
			logger.String("status", status),
			logger.Int("scanned", res.TotalScanned),
			logger.Int("updated", res.Counts.Updated),
			logger.Int("deleted", res.Counts.Deleted),
			logger.Int("skipped", res.Counts.Skipped),
			logger.Int("errors", res.Counts.Errors),
			logger.Duration("took", elapsed))
		return res, err
	}

	j, ok := d.jobs[name]
	if !ok {
		res := result.New().Summarize()
		res.Success = false
		return finish(res, StatusRejected, fmt.Errorf("%w: %q", ErrUnknownJob, name))
	}

	release, err := d.locks.acquire(ctx, j.collections())
	if err != nil {
		return finish(cancelled(result.New()), StatusCancelled, nil)
	}
	defer release()

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()
	log.Info(ctx, "job started",
		logger.String("organization_id", p.OrganizationID),
		logger.Bool("dry_run", p.DryRun))

	agg := result.New(
		result.WithSampleSize(d.sampleSize),
		result.WithProgress(d.progressEvery, func(pr result.Progress) {
			log.Info(ctx, "job progress",
				logger.Int("scanned", pr.Scanned),
				logger.Int("updated", pr.Counts.Updated),
				logger.Int("deleted", pr.Counts.Deleted),
				logger.Int("errors", pr.Counts.Errors))
		}),
	)

	pl, err := j.prepare(ctx, d, p)
	if err != nil {
		if ctx.Err() != nil {
			return finish(cancelled(agg), StatusCancelled, nil)
		}
		res := agg.Summarize()
		res.Success = false
		return finish(res, StatusFailed, fmt.Errorf("%w: %w", ErrReadFailed, err))
	}

	ex := execute.New(d.store,
		execute.WithPolicy(d.policy),
		execute.WithPacing(d.paceEvery, d.paceDelay),
		execute.WithDryRun(p.DryRun),
		execute.WithJob(name))

	opts := append(d.primaryScanOpts(ctx, j), pl.scanOpts...)
	opts = append(opts, scan.WithRemoved(ex.Removed))
	for rec, err := range scan.All(ctx, d.store, j.Entity, opts...) {
		if err != nil {
			if ctx.Err() != nil {
				return finish(cancelled(agg), StatusCancelled, nil)
			}
			res := agg.Summarize()
			res.Success = false
			return finish(res, StatusFailed, fmt.Errorf("%w: %w", ErrReadFailed, err))
		}
		if ctx.Err() != nil {
			return finish(cancelled(agg), StatusCancelled, nil)
		}
		agg.Record(rec.ID, ex.Apply(ctx, j.Entity, rec, pl.classifier(rec)))
	}

	res := agg.Summarize()
	return finish(res, completedStatus(res), nil)
}

func completedStatus(res result.JobResult) string { //nolint:gocritic // hugeParam: read only
	if res.Counts.Errors > 0 {
		return StatusCompletedWithErrors
	}
	return StatusSucceeded
}

func cancelled(agg *result.Aggregator) result.JobResult {
	res := agg.Summarize()
	res.Success = false
	res.Cancelled = true
	return res
}

// RunMany runs several jobs with the same parameters, at most jobSlots at a
// time. Jobs sharing a collection still run one after another. Results are
// returned in the order of names; the error is the first rejection or read
// failure, if any.
func (d *Driver) RunMany(ctx context.Context, principal auth.Principal, names []string, p Params) ([]result.JobResult, error) {
	results := make([]result.JobResult, len(names))
	var g errgroup.Group
	g.SetLimit(d.jobSlots)
	for i, name := range names {
		g.Go(func() error {
			res, err := d.Run(ctx, principal, name, p)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

func (d *Driver) scanOpts() []scan.Option {
	opts := []scan.Option{scan.WithPageSize(d.pageSize)}
	if d.sortKey != "" {
		opts = append(opts, scan.WithSortKey(d.sortKey))
	}
	return opts
}

// primaryScanOpts orders by id when the job rewrites the configured sort key,
// since rewritten rows would move between pages.
func (d *Driver) primaryScanOpts(ctx context.Context, j job) []scan.Option { //nolint:gocritic // hugeParam: job is read only
	if !slices.Contains(j.writes, d.sortKey) {
		return d.scanOpts()
	}
	d.logger.Debug(ctx, "job rewrites the sort key; paging by id",
		logger.String("job", j.Name),
		logger.String("sort_key", d.sortKey))
	return []scan.Option{scan.WithPageSize(d.pageSize), scan.WithSortKey(model.FieldID)}
}

func (d *Driver) indexOpts() []index.Option {
	return []index.Option{index.WithTieBreak(d.tieBreak)}
}

func (d *Driver) tieBreakName() string {
	if d.tieBreak == index.TieBreakLowestID {
		return "lowest_id"
	}
	return "first"
}
