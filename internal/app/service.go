// Package service wires the job driver to the asynchronous run machinery
// consumed by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/reconcile/internal/adapters/mq/queue"
	workerpool "github.com/okian/reconcile/internal/adapters/mq/worker"
	"github.com/okian/reconcile/internal/auth"
	"github.com/okian/reconcile/internal/domain/dedupe"
	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/internal/domain/result"
	"github.com/okian/reconcile/pkg/logger"
	"github.com/okian/reconcile/pkg/metrics"
)

// Service runs jobs synchronously or through the background worker pool.
type Service struct {
	mu sync.RWMutex

	// Core components
	driver     *Driver
	deduper    dedupe.Deduper
	jobQueue   eventqueue.Queue
	workerPool *workerpool.Pool
	runs       *Runs

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	maxRuns     int

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of background workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting async runs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxRuns sets how many runs the registry keeps.
func WithMaxRuns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRuns = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service around driver.
func New(driver *Driver, opts ...Option) *Service {
	s := &Service{
		driver:      driver,
		workerCount: runtime.NumCPU(),
		queueSize:   64,
		dedupeSize:  10000,
		maxRuns:     defaultMaxRuns,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.runs = NewRuns(s.maxRuns)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	return s
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	// runs outlive the request that started the service; Stop cancels them
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.jobQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, s)
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "reconcile service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop cancels running jobs and waits for the workers to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping reconcile service...")

	s.cancel()
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "reconcile service stopped")
}

// Jobs lists the registered jobs.
func (s *Service) Jobs() []JobInfo {
	return s.driver.Jobs()
}

// Run executes a job in the caller's goroutine and records it in the registry.
func (s *Service) Run(ctx context.Context, principal auth.Principal, name string, p Params) (result.JobResult, error) {
	if err := s.driver.Check(ctx, principal, name, p); err != nil {
		return s.driver.Run(ctx, principal, name, p)
	}

	req := s.newRequest(principal, name, p)
	s.runs.Add(req)
	return s.execute(ctx, req)
}

// Submit queues a job for a background worker. When idempotencyKey was seen
// before for the same principal, job and params, the run it created is
// returned with duplicate set and nothing is queued. Any other reuse of the
// key fails with ErrIdempotencyConflict.
func (s *Service) Submit(ctx context.Context, principal auth.Principal, name string, p Params, idempotencyKey string) (run Run, duplicate bool, err error) {
	s.mu.RLock()
	started := s.started
	q := s.jobQueue
	s.mu.RUnlock()
	if !started {
		return Run{}, false, ErrNotStarted
	}

	if err := s.driver.Check(ctx, principal, name, p); err != nil {
		metrics.RecordJobRun(name, StatusRejected, 0)
		return Run{}, false, err
	}

	req := s.newRequest(principal, name, p)
	if idempotencyKey != "" {
		if owner, seen := s.deduper.Claim(ctx, idempotencyKey, req.RunID); seen {
			if existing, ok := s.runs.Get(owner); ok {
				if !sameRequest(existing, req) {
					return Run{}, false, fmt.Errorf("%w: key %q belongs to run %s", ErrIdempotencyConflict, idempotencyKey, owner)
				}
				return existing, true, nil
			}
			// the run was evicted from the registry; let this request take the key over
			s.deduper.Release(ctx, idempotencyKey)
			s.deduper.Claim(ctx, idempotencyKey, req.RunID)
		}
	}

	run = s.runs.Add(req)
	if err := q.Enqueue(ctx, req); err != nil {
		s.runs.Remove(req.RunID)
		if idempotencyKey != "" {
			s.deduper.Release(ctx, idempotencyKey)
		}
		if errors.Is(err, eventqueue.ErrFull) || errors.Is(err, eventqueue.ErrClosed) {
			return Run{}, false, fmt.Errorf("%w: %v", ErrQueueFull, err)
		}
		return Run{}, false, err
	}

	s.logger.Info(ctx, "job run queued",
		logger.String("run_id", req.RunID),
		logger.String("job", name),
		logger.String("principal", principal.Subject))
	return run, false, nil
}

// Execute runs a queued request. It implements worker.Runner.
func (s *Service) Execute(ctx context.Context, req model.JobRequest) { //nolint:gocritic // hugeParam: matches worker.Runner
	_, _ = s.execute(ctx, req)
}

func (s *Service) execute(ctx context.Context, req model.JobRequest) (result.JobResult, error) { //nolint:gocritic // hugeParam
	s.runs.Start(req.RunID, time.Now())
	res, err := s.driver.Execute(ctx, req.RunID, req.Job, Params{
		OrganizationID: req.OrganizationID,
		DryRun:         req.DryRun,
	})
	s.runs.Finish(req.RunID, res, err, time.Now())
	return res, err
}

// Authorize checks principal against the driver's authorizer.
func (s *Service) Authorize(ctx context.Context, principal auth.Principal) error {
	return s.driver.Authorize(ctx, principal)
}

// GetRun returns a run by id.
func (s *Service) GetRun(id string) (Run, error) {
	run, ok := s.runs.Get(id)
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// ListRuns returns the registry, newest first.
func (s *Service) ListRuns() []Run {
	return s.runs.List()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"idempotencyKeys": s.deduper.Size(),
		"jobs":            len(s.driver.Jobs()),
		"runs":            s.runs.CountByStatus(),
	}

	if s.started {
		queueLen := s.jobQueue.Len(context.Background())
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

func sameRequest(run Run, req model.JobRequest) bool { //nolint:gocritic // hugeParam: read only
	return run.Job == req.Job &&
		run.OrganizationID == req.OrganizationID &&
		run.DryRun == req.DryRun &&
		run.Principal == req.Principal
}

func (s *Service) newRequest(principal auth.Principal, name string, p Params) model.JobRequest {
	return model.JobRequest{
		RunID:          uuid.NewString(),
		Job:            name,
		OrganizationID: p.OrganizationID,
		DryRun:         p.DryRun,
		Principal:      principal.Subject,
		SubmittedAt:    time.Now(),
	}
}
