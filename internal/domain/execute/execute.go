// Package execute applies classifier verdicts to the store, one record at a time.
package execute

import (
	"context"
	"errors"
	"time"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/domain/classify"
	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/pkg/logger"
	"github.com/okian/reconcile/pkg/metrics"
)

// Kind is the result of applying one verdict.
type Kind int

// Outcome kinds.
const (
	Skipped Kind = iota
	Updated
	Deleted
	Failed
)

func (k Kind) String() string {
	switch k {
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// Outcome describes what happened to one record.
type Outcome struct {
	Kind     Kind
	Err      error
	Attempts int
}

// Mutator is the write side of repository.Store.
type Mutator interface {
	Update(ctx context.Context, entity model.Entity, id string, fields map[string]any) error
	Delete(ctx context.Context, entity model.Entity, id string) error
}

// Executor applies verdicts. It holds per-run pacing state and must not be
// shared between runs.
type Executor struct {
	store     Mutator
	policy    Policy
	paceEvery int
	paceDelay time.Duration
	dryRun    bool
	job       string
	processed int
	removed   int
	log       logger.Logger
}

// New creates an Executor writing to store.
func New(store Mutator, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		policy: DefaultPolicy(),
		job:    "adhoc",
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.Sleep == nil {
		e.policy.Sleep = Sleep
	}
	e.log = logger.Get().Named("execute").With(logger.String("job", e.job))
	return e
}

// Processed returns how many records Apply has seen.
func (e *Executor) Processed() int { return e.processed }

// Removed returns how many records are gone from the store after Apply,
// including rows another writer deleted first.
func (e *Executor) Removed() int { return e.removed }

// Apply carries out v for rec. Store failures are reported in the outcome,
// never returned, so the caller can move on to the next record.
func (e *Executor) Apply(ctx context.Context, entity model.Entity, rec model.Record, v classify.Verdict) Outcome {
	out := e.apply(ctx, entity, rec, v)
	metrics.RecordMutation(e.job, out.Kind.String())
	if out.Kind == Failed {
		e.log.Warn(ctx, "mutation failed",
			logger.String("entity", string(entity)),
			logger.String("id", rec.ID),
			logger.String("verdict", v.Kind.String()),
			logger.Int("attempts", out.Attempts),
			logger.Error(out.Err))
	}

	e.processed++
	if e.paceEvery > 0 && e.processed%e.paceEvery == 0 {
		// cancellation is picked up by the caller before the next record
		_ = e.policy.Sleep(ctx, e.paceDelay)
	}
	return out
}

func (e *Executor) apply(ctx context.Context, entity model.Entity, rec model.Record, v classify.Verdict) Outcome {
	switch v.Kind {
	case classify.Correct:
		if e.dryRun {
			return Outcome{Kind: Updated}
		}
		fields := map[string]any{v.Field: v.Target}
		start := time.Now()
		attempts, err := e.policy.Do(ctx, "update", func(ctx context.Context) error {
			return e.store.Update(ctx, entity, rec.ID, fields)
		})
		metrics.RecordMutationLatency("update", time.Since(start).Seconds())
		if err != nil {
			return Outcome{Kind: Failed, Err: err, Attempts: attempts}
		}
		return Outcome{Kind: Updated, Attempts: attempts}

	case classify.Delete:
		if e.dryRun {
			return Outcome{Kind: Deleted}
		}
		start := time.Now()
		attempts, err := e.policy.Do(ctx, "delete", func(ctx context.Context) error {
			return e.store.Delete(ctx, entity, rec.ID)
		})
		metrics.RecordMutationLatency("delete", time.Since(start).Seconds())
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return Outcome{Kind: Failed, Err: err, Attempts: attempts}
		}
		e.removed++
		return Outcome{Kind: Deleted, Attempts: attempts}

	default:
		return Outcome{Kind: Skipped}
	}
}
