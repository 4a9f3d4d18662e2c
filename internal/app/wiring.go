package service

import (
	"context"
	"fmt"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/adapters/repository/postgres"
	"github.com/okian/reconcile/internal/adapters/repository/sqlite"
	"github.com/okian/reconcile/internal/config"
	"github.com/okian/reconcile/internal/domain/execute"
	"github.com/okian/reconcile/internal/domain/index"
)

// DriverOptions maps configuration onto driver options.
func DriverOptions(cfg *config.Config) []DriverOption {
	tb, _ := index.ParseTieBreak(cfg.IndexTieBreak)
	return []DriverOption{
		WithPageSize(cfg.PageSize),
		WithSortKey(cfg.SortKey),
		WithRetryPolicy(execute.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay(),
			MaxDelay:    cfg.MaxDelay(),
			Sleep:       execute.Sleep,
		}),
		WithPacing(cfg.PaceEvery, cfg.PaceDelay()),
		WithSampleSize(cfg.SampleErrors),
		WithProgressEvery(cfg.ProgressEvery),
		WithTieBreak(tb),
		WithTeamSentinel(cfg.UnknownTeamSentinel),
		WithJobSlots(cfg.JobSlots),
	}
}

// ServiceOptions maps configuration onto service options.
func ServiceOptions(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
	}
}

// OpenStore opens the store selected by cfg.StoreDriver. The returned close
// function releases it.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, s.Close, nil
	case config.StoreMemory, "":
		return repository.NewMemoryStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %w %q", config.ErrInvalidConfig, config.ErrUnknownStore, cfg.StoreDriver)
	}
}
