package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/reconcile/internal/adapters/repository"
	service "github.com/okian/reconcile/internal/app"
	"github.com/okian/reconcile/internal/domain/execute"
	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func fastPolicy() execute.Policy {
	return execute.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Sleep: noSleep}
}

func newDriver(store repository.Store, opts ...service.DriverOption) *service.Driver {
	opts = append([]service.DriverOption{
		service.WithRetryPolicy(fastPolicy()),
		service.WithPageSize(7),
	}, opts...)
	return service.NewDriver(store, nil, opts...)
}

func put(t *testing.T, store repository.Store, entity model.Entity, id string, fields map[string]any) {
	t.Helper()
	if fields == nil {
		fields = map[string]any{}
	}
	fields[model.FieldID] = id
	if err := store.Create(context.Background(), entity, model.Record{ID: id, Fields: fields}); err != nil {
		t.Fatalf("create %s/%s: %v", entity, id, err)
	}
}

func waitForRun(t *testing.T, svc *service.Service, id string) service.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.GetRun(id)
		if err == nil && run.FinishedAt != nil {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return service.Run{}
}
