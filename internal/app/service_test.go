package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reconcile/internal/adapters/repository"
	service "github.com/okian/reconcile/internal/app"
	"github.com/okian/reconcile/internal/auth"
	"github.com/okian/reconcile/internal/domain/model"
)

func newService(store repository.Store, opts ...service.Option) *service.Service {
	opts = append([]service.Option{service.WithWorkerCount(2), service.WithQueueSize(8)}, opts...)
	return service.New(newDriver(store), opts...)
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newService(repository.NewMemoryStore())
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["jobs"], ShouldEqual, 6)
				So(stats["queueLength"], ShouldEqual, 0)
			})

			Convey("And starting twice is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And stopping marks it stopped", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a service with one malformed record", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		put(t, store, model.EntityPerformanceRecords, "r1", map[string]any{model.FieldRecordedDate: "null"})
		svc := newService(store)

		Convey("When running a job synchronously", func() {
			res, err := svc.Run(ctx, admin, service.JobFixRecordDates, service.Params{})
			So(err, ShouldBeNil)

			Convey("Then the run is recorded", func() {
				So(res.RunID, ShouldNotBeEmpty)
				So(res.Counts.Deleted, ShouldEqual, 1)
				run, err := svc.GetRun(res.RunID)
				So(err, ShouldBeNil)
				So(run.Status, ShouldEqual, service.StatusSucceeded)
				So(run.Principal, ShouldEqual, admin.Subject)
				So(run.Result.Counts.Deleted, ShouldEqual, 1)
				So(len(svc.ListRuns()), ShouldEqual, 1)
			})
		})

		Convey("When the record cannot be deleted", func() {
			store.SetFault(func(op repository.Op, _ model.Entity, _ string) error {
				if op == repository.OpDelete {
					return errors.New("permission denied")
				}
				return nil
			})
			res, err := svc.Run(ctx, admin, service.JobFixRecordDates, service.Params{})

			Convey("Then the run completes with errors and still succeeds", func() {
				So(err, ShouldBeNil)
				So(res.Success, ShouldBeTrue)
				So(res.Counts.Errors, ShouldEqual, 1)
				So(res.SampledErrors[0].ID, ShouldEqual, "r1")
				run, err := svc.GetRun(res.RunID)
				So(err, ShouldBeNil)
				So(run.Status, ShouldEqual, service.StatusCompletedWithErrors)
				So(run.Error, ShouldBeEmpty)
			})
		})

		Convey("When the request is rejected", func() {
			_, err := svc.Run(ctx, admin, service.JobDeleteOrgRecords, service.Params{})
			So(errors.Is(err, service.ErrMissingOrganization), ShouldBeTrue)
			So(len(svc.ListRuns()), ShouldEqual, 0)
		})

		Convey("When looking up an unknown run", func() {
			_, err := svc.GetRun("missing")
			So(errors.Is(err, service.ErrRunNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		put(t, store, model.EntityPerformanceRecords, "r1", map[string]any{model.FieldRecordedDate: "2025-3-4"})
		svc := newService(store)
		defer svc.Stop()

		Convey("Submitting before start fails", func() {
			_, _, err := svc.Submit(ctx, admin, service.JobFixRecordDates, service.Params{}, "")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started", func() {
			So(svc.Start(ctx), ShouldBeNil)

			Convey("A submitted run completes in the background", func() {
				run, dup, err := svc.Submit(ctx, admin, service.JobFixRecordDates, service.Params{}, "")
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(run.ID, ShouldNotBeEmpty)

				done := waitForRun(t, svc, run.ID)
				So(done.Status, ShouldEqual, service.StatusSucceeded)
				So(done.Result.Counts.Updated, ShouldEqual, 1)
				So(done.StartedAt, ShouldNotBeNil)
			})

			Convey("A repeated idempotency key returns the first run", func() {
				first, dup, err := svc.Submit(ctx, admin, service.JobFixRecordDates, service.Params{DryRun: true}, "key-1")
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)

				second, dup, err := svc.Submit(ctx, admin, service.JobFixRecordDates, service.Params{DryRun: true}, "key-1")
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
				So(second.ID, ShouldEqual, first.ID)
				So(svc.GetStats()["idempotencyKeys"], ShouldEqual, int64(1))

				waitForRun(t, svc, first.ID)
			})

			Convey("Reusing an idempotency key for another request conflicts", func() {
				first, _, err := svc.Submit(ctx, admin, service.JobFixRecordDates, service.Params{DryRun: true}, "key-3")
				So(err, ShouldBeNil)

				_, _, err = svc.Submit(ctx, admin, service.JobCleanupUnknownTeam, service.Params{DryRun: true}, "key-3")
				So(errors.Is(err, service.ErrIdempotencyConflict), ShouldBeTrue)

				_, _, err = svc.Submit(ctx, admin, service.JobFixRecordDates, service.Params{}, "key-3")
				So(errors.Is(err, service.ErrIdempotencyConflict), ShouldBeTrue)

				other := auth.Principal{Subject: "someone-else", Token: admin.Token}
				_, _, err = svc.Submit(ctx, other, service.JobFixRecordDates, service.Params{DryRun: true}, "key-3")
				So(errors.Is(err, service.ErrIdempotencyConflict), ShouldBeTrue)

				So(len(svc.ListRuns()), ShouldEqual, 1)
				waitForRun(t, svc, first.ID)
			})

			Convey("An invalid request is rejected without queueing", func() {
				_, _, err := svc.Submit(ctx, admin, service.JobDeleteOrphanedRecords, service.Params{}, "key-2")
				So(errors.Is(err, service.ErrMissingOrganization), ShouldBeTrue)
				So(len(svc.ListRuns()), ShouldEqual, 0)
			})
		})
	})
}
