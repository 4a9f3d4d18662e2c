package service_test

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/reconcile/internal/app"
	"github.com/okian/reconcile/internal/config"
	"github.com/okian/reconcile/internal/fixtures"
)

func TestIntegration_SQLiteJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sqlite integration test in short mode")
	}

	Convey("Given a seeded sqlite store", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.StoreDriver = config.StoreSQLite
		cfg.SQLitePath = filepath.Join(t.TempDir(), "reconcile.db")
		cfg.PageSize = 40
		cfg.PaceEvery = 0

		store, closeStore, err := service.OpenStore(ctx, cfg)
		So(err, ShouldBeNil)
		defer func() { _ = closeStore() }()

		ds := fixtures.Generate(fixtures.DefaultConfig())
		So(fixtures.Seed(ctx, store, ds, 1), ShouldBeNil)

		opts := append(service.DriverOptions(cfg), service.WithRetryPolicy(fastPolicy()))
		d := service.NewDriver(store, nil, opts...)

		Convey("When every job runs twice", func() {
			first, err := d.Run(ctx, admin, service.JobFixRecordDates, service.Params{})
			So(err, ShouldBeNil)
			So(first.Counts.Deleted, ShouldEqual, ds.Summary.BadDates)
			So(first.Counts.Updated, ShouldEqual, ds.Summary.UnpaddedDates)

			backfill, err := d.Run(ctx, admin, service.JobBackfillRecordOrg, service.Params{})
			So(err, ShouldBeNil)
			So(backfill.Counts.Updated, ShouldEqual, ds.Summary.MissingOrg)

			org := fixtures.OrgID(1)
			orphans, err := d.Run(ctx, admin, service.JobDeleteOrphanedRecords, service.Params{OrganizationID: org})
			So(err, ShouldBeNil)
			So(orphans.Counts.Deleted, ShouldEqual, ds.Summary.OrphansPerOrg[org])

			teams, err := d.Run(ctx, admin, service.JobCleanupUnknownTeam, service.Params{})
			So(err, ShouldBeNil)
			So(teams.Counts.Updated, ShouldEqual, ds.Summary.UnknownTeams)

			Convey("Then the second pass does no corrective work", func() {
				for _, name := range []string{
					service.JobFixRecordDates,
					service.JobBackfillRecordOrg,
					service.JobCleanupUnknownTeam,
				} {
					again, err := d.Run(ctx, admin, name, service.Params{})
					So(err, ShouldBeNil)
					So(again.Success, ShouldBeTrue)
					So(again.Counts.Updated+again.Counts.Deleted, ShouldEqual, 0)
				}
				again, err := d.Run(ctx, admin, service.JobDeleteOrphanedRecords, service.Params{OrganizationID: org})
				So(err, ShouldBeNil)
				So(again.Counts.Deleted, ShouldEqual, 0)
			})
		})
	})
}
