package fixtures

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/domain/classify"
	"github.com/okian/reconcile/internal/domain/model"
	"github.com/okian/reconcile/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := DefaultConfig()
		ds := Generate(cfg)

		Convey("Then the sizes follow the config", func() {
			So(len(ds.Athletes), ShouldEqual, cfg.Organizations*cfg.AthletesPerOrg)
			So(len(ds.Metrics), ShouldEqual, cfg.Organizations*cfg.MetricsPerOrg)
			So(len(ds.Records), ShouldEqual, cfg.Organizations*cfg.AthletesPerOrg*cfg.RecordsPerAthlete)
			So(ds.Summary.OrganizationIDs, ShouldResemble, []string{"org-00", "org-01", "org-02"})
		})

		Convey("Then the same seed yields the same rows", func() {
			again := Generate(cfg)
			So(again.Records, ShouldResemble, ds.Records)
			So(again.Summary, ShouldResemble, ds.Summary)
		})

		Convey("Then ids are unique", func() {
			seen := map[string]bool{}
			for _, r := range ds.Records {
				So(seen[r.ID], ShouldBeFalse)
				seen[r.ID] = true
			}
		})

		Convey("Then the counted defects are present in the rows", func() {
			athletes := map[string]bool{}
			for _, a := range ds.Athletes {
				athletes[a.ID] = true
			}
			var missing, orphans, bad, nested int
			for _, raw := range ds.Records {
				if _, ok := raw.Fields[model.NestedDataKey]; ok {
					nested++
				}
				r := model.Normalize(raw)
				if !r.Has(model.FieldOrganizationID) {
					missing++
				}
				if !athletes[r.String(model.FieldAthleteID)] {
					orphans++
				}
				if _, ok := classify.ParseDate(r.String(model.FieldRecordedDate)); !ok {
					bad++
				}
			}
			So(missing, ShouldEqual, ds.Summary.MissingOrg)
			So(orphans, ShouldEqual, ds.Summary.Orphans)
			So(bad, ShouldEqual, ds.Summary.BadDates)
			So(nested, ShouldEqual, ds.Summary.Nested)
			So(ds.Summary.MissingOrg+ds.Summary.Orphans+ds.Summary.BadDates, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a config without defects", t, func() {
		ds := Generate(Config{Organizations: 2, AthletesPerOrg: 3, MetricsPerOrg: 2, RecordsPerAthlete: 4, Seed: 1})

		Convey("Then every record is clean", func() {
			So(ds.Summary.MissingOrg, ShouldEqual, 0)
			So(ds.Summary.Orphans, ShouldEqual, 0)
			So(ds.Summary.UnknownTeams, ShouldEqual, 0)
			So(ds.Summary.RecordsPerOrg[OrgID(0)], ShouldEqual, 12)
			So(ds.Summary.RecordsPerOrg[OrgID(1)], ShouldEqual, 12)
		})
	})
}

func TestSeed(t *testing.T) {
	Convey("Given a generated dataset", t, func() {
		ctx := context.Background()
		ds := Generate(DefaultConfig())

		Convey("When seeding a memory store", func() {
			store := repository.NewMemoryStore()
			So(Seed(ctx, store, ds, 8), ShouldBeNil)

			Convey("Then every row is stored", func() {
				So(store.Count(model.EntityAthletes), ShouldEqual, len(ds.Athletes))
				So(store.Count(model.EntityMetrics), ShouldEqual, len(ds.Metrics))
				So(store.Count(model.EntityPerformanceRecords), ShouldEqual, len(ds.Records))
			})

			Convey("Then seeding twice conflicts", func() {
				err := Seed(ctx, store, ds, 1)
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})
		})
	})
}
