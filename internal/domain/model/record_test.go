package model_test

import (
	"testing"

	"github.com/okian/reconcile/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("Given a legacy row with fields nested under data", t, func() {
		raw := model.Record{
			ID: "r1",
			Fields: map[string]any{
				"athlete_id": "",
				"data": map[string]any{
					"athlete_id":      "a1",
					"organization_id": "org-1",
					"recorded_date":   "2025-9-5",
				},
			},
		}

		Convey("When it is normalized", func() {
			rec := model.Normalize(raw)

			Convey("Then nested fields are readable directly", func() {
				So(rec.String(model.FieldAthleteID), ShouldEqual, "a1")
				So(rec.String(model.FieldOrganizationID), ShouldEqual, "org-1")
				So(rec.Has(model.FieldRecordedDate), ShouldBeTrue)
			})

			Convey("And the input is not modified", func() {
				So(raw.Fields["athlete_id"], ShouldEqual, "")
				So(raw.Fields["organization_id"], ShouldBeNil)
			})
		})
	})

	Convey("Given a row with both direct and nested values", t, func() {
		rec := model.Normalize(model.Record{
			ID: "r2",
			Fields: map[string]any{
				"organization_id": "direct",
				"data":            map[string]any{"organization_id": "nested"},
			},
		})

		Convey("Then the direct value wins", func() {
			So(rec.String(model.FieldOrganizationID), ShouldEqual, "direct")
		})
	})

	Convey("Given a row whose id only appears in its fields", t, func() {
		rec := model.Normalize(model.Record{Fields: map[string]any{"data": map[string]any{"id": "n1"}}})
		So(rec.ID, ShouldEqual, "n1")
	})

	Convey("Given a row with a malformed data container", t, func() {
		rec := model.Normalize(model.Record{ID: "r3", Fields: map[string]any{"data": "oops"}})
		So(rec.ID, ShouldEqual, "r3")
		So(rec.Has(model.FieldAthleteID), ShouldBeFalse)
	})
}

func TestRecordAccessors(t *testing.T) {
	Convey("Given a record with mixed field types", t, func() {
		rec := model.Record{ID: "x", Fields: map[string]any{
			"value":   12.5,
			"count":   3,
			"text":    " 7.25 ",
			"bad":     "n/a",
			"teams":   []any{"t1", "unknown"},
			"strings": []string{"a"},
			"number":  float64(42),
		}}

		Convey("Then numeric reads convert where possible", func() {
			v, ok := rec.Float("value")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 12.5)
			v, ok = rec.Float("count")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 3.0)
			v, ok = rec.Float("text")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 7.25)
			_, ok = rec.Float("bad")
			So(ok, ShouldBeFalse)
			_, ok = rec.Float("missing")
			So(ok, ShouldBeFalse)
		})

		Convey("Then list reads accept both slice shapes", func() {
			So(rec.Strings("teams"), ShouldResemble, []string{"t1", "unknown"})
			So(rec.Strings("strings"), ShouldResemble, []string{"a"})
			So(rec.Strings("value"), ShouldBeNil)
		})

		Convey("Then numbers render as strings", func() {
			So(rec.String("number"), ShouldEqual, "42")
			So(rec.String("missing"), ShouldEqual, "")
		})
	})
}

func TestEntityViews(t *testing.T) {
	Convey("Given typed entities", t, func() {
		pr := model.PerformanceRecord{ID: "p1", AthleteID: "a1", MetricID: "m1", RecordedDate: "2025-09-05", Value: 9.8}
		a := model.Athlete{ID: "a1", OrganizationID: "org", Teams: []string{"t1"}}
		m := model.Metric{ID: "m1"}

		Convey("Then they round trip through the store shape", func() {
			So(model.PerformanceRecordFrom(pr.Record()), ShouldResemble, pr)
			So(model.AthleteFrom(a.Record()), ShouldResemble, a)
			So(model.MetricFrom(m.Record()), ShouldResemble, m)
		})

		Convey("Then a missing organization is omitted from the row", func() {
			_, ok := pr.Record().Fields[model.FieldOrganizationID]
			So(ok, ShouldBeFalse)
		})
	})
}
