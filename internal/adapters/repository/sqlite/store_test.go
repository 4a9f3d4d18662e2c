package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reconcile/internal/adapters/repository"
	"github.com/okian/reconcile/internal/domain/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "reconcile.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a sqlite store with seeded records", t, func() {
		ctx := context.Background()
		s := openTemp(t)
		for i := 0; i < 12; i++ {
			org := "org-a"
			if i%3 == 0 {
				org = "org-b"
			}
			rec := model.Record{ID: fmt.Sprintf("r%02d", i), Fields: map[string]any{
				model.FieldOrganizationID: org,
				model.FieldRecordedDate:   fmt.Sprintf("2024-02-%02d", 12-i),
			}}
			So(s.Create(ctx, model.EntityPerformanceRecords, rec), ShouldBeNil)
		}

		Convey("Paging by id visits every row once", func() {
			var ids []string
			for offset := 0; ; offset += 5 {
				page, err := s.List(ctx, model.EntityPerformanceRecords, repository.ListQuery{Limit: 5, Offset: offset})
				So(err, ShouldBeNil)
				for _, r := range page {
					ids = append(ids, r.ID)
				}
				if len(page) < 5 {
					break
				}
			}
			So(len(ids), ShouldEqual, 12)
			So(ids[0], ShouldEqual, "r00")
			So(ids[11], ShouldEqual, "r11")
		})

		Convey("Sorting by a document field", func() {
			page, err := s.List(ctx, model.EntityPerformanceRecords, repository.ListQuery{
				SortKey: model.FieldRecordedDate, Limit: 2,
			})
			So(err, ShouldBeNil)
			So(page[0].ID, ShouldEqual, "r11")
			So(page[0].String(model.FieldRecordedDate), ShouldEqual, "2024-02-01")
		})

		Convey("Where and Filter match document fields", func() {
			page, err := s.List(ctx, model.EntityPerformanceRecords, repository.ListQuery{
				Limit: 100, Where: map[string]any{model.FieldOrganizationID: "org-b"},
			})
			So(err, ShouldBeNil)
			So(len(page), ShouldEqual, 4)

			rows, err := s.Filter(ctx, model.EntityPerformanceRecords, map[string]any{model.FieldOrganizationID: "org-a"})
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 8)
		})

		Convey("Update merges into the document", func() {
			So(s.Update(ctx, model.EntityPerformanceRecords, "r01", map[string]any{
				model.FieldRecordedDate: "2024-03-09",
			}), ShouldBeNil)
			rows, err := s.Filter(ctx, model.EntityPerformanceRecords, map[string]any{model.FieldID: "r01"})
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].String(model.FieldRecordedDate), ShouldEqual, "2024-03-09")
			So(rows[0].String(model.FieldOrganizationID), ShouldEqual, "org-a")
		})

		Convey("Update replaces list values", func() {
			So(s.Create(ctx, model.EntityAthletes, model.Record{ID: "a1", Fields: map[string]any{
				model.FieldTeams: []any{"x", "unknown"},
			}}), ShouldBeNil)
			So(s.Update(ctx, model.EntityAthletes, "a1", map[string]any{model.FieldTeams: []string{"x"}}), ShouldBeNil)
			rows, err := s.Filter(ctx, model.EntityAthletes, nil)
			So(err, ShouldBeNil)
			So(rows[0].Strings(model.FieldTeams), ShouldResemble, []string{"x"})
		})

		Convey("Missing rows report ErrNotFound", func() {
			So(errors.Is(s.Delete(ctx, model.EntityPerformanceRecords, "nope"), repository.ErrNotFound), ShouldBeTrue)
			So(errors.Is(s.Update(ctx, model.EntityPerformanceRecords, "nope", map[string]any{"a": 1}), repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Delete removes the row", func() {
			So(s.Delete(ctx, model.EntityPerformanceRecords, "r03"), ShouldBeNil)
			rows, err := s.Filter(ctx, model.EntityPerformanceRecords, nil)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 11)
		})

		Convey("Duplicate ids report ErrConflict", func() {
			err := s.Create(ctx, model.EntityPerformanceRecords, model.Record{ID: "r00"})
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
		})

		Convey("Unsafe field names are rejected", func() {
			_, err := s.List(ctx, model.EntityPerformanceRecords, repository.ListQuery{Limit: 1, SortKey: "x') --"})
			So(errors.Is(err, repository.ErrInvalid), ShouldBeTrue)
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Errors that are not sqlite errors pass through", t, func() {
		err := errors.New("boom")
		So(classify(err), ShouldEqual, err)
		So(repository.IsTransient(classify(err)), ShouldBeFalse)
	})
}
