package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reconcile/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When claiming keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key is new", func() {
				owner, seen := d.Claim(ctx, "key-1", "run-1")

				Convey("Then the caller owns it", func() {
					So(seen, ShouldBeFalse)
					So(owner, ShouldEqual, "run-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the key was already claimed", func() {
				d.Claim(ctx, "key-1", "run-1")
				owner, seen := d.Claim(ctx, "key-1", "run-2")

				Convey("Then the first run is returned", func() {
					So(seen, ShouldBeTrue)
					So(owner, ShouldEqual, "run-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And looking a key up", func() {
				d.Claim(ctx, "key-1", "run-1")
				owner, ok := d.Lookup(ctx, "key-1")
				So(ok, ShouldBeTrue)
				So(owner, ShouldEqual, "run-1")
				_, ok = d.Lookup(ctx, "missing")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When releasing keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key exists", func() {
				d.Claim(ctx, "key-1", "run-1")
				d.Release(ctx, "key-1")

				Convey("Then it can be claimed again", func() {
					So(d.Size(), ShouldEqual, 0)
					owner, seen := d.Claim(ctx, "key-1", "run-2")
					So(seen, ShouldBeFalse)
					So(owner, ShouldEqual, "run-2")
				})
			})

			Convey("And the key doesn't exist", func() {
				d.Release(ctx, "nonexistent")
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When using bounded mode with eviction", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.Claim(ctx, fmt.Sprintf("key-%d", i), fmt.Sprintf("run-%d", i))
			}

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				_, ok := d.Lookup(ctx, "key-1")
				So(ok, ShouldBeFalse)
				owner, ok := d.Lookup(ctx, "key-4")
				So(ok, ShouldBeTrue)
				So(owner, ShouldEqual, "run-4")
			})
		})

		Convey("When using unbounded mode", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			const n = 1000
			for i := 0; i < n; i++ {
				_, seen := d.Claim(ctx, fmt.Sprintf("key-%d", i), "run")
				So(seen, ShouldBeFalse)
			}

			Convey("Then every key is kept", func() {
				So(d.Size(), ShouldEqual, int64(n))
				_, seen := d.Claim(ctx, "key-0", "other")
				So(seen, ShouldBeTrue)
				d.Release(ctx, "key-0")
				So(d.Size(), ShouldEqual, int64(n-1))
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given concurrent claims on one key", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(100))
		var winners atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, seen := d.Claim(context.Background(), "shared", fmt.Sprintf("run-%d", i)); !seen {
					winners.Add(1)
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one claim wins", func() {
			So(winners.Load(), ShouldEqual, int32(1))
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
