package dedupe

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When created with default options", func() {
			d := NewInMemoryDeduper().(*inMemoryDeduper)

			Convey("Then it is bounded by the default size", func() {
				So(d.maxSize, ShouldEqual, defaultMaxSize)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording ids", func() {
			d := NewInMemoryDeduper(WithMaxSize(10))

			Convey("Then a new id is recorded once", func() {
				So(d.SeenAndRecord(ctx, "raw-1"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "raw-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When unrecording ids", func() {
			d := NewInMemoryDeduper(WithMaxSize(10))
			d.SeenAndRecord(ctx, "raw-1")
			d.SeenAndRecord(ctx, "raw-2")

			d.Unrecord(ctx, "raw-1")
			d.Unrecord(ctx, "missing")

			Convey("Then only the existing id is forgotten", func() {
				So(d.Size(), ShouldEqual, 1)
				So(d.SeenAndRecord(ctx, "raw-1"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "raw-2"), ShouldBeTrue)
			})
		})

		Convey("When the bound is reached", func() {
			d := NewInMemoryDeduper(WithMaxSize(3))
			for i := 1; i <= 3; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("raw-%d", i))
			}
			d.SeenAndRecord(ctx, "raw-4")

			Convey("Then the oldest id is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "raw-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "raw-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "raw-1"), ShouldBeFalse)
			})
		})

		Convey("When unbounded", func() {
			d := NewInMemoryDeduper(WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("raw-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "raw-0"), ShouldBeTrue)
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given a deduper shared by many goroutines", t, func() {
		d := NewInMemoryDeduper(WithMaxSize(0))
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)

		Convey("When every goroutine records the same ids", func() {
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("raw-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each id is reported new exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
