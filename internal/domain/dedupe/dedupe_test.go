package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/detflow/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWindow(t *testing.T) {
	Convey("Given a message id window", t, func() {
		ctx := context.Background()

		Convey("When a new id is recorded", func() {
			d := dedupe.NewWindow()
			seen := d.SeenAndRecord(ctx, "wamid-1")

			Convey("Then it is reported as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a redelivery is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "wamid-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the window is full", func() {
			d := dedupe.NewWindow(dedupe.WithMaxSize(2))
			d.SeenAndRecord(ctx, "a")
			d.SeenAndRecord(ctx, "b")
			d.SeenAndRecord(ctx, "c")

			Convey("Then the oldest id is evicted", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When an id is unrecorded", func() {
			d := dedupe.NewWindow()
			d.SeenAndRecord(ctx, "retry-me")
			d.Unrecord(ctx, "retry-me")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be accepted again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "retry-me"), ShouldBeFalse)
			})
		})

		Convey("When ids outlive the ttl", func() {
			now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
			d := dedupe.NewWindow(
				dedupe.WithTTL(time.Minute),
				dedupe.WithClock(func() time.Time { return now }),
			)
			d.SeenAndRecord(ctx, "old")
			now = now.Add(2 * time.Minute)

			Convey("Then they are forgotten", func() {
				So(d.SeenAndRecord(ctx, "old"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When used without a bound", func() {
			d := dedupe.NewWindow(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("m-%d", i))
			}
			So(d.Size(), ShouldEqual, 1000)
		})
	})
}

func TestWindowConcurrency(t *testing.T) {
	Convey("Given many goroutines delivering the same ids", t, func() {
		d := dedupe.NewWindow(dedupe.WithMaxSize(10_000))
		ctx := context.Background()

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id is accepted exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
