package track

import (
	"testing"
	"time"

	"github.com/vigilops/livetrack/internal/domain/geo"
	"github.com/vigilops/livetrack/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// internal test: drives the scheduler with a fixed clock instead of timers.

func TestAnimatorAdvance(t *testing.T) {
	Convey("Given an animator over a store with one entity", t, func() {
		base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		now := base
		clock := func() time.Time { return now }

		s := NewStore()
		p := model.LivePosition{EntityID: "e1", Latitude: 10, Longitude: 20, Timestamp: base}
		s.Upsert("e1", model.RoleAgent, "A", p)

		a := NewAnimator(s, WithAnimationDuration(time.Second), withClock(clock))
		a.Animate("e1", geo.Point{Lat: 10, Lon: 20}, geo.Point{Lat: 11, Lon: 21})
		So(a.ActiveCount(), ShouldEqual, 1)

		Convey("When advanced halfway through the duration", func() {
			a.Advance(base.Add(500 * time.Millisecond))

			Convey("Then the displayed coordinate lies between from and to", func() {
				ent, _ := s.Get("e1")
				So(ent.Displayed.Latitude, ShouldBeGreaterThan, 10)
				So(ent.Displayed.Latitude, ShouldBeLessThan, 11)
				So(a.ActiveCount(), ShouldEqual, 1)
			})
		})

		Convey("When advanced past the duration", func() {
			a.Advance(base.Add(2 * time.Second))

			Convey("Then the animation completes at the target and leaves the active set", func() {
				ent, _ := s.Get("e1")
				So(ent.Displayed.Latitude, ShouldEqual, 11)
				So(ent.Displayed.Longitude, ShouldEqual, 21)
				So(a.ActiveCount(), ShouldEqual, 0)
			})
		})

		Convey("When a newer position arrives mid-animation", func() {
			a.Advance(base.Add(300 * time.Millisecond))
			ent, _ := s.Get("e1")
			midway := geo.Point{Lat: ent.Displayed.Latitude, Lon: ent.Displayed.Longitude}

			now = base.Add(300 * time.Millisecond)
			a.Animate("e1", midway, geo.Point{Lat: 12, Lon: 22})

			Convey("Then the previous animation is replaced, not stacked", func() {
				So(a.ActiveCount(), ShouldEqual, 1)
				a.Advance(base.Add(300*time.Millisecond + time.Second))
				got, _ := s.Get("e1")
				So(got.Displayed.Latitude, ShouldEqual, 12)
			})
		})

		Convey("When the store is cleared mid-animation", func() {
			s.Clear()
			a.Advance(base.Add(500 * time.Millisecond))

			Convey("Then the orphaned animation is dropped on the next frame", func() {
				So(a.ActiveCount(), ShouldEqual, 0)
			})
		})

		Convey("When CancelAll is called", func() {
			a.CancelAll()
			So(a.ActiveCount(), ShouldEqual, 0)
		})
	})
}
