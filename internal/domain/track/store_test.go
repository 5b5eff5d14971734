package track_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/vigilops/livetrack/internal/domain/model"
	track "github.com/vigilops/livetrack/internal/domain/track"
	. "github.com/smartystreets/goconvey/convey"
)

func pos(lat, lon float64) model.LivePosition {
	return model.LivePosition{
		EntityID:  "e1",
		Latitude:  lat,
		Longitude: lon,
		Timestamp: time.Now(),
	}
}

func posWithSpeed(lat, lon, speed float64) model.LivePosition {
	p := pos(lat, lon)
	p.Speed = &speed
	return p
}

func posWithBattery(lat, lon float64, battery int) model.LivePosition {
	p := pos(lat, lon)
	p.Battery = &battery
	return p
}

func TestStoreUpsert(t *testing.T) {
	Convey("Given an empty store", t, func() {
		s := track.NewStore()

		Convey("When the first position for an entity arrives", func() {
			prev, created := s.Upsert("e1", model.RoleAgent, "Agent One", pos(33.5, -7.5))

			Convey("Then the entity is created with an empty trail and no animation origin", func() {
				So(created, ShouldBeTrue)
				So(prev, ShouldBeNil)
				ent, ok := s.Get("e1")
				So(ok, ShouldBeTrue)
				So(ent.Trail, ShouldBeEmpty)
				So(ent.Displayed.Latitude, ShouldEqual, 33.5)
			})
		})

		Convey("When a second, moved position arrives", func() {
			s.Upsert("e1", model.RoleAgent, "Agent One", pos(33.5, -7.5))
			prev, created := s.Upsert("e1", model.RoleAgent, "Agent One", pos(33.6, -7.4))

			Convey("Then the previous position is pushed onto the trail", func() {
				So(created, ShouldBeFalse)
				So(prev, ShouldNotBeNil)
				So(prev.Latitude, ShouldEqual, 33.5)
				ent, _ := s.Get("e1")
				So(len(ent.Trail), ShouldEqual, 1)
				So(ent.Trail[0].Latitude, ShouldEqual, 33.5)
				So(ent.Position.Latitude, ShouldEqual, 33.6)
			})
		})

		Convey("When the position repeats exactly", func() {
			s.Upsert("e1", model.RoleAgent, "Agent One", pos(33.5, -7.5))
			prev, _ := s.Upsert("e1", model.RoleAgent, "Agent One", pos(33.5, -7.5))

			Convey("Then nothing is appended to the trail and there is nothing to animate", func() {
				So(prev, ShouldBeNil)
				ent, _ := s.Get("e1")
				So(ent.Trail, ShouldBeEmpty)
			})
		})
	})
}

func TestTrailCap(t *testing.T) {
	Convey("Given an entity receiving many changing positions", t, func() {
		s := track.NewStore()
		for i := 0; i < 1000; i++ {
			s.Upsert("e1", model.RoleAgent, "Agent One", pos(33.0+float64(i)*0.001, -7.5))
		}

		Convey("Then the trail holds exactly the 50 most recent previous positions, oldest first", func() {
			ent, _ := s.Get("e1")
			So(len(ent.Trail), ShouldEqual, 50)
			// positions 0..999 were reported; current is 999, trail is 949..998
			So(ent.Trail[0].Latitude, ShouldAlmostEqual, 33.0+949*0.001, 1e-9)
			So(ent.Trail[49].Latitude, ShouldAlmostEqual, 33.0+998*0.001, 1e-9)
			So(ent.Position.Latitude, ShouldAlmostEqual, 33.0+999*0.001, 1e-9)
		})
	})
}

func TestClear(t *testing.T) {
	Convey("Given a store tracking entities under one event scope", t, func() {
		s := track.NewStore()
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("e%d", i)
			s.Upsert(id, model.RoleAgent, "Agent", pos(33.5, -7.5))
		}
		So(s.Count(), ShouldEqual, 5)

		Convey("When the scope changes and the store is cleared", func() {
			s.Clear()

			Convey("Then no entity leaks into the new scope", func() {
				So(s.Count(), ShouldEqual, 0)
				So(s.Snapshot(), ShouldBeEmpty)
				So(s.Stats().Total, ShouldEqual, 0)
			})
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given a store with a mix of entities", t, func() {
		s := track.NewStore()
		s.Upsert("moving", model.RoleAgent, "A", posWithSpeed(33.5, -7.5, 2.0))
		s.Upsert("stopped", model.RoleAgent, "B", posWithSpeed(33.6, -7.5, 0.0))
		s.Upsert("low-batt", model.RoleAgent, "C", posWithBattery(33.7, -7.5, 15))

		Convey("Then stats reflect the live contents", func() {
			st := s.Stats()
			So(st.Total, ShouldEqual, 3)
			So(st.Moving, ShouldEqual, 1)
			So(st.Stopped, ShouldEqual, 2)
			So(st.LowBattery, ShouldEqual, 1)
		})

		Convey("When an entity's speed sits exactly on the threshold", func() {
			s.Upsert("boundary", model.RoleAgent, "D", posWithSpeed(33.8, -7.5, 0.5))

			Convey("Then it counts as stopped", func() {
				ent, _ := s.Get("boundary")
				So(ent.Moving, ShouldBeFalse)
				So(s.Stats().Moving, ShouldEqual, 1)
			})
		})

		Convey("When speed is just above the threshold", func() {
			s.Upsert("boundary", model.RoleAgent, "D", posWithSpeed(33.8, -7.5, 0.51))

			ent, _ := s.Get("boundary")
			So(ent.Moving, ShouldBeTrue)
		})

		Convey("When battery sits exactly at the low threshold", func() {
			s.Upsert("batt", model.RoleAgent, "E", posWithBattery(33.9, -7.5, 20))

			Convey("Then it does not count as low", func() {
				So(s.Stats().LowBattery, ShouldEqual, 1)
			})
		})
	})
}

func TestSweepStale(t *testing.T) {
	Convey("Given a store with stale eviction enabled", t, func() {
		s := track.NewStore(track.WithStaleAfter(time.Minute))

		old := pos(33.5, -7.5)
		old.Timestamp = time.Now().Add(-2 * time.Minute)
		s.Upsert("stale", model.RoleAgent, "A", old)
		s.Upsert("fresh", model.RoleAgent, "B", pos(33.6, -7.5))

		Convey("When a sweep runs", func() {
			n := s.SweepStale(time.Now())

			Convey("Then only the silent entity is evicted", func() {
				So(n, ShouldEqual, 1)
				So(s.Count(), ShouldEqual, 1)
				_, ok := s.Get("stale")
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a store with stale eviction disabled", t, func() {
		s := track.NewStore()
		old := pos(33.5, -7.5)
		old.Timestamp = time.Now().Add(-24 * time.Hour)
		s.Upsert("silent", model.RoleAgent, "A", old)

		Convey("Then entities persist at their last position indefinitely", func() {
			So(s.SweepStale(time.Now()), ShouldEqual, 0)
			So(s.Count(), ShouldEqual, 1)
		})
	})
}

func TestSubscribe(t *testing.T) {
	Convey("Given a store with a subscriber", t, func() {
		s := track.NewStore()
		ch, cancel := s.Subscribe()
		defer cancel()

		Convey("When an entity is created and updated and the store cleared", func() {
			s.Upsert("e1", model.RoleAgent, "A", pos(33.5, -7.5))
			s.Upsert("e1", model.RoleAgent, "A", pos(33.6, -7.5))
			s.Clear()

			Convey("Then the subscriber sees each change in order", func() {
				So((<-ch).Kind, ShouldEqual, track.ChangeCreated)
				So((<-ch).Kind, ShouldEqual, track.ChangeUpdated)
				So((<-ch).Kind, ShouldEqual, track.ChangeCleared)
			})
		})

		Convey("When the subscription is canceled", func() {
			cancel()

			Convey("Then the channel is closed", func() {
				_, open := <-ch
				So(open, ShouldBeFalse)
			})
		})
	})
}

func TestSnapshotIsolation(t *testing.T) {
	Convey("Given a snapshot taken from the store", t, func() {
		s := track.NewStore()
		s.Upsert("e1", model.RoleAgent, "A", pos(33.5, -7.5))
		s.Upsert("e1", model.RoleAgent, "A", pos(33.6, -7.5))

		snap := s.Snapshot()
		So(len(snap), ShouldEqual, 1)

		Convey("When the snapshot's trail is mutated", func() {
			snap[0].Trail[0].Latitude = 99

			Convey("Then the store is unaffected", func() {
				ent, _ := s.Get("e1")
				So(ent.Trail[0].Latitude, ShouldEqual, 33.5)
			})
		})
	})
}
