package geo_test

import (
	"math"
	"testing"
	"time"

	geo "github.com/vigilops/livetrack/internal/domain/geo"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDistanceMeters(t *testing.T) {
	Convey("Given the haversine distance function", t, func() {
		Convey("When measuring Casablanca to Rabat", func() {
			d, ok := geo.DistanceMeters(33.5731, -7.5898, 33.9716, -6.8498)

			Convey("Then the distance is roughly 87 km", func() {
				So(ok, ShouldBeTrue)
				So(d, ShouldBeGreaterThan, 80_000)
				So(d, ShouldBeLessThan, 90_000)
			})
		})

		Convey("When measuring a point against itself", func() {
			d, ok := geo.DistanceMeters(33.5731, -7.5898, 33.5731, -7.5898)

			Convey("Then the distance is zero", func() {
				So(ok, ShouldBeTrue)
				So(d, ShouldEqual, 0)
			})
		})

		Convey("When a coordinate is NaN", func() {
			d, ok := geo.DistanceMeters(math.NaN(), -7.5898, 33.9716, -6.8498)

			Convey("Then the result is unknown, not NaN", func() {
				So(ok, ShouldBeFalse)
				So(math.IsNaN(d), ShouldBeFalse)
			})
		})

		Convey("When a coordinate is infinite", func() {
			_, ok := geo.DistanceMeters(33.5731, math.Inf(1), 33.9716, -6.8498)

			Convey("Then the result is unknown", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When measuring in kilometers", func() {
			km, ok := geo.DistanceKilometers(33.5731, -7.5898, 33.9716, -6.8498)

			Convey("Then the value is the meter distance scaled down", func() {
				So(ok, ShouldBeTrue)
				So(km, ShouldBeGreaterThan, 80)
				So(km, ShouldBeLessThan, 90)
			})
		})
	})
}

func TestWithinRadius(t *testing.T) {
	Convey("Given a geofence check", t, func() {
		Convey("When the point is inside the radius", func() {
			inside, ok := geo.WithinRadius(33.5731, -7.5898, 33.5732, -7.5899, 100)

			So(ok, ShouldBeTrue)
			So(inside, ShouldBeTrue)
		})

		Convey("When the point is outside the radius", func() {
			inside, ok := geo.WithinRadius(33.5731, -7.5898, 33.9716, -6.8498, 100)

			So(ok, ShouldBeTrue)
			So(inside, ShouldBeFalse)
		})

		Convey("When a coordinate is invalid", func() {
			inside, ok := geo.WithinRadius(math.NaN(), -7.5898, 33.9716, -6.8498, 100)

			Convey("Then membership is unknown rather than inside", func() {
				So(ok, ShouldBeFalse)
				So(inside, ShouldBeFalse)
			})
		})
	})
}

func TestBandFor(t *testing.T) {
	Convey("Given proximity banding", t, func() {
		So(geo.BandFor(1_000, true), ShouldEqual, geo.BandWithin5km)
		So(geo.BandFor(5_000, true), ShouldEqual, geo.BandWithin5km)
		So(geo.BandFor(30_000, true), ShouldEqual, geo.BandWithin50km)
		So(geo.BandFor(80_000, true), ShouldEqual, geo.BandWithin100km)
		So(geo.BandFor(500_000, true), ShouldEqual, geo.BandBeyond)
		So(geo.BandFor(0, false), ShouldEqual, geo.BandUnknown)
	})
}

func TestColocationOffsets(t *testing.T) {
	Convey("Given co-location offset computation", t, func() {
		Convey("When three entities report the exact same coordinate", func() {
			same := geo.Point{Lat: 33.5731, Lon: -7.5898}
			offsets := geo.ColocationOffsets([]geo.Point{same, same, same}, 0)

			Convey("Then all three get distinct non-zero offsets", func() {
				So(len(offsets), ShouldEqual, 3)
				seen := map[[2]float64]bool{}
				for _, o := range offsets {
					key := [2]float64{o.Lat, o.Lon}
					So(seen[key], ShouldBeFalse)
					seen[key] = true
				}
			})

			Convey("And each offset stays within the spread radius", func() {
				for _, o := range offsets {
					So(math.Hypot(o.Lat, o.Lon), ShouldBeLessThanOrEqualTo, 5e-5)
				}
			})
		})

		Convey("When points are far apart", func() {
			offsets := geo.ColocationOffsets([]geo.Point{
				{Lat: 33.5731, Lon: -7.5898},
				{Lat: 33.9716, Lon: -6.8498},
			}, 0)

			Convey("Then no offsets are applied", func() {
				So(offsets[0], ShouldResemble, geo.Offset{})
				So(offsets[1], ShouldResemble, geo.Offset{})
			})
		})

		Convey("When a point has invalid coordinates", func() {
			offsets := geo.ColocationOffsets([]geo.Point{
				{Lat: math.NaN(), Lon: -7.5898},
				{Lat: 33.5731, Lon: -7.5898},
			}, 0)

			Convey("Then it is skipped without disturbing the others", func() {
				So(offsets[0], ShouldResemble, geo.Offset{})
				So(offsets[1], ShouldResemble, geo.Offset{})
			})
		})
	})
}

func TestInterpolate(t *testing.T) {
	Convey("Given eased interpolation between two points", t, func() {
		from := geo.Point{Lat: 10, Lon: 20}
		to := geo.Point{Lat: 11, Lon: 22}
		duration := time.Second

		Convey("When no time has elapsed", func() {
			p := geo.Interpolate(from, to, 0, duration)
			So(p, ShouldResemble, from)
		})

		Convey("When the full duration has elapsed", func() {
			p := geo.Interpolate(from, to, duration, duration)
			So(p, ShouldResemble, to)
		})

		Convey("When more than the duration has elapsed", func() {
			p := geo.Interpolate(from, to, 3*duration, duration)
			So(p, ShouldResemble, to)
		})

		Convey("When halfway through", func() {
			p := geo.Interpolate(from, to, duration/2, duration)

			Convey("Then each axis lies strictly between from and to", func() {
				So(p.Lat, ShouldBeGreaterThan, from.Lat)
				So(p.Lat, ShouldBeLessThan, to.Lat)
				So(p.Lon, ShouldBeGreaterThan, from.Lon)
				So(p.Lon, ShouldBeLessThan, to.Lon)
			})
		})

		Convey("When progress increases", func() {
			prev := from
			for ms := 100; ms <= 1000; ms += 100 {
				p := geo.Interpolate(from, to, time.Duration(ms)*time.Millisecond, duration)

				// monotonic progress per axis
				So(p.Lat, ShouldBeGreaterThanOrEqualTo, prev.Lat)
				So(p.Lon, ShouldBeGreaterThanOrEqualTo, prev.Lon)
				prev = p
			}
			So(prev, ShouldResemble, to)
		})
	})
}

func TestEaseInOutCubic(t *testing.T) {
	Convey("Given the cubic ease curve", t, func() {
		So(geo.EaseInOutCubic(0), ShouldEqual, 0)
		So(geo.EaseInOutCubic(1), ShouldEqual, 1)
		So(geo.EaseInOutCubic(0.5), ShouldAlmostEqual, 0.5, 1e-9)
		So(geo.EaseInOutCubic(-3), ShouldEqual, 0)
		So(geo.EaseInOutCubic(42), ShouldEqual, 1)

		Convey("And it accelerates early and decelerates late", func() {
			So(geo.EaseInOutCubic(0.25), ShouldBeLessThan, 0.25)
			So(geo.EaseInOutCubic(0.75), ShouldBeGreaterThan, 0.75)
		})
	})
}
