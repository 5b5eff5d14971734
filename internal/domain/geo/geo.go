// Package geo provides the pure geometry used by the tracking engine:
// great-circle distance, co-location marker offsets, and the easing math
// behind marker animation. All functions are side-effect free and never
// panic; invalid coordinates degrade to an explicit "unknown" result
// instead of propagating NaN into comparisons.
package geo

import (
	"math"
	"time"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// DefaultColocationTolerance is the raw coordinate delta, in degrees, under
// which two markers are considered visually co-located. This is a pixel-space
// aid, not a geodesic threshold, and is intentionally approximate.
const DefaultColocationTolerance = 1e-5

// colocationRadiusDeg is the spread circle radius for co-located markers,
// roughly five meters expressed in degrees of latitude.
const colocationRadiusDeg = 4.5e-5

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether both coordinates are finite.
func (p Point) Valid() bool {
	return isFinite(p.Lat) && isFinite(p.Lon)
}

// DistanceMeters returns the great-circle distance between two coordinate
// pairs. ok is false when any input is non-finite; the returned distance is
// zero in that case and must not be compared.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) (float64, bool) {
	if !isFinite(lat1) || !isFinite(lon1) || !isFinite(lat2) || !isFinite(lon2) {
		return 0, false
	}
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c, true
}

// DistanceBetween is DistanceMeters over two Points.
func DistanceBetween(a, b Point) (float64, bool) {
	return DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

// DistanceKilometers is DistanceMeters scaled to kilometers.
func DistanceKilometers(lat1, lon1, lat2, lon2 float64) (float64, bool) {
	d, ok := DistanceMeters(lat1, lon1, lat2, lon2)
	return d / 1000, ok
}

// WithinRadius reports whether the two coordinates lie within radius meters
// of each other. ok is false when the distance is unknown; callers must treat
// that as "membership unknown", never as outside.
func WithinRadius(lat1, lon1, lat2, lon2, radius float64) (inside, ok bool) {
	d, ok := DistanceMeters(lat1, lon1, lat2, lon2)
	if !ok {
		return false, false
	}
	return d <= radius, true
}

// Band buckets a distance for proximity statistics.
type Band string

// Proximity bands. BandUnknown marks entities whose distance to the
// reference point could not be computed.
const (
	BandWithin5km   Band = "within_5km"
	BandWithin50km  Band = "within_50km"
	BandWithin100km Band = "within_100km"
	BandBeyond      Band = "beyond_100km"
	BandUnknown     Band = "unknown"
)

// BandFor returns the proximity band for a distance in meters.
func BandFor(meters float64, ok bool) Band {
	switch {
	case !ok:
		return BandUnknown
	case meters <= 5_000:
		return BandWithin5km
	case meters <= 50_000:
		return BandWithin50km
	case meters <= 100_000:
		return BandWithin100km
	default:
		return BandBeyond
	}
}

// Offset is a lat/lon delta applied to a rendered marker.
type Offset struct {
	Lat float64
	Lon float64
}

// ColocationOffsets computes a rendering offset for every point so that
// markers reported at near-identical coordinates stay individually visible.
// Points within tolerance degrees of each other on both axes form a
// collision set; sets of size N>1 are spread evenly around a small circle,
// each member at angle 2π/N times its index within the set. Index order is
// stable only within a single call, which is acceptable for a rendering aid.
// Points with no collision get a zero offset.
func ColocationOffsets(points []Point, tolerance float64) []Offset {
	if tolerance <= 0 {
		tolerance = DefaultColocationTolerance
	}
	offsets := make([]Offset, len(points))
	for i, p := range points {
		if !p.Valid() {
			continue
		}
		group := 0  // size of the collision set
		member := 0 // index of point i within the set
		for j, q := range points {
			if !q.Valid() {
				continue
			}
			if math.Abs(p.Lat-q.Lat) <= tolerance && math.Abs(p.Lon-q.Lon) <= tolerance {
				if j < i {
					member++
				}
				group++
			}
		}
		if group <= 1 {
			continue
		}
		angle := 2 * math.Pi * float64(member) / float64(group)
		offsets[i] = Offset{
			Lat: colocationRadiusDeg * math.Cos(angle),
			Lon: colocationRadiusDeg * math.Sin(angle),
		}
	}
	return offsets
}

// EaseInOutCubic maps linear progress in [0,1] onto a cubic ease-in-out
// curve. Inputs outside the unit interval are clamped.
func EaseInOutCubic(progress float64) float64 {
	p := clamp01(progress)
	if p < 0.5 {
		return 4 * p * p * p
	}
	q := -2*p + 2
	return 1 - q*q*q/2
}

// Interpolate returns the eased position between from and to after elapsed
// time of a duration-long animation. Elapsed at or beyond duration returns
// to exactly; non-positive elapsed returns from.
func Interpolate(from, to Point, elapsed, duration time.Duration) Point {
	if duration <= 0 {
		return to
	}
	eased := EaseInOutCubic(float64(elapsed) / float64(duration))
	return Point{
		Lat: from.Lat + (to.Lat-from.Lat)*eased,
		Lon: from.Lon + (to.Lon-from.Lon)*eased,
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
