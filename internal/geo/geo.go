// Package geo provides the distance and containment primitives used to match
// alerts against recipient locations and custom zones. All polygon math
// assumes simple (non-self-intersecting) rings; malformed geometry degrades
// to "no match" rather than surfacing an error.
package geo

import (
	"log/slog"
	"math"
)

const (
	earthRadiusMiles = 3959.0

	// polygonBufferMiles pads the centroid distance check for polygon alerts
	// in WithinRadius. A fixed buffer stands in for exact polygon-circle
	// distance; kept as-is so matching behavior stays comparable.
	polygonBufferMiles = 20.0

	// milesPerDegree converts an alert radius into an approximate degree
	// buffer for polygon intersection tests.
	milesPerDegree = 69.0
)

// Point is a lat/lon coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polygon is an ordered vertex ring. The closing vertex may be omitted.
// Fewer than three vertices is malformed.
type Polygon []Point

// Shape is the geometry of an alert: a point with an affected radius, a
// polygon, both, or neither (region-only alerts have an empty shape).
type Shape struct {
	Point       *Point
	RadiusMiles float64
	Polygon     Polygon
}

// DistanceMiles returns the great-circle (haversine) distance in miles
// between two coordinates.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(a))
}

// Valid reports whether the polygon has enough vertices to form a ring.
func (p Polygon) Valid() bool {
	return len(p) >= 3
}

// Centroid returns the vertex average. Good enough for the coarse
// centroid-distance check; not an area-weighted centroid.
func (p Polygon) Centroid() Point {
	if len(p) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, v := range p {
		lat += v.Lat
		lon += v.Lon
	}
	n := float64(len(p))
	return Point{Lat: lat / n, Lon: lon / n}
}

// PointInPolygon runs a standard ray-casting test. Malformed polygons never
// match and are logged at warn level.
func PointInPolygon(pt Point, poly Polygon) bool {
	if !poly.Valid() {
		slog.Warn("skipping malformed polygon", "vertices", len(poly))
		return false
	}

	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Lat > pt.Lat) != (vj.Lat > pt.Lat) {
			intersectLon := vi.Lon + (pt.Lat-vi.Lat)/(vj.Lat-vi.Lat)*(vj.Lon-vi.Lon)
			if pt.Lon < intersectLon {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// WithinRadius reports whether an alert shape falls within radiusMiles of the
// given center. Point alerts use circle-circle overlap (the alert's own
// radius extends the reach); polygon-only alerts fall back to a centroid
// distance check padded by a fixed buffer. Empty shapes never match.
func WithinRadius(s Shape, centerLat, centerLon, radiusMiles float64) bool {
	if s.Point != nil {
		d := DistanceMiles(centerLat, centerLon, s.Point.Lat, s.Point.Lon)
		return d <= radiusMiles+s.RadiusMiles
	}

	if len(s.Polygon) > 0 {
		if !s.Polygon.Valid() {
			slog.Warn("skipping malformed alert polygon", "vertices", len(s.Polygon))
			return false
		}
		c := s.Polygon.Centroid()
		d := DistanceMiles(centerLat, centerLon, c.Lat, c.Lon)
		return d <= radiusMiles+polygonBufferMiles
	}

	return false
}

// IntersectsPolygon reports whether an alert shape intersects a zone polygon.
// Polygon alerts use a polygon-polygon test; point alerts are tested for
// containment, with the alert radius converted to a degree buffer around the
// point when present.
func IntersectsPolygon(s Shape, zone Polygon) bool {
	if !zone.Valid() {
		slog.Warn("skipping malformed zone polygon", "vertices", len(zone))
		return false
	}

	if len(s.Polygon) > 0 {
		if !s.Polygon.Valid() {
			slog.Warn("skipping malformed alert polygon", "vertices", len(s.Polygon))
			return false
		}
		return polygonsIntersect(s.Polygon, zone)
	}

	if s.Point != nil {
		if s.RadiusMiles > 0 {
			buffer := s.RadiusMiles / milesPerDegree
			return circleIntersectsPolygon(*s.Point, buffer, zone)
		}
		return PointInPolygon(*s.Point, zone)
	}

	return false
}

// polygonsIntersect returns true when any vertex of one ring lies inside the
// other, or when any pair of edges crosses. Sufficient for the simple rings
// this system handles.
func polygonsIntersect(a, b Polygon) bool {
	for _, v := range a {
		if PointInPolygon(v, b) {
			return true
		}
	}
	for _, v := range b {
		if PointInPolygon(v, a) {
			return true
		}
	}
	for i := 0; i < len(a); i++ {
		a1, a2 := a[i], a[(i+1)%len(a)]
		for j := 0; j < len(b); j++ {
			b1, b2 := b[j], b[(j+1)%len(b)]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// circleIntersectsPolygon approximates a circle (in degree units) against a
// polygon: containment of the center, or any edge passing within the buffer.
func circleIntersectsPolygon(center Point, bufferDeg float64, poly Polygon) bool {
	if PointInPolygon(center, poly) {
		return true
	}
	for i := 0; i < len(poly); i++ {
		p1, p2 := poly[i], poly[(i+1)%len(poly)]
		if pointSegmentDistance(center, p1, p2) <= bufferDeg {
			return true
		}
	}
	return false
}

// pointSegmentDistance returns the distance from pt to segment p1-p2 in
// degree space.
func pointSegmentDistance(pt, p1, p2 Point) float64 {
	dx := p2.Lon - p1.Lon
	dy := p2.Lat - p1.Lat

	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(pt.Lon-p1.Lon, pt.Lat-p1.Lat)
	}

	t := ((pt.Lon-p1.Lon)*dx + (pt.Lat-p1.Lat)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	projLon := p1.Lon + t*dx
	projLat := p1.Lat + t*dy
	return math.Hypot(pt.Lon-projLon, pt.Lat-projLat)
}

func segmentsCross(a1, a2, b1, b2 Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return d1 == 0 && onSegment(b1, b2, a1) ||
		d2 == 0 && onSegment(b1, b2, a2) ||
		d3 == 0 && onSegment(a1, a2, b1) ||
		d4 == 0 && onSegment(a1, a2, b2)
}

func cross(o, a, b Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

func onSegment(p1, p2, q Point) bool {
	return math.Min(p1.Lon, p2.Lon) <= q.Lon && q.Lon <= math.Max(p1.Lon, p2.Lon) &&
		math.Min(p1.Lat, p2.Lat) <= q.Lat && q.Lat <= math.Max(p1.Lat, p2.Lat)
}
