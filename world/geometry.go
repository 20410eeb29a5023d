// Package world builds the collision representation of a floor-plan
// (walls, obstacles, zones) and the precomputed distance field used by
// the tracking filter for wall repulsion.
package world

import "math"

// Vec2 is a plain 2-component vector. The package deliberately does not
// pull in a linear-algebra library for this: every operation needed is a
// few lines of arithmetic.
type Vec2 struct {
	X, Y float32
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Len() float32 { return float32(math.Hypot(float64(v.X), float64(v.Y))) }

func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return v.Scale(1 / l)
}

// Rect is an axis-aligned rectangle in map units: {x, y, width, height}.
type Rect struct {
	X, Y, Width, Height float32
}

// WallSegment is a pair of endpoints in map units.
type WallSegment struct {
	A, B Vec2
}

// Polygon is a named zone boundary, tested with GeometryConfig.ZoneAt.
type Polygon struct {
	Points []Vec2
}

// SignalSource is a transmitter placement referenced by a beacon's
// mapped source id.
type SignalSource struct {
	Position  [3]float32
	Direction [3]float32
	ModelID   int
}

// GeometryConfig is the operator-authored floor-plan: boundary, scale,
// walls, obstacles, named zones and signal-source placements.
//
// Version and Zones mirror tracking/src/lib.rs's GeometryConfig; both
// are carried here.
type GeometryConfig struct {
	Version       string
	Boundary      Rect
	Scale         float32
	Walls         []WallSegment
	Obstacles     []Rect
	Zones         map[string]Polygon
	SignalSources map[string]SignalSource
}

// ZoneAt returns the name of a zone whose polygon contains the given
// normalised-space point, or "" if none matches. Zones is a map, so when
// several polygons contain the point, which name is returned is not
// defined.
// Ray-casting point-in-polygon test, grounded on the zone lookup
// original_source/tracking/src/lib.rs performs for Location resolution.
func (g *GeometryConfig) ZoneAt(p Vec2) string {
	for name, poly := range g.Zones {
		if pointInPolygon(p, poly.Points) {
			return name
		}
	}
	return ""
}

func pointInPolygon(p Vec2, pts []Vec2) bool {
	inside := false
	n := len(pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := pts[i], pts[j]
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}
