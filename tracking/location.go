package tracking

import (
	"math"
	"sort"

	"btracked-go/world"
)

// Point is a 2D estimate with a confidence radius, restored from
// original_source/tracking/src/lib.rs.
type Point struct {
	X, Y   float32
	StdDev float32
}

// Location pairs a Point with the zone it falls in, if any.
type Location struct {
	Point Point
	Zone  string
}

// LocationOf derives a Location from a filter runner's current
// population: the median estimate as the point, the median absolute
// deviation of the population from that estimate as StdDev, and a
// zone lookup against the map's named polygons.
func LocationOf(r *FilterRunner, geometry *world.GeometryConfig) Location {
	estimate := r.GetEstimate()
	particles := r.filter.GetParticles()

	devs := make([]float64, len(particles))
	for i, p := range particles {
		dx := float64(p.Position.X - estimate.Position.X)
		dy := float64(p.Position.Y - estimate.Position.Y)
		devs[i] = math.Hypot(dx, dy)
	}
	sort.Float64s(devs)
	var mad float64
	if len(devs) > 0 {
		mad = devs[len(devs)/2]
	}

	point := Point{X: estimate.Position.X, Y: estimate.Position.Y, StdDev: float32(mad)}
	zone := ""
	if geometry != nil {
		zone = geometry.ZoneAt(world.Vec2{X: point.X, Y: point.Y})
	}
	return Location{Point: point, Zone: zone}
}
