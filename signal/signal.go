// Package signal implements the RSSI propagation model: expected signal
// strength as a function of distance and directional antenna gain, and
// the Gaussian likelihood used to weight particles against observed
// measurements.
package signal

import "math"

// GainTable is a horizontal antenna gain lookup indexed by angle,
// gain_table.horizontal[N].
type GainTable struct {
	Horizontal []float32
}

// Gain returns the table entry nearest phi (radians, any range),
// index = floor(phi/(2*pi) * (N-1)).
func (g GainTable) Gain(phi float64) float32 {
	n := len(g.Horizontal)
	if n == 0 {
		return 0
	}
	twoPi := 2 * math.Pi
	for phi < 0 {
		phi += twoPi
	}
	for phi >= twoPi {
		phi -= twoPi
	}
	idx := int(phi / twoPi * float64(n-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return g.Horizontal[idx]
}

// ModelConfig is the per-source-model signal configuration:
// expected = -10*alpha*log10(d+1e-5) + beta + gain(phi).
type ModelConfig struct {
	Alpha     float32
	Beta      float32
	Noise     float32
	GainTable GainTable
}

const distanceEpsilon = 1e-5

// BaseModel evaluates the log-distance path-loss term alone (no gain),
// used by DistanceBoundForRSSI and by Expected.
func (m ModelConfig) BaseModel(d float64) float64 {
	return -10*float64(m.Alpha)*math.Log10(d+distanceEpsilon) + float64(m.Beta)
}

// Expected returns the noise-free expected RSSI at distance d and
// relative bearing phi (radians).
func (m ModelConfig) Expected(d float64, phi float64) float64 {
	return m.BaseModel(d) + float64(m.GainTable.Gain(phi))
}

// Weight evaluates the (unnormalised-to-peak-1) Gaussian likelihood of
// observing rssi given an expected value:
// phi_{0,noise^2}(expected - rssi) * (noise*sqrt(2*pi)), which makes the
// peak value 1.
func (m ModelConfig) Weight(expected float64, observed int16) float32 {
	if m.Noise <= 0 {
		if expected == float64(observed) {
			return 1
		}
		return 0
	}
	diff := expected - float64(observed)
	variance := float64(m.Noise) * float64(m.Noise)
	density := math.Exp(-(diff * diff) / (2 * variance))
	return float32(density)
}

// DistanceBoundForRSSI iterates d = upperBound - i*step for i in
// [0,1000) and returns the first d where BaseModel(d) > rssi; if none,
// returns 0. Used by the simulator to prune out-of-range sources (the
// model is not analytically invertible).
func DistanceBoundForRSSI(m ModelConfig, rssi int16, upperBound float64) float64 {
	const steps = 1000
	step := upperBound / steps
	for i := 0; i < steps; i++ {
		d := upperBound - float64(i)*step
		if d < 0 {
			d = 0
		}
		if m.BaseModel(d) > float64(rssi) {
			return d
		}
	}
	return 0
}
