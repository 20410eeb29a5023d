// Package tracking implements the tag-specific particle filter: the
// stationary/moving motion model, wall repulsion, RSSI weighting,
// re-initialisation on weight collapse, and median-based estimate
// extraction.
package tracking

import (
	"math"

	"btracked-go/signal"
	"btracked-go/world"
)

// Mode is a particle's discrete motion state.
type Mode int

const (
	Stationary Mode = iota
	Moving
)

// Vec3 is a 3-component vector; z is always 0 in this 2D tracker but is
// carried through to match the wire/estimate shape used elsewhere.
type Vec3 struct {
	X, Y, Z float32
}

// Particle is the filter's state representation.
type Particle struct {
	Position Vec3
	Velocity Vec3
	Pose     float32
	TurnRate float32
	Mode     Mode
}

// Measurement pairs an observed RSSI with the source it was attributed
// to.
type Measurement struct {
	Source world.SignalSource
	RSSI   int16
}

// BeaconPacket is the on-the-wire record a gateway emits.
type BeaconPacket struct {
	TimeMs   uint64 `json:"time_ms"`
	Mac      [6]byte `json:"-"`
	RSSI     int8   `json:"rssi"`
	Sequence uint8  `json:"sequence"`
	Session  uint8  `json:"session"`
}

// MotionModel holds the per-mode propagation noise parameters.
type MotionModel struct {
	KinematicNoise float32
	TurnRateNoise  float32
	PoseNoise      float32
	TransitionProb float32
}

// FilterConfig is the operator-authored per-instance filter
// configuration: population size, speed, turn-rate distribution,
// re-initialisation thresholds, per-mode motion models, and the signal
// models indexed by SignalSource.ModelID.
type FilterConfig struct {
	NumParticles     int
	Speed            float32
	TurnRateMean     float32
	TurnRateStdDev   float32
	ReinitThreshold  float32
	ReinitRatio      float32
	Stationary       MotionModel
	MovingModel      MotionModel
	SignalModels     []signal.ModelConfig
}

func wrapAngle(a float32) float32 {
	const pi = math.Pi
	for a > pi {
		a -= 2 * pi
	}
	for a < -pi {
		a += 2 * pi
	}
	return a
}

func rotZ(v Vec3, theta float32) Vec3 {
	s, c := math.Sincos(float64(theta))
	return Vec3{
		X: v.X*float32(c) - v.Y*float32(s),
		Y: v.X*float32(s) + v.Y*float32(c),
	}
}
