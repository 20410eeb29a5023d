package tracking

import (
	"math/rand"
	"testing"

	"btracked-go/signal"
	"btracked-go/world"
)

func testFilterConfig() FilterConfig {
	return FilterConfig{
		NumParticles:    64,
		Speed:           1.0,
		TurnRateStdDev:  0.1,
		ReinitThreshold: 0.0, // never trigger reinit unless explicitly wanted
		ReinitRatio:     0.5,
		Stationary:      MotionModel{KinematicNoise: 0.01, TurnRateNoise: 0.01, PoseNoise: 0.01, TransitionProb: 0.1},
		MovingModel:     MotionModel{KinematicNoise: 0.01, TurnRateNoise: 0.01, PoseNoise: 0.01, TransitionProb: 0.1},
		SignalModels: []signal.ModelConfig{
			{Alpha: 2.0, Beta: -40, Noise: 5},
		},
	}
}

func TestFilterRunnerGetSnapshotSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	field := &world.DistanceField{}
	r := NewFilterRunner(testFilterConfig(), field, 10, 10, rng)

	if got := len(r.GetSnapshot(1000)); got != 64 {
		t.Fatalf("snapshot(1000) on 64-particle population: got %d, want 64", got)
	}
	if got := len(r.GetSnapshot(10)); got != 10 {
		t.Fatalf("snapshot(10): got %d, want 10", got)
	}
}

func TestFilterRunnerStepPreservesParticleCount(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	field := &world.DistanceField{}
	cfg := testFilterConfig()
	r := NewFilterRunner(cfg, field, 10, 10, rng)

	for i := 0; i < 5; i++ {
		r.Step(nil, 0.1)
		if got := len(r.GetSnapshot(1 << 20)); got != cfg.NumParticles {
			t.Fatalf("after step %d: population = %d, want %d", i, got, cfg.NumParticles)
		}
	}
}

func TestFilterRunnerOutOfBoundsParticlesVanishAfterResample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	field := &world.DistanceField{}
	cfg := testFilterConfig()
	cfg.NumParticles = 8
	r := NewFilterRunner(cfg, field, 10, 10, rng)

	// Half the population starts squarely in bounds next to the signal
	// source (high, non-zero weight); the other half starts far out of
	// bounds (weight forced to 0 by FilterRunner.weight's bounds check).
	// After one step's resample, the out-of-bounds half must be gone with
	// probability 1 since the in-bounds half carries all the weight mass.
	particles := r.GetSnapshot(1 << 20)
	for i := range particles {
		if i%2 == 0 {
			particles[i].Position = Vec3{X: 5, Y: 5}
		} else {
			particles[i].Position = Vec3{X: 1000, Y: 1000}
		}
	}
	r.filter.MergeParticles(particles, 1.0)

	m := []Measurement{{Source: world.SignalSource{Position: [3]float32{5, 5, 0}, ModelID: 0}, RSSI: -40}}
	r.Step(m, 0.1)

	for _, p := range r.GetSnapshot(1 << 20) {
		if p.Position.X > 100 || p.Position.Y > 100 {
			t.Fatalf("out-of-bounds particle survived resample: %+v", p.Position)
		}
	}
}

func TestFilterRunnerStepKeepsEstimateInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	field := &world.DistanceField{}
	r := NewFilterRunner(testFilterConfig(), field, 10, 10, rng)

	for i := 0; i < 20; i++ {
		r.Step(nil, 0.1)
	}
	est := r.GetEstimate()
	if est.Position.X < -1 || est.Position.X > 11 || est.Position.Y < -1 || est.Position.Y > 11 {
		t.Fatalf("estimate drifted far out of bounds: %+v", est.Position)
	}
}

func TestFilterRunnerReinitRaisesHealth(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	field := &world.DistanceField{}
	cfg := testFilterConfig()
	cfg.ReinitThreshold = 1.1 // always below threshold, always reinit
	r := NewFilterRunner(cfg, field, 10, 10, rng)

	health := r.Step(nil, 0.1)
	if health != 1.0 {
		t.Fatalf("expected reinit to report health 1.0, got %v", health)
	}
	if got := len(r.GetSnapshot(1000)); got != cfg.NumParticles {
		t.Fatalf("population size changed across reinit: got %d, want %d", got, cfg.NumParticles)
	}
}

func TestWeightZeroOutsideBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	field := &world.DistanceField{}
	r := NewFilterRunner(testFilterConfig(), field, 10, 10, rng)

	p := Particle{Position: Vec3{X: -5, Y: -5}}
	m := &Measurement{Source: world.SignalSource{ModelID: 0}, RSSI: -40}
	if w := r.weight(p, m); w != 0 {
		t.Fatalf("weight for out-of-bounds particle: got %v, want 0", w)
	}
}

func TestWeightZeroForUnknownModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	field := &world.DistanceField{}
	r := NewFilterRunner(testFilterConfig(), field, 10, 10, rng)

	p := Particle{Position: Vec3{X: 5, Y: 5}}
	m := &Measurement{Source: world.SignalSource{ModelID: 7}, RSSI: -40}
	if w := r.weight(p, m); w != 0 {
		t.Fatalf("weight for unknown model id: got %v, want 0", w)
	}
}
