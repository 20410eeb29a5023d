package tracking

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"btracked-go/particlefilter"
	"btracked-go/world"
)

// FilterRunner wires the generic particlefilter.Filter to the
// tag-tracking motion/signal model.
type FilterRunner struct {
	cfg    FilterConfig
	field  *world.DistanceField
	width  float32
	height float32
	rng    *rand.Rand

	filter *particlefilter.Filter[Particle, Measurement]
}

// NewFilterRunner builds the initial population (N particles uniform
// over [0,width]x[0,height], random-direction velocity scaled by speed,
// pose from velocity, signed-normal turn rate, Bernoulli mode) and
// wires it to the generic filter core.
func NewFilterRunner(cfg FilterConfig, field *world.DistanceField, width, height float32, rng *rand.Rand) *FilterRunner {
	r := &FilterRunner{cfg: cfg, field: field, width: width, height: height, rng: rng}
	initial := r.generateInitialParticles(cfg.NumParticles)
	r.filter = particlefilter.New[Particle, Measurement](initial, rng, r.propagate, nil, r.weight)
	return r
}

func (r *FilterRunner) generateInitialParticles(n int) []Particle {
	out := make([]Particle, n)
	for i := range out {
		out[i] = r.randomParticle()
	}
	return out
}

func (r *FilterRunner) randomParticle() Particle {
	x := r.rng.Float32() * r.width
	y := r.rng.Float32() * r.height
	vel := randVelocity(r.rng, r.cfg.Speed)
	pose := float32(math.Atan2(float64(vel.Y), float64(vel.X)))
	turnRate := float32(r.rng.NormFloat64())*r.cfg.TurnRateStdDev + r.cfg.TurnRateMean
	mode := Stationary
	if r.rng.Intn(2) == 1 {
		mode = Moving
	}
	return Particle{
		Position: Vec3{X: x, Y: y},
		Velocity: vel,
		Pose:     pose,
		TurnRate: turnRate,
		Mode:     mode,
	}
}

// randVelocity draws a uniformly random direction, scaled to speed.
func randVelocity(rng *rand.Rand, speed float32) Vec3 {
	theta := rng.Float64() * 2 * math.Pi
	return Vec3{
		X: float32(math.Cos(theta)) * speed,
		Y: float32(math.Sin(theta)) * speed,
	}
}

// propagate applies the stationary/moving motion model.
func (r *FilterRunner) propagate(p Particle, dt float32) Particle {
	switch p.Mode {
	case Stationary:
		return r.propagateStationary(p, dt)
	default:
		return r.propagateMoving(p, dt)
	}
}

func (r *FilterRunner) propagateStationary(p Particle, dt float32) Particle {
	m := r.cfg.Stationary
	p.Position.X += 0.5 * dt * dt * float32(r.rng.NormFloat64()) * m.KinematicNoise
	p.Position.Y += 0.5 * dt * dt * float32(r.rng.NormFloat64()) * m.KinematicNoise
	p.TurnRate += dt * dt * float32(r.rng.NormFloat64()) * m.TurnRateNoise
	p.Pose = wrapAngle(p.Pose + dt*float32(r.rng.NormFloat64())*m.PoseNoise + dt*p.TurnRate)

	if float32(r.rng.Float64()) < m.TransitionProb*dt {
		p.Mode = Moving
		p.Velocity = randVelocity(r.rng, r.cfg.Speed)
	}
	return p
}

func (r *FilterRunner) propagateMoving(p Particle, dt float32) Particle {
	m := r.cfg.MovingModel
	rep := r.field.Query(p.Position.X, p.Position.Y)
	repulsion := Vec3{X: rep.X * dt, Y: rep.Y * dt}

	omega := p.TurnRate
	if omega == 0 {
		omega = 1e-5
	}
	delta := motionOperator(dt, omega, p.Velocity)

	noisePos := Vec3{X: float32(r.rng.NormFloat64()) * m.KinematicNoise, Y: float32(r.rng.NormFloat64()) * m.KinematicNoise}
	noiseVel := Vec3{X: float32(r.rng.NormFloat64()) * m.KinematicNoise, Y: float32(r.rng.NormFloat64()) * m.KinematicNoise}

	prevPos := p.Position
	p.Position.X += delta.X - repulsion.X + noisePos.X
	p.Position.Y += delta.Y - repulsion.Y + noisePos.Y

	rotated := rotZ(p.Velocity, dt*p.TurnRate)
	p.Velocity.X = rotated.X - repulsion.X + noiseVel.X
	p.Velocity.Y = rotated.Y - repulsion.Y + noiseVel.Y

	p.TurnRate += float32(r.rng.NormFloat64()) * m.TurnRateNoise

	dx := p.Position.X - prevPos.X
	dy := p.Position.Y - prevPos.Y
	if dx != 0 || dy != 0 {
		p.Pose = float32(math.Atan2(float64(dy), float64(dx)))
	}

	if float32(r.rng.Float64()) < m.TransitionProb*dt {
		p.Mode = Stationary
	}
	return p
}

// motionOperator computes M(dt, omega) * velocity, the constant-turn-rate
// motion operator:
//
//	M(dt,w) = (1/w) * [[sin(w*dt), cos(w*dt)-1, 0],
//	                   [1-cos(w*dt), sin(w*dt), 0],
//	                   [0, 0, 0]]
func motionOperator(dt, omega float32, v Vec3) Vec3 {
	s, c := math.Sincos(float64(omega) * float64(dt))
	sinwdt := float32(s)
	coswdt := float32(c)
	inv := 1 / omega
	return Vec3{
		X: inv * (sinwdt*v.X + (coswdt-1)*v.Y),
		Y: inv * ((1-coswdt)*v.X + sinwdt*v.Y),
	}
}

// weight is the particlefilter weight closure: out-of-bounds particles
// carry weight 0, otherwise the product of per-source signal
// likelihoods.
func (r *FilterRunner) weight(p Particle, m *Measurement) float32 {
	if p.Position.X < 0 || p.Position.X > r.width || p.Position.Y < 0 || p.Position.Y > r.height {
		return 0
	}
	if m.Source.ModelID < 0 || m.Source.ModelID >= len(r.cfg.SignalModels) {
		return 0
	}
	model := r.cfg.SignalModels[m.Source.ModelID]

	sp := m.Source.Position
	dx := float64(sp[0] - p.Position.X)
	dy := float64(sp[1] - p.Position.Y)
	d := math.Hypot(dx, dy)

	phi := math.Atan2(dy, dx) - float64(p.Pose)
	expected := model.Expected(d, phi)
	return model.Weight(expected, m.RSSI)
}

// Step propagates and weights the population against measurements,
// resamples, and triggers partial re-initialisation when the mean
// weight falls below ReinitThreshold, returning 1.0 for that tick
// since re-initialisation resets the filter's health signal.
func (r *FilterRunner) Step(measurements []Measurement, dt float32) float32 {
	if dt > 10 {
		dt = 10
	}
	health := r.filter.Step(measurements, dt)
	if health < r.cfg.ReinitThreshold {
		fresh := r.generateInitialParticles(r.cfg.NumParticles)
		r.filter.MergeParticles(fresh, r.cfg.ReinitRatio)
		return 1.0
	}
	return health
}

// GetSnapshot returns k particles: the full population if k >= N, else a
// uniform sample without replacement of size k.
func (r *FilterRunner) GetSnapshot(k int) []Particle {
	particles := r.filter.GetParticles()
	if k >= len(particles) {
		out := make([]Particle, len(particles))
		copy(out, particles)
		return out
	}
	idx := r.rng.Perm(len(particles))[:k]
	out := make([]Particle, k)
	for i, p := range idx {
		out[i] = particles[p]
	}
	return out
}

// GetEstimate computes the median of each scalar field across the
// population and the majority mode, a low-cost approximation of the
// cluster centroid.
func (r *FilterRunner) GetEstimate() Particle {
	particles := r.filter.GetParticles()
	n := len(particles)
	if n == 0 {
		return Particle{}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	vxs := make([]float64, n)
	vys := make([]float64, n)
	poses := make([]float64, n)
	turnRates := make([]float64, n)
	stationary := 0

	for i, p := range particles {
		xs[i] = float64(p.Position.X)
		ys[i] = float64(p.Position.Y)
		vxs[i] = float64(p.Velocity.X)
		vys[i] = float64(p.Velocity.Y)
		poses[i] = float64(p.Pose)
		turnRates[i] = float64(p.TurnRate)
		if p.Mode == Stationary {
			stationary++
		}
	}

	mode := Moving
	if stationary*2 >= n {
		mode = Stationary
	}

	return Particle{
		Position: Vec3{X: float32(median(xs)), Y: float32(median(ys))},
		Velocity: Vec3{X: float32(median(vxs)), Y: float32(median(vys))},
		Pose:     float32(median(poses)),
		TurnRate: float32(median(turnRates)),
		Mode:     mode,
	}
}

// median uses gonum's quantile estimator (sorted input, empirical CDF)
// rather than a hand-rolled sort+index.
func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
