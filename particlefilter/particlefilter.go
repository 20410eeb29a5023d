// Package particlefilter implements the generic propagate -> weight ->
// resample sequential Monte Carlo core. It is parameterised
// over a user-chosen particle type P and measurement type M; all
// domain-specific behaviour is supplied as closures, matching the
// boxed-closure shape of original_source/tracking/src/filter_runner.rs's
// generic filter core.
package particlefilter

import "math/rand"

// Filter is a generic SMC filter over particle type P and measurement
// type M, configured with three closures at construction time.
type Filter[P any, M any] struct {
	particles []P
	rng       *rand.Rand

	propagate func(p P, dt float32) P
	noise     func(p P, dt float32) P
	weight    func(p P, m *M) float32
}

// New builds a filter from an initial population and the three
// spec-mandated closures. noise is currently identity in the concrete
// tracking runner but is retained as a first-class hook for
// extensibility.
func New[P any, M any](initial []P, rng *rand.Rand,
	propagate func(p P, dt float32) P,
	noise func(p P, dt float32) P,
	weight func(p P, m *M) float32,
) *Filter[P, M] {
	return &Filter[P, M]{
		particles: initial,
		rng:       rng,
		propagate: propagate,
		noise:     noise,
		weight:    weight,
	}
}

// Step performs one SMC iteration: propagate every particle, compute
// weights against the supplied measurements, resample with replacement,
// and return the mean weight (W/N) as a health signal.
func (f *Filter[P, M]) Step(measurements []M, dt float32) float32 {
	n := len(f.particles)
	if n == 0 {
		return 0
	}

	weights := make([]float64, n)
	for i, p := range f.particles {
		p = f.propagate(p, dt)
		if f.noise != nil {
			p = f.noise(p, dt)
		}
		f.particles[i] = p

		w := 1.0
		for mi := range measurements {
			w *= float64(f.weight(p, &measurements[mi]))
		}
		weights[i] = w
	}

	var total float64
	for _, w := range weights {
		total += w
	}

	f.resample(weights, total)

	return float32(total / float64(n))
}

// resample performs systematic resampling: N uniformly spaced
// cumulative thresholds (jittered by one shared offset), each mapped to
// the particle whose cumulative weight interval contains it.
func (f *Filter[P, M]) resample(weights []float64, total float64) {
	n := len(f.particles)
	if total <= 0 {
		return
	}

	cumulative := make([]float64, n)
	acc := 0.0
	for i, w := range weights {
		acc += w
		cumulative[i] = acc
	}

	step := total / float64(n)
	offset := f.rng.Float64() * step

	next := make([]P, n)
	j := 0
	for i := 0; i < n; i++ {
		target := offset + float64(i)*step
		for j < n-1 && cumulative[j] < target {
			j++
		}
		next[i] = f.particles[j]
	}
	f.particles = next
}

// MergeParticles replaces a ratio fraction of the current population
// (uniformly chosen indices, without repeats) with entries drawn from
// newParticles, used for partial re-initialisation.
func (f *Filter[P, M]) MergeParticles(newParticles []P, ratio float32) {
	n := len(f.particles)
	if n == 0 || len(newParticles) == 0 {
		return
	}
	count := int(ratio * float32(n))
	if count <= 0 {
		return
	}
	if count > n {
		count = n
	}

	idx := f.rng.Perm(n)[:count]
	for i, pos := range idx {
		f.particles[pos] = newParticles[i%len(newParticles)]
	}
}

// GetParticles exposes the current population read-only.
func (f *Filter[P, M]) GetParticles() []P {
	return f.particles
}
