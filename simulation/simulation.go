// Package simulation drives a synthetic tag trajectory, injecting
// measurements into a target tracking instance for testing/demo.
package simulation

import (
	"math"
	"math/rand"
	"time"

	"btracked-go/instance"
	"btracked-go/signal"
	"btracked-go/tracking"
	"btracked-go/world"
)

const (
	updateTick      = 20 * time.Millisecond
	measurementTick = 200 * time.Millisecond
	arriveEpsilon   = 0.01
	simSpeed        = 0.5
)

// Config is the operator-authored simulation configuration.
type Config struct {
	InitialState tracking.Particle
	MinRSSI      int16
	Geometry     *world.GeometryConfig
	SignalModels []signal.ModelConfig
}

type state struct {
	particle tracking.Particle
	target   *world.Vec2
}

type getStateCmd struct{ reply chan tracking.Particle }
type goToCmd struct{ target world.Vec2 }

// Handle is a client handle to a running simulation worker.
type Handle struct {
	cmd  chan any
	stop chan struct{}
}

// Start builds the simulation's initial state, computes the
// RSSI-pruning distance bound, and spawns the worker goroutine that
// ticks kinematics every 20ms and injects measurements into target
// every 200ms.
func Start(cfg Config, target *instance.Handle) *Handle {
	h := &Handle{cmd: make(chan any), stop: make(chan struct{})}
	go h.run(cfg, target)
	return h
}

// GetState sends a rendezvous GetState command and blocks for the reply.
func (h *Handle) GetState() tracking.Particle {
	reply := make(chan tracking.Particle)
	h.cmd <- getStateCmd{reply: reply}
	return <-reply
}

// GoTo sets the simulation's movement target.
func (h *Handle) GoTo(target world.Vec2) {
	h.cmd <- goToCmd{target: target}
}

// Stop terminates the simulation worker.
func (h *Handle) Stop() {
	close(h.stop)
}

func (h *Handle) run(cfg Config, target *instance.Handle) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	st := state{particle: cfg.InitialState}

	maxDistances := make([]float64, len(cfg.SignalModels))
	for i, m := range cfg.SignalModels {
		bound := signal.DistanceBoundForRSSI(m, cfg.MinRSSI, 100)
		maxDistances[i] = bound * bound
	}

	updateTicker := time.NewTicker(updateTick)
	measurementTicker := time.NewTicker(measurementTick)
	defer updateTicker.Stop()
	defer measurementTicker.Stop()

	for {
		select {
		case <-h.stop:
			return

		case c := <-h.cmd:
			switch cmd := c.(type) {
			case getStateCmd:
				cmd.reply <- st.particle
			case goToCmd:
				t := cmd.target
				st.target = &t
			}

		case <-updateTicker.C:
			advance(&st, float32(updateTick.Seconds()))

		case <-measurementTicker.C:
			for _, m := range generateMeasurements(rng, cfg, st.particle, maxDistances) {
				target.NewResolvedMeasurement(m)
			}
		}
	}
}

// advance integrates the synthetic tag's kinematics: with a target, move
// toward it at simSpeed until within arriveEpsilon (then clear target
// and go Stationary); without a target, remain Stationary.
func advance(st *state, dt float32) {
	if st.target == nil {
		st.particle.Mode = tracking.Stationary
		return
	}

	dx := st.target.X - st.particle.Position.X
	dy := st.target.Y - st.particle.Position.Y
	dist := math.Hypot(float64(dx), float64(dy))
	if dist < arriveEpsilon {
		st.target = nil
		st.particle.Mode = tracking.Stationary
		return
	}

	norm := float32(1 / dist)
	vx := dx * norm * simSpeed
	vy := dy * norm * simSpeed
	st.particle.Velocity.X = vx
	st.particle.Velocity.Y = vy
	st.particle.Position.X += vx * dt
	st.particle.Position.Y += vy * dt
	st.particle.Pose = float32(math.Atan2(float64(vy), float64(vx)))
	st.particle.Mode = tracking.Moving
}

// generateMeasurements emits one synthetic Measurement per in-range
// signal source whose generated RSSI exceeds cfg.MinRSSI.
func generateMeasurements(rng *rand.Rand, cfg Config, p tracking.Particle, maxDistances []float64) []tracking.Measurement {
	var out []tracking.Measurement
	for _, source := range cfg.Geometry.SignalSources {
		if source.ModelID < 0 || source.ModelID >= len(cfg.SignalModels) {
			continue
		}
		dx := float64(source.Position[0] - p.Position.X)
		dy := float64(source.Position[1] - p.Position.Y)
		d2 := dx*dx + dy*dy
		if d2 > maxDistances[source.ModelID] {
			continue
		}

		model := cfg.SignalModels[source.ModelID]
		d := math.Sqrt(d2)
		phi := math.Atan2(dy, dx) - float64(p.Pose)
		expected := model.Expected(d, phi)
		rssi := model.GenerateRSSI(rng, expected)
		if rssi > cfg.MinRSSI {
			out = append(out, tracking.Measurement{Source: source, RSSI: rssi})
		}
	}
	return out
}
