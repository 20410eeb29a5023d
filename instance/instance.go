package instance

import (
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"btracked-go/downlink"
	"btracked-go/tracking"
	"btracked-go/world"
)

// Config is the operator-authored configuration an Instance is built
// from: geometry, filter parameters, update cadence, and the mac ->
// source-id mapping used to resolve raw beacon packets.
type Config struct {
	Name          string
	Geometry      *world.GeometryConfig
	Filter        tracking.FilterConfig
	Field         *world.DistanceField
	UpdateRateMs  int
	BeaconMapping map[string]string
	Downlink      *downlink.Relay // optional
}

// ParticleSnapshot flattens a particle population's xy into interleaved
// f32 sequences, one pair of slices per mode.
type ParticleSnapshot struct {
	StationaryX []float32 `json:"stationary_x"`
	StationaryY []float32 `json:"stationary_y"`
	MovingX     []float32 `json:"moving_x"`
	MovingY     []float32 `json:"moving_y"`
}

// NewParticleSnapshot builds a ParticleSnapshot from a raw population.
func NewParticleSnapshot(particles []tracking.Particle) ParticleSnapshot {
	var snap ParticleSnapshot
	for _, p := range particles {
		if p.Mode == tracking.Stationary {
			snap.StationaryX = append(snap.StationaryX, p.Position.X)
			snap.StationaryY = append(snap.StationaryY, p.Position.Y)
		} else {
			snap.MovingX = append(snap.MovingX, p.Position.X)
			snap.MovingY = append(snap.MovingY, p.Position.Y)
		}
	}
	return snap
}

// StateUpdate is the payload delivered to state listeners every tick.
type StateUpdate struct {
	Snapshot ParticleSnapshot   `json:"snapshot"`
	Estimate tracking.Particle  `json:"estimate"`
}

// command is the sealed set of messages accepted on the rendezvous
// command channel.
type command interface{ isCommand() }

type cmdGetSnapshot struct {
	k     int
	reply chan []tracking.Particle
}

type cmdGetEstimate struct {
	reply chan tracking.Particle
}

type cmdNewMeasurement struct {
	raw tracking.BeaconPacket
}

// cmdNewResolvedMeasurement is the sim-originated counterpart of
// cmdNewMeasurement: a simulation already knows the SignalSource it
// generated a reading for, so it bypasses mac resolution entirely
// instead of round-tripping through a synthetic BeaconPacket, feeding
// the measurement straight into the target instance's command channel.
type cmdNewResolvedMeasurement struct {
	m tracking.Measurement
}

type cmdAddStateListener struct {
	numParticles int
	reply        chan stateListenerReply
}

type cmdAddMeasurementListener struct {
	raw   bool
	reply chan measurementListenerReply
}

func (cmdGetSnapshot) isCommand()            {}
func (cmdGetEstimate) isCommand()            {}
func (cmdNewMeasurement) isCommand()         {}
func (cmdNewResolvedMeasurement) isCommand() {}
func (cmdAddStateListener) isCommand()       {}
func (cmdAddMeasurementListener) isCommand() {}

type stateListenerReply struct {
	ch     <-chan StateUpdate
	handle *ListenerHandle
}

type measurementListenerReply struct {
	ch     <-chan tracking.Measurement
	raw    <-chan tracking.BeaconPacket
	handle *ListenerHandle
}

// Instance owns a dedicated worker goroutine, a FilterRunner, a
// measurement buffer, and the instance's listener fan-out sets.
type Instance struct {
	name string
	cmd  chan command
	refs int32

	stateListeners       *UpdateListener[StateUpdate]
	measurementListeners *UpdateListener[tracking.Measurement]
	rawListeners         *UpdateListener[tracking.BeaconPacket]
}

// Handle is a reference-counted client handle to a running Instance.
// Release decrements the reference count; when it reaches zero the
// command channel is closed, which is the worker's termination signal.
// Go has no destructor-driven Drop, so this models shutdown as explicit
// reference counting instead.
type Handle struct {
	inst *Instance
}

// Name returns the instance's name.
func (h *Handle) Name() string { return h.inst.name }

// Release decrements the handle's reference count and closes the
// instance's command channel once the last handle is released.
func (h *Handle) Release() {
	if atomic.AddInt32(&h.inst.refs, -1) == 0 {
		close(h.inst.cmd)
	}
}

// clone increments the reference count and returns an additional handle
// to the same instance.
func (h *Handle) clone() *Handle {
	atomic.AddInt32(&h.inst.refs, 1)
	return &Handle{inst: h.inst}
}

// Start builds a Instance, spawns its worker goroutine, and returns the
// first Handle to it.
func Start(cfg Config) *Handle {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	runner := tracking.NewFilterRunner(cfg.Filter, cfg.Field, cfg.Geometry.Boundary.Width*cfg.Geometry.Scale, cfg.Geometry.Boundary.Height*cfg.Geometry.Scale, rng)

	inst := &Instance{
		name:                 cfg.Name,
		cmd:                  make(chan command), // rendezvous, capacity 0
		refs:                 1,
		stateListeners:       NewUpdateListener[StateUpdate]("state"),
		measurementListeners: NewUpdateListener[tracking.Measurement]("measurement"),
		rawListeners:         NewUpdateListener[tracking.BeaconPacket]("raw measurement"),
	}

	go inst.run(cfg, runner)

	return &Handle{inst: inst}
}

func (inst *Instance) run(cfg Config, runner *tracking.FilterRunner) {
	updateRate := time.Duration(cfg.UpdateRateMs) * time.Millisecond
	ticker := time.NewTicker(updateRate)
	defer ticker.Stop()

	var buffer []tracking.Measurement
	prevTick := time.Now()

	for {
		select {
		case c, ok := <-inst.cmd:
			if !ok {
				return
			}
			buffer = inst.handleCommand(cfg, runner, c, buffer)

		case now := <-ticker.C:
			dt := now.Sub(prevTick)
			prevTick = now
			if dt > 10*time.Second {
				dt = 10 * time.Second
			}
			runner.Step(buffer, float32(dt.Seconds()))
			buffer = buffer[:0]

			estimate := runner.GetEstimate()
			inst.stateListeners.SendFunc(func(meta any) StateUpdate {
				k, _ := meta.(int)
				return StateUpdate{
					Snapshot: NewParticleSnapshot(runner.GetSnapshot(k)),
					Estimate: estimate,
				}
			})
			if cfg.Downlink != nil {
				cfg.Downlink.PublishEstimate(inst.name, estimate)
			}
		}
	}
}

func (inst *Instance) handleCommand(cfg Config, runner *tracking.FilterRunner, c command, buffer []tracking.Measurement) []tracking.Measurement {
	switch cmd := c.(type) {
	case cmdGetSnapshot:
		cmd.reply <- runner.GetSnapshot(cmd.k)

	case cmdGetEstimate:
		cmd.reply <- runner.GetEstimate()

	case cmdNewMeasurement:
		m, ok := resolveMeasurement(cfg, cmd.raw)
		inst.rawListeners.Send(cmd.raw)
		if ok {
			buffer = append(buffer, m)
			inst.measurementListeners.Send(m)
		}

	case cmdNewResolvedMeasurement:
		buffer = append(buffer, cmd.m)
		inst.measurementListeners.Send(cmd.m)

	case cmdAddStateListener:
		ch, handle := inst.stateListeners.AddWithMeta(cmd.numParticles)
		cmd.reply <- stateListenerReply{ch: ch, handle: handle}

	case cmdAddMeasurementListener:
		if cmd.raw {
			ch, handle := inst.rawListeners.Add()
			cmd.reply <- measurementListenerReply{raw: ch, handle: handle}
		} else {
			ch, handle := inst.measurementListeners.Add()
			cmd.reply <- measurementListenerReply{ch: ch, handle: handle}
		}

	default:
		log.Printf("warn: instance %s received unknown command %T", inst.name, c)
	}
	return buffer
}

// resolveMeasurement maps a raw beacon packet through the instance's
// mac -> source-id mapping (falling back to the raw mac string) and
// looks that id up in the map's signal sources.
func resolveMeasurement(cfg Config, raw tracking.BeaconPacket) (tracking.Measurement, bool) {
	mac := raw.MacString()
	sourceID, ok := cfg.BeaconMapping[mac]
	if !ok {
		sourceID = mac
	}
	source, ok := cfg.Geometry.SignalSources[sourceID]
	if !ok {
		return tracking.Measurement{}, false
	}
	return tracking.Measurement{Source: source, RSSI: int16(raw.RSSI)}, true
}

// GetSnapshot sends a rendezvous GetSnapshot command and blocks for the reply.
func (h *Handle) GetSnapshot(k int) []tracking.Particle {
	reply := make(chan []tracking.Particle)
	h.inst.cmd <- cmdGetSnapshot{k: k, reply: reply}
	return <-reply
}

// GetEstimate sends a rendezvous GetEstimate command and blocks for the reply.
func (h *Handle) GetEstimate() tracking.Particle {
	reply := make(chan tracking.Particle)
	h.inst.cmd <- cmdGetEstimate{reply: reply}
	return <-reply
}

// NewMeasurement enqueues a raw beacon packet for the instance to resolve
// and buffer. It does not produce a reply.
func (h *Handle) NewMeasurement(raw tracking.BeaconPacket) {
	h.inst.cmd <- cmdNewMeasurement{raw: raw}
}

// NewResolvedMeasurement enqueues an already-resolved Measurement
// (bypassing mac lookup), used by simulations.
func (h *Handle) NewResolvedMeasurement(m tracking.Measurement) {
	h.inst.cmd <- cmdNewResolvedMeasurement{m: m}
}

// AddStateListener registers a new state-update subscriber requesting
// numParticles particles in its snapshot each tick.
func (h *Handle) AddStateListener(numParticles int) (<-chan StateUpdate, *ListenerHandle) {
	reply := make(chan stateListenerReply)
	h.inst.cmd <- cmdAddStateListener{numParticles: numParticles, reply: reply}
	r := <-reply
	return r.ch, r.handle
}

// AddMeasurementListener registers a new resolved-measurement subscriber.
func (h *Handle) AddMeasurementListener() (<-chan tracking.Measurement, *ListenerHandle) {
	reply := make(chan measurementListenerReply)
	h.inst.cmd <- cmdAddMeasurementListener{raw: false, reply: reply}
	r := <-reply
	return r.ch, r.handle
}

// AddRawMeasurementListener registers a new raw-BeaconPacket subscriber.
func (h *Handle) AddRawMeasurementListener() (<-chan tracking.BeaconPacket, *ListenerHandle) {
	reply := make(chan measurementListenerReply)
	h.inst.cmd <- cmdAddMeasurementListener{raw: true, reply: reply}
	r := <-reply
	return r.raw, r.handle
}
