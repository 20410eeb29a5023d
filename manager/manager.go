// Package manager implements the process-wide registry of named tracking
// instances and simulations.
package manager

import (
	"fmt"
	"sync"

	"btracked-go/downlink"
	"btracked-go/instance"
	"btracked-go/simulation"
	"btracked-go/tracking"
	"btracked-go/world"
)

// InstanceFilterConfig bundles the per-instance construction parameters
// NewInstance needs beyond geometry/PNG, kept as a separate type so
// callers (the control plane) can build it directly from a decoded
// JSON request body.
type InstanceFilterConfig struct {
	Filter        tracking.FilterConfig
	UpdateRateMs  int
	BeaconMapping map[string]string
	Downlink      *downlink.Relay
}

// InstanceSummary is the metadata snapshot Summary returns per instance.
type InstanceSummary struct {
	Name          string   `json:"name"`
	SimulationIDs []string `json:"simulations"`
}

type entry struct {
	handle *instance.Handle
	sims   map[string]*simulation.Handle
}

// Manager is the {name -> InstanceHandle} registry guarded by a single
// mutex. The mutex is held only across map mutations;
// long operations (PNG decode, worker spawn) happen before the lock is
// taken or after it is released.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*entry
}

// New constructs an empty registry. Tests inject a fresh Manager per
// case rather than relying on a process-wide singleton, preferring
// dependency injection over a true global.
func New() *Manager {
	return &Manager{instances: make(map[string]*entry)}
}

// NewInstance decodes the collision PNG into a distance field (outside
// the lock), builds the instance config, spawns its worker, and inserts
// it into the registry under name.
func (m *Manager) NewInstance(name string, geometry *world.GeometryConfig, filterCfg InstanceFilterConfig, collisionPNG []byte) error {
	field, err := world.DecodeDistanceFieldPNG(collisionPNG, geometry.Scale)
	if err != nil {
		return fmt.Errorf("manager: decode collision map for %q: %w", name, err)
	}

	cfg := instance.Config{
		Name:          name,
		Geometry:      geometry,
		Filter:        filterCfg.Filter,
		Field:         field,
		UpdateRateMs:  filterCfg.UpdateRateMs,
		BeaconMapping: filterCfg.BeaconMapping,
		Downlink:      filterCfg.Downlink,
	}
	h := instance.Start(cfg)

	m.mu.Lock()
	_, exists := m.instances[name]
	if !exists {
		m.instances[name] = &entry{handle: h, sims: make(map[string]*simulation.Handle)}
	}
	m.mu.Unlock()

	if exists {
		h.Release()
		return fmt.Errorf("manager: instance %q already exists", name)
	}
	return nil
}

// StopInstance releases the instance's handle (cascading to worker
// shutdown via channel closure) and tears down any attached
// simulations, removing name from the registry. Repeated calls for the
// same name are a no-op.
func (m *Manager) StopInstance(name string) {
	m.mu.Lock()
	e, ok := m.instances[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.instances, name)
	m.mu.Unlock()

	for _, sim := range e.sims {
		sim.Stop()
	}
	e.handle.Release()
}

// GetInstance returns the handle for name, if registered.
func (m *Manager) GetInstance(name string) (*instance.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.instances[name]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// NewSim attaches a new simulation to the named instance's registry
// entry, keyed by simName.
func (m *Manager) NewSim(instanceName, simName string, h *simulation.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.instances[instanceName]
	if !ok {
		return fmt.Errorf("manager: instance %q not found", instanceName)
	}
	e.sims[simName] = h
	return nil
}

// StopSim stops and removes a named simulation from the given instance.
func (m *Manager) StopSim(instanceName, simName string) error {
	m.mu.Lock()
	e, ok := m.instances[instanceName]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("manager: instance %q not found", instanceName)
	}
	sim, ok := e.sims[simName]
	if ok {
		delete(e.sims, simName)
	}
	m.mu.Unlock()

	if ok {
		sim.Stop()
	}
	return nil
}

// GetSim returns the named simulation handle attached to instanceName.
func (m *Manager) GetSim(instanceName, simName string) (*simulation.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.instances[instanceName]
	if !ok {
		return nil, false
	}
	sim, ok := e.sims[simName]
	return sim, ok
}

// Summary returns a metadata snapshot of every registered instance.
func (m *Manager) Summary() []InstanceSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]InstanceSummary, 0, len(m.instances))
	for name, e := range m.instances {
		ids := make([]string, 0, len(e.sims))
		for id := range e.sims {
			ids = append(ids, id)
		}
		out = append(out, InstanceSummary{Name: name, SimulationIDs: ids})
	}
	return out
}
