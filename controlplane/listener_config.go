// Package controlplane is a thin adapter exposing the operations the
// core needs from an HTTP control plane: a push channel at
// /ws/listener carrying named listener subscriptions. It deliberately
// does not own an HTTP router, JSON body binding, or static file
// serving — callers mount their own handlers on the same ServeMux.
package controlplane

import (
	"encoding/json"
	"fmt"
)

// ListenerConfig is the tagged union a client sends to replace its
// subscription set: TrackingListener, MeasurementListener,
// SimListener, restored verbatim from
// original_source/btracked-server/src/api/listener.rs.
type ListenerConfig struct {
	Type         string `json:"type"`
	InstanceName string `json:"instance_name"`
	NumParticles int    `json:"num_particles,omitempty"`
	Raw          bool   `json:"raw,omitempty"`
	SimName      string `json:"sim_name,omitempty"`
	UpdateRateMs int    `json:"update_rate,omitempty"`
}

const (
	listenerTypeTracking    = "tracking"
	listenerTypeMeasurement = "measurement"
	listenerTypeSim         = "sim"
)

// subscriptionSet is what a client posts over the websocket to replace
// its active subscriptions: {"<listener-name>": <ListenerConfig>, ...}.
type subscriptionSet map[string]ListenerConfig

func parseSubscriptionSet(data []byte) (subscriptionSet, error) {
	var set subscriptionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("controlplane: invalid subscription set: %w", err)
	}
	return set, nil
}
