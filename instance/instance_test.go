package instance

import (
	"testing"
	"time"

	"btracked-go/signal"
	"btracked-go/tracking"
	"btracked-go/world"
)

func testConfig(name string) Config {
	return Config{
		Name: name,
		Geometry: &world.GeometryConfig{
			Boundary: world.Rect{Width: 10, Height: 10},
			Scale:    1,
			SignalSources: map[string]world.SignalSource{
				"beacon-1": {Position: [3]float32{5, 5, 0}, ModelID: 0},
			},
		},
		Filter: tracking.FilterConfig{
			NumParticles: 16,
			Speed:        0.5,
			Stationary:   tracking.MotionModel{KinematicNoise: 0.01, TurnRateNoise: 0.01, PoseNoise: 0.01, TransitionProb: 0.1},
			MovingModel:  tracking.MotionModel{KinematicNoise: 0.01, TurnRateNoise: 0.01, PoseNoise: 0.01, TransitionProb: 0.1},
			SignalModels: []signal.ModelConfig{{Alpha: 2.0, Beta: -40, Noise: 5}},
		},
		Field:         &world.DistanceField{},
		UpdateRateMs:  5,
		BeaconMapping: map[string]string{"deadbeef0001": "beacon-1"},
	}
}

func TestInstanceStateListenerReceivesTicks(t *testing.T) {
	h := Start(testConfig("tag-1"))
	defer h.Release()

	ch, handle := h.AddStateListener(4)
	defer handle.Close()

	select {
	case update := <-ch:
		if len(update.Snapshot.StationaryX)+len(update.Snapshot.MovingX) > 4 {
			t.Fatalf("snapshot larger than requested k=4: %+v", update.Snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a state update tick")
	}
}

func TestInstanceMeasurementFanOutAndDisconnect(t *testing.T) {
	h := Start(testConfig("tag-2"))
	defer h.Release()

	resolved, resolvedHandle := h.AddMeasurementListener()
	raw, rawHandle := h.AddRawMeasurementListener()
	defer rawHandle.Close()

	h.NewMeasurement(tracking.BeaconPacket{Mac: [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}, RSSI: -50})

	select {
	case m := <-resolved:
		if m.Source.ModelID != 0 {
			t.Fatalf("resolved measurement model id = %d, want 0", m.Source.ModelID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolved measurement")
	}

	select {
	case p := <-raw:
		if p.MacString() != "deadbeef0001" {
			t.Fatalf("raw mac = %q, want deadbeef0001", p.MacString())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for raw measurement")
	}

	// Scenario: a subscriber closes its handle mid-stream; the next
	// NewMeasurement must not block, and the still-open raw subscriber
	// keeps receiving. The second packet's mac is unmapped, so only the
	// raw fan-out carries it; the closed listener's channel is not checked.
	resolvedHandle.Close()

	h.NewMeasurement(tracking.BeaconPacket{Mac: [6]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, RSSI: -50})

	select {
	case p := <-raw:
		if p.MacString() != "000000000000" {
			t.Fatalf("raw mac = %q, want 000000000000", p.MacString())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second raw measurement after peer disconnect")
	}
}

func TestInstanceUnresolvedMeasurementIsDropped(t *testing.T) {
	h := Start(testConfig("tag-3"))
	defer h.Release()

	resolved, handle := h.AddMeasurementListener()
	defer handle.Close()

	// No BeaconMapping/SignalSources entry for this mac: resolveMeasurement
	// returns ok=false, so the resolved-measurement fan-out must stay
	// silent (only rawListeners sees it).
	h.NewMeasurement(tracking.BeaconPacket{Mac: [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, RSSI: -50})

	select {
	case m := <-resolved:
		t.Fatalf("unexpected resolved measurement for unmapped mac: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleReleaseRefcount(t *testing.T) {
	h := Start(testConfig("tag-4"))
	clone := h.clone()

	h.Release()
	// The instance should still be alive: GetEstimate should not hang or
	// panic on a closed command channel yet.
	done := make(chan struct{})
	go func() {
		clone.GetEstimate()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GetEstimate hung after releasing one of two handles")
	}

	clone.Release()
}
