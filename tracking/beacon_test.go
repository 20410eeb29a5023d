package tracking

import (
	"encoding/json"
	"testing"
)

func TestBeaconPacketJSONRoundTrip(t *testing.T) {
	want := BeaconPacket{
		TimeMs:   123456789,
		Mac:      [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01},
		RSSI:     -72,
		Sequence: 7,
		Session:  3,
	}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var mirror map[string]any
	if err := json.Unmarshal(data, &mirror); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if mirror["mac"] != "deadbeef0001" {
		t.Fatalf("mac field = %v, want deadbeef0001", mirror["mac"])
	}

	var got BeaconPacket
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("round trip: got %+v, want %+v", got, want)
	}
}

func TestBeaconPacketUnmarshalInvalidMac(t *testing.T) {
	bad := []byte(`{"time_ms":1,"mac":"not-hex","rssi":0,"sequence":0,"session":0}`)
	var p BeaconPacket
	if err := json.Unmarshal(bad, &p); err == nil {
		t.Fatal("expected error decoding invalid mac, got nil")
	}
}

func TestBeaconPacketUnmarshalWrongMacLength(t *testing.T) {
	bad := []byte(`{"time_ms":1,"mac":"aabb","rssi":0,"sequence":0,"session":0}`)
	var p BeaconPacket
	if err := json.Unmarshal(bad, &p); err == nil {
		t.Fatal("expected error decoding short mac, got nil")
	}
}
