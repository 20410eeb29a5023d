package tracking

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MacString formats Mac as 12 lowercase hex digits, the JSON wire form
// between gateway and server.
func (b BeaconPacket) MacString() string {
	return hex.EncodeToString(b.Mac[:])
}

// beaconPacketJSON mirrors BeaconPacket's wire shape with a hex-string
// mac field instead of a byte array, matching the gateway<->server JSON
// contract.
type beaconPacketJSON struct {
	TimeMs   uint64 `json:"time_ms"`
	Mac      string `json:"mac"`
	RSSI     int8   `json:"rssi"`
	Sequence uint8  `json:"sequence"`
	Session  uint8  `json:"session"`
}

// MarshalJSON implements json.Marshaler with the 12-hex-digit mac form.
func (b BeaconPacket) MarshalJSON() ([]byte, error) {
	return json.Marshal(beaconPacketJSON{
		TimeMs:   b.TimeMs,
		Mac:      b.MacString(),
		RSSI:     b.RSSI,
		Sequence: b.Sequence,
		Session:  b.Session,
	})
}

// UnmarshalJSON implements json.Unmarshaler, decoding the hex mac field
// back into the fixed-size byte array.
func (b *BeaconPacket) UnmarshalJSON(data []byte) error {
	var aux beaconPacketJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	raw, err := hex.DecodeString(aux.Mac)
	if err != nil || len(raw) != 6 {
		return fmt.Errorf("tracking: invalid beacon mac %q", aux.Mac)
	}
	b.TimeMs = aux.TimeMs
	copy(b.Mac[:], raw)
	b.RSSI = aux.RSSI
	b.Sequence = aux.Sequence
	b.Session = aux.Session
	return nil
}
