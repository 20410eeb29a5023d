package gateway

import (
	"bytes"
	"time"

	"btracked-go/tracking"
)

// beaconHeader is the fixed 4-byte marker every valid beacon record
// carries at header_start.
var beaconHeader = []byte{0x0c, 0xff, 0x00, 0x00}

// BeaconPacketParser validates a completed frame's header and extracts
// a tracking.BeaconPacket from its body. v1 uses
// min_length=0x18/header_start=0x0B; v2 uses min_length=0x29/header_start=0x1D.
type BeaconPacketParser struct {
	MinLength   int
	HeaderStart int
}

// NewBeaconPacketParserV1 matches the v1 framing's packet layout.
func NewBeaconPacketParserV1() BeaconPacketParser {
	return BeaconPacketParser{MinLength: 0x18, HeaderStart: 0x0B}
}

// NewBeaconPacketParserV2 matches the v2 framing's packet layout.
func NewBeaconPacketParserV2() BeaconPacketParser {
	return BeaconPacketParser{MinLength: 0x29, HeaderStart: 0x1D}
}

// Parse validates frame against MinLength/HeaderStart/header and, on
// success, extracts a BeaconPacket with the mac bytes reversed
// (little-endian on the wire, MSB-first in BeaconPacket.Mac).
func (p BeaconPacketParser) Parse(frame []byte) (tracking.BeaconPacket, bool) {
	if len(frame) < p.MinLength {
		return tracking.BeaconPacket{}, false
	}
	headerEnd := p.HeaderStart + len(beaconHeader)
	if headerEnd > len(frame) || !bytes.Equal(frame[p.HeaderStart:headerEnd], beaconHeader) {
		return tracking.BeaconPacket{}, false
	}

	body := frame[headerEnd:]
	if len(body) < 9 {
		return tracking.BeaconPacket{}, false
	}

	var pkt tracking.BeaconPacket
	pkt.TimeMs = nowMs()
	pkt.Mac = [6]byte{body[5], body[4], body[3], body[2], body[1], body[0]}
	pkt.RSSI = int8(body[6])
	pkt.Sequence = body[7]
	pkt.Session = body[8]
	return pkt, true
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
