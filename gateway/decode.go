// Package gateway implements the base-station ingest pipeline: framed
// byte-stream decoding (two wire protocols), beacon-packet parsing,
// serial/file sources, and configuration.
package gateway

// Decoder reassembles a byte stream into discrete frames. Next feeds one
// byte at a time and returns the completed frame buffer when a frame
// boundary is reached, or ok=false otherwise. The returned slice is only
// valid until the next call to Next (it aliases the decoder's internal
// buffer), matching the borrow semantics of
// original_source/base_station/src/source/serial.rs's SerialDecoder.
type Decoder interface {
	Next(b byte) (frame []byte, ok bool)
}

// DecoderV1 implements the escape-byte/terminator framing: 0xFE escapes
// the next byte (pushed as byte+1), 0xFF terminates a frame, valid iff
// the accumulated length is > 4.
type DecoderV1 struct {
	buffer  []byte
	escaped bool
	complete bool
}

// NewDecoderV1 constructs a DecoderV1 ready to consume bytes.
func NewDecoderV1() *DecoderV1 { return &DecoderV1{} }

func (d *DecoderV1) Next(b byte) ([]byte, bool) {
	if d.complete {
		d.buffer = d.buffer[:0]
		d.escaped = false
		d.complete = false
	}

	if b == 0xFF {
		d.complete = true
		if len(d.buffer) > 4 {
			return d.buffer, true
		}
		return nil, false
	}

	switch {
	case d.escaped:
		d.buffer = append(d.buffer, b+1)
		d.escaped = false
	case b == 0xFE:
		d.escaped = true
	default:
		d.buffer = append(d.buffer, b)
	}
	return nil, false
}

const (
	slipStart byte = 0xAB
	slipEnd   byte = 0xBC
	slipEsc   byte = 0xCD
)

// DecoderV2 implements the SLIP-like framing: 0xAB starts a frame
// (resets the buffer), 0xBC ends it (emits iff length >= 4), 0xCD
// escapes the next byte (pushed as byte+1). Bytes arriving between an
// end and the next start are discarded.
type DecoderV2 struct {
	buffer   []byte
	escaped  bool
	complete bool
}

// NewDecoderV2 constructs a DecoderV2 ready to consume bytes.
func NewDecoderV2() *DecoderV2 { return &DecoderV2{complete: true} }

func (d *DecoderV2) Next(b byte) ([]byte, bool) {
	switch b {
	case slipStart:
		d.complete = false
		d.buffer = d.buffer[:0]
		return nil, false
	case slipEnd:
		if !d.complete && len(d.buffer) >= 4 {
			d.complete = true
			return d.buffer, true
		}
		d.complete = true
		return nil, false
	}

	if d.complete {
		return nil, false
	}

	switch {
	case b == slipEsc:
		d.escaped = true
	case d.escaped:
		d.buffer = append(d.buffer, b+1)
		d.escaped = false
	default:
		d.buffer = append(d.buffer, b)
	}
	return nil, false
}
