package gateway

import (
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"

	"btracked-go/binlog"
	"btracked-go/tracking"
)

// reconnectDelay is the fixed pause between failed port-open attempts.
const reconnectDelay = 5 * time.Second

func newReconnectBackoff() backoff.BackOff {
	return backoff.NewConstantBackOff(reconnectDelay)
}

func parityFromString(p string) serial.Parity {
	switch p {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

func stopBitsFromInt(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// SerialSource reads framed beacon packets from a serial port and
// forwards them with non-blocking, drop-on-full semantics, matching
// original_source/base_station/src/source/serial.rs's SerialReader.
// Grounded on banshee-data-velocity.report's go.bug.st/serial usage
// style (serial.Mode / serial.Open), adapted from its line-oriented
// bufio.Scanner read loop to this protocol's byte-at-a-time decoder.
type SerialSource struct {
	path    string
	version int
	opts    SerialOptions
	decoder Decoder
	parser  BeaconPacketParser
	Capture *binlog.CaptureWriter // optional raw-byte mirror
}

// NewSerialSource builds a SerialSource for the given path/options and
// selects the v1 or v2 decoder/parser pair.
func NewSerialSource(path string, version int, opts SerialOptions) (*SerialSource, error) {
	dec, parser, err := decoderAndParser(version)
	if err != nil {
		return nil, err
	}
	return &SerialSource{path: path, version: version, opts: opts, decoder: dec, parser: parser}, nil
}

func decoderAndParser(version int) (Decoder, BeaconPacketParser, error) {
	switch version {
	case 1:
		return NewDecoderV1(), NewBeaconPacketParserV1(), nil
	case 2:
		return NewDecoderV2(), NewBeaconPacketParserV2(), nil
	default:
		return nil, BeaconPacketParser{}, errUnsupportedVersion(version)
	}
}

// Run opens the port and feeds decoded packets to out, retrying every
// reconnectDelay on open failure. On a hard read error it closes the
// port and reopens it; Run returns only once stop is closed.
func (s *SerialSource) Run(out chan<- tracking.BeaconPacket, stop <-chan struct{}) {
	mode := &serial.Mode{
		BaudRate: s.opts.BaudRate,
		DataBits: s.opts.DataBits,
		Parity:   parityFromString(s.opts.Parity),
		StopBits: stopBitsFromInt(s.opts.StopBits),
	}

	bo := newReconnectBackoff()

	for {
		select {
		case <-stop:
			return
		default:
		}

		port, err := serial.Open(s.path, mode)
		if err != nil {
			log.Printf("error: opening serial port %s: %v", s.path, err)
			time.Sleep(bo.NextBackOff())
			continue
		}
		port.SetReadTimeout(60 * time.Second)
		bo.Reset()

		s.readLoop(port, out, stop)
		port.Close()
	}
}

func (s *SerialSource) readLoop(port serial.Port, out chan<- tracking.BeaconPacket, stop <-chan struct{}) {
	buf := make([]byte, 256)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			log.Printf("error: reading from serial port: %v", err)
			return
		}
		if n == 0 {
			log.Printf("warn: 0 bytes read from serial port -- device might be closed")
			continue
		}

		if s.Capture != nil {
			if err := s.Capture.WriteRecord(buf[:n]); err != nil {
				log.Printf("warn: capture write failed: %v", err)
			}
		}

		for _, b := range buf[:n] {
			frame, ok := s.decoder.Next(b)
			if !ok {
				continue
			}
			packet, ok := s.parser.Parse(frame)
			if !ok {
				continue
			}
			select {
			case out <- packet:
			default:
				log.Printf("warn: packet receiver not ready, dropping packet")
			}
		}
	}
}

type unsupportedVersionError int

func (e unsupportedVersionError) Error() string {
	return "gateway: unsupported protocol version"
}

func errUnsupportedVersion(v int) error { return unsupportedVersionError(v) }
