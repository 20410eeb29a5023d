package gateway

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"time"

	"btracked-go/tracking"
)

// reopenDelay is the pause after a file-open error before retrying,
// matching the serial source's reconnect cadence.
const reopenDelay = 5 * time.Second

// FileSource replays a newline-delimited JSON file of BeaconPacket
// records, sleeping between records to preserve their original
// inter-arrival timing.
type FileSource struct {
	path   string
	repeat bool
}

// NewFileSource builds a FileSource for path; if repeat is true, replay
// loops back to the start of file on EOF instead of pausing.
func NewFileSource(path string, repeat bool) *FileSource {
	return &FileSource{path: path, repeat: repeat}
}

// Run opens the file and replays its records to out until stop is
// closed, reconnecting after reopenDelay on open/read error.
func (s *FileSource) Run(out chan<- tracking.BeaconPacket, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := s.replayOnce(out, stop); err != nil {
			log.Printf("error: reading from file %s: %v", s.path, err)
			time.Sleep(reopenDelay)
		}
	}
}

func (s *FileSource) replayOnce(out chan<- tracking.BeaconPacket, stop <-chan struct{}) error {
	f, err := os.Open(s.path)
	if err != nil {
		log.Printf("error: opening file %s: %v", s.path, err)
		time.Sleep(reopenDelay)
		return nil
	}
	defer f.Close()

	var prevTime uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			if s.repeat {
				f.Seek(0, 0)
				prevTime = 0
				scanner = bufio.NewScanner(f)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				continue
			}
			time.Sleep(1 * time.Second)
			continue
		}

		var packet tracking.BeaconPacket
		if err := json.Unmarshal(scanner.Bytes(), &packet); err != nil {
			log.Printf("warn: skipping malformed file-source record: %v", err)
			continue
		}

		if prevTime != 0 && prevTime < packet.TimeMs {
			time.Sleep(time.Duration(packet.TimeMs-prevTime) * time.Millisecond)
		}
		prevTime = packet.TimeMs

		select {
		case out <- packet:
		default:
			log.Printf("warn: packet receiver not ready, dropping packet")
		}
	}
}
