package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"btracked-go/tracking"
)

func writeRecords(t *testing.T, records ...tracking.BeaconPacket) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	for _, r := range records {
		data, err := r.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return path
}

func TestFileSourceReplaysRecordsInOrder(t *testing.T) {
	path := writeRecords(t,
		tracking.BeaconPacket{TimeMs: 1000, Sequence: 1},
		tracking.BeaconPacket{TimeMs: 1001, Sequence: 2},
	)

	src := NewFileSource(path, false)
	out := make(chan tracking.BeaconPacket, 4)
	stop := make(chan struct{})
	defer close(stop)

	go src.Run(out, stop)

	for _, wantSeq := range []uint8{1, 2} {
		select {
		case pkt := <-out:
			if pkt.Sequence != wantSeq {
				t.Fatalf("sequence = %d, want %d", pkt.Sequence, wantSeq)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for sequence %d", wantSeq)
		}
	}
}

func TestFileSourcePreservesInterArrivalTiming(t *testing.T) {
	const gapMs = 150
	path := writeRecords(t,
		tracking.BeaconPacket{TimeMs: 1000, Sequence: 1},
		tracking.BeaconPacket{TimeMs: 1000 + gapMs, Sequence: 2},
	)

	src := NewFileSource(path, false)
	out := make(chan tracking.BeaconPacket, 4)
	stop := make(chan struct{})
	defer close(stop)

	go src.Run(out, stop)

	first := <-out
	start := time.Now()
	second := <-out
	elapsed := time.Since(start)

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("got sequences %d, %d, want 1, 2", first.Sequence, second.Sequence)
	}
	if diff := elapsed - gapMs*time.Millisecond; diff > 10*time.Millisecond || diff < -10*time.Millisecond {
		t.Fatalf("inter-arrival gap = %v, want %dms +/- 10ms", elapsed, gapMs)
	}
}

func TestFileSourceRepeatsOnEOF(t *testing.T) {
	path := writeRecords(t, tracking.BeaconPacket{TimeMs: 1, Sequence: 9})

	src := NewFileSource(path, true)
	out := make(chan tracking.BeaconPacket, 4)
	stop := make(chan struct{})
	defer close(stop)

	go src.Run(out, stop)

	seen := 0
	deadline := time.After(3 * time.Second)
	for seen < 2 {
		select {
		case pkt := <-out:
			if pkt.Sequence != 9 {
				t.Fatalf("sequence = %d, want 9", pkt.Sequence)
			}
			seen++
		case <-deadline:
			t.Fatalf("timed out after seeing the record %d time(s), want at least 2 (repeat=true)", seen)
		}
	}
}
