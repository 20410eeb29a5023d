package upload

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"btracked-go/tracking"
)

func TestUploaderRetriesAttemptsPlusOneUnconditionally(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u, err := NewUploader(Config{
		Endpoint:      srv.URL,
		RetryAttempts: 2,
		QueueRateMs:   20,
		Timeout:       time.Second,
	})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	u.NewMeasurement(tracking.BeaconPacket{Sequence: 1})

	deadline := time.After(2 * time.Second)
	for {
		if atomic.LoadInt32(&requests) >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("got %d requests after timeout, want at least 3 (retryAttempts=2 -> 3 tries)", atomic.LoadInt32(&requests))
		case <-time.After(10 * time.Millisecond):
		}
	}

	// No further requests should arrive once the buffer is cleared after
	// the batch's one and only round of retries.
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Fatalf("got %d requests, want exactly 3 (buffer cleared after retry loop, not resent)", got)
	}
}

func TestUploaderSendsOnSuccess(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := NewUploader(Config{
		Endpoint:    srv.URL,
		QueueRateMs: 20,
		Timeout:     time.Second,
	})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	u.NewMeasurement(tracking.BeaconPacket{Sequence: 1})

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&requests) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the upload request")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestNewMeasurementDropsWhenQueueFull(t *testing.T) {
	// Built directly (no sender goroutine running) so the bounded channel
	// itself is the only thing backing NewMeasurement: a running sender
	// drains s.in into its buffer continuously regardless of QueueRateMs
	// (that rate only gates the POST ticker, not channel reception), so
	// routing this through NewUploader would race the consumer instead of
	// reliably exercising drop-on-full.
	u := &Uploader{in: make(chan tracking.BeaconPacket, queueCapacity)}

	for i := 0; i < queueCapacity; i++ {
		if !u.NewMeasurement(tracking.BeaconPacket{Sequence: uint8(i)}) {
			t.Fatalf("enqueue %d unexpectedly dropped before the channel was full", i)
		}
	}
	if u.NewMeasurement(tracking.BeaconPacket{Sequence: 255}) {
		t.Fatal("expected enqueue past queueCapacity to report dropped (false)")
	}
}
