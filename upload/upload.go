// Package upload implements the batched, retrying HTTP POST of
// measurement arrays to the server, with a bounded producer queue and
// drop-on-full back-pressure.
package upload

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"btracked-go/tracking"
)

// queueCapacity is the bounded channel size between source and sender.
const queueCapacity = 255

// Config mirrors gateway.DestinationConfig's http-relevant fields; kept
// independent of the gateway package so upload has no import-cycle
// dependency on it.
type Config struct {
	Endpoint         string
	HTTPProxy        string
	HTTPSProxy       string
	IdentityCert     string
	IdentityCertPass string
	RootCerts        []string
	Timeout          time.Duration
	RetryAttempts    uint64
	QueueRateMs      uint64
}

// Uploader owns the bounded input channel and a dedicated sender
// goroutine that batches and POSTs measurements. Grounded
// on original_source/base_station/src/dest/http.rs's HttpDestination/
// HttpSender split.
type Uploader struct {
	in chan tracking.BeaconPacket
}

// NewUploader constructs the HTTP client once (proxies, optional PKCS#12
// identity, optional root certs) and starts the sender goroutine.
func NewUploader(cfg Config) (*Uploader, error) {
	client, err := buildClient(cfg)
	if err != nil {
		return nil, err
	}

	in := make(chan tracking.BeaconPacket, queueCapacity)
	s := &sender{client: client, endpoint: cfg.Endpoint, retryAttempts: cfg.RetryAttempts, in: in}

	queueRate := cfg.QueueRateMs
	if queueRate == 0 {
		queueRate = 100
	}
	go s.run(time.Duration(queueRate) * time.Millisecond)

	return &Uploader{in: in}, nil
}

// NewMeasurement enqueues a packet for upload, returning false (and
// logging) if the queue is full — back-pressure is drop-on-full, never
// blocking the producer beyond the queue capacity.
func (u *Uploader) NewMeasurement(p tracking.BeaconPacket) bool {
	select {
	case u.in <- p:
		return true
	default:
		log.Printf("warn: upload queue full, dropping measurement")
		return false
	}
}

type sender struct {
	client        *http.Client
	endpoint      string
	retryAttempts uint64
	in            <-chan tracking.BeaconPacket
	buffer        []tracking.BeaconPacket
}

func (s *sender) run(queueRate time.Duration) {
	ticker := time.NewTicker(queueRate)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-s.in:
			if !ok {
				return
			}
			s.buffer = append(s.buffer, m)
		case <-ticker.C:
			s.trySend()
		}
	}
}

// trySend retries the same payload retryAttempts+1 times unconditionally
// (the buffer is not cleared between attempts) and clears the buffer
// after the loop regardless of outcome — a batch is never retried past
// its last attempt even after a successful send earlier in the loop,
// since every attempt in the loop runs unconditionally (see DESIGN.md's
// Open Question decisions).
func (s *sender) trySend() {
	if len(s.buffer) == 0 {
		return
	}
	log.Printf("debug: trying to send %d measurements", len(s.buffer))

	payload, err := json.Marshal(s.buffer)
	if err != nil {
		log.Printf("error: marshalling measurement batch: %v", err)
		s.buffer = s.buffer[:0]
		return
	}

	var lastErr error
	for i := uint64(0); i < s.retryAttempts+1; i++ {
		lastErr = s.post(payload)
		if lastErr != nil {
			log.Printf("warn: error sending measurement: %v", lastErr)
		}
	}

	s.buffer = s.buffer[:0]
	if lastErr != nil {
		log.Printf("error: measurement batch dropped after retries: %v", lastErr)
	}
}

func (s *sender) post(payload []byte) error {
	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload: server returned status %d", resp.StatusCode)
	}
	return nil
}

// buildClient constructs the shared *http.Client: optional HTTP/HTTPS
// proxies, an optional PKCS#12 client identity (loaded via
// software.sslmate.com/src/go-pkcs12, since crypto/tls has no PKCS#12
// decoder in stdlib), zero or more root certificates (DER if the file
// extension is .der/.DER, else PEM), and the configured timeout.
func buildClient(cfg Config) (*http.Client, error) {
	transport := &http.Transport{}
	tlsConfig := &tls.Config{}

	if cfg.HTTPProxy != "" || cfg.HTTPSProxy != "" {
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && cfg.HTTPSProxy != "" {
				return url.Parse(cfg.HTTPSProxy)
			}
			if cfg.HTTPProxy != "" {
				return url.Parse(cfg.HTTPProxy)
			}
			return nil, nil
		}
	}

	if cfg.IdentityCert != "" {
		if cfg.IdentityCertPass == "" {
			return nil, fmt.Errorf("upload: password for client identity certificate not provided")
		}
		buf, err := os.ReadFile(cfg.IdentityCert)
		if err != nil {
			return nil, fmt.Errorf("upload: reading identity cert: %w", err)
		}
		key, cert, _, err := pkcs12.DecodeChain(buf, cfg.IdentityCertPass)
		if err != nil {
			return nil, fmt.Errorf("upload: decoding PKCS#12 identity: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}}
	}

	if len(cfg.RootCerts) > 0 {
		pool := x509.NewCertPool()
		for _, path := range cfg.RootCerts {
			buf, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("upload: reading root cert %s: %w", path, err)
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".der" {
				cert, err := x509.ParseCertificate(buf)
				if err != nil {
					return nil, fmt.Errorf("upload: parsing DER root cert %s: %w", path, err)
				}
				pool.AddCert(cert)
			} else {
				block, _ := pem.Decode(buf)
				if block == nil {
					return nil, fmt.Errorf("upload: no PEM block in root cert %s", path)
				}
				cert, err := x509.ParseCertificate(block.Bytes)
				if err != nil {
					return nil, fmt.Errorf("upload: parsing PEM root cert %s: %w", path, err)
				}
				pool.AddCert(cert)
			}
		}
		tlsConfig.RootCAs = pool
	}

	transport.TLSClientConfig = tlsConfig

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
