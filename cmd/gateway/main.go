// Command gateway is the base-station ingest binary: it reads framed
// beacon packets from a serial port or a replay file (per config.toml's
// [source] table) and forwards them to the configured destinations.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"btracked-go/binlog"
	"btracked-go/gateway"
	"btracked-go/tracking"
	"btracked-go/upload"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config.toml")
	capturePath := flag.String("capture", "", "optional binlog capture file for the raw byte stream")
	flag.Parse()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	log.Printf("gateway starting, source=%s log=%s", cfg.Source.Type, cfg.Log)

	var capture *binlog.CaptureWriter
	if *capturePath != "" {
		capture, err = binlog.NewCaptureWriter(*capturePath)
		if err != nil {
			log.Fatalf("opening capture file: %v", err)
		}
		defer capture.Close()
		log.Printf("mirroring raw byte stream to %s", *capturePath)
	}

	packets := make(chan tracking.BeaconPacket, 256)
	stop := make(chan struct{})

	switch cfg.Source.Type {
	case "serial":
		src, err := gateway.NewSerialSource(cfg.Source.Path, cfg.Source.Version, cfg.Source.Serial())
		if err != nil {
			log.Fatalf("building serial source: %v", err)
		}
		src.Capture = capture
		go src.Run(packets, stop)
	case "file":
		src := gateway.NewFileSource(cfg.Source.Path, cfg.Source.Repeat)
		go src.Run(packets, stop)
	default:
		log.Fatalf("unsupported source type %q", cfg.Source.Type)
	}

	uploaders := make([]*upload.Uploader, 0, len(cfg.Destination))
	toStdout := false
	for _, dest := range cfg.Destination {
		switch dest.Type {
		case "http":
			u, err := upload.NewUploader(upload.Config{
				Endpoint:         dest.Endpoint,
				HTTPProxy:        dest.HTTPProxy,
				HTTPSProxy:       dest.HTTPSProxy,
				IdentityCert:     dest.IdentityCert,
				IdentityCertPass: dest.IdentityCertPass,
				RootCerts:        dest.RootCerts,
				Timeout:          dest.Timeout(),
				RetryAttempts:    dest.RetryAttempts,
				QueueRateMs:      dest.QueueRateMs,
			})
			if err != nil {
				log.Fatalf("building http uploader for %s: %v", dest.Endpoint, err)
			}
			uploaders = append(uploaders, u)
		case "stdout":
			toStdout = true
		default:
			log.Printf("warn: unsupported destination type %q, skipping", dest.Type)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	go func() {
		for p := range packets {
			for _, u := range uploaders {
				u.NewMeasurement(p)
			}
			if toStdout {
				if err := enc.Encode(p); err != nil {
					log.Printf("warn: encoding packet to stdout: %v", err)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down...")
	close(stop)
}
