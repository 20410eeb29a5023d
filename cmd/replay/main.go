// Command replay re-plays a binlog capture through the gateway decode
// and parse pipeline, printing each resolved beacon packet as JSON
//. It preserves the capture's original
// inter-arrival timing the same way gateway.FileSource does for a
// recorded packet log.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"btracked-go/binlog"
	"btracked-go/gateway"
)

func main() {
	path := flag.String("capture", "", "binlog capture file to replay")
	version := flag.Int("version", 1, "wire protocol version (1 or 2)")
	maxGap := flag.Duration("max-gap", 5*time.Second, "cap on inter-record sleep")
	flag.Parse()

	if *path == "" {
		log.Fatal("--capture is required")
	}

	var decoder gateway.Decoder
	var parser gateway.BeaconPacketParser
	switch *version {
	case 1:
		decoder, parser = gateway.NewDecoderV1(), gateway.NewBeaconPacketParserV1()
	case 2:
		decoder, parser = gateway.NewDecoderV2(), gateway.NewBeaconPacketParserV2()
	default:
		log.Fatalf("unsupported gateway version %d", *version)
	}

	frames := make(chan []byte, 64)
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		defer close(frames)
		done <- binlog.Replay(*path, frames, stop, *maxGap)
	}()

	enc := json.NewEncoder(os.Stdout)

	for data := range frames {
		for _, b := range data {
			frame, ok := decoder.Next(b)
			if !ok {
				continue
			}
			pkt, ok := parser.Parse(frame)
			if !ok {
				continue
			}
			if err := enc.Encode(pkt); err != nil {
				log.Printf("warn: encode packet: %v", err)
			}
		}
	}

	if err := <-done; err != nil {
		log.Fatalf("replay: %v", err)
	}
}
