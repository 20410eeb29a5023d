// Package downlink is an optional push feed for tag estimates to legacy
// consumers that expect a UDP/TCP broadcast rather than a pull API or a
// websocket subscription.
package downlink

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"btracked-go/tracking"
)

// Flag is a bitmask selecting which targets receive a given message kind.
type Flag uint32

const (
	FlagPosition Flag = 1 << iota
	FlagWarning
)

type udpTarget struct {
	addr *net.UDPAddr
	flag Flag
}

type tcpTarget struct {
	addr    string
	flag    Flag
	queue   chan []byte
	wg      sync.WaitGroup
	closeCh chan struct{}
}

// Relay fans estimates out to zero or more UDP/TCP targets, each
// filtered by Flag, using a drop-on-full queueing policy for TCP
// targets and best-effort fire-and-forget for UDP.
type Relay struct {
	conn *net.UDPConn
	udps []*udpTarget
	tcps []*tcpTarget
}

// NewRelay opens the shared UDP socket used to send to every UDP target.
func NewRelay() (*Relay, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	return &Relay{conn: conn}, nil
}

// AddUDPTarget registers a UDP destination for messages matching flag.
func (r *Relay) AddUDPTarget(addr string, flag Flag) error {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	r.udps = append(r.udps, &udpTarget{addr: uaddr, flag: flag})
	return nil
}

// AddTCPTarget registers a TCP destination for messages matching flag
// and starts its dedicated sender goroutine.
func (r *Relay) AddTCPTarget(addr string, flag Flag) {
	t := &tcpTarget{addr: addr, flag: flag, queue: make(chan []byte, 1000), closeCh: make(chan struct{})}
	r.tcps = append(r.tcps, t)
	t.wg.Add(1)
	go t.loop()
}

// Close shuts down the shared UDP socket and every TCP target's sender.
func (r *Relay) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
	for _, t := range r.tcps {
		close(t.closeCh)
		t.wg.Wait()
	}
}

// PublishEstimate formats estimate as a length-patched text line and
// sends it to every target whose flag matches FlagPosition.
func (r *Relay) PublishEstimate(instanceName string, estimate tracking.Particle) {
	line := formatEstimate(instanceName, time.Now().UnixMilli(), estimate)
	r.send(line, FlagPosition)
}

// PublishWarning sends a free-text warning line to every FlagWarning target.
func (r *Relay) PublishWarning(msg string) {
	r.send(formatWarning(msg), FlagWarning)
}

func (r *Relay) send(data []byte, flag Flag) {
	if r.conn != nil {
		for _, t := range r.udps {
			if t.flag&flag != 0 {
				if _, err := r.conn.WriteToUDP(data, t.addr); err != nil {
					log.Printf("warn: downlink udp send to %s failed: %v", t.addr, err)
				}
			}
		}
	}
	for _, t := range r.tcps {
		if t.flag&flag != 0 {
			select {
			case t.queue <- data:
			default:
				log.Printf("warn: downlink tcp queue to %s full, dropping", t.addr)
			}
		}
	}
}

// formatEstimate builds a length-patched "display:   ," line from the
// instance name and estimate fields.
func formatEstimate(name string, tsMs int64, p tracking.Particle) []byte {
	t := time.UnixMilli(tsMs)
	timeStr := t.Format("20060102150405.000")
	body := fmt.Sprintf("display:   ,%s,%s,%d,%.2f,%.2f,%.2f\r\n",
		name, timeStr, int(p.Mode), p.Position.X, p.Position.Y, p.Position.Z)
	return patchLength([]byte(body))
}

func formatWarning(msg string) []byte {
	body := fmt.Sprintf("display:   ,%s\r\n", msg)
	return patchLength([]byte(body))
}

// patchLength overwrites the three space-padded digits at offset 8-10
// of the "display:   ," header with the body's decimal length.
func patchLength(b []byte) []byte {
	n := len(b)
	if n >= 100 {
		b[8] = byte('0' + (n / 100))
	}
	b[9] = byte('0' + ((n / 10) % 10))
	b[10] = byte('0' + (n % 10))
	return b
}

func (t *tcpTarget) loop() {
	defer t.wg.Done()
	var conn net.Conn

	connect := func() bool {
		if conn != nil {
			return true
		}
		c, err := net.DialTimeout("tcp", t.addr, 2*time.Second)
		if err != nil {
			return false
		}
		conn = c
		return true
	}

	for {
		select {
		case <-t.closeCh:
			if conn != nil {
				conn.Close()
			}
			return
		case data := <-t.queue:
			if !connect() {
				time.Sleep(500 * time.Millisecond)
				if !connect() {
					continue
				}
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Write(data); err != nil {
				log.Printf("warn: downlink tcp write to %s failed: %v", t.addr, err)
				conn.Close()
				conn = nil
			}
		}
	}
}
