// Package binlog captures the raw byte stream a gateway.Source reads
// into a PCAP-style file, and replays it back, so a field capture can be
// fed through the decode/parse pipeline offline. The record framing
// (24-byte global header, 16-byte per-record header) follows the
// classic PCAP layout; each record's payload is the gateway's raw byte
// stream rather than a UDP datagram, so there is no address/port
// sub-header to carry.
package binlog

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"
)

// pcapMagic identifies the global header, the standard libpcap magic
// number, so existing pcap tooling still recognizes the file.
const pcapMagic = 0xA1B2C3D4

// CaptureWriter appends timestamped raw-byte records to a capture file.
type CaptureWriter struct {
	mu  sync.Mutex
	w   io.Writer
	buf [16]byte
}

// NewCaptureWriter creates (truncating) path and writes the global header.
func NewCaptureWriter(path string) (*CaptureWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cw := &CaptureWriter{w: f}
	if err := cw.writeGlobalHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

func (cw *CaptureWriter) writeGlobalHeader() error {
	var b [24]byte
	binary.LittleEndian.PutUint32(b[0:], pcapMagic)
	binary.LittleEndian.PutUint16(b[4:], 2)      // major
	binary.LittleEndian.PutUint16(b[6:], 4)      // minor
	binary.LittleEndian.PutUint32(b[16:], 65535) // snaplen
	binary.LittleEndian.PutUint32(b[20:], 147)   // link type: user-defined (raw bytes)
	_, err := cw.w.Write(b[:])
	return err
}

// WriteRecord appends one timestamped raw-byte record.
func (cw *CaptureWriter) WriteRecord(data []byte) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	now := time.Now()
	binary.LittleEndian.PutUint32(cw.buf[0:], uint32(now.Unix()))
	binary.LittleEndian.PutUint32(cw.buf[4:], uint32(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(cw.buf[8:], uint32(len(data)))
	binary.LittleEndian.PutUint32(cw.buf[12:], uint32(len(data)))

	if _, err := cw.w.Write(cw.buf[:]); err != nil {
		return err
	}
	_, err := cw.w.Write(data)
	return err
}

// Close releases the underlying file, if any.
func (cw *CaptureWriter) Close() error {
	if c, ok := cw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// TeeReader wraps an io.Reader, mirroring every byte read (as soon as a
// Read call returns) into a CaptureWriter record, capturing a raw byte
// stream without altering its read path. gateway.SerialSource does not
// use it: it writes records through its Capture field directly.
type TeeReader struct {
	r io.Reader
	w *CaptureWriter
}

// NewTeeReader returns a Reader that mirrors reads from r into w.
func NewTeeReader(r io.Reader, w *CaptureWriter) *TeeReader {
	return &TeeReader{r: r, w: w}
}

func (t *TeeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.w.WriteRecord(p[:n]); werr != nil {
			return n, werr
		}
	}
	return n, err
}
