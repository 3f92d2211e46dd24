package reader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	stx = 0x02
	etx = 0x03
)

// Wiegand implements TagSource for ASCII framed 125 kHz readers
// (RDM6300 style): STX, ten hex digits of card data, two hex digits of
// XOR checksum, ETX.
type Wiegand struct {
	port serial.Port
}

// NewWiegand creates a new Wiegand reader on the specified serial port.
func NewWiegand(device string, baud int) (*Wiegand, error) {
	if baud == 0 {
		baud = 9600
	}

	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	_ = p.SetReadTimeout(50 * time.Millisecond)

	w := &Wiegand{port: p}
	w.flush()
	return w, nil
}

// Read implements TagSource.Read for Wiegand readers.
func (w *Wiegand) Read(ctx context.Context) ([]byte, error) {
	if w.port == nil {
		return nil, errors.New("port not initialized")
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tag, err := w.readFrame()
		if err != nil {
			return nil, err
		}
		if tag != nil {
			return tag, nil
		}
		// No data, brief sleep before retry
		time.Sleep(100 * time.Millisecond)
	}
}

// readFrame attempts to read a single card frame.
func (w *Wiegand) readFrame() ([]byte, error) {
	first := make([]byte, 1)
	n, err := w.port.Read(first)
	if err != nil {
		return nil, fmt.Errorf("read STX: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	if first[0] != stx {
		w.flush()
		return nil, nil
	}

	var body strings.Builder
	buf := make([]byte, 1)

	for {
		n, err := w.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if n == 0 {
			w.flush()
			return nil, nil
		}
		if buf[0] == etx {
			break
		}
		body.WriteByte(buf[0])
	}

	return parseWiegandBody(body.String())
}

// parseWiegandBody validates the checksum and returns the five data bytes.
func parseWiegandBody(s string) ([]byte, error) {
	if len(s) != 12 {
		return nil, fmt.Errorf("frame body %q: want 12 hex digits", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("frame body %q: %w", s, err)
	}

	var checksum byte
	for _, b := range raw[:5] {
		checksum ^= b
	}
	if checksum != raw[5] {
		return nil, fmt.Errorf("frame %q: checksum %02X, want %02X", s, raw[5], checksum)
	}
	return raw[:5], nil
}

// Close implements TagSource.Close.
func (w *Wiegand) Close() error {
	if w.port == nil {
		return nil
	}
	return w.port.Close()
}

func (w *Wiegand) flush() {
	if w.port == nil {
		return
	}
	_ = w.port.SetReadTimeout(10 * time.Millisecond)
	defer func() {
		_ = w.port.SetReadTimeout(50 * time.Millisecond)
	}()

	tmp := make([]byte, 64)
	for {
		n, err := w.port.Read(tmp)
		if err != nil || n == 0 {
			return
		}
	}
}
