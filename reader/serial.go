package reader

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Serial implements TagSource for serial RFID readers using a binary frame.
// Frame: [0x02][0x09][2 bytes][4 byte uid][xor][0x03]
type Serial struct {
	port   *serial.Port
	device string
}

var (
	serialPreamble   = []byte{0x02, 0x09}
	serialTerminator = []byte{0x03}
)

// NewSerial creates a new serial RFID reader.
func NewSerial(device string) (*Serial, error) {
	c := &serial.Config{
		Name:        device,
		Baud:        115200,
		ReadTimeout: time.Second,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	return &Serial{port: port, device: device}, nil
}

// Read implements TagSource.Read for serial readers.
func (s *Serial) Read(ctx context.Context) ([]byte, error) {
	buff := make([]byte, 9)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := s.port.Read(buff)
		if err != nil || n == 0 {
			// timeout, try again
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if tag := parseSerialFrame(buff[:n]); tag != nil {
			return tag, nil
		}
	}
}

// parseSerialFrame returns the 4 byte uid of a valid frame, or nil.
func parseSerialFrame(buff []byte) []byte {
	if len(buff) != 9 {
		return nil
	}
	if !bytes.Equal(buff[0:2], serialPreamble) || !bytes.Equal(buff[8:9], serialTerminator) {
		return nil
	}

	data := buff[1:7]
	xor := data[0]
	for i := 1; i < len(data); i++ {
		xor ^= data[i]
	}
	if xor != buff[7] {
		return nil
	}

	tag := make([]byte, 4)
	copy(tag, data[2:6])
	return tag
}

// Close implements TagSource.Close.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
