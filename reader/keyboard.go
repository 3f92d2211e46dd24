package reader

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/kenshaw/evdev"
)

// Keyboard implements TagSource for USB keyboard-style RFID readers
// that output digits followed by Enter.
type Keyboard struct {
	device    *evdev.Evdev
	numDigits int  // expected number of digits (0 = any)
	isHex     bool // true for hex input, false for decimal
	format    string
}

// NewKeyboard creates a new keyboard reader on the specified input device.
// Format specifies the input format: "10h" (10 hex digits), "10d" (10 decimal), "8h", "8d", etc.
// If format is empty, defaults to "10h".
func NewKeyboard(device string, format string) (*Keyboard, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", device, err)
	}

	log.Printf("Opened keyboard device: %s", dev.Name())
	log.Printf("Vendor: 0x%04x, Product: 0x%04x", dev.ID().Vendor, dev.ID().Product)

	numDigits, isHex := parseKeyboardFormat(format)
	if format == "" {
		format = "10h"
	}

	base := "hex"
	if !isHex {
		base = "decimal"
	}
	log.Printf("Keyboard reader format: %s (%d %s digits)", format, numDigits, base)

	return &Keyboard{
		device:    dev,
		numDigits: numDigits,
		isHex:     isHex,
		format:    format,
	}, nil
}

// parseKeyboardFormat parses "10h", "8d" or a bare digit count (hex).
func parseKeyboardFormat(format string) (int, bool) {
	if format == "" {
		format = "10h"
	}
	format = strings.ToLower(format)

	switch {
	case strings.HasSuffix(format, "h"):
		n, _ := strconv.Atoi(strings.TrimSuffix(format, "h"))
		return n, true
	case strings.HasSuffix(format, "d"):
		n, _ := strconv.Atoi(strings.TrimSuffix(format, "d"))
		return n, false
	default:
		n, _ := strconv.Atoi(format)
		return n, true
	}
}

// Read implements TagSource.Read for keyboard readers.
// Reads digits until Enter is pressed, then parses according to configured format.
func (k *Keyboard) Read(ctx context.Context) ([]byte, error) {
	ch := k.device.Poll(ctx)
	var strbuf string

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event := <-ch:
			if event == nil {
				return nil, fmt.Errorf("keyboard device closed")
			}

			switch event.Type.(type) {
			case evdev.KeyType:
				if event.Value != 1 {
					continue
				}

				if event.Type == evdev.KeyEnter {
					if strbuf == "" {
						continue
					}
					tag, err := k.decode(strbuf)
					strbuf = ""
					if err != nil {
						log.Printf("Bad badge: %v", err)
						continue
					}
					return tag, nil
				}

				strbuf += evdev.KeyType(event.Code).String()
			}
		}
	}
}

// decode converts a typed badge line into uid bytes. Hex lines map digit
// pairs to bytes; decimal lines are the 32 bit card number, big endian.
func (k *Keyboard) decode(line string) ([]byte, error) {
	if k.numDigits > 0 && len(line) != k.numDigits {
		return nil, fmt.Errorf("expected %d digits, got %d (%q)", k.numDigits, len(line), line)
	}

	if k.isHex {
		if len(line)%2 != 0 {
			line = "0" + line
		}
		raw, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("badge line %q: %w", line, err)
		}
		return raw, nil
	}

	number, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("badge line %q: %w", line, err)
	}
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, uint32(number&0xffffffff))
	return raw, nil
}

// Close implements TagSource.Close.
func (k *Keyboard) Close() error {
	if k.device == nil {
		return nil
	}
	return k.device.Close()
}
