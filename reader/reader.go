package reader

import (
	"context"
	"errors"
	"fmt"

	"tagkeep/uid"
)

// ErrRead wraps every failure to read a card that was reported present.
var ErrRead = errors.New("card read failed")

// Reader is the polled card reader capability. All methods are
// non-blocking and are only called from the acquisition engine.
type Reader interface {
	// CardPresent reports whether a new card is in the field.
	CardPresent() bool

	// ReadSerial reads the identifier of the card reported present.
	ReadSerial() (uid.ID, error)

	// EndSession releases the card (halt, crypto stop) so the next
	// CardPresent only reports a newly presented card.
	EndSession()

	// Close releases any resources held by the reader.
	Close() error
}

// Discarder is implemented by readers that buffer tags seen while no
// acquisition was waiting. Discard drops them so only a card presented
// after the call is reported.
type Discarder interface {
	Discard()
}

// TagSource is implemented by stream readers that block until a tag
// is read or context is cancelled. A return of (nil, nil) means no tag.
type TagSource interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Config holds common configuration for reader implementations.
type Config struct {
	Type   string `yaml:"type"`   // "mfrc522" (default), "wiegand", "keyboard", "serial", "none"
	Device string `yaml:"device"` // e.g., "/dev/serial0", "/dev/input/event0", "/dev/spidev0.0"
	Baud   int    `yaml:"baud"`   // baud rate for serial devices
	Format string `yaml:"format"` // keyboard digit format, e.g. "8h", "10d"

	SPISpeedHz int    `yaml:"spi_speed_hz"` // mfrc522 SPI clock
	ResetChip  string `yaml:"reset_chip"`   // mfrc522 reset line gpiochip
	ResetPin   *int   `yaml:"reset_pin"`    // mfrc522 reset line offset
}

// New creates a Reader based on the provided configuration.
func New(cfg Config) (Reader, error) {
	var src TagSource
	var err error

	switch cfg.Type {
	case "mfrc522", "":
		m, err := NewMFRC522(cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "none":
		return Noop{}, nil
	case "wiegand":
		src, err = NewWiegand(cfg.Device, cfg.Baud)
	case "keyboard", "10h-kbd":
		src, err = NewKeyboard(cfg.Device, cfg.Format)
	case "serial":
		src, err = NewSerial(cfg.Device)
	default:
		return nil, fmt.Errorf("unknown reader type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewQueued(src), nil
}

// Noop never sees a card.
type Noop struct{}

func (Noop) CardPresent() bool           { return false }
func (Noop) ReadSerial() (uid.ID, error) { return uid.ID{}, ErrRead }
func (Noop) EndSession()                 {}
func (Noop) Close() error                { return nil }
