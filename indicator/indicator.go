// Package indicator shows acquisition state on LEDs, neopixels or a screen.
package indicator

import (
	"time"

	"tagkeep/video"
)

// Indicator is the interface for status indicator implementations (LEDs, neopixels, etc).
type Indicator interface {
	// Idle sets the indicator to idle/ready state.
	Idle()

	// Waiting shows that an acquisition is armed and a card is expected.
	Waiting(info *Info)

	// Success shows a completed acquisition.
	Success(info *Info)

	// Failure shows an acquisition that timed out, found nothing or was
	// rejected.
	Failure(info *Info)

	// ConnectionLost sets the indicator to connection lost state.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Info describes what to show. Any field may be empty.
type Info struct {
	Title string
	Label string
	UID   string
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins driven through /dev/gpiomem (nil = not configured)
	GreenPin  *uint8 `yaml:"green_pin"`
	YellowPin *uint8 `yaml:"yellow_pin"`
	RedPin    *uint8 `yaml:"red_pin"`

	// GPIO LED lines driven through the character device (nil = not configured)
	Chip       string `yaml:"chip"` // default "gpiochip0"
	GreenLine  *int   `yaml:"green_line"`
	YellowLine *int   `yaml:"yellow_line"`
	RedLine    *int   `yaml:"red_line"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`

	// Video framebuffer display (true = enabled)
	VideoEnabled bool         `yaml:"video_enabled"`
	Video        video.Config `yaml:"video"`

	// How long a result stays up before returning to idle
	Hold time.Duration `yaml:"hold"`
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if more than one backend is configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	release := func() {
		for _, ind := range indicators {
			ind.Release()
		}
	}

	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		gpio, err := NewGPIO(cfg.GreenPin, cfg.YellowPin, cfg.RedPin)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if cfg.GreenLine != nil || cfg.YellowLine != nil || cfg.RedLine != nil {
		lines, err := NewLines(cfg.Chip, cfg.GreenLine, cfg.YellowLine, cfg.RedLine)
		if err != nil {
			release()
			return nil, err
		}
		indicators = append(indicators, lines)
	}

	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			release()
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if cfg.VideoEnabled {
		if !video.ScreenSupported() {
			release()
			return nil, video.ErrScreenNotCompiled
		}
		vid, err := NewVideo(cfg.Video)
		if err != nil {
			release()
			return nil, err
		}
		indicators = append(indicators, vid)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}
