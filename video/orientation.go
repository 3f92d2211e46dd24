// Package video draws acquisition status on a framebuffer display.
package video

import (
	"fmt"

	"golang.org/x/image/math/f64"
)

// Config holds video display configuration.
type Config struct {
	Device   string `yaml:"device"`   // default /dev/fb0
	Font     string `yaml:"font"`     // TrueType font path
	Rotation int    `yaml:"rotation"` // 0, 90, 180, or 270 degrees clockwise
}

const (
	defaultDevice = "/dev/fb0"
	defaultFont   = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"
)

// orientation returns the drawing canvas size for a panel of physW x physH
// pixels mounted at rotation, and the transform from canvas to panel
// coordinates. The transform is nil when no rotation is needed.
func orientation(rotation, physW, physH int) (int, int, *f64.Aff3, error) {
	w, h := float64(physW), float64(physH)
	switch rotation {
	case 0:
		return physW, physH, nil, nil
	case 90:
		return physH, physW, &f64.Aff3{0, -1, w, 1, 0, 0}, nil
	case 180:
		return physW, physH, &f64.Aff3{-1, 0, w, 0, -1, h}, nil
	case 270:
		return physH, physW, &f64.Aff3{0, 1, 0, -1, 0, h}, nil
	default:
		return 0, 0, nil, fmt.Errorf("%w: %d", ErrRotation, rotation)
	}
}

// rgb565 packs 16 bit per channel colour into a 16 bpp framebuffer pixel.
func rgb565(r, g, b uint32) uint16 {
	r5 := uint16(r >> (16 - 5))
	g6 := uint16(g >> (16 - 6))
	b5 := uint16(b >> (16 - 5))
	return (r5 << 11) | (g6 << 5) | b5
}
