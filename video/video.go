//go:build screen

package video

import (
	"encoding/binary"
	"fmt"
	"image"
	"log"
	"os"
	"sync"

	"github.com/d21d3q/framebuffer"
	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ScreenSupported returns whether screen support is compiled in.
func ScreenSupported() bool {
	return true
}

// Display draws status screens on a 16 bpp framebuffer.
type Display struct {
	mu sync.Mutex

	dc              *gg.Context
	canvas          *image.RGBA // what gg draws on, in display orientation
	panel           *image.RGBA // canvas rotated to the panel, nil if unrotated
	s2d             *f64.Aff3
	pixBuffer       []byte
	backBuffer      []byte
	width           int // canvas size
	height          int
	physWidth       int
	physHeight      int
	lineLengthBytes int
	font            string
	initialized     bool
}

// New opens the framebuffer described by cfg.
func New(cfg Config) (*Display, error) {
	v := &Display{font: cfg.Font}
	if v.font == "" {
		v.font = defaultFont
	}
	device := cfg.Device
	if device == "" {
		device = defaultDevice
	}
	if err := v.init(device, cfg.Rotation); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Display) init(device string, rotation int) error {
	fbLowLevel, err := framebuffer.OpenFrameBuffer(device, os.O_RDWR)
	if err != nil {
		return fmt.Errorf("open framebuffer: %w", err)
	}

	varInfo, err := fbLowLevel.VarScreenInfo()
	if err != nil {
		return fmt.Errorf("get variable screen info: %w", err)
	}
	fixedInfo, err := fbLowLevel.FixScreenInfo()
	if err != nil {
		return fmt.Errorf("get fixed screen info: %w", err)
	}
	if varInfo.BitsPerPixel != 16 {
		return fmt.Errorf("framebuffer %s: %d bpp not supported, want 16", device, varInfo.BitsPerPixel)
	}

	v.pixBuffer, err = fbLowLevel.Pixels()
	if err != nil {
		return fmt.Errorf("get pixel data: %w", err)
	}

	v.physWidth = int(varInfo.XRes)
	v.physHeight = int(varInfo.YRes)
	v.lineLengthBytes = int(fixedInfo.LineLength)
	v.backBuffer = make([]byte, v.physHeight*v.lineLengthBytes)

	v.width, v.height, v.s2d, err = orientation(rotation, v.physWidth, v.physHeight)
	if err != nil {
		return err
	}

	log.Printf("Video: framebuffer %dx%d, %d bpp, stride %d bytes, rotation %d",
		v.physWidth, v.physHeight, varInfo.BitsPerPixel, v.lineLengthBytes, rotation)

	v.canvas = image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	if v.s2d != nil {
		v.panel = image.NewRGBA(image.Rect(0, 0, v.physWidth, v.physHeight))
	}
	v.dc = gg.NewContextForRGBA(v.canvas)
	v.initialized = true

	v.clear()
	return nil
}

func (v *Display) clear() {
	for i := range v.pixBuffer {
		v.pixBuffer[i] = 0
	}
}

// update converts the canvas to RGB565 and copies it to the framebuffer.
func (v *Display) update() {
	if !v.initialized {
		return
	}

	src := v.canvas
	if v.s2d != nil {
		draw.NearestNeighbor.Transform(v.panel, *v.s2d, v.canvas, v.canvas.Bounds(), draw.Src, nil)
		src = v.panel
	}

	for y := 0; y < v.physHeight; y++ {
		for x := 0; x < v.physWidth; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			fbIdx := (y * v.lineLengthBytes) + (x * 2)
			if fbIdx+1 < len(v.backBuffer) {
				binary.LittleEndian.PutUint16(v.backBuffer[fbIdx:], rgb565(r, g, b))
			}
		}
	}
	copy(v.pixBuffer, v.backBuffer)
}

func (v *Display) setFontSize(size int) {
	if err := v.dc.LoadFontFace(v.font, float64(size)); err != nil {
		log.Printf("Video: failed to load font: %v", err)
	}
}

func (v *Display) drawCentered(text string, y float64, r, g, b float64) {
	v.dc.SetRGB(r, g, b)
	v.dc.DrawStringAnchored(text, float64(v.width/2), y, 0.5, 0.5)
}

func (v *Display) fill(r, g, b float64) {
	v.dc.SetRGB(r, g, b)
	v.dc.DrawRectangle(0, 0, float64(v.width), float64(v.height))
	v.dc.Fill()
}

// card draws a title with an optional label and identifier below it.
func (v *Display) card(title, label, uid string, fg float64) {
	y := float64(v.height/2) - 40
	v.setFontSize(64)
	v.drawCentered(title, y, fg, fg, fg)

	if label != "" {
		v.setFontSize(48)
		v.drawCentered(label, y+70, fg, fg, fg)
	}
	if uid != "" {
		v.setFontSize(28)
		v.drawCentered(uid, y+125, fg, fg, fg)
	}
	v.update()
}

// Idle shows the ready screen.
func (v *Display) Idle() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.fill(0, 0.3, 0)
	v.setFontSize(64)
	v.drawCentered("Ready", float64(v.height/2), 1, 1, 1)
	v.update()
}

// Waiting asks for a card.
func (v *Display) Waiting(title, label string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.fill(0.7, 0.7, 0)
	v.card(title, label, "", 0)
}

// Success shows a completed acquisition.
func (v *Display) Success(title, label, uid string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.fill(0, 0.7, 0)
	v.card(title, label, uid, 1)
}

// Failure shows a failed acquisition.
func (v *Display) Failure(title, label, uid string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.fill(0.7, 0, 0)
	v.card(title, label, uid, 1)
}

// ConnectionLost shows the broker is unreachable.
func (v *Display) ConnectionLost() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.fill(0.5, 0.3, 0)
	v.setFontSize(64)
	v.drawCentered("Connection Lost", float64(v.height/2), 1, 1, 1)
	v.update()
}

// Shutdown blanks the screen.
func (v *Display) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.clear()
}

// Release blanks the screen and stops drawing.
func (v *Display) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clear()
	v.initialized = false
	return nil
}

// Width returns the canvas width.
func (v *Display) Width() int {
	return v.width
}

// Height returns the canvas height.
func (v *Display) Height() int {
	return v.height
}
