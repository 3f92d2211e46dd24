// Package label prints an item sticker on a Dymo LabelWriter when a card
// is registered.
package label

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"tagkeep/coordinator"
	"tagkeep/registry"
)

// Config holds label printer settings. An empty Device disables printing.
type Config struct {
	Device       string `yaml:"device"`         // e.g. /dev/usb/lp0
	Font         string `yaml:"font"`           // TrueType font path
	Template     string `yaml:"template"`       // optional PNG drawn first
	BytesPerLine int    `yaml:"bytes_per_line"` // print head width / 8
	Lines        int    `yaml:"lines"`          // label length in dots
}

// Printer renders and prints labels.
type Printer struct {
	device string
	font   string
	tmpl   image.Image
	bpl    int
	lines  int

	mu   sync.Mutex // one job at a time
	now  func() time.Time
	jobs chan job
	done chan struct{}
}

type job struct {
	name string
	uid  string
}

// queueSize bounds labels waiting for the printer.
const queueSize = 16

var _ coordinator.Listener = (*Printer)(nil)

// New creates a printer. Returns nil if no device is configured.
func New(cfg Config) (*Printer, error) {
	if cfg.Device == "" {
		return nil, nil
	}
	p := &Printer{
		device: cfg.Device,
		font:   cfg.Font,
		bpl:    cfg.BytesPerLine,
		lines:  cfg.Lines,
		now:    time.Now,
	}
	if p.bpl == 0 {
		p.bpl = 38
	}
	if p.lines == 0 {
		p.lines = 960
	}
	if p.bpl > 255 || p.lines > 0xFFFF {
		return nil, fmt.Errorf("label geometry %d bytes x %d lines out of range", p.bpl, p.lines)
	}
	if cfg.Template != "" {
		im, err := gg.LoadPNG(cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("load label template: %w", err)
		}
		p.tmpl = im
	}

	p.jobs = make(chan job, queueSize)
	p.done = make(chan struct{})
	go p.run()
	return p, nil
}

// run prints queued labels one after another in arrival order.
func (p *Printer) run() {
	defer close(p.done)
	for j := range p.jobs {
		if err := p.Print(p.Render(j.name, j.uid)); err != nil {
			log.Printf("Print label for %s: %v", j.uid, err)
			continue
		}
		log.Printf("Printed label %q", j.name)
	}
}

// Close waits for queued labels to print and stops the worker.
func (p *Printer) Close() error {
	close(p.jobs)
	<-p.done
	return nil
}

// Render draws the label for an item. The label is drawn rotated: width
// runs along the tape.
func (p *Printer) Render(name, uid string) *gg.Context {
	width := p.lines
	height := p.bpl * 8
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)

	offset := 0.0
	if p.tmpl != nil {
		dc.DrawImage(p.tmpl, 0, 0)
		offset = 100
	}
	center := float64(width/2) + offset

	p.setFont(dc, 84)
	dc.DrawStringAnchored(name, center, float64(height)*0.35, 0.5, 0.5)

	p.setFont(dc, 36)
	dc.DrawStringAnchored(uid, center, float64(height)*0.65, 0.5, 0.5)

	p.setFont(dc, 20)
	dc.DrawStringAnchored(fmt.Sprintf("Registered %s", p.now().Format("Mon, 02-Jan-2006 15:04")),
		center, float64(height)*0.85, 0.5, 0.5)

	dc.SetLineWidth(2)
	dc.DrawRectangle(10, 10, float64(width-20), float64(height-20))
	dc.Stroke()
	return dc
}

func (p *Printer) setFont(dc *gg.Context, size float64) {
	if p.font == "" {
		return
	}
	if err := dc.LoadFontFace(p.font, size); err != nil {
		log.Printf("Label font: %v", err)
	}
}

// Print sends a rendered label to the printer.
func (p *Printer) Print(dc *gg.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.device, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open printer: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(encode(dc.Image(), p.bpl)); err != nil {
		return fmt.Errorf("write label: %w", err)
	}
	return nil
}

// encode converts img to the LabelWriter raster stream: set bytes per
// line, set label length, one SYN-prefixed line per column, form feed.
func encode(img image.Image, bpl int) []byte {
	b := img.Bounds()
	lines := b.Dx()

	var buf bytes.Buffer
	buf.Write([]byte{27, 'D', byte(bpl)})
	buf.Write([]byte{27, 'L', byte(lines >> 8), byte(lines)})

	for x := b.Min.X; x < b.Max.X; x++ {
		buf.WriteByte(0x16)
		for n := 0; n < bpl; n++ {
			var data byte
			top := b.Max.Y - 8*(n+1)
			for i := 0; i < 8; i++ {
				if dark(img, x, top+i) {
					data |= 1 << i
				}
			}
			buf.WriteByte(data)
		}
	}
	buf.Write([]byte{27, 'E'})
	return buf.Bytes()
}

func dark(img image.Image, x, y int) bool {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return false
	}
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < 0x80
}

// Submitted implements coordinator.Listener.
func (p *Printer) Submitted(coordinator.Pending) {}

// Deleted implements coordinator.Listener.
func (p *Printer) Deleted(registry.Entry) {}

// Finished implements coordinator.Listener. A label is queued for every
// successful registration. Must not be called after Close.
func (p *Printer) Finished(ev coordinator.Event) {
	if ev.Intent != coordinator.IntentRegister || ev.Outcome != coordinator.Success {
		return
	}
	j := job{name: ev.Entry.Label, uid: ev.Entry.ID.String()}
	select {
	case p.jobs <- j:
	default:
		log.Printf("Label queue full, dropping %q", j.name)
	}
}
