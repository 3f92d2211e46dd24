package indicator

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// GPIO implements Indicator using discrete LED pins on the SoC GPIO block.
// Yellow is lit while waiting for a card, green on success, red on failure.
type GPIO struct {
	hw        govattu.Vattu
	greenPin  *uint8
	yellowPin *uint8
	redPin    *uint8
}

// NewGPIO creates a new GPIO-based indicator.
func NewGPIO(greenPin, yellowPin, redPin *uint8) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	g := &GPIO{
		hw:        hw,
		greenPin:  greenPin,
		yellowPin: yellowPin,
		redPin:    redPin,
	}

	for _, pin := range g.pins() {
		hw.PinMode(pin, govattu.ALToutput)
		hw.PinClear(pin)
	}
	return g, nil
}

func (g *GPIO) pins() []uint8 {
	var pins []uint8
	for _, p := range []*uint8{g.greenPin, g.yellowPin, g.redPin} {
		if p != nil {
			pins = append(pins, *p)
		}
	}
	return pins
}

// Idle implements Indicator.Idle.
func (g *GPIO) Idle() {
	g.show(false, false, false)
}

// Waiting implements Indicator.Waiting.
func (g *GPIO) Waiting(*Info) {
	g.show(false, true, false)
}

// Success implements Indicator.Success.
func (g *GPIO) Success(*Info) {
	g.show(true, false, false)
}

// Failure implements Indicator.Failure.
func (g *GPIO) Failure(*Info) {
	g.show(false, false, true)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (g *GPIO) ConnectionLost() {
	g.show(false, true, true)
}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.show(false, false, false)
}

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.show(false, false, false)
	return g.hw.Close()
}

func (g *GPIO) show(green, yellow, red bool) {
	g.set(g.greenPin, green)
	g.set(g.yellowPin, yellow)
	g.set(g.redPin, red)
}

func (g *GPIO) set(pin *uint8, on bool) {
	if pin == nil {
		return
	}
	if on {
		g.hw.PinSet(*pin)
	} else {
		g.hw.PinClear(*pin)
	}
}
