package indicator

import (
	"fmt"
	"log"

	"github.com/warthog618/go-gpiocdev"
)

// Lines implements Indicator using LEDs on GPIO character device lines.
// It uses the same colours as GPIO.
type Lines struct {
	lines  *gpiocdev.Lines
	green  int // index into values, -1 if absent
	yellow int
	red    int
	values []int
}

// NewLines requests the configured lines on chip as outputs, all off.
func NewLines(chip string, green, yellow, red *int) (*Lines, error) {
	if chip == "" {
		chip = "gpiochip0"
	}

	l := &Lines{green: -1, yellow: -1, red: -1}
	var offsets []int
	for _, role := range []struct {
		offset *int
		index  *int
	}{
		{green, &l.green},
		{yellow, &l.yellow},
		{red, &l.red},
	} {
		if role.offset == nil {
			continue
		}
		*role.index = len(offsets)
		offsets = append(offsets, *role.offset)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("no indicator lines configured")
	}

	l.values = make([]int, len(offsets))
	lines, err := gpiocdev.RequestLines(chip, offsets,
		gpiocdev.WithConsumer("tagkeep"),
		gpiocdev.AsOutput(l.values...))
	if err != nil {
		return nil, fmt.Errorf("request lines %v on %s: %w", offsets, chip, err)
	}
	l.lines = lines
	return l, nil
}

// Idle implements Indicator.Idle.
func (l *Lines) Idle() {
	l.show(false, false, false)
}

// Waiting implements Indicator.Waiting.
func (l *Lines) Waiting(*Info) {
	l.show(false, true, false)
}

// Success implements Indicator.Success.
func (l *Lines) Success(*Info) {
	l.show(true, false, false)
}

// Failure implements Indicator.Failure.
func (l *Lines) Failure(*Info) {
	l.show(false, false, true)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (l *Lines) ConnectionLost() {
	l.show(false, true, true)
}

// Shutdown implements Indicator.Shutdown.
func (l *Lines) Shutdown() {
	l.show(false, false, false)
}

// Release implements Indicator.Release.
func (l *Lines) Release() error {
	l.show(false, false, false)
	return l.lines.Close()
}

func (l *Lines) show(green, yellow, red bool) {
	setValue(l.values, l.green, green)
	setValue(l.values, l.yellow, yellow)
	setValue(l.values, l.red, red)
	if err := l.lines.SetValues(l.values); err != nil {
		log.Printf("Set indicator lines: %v", err)
	}
}

func setValue(values []int, index int, on bool) {
	if index < 0 {
		return
	}
	values[index] = 0
	if on {
		values[index] = 1
	}
}
