package indicator

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoConnectionLost = "@2 !150000 001010"
	neoIdle           = "@3 !150000 400000"
	neoWaiting        = "@2 !50000 202000"
	neoSuccess        = "@1 !50000 8000"
	neoFailure        = "@2 !10000 ff"
	neoTerminated     = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	mu   sync.Mutex
	pipe *os.File
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return &Neopixel{pipe: f}, nil
}

// Idle implements Indicator.Idle.
func (n *Neopixel) Idle() {
	n.write(neoIdle)
}

// Waiting implements Indicator.Waiting.
func (n *Neopixel) Waiting(*Info) {
	n.write(neoWaiting)
}

// Success implements Indicator.Success.
func (n *Neopixel) Success(*Info) {
	n.write(neoSuccess)
}

// Failure implements Indicator.Failure.
func (n *Neopixel) Failure(*Info) {
	n.write(neoFailure)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (n *Neopixel) ConnectionLost() {
	n.write(neoConnectionLost)
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() {
	n.write(neoTerminated)
}

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pipe == nil {
		return nil
	}
	err := n.pipe.Close()
	n.pipe = nil
	return err
}

// write sends one command line to the tool.
func (n *Neopixel) write(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pipe == nil {
		return
	}
	if _, err := n.pipe.WriteString(s + "\n"); err != nil {
		log.Printf("Neopixel write: %v", err)
	}
}
