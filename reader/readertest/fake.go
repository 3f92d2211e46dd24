// Package readertest provides a scripted reader for tests.
package readertest

import (
	"fmt"
	"sync"

	"tagkeep/reader"
	"tagkeep/uid"
)

// Fake is a reader.Reader whose card field is set by the test.
type Fake struct {
	mu       sync.Mutex
	card     *uid.ID
	readErr  error
	reads    int
	sessions int
	closed   bool
}

var _ reader.Reader = (*Fake)(nil)

// Present places a card in the field.
func (f *Fake) Present(id uid.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.card = &id
	f.readErr = nil
}

// PresentUnreadable places a card whose serial read fails with err.
func (f *Fake) PresentUnreadable(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero uid.ID
	f.card = &zero
	f.readErr = err
}

// Remove empties the field.
func (f *Fake) Remove() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.card = nil
	f.readErr = nil
}

// CardPresent implements reader.Reader.
func (f *Fake) CardPresent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.card != nil
}

// ReadSerial implements reader.Reader.
func (f *Fake) ReadSerial() (uid.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.card == nil {
		return uid.ID{}, fmt.Errorf("%w: no card", reader.ErrRead)
	}
	if f.readErr != nil {
		return uid.ID{}, fmt.Errorf("%w: %v", reader.ErrRead, f.readErr)
	}
	return *f.card, nil
}

// EndSession implements reader.Reader. Like a halted card, the card
// leaves the field until presented again.
func (f *Fake) EndSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	f.card = nil
	f.readErr = nil
}

// Close implements reader.Reader.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Reads returns how many times ReadSerial was called.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Sessions returns how many sessions were ended.
func (f *Fake) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
