package coordinator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"tagkeep/registry"
	"tagkeep/uid"
)

// ErrStopped is returned for requests made after the engine exited.
var ErrStopped = errors.New("engine stopped")

// Listener receives coordinator activity. Methods run on the engine
// goroutine and must not block.
type Listener interface {
	Submitted(Pending)
	Finished(Event)
	Deleted(registry.Entry)
}

// Handlers adapts callback functions to Listener. Nil callbacks are skipped.
type Handlers struct {
	OnSubmit func(Pending)
	OnFinish func(Event)
	OnDelete func(registry.Entry)
}

func (h Handlers) Submitted(p Pending) {
	if h.OnSubmit != nil {
		h.OnSubmit(p)
	}
}

func (h Handlers) Finished(ev Event) {
	if h.OnFinish != nil {
		h.OnFinish(ev)
	}
}

func (h Handlers) Deleted(e registry.Entry) {
	if h.OnDelete != nil {
		h.OnDelete(e)
	}
}

// Engine owns a Coordinator and everything behind it. Front-ends post
// requests to it; only the Run goroutine touches the registry, store
// and reader.
type Engine struct {
	coord     *Coordinator
	listeners []Listener
	reqs      chan func()
	done      chan struct{}
}

// NewEngine wraps coord. Listeners are notified in order.
func NewEngine(coord *Coordinator, listeners ...Listener) *Engine {
	return &Engine{
		coord:     coord,
		listeners: listeners,
		reqs:      make(chan func()),
		done:      make(chan struct{}),
	}
}

// Subscribe adds listeners. It must not be called once Run has started.
func (e *Engine) Subscribe(listeners ...Listener) {
	e.listeners = append(e.listeners, listeners...)
}

// Run polls the coordinator once per poll interval and serves requests
// until ctx is cancelled. Each tick advances the coordinator clock by
// exactly one poll interval.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	interval := e.coord.Config().PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Engine polling every %v", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.reqs:
			fn()
		case <-ticker.C:
			for _, ev := range e.coord.Tick(interval) {
				for _, l := range e.listeners {
					l.Finished(ev)
				}
			}
		}
	}
}

// do runs fn on the engine goroutine and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}

	select {
	case e.reqs <- wrapped:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// Submit arms an acquisition and returns its request ID.
func (e *Engine) Submit(ctx context.Context, req Request) (uuid.UUID, error) {
	var id uuid.UUID
	var err error
	if derr := e.do(ctx, func() {
		id, err = e.coord.Submit(req)
		if err != nil {
			return
		}
		p := Pending{RequestID: id, Request: req, Remaining: e.coord.Config().Timeout}
		if st := e.coord.Status(); st.Pending != nil {
			p = *st.Pending
		}
		for _, l := range e.listeners {
			l.Submitted(p)
		}
	}); derr != nil {
		return uuid.Nil, derr
	}
	return id, err
}

// Delete deactivates the record holding id.
func (e *Engine) Delete(ctx context.Context, id uid.ID) (registry.Entry, error) {
	var entry registry.Entry
	var err error
	if derr := e.do(ctx, func() {
		entry, err = e.coord.Delete(id)
		if err != nil {
			return
		}
		for _, l := range e.listeners {
			l.Deleted(entry)
		}
	}); derr != nil {
		return registry.Entry{}, derr
	}
	return entry, err
}

// List returns the active records in slot order.
func (e *Engine) List(ctx context.Context) ([]registry.Entry, error) {
	var entries []registry.Entry
	if err := e.do(ctx, func() { entries = e.coord.List() }); err != nil {
		return nil, err
	}
	return entries, nil
}

// Status returns a snapshot of the coordinator state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := e.do(ctx, func() { st = e.coord.Status() }); err != nil {
		return Status{}, err
	}
	return st, nil
}
