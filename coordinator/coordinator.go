// Package coordinator arbitrates the card reader between front-ends.
//
// At most one acquisition is in flight. A Coordinator is advanced by Tick
// and is not safe for concurrent use; Engine hosts one on a goroutine.
package coordinator

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tagkeep/metrics"
	"tagkeep/reader"
	"tagkeep/registry"
	"tagkeep/uid"
)

var (
	ErrBusy          = errors.New("acquisition already in progress")
	ErrUnknownIntent = errors.New("unknown intent")
)

// Intent is what an acquisition does with the card it reads.
type Intent int

const (
	IntentNone Intent = iota
	IntentRegister
	IntentIdentify
	IntentRename
)

func (i Intent) String() string {
	switch i {
	case IntentNone:
		return "none"
	case IntentRegister:
		return "register"
	case IntentIdentify:
		return "identify"
	case IntentRename:
		return "rename"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// Origin identifies the front-end that raised a request.
type Origin int

const (
	OriginConsole Origin = iota + 1
	OriginHTTP
)

func (o Origin) String() string {
	switch o {
	case OriginConsole:
		return "console"
	case OriginHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Outcome is how an acquisition ended.
type Outcome int

const (
	Success Outcome = iota
	NotFound
	AlreadyRegistered
	Timeout
	Rejected
	PersistenceFailed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case AlreadyRegistered:
		return "already_registered"
	case Timeout:
		return "timeout"
	case Rejected:
		return "rejected"
	case PersistenceFailed:
		return "persistence_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Request asks for one acquisition. Label is used by register and rename.
type Request struct {
	Intent Intent
	Label  string
	Origin Origin
}

// Event reports a finished acquisition.
type Event struct {
	RequestID uuid.UUID
	Intent    Intent
	Origin    Origin
	Outcome   Outcome

	// Entry is the record the outcome refers to: the new or renamed record
	// on success, the existing one for AlreadyRegistered. For NotFound only
	// the identifier is set.
	Entry registry.Entry

	// Err is the reason for Rejected and PersistenceFailed.
	Err error

	Elapsed time.Duration
}

func (e Event) String() string {
	switch e.Outcome {
	case Success:
		return fmt.Sprintf("%s %s: %q (%s)", e.Intent, e.Outcome, e.Entry.Label, e.Entry.ID)
	case AlreadyRegistered:
		return fmt.Sprintf("%s %s: %s is %q", e.Intent, e.Outcome, e.Entry.ID, e.Entry.Label)
	case NotFound:
		return fmt.Sprintf("%s %s: %s", e.Intent, e.Outcome, e.Entry.ID)
	case Rejected, PersistenceFailed:
		return fmt.Sprintf("%s %s: %v", e.Intent, e.Outcome, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Intent, e.Outcome)
	}
}

// Pending describes the acquisition in flight.
type Pending struct {
	RequestID uuid.UUID
	Request   Request
	Remaining time.Duration
}

// Status is a snapshot of the coordinator and registry.
type Status struct {
	Mode     Intent // IntentNone when idle
	Pending  *Pending
	Total    int
	Capacity int

	// LastItem is the label of the last identified card, cleared when an
	// identify finds nothing.
	LastItem string
	Last     *Event
}

// Config holds acquisition timing.
type Config struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RereadGuard  time.Duration `yaml:"reread_guard"` // 0 disables
}

// DefaultConfig returns the timing used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		PollInterval: 100 * time.Millisecond,
		RereadGuard:  time.Second,
	}
}

type pending struct {
	id       uuid.UUID
	req      Request
	started  time.Duration
	deadline time.Duration
}

// Coordinator is the acquisition state machine.
type Coordinator struct {
	reg *registry.Registry
	rdr reader.Reader
	cfg Config

	now     time.Duration // advanced only by Tick
	pending *pending

	lastItem string
	last     *Event

	guardID    uid.ID
	guardUntil time.Duration
}

// New creates an idle coordinator. Zero Timeout and PollInterval take the
// defaults.
func New(reg *registry.Registry, rdr reader.Reader, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RereadGuard < 0 {
		cfg.RereadGuard = 0
	}
	metrics.RegistryItems.Set(float64(reg.Count()))
	return &Coordinator{reg: reg, rdr: rdr, cfg: cfg}
}

// Config returns the timing in use.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Idle reports whether no acquisition is in flight.
func (c *Coordinator) Idle() bool {
	return c.pending == nil
}

// Submit arms an acquisition. Labels are checked before anything else so
// invalid input never reaches the registry. A second request while one is
// pending fails with ErrBusy and leaves the pending one untouched.
func (c *Coordinator) Submit(req Request) (uuid.UUID, error) {
	switch req.Intent {
	case IntentRegister, IntentRename:
		label, err := registry.ValidateLabel(req.Label)
		if err != nil {
			metrics.Submissions.WithLabelValues(req.Origin.String(), "invalid").Inc()
			return uuid.Nil, err
		}
		req.Label = label
	case IntentIdentify:
		req.Label = ""
	default:
		metrics.Submissions.WithLabelValues(req.Origin.String(), "invalid").Inc()
		return uuid.Nil, fmt.Errorf("%w: %d", ErrUnknownIntent, int(req.Intent))
	}

	if c.pending != nil {
		metrics.Submissions.WithLabelValues(req.Origin.String(), "busy").Inc()
		return uuid.Nil, ErrBusy
	}

	// a tag swiped while idle must not complete this request
	if d, ok := c.rdr.(reader.Discarder); ok {
		d.Discard()
	}

	c.pending = &pending{
		id:       uuid.New(),
		req:      req,
		started:  c.now,
		deadline: c.now + c.cfg.Timeout,
	}
	metrics.Submissions.WithLabelValues(req.Origin.String(), "accepted").Inc()
	log.Printf("Awaiting card for %s from %s (%s)", req.Intent, req.Origin, c.pending.id)
	return c.pending.id, nil
}

// Tick advances the clock by elapsed and polls the reader if an
// acquisition is pending. It returns the finished acquisition, if any.
func (c *Coordinator) Tick(elapsed time.Duration) []Event {
	c.now += elapsed
	if c.pending == nil {
		return nil
	}

	if c.rdr.CardPresent() {
		if ev, ok := c.acquire(); ok {
			return []Event{ev}
		}
	}

	if c.now >= c.pending.deadline {
		return []Event{c.finish(Event{Outcome: Timeout})}
	}
	return nil
}

// acquire reads the presented card and resolves the pending intent.
// The reader session is always ended.
func (c *Coordinator) acquire() (Event, bool) {
	defer c.rdr.EndSession()

	id, err := c.rdr.ReadSerial()
	if err != nil {
		metrics.ReadErrors.Inc()
		log.Printf("Read card: %v", err)
		return Event{}, false
	}

	if c.cfg.RereadGuard > 0 && id == c.guardID && c.now < c.guardUntil {
		return Event{}, false
	}

	ev := c.resolve(id)
	c.guardID = id
	c.guardUntil = c.now + c.cfg.RereadGuard
	return c.finish(ev), true
}

func (c *Coordinator) resolve(id uid.ID) Event {
	req := c.pending.req
	existing, found := c.reg.Lookup(id)

	switch req.Intent {
	case IntentRegister:
		if found {
			return Event{Outcome: AlreadyRegistered, Entry: existing}
		}
		slot, err := c.reg.Insert(id, req.Label)
		if err != nil {
			return failure(id, err)
		}
		return c.success(slot)

	case IntentIdentify:
		if !found {
			return Event{Outcome: NotFound, Entry: registry.Entry{Slot: -1, Record: registry.Record{ID: id}}}
		}
		return Event{Outcome: Success, Entry: existing}

	case IntentRename:
		if !found {
			return Event{Outcome: NotFound, Entry: registry.Entry{Slot: -1, Record: registry.Record{ID: id}}}
		}
		if err := c.reg.Rename(existing.Slot, req.Label); err != nil {
			return failure(id, err)
		}
		return c.success(existing.Slot)
	}

	return Event{Outcome: Rejected, Err: ErrUnknownIntent}
}

func (c *Coordinator) success(slot int) Event {
	rec, _ := c.reg.Get(slot)
	return Event{Outcome: Success, Entry: registry.Entry{Slot: slot, Record: rec}}
}

func failure(id uid.ID, err error) Event {
	ev := Event{Err: err, Entry: registry.Entry{Slot: -1, Record: registry.Record{ID: id}}}
	if errors.Is(err, registry.ErrPersistenceFailed) {
		ev.Outcome = PersistenceFailed
	} else {
		ev.Outcome = Rejected
	}
	return ev
}

// finish fills in the request fields of ev and returns to idle.
func (c *Coordinator) finish(ev Event) Event {
	p := c.pending
	c.pending = nil

	ev.RequestID = p.id
	ev.Intent = p.req.Intent
	ev.Origin = p.req.Origin
	ev.Elapsed = c.now - p.started

	if ev.Intent == IntentIdentify {
		switch ev.Outcome {
		case Success:
			c.lastItem = ev.Entry.Label
		case NotFound:
			c.lastItem = ""
		}
	}
	last := ev
	c.last = &last

	metrics.Acquisitions.WithLabelValues(ev.Intent.String(), ev.Outcome.String()).Inc()
	metrics.AcquisitionDuration.WithLabelValues(ev.Intent.String()).Observe(ev.Elapsed.Seconds())
	metrics.RegistryItems.Set(float64(c.reg.Count()))
	log.Printf("Acquisition %s: %s", p.id, ev)
	return ev
}

// Delete deactivates id and returns the record it held. It does not
// touch the reader, so it is allowed while an acquisition is pending.
func (c *Coordinator) Delete(id uid.ID) (registry.Entry, error) {
	entry, ok := c.reg.Lookup(id)
	if !ok {
		return registry.Entry{}, registry.ErrNotFound
	}
	if err := c.reg.Deactivate(id); err != nil {
		return registry.Entry{}, err
	}
	metrics.RegistryItems.Set(float64(c.reg.Count()))
	log.Printf("Deleted %s (%q) from slot %d", id, entry.Label, entry.Slot)
	return entry, nil
}

// List returns the active records in slot order.
func (c *Coordinator) List() []registry.Entry {
	return c.reg.List()
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	st := Status{
		Total:    c.reg.Count(),
		Capacity: c.reg.Capacity(),
		LastItem: c.lastItem,
	}
	if c.pending != nil {
		st.Mode = c.pending.req.Intent
		st.Pending = &Pending{
			RequestID: c.pending.id,
			Request:   c.pending.req,
			Remaining: c.pending.deadline - c.now,
		}
	}
	if c.last != nil {
		last := *c.last
		st.Last = &last
	}
	return st
}
