package indicator

import (
	"sync"
	"time"

	"tagkeep/coordinator"
	"tagkeep/registry"
)

// DefaultHold is how long a result is shown when Config.Hold is unset.
const DefaultHold = 3 * time.Second

// Feedback drives an Indicator from engine activity. Results are shown
// for the hold time, then the indicator returns to idle, or to the
// connection lost state while the broker is unreachable.
type Feedback struct {
	ind  Indicator
	hold time.Duration

	mu        sync.Mutex
	connected bool
	timer     *time.Timer
	gen       int // bumped on every state change so stale timers do nothing
}

var _ coordinator.Listener = (*Feedback)(nil)

// NewFeedback wraps ind. The indicator starts in the connection lost state.
func NewFeedback(ind Indicator, hold time.Duration) *Feedback {
	if hold <= 0 {
		hold = DefaultHold
	}
	ind.ConnectionLost()
	return &Feedback{ind: ind, hold: hold}
}

// Connected marks the uplink as up and shows idle unless something else
// is on display.
func (f *Feedback) Connected() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	if f.timer == nil {
		f.gen++
		f.ind.Idle()
	}
}

// Disconnected marks the uplink as down.
func (f *Feedback) Disconnected() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.stop()
	f.ind.ConnectionLost()
}

// Submitted implements coordinator.Listener.
func (f *Feedback) Submitted(p coordinator.Pending) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stop()
	f.ind.Waiting(&Info{
		Title: waitingTitle(p.Request.Intent),
		Label: p.Request.Label,
	})
}

// Finished implements coordinator.Listener.
func (f *Feedback) Finished(ev coordinator.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stop()

	info := &Info{Title: resultTitle(ev), Label: ev.Entry.Label, UID: ev.Entry.ID.String()}
	if ev.Outcome == coordinator.Success {
		f.ind.Success(info)
	} else {
		f.ind.Failure(info)
	}

	gen := f.gen
	f.timer = time.AfterFunc(f.hold, func() { f.expire(gen) })
}

// Deleted implements coordinator.Listener.
func (f *Feedback) Deleted(registry.Entry) {}

// Shutdown shows the shutdown state and stops any pending timer.
func (f *Feedback) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stop()
	f.ind.Shutdown()
}

func (f *Feedback) expire(gen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return
	}
	f.timer = nil
	f.gen++
	if f.connected {
		f.ind.Idle()
	} else {
		f.ind.ConnectionLost()
	}
}

// stop cancels a pending return to idle. Caller holds mu.
func (f *Feedback) stop() {
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func waitingTitle(intent coordinator.Intent) string {
	switch intent {
	case coordinator.IntentRegister:
		return "Present card to register"
	case coordinator.IntentRename:
		return "Present card to rename"
	default:
		return "Present card"
	}
}

func resultTitle(ev coordinator.Event) string {
	switch ev.Outcome {
	case coordinator.Success:
		switch ev.Intent {
		case coordinator.IntentRegister:
			return "Registered"
		case coordinator.IntentRename:
			return "Renamed"
		default:
			return "Identified"
		}
	case coordinator.NotFound:
		return "Unknown card"
	case coordinator.AlreadyRegistered:
		return "Already registered"
	case coordinator.Timeout:
		return "Timed out"
	case coordinator.PersistenceFailed:
		return "Save failed"
	default:
		return "Rejected"
	}
}
