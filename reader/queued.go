package reader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tagkeep/uid"
)

// Queued adapts a blocking TagSource to the polled Reader interface.
// A background goroutine reads tags; the most recent unread one is held
// until the engine polls for it.
type Queued struct {
	src     TagSource
	pending chan []byte
	current []byte
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewQueued starts reading from src.
func NewQueued(src TagSource) *Queued {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queued{
		src:     src,
		pending: make(chan []byte, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go q.listen(ctx)
	return q
}

func (q *Queued) listen(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := q.src.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Printf("Read tag: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(raw) == 0 {
			continue
		}

		// keep only the newest tag
		select {
		case <-q.pending:
		default:
		}
		q.pending <- raw
	}
}

// CardPresent implements Reader.CardPresent.
func (q *Queued) CardPresent() bool {
	if q.current != nil {
		return true
	}
	select {
	case raw := <-q.pending:
		q.current = raw
		return true
	default:
		return false
	}
}

// ReadSerial implements Reader.ReadSerial.
func (q *Queued) ReadSerial() (uid.ID, error) {
	if q.current == nil {
		return uid.ID{}, fmt.Errorf("%w: no card", ErrRead)
	}
	id, err := uid.New(q.current)
	if err != nil {
		return uid.ID{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return id, nil
}

// EndSession implements Reader.EndSession.
func (q *Queued) EndSession() {
	q.current = nil
}

// Discard implements Discarder. Tags read before the call are dropped.
func (q *Queued) Discard() {
	q.current = nil
	select {
	case <-q.pending:
	default:
	}
}

// Close stops the listener and closes the source.
func (q *Queued) Close() error {
	q.cancel()
	err := q.src.Close()
	<-q.done
	return err
}
