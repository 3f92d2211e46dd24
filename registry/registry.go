// Package registry holds the fixed-capacity table binding tag identifiers to labels.
//
// A Registry is not safe for concurrent use. It is owned by the acquisition
// engine goroutine; everything else receives copies.
package registry

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"tagkeep/uid"
)

// DefaultCapacity is the number of slots in the table.
const DefaultCapacity = 50

// MaxLabelLen is the longest label accepted, in bytes. The stored form
// reserves one more byte for a terminator.
const MaxLabelLen = 31

var (
	ErrInvalidLabel      = errors.New("invalid label")
	ErrDuplicate         = errors.New("identifier already registered")
	ErrFull              = errors.New("registry full")
	ErrNotFound          = errors.New("identifier not found")
	ErrNotActive         = errors.New("slot not active")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrCorrupt           = errors.New("inconsistent table")
)

// Record is one slot of the table.
type Record struct {
	ID     uid.ID
	Label  string
	Active bool
}

// Entry is a record together with the slot it lives in.
type Entry struct {
	Slot int
	Record
}

// Table is a detached copy of every slot, active or not.
type Table struct {
	Records []Record
}

// Count returns the number of active records in t.
func (t Table) Count() int {
	n := 0
	for _, r := range t.Records {
		if r.Active {
			n++
		}
	}
	return n
}

// Saver persists a full table. It is called after every mutation.
type Saver interface {
	Save(Table) error
}

// Registry is the in-memory tag table.
type Registry struct {
	records []Record
	count   int
	saver   Saver
}

// New creates an empty registry. saver may be nil, in which case mutations
// are not persisted.
func New(capacity int, saver Saver) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		records: make([]Record, capacity),
		saver:   saver,
	}
}

// ValidateLabel trims s and checks it can be stored.
func ValidateLabel(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLabel)
	}
	if len(s) > MaxLabelLen {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidLabel, len(s), MaxLabelLen)
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidLabel)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character", ErrInvalidLabel)
		}
	}
	return s, nil
}

// Capacity returns the number of slots.
func (r *Registry) Capacity() int {
	return len(r.records)
}

// Count returns the number of active records.
func (r *Registry) Count() int {
	return r.count
}

// Find returns the slot holding id.
func (r *Registry) Find(id uid.ID) (int, bool) {
	for i, rec := range r.records {
		if rec.Active && rec.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Get returns a copy of the record in slot.
func (r *Registry) Get(slot int) (Record, bool) {
	if slot < 0 || slot >= len(r.records) {
		return Record{}, false
	}
	return r.records[slot], r.records[slot].Active
}

// Lookup finds id and returns a copy of its record.
func (r *Registry) Lookup(id uid.ID) (Entry, bool) {
	slot, ok := r.Find(id)
	if !ok {
		return Entry{}, false
	}
	return Entry{Slot: slot, Record: r.records[slot]}, true
}

// Insert stores id with label in the lowest free slot.
func (r *Registry) Insert(id uid.ID, label string) (int, error) {
	label, err := ValidateLabel(label)
	if err != nil {
		return -1, err
	}
	if id.IsZero() {
		return -1, fmt.Errorf("insert: %w", uid.ErrInvalidLength)
	}
	if _, ok := r.Find(id); ok {
		return -1, ErrDuplicate
	}
	if r.count >= len(r.records) {
		return -1, ErrFull
	}

	slot := -1
	for i := range r.records {
		if !r.records[i].Active {
			slot = i
			break
		}
	}
	if slot < 0 {
		// count says there is room but every slot is active
		return -1, ErrCorrupt
	}

	prev := r.records[slot]
	r.records[slot] = Record{ID: id, Label: label, Active: true}
	r.count++

	err = r.commit(func() {
		r.records[slot] = prev
		r.count--
	})
	if err != nil {
		return -1, err
	}
	return slot, nil
}

// Rename replaces the label of an active slot.
func (r *Registry) Rename(slot int, label string) error {
	label, err := ValidateLabel(label)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= len(r.records) || !r.records[slot].Active {
		return ErrNotActive
	}

	prev := r.records[slot].Label
	r.records[slot].Label = label

	return r.commit(func() { r.records[slot].Label = prev })
}

// Deactivate frees the slot holding id. Other slots do not move.
func (r *Registry) Deactivate(id uid.ID) error {
	slot, ok := r.Find(id)
	if !ok {
		return ErrNotFound
	}

	prev := r.records[slot]
	r.records[slot] = Record{}
	r.count--

	return r.commit(func() {
		r.records[slot] = prev
		r.count++
	})
}

// List returns the active records in slot order.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, r.count)
	for i, rec := range r.records {
		if rec.Active {
			out = append(out, Entry{Slot: i, Record: rec})
		}
	}
	return out
}

// Snapshot returns a copy of every slot.
func (r *Registry) Snapshot() Table {
	recs := make([]Record, len(r.records))
	copy(recs, r.records)
	return Table{Records: recs}
}

// Restore replaces the table with t after checking its invariants.
// It does not persist.
func (r *Registry) Restore(t Table) error {
	if len(t.Records) != len(r.records) {
		return fmt.Errorf("%w: %d slots, want %d", ErrCorrupt, len(t.Records), len(r.records))
	}

	seen := make(map[uid.ID]int, len(t.Records))
	count := 0
	for i, rec := range t.Records {
		if !rec.Active {
			continue
		}
		if rec.ID.IsZero() {
			return fmt.Errorf("%w: slot %d has no identifier", ErrCorrupt, i)
		}
		if _, err := ValidateLabel(rec.Label); err != nil {
			return fmt.Errorf("%w: slot %d: %v", ErrCorrupt, i, err)
		}
		if prev, dup := seen[rec.ID]; dup {
			return fmt.Errorf("%w: %s in slots %d and %d", ErrCorrupt, rec.ID, prev, i)
		}
		seen[rec.ID] = i
		count++
	}

	copy(r.records, t.Records)
	for i := range r.records {
		if !r.records[i].Active {
			r.records[i] = Record{}
		}
	}
	r.count = count
	return nil
}

// commit persists the current table. If that fails, undo reverts the
// mutation and the reverted table is written back, since a failed save may
// already have erased the previous image.
func (r *Registry) commit(undo func()) error {
	err := r.persist()
	if err == nil {
		return nil
	}
	undo()
	if r.saver != nil {
		if rerr := r.saver.Save(r.Snapshot()); rerr != nil {
			log.Printf("Restore registry image: %v", rerr)
		}
	}
	return err
}

func (r *Registry) persist() error {
	if r.saver == nil {
		return nil
	}
	if err := r.saver.Save(r.Snapshot()); err != nil {
		log.Printf("Persist registry: %v", err)
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return nil
}
