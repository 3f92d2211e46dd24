// Package store persists the tag registry to a single flash sector.
//
// Every save rewrites the whole image: the sector is erased, programmed
// page by page and read back. A power loss between erase and program
// leaves the sector unreadable, which Load reports as an empty registry.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"tagkeep/metrics"
	"tagkeep/registry"
)

// Store reads and writes the registry image at a fixed sector.
type Store struct {
	flash  Flash
	offset int64
	slots  int
	size   int // padded image size
}

// New binds a Store to the sector at offset. The image for slots records
// must fit in one sector.
func New(flash Flash, offset int64, slots int) (*Store, error) {
	if err := checkErase(flash, offset); err != nil {
		return nil, fmt.Errorf("registry sector: %w", err)
	}

	page := flash.PageSize()
	size := (ImageSize(slots) + page - 1) / page * page
	if size > flash.SectorSize() {
		return nil, fmt.Errorf("image of %d bytes does not fit a %d byte sector", size, flash.SectorSize())
	}

	return &Store{flash: flash, offset: offset, slots: slots, size: size}, nil
}

// Save implements registry.Saver.
func (s *Store) Save(t registry.Table) error {
	if len(t.Records) != s.slots {
		return fmt.Errorf("save: table has %d slots, store holds %d", len(t.Records), s.slots)
	}
	img, err := Encode(t)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	padded := make([]byte, s.size)
	copy(padded, img)
	for i := len(img); i < len(padded); i++ {
		padded[i] = 0xFF
	}

	if err := s.flash.Erase(s.offset); err != nil {
		metrics.FlashSaves.WithLabelValues("erase_error").Inc()
		return wrapFlash("erase", err)
	}

	page := s.flash.PageSize()
	for off := 0; off < len(padded); off += page {
		if err := s.flash.Program(s.offset+int64(off), padded[off:off+page]); err != nil {
			metrics.FlashSaves.WithLabelValues("program_error").Inc()
			return wrapFlash("program", err)
		}
	}

	back := make([]byte, len(padded))
	if _, err := s.flash.ReadAt(back, s.offset); err != nil {
		metrics.FlashSaves.WithLabelValues("verify_error").Inc()
		return wrapFlash("verify", err)
	}
	if !bytes.Equal(back, padded) {
		metrics.FlashSaves.WithLabelValues("verify_error").Inc()
		return fmt.Errorf("verify: %w: image read back differs", ErrFlash)
	}

	metrics.FlashSaves.WithLabelValues("ok").Inc()
	return nil
}

// Load reads the image. A sector without a valid image yields an empty
// table and no error; only a failing flash read is reported.
func (s *Store) Load() (registry.Table, error) {
	buf := make([]byte, s.size)
	if _, err := s.flash.ReadAt(buf, s.offset); err != nil {
		return registry.Table{}, wrapFlash("read", err)
	}

	t, err := Decode(buf, s.slots)
	if err != nil {
		log.Printf("No valid registry image, starting empty: %v", err)
		return registry.Table{Records: make([]registry.Record, s.slots)}, nil
	}
	return t, nil
}

// LoadInto loads the image and restores it into r. A table that fails the
// registry's own checks is discarded like a bad image.
func (s *Store) LoadInto(r *registry.Registry) error {
	t, err := s.Load()
	if err != nil {
		return err
	}
	if err := r.Restore(t); err != nil {
		log.Printf("Discarding stored registry: %v", err)
		return r.Restore(registry.Table{Records: make([]registry.Record, r.Capacity())})
	}
	log.Printf("Loaded %d of %d registry slots", r.Count(), r.Capacity())
	return nil
}

func wrapFlash(op string, err error) error {
	if errors.Is(err, ErrFlash) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrFlash, err)
}
