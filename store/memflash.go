package store

import (
	"fmt"
	"sync"
)

// MemFlash emulates NOR flash in RAM.
type MemFlash struct {
	mu         sync.Mutex
	data       []byte
	sectorSize int
	pageSize   int
}

// NewMemFlash returns an erased region of sectors*sectorSize bytes.
func NewMemFlash(sectors, sectorSize, pageSize int) (*MemFlash, error) {
	if err := checkGeometry(sectorSize, pageSize); err != nil {
		return nil, err
	}
	if sectors <= 0 {
		return nil, fmt.Errorf("invalid sector count %d", sectors)
	}
	m := &MemFlash{
		data:       make([]byte, sectors*sectorSize),
		sectorSize: sectorSize,
		pageSize:   pageSize,
	}
	for i := range m.data {
		m.data[i] = 0xFF
	}
	return m, nil
}

func (m *MemFlash) SectorSize() int { return m.sectorSize }
func (m *MemFlash) PageSize() int   { return m.pageSize }
func (m *MemFlash) Size() int64     { return int64(len(m.data)) }

// ReadAt implements io.ReaderAt.
func (m *MemFlash) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("%w: read %d bytes at %#x out of range", ErrFlash, len(p), off)
	}
	return copy(p, m.data[off:]), nil
}

// Erase implements Flash.Erase.
func (m *MemFlash) Erase(off int64) error {
	if err := checkErase(m, off); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sector := m.data[off : off+int64(m.sectorSize)]
	for i := range sector {
		sector[i] = 0xFF
	}
	return nil
}

// Program implements Flash.Program. Bits already cleared stay cleared.
func (m *MemFlash) Program(off int64, p []byte) error {
	if err := checkProgram(m, off, len(p)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, b := range p {
		m.data[off+int64(i)] &= b
	}
	return nil
}

// Corrupt XORs the byte at off with mask. It simulates bit rot.
func (m *MemFlash) Corrupt(off int64, mask byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[off] ^= mask
}
