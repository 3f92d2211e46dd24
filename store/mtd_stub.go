//go:build !linux

package store

import "errors"

// ErrMTDUnsupported is returned when MTD access is requested off Linux.
var ErrMTDUnsupported = errors.New("mtd flash is only supported on linux")

// MTD is unavailable on this platform.
type MTD struct{}

// OpenMTD returns ErrMTDUnsupported.
func OpenMTD(path string, sectorSize, pageSize int) (*MTD, error) {
	return nil, ErrMTDUnsupported
}

func (m *MTD) SectorSize() int                         { return 0 }
func (m *MTD) PageSize() int                           { return 0 }
func (m *MTD) Size() int64                             { return 0 }
func (m *MTD) ReadAt(p []byte, off int64) (int, error) { return 0, ErrMTDUnsupported }
func (m *MTD) Erase(off int64) error                   { return ErrMTDUnsupported }
func (m *MTD) Program(off int64, p []byte) error       { return ErrMTDUnsupported }
func (m *MTD) Close() error                            { return nil }
