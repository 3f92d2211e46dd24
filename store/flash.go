package store

import (
	"errors"
	"fmt"
	"io"
)

// ErrFlash wraps every failure reported by a flash backend.
var ErrFlash = errors.New("flash error")

// Flash is a byte-addressable non-volatile region. Program may only clear
// bits; restoring them requires an Erase of the containing sector.
type Flash interface {
	io.ReaderAt

	// SectorSize is the erase granularity in bytes.
	SectorSize() int

	// PageSize is the program granularity in bytes.
	PageSize() int

	// Size is the total region size in bytes.
	Size() int64

	// Erase sets every byte of the sector starting at off to 0xFF.
	Erase(off int64) error

	// Program writes p at off. off and len(p) must be page aligned.
	Program(off int64, p []byte) error
}

// Config selects and sizes a flash backend.
type Config struct {
	Type       string `yaml:"type"`        // "mem", "file", "mtd"
	Path       string `yaml:"path"`        // file path or /dev/mtdN
	Offset     int64  `yaml:"offset"`      // start of the registry sector
	SectorSize int    `yaml:"sector_size"` // erase block size
	PageSize   int    `yaml:"page_size"`   // program page size
	Sectors    int    `yaml:"sectors"`     // region size in sectors (mem, file)
}

// Defaults for a small NOR part.
const (
	DefaultSectorSize = 4096
	DefaultPageSize   = 256
)

// OpenFlash creates the backend described by cfg.
func OpenFlash(cfg Config) (Flash, error) {
	if cfg.SectorSize == 0 {
		cfg.SectorSize = DefaultSectorSize
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Sectors == 0 {
		cfg.Sectors = 1
	}

	switch cfg.Type {
	case "", "mem":
		m, err := NewMemFlash(cfg.Sectors, cfg.SectorSize, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "file":
		ff, err := OpenFileFlash(cfg.Path, cfg.Sectors, cfg.SectorSize, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		return ff, nil
	case "mtd":
		mtd, err := OpenMTD(cfg.Path, cfg.SectorSize, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		return mtd, nil
	default:
		return nil, fmt.Errorf("unknown flash type %q", cfg.Type)
	}
}

func checkGeometry(sectorSize, pageSize int) error {
	if sectorSize <= 0 || pageSize <= 0 {
		return fmt.Errorf("invalid geometry: sector %d, page %d", sectorSize, pageSize)
	}
	if sectorSize%pageSize != 0 {
		return fmt.Errorf("sector size %d is not a multiple of page size %d", sectorSize, pageSize)
	}
	return nil
}

func checkErase(f Flash, off int64) error {
	if off < 0 || off%int64(f.SectorSize()) != 0 || off+int64(f.SectorSize()) > f.Size() {
		return fmt.Errorf("%w: erase offset %#x not a sector boundary", ErrFlash, off)
	}
	return nil
}

func checkProgram(f Flash, off int64, n int) error {
	page := int64(f.PageSize())
	if off < 0 || off%page != 0 || int64(n)%page != 0 || off+int64(n) > f.Size() {
		return fmt.Errorf("%w: program %d bytes at %#x not page aligned", ErrFlash, n, off)
	}
	return nil
}
