package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// FileFlash emulates a flash region in a regular file so the daemon can run
// on a host without an MTD device.
type FileFlash struct {
	f          *os.File
	size       int64
	sectorSize int
	pageSize   int
}

// OpenFileFlash opens or creates path. A new file starts fully erased.
func OpenFileFlash(path string, sectors, sectorSize, pageSize int) (*FileFlash, error) {
	if err := checkGeometry(sectorSize, pageSize); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("file flash needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create flash directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open flash file: %w", err)
	}

	size := int64(sectors * sectorSize)
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat flash file: %w", err)
	}
	if st.Size() < size {
		// extend with erased bytes
		fill := bytes.Repeat([]byte{0xFF}, int(size-st.Size()))
		if _, err := f.WriteAt(fill, st.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialize flash file: %w", err)
		}
	}

	return &FileFlash{f: f, size: size, sectorSize: sectorSize, pageSize: pageSize}, nil
}

func (ff *FileFlash) SectorSize() int { return ff.sectorSize }
func (ff *FileFlash) PageSize() int   { return ff.pageSize }
func (ff *FileFlash) Size() int64     { return ff.size }

// ReadAt implements io.ReaderAt.
func (ff *FileFlash) ReadAt(p []byte, off int64) (int, error) {
	n, err := ff.f.ReadAt(p, off)
	if err != nil {
		return n, fmt.Errorf("%w: read at %#x: %v", ErrFlash, off, err)
	}
	return n, nil
}

// Erase implements Flash.Erase.
func (ff *FileFlash) Erase(off int64) error {
	if err := checkErase(ff, off); err != nil {
		return err
	}
	if _, err := ff.f.WriteAt(bytes.Repeat([]byte{0xFF}, ff.sectorSize), off); err != nil {
		return fmt.Errorf("%w: erase at %#x: %v", ErrFlash, off, err)
	}
	return ff.sync()
}

// Program implements Flash.Program with NOR semantics.
func (ff *FileFlash) Program(off int64, p []byte) error {
	if err := checkProgram(ff, off, len(p)); err != nil {
		return err
	}
	cur := make([]byte, len(p))
	if _, err := ff.f.ReadAt(cur, off); err != nil {
		return fmt.Errorf("%w: program read-back at %#x: %v", ErrFlash, off, err)
	}
	for i := range cur {
		cur[i] &= p[i]
	}
	if _, err := ff.f.WriteAt(cur, off); err != nil {
		return fmt.Errorf("%w: program at %#x: %v", ErrFlash, off, err)
	}
	return ff.sync()
}

// Close releases the file.
func (ff *FileFlash) Close() error {
	return ff.f.Close()
}

func (ff *FileFlash) sync() error {
	if err := ff.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrFlash, err)
	}
	return nil
}
