//go:build linux

package store

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// memErase is MEMERASE from <mtd/mtd-abi.h>: _IOW('M', 2, struct erase_info_user).
const memErase = 0x40084d02

type eraseInfoUser struct {
	Start  uint32
	Length uint32
}

// MTD drives a raw Linux MTD character device such as /dev/mtd3.
type MTD struct {
	fd         int
	path       string
	size       int64
	sectorSize int
	pageSize   int
}

// OpenMTD opens the MTD character device at path.
func OpenMTD(path string, sectorSize, pageSize int) (*MTD, error) {
	if err := checkGeometry(sectorSize, pageSize); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open mtd %s: %w", path, err)
	}

	size, err := unix.Seek(fd, 0, unix.SEEK_END)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("size mtd %s: %w", path, err)
	}

	return &MTD{fd: fd, path: path, size: size, sectorSize: sectorSize, pageSize: pageSize}, nil
}

func (m *MTD) SectorSize() int { return m.sectorSize }
func (m *MTD) PageSize() int   { return m.pageSize }
func (m *MTD) Size() int64     { return m.size }

// ReadAt implements io.ReaderAt.
func (m *MTD) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(m.fd, p, off)
	if err != nil {
		return n, fmt.Errorf("%w: read %s at %#x: %v", ErrFlash, m.path, off, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("%w: short read %s at %#x", ErrFlash, m.path, off)
	}
	return n, nil
}

// Erase implements Flash.Erase.
func (m *MTD) Erase(off int64) error {
	if err := checkErase(m, off); err != nil {
		return err
	}
	ei := eraseInfoUser{Start: uint32(off), Length: uint32(m.sectorSize)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(m.fd), memErase, uintptr(unsafe.Pointer(&ei)))
	if errno != 0 {
		return fmt.Errorf("%w: erase %s at %#x: %v", ErrFlash, m.path, off, errno)
	}
	return nil
}

// Program implements Flash.Program. The driver handles page splitting;
// alignment is still checked so images stay portable between backends.
func (m *MTD) Program(off int64, p []byte) error {
	if err := checkProgram(m, off, len(p)); err != nil {
		return err
	}
	n, err := unix.Pwrite(m.fd, p, off)
	if err != nil {
		return fmt.Errorf("%w: program %s at %#x: %v", ErrFlash, m.path, off, err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: short write %s at %#x", ErrFlash, m.path, off)
	}
	return nil
}

// Close releases the device.
func (m *MTD) Close() error {
	return unix.Close(m.fd)
}
