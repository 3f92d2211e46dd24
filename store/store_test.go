package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagkeep/registry"
	"tagkeep/uid"
)

func newMemStore(t *testing.T) (*Store, *MemFlash) {
	t.Helper()
	flash, err := NewMemFlash(2, DefaultSectorSize, DefaultPageSize)
	require.NoError(t, err)
	s, err := New(flash, DefaultSectorSize, registry.DefaultCapacity)
	require.NoError(t, err)
	return s, flash
}

func populated(t *testing.T, s registry.Saver) *registry.Registry {
	t.Helper()
	r := registry.New(registry.DefaultCapacity, s)
	_, err := r.Insert(uid.MustParse("AA:BB:CC:DD"), "Keys")
	require.NoError(t, err)
	_, err = r.Insert(uid.MustParse("04:11:22:33:44:55:66"), "Badge")
	require.NoError(t, err)
	_, err = r.Insert(uid.MustParse("01:02:03:04:05:06:07:08:09:0A"), "Long UID")
	require.NoError(t, err)
	require.NoError(t, r.Deactivate(uid.MustParse("04:11:22:33:44:55:66")))
	return r
}

func TestLoad_ErasedFlashIsEmpty(t *testing.T) {
	t.Parallel()
	s, _ := newMemStore(t)

	tbl, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, tbl.Records, registry.DefaultCapacity)
	assert.Equal(t, 0, tbl.Count())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := newMemStore(t)
	r := populated(t, s)

	loaded := registry.New(registry.DefaultCapacity, nil)
	require.NoError(t, s.LoadInto(loaded))
	assert.Equal(t, r.Snapshot(), loaded.Snapshot())
	assert.Equal(t, 2, loaded.Count())
}

func TestSave_Idempotent(t *testing.T) {
	t.Parallel()
	s, flash := newMemStore(t)
	populated(t, s)

	first, err := s.Load()
	require.NoError(t, err)
	raw1 := make([]byte, DefaultSectorSize)
	_, err = flash.ReadAt(raw1, DefaultSectorSize)
	require.NoError(t, err)

	require.NoError(t, s.Save(first))

	second, err := s.Load()
	require.NoError(t, err)
	raw2 := make([]byte, DefaultSectorSize)
	_, err = flash.ReadAt(raw2, DefaultSectorSize)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, raw1, raw2)
}

func TestLoad_CorruptMagicIsEmpty(t *testing.T) {
	t.Parallel()
	s, flash := newMemStore(t)
	populated(t, s)

	flash.Corrupt(DefaultSectorSize, 0x01)

	r := registry.New(registry.DefaultCapacity, nil)
	require.NoError(t, s.LoadInto(r))
	assert.Equal(t, 0, r.Count())
}

func TestLoad_CorruptBodyIsEmpty(t *testing.T) {
	t.Parallel()
	s, flash := newMemStore(t)
	populated(t, s)

	// flip a bit inside the first label
	flash.Corrupt(DefaultSectorSize+headerSize+2+uid.MaxLen, 0x20)

	tbl, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Count())
}

func TestSave_DoesNotTouchOtherSectors(t *testing.T) {
	t.Parallel()
	s, flash := newMemStore(t)
	populated(t, s)

	other := make([]byte, DefaultSectorSize)
	_, err := flash.ReadAt(other, 0)
	require.NoError(t, err)
	for i, b := range other {
		require.Equal(t, byte(0xFF), b, "byte %d", i)
	}
}

// failingFlash fails the chosen operation. programFails fails that many
// program calls and then recovers; dropProgram reports success without
// writing.
type failingFlash struct {
	Flash
	failErase    bool
	failProgram  bool
	programFails int
	dropProgram  bool
}

func (f *failingFlash) Erase(off int64) error {
	if f.failErase {
		return errors.New("erase timeout")
	}
	return f.Flash.Erase(off)
}

func (f *failingFlash) Program(off int64, p []byte) error {
	if f.failProgram {
		return errors.New("program verify failed")
	}
	if f.programFails > 0 {
		f.programFails--
		return errors.New("program verify failed")
	}
	if f.dropProgram {
		return nil
	}
	return f.Flash.Program(off, p)
}

func TestSave_FailedProgramKeepsDurableImage(t *testing.T) {
	t.Parallel()
	mem, err := NewMemFlash(1, DefaultSectorSize, DefaultPageSize)
	require.NoError(t, err)
	ff := &failingFlash{Flash: mem}
	s, err := New(ff, 0, registry.DefaultCapacity)
	require.NoError(t, err)

	r := registry.New(registry.DefaultCapacity, s)
	_, err = r.Insert(uid.MustParse("AA:BB:CC:DD"), "Keys")
	require.NoError(t, err)

	// the erase succeeds, the first program fails
	ff.programFails = 1
	_, err = r.Insert(uid.MustParse("04:11:22:33"), "Badge")
	require.ErrorIs(t, err, registry.ErrPersistenceFailed)
	require.Equal(t, 1, r.Count())

	// what a reboot would see
	reloaded := registry.New(registry.DefaultCapacity, nil)
	require.NoError(t, s.LoadInto(reloaded))
	assert.Equal(t, r.Count(), reloaded.Count())
	assert.Equal(t, r.List(), reloaded.List())
}

func TestSave_ReadBackMismatch(t *testing.T) {
	t.Parallel()
	mem, err := NewMemFlash(1, DefaultSectorSize, DefaultPageSize)
	require.NoError(t, err)
	s, err := New(&failingFlash{Flash: mem, dropProgram: true}, 0, registry.DefaultCapacity)
	require.NoError(t, err)

	r := registry.New(registry.DefaultCapacity, s)
	_, err = r.Insert(uid.MustParse("AA:BB:CC:DD"), "Keys")
	require.ErrorIs(t, err, registry.ErrPersistenceFailed)
	require.ErrorIs(t, err, ErrFlash)
	assert.Zero(t, r.Count())
}

func TestSave_FlashErrors(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name  string
		flash func(Flash) Flash
	}{
		{name: "erase", flash: func(f Flash) Flash { return &failingFlash{Flash: f, failErase: true} }},
		{name: "program", flash: func(f Flash) Flash { return &failingFlash{Flash: f, failProgram: true} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mem, err := NewMemFlash(1, DefaultSectorSize, DefaultPageSize)
			require.NoError(t, err)
			s, err := New(tc.flash(mem), 0, registry.DefaultCapacity)
			require.NoError(t, err)

			r := registry.New(registry.DefaultCapacity, s)
			_, err = r.Insert(uid.MustParse("AA:BB:CC:DD"), "Keys")
			require.ErrorIs(t, err, registry.ErrPersistenceFailed)
			require.ErrorIs(t, err, ErrFlash)
			assert.Equal(t, 0, r.Count())
		})
	}
}

func TestNew_RejectsBadPlacement(t *testing.T) {
	t.Parallel()
	flash, err := NewMemFlash(1, DefaultSectorSize, DefaultPageSize)
	require.NoError(t, err)

	_, err = New(flash, 100, registry.DefaultCapacity)
	require.Error(t, err)

	_, err = New(flash, DefaultSectorSize, registry.DefaultCapacity)
	require.Error(t, err)

	_, err = New(flash, 0, 200)
	require.Error(t, err)
}

func TestMemFlash_ProgramOnlyClearsBits(t *testing.T) {
	t.Parallel()
	flash, err := NewMemFlash(1, 512, 256)
	require.NoError(t, err)

	page := make([]byte, 256)
	page[0] = 0x0F
	require.NoError(t, flash.Program(0, page))

	page[0] = 0xF0
	require.NoError(t, flash.Program(0, page))

	got := make([]byte, 1)
	_, err = flash.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), got[0])

	require.NoError(t, flash.Erase(0))
	_, err = flash.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), got[0])

	require.ErrorIs(t, flash.Program(3, page), ErrFlash)
	require.ErrorIs(t, flash.Erase(256), ErrFlash)
}

func TestFileFlash_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flash", "tags.bin")

	ff, err := OpenFileFlash(path, 1, DefaultSectorSize, DefaultPageSize)
	require.NoError(t, err)
	s, err := New(ff, 0, registry.DefaultCapacity)
	require.NoError(t, err)
	want := populated(t, s).Snapshot()
	require.NoError(t, ff.Close())

	ff, err = OpenFileFlash(path, 1, DefaultSectorSize, DefaultPageSize)
	require.NoError(t, err)
	defer ff.Close()
	s, err = New(ff, 0, registry.DefaultCapacity)
	require.NoError(t, err)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()
	r := registry.New(4, nil)
	_, err := r.Insert(uid.MustParse("AA:BB:CC:DD"), "Keys")
	require.NoError(t, err)
	good, err := Encode(r.Snapshot())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		slots  int
	}{
		{name: "short", mutate: func(b []byte) []byte { return b[:8] }, slots: 4},
		{name: "slot count", mutate: func(b []byte) []byte { return b }, slots: 5},
		{name: "version", mutate: func(b []byte) []byte { b[4] = 9; return b }, slots: 4},
		{name: "count", mutate: func(b []byte) []byte { b[8] = 2; return b }, slots: 4},
		{name: "truncated", mutate: func(b []byte) []byte { return b[:len(b)-1] }, slots: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := append([]byte(nil), good...)
			_, err := Decode(tt.mutate(buf), tt.slots)
			require.ErrorIs(t, err, ErrBadImage)
		})
	}
}

func TestImageFitsDefaultSector(t *testing.T) {
	t.Parallel()
	assert.LessOrEqual(t, ImageSize(registry.DefaultCapacity), DefaultSectorSize,
		fmt.Sprintf("image %d bytes", ImageSize(registry.DefaultCapacity)))
}
