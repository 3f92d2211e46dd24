package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"tagkeep/registry"
	"tagkeep/uid"
)

// Image layout, little endian:
//
//	0  magic    u32
//	4  version  u16
//	6  slots    u16
//	8  count    u16
//	10 reserved u16
//	12 crc32    u32 (IEEE, over the slot area)
//	16 slots × {active u8, len u8, uid [10]u8, label [32]u8}
const (
	Magic   uint32 = 0x4B475454
	Version uint16 = 1

	headerSize = 16
	labelField = registry.MaxLabelLen + 1
	slotSize   = 2 + uid.MaxLen + labelField
)

// ErrBadImage is returned by Decode for anything that is not a valid image.
var ErrBadImage = errors.New("bad image")

// ImageSize returns the unpadded image size for a table of slots.
func ImageSize(slots int) int {
	return headerSize + slots*slotSize
}

// Encode serializes t. Inactive slots are written zeroed.
func Encode(t registry.Table) ([]byte, error) {
	buf := make([]byte, ImageSize(len(t.Records)))
	body := buf[headerSize:]

	count := 0
	for i, rec := range t.Records {
		if !rec.Active {
			continue
		}
		if len(rec.Label) > registry.MaxLabelLen {
			return nil, fmt.Errorf("encode slot %d: label %d bytes", i, len(rec.Label))
		}
		s := body[i*slotSize : (i+1)*slotSize]
		s[0] = 1
		s[1] = byte(rec.ID.Len())
		copy(s[2:2+uid.MaxLen], rec.ID.Bytes())
		copy(s[2+uid.MaxLen:], rec.Label)
		count++
	}

	binary.LittleEndian.PutUint32(buf[0:], Magic)
	binary.LittleEndian.PutUint16(buf[4:], Version)
	binary.LittleEndian.PutUint16(buf[6:], uint16(len(t.Records)))
	binary.LittleEndian.PutUint16(buf[8:], uint16(count))
	binary.LittleEndian.PutUint32(buf[12:], crc32.ChecksumIEEE(body))
	return buf, nil
}

// Decode parses an image holding exactly slots records. Trailing bytes are ignored.
func Decode(buf []byte, slots int) (registry.Table, error) {
	if len(buf) < headerSize {
		return registry.Table{}, fmt.Errorf("%w: %d bytes", ErrBadImage, len(buf))
	}
	if m := binary.LittleEndian.Uint32(buf[0:]); m != Magic {
		return registry.Table{}, fmt.Errorf("%w: magic %#08x", ErrBadImage, m)
	}
	if v := binary.LittleEndian.Uint16(buf[4:]); v != Version {
		return registry.Table{}, fmt.Errorf("%w: version %d", ErrBadImage, v)
	}
	if n := int(binary.LittleEndian.Uint16(buf[6:])); n != slots {
		return registry.Table{}, fmt.Errorf("%w: %d slots, want %d", ErrBadImage, n, slots)
	}
	if len(buf) < ImageSize(slots) {
		return registry.Table{}, fmt.Errorf("%w: truncated", ErrBadImage)
	}

	body := buf[headerSize:ImageSize(slots)]
	if sum := binary.LittleEndian.Uint32(buf[12:]); sum != crc32.ChecksumIEEE(body) {
		return registry.Table{}, fmt.Errorf("%w: checksum mismatch", ErrBadImage)
	}

	t := registry.Table{Records: make([]registry.Record, slots)}
	for i := range t.Records {
		s := body[i*slotSize : (i+1)*slotSize]
		switch s[0] {
		case 0:
			continue
		case 1:
		default:
			return registry.Table{}, fmt.Errorf("%w: slot %d flag %#x", ErrBadImage, i, s[0])
		}

		id, err := uid.New(s[2 : 2+int(min(s[1], uid.MaxLen+1))])
		if err != nil {
			return registry.Table{}, fmt.Errorf("%w: slot %d: %v", ErrBadImage, i, err)
		}
		field := s[2+uid.MaxLen:]
		end := bytes.IndexByte(field, 0)
		if end < 0 {
			return registry.Table{}, fmt.Errorf("%w: slot %d label unterminated", ErrBadImage, i)
		}
		t.Records[i] = registry.Record{ID: id, Label: string(field[:end]), Active: true}
	}

	if n := int(binary.LittleEndian.Uint16(buf[8:])); n != t.Count() {
		return registry.Table{}, fmt.Errorf("%w: count %d, found %d active", ErrBadImage, n, t.Count())
	}
	return t, nil
}
