// Package uid canonicalizes RFID tag identifiers.
package uid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	MinLen = 4
	MaxLen = 10
)

var (
	// ErrInvalidLength is returned for identifiers shorter than MinLen or longer than MaxLen.
	ErrInvalidLength = errors.New("invalid identifier length")

	// ErrMalformed is returned when a formatted identifier contains a token
	// that is not a two digit hex pair.
	ErrMalformed = errors.New("malformed identifier")
)

// ID is a tag identifier as reported by the reader chip.
// IDs are comparable with ==; equality covers both length and bytes.
type ID struct {
	b [MaxLen]byte
	n uint8
}

// New copies raw into an ID.
func New(raw []byte) (ID, error) {
	if len(raw) < MinLen || len(raw) > MaxLen {
		return ID{}, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(raw))
	}
	var id ID
	copy(id.b[:], raw)
	id.n = uint8(len(raw))
	return id, nil
}

// Parse reads the colon separated form produced by String.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, fmt.Errorf("%w: empty", ErrInvalidLength)
	}
	parts := strings.Split(s, ":")
	if len(parts) < MinLen || len(parts) > MaxLen {
		return ID{}, fmt.Errorf("%w: %d pairs", ErrInvalidLength, len(parts))
	}

	var id ID
	for i, p := range parts {
		if len(p) != 2 {
			return ID{}, fmt.Errorf("%w: token %q", ErrMalformed, p)
		}
		if _, err := hex.Decode(id.b[i:i+1], []byte(p)); err != nil {
			return ID{}, fmt.Errorf("%w: token %q", ErrMalformed, p)
		}
	}
	id.n = uint8(len(parts))
	return id, nil
}

// FromHex reads a contiguous hex string such as "A1B2C3D4", the form most
// serial and keyboard-wedge readers emit.
func FromHex(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s)%2 != 0 {
		return ID{}, fmt.Errorf("%w: odd digit count in %q", ErrMalformed, s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return New(raw)
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Len returns the identifier length in bytes.
func (id ID) Len() int {
	return int(id.n)
}

// IsZero reports whether id was never set.
func (id ID) IsZero() bool {
	return id.n == 0
}

// Bytes returns a copy of the identifier bytes.
func (id ID) Bytes() []byte {
	out := make([]byte, id.n)
	copy(out, id.b[:id.n])
	return out
}

// String renders the identifier as uppercase hex pairs joined by colons.
// This is also the wire form used by the HTTP API.
func (id ID) String() string {
	if id.n == 0 {
		return ""
	}
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(int(id.n)*3 - 1)
	for i := 0; i < int(id.n); i++ {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(digits[id.b[i]>>4])
		sb.WriteByte(digits[id.b[i]&0x0f])
	}
	return sb.String()
}
