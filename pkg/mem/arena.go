package mem

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Arena is the single contiguous byte buffer a machine runs against.
type Arena struct {
	buf []byte
}

// NewArena creates a zeroed arena of the given size
func NewArena(size int) *Arena {
	return &Arena{buf: make([]byte, size)}
}

// Len returns the arena size in bytes
func (a *Arena) Len() int {
	return len(a.buf)
}

// Slice returns a view of n bytes at addr
func (a *Arena) Slice(addr, n int) ([]byte, error) {
	if addr < 0 || n < 0 || addr > len(a.buf) || n > len(a.buf)-addr {
		return nil, fmt.Errorf("%w: %d+%d (size %d)", ErrOutOfBounds, addr, n, len(a.buf))
	}

	return a.buf[addr : addr+n], nil
}

// Clear zero-fills the whole arena
func (a *Arena) Clear() {
	clear(a.buf)
}

// Load copies data into the arena at addr
func (a *Arena) Load(addr int, data []byte) error {
	dst, err := a.Slice(addr, len(data))
	if err != nil {
		return err
	}

	copy(dst, data)
	return nil
}

// zero clears n bytes at addr
func zero(m Memory, addr, n int) error {
	b, err := m.Slice(addr, n)
	if err != nil {
		return err
	}

	clear(b)
	return nil
}

// ReadInt reads a scalar integer of type t at addr, sign-extending signed types
func ReadInt(m Memory, addr int, t Type) (int64, error) {
	if t == TypeF32 {
		f, err := ReadFloat(m, addr)
		return int64(f), err
	}

	w := t.Width()
	if w == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotScalar, t)
	}

	b, err := m.Slice(addr, w)
	if err != nil {
		return 0, err
	}

	switch t {
	case TypeU8:
		return int64(b[0]), nil
	case TypeI8:
		return int64(int8(b[0])), nil
	case TypeU16:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case TypeI16:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case TypeU32:
		return int64(binary.LittleEndian.Uint32(b)), nil
	default:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	}
}

// WriteInt stores v truncated to the width of t at addr
func WriteInt(m Memory, addr int, t Type, v int64) error {
	if t == TypeF32 {
		return WriteFloat(m, addr, float64(v))
	}

	w := t.Width()
	if w == 0 {
		return fmt.Errorf("%w: %s", ErrNotScalar, t)
	}

	b, err := m.Slice(addr, w)
	if err != nil {
		return err
	}

	switch w {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, uint32(v))
	}

	return nil
}

// ReadFloat reads a 32-bit float at addr
func ReadFloat(m Memory, addr int) (float64, error) {
	b, err := m.Slice(addr, 4)
	if err != nil {
		return 0, err
	}

	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
}

// WriteFloat stores v as a 32-bit float at addr
func WriteFloat(m Memory, addr int, v float64) error {
	b, err := m.Slice(addr, 4)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	return nil
}

// StringHeader is the size of the length prefix in front of string bytes
const StringHeader = 2

// EncodeString returns the length-prefixed form of s, truncated to 65535 bytes
func EncodeString(s string) []byte {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}

	out := make([]byte, StringHeader+len(s))
	binary.LittleEndian.PutUint16(out, uint16(len(s)))
	copy(out[StringHeader:], s)

	return out
}

// ReadString reads a length-prefixed string at addr
func ReadString(m Memory, addr int) (string, error) {
	n, err := ReadInt(m, addr, TypeU16)
	if err != nil {
		return "", err
	}

	b, err := m.Slice(addr+StringHeader, int(n))
	if err != nil {
		return "", err
	}

	return string(b), nil
}
