package mem

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Stack is a fixed-capacity value stack bound to the region [top, bottom) of a Memory.
// A rolling stack drops its oldest entry instead of overflowing.
type Stack struct {
	arena      Memory
	top        int
	bottom     int
	ptr        int
	entrySize  int
	maxEntries int
	rolling    bool
}

// NewStack binds a stack of maxEntries entries of entrySize bytes at top
func NewStack(arena Memory, top, entrySize, maxEntries int, rolling bool) (*Stack, error) {
	switch entrySize {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: entry size %d", ErrInvalidSize, entrySize)
	}

	if maxEntries <= 0 || maxEntries > math.MaxInt/entrySize {
		return nil, fmt.Errorf("%w: %d entries", ErrInvalidSize, maxEntries)
	}

	if _, err := arena.Slice(top, entrySize*maxEntries); err != nil {
		return nil, err
	}
	bottom := top + entrySize*maxEntries

	return &Stack{
		arena:      arena,
		top:        top,
		bottom:     bottom,
		ptr:        top,
		entrySize:  entrySize,
		maxEntries: maxEntries,
		rolling:    rolling,
	}, nil
}

// Push writes values in order, the last one ending on top
func (s *Stack) Push(values ...int64) error {
	for _, v := range values {
		if s.ptr+s.entrySize > s.bottom {
			if !s.rolling {
				return fmt.Errorf("%w: %d entries", ErrStackOverflow, s.maxEntries)
			}
			if err := s.roll(); err != nil {
				return err
			}
		}

		if err := s.write(s.ptr, v); err != nil {
			return err
		}
		s.ptr += s.entrySize
	}

	return nil
}

// roll shifts the window down by one entry, dropping the oldest
func (s *Stack) roll() error {
	region, err := s.arena.Slice(s.top, s.bottom-s.top)
	if err != nil {
		return err
	}

	copy(region, region[s.entrySize:])
	s.ptr -= s.entrySize

	return nil
}

// Pop removes and returns the newest entry
func (s *Stack) Pop() (int64, error) {
	if s.ptr <= s.top {
		return 0, ErrStackUnderflow
	}

	s.ptr -= s.entrySize
	return s.read(s.ptr)
}

// Peek returns the newest entry without removing it
func (s *Stack) Peek() (int64, error) {
	if s.ptr <= s.top {
		return 0, ErrStackUnderflow
	}

	return s.read(s.ptr - s.entrySize)
}

// Used returns the number of entries on the stack
func (s *Stack) Used() int {
	return (s.ptr - s.top) / s.entrySize
}

// Cap returns the maximum number of entries
func (s *Stack) Cap() int {
	return s.maxEntries
}

// Rolling reports whether the stack wraps instead of overflowing
func (s *Stack) Rolling() bool {
	return s.rolling
}

// Reset empties the stack without touching memory
func (s *Stack) Reset() {
	s.ptr = s.top
}

// Top returns the first address of the stack region
func (s *Stack) Top() int {
	return s.top
}

// Bottom returns the address just past the stack region
func (s *Stack) Bottom() int {
	return s.bottom
}

// Ptr returns the live cursor
func (s *Stack) Ptr() int {
	return s.ptr
}

// write stores one entry at addr
func (s *Stack) write(addr int, v int64) error {
	b, err := s.arena.Slice(addr, s.entrySize)
	if err != nil {
		return err
	}

	switch s.entrySize {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}

	return nil
}

// read loads one sign-extended entry from addr
func (s *Stack) read(addr int) (int64, error) {
	b, err := s.arena.Slice(addr, s.entrySize)
	if err != nil {
		return 0, err
	}

	switch s.entrySize {
	case 1:
		return int64(int8(b[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	default:
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
}
