package mem

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
)

// Block is one contiguous range tracked by the allocator, Top inclusive, Bottom exclusive.
type Block struct {
	Top    int
	Bottom int
	Size   int
	Type   Type
	Used   bool
}

// Manager is a first-fit block allocator over a Memory.
// Blocks never overlap and, sorted by Top, partition [base, high) contiguously.
type Manager struct {
	arena   Memory
	base    int      // lowest address handed out
	high    int      // high-water mark, next extension starts here
	ceiling int      // extension limit
	blocks  []*Block // ordered by Top
}

// NewManager creates an allocator handing out addresses in [base, ceiling)
func NewManager(arena Memory, base, ceiling int) *Manager {
	if ceiling <= 0 || ceiling > arena.Len() {
		ceiling = arena.Len()
	}

	return &Manager{
		arena:   arena,
		base:    base,
		high:    base,
		ceiling: ceiling,
		blocks:  make([]*Block, 0, 16),
	}
}

// Alloc returns the address of a zero-filled block of at least size bytes
func (m *Manager) Alloc(size int, t Type) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	for i, b := range m.blocks {
		if b.Used || b.Size < size {
			continue
		}

		if b.Size > size {
			rest := &Block{Top: b.Top + size, Bottom: b.Bottom, Size: b.Size - size}
			b.Bottom, b.Size = b.Top+size, size
			m.blocks = slices.Insert(m.blocks, i+1, rest)
		}

		b.Used, b.Type = true, t
		if err := zero(m.arena, b.Top, b.Size); err != nil {
			return 0, err
		}

		return b.Top, nil
	}

	return m.extend(size, t)
}

// extend carves a new block from the high-water mark
func (m *Manager) extend(size int, t Type) (int, error) {
	if size > m.ceiling-m.high {
		log.Debug("arena ceiling reached", "want", size, "high", m.high, "ceiling", m.ceiling)
		return 0, fmt.Errorf("%w: %d bytes requested, %d available", ErrOutOfMemory, size, m.ceiling-m.high)
	}

	b := &Block{Top: m.high, Bottom: m.high + size, Size: size, Type: t, Used: true}
	if err := zero(m.arena, b.Top, size); err != nil {
		return 0, err
	}

	m.blocks = append(m.blocks, b)
	m.high = b.Bottom

	return b.Top, nil
}

// find returns the block starting at addr
func (m *Manager) find(addr int) (int, *Block) {
	i, ok := slices.BinarySearchFunc(m.blocks, addr, func(b *Block, a int) int { return b.Top - a })
	if !ok {
		return -1, nil
	}

	return i, m.blocks[i]
}

// Free marks the block at addr as reusable
func (m *Manager) Free(addr int) error {
	_, b := m.find(addr)
	if b == nil || !b.Used {
		return fmt.Errorf("%w: %d", ErrInvalidFree, addr)
	}

	b.Used, b.Type = false, TypeNone
	return nil
}

// Size returns the size of the live block at addr, 0 when there is none
func (m *Manager) Size(addr int) int {
	if _, b := m.find(addr); b != nil && b.Used {
		return b.Size
	}

	return 0
}

// Type returns the type of the live block at addr
func (m *Manager) Type(addr int) (Type, bool) {
	if _, b := m.find(addr); b != nil && b.Used {
		return b.Type, true
	}

	return TypeNone, false
}

// Collect merges adjacent free blocks and returns trailing free space to the high-water mark.
// It returns the number of block records discarded.
func (m *Manager) Collect() int {
	before := len(m.blocks)
	merged := m.blocks[:0]

	for _, b := range m.blocks {
		if n := len(merged); n > 0 && !b.Used && !merged[n-1].Used {
			last := merged[n-1]
			last.Bottom = b.Bottom
			last.Size += b.Size
			continue
		}
		merged = append(merged, b)
	}

	if n := len(merged); n > 0 && !merged[n-1].Used {
		m.high = merged[n-1].Top
		merged = merged[:n-1]
	}

	clear(m.blocks[len(merged):])
	m.blocks = merged

	if reclaimed := before - len(m.blocks); reclaimed > 0 {
		log.Debug("memory collected", "records", reclaimed, "high", m.high)
	}

	return before - len(m.blocks)
}

// Reset forgets every block
func (m *Manager) Reset() {
	m.blocks = m.blocks[:0]
	m.high = m.base
}

// Blocks returns a copy of the block list ordered by address
func (m *Manager) Blocks() []Block {
	out := make([]Block, len(m.blocks))
	for i, b := range m.blocks {
		out[i] = *b
	}

	return out
}

// InUse returns the number of bytes held by live blocks
func (m *Manager) InUse() int {
	n := 0
	for _, b := range m.blocks {
		if b.Used {
			n += b.Size
		}
	}

	return n
}

// HighWater returns the current extension point
func (m *Manager) HighWater() int {
	return m.high
}

// Base returns the lowest allocatable address
func (m *Manager) Base() int {
	return m.base
}

// Ceiling returns the extension limit
func (m *Manager) Ceiling() int {
	return m.ceiling
}

// Memory returns the arena the manager allocates from
func (m *Manager) Memory() Memory {
	return m.arena
}

// allocScalar allocates one value of type t and writes v into it
func (m *Manager) allocScalar(t Type, v int64) (int, error) {
	addr, err := m.Alloc(t.Width(), t)
	if err != nil {
		return 0, err
	}

	return addr, WriteInt(m.arena, addr, t, v)
}

func (m *Manager) AllocU8(v int64) (int, error)  { return m.allocScalar(TypeU8, v) }
func (m *Manager) AllocI8(v int64) (int, error)  { return m.allocScalar(TypeI8, v) }
func (m *Manager) AllocU16(v int64) (int, error) { return m.allocScalar(TypeU16, v) }
func (m *Manager) AllocI16(v int64) (int, error) { return m.allocScalar(TypeI16, v) }
func (m *Manager) AllocU32(v int64) (int, error) { return m.allocScalar(TypeU32, v) }
func (m *Manager) AllocI32(v int64) (int, error) { return m.allocScalar(TypeI32, v) }

// AllocF32 allocates a 32-bit float initialised to v
func (m *Manager) AllocF32(v float64) (int, error) {
	addr, err := m.Alloc(4, TypeF32)
	if err != nil {
		return 0, err
	}

	return addr, WriteFloat(m.arena, addr, v)
}

// AllocString allocates a length-prefixed copy of s
func (m *Manager) AllocString(s string) (int, error) {
	enc := EncodeString(s)

	addr, err := m.Alloc(len(enc), TypeString)
	if err != nil {
		return 0, err
	}

	b, err := m.arena.Slice(addr, len(enc))
	if err != nil {
		return 0, err
	}
	copy(b, enc)

	return addr, nil
}

// Read reads a scalar of type t at addr
func (m *Manager) Read(addr int, t Type) (int64, error) {
	return ReadInt(m.arena, addr, t)
}

// Write stores a scalar of type t at addr
func (m *Manager) Write(addr int, t Type, v int64) error {
	return WriteInt(m.arena, addr, t, v)
}

// ReadString reads the length-prefixed string at addr
func (m *Manager) ReadString(addr int) (string, error) {
	return ReadString(m.arena, addr)
}
