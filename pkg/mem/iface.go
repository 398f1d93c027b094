package mem

// Memory is a bounds-checked byte space.
type Memory interface {
	Len() int
	Slice(addr, n int) ([]byte, error)
}

// Allocator hands out typed blocks of a Memory.
type Allocator interface {
	Alloc(size int, t Type) (int, error)
	Free(addr int) error
	Size(addr int) int
	Type(addr int) (Type, bool)
}

// StackLike is a fixed-capacity value stack.
type StackLike interface {
	Push(values ...int64) error
	Pop() (int64, error)
	Used() int
}

// StructLike is named-field access over a byte range.
type StructLike interface {
	Get(path string) (int64, error)
	Set(path string, v int64) error
	Offset(path string) (int, error)
	Size() int
}

var (
	_ Memory     = (*Arena)(nil)
	_ Allocator  = (*Manager)(nil)
	_ StackLike  = (*Stack)(nil)
	_ StructLike = (*StructView)(nil)
)
