package mem

import "errors"

var (
	ErrOutOfMemory    = errors.New("out of memory")
	ErrOutOfBounds    = errors.New("memory access out of bounds")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrInvalidFree    = errors.New("invalid free")
	ErrInvalidSize    = errors.New("invalid allocation size")
	ErrUnknownField   = errors.New("unknown struct field")
	ErrNotScalar      = errors.New("type has no scalar accessor")
)
