package mem

import (
	"fmt"
	"strings"
)

// Type tags a block or a typed access.
type Type uint8

const (
	TypeNone Type = iota
	TypeU8
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeF32
	TypeString
	TypeFrame
	TypeStruct
	TypeStack
	TypeRaw
)

var typeNames = [...]string{
	TypeNone:   "none",
	TypeU8:     "u8",
	TypeI8:     "i8",
	TypeU16:    "u16",
	TypeI16:    "i16",
	TypeU32:    "u32",
	TypeI32:    "i32",
	TypeF32:    "f32",
	TypeString: "str",
	TypeFrame:  "frame",
	TypeStruct: "struct",
	TypeStack:  "stack",
	TypeRaw:    "raw",
}

// String returns the short name of the type
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}

	return fmt.Sprintf("type(%d)", uint8(t))
}

// Width returns the byte width of a scalar type, 0 for non-scalar types
func (t Type) Width() int {
	switch t {
	case TypeU8, TypeI8:
		return 1
	case TypeU16, TypeI16:
		return 2
	case TypeU32, TypeI32, TypeF32:
		return 4
	default:
		return 0
	}
}

// Signed reports whether reads of this type sign-extend
func (t Type) Signed() bool {
	return t == TypeI8 || t == TypeI16 || t == TypeI32
}

// IsScalar reports whether values of the type fit a typed accessor
func (t Type) IsScalar() bool {
	return t.Width() > 0
}

// ParseType looks up a type by its short name
func ParseType(name string) (Type, bool) {
	name = strings.ToLower(name)
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}

	return TypeNone, false
}
