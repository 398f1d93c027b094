package mem

import (
	"fmt"
	"strings"
)

// Field declares one member of a struct layout. Count > 1 makes a scalar array;
// a field with Nested members is a sub-struct and its Type is ignored.
type Field struct {
	Name   string
	Type   Type
	Count  int
	Nested []Field
}

type fieldInfo struct {
	offset int
	typ    Type
	count  int
}

// Layout is a field list with offsets computed once.
type Layout struct {
	fields map[string]fieldInfo
	order  []string
	size   int
}

// NewLayout computes the offset of every field, nested fields addressed as "outer.inner"
func NewLayout(fields ...Field) *Layout {
	l := &Layout{fields: make(map[string]fieldInfo)}
	l.size = l.add("", 0, fields)

	return l
}

// add lays out fields starting at offset and returns the end offset
func (l *Layout) add(prefix string, offset int, fields []Field) int {
	for _, f := range fields {
		name := prefix + strings.ToLower(f.Name)

		if len(f.Nested) > 0 {
			start := offset
			offset = l.add(name+".", offset, f.Nested)
			l.fields[name] = fieldInfo{offset: start, typ: TypeStruct, count: 1}
			l.order = append(l.order, name)
			continue
		}

		count := max(f.Count, 1)
		l.fields[name] = fieldInfo{offset: offset, typ: f.Type, count: count}
		l.order = append(l.order, name)
		offset += f.Type.Width() * count
	}

	return offset
}

// Size returns the byte size of the layout
func (l *Layout) Size() int {
	return l.size
}

// Names returns the field paths in declaration order
func (l *Layout) Names() []string {
	return append([]string(nil), l.order...)
}

// StructView maps a Layout onto a byte range of a Memory.
type StructView struct {
	arena  Memory
	base   int
	layout *Layout
}

// NewStructView binds layout at base
func NewStructView(arena Memory, base int, layout *Layout) (*StructView, error) {
	if _, err := arena.Slice(base, layout.Size()); err != nil {
		return nil, err
	}

	return &StructView{arena: arena, base: base, layout: layout}, nil
}

// field resolves a path and element index to an address and type
func (v *StructView) field(path string, index int) (int, Type, error) {
	f, ok := v.layout.fields[strings.ToLower(path)]
	if !ok {
		return 0, TypeNone, fmt.Errorf("%w: %s", ErrUnknownField, path)
	}

	if index < 0 || index >= f.count {
		return 0, TypeNone, fmt.Errorf("%w: %s[%d]", ErrOutOfBounds, path, index)
	}

	return v.base + f.offset + index*f.typ.Width(), f.typ, nil
}

// Get reads a scalar field
func (v *StructView) Get(path string) (int64, error) {
	return v.GetAt(path, 0)
}

// GetAt reads element index of an array field
func (v *StructView) GetAt(path string, index int) (int64, error) {
	addr, t, err := v.field(path, index)
	if err != nil {
		return 0, err
	}

	return ReadInt(v.arena, addr, t)
}

// Set writes a scalar field
func (v *StructView) Set(path string, value int64) error {
	return v.SetAt(path, 0, value)
}

// SetAt writes element index of an array field
func (v *StructView) SetAt(path string, index int, value int64) error {
	addr, t, err := v.field(path, index)
	if err != nil {
		return err
	}

	return WriteInt(v.arena, addr, t, value)
}

// GetFloat reads an f32 field
func (v *StructView) GetFloat(path string) (float64, error) {
	addr, _, err := v.field(path, 0)
	if err != nil {
		return 0, err
	}

	return ReadFloat(v.arena, addr)
}

// SetFloat writes an f32 field
func (v *StructView) SetFloat(path string, value float64) error {
	addr, _, err := v.field(path, 0)
	if err != nil {
		return err
	}

	return WriteFloat(v.arena, addr, value)
}

// Offset returns the byte offset of a field from the start of the view
func (v *StructView) Offset(path string) (int, error) {
	f, ok := v.layout.fields[strings.ToLower(path)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, path)
	}

	return f.offset, nil
}

// Size returns the byte size of the view
func (v *StructView) Size() int {
	return v.layout.Size()
}

// Base returns the first address of the view
func (v *StructView) Base() int {
	return v.base
}
