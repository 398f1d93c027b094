package codegen

import (
	"fmt"
	"maps"

	"vasm/pkg/mem"
)

type Codegen struct {
	pb       []Instruction  // Program Block
	data     []byte         // initial image of the data segment
	dataBase int            // absolute address of data[0]
	depth    int            // current block nesting
	line     int            // source line stamped on emitted instructions
	strings  map[string]int // interned string literal -> address
	labels   map[string]int // exported names -> code or data address
	exports  []string       // export order, for truncation
}

// Mark is a restore point for discarding the output of a failed statement.
type Mark struct {
	code    int
	data    int
	exports int
}

// NewCodegen creates a new Codegen instance whose data segment starts at dataBase
func NewCodegen(dataBase int) *Codegen {
	return &Codegen{
		pb:       make([]Instruction, 0, 64),
		data:     make([]byte, 0, 64),
		dataBase: dataBase,
		strings:  make(map[string]int),
		labels:   make(map[string]int),
	}
}

// Emit appends an instruction and returns its index
func (c *Codegen) Emit(in Instruction) int {
	in.Depth = c.depth
	in.Line = c.line
	c.pb = append(c.pb, in)

	return len(c.pb) - 1
}

// EmitOp appends an instruction made of an operation and its immediate arguments
func (c *Codegen) EmitOp(op Operation, args ...int64) int {
	in := Instruction{Op: op}
	if len(args) > 0 {
		in.Arg1 = args[0]
	}
	if len(args) > 1 {
		in.Arg2 = args[1]
	}

	return c.Emit(in)
}

// PC returns the index of the next instruction
func (c *Codegen) PC() int {
	return len(c.pb)
}

// At returns a pointer to the instruction at index i
func (c *Codegen) At(i int) *Instruction {
	if i < 0 || i >= len(c.pb) {
		return nil
	}

	return &c.pb[i]
}

// SetLine sets the source line stamped on the next instructions
func (c *Codegen) SetLine(line int) {
	c.line = line
}

// Indent opens a nested block
func (c *Codegen) Indent() {
	c.depth++
}

// Dedent closes a nested block
func (c *Codegen) Dedent() {
	if c.depth > 0 {
		c.depth--
	}
}

// Depth returns the current block nesting
func (c *Codegen) Depth() int {
	return c.depth
}

// Mark records the current output position
func (c *Codegen) Mark() Mark {
	return Mark{code: len(c.pb), data: len(c.data), exports: len(c.exports)}
}

// Truncate drops every instruction and data byte produced after m
func (c *Codegen) Truncate(m Mark) {
	if m.code < len(c.pb) {
		c.pb = c.pb[:m.code]
	}

	if m.data < len(c.data) {
		c.data = c.data[:m.data]
		limit := c.dataBase + m.data
		maps.DeleteFunc(c.strings, func(_ string, addr int) bool { return addr >= limit })
	}

	if m.exports < len(c.exports) {
		for _, name := range c.exports[m.exports:] {
			delete(c.labels, name)
		}
		c.exports = c.exports[:m.exports]
	}
}

// DataAlloc reserves size zeroed bytes in the data segment and returns their address
func (c *Codegen) DataAlloc(size int) int {
	addr := c.dataBase + len(c.data)
	c.data = append(c.data, make([]byte, size)...)

	return addr
}

// WriteData stores a scalar into the data image
func (c *Codegen) WriteData(addr int, t mem.Type, v int64) error {
	return mem.WriteInt(dataImage{c}, addr, t, v)
}

// WriteDataFloat stores a float into the data image
func (c *Codegen) WriteDataFloat(addr int, v float64) error {
	return mem.WriteFloat(dataImage{c}, addr, v)
}

// Intern places a length-prefixed string in the data segment once and returns its address
func (c *Codegen) Intern(s string) int {
	if addr, ok := c.strings[s]; ok {
		return addr
	}

	enc := mem.EncodeString(s)
	addr := c.DataAlloc(len(enc))
	copy(c.data[addr-c.dataBase:], enc)
	c.strings[s] = addr

	return addr
}

// Export records a named address in the program label map
func (c *Codegen) Export(name string, addr int) {
	if _, ok := c.labels[name]; !ok {
		c.exports = append(c.exports, name)
	}
	c.labels[name] = addr
}

// DataBase returns the address of the data segment
func (c *Codegen) DataBase() int {
	return c.dataBase
}

// Program returns the accumulated program
func (c *Codegen) Program() *Program {
	return &Program{
		Code:     append([]Instruction(nil), c.pb...),
		Data:     append([]byte(nil), c.data...),
		DataBase: c.dataBase,
		Entry:    0,
		Labels:   maps.Clone(c.labels),
	}
}

// dataImage exposes the data segment through the mem.Memory interface
type dataImage struct {
	c *Codegen
}

func (d dataImage) Len() int {
	return d.c.dataBase + len(d.c.data)
}

func (d dataImage) Slice(addr, n int) ([]byte, error) {
	off := addr - d.c.dataBase
	if off < 0 || n < 0 || off > len(d.c.data) || n > len(d.c.data)-off {
		return nil, fmt.Errorf("%w: data %d+%d", mem.ErrOutOfBounds, addr, n)
	}

	return d.c.data[off : off+n], nil
}
