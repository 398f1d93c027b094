package codegen

import (
	"github.com/charmbracelet/log"
)

type JumpKind uint8

const (
	JumpFalse JumpKind = iota // jmpf, taken when the popped condition is zero
	JumpAlways                // jmp
)

// Jump is a pending jump whose target is not known yet.
type Jump struct {
	Kind JumpKind
	At   int
}

// Placeholder emits a jump with an unresolved target
func (c *Codegen) Placeholder(kind JumpKind) Jump {
	op := OpJmpf
	if kind == JumpAlways {
		op = OpJmp
	}

	return Jump{Kind: kind, At: c.EmitOp(op, -1)}
}

// Patch resolves the target of a pending jump
func (c *Codegen) Patch(j Jump, target int) {
	in := c.At(j.At)
	if in == nil || (in.Op != OpJmp && in.Op != OpJmpf) {
		log.Error("Invalid jump record", "at", j.At)
		return
	}

	in.Arg1 = int64(target)
}

// PatchHere resolves a pending jump to the next instruction
func (c *Codegen) PatchHere(j Jump) {
	c.Patch(j, c.PC())
}

// PatchAll resolves every pending jump to the next instruction
func (c *Codegen) PatchAll(jumps []Jump) {
	for _, j := range jumps {
		c.PatchHere(j)
	}
}

// JumpBack emits an unconditional jump to an already known target
func (c *Codegen) JumpBack(target int) int {
	return c.EmitOp(OpJmp, int64(target))
}

// SetArg1 rewrites the first immediate of the instruction at i, used for frame sizes known late
func (c *Codegen) SetArg1(i int, v int64) {
	if in := c.At(i); in != nil {
		in.Arg1 = v
	}
}
