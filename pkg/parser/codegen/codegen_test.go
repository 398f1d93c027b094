package codegen_test

import (
	"math"
	"strings"
	"testing"

	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"

	"github.com/google/go-cmp/cmp"
)

func TestPlaceholderPatch(t *testing.T) {
	c := codegen.NewCodegen(0x400)

	c.EmitOp(codegen.OpPush, 1)
	skip := c.Placeholder(codegen.JumpFalse)
	c.EmitOp(codegen.OpPush, 2)
	c.Emit(codegen.Instruction{Op: codegen.OpPrt})
	c.PatchHere(skip)
	c.Emit(codegen.Instruction{Op: codegen.OpHlt})

	got := c.Program().Render(codegen.Compact)
	want := "push 1\njmpf 4\npush 2\nprt\nhlt\n"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rendered program mismatch (-want +got):\n%s", diff)
	}
}

func TestTruncateDiscardsStatement(t *testing.T) {
	c := codegen.NewCodegen(0x400)

	kept := c.Intern("kept")
	c.EmitOp(codegen.OpPush, int64(kept))
	c.Export("g", c.DataAlloc(4))

	m := c.Mark()
	c.EmitOp(codegen.OpPush, int64(c.Intern("dropped")))
	c.Export("h", c.DataAlloc(4))
	c.Truncate(m)

	p := c.Program()
	if len(p.Code) != 1 {
		t.Errorf("expected one instruction, got %d", len(p.Code))
	}
	if _, ok := p.Labels["h"]; ok {
		t.Error("label exported by the discarded statement survived")
	}
	if _, ok := p.Labels["g"]; !ok {
		t.Error("earlier label lost")
	}
	if len(p.Data) != mem.StringHeader+len("kept")+4 {
		t.Errorf("data size: got %d", len(p.Data))
	}

	if again := c.Intern("dropped"); again != 0x400+len(p.Data) {
		t.Errorf("re-interning after truncate must allocate fresh storage, got %#x", again)
	}
}

func TestInternAndWriteData(t *testing.T) {
	c := codegen.NewCodegen(0x400)

	a := c.Intern("hi")
	b := c.Intern("hi")
	if a != b || a != 0x400 {
		t.Errorf("interned twice at %#x and %#x", a, b)
	}

	table := c.DataAlloc(3)
	for i, v := range []int64{10, 10, 40} {
		if err := c.WriteData(table+i, mem.TypeU8, v); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.WriteData(table+3, mem.TypeU8, 1); err == nil {
		t.Error("write past the data image must fail")
	}
	if err := c.WriteData(math.MaxInt-1, mem.TypeI32, 1); err == nil {
		t.Error("write at a wrapping address must fail")
	}

	data := c.Program().Data
	if diff := cmp.Diff([]byte{2, 0, 'h', 'i', 10, 10, 40}, data); diff != "" {
		t.Errorf("data image mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderPretty(t *testing.T) {
	c := codegen.NewCodegen(0x400)
	c.SetLine(1)
	over := c.Placeholder(codegen.JumpAlways)
	c.Export("f", c.PC())
	c.EmitOp(codegen.OpEnter, 4)
	c.Indent()
	c.SetLine(2)
	c.Emit(codegen.Instruction{Op: codegen.OpLdv, Arg1: codegen.ScopeLocal, Type: mem.TypeI32})
	c.Dedent()
	c.EmitOp(codegen.OpRet, 1)
	c.PatchHere(over)

	out := c.Program().Render(codegen.Pretty)
	for _, want := range []string{"0000  jmp 4", "f:\n0001  enter 4", "0002    ldv i32 1 0", "; line 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("pretty output lacks %q:\n%s", want, out)
		}
	}

	if addr, ok := c.Program().Function("f"); !ok || addr != 1 {
		t.Errorf("function lookup: got %d, %v", addr, ok)
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		in   codegen.Instruction
		want string
	}{
		{codegen.Instruction{Op: codegen.OpPush, Arg1: -3}, "push -3"},
		{codegen.Instruction{Op: codegen.OpPush, Type: mem.TypeF32, Float: 2.5}, "push 2.5"},
		{codegen.Instruction{Op: codegen.OpStore, Type: mem.TypeU16}, "st u16"},
		{codegen.Instruction{Op: codegen.OpCall, Arg1: 7, Arg2: 2, Name: "f"}, "call 7 2 f"},
		{codegen.Instruction{Op: codegen.OpPcal, Arg1: 1, Name: "0:print"}, "pcal 1 0:print"},
	}

	for _, test := range tests {
		if got := test.in.String(); got != test.want {
			t.Errorf("got %q, want %q", got, test.want)
		}
	}

	if op, ok := codegen.ParseOperation("jmpf"); !ok || op != codegen.OpJmpf {
		t.Errorf("ParseOperation: got %v, %v", op, ok)
	}
}

func TestOperationMnemonics(t *testing.T) {
	seen := map[string]bool{}
	for op := codegen.OpNop; op.Valid(); op++ {
		name := op.String()
		if seen[name] {
			t.Errorf("mnemonic %q used twice", name)
		}
		seen[name] = true

		if back, ok := codegen.ParseOperation(name); !ok || back != op {
			t.Errorf("%q parses back to %v", name, back)
		}
	}

	if _, ok := codegen.ParseOperation("dup"); ok {
		t.Error("dup is not a machine operation")
	}
}
