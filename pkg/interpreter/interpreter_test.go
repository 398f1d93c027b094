package interpreter_test

import (
	"bytes"
	"errors"
	"testing"

	"vasm/pkg/config"
	"vasm/pkg/interpreter"
	"vasm/pkg/lexer"
	"vasm/pkg/mem"
	"vasm/pkg/parser"
	"vasm/pkg/parser/codegen"
	"vasm/pkg/parser/codegen/assembly/bytecode"

	"github.com/google/go-cmp/cmp"
)

func compile(t *testing.T, src string) *codegen.Program {
	t.Helper()

	tokens, lexErrors := lexer.Tokenize(src)
	if len(lexErrors) > 0 {
		t.Fatalf("unexpected lex errors: %v", lexErrors)
	}

	prog, n := parser.Assemble(tokens)
	if n != 0 {
		t.Fatalf("unexpected %d assembly errors", n)
	}

	return prog
}

func run(t *testing.T, src string, args ...int64) (interpreter.Value, string, error) {
	t.Helper()

	var buf bytes.Buffer
	it := interpreter.NewInterpreter(compile(t, src), interpreter.WithWriter(&buf))
	v, err := it.Run(args...)

	return v, buf.String(), err
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		args   []int64
		value  interpreter.Value
		output string
	}{
		{"call", ":f(a,b) ret(+(a,b)) end\nf(2,3)\n", nil, interpreter.Int(5), ""},
		{"right associative", "prt(10 - 4 - 3)\n", nil, interpreter.Value{}, "9\n"},
		{"for loop", ":s = 0\nfor :i 1, 10\ns = s + i\nend\nprt(s)\n", nil, interpreter.Value{}, "55\n"},
		{"recursion", ":fact(n)\nif(n < 2) ret(1) end\nret(n * fact(n - 1))\nend\nprt(fact(5))\n", nil, interpreter.Value{}, "120\n"},
		{"entry function", ":main() ret(7) end\n", nil, interpreter.Int(7), ""},
		{"float", ":f = 2.5\nprt(f * 3)\n", nil, interpreter.Value{}, "7.5\n"},
		{"while and brk", ":i = 0\nwhl(1)\nif(i > 3) brk end\ni = i + 1\nend\nprt(i)\n", nil, interpreter.Value{}, "4\n"},
		{"elif", ":x = 2\nif(x == 1) prt(1) elif(x == 2) prt(2) else prt(3) end\n", nil, interpreter.Value{}, "2\n"},
		{"table element", ":t dd 0, 0\nt[1] = 5\nprt(t[1])\n", nil, interpreter.Value{}, "5\n"},
		{"indirection", ":p = alloci32(7)\n@p = 9\nprt(@p)\n", nil, interpreter.Value{}, "9\n"},
		{"indirect call", ":g = :sq(a) ret(a * a) end\nprt(cal(g, 4))\n", nil, interpreter.Value{}, "16\n"},
		{"struct literal", ":s = {1, 2, 3}\nprt(ldd(s + 8))\n", nil, interpreter.Value{}, "3\n"},
		{"string", ":s = \"hello\"\nprs(s)\n", nil, interpreter.Value{}, "hello\n"},
		{"heap string", ":s = allocstr(\"copy\")\nprs(s)\nprt(type(s))\n", nil, interpreter.Value{}, "copy\n8\n"},
		{"arguments", "prt(argc)\nprt(arg(1))\n", []int64{10, 20}, interpreter.Value{}, "2\n20\n"},
		{"port call", "#console:print(1, 2)\n#0:hex(255)\n", nil, interpreter.Int(3), "1 2\nff\n"},
		{"block reuse", ":a = alloc(16)\nfree(a)\n:b = alloc(16)\nprt(a == b)\n", nil, interpreter.Value{}, "1\n"},
		{"rolling stack", ":s = stk(4, 2, 1)\npsh(s, 1)\npsh(s, 2)\npsh(s, 3)\nprt(use(s))\nprt(pop(s))\nprt(pop(s))\n", nil, interpreter.Value{}, "2\n3\n2\n"},
		{"top level ret", "ret(42)\nprt(1)\n", nil, interpreter.Int(42), ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, out, err := run(t, test.input, test.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(test.output, out); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(test.value, v); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  interpreter.FaultKind
		cause error
	}{
		{"division by zero", "prt(1 / 0)\n", interpreter.FaultDivisionByZero, interpreter.ErrDivisionByZero},
		{"modulo by zero", ":z = 0\nprt(5 % z)\n", interpreter.FaultDivisionByZero, interpreter.ErrDivisionByZero},
		{"invalid free", "free(12345)\n", interpreter.FaultInvalidFree, mem.ErrInvalidFree},
		{"double free", ":a = alloc(4)\nfree(a)\nfree(a)\n", interpreter.FaultInvalidFree, mem.ErrInvalidFree},
		{"stack overflow", ":s = stk(4, 2, 0)\npsh(s, 1)\npsh(s, 2)\npsh(s, 3)\n", interpreter.FaultStackOverflow, mem.ErrStackOverflow},
		{"stack underflow", ":s = stk(4, 2, 0)\nprt(pop(s))\n", interpreter.FaultStackUnderflow, mem.ErrStackUnderflow},
		{"not a stack", ":a = alloc(8)\nprt(pop(a))\n", interpreter.FaultOutOfBounds, interpreter.ErrNotStack},
		{"out of memory", ":a = alloc(1000000)\n", interpreter.FaultOutOfMemory, mem.ErrOutOfMemory},
		{"argument index", "prt(arg(3))\n", interpreter.FaultOutOfBounds, mem.ErrOutOfBounds},
		{"address past the arena", "prt(ldd($7FFFFFFFFFFFFFFF))\n", interpreter.FaultOutOfBounds, mem.ErrOutOfBounds},
		{"store past the arena", "std($7FFFFFFFFFFFFFFF, 1)\n", interpreter.FaultOutOfBounds, mem.ErrOutOfBounds},
		{"huge alloc", ":a = alloc($7FFFFFFFFFFFFFFF)\n", interpreter.FaultOutOfMemory, mem.ErrOutOfMemory},
		{"huge stack", ":s = stk(8, $7FFFFFFFFFFFFFFF, 0)\n", interpreter.FaultOther, mem.ErrInvalidSize},
		{"runaway recursion", ":f() ret(f()) end\nf()\n", interpreter.FaultStackOverflow, mem.ErrStackOverflow},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := run(t, test.input)

			var f *interpreter.Fault
			if !errors.As(err, &f) {
				t.Fatalf("expected a fault, got %v", err)
			}
			if f.Kind != test.kind {
				t.Errorf("expected %s fault, got %s", test.kind, f.Kind)
			}
			if !errors.Is(err, test.cause) {
				t.Errorf("expected cause %v, got %v", test.cause, f.Err)
			}
		})
	}
}

func TestFaultHaltsUntilReset(t *testing.T) {
	var buf bytes.Buffer
	it := interpreter.NewInterpreter(compile(t, "prt(1)\nprt(1 / 0)\n"), interpreter.WithWriter(&buf))

	if _, err := it.Run(); err == nil {
		t.Fatal("expected a fault")
	}
	if !it.Halted() || it.Fault() == nil {
		t.Fatal("expected the machine to halt with a fault")
	}

	if halted, err := it.Step(); !halted || !errors.Is(err, interpreter.ErrHalted) {
		t.Errorf("expected a halted machine to refuse steps, got %v %v", halted, err)
	}

	fault, err := it.Info().Get("fault")
	if err != nil {
		t.Fatal(err)
	}
	if interpreter.FaultKind(fault) != interpreter.FaultDivisionByZero {
		t.Errorf("expected the info table to record the fault, got %d", fault)
	}

	if err := it.Reset(); err != nil {
		t.Fatal(err)
	}
	if it.Halted() || it.Fault() != nil || it.PC() != 0 {
		t.Error("expected reset to clear the halt")
	}

	if _, err := it.Run(); err == nil {
		t.Error("expected the fault to repeat")
	}
	if diff := cmp.Diff("1\n1\n", buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestMaxSteps(t *testing.T) {
	it := interpreter.NewInterpreter(compile(t, "whl(1)\nend\n"), interpreter.WithMaxSteps(100))

	if _, err := it.Run(); !errors.Is(err, interpreter.ErrMaxStepsExceeded) {
		t.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
	}
}

func TestStepBeforeBoot(t *testing.T) {
	it := interpreter.NewInterpreter(compile(t, "nop\n"))

	if _, err := it.Step(); !errors.Is(err, interpreter.ErrNotBooted) {
		t.Errorf("expected ErrNotBooted, got %v", err)
	}
}

func TestCollectOnTick(t *testing.T) {
	cfg := config.NewConfig()
	cfg.CollectInterval = 1
	cfg.SetFeature(config.FeatCollect, true)

	it := interpreter.NewInterpreter(
		compile(t, ":a = alloc(8)\n:b = alloc(8)\nfree(a)\nfree(b)\n"),
		interpreter.WithConfig(cfg),
		interpreter.WithWriter(&bytes.Buffer{}),
	)

	if err := it.Boot(); err != nil {
		t.Fatal(err)
	}
	base := it.Heap().HighWater()

	if _, err := it.Run(); err != nil {
		t.Fatal(err)
	}
	if it.Heap().HighWater() != base+16 {
		t.Fatalf("expected two blocks above %d, high water is %d", base, it.Heap().HighWater())
	}

	if err := it.Tick(); err != nil {
		t.Fatal(err)
	}
	if it.Heap().HighWater() != base {
		t.Errorf("expected the tick to return the free blocks, high water is %d", it.Heap().HighWater())
	}

	ticks, err := it.Info().Get("ticks")
	if err != nil {
		t.Fatal(err)
	}
	if ticks != 1 {
		t.Errorf("expected 1 tick in the info table, got %d", ticks)
	}
}

func TestFramesReleased(t *testing.T) {
	var buf bytes.Buffer
	it := interpreter.NewInterpreter(
		compile(t, ":f(a, b)\n:x = a * b\nret(x)\nend\nprt(f(3, 4))\nprt(f(5, 6))\n"),
		interpreter.WithWriter(&buf),
	)

	if err := it.Boot(); err != nil {
		t.Fatal(err)
	}
	used := it.Heap().InUse()

	if _, err := it.Run(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff("12\n30\n", buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if it.Heap().InUse() != used {
		t.Errorf("expected frame blocks to be released, %d bytes in use after %d", it.Heap().InUse(), used)
	}
}

func TestBytecodeImage(t *testing.T) {
	src := ":t db 3, 4, 5\n:s = 0\nfor :i 0, 2\ns = s + t[i]\nend\nprt(s)\n"

	image, err := bytecode.Encode(compile(t, src))
	if err != nil {
		t.Fatal(err)
	}

	prog, err := bytecode.Decode(image)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := interpreter.NewInterpreter(prog, interpreter.WithWriter(&buf)).Run(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff("12\n", buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestFloatPromotion(t *testing.T) {
	var buf bytes.Buffer
	it := interpreter.NewInterpreter(compile(t, "prt(1 / 0.5)\nprt(7 / 2)\nprt(neg(2.5))\nprt(abs(-3))\n"), interpreter.WithWriter(&buf))

	if _, err := it.Run(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff("2\n3\n-2.5\n3\n", buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}
