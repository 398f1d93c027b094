package interpreter

import (
	"errors"
	"fmt"
	"io"
	"os"

	"vasm/pkg/config"
	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"
	"vasm/pkg/port"

	"github.com/charmbracelet/log"
)

const (
	maxOperands = 4096 // operand stack depth
	maxFrames   = 1024 // call depth
	tickEvery   = 256  // steps between ticks while running
)

// info table at address 0
var infoLayout = mem.NewLayout(
	mem.Field{Name: "steps", Type: mem.TypeU32},
	mem.Field{Name: "ticks", Type: mem.TypeU32},
	mem.Field{Name: "frames", Type: mem.TypeU16},
	mem.Field{Name: "halted", Type: mem.TypeU8},
	mem.Field{Name: "fault", Type: mem.TypeU8},
	mem.Field{Name: "heap", Nested: []mem.Field{
		{Name: "top", Type: mem.TypeU32},
		{Name: "used", Type: mem.TypeU32},
	}},
)

// Interpreter executes a codegen.Program over one byte arena
type Interpreter struct {
	program *codegen.Program
	pb      []codegen.Instruction // program block (list of instructions)
	ip      int                   // instruction pointer

	cfg    *config.Config
	arena  *mem.Arena
	heap   *mem.Manager
	info   *mem.StructView
	args   *mem.Stack         // argument stack between pass and param
	stacks map[int]*mem.Stack // stacks created by stk, keyed by block address
	ports  *port.Registry
	extra  []port.Port

	operands []Value  // operand stack
	frames   []*Frame // call stack (frames)
	last     Value    // last dropped value
	result   *Value   // value of a top-level ret
	runArgs  []int64

	funcIndex map[int]string // code address -> function name

	out io.Writer // output writer for prt, prs and the console

	// Exec hook (implemented in another file, via SetExecStep)
	execStep func(*Interpreter) (halted bool, err error)

	booted   bool
	halted   bool
	fault    *Fault
	maxSteps int // maximum steps (0 = unlimited)
	steps    int // steps executed
	ticks    int
}

type Option func(*Interpreter)

// WithWriter sets the output writer for print statements
func WithWriter(w io.Writer) Option {
	return func(i *Interpreter) { i.out = w }
}

// WithMaxSteps sets a maximum number of interpreter steps before returning ErrMaxStepsExceeded
func WithMaxSteps(n int) Option {
	return func(i *Interpreter) { i.maxSteps = n }
}

// WithConfig sets the machine configuration
func WithConfig(cfg *config.Config) Option {
	return func(i *Interpreter) { i.cfg = cfg }
}

// WithPorts mounts ports after the console
func WithPorts(ports ...port.Port) Option {
	return func(i *Interpreter) { i.extra = append(i.extra, ports...) }
}

// NewInterpreter creates a new Interpreter instance
func NewInterpreter(program *codegen.Program, opts ...Option) *Interpreter {
	it := &Interpreter{
		program:   program,
		pb:        append([]codegen.Instruction(nil), program.Code...),
		stacks:    make(map[int]*mem.Stack),
		operands:  make([]Value, 0, 64),
		frames:    make([]*Frame, 0, 8),
		funcIndex: make(map[int]string),
	}

	for _, o := range opts {
		o(it)
	}

	if it.cfg == nil {
		it.cfg = config.NewConfig()
	}

	if it.maxSteps == 0 {
		it.maxSteps = it.cfg.MaxSteps
	}

	if it.out == nil {
		it.out = os.Stdout
	}

	if it.execStep == nil {
		it.execStep = coreStep
	}

	it.indexProgram()
	return it
}

// indexProgram names the function entry points for calls and faults
func (i *Interpreter) indexProgram() {
	for _, name := range i.program.Names() {
		if addr, ok := i.program.Function(name); ok {
			i.funcIndex[addr] = name
		}
	}
}

// Boot clears memory, loads the data segment and boots the ports
func (i *Interpreter) Boot() error {
	cfg := i.cfg
	dataEnd := i.program.DataBase + len(i.program.Data)

	if i.program.DataBase < config.ReservedTop {
		return fmt.Errorf("%w: %#x", config.ErrDataBase, i.program.DataBase)
	}
	if dataEnd >= cfg.Ceiling {
		return fmt.Errorf("%w: data ends at %#x", config.ErrCeiling, dataEnd)
	}

	if i.arena == nil || i.arena.Len() != cfg.Ceiling {
		i.arena = mem.NewArena(cfg.Ceiling)
	} else {
		i.arena.Clear()
	}

	if err := i.arena.Load(i.program.DataBase, i.program.Data); err != nil {
		return err
	}

	heapBase := (dataEnd + 3) &^ 3
	i.heap = mem.NewManager(i.arena, heapBase, cfg.Ceiling)

	info, err := mem.NewStructView(i.arena, 0, infoLayout)
	if err != nil {
		return err
	}
	i.info = info

	top, err := i.heap.Alloc(cfg.ArgStack*8, mem.TypeStack)
	if err != nil {
		return fmt.Errorf("argument stack: %w", err)
	}
	if i.args, err = mem.NewStack(i.arena, top, 8, cfg.ArgStack, false); err != nil {
		return err
	}

	ports := append([]port.Port{port.NewConsole()}, i.extra...)
	if i.ports, err = port.NewRegistry(ports...); err != nil {
		return err
	}
	if err := i.ports.Boot(i); err != nil {
		return err
	}

	clear(i.stacks)
	i.ticks = 0
	i.booted = true
	i.restart()

	log.Debug("machine booted", "ceiling", cfg.Ceiling, "data", i.program.DataBase, "heap", heapBase)
	return nil
}

// Reset clears the halt and restarts the program, keeping memory
func (i *Interpreter) Reset() error {
	if !i.booted {
		return i.Boot()
	}

	for _, f := range i.frames {
		if err := i.releaseFrame(f); err != nil {
			return err
		}
	}

	i.args.Reset()
	i.restart()

	return i.ports.Reset(i)
}

func (i *Interpreter) restart() {
	i.ip = 0
	i.operands = i.operands[:0]
	i.frames = i.frames[:0]
	i.last = Value{}
	i.result = nil
	i.halted = false
	i.fault = nil
	i.steps = 0
	i.publish()
}

// Shut shuts the ports down; the next Run boots again
func (i *Interpreter) Shut() error {
	if !i.booted {
		return nil
	}

	i.booted = false
	return i.ports.Shut(i)
}

// Tick advances the ports and, every CollectInterval ticks, compacts the heap
func (i *Interpreter) Tick() error {
	if !i.booted {
		return ErrNotBooted
	}

	i.ticks++
	if err := i.ports.Tick(i); err != nil {
		return err
	}

	if n := i.cfg.CollectInterval; n > 0 && i.cfg.IsFeatureEnabled(config.FeatCollect) && i.ticks%n == 0 {
		merged := i.heap.Collect()
		log.Debug("heap collected", "merged", merged, "high", i.heap.HighWater())
	}

	i.publish()
	return nil
}

// publish mirrors the machine state into the info table
func (i *Interpreter) publish() {
	if i.info == nil {
		return
	}

	var kind FaultKind
	if i.fault != nil {
		kind = i.fault.Kind
	}

	halted := int64(0)
	if i.halted {
		halted = 1
	}

	for _, f := range []struct {
		name string
		v    int64
	}{
		{"steps", int64(i.steps)},
		{"ticks", int64(i.ticks)},
		{"frames", int64(len(i.frames))},
		{"halted", halted},
		{"fault", int64(kind)},
		{"heap.top", int64(i.heap.HighWater())},
		{"heap.used", int64(i.heap.InUse())},
	} {
		if err := i.info.Set(f.name, f.v); err != nil {
			log.Warn("info table", "field", f.name, "error", err)
		}
	}
}

// Program returns the active PB
func (i *Interpreter) Program() []codegen.Instruction {
	return i.pb
}

// Output returns the output writer used for print
func (i *Interpreter) Output() io.Writer {
	return i.out
}

// Memory returns the machine arena
func (i *Interpreter) Memory() mem.Memory {
	return i.arena
}

// Allocator returns the heap manager
func (i *Interpreter) Allocator() mem.Allocator {
	return i.heap
}

// Heap returns the heap manager with its inspection methods
func (i *Interpreter) Heap() *mem.Manager {
	return i.heap
}

// Info returns the machine info table
func (i *Interpreter) Info() *mem.StructView {
	return i.info
}

// Ports returns the mounted ports
func (i *Interpreter) Ports() *port.Registry {
	return i.ports
}

// Fault returns the fault that halted the machine, nil if none
func (i *Interpreter) Fault() *Fault {
	return i.fault
}

// Halted reports whether the machine stopped
func (i *Interpreter) Halted() bool {
	return i.halted
}

// Last returns the last dropped value
func (i *Interpreter) Last() Value {
	return i.last
}

// SetExecStep installs the core step function (implemented in step.go or similar)
func (i *Interpreter) SetExecStep(fn func(*Interpreter) (bool, error)) {
	i.execStep = fn
}

// Step executes a single instruction, returning (halted, error)
func (i *Interpreter) Step() (bool, error) {
	if i.execStep == nil {
		return false, ErrNotImplemented
	}

	if !i.booted {
		return false, ErrNotBooted
	}

	if i.halted {
		return true, ErrHalted
	}

	if i.maxSteps > 0 && i.steps >= i.maxSteps {
		return false, ErrMaxStepsExceeded
	}

	ip := i.ip
	halted, err := i.execStep(i)
	i.steps++

	if err != nil {
		f, ok := err.(*Fault)
		if !ok {
			f = &Fault{Kind: classify(err), IP: ip, Err: err}
			if ip >= 0 && ip < len(i.pb) {
				f.Op = i.pb[ip].Op
			}
		}

		i.fault, i.halted = f, true
		i.publish()

		log.Debug("machine fault", "kind", f.Kind, "ip", f.IP, "function", i.function(), "error", f.Err)
		return true, f
	}

	if halted {
		i.halted = true
		i.publish()
	}

	return halted, nil
}

// Run boots the machine if needed and executes until halt or error. The
// result is the value of a top-level ret, else the last dropped value.
func (i *Interpreter) Run(args ...int64) (Value, error) {
	if !i.booted {
		if err := i.Boot(); err != nil {
			return Value{}, err
		}
	}

	i.runArgs = args

	for {
		halted, err := i.Step()
		if err != nil {
			return Value{}, err
		}

		if halted {
			if i.result != nil {
				return *i.result, nil
			}
			return i.last, nil
		}

		if i.steps%tickEvery == 0 {
			if err := i.Tick(); err != nil {
				return Value{}, err
			}
		}
	}
}

// Exec runs a program with the default configuration and stdout as writer
func Exec(program *codegen.Program, args ...int64) (Value, error) {
	it := NewInterpreter(program, WithWriter(os.Stdout))
	defer it.Shut()

	return it.Run(args...)
}

// PC returns the current instruction pointer
func (i *Interpreter) PC() int {
	return i.ip
}

// SetPC sets the current instruction pointer
func (i *Interpreter) SetPC(pc int) {
	i.ip = pc
}

// currentFrame returns the current call frame, or nil if none
func (i *Interpreter) currentFrame() *Frame {
	if len(i.frames) == 0 {
		return nil
	}

	return i.frames[len(i.frames)-1]
}

// function names the function being executed
func (i *Interpreter) function() string {
	if f := i.currentFrame(); f != nil {
		return f.FuncName
	}

	return "<top>"
}

// PushFrame pushes a new call frame for the function at addr
func (i *Interpreter) PushFrame(addr, retToIP int) (*Frame, error) {
	if len(i.frames) >= maxFrames {
		return nil, fmt.Errorf("%w: %d frames", mem.ErrStackOverflow, maxFrames)
	}

	frame := &Frame{
		FuncName:   i.funcIndex[addr],
		ReturnToIP: retToIP,
		Height:     len(i.operands),
	}

	i.frames = append(i.frames, frame)
	return frame, nil
}

// PopFrame pops the current call frame, releasing its block
func (i *Interpreter) PopFrame() (*Frame, error) {
	if len(i.frames) == 0 {
		return nil, ErrNoFrame
	}

	f := i.frames[len(i.frames)-1]
	i.frames = i.frames[:len(i.frames)-1]

	return f, i.releaseFrame(f)
}

func (i *Interpreter) releaseFrame(f *Frame) error {
	if f.Base == 0 {
		return nil
	}

	base := f.Base
	f.Base = 0
	return i.heap.Free(base)
}

func (i *Interpreter) push(v Value) error {
	if len(i.operands) >= maxOperands {
		return fmt.Errorf("%w: operand stack", mem.ErrStackOverflow)
	}

	i.operands = append(i.operands, v)
	return nil
}

func (i *Interpreter) pop() (Value, error) {
	n := len(i.operands)
	if n == 0 {
		return Value{}, fmt.Errorf("%w: operand stack", mem.ErrStackUnderflow)
	}

	v := i.operands[n-1]
	i.operands = i.operands[:n-1]
	return v, nil
}

// popN pops n values, returned in push order
func (i *Interpreter) popN(n int) ([]Value, error) {
	if n < 0 || n > len(i.operands) {
		return nil, fmt.Errorf("%w: operand stack", mem.ErrStackUnderflow)
	}

	start := len(i.operands) - n
	out := append([]Value(nil), i.operands[start:]...)
	i.operands = i.operands[:start]
	return out, nil
}

var (
	ErrNotImplemented   = errors.New("interpreter step function not linked")
	ErrMaxStepsExceeded = errors.New("maximum steps exceeded")
	ErrNotBooted        = errors.New("machine not booted")
	ErrHalted           = errors.New("machine halted")
)
