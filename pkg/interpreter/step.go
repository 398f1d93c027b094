package interpreter

import (
	"fmt"
	"math"

	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"
)

// coreStep is the main single-step execution function
// it returns (halted, error).
func coreStep(i *Interpreter) (bool, error) {
	pc := i.ip
	if pc < 0 || pc >= len(i.pb) {
		return false, fmt.Errorf("%w: ip %d", mem.ErrOutOfBounds, pc)
	}

	in := i.pb[pc]
	i.ip = pc + 1

	switch in.Op {
	case codegen.OpNop:
		return false, nil

	case codegen.OpHlt:
		return true, nil

	case codegen.OpPush:
		if in.Type == mem.TypeF32 {
			return false, i.push(Float(in.Float))
		}
		return false, i.push(Int(in.Arg1))

	case codegen.OpLea:
		addr, err := i.variable(in)
		if err != nil {
			return false, err
		}
		return false, i.push(Int(int64(addr)))

	case codegen.OpLdv:
		addr, err := i.variable(in)
		if err != nil {
			return false, err
		}
		return false, i.load(addr, in.Type)

	case codegen.OpStv:
		addr, err := i.variable(in)
		if err != nil {
			return false, err
		}
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		return false, i.store(addr, in.Type, v)

	case codegen.OpLoad:
		addr, err := i.pop()
		if err != nil {
			return false, err
		}
		return false, i.load(int(addr.AsInt64()), in.Type)

	case codegen.OpStore:
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		addr, err := i.pop()
		if err != nil {
			return false, err
		}
		return false, i.store(int(addr.AsInt64()), in.Type, v)

	case codegen.OpDrop:
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		i.last = v
		return false, nil

	case codegen.OpAdd, codegen.OpSub, codegen.OpMul, codegen.OpDiv, codegen.OpMod,
		codegen.OpShl, codegen.OpShr, codegen.OpAnd, codegen.OpOr, codegen.OpXor,
		codegen.OpEq, codegen.OpNeq, codegen.OpLt, codegen.OpGt, codegen.OpLe, codegen.OpGe:
		b, err := i.pop()
		if err != nil {
			return false, err
		}
		a, err := i.pop()
		if err != nil {
			return false, err
		}
		res, err := evalBinary(in.Op, a, b)
		if err != nil {
			return false, err
		}
		return false, i.push(res)

	case codegen.OpNot, codegen.OpNeg, codegen.OpAbs:
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		return false, i.push(evalUnary(in.Op, v))

	case codegen.OpJmp:
		i.ip = int(in.Arg1)
		return false, nil

	case codegen.OpJmpf:
		cond, err := i.pop()
		if err != nil {
			return false, err
		}
		if !cond.AsBool() {
			i.ip = int(in.Arg1)
		}
		return false, nil

	case codegen.OpPass:
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		return false, i.args.Push(v.AsInt64())

	case codegen.OpCall:
		return false, i.call(int(in.Arg1))

	case codegen.OpCalli:
		target, err := i.pop()
		if err != nil {
			return false, err
		}
		return false, i.call(int(target.AsInt64()))

	case codegen.OpEnter:
		f := i.currentFrame()
		if f == nil {
			return false, ErrNoFrame
		}
		if in.Arg1 > 0 {
			base, err := i.heap.Alloc(int(in.Arg1), mem.TypeFrame)
			if err != nil {
				return false, err
			}
			f.Base = base
		}
		return false, nil

	case codegen.OpParam:
		f := i.currentFrame()
		if f == nil || f.Base == 0 {
			return false, ErrNoFrame
		}
		v, err := i.args.Pop()
		if err != nil {
			return false, err
		}
		return false, i.store(f.Base+int(in.Arg1), in.Type, Int(v))

	case codegen.OpLeave:
		f := i.currentFrame()
		if f == nil {
			return false, ErrNoFrame
		}
		return false, i.releaseFrame(f)

	case codegen.OpRet:
		return i.ret(in.Arg1 == 1)

	case codegen.OpAlloc:
		size, err := i.pop()
		if err != nil {
			return false, err
		}
		addr, err := i.heap.Alloc(int(size.AsInt64()), in.Type)
		if err != nil {
			return false, err
		}
		return false, i.push(Int(int64(addr)))

	case codegen.OpAllocv:
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		addr, err := i.allocScalar(in.Type, v)
		if err != nil {
			return false, err
		}
		return false, i.push(Int(int64(addr)))

	case codegen.OpAllocs:
		src, err := i.pop()
		if err != nil {
			return false, err
		}
		s, err := i.heap.ReadString(int(src.AsInt64()))
		if err != nil {
			return false, err
		}
		addr, err := i.heap.AllocString(s)
		if err != nil {
			return false, err
		}
		return false, i.push(Int(int64(addr)))

	case codegen.OpFree:
		addr, err := i.pop()
		if err != nil {
			return false, err
		}
		a := int(addr.AsInt64())
		if err := i.heap.Free(a); err != nil {
			return false, err
		}
		delete(i.stacks, a)
		return false, nil

	case codegen.OpSize:
		addr, err := i.pop()
		if err != nil {
			return false, err
		}
		return false, i.push(Int(int64(i.heap.Size(int(addr.AsInt64())))))

	case codegen.OpType:
		addr, err := i.pop()
		if err != nil {
			return false, err
		}
		t, _ := i.heap.Type(int(addr.AsInt64()))
		return false, i.push(Int(int64(t)))

	case codegen.OpStk:
		return false, i.newStack()

	case codegen.OpPsh:
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		s, err := i.stackAt()
		if err != nil {
			return false, err
		}
		return false, s.Push(v.AsInt64())

	case codegen.OpPop:
		s, err := i.stackAt()
		if err != nil {
			return false, err
		}
		v, err := s.Pop()
		if err != nil {
			return false, err
		}
		return false, i.push(Int(v))

	case codegen.OpUse:
		s, err := i.stackAt()
		if err != nil {
			return false, err
		}
		return false, i.push(Int(int64(s.Used())))

	case codegen.OpMks:
		return false, i.newStruct(int(in.Arg1))

	case codegen.OpPort:
		p, err := i.ports.Lookup(in.Name)
		if err != nil {
			return false, err
		}
		return false, i.push(Int(int64(p.Top())))

	case codegen.OpPcal:
		vals, err := i.popN(int(in.Arg1))
		if err != nil {
			return false, err
		}
		args := make([]int64, len(vals))
		for n, v := range vals {
			args[n] = v.AsInt64()
		}
		res, err := i.ports.Call(i, in.Name, args)
		if err != nil {
			return false, err
		}
		return false, i.push(Int(res))

	case codegen.OpPrt:
		v, err := i.pop()
		if err != nil {
			return false, err
		}
		_, err = fmt.Fprintln(i.out, v)
		return false, err

	case codegen.OpPrs:
		addr, err := i.pop()
		if err != nil {
			return false, err
		}
		s, err := i.heap.ReadString(int(addr.AsInt64()))
		if err != nil {
			return false, err
		}
		_, err = fmt.Fprintln(i.out, s)
		return false, err

	case codegen.OpArgv:
		n, err := i.pop()
		if err != nil {
			return false, err
		}
		idx := n.AsInt64()
		if idx < 0 || idx >= int64(len(i.runArgs)) {
			return false, fmt.Errorf("%w: argument %d of %d", mem.ErrOutOfBounds, idx, len(i.runArgs))
		}
		return false, i.push(Int(i.runArgs[idx]))

	case codegen.OpArgc:
		return false, i.push(Int(int64(len(i.runArgs))))

	default:
		return false, fmt.Errorf("%w: %d", ErrUnknownOpcode, uint8(in.Op))
	}
}

// variable resolves the address of a lea, ldv or stv operand
func (i *Interpreter) variable(in codegen.Instruction) (int, error) {
	if in.Arg1 != codegen.ScopeLocal {
		return int(in.Arg2), nil
	}

	f := i.currentFrame()
	if f == nil || f.Base == 0 {
		return 0, ErrNoFrame
	}

	return f.Base + int(in.Arg2), nil
}

// load pushes the value of type t at addr
func (i *Interpreter) load(addr int, t mem.Type) error {
	if t == mem.TypeF32 {
		f, err := mem.ReadFloat(i.arena, addr)
		if err != nil {
			return err
		}
		return i.push(Float(f))
	}

	v, err := mem.ReadInt(i.arena, addr, t)
	if err != nil {
		return err
	}

	return i.push(Int(v))
}

// store writes v as type t at addr
func (i *Interpreter) store(addr int, t mem.Type, v Value) error {
	if t == mem.TypeF32 {
		return mem.WriteFloat(i.arena, addr, v.AsFloat64())
	}

	return mem.WriteInt(i.arena, addr, t, v.AsInt64())
}

// call enters the function at addr; its arguments are on the argument stack
func (i *Interpreter) call(addr int) error {
	if addr < 0 || addr >= len(i.pb) {
		return fmt.Errorf("%w: call to %d", mem.ErrOutOfBounds, addr)
	}

	if _, err := i.PushFrame(addr, i.ip); err != nil {
		return err
	}

	i.ip = addr
	return nil
}

// ret leaves the current function. Every call yields a value, 0 when the
// function returns none. A ret at top level halts with the value as result.
func (i *Interpreter) ret(withValue bool) (bool, error) {
	v := Int(0)
	if withValue {
		var err error
		if v, err = i.pop(); err != nil {
			return false, err
		}
	}

	if i.currentFrame() == nil {
		if withValue {
			i.result = &v
		}
		return true, nil
	}

	f, err := i.PopFrame()
	if err != nil {
		return false, err
	}

	if len(i.operands) > f.Height {
		i.operands = i.operands[:f.Height]
	}

	i.ip = f.ReturnToIP
	return false, i.push(v)
}

// allocScalar allocates a typed scalar block holding v
func (i *Interpreter) allocScalar(t mem.Type, v Value) (int, error) {
	n := v.AsInt64()
	switch t {
	case mem.TypeU8:
		return i.heap.AllocU8(n)
	case mem.TypeI8:
		return i.heap.AllocI8(n)
	case mem.TypeU16:
		return i.heap.AllocU16(n)
	case mem.TypeI16:
		return i.heap.AllocI16(n)
	case mem.TypeU32:
		return i.heap.AllocU32(n)
	case mem.TypeF32:
		return i.heap.AllocF32(v.AsFloat64())
	default:
		return i.heap.AllocI32(n)
	}
}

// newStack pops rolling flag, entry count and entry size and pushes the
// address of a new stack block
func (i *Interpreter) newStack() error {
	vals, err := i.popN(3)
	if err != nil {
		return err
	}

	size, count, rolling := int(vals[0].AsInt64()), int(vals[1].AsInt64()), vals[2].AsBool()
	if size <= 0 || count <= 0 || count > math.MaxInt/size {
		return fmt.Errorf("%w: %d entries of %d bytes", mem.ErrInvalidSize, count, size)
	}

	addr, err := i.heap.Alloc(size*count, mem.TypeStack)
	if err != nil {
		return err
	}

	s, err := mem.NewStack(i.arena, addr, size, count, rolling)
	if err != nil {
		_ = i.heap.Free(addr)
		return err
	}

	i.stacks[addr] = s
	return i.push(Int(int64(addr)))
}

// stackAt pops a stack handle
func (i *Interpreter) stackAt() (*mem.Stack, error) {
	h, err := i.pop()
	if err != nil {
		return nil, err
	}

	s, ok := i.stacks[int(h.AsInt64())]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotStack, h.AsInt64())
	}

	return s, nil
}

// newStruct pops n values into a struct block of 4 byte fields
func (i *Interpreter) newStruct(n int) error {
	vals, err := i.popN(n)
	if err != nil {
		return err
	}

	addr, err := i.heap.Alloc(max(n, 1)*4, mem.TypeStruct)
	if err != nil {
		return err
	}

	for k, v := range vals {
		t := mem.TypeI32
		if v.IsFloat() {
			t = mem.TypeF32
		}
		if err := i.store(addr+k*4, t, v); err != nil {
			return err
		}
	}

	return i.push(Int(int64(addr)))
}

// evalBinary evaluates a binary operation; a float operand makes it a float operation
func evalBinary(op codegen.Operation, a, b Value) (Value, error) {
	if a.IsFloat() || b.IsFloat() {
		if v, ok := evalFloat(op, a.AsFloat64(), b.AsFloat64()); ok {
			return v, nil
		}
	}

	x, y := a.AsInt64(), b.AsInt64()
	switch op {
	case codegen.OpAdd:
		return Int(x + y), nil
	case codegen.OpSub:
		return Int(x - y), nil
	case codegen.OpMul:
		return Int(x * y), nil
	case codegen.OpDiv:
		if y == 0 {
			return Value{}, ErrDivisionByZero
		}
		return Int(x / y), nil
	case codegen.OpMod:
		if y == 0 {
			return Value{}, ErrDivisionByZero
		}
		return Int(x % y), nil
	case codegen.OpShl:
		return Int(x << uint64(y&63)), nil
	case codegen.OpShr:
		return Int(x >> uint64(y&63)), nil
	case codegen.OpAnd:
		return Int(x & y), nil
	case codegen.OpOr:
		return Int(x | y), nil
	case codegen.OpXor:
		return Int(x ^ y), nil
	case codegen.OpEq:
		return boolValue(x == y), nil
	case codegen.OpNeq:
		return boolValue(x != y), nil
	case codegen.OpLt:
		return boolValue(x < y), nil
	case codegen.OpGt:
		return boolValue(x > y), nil
	case codegen.OpLe:
		return boolValue(x <= y), nil
	case codegen.OpGe:
		return boolValue(x >= y), nil
	}

	return Value{}, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
}

// evalFloat handles the operations defined on floats; bit operations fall back to integers
func evalFloat(op codegen.Operation, x, y float64) (Value, bool) {
	switch op {
	case codegen.OpAdd:
		return Float(x + y), true
	case codegen.OpSub:
		return Float(x - y), true
	case codegen.OpMul:
		return Float(x * y), true
	case codegen.OpDiv:
		return Float(x / y), true
	case codegen.OpMod:
		return Float(math.Mod(x, y)), true
	case codegen.OpEq:
		return boolValue(x == y), true
	case codegen.OpNeq:
		return boolValue(x != y), true
	case codegen.OpLt:
		return boolValue(x < y), true
	case codegen.OpGt:
		return boolValue(x > y), true
	case codegen.OpLe:
		return boolValue(x <= y), true
	case codegen.OpGe:
		return boolValue(x >= y), true
	}

	return Value{}, false
}

func evalUnary(op codegen.Operation, v Value) Value {
	switch op {
	case codegen.OpNot:
		return boolValue(!v.AsBool())
	case codegen.OpNeg:
		if v.IsFloat() {
			return Float(-v.F64)
		}
		return Int(-v.I64)
	default:
		if v.IsFloat() {
			return Float(math.Abs(v.F64))
		}
		if v.I64 < 0 {
			return Int(-v.I64)
		}
		return v
	}
}
