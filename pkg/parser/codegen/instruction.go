package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"vasm/pkg/mem"
)

type Operation uint8

// List of VM operations
const (
	OpNop Operation = iota

	OpPush  // push immediate Arg1 (Float when Type is f32)
	OpLea   // push address of a variable: Arg1 scope, Arg2 offset or address
	OpLdv   // push variable value: Arg1 scope, Arg2 offset or address
	OpStv   // pop into variable: Arg1 scope, Arg2 offset or address
	OpLoad  // pop address, push value of Type
	OpStore // pop value, pop address, write value of Type
	OpDrop  // pop into the last-value register

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpAnd
	OpOr
	OpXor
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLe
	OpGe
	OpNot
	OpNeg
	OpAbs

	OpJmp  // jump to Arg1
	OpJmpf // pop condition, jump to Arg1 when zero

	OpPass  // pop value onto the argument stack
	OpCall  // call Arg1 with Arg2 arguments, Name is the callee
	OpCalli // pop address, call it with Arg1 arguments
	OpEnter // allocate a frame block of Arg1 bytes
	OpParam // pop argument stack into the frame slot at Arg1
	OpLeave // release the frame block, Arg1 locals
	OpRet   // return, Arg1 is 1 when a value is on the stack
	OpHlt   // stop the machine

	OpAlloc  // pop size, push address of a block of Type
	OpAllocv // pop value, push address of a typed scalar block
	OpAllocs // pop string address, push address of a heap copy
	OpFree   // pop address, release its block
	OpSize   // pop address, push block size
	OpType   // pop address, push block type

	OpStk  // pop rolling flag, count and entry size, push stack handle
	OpPsh  // pop value, pop handle, push onto that stack
	OpPop  // pop handle, push value popped from that stack
	OpUse  // pop handle, push entries in use
	OpMks  // pop Arg1 values, push address of a struct block holding them
	OpPort // push the window address of port Name
	OpPcal // call public Name of a port with Arg1 arguments
	OpPrt  // pop and print a value
	OpPrs  // pop and print a string
	OpArgv // pop index, push run argument
	OpArgc // push the run argument count

	opCount
)

type opInfo struct {
	name  string
	args  int  // immediate arguments shown when rendering
	typed bool // Type is significant
}

var opInfos = [opCount]opInfo{
	OpNop:    {"nop", 0, false},
	OpPush:   {"push", 1, false},
	OpLea:    {"lea", 2, false},
	OpLdv:    {"ldv", 2, true},
	OpStv:    {"stv", 2, true},
	OpLoad:   {"ld", 0, true},
	OpStore:  {"st", 0, true},
	OpDrop:   {"drop", 0, false},
	OpAdd:    {"add", 0, false},
	OpSub:    {"sub", 0, false},
	OpMul:    {"mul", 0, false},
	OpDiv:    {"div", 0, false},
	OpMod:    {"mod", 0, false},
	OpShl:    {"shl", 0, false},
	OpShr:    {"shr", 0, false},
	OpAnd:    {"and", 0, false},
	OpOr:     {"or", 0, false},
	OpXor:    {"xor", 0, false},
	OpEq:     {"eq", 0, false},
	OpNeq:    {"neq", 0, false},
	OpLt:     {"lt", 0, false},
	OpGt:     {"gt", 0, false},
	OpLe:     {"le", 0, false},
	OpGe:     {"ge", 0, false},
	OpNot:    {"not", 0, false},
	OpNeg:    {"neg", 0, false},
	OpAbs:    {"abs", 0, false},
	OpJmp:    {"jmp", 1, false},
	OpJmpf:   {"jmpf", 1, false},
	OpPass:   {"pass", 0, false},
	OpCall:   {"call", 2, false},
	OpCalli:  {"calli", 1, false},
	OpEnter:  {"enter", 1, false},
	OpParam:  {"param", 1, true},
	OpLeave:  {"leave", 1, false},
	OpRet:    {"ret", 1, false},
	OpHlt:    {"hlt", 0, false},
	OpAlloc:  {"alloc", 0, true},
	OpAllocv: {"allocv", 0, true},
	OpAllocs: {"allocs", 0, false},
	OpFree:   {"free", 0, false},
	OpSize:   {"size", 0, false},
	OpType:   {"type", 0, false},
	OpStk:    {"stk", 0, false},
	OpPsh:    {"psh", 0, false},
	OpPop:    {"pop", 0, false},
	OpUse:    {"use", 0, false},
	OpMks:    {"mks", 1, false},
	OpPort:   {"port", 0, false},
	OpPcal:   {"pcal", 1, false},
	OpPrt:    {"prt", 0, false},
	OpPrs:    {"prs", 0, false},
	OpArgv:   {"argv", 0, false},
	OpArgc:   {"argc", 0, false},
}

// Variable scopes for lea, ldv and stv
const (
	ScopeGlobal int64 = iota
	ScopeLocal
)

// String returns the mnemonic of the operation
func (o Operation) String() string {
	if o < opCount {
		return opInfos[o].name
	}

	return fmt.Sprintf("op(%d)", uint8(o))
}

// Valid reports whether o is a known operation
func (o Operation) Valid() bool {
	return o < opCount
}

// ParseOperation looks an operation up by mnemonic
func ParseOperation(name string) (Operation, bool) {
	for i, info := range opInfos {
		if info.name == name {
			return Operation(i), true
		}
	}

	return OpNop, false
}

type Instruction struct {
	Op Operation

	Arg1  int64
	Arg2  int64
	Float float64  // immediate for f32 pushes
	Name  string   // callee, port or port method
	Type  mem.Type // access type for loads, stores and allocations

	Depth int // block nesting, for pretty rendering
	Line  int // source line
}

// String returns the compact form of the instruction
func (i Instruction) String() string {
	if !i.Op.Valid() {
		return i.Op.String()
	}

	info := opInfos[i.Op]
	parts := []string{info.name}

	if info.typed {
		parts = append(parts, i.Type.String())
	}

	switch {
	case i.Op == OpPush && i.Type == mem.TypeF32:
		parts = append(parts, strconv.FormatFloat(i.Float, 'g', -1, 64))
	case info.args >= 1:
		parts = append(parts, strconv.FormatInt(i.Arg1, 10))
	}

	if info.args >= 2 {
		parts = append(parts, strconv.FormatInt(i.Arg2, 10))
	}

	if i.Name != "" {
		parts = append(parts, i.Name)
	}

	return strings.Join(parts, " ")
}

// GetLexOperation maps an operator lexeme to its VM operation
func GetLexOperation(lexeme string) (Operation, bool) {
	switch lexeme {
	case "+":
		return OpAdd, true
	case "-":
		return OpSub, true
	case "*":
		return OpMul, true
	case "/":
		return OpDiv, true
	case "%":
		return OpMod, true
	case "<<":
		return OpShl, true
	case ">>":
		return OpShr, true
	case "&":
		return OpAnd, true
	case "|":
		return OpOr, true
	case "^":
		return OpXor, true
	case "!":
		return OpNot, true
	case "==":
		return OpEq, true
	case "!=":
		return OpNeq, true
	case "<":
		return OpLt, true
	case ">":
		return OpGt, true
	case "<=":
		return OpLe, true
	case ">=":
		return OpGe, true
	default:
		return OpNop, false
	}
}
