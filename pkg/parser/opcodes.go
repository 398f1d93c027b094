package parser

import (
	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"
)

// Rule selects how an opcode invocation is compiled.
type Rule uint8

const (
	RuleEmit         Rule = iota // evaluate the arguments, emit Op
	RuleReturn                   // return from the function, or halt at top level, with an optional value
	RuleAddr                     // push the address of a label instead of its value
	RuleIndirectCall             // call the address given as first argument
	RuleHalt                     // stop the machine
)

// Variadic marks an opcode taking a variable number of arguments
const Variadic = -1

type Opcode int

const (
	OpcodeAdd Opcode = iota
	OpcodeSub
	OpcodeMul
	OpcodeDiv
	OpcodeMod
	OpcodeShl
	OpcodeShr
	OpcodeAnd
	OpcodeOr
	OpcodeXor
	OpcodeEq
	OpcodeNeq
	OpcodeLt
	OpcodeGt
	OpcodeLe
	OpcodeGe
	OpcodeNot
	OpcodeNeg
	OpcodeAbs

	OpcodeAlloc
	OpcodeAllocU8
	OpcodeAllocI8
	OpcodeAllocU16
	OpcodeAllocI16
	OpcodeAllocU32
	OpcodeAllocI32
	OpcodeAllocF32
	OpcodeAllocStr
	OpcodeFree
	OpcodeSize
	OpcodeType
	OpcodeLdb
	OpcodeLdw
	OpcodeLdd
	OpcodeStb
	OpcodeStw
	OpcodeStd
	OpcodeAddr

	OpcodeStk
	OpcodePsh
	OpcodePop
	OpcodeUse

	OpcodePrt
	OpcodePrs

	OpcodeRet
	OpcodeHlt
	OpcodeNop
	OpcodeCal

	OpcodeArg
	OpcodeArgc

	opcodeCount
)

// OpcodeInfo describes one built-in operation. ExprSafe opcodes leave a value
// and may appear inside expressions; the others are statements only.
type OpcodeInfo struct {
	Name     string
	Arity    int
	ExprSafe bool
	Rule     Rule
	Op       codegen.Operation
	Type     mem.Type
}

var opcodes = [opcodeCount]OpcodeInfo{
	OpcodeAdd: {"+", 2, true, RuleEmit, codegen.OpAdd, mem.TypeNone},
	OpcodeSub: {"-", 2, true, RuleEmit, codegen.OpSub, mem.TypeNone},
	OpcodeMul: {"*", 2, true, RuleEmit, codegen.OpMul, mem.TypeNone},
	OpcodeDiv: {"/", 2, true, RuleEmit, codegen.OpDiv, mem.TypeNone},
	OpcodeMod: {"%", 2, true, RuleEmit, codegen.OpMod, mem.TypeNone},
	OpcodeShl: {"<<", 2, true, RuleEmit, codegen.OpShl, mem.TypeNone},
	OpcodeShr: {">>", 2, true, RuleEmit, codegen.OpShr, mem.TypeNone},
	OpcodeAnd: {"&", 2, true, RuleEmit, codegen.OpAnd, mem.TypeNone},
	OpcodeOr:  {"|", 2, true, RuleEmit, codegen.OpOr, mem.TypeNone},
	OpcodeXor: {"^", 2, true, RuleEmit, codegen.OpXor, mem.TypeNone},
	OpcodeEq:  {"==", 2, true, RuleEmit, codegen.OpEq, mem.TypeNone},
	OpcodeNeq: {"!=", 2, true, RuleEmit, codegen.OpNeq, mem.TypeNone},
	OpcodeLt:  {"<", 2, true, RuleEmit, codegen.OpLt, mem.TypeNone},
	OpcodeGt:  {">", 2, true, RuleEmit, codegen.OpGt, mem.TypeNone},
	OpcodeLe:  {"<=", 2, true, RuleEmit, codegen.OpLe, mem.TypeNone},
	OpcodeGe:  {">=", 2, true, RuleEmit, codegen.OpGe, mem.TypeNone},
	OpcodeNot: {"!", 1, true, RuleEmit, codegen.OpNot, mem.TypeNone},
	OpcodeNeg: {"neg", 1, true, RuleEmit, codegen.OpNeg, mem.TypeNone},
	OpcodeAbs: {"abs", 1, true, RuleEmit, codegen.OpAbs, mem.TypeNone},

	OpcodeAlloc:    {"alloc", 1, true, RuleEmit, codegen.OpAlloc, mem.TypeRaw},
	OpcodeAllocU8:  {"allocu8", 1, true, RuleEmit, codegen.OpAllocv, mem.TypeU8},
	OpcodeAllocI8:  {"alloci8", 1, true, RuleEmit, codegen.OpAllocv, mem.TypeI8},
	OpcodeAllocU16: {"allocu16", 1, true, RuleEmit, codegen.OpAllocv, mem.TypeU16},
	OpcodeAllocI16: {"alloci16", 1, true, RuleEmit, codegen.OpAllocv, mem.TypeI16},
	OpcodeAllocU32: {"allocu32", 1, true, RuleEmit, codegen.OpAllocv, mem.TypeU32},
	OpcodeAllocI32: {"alloci32", 1, true, RuleEmit, codegen.OpAllocv, mem.TypeI32},
	OpcodeAllocF32: {"allocf32", 1, true, RuleEmit, codegen.OpAllocv, mem.TypeF32},
	OpcodeAllocStr: {"allocstr", 1, true, RuleEmit, codegen.OpAllocs, mem.TypeString},
	OpcodeFree:     {"free", 1, false, RuleEmit, codegen.OpFree, mem.TypeNone},
	OpcodeSize:     {"size", 1, true, RuleEmit, codegen.OpSize, mem.TypeNone},
	OpcodeType:     {"type", 1, true, RuleEmit, codegen.OpType, mem.TypeNone},
	OpcodeLdb:      {"ldb", 1, true, RuleEmit, codegen.OpLoad, mem.TypeU8},
	OpcodeLdw:      {"ldw", 1, true, RuleEmit, codegen.OpLoad, mem.TypeU16},
	OpcodeLdd:      {"ldd", 1, true, RuleEmit, codegen.OpLoad, mem.TypeI32},
	OpcodeStb:      {"stb", 2, false, RuleEmit, codegen.OpStore, mem.TypeU8},
	OpcodeStw:      {"stw", 2, false, RuleEmit, codegen.OpStore, mem.TypeU16},
	OpcodeStd:      {"std", 2, false, RuleEmit, codegen.OpStore, mem.TypeI32},
	OpcodeAddr:     {"addr", 1, true, RuleAddr, codegen.OpLea, mem.TypeNone},

	OpcodeStk: {"stk", 3, true, RuleEmit, codegen.OpStk, mem.TypeStack},
	OpcodePsh: {"psh", 2, false, RuleEmit, codegen.OpPsh, mem.TypeNone},
	OpcodePop: {"pop", 1, true, RuleEmit, codegen.OpPop, mem.TypeNone},
	OpcodeUse: {"use", 1, true, RuleEmit, codegen.OpUse, mem.TypeNone},

	OpcodePrt: {"prt", 1, false, RuleEmit, codegen.OpPrt, mem.TypeNone},
	OpcodePrs: {"prs", 1, false, RuleEmit, codegen.OpPrs, mem.TypeNone},

	OpcodeRet: {"ret", Variadic, false, RuleReturn, codegen.OpRet, mem.TypeNone},
	OpcodeHlt: {"hlt", 0, false, RuleHalt, codegen.OpHlt, mem.TypeNone},
	OpcodeNop: {"nop", 0, false, RuleEmit, codegen.OpNop, mem.TypeNone},
	OpcodeCal: {"cal", Variadic, true, RuleIndirectCall, codegen.OpCalli, mem.TypeNone},

	OpcodeArg:  {"arg", 1, true, RuleEmit, codegen.OpArgv, mem.TypeNone},
	OpcodeArgc: {"argc", 0, true, RuleEmit, codegen.OpArgc, mem.TypeNone},
}

var opcodeNames = make(map[string]Opcode, opcodeCount)

func init() {
	for i, info := range opcodes {
		opcodeNames[info.Name] = Opcode(i)
	}
}

// LookupOpcode finds an opcode by mnemonic or operator lexeme
func LookupOpcode(name string) (Opcode, bool) {
	o, ok := opcodeNames[name]
	return o, ok
}

// Info returns the table entry of the opcode
func (o Opcode) Info() OpcodeInfo {
	return opcodes[o]
}

// String returns the mnemonic of the opcode
func (o Opcode) String() string {
	return opcodes[o].Name
}
