package interpreter

import (
	"errors"
	"fmt"

	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"
	"vasm/pkg/port"
)

type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultOutOfMemory
	FaultStackOverflow
	FaultStackUnderflow
	FaultOutOfBounds
	FaultUnknownOpcode
	FaultDivisionByZero
	FaultInvalidFree
	FaultUnknownPort
	FaultOther
)

var faultNames = [...]string{
	FaultNone:           "none",
	FaultOutOfMemory:    "OutOfMemory",
	FaultStackOverflow:  "StackOverflow",
	FaultStackUnderflow: "StackUnderflow",
	FaultOutOfBounds:    "OutOfBounds",
	FaultUnknownOpcode:  "UnknownOpcode",
	FaultDivisionByZero: "DivisionByZero",
	FaultInvalidFree:    "InvalidFree",
	FaultUnknownPort:    "UnknownPort",
	FaultOther:          "Fault",
}

func (k FaultKind) String() string {
	if int(k) < len(faultNames) {
		return faultNames[k]
	}

	return fmt.Sprintf("FaultKind(%d)", uint8(k))
}

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrNoFrame        = errors.New("frame access outside a function")
	ErrNotStack       = errors.New("address is not a stack")
)

// Fault is a runtime error that halts the machine.
type Fault struct {
	Kind FaultKind
	IP   int
	Op   codegen.Operation
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at %04d (%s): %v", f.Kind, f.IP, f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// classify maps the cause of a fault to its kind
func classify(err error) FaultKind {
	switch {
	case errors.Is(err, mem.ErrOutOfMemory):
		return FaultOutOfMemory
	case errors.Is(err, mem.ErrStackOverflow):
		return FaultStackOverflow
	case errors.Is(err, mem.ErrStackUnderflow):
		return FaultStackUnderflow
	case errors.Is(err, mem.ErrOutOfBounds), errors.Is(err, ErrNoFrame), errors.Is(err, ErrNotStack):
		return FaultOutOfBounds
	case errors.Is(err, ErrUnknownOpcode):
		return FaultUnknownOpcode
	case errors.Is(err, ErrDivisionByZero):
		return FaultDivisionByZero
	case errors.Is(err, mem.ErrInvalidFree):
		return FaultInvalidFree
	case errors.Is(err, port.ErrUnknownPort), errors.Is(err, port.ErrUnknownMethod):
		return FaultUnknownPort
	default:
		return FaultOther
	}
}
