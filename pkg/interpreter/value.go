package interpreter

import (
	"fmt"
	"math"
	"strconv"
)

type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
)

// Value is one slot of the operand stack. Addresses are plain integers.
type Value struct {
	Kind ValueKind
	I64  int64
	F64  float64
}

// String renders the value as a string.
func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	default:
		return strconv.FormatInt(v.I64, 10)
	}
}

// AsFloat64 converts the value to float64.
func (v Value) AsFloat64() float64 {
	if v.Kind == KindFloat {
		return v.F64
	}

	return float64(v.I64)
}

// AsInt64 converts the value to int64, truncating floats.
func (v Value) AsInt64() int64 {
	if v.Kind == KindFloat {
		return int64(v.F64)
	}

	return v.I64
}

// AsBool reports whether the value is non-zero.
func (v Value) AsBool() bool {
	if v.Kind == KindFloat {
		return math.Abs(v.F64) > 0
	}

	return v.I64 != 0
}

// IsFloat reports whether the value holds a float
func (v Value) IsFloat() bool {
	return v.Kind == KindFloat
}

// Int creates an integer Value.
func Int(i int64) Value {
	return Value{Kind: KindInt, I64: i}
}

// Float creates a float Value.
func Float(f float64) Value {
	return Value{Kind: KindFloat, F64: f}
}

func boolValue(b bool) Value {
	if b {
		return Int(1)
	}

	return Int(0)
}

// GoString is used by %#v in test failures
func (v Value) GoString() string {
	if v.Kind == KindFloat {
		return fmt.Sprintf("Float(%g)", v.F64)
	}

	return fmt.Sprintf("Int(%d)", v.I64)
}
