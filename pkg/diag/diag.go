package diag

import (
	"fmt"

	"vasm/pkg/color"
)

type Kind int

const (
	LexError Kind = iota
	SyntaxError
	SemanticError
)

// String returns the name of the diagnostic kind
func (k Kind) String() string {
	switch k {
	case LexError:
		return "LexError"
	case SyntaxError:
		return "SyntaxError"
	case SemanticError:
		return "SemanticError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Diagnostic is one compile-time error with the offending token value and its 1-based position.
type Diagnostic struct {
	Kind    Kind
	Message string
	Value   string
	File    string
	Line    int
	Column  int
}

// New creates a diagnostic
func New(kind Kind, msg, value, file string, line, column int) Diagnostic {
	return Diagnostic{
		Kind:    kind,
		Message: msg,
		Value:   value,
		File:    file,
		Line:    line,
		Column:  column,
	}
}

// Error renders the diagnostic the same way the parser always has
func (d Diagnostic) Error() string {
	msg := color.RedText(d.Message)
	if d.Value != "" {
		msg += " '" + color.BlueText(d.Value) + "'"
	}

	where := fmt.Sprintf("Line: %d, Column %d", d.Line, d.Column)
	if d.File != "" {
		where = d.File + ", " + where
	}

	return msg + " at " + color.YellowText(where)
}

// Count returns how many diagnostics of the given kind are in the list
func Count(list []Diagnostic, kind Kind) int {
	n := 0
	for _, d := range list {
		if d.Kind == kind {
			n++
		}
	}

	return n
}
