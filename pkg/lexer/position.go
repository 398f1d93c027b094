package lexer

import "fmt"

type Position struct {
	File   string
	Line   int
	Column int
	Offset int
}

// Returns a string representation of the Position
func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d, %d, %d", p.File, p.Line, p.Column, p.Offset)
	}

	return fmt.Sprintf("%d, %d, %d", p.Line, p.Column, p.Offset)
}

// Shift moves a position normalised to line 1, column 1, offset 0 onto base.
// Tokens on the first line keep base's line and move right of base's column.
func (p Position) Shift(base Position) Position {
	out := Position{
		File:   base.File,
		Line:   base.Line + p.Line - 1,
		Column: p.Column,
		Offset: base.Offset + p.Offset,
	}

	if p.Line == 1 {
		out.Column = base.Column + p.Column - 1
	}

	return out
}

// Relative normalises p against base so that base becomes line 1, column 1, offset 0
func (p Position) Relative(base Position) Position {
	out := Position{
		File:   p.File,
		Line:   p.Line - base.Line + 1,
		Column: p.Column,
		Offset: p.Offset - base.Offset,
	}

	if p.Line == base.Line {
		out.Column = p.Column - base.Column + 1
	}

	return out
}
