package lexer

import (
	"fmt"
)

type TokenType int
type TokenCategory int

// Token is one lexeme with its derived literal. Count is the repeat count of an
// indirection marker. End is the offset just past the lexeme.
type Token struct {
	Type    TokenType // Type of the token
	Lexeme  string    // Actual string from source code
	Literal string    // Derived value: name, decimal number, unquoted string
	Count   int       // Indirection depth for INDIRECT tokens
	Pos     Position  // Position of the first character
	End     int       // Offset just past the last character
}

// NewToken creates a new Token instance
func NewToken(tokenType TokenType, lexeme string, literal string, pos Position) Token {
	return Token{
		Type:    tokenType,
		Lexeme:  lexeme,
		Literal: literal,
		Pos:     pos,
		End:     pos.Offset + len(lexeme),
	}
}

const (
	NONE TokenCategory = iota
	LITERAL
	OPERATOR
	DELIMITER
	DEFINITION
	REFERENCE
)

const (
	EOF TokenType = iota // End of file

	EOL     // \n
	COMMENT // ; ...

	COMMA    // ,
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }

	COMPARE // == != < > <= >=
	ARITH   // + - * / % << >>
	LOGIC   // & | ^ !
	ASSIGN  // =

	LABEL        // :name
	LABEL_ASSIGN // :name =
	CONST        // ::name
	FUNC         // :name(

	ID // identifier

	U8    // unsigned literal fitting 8 bits
	U16   // unsigned literal fitting 16 bits
	U32   // unsigned literal fitting 32 bits
	U64   // unsigned literal fitting 64 bits
	I8    // signed literal fitting 8 bits
	I16   // signed literal fitting 16 bits
	I32   // signed literal fitting 32 bits
	I64   // signed literal fitting 64 bits
	FLOAT // float literal

	STRING    // "..."
	PORT      // #n or #name
	PORT_CALL // #n:method
	INDIRECT  // @, @@, ...
	DIRECTIVE // .include

	ILLEGAL // illegal token
)

var typeNames = map[TokenType]string{
	EOF:          "$",
	EOL:          "eol",
	COMMENT:      "comment",
	COMMA:        ",",
	LPAREN:       "(",
	RPAREN:       ")",
	LBRACKET:     "[",
	RBRACKET:     "]",
	LBRACE:       "{",
	RBRACE:       "}",
	COMPARE:      "cmp",
	ARITH:        "arith",
	LOGIC:        "logic",
	ASSIGN:       "=",
	LABEL:        "label",
	LABEL_ASSIGN: "label=",
	CONST:        "const",
	FUNC:         "func",
	ID:           "id",
	U8:           "u8",
	U16:          "u16",
	U32:          "u32",
	U64:          "u64",
	I8:           "i8",
	I16:          "i16",
	I32:          "i32",
	I64:          "i64",
	FLOAT:        "float",
	STRING:       "string",
	PORT:         "port",
	PORT_CALL:    "portcall",
	INDIRECT:     "@",
	DIRECTIVE:    "directive",
	ILLEGAL:      "illegal",
}

// String returns a string representation of the TokenType
func (t TokenType) String() string {
	if str, ok := typeNames[t]; ok {
		return str
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// String returns a string representation of the Token
func (t Token) String() string {
	if t.Literal == "" {
		return fmt.Sprintf("T_{%s, %q, nil, %s}", t.Type, t.Lexeme, t.Pos.String())
	}

	return fmt.Sprintf("T_{%s, %q, %q, %s}", t.Type, t.Lexeme, t.Literal, t.Pos.String())
}

// GetCategory returns the category of the token
func (t TokenType) GetCategory() TokenCategory {
	switch t {
	case U8, U16, U32, U64, I8, I16, I32, I64, FLOAT, STRING:
		return LITERAL
	case COMPARE, ARITH, LOGIC, ASSIGN:
		return OPERATOR
	case COMMA, LPAREN, RPAREN, LBRACKET, RBRACKET, LBRACE, RBRACE, EOL:
		return DELIMITER
	case LABEL, LABEL_ASSIGN, CONST, FUNC:
		return DEFINITION
	case ID, PORT, PORT_CALL, INDIRECT:
		return REFERENCE
	default:
		return NONE
	}
}

// IsNumber reports whether the token type is a numeric literal
func (t TokenType) IsNumber() bool {
	return t >= U8 && t <= FLOAT
}

// IsSigned reports whether the token type is a signed integer literal
func (t TokenType) IsSigned() bool {
	return t >= I8 && t <= I64
}

// Is reports whether the token has the given type and, if given, one of the literals
func (t Token) Is(tokenType TokenType, literals ...string) bool {
	if t.Type != tokenType {
		return false
	}

	if len(literals) == 0 {
		return true
	}

	for _, l := range literals {
		if t.Literal == l {
			return true
		}
	}

	return false
}

// Moved returns a copy of the token with its position shifted onto base
func (t Token) Moved(base Position) Token {
	length := t.End - t.Pos.Offset
	t.Pos = t.Pos.Shift(base)
	t.End = t.Pos.Offset + length

	return t
}
