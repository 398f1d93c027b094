package lexer

import (
	"io/fs"

	"vasm/pkg/diag"

	"github.com/charmbracelet/log"
)

type Lexer struct {
	input        string            // input string to be tokenized
	length       int               // length of the input string
	position     int               // current position in the input string
	line         int               // current line number for error reporting
	column       int               // current column number for error reporting
	file         string            // file name for positions, empty for the main source
	currentToken Token             // last significant token (for unary sign handling)
	errors       []diag.Diagnostic // lex errors
	includeFS    fs.FS             // include loader, nil when includes are unsupported
	including    []string          // include chain, for cycle detection
}

type Option func(*Lexer)

// WithFile names the source for positions and diagnostics
func WithFile(name string) Option {
	return func(l *Lexer) { l.file = name }
}

// WithIncludeFS enables .include, resolving names against fsys
func WithIncludeFS(fsys fs.FS) Option {
	return func(l *Lexer) { l.includeFS = fsys }
}

// withIncludeChain carries the chain of files being included
func withIncludeChain(chain []string) Option {
	return func(l *Lexer) { l.including = chain }
}

// Create a new lexer instance
func NewLexer(s string, opts ...Option) *Lexer {
	l := &Lexer{
		input:        s,
		length:       len(s),
		position:     0,
		line:         1,
		column:       1,
		currentToken: Token{Type: EOL},
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

// Tokenize is a convenience wrapper returning the tokens and lex errors of s
func Tokenize(s string, opts ...Option) ([]Token, []diag.Diagnostic) {
	l := NewLexer(s, opts...)
	tokens := l.Tokenize()

	return tokens, l.Errors()
}

// Tokenize converts the whole input into tokens, ending with EOF.
// Bad input is recorded and skipped, never fatal.
func (l *Lexer) Tokenize() []Token {
	tokens := make([]Token, 0, l.length/3+1)

	for {
		tok := l.NextToken()

		if tok.Type == DIRECTIVE {
			spliced := l.directive(tok)
			tokens = append(tokens, spliced...)
			if n := len(spliced); n > 0 && spliced[n-1].Type == EOF {
				break
			}
			continue
		}

		tokens = append(tokens, tok)
		if tok.Type == EOF {
			break
		}
	}

	log.Debug("tokenized", "file", l.file, "tokens", len(tokens), "errors", len(l.errors))
	return tokens
}

// Get the next token from the input
func (l *Lexer) NextToken() Token {
	for {
		l.skipWhitespace()

		// End of input
		if l.position >= l.length {
			tok := NewToken(EOF, "", "", l.currentPosition())
			l.currentToken = tok
			return tok
		}

		pos := l.currentPosition()
		d, matched := matchRule(l.input[l.position:], l.prevAllowsUnary())

		if !matched {
			// unknown byte, skip it and retry
			l.advance(1)
			continue
		}

		l.advance(len(d.Lexeme))

		if d.Err != "" {
			l.addError(diag.LexError, d.Err, d.Lexeme, pos)
			continue
		}

		tok := NewToken(d.Type, d.Lexeme, d.Literal, pos)
		tok.Count = d.Count

		if tok.Type != COMMENT {
			l.currentToken = tok
		}

		return tok
	}
}

// View next token without advancing the position
func (l *Lexer) Peek() Token {
	// save state
	cpos := l.position
	cline := l.line
	ccol := l.column
	ctok := l.currentToken
	cerr := len(l.errors)

	token := l.NextToken()

	// restore state
	l.position = cpos
	l.line = cline
	l.column = ccol
	l.currentToken = ctok
	l.errors = l.errors[:cerr]

	return token
}

// Errors returns the lex errors recorded so far
func (l *Lexer) Errors() []diag.Diagnostic {
	return l.errors
}

// ErrorCount returns the number of lex errors recorded so far
func (l *Lexer) ErrorCount() int {
	return len(l.errors)
}

// Skip spaces, tabs and carriage returns; newlines are tokens
func (l *Lexer) skipWhitespace() {
	for l.position < l.length {
		ch := l.input[l.position]
		if ch != ' ' && ch != '\t' && ch != '\r' {
			break
		}

		l.column++
		l.position++
	}
}

// Advance the lexer position by n characters
func (l *Lexer) advance(n int) {
	for range n {
		if l.position >= l.length {
			break
		}

		if l.input[l.position] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}

		l.position++
	}
}

// Get the current position of the lexer
func (l *Lexer) currentPosition() Position {
	return Position{
		File:   l.file,
		Line:   l.line,
		Column: l.column,
		Offset: l.position,
	}
}

// addError records a lex error at pos
func (l *Lexer) addError(kind diag.Kind, msg, value string, pos Position) {
	l.errors = append(l.errors, diag.New(kind, msg, value, pos.File, pos.Line, pos.Column))
}

// Check if the previous token allows a leading sign on a number
func (l *Lexer) prevAllowsUnary() bool {
	switch l.currentToken.Type {
	case EOF, EOL,
		COMMA, LPAREN, LBRACKET, LBRACE,
		ARITH, COMPARE, LOGIC, ASSIGN,
		LABEL_ASSIGN:
		return true
	default:
		return false
	}
}
