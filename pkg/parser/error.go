package parser

import (
	"errors"

	"vasm/pkg/diag"
	"vasm/pkg/lexer"

	"github.com/charmbracelet/log"
)

// errStatement aborts the statement being parsed; the diagnostic is already recorded
var errStatement = errors.New("statement failed")

// addError records a diagnostic at the token position
func (p *Parser) addError(kind diag.Kind, msg string, tok lexer.Token) {
	d := diag.New(kind, msg, tok.Lexeme, tok.Pos.File, tok.Pos.Line, tok.Pos.Column)
	p.errors = append(p.errors, d)

	log.Debug("assembly error", "kind", kind, "message", msg, "value", tok.Lexeme, "line", tok.Pos.Line)
}

// fail records a diagnostic and returns the error that unwinds the statement
func (p *Parser) fail(kind diag.Kind, msg string, tok lexer.Token) error {
	p.addError(kind, msg, tok)
	return errStatement
}

// sync skips to the next statement boundary: an end of line, the end of input
// or a terminator of the enclosing block
func (p *Parser) sync() {
	for {
		tok := p.current()
		switch {
		case tok.Type == lexer.EOF:
			return
		case tok.Type == lexer.EOL:
			p.advance()
			return
		case isKeyword(tok, p.stops...):
			return
		}

		p.advance()
	}
}

// Errors returns the list of assembly errors
func (p *Parser) Errors() []diag.Diagnostic {
	return p.errors
}

// ErrorCount returns the number of assembly errors
func (p *Parser) ErrorCount() int {
	return len(p.errors)
}
