package lexer

import (
	"io/fs"
	"slices"

	"vasm/pkg/diag"

	"github.com/charmbracelet/log"
)

// directive handles a directive token and returns the tokens to splice in its place
func (l *Lexer) directive(tok Token) []Token {
	if tok.Literal != "include" {
		l.addError(diag.SyntaxError, "unknown directive", tok.Lexeme, tok.Pos)
		return nil
	}

	name := l.NextToken()
	if name.Type != STRING {
		l.addError(diag.SyntaxError, "string expected", name.Lexeme, name.Pos)
		return []Token{name}
	}

	if l.includeFS == nil {
		l.addError(diag.SyntaxError, "include not supported", name.Literal, tok.Pos)
		return nil
	}

	if name.Literal == l.file || slices.Contains(l.including, name.Literal) {
		l.addError(diag.SyntaxError, "recursive include", name.Literal, name.Pos)
		return nil
	}

	data, err := fs.ReadFile(l.includeFS, name.Literal)
	if err != nil {
		log.Debug("include failed", "file", name.Literal, "error", err)
		l.addError(diag.SyntaxError, "include not found", name.Literal, name.Pos)
		return nil
	}

	chain := append(slices.Clone(l.including), l.file)
	sub := NewLexer(string(data), WithFile(name.Literal), WithIncludeFS(l.includeFS), withIncludeChain(chain))
	tokens := sub.Tokenize()
	l.errors = append(l.errors, sub.errors...)

	// drop the nested EOF
	return tokens[:len(tokens)-1]
}
