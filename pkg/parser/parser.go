package parser

import (
	"slices"
	"strings"

	"vasm/pkg/diag"
	"vasm/pkg/lexer"
	"vasm/pkg/parser/codegen"
	"vasm/pkg/parser/stack"
	"vasm/pkg/symbols"

	"github.com/charmbracelet/log"
)

// DefaultDataBase is where the data segment starts unless configured otherwise
const DefaultDataBase = 0x0400

// maxExpansions bounds constant splicing at one position
const maxExpansions = 256

// loop is the record of an enclosing whl or for block
type loop struct {
	start  int
	breaks []codegen.Jump
}

type Parser struct {
	tokens     []lexer.Token                 // token stream, constants are spliced in place
	pos        int                           // current token index
	expansions int                           // constant splices since the last advance
	cg         *codegen.Codegen              // code generator instance
	symbols    *symbols.Table                // frames, labels and constants
	frames     *stack.Stack[symbols.FrameID] // lexical frame stack
	loops      *stack.Stack[loop]            // enclosing loops of the current frame
	stops      []string                      // terminators of the block being parsed
	errors     []diag.Diagnostic             // list of errors
	dataBase   int                           // address of the data segment
	entry      string                        // function called after the top-level code, empty for none
}

type Option func(*Parser)

// WithDataBase sets the address of the data segment
func WithDataBase(addr int) Option {
	return func(p *Parser) { p.dataBase = addr }
}

// WithEntry names the function called once the top-level code has run
func WithEntry(name string) Option {
	return func(p *Parser) { p.entry = symbols.Normalize(name) }
}

// NewParser creates a new parser instance over a token stream
func NewParser(tokens []lexer.Token, opts ...Option) *Parser {
	p := &Parser{
		dataBase: DefaultDataBase,
		entry:    "main",
		symbols:  symbols.NewTable(),
		frames:   stack.NewStack(symbols.GlobalFrame),
		loops:    stack.NewStack[loop](),
		errors:   []diag.Diagnostic{},
	}

	for _, o := range opts {
		o(p)
	}

	p.tokens = slices.DeleteFunc(slices.Clone(tokens), func(t lexer.Token) bool { return t.Type == lexer.COMMENT })
	if n := len(p.tokens); n == 0 || p.tokens[n-1].Type != lexer.EOF {
		var pos lexer.Position
		if n > 0 {
			pos = p.tokens[n-1].Pos
		}
		p.tokens = append(p.tokens, lexer.NewToken(lexer.EOF, "", "", pos))
	}

	p.cg = codegen.NewCodegen(p.dataBase)
	return p
}

// Assemble parses tokens into a program and returns it with the number of errors
func Assemble(tokens []lexer.Token, opts ...Option) (*codegen.Program, int) {
	p := NewParser(tokens, opts...)
	p.Parse()

	return p.Program(), p.ErrorCount()
}

// Parse assembles the whole token stream
func (p *Parser) Parse() {
	p.block()
	p.callEntry()

	p.cg.SetLine(p.current().Pos.Line)
	p.cg.Emit(codegen.Instruction{Op: codegen.OpHlt})

	log.Debug("assembled", "instructions", p.cg.PC(), "errors", len(p.errors))
}

// callEntry calls the entry function, when one is defined, after the top-level code
func (p *Parser) callEntry() {
	if p.entry == "" {
		return
	}

	l, ok := p.symbols.FindLabel(symbols.GlobalFrame, p.entry)
	if !ok || !l.IsFunction {
		return
	}

	if len(l.Params) != 0 {
		p.addError(diag.SemanticError, "argument count mismatch", lexer.Token{Lexeme: l.Name, Pos: l.Pos})
		return
	}

	p.cg.Emit(codegen.Instruction{Op: codegen.OpCall, Arg1: int64(l.Address), Name: l.Name})
	p.cg.Emit(codegen.Instruction{Op: codegen.OpDrop})
}

// Program returns the generated program
func (p *Parser) Program() *codegen.Program {
	return p.cg.Program()
}

// Symbols returns the symbol table built during parsing
func (p *Parser) Symbols() *symbols.Table {
	return p.symbols
}

// GetCG returns the code generator instance
func (p *Parser) GetCG() *codegen.Codegen {
	return p.cg
}

// frame returns the current lexical frame
func (p *Parser) frame() symbols.FrameID {
	id, _ := p.frames.Peek()
	return id
}

// current returns the token at the cursor after constant expansion
func (p *Parser) current() lexer.Token {
	return p.peek(0)
}

// peek returns the token n places after the cursor after constant expansion
func (p *Parser) peek(n int) lexer.Token {
	i := p.pos
	for {
		if i >= len(p.tokens) {
			return p.tokens[len(p.tokens)-1]
		}

		p.expand(i)
		if n == 0 || p.tokens[i].Type == lexer.EOF {
			return p.tokens[i]
		}

		i++
		n--
	}
}

// expand splices constants referenced at index i until a non-constant token is there
func (p *Parser) expand(i int) {
	for i < len(p.tokens) {
		tok := p.tokens[i]
		if tok.Type != lexer.ID {
			return
		}

		c, ok := p.symbols.FindConstant(tok.Literal)
		if !ok {
			return
		}

		p.expansions++
		if p.expansions > maxExpansions {
			p.addError(diag.SemanticError, "recursive constant", tok)
			p.tokens = slices.Delete(p.tokens, i, i+1)
			p.expansions = 0
			continue
		}

		p.tokens = slices.Replace(p.tokens, i, i+1, c.Expand(tok.Pos)...)
	}
}

// advance moves past the current token and returns it
func (p *Parser) advance() lexer.Token {
	tok := p.current()
	if tok.Type != lexer.EOF {
		p.pos++
	}

	p.expansions = 0
	return tok
}

// raw returns the token at index i without expanding constants
func (p *Parser) raw(i int) lexer.Token {
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}

	return p.tokens[i]
}

// keyword returns the lowercase name of an identifier token, empty for other tokens
func keyword(tok lexer.Token) string {
	if tok.Type != lexer.ID {
		return ""
	}

	return strings.ToLower(tok.Literal)
}

// isKeyword reports whether the token is one of the given keywords
func isKeyword(tok lexer.Token, words ...string) bool {
	k := keyword(tok)
	return k != "" && slices.Contains(words, k)
}

var reserved = []string{"if", "elif", "else", "end", "whl", "for", "brk"}

// expect consumes a token of the given type or records "<what> expected"
func (p *Parser) expect(tt lexer.TokenType, what string) (lexer.Token, error) {
	tok := p.current()
	if tok.Type != tt {
		return tok, p.fail(diag.SyntaxError, what+" expected", tok)
	}

	return p.advance(), nil
}
