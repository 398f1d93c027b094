package parser

import (
	"strconv"

	"vasm/pkg/diag"
	"vasm/pkg/lexer"
	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"
	"vasm/pkg/symbols"
)

// expr := simple tail
//
// The operator layer is tried once and its right operand is a full expr, so
// chains associate to the right: "a - b - c" is "a - (b - c)".
func (p *Parser) expr() error {
	if err := p.simple(); err != nil {
		return err
	}

	return p.tail()
}

// tail parses an optional binary operator and its right operand
func (p *Parser) tail() error {
	tok := p.current()
	op, ok := binaryOperator(tok)
	if !ok {
		return nil
	}

	p.advance()
	if err := p.expr(); err != nil {
		return err
	}

	p.cg.EmitOp(op)
	return nil
}

// binaryOperator maps an operator token to its operation
func binaryOperator(tok lexer.Token) (codegen.Operation, bool) {
	switch tok.Type {
	case lexer.ARITH, lexer.COMPARE, lexer.LOGIC:
	default:
		return codegen.OpNop, false
	}

	o, ok := LookupOpcode(tok.Lexeme)
	if !ok || o.Info().Arity != 2 {
		return codegen.OpNop, false
	}

	return o.Info().Op, true
}

// simple parses one operand with an optional index suffix
func (p *Parser) simple() error {
	elem, err := p.primary()
	if err != nil {
		return err
	}

	if p.current().Type != lexer.LBRACKET {
		return nil
	}

	if err := p.index(elem); err != nil {
		return err
	}

	p.cg.Emit(codegen.Instruction{Op: codegen.OpLoad, Type: elementType(elem)})
	return nil
}

// primary parses one operand and returns the element type an index suffix reads
func (p *Parser) primary() (mem.Type, error) {
	tok := p.current()

	switch {
	case tok.Type.IsNumber():
		p.advance()
		return mem.TypeI32, p.number(tok, false)

	case tok.Type == lexer.STRING:
		p.advance()
		p.cg.EmitOp(codegen.OpPush, int64(p.cg.Intern(tok.Literal)))
		return mem.TypeU8, nil

	case tok.Type == lexer.LPAREN:
		p.advance()
		if err := p.expr(); err != nil {
			return mem.TypeNone, err
		}
		_, err := p.expect(lexer.RPAREN, ")")
		return mem.TypeI32, err

	case tok.Type == lexer.LBRACE:
		n, err := p.list(lexer.LBRACE, lexer.RBRACE, p.expr)
		if err != nil {
			return mem.TypeNone, err
		}
		p.cg.EmitOp(codegen.OpMks, int64(n))
		return mem.TypeI32, nil

	case tok.Type == lexer.PORT:
		p.advance()
		p.cg.Emit(codegen.Instruction{Op: codegen.OpPort, Name: tok.Literal})
		return mem.TypeU8, nil

	case tok.Type == lexer.PORT_CALL:
		return mem.TypeI32, p.portCall()

	case tok.Type == lexer.INDIRECT:
		return p.deref()

	case tok.Type == lexer.FUNC:
		l, err := p.function()
		if err != nil {
			return mem.TypeNone, err
		}
		p.cg.EmitOp(codegen.OpPush, int64(l.Address))
		return mem.TypeI32, nil

	case tok.Type == lexer.ID:
		return p.reference()

	case tok.Type.GetCategory() == lexer.OPERATOR && tok.Type != lexer.ASSIGN:
		return mem.TypeI32, p.operator()
	}

	return mem.TypeNone, p.fail(diag.SyntaxError, "syntax error", tok)
}

// operator parses an operator used as an opcode "+(a,b)" or a unary sign
func (p *Parser) operator() error {
	tok := p.advance()

	if p.current().Type == lexer.LPAREN {
		op, ok := LookupOpcode(tok.Lexeme)
		if !ok {
			return p.fail(diag.SemanticError, "invalid opcode", tok)
		}
		return p.opcode(op, tok, false)
	}

	switch tok.Lexeme {
	case "-":
		if next := p.current(); next.Type.IsNumber() {
			p.advance()
			return p.number(next, true)
		}
		if err := p.simple(); err != nil {
			return err
		}
		p.cg.EmitOp(codegen.OpNeg)

	case "+":
		return p.simple()

	case "!":
		if err := p.simple(); err != nil {
			return err
		}
		p.cg.EmitOp(codegen.OpNot)

	default:
		return p.fail(diag.SyntaxError, "syntax error", tok)
	}

	return nil
}

// reference parses a name: a label, a function call or an opcode
func (p *Parser) reference() (mem.Type, error) {
	tok := p.current()
	if isKeyword(tok, reserved...) {
		return mem.TypeNone, p.fail(diag.SyntaxError, "syntax error", tok)
	}

	if l, ok := p.symbols.FindLabel(p.frame(), tok.Literal); ok {
		p.advance()

		if l.IsFunction && p.current().Type == lexer.LPAREN {
			return mem.TypeI32, p.call(l, tok)
		}

		p.load(l)
		return l.Type, nil
	}

	if op, ok := LookupOpcode(keyword(tok)); ok {
		p.advance()
		return mem.TypeI32, p.opcode(op, tok, false)
	}

	return mem.TypeNone, p.fail(diag.SemanticError, "undefined label", tok)
}

// call passes the arguments and calls a function label
func (p *Parser) call(l *symbols.Label, name lexer.Token) error {
	n, err := p.list(lexer.LPAREN, lexer.RPAREN, p.passed)
	if err != nil {
		return err
	}

	if n != len(l.Params) {
		return p.fail(diag.SemanticError, "argument count mismatch", name)
	}

	p.cg.Emit(codegen.Instruction{Op: codegen.OpCall, Arg1: int64(l.Address), Arg2: int64(n), Name: l.Name})
	return nil
}

// passed evaluates one argument onto the argument stack
func (p *Parser) passed() error {
	if err := p.expr(); err != nil {
		return err
	}

	p.cg.EmitOp(codegen.OpPass)
	return nil
}

// portCall parses "#port:method(args)"; the arguments stay on the value stack
func (p *Parser) portCall() error {
	tok := p.advance()

	n := 0
	if p.current().Type == lexer.LPAREN {
		var err error
		if n, err = p.list(lexer.LPAREN, lexer.RPAREN, p.expr); err != nil {
			return err
		}
	}

	p.cg.Emit(codegen.Instruction{Op: codegen.OpPcal, Arg1: int64(n), Name: tok.Literal})
	return nil
}

// deref parses "@x": the value x points at; each extra @ follows one more pointer
func (p *Parser) deref() (mem.Type, error) {
	ind := p.advance()

	name, err := p.expect(lexer.ID, "label")
	if err != nil {
		return mem.TypeNone, err
	}

	l, ok := p.symbols.FindLabel(p.frame(), name.Literal)
	if !ok {
		return mem.TypeNone, p.fail(diag.SemanticError, "undefined label", name)
	}

	p.load(l)
	for range ind.Count - 1 {
		p.cg.Emit(codegen.Instruction{Op: codegen.OpLoad, Type: mem.TypeI32})
	}

	typ := elementType(l.Type)
	p.cg.Emit(codegen.Instruction{Op: codegen.OpLoad, Type: typ})

	return typ, nil
}

// opcode compiles an invocation of a built-in operation. The name has been consumed.
func (p *Parser) opcode(op Opcode, tok lexer.Token, statement bool) error {
	info := op.Info()
	if !statement && !info.ExprSafe {
		return p.fail(diag.SemanticError, "opcode cannot be used in an expression", tok)
	}

	switch info.Rule {
	case RuleEmit:
		n, err := p.opcodeArgs(info, p.expr)
		if err != nil {
			return err
		}
		if info.Arity != Variadic && n != info.Arity {
			return p.fail(diag.SemanticError, "argument count mismatch", tok)
		}
		p.cg.Emit(codegen.Instruction{Op: info.Op, Type: info.Type})

	case RuleReturn:
		n, err := p.opcodeArgs(info, p.expr)
		if err != nil {
			return err
		}
		if n > 1 {
			return p.fail(diag.SemanticError, "argument count mismatch", tok)
		}
		p.cg.EmitOp(codegen.OpRet, int64(n))

	case RuleAddr:
		return p.addressOf(tok)

	case RuleIndirectCall:
		n, err := p.opcodeArgs(info, p.expr)
		if err != nil {
			return err
		}
		if n < 1 {
			return p.fail(diag.SemanticError, "argument count mismatch", tok)
		}
		p.cg.EmitOp(codegen.OpCalli, int64(n-1))

	case RuleHalt:
		if _, err := p.opcodeArgs(info, p.expr); err != nil {
			return err
		}
		p.cg.EmitOp(codegen.OpHlt)

	default:
		return p.fail(diag.SemanticError, "invalid opcode", tok)
	}

	return nil
}

// opcodeArgs parses the argument list of an opcode. Opcodes without operands
// may leave out the parentheses. An indirect call keeps its first argument,
// the target, on the value stack and passes the others.
func (p *Parser) opcodeArgs(info OpcodeInfo, each func() error) (int, error) {
	if p.current().Type != lexer.LPAREN {
		if info.Arity == 0 || info.Rule == RuleReturn {
			return 0, nil
		}
		_, err := p.expect(lexer.LPAREN, "(")
		return 0, err
	}

	if info.Rule != RuleIndirectCall {
		return p.list(lexer.LPAREN, lexer.RPAREN, each)
	}

	first := true
	return p.list(lexer.LPAREN, lexer.RPAREN, func() error {
		if first {
			first = false
			return each()
		}
		return p.passed()
	})
}

// addressOf parses "addr(x)"
func (p *Parser) addressOf(tok lexer.Token) error {
	if _, err := p.expect(lexer.LPAREN, "("); err != nil {
		return err
	}

	name, err := p.expect(lexer.ID, "label")
	if err != nil {
		return err
	}

	l, ok := p.symbols.FindLabel(p.frame(), name.Literal)
	if !ok {
		return p.fail(diag.SemanticError, "undefined label", name)
	}

	if _, err := p.expect(lexer.RPAREN, ")"); err != nil {
		return err
	}

	if l.IsFunction {
		p.cg.EmitOp(codegen.OpPush, int64(l.Address))
		return nil
	}

	scope, at := variable(l)
	p.cg.EmitOp(codegen.OpLea, scope, at)
	return nil
}

// list parses "open item, item, ... close" and returns the number of items
func (p *Parser) list(open, close lexer.TokenType, each func() error) (int, error) {
	if _, err := p.expect(open, open.String()); err != nil {
		return 0, err
	}

	if p.current().Type == close {
		p.advance()
		return 0, nil
	}

	n := 0
	for {
		if err := each(); err != nil {
			return n, err
		}
		n++

		if p.current().Type != lexer.COMMA {
			break
		}
		p.advance()
	}

	_, err := p.expect(close, close.String())
	return n, err
}

// index parses "[i]" and turns the base address on the stack into the element address
func (p *Parser) index(elem mem.Type) error {
	p.advance()

	if err := p.expr(); err != nil {
		return err
	}

	if _, err := p.expect(lexer.RBRACKET, "]"); err != nil {
		return err
	}

	p.cg.EmitOp(codegen.OpPush, int64(elementType(elem).Width()))
	p.cg.EmitOp(codegen.OpMul)
	p.cg.EmitOp(codegen.OpAdd)

	return nil
}

// elementType is the scalar type read through a pointer of type t
func elementType(t mem.Type) mem.Type {
	if t.IsScalar() {
		return t
	}

	return mem.TypeI32
}

// variable returns the scope and slot of a data label
func variable(l *symbols.Label) (int64, int64) {
	if l.IsLocal {
		return codegen.ScopeLocal, int64(l.Offset)
	}

	return codegen.ScopeGlobal, int64(l.Address)
}

// load pushes the value of a label: a function or table yields its address
func (p *Parser) load(l *symbols.Label) {
	switch {
	case l.IsFunction:
		p.cg.EmitOp(codegen.OpPush, int64(l.Address))
	case l.IsTable():
		scope, at := variable(l)
		p.cg.EmitOp(codegen.OpLea, scope, at)
	default:
		scope, at := variable(l)
		p.cg.Emit(codegen.Instruction{Op: codegen.OpLdv, Arg1: scope, Arg2: at, Type: l.Type})
	}
}

// store pops the top value into a scalar label
func (p *Parser) store(l *symbols.Label) {
	scope, at := variable(l)
	p.cg.Emit(codegen.Instruction{Op: codegen.OpStv, Arg1: scope, Arg2: at, Type: l.Type})
}

// staticValue is a literal known at assembly time
type staticValue struct {
	i     int64
	f     float64
	s     string
	float bool
	str   bool
}

// staticValue consumes a lone literal, one not followed by an operator or an index
func (p *Parser) staticValue() (staticValue, bool) {
	tok, n, negate := p.current(), 1, false
	if tok.Is(lexer.ARITH, "-") && p.peek(1).Type.IsNumber() {
		tok, n, negate = p.peek(1), 2, true
	}

	if !tok.Type.IsNumber() && tok.Type != lexer.STRING {
		return staticValue{}, false
	}

	switch p.peek(n).Type {
	case lexer.ARITH, lexer.COMPARE, lexer.LOGIC, lexer.LBRACKET:
		return staticValue{}, false
	}

	var v staticValue
	switch {
	case tok.Type == lexer.STRING:
		v = staticValue{s: tok.Literal, str: true}
	case tok.Type == lexer.FLOAT:
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return staticValue{}, false
		}
		v = staticValue{f: f, float: true}
	default:
		i, err := integer(tok)
		if err != nil {
			return staticValue{}, false
		}
		v = staticValue{i: i}
	}

	if negate {
		v.i, v.f = -v.i, -v.f
	}

	for range n {
		p.advance()
	}

	return v, true
}

// writeStatic stores a literal of type t into the data image
func (p *Parser) writeStatic(addr int, t mem.Type, v staticValue) error {
	var err error
	switch {
	case v.str:
		err = p.cg.WriteData(addr, t, int64(p.cg.Intern(v.s)))
	case v.float && t == mem.TypeF32:
		err = p.cg.WriteDataFloat(addr, v.f)
	case v.float:
		err = p.cg.WriteData(addr, t, int64(v.f))
	default:
		err = p.cg.WriteData(addr, t, v.i)
	}

	if err != nil {
		return p.fail(diag.SemanticError, err.Error(), p.current())
	}

	return nil
}

// number emits the push of a numeric literal
func (p *Parser) number(tok lexer.Token, negate bool) error {
	if tok.Type == lexer.FLOAT {
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return p.fail(diag.SyntaxError, "invalid number", tok)
		}
		if negate {
			f = -f
		}

		p.cg.Emit(codegen.Instruction{Op: codegen.OpPush, Float: f, Type: mem.TypeF32})
		return nil
	}

	v, err := integer(tok)
	if err != nil {
		return p.fail(diag.SyntaxError, "invalid number", tok)
	}
	if negate {
		v = -v
	}

	p.cg.EmitOp(codegen.OpPush, v)
	return nil
}

// integer returns the value of an integer literal; u64 values above the int64
// range keep their bit pattern
func integer(tok lexer.Token) (int64, error) {
	if tok.Type.IsSigned() {
		return strconv.ParseInt(tok.Literal, 10, 64)
	}

	u, err := strconv.ParseUint(tok.Literal, 10, 64)
	return int64(u), err
}
