package parser

import (
	"slices"

	"vasm/pkg/diag"
	"vasm/pkg/lexer"
	"vasm/pkg/mem"
	"vasm/pkg/parser/codegen"
	"vasm/pkg/parser/stack"
	"vasm/pkg/symbols"

	"github.com/charmbracelet/log"
)

// block parses statements until one of the terminators, which is returned
// without being consumed. Without terminators it runs to the end of input.
func (p *Parser) block(terminators ...string) (lexer.Token, error) {
	saved := p.stops
	p.stops = terminators
	defer func() { p.stops = saved }()

	for {
		tok := p.current()
		switch {
		case tok.Type == lexer.EOF:
			if len(terminators) > 0 {
				return tok, p.fail(diag.SyntaxError, "end expected", tok)
			}
			return tok, nil

		case tok.Type == lexer.EOL:
			p.advance()
			continue

		case isKeyword(tok, terminators...):
			return tok, nil
		}

		p.statementGuarded()
	}
}

// statementGuarded parses one statement. On failure the statement's output is
// discarded and parsing resumes at the next statement boundary.
func (p *Parser) statementGuarded() {
	start := p.pos
	mark := p.cg.Mark()
	pc := p.cg.PC()
	p.cg.SetLine(p.current().Pos.Line)

	err := p.statement()
	if err == nil {
		return
	}

	p.cg.Truncate(mark)
	if l := p.loops.PeekPtr(); l != nil {
		l.breaks = slices.DeleteFunc(l.breaks, func(j codegen.Jump) bool { return j.At >= pc })
	}

	p.sync()
	if p.pos == start {
		p.advance()
	}
}

func (p *Parser) statement() error {
	tok := p.current()

	switch tok.Type {
	case lexer.CONST:
		return p.constant()
	case lexer.FUNC:
		_, err := p.function()
		return err
	case lexer.LABEL_ASSIGN:
		return p.labelAssign()
	case lexer.LABEL:
		return p.labelTable()
	case lexer.INDIRECT:
		if p.peek(2).Type == lexer.ASSIGN {
			return p.indirectAssign()
		}
		return p.exprStatement()
	case lexer.ID:
		return p.identStatement(tok)
	}

	switch tok.Type.GetCategory() {
	case lexer.LITERAL, lexer.REFERENCE:
		return p.exprStatement()
	case lexer.OPERATOR:
		if tok.Type != lexer.ASSIGN {
			return p.exprStatement()
		}
	}

	if tok.Type == lexer.LPAREN || tok.Type == lexer.LBRACE {
		return p.exprStatement()
	}

	return p.fail(diag.SyntaxError, "syntax error", tok)
}

// identStatement dispatches a statement starting with a name: a keyword, a
// label assignment, an element store, an opcode or a call.
func (p *Parser) identStatement(tok lexer.Token) error {
	switch keyword(tok) {
	case "if":
		return p.ifStatement()
	case "whl":
		return p.whileStatement()
	case "for":
		return p.forStatement()
	case "brk":
		return p.breakStatement()
	case "end", "elif", "else":
		return p.fail(diag.SyntaxError, "syntax error", tok)
	}

	if l, ok := p.symbols.FindLabel(p.frame(), tok.Literal); ok {
		switch p.peek(1).Type {
		case lexer.ASSIGN:
			return p.assign(l)
		case lexer.LBRACKET:
			if !l.IsFunction {
				return p.elementStatement(l)
			}
		}

		return p.exprStatement()
	}

	if op, ok := LookupOpcode(keyword(tok)); ok {
		if !op.Info().ExprSafe {
			p.advance()
			return p.opcode(op, tok, true)
		}

		return p.exprStatement()
	}

	return p.fail(diag.SemanticError, "syntax error", tok)
}

// exprStatement evaluates an expression and drops its value
func (p *Parser) exprStatement() error {
	if err := p.expr(); err != nil {
		return err
	}

	p.cg.EmitOp(codegen.OpDrop)
	return nil
}

// constant records the raw tokens up to the end of the line as the constant body
func (p *Parser) constant() error {
	def := p.advance()

	start := p.pos
	for t := p.raw(p.pos); t.Type != lexer.EOL && t.Type != lexer.EOF; t = p.raw(p.pos) {
		p.pos++
	}

	body := slices.Clone(p.tokens[start:p.pos])
	if err := p.symbols.NewConstant(def.Literal, body, def.Pos); err != nil {
		return p.fail(diag.SemanticError, "duplicate constant", def)
	}

	return nil
}

// labelAssign parses ":x = expr". Globals live in the data segment, locals in
// the frame block. The name is bound once the initial value is parsed.
func (p *Parser) labelAssign() error {
	def := p.advance()
	if _, err := p.expect(lexer.ASSIGN, "="); err != nil {
		return err
	}

	if p.symbols.HasLabel(p.frame(), def.Literal) {
		return p.fail(diag.SemanticError, "duplicate label", def)
	}

	l := &symbols.Label{Name: def.Literal, Type: mem.TypeI32, Size: symbols.SlotSize, Pos: def.Pos}
	if p.current().Type == lexer.FLOAT {
		l.Type = mem.TypeF32
	}

	f := p.symbols.Frame(p.frame())
	if f.Global {
		l.Address = p.cg.DataAlloc(symbols.SlotSize)
		if err := p.globalInit(l); err != nil {
			return err
		}
	} else {
		l.IsLocal = true
		l.Offset = f.Reserve(symbols.SlotSize)
		if err := p.expr(); err != nil {
			return err
		}
		p.store(l)
	}

	return p.define(l, def)
}

// globalInit writes a lone literal straight into the data image, anything else
// is computed at run time
func (p *Parser) globalInit(l *symbols.Label) error {
	if v, ok := p.staticValue(); ok {
		return p.writeStatic(l.Address, l.Type, v)
	}

	if err := p.expr(); err != nil {
		return err
	}

	p.store(l)
	return nil
}

// labelTable parses ":x [db|dw|dd] v, v, ...". Tables always live in the data
// segment; a single value makes a scalar.
func (p *Parser) labelTable() error {
	def := p.advance()
	if p.symbols.HasLabel(p.frame(), def.Literal) {
		return p.fail(diag.SemanticError, "duplicate label", def)
	}

	typ := mem.TypeU32
	switch keyword(p.current()) {
	case "db":
		typ = mem.TypeU8
		p.advance()
	case "dw":
		typ = mem.TypeU16
		p.advance()
	case "dd":
		p.advance()
	}

	type entry struct {
		static  bool
		value   staticValue
		address int // index of the address push of a computed entry
	}

	var entries []entry
	for !p.endOfList() {
		if v, ok := p.staticValue(); ok {
			entries = append(entries, entry{static: true, value: v})
		} else {
			at := p.cg.EmitOp(codegen.OpPush, -1)
			if err := p.expr(); err != nil {
				return err
			}
			p.cg.Emit(codegen.Instruction{Op: codegen.OpStore, Type: typ})
			entries = append(entries, entry{address: at})
		}

		if p.current().Type != lexer.COMMA {
			break
		}
		p.advance()
	}

	count := max(len(entries), 1)
	width := typ.Width()
	base := p.cg.DataAlloc(count * width)

	for i, e := range entries {
		addr := base + i*width
		if !e.static {
			p.cg.SetArg1(e.address, int64(addr))
			continue
		}

		if err := p.writeStatic(addr, typ, e.value); err != nil {
			return err
		}
	}

	l := &symbols.Label{
		Name:       def.Literal,
		Type:       typ,
		Size:       count * width,
		Address:    base,
		Dimensions: count,
		Pos:        def.Pos,
	}

	return p.define(l, def)
}

// endOfList reports whether the statement has no further values on this line
func (p *Parser) endOfList() bool {
	tok := p.current()
	return tok.Type == lexer.EOL || tok.Type == lexer.EOF || isKeyword(tok, p.stops...)
}

// define binds l in the current frame and exports global data labels
func (p *Parser) define(l *symbols.Label, def lexer.Token) error {
	if err := p.symbols.NewLabel(p.frame(), l); err != nil {
		return p.fail(diag.SemanticError, "duplicate label", def)
	}

	if p.frame() == symbols.GlobalFrame {
		p.cg.Export(l.Name, l.Address)
	}

	return nil
}

// assign parses "x = expr"
func (p *Parser) assign(l *symbols.Label) error {
	name := p.advance()
	p.advance()

	if l.IsFunction || l.IsTable() {
		return p.fail(diag.SemanticError, "invalid assignment", name)
	}

	if err := p.expr(); err != nil {
		return err
	}

	p.store(l)
	return nil
}

// elementStatement parses "x[i] = expr" or an expression starting with "x[i]"
func (p *Parser) elementStatement(l *symbols.Label) error {
	p.advance()
	p.load(l)

	if err := p.index(l.Type); err != nil {
		return err
	}

	if p.current().Type == lexer.ASSIGN {
		p.advance()
		if err := p.expr(); err != nil {
			return err
		}

		p.cg.Emit(codegen.Instruction{Op: codegen.OpStore, Type: elementType(l.Type)})
		return nil
	}

	p.cg.Emit(codegen.Instruction{Op: codegen.OpLoad, Type: elementType(l.Type)})
	if err := p.tail(); err != nil {
		return err
	}

	p.cg.EmitOp(codegen.OpDrop)
	return nil
}

// indirectAssign parses "@x = expr"; each extra @ is one more dereference
func (p *Parser) indirectAssign() error {
	ind := p.advance()
	name, err := p.expect(lexer.ID, "label")
	if err != nil {
		return err
	}

	l, ok := p.symbols.FindLabel(p.frame(), name.Literal)
	if !ok {
		return p.fail(diag.SemanticError, "undefined label", name)
	}
	if l.IsFunction {
		return p.fail(diag.SemanticError, "invalid assignment", name)
	}
	p.advance()

	p.load(l)
	for range ind.Count - 1 {
		p.cg.Emit(codegen.Instruction{Op: codegen.OpLoad, Type: mem.TypeI32})
	}

	if err := p.expr(); err != nil {
		return err
	}

	p.cg.Emit(codegen.Instruction{Op: codegen.OpStore, Type: elementType(l.Type)})
	return nil
}

// function parses ":name(params) ... end" and returns its label. The body is
// jumped over so definitions can sit between top-level statements.
func (p *Parser) function() (*symbols.Label, error) {
	def := p.advance()

	if p.frame() != symbols.GlobalFrame {
		return nil, p.fail(diag.SemanticError, "nested function", def)
	}
	if p.symbols.HasLabel(symbols.GlobalFrame, def.Literal) {
		return nil, p.fail(diag.SemanticError, "duplicate label", def)
	}

	params, err := p.params()
	if err != nil {
		return nil, err
	}

	over := p.cg.Placeholder(codegen.JumpAlways)

	names := make([]string, len(params))
	for i, t := range params {
		names[i] = symbols.Normalize(t.Literal)
	}

	l := &symbols.Label{
		Name:       def.Literal,
		IsFunction: true,
		Type:       mem.TypeI32,
		Address:    p.cg.PC(),
		Params:     names,
		Pos:        def.Pos,
	}
	if err := p.define(l, def); err != nil {
		return nil, err
	}

	id := p.symbols.NewFrame(l.Name)
	p.frames.Push(id)
	defer p.frames.Pop()

	frame := p.symbols.Frame(id)
	reserved := (len(params) + p.countLocals()) * symbols.SlotSize
	enter := p.cg.Emit(codegen.Instruction{Op: codegen.OpEnter, Arg1: int64(reserved), Name: l.Name})

	p.cg.Indent()
	err = p.functionBody(frame, params)
	p.cg.Dedent()
	if err != nil {
		return nil, err
	}

	p.cg.Emit(codegen.Instruction{Op: codegen.OpLeave, Arg1: int64(len(frame.Locals()))})
	p.cg.Emit(codegen.Instruction{Op: codegen.OpRet})

	p.cg.SetArg1(enter, int64(max(reserved, frame.Size)))
	p.cg.PatchHere(over)

	log.Debug("function assembled", "name", l.Name, "address", l.Address, "frame", frame.Size)
	return l, nil
}

func (p *Parser) functionBody(frame *symbols.Frame, params []lexer.Token) error {
	slots := make([]*symbols.Label, len(params))
	for i, t := range params {
		slots[i] = &symbols.Label{
			Name:    t.Literal,
			IsLocal: true,
			Type:    mem.TypeI32,
			Size:    symbols.SlotSize,
			Offset:  frame.Reserve(symbols.SlotSize),
			Pos:     t.Pos,
		}

		if err := p.symbols.NewLabel(frame.ID, slots[i]); err != nil {
			return p.fail(diag.SemanticError, "duplicate label", t)
		}
	}

	// arguments were passed in order, the last one is on top
	for i := len(slots) - 1; i >= 0; i-- {
		p.cg.Emit(codegen.Instruction{Op: codegen.OpParam, Arg1: int64(slots[i].Offset), Type: slots[i].Type})
	}

	saved := p.loops
	p.loops = stack.NewStack[loop]()
	defer func() { p.loops = saved }()

	if _, err := p.block("end"); err != nil {
		return err
	}

	p.advance()
	return nil
}

// params parses the parenthesised parameter names of a function
func (p *Parser) params() ([]lexer.Token, error) {
	var params []lexer.Token

	_, err := p.list(lexer.LPAREN, lexer.RPAREN, func() error {
		tok, err := p.expect(lexer.ID, "parameter")
		if err != nil {
			return err
		}

		params = append(params, tok)
		return nil
	})

	return params, err
}

// countLocals scans the function body ahead, without expanding constants,
// for declarations that take a frame slot
func (p *Parser) countLocals() int {
	count, depth := 0, 0

	for i := p.pos; ; i++ {
		tok := p.raw(i)
		switch {
		case tok.Type == lexer.EOF:
			return count
		case tok.Type == lexer.LABEL_ASSIGN:
			count++
		case tok.Type == lexer.LABEL && isKeyword(p.raw(i-1), "for"):
			count++
		case isKeyword(tok, "if", "whl", "for"):
			depth++
		case isKeyword(tok, "end"):
			if depth == 0 {
				return count
			}
			depth--
		}
	}
}

// condition parses a parenthesised expression
func (p *Parser) condition() error {
	if _, err := p.expect(lexer.LPAREN, "("); err != nil {
		return err
	}

	if err := p.expr(); err != nil {
		return err
	}

	_, err := p.expect(lexer.RPAREN, ")")
	return err
}

func (p *Parser) ifStatement() error {
	p.advance()

	var ends []codegen.Jump
	for {
		if err := p.condition(); err != nil {
			return err
		}

		next := p.cg.Placeholder(codegen.JumpFalse)

		p.cg.Indent()
		term, err := p.block("elif", "else", "end")
		p.cg.Dedent()
		if err != nil {
			return err
		}
		p.advance()

		switch keyword(term) {
		case "elif":
			ends = append(ends, p.cg.Placeholder(codegen.JumpAlways))
			p.cg.PatchHere(next)

		case "else":
			ends = append(ends, p.cg.Placeholder(codegen.JumpAlways))
			p.cg.PatchHere(next)

			p.cg.Indent()
			_, err := p.block("end")
			p.cg.Dedent()
			if err != nil {
				return err
			}
			p.advance()

			p.cg.PatchAll(ends)
			return nil

		default:
			p.cg.PatchHere(next)
			p.cg.PatchAll(ends)
			return nil
		}
	}
}

func (p *Parser) whileStatement() error {
	p.advance()

	start := p.cg.PC()
	if err := p.condition(); err != nil {
		return err
	}

	exit := p.cg.Placeholder(codegen.JumpFalse)
	return p.loopBody(start, exit, nil)
}

// forStatement parses "for :i min,max". The counter runs from min up to and
// including max; max is evaluated again on every iteration.
func (p *Parser) forStatement() error {
	p.advance()

	def, err := p.expect(lexer.LABEL, "label")
	if err != nil {
		return err
	}

	counter, err := p.counter(def)
	if err != nil {
		return err
	}

	if err := p.expr(); err != nil {
		return err
	}
	p.store(counter)

	if _, err := p.expect(lexer.COMMA, ","); err != nil {
		return err
	}

	start := p.cg.PC()
	p.load(counter)
	if err := p.expr(); err != nil {
		return err
	}
	p.cg.EmitOp(codegen.OpLe)

	exit := p.cg.Placeholder(codegen.JumpFalse)
	return p.loopBody(start, exit, func() {
		p.load(counter)
		p.cg.EmitOp(codegen.OpPush, 1)
		p.cg.EmitOp(codegen.OpAdd)
		p.store(counter)
	})
}

// counter returns the loop variable, reusing a scalar of the current frame
func (p *Parser) counter(def lexer.Token) (*symbols.Label, error) {
	if p.symbols.HasLabel(p.frame(), def.Literal) {
		l, _ := p.symbols.FindLabel(p.frame(), def.Literal)
		if l.IsFunction || l.IsTable() {
			return nil, p.fail(diag.SemanticError, "invalid loop counter", def)
		}
		return l, nil
	}

	l := &symbols.Label{Name: def.Literal, Type: mem.TypeI32, Size: symbols.SlotSize, Pos: def.Pos}
	if f := p.symbols.Frame(p.frame()); f.Global {
		l.Address = p.cg.DataAlloc(symbols.SlotSize)
	} else {
		l.IsLocal = true
		l.Offset = f.Reserve(symbols.SlotSize)
	}

	return l, p.define(l, def)
}

// loopBody parses a loop body up to its end, then closes the loop: step code,
// the jump back to start and the exits.
func (p *Parser) loopBody(start int, exit codegen.Jump, step func()) error {
	p.loops.Push(loop{start: start})

	p.cg.Indent()
	_, err := p.block("end")
	p.cg.Dedent()

	lp, _ := p.loops.Pop()
	if err != nil {
		return err
	}
	p.advance()

	if step != nil {
		step()
	}

	p.cg.JumpBack(start)
	p.cg.PatchHere(exit)
	p.cg.PatchAll(lp.breaks)

	return nil
}

func (p *Parser) breakStatement() error {
	tok := p.advance()

	lp := p.loops.PeekPtr()
	if lp == nil {
		return p.fail(diag.SemanticError, "brk outside loop", tok)
	}

	lp.breaks = append(lp.breaks, p.cg.Placeholder(codegen.JumpAlways))
	return nil
}
