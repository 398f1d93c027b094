package symbols

import (
	"errors"
	"slices"
	"strings"

	"vasm/pkg/lexer"
	"vasm/pkg/mem"

	"github.com/charmbracelet/log"
)

// SlotSize is the byte size of one local variable slot in a frame block.
const SlotSize = 4

var (
	ErrDuplicateLabel    = errors.New("duplicate label")
	ErrDuplicateConstant = errors.New("duplicate constant")
)

// FrameID addresses a frame in the table arena
type FrameID int

// NoFrame is the parent of the global frame
const NoFrame FrameID = -1

// GlobalFrame is always the first frame of a table
const GlobalFrame FrameID = 0

// Frame is a lexical scope. Only the global frame has no parent.
type Frame struct {
	ID     FrameID
	Parent FrameID
	Global bool
	Name   string // owning function, empty for the global frame
	Size   int    // bytes of local storage reserved so far

	labels map[string]*Label
	order  []string
}

// Label is a named location: a function entry, a frame slot or an absolute address.
type Label struct {
	Name       string
	IsFunction bool
	IsLocal    bool
	Frame      FrameID
	Type       mem.Type
	Size       int      // bytes of storage behind the label
	Address    int      // code address for functions, absolute address for globals
	Offset     int      // offset inside the frame block for locals
	Dimensions int      // number of table entries, 0 for scalars
	Params     []string // parameter names of a function
	Pos        lexer.Position
}

// IsTable reports whether the label names a table of several entries
func (l *Label) IsTable() bool {
	return l.Dimensions > 1
}

// Constant is a named token sequence spliced in place of every reference.
type Constant struct {
	Name   string
	Tokens []lexer.Token // positions normalised to line 1, column 1, offset 0
	Pos    lexer.Position
}

// Expand returns a copy of the constant tokens moved onto the reference position
func (c *Constant) Expand(at lexer.Position) []lexer.Token {
	out := make([]lexer.Token, len(c.Tokens))
	for i, t := range c.Tokens {
		out[i] = t.Moved(at)
	}

	return out
}

// Table holds every frame of one compilation plus the constants.
type Table struct {
	frames    []*Frame
	constants map[string]*Constant
}

// Normalize returns the canonical form of a symbol name
func Normalize(name string) string {
	return strings.ToLower(name)
}

// NewTable creates a table holding only the global frame
func NewTable() *Table {
	t := &Table{
		frames:    make([]*Frame, 0, 8),
		constants: make(map[string]*Constant),
	}

	t.frames = append(t.frames, &Frame{
		ID:     GlobalFrame,
		Parent: NoFrame,
		Global: true,
		labels: make(map[string]*Label),
	})

	return t
}

// NewFrame creates a function frame whose parent is the global frame
func (t *Table) NewFrame(name string) FrameID {
	id := FrameID(len(t.frames))
	t.frames = append(t.frames, &Frame{
		ID:     id,
		Parent: GlobalFrame,
		Name:   Normalize(name),
		labels: make(map[string]*Label),
	})

	log.Debug("frame opened", "id", id, "function", name)
	return id
}

// Frame returns the frame with the given id, nil when out of range
func (t *Table) Frame(id FrameID) *Frame {
	if id < 0 || int(id) >= len(t.frames) {
		return nil
	}

	return t.frames[id]
}

// Global returns the global frame
func (t *Table) Global() *Frame {
	return t.frames[GlobalFrame]
}

// Frames returns all frames in creation order
func (t *Table) Frames() []*Frame {
	return t.frames
}

// FindLabel looks a name up in the frame, then in the global frame
func (t *Table) FindLabel(id FrameID, name string) (*Label, bool) {
	name = Normalize(name)

	if f := t.Frame(id); f != nil {
		if l, ok := f.labels[name]; ok {
			return l, true
		}
	}

	l, ok := t.Global().labels[name]
	return l, ok
}

// NewLabel registers l in frame id. A name already defined in that same
// frame is rejected; shadowing a global from a function frame is allowed.
func (t *Table) NewLabel(id FrameID, l *Label) error {
	f := t.Frame(id)
	if f == nil {
		f = t.Global()
	}

	l.Name = Normalize(l.Name)
	if _, ok := f.labels[l.Name]; ok {
		return ErrDuplicateLabel
	}

	l.Frame = f.ID
	l.IsLocal = !f.Global && !l.IsFunction && l.IsLocal
	f.labels[l.Name] = l
	f.order = append(f.order, l.Name)

	log.Debug("label defined", "name", l.Name, "frame", f.ID, "type", l.Type, "local", l.IsLocal)
	return nil
}

// HasLabel reports whether name is defined in frame id itself
func (t *Table) HasLabel(id FrameID, name string) bool {
	f := t.Frame(id)
	if f == nil {
		return false
	}

	_, ok := f.labels[Normalize(name)]
	return ok
}

// Reserve returns the offset of a new slot in the frame's local block
func (f *Frame) Reserve(size int) int {
	if size < SlotSize {
		size = SlotSize
	}

	offset := f.Size
	f.Size += size

	return offset
}

// Labels returns the frame labels in definition order
func (f *Frame) Labels() []*Label {
	out := make([]*Label, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.labels[name])
	}

	return out
}

// Locals returns the non-function locals of the frame, the ones released at frame end
func (f *Frame) Locals() []*Label {
	return slices.DeleteFunc(f.Labels(), func(l *Label) bool { return !l.IsLocal })
}

// NewConstant saves tokens as the body of constant name
func (t *Table) NewConstant(name string, tokens []lexer.Token, pos lexer.Position) error {
	name = Normalize(name)
	if _, ok := t.constants[name]; ok {
		return ErrDuplicateConstant
	}

	saved := make([]lexer.Token, len(tokens))
	if len(tokens) > 0 {
		base := tokens[0].Pos
		for i, tok := range tokens {
			length := tok.End - tok.Pos.Offset
			tok.Pos = tok.Pos.Relative(base)
			tok.End = tok.Pos.Offset + length
			saved[i] = tok
		}
	}

	t.constants[name] = &Constant{Name: name, Tokens: saved, Pos: pos}
	log.Debug("constant defined", "name", name, "tokens", len(saved))

	return nil
}

// FindConstant looks up a constant by name
func (t *Table) FindConstant(name string) (*Constant, bool) {
	c, ok := t.constants[Normalize(name)]
	return c, ok
}

// Constants returns the constants sorted by name
func (t *Table) Constants() []*Constant {
	out := make([]*Constant, 0, len(t.constants))
	for _, c := range t.constants {
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b *Constant) int { return strings.Compare(a.Name, b.Name) })
	return out
}
