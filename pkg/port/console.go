package port

import (
	"fmt"

	"vasm/pkg/mem"
)

var consoleLayout = mem.NewLayout(
	mem.Field{Name: "written", Type: mem.TypeU32},
	mem.Field{Name: "calls", Type: mem.TypeU32},
	mem.Field{Name: "ticks", Type: mem.TypeU32},
	mem.Field{Name: "last", Type: mem.TypeI32},
)

// Console writes values to the machine output. Its window holds the byte
// count written so far, the number of calls, ticks and the last value printed.
type Console struct {
	top  int
	view *mem.StructView
}

func NewConsole() *Console {
	return &Console{}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Top() int { return c.top }

func (c *Console) Boot(m Machine, top int) error {
	view, err := mem.NewStructView(m.Memory(), top, consoleLayout)
	if err != nil {
		return err
	}

	c.top, c.view = top, view
	return c.Reset(m)
}

func (c *Console) Reset(_ Machine) error {
	for _, f := range consoleLayout.Names() {
		if err := c.view.Set(f, 0); err != nil {
			return err
		}
	}

	return nil
}

func (c *Console) Shut(_ Machine) error { return nil }

func (c *Console) Tick(_ Machine) error {
	return c.bump("ticks", 1)
}

func (c *Console) Publics() map[string]Func {
	return map[string]Func{
		"print": c.print,
		"char":  c.char,
		"hex":   c.hex,
		"str":   c.str,
	}
}

// Written returns the number of bytes written since boot or reset
func (c *Console) Written() int64 {
	if c.view == nil {
		return 0
	}

	v, _ := c.view.Get("written")
	return v
}

// print writes its arguments in decimal, separated by spaces
func (c *Console) print(m Machine, args ...int64) (int64, error) {
	line := ""
	for i, a := range args {
		if i > 0 {
			line += " "
		}
		line += fmt.Sprint(a)
	}

	return c.write(m, line+"\n", args)
}

func (c *Console) char(m Machine, args ...int64) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: char takes 1, got %d", ErrArgCount, len(args))
	}

	return c.write(m, string(rune(byte(args[0]))), args)
}

func (c *Console) hex(m Machine, args ...int64) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: hex takes 1, got %d", ErrArgCount, len(args))
	}

	return c.write(m, fmt.Sprintf("%x\n", args[0]), args)
}

// str writes the length-prefixed string at the address argument
func (c *Console) str(m Machine, args ...int64) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: str takes 1, got %d", ErrArgCount, len(args))
	}

	s, err := mem.ReadString(m.Memory(), int(args[0]))
	if err != nil {
		return 0, err
	}

	return c.write(m, s, args)
}

// write outputs s, updates the window and returns the byte count
func (c *Console) write(m Machine, s string, args []int64) (int64, error) {
	n, err := fmt.Fprint(m.Output(), s)
	if err != nil {
		return 0, err
	}

	if err := c.bump("written", int64(n)); err != nil {
		return 0, err
	}
	if err := c.bump("calls", 1); err != nil {
		return 0, err
	}
	if len(args) > 0 {
		if err := c.view.Set("last", args[len(args)-1]); err != nil {
			return 0, err
		}
	}

	return int64(n), nil
}

func (c *Console) bump(field string, by int64) error {
	if c.view == nil {
		return nil
	}

	v, err := c.view.Get(field)
	if err != nil {
		return err
	}

	return c.view.Set(field, v+by)
}
