package port_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"vasm/pkg/mem"
	"vasm/pkg/port"

	"github.com/google/go-cmp/cmp"
)

type machine struct {
	arena *mem.Arena
	heap  *mem.Manager
	out   bytes.Buffer
}

func newMachine() *machine {
	arena := mem.NewArena(0x1000)
	return &machine{arena: arena, heap: mem.NewManager(arena, 0x400, 0x1000)}
}

func (m *machine) Memory() mem.Memory       { return m.arena }
func (m *machine) Allocator() mem.Allocator { return m.heap }
func (m *machine) Output() io.Writer        { return &m.out }

func TestConsole(t *testing.T) {
	m := newMachine()
	c := port.NewConsole()

	r, err := port.NewRegistry(c)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Boot(m); err != nil {
		t.Fatal(err)
	}

	if c.Top() != port.WindowBase {
		t.Errorf("expected console window at %#x, got %#x", port.WindowBase, c.Top())
	}

	calls := []struct {
		ref  string
		args []int64
	}{
		{"0:print", []int64{1, 2}},
		{"console:hex", []int64{255}},
		{"#console:char", []int64{'A'}},
	}
	for _, call := range calls {
		ref := call.ref
		if ref[0] == '#' {
			ref = ref[1:]
		}
		if _, err := r.Call(m, ref, call.args); err != nil {
			t.Fatalf("%s: %v", call.ref, err)
		}
	}

	if diff := cmp.Diff("1 2\nff\nA", m.out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	if c.Written() != int64(m.out.Len()) {
		t.Errorf("window reports %d bytes written, output has %d", c.Written(), m.out.Len())
	}

	written, err := mem.ReadInt(m.arena, c.Top(), mem.TypeU32)
	if err != nil || written != int64(m.out.Len()) {
		t.Errorf("written field in memory is %d (%v)", written, err)
	}

	if err := r.Reset(m); err != nil {
		t.Fatal(err)
	}
	if c.Written() != 0 {
		t.Errorf("reset left %d bytes written", c.Written())
	}
}

func TestConsoleString(t *testing.T) {
	m := newMachine()
	c := port.NewConsole()
	r, _ := port.NewRegistry(c)
	if err := r.Boot(m); err != nil {
		t.Fatal(err)
	}

	addr, err := m.heap.AllocString("hello")
	if err != nil {
		t.Fatal(err)
	}

	n, err := r.Call(m, "console:str", []int64{int64(addr)})
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || m.out.String() != "hello" {
		t.Errorf("expected 5 bytes of hello, got %d %q", n, m.out.String())
	}
}

func TestLookupErrors(t *testing.T) {
	m := newMachine()
	r, _ := port.NewRegistry(port.NewConsole())
	if err := r.Boot(m); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		ref  string
		want error
	}{
		{"1:print", port.ErrUnknownPort},
		{"video:print", port.ErrUnknownPort},
		{"console:beep", port.ErrUnknownMethod},
		{"console", port.ErrUnknownMethod},
		{"console:char", port.ErrArgCount},
	}

	for _, test := range tests {
		if _, err := r.Call(m, test.ref, nil); !errors.Is(err, test.want) {
			t.Errorf("%s: expected %v, got %v", test.ref, test.want, err)
		}
	}
}

func TestSlots(t *testing.T) {
	ports := make([]port.Port, port.MaxPorts+1)
	for i := range ports {
		ports[i] = port.NewConsole()
	}

	if _, err := port.NewRegistry(ports...); !errors.Is(err, port.ErrPortSlots) {
		t.Errorf("expected ErrPortSlots, got %v", err)
	}
}
