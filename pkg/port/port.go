package port

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"vasm/pkg/mem"

	"github.com/charmbracelet/log"
)

// WindowBase is the address of the first port window
const WindowBase = 0x40

// WindowSize is the number of bytes each port owns in machine memory
const WindowSize = 0x40

// MaxPorts is the number of windows between WindowBase and the data segment floor
const MaxPorts = 3

var (
	ErrUnknownPort   = errors.New("unknown port")
	ErrUnknownMethod = errors.New("unknown port method")
	ErrPortSlots     = errors.New("no free port window")
	ErrArgCount      = errors.New("port argument count mismatch")
)

// Machine is the execution context handed to ports.
type Machine interface {
	Memory() mem.Memory
	Allocator() mem.Allocator
	Output() io.Writer
}

// Func is a public method of a port, called from "#port:method(args)"
type Func func(m Machine, args ...int64) (int64, error)

// Port is an external collaborator with a window in machine memory.
type Port interface {
	Name() string
	Top() int
	Boot(m Machine, top int) error
	Reset(m Machine) error
	Shut(m Machine) error
	Tick(m Machine) error
	Publics() map[string]Func
}

// Registry mounts ports in numbered slots; a port is addressed by slot number or name.
type Registry struct {
	ports []Port
	names map[string]int
}

// NewRegistry mounts ports in order, the first one in slot 0
func NewRegistry(ports ...Port) (*Registry, error) {
	r := &Registry{names: make(map[string]int)}
	for _, p := range ports {
		if err := r.Mount(p); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Mount places a port in the next free slot
func (r *Registry) Mount(p Port) error {
	if len(r.ports) >= MaxPorts {
		return fmt.Errorf("%w: %s", ErrPortSlots, p.Name())
	}

	r.names[strings.ToLower(p.Name())] = len(r.ports)
	r.ports = append(r.ports, p)

	log.Debug("port mounted", "name", p.Name(), "slot", len(r.ports)-1)
	return nil
}

// Ports returns the mounted ports in slot order
func (r *Registry) Ports() []Port {
	return r.ports
}

// Window returns the address of a slot's window
func Window(slot int) int {
	return WindowBase + slot*WindowSize
}

// Lookup finds a port by slot number or name
func (r *Registry) Lookup(ref string) (Port, error) {
	ref = strings.ToLower(ref)

	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 0 && n < len(r.ports) {
			return r.ports[n], nil
		}
		return nil, fmt.Errorf("%w: #%s", ErrUnknownPort, ref)
	}

	if n, ok := r.names[ref]; ok {
		return r.ports[n], nil
	}

	return nil, fmt.Errorf("%w: #%s", ErrUnknownPort, ref)
}

// Call invokes "port:method" with args
func (r *Registry) Call(m Machine, ref string, args []int64) (int64, error) {
	name, method, ok := strings.Cut(ref, ":")
	if !ok {
		return 0, fmt.Errorf("%w: #%s", ErrUnknownMethod, ref)
	}

	p, err := r.Lookup(name)
	if err != nil {
		return 0, err
	}

	fn, ok := p.Publics()[strings.ToLower(method)]
	if !ok {
		return 0, fmt.Errorf("%w: #%s", ErrUnknownMethod, ref)
	}

	return fn(m, args...)
}

// Boot boots every port in its window
func (r *Registry) Boot(m Machine) error {
	for i, p := range r.ports {
		if err := p.Boot(m, Window(i)); err != nil {
			return fmt.Errorf("port %s: %w", p.Name(), err)
		}
	}

	return nil
}

// Reset resets every port
func (r *Registry) Reset(m Machine) error {
	return r.each(func(p Port) error { return p.Reset(m) })
}

// Shut shuts every port down
func (r *Registry) Shut(m Machine) error {
	return r.each(func(p Port) error { return p.Shut(m) })
}

// Tick ticks every port
func (r *Registry) Tick(m Machine) error {
	return r.each(func(p Port) error { return p.Tick(m) })
}

func (r *Registry) each(fn func(Port) error) error {
	var errs []error
	for _, p := range r.ports {
		if err := fn(p); err != nil {
			errs = append(errs, fmt.Errorf("port %s: %w", p.Name(), err))
		}
	}

	return errors.Join(errs...)
}
