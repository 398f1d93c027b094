package codegen

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type Format int

const (
	Compact Format = iota // one instruction per line, no decoration
	Pretty                // addresses, block indentation and source lines
)

// Program is the output of one assembly: code, the initial data image and the exported names.
type Program struct {
	Code     []Instruction
	Data     []byte
	DataBase int
	Entry    int
	Labels   map[string]int // functions map to code indexes, data labels to absolute addresses
}

// Render returns the program text in the given format
func (p *Program) Render(f Format) string {
	var sb strings.Builder

	switch f {
	case Pretty:
		names := make(map[int][]string)
		for name, addr := range p.Labels {
			names[addr] = append(names[addr], name)
		}

		for i, in := range p.Code {
			if in.Op == OpEnter {
				for _, name := range sortedNames(names[i]) {
					fmt.Fprintf(&sb, "%s:\n", name)
				}
			}

			fmt.Fprintf(&sb, "%04d  %s%-24s", i, strings.Repeat("  ", in.Depth), in.String())
			if in.Line > 0 {
				fmt.Fprintf(&sb, " ; line %d", in.Line)
			}
			sb.WriteByte('\n')
		}

		if len(p.Data) > 0 {
			fmt.Fprintf(&sb, "data @%04x % x\n", p.DataBase, p.Data)
		}

	default:
		for _, in := range p.Code {
			sb.WriteString(in.String())
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// Function returns the code index of a function label
func (p *Program) Function(name string) (int, bool) {
	addr, ok := p.Labels[name]
	if !ok || addr >= len(p.Code) || p.Code[addr].Op != OpEnter {
		return 0, false
	}

	return addr, true
}

// Names returns the exported names sorted
func (p *Program) Names() []string {
	return slices.Sorted(maps.Keys(p.Labels))
}

func sortedNames(names []string) []string {
	slices.Sort(names)
	return names
}
