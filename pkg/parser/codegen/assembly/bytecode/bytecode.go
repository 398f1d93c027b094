package bytecode

import (
	"fmt"
	"os"
	"strings"

	"vasm/pkg/parser/codegen"
	"vasm/pkg/parser/codegen/assembly"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
)

type bytecode struct {
	program *codegen.Program
	output  string // output file name
	image   []byte // encoded image, set by Generate
}

// NewBytecode creates a backend writing program as a bytecode image to output
func NewBytecode(program *codegen.Program, output string) assembly.Assembly {
	return &bytecode{
		program: program,
		output:  output,
	}
}

// Generate encodes the program image
func (b *bytecode) Generate() error {
	image, err := Encode(b.program)
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	b.image = image
	log.Debug("image encoded", "bytes", len(image), "instructions", len(b.program.Code))

	return nil
}

// GetCode returns a readable listing of the image
func (b *bytecode) GetCode() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; %s v%d, %d bytes, xxhash %016x\n", Magic, Version, len(b.image), xxhash.Sum64(b.image))
	sb.WriteString(b.program.Render(codegen.Pretty))

	return sb.String()
}

// Build writes the image to the output file
func (b *bytecode) Build() error {
	if b.image == nil {
		if err := b.Generate(); err != nil {
			return err
		}
	}

	if err := os.WriteFile(b.output, b.image, 0644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	return nil
}

// Load reads and decodes an image file
func Load(path string) (*codegen.Program, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p, err := Decode(image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return p, nil
}
