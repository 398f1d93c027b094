package compiler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vasm/pkg/color"
	"vasm/pkg/config"
	"vasm/pkg/diag"
	"vasm/pkg/interpreter"
	"vasm/pkg/lexer"
	"vasm/pkg/parser"
	"vasm/pkg/parser/codegen"
	"vasm/pkg/parser/codegen/assembly/bytecode"
	"vasm/pkg/symbols"

	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
)

// ImageExt marks bytecode images; such inputs skip assembly
const ImageExt = ".vbc"

type Compiler struct {
	Help            bool           // Show help message
	Verbose         bool           // Enable verbose output
	ShouldInterpret bool           // Whether to run the program
	ShouldCompile   bool           // Whether to write a bytecode image
	NoColor         bool           // Disable colored output
	SourceFile      string         // Path to the source file or image
	OutputFile      string         // Path to the output image
	Args            []int64        // Run arguments, read by arg and argc
	Config          *config.Config // Machine and feature settings

	Stdout io.Writer // Program and listing output, os.Stdout when nil
}

var ErrAssembly = errors.New("assembly failed")

// Compile assembles the source file (or loads an image), then writes and runs it as requested
func (opts *Compiler) Compile() error {
	if opts.Config == nil {
		opts.Config = config.NewConfig()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	log.Info("Processing file", "file", opts.SourceFile)

	var (
		prog *codegen.Program
		err  error
	)

	if strings.EqualFold(filepath.Ext(opts.SourceFile), ImageExt) {
		prog, err = bytecode.Load(opts.SourceFile)
	} else {
		prog, err = opts.assemble()
	}
	if err != nil {
		return err
	}

	if opts.Verbose {
		fmt.Fprintln(opts.Stdout, color.GreenText("\n=== Generated Code ==="))
		if len(prog.Code) == 0 {
			fmt.Fprintln(opts.Stdout, color.GrayText("No code generated."))
		} else {
			fmt.Fprint(opts.Stdout, prog.Render(codegen.Pretty))
		}
	}

	if opts.ShouldCompile {
		image := bytecode.NewBytecode(prog, opts.OutputFile)
		if err := image.Generate(); err != nil {
			return fmt.Errorf("image generation failed: %w", err)
		}

		if opts.Verbose {
			fmt.Fprintln(opts.Stdout, color.GreenText("\n=== Bytecode Image ==="))
			fmt.Fprintln(opts.Stdout, image.GetCode())
		}

		if err := image.Build(); err != nil {
			return fmt.Errorf("image build failed: %w", err)
		}
		log.Info("Image written", "file", opts.OutputFile)
	}

	if opts.ShouldInterpret {
		return opts.run(prog)
	}

	return nil
}

// assemble reads, tokenizes and assembles the source file. Every diagnostic is printed.
func (opts *Compiler) assemble() (*codegen.Program, error) {
	cfg := opts.Config

	input, err := os.ReadFile(opts.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.SourceFile, err)
	}

	lexOpts := []lexer.Option{lexer.WithFile(opts.SourceFile)}
	if cfg.IsFeatureEnabled(config.FeatInclude) {
		dir := cfg.IncludeDir
		if dir == "" {
			dir = filepath.Dir(opts.SourceFile)
		}
		lexOpts = append(lexOpts, lexer.WithIncludeFS(os.DirFS(dir)))
	}

	l := lexer.NewLexer(string(input), lexOpts...)
	tokens := l.Tokenize()

	entry := cfg.Entry
	if !cfg.IsFeatureEnabled(config.FeatEntry) {
		entry = ""
	}

	p := parser.NewParser(tokens, parser.WithDataBase(cfg.DataBase), parser.WithEntry(entry))
	p.Parse()

	diagnostics := append(l.Errors(), p.Errors()...)
	if len(diagnostics) > 0 {
		fmt.Fprintln(opts.Stdout, color.BrightRedText("=== Errors ==="))
		for _, d := range diagnostics {
			fmt.Fprintln(opts.Stdout, d)
		}

		return nil, fmt.Errorf("%w: %d lexical, %d syntax, %d semantic errors", ErrAssembly,
			diag.Count(diagnostics, diag.LexError),
			diag.Count(diagnostics, diag.SyntaxError),
			diag.Count(diagnostics, diag.SemanticError))
	}

	if opts.Verbose {
		opts.dumpSymbols(p.Symbols())
	}

	return p.Program(), nil
}

// symbolRow is the printed form of one label
type symbolRow struct {
	Frame    string
	Type     string
	Address  int
	Offset   int
	Size     int
	Function bool
	Local    bool
}

// dumpSymbols pretty prints every frame's labels and the constants
func (opts *Compiler) dumpSymbols(table *symbols.Table) {
	rows := map[string]symbolRow{}
	for _, f := range table.Frames() {
		frame := f.Name
		if f.Global {
			frame = "<global>"
		}

		for _, l := range f.Labels() {
			rows[frame+"."+l.Name] = symbolRow{
				Frame:    frame,
				Type:     l.Type.String(),
				Address:  l.Address,
				Offset:   l.Offset,
				Size:     l.Size,
				Function: l.IsFunction,
				Local:    l.IsLocal,
			}
		}
	}

	constants := map[string]string{}
	for _, c := range table.Constants() {
		parts := make([]string, 0, len(c.Tokens))
		for _, tok := range c.Tokens {
			parts = append(parts, tok.Lexeme)
		}
		constants[c.Name] = strings.Join(parts, " ")
	}

	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)

	printer := pp.New()
	printer.SetColoringEnabled(color.IsColorEnabled())

	fmt.Fprintln(opts.Stdout, color.GreenText("\n=== Symbols ==="))
	for _, name := range names {
		printer.Fprintf(opts.Stdout, "%s %v\n", name, rows[name])
	}

	if len(constants) > 0 {
		fmt.Fprintln(opts.Stdout, color.GreenText("\n=== Constants ==="))
		printer.Fprintln(opts.Stdout, constants)
	}
}

// run executes the program on a fresh machine
func (opts *Compiler) run(prog *codegen.Program) error {
	it := interpreter.NewInterpreter(prog,
		interpreter.WithConfig(opts.Config),
		interpreter.WithWriter(opts.Stdout),
	)
	defer func() {
		if err := it.Shut(); err != nil {
			log.Warn("shutdown failed", "error", err)
		}
	}()

	fmt.Fprintln(opts.Stdout, color.GreenText("\n=== Program Output ==="))

	v, err := it.Run(opts.Args...)
	if err != nil {
		var f *interpreter.Fault
		if errors.As(err, &f) {
			fmt.Fprintln(opts.Stdout, color.Fault(f.Error()))
		}
		return fmt.Errorf("execution failed: %w", err)
	}

	if opts.Verbose {
		fmt.Fprintln(opts.Stdout, color.GrayText(fmt.Sprintf("result %s after %d instructions", v, len(prog.Code))))
	}

	return nil
}
