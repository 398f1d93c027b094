package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"vasm/internal/compiler"
	"vasm/internal/logger"
	"vasm/pkg/color"
	"vasm/pkg/config"

	"github.com/charmbracelet/log"
)

// featureFlags collects repeated -F values
type featureFlags []string

func (f *featureFlags) String() string { return strings.Join(*f, ",") }

func (f *featureFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// Main entry point for the vasm assembler and machine.
func main() {
	options := compiler.Compiler{Config: config.NewConfig()}
	cfg := options.Config

	var features featureFlags

	flag.BoolVar(&options.Help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode")
	flag.BoolVar(&options.ShouldInterpret, "r", false, "Run the program")
	flag.BoolVar(&options.ShouldCompile, "c", false, "Write a bytecode image")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.StringVar(&options.OutputFile, "o", "a"+compiler.ImageExt, "Output image name")
	flag.Var(&features, "F", "Enable a feature by name, or disable it with no-<name> (repeatable)")
	maxSteps := flag.Int("steps", 0, "Stop after this many instructions (0 = environment or unlimited)")
	include := flag.String("I", "", "Directory searched by .include (default: the source directory)")

	flag.Parse()
	args := flag.Args()

	if err := cfg.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedText(err.Error()))
		os.Exit(1)
	}

	for _, f := range features {
		if err := cfg.ApplyFlag(f); err != nil {
			fmt.Fprintln(os.Stderr, color.RedText(err.Error()))
			os.Exit(1)
		}
	}

	if *maxSteps > 0 {
		cfg.MaxSteps = *maxSteps
	}
	if *include != "" {
		cfg.IncludeDir = *include
	}

	if !cfg.IsFeatureEnabled(config.FeatColor) {
		options.NoColor = true
	}

	logger.Init(options.Verbose, options.NoColor)
	if options.Help {
		fmt.Printf("Usage: %s [options] <file> [args...]\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println("Features:")
		for ft := config.Feature(0); ft < config.FeatCount; ft++ {
			info := cfg.Features[ft]
			fmt.Printf("  %-10s %-5t %s\n", info.Name, info.Enabled, info.Description)
		}
		return
	}

	if options.NoColor {
		color.EnableColor(false)
	}

	if len(args) == 0 {
		log.Fatal("No input file provided", "help", fmt.Sprintf("%s -h", os.Args[0]))
	}

	options.SourceFile = args[0]
	for _, a := range args[1:] {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			log.Fatal("Run arguments must be integers", "arg", a)
		}
		options.Args = append(options.Args, v)
	}

	if err := options.Compile(); err != nil {
		log.Fatal("Compilation failed", "error", err)
	}
}
