package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xyproto/env/v2"
)

type Feature int

const (
	FeatInclude Feature = iota
	FeatEntry
	FeatCollect
	FeatColor
	FeatCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Machine and compiler settings. Defaults are overridden by the environment,
// then by command line flags.
type Config struct {
	Features   map[Feature]Info
	FeatureMap map[string]Feature

	Ceiling         int    // bytes of machine memory
	DataBase        int    // address of the data segment
	ArgStack        int    // entries of the argument stack
	CollectInterval int    // ticks between heap collections, 0 disables them
	MaxSteps        int    // executed instructions before giving up, 0 is unlimited
	IncludeDir      string // root of .include lookups
	Entry           string // function called after the top-level code
}

var (
	ErrCeiling  = errors.New("memory ceiling too small")
	ErrDataBase = errors.New("data segment overlaps the port windows")
	ErrArgStack = errors.New("argument stack must hold at least one entry")
)

// Default values
const (
	DefaultCeiling         = 0x10000
	DefaultDataBase        = 0x0400
	DefaultArgStack        = 256
	DefaultCollectInterval = 64
	DefaultEntry           = "main"
)

// ReservedTop is the lowest address the data segment may start at: the info
// table and the port windows sit below it
const ReservedTop = 0x0100

func NewConfig() *Config {
	cfg := &Config{
		Features:        make(map[Feature]Info),
		FeatureMap:      make(map[string]Feature),
		Ceiling:         DefaultCeiling,
		DataBase:        DefaultDataBase,
		ArgStack:        DefaultArgStack,
		CollectInterval: DefaultCollectInterval,
		Entry:           DefaultEntry,
	}

	features := map[Feature]Info{
		FeatInclude: {"include", true, "Load files named by `.include` directives."},
		FeatEntry:   {"entry", true, "Call the entry function once the top-level code has run."},
		FeatCollect: {"collect", true, "Coalesce free heap blocks every CollectInterval ticks."},
		FeatColor:   {"color", true, "Colour diagnostics when writing to a terminal."},
	}

	cfg.Features = features
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

// ApplyFlag enables "name" or disables "no-name"
func (c *Config) ApplyFlag(flag string) error {
	name := strings.TrimPrefix(strings.TrimSpace(flag), "-")
	enable := true
	if trimmed, ok := strings.CutPrefix(name, "no-"); ok {
		name, enable = trimmed, false
	}

	ft, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}

	c.SetFeature(ft, enable)
	return nil
}

// LoadEnv applies VASM_* environment variables over the current values
func (c *Config) LoadEnv() error {
	c.Ceiling = env.Int("VASM_CEILING", c.Ceiling)
	c.DataBase = env.Int("VASM_DATA_BASE", c.DataBase)
	c.ArgStack = env.Int("VASM_ARG_STACK", c.ArgStack)
	c.CollectInterval = env.Int("VASM_COLLECT_EVERY", c.CollectInterval)
	c.MaxSteps = env.Int("VASM_MAX_STEPS", c.MaxSteps)
	c.IncludeDir = env.Str("VASM_INCLUDE", c.IncludeDir)
	c.Entry = env.Str("VASM_ENTRY", c.Entry)

	if env.Has("VASM_FEATURES") {
		for _, flag := range strings.Split(env.Str("VASM_FEATURES"), ",") {
			if flag = strings.TrimSpace(flag); flag == "" {
				continue
			}
			if err := c.ApplyFlag(flag); err != nil {
				return err
			}
		}
	}

	if env.Has("NO_COLOR") {
		c.SetFeature(FeatColor, false)
	}

	return c.Validate()
}

// Validate checks that the memory layout fits together
func (c *Config) Validate() error {
	if c.DataBase < ReservedTop {
		return fmt.Errorf("%w: %#x", ErrDataBase, c.DataBase)
	}

	if c.Ceiling <= c.DataBase {
		return fmt.Errorf("%w: %#x", ErrCeiling, c.Ceiling)
	}

	if c.ArgStack < 1 {
		return ErrArgStack
	}

	return nil
}
