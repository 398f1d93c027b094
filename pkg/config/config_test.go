package config_test

import (
	"errors"
	"testing"

	"vasm/pkg/config"

	"github.com/google/go-cmp/cmp"
)

func TestDefaults(t *testing.T) {
	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for ft := config.Feature(0); ft < config.FeatCount; ft++ {
		if !cfg.IsFeatureEnabled(ft) {
			t.Errorf("feature %s disabled by default", cfg.Features[ft].Name)
		}
	}
}

func TestApplyFlag(t *testing.T) {
	cfg := config.NewConfig()

	if err := cfg.ApplyFlag("no-include"); err != nil {
		t.Fatal(err)
	}
	if cfg.IsFeatureEnabled(config.FeatInclude) {
		t.Error("include still enabled")
	}

	if err := cfg.ApplyFlag("-include"); err != nil {
		t.Fatal(err)
	}
	if !cfg.IsFeatureEnabled(config.FeatInclude) {
		t.Error("include still disabled")
	}

	if err := cfg.ApplyFlag("bogus"); err == nil {
		t.Error("expected an error for an unknown feature")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("VASM_CEILING", "32768")
	t.Setenv("VASM_DATA_BASE", "512")
	t.Setenv("VASM_MAX_STEPS", "1000")
	t.Setenv("VASM_INCLUDE", "lib")
	t.Setenv("VASM_FEATURES", "no-collect, no-entry")

	cfg := config.NewConfig()
	if err := cfg.LoadEnv(); err != nil {
		t.Fatal(err)
	}

	got := []any{cfg.Ceiling, cfg.DataBase, cfg.MaxSteps, cfg.IncludeDir, cfg.ArgStack}
	want := []any{32768, 512, 1000, "lib", config.DefaultArgStack}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if cfg.IsFeatureEnabled(config.FeatCollect) || cfg.IsFeatureEnabled(config.FeatEntry) {
		t.Error("features named in VASM_FEATURES were not disabled")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.NewConfig()
	cfg.DataBase = 0x10
	if err := cfg.Validate(); !errors.Is(err, config.ErrDataBase) {
		t.Errorf("expected ErrDataBase, got %v", err)
	}

	cfg = config.NewConfig()
	cfg.Ceiling = cfg.DataBase
	if err := cfg.Validate(); !errors.Is(err, config.ErrCeiling) {
		t.Errorf("expected ErrCeiling, got %v", err)
	}
}
