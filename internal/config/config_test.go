package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "bouncing_ball" {
		t.Errorf("expected model bouncing_ball, got %s", cfg.Model)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opts != timestepping.DefaultOptions() {
		t.Errorf("expected default options, got %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no model", func(c *Config) { c.Model = "" }},
		{"negative dt", func(c *Config) { c.Dt = -0.01 }},
		{"theta above one", func(c *Config) { c.Theta = 1.5 }},
		{"unknown mode", func(c *Config) { c.Newton.Mode = "secant" }},
		{"zero tolerance", func(c *Config) { c.Newton.Tolerance = 0 }},
		{"unknown solver", func(c *Config) { c.Solver.Name = "lemke" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		err := cfg.Validate()
		if !errors.Is(err, nsds.ErrConfiguration) {
			t.Errorf("%s: expected configuration error, got %v", tt.name, err)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := DefaultConfig()
	cfg.Model = "ball_chain"
	cfg.Params = map[string]float64{"count": 5}
	cfg.Newton.Mode = "nonlinear"
	cfg.Workers = 2

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Model != "ball_chain" || loaded.Params["count"] != 5 || loaded.Workers != 2 {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	opts, err := loaded.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.NewtonMode != timestepping.ModeNonlinear {
		t.Errorf("expected nonlinear mode, got %s", opts.NewtonMode)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("model: relay_oscillator\nnewton:\n  max_iterations: 7\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Newton.MaxIterations != 7 {
		t.Errorf("expected 7 iterations, got %d", cfg.Newton.MaxIterations)
	}
	if cfg.Newton.Tolerance != timestepping.DefaultOptions().NewtonTolerance {
		t.Errorf("expected default tolerance, got %g", cfg.Newton.Tolerance)
	}
	if cfg.Dt != DefaultDt {
		t.Errorf("expected default dt, got %g", cfg.Dt)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("dt: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); !errors.Is(err, nsds.ErrConfiguration) {
		t.Errorf("expected configuration error for malformed yaml, got %v", err)
	}

	out := filepath.Join(dir, "range.yaml")
	if err := os.WriteFile(out, []byte("dt: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(out); !errors.Is(err, nsds.ErrConfiguration) {
		t.Errorf("expected configuration error for dt=0, got %v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("bouncing_ball", "plastic")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Params["restitution"] != 0 {
		t.Errorf("expected restitution 0, got %f", cfg.Params["restitution"])
	}

	cfg.Params["restitution"] = 1
	if again := GetPreset("bouncing_ball", "plastic"); again.Params["restitution"] != 0 {
		t.Error("preset was mutated through a returned copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("bouncing_ball", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "drop"); cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestPresetsValidate(t *testing.T) {
	for model := range Presets {
		for _, name := range ListPresets(model) {
			if err := GetPreset(model, name).Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
		}
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent model")
	}
}
