package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestEnrichmentsDefaultDisabled(t *testing.T) {
	c := Default()
	if c.Enrich.Stickiness || c.Enrich.Consolidation || c.Enrich.Resistance ||
		c.Enrich.Priming || c.Enrich.CoherenceMetric || c.Enrich.TaskAdaptiveTargets {
		t.Errorf("enrichments must default off, got %+v", c.Enrich)
	}
	if c.DiffusionConfig().StickinessEnabled {
		t.Error("stickiness leaked into diffusion config")
	}
	if c.DecayConfig().ConsolidationEnabled {
		t.Error("consolidation leaked into decay config")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulse.yaml")
	body := `
graphs: [alpha, beta]
diffusion:
  alpha_tick: 0.2
enrichments:
  stickiness: true
tick:
  min_interval: 250ms
  max_interval: 30s
  dt_cap: 5s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Graphs) != 2 || c.Graphs[0] != "alpha" {
		t.Errorf("graphs = %v", c.Graphs)
	}
	if c.Diffusion.AlphaTick != 0.2 {
		t.Errorf("alpha_tick = %v, want 0.2", c.Diffusion.AlphaTick)
	}
	if !c.DiffusionConfig().StickinessEnabled {
		t.Error("stickiness flag not propagated")
	}
	if c.Tick.MinInterval.Std() != 250*time.Millisecond {
		t.Errorf("min_interval = %v", c.Tick.MinInterval)
	}
	// Untouched sections keep their defaults.
	if c.Criticality.TargetRho != 1.0 {
		t.Errorf("target_rho = %v, want default 1.0", c.Criticality.TargetRho)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("PULSE_ALPHA_TICK", "0.3")
	t.Setenv("PULSE_LOG_LEVEL", "trace")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Diffusion.AlphaTick != 0.3 {
		t.Errorf("alpha_tick = %v, want env override 0.3", c.Diffusion.AlphaTick)
	}
	if c.Logging.Level != "trace" {
		t.Errorf("level = %q, want trace", c.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"no graphs", func(c *Config) { c.Graphs = nil }},
		{"alpha too large", func(c *Config) { c.Diffusion.AlphaTick = 1.5 }},
		{"zero top_k", func(c *Config) { c.Diffusion.TopK = 0 }},
		{"rate outside clamp", func(c *Config) { c.Decay.ActivationRate = 1 }},
		{"inverted rho band", func(c *Config) { c.Safety.RhoLow = 2 }},
		{"inverted tick bounds", func(c *Config) { c.Tick.MinInterval = 2 * c.Tick.MaxInterval }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"missing type entry", func(c *Config) { delete(c.Types.Stickiness, "causal") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mod(c)
			if err := c.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
