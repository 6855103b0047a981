// Package config provides unified configuration loading for pulse.
// It supports loading from YAML files and environment variables, layered
// as defaults -> file -> PULSE_* overrides, and converts the operator
// surface into the per-package engine configurations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mindmesh/pulse/internal/criticality"
	"github.com/mindmesh/pulse/internal/decay"
	"github.com/mindmesh/pulse/internal/diffusion"
	"github.com/mindmesh/pulse/internal/entity"
	"github.com/mindmesh/pulse/internal/fanout"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/learning"
	"github.com/mindmesh/pulse/internal/safety"
	"github.com/mindmesh/pulse/internal/sched"
	"github.com/mindmesh/pulse/internal/tickspeed"
)

// Config contains all pulse configuration settings.
type Config struct {
	// Graphs names the independent graph instances to run.
	Graphs []string `yaml:"graphs"`

	Engine      EngineConfig        `yaml:"engine"`
	Types       graph.TypeTableSpec `yaml:"types"`
	Diffusion   DiffusionConfig     `yaml:"diffusion"`
	Decay       DecayConfig         `yaml:"decay"`
	Criticality CriticalityConfig   `yaml:"criticality"`
	Fanout      FanoutConfig        `yaml:"fanout"`
	Entity      EntityConfig        `yaml:"entity"`
	Sched       SchedConfig         `yaml:"sched"`
	Tick        TickConfig          `yaml:"tick"`
	Learning    LearningConfig      `yaml:"learning"`
	Safety      SafetyConfig        `yaml:"safety"`
	Enrich      EnrichConfig        `yaml:"enrichments"`
	Stimulus    StimulusConfig      `yaml:"stimulus"`
	Telemetry   TelemetryConfig     `yaml:"telemetry"`
	Logging     LoggingConfig       `yaml:"logging"`
	Server      ServerConfig        `yaml:"server"`
}

// EngineConfig sets the tick loop's work budget and cadences.
type EngineConfig struct {
	// BudgetPerTick is the total scheduler units apportioned each tick.
	BudgetPerTick int `yaml:"budget_per_tick"`

	// FrameDeadline bounds one tick's scheduler phase.
	FrameDeadline Duration `yaml:"frame_deadline"`

	// MaintenanceEvery is the tick cadence of the out-of-band entity
	// lifecycle and weight decay pass.
	MaintenanceEvery int `yaml:"maintenance_every"`

	// InjectEnergy is the activation injected per unit stimulus priority.
	InjectEnergy float64 `yaml:"inject_energy"`
}

// DiffusionConfig is the operator surface for energy spreading.
type DiffusionConfig struct {
	AlphaTick          float64 `yaml:"alpha_tick"`
	MaxSharePerTick    float64 `yaml:"max_share_per_tick"`
	TopK               int     `yaml:"top_k"`
	SoftmaxTemperature float64 `yaml:"softmax_temperature"`
	MinTransfer        float64 `yaml:"min_transfer"`
}

// DecayConfig is the operator surface for the dual decay clocks.
type DecayConfig struct {
	ActivationRate float64 `yaml:"activation_rate"`
	RateMin        float64 `yaml:"rate_min"`
	RateMax        float64 `yaml:"rate_max"`
	EnergyFloor    float64 `yaml:"energy_floor"`
	WeightRate     float64 `yaml:"weight_rate"`
	WeightFloor    float64 `yaml:"weight_floor"`
	WeightCeiling  float64 `yaml:"weight_ceiling"`
}

// CriticalityConfig is the operator surface for the feedback controller.
type CriticalityConfig struct {
	TargetRho     float64 `yaml:"target_rho"`
	SampleEvery   int     `yaml:"sample_every"`
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	Kd            float64 `yaml:"kd"`
	IntegralClamp float64 `yaml:"integral_clamp"`
}

// FanoutConfig is the operator surface for branching control.
type FanoutConfig struct {
	SelectiveCount   int     `yaml:"selective_count"`
	BalancedFraction float64 `yaml:"balanced_fraction"`
	CohortWindow     int     `yaml:"cohort_window"`
	MinCohort        int     `yaml:"min_cohort"`
}

// EntityConfig is the operator surface for entity aggregation.
type EntityConfig struct {
	BaseTheta     float64 `yaml:"base_theta"`
	ZScore        float64 `yaml:"z_score"`
	Hysteresis    float64 `yaml:"hysteresis"`
	PromoteBar    float64 `yaml:"promote_bar"`
	MatureBar     float64 `yaml:"mature_bar"`
	DissolveFloor float64 `yaml:"dissolve_floor"`

	// ManifestPath optionally bootstraps entities from a YAML manifest.
	ManifestPath string `yaml:"manifest_path,omitempty"`
}

// SchedConfig is the operator surface for the fair scheduler.
type SchedConfig struct {
	CostAlpha      float64 `yaml:"cost_alpha"`
	DeadlineMargin float64 `yaml:"deadline_margin"`
}

// TickConfig bounds the adaptive tick interval.
type TickConfig struct {
	MinInterval Duration `yaml:"min_interval"`
	MaxInterval Duration `yaml:"max_interval"`
	DtCap       Duration `yaml:"dt_cap"`
}

// LearningConfig is the operator surface for the weight learner.
type LearningConfig struct {
	StepStrong float64 `yaml:"step_strong"`
	StepCausal float64 `yaml:"step_causal"`
	StepWeak   float64 `yaml:"step_weak"`
	NoiseGateZ float64 `yaml:"noise_gate_z"`
}

// SafetyConfig is the operator surface for the tripwire supervisor.
type SafetyConfig struct {
	RhoLow           float64  `yaml:"rho_low"`
	RhoHigh          float64  `yaml:"rho_high"`
	RhoFrames        int      `yaml:"rho_frames"`
	FrontierFraction float64  `yaml:"frontier_fraction"`
	FrontierFrames   int      `yaml:"frontier_frames"`
	ViolationLimit   int      `yaml:"violation_limit"`
	CleanExit        Duration `yaml:"clean_exit"`
}

// EnrichConfig toggles the optional multiplicative enrichments. Every flag
// defaults to off.
type EnrichConfig struct {
	Stickiness          bool `yaml:"stickiness"`
	Consolidation       bool `yaml:"consolidation"`
	Resistance          bool `yaml:"resistance"`
	Priming             bool `yaml:"priming"`
	CoherenceMetric     bool `yaml:"coherence_metric"`
	TaskAdaptiveTargets bool `yaml:"task_adaptive_targets"`
}

// StimulusConfig configures inbound stimulus handling.
type StimulusConfig struct {
	// DropDir, when set, is watched for JSON envelope files.
	DropDir string `yaml:"drop_dir,omitempty"`

	// QueueLimit bounds the pending stimulus queue.
	QueueLimit int `yaml:"queue_limit"`

	// DrainBudget is the maximum envelopes consumed per tick.
	DrainBudget int `yaml:"drain_budget"`
}

// TelemetryConfig configures the event sinks.
type TelemetryConfig struct {
	// Dir receives events.jsonl; empty disables the JSONL sink.
	Dir string `yaml:"dir,omitempty"`

	// SQLitePath receives the event database; empty disables the sink.
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	Level string `yaml:"level"`
}

// ServerConfig configures the control API.
type ServerConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a Config with the engine's built-in defaults.
func Default() *Config {
	dif := diffusion.DefaultConfig()
	dec := decay.DefaultConfig()
	crit := criticality.DefaultConfig()
	fan := fanout.DefaultConfig()
	ent := entity.DefaultConfig()
	sc := sched.DefaultConfig()
	tick := tickspeed.DefaultConfig()
	lrn := learning.DefaultConfig()
	saf := safety.DefaultConfig()

	return &Config{
		Graphs: []string{"main"},
		Engine: EngineConfig{
			BudgetPerTick:    64,
			FrameDeadline:    Duration(200 * time.Millisecond),
			MaintenanceEvery: 50,
			InjectEnergy:     1.0,
		},
		Types: graph.DefaultTypeTableSpec(),
		Diffusion: DiffusionConfig{
			AlphaTick:          dif.AlphaTick,
			MaxSharePerTick:    dif.MaxSharePerTick,
			TopK:               dif.TopK,
			SoftmaxTemperature: dif.SoftmaxTemperature,
			MinTransfer:        dif.MinTransfer,
		},
		Decay: DecayConfig{
			ActivationRate: dec.ActivationRate,
			RateMin:        dec.RateMin,
			RateMax:        dec.RateMax,
			EnergyFloor:    dec.EnergyFloor,
			WeightRate:     dec.WeightRate,
			WeightFloor:    dec.WeightFloor,
			WeightCeiling:  dec.WeightCeiling,
		},
		Criticality: CriticalityConfig{
			TargetRho:     crit.TargetRho,
			SampleEvery:   crit.SampleEvery,
			Kp:            crit.Kp,
			Ki:            crit.Ki,
			Kd:            crit.Kd,
			IntegralClamp: crit.IntegralClamp,
		},
		Fanout: FanoutConfig{
			SelectiveCount:   fan.SelectiveCount,
			BalancedFraction: fan.BalancedFraction,
			CohortWindow:     fan.CohortWindow,
			MinCohort:        fan.MinCohort,
		},
		Entity: EntityConfig{
			BaseTheta:     ent.BaseTheta,
			ZScore:        ent.ZScore,
			Hysteresis:    ent.Hysteresis,
			PromoteBar:    ent.PromoteBar,
			MatureBar:     ent.MatureBar,
			DissolveFloor: ent.DissolveFloor,
		},
		Sched: SchedConfig{
			CostAlpha:      sc.CostAlpha,
			DeadlineMargin: sc.DeadlineMargin,
		},
		Tick: TickConfig{
			MinInterval: Duration(tick.MinInterval),
			MaxInterval: Duration(tick.MaxInterval),
			DtCap:       Duration(tick.DtCap),
		},
		Learning: LearningConfig{
			StepStrong: lrn.StepStrong,
			StepCausal: lrn.StepCausal,
			StepWeak:   lrn.StepWeak,
			NoiseGateZ: lrn.NoiseGateZ,
		},
		Safety: SafetyConfig{
			RhoLow:           saf.RhoLow,
			RhoHigh:          saf.RhoHigh,
			RhoFrames:        saf.RhoFrames,
			FrontierFraction: saf.FrontierFraction,
			FrontierFrames:   saf.FrontierFrames,
			ViolationLimit:   saf.ViolationLimit,
			CleanExit:        Duration(saf.CleanExit),
		},
		Enrich: EnrichConfig{},
		Stimulus: StimulusConfig{
			QueueLimit:  1024,
			DrainBudget: 32,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load loads configuration from an optional YAML file and environment
// variables. Order: defaults -> path (if non-empty) -> PULSE_* overrides.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if len(c.Graphs) == 0 {
		return fmt.Errorf("at least one graph must be configured")
	}
	if c.Diffusion.AlphaTick <= 0 || c.Diffusion.AlphaTick > 1 {
		return fmt.Errorf("alpha_tick must be in (0, 1], got %f", c.Diffusion.AlphaTick)
	}
	if c.Diffusion.MaxSharePerTick <= 0 || c.Diffusion.MaxSharePerTick > 1 {
		return fmt.Errorf("max_share_per_tick must be in (0, 1], got %f", c.Diffusion.MaxSharePerTick)
	}
	if c.Diffusion.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.Diffusion.TopK)
	}
	if c.Decay.RateMin > c.Decay.RateMax {
		return fmt.Errorf("rate_min %g exceeds rate_max %g", c.Decay.RateMin, c.Decay.RateMax)
	}
	if c.Decay.ActivationRate < c.Decay.RateMin || c.Decay.ActivationRate > c.Decay.RateMax {
		return fmt.Errorf("activation_rate %g outside [%g, %g]",
			c.Decay.ActivationRate, c.Decay.RateMin, c.Decay.RateMax)
	}
	if c.Criticality.TargetRho <= 0 {
		return fmt.Errorf("target_rho must be positive, got %f", c.Criticality.TargetRho)
	}
	if c.Safety.RhoLow >= c.Safety.RhoHigh {
		return fmt.Errorf("rho_low %f must be below rho_high %f", c.Safety.RhoLow, c.Safety.RhoHigh)
	}
	if c.Tick.MinInterval <= 0 || c.Tick.MinInterval > c.Tick.MaxInterval {
		return fmt.Errorf("tick bounds invalid: min %v, max %v", c.Tick.MinInterval, c.Tick.MaxInterval)
	}
	if c.Engine.BudgetPerTick < 1 {
		return fmt.Errorf("budget_per_tick must be at least 1, got %d", c.Engine.BudgetPerTick)
	}
	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", c.Logging.Level)
	}
	if _, err := graph.BuildTypeTables(c.Types); err != nil {
		return fmt.Errorf("type tables: %w", err)
	}
	return nil
}

// applyEnvOverrides applies PULSE_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PULSE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("PULSE_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}
	if v := os.Getenv("PULSE_DROP_DIR"); v != "" {
		config.Stimulus.DropDir = v
	}
	if v := os.Getenv("PULSE_TELEMETRY_DIR"); v != "" {
		config.Telemetry.Dir = v
	}
	if v := os.Getenv("PULSE_ALPHA_TICK"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Diffusion.AlphaTick = f
		}
	}
	if v := os.Getenv("PULSE_TARGET_RHO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Criticality.TargetRho = f
		}
	}
	if v := os.Getenv("PULSE_BUDGET_PER_TICK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.BudgetPerTick = n
		}
	}
}

// TypeTables builds the validated per-type lookup tables.
func (c *Config) TypeTables() (*graph.TypeTables, error) {
	return graph.BuildTypeTables(c.Types)
}

// DiffusionConfig converts the surface into the diffusion package config.
func (c *Config) DiffusionConfig() diffusion.Config {
	out := diffusion.DefaultConfig()
	out.AlphaTick = c.Diffusion.AlphaTick
	out.MaxSharePerTick = c.Diffusion.MaxSharePerTick
	out.TopK = c.Diffusion.TopK
	out.SoftmaxTemperature = c.Diffusion.SoftmaxTemperature
	out.MinTransfer = c.Diffusion.MinTransfer
	out.StickinessEnabled = c.Enrich.Stickiness
	return out
}

// DecayConfig converts the surface into the decay package config.
func (c *Config) DecayConfig() decay.Config {
	out := decay.DefaultConfig()
	out.ActivationRate = c.Decay.ActivationRate
	out.RateMin = c.Decay.RateMin
	out.RateMax = c.Decay.RateMax
	out.EnergyFloor = c.Decay.EnergyFloor
	out.WeightRate = c.Decay.WeightRate
	out.WeightFloor = c.Decay.WeightFloor
	out.WeightCeiling = c.Decay.WeightCeiling
	out.ConsolidationEnabled = c.Enrich.Consolidation
	out.ResistanceEnabled = c.Enrich.Resistance
	return out
}

// CriticalityConfig converts the surface into the controller config.
func (c *Config) CriticalityConfig() criticality.Config {
	out := criticality.DefaultConfig()
	out.TargetRho = c.Criticality.TargetRho
	out.SampleEvery = c.Criticality.SampleEvery
	out.Kp = c.Criticality.Kp
	out.Ki = c.Criticality.Ki
	out.Kd = c.Criticality.Kd
	out.IntegralClamp = c.Criticality.IntegralClamp
	out.RateMin = c.Decay.RateMin
	out.RateMax = c.Decay.RateMax
	return out
}

// FanoutConfig converts the surface into the fan-out selector config.
func (c *Config) FanoutConfig() fanout.Config {
	out := fanout.DefaultConfig()
	out.SelectiveCount = c.Fanout.SelectiveCount
	out.BalancedFraction = c.Fanout.BalancedFraction
	out.CohortWindow = c.Fanout.CohortWindow
	out.MinCohort = c.Fanout.MinCohort
	return out
}

// EntityConfig converts the surface into the entity package config.
func (c *Config) EntityConfig() entity.Config {
	out := entity.DefaultConfig()
	out.BaseTheta = c.Entity.BaseTheta
	out.ZScore = c.Entity.ZScore
	out.Hysteresis = c.Entity.Hysteresis
	out.PromoteBar = c.Entity.PromoteBar
	out.MatureBar = c.Entity.MatureBar
	out.DissolveFloor = c.Entity.DissolveFloor
	out.CoherenceEnabled = c.Enrich.CoherenceMetric
	return out
}

// SchedConfig converts the surface into the scheduler config.
func (c *Config) SchedConfig() sched.Config {
	out := sched.DefaultConfig()
	out.CostAlpha = c.Sched.CostAlpha
	out.DeadlineMargin = c.Sched.DeadlineMargin
	return out
}

// TickConfig converts the surface into the tick speed config.
func (c *Config) TickConfig() tickspeed.Config {
	out := tickspeed.DefaultConfig()
	out.MinInterval = c.Tick.MinInterval.Std()
	out.MaxInterval = c.Tick.MaxInterval.Std()
	out.DtCap = c.Tick.DtCap.Std()
	return out
}

// LearningConfig converts the surface into the weight learner config.
func (c *Config) LearningConfig() learning.Config {
	out := learning.DefaultConfig()
	out.StepStrong = c.Learning.StepStrong
	out.StepCausal = c.Learning.StepCausal
	out.StepWeak = c.Learning.StepWeak
	out.NoiseGateZ = c.Learning.NoiseGateZ
	return out
}

// SafetyConfig converts the surface into the supervisor config.
func (c *Config) SafetyConfig() safety.Config {
	out := safety.DefaultConfig()
	out.RhoLow = c.Safety.RhoLow
	out.RhoHigh = c.Safety.RhoHigh
	out.RhoFrames = c.Safety.RhoFrames
	out.FrontierFraction = c.Safety.FrontierFraction
	out.FrontierFrames = c.Safety.FrontierFrames
	out.ViolationLimit = c.Safety.ViolationLimit
	out.CleanExit = c.Safety.CleanExit.Std()
	return out
}
