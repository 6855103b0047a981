// Package safety watches the tick loop's invariants and flips the engine
// into a degraded mode when they break in a sustained way. Four tripwires
// feed a shared violation window: conservation drift (immediate),
// propagation ratio out of band, frontier oversize, and missing telemetry
// frames. Degraded mode overrides tunables toward conservative values and
// clears itself only after a sustained clean stretch.
package safety

import (
	"math"
	"sync"
	"time"
)

// Config holds the supervisor tunables.
type Config struct {
	// ConservationAbsEps and ConservationRelEps set the conservation
	// tolerance: a frame violates when its ledger error exceeds both the
	// absolute floor and the relative fraction of energy moved.
	// Defaults: 0.001 and 0.01.
	ConservationAbsEps float64
	ConservationRelEps float64

	// RhoLow and RhoHigh bound the healthy propagation ratio band.
	// Defaults: 0.7 and 1.3.
	RhoLow  float64
	RhoHigh float64

	// RhoFrames is how many consecutive out-of-band frames arm the
	// criticality tripwire. Default: 10.
	RhoFrames int

	// FrontierFraction and FrontierFrames arm the frontier tripwire when
	// the frontier exceeds this fraction of the graph for this many
	// consecutive frames. Defaults: 0.3 and 20.
	FrontierFraction float64
	FrontierFrames   int

	// ObservabilityFrames arms the telemetry tripwire after this many
	// consecutive frames without the required telemetry. Default: 5.
	ObservabilityFrames int

	// ViolationLimit violations within ViolationWindow enter degraded
	// mode. Defaults: 3 and 60s.
	ViolationLimit  int
	ViolationWindow time.Duration

	// CleanExit is the violation-free stretch required to leave degraded
	// mode. Default: 30s.
	CleanExit time.Duration

	// Overrides applied while degraded.
	DegradedAlphaScale float64       // default 0.3
	DegradedDtCap      time.Duration // default 1s
}

// DefaultConfig returns the default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		ConservationAbsEps:  0.001,
		ConservationRelEps:  0.01,
		RhoLow:              0.7,
		RhoHigh:             1.3,
		RhoFrames:           10,
		FrontierFraction:    0.3,
		FrontierFrames:      20,
		ObservabilityFrames: 5,
		ViolationLimit:      3,
		ViolationWindow:     60 * time.Second,
		CleanExit:           30 * time.Second,
		DegradedAlphaScale:  0.3,
		DegradedDtCap:       time.Second,
	}
}

// Frame is one tick's worth of invariant evidence.
type Frame struct {
	Tick            uint64
	At              time.Time
	ConservationErr float64
	EnergyMoved     float64
	Rho             float64
	FrontierSize    int
	GraphSize       int
	TelemetryOK     bool
}

// Violation records one tripwire firing.
type Violation struct {
	Tripwire string    `json:"tripwire"`
	Tick     uint64    `json:"tick"`
	At       time.Time `json:"at"`
	Detail   float64   `json:"detail"`
}

// Overrides are the conservative tunables in force while degraded.
type Overrides struct {
	AlphaScale         float64       `json:"alpha_scale"`
	DtCap              time.Duration `json:"dt_cap"`
	DisableEnrichments bool          `json:"disable_enrichments"`
}

// Status is the supervisor's externally visible state.
type Status struct {
	Degraded       bool        `json:"degraded"`
	Forced         bool        `json:"forced"`
	Reason         string      `json:"reason,omitempty"`
	Since          time.Time   `json:"since,omitempty"`
	Recent         []Violation `json:"recent,omitempty"`
	RhoStreak      int         `json:"rho_streak"`
	FrontierStreak int         `json:"frontier_streak"`
	QuietStreak    int         `json:"quiet_streak"`
}

// Supervisor tracks tripwire streaks and the degraded mode state machine.
type Supervisor struct {
	mu     sync.Mutex
	config Config

	rhoStreak      int
	frontierStreak int
	quietStreak    int

	violations []Violation

	degraded   bool
	forced     bool
	reason     string
	since      time.Time
	lastBreach time.Time
}

// NewSupervisor creates a safety supervisor.
func NewSupervisor(config Config) *Supervisor {
	return &Supervisor{config: config}
}

// Observe folds one frame into the tripwire state and returns the
// resulting status. A tripwire that stays armed contributes one violation
// per frame until its condition clears, so a persistent breach fills the
// window on its own.
func (s *Supervisor) Observe(f Frame) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conservationBreached(f) {
		s.record("conservation", f, f.ConservationErr)
	}

	if f.Rho < s.config.RhoLow || f.Rho > s.config.RhoHigh {
		s.rhoStreak++
	} else {
		s.rhoStreak = 0
	}
	if s.config.RhoFrames > 0 && s.rhoStreak >= s.config.RhoFrames {
		s.record("criticality", f, f.Rho)
	}

	if f.GraphSize > 0 && float64(f.FrontierSize) > s.config.FrontierFraction*float64(f.GraphSize) {
		s.frontierStreak++
	} else {
		s.frontierStreak = 0
	}
	if s.config.FrontierFrames > 0 && s.frontierStreak >= s.config.FrontierFrames {
		s.record("frontier", f, float64(f.FrontierSize))
	}

	if !f.TelemetryOK {
		s.quietStreak++
	} else {
		s.quietStreak = 0
	}
	if s.config.ObservabilityFrames > 0 && s.quietStreak >= s.config.ObservabilityFrames {
		s.record("observability", f, float64(s.quietStreak))
	}

	s.expire(f.At)
	s.transition(f.At)
	return s.status()
}

// Force enters degraded mode from the out-of-band override channel. It
// holds regardless of tripwire state until Release is called.
func (s *Supervisor) Force(reason string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = true
	if !s.degraded {
		s.degraded = true
		s.since = at
	}
	s.reason = reason
}

// Release clears a forced override. Tripwire-driven degradation, if any,
// still follows its own exit criteria.
func (s *Supervisor) Release(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = false
	s.transition(at)
}

// Degraded reports whether the degraded overrides are in force.
func (s *Supervisor) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Overrides returns the tunable overrides and whether they apply.
func (s *Supervisor) Overrides() (Overrides, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		return Overrides{AlphaScale: 1}, false
	}
	return Overrides{
		AlphaScale:         s.config.DegradedAlphaScale,
		DtCap:              s.config.DegradedDtCap,
		DisableEnrichments: true,
	}, true
}

// Status returns a copy of the current supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Supervisor) status() Status {
	recent := make([]Violation, len(s.violations))
	copy(recent, s.violations)
	return Status{
		Degraded:       s.degraded,
		Forced:         s.forced,
		Reason:         s.reason,
		Since:          s.since,
		Recent:         recent,
		RhoStreak:      s.rhoStreak,
		FrontierStreak: s.frontierStreak,
		QuietStreak:    s.quietStreak,
	}
}

func (s *Supervisor) conservationBreached(f Frame) bool {
	err := math.Abs(f.ConservationErr)
	tol := math.Max(s.config.ConservationAbsEps, s.config.ConservationRelEps*math.Abs(f.EnergyMoved))
	return err > tol
}

func (s *Supervisor) record(tripwire string, f Frame, detail float64) {
	s.violations = append(s.violations, Violation{
		Tripwire: tripwire,
		Tick:     f.Tick,
		At:       f.At,
		Detail:   detail,
	})
	s.lastBreach = f.At
	if s.reason == "" || !s.degraded {
		s.reason = tripwire
	}
}

func (s *Supervisor) expire(now time.Time) {
	cutoff := now.Add(-s.config.ViolationWindow)
	kept := s.violations[:0]
	for _, v := range s.violations {
		if v.At.After(cutoff) {
			kept = append(kept, v)
		}
	}
	s.violations = kept
}

func (s *Supervisor) transition(now time.Time) {
	if !s.degraded {
		if len(s.violations) >= s.config.ViolationLimit {
			s.degraded = true
			s.since = now
		}
		return
	}
	if s.forced {
		return
	}
	clean := s.lastBreach.IsZero() || now.Sub(s.lastBreach) >= s.config.CleanExit
	if clean && len(s.violations) == 0 {
		s.degraded = false
		s.reason = ""
	}
}
