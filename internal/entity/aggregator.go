// Package entity derives entity activation and lifecycle from node
// memberships. Entities store no energy of their own: every tick their
// activation is recomputed as a membership-weighted sum of member surplus,
// compared against a rolling cohort threshold with hysteresis.
package entity

import (
	"math"
	"time"

	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// Config holds the aggregator tunables.
type Config struct {
	// BaseTheta is the entity activation threshold used until the cohort
	// warms up. Default: 0.5.
	BaseTheta float64

	// CohortWindow is the number of recent entity energies kept for
	// threshold estimation. Default: 64.
	CohortWindow int

	// WarmupMin is the sample count below which BaseTheta applies.
	// Default: 10.
	WarmupMin int

	// ZScore is how many standard deviations above the cohort mean the
	// threshold sits. Default: 1.0.
	ZScore float64

	// StdFloor keeps the threshold spread from collapsing when the cohort
	// is uniform. Default: 0.1.
	StdFloor float64

	// HealthModulation scales how much entity quality lowers its own
	// threshold. Default: 0.2.
	HealthModulation float64

	// Hysteresis is the relative band around the threshold that a flip must
	// clear. Default: 0.05.
	Hysteresis float64

	// QualityAlpha is the EMA factor for the five health signals. Default: 0.2.
	QualityAlpha float64

	// SignalFloor keeps any single collapsed signal from zeroing the
	// geometric mean outright. Default: 0.01.
	SignalFloor float64

	// PromoteBar, MatureBar, and DissolveFloor are the quality boundaries
	// for lifecycle transitions. Defaults: 0.6, 0.7, 0.2.
	PromoteBar    float64
	MatureBar     float64
	DissolveFloor float64

	// PromoteStreak, MatureStreak, and DissolveStreak are the consecutive
	// maintenance passes a boundary must hold. Defaults: 5, 10, 10.
	PromoteStreak  int
	MatureStreak   int
	DissolveStreak int

	// MinAge guards young entities from dissolution. Default: 10 minutes.
	MinAge time.Duration

	// CoherenceEnabled turns on the structural cohesion signal. When off,
	// cohesion holds at a neutral 0.5 and quality rests on the other four
	// signals. Default: false.
	CoherenceEnabled bool
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		BaseTheta:        0.5,
		CohortWindow:     64,
		WarmupMin:        10,
		ZScore:           1.0,
		StdFloor:         0.1,
		HealthModulation: 0.2,
		Hysteresis:       0.05,
		QualityAlpha:     0.2,
		SignalFloor:      0.01,
		PromoteBar:       0.6,
		MatureBar:        0.7,
		DissolveFloor:    0.2,
		PromoteStreak:    5,
		MatureStreak:     10,
		DissolveStreak:   10,
		MinAge:           10 * time.Minute,
		CoherenceEnabled: false,
	}
}

// FlipEvent reports an entity crossing its activation threshold.
type FlipEvent struct {
	Entity graph.EntityID `json:"entity"`
	Active bool           `json:"active"`
	Energy float64        `json:"energy"`
	Theta  float64        `json:"theta"`
	Level  string         `json:"level"`
}

// Aggregator recomputes entity activation each tick.
type Aggregator struct {
	config Config

	cohort []float64
	next   int
}

// NewAggregator creates an entity aggregator.
func NewAggregator(config Config) *Aggregator {
	return &Aggregator{
		config: config,
		cohort: make([]float64, 0, config.CohortWindow),
	}
}

// Tick recomputes activation for every live entity against the committed
// node state. thresholdMult is the criticality regime's multiplier. Returns
// the flip events in deterministic entity-ID order.
func (a *Aggregator) Tick(store *graph.Store, thresholdMult float64) []FlipEvent {
	var flips []FlipEvent
	for _, id := range store.EntityIDs() {
		e := store.Entity(id)
		if e.State == graph.LifecycleDissolved {
			continue
		}

		energy := a.Activation(store, id)
		a.observe(energy)
		theta := a.threshold(e) * thresholdMult

		e.Energy = energy
		e.Theta = theta

		// Hysteresis: a flip must clear the band, not just the line.
		band := theta * a.config.Hysteresis
		wasActive := e.Active
		if wasActive && energy < theta-band {
			e.Active = false
		} else if !wasActive && energy > theta+band {
			e.Active = true
		}

		if e.Active != wasActive {
			flips = append(flips, FlipEvent{
				Entity: id,
				Active: e.Active,
				Energy: energy,
				Theta:  theta,
				Level:  ActivationLevel(energy, theta),
			})
		}
	}
	return flips
}

// Activation computes the entity's current energy: the normalized-membership
// weighted sum of member surplus, with each member's surplus log-dampened
// above 1 so a single hot node cannot dominate the neighborhood.
func (a *Aggregator) Activation(store *graph.Store, id graph.EntityID) float64 {
	var sum float64
	for nodeID := range store.Members(id) {
		n := store.Node(nodeID)
		if n == nil {
			continue
		}
		sum += store.NormalizedMembership(nodeID, id) * dampen(n.Surplus())
	}
	return sum
}

// dampen passes small surpluses through linearly and compresses large ones
// logarithmically.
func dampen(x float64) float64 {
	if x <= 1 {
		return x
	}
	return 1 + math.Log(x)
}

// observe pushes an entity energy into the rolling cohort.
func (a *Aggregator) observe(energy float64) {
	if len(a.cohort) < a.config.CohortWindow {
		a.cohort = append(a.cohort, energy)
		return
	}
	a.cohort[a.next] = energy
	a.next = (a.next + 1) % a.config.CohortWindow
}

// threshold derives the entity's activation threshold from the cohort
// statistics, modulated downward for healthy entities.
func (a *Aggregator) threshold(e *graph.Entity) float64 {
	theta := a.config.BaseTheta
	if len(a.cohort) >= a.config.WarmupMin {
		mean, std := meanStd(a.cohort)
		if std < a.config.StdFloor {
			std = a.config.StdFloor
		}
		theta = mean + a.config.ZScore*std
	}
	return theta * (1 - a.config.HealthModulation*vecmath.Clamp(e.Quality, 0, 1))
}

// meanStd returns the mean and standard deviation of xs.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// ActivationLevel labels the energy-to-threshold ratio for telemetry.
func ActivationLevel(energy, theta float64) string {
	if theta <= 0 {
		return "absent"
	}
	switch ratio := energy / theta; {
	case ratio >= 2.0:
		return "dominant"
	case ratio >= 1.5:
		return "strong"
	case ratio >= 1.0:
		return "moderate"
	case ratio >= 0.5:
		return "weak"
	default:
		return "absent"
	}
}
