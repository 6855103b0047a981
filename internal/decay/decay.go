// Package decay implements the two forgetting clocks: fast per-tick
// activation decay, whose effective rate the criticality controller may
// adjust, and slow periodic weight decay in log space, which runs on a fixed
// schedule and is never coupled to the controller.
package decay

import (
	"math"
	"time"

	"github.com/mindmesh/pulse/internal/frontier"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// Config holds the decay tunables.
type Config struct {
	// ActivationRate is the base activation decay rate per second. Default: 2e-5.
	ActivationRate float64

	// RateMin and RateMax clamp the controller-adjusted effective rate.
	// Defaults: 1e-6 and 1e-3.
	RateMin float64
	RateMax float64

	// EnergyFloor snaps energies below it to zero after decay. Default: 0.001.
	EnergyFloor float64

	// WeightRate is the slow weight decay rate per second in log space.
	// Default: 1e-6.
	WeightRate float64

	// WeightFloor and WeightCeiling bound log weights. Defaults: -5.0 and 2.0.
	WeightFloor   float64
	WeightCeiling float64

	// ConsolidationEnabled turns on the decay slow-down for consolidated
	// nodes. Default: false.
	ConsolidationEnabled bool

	// ConsolidationCap bounds the total slow-down so decay never fully
	// stops. Default: 0.8.
	ConsolidationCap float64

	// RetrievalWindow is how long after a retrieval the recency bonus
	// applies. Default: 5 minutes.
	RetrievalWindow time.Duration

	// ResistanceEnabled turns on structural decay resistance. Default: false.
	ResistanceEnabled bool

	// ResistanceCap bounds the combined resistance divisor. Default: 1.5.
	ResistanceCap float64
}

// DefaultConfig returns the default decay configuration.
func DefaultConfig() Config {
	return Config{
		ActivationRate:       2e-5,
		RateMin:              1e-6,
		RateMax:              1e-3,
		EnergyFloor:          0.001,
		WeightRate:           1e-6,
		WeightFloor:          -5.0,
		WeightCeiling:        2.0,
		ConsolidationEnabled: false,
		ConsolidationCap:     0.8,
		RetrievalWindow:      5 * time.Minute,
		ResistanceEnabled:    false,
		ResistanceCap:        1.5,
	}
}

// Metrics summarizes one activation decay pass.
type Metrics struct {
	EffectiveRate float64
	EnergyLost    float64
	NodesFloored  int
}

// WeightMetrics summarizes one weight decay pass.
type WeightMetrics struct {
	LinksDecayed int
	LinksFloored int
}

// Engine applies both decay clocks.
type Engine struct {
	config Config
	tables *graph.TypeTables
}

// NewEngine creates a decay engine.
func NewEngine(config Config, tables *graph.TypeTables) *Engine {
	return &Engine{config: config, tables: tables}
}

// ClampRate bounds a controller-proposed activation decay rate.
func (e *Engine) ClampRate(rate float64) float64 {
	return vecmath.Clamp(rate, e.config.RateMin, e.config.RateMax)
}

// DecayActivations applies one fast-clock pass directly to node energies.
// Runs after commit, so losses go to the delta buffer's decay ledger rather
// than through staged deltas. effRate is the controller-adjusted rate; dt is
// the physics timestep in seconds.
func (e *Engine) DecayActivations(store *graph.Store, deltas *frontier.Deltas, effRate, dt float64, now time.Time) Metrics {
	rate := e.ClampRate(effRate)
	m := Metrics{EffectiveRate: rate}

	store.Nodes(func(n *graph.Node) {
		if n.Energy <= 0 {
			return
		}
		r := rate * e.tables.ActivationDecayMult(n.Type)
		if e.config.ConsolidationEnabled {
			r *= 1 - e.ConsolidationFactor(n, now)
		}
		if e.config.ResistanceEnabled {
			r /= e.ResistanceFactor(n, store.InDegree(n.ID), len(n.Memberships))
		}

		next := n.Energy * math.Exp(-r*dt)
		if next < e.config.EnergyFloor {
			next = 0
			m.NodesFloored++
		}
		m.EnergyLost += n.Energy - next
		n.Energy = next
	})

	deltas.Decayed += m.EnergyLost
	return m
}

// ConsolidationFactor returns the bounded decay slow-down in [0, cap] for a
// node: its accumulated consolidation plus bonuses for strong affect and
// recent retrieval. Pure; safe to call with the enrichment disabled.
func (e *Engine) ConsolidationFactor(n *graph.Node, now time.Time) float64 {
	c := math.Max(0, n.Consolidation)
	if vecmath.Norm(n.Affect) > 0.6 {
		c += 0.4
	}
	if !n.RetrievedAt.IsZero() && now.Sub(n.RetrievedAt) < e.config.RetrievalWindow {
		c += 0.5
	}
	return math.Min(c, e.config.ConsolidationCap)
}

// ResistanceFactor returns the structural decay divisor in [1, cap] for a
// node: type resistance times connectivity and entity-bridging bonuses.
// Pure; safe to call with the enrichment disabled.
func (e *Engine) ResistanceFactor(n *graph.Node, inDegree, entityCount int) float64 {
	r := e.tables.ResistanceMult(n.Type)
	r *= 1 + 0.1*math.Tanh(float64(inDegree)/20)
	if entityCount > 1 {
		r *= 1 + 0.05*float64(entityCount-1)
	}
	return vecmath.Clamp(r, 1, e.config.ResistanceCap)
}

// DecayWeights applies one slow-clock pass over all link log weights.
// elapsed is the wall time since the previous pass. The effective rate is
// the fixed configured rate and the per-type table only; the controller has
// no lever here.
func (e *Engine) DecayWeights(store *graph.Store, elapsed time.Duration) WeightMetrics {
	var m WeightMetrics
	secs := elapsed.Seconds()
	if secs <= 0 {
		return m
	}
	store.Links(func(l *graph.Link) {
		step := e.config.WeightRate * e.tables.WeightDecayMult(l.Type) * secs
		next := l.LogWeight - step
		if next < e.config.WeightFloor {
			next = e.config.WeightFloor
			m.LinksFloored++
		}
		if next > e.config.WeightCeiling {
			next = e.config.WeightCeiling
		}
		if next != l.LogWeight {
			l.LogWeight = next
			m.LinksDecayed++
		}
	})
	return m
}

// ActivationHalfLife returns the half-life in seconds of a node type's
// activation at the given effective rate, for diagnostics.
func (e *Engine) ActivationHalfLife(nt graph.NodeType, effRate float64) float64 {
	r := e.ClampRate(effRate) * e.tables.ActivationDecayMult(nt)
	if r <= 0 {
		return math.Inf(1)
	}
	return math.Ln2 / r
}

// WeightHalfLife returns the half-life in seconds of a link type's weight.
func (e *Engine) WeightHalfLife(lt graph.LinkType) float64 {
	r := e.config.WeightRate * e.tables.WeightDecayMult(lt)
	if r <= 0 {
		return math.Inf(1)
	}
	return math.Ln2 / r
}
