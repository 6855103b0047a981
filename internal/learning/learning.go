// Package learning nudges link log-weights from usage. Every stride that
// moves non-negligible energy produces a Hebbian step sized by an
// activation-state tier and scaled by traversal recency, then gated by a
// rank-based noise filter so ticks that are unusually useless for their
// cohort leave no trace.
package learning

import (
	"math"
	"time"

	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// Config holds the weight learner tunables.
type Config struct {
	// StepStrong, StepCausal, and StepWeak are the log-weight increments
	// for the three co-activation tiers. Defaults: 0.05, 0.02, 0.005.
	StepStrong float64
	StepCausal float64
	StepWeak   float64

	// MinTransfer is the energy below which a stride is ignored.
	// Default: 1e-4.
	MinTransfer float64

	// NoiseGateZ blocks an update when the stride's usefulness rank
	// z-score within its cohort falls below this value. Default: -1.0.
	NoiseGateZ float64

	// MinCohort is the cohort size below which the gate is neutral and
	// every update passes. Default: 3.
	MinCohort int

	// CohortWindow bounds each cohort's rolling sample buffer.
	// Default: 128.
	CohortWindow int

	// TauSeed seeds the inter-traversal gap estimate before any gap has
	// been observed. Default: 60s.
	TauSeed time.Duration

	// GapAlpha is the EMA factor for the gap estimate. Default: 0.1.
	GapAlpha float64

	// EtaMin and EtaMax clip the recency-derived learning rate.
	// Defaults: 0.01 and 0.95.
	EtaMin float64
	EtaMax float64

	// WeightFloor and WeightCeiling bound link log-weights, matching the
	// slow decay clock's bounds. Defaults: -5 and 2.
	WeightFloor   float64
	WeightCeiling float64

	// NudgeNodes also bumps both endpoint nodes' log attractor strength
	// by NodeShare of the link step. Default: false.
	NudgeNodes bool

	// NodeShare is the fraction of the link step applied to endpoint
	// nodes when NudgeNodes is set. Default: 0.5.
	NodeShare float64
}

// DefaultConfig returns the default weight learner configuration.
func DefaultConfig() Config {
	return Config{
		StepStrong:    0.05,
		StepCausal:    0.02,
		StepWeak:      0.005,
		MinTransfer:   1e-4,
		NoiseGateZ:    -1.0,
		MinCohort:     3,
		CohortWindow:  128,
		TauSeed:       60 * time.Second,
		GapAlpha:      0.1,
		EtaMin:        0.01,
		EtaMax:        0.95,
		WeightFloor:   -5,
		WeightCeiling: 2,
		NudgeNodes:    false,
		NodeShare:     0.5,
	}
}

// Tier classifies a stride's co-activation pattern.
type Tier int

const (
	// TierWeak covers background traversals with no activation evidence.
	TierWeak Tier = iota
	// TierCausal marks strides whose target crossed threshold this tick.
	TierCausal
	// TierStrong marks strides between two already-active endpoints.
	TierStrong
)

// String returns the tier name for telemetry.
func (t Tier) String() string {
	switch t {
	case TierStrong:
		return "strong"
	case TierCausal:
		return "causal"
	default:
		return "weak"
	}
}

// Traversal describes one executed stride for the learner.
type Traversal struct {
	Link            graph.LinkID
	Amount          float64
	SourceActive    bool
	TargetActive    bool
	TargetActivated bool // target crossed its threshold on this stride
	Scope           graph.EntityID
	At              time.Time
}

// Update reports what the learner did with one traversal.
type Update struct {
	Link    graph.LinkID `json:"link"`
	Tier    string       `json:"tier"`
	Eta     float64      `json:"eta"`
	Z       float64      `json:"z"`
	Step    float64      `json:"step"`
	Applied bool         `json:"applied"`
	Reason  string       `json:"reason,omitempty"`
}

type cohortKey struct {
	linkType graph.LinkType
	scope    graph.EntityID
}

type cohort struct {
	samples []float64
	next    int
}

func (c *cohort) observe(v float64, window int) {
	if len(c.samples) < window {
		c.samples = append(c.samples, v)
		return
	}
	c.samples[c.next] = v
	c.next = (c.next + 1) % window
}

// Learner applies Hebbian weight updates to traversed links.
type Learner struct {
	config   Config
	cohorts  map[cohortKey]*cohort
	lastSeen map[graph.LinkID]time.Time
	gapEMA   float64 // seconds; NaN until first gap
}

// NewLearner creates a weight learner.
func NewLearner(config Config) *Learner {
	return &Learner{
		config:   config,
		cohorts:  make(map[cohortKey]*cohort),
		lastSeen: make(map[graph.LinkID]time.Time),
		gapEMA:   math.NaN(),
	}
}

// Observe processes one executed stride, possibly mutating the traversed
// link's log-weight in the store. It always returns an Update describing
// the decision, whether or not a step was applied.
func (l *Learner) Observe(store *graph.Store, tr Traversal) Update {
	up := Update{Link: tr.Link, Tier: l.classify(tr).String()}

	if tr.Amount < l.config.MinTransfer || math.IsNaN(tr.Amount) {
		up.Reason = "negligible"
		return up
	}

	link := store.Link(tr.Link)
	if link == nil {
		up.Reason = "unknown_link"
		return up
	}

	up.Z = l.rankZ(cohortKey{linkType: link.Type, scope: tr.Scope}, tr.Amount)
	if up.Z < l.config.NoiseGateZ {
		up.Reason = "noise_gated"
		return up
	}

	up.Eta = l.eta(tr.Link, tr.At)
	up.Step = l.step(l.classify(tr)) * up.Eta
	link.LogWeight = vecmath.Clamp(link.LogWeight+up.Step,
		l.config.WeightFloor, l.config.WeightCeiling)
	up.Applied = true

	if l.config.NudgeNodes {
		l.nudgeNode(store, link.Source, up.Step)
		if link.Target != "" {
			l.nudgeNode(store, link.Target, up.Step)
		}
	}
	return up
}

func (l *Learner) classify(tr Traversal) Tier {
	switch {
	case tr.SourceActive && tr.TargetActive && !tr.TargetActivated:
		return TierStrong
	case tr.TargetActivated:
		return TierCausal
	default:
		return TierWeak
	}
}

func (l *Learner) step(tier Tier) float64 {
	switch tier {
	case TierStrong:
		return l.config.StepStrong
	case TierCausal:
		return l.config.StepCausal
	default:
		return l.config.StepWeak
	}
}

// rankZ records the sample into its cohort and returns its standardized
// rank position. Cohorts under MinCohort are neutral so young scopes are
// never gated on thin evidence.
func (l *Learner) rankZ(key cohortKey, amount float64) float64 {
	c := l.cohorts[key]
	if c == nil {
		c = &cohort{}
		l.cohorts[key] = c
	}
	c.observe(amount, l.config.CohortWindow)

	n := len(c.samples)
	if n < l.config.MinCohort {
		return 0
	}
	var less, equal float64
	for _, v := range c.samples {
		if v < amount {
			less++
		} else if v == amount {
			equal++
		}
	}
	// Ties share the mid-rank; equal counts the sample itself.
	rank := less + (equal+1)/2
	// Ranks over n samples are uniform with mean (n+1)/2 and variance
	// (n^2-1)/12, which standardizes the rank without assuming anything
	// about the amount distribution.
	nf := float64(n)
	sd := math.Sqrt((nf*nf - 1) / 12)
	if sd == 0 {
		return 0
	}
	return (rank - (nf+1)/2) / sd
}

// eta converts time since the link's last traversal into a learning rate.
// Rarely traversed links take near-full steps; links hammered every tick
// take tiny ones, keeping total drift bounded under hot loops.
func (l *Learner) eta(id graph.LinkID, at time.Time) float64 {
	tau := l.gapEMA
	if math.IsNaN(tau) || tau <= 0 {
		tau = l.config.TauSeed.Seconds()
	}

	eta := l.config.EtaMax
	if prev, ok := l.lastSeen[id]; ok {
		gap := math.Max(0, at.Sub(prev).Seconds())
		l.gapEMA = vecmath.EMA(l.gapEMA, gap, l.config.GapAlpha)
		eta = 1 - math.Exp(-gap/tau)
	}
	l.lastSeen[id] = at
	return vecmath.Clamp(eta, l.config.EtaMin, l.config.EtaMax)
}

func (l *Learner) nudgeNode(store *graph.Store, id graph.NodeID, step float64) {
	node := store.Node(id)
	if node == nil {
		return
	}
	node.LogStrength = vecmath.Clamp(node.LogStrength+step*l.config.NodeShare,
		l.config.WeightFloor, l.config.WeightCeiling)
}
