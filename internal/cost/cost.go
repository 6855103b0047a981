// Package cost scores candidate edges for diffusion. The base cost is the
// inverse of structural ease minus goal affinity, shaped by two bounded
// affect gates: resonance lowers cost toward targets whose affect aligns
// with the current state, complementarity lowers cost toward opposing
// affect when intensity and context call for regulation.
package cost

import (
	"math"

	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// Config holds the cost evaluator tunables.
type Config struct {
	// ResonanceLambda scales how strongly affect alignment discounts cost.
	// Default: 0.6.
	ResonanceLambda float64

	// ResonanceMin and ResonanceMax bound the resonance multiplier.
	// Defaults: 0.6 and 1.6.
	ResonanceMin float64
	ResonanceMax float64

	// ComplementarityLambda scales the opposing-affect discount. Default: 0.8.
	ComplementarityLambda float64

	// ComplementarityMin and ComplementarityMax bound the multiplier.
	// Defaults: 0.7 and 1.5.
	ComplementarityMin float64
	ComplementarityMax float64
}

// DefaultConfig returns the default cost evaluator configuration.
func DefaultConfig() Config {
	return Config{
		ResonanceLambda:       0.6,
		ResonanceMin:          0.6,
		ResonanceMax:          1.6,
		ComplementarityLambda: 0.8,
		ComplementarityMin:    0.7,
		ComplementarityMax:    1.5,
	}
}

// Context carries the per-tick affective and goal state the evaluator reads.
// Any field may be empty; missing context degrades to neutral multipliers.
type Context struct {
	// Affect is the agent's current affect vector.
	Affect []float64

	// GoalEmbedding is the active goal's embedding, used for affinity.
	GoalEmbedding []float64

	// RegulationGate in [0, 1] scales the complementarity discount; an agent
	// in a context that discourages self-regulation sets this low.
	RegulationGate float64
}

// Breakdown records every term of one cost evaluation for telemetry.
type Breakdown struct {
	Ease            float64 `json:"ease"`
	GoalAffinity    float64 `json:"goal_affinity"`
	Resonance       float64 `json:"resonance"`
	Complementarity float64 `json:"complementarity"`
	Cost            float64 `json:"cost"`
}

// Evaluator computes selection costs for candidate links.
type Evaluator struct {
	config Config
}

// NewEvaluator creates a cost evaluator.
func NewEvaluator(config Config) *Evaluator {
	return &Evaluator{config: config}
}

// Evaluate scores one candidate link toward the given target node. Lower is
// better. Degenerate inputs (zero ease, missing vectors) resolve locally to
// neutral values and never produce NaN or Inf.
func (e *Evaluator) Evaluate(link *graph.Link, target *graph.Node, ctx Context) Breakdown {
	ease := link.Ease()
	if ease <= 0 || math.IsNaN(ease) || math.IsInf(ease, 0) {
		ease = 1
	}

	affinity := 0.0
	if len(ctx.GoalEmbedding) > 0 && target != nil {
		affinity = vecmath.Cosine(target.Embedding, ctx.GoalEmbedding)
	}

	res := e.resonance(ctx.Affect, link.Affect)
	comp := e.complementarity(ctx, target)

	cost := (1/ease - affinity) * res * comp
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		cost = 1
	}

	return Breakdown{
		Ease:            ease,
		GoalAffinity:    affinity,
		Resonance:       res,
		Complementarity: comp,
		Cost:            cost,
	}
}

// resonance discounts cost when the current affect aligns with the link's
// affect coloring. Without an affect context the gate is neutral.
func (e *Evaluator) resonance(affect, linkAffect []float64) float64 {
	if len(affect) == 0 || len(linkAffect) == 0 {
		return 1
	}
	cos := vecmath.Cosine(affect, linkAffect)
	if cos == 0 && (vecmath.Norm(affect) == 0 || vecmath.Norm(linkAffect) == 0) {
		return 1
	}
	m := math.Exp(-e.config.ResonanceLambda * cos)
	return vecmath.Clamp(m, e.config.ResonanceMin, e.config.ResonanceMax)
}

// complementarity discounts cost toward targets with opposing affect,
// scaled by current affect intensity and the regulation gate. Only negative
// alignment contributes; aligned targets pass through neutral.
func (e *Evaluator) complementarity(ctx Context, target *graph.Node) float64 {
	if target == nil || len(ctx.Affect) == 0 || len(target.Affect) == 0 {
		return 1
	}
	cos := vecmath.Cosine(ctx.Affect, target.Affect)
	opposition := math.Max(0, -cos)
	if opposition == 0 {
		return 1
	}
	intensity := vecmath.Clamp(vecmath.Norm(ctx.Affect), 0, 1)
	gate := vecmath.Clamp(ctx.RegulationGate, 0, 1)
	m := math.Exp(-e.config.ComplementarityLambda * opposition * intensity * gate)
	return vecmath.Clamp(m, e.config.ComplementarityMin, e.config.ComplementarityMax)
}
