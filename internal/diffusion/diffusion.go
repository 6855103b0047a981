// Package diffusion moves activation energy along selected edges. Transfers
// are staged into the delta buffer and applied atomically at commit; a
// source never loses more than a bounded fraction of its energy per tick.
package diffusion

import (
	"math"

	"github.com/mindmesh/pulse/internal/cost"
	"github.com/mindmesh/pulse/internal/frontier"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// Config holds the diffusion tunables.
type Config struct {
	// AlphaTick is the base diffusion share per tick. The criticality
	// controller may scale the effective value. Default: 0.1.
	AlphaTick float64

	// MaxSharePerTick caps the total fraction of a source's energy that may
	// leave it in one tick across all its strides. Default: 0.5.
	MaxSharePerTick float64

	// TopK is the number of lowest-cost candidates an energy split spans.
	// 1 selects the arg-min candidate only. Default: 3.
	TopK int

	// SoftmaxTemperature shapes the top-K split. Default: 0.5.
	SoftmaxTemperature float64

	// MinTransfer drops transfers below this absolute energy so the delta
	// buffer does not fill with dust. Default: 1e-6.
	MinTransfer float64

	// StickinessEnabled turns on type-dependent retention. When off every
	// receiver keeps the full transfer. Default: false.
	StickinessEnabled bool

	// ConsolidationStickBonus is added for consolidated receivers. Default: 0.2.
	ConsolidationStickBonus float64

	// CentralityStickBonus scales the tanh in-degree bonus. Default: 0.1.
	CentralityStickBonus float64
}

// DefaultConfig returns the default diffusion configuration.
func DefaultConfig() Config {
	return Config{
		AlphaTick:               0.1,
		MaxSharePerTick:         0.5,
		TopK:                    3,
		SoftmaxTemperature:      0.5,
		MinTransfer:             1e-6,
		StickinessEnabled:       false,
		ConsolidationStickBonus: 0.2,
		CentralityStickBonus:    0.1,
	}
}

// Transfer records one candidate's outcome within a stride for telemetry.
type Transfer struct {
	Link      graph.LinkID   `json:"link"`
	Target    graph.NodeID   `json:"target"`
	Breakdown cost.Breakdown `json:"breakdown"`
	Share     float64        `json:"share"`  // fraction of the stride's energy
	Amount    float64        `json:"amount"` // staged energy before stickiness
	Chosen    bool           `json:"chosen"`
	Reason    string         `json:"reason"`
}

// StrideResult is the full outcome of one stride from one source.
type StrideResult struct {
	Source    graph.NodeID `json:"source"`
	Moved     float64      `json:"moved"`
	Transfers []Transfer   `json:"transfers"`
}

// Stager evaluates candidates and stages energy transfers.
type Stager struct {
	config Config
	eval   *cost.Evaluator
	tables *graph.TypeTables
}

// NewStager creates a diffusion stager.
func NewStager(config Config, eval *cost.Evaluator, tables *graph.TypeTables) *Stager {
	return &Stager{config: config, eval: eval, tables: tables}
}

// ExecuteStride stages one energy transfer from src across its pruned
// candidates. alphaEff is the controller-adjusted diffusion share for this
// tick; dt is the physics timestep. drained tracks energy already taken
// from each source this tick so the bounded-fraction cap holds across
// repeated strides. Returns the stride outcome; a source below the cap's
// remainder or with no candidates moves nothing.
func (d *Stager) ExecuteStride(
	store *graph.Store,
	deltas *frontier.Deltas,
	src graph.NodeID,
	candidates []*graph.Link,
	ctx cost.Context,
	alphaEff, dt float64,
	drained map[graph.NodeID]float64,
) StrideResult {
	result := StrideResult{Source: src}
	n := store.Node(src)
	if n == nil || n.Energy <= 0 || len(candidates) == 0 {
		return result
	}

	breakdowns := make([]cost.Breakdown, len(candidates))
	for i, l := range candidates {
		breakdowns[i] = d.eval.Evaluate(l, store.Node(l.Target), ctx)
	}

	chosen, shares := d.split(candidates, breakdowns)

	// Total energy this stride wants to move, capped by what the source may
	// still lose this tick.
	budget := n.Energy * d.config.MaxSharePerTick
	remaining := budget - drained[src]
	if remaining <= 0 {
		return result
	}

	for rank, i := range chosen {
		l := candidates[i]
		ease := breakdowns[i].Ease
		amount := n.Energy * ease * alphaEff * dt * shares[rank]
		if amount > remaining {
			amount = remaining
		}
		if amount < d.config.MinTransfer {
			continue
		}

		deltas.StageTransfer(src, l.Target, amount, d.stickiness(store, l))
		drained[src] += amount
		remaining -= amount
		result.Moved += amount

		l.UseCount++
		result.Transfers = append(result.Transfers, Transfer{
			Link:      l.ID,
			Target:    l.Target,
			Breakdown: breakdowns[i],
			Share:     shares[rank],
			Amount:    amount,
			Chosen:    true,
			Reason:    "softmax_split",
		})
	}

	// Record rejected candidates so the trace explains the decision.
	chosenSet := make(map[int]bool, len(chosen))
	for _, i := range chosen {
		chosenSet[i] = true
	}
	for i, l := range candidates {
		if chosenSet[i] {
			continue
		}
		result.Transfers = append(result.Transfers, Transfer{
			Link:      l.ID,
			Target:    l.Target,
			Breakdown: breakdowns[i],
			Chosen:    false,
			Reason:    "outside_top_k",
		})
	}
	return result
}

// split picks the K lowest-cost candidate indexes and their softmax shares.
// With TopK == 1 the arg-min candidate takes the whole stride.
func (d *Stager) split(candidates []*graph.Link, breakdowns []cost.Breakdown) ([]int, []float64) {
	k := d.config.TopK
	if k < 1 {
		k = 1
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	// Selection by cost ascending, ties broken by link ID for determinism.
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(idx); j++ {
			ci, cj := breakdowns[idx[j]].Cost, breakdowns[idx[best]].Cost
			if ci < cj || (ci == cj && candidates[idx[j]].ID < candidates[idx[best]].ID) {
				best = j
			}
		}
		idx[i], idx[best] = idx[best], idx[i]
	}
	chosen := idx[:k]

	if k == 1 {
		return chosen, []float64{1}
	}
	negCosts := make([]float64, k)
	for i, c := range chosen {
		negCosts[i] = -breakdowns[c].Cost
	}
	return chosen, vecmath.Softmax(negCosts, d.config.SoftmaxTemperature)
}

// stickiness returns the fraction of a transfer the receiver keeps. With the
// enrichment disabled everything sticks. Enabled, the base comes from the
// link-type table, raised for consolidated receivers and well-connected
// hubs, clamped to [0.1, 1.0].
func (d *Stager) stickiness(store *graph.Store, l *graph.Link) float64 {
	if !d.config.StickinessEnabled {
		return 1
	}
	s := d.tables.Stickiness(l.Type)
	if target := store.Node(l.Target); target != nil && target.Consolidation > 0 {
		s += d.config.ConsolidationStickBonus * math.Min(1, target.Consolidation)
	}
	s += d.config.CentralityStickBonus * math.Tanh(float64(store.InDegree(l.Target))/20)
	return vecmath.Clamp(s, 0.1, 1.0)
}
