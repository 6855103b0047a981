package frontier

import (
	"math"

	"github.com/mindmesh/pulse/internal/graph"
)

// Deltas is the staged energy delta buffer for one tick. Nothing writes node
// energy directly during diffusion: transfers are staged here and applied in
// one pass at commit. The buffer doubles as the conservation ledger, tracking
// every source of energy entering or leaving the graph this tick.
type Deltas struct {
	pending map[graph.NodeID]float64

	// Ledger terms for the conservation check.
	Injected     float64 // external stimulus energy added this tick
	Dissipated   float64 // energy lost to stickiness during transfers
	Decayed      float64 // energy removed by activation decay after commit
	FloorClipped float64 // energy created by flooring a node at zero
}

// NewDeltas creates an empty staged delta buffer.
func NewDeltas() *Deltas {
	return &Deltas{pending: make(map[graph.NodeID]float64)}
}

// Stage adds a pending energy change for a node. Deltas accumulate; they are
// not applied until Commit.
func (d *Deltas) Stage(id graph.NodeID, delta float64) {
	if delta == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	d.pending[id] += delta
}

// StageTransfer stages a movement of energy from src to dst where the
// receiver keeps only the sticky fraction. The lost remainder is recorded in
// the dissipation ledger so conservation still balances.
func (d *Deltas) StageTransfer(src, dst graph.NodeID, amount, stickiness float64) {
	if amount <= 0 {
		return
	}
	retained := amount * stickiness
	d.Stage(src, -amount)
	d.Stage(dst, retained)
	d.Dissipated += amount - retained
}

// StageInjection stages externally injected energy and records it in the
// injection ledger.
func (d *Deltas) StageInjection(id graph.NodeID, amount float64) {
	if amount <= 0 {
		return
	}
	d.Stage(id, amount)
	d.Injected += amount
}

// Pending returns the staged delta for a node.
func (d *Deltas) Pending(id graph.NodeID) float64 {
	return d.pending[id]
}

// Sum returns the net sum of all staged deltas.
func (d *Deltas) Sum() float64 {
	var sum float64
	for _, v := range d.pending {
		sum += v
	}
	return sum
}

// Len returns the number of nodes with staged deltas.
func (d *Deltas) Len() int {
	return len(d.pending)
}

// Commit applies every staged delta in one pass, flooring each node's energy
// at zero. Energy created by the floor is recorded in the ledger so the
// conservation identity still closes. Returns the net energy change applied.
func (d *Deltas) Commit(s *graph.Store) float64 {
	var applied float64
	for id, delta := range d.pending {
		n := s.Node(id)
		if n == nil {
			continue
		}
		next := n.Energy + delta
		if next < 0 {
			d.FloorClipped += -next
			next = 0
		}
		applied += next - n.Energy
		n.Energy = next
	}
	d.pending = make(map[graph.NodeID]float64)
	return applied
}

// ConservationError returns the absolute imbalance of this tick's ledger
// given the observed change in total graph energy over the tick. The
// identity is
//
//	deltaEnergy = Injected - Dissipated - Decayed + FloorClipped
//
// and the return value is how far the tick deviated from it.
func (d *Deltas) ConservationError(deltaEnergy float64) float64 {
	return math.Abs(deltaEnergy - d.Injected + d.Dissipated + d.Decayed - d.FloorClipped)
}
