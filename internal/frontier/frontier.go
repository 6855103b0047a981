// Package frontier bounds each tick's work to the active region of the
// graph. The frontier is ephemeral: recomputed at tick start from the
// previous committed state and discarded after commit.
package frontier

import (
	"sort"

	"github.com/mindmesh/pulse/internal/graph"
)

// Frontier is the per-tick working set: nodes at or above threshold plus
// their outgoing one-hop neighbors.
type Frontier struct {
	Active []graph.NodeID
	Shadow []graph.NodeID

	activeSet map[graph.NodeID]bool
}

// Compute scans the committed state and builds the frontier. Active nodes
// are those with E >= theta; shadow nodes are out-neighbors of active nodes
// that are not themselves active. Later stages touch only this set, so tick
// cost scales with frontier size rather than graph size.
func Compute(s *graph.Store) *Frontier {
	f := &Frontier{activeSet: make(map[graph.NodeID]bool)}

	s.Nodes(func(n *graph.Node) {
		if n.Active() {
			f.activeSet[n.ID] = true
			f.Active = append(f.Active, n.ID)
		}
	})

	shadowSet := make(map[graph.NodeID]bool)
	for _, id := range f.Active {
		for _, l := range s.OutLinks(id) {
			if !f.activeSet[l.Target] {
				shadowSet[l.Target] = true
			}
		}
	}
	for id := range shadowSet {
		f.Shadow = append(f.Shadow, id)
	}

	// Deterministic order keeps the scheduler and telemetry reproducible.
	sort.Slice(f.Active, func(i, j int) bool { return f.Active[i] < f.Active[j] })
	sort.Slice(f.Shadow, func(i, j int) bool { return f.Shadow[i] < f.Shadow[j] })
	return f
}

// IsActive reports whether the node was active when the frontier was built.
func (f *Frontier) IsActive(id graph.NodeID) bool {
	return f.activeSet[id]
}

// Size returns the total frontier size, active plus shadow.
func (f *Frontier) Size() int {
	return len(f.Active) + len(f.Shadow)
}
