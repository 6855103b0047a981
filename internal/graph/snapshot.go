package graph

import "time"

// Snapshot is an immutable copy of the observable graph state as of the last
// commit. The engine publishes one per tick; readers never touch the live
// store.
type Snapshot struct {
	Tick        uint64
	TakenAt     time.Time
	TotalEnergy float64
	NodeCount   int
	LinkCount   int
	ActiveNodes int

	Nodes    []NodeSnapshot
	Entities []EntitySnapshot
}

// NodeSnapshot is the observable state of one node.
type NodeSnapshot struct {
	ID        NodeID   `json:"id"`
	Type      string   `json:"type"`
	Energy    float64  `json:"energy"`
	Threshold float64  `json:"threshold"`
	Active    bool     `json:"active"`
}

// EntitySnapshot is the observable state of one entity.
type EntitySnapshot struct {
	ID      EntityID `json:"id"`
	Name    string   `json:"name"`
	State   string   `json:"state"`
	Active  bool     `json:"active"`
	Energy  float64  `json:"energy"`
	Theta   float64  `json:"theta"`
	Quality float64  `json:"quality"`
	Extent  int      `json:"extent"`
}

// TakeSnapshot copies the observable state out of the store. Called only by
// the tick loop at a commit boundary.
func (s *Store) TakeSnapshot(tick uint64) *Snapshot {
	snap := &Snapshot{
		Tick:      tick,
		TakenAt:   time.Now(),
		NodeCount: len(s.nodes),
		LinkCount: len(s.links),
	}
	snap.Nodes = make([]NodeSnapshot, 0, len(s.nodes))
	for _, id := range s.NodeIDs() {
		n := s.nodes[id]
		active := n.Active()
		if active {
			snap.ActiveNodes++
		}
		snap.TotalEnergy += n.Energy
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:        n.ID,
			Type:      n.Type.String(),
			Energy:    n.Energy,
			Threshold: n.Threshold,
			Active:    active,
		})
	}
	snap.Entities = make([]EntitySnapshot, 0, len(s.entities))
	for _, id := range s.EntityIDs() {
		e := s.entities[id]
		snap.Entities = append(snap.Entities, EntitySnapshot{
			ID:      e.ID,
			Name:    e.Name,
			State:   e.State.String(),
			Active:  e.Active,
			Energy:  e.Energy,
			Theta:   e.Theta,
			Quality: e.Quality,
			Extent:  s.ExtentSize(e.ID),
		})
	}
	return snap
}
