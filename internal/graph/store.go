package graph

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Store is the arena owning all nodes, links, and entities of one graph.
// It is not safe for concurrent mutation: the tick loop is the single
// writer, and observability consumers read immutable snapshots published at
// commit boundaries instead of touching the store directly.
type Store struct {
	nodes    map[NodeID]*Node
	links    map[LinkID]*Link
	entities map[EntityID]*Entity

	// Adjacency as identifier lists, node-to-node links only.
	out map[NodeID][]LinkID
	in  map[NodeID][]LinkID

	// members indexes membership links by entity for aggregation.
	members map[EntityID][]LinkID

	nextLink uint64
}

// NewStore creates an empty arena.
func NewStore() *Store {
	return &Store{
		nodes:    make(map[NodeID]*Node),
		links:    make(map[LinkID]*Link),
		entities: make(map[EntityID]*Entity),
		out:      make(map[NodeID][]LinkID),
		in:       make(map[NodeID][]LinkID),
		members:  make(map[EntityID][]LinkID),
	}
}

// AddNode inserts a node. Nodes are created on first reference; re-adding an
// existing ID is an error.
func (s *Store) AddNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("add node: empty ID")
	}
	if _, ok := s.nodes[n.ID]; ok {
		return fmt.Errorf("add node: %s already exists", n.ID)
	}
	if n.Energy < 0 || math.IsNaN(n.Energy) {
		return fmt.Errorf("add node %s: invalid energy %f", n.ID, n.Energy)
	}
	if n.Memberships == nil {
		n.Memberships = make(map[EntityID]float64)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.nodes[n.ID] = n
	return nil
}

// Node returns the node with the given ID, or nil.
func (s *Store) Node(id NodeID) *Node {
	return s.nodes[id]
}

// NodeCount returns the number of nodes in the arena.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// Nodes iterates all nodes in unspecified order.
func (s *Store) Nodes(fn func(*Node)) {
	for _, n := range s.nodes {
		fn(n)
	}
}

// NodeIDs returns all node IDs sorted for deterministic iteration.
func (s *Store) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Connect inserts a directed node-to-node link and returns it. Both
// endpoints must exist.
func (s *Store) Connect(src, dst NodeID, lt LinkType, logWeight float64) (*Link, error) {
	if lt == LinkMembership {
		return nil, fmt.Errorf("connect %s->%s: membership links go through SetMembership", src, dst)
	}
	if s.nodes[src] == nil {
		return nil, fmt.Errorf("connect: source node %s not found", src)
	}
	if s.nodes[dst] == nil {
		return nil, fmt.Errorf("connect: target node %s not found", dst)
	}

	s.nextLink++
	l := &Link{
		ID:        LinkID(fmt.Sprintf("l%d", s.nextLink)),
		Type:      lt,
		Source:    src,
		Target:    dst,
		LogWeight: logWeight,
		CreatedAt: time.Now(),
	}
	s.links[l.ID] = l
	s.out[src] = append(s.out[src], l.ID)
	s.in[dst] = append(s.in[dst], l.ID)
	return l, nil
}

// Link returns the link with the given ID, or nil.
func (s *Store) Link(id LinkID) *Link {
	return s.links[id]
}

// Links iterates all links in unspecified order.
func (s *Store) Links(fn func(*Link)) {
	for _, l := range s.links {
		fn(l)
	}
}

// OutLinks returns the node's outgoing node-to-node links.
func (s *Store) OutLinks(id NodeID) []*Link {
	ids := s.out[id]
	links := make([]*Link, 0, len(ids))
	for _, lid := range ids {
		links = append(links, s.links[lid])
	}
	return links
}

// OutDegree returns the node's out-degree over node-to-node links.
func (s *Store) OutDegree(id NodeID) int {
	return len(s.out[id])
}

// InDegree returns the node's in-degree over node-to-node links.
func (s *Store) InDegree(id NodeID) int {
	return len(s.in[id])
}

// AddEntity inserts an entity.
func (s *Store) AddEntity(e *Entity) error {
	if e.ID == "" {
		return fmt.Errorf("add entity: empty ID")
	}
	if _, ok := s.entities[e.ID]; ok {
		return fmt.Errorf("add entity: %s already exists", e.ID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.entities[e.ID] = e
	return nil
}

// Entity returns the entity with the given ID, or nil.
func (s *Store) Entity(id EntityID) *Entity {
	return s.entities[id]
}

// Entities iterates all entities in unspecified order.
func (s *Store) Entities(fn func(*Entity)) {
	for _, e := range s.entities {
		fn(e)
	}
}

// EntityIDs returns all entity IDs sorted for deterministic iteration.
func (s *Store) EntityIDs() []EntityID {
	ids := make([]EntityID, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetMembership binds a node into an entity with the given raw weight,
// creating or updating the underlying membership link and the node's
// membership index together.
func (s *Store) SetMembership(node NodeID, entity EntityID, weight float64) error {
	n := s.nodes[node]
	if n == nil {
		return fmt.Errorf("set membership: node %s not found", node)
	}
	if s.entities[entity] == nil {
		return fmt.Errorf("set membership: entity %s not found", entity)
	}
	if weight <= 0 {
		return fmt.Errorf("set membership %s->%s: weight must be positive, got %f", node, entity, weight)
	}

	for _, lid := range s.members[entity] {
		l := s.links[lid]
		if l.Source == node {
			l.LogWeight = math.Log(weight)
			n.Memberships[entity] = weight
			return nil
		}
	}

	s.nextLink++
	l := &Link{
		ID:           LinkID(fmt.Sprintf("l%d", s.nextLink)),
		Type:         LinkMembership,
		Source:       node,
		TargetEntity: entity,
		LogWeight:    math.Log(weight),
		CreatedAt:    time.Now(),
	}
	s.links[l.ID] = l
	s.members[entity] = append(s.members[entity], l.ID)
	n.Memberships[entity] = weight
	return nil
}

// Members returns the entity's member node IDs with raw membership weights.
func (s *Store) Members(entity EntityID) map[NodeID]float64 {
	out := make(map[NodeID]float64, len(s.members[entity]))
	for _, lid := range s.members[entity] {
		l := s.links[lid]
		out[l.Source] = math.Exp(l.LogWeight)
	}
	return out
}

// ExtentSize returns the number of members of an entity.
func (s *Store) ExtentSize(entity EntityID) int {
	return len(s.members[entity])
}

// ReleaseMemberships removes every membership link of a dissolved entity and
// clears the members' indexes. The entity record itself is kept, marked
// dissolved by the caller, so telemetry consumers can still resolve its name.
func (s *Store) ReleaseMemberships(entity EntityID) {
	for _, lid := range s.members[entity] {
		l := s.links[lid]
		if n := s.nodes[l.Source]; n != nil {
			delete(n.Memberships, entity)
		}
		delete(s.links, lid)
	}
	delete(s.members, entity)
}

// NormalizedMembership returns the node's membership weight in the entity
// after normalizing the node's weights to sum at most 1 across all its
// entities. Raw sums at or below 1 pass through unchanged.
func (s *Store) NormalizedMembership(node NodeID, entity EntityID) float64 {
	n := s.nodes[node]
	if n == nil {
		return 0
	}
	raw := n.Memberships[entity]
	if raw == 0 {
		return 0
	}
	var sum float64
	for _, w := range n.Memberships {
		sum += w
	}
	if sum <= 1 {
		return raw
	}
	return raw / sum
}

// TotalEnergy returns the sum of node energies.
func (s *Store) TotalEnergy() float64 {
	var total float64
	for _, n := range s.nodes {
		total += n.Energy
	}
	return total
}

// MeanArousal returns the mean magnitude of node affect vectors over nodes
// that carry one, or 0 when none do.
func (s *Store) MeanArousal() float64 {
	var sum float64
	var count int
	for _, n := range s.nodes {
		if len(n.Affect) == 0 {
			continue
		}
		var sq float64
		for _, v := range n.Affect {
			sq += v * v
		}
		sum += math.Sqrt(sq)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
