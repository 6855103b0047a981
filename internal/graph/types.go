// Package graph holds the arena of nodes, links, and entities shared by the
// tick engine. The store is a pure container: it owns all graph objects and
// hands out borrowed references for the duration of a single tick. All
// cross-references are stable identifiers, never pointers, so cyclic
// structures (node <-> link <-> entity) never become ownership cycles.
package graph

import (
	"fmt"
	"math"
	"time"
)

// NodeID identifies a node in the arena.
type NodeID string

// LinkID identifies a link in the arena.
type LinkID string

// EntityID identifies an entity in the arena.
type EntityID string

// NodeType is a closed enumeration of node kinds. Per-type tunables (decay
// multipliers, stickiness) are resolved through lookup tables validated at
// startup rather than string matching at runtime.
type NodeType int

const (
	NodeConcept NodeType = iota
	NodeEpisode
	NodeGoal
	NodeTask
	NodePercept
	nodeTypeCount // sentinel for table validation
)

// String returns the lowercase name used in configuration and telemetry.
func (t NodeType) String() string {
	switch t {
	case NodeConcept:
		return "concept"
	case NodeEpisode:
		return "episode"
	case NodeGoal:
		return "goal"
	case NodeTask:
		return "task"
	case NodePercept:
		return "percept"
	default:
		return fmt.Sprintf("nodetype(%d)", int(t))
	}
}

// ParseNodeType maps a configuration name to a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "concept":
		return NodeConcept, nil
	case "episode":
		return NodeEpisode, nil
	case "goal":
		return NodeGoal, nil
	case "task":
		return NodeTask, nil
	case "percept":
		return NodePercept, nil
	default:
		return 0, fmt.Errorf("unknown node type %q", s)
	}
}

// LinkType is a closed enumeration of link kinds.
type LinkType int

const (
	LinkAssociation LinkType = iota
	LinkCausal
	LinkSimilarity
	LinkTemporal
	LinkMembership
	linkTypeCount
)

// String returns the lowercase name used in configuration and telemetry.
func (t LinkType) String() string {
	switch t {
	case LinkAssociation:
		return "association"
	case LinkCausal:
		return "causal"
	case LinkSimilarity:
		return "similarity"
	case LinkTemporal:
		return "temporal"
	case LinkMembership:
		return "membership"
	default:
		return fmt.Sprintf("linktype(%d)", int(t))
	}
}

// ParseLinkType maps a configuration name to a LinkType.
func ParseLinkType(s string) (LinkType, error) {
	switch s {
	case "association":
		return LinkAssociation, nil
	case "causal":
		return LinkCausal, nil
	case "similarity":
		return LinkSimilarity, nil
	case "temporal":
		return LinkTemporal, nil
	case "membership":
		return LinkMembership, nil
	default:
		return 0, fmt.Errorf("unknown link type %q", s)
	}
}

// LifecycleState tracks an entity's maturation.
type LifecycleState int

const (
	LifecycleCandidate LifecycleState = iota
	LifecycleProvisional
	LifecycleMature
	LifecycleDissolved
)

// String returns the lowercase name used in telemetry.
func (s LifecycleState) String() string {
	switch s {
	case LifecycleCandidate:
		return "candidate"
	case LifecycleProvisional:
		return "provisional"
	case LifecycleMature:
		return "mature"
	case LifecycleDissolved:
		return "dissolved"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(s))
	}
}

// Node is a unit of the activation graph. Energy and threshold are mutated
// every tick by diffusion and decay; LogStrength is a slow-learned attractor
// term. Memberships map this node into entities with weights that the
// aggregator normalizes to sum at most 1.
type Node struct {
	ID        NodeID
	Type      NodeType
	Energy    float64 // activation energy, never negative
	Threshold float64 // adaptive activation threshold

	// LogStrength is the node's learned attractor strength in log space.
	LogStrength float64

	// Affect is an optional affect vector; nil means no affective coloring.
	Affect []float64

	// Embedding is an optional semantic embedding used for goal affinity
	// and stimulus matching. Supplied by the ingress collaborator.
	Embedding []float64

	// Memberships maps entity IDs to raw membership weights. Kept in sync
	// with the membership links by the store.
	Memberships map[EntityID]float64

	// Consolidation accumulates bounded decay slow-down contributions.
	Consolidation float64

	CreatedAt    time.Time
	LastStimulus time.Time
	RetrievedAt  time.Time
}

// Active reports whether the node is at or above its threshold.
func (n *Node) Active() bool {
	return n.Energy >= n.Threshold
}

// Surplus returns the node's energy above threshold, floored at zero.
func (n *Node) Surplus() float64 {
	return math.Max(0, n.Energy-n.Threshold)
}

// Link is a directed edge. Node-to-node links carry diffusion; membership
// links bind a node into an entity and never carry energy themselves.
type Link struct {
	ID   LinkID
	Type LinkType

	Source NodeID
	Target NodeID

	// TargetEntity is set instead of Target for membership links.
	TargetEntity EntityID

	// LogWeight is the learned weight in log space; ease = exp(LogWeight).
	LogWeight float64

	// Affect is an optional affect vector coloring this link.
	Affect []float64

	UseCount      int
	LastTraversed time.Time
	CreatedAt     time.Time
}

// Ease returns the structural ease of traversal, exp(LogWeight).
func (l *Link) Ease() float64 {
	return math.Exp(l.LogWeight)
}

// Entity is a named soft neighborhood of nodes. It stores no energy of its
// own: activation is always recomputed from member surplus. Lifecycle and
// quality bookkeeping live here because they span ticks.
type Entity struct {
	ID       EntityID
	Name     string
	State    LifecycleState
	Active   bool // last committed activation state
	Energy   float64
	Theta    float64

	// Quality is the rolling lifecycle quality score in [0, 1].
	Quality float64

	// Health signals, each an EMA in [0, 1]. Quality is their geometric mean.
	Signals HealthSignals

	HighStreak int // consecutive maintenance passes with quality above the promote bar
	LowStreak  int // consecutive passes below the dissolve floor

	// Centroid is the running mean embedding of the extent, recomputed
	// exactly each maintenance pass.
	Centroid []float64

	CreatedAt time.Time
}

// HealthSignals are the five bounded EMA components of entity quality.
type HealthSignals struct {
	Cohesion     float64 // internal link density vs. boundary
	Stability    float64 // membership churn inverse
	Distinctness float64 // separation from sibling entity centroids
	Utility      float64 // recent scheduler return on effort
	Completeness float64 // coverage of the running centroid neighborhood
}
