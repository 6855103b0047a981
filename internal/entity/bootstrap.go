package entity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mindmesh/pulse/internal/graph"
)

// Manifest is the YAML shape for bootstrapping named entities at startup.
type Manifest struct {
	Entities []ManifestEntity `yaml:"entities"`
}

// ManifestEntity seeds one entity and its memberships.
type ManifestEntity struct {
	ID      string             `yaml:"id"`
	Name    string             `yaml:"name"`
	Members map[string]float64 `yaml:"members"` // node ID -> membership weight
}

// LoadManifest parses an entity manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading entity manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing entity manifest: %w", err)
	}
	return &m, nil
}

// bootstrapThreshold is the activation threshold for member nodes created
// on first reference by a manifest. Seeded nodes start inactive; they enter
// the frontier only once diffusion or a stimulus lifts them over it.
const bootstrapThreshold = 0.5

// Bootstrap inserts the manifest's entities into the store as candidates.
// Member nodes that do not exist yet are created on first reference as
// concept nodes with zero energy, below their activation threshold.
func Bootstrap(store *graph.Store, m *Manifest) error {
	for _, me := range m.Entities {
		if me.ID == "" {
			return fmt.Errorf("bootstrap entity %q: empty ID", me.Name)
		}
		e := &graph.Entity{
			ID:    graph.EntityID(me.ID),
			Name:  me.Name,
			State: graph.LifecycleCandidate,
		}
		if err := store.AddEntity(e); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		for nodeID, weight := range me.Members {
			id := graph.NodeID(nodeID)
			if store.Node(id) == nil {
				n := &graph.Node{ID: id, Type: graph.NodeConcept, Threshold: bootstrapThreshold}
				if err := store.AddNode(n); err != nil {
					return fmt.Errorf("bootstrap member %s: %w", nodeID, err)
				}
			}
			if err := store.SetMembership(id, e.ID, weight); err != nil {
				return fmt.Errorf("bootstrap membership %s->%s: %w", nodeID, me.ID, err)
			}
		}
	}
	return nil
}
