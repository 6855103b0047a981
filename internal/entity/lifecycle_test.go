package entity

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mindmesh/pulse/internal/graph"
)

// clusterStore builds a tight two-node entity with an internal link.
func clusterStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	for _, id := range []graph.NodeID{"a", "b"} {
		if err := s.AddNode(&graph.Node{ID: id, Type: graph.NodeConcept, Embedding: []float64{1, 0}}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Connect("a", "b", graph.LinkAssociation, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntity(&graph.Entity{ID: "e", Name: "e", CreatedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMembership("a", "e", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMembership("b", "e", 0.5); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestQualityGeometricMean(t *testing.T) {
	l := NewLifecycle(DefaultConfig())

	balanced := graph.HealthSignals{Cohesion: 0.8, Stability: 0.8, Distinctness: 0.8, Utility: 0.8, Completeness: 0.8}
	if got := l.quality(balanced); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("quality of uniform 0.8 = %f, want 0.8", got)
	}

	// One collapsed signal drags the score far below the arithmetic mean.
	collapsed := balanced
	collapsed.Utility = 0.0
	got := l.quality(collapsed)
	arithmetic := (0.8*4 + 0) / 5
	if got >= arithmetic {
		t.Errorf("quality with collapsed signal = %f, want below arithmetic mean %f", got, arithmetic)
	}
	if got == 0 {
		t.Error("signal floor should keep quality above zero")
	}
}

func TestPromotionStreaks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteStreak = 2
	cfg.MatureStreak = 2
	cfg.QualityAlpha = 1.0 // take each sample directly
	cfg.CoherenceEnabled = true
	l := NewLifecycle(cfg)
	s := clusterStore(t)
	now := time.Now()

	utility := map[graph.EntityID]float64{"e": 1.0}

	// Cohesion 1 (only internal links), stability 1, distinctness 1 (no
	// siblings), completeness 1, utility 1: quality 1 every pass.
	var transitions []TransitionEvent
	for i := 0; i < 2; i++ {
		transitions = l.Maintain(s, utility, now)
	}
	if len(transitions) != 1 || transitions[0].To != "provisional" {
		t.Fatalf("transitions = %+v, want promotion to provisional", transitions)
	}

	for i := 0; i < 2; i++ {
		transitions = l.Maintain(s, utility, now)
	}
	if len(transitions) != 1 || transitions[0].To != "mature" {
		t.Fatalf("transitions = %+v, want promotion to mature", transitions)
	}
}

// sparseStore builds a loose entity: no internal links, no embeddings, so
// cohesion collapses and quality can fall below the dissolve floor.
func sparseStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	for _, id := range []graph.NodeID{"a", "b"} {
		if err := s.AddNode(&graph.Node{ID: id, Type: graph.NodeConcept}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddEntity(&graph.Entity{ID: "e", Name: "e", CreatedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []graph.NodeID{"a", "b"} {
		if err := s.SetMembership(id, "e", 0.5); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestDissolutionReleasesLinks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DissolveStreak = 2
	cfg.MinAge = 0
	cfg.QualityAlpha = 1.0
	cfg.CoherenceEnabled = true
	l := NewLifecycle(cfg)
	s := sparseStore(t)
	now := time.Now()

	// Zero utility collapses the geometric mean below the floor.
	utility := map[graph.EntityID]float64{"e": 0.0}

	var transitions []TransitionEvent
	for i := 0; i < 2; i++ {
		transitions = l.Maintain(s, utility, now)
	}
	if len(transitions) != 1 || transitions[0].To != "dissolved" {
		t.Fatalf("transitions = %+v, want dissolution", transitions)
	}
	if s.ExtentSize("e") != 0 {
		t.Error("dissolution must release membership links")
	}
	if _, ok := s.Node("a").Memberships["e"]; ok {
		t.Error("node membership index must be cleared on dissolution")
	}

	// Dissolved entities are skipped on later passes.
	if got := l.Maintain(s, utility, now); len(got) != 0 {
		t.Errorf("dissolved entity produced transitions: %+v", got)
	}
}

func TestMinAgeGuardsDissolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DissolveStreak = 1
	cfg.MinAge = time.Hour
	cfg.QualityAlpha = 1.0
	cfg.CoherenceEnabled = true
	l := NewLifecycle(cfg)

	s := sparseStore(t)
	s.Entity("e").CreatedAt = time.Now() // newborn

	transitions := l.Maintain(s, map[graph.EntityID]float64{"e": 0.0}, time.Now())
	if len(transitions) != 0 {
		t.Errorf("newborn entity dissolved: %+v", transitions)
	}
}

func TestCentroidExactRecompute(t *testing.T) {
	l := NewLifecycle(DefaultConfig())
	s := graph.NewStore()
	if err := s.AddNode(&graph.Node{ID: "a", Type: graph.NodeConcept, Embedding: []float64{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNode(&graph.Node{ID: "b", Type: graph.NodeConcept, Embedding: []float64{0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntity(&graph.Entity{ID: "e", Name: "e"}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []graph.NodeID{"a", "b"} {
		if err := s.SetMembership(id, "e", 0.5); err != nil {
			t.Fatal(err)
		}
	}

	c := l.centroid(s, "e")
	if len(c) != 2 || math.Abs(c[0]-0.5) > 1e-9 || math.Abs(c[1]-0.5) > 1e-9 {
		t.Errorf("centroid = %v, want [0.5 0.5]", c)
	}
}

func TestBootstrapManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entities.yaml")
	manifest := `entities:
  - id: focus
    name: Current Focus
    members:
      n1: 0.8
      n2: 0.5
`
	if err := os.WriteFile(path, []byte(manifest), 0600); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	s := graph.NewStore()
	if err := Bootstrap(s, m); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	e := s.Entity("focus")
	if e == nil || e.State != graph.LifecycleCandidate {
		t.Fatal("bootstrapped entity missing or not a candidate")
	}
	if s.ExtentSize("focus") != 2 {
		t.Errorf("extent = %d, want 2", s.ExtentSize("focus"))
	}
	if s.Node("n1") == nil {
		t.Error("member nodes should be created on first reference")
	}
}
