package entity

import (
	"math"
	"testing"

	"github.com/mindmesh/pulse/internal/graph"
)

// twoMemberStore builds one entity over two nodes with given energies.
func twoMemberStore(t *testing.T, e1, e2 float64) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	if err := s.AddNode(&graph.Node{ID: "a", Type: graph.NodeConcept, Energy: e1, Threshold: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNode(&graph.Node{ID: "b", Type: graph.NodeConcept, Energy: e2, Threshold: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntity(&graph.Entity{ID: "e", Name: "e"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMembership("a", "e", 0.6); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMembership("b", "e", 0.4); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestActivationWeightedSurplus(t *testing.T) {
	s := twoMemberStore(t, 1.0, 0.7)
	a := NewAggregator(DefaultConfig())

	// Surpluses: a = 0.5, b = 0.2; weights 0.6 and 0.4 already sum to 1.
	got := a.Activation(s, "e")
	want := 0.6*0.5 + 0.4*0.2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Activation = %f, want %f", got, want)
	}
}

func TestActivationIgnoresSubthresholdMembers(t *testing.T) {
	s := twoMemberStore(t, 1.0, 0.1)
	a := NewAggregator(DefaultConfig())

	got := a.Activation(s, "e")
	want := 0.6 * 0.5 // b is below threshold, contributes nothing
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Activation = %f, want %f", got, want)
	}
}

func TestActivationLogDampensHotNodes(t *testing.T) {
	s := twoMemberStore(t, 100.5, 0.1)
	a := NewAggregator(DefaultConfig())

	got := a.Activation(s, "e")
	// A surplus of 100 is compressed to 1 + ln(100), not passed through.
	want := 0.6 * (1 + math.Log(100))
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Activation = %f, want dampened %f", got, want)
	}
}

func TestTickFlipWithHysteresis(t *testing.T) {
	s := twoMemberStore(t, 2.0, 1.6)
	cfg := DefaultConfig()
	cfg.WarmupMin = 1000 // stay on BaseTheta for determinism
	a := NewAggregator(cfg)

	flips := a.Tick(s, 1.0)
	if len(flips) != 1 || !flips[0].Active {
		t.Fatalf("flips = %+v, want one activation flip", flips)
	}
	if !s.Entity("e").Active {
		t.Error("entity should be active after flip")
	}

	// Energy just inside the hysteresis band must not flip back: theta is
	// 0.5, band 0.025, and a surplus of 0.8 on the 0.6-weight member gives
	// an entity energy of 0.48, above theta minus the band.
	s.Node("a").Energy = 1.3
	s.Node("b").Energy = 0
	flips = a.Tick(s, 1.0)
	if len(flips) != 0 {
		t.Errorf("flip inside hysteresis band: %+v", flips)
	}

	// A collapse well below the band flips off.
	s.Node("a").Energy = 0
	flips = a.Tick(s, 1.0)
	if len(flips) != 1 || flips[0].Active {
		t.Fatalf("flips = %+v, want one deactivation flip", flips)
	}
}

func TestThresholdMultiplierRaisesBar(t *testing.T) {
	s := twoMemberStore(t, 2.0, 1.6)
	cfg := DefaultConfig()
	cfg.WarmupMin = 1000
	a := NewAggregator(cfg)

	// With a strongly raised threshold the same energy stays inactive.
	flips := a.Tick(s, 10.0)
	if len(flips) != 0 {
		t.Errorf("flips under raised threshold = %+v, want none", flips)
	}
}

func TestCohortThresholdWarmup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupMin = 3
	a := NewAggregator(cfg)

	e := &graph.Entity{ID: "e"}

	// Before warmup the base threshold applies.
	if got := a.threshold(e); got != cfg.BaseTheta {
		t.Errorf("cold threshold = %f, want base %f", got, cfg.BaseTheta)
	}

	// After observing a uniform cohort, theta = mean + z*stdFloor.
	for i := 0; i < 5; i++ {
		a.observe(1.0)
	}
	want := 1.0 + cfg.ZScore*cfg.StdFloor
	if got := a.threshold(e); math.Abs(got-want) > 1e-9 {
		t.Errorf("warm threshold = %f, want %f", got, want)
	}
}

func TestHealthModulationLowersThreshold(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	healthy := &graph.Entity{ID: "h", Quality: 1.0}
	sick := &graph.Entity{ID: "s", Quality: 0.0}

	if a.threshold(healthy) >= a.threshold(sick) {
		t.Error("healthy entity should have the lower threshold")
	}
}

func TestActivationLevel(t *testing.T) {
	tests := []struct {
		energy float64
		theta  float64
		want   string
	}{
		{2.0, 1.0, "dominant"},
		{1.6, 1.0, "strong"},
		{1.0, 1.0, "moderate"},
		{0.6, 1.0, "weak"},
		{0.1, 1.0, "absent"},
		{1.0, 0.0, "absent"},
	}
	for _, tt := range tests {
		if got := ActivationLevel(tt.energy, tt.theta); got != tt.want {
			t.Errorf("ActivationLevel(%f, %f) = %s, want %s", tt.energy, tt.theta, got, tt.want)
		}
	}
}
