package graph

import (
	"math"
	"testing"
)

func TestAddNodeValidation(t *testing.T) {
	s := NewStore()

	if err := s.AddNode(&Node{ID: "a", Type: NodeConcept}); err != nil {
		t.Fatalf("AddNode(a): %v", err)
	}
	if err := s.AddNode(&Node{ID: "a", Type: NodeConcept}); err == nil {
		t.Error("duplicate AddNode should fail")
	}
	if err := s.AddNode(&Node{ID: "", Type: NodeConcept}); err == nil {
		t.Error("empty ID should fail")
	}
	if err := s.AddNode(&Node{ID: "b", Energy: -1}); err == nil {
		t.Error("negative energy should fail")
	}
}

func TestConnectAdjacency(t *testing.T) {
	s := NewStore()
	for _, id := range []NodeID{"a", "b", "c"} {
		if err := s.AddNode(&Node{ID: id, Type: NodeConcept}); err != nil {
			t.Fatalf("AddNode(%s): %v", id, err)
		}
	}

	if _, err := s.Connect("a", "b", LinkAssociation, 0.5); err != nil {
		t.Fatalf("Connect(a->b): %v", err)
	}
	if _, err := s.Connect("a", "c", LinkCausal, -0.2); err != nil {
		t.Fatalf("Connect(a->c): %v", err)
	}
	if _, err := s.Connect("a", "missing", LinkAssociation, 0); err == nil {
		t.Error("Connect to missing node should fail")
	}
	if _, err := s.Connect("a", "b", LinkMembership, 0); err == nil {
		t.Error("Connect with membership type should fail")
	}

	if got := s.OutDegree("a"); got != 2 {
		t.Errorf("OutDegree(a) = %d, want 2", got)
	}
	if got := s.InDegree("b"); got != 1 {
		t.Errorf("InDegree(b) = %d, want 1", got)
	}
	if got := len(s.OutLinks("b")); got != 0 {
		t.Errorf("OutLinks(b) = %d links, want 0", got)
	}
}

func TestLinkEase(t *testing.T) {
	l := &Link{LogWeight: 0}
	if got := l.Ease(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Ease() at log weight 0 = %f, want 1.0", got)
	}
	l.LogWeight = math.Log(2)
	if got := l.Ease(); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("Ease() at log 2 = %f, want 2.0", got)
	}
}

func TestMembershipNormalization(t *testing.T) {
	s := NewStore()
	if err := s.AddNode(&Node{ID: "n", Type: NodeConcept}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []EntityID{"e1", "e2"} {
		if err := s.AddEntity(&Entity{ID: id, Name: string(id)}); err != nil {
			t.Fatal(err)
		}
	}

	// Raw weights sum to 1.5, so both get scaled by 1/1.5.
	if err := s.SetMembership("n", "e1", 0.9); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMembership("n", "e2", 0.6); err != nil {
		t.Fatal(err)
	}

	got := s.NormalizedMembership("n", "e1")
	want := 0.9 / 1.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("NormalizedMembership(n, e1) = %f, want %f", got, want)
	}

	// A node whose raw weights already sum below 1 is left alone.
	if err := s.AddNode(&Node{ID: "m", Type: NodeConcept}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMembership("m", "e1", 0.4); err != nil {
		t.Fatal(err)
	}
	if got := s.NormalizedMembership("m", "e1"); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("NormalizedMembership(m, e1) = %f, want 0.4", got)
	}
}

func TestReleaseMemberships(t *testing.T) {
	s := NewStore()
	if err := s.AddNode(&Node{ID: "n", Type: NodeConcept}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntity(&Entity{ID: "e", Name: "e"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMembership("n", "e", 0.5); err != nil {
		t.Fatal(err)
	}

	if got := s.ExtentSize("e"); got != 1 {
		t.Fatalf("ExtentSize = %d, want 1", got)
	}

	s.ReleaseMemberships("e")

	if got := s.ExtentSize("e"); got != 0 {
		t.Errorf("ExtentSize after release = %d, want 0", got)
	}
	if _, ok := s.Node("n").Memberships["e"]; ok {
		t.Error("node membership index should be cleared")
	}
}

func TestBuildTypeTables(t *testing.T) {
	tables, err := BuildTypeTables(DefaultTypeTableSpec())
	if err != nil {
		t.Fatalf("BuildTypeTables(default): %v", err)
	}
	if got := tables.Stickiness(LinkCausal); got != 0.9 {
		t.Errorf("Stickiness(causal) = %f, want 0.9", got)
	}
	if got := tables.ActivationDecayMult(NodePercept); got != 3.0 {
		t.Errorf("ActivationDecayMult(percept) = %f, want 3.0", got)
	}

	// Missing entries are rejected at build time.
	spec := DefaultTypeTableSpec()
	delete(spec.Stickiness, "causal")
	if _, err := BuildTypeTables(spec); err == nil {
		t.Error("partial stickiness table should fail validation")
	}

	spec = DefaultTypeTableSpec()
	spec.Stickiness["causal"] = 1.5
	if _, err := BuildTypeTables(spec); err == nil {
		t.Error("out-of-range stickiness should fail validation")
	}

	spec = DefaultTypeTableSpec()
	spec.ActivationDecayMult["unknown"] = 1.0
	if _, err := BuildTypeTables(spec); err == nil {
		t.Error("unknown type name should fail validation")
	}
}

func TestTakeSnapshot(t *testing.T) {
	s := NewStore()
	if err := s.AddNode(&Node{ID: "a", Type: NodeConcept, Energy: 1.0, Threshold: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNode(&Node{ID: "b", Type: NodeEpisode, Energy: 0.1, Threshold: 0.5}); err != nil {
		t.Fatal(err)
	}

	snap := s.TakeSnapshot(7)
	if snap.Tick != 7 {
		t.Errorf("Tick = %d, want 7", snap.Tick)
	}
	if snap.ActiveNodes != 1 {
		t.Errorf("ActiveNodes = %d, want 1", snap.ActiveNodes)
	}
	if math.Abs(snap.TotalEnergy-1.1) > 1e-9 {
		t.Errorf("TotalEnergy = %f, want 1.1", snap.TotalEnergy)
	}
}
