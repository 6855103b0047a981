package decay

import (
	"math"
	"testing"
	"time"

	"github.com/mindmesh/pulse/internal/frontier"
	"github.com/mindmesh/pulse/internal/graph"
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	tables, err := graph.BuildTypeTables(graph.DefaultTypeTableSpec())
	if err != nil {
		t.Fatalf("BuildTypeTables: %v", err)
	}
	return NewEngine(cfg, tables)
}

func TestActivationDecayExponential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateMax = 1.0 // let the test use a visible rate
	e := newEngine(t, cfg)

	s := graph.NewStore()
	if err := s.AddNode(&graph.Node{ID: "n", Type: graph.NodeTask, Energy: 1.0}); err != nil {
		t.Fatal(err)
	}

	deltas := frontier.NewDeltas()
	rate := 0.1
	m := e.DecayActivations(s, deltas, rate, 1.0, time.Now())

	want := math.Exp(-0.1) // task multiplier is 1.0
	if got := s.Node("n").Energy; math.Abs(got-want) > 1e-9 {
		t.Errorf("energy after decay = %f, want %f", got, want)
	}
	if math.Abs(m.EnergyLost-(1.0-want)) > 1e-9 {
		t.Errorf("EnergyLost = %f, want %f", m.EnergyLost, 1.0-want)
	}
	if math.Abs(deltas.Decayed-m.EnergyLost) > 1e-12 {
		t.Error("decay loss must be recorded in the conservation ledger")
	}
}

func TestTypeDependentRates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateMax = 1.0
	e := newEngine(t, cfg)

	s := graph.NewStore()
	if err := s.AddNode(&graph.Node{ID: "concept", Type: graph.NodeConcept, Energy: 1.0}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNode(&graph.Node{ID: "percept", Type: graph.NodePercept, Energy: 1.0}); err != nil {
		t.Fatal(err)
	}

	e.DecayActivations(s, frontier.NewDeltas(), 0.1, 1.0, time.Now())

	if s.Node("percept").Energy >= s.Node("concept").Energy {
		t.Error("percepts must decay faster than concepts")
	}
}

func TestRateClamped(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	if got := e.ClampRate(100); got != DefaultConfig().RateMax {
		t.Errorf("ClampRate(100) = %g, want max %g", got, DefaultConfig().RateMax)
	}
	if got := e.ClampRate(0); got != DefaultConfig().RateMin {
		t.Errorf("ClampRate(0) = %g, want min %g", got, DefaultConfig().RateMin)
	}
}

func TestEnergyFloorSnaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateMax = 10
	e := newEngine(t, cfg)

	s := graph.NewStore()
	if err := s.AddNode(&graph.Node{ID: "n", Type: graph.NodeTask, Energy: 0.002}); err != nil {
		t.Fatal(err)
	}
	m := e.DecayActivations(s, frontier.NewDeltas(), 10, 1.0, time.Now())

	if got := s.Node("n").Energy; got != 0 {
		t.Errorf("energy below floor should snap to 0, got %f", got)
	}
	if m.NodesFloored != 1 {
		t.Errorf("NodesFloored = %d, want 1", m.NodesFloored)
	}
}

func TestConsolidationSlowsDecay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateMax = 1.0
	cfg.ConsolidationEnabled = true
	e := newEngine(t, cfg)
	now := time.Now()

	s := graph.NewStore()
	if err := s.AddNode(&graph.Node{ID: "plain", Type: graph.NodeTask, Energy: 1.0}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNode(&graph.Node{ID: "fresh", Type: graph.NodeTask, Energy: 1.0, RetrievedAt: now}); err != nil {
		t.Fatal(err)
	}

	e.DecayActivations(s, frontier.NewDeltas(), 0.5, 1.0, now)

	if s.Node("fresh").Energy <= s.Node("plain").Energy {
		t.Error("recently retrieved node should decay slower")
	}
}

func TestConsolidationCapped(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	n := &graph.Node{
		ID:            "n",
		Consolidation: 10,
		Affect:        []float64{1, 1},
		RetrievedAt:   time.Now(),
	}
	if got := e.ConsolidationFactor(n, time.Now()); got != DefaultConfig().ConsolidationCap {
		t.Errorf("ConsolidationFactor = %f, want cap %f", got, DefaultConfig().ConsolidationCap)
	}
}

func TestResistanceCapped(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	n := &graph.Node{ID: "n", Type: graph.NodeGoal}
	if got := e.ResistanceFactor(n, 1000, 10); got != DefaultConfig().ResistanceCap {
		t.Errorf("ResistanceFactor = %f, want cap %f", got, DefaultConfig().ResistanceCap)
	}
	plain := &graph.Node{ID: "p", Type: graph.NodeTask}
	if got := e.ResistanceFactor(plain, 0, 0); got != 1.0 {
		t.Errorf("ResistanceFactor for plain node = %f, want 1.0", got)
	}
}

func TestWeightDecaySlowClock(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	s := graph.NewStore()
	for _, id := range []graph.NodeID{"a", "b"} {
		if err := s.AddNode(&graph.Node{ID: id, Type: graph.NodeConcept}); err != nil {
			t.Fatal(err)
		}
	}
	l, err := s.Connect("a", "b", graph.LinkTemporal, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	m := e.DecayWeights(s, time.Hour)
	if m.LinksDecayed != 1 {
		t.Fatalf("LinksDecayed = %d, want 1", m.LinksDecayed)
	}
	// Temporal multiplier 2.0: step = 1e-6 * 2 * 3600.
	want := 1.0 - 1e-6*2*3600
	if math.Abs(l.LogWeight-want) > 1e-9 {
		t.Errorf("log weight = %f, want %f", l.LogWeight, want)
	}

	// Elapsed zero is a no-op.
	if m := e.DecayWeights(s, 0); m.LinksDecayed != 0 {
		t.Error("zero elapsed should not decay weights")
	}
}

func TestWeightFloorHolds(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	s := graph.NewStore()
	for _, id := range []graph.NodeID{"a", "b"} {
		if err := s.AddNode(&graph.Node{ID: id, Type: graph.NodeConcept}); err != nil {
			t.Fatal(err)
		}
	}
	l, err := s.Connect("a", "b", graph.LinkAssociation, DefaultConfig().WeightFloor+1e-9)
	if err != nil {
		t.Fatal(err)
	}

	m := e.DecayWeights(s, 100*time.Hour)
	if l.LogWeight != DefaultConfig().WeightFloor {
		t.Errorf("log weight = %f, want floor %f", l.LogWeight, DefaultConfig().WeightFloor)
	}
	if m.LinksFloored != 1 {
		t.Errorf("LinksFloored = %d, want 1", m.LinksFloored)
	}
}

func TestHalfLives(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	hlConcept := e.ActivationHalfLife(graph.NodeConcept, 2e-5)
	hlPercept := e.ActivationHalfLife(graph.NodePercept, 2e-5)
	if hlConcept <= hlPercept {
		t.Error("concept half-life should exceed percept half-life")
	}

	if hl := e.WeightHalfLife(graph.LinkCausal); math.IsInf(hl, 1) || hl <= 0 {
		t.Errorf("WeightHalfLife(causal) = %f, want finite positive", hl)
	}
}
