package simulation

import (
	"testing"
	"time"

	"github.com/mindmesh/pulse/internal/config"
	"github.com/mindmesh/pulse/internal/engine"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/telemetry"
)

// captureSink buffers every event for post-run assertions.
type captureSink struct {
	events []telemetry.Event
}

func (s *captureSink) Emit(ev telemetry.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) Close() error { return nil }

// Runner drives the real tick engine through a scripted scenario.
type Runner struct {
	t      *testing.T
	engine *engine.Engine
	sink   *captureSink
}

// NewRunner creates a runner over a fresh single-graph engine. mutate, when
// non-nil, adjusts the default configuration before the engine is built.
func NewRunner(t *testing.T, mutate func(*config.Config)) *Runner {
	t.Helper()

	cfg := config.Default()
	cfg.Graphs = []string{"sim"}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("NewRunner: bad scenario config: %v", err)
	}

	sink := &captureSink{}
	e, err := engine.New("sim", cfg, nil, telemetry.NewBus(sink))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return &Runner{t: t, engine: e, sink: sink}
}

// Run seeds the graph, scripts the stimuli, and runs the scenario's ticks.
func (r *Runner) Run(scenario Scenario) Result {
	r.t.Helper()
	r.seed(scenario)

	gap := scenario.TickGap
	if gap == 0 {
		gap = time.Second
	}

	start := time.Now()
	ticks := make([]TickResult, 0, scenario.Ticks)
	for i := 0; i < scenario.Ticks; i++ {
		now := start.Add(time.Duration(i) * gap)

		for _, env := range scenario.Stimuli[i] {
			if env.Graph == "" {
				env.Graph = "sim"
			}
			env.Timestamp = now
			if err := r.engine.Inject(env); err != nil {
				r.t.Fatalf("Run: inject at tick %d: %v", i, err)
			}
		}
		if scenario.BeforeTick != nil {
			scenario.BeforeTick(i, r.engine)
		}

		r.engine.Step(now)
		ticks = append(ticks, r.capture(i))
	}

	return Result{Ticks: ticks, Events: r.sink.events, Engine: r.engine}
}

func (r *Runner) seed(scenario Scenario) {
	r.t.Helper()
	store := r.engine.Store()

	for _, ns := range scenario.Nodes {
		n := &graph.Node{
			ID:        graph.NodeID(ns.ID),
			Type:      ns.Type,
			Threshold: ns.Threshold,
			Embedding: ns.Embedding,
		}
		if err := store.AddNode(n); err != nil {
			r.t.Fatalf("seed: AddNode(%s): %v", ns.ID, err)
		}
		n.Energy = ns.Energy
	}

	for _, ls := range scenario.Links {
		_, err := store.Connect(graph.NodeID(ls.Source), graph.NodeID(ls.Target), ls.Type, ls.LogWeight)
		if err != nil {
			r.t.Fatalf("seed: Connect(%s->%s): %v", ls.Source, ls.Target, err)
		}
	}

	for _, es := range scenario.Entities {
		ent := &graph.Entity{ID: graph.EntityID(es.ID), Name: es.ID}
		if err := store.AddEntity(ent); err != nil {
			r.t.Fatalf("seed: AddEntity(%s): %v", es.ID, err)
		}
		for node, w := range es.Members {
			if err := store.SetMembership(graph.NodeID(node), ent.ID, w); err != nil {
				r.t.Fatalf("seed: SetMembership(%s, %s): %v", node, es.ID, err)
			}
		}
	}
}

func (r *Runner) capture(index int) TickResult {
	store := r.engine.Store()

	energies := make(map[graph.NodeID]float64)
	store.Nodes(func(n *graph.Node) {
		energies[n.ID] = n.Energy
	})

	active := make(map[graph.EntityID]bool)
	store.Entities(func(e *graph.Entity) {
		active[e.ID] = e.Active
	})

	return TickResult{
		Index:        index,
		Status:       r.engine.Status(),
		NodeEnergy:   energies,
		EntityActive: active,
	}
}
