package simulation_test

import (
	"testing"

	"github.com/mindmesh/pulse/internal/config"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/simulation"
	"github.com/mindmesh/pulse/internal/stimulus"
)

// TestPrimingPreActivatesSimilarNodes injects a stimulus with the priming
// enrichment on. The node whose embedding matches the stimulus must receive
// a head start; an orthogonal node must receive nothing.
func TestPrimingPreActivatesSimilarNodes(t *testing.T) {
	scenario := simulation.Scenario{
		Nodes: []simulation.NodeSpec{
			{ID: "near", Type: graph.NodeConcept, Threshold: 0.5, Embedding: []float64{1, 0}},
			{ID: "far", Type: graph.NodeConcept, Threshold: 0.5, Embedding: []float64{0, 1}},
		},
		Stimuli: map[int][]stimulus.Envelope{
			0: {{Embedding: []float64{1, 0}, Priority: 1}},
		},
		Ticks: 2,
	}

	r := simulation.NewRunner(t, func(cfg *config.Config) {
		cfg.Enrich.Priming = true
	})
	result := r.Run(scenario)

	simulation.AssertNodeReached(t, result, "near")
	first := result.Ticks[0]
	if near, far := first.NodeEnergy["near"], first.NodeEnergy["far"]; near <= far {
		t.Errorf("priming did not favor the similar node: near %.6f, far %.6f", near, far)
	}
}

// TestPrimingOffLeavesNeighborsCold is the control run: with the
// enrichment off, the same stimulus touches only its own percept node.
func TestPrimingOffLeavesNeighborsCold(t *testing.T) {
	scenario := simulation.Scenario{
		Nodes: []simulation.NodeSpec{
			{ID: "near", Type: graph.NodeConcept, Threshold: 0.5, Embedding: []float64{1, 0}},
		},
		Stimuli: map[int][]stimulus.Envelope{
			0: {{Embedding: []float64{1, 0}, Priority: 1}},
		},
		Ticks: 2,
	}

	r := simulation.NewRunner(t, nil)
	result := r.Run(scenario)

	if e := result.Ticks[0].NodeEnergy["near"]; e != 0 {
		t.Errorf("neighbor primed with the enrichment off: %.6f", e)
	}
}
