package simulation_test

import (
	"fmt"
	"testing"

	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/simulation"
	"github.com/mindmesh/pulse/internal/telemetry"
)

// TestSaturatedFrontierDegrades runs a graph where every node stays hot, so
// the frontier never shrinks below the oversize tripwire. The supervisor
// must flip to degraded mode and the next ticks must run under the
// conservative overrides.
func TestSaturatedFrontierDegrades(t *testing.T) {
	scenario := simulation.Scenario{Ticks: 30}
	for i := 0; i < 5; i++ {
		scenario.Nodes = append(scenario.Nodes, simulation.NodeSpec{
			ID: fmt.Sprintf("n%d", i), Type: graph.NodeConcept, Energy: 1.0, Threshold: 0.3,
		})
		scenario.Links = append(scenario.Links, simulation.LinkSpec{
			Source: fmt.Sprintf("n%d", i), Target: fmt.Sprintf("n%d", (i+1)%5),
			Type: graph.LinkAssociation,
		})
	}

	r := simulation.NewRunner(t, nil)
	result := r.Run(scenario)

	simulation.AssertDegradedBy(t, result, 25)

	if events := result.EventsOfType(telemetry.EventSafeModeOn); len(events) == 0 {
		t.Fatal("no safe mode entry event emitted")
	}

	// Once degraded, the physics timestep is pinned at the override cap.
	last := result.Last()
	if last.Status.Interval.Dt > 1.0+1e-9 {
		t.Errorf("degraded dt %.3f exceeds the override cap", last.Status.Interval.Dt)
	}
}
