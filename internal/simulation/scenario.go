package simulation

import (
	"time"

	"github.com/mindmesh/pulse/internal/engine"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/stimulus"
	"github.com/mindmesh/pulse/internal/telemetry"
)

// NodeSpec seeds one node.
type NodeSpec struct {
	ID        string
	Type      graph.NodeType
	Energy    float64
	Threshold float64
	Embedding []float64
}

// LinkSpec seeds one directed link.
type LinkSpec struct {
	Source    string
	Target    string
	Type      graph.LinkType
	LogWeight float64
}

// EntitySpec seeds one entity and its memberships.
type EntitySpec struct {
	ID      string
	Members map[string]float64
}

// Scenario describes a full simulation run.
type Scenario struct {
	Nodes    []NodeSpec
	Links    []LinkSpec
	Entities []EntitySpec

	// Stimuli maps a tick index to the envelopes injected before it runs.
	Stimuli map[int][]stimulus.Envelope

	// Ticks is the number of ticks to run.
	Ticks int

	// TickGap is the simulated wall time between ticks. Defaults to 1s.
	TickGap time.Duration

	// BeforeTick, when set, runs before each tick with direct engine access.
	BeforeTick func(tick int, e *engine.Engine)
}

// TickResult is what the runner captures after each tick.
type TickResult struct {
	Index        int
	Status       engine.Status
	NodeEnergy   map[graph.NodeID]float64
	EntityActive map[graph.EntityID]bool
}

// Result is the full run outcome.
type Result struct {
	Ticks  []TickResult
	Events []telemetry.Event
	Engine *engine.Engine
}

// EventsOfType filters the captured telemetry stream.
func (r Result) EventsOfType(eventType string) []telemetry.Event {
	var out []telemetry.Event
	for _, ev := range r.Events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the final tick's capture.
func (r Result) Last() TickResult {
	return r.Ticks[len(r.Ticks)-1]
}
