// Package telemetry emits one structured event per engine transition: tick
// boundaries, stride executions with their cost breakdowns, node and entity
// flips, lifecycle transitions, weight updates, criticality changes, tick
// interval decisions, and safe-mode transitions. Consumers treat the stream
// as append-only and at-least-once, ordered within each tick by sequence
// number.
package telemetry

import (
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	EventTickStart    = "tick.start"
	EventTickEnd      = "tick.end"
	EventStrideExec   = "stride.exec"
	EventNodeFlip     = "node.flip"
	EventEntityFlip   = "entity.flip"
	EventLifecycle    = "entity.lifecycle"
	EventWeightUpdate = "weight.update"
	EventCriticality  = "criticality.state"
	EventTickInterval = "tick.interval"
	EventSafeModeOn   = "safe_mode.enter"
	EventSafeModeOff  = "safe_mode.exit"
	EventDiagnostic   = "diagnostic"
)

// Event is one telemetry record. Seq orders events within a tick.
type Event struct {
	Tick   uint64         `json:"tick"`
	Seq    uint64         `json:"seq"`
	Type   string         `json:"type"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Sink receives events. Implementations must tolerate concurrent Emit
// calls only if they say so; the Bus serializes for them.
type Sink interface {
	Emit(Event) error
	Close() error
}

// Bus stamps events with tick and sequence numbers and fans them out to
// its sinks. A nil Bus is safe to use; all methods are no-ops.
type Bus struct {
	mu     sync.Mutex
	sinks  []Sink
	tick   uint64
	seq    uint64
	failed bool
}

// NewBus creates a bus over the given sinks. Nil sinks are skipped.
func NewBus(sinks ...Sink) *Bus {
	b := &Bus{}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// BeginTick resets the per-tick sequence counter.
func (b *Bus) BeginTick(tick uint64) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick = tick
	b.seq = 0
	b.failed = false
}

// Emit sends one event to every sink. Sink failures are recorded and
// surfaced through Healthy, never returned to the tick loop.
func (b *Bus) Emit(eventType string, fields map[string]any) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := Event{
		Tick:   b.tick,
		Seq:    b.seq,
		Type:   eventType,
		At:     time.Now().UTC(),
		Fields: fields,
	}
	b.seq++
	for _, s := range b.sinks {
		if err := s.Emit(ev); err != nil {
			b.failed = true
		}
	}
}

// Healthy reports whether every emit since BeginTick reached all sinks.
// The safety supervisor uses this as its observability signal.
func (b *Bus) Healthy() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.failed
}

// Close closes all sinks.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sinks {
		_ = s.Close()
	}
	b.sinks = nil
}
