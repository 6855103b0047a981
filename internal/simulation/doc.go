// Package simulation is a scenario-driven harness for whole-engine tests.
// A scenario seeds a graph, scripts stimuli against tick indexes, and runs
// the real tick engine for a fixed number of ticks while capturing per-tick
// observations and the full telemetry stream. Tests then assert on the
// trajectory rather than on a single tick's output.
package simulation
