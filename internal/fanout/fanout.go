// Package fanout prunes a source node's candidate edges before the cost
// function runs. Sources are classified by local out-degree against two
// rolling cohort thresholds; an explicit task mode can override the
// classification, and low working-memory headroom shrinks the selection.
package fanout

import (
	"sort"

	"github.com/mindmesh/pulse/internal/graph"
)

// Strategy is the fan-out class assigned to a source node.
type Strategy int

const (
	// Selective keeps only the strongest few edges.
	Selective Strategy = iota
	// Balanced keeps a proportional share of edges.
	Balanced
	// Exhaustive keeps every edge.
	Exhaustive
)

// String returns the lowercase name used in telemetry.
func (s Strategy) String() string {
	switch s {
	case Selective:
		return "selective"
	case Balanced:
		return "balanced"
	case Exhaustive:
		return "exhaustive"
	default:
		return "unknown"
	}
}

// TaskMode is an explicit attention signal that overrides degree-based
// classification.
type TaskMode int

const (
	// TaskNeutral applies the degree-based classification.
	TaskNeutral TaskMode = iota
	// TaskNarrow forces Selective even at low degree.
	TaskNarrow
	// TaskThorough forces Exhaustive even at high degree.
	TaskThorough
)

// Config holds the fan-out selector tunables.
type Config struct {
	// SelectiveCount is the edge budget for Selective sources. Default: 3.
	SelectiveCount int

	// BalancedFraction is the share of edges kept for Balanced sources.
	// Default: 0.6.
	BalancedFraction float64

	// CohortWindow is the number of recent out-degrees kept for threshold
	// estimation. Default: 128.
	CohortWindow int

	// MinCohort is the sample count below which the fixed fallback bands
	// apply. Default: 16.
	MinCohort int

	// FallbackLow and FallbackHigh are the fixed degree bands used until
	// the cohort warms up. Defaults: 3 and 10.
	FallbackLow  int
	FallbackHigh int
}

// DefaultConfig returns the default fan-out configuration.
func DefaultConfig() Config {
	return Config{
		SelectiveCount:   3,
		BalancedFraction: 0.6,
		CohortWindow:     128,
		MinCohort:        16,
		FallbackLow:      3,
		FallbackHigh:     10,
	}
}

// Selector classifies sources and prunes their candidate edges. It keeps a
// rolling cohort of observed out-degrees; the Selective/Balanced boundary
// tracks the cohort's 25th percentile and the Balanced/Exhaustive boundary
// the 75th.
type Selector struct {
	config  Config
	degrees []int
	next    int
}

// NewSelector creates a fan-out selector.
func NewSelector(config Config) *Selector {
	return &Selector{
		config:  config,
		degrees: make([]int, 0, config.CohortWindow),
	}
}

// Observe records a source's out-degree into the rolling cohort.
func (s *Selector) Observe(degree int) {
	if len(s.degrees) < s.config.CohortWindow {
		s.degrees = append(s.degrees, degree)
		return
	}
	s.degrees[s.next] = degree
	s.next = (s.next + 1) % s.config.CohortWindow
}

// thresholds returns the current (low, high) degree boundaries.
func (s *Selector) thresholds() (int, int) {
	if len(s.degrees) < s.config.MinCohort {
		return s.config.FallbackLow, s.config.FallbackHigh
	}
	sorted := make([]int, len(s.degrees))
	copy(sorted, s.degrees)
	sort.Ints(sorted)
	low := sorted[len(sorted)/4]
	high := sorted[(3*len(sorted))/4]
	if high <= low {
		high = low + 1
	}
	return low, high
}

// Classify assigns a strategy to a source with the given out-degree under
// the given task mode. The mode override wins unconditionally.
func (s *Selector) Classify(degree int, mode TaskMode) Strategy {
	switch mode {
	case TaskNarrow:
		return Selective
	case TaskThorough:
		return Exhaustive
	}
	low, high := s.thresholds()
	switch {
	case degree >= high:
		return Selective // dense hubs spread thin; keep only the best
	case degree <= low:
		return Exhaustive
	default:
		return Balanced
	}
}

// Select observes the source's degree, classifies it, and returns its
// outgoing links pruned to the strategy's budget using log weight as the
// cheap pre-filter. Headroom in (0, 1] shrinks the budget further, floored
// at one edge so a source is never silenced entirely.
func (s *Selector) Select(store *graph.Store, src graph.NodeID, mode TaskMode, headroom float64) ([]*graph.Link, Strategy) {
	links := store.OutLinks(src)
	degree := len(links)
	s.Observe(degree)
	strategy := s.Classify(degree, mode)

	count := degree
	switch strategy {
	case Selective:
		if s.config.SelectiveCount < count {
			count = s.config.SelectiveCount
		}
	case Balanced:
		c := int(float64(degree) * s.config.BalancedFraction)
		if c < count {
			count = c
		}
	}

	if headroom > 0 && headroom < 1 {
		count = int(float64(count) * headroom)
	}
	if count < 1 && degree > 0 {
		count = 1
	}
	if count >= degree {
		return links, strategy
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].LogWeight != links[j].LogWeight {
			return links[i].LogWeight > links[j].LogWeight
		}
		return links[i].ID < links[j].ID
	})
	return links[:count], strategy
}
