package sched

import (
	"math"
	"time"

	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/quota"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// Config holds the scheduler tunables.
type Config struct {
	// CostAlpha is the EMA factor for per-unit wall cost. Default: 0.1.
	CostAlpha float64

	// DeadlineMargin inflates the predicted next-unit cost when checking
	// deadline risk. Default: 1.1.
	DeadlineMargin float64
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		CostAlpha:      0.1,
		DeadlineMargin: 1.1,
	}
}

// StrideFunc executes one work unit for an entity and returns the unit's
// return on effort.
type StrideFunc func(entity graph.EntityID) float64

// Result summarizes one scheduler run.
type Result struct {
	// Order is the sequence of entity executions, one element per unit.
	Order []graph.EntityID

	// Executed counts units actually run per entity.
	Executed map[graph.EntityID]int

	// Converged lists entities stopped early by their ROI fence.
	Converged []graph.EntityID

	Rounds      int
	DeadlineHit bool
	Elapsed     time.Duration
}

// Scheduler runs the budget via interleaved turns. ROI trackers persist
// across ticks so fences self-calibrate to each entity's history.
type Scheduler struct {
	config  Config
	roi     map[graph.EntityID]*ROITracker
	emaCost float64 // seconds; NaN until the first sample
}

// NewScheduler creates a fair scheduler.
func NewScheduler(config Config) *Scheduler {
	return &Scheduler{
		config:  config,
		roi:     make(map[graph.EntityID]*ROITracker),
		emaCost: math.NaN(),
	}
}

// MeanROI returns an entity's rolling mean return, for the quota
// allocator's health factor and entity utility signals.
func (s *Scheduler) MeanROI(entity graph.EntityID) float64 {
	if tr, ok := s.roi[entity]; ok {
		return tr.Mean()
	}
	return 0
}

// Forget drops a dissolved entity's tracker.
func (s *Scheduler) Forget(entity graph.EntityID) {
	delete(s.roi, entity)
}

// Run executes the allocated shares within the deadline. One unit per
// entity per round, cycling before any entity repeats: no entity runs twice
// while another with remaining quota waits. An entity whose unit returns
// below its fence stops for the tick; a predicted deadline overrun ends the
// whole run early rather than overrunning the frame.
func (s *Scheduler) Run(shares []quota.Share, deadline time.Duration, exec StrideFunc) Result {
	start := time.Now()
	result := Result{Executed: make(map[graph.EntityID]int)}

	remaining := make(map[graph.EntityID]int, len(shares))
	order := make([]graph.EntityID, 0, len(shares))
	for _, sh := range shares {
		if sh.Units <= 0 {
			continue
		}
		remaining[sh.Entity] = sh.Units
		order = append(order, sh.Entity)
	}

	for len(remaining) > 0 && !result.DeadlineHit {
		result.Rounds++
		progressed := false
		for _, id := range order {
			units, ok := remaining[id]
			if !ok {
				continue
			}

			elapsed := time.Since(start)
			left := deadline - elapsed
			if left <= 0 || (!math.IsNaN(s.emaCost) && s.emaCost*s.config.DeadlineMargin > left.Seconds()) {
				result.DeadlineHit = true
				break
			}

			unitStart := time.Now()
			roi := exec(id)
			cost := time.Since(unitStart).Seconds()
			s.emaCost = vecmath.EMA(s.emaCost, cost, s.config.CostAlpha)

			result.Order = append(result.Order, id)
			result.Executed[id]++
			progressed = true

			tr := s.roi[id]
			if tr == nil {
				tr = NewROITracker()
				s.roi[id] = tr
			}
			converged := tr.Converged(roi)
			tr.Record(roi)
			if converged {
				result.Converged = append(result.Converged, id)
				delete(remaining, id)
				continue
			}

			if units == 1 {
				delete(remaining, id)
			} else {
				remaining[id] = units - 1
			}
		}
		if !progressed {
			break
		}
	}

	result.Elapsed = time.Since(start)
	return result
}
