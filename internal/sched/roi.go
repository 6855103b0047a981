// Package sched executes the apportioned per-tick budget. Entities take
// turns one unit at a time in a zippered round robin; each entity stops
// early once its return on effort falls below its own statistical fence,
// and the whole round terminates when the deadline is at risk.
package sched

import (
	"math"
	"sort"
)

// ROIWindow is the number of recent return samples kept per entity.
const ROIWindow = 256

// roiMinSamples is the sample count below which the fence stays open.
const roiMinSamples = 4

// ROITracker keeps a rolling window of an entity's per-unit returns and
// derives a lower statistical fence from them. Returns below the fence mean
// the entity has converged for this tick and further units are wasted.
type ROITracker struct {
	samples []float64
	next    int
	full    bool
}

// NewROITracker creates an empty tracker.
func NewROITracker() *ROITracker {
	return &ROITracker{samples: make([]float64, 0, ROIWindow)}
}

// Record pushes a return sample into the window.
func (r *ROITracker) Record(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if len(r.samples) < ROIWindow {
		r.samples = append(r.samples, v)
		return
	}
	r.samples[r.next] = v
	r.next = (r.next + 1) % ROIWindow
	r.full = true
}

// Len returns the number of recorded samples.
func (r *ROITracker) Len() int {
	return len(r.samples)
}

// Fence returns the lower Tukey whisker, Q1 - 1.5*IQR, of the recorded
// returns. With fewer than four samples there is no basis for a fence and
// negative infinity is returned, letting everything through.
func (r *ROITracker) Fence() float64 {
	n := len(r.samples)
	if n < roiMinSamples {
		return math.Inf(-1)
	}
	sorted := make([]float64, n)
	copy(sorted, r.samples)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	return q1 - 1.5*(q3-q1)
}

// Converged reports whether a return falls below the current fence.
func (r *ROITracker) Converged(v float64) bool {
	return v < r.Fence()
}

// Mean returns the mean of the recorded returns, or 0 when empty.
func (r *ROITracker) Mean() float64 {
	if len(r.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.samples {
		sum += v
	}
	return sum / float64(len(r.samples))
}

// quantile interpolates the q-th quantile of sorted data.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
