package sched

import (
	"math"
	"testing"
	"time"

	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/quota"
)

func TestROIFenceNeedsSamples(t *testing.T) {
	tr := NewROITracker()
	for i := 0; i < 3; i++ {
		tr.Record(1.0)
	}
	if !math.IsInf(tr.Fence(), -1) {
		t.Errorf("fence with 3 samples = %f, want -Inf", tr.Fence())
	}
	tr.Record(1.0)
	if math.IsInf(tr.Fence(), -1) {
		t.Error("fence with 4 samples should be finite")
	}
}

func TestROIFenceWhisker(t *testing.T) {
	tr := NewROITracker()
	// Uniform returns: IQR 0, fence equals the common value.
	for i := 0; i < 20; i++ {
		tr.Record(0.5)
	}
	if got := tr.Fence(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("fence of uniform samples = %f, want 0.5", got)
	}
	if !tr.Converged(0.4) {
		t.Error("return below fence should read as converged")
	}
	if tr.Converged(0.5) {
		t.Error("return at fence should not read as converged")
	}
}

func TestROIWindowRolls(t *testing.T) {
	tr := NewROITracker()
	for i := 0; i < ROIWindow+50; i++ {
		tr.Record(float64(i))
	}
	if tr.Len() != ROIWindow {
		t.Errorf("window length = %d, want %d", tr.Len(), ROIWindow)
	}
}

func TestROIIgnoresNonFinite(t *testing.T) {
	tr := NewROITracker()
	tr.Record(math.NaN())
	tr.Record(math.Inf(1))
	if tr.Len() != 0 {
		t.Errorf("non-finite samples recorded: %d", tr.Len())
	}
}

func TestRoundRobinFairness(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	shares := []quota.Share{
		{Entity: "a", Units: 3},
		{Entity: "b", Units: 2},
		{Entity: "c", Units: 1},
	}

	res := s.Run(shares, time.Minute, func(graph.EntityID) float64 { return 1.0 })

	if got := len(res.Order); got != 6 {
		t.Fatalf("executed %d units, want 6", got)
	}

	// Within each round, no entity may run twice while another with
	// remaining quota has not run.
	want := []graph.EntityID{"a", "b", "c", "a", "b", "a"}
	for i, id := range res.Order {
		if id != want[i] {
			t.Fatalf("order = %v, want %v", res.Order, want)
		}
	}
	if res.Rounds != 3 {
		t.Errorf("rounds = %d, want 3", res.Rounds)
	}
}

func TestConvergenceStopsEntity(t *testing.T) {
	s := NewScheduler(DefaultConfig())

	// Pre-load entity a's tracker with strong returns so a weak one falls
	// below the fence.
	tr := NewROITracker()
	for i := 0; i < 30; i++ {
		tr.Record(1.0)
	}
	s.roi["a"] = tr

	shares := []quota.Share{
		{Entity: "a", Units: 5},
		{Entity: "b", Units: 2},
	}
	res := s.Run(shares, time.Minute, func(id graph.EntityID) float64 {
		if id == "a" {
			return 0.0 // far below a's fence
		}
		return 1.0
	})

	if res.Executed["a"] != 1 {
		t.Errorf("entity a executed %d units, want 1 (stopped by fence)", res.Executed["a"])
	}
	if res.Executed["b"] != 2 {
		t.Errorf("entity b executed %d units, want its full 2", res.Executed["b"])
	}
	if len(res.Converged) != 1 || res.Converged[0] != "a" {
		t.Errorf("converged = %v, want [a]", res.Converged)
	}
}

func TestDeadlineTerminatesRound(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	shares := []quota.Share{
		{Entity: "a", Units: 1000},
	}

	executed := 0
	res := s.Run(shares, time.Microsecond, func(graph.EntityID) float64 {
		executed++
		time.Sleep(time.Millisecond)
		return 1.0
	})

	if !res.DeadlineHit {
		t.Fatal("deadline should have been hit")
	}
	if executed >= 1000 {
		t.Error("run should terminate early, not drain the quota")
	}
}

func TestZeroUnitsSkipped(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	shares := []quota.Share{
		{Entity: "a", Units: 0},
		{Entity: "b", Units: 2},
	}
	res := s.Run(shares, time.Minute, func(graph.EntityID) float64 { return 1.0 })
	if res.Executed["a"] != 0 || res.Executed["b"] != 2 {
		t.Errorf("executed = %v, want only b's units", res.Executed)
	}
}

func TestMeanROIAndForget(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	s.Run([]quota.Share{{Entity: "a", Units: 4}}, time.Minute, func(graph.EntityID) float64 { return 0.75 })

	if got := s.MeanROI("a"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("MeanROI = %f, want 0.75", got)
	}
	s.Forget("a")
	if got := s.MeanROI("a"); got != 0 {
		t.Errorf("MeanROI after Forget = %f, want 0", got)
	}
}
