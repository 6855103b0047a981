package simulation

import (
	"testing"

	"github.com/mindmesh/pulse/internal/graph"
)

// AssertNeverDegraded fails if the supervisor tripped at any tick.
func AssertNeverDegraded(t *testing.T, result Result) {
	t.Helper()
	for _, tr := range result.Ticks {
		if tr.Status.Safety.Degraded {
			t.Fatalf("degraded at tick %d: %s", tr.Index, tr.Status.Safety.Reason)
		}
	}
}

// AssertDegradedBy fails unless the supervisor was degraded at or before
// the given tick and stayed degraded through the end of the run.
func AssertDegradedBy(t *testing.T, result Result, tick int) {
	t.Helper()
	entered := -1
	for _, tr := range result.Ticks {
		if tr.Status.Safety.Degraded {
			entered = tr.Index
			break
		}
	}
	if entered == -1 {
		t.Fatalf("never degraded in %d ticks", len(result.Ticks))
	}
	if entered > tick {
		t.Errorf("degraded at tick %d, want by tick %d", entered, tick)
	}
	if last := result.Last(); !last.Status.Safety.Degraded {
		t.Errorf("degraded at tick %d but clear again by tick %d", entered, last.Index)
	}
}

// AssertEnergyWithin fails unless the final total energy is in [lo, hi].
func AssertEnergyWithin(t *testing.T, result Result, lo, hi float64) {
	t.Helper()
	got := result.Last().Status.TotalEnergy
	if got < lo || got > hi {
		t.Errorf("final energy %.6f not in [%.6f, %.6f]", got, lo, hi)
	}
}

// AssertNodeReached fails unless the node held positive energy at some tick.
func AssertNodeReached(t *testing.T, result Result, id graph.NodeID) {
	t.Helper()
	for _, tr := range result.Ticks {
		if tr.NodeEnergy[id] > 0 {
			return
		}
	}
	t.Errorf("node %s never received energy", id)
}

// AssertEntityActivated fails unless the entity was active at some tick.
func AssertEntityActivated(t *testing.T, result Result, id graph.EntityID) {
	t.Helper()
	for _, tr := range result.Ticks {
		if tr.EntityActive[id] {
			return
		}
	}
	t.Errorf("entity %s never activated", id)
}
