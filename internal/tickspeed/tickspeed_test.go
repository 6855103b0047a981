package tickspeed

import (
	"testing"
	"time"
)

func TestFreshStimulusRunsFast(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now)

	d := c.Decide(now, 0, 0)
	if d.Winner != "stimulus" {
		t.Errorf("winner = %q, want stimulus", d.Winner)
	}
	if d.Interval != 100*time.Millisecond {
		t.Errorf("interval = %v, want 100ms", d.Interval)
	}
	if d.DtCapped {
		t.Error("100ms step should not be capped")
	}
}

func TestIdleSlowsTicking(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now)

	// 10 minutes of silence with a dead graph: 0.1 + 600*0.05 = 30.1s.
	d := c.Decide(now.Add(10*time.Minute), 0, 0)
	want := 30.1
	if got := d.Interval.Seconds(); got < want-0.01 || got > want+0.01 {
		t.Errorf("idle interval = %.2fs, want %.2fs", got, want)
	}
}

func TestEnergyOverridesIdle(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now)

	// Long idle but a hot graph: 60/(1+50*2) ≈ 0.594s beats the idle
	// candidate and keeps the engine ticking without external input.
	d := c.Decide(now.Add(time.Hour), 50, 0)
	if d.Winner != "energy" {
		t.Errorf("winner = %q, want energy", d.Winner)
	}
	if got := d.Interval.Seconds(); got > 1.0 {
		t.Errorf("hot graph interval = %.2fs, want sub-second", got)
	}
}

func TestArousalFloorsDormancy(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now)

	// No energy, no recent input, but high arousal: 60/(1+1*4) = 12s.
	d := c.Decide(now.Add(time.Hour), 0, 1.0)
	if d.Winner != "arousal" {
		t.Errorf("winner = %q, want arousal", d.Winner)
	}
	if got := d.Interval.Seconds(); got > 15 {
		t.Errorf("aroused interval = %.2fs, want at most 15s", got)
	}
}

func TestIntervalClampedToBounds(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now)

	// Enormous energy cannot push below MinInterval.
	d := c.Decide(now, 1e9, 0)
	if d.Interval < 100*time.Millisecond {
		t.Errorf("interval = %v, below floor", d.Interval)
	}

	// Days of silence cannot push above MaxInterval.
	d = c.Decide(now.Add(72*time.Hour), 0, 0)
	if d.Interval > 60*time.Second {
		t.Errorf("interval = %v, above ceiling", d.Interval)
	}
}

func TestDtCappedWhenWakingFromIdle(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now)

	d := c.Decide(now.Add(30*time.Minute), 0, 0)
	if !d.DtCapped {
		t.Fatalf("interval %v should cap dt", d.Interval)
	}
	if d.Dt != 5.0 {
		t.Errorf("dt = %v, want 5.0", d.Dt)
	}
}

func TestSmoothingDampsSwing(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now.Add(-20 * time.Minute))

	// Settle on the slow idle interval first.
	var settled Decision
	for i := 0; i < 50; i++ {
		settled = c.Decide(now, 0, 0)
	}

	// A burst of energy wants 100ms immediately; the EMA only moves
	// beta of the way there on the first tick.
	first := c.Decide(now, 1e6, 0)
	if first.Interval >= settled.Interval {
		t.Fatal("interval did not move toward the fast candidate")
	}
	wantLow := settled.Interval / 2
	if first.Interval < wantLow {
		t.Errorf("first smoothed interval = %v, moved more than beta allows (settled %v)",
			first.Interval, settled.Interval)
	}
}

func TestOnStimulusIgnoresStaleTimestamps(t *testing.T) {
	c := NewController(DefaultConfig())
	now := time.Now()
	c.OnStimulus(now)
	c.OnStimulus(now.Add(-time.Hour))

	d := c.Decide(now, 0, 0)
	if d.Interval != 100*time.Millisecond {
		t.Errorf("stale stimulus moved the clock: interval = %v", d.Interval)
	}
}
