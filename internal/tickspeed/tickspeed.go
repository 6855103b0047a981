// Package tickspeed decides how fast the engine runs. Three independent
// candidate intervals compete and the fastest wins: recency of external
// input, total active energy (so self-sustained activity keeps ticking
// without new input), and mean affective arousal (a floor against dormancy
// in charged states). The physics timestep is capped separately so waking
// from a long idle never applies one oversized step.
package tickspeed

import (
	"math"
	"time"

	"github.com/mindmesh/pulse/internal/vecmath"
)

// Config holds the tick speed tunables.
type Config struct {
	// MinInterval and MaxInterval clamp the wall-clock tick interval.
	// Defaults: 100ms and 60s.
	MinInterval time.Duration
	MaxInterval time.Duration

	// DtCap bounds the physics timestep regardless of the wall interval.
	// Default: 5s.
	DtCap time.Duration

	// SmoothingBeta is the EMA factor damping interval oscillation.
	// Default: 0.3.
	SmoothingBeta float64

	// IdleSlope is how many seconds of interval each second of stimulus
	// silence adds. Default: 0.05.
	IdleSlope float64

	// EnergyGain scales how strongly total active energy speeds ticks.
	// Default: 2.0.
	EnergyGain float64

	// ArousalGain scales how strongly mean arousal speeds ticks.
	// Default: 4.0.
	ArousalGain float64
}

// DefaultConfig returns the default tick speed configuration.
func DefaultConfig() Config {
	return Config{
		MinInterval:   100 * time.Millisecond,
		MaxInterval:   60 * time.Second,
		DtCap:         5 * time.Second,
		SmoothingBeta: 0.3,
		IdleSlope:     0.05,
		EnergyGain:    2.0,
		ArousalGain:   4.0,
	}
}

// Decision is the controller's output for one tick.
type Decision struct {
	Interval time.Duration `json:"interval"`
	Dt       float64       `json:"dt"` // physics timestep, seconds
	DtCapped bool          `json:"dt_capped"`
	Winner   string        `json:"winner"` // "stimulus", "energy", or "arousal"
}

// Controller computes the next tick's wall interval and physics timestep.
type Controller struct {
	config       Config
	lastStimulus time.Time
	smoothed     float64 // seconds; NaN until first decision
}

// NewController creates a tick speed controller. The stimulus clock starts
// at construction time.
func NewController(config Config) *Controller {
	return &Controller{
		config:       config,
		lastStimulus: time.Now(),
		smoothed:     math.NaN(),
	}
}

// OnStimulus resets the external-input recency clock. The engine calls this
// when a stimulus arrives; cancelling the in-flight wait is the stimulus
// queue's job.
func (c *Controller) OnStimulus(at time.Time) {
	if at.After(c.lastStimulus) {
		c.lastStimulus = at
	}
}

// Decide computes the next interval from the committed state. totalEnergy
// is the graph's summed activation energy and arousal the mean affect
// magnitude. The fastest candidate wins, the choice is EMA-smoothed, and
// the physics timestep is the smoothed interval capped at DtCap.
func (c *Controller) Decide(now time.Time, totalEnergy, arousal float64) Decision {
	minS := c.config.MinInterval.Seconds()
	maxS := c.config.MaxInterval.Seconds()

	idle := math.Max(0, now.Sub(c.lastStimulus).Seconds())
	stimulus := minS + idle*c.config.IdleSlope
	energy := maxS / (1 + math.Max(0, totalEnergy)*c.config.EnergyGain)
	arousalC := maxS / (1 + math.Max(0, arousal)*c.config.ArousalGain)

	interval := stimulus
	winner := "stimulus"
	if energy < interval {
		interval = energy
		winner = "energy"
	}
	if arousalC < interval {
		interval = arousalC
		winner = "arousal"
	}

	interval = vecmath.Clamp(interval, minS, maxS)
	c.smoothed = vecmath.EMA(c.smoothed, interval, c.config.SmoothingBeta)
	c.smoothed = vecmath.Clamp(c.smoothed, minS, maxS)

	dt := c.smoothed
	capped := false
	if capS := c.config.DtCap.Seconds(); dt > capS {
		dt = capS
		capped = true
	}

	return Decision{
		Interval: time.Duration(c.smoothed * float64(time.Second)),
		Dt:       dt,
		DtCapped: capped,
		Winner:   winner,
	}
}
