// Package criticality keeps activation spread near the critical point. A
// sampled power-iteration estimate of the propagation ratio is blended with
// a cheap per-tick branching proxy, and a PID loop steers the effective
// activation decay rate (and optionally the diffusion share) toward a
// target ratio of one. The controller only adjusts rates; it never touches
// node energies.
package criticality

import (
	"math"

	"github.com/mindmesh/pulse/internal/frontier"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// State classifies the current propagation regime.
type State int

const (
	Subcritical State = iota
	Critical
	Supercritical
)

// String returns the lowercase name used in telemetry.
func (s State) String() string {
	switch s {
	case Subcritical:
		return "subcritical"
	case Critical:
		return "critical"
	case Supercritical:
		return "supercritical"
	default:
		return "unknown"
	}
}

// Config holds the controller tunables.
type Config struct {
	// TargetRho is the propagation ratio setpoint. Default: 1.0.
	TargetRho float64

	// SampleEvery is the tick interval between power-iteration samples.
	// Default: 10.
	SampleEvery int

	// PowerIters and PowerTol bound the power iteration. Defaults: 10, 1e-4.
	PowerIters int
	PowerTol   float64

	// ProxyAlpha is the EMA factor blending the branching proxy into the
	// running estimate between samples. Default: 0.3.
	ProxyAlpha float64

	// Kp, Ki, Kd are the PID gains on the rho error. Defaults: 0.5, 0.05, 0.
	Kp float64
	Ki float64
	Kd float64

	// IntegralClamp bounds the accumulated integral term (anti-windup).
	// Default: 5.0.
	IntegralClamp float64

	// RateMin and RateMax bound the proposed decay rate. Defaults match the
	// decay engine's clamps: 1e-6 and 1e-3.
	RateMin float64
	RateMax float64

	// DualLever also scales the diffusion share when the primary lever
	// saturates. Default: false.
	DualLever bool

	// AlphaScaleMin and AlphaScaleMax bound the secondary lever.
	// Defaults: 0.5 and 1.5.
	AlphaScaleMin float64
	AlphaScaleMax float64

	// SubcriticalBand and SupercriticalBand split the regimes.
	// Defaults: 0.8 and 1.2.
	SubcriticalBand   float64
	SupercriticalBand float64

	// OscWindow is the error-sign history length for the oscillation index.
	// Default: 32.
	OscWindow int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		TargetRho:         1.0,
		SampleEvery:       10,
		PowerIters:        10,
		PowerTol:          1e-4,
		ProxyAlpha:        0.3,
		Kp:                0.5,
		Ki:                0.05,
		Kd:                0,
		IntegralClamp:     5.0,
		RateMin:           1e-6,
		RateMax:           1e-3,
		DualLever:         false,
		AlphaScaleMin:     0.5,
		AlphaScaleMax:     1.5,
		SubcriticalBand:   0.8,
		SupercriticalBand: 1.2,
		OscWindow:         32,
	}
}

// Decision is the controller's per-tick output.
type Decision struct {
	Rho              float64 `json:"rho"`
	Source           string  `json:"source"` // "power" or "proxy"
	State            string  `json:"state"`
	ThresholdMult    float64 `json:"threshold_mult"`
	DecayRate        float64 `json:"decay_rate"`
	AlphaScale       float64 `json:"alpha_scale"`
	OscillationIndex float64 `json:"oscillation_index"`
}

// Controller estimates rho and adjusts the decay lever.
type Controller struct {
	config Config

	rho        float64
	baseRate   float64
	integral   float64
	prevErr    float64
	havePrev   bool
	prevActive int
	tick       int

	errSigns []int
	signNext int
	signFull bool
}

// NewController creates a controller around a base activation decay rate.
func NewController(config Config, baseDecayRate float64) *Controller {
	return &Controller{
		config:   config,
		rho:      config.TargetRho,
		baseRate: baseDecayRate,
		errSigns: make([]int, 0, config.OscWindow),
	}
}

// Rho returns the current blended propagation ratio estimate.
func (c *Controller) Rho() float64 {
	return c.rho
}

// SetTarget moves the controller's target ratio. Task-adaptive callers
// lower it for narrow-focus work and raise it for exploratory work; the
// PID integral is kept so the lever does not jump.
func (c *Controller) SetTarget(rho float64) {
	if rho > 0 {
		c.config.TargetRho = rho
	}
}

// StateOf classifies a ratio into a regime.
func (c *Controller) StateOf(rho float64) State {
	switch {
	case rho < c.config.SubcriticalBand:
		return Subcritical
	case rho >= c.config.SupercriticalBand:
		return Supercritical
	default:
		return Critical
	}
}

// ThresholdMult returns the activation-threshold multiplier the entity
// aggregator consumes for a regime: subcritical lowers thresholds to let
// spread recover, supercritical raises them to choke it.
func (c *Controller) ThresholdMult(s State) float64 {
	switch s {
	case Subcritical:
		return 0.9
	case Supercritical:
		return 1.1
	default:
		return 1.0
	}
}

// Update advances the controller one tick. activeNow is the committed
// active-node count; survival is the per-tick energy survival factor
// exp(-rate*dt); alphaTick is the configured diffusion share. Every
// SampleEvery ticks the estimate is refreshed authoritatively by power
// iteration over the frontier subgraph, otherwise the branching proxy
// nudges it.
func (c *Controller) Update(store *graph.Store, f *frontier.Frontier, activeNow int, survival, alphaTick float64) Decision {
	c.tick++

	source := "proxy"
	if c.config.SampleEvery > 0 && c.tick%c.config.SampleEvery == 0 {
		if sampled, ok := c.powerIterate(store, f, survival, alphaTick); ok {
			c.rho = sampled
			source = "power"
		}
	}
	if source == "proxy" {
		if c.prevActive > 0 {
			proxy := float64(activeNow) / float64(c.prevActive)
			c.rho = vecmath.EMA(c.rho, proxy, c.config.ProxyAlpha)
		}
	}
	c.prevActive = activeNow

	rate, alphaScale := c.adjust()
	state := c.StateOf(c.rho)

	return Decision{
		Rho:              c.rho,
		Source:           source,
		State:            state.String(),
		ThresholdMult:    c.ThresholdMult(state),
		DecayRate:        rate,
		AlphaScale:       alphaScale,
		OscillationIndex: c.oscillationIndex(),
	}
}

// adjust runs the PID step and returns the proposed decay rate and the
// secondary diffusion scale.
func (c *Controller) adjust() (float64, float64) {
	err := c.rho - c.config.TargetRho

	c.integral = vecmath.Clamp(c.integral+err, -c.config.IntegralClamp, c.config.IntegralClamp)
	var deriv float64
	if c.havePrev {
		deriv = err - c.prevErr
	}
	c.recordSign(err)
	c.prevErr = err
	c.havePrev = true

	// Positive error means spread is running hot, so decay goes up.
	correction := c.config.Kp*err + c.config.Ki*c.integral + c.config.Kd*deriv
	rate := vecmath.Clamp(c.baseRate*(1+correction), c.config.RateMin, c.config.RateMax)

	alphaScale := 1.0
	if c.config.DualLever {
		saturated := rate == c.config.RateMax || rate == c.config.RateMin
		if saturated {
			alphaScale = vecmath.Clamp(1-0.5*err, c.config.AlphaScaleMin, c.config.AlphaScaleMax)
		}
	}
	return rate, alphaScale
}

// powerIterate estimates the dominant growth factor of one tick of spread
// over the frontier subgraph. The per-tick operator keeps a (1-alpha) share
// in place and pushes an alpha share along out-links in proportion to ease,
// everything scaled by the survival factor. Returns false when the frontier
// is too small to estimate.
func (c *Controller) powerIterate(store *graph.Store, f *frontier.Frontier, survival, alphaTick float64) (float64, bool) {
	nodes := make([]graph.NodeID, 0, f.Size())
	nodes = append(nodes, f.Active...)
	nodes = append(nodes, f.Shadow...)
	if len(nodes) < 2 {
		return 0, false
	}
	index := make(map[graph.NodeID]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	// Row-normalized out-link shares restricted to the frontier.
	type edge struct {
		from, to int
		share    float64
	}
	var edges []edge
	for i, id := range nodes {
		links := store.OutLinks(id)
		var total float64
		for _, l := range links {
			if _, ok := index[l.Target]; ok {
				total += l.Ease()
			}
		}
		if total == 0 {
			continue
		}
		for _, l := range links {
			if j, ok := index[l.Target]; ok {
				edges = append(edges, edge{from: i, to: j, share: l.Ease() / total})
			}
		}
	}
	if len(edges) == 0 {
		return 0, false
	}

	v := make([]float64, len(nodes))
	for i := range v {
		v[i] = 1 / math.Sqrt(float64(len(nodes)))
	}
	next := make([]float64, len(nodes))

	var rho float64
	for iter := 0; iter < c.config.PowerIters; iter++ {
		for i := range next {
			next[i] = (1 - alphaTick) * v[i]
		}
		for _, e := range edges {
			next[e.to] += alphaTick * e.share * v[e.from]
		}
		for i := range next {
			next[i] *= survival
		}

		norm := vecmath.Norm(next)
		if norm == 0 {
			return 0, false
		}
		if math.Abs(norm-rho) < c.config.PowerTol {
			return norm, true
		}
		rho = norm
		for i := range v {
			v[i] = next[i] / norm
		}
	}
	return rho, true
}

// recordSign pushes the error's sign into the oscillation ring buffer.
func (c *Controller) recordSign(err float64) {
	sign := 0
	if err > 0 {
		sign = 1
	} else if err < 0 {
		sign = -1
	}
	if len(c.errSigns) < c.config.OscWindow {
		c.errSigns = append(c.errSigns, sign)
		return
	}
	c.errSigns[c.signNext] = sign
	c.signNext = (c.signNext + 1) % c.config.OscWindow
	c.signFull = true
}

// oscillationIndex returns the fraction of consecutive error samples whose
// sign flipped, a cheap hunting indicator for telemetry. Once the ring has
// wrapped the walk starts at the oldest slot so the seam between newest and
// oldest never counts as a flip.
func (c *Controller) oscillationIndex() float64 {
	n := len(c.errSigns)
	if n < 2 {
		return 0
	}
	start := 0
	if c.signFull {
		start = c.signNext
	}
	var flips int
	for i := 1; i < n; i++ {
		prev := c.errSigns[(start+i-1)%n]
		cur := c.errSigns[(start+i)%n]
		if prev != 0 && cur != 0 && cur != prev {
			flips++
		}
	}
	return float64(flips) / float64(n-1)
}
