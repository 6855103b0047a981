// Package engine owns the tick loop: it wires the frontier tracker,
// diffusion stager, decay clocks, criticality controller, entity
// aggregation, quota allocation, fair scheduling, weight learning, and the
// safety overlay into the per-tick sequence, and publishes read-only
// snapshots at commit boundaries.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/mindmesh/pulse/internal/config"
	"github.com/mindmesh/pulse/internal/cost"
	"github.com/mindmesh/pulse/internal/criticality"
	"github.com/mindmesh/pulse/internal/decay"
	"github.com/mindmesh/pulse/internal/diffusion"
	"github.com/mindmesh/pulse/internal/entity"
	"github.com/mindmesh/pulse/internal/fanout"
	"github.com/mindmesh/pulse/internal/frontier"
	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/learning"
	"github.com/mindmesh/pulse/internal/quota"
	"github.com/mindmesh/pulse/internal/safety"
	"github.com/mindmesh/pulse/internal/sched"
	"github.com/mindmesh/pulse/internal/stimulus"
	"github.com/mindmesh/pulse/internal/telemetry"
	"github.com/mindmesh/pulse/internal/tickspeed"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// defaultThreshold is the activation threshold for nodes created on first
// reference by a stimulus.
const defaultThreshold = 0.5

// Status is the engine's externally visible state, served by the control
// API and the status command.
type Status struct {
	Name         string             `json:"name"`
	Tick         uint64             `json:"tick"`
	Nodes        int                `json:"nodes"`
	Links        int                `json:"links"`
	Entities     int                `json:"entities"`
	TotalEnergy  float64            `json:"total_energy"`
	FrontierSize int                `json:"frontier_size"`
	Rho          float64            `json:"rho"`
	CritState    string             `json:"criticality_state"`
	Safety       safety.Status      `json:"safety"`
	Interval     tickspeed.Decision `json:"interval"`
	HalfLives    map[string]float64 `json:"activation_half_lives"` // seconds, by node type
}

// Engine runs one graph instance. It is the single writer for its store;
// external callers interact only through the stimulus queue, the published
// snapshot, and Status.
type Engine struct {
	name   string
	cfg    *config.Config
	logger *slog.Logger
	bus    *telemetry.Bus

	store      *graph.Store
	tables     *graph.TypeTables
	eval       *cost.Evaluator
	selector   *fanout.Selector
	stager     *diffusion.Stager
	decayer    *decay.Engine
	controller *criticality.Controller
	aggregator *entity.Aggregator
	lifecycle  *entity.Lifecycle
	scheduler  *sched.Scheduler
	ticker     *tickspeed.Controller
	learner    *learning.Learner
	supervisor *safety.Supervisor
	queue      *stimulus.Queue

	tick      uint64
	decayRate float64
	alphaEff  float64
	dt        float64
	taskMode  fanout.TaskMode
	costCtx   cost.Context
	cursor    map[graph.EntityID]int
	lastMaint time.Time
	interval  tickspeed.Decision
	critState criticality.Decision
	degraded  bool

	snapshot atomic.Pointer[graph.Snapshot]
}

// New builds an engine for one named graph from the loaded configuration.
func New(name string, cfg *config.Config, logger *slog.Logger, bus *telemetry.Bus) (*Engine, error) {
	tables, err := cfg.TypeTables()
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", name, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store := graph.NewStore()
	if cfg.Entity.ManifestPath != "" {
		m, err := entity.LoadManifest(cfg.Entity.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", name, err)
		}
		if err := entity.Bootstrap(store, m); err != nil {
			return nil, fmt.Errorf("engine %s: bootstrap: %w", name, err)
		}
	}

	decCfg := cfg.DecayConfig()
	eval := cost.NewEvaluator(cost.DefaultConfig())
	e := &Engine{
		name:       name,
		cfg:        cfg,
		logger:     logger.With("graph", name),
		bus:        bus,
		store:      store,
		tables:     tables,
		eval:       eval,
		selector:   fanout.NewSelector(cfg.FanoutConfig()),
		stager:     diffusion.NewStager(cfg.DiffusionConfig(), eval, tables),
		decayer:    decay.NewEngine(decCfg, tables),
		controller: criticality.NewController(cfg.CriticalityConfig(), decCfg.ActivationRate),
		aggregator: entity.NewAggregator(cfg.EntityConfig()),
		lifecycle:  entity.NewLifecycle(cfg.EntityConfig()),
		scheduler:  sched.NewScheduler(cfg.SchedConfig()),
		ticker:     tickspeed.NewController(cfg.TickConfig()),
		learner:    learning.NewLearner(cfg.LearningConfig()),
		supervisor: safety.NewSupervisor(cfg.SafetyConfig()),
		queue:      stimulus.NewQueue(cfg.Stimulus.QueueLimit),
		decayRate:  decCfg.ActivationRate,
		alphaEff:   cfg.Diffusion.AlphaTick,
		dt:         cfg.Tick.MinInterval.Std().Seconds(),
		costCtx:    cost.Context{RegulationGate: 1},
		cursor:     make(map[graph.EntityID]int),
		lastMaint:  time.Now(),
	}
	e.snapshot.Store(store.TakeSnapshot(0))
	return e, nil
}

// Store exposes the graph store for setup and tests. It must not be
// touched while Run is active; the tick loop is the single writer.
func (e *Engine) Store() *graph.Store {
	return e.store
}

// Queue returns the stimulus queue external producers push into.
func (e *Engine) Queue() *stimulus.Queue {
	return e.queue
}

// Inject validates and enqueues one stimulus envelope.
func (e *Engine) Inject(env stimulus.Envelope) error {
	return e.queue.Push(env)
}

// SetTaskMode switches the attention signal for fan-out classification
// and, with the task-adaptive enrichment on, shifts the criticality
// target: narrow focus damps spread, thoroughness invites it.
func (e *Engine) SetTaskMode(mode fanout.TaskMode) {
	e.taskMode = mode
	if !e.cfg.Enrich.TaskAdaptiveTargets {
		return
	}
	switch mode {
	case fanout.TaskNarrow:
		e.controller.SetTarget(0.95)
	case fanout.TaskThorough:
		e.controller.SetTarget(1.05)
	default:
		e.controller.SetTarget(e.cfg.Criticality.TargetRho)
	}
}

// SetContext replaces the affect and goal context used by the cost
// evaluator from the next tick on.
func (e *Engine) SetContext(ctx cost.Context) {
	if ctx.RegulationGate == 0 {
		ctx.RegulationGate = 1
	}
	e.costCtx = ctx
}

// Supervisor exposes the safety supervisor for the degraded-mode channel.
func (e *Engine) Supervisor() *safety.Supervisor {
	return e.supervisor
}

// Snapshot returns the last committed read-only snapshot.
func (e *Engine) Snapshot() *graph.Snapshot {
	return e.snapshot.Load()
}

// Status reports the engine's current state as of the last tick.
func (e *Engine) Status() Status {
	snap := e.snapshot.Load()
	halfLives := make(map[string]float64, 5)
	for _, nt := range []graph.NodeType{
		graph.NodeConcept, graph.NodeEpisode, graph.NodeGoal, graph.NodeTask, graph.NodePercept,
	} {
		halfLives[nt.String()] = e.decayer.ActivationHalfLife(nt, e.decayRate)
	}
	return Status{
		Name:         e.name,
		Tick:         e.tick,
		Nodes:        snap.NodeCount,
		Links:        snap.LinkCount,
		Entities:     len(snap.Entities),
		TotalEnergy:  snap.TotalEnergy,
		FrontierSize: snap.ActiveNodes,
		Rho:          e.critState.Rho,
		CritState:    e.critState.State,
		Safety:       e.supervisor.Status(),
		Interval:     e.interval,
		HalfLives:    halfLives,
	}
}

// Step runs one complete tick against the store and returns the interval
// decision for the following tick.
func (e *Engine) Step(now time.Time) tickspeed.Decision {
	e.tick++
	e.bus.BeginTick(e.tick)
	e.bus.Emit(telemetry.EventTickStart, map[string]any{
		"dt": e.dt, "alpha_eff": e.alphaEff, "decay_rate": e.decayRate,
	})

	preEnergy := e.store.TotalEnergy()
	deltas := frontier.NewDeltas()
	drained := make(map[graph.NodeID]float64)

	e.ingestStimuli(deltas, now)

	f := frontier.Compute(e.store)

	// Base diffusion pass: one stride per active source.
	for _, src := range f.Active {
		e.stride(f, deltas, drained, src, now)
	}

	survival := math.Exp(-e.decayRate * e.dt)
	e.critState = e.controller.Update(e.store, f, len(f.Active), survival, e.cfg.Diffusion.AlphaTick)
	e.bus.Emit(telemetry.EventCriticality, map[string]any{
		"rho": e.critState.Rho, "source": e.critState.Source, "state": e.critState.State,
		"oscillation_index": e.critState.OscillationIndex,
	})

	flips := e.aggregator.Tick(e.store, e.critState.ThresholdMult)
	for _, fl := range flips {
		e.bus.Emit(telemetry.EventEntityFlip, map[string]any{
			"entity": string(fl.Entity), "active": fl.Active,
			"energy": fl.Energy, "theta": fl.Theta, "level": fl.Level,
		})
	}

	shares := quota.Apportion(e.cfg.Engine.BudgetPerTick, e.claims(f))
	members := e.activeMembers(shares)
	schedResult := e.scheduler.Run(shares, e.cfg.Engine.FrameDeadline.Std(),
		func(id graph.EntityID) float64 {
			return e.entityStride(f, deltas, drained, members, id, now)
		})

	activeBefore := make(map[graph.NodeID]bool, len(f.Active))
	for _, id := range f.Active {
		activeBefore[id] = true
	}

	deltas.Commit(e.store)

	// Decay runs on committed energies, so this tick's injections and
	// transfers are already subject to this tick's forgetting.
	decayMetrics := e.decayer.DecayActivations(e.store, deltas, e.decayRate, e.dt, now)

	postEnergy := e.store.TotalEnergy()
	consErr := deltas.ConservationError(postEnergy - preEnergy)

	e.emitNodeFlips(activeBefore)
	e.applySafety(now, f, consErr, deltas, decayMetrics, postEnergy-preEnergy)

	if e.cfg.Engine.MaintenanceEvery > 0 && e.tick%uint64(e.cfg.Engine.MaintenanceEvery) == 0 {
		e.maintain(now)
	}

	e.interval = e.ticker.Decide(now, postEnergy, e.store.MeanArousal())
	e.dt = e.interval.Dt
	if ov, on := e.supervisor.Overrides(); on && e.dt > ov.DtCap.Seconds() {
		e.dt = ov.DtCap.Seconds()
		e.interval.Dt = e.dt
		e.interval.DtCapped = true
	}
	e.bus.Emit(telemetry.EventTickInterval, map[string]any{
		"interval": e.interval.Interval.String(), "dt": e.dt,
		"dt_capped": e.interval.DtCapped, "winner": e.interval.Winner,
	})

	e.bus.Emit(telemetry.EventTickEnd, map[string]any{
		"conservation_err": consErr,
		"injected":         deltas.Injected,
		"dissipated":       deltas.Dissipated,
		"decayed":          deltas.Decayed,
		"frontier":         f.Size(),
		"units":            len(schedResult.Order),
		"rounds":           schedResult.Rounds,
		"deadline_hit":     schedResult.DeadlineHit,
		"total_energy":     postEnergy,
	})

	e.snapshot.Store(e.store.TakeSnapshot(e.tick))
	return e.interval
}

// ingestStimuli drains the queue and stages injections.
func (e *Engine) ingestStimuli(deltas *frontier.Deltas, now time.Time) {
	for _, env := range e.queue.Drain(e.cfg.Stimulus.DrainBudget) {
		e.ticker.OnStimulus(env.Timestamp)

		id := graph.NodeID("percept:" + env.ID)
		if e.store.Node(id) == nil {
			n := &graph.Node{
				ID:        id,
				Type:      graph.NodePercept,
				Threshold: defaultThreshold,
				Embedding: env.Embedding,
				CreatedAt: now,
			}
			if err := e.store.AddNode(n); err != nil {
				e.logger.Warn("stimulus node rejected", "id", env.ID, "error", err)
				continue
			}
		}
		e.store.Node(id).LastStimulus = now

		amount := e.cfg.Engine.InjectEnergy * env.Priority
		deltas.StageInjection(id, amount)
		e.prime(deltas, id, env.Embedding, amount)
	}
}

// prime pre-activates the nodes most similar to a fresh stimulus. Runs
// only with the priming enrichment on and outside degraded mode.
func (e *Engine) prime(deltas *frontier.Deltas, exclude graph.NodeID, embedding []float64, amount float64) {
	if !e.cfg.Enrich.Priming || e.degraded || amount <= 0 {
		return
	}

	type scored struct {
		id  graph.NodeID
		sim float64
	}
	var best []scored
	e.store.Nodes(func(n *graph.Node) {
		if n.ID == exclude || len(n.Embedding) == 0 {
			return
		}
		if sim := vecmath.Cosine(embedding, n.Embedding); sim > 0 {
			best = append(best, scored{id: n.ID, sim: sim})
		}
	})
	sort.Slice(best, func(i, j int) bool {
		if best[i].sim != best[j].sim {
			return best[i].sim > best[j].sim
		}
		return best[i].id < best[j].id
	})
	if len(best) > 3 {
		best = best[:3]
	}
	for _, s := range best {
		deltas.StageInjection(s.id, 0.1*amount*s.sim)
	}
}

// headroom reports the working-memory room left under the frontier
// saturation line the safety tripwires patrol. Full headroom while the
// active set is small; shrinks linearly to half once the frontier fraction
// reaches the tripwire limit, narrowing fan-out before safety has to act.
func (e *Engine) headroom(f *frontier.Frontier) float64 {
	n := e.store.NodeCount()
	limit := e.cfg.Safety.FrontierFraction
	if n == 0 || limit <= 0 {
		return 1
	}
	frac := float64(f.Size()) / float64(n)
	if frac <= limit/2 {
		return 1
	}
	return vecmath.Clamp(1-(frac-limit/2)/limit, 0.5, 1)
}

// stride runs one diffusion stride from src and feeds the learner and the
// telemetry stream with the outcome.
func (e *Engine) stride(f *frontier.Frontier, deltas *frontier.Deltas, drained map[graph.NodeID]float64, src graph.NodeID, now time.Time) float64 {
	candidates, strategy := e.selector.Select(e.store, src, e.taskMode, e.headroom(f))
	res := e.stager.ExecuteStride(e.store, deltas, src, candidates, e.costCtx, e.alphaEff, e.dt, drained)

	srcActive := f.IsActive(src)
	for _, tr := range res.Transfers {
		if !tr.Chosen {
			continue
		}
		target := e.store.Node(tr.Target)
		newlyActive := target != nil && !f.IsActive(tr.Target) &&
			target.Energy+deltas.Pending(tr.Target) >= target.Threshold

		scope := e.scopeOf(tr.Target)
		up := e.learner.Observe(e.store, learning.Traversal{
			Link:            tr.Link,
			Amount:          tr.Amount,
			SourceActive:    srcActive,
			TargetActive:    f.IsActive(tr.Target) || newlyActive,
			TargetActivated: newlyActive,
			Scope:           scope,
			At:              now,
		})
		if up.Applied {
			e.bus.Emit(telemetry.EventWeightUpdate, map[string]any{
				"link": string(up.Link), "tier": up.Tier, "eta": up.Eta,
				"z": up.Z, "step": up.Step,
			})
		}
		e.bus.Emit(telemetry.EventStrideExec, map[string]any{
			"source": string(src), "target": string(tr.Target),
			"strategy": strategy.String(), "amount": tr.Amount,
			"ease": tr.Breakdown.Ease, "goal_affinity": tr.Breakdown.GoalAffinity,
			"resonance": tr.Breakdown.Resonance, "complementarity": tr.Breakdown.Complementarity,
			"cost": tr.Breakdown.Cost, "chosen": true, "reason": tr.Reason,
		})
	}
	return res.Moved
}

// entityStride executes one scheduler unit: a stride from the entity's
// next active member in rotation.
func (e *Engine) entityStride(f *frontier.Frontier, deltas *frontier.Deltas, drained map[graph.NodeID]float64, members map[graph.EntityID][]graph.NodeID, id graph.EntityID, now time.Time) float64 {
	nodes := members[id]
	if len(nodes) == 0 {
		return 0
	}
	cur := e.cursor[id] % len(nodes)
	e.cursor[id] = cur + 1
	return e.stride(f, deltas, drained, nodes[cur], now)
}

// claims builds the quota claims for currently active entities.
func (e *Engine) claims(f *frontier.Frontier) []quota.Claim {
	var claims []quota.Claim
	for _, id := range e.store.EntityIDs() {
		ent := e.store.Entity(id)
		if ent == nil || !ent.Active || ent.State == graph.LifecycleDissolved {
			continue
		}

		extent := e.store.ExtentSize(id)
		reachable := 0
		for member := range e.store.Members(id) {
			if f.IsActive(member) {
				reachable++
			}
		}
		reachability := 0.0
		if extent > 0 {
			reachability = float64(reachable) / float64(extent)
		}

		urgency := 0.0
		if ent.Theta > 0 {
			urgency = vecmath.Clamp(ent.Energy/ent.Theta, 0, 10)
		}

		claims = append(claims, quota.Claim{
			Entity:       id,
			ExtentSize:   extent,
			Urgency:      urgency,
			Reachability: reachability,
			Health:       math.Max(ent.Quality, 0.01),
		})
	}
	return claims
}

// activeMembers lists each allocated entity's active member nodes in
// deterministic order for the stride rotation.
func (e *Engine) activeMembers(shares []quota.Share) map[graph.EntityID][]graph.NodeID {
	out := make(map[graph.EntityID][]graph.NodeID, len(shares))
	for _, sh := range shares {
		var nodes []graph.NodeID
		for member := range e.store.Members(sh.Entity) {
			if n := e.store.Node(member); n != nil && n.Active() {
				nodes = append(nodes, member)
			}
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
		out[sh.Entity] = nodes
	}
	return out
}

// scopeOf picks the learner cohort scope for a target node: its strongest
// entity membership, or empty for unaffiliated nodes.
func (e *Engine) scopeOf(id graph.NodeID) graph.EntityID {
	n := e.store.Node(id)
	if n == nil {
		return ""
	}
	var best graph.EntityID
	bestW := 0.0
	for ent, w := range n.Memberships {
		if w > bestW || (w == bestW && ent < best) {
			best, bestW = ent, w
		}
	}
	return best
}

// emitNodeFlips reports nodes whose activation state changed this tick.
func (e *Engine) emitNodeFlips(activeBefore map[graph.NodeID]bool) {
	e.store.Nodes(func(n *graph.Node) {
		if n.Active() != activeBefore[n.ID] {
			e.bus.Emit(telemetry.EventNodeFlip, map[string]any{
				"node": string(n.ID), "active": n.Active(), "energy": n.Energy,
			})
		}
	})
}

// applySafety feeds the supervisor one frame and reacts to transitions by
// swapping in (or out) the conservative component configurations.
func (e *Engine) applySafety(now time.Time, f *frontier.Frontier, consErr float64, deltas *frontier.Deltas, decayMetrics decay.Metrics, deltaEnergy float64) {
	e.decayRate = e.decayer.ClampRate(e.critState.DecayRate)

	moved := deltas.Injected + deltas.Dissipated + decayMetrics.EnergyLost + math.Abs(deltaEnergy)
	st := e.supervisor.Observe(safety.Frame{
		Tick:            e.tick,
		At:              now,
		ConservationErr: consErr,
		EnergyMoved:     moved,
		Rho:             e.critState.Rho,
		FrontierSize:    f.Size(),
		GraphSize:       e.store.NodeCount(),
		TelemetryOK:     e.bus.Healthy(),
	})

	if st.Degraded == e.degraded {
		e.applyAlpha()
		return
	}
	e.degraded = st.Degraded

	if st.Degraded {
		e.logger.Warn("entering degraded mode", "reason", st.Reason)
		e.bus.Emit(telemetry.EventSafeModeOn, map[string]any{"reason": st.Reason})
		dif := e.cfg.DiffusionConfig()
		dif.StickinessEnabled = false
		e.stager = diffusion.NewStager(dif, e.eval, e.tables)
		dec := e.cfg.DecayConfig()
		dec.ConsolidationEnabled = false
		dec.ResistanceEnabled = false
		e.decayer = decay.NewEngine(dec, e.tables)
	} else {
		e.logger.Info("leaving degraded mode")
		e.bus.Emit(telemetry.EventSafeModeOff, nil)
		e.stager = diffusion.NewStager(e.cfg.DiffusionConfig(), e.eval, e.tables)
		e.decayer = decay.NewEngine(e.cfg.DecayConfig(), e.tables)
	}
	e.applyAlpha()
}

// applyAlpha recomputes the effective diffusion share from the controller
// scale and any degraded override.
func (e *Engine) applyAlpha() {
	scale := e.critState.AlphaScale
	if scale == 0 {
		scale = 1
	}
	if ov, on := e.supervisor.Overrides(); on {
		scale *= ov.AlphaScale
	}
	e.alphaEff = vecmath.Clamp(e.cfg.Diffusion.AlphaTick*scale, 0, 1)
}

// maintain runs the coarse-cadence out-of-band pass: entity lifecycle and
// the slow weight decay clock.
func (e *Engine) maintain(now time.Time) {
	utilities := make(map[graph.EntityID]float64)
	for _, id := range e.store.EntityIDs() {
		utilities[id] = vecmath.Clamp(e.scheduler.MeanROI(id), 0, 1)
	}

	transitions := e.lifecycle.Maintain(e.store, utilities, now)
	for _, tr := range transitions {
		e.bus.Emit(telemetry.EventLifecycle, map[string]any{
			"entity": string(tr.Entity), "from": tr.From, "to": tr.To, "quality": tr.Quality,
		})
		if tr.To == graph.LifecycleDissolved.String() {
			e.scheduler.Forget(tr.Entity)
			delete(e.cursor, tr.Entity)
		}
	}

	e.decayer.DecayWeights(e.store, now.Sub(e.lastMaint))
	e.lastMaint = now
}
