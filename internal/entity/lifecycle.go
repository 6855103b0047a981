package entity

import (
	"math"
	"sort"
	"time"

	"github.com/mindmesh/pulse/internal/graph"
	"github.com/mindmesh/pulse/internal/vecmath"
)

// TransitionEvent reports a lifecycle state change.
type TransitionEvent struct {
	Entity  graph.EntityID `json:"entity"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Quality float64        `json:"quality"`
}

// Lifecycle runs the coarse-cadence entity maintenance pass: health signal
// EMAs, quality scoring, promotion, and dissolution. It runs between ticks,
// never mid-tick.
type Lifecycle struct {
	config Config

	// prevExtent remembers each entity's member set for the stability
	// (churn) signal.
	prevExtent map[graph.EntityID]map[graph.NodeID]bool
}

// NewLifecycle creates a lifecycle manager sharing the aggregator config.
func NewLifecycle(config Config) *Lifecycle {
	return &Lifecycle{
		config:     config,
		prevExtent: make(map[graph.EntityID]map[graph.NodeID]bool),
	}
}

// Maintain runs one maintenance pass. utility carries each entity's recent
// scheduler return on effort in [0, 1]; entities absent from the map keep
// their previous utility signal. Returns lifecycle transitions in
// deterministic order. Dissolved entities release their membership links.
func (l *Lifecycle) Maintain(store *graph.Store, utility map[graph.EntityID]float64, now time.Time) []TransitionEvent {
	ids := store.EntityIDs()

	// Centroids first so distinctness can compare against siblings from the
	// same pass. Recomputed exactly each pass.
	for _, id := range ids {
		e := store.Entity(id)
		if e.State == graph.LifecycleDissolved {
			continue
		}
		e.Centroid = l.centroid(store, id)
	}

	var events []TransitionEvent
	for _, id := range ids {
		e := store.Entity(id)
		if e.State == graph.LifecycleDissolved {
			continue
		}

		l.updateSignals(store, e, ids, utility)
		e.Quality = l.quality(e.Signals)

		if ev, ok := l.transition(store, e, now); ok {
			events = append(events, ev)
		}
	}
	return events
}

// updateSignals refreshes the five health EMAs for one entity.
func (l *Lifecycle) updateSignals(store *graph.Store, e *graph.Entity, all []graph.EntityID, utility map[graph.EntityID]float64) {
	members := store.Members(e.ID)
	alpha := l.config.QualityAlpha

	blend := func(prev, sample float64) float64 {
		if prev == 0 {
			return sample
		}
		return vecmath.EMA(prev, vecmath.Clamp(sample, 0, 1), alpha)
	}

	cohesion := 0.5
	if l.config.CoherenceEnabled {
		cohesion = l.cohesion(store, members)
	}
	e.Signals.Cohesion = blend(e.Signals.Cohesion, cohesion)
	e.Signals.Stability = blend(e.Signals.Stability, l.stability(e.ID, members))
	e.Signals.Distinctness = blend(e.Signals.Distinctness, l.distinctness(store, e, all))
	e.Signals.Completeness = blend(e.Signals.Completeness, l.completeness(store, e, members))
	if u, ok := utility[e.ID]; ok {
		e.Signals.Utility = blend(e.Signals.Utility, u)
	}
}

// quality is the geometric mean of the five signals, each floored so one
// collapsed signal drags the score down without zeroing it outright.
func (l *Lifecycle) quality(s graph.HealthSignals) float64 {
	floor := l.config.SignalFloor
	vals := []float64{s.Cohesion, s.Stability, s.Distinctness, s.Utility, s.Completeness}
	var logSum float64
	for _, v := range vals {
		logSum += math.Log(math.Max(v, floor))
	}
	return math.Exp(logSum / float64(len(vals)))
}

// transition applies the streak-based lifecycle rules for one entity.
func (l *Lifecycle) transition(store *graph.Store, e *graph.Entity, now time.Time) (TransitionEvent, bool) {
	bar := l.config.PromoteBar
	if e.State == graph.LifecycleProvisional {
		bar = l.config.MatureBar
	}

	if e.Quality >= bar {
		e.HighStreak++
	} else {
		e.HighStreak = 0
	}
	if e.Quality < l.config.DissolveFloor {
		e.LowStreak++
	} else {
		e.LowStreak = 0
	}

	from := e.State
	switch {
	case e.State == graph.LifecycleCandidate && e.HighStreak >= l.config.PromoteStreak:
		e.State = graph.LifecycleProvisional
		e.HighStreak = 0
	case e.State == graph.LifecycleProvisional && e.HighStreak >= l.config.MatureStreak:
		e.State = graph.LifecycleMature
		e.HighStreak = 0
	case e.LowStreak >= l.config.DissolveStreak && now.Sub(e.CreatedAt) >= l.config.MinAge:
		e.State = graph.LifecycleDissolved
		e.Active = false
		store.ReleaseMemberships(e.ID)
		delete(l.prevExtent, e.ID)
	}

	if e.State == from {
		return TransitionEvent{}, false
	}
	return TransitionEvent{
		Entity:  e.ID,
		From:    from.String(),
		To:      e.State.String(),
		Quality: e.Quality,
	}, true
}

// cohesion measures how many node-to-node links stay inside the extent
// relative to all links leaving its members.
func (l *Lifecycle) cohesion(store *graph.Store, members map[graph.NodeID]float64) float64 {
	if len(members) < 2 {
		return 0.5 // too small to judge; neutral
	}
	var internal, total int
	for id := range members {
		for _, link := range store.OutLinks(id) {
			total++
			if _, ok := members[link.Target]; ok {
				internal++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(internal) / float64(total)
}

// stability is the Jaccard overlap between the current extent and the one
// seen last pass.
func (l *Lifecycle) stability(id graph.EntityID, members map[graph.NodeID]float64) float64 {
	current := make(map[graph.NodeID]bool, len(members))
	for m := range members {
		current[m] = true
	}
	prev := l.prevExtent[id]
	l.prevExtent[id] = current

	if prev == nil {
		return 1 // first observation, assume stable
	}
	var inter int
	for m := range current {
		if prev[m] {
			inter++
		}
	}
	union := len(prev) + len(current) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// distinctness measures separation from the nearest sibling centroid.
func (l *Lifecycle) distinctness(store *graph.Store, e *graph.Entity, all []graph.EntityID) float64 {
	if len(e.Centroid) == 0 {
		return 0.5
	}
	maxSim := -1.0
	for _, other := range all {
		if other == e.ID {
			continue
		}
		o := store.Entity(other)
		if o.State == graph.LifecycleDissolved || len(o.Centroid) == 0 {
			continue
		}
		if sim := vecmath.Cosine(e.Centroid, o.Centroid); sim > maxSim {
			maxSim = sim
		}
	}
	if maxSim < 0 {
		return 1 // no siblings with centroids
	}
	return vecmath.Clamp(1-maxSim, 0, 1)
}

// completeness measures how tightly members cluster around the centroid.
func (l *Lifecycle) completeness(store *graph.Store, e *graph.Entity, members map[graph.NodeID]float64) float64 {
	if len(e.Centroid) == 0 || len(members) == 0 {
		return 0.5
	}
	var sum float64
	var count int
	for id := range members {
		n := store.Node(id)
		if n == nil || len(n.Embedding) == 0 {
			continue
		}
		sum += vecmath.Clamp(vecmath.Cosine(n.Embedding, e.Centroid), 0, 1)
		count++
	}
	if count == 0 {
		return 0.5
	}
	return sum / float64(count)
}

// centroid recomputes the exact mean member embedding. Members without
// embeddings are skipped; an extent with none yields nil.
func (l *Lifecycle) centroid(store *graph.Store, id graph.EntityID) []float64 {
	members := store.Members(id)
	ids := make([]graph.NodeID, 0, len(members))
	for m := range members {
		ids = append(ids, m)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var centroid []float64
	var count int
	for _, m := range ids {
		n := store.Node(m)
		if n == nil || len(n.Embedding) == 0 {
			continue
		}
		if centroid == nil {
			centroid = make([]float64, len(n.Embedding))
		}
		if len(n.Embedding) != len(centroid) {
			continue
		}
		for i, v := range n.Embedding {
			centroid[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range centroid {
		centroid[i] /= float64(count)
	}
	return centroid
}
