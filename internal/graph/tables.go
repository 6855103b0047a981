package graph

import "fmt"

// TypeTables resolves per-type tunables through fixed-size arrays indexed by
// the enum value. Built once at startup from configuration and validated so
// no lookup can miss at runtime.
type TypeTables struct {
	activationDecay [nodeTypeCount]float64
	weightDecay     [linkTypeCount]float64
	stickiness      [linkTypeCount]float64
	resistance      [nodeTypeCount]float64
}

// TypeTableSpec is the raw configuration for a TypeTables. Maps are keyed by
// the lowercase type names; every type must be present.
type TypeTableSpec struct {
	ActivationDecayMult map[string]float64 `yaml:"activation_decay_mult"`
	WeightDecayMult     map[string]float64 `yaml:"weight_decay_mult"`
	Stickiness          map[string]float64 `yaml:"stickiness"`
	ResistanceMult      map[string]float64 `yaml:"resistance_mult"`
}

// DefaultTypeTableSpec returns the built-in per-type multipliers. Episodic
// and perceptual nodes forget fastest; concepts and goals persist. Causal
// and membership links hold transferred energy best.
func DefaultTypeTableSpec() TypeTableSpec {
	return TypeTableSpec{
		ActivationDecayMult: map[string]float64{
			"concept": 0.5,
			"episode": 2.0,
			"goal":    0.8,
			"task":    1.0,
			"percept": 3.0,
		},
		WeightDecayMult: map[string]float64{
			"association": 1.0,
			"causal":      0.5,
			"similarity":  1.5,
			"temporal":    2.0,
			"membership":  0.5,
		},
		Stickiness: map[string]float64{
			"association": 0.6,
			"causal":      0.9,
			"similarity":  0.3,
			"temporal":    0.6,
			"membership":  0.9,
		},
		ResistanceMult: map[string]float64{
			"concept": 1.2,
			"episode": 1.0,
			"goal":    1.3,
			"task":    1.0,
			"percept": 1.0,
		},
	}
}

// BuildTypeTables validates a TypeTableSpec and compiles it into array-backed
// tables. Every node and link type must have an entry in every map; unknown
// names and out-of-range values are rejected.
func BuildTypeTables(spec TypeTableSpec) (*TypeTables, error) {
	t := &TypeTables{}

	for name, v := range spec.ActivationDecayMult {
		nt, err := ParseNodeType(name)
		if err != nil {
			return nil, fmt.Errorf("activation_decay_mult: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("activation_decay_mult[%s] must be positive, got %f", name, v)
		}
		t.activationDecay[nt] = v
	}
	for name, v := range spec.ResistanceMult {
		nt, err := ParseNodeType(name)
		if err != nil {
			return nil, fmt.Errorf("resistance_mult: %w", err)
		}
		if v < 1 {
			return nil, fmt.Errorf("resistance_mult[%s] must be >= 1, got %f", name, v)
		}
		t.resistance[nt] = v
	}
	for name, v := range spec.WeightDecayMult {
		lt, err := ParseLinkType(name)
		if err != nil {
			return nil, fmt.Errorf("weight_decay_mult: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("weight_decay_mult[%s] must be positive, got %f", name, v)
		}
		t.weightDecay[lt] = v
	}
	for name, v := range spec.Stickiness {
		lt, err := ParseLinkType(name)
		if err != nil {
			return nil, fmt.Errorf("stickiness: %w", err)
		}
		if v < 0.1 || v > 1.0 {
			return nil, fmt.Errorf("stickiness[%s] must be in [0.1, 1.0], got %f", name, v)
		}
		t.stickiness[lt] = v
	}

	// Reject partial tables so a runtime lookup can never hit a zero hole.
	for nt := NodeType(0); nt < nodeTypeCount; nt++ {
		if t.activationDecay[nt] == 0 {
			return nil, fmt.Errorf("activation_decay_mult missing entry for %s", nt)
		}
		if t.resistance[nt] == 0 {
			return nil, fmt.Errorf("resistance_mult missing entry for %s", nt)
		}
	}
	for lt := LinkType(0); lt < linkTypeCount; lt++ {
		if t.weightDecay[lt] == 0 {
			return nil, fmt.Errorf("weight_decay_mult missing entry for %s", lt)
		}
		if t.stickiness[lt] == 0 {
			return nil, fmt.Errorf("stickiness missing entry for %s", lt)
		}
	}

	return t, nil
}

// ActivationDecayMult returns the per-tick activation decay multiplier for a
// node type.
func (t *TypeTables) ActivationDecayMult(nt NodeType) float64 {
	return t.activationDecay[nt]
}

// WeightDecayMult returns the slow weight decay multiplier for a link type.
func (t *TypeTables) WeightDecayMult(lt LinkType) float64 {
	return t.weightDecay[lt]
}

// Stickiness returns the base retained fraction for energy arriving over a
// link of the given type.
func (t *TypeTables) Stickiness(lt LinkType) float64 {
	return t.stickiness[lt]
}

// ResistanceMult returns the structural decay resistance multiplier for a
// node type.
func (t *TypeTables) ResistanceMult(nt NodeType) float64 {
	return t.resistance[nt]
}
