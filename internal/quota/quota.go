// Package quota apportions the per-tick work budget across active entities.
// Weights combine extent size with urgency, reachability, and health
// factors, each rescaled to mean one across the active set every tick so no
// fixed constant biases the split. The integer budget is divided by the
// largest-remainder method, which sums exactly and never strays more than
// one unit from the exact proportional share.
package quota

import (
	"math"
	"sort"

	"github.com/mindmesh/pulse/internal/graph"
)

// Claim is one entity's input to the apportionment.
type Claim struct {
	Entity       graph.EntityID
	ExtentSize   int
	Urgency      float64
	Reachability float64
	Health       float64
}

// Share is one entity's allocated budget.
type Share struct {
	Entity graph.EntityID `json:"entity"`
	Weight float64        `json:"weight"`
	Units  int            `json:"units"`
}

// Apportion splits budget units across the claims. Smaller extents get
// proportionally more per node (the 1/|extent| term), so compact entities
// are not starved by sprawling ones. A non-positive budget or empty claim
// set yields nil.
func Apportion(budget int, claims []Claim) []Share {
	if budget <= 0 || len(claims) == 0 {
		return nil
	}

	urgency := rescaleMeanOne(claims, func(c Claim) float64 { return c.Urgency })
	reach := rescaleMeanOne(claims, func(c Claim) float64 { return c.Reachability })
	health := rescaleMeanOne(claims, func(c Claim) float64 { return c.Health })

	shares := make([]Share, len(claims))
	var total float64
	for i, c := range claims {
		extent := float64(c.ExtentSize)
		if extent < 1 {
			extent = 1
		}
		w := (1 / extent) * urgency[i] * reach[i] * health[i]
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		shares[i] = Share{Entity: c.Entity, Weight: w}
		total += w
	}
	if total == 0 {
		// Degenerate weights: fall back to an even split.
		for i := range shares {
			shares[i].Weight = 1
		}
		total = float64(len(shares))
	}

	// Hamilton: floored proportional shares, leftovers to the largest
	// fractional remainders.
	type frac struct {
		index     int
		remainder float64
	}
	fracs := make([]frac, len(shares))
	allocated := 0
	for i := range shares {
		exact := float64(budget) * shares[i].Weight / total
		units := int(math.Floor(exact))
		shares[i].Units = units
		allocated += units
		fracs[i] = frac{index: i, remainder: exact - float64(units)}
	}

	sort.Slice(fracs, func(a, b int) bool {
		if fracs[a].remainder != fracs[b].remainder {
			return fracs[a].remainder > fracs[b].remainder
		}
		return shares[fracs[a].index].Entity < shares[fracs[b].index].Entity
	})
	for i := 0; allocated < budget; i++ {
		shares[fracs[i%len(fracs)].index].Units++
		allocated++
	}

	return shares
}

// rescaleMeanOne normalizes a factor so its mean across the claims is one.
// An all-zero or degenerate factor disappears from the product entirely.
func rescaleMeanOne(claims []Claim, get func(Claim) float64) []float64 {
	out := make([]float64, len(claims))
	var sum float64
	for i, c := range claims {
		v := get(c)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[i] = v
		sum += v
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	mean := sum / float64(len(claims))
	for i := range out {
		out[i] /= mean
	}
	return out
}
