// Package vecmath provides the small vector and smoothing primitives used
// across the tick engine: cosine similarity for goal affinity and affect
// gates, softmax for top-K energy splits, and exponential moving averages
// for the various rolling statistics.
package vecmath

import "math"

// Cosine returns the cosine similarity of two vectors. Mismatched lengths,
// empty vectors, and zero-magnitude vectors all return 0 so callers can fall
// back to a neutral value without a special case.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Norm returns the L2 norm of a vector.
func Norm(a []float64) float64 {
	var sq float64
	for _, v := range a {
		sq += v * v
	}
	return math.Sqrt(sq)
}

// Normalize scales a vector to unit length in place. Zero vectors are left
// unchanged.
func Normalize(a []float64) {
	n := Norm(a)
	if n == 0 {
		return
	}
	for i := range a {
		a[i] /= n
	}
}

// Softmax returns the softmax distribution over xs with the given
// temperature. Inputs are shifted by their maximum for numerical stability.
// An empty input returns nil; a non-positive temperature is treated as 1.
func Softmax(xs []float64, temperature float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	if temperature <= 0 {
		temperature = 1
	}
	maxX := xs[0]
	for _, x := range xs[1:] {
		if x > maxX {
			maxX = x
		}
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp((x - maxX) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// EMA blends a new sample into a running average with smoothing factor
// alpha in (0, 1]. With prev unset (NaN), the sample seeds the average.
func EMA(prev, sample, alpha float64) float64 {
	if math.IsNaN(prev) {
		return sample
	}
	return alpha*sample + (1-alpha)*prev
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
