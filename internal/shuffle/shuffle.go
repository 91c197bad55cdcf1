// Package shuffle permutes question sequences.
package shuffle

import "math/rand/v2"

// Shuffle returns a permuted copy of in using a Fisher-Yates pass from the
// last index down to 1. The input slice is not modified.
// A nil r uses the process-wide generator.
func Shuffle[T any](r *rand.Rand, in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}
	for i := len(out) - 1; i > 0; i-- {
		j := intN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// NewSource returns a deterministic generator for seed, or nil when seed is 0.
func NewSource(seed uint64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
