// Package vector provides the small amount of vector math the tree needs:
// cosine similarity, normalization, and a deterministic hash-based vector
// used when no embedding provider is reachable.
package vector

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// FallbackDimension is the size of locally generated vectors. It differs
// from common provider dimensions so a fallback vector never compares
// against a real embedding as if it were one.
const FallbackDimension = 512

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Vectors of different lengths are not comparable and score 0,
// as does any zero-norm vector.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}

	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Hash generates a deterministic unit vector of the given dimension from
// text. Identical text always yields an identical vector, so cosine
// similarity between fallback vectors still reflects exact-text identity
// and nothing more.
func Hash(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))

	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return Normalize(v)
}
