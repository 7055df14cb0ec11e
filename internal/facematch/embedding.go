// Package facematch holds the pure face matching primitives: embedding validation,
// L2 distance, exhaustive nearest-neighbour search and threshold classification.
package facematch

import (
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/face-access/internal/constants"
)

// ErrInvalidEmbedding is returned for embeddings that are not exactly
// constants.EmbeddingDim finite numbers.
var ErrInvalidEmbedding = errors.New("invalid face embedding")

// ValidateEmbedding checks the raw embedding from a request and converts it to the
// float32 representation used by the stores.
func ValidateEmbedding(v []float64) ([]float32, error) {
	if len(v) != constants.EmbeddingDim {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidEmbedding, constants.EmbeddingDim, len(v))
	}
	out := make([]float32, len(v))
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: value at index %d is not finite", ErrInvalidEmbedding, i)
		}
		out[i] = float32(x)
		if math.IsInf(float64(out[i]), 0) {
			return nil, fmt.Errorf("%w: value at index %d overflows float32", ErrInvalidEmbedding, i)
		}
	}
	return out, nil
}

// EuclideanDistance computes the L2 distance between two vectors.
// Vectors of different length are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Candidate is a stored embedding that can be matched against.
type Candidate struct {
	ID        string
	Embedding []float32
}

// Match is the closest candidate found for a query.
type Match struct {
	ID       string
	Distance float64
}

// Similarity returns the display confidence of the match.
func (m Match) Similarity() float64 {
	return Similarity(m.Distance)
}

// FindClosest scans the whole population and returns the candidate with the smallest
// L2 distance. Ties keep the earlier candidate. An empty population yields false.
func FindClosest(query []float32, population []Candidate) (Match, bool) {
	best := Match{Distance: math.Inf(1)}
	found := false
	for _, c := range population {
		d := EuclideanDistance(query, c.Embedding)
		if d < best.Distance {
			best = Match{ID: c.ID, Distance: d}
			found = true
		}
	}
	return best, found
}
