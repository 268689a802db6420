package domain

import (
	"fmt"
	"math"
)

// Vector is a fixed-length text embedding
type Vector []float32

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// A zero-magnitude vector has similarity 0 with everything.
func CosineSimilarity(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
