// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. It returns 0 when the lengths differ, either vector is empty, or
// either has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	c := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, c))
}
