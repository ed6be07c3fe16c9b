package similarity

import "math"

// Cosine returns the cosine similarity between two vectors, clamped to
// [0,1]. Raw cosine lies in [-1,1]; negative values carry no useful
// signal for "how alike are these outputs" and would break the score
// bound, so they clamp to 0. Zero vectors yield 0.
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

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Floating point can push a self-comparison slightly past 1.
	if cos > 1 {
		return 1
	}
	if cos < 0 {
		return 0
	}
	return cos
}
