// Package evaluator correlates similarity-based quality predictions with
// observed quality labels, per signature version. The resulting
// coefficient says how well "close to known-good outputs" tracks "actually
// good" for a function, which is the basis for comparing versions.
package evaluator

import "math"

// Pearson returns the Pearson correlation coefficient between two equal
// length series, in [-1, 1]. Series shorter than two points, or with zero
// variance in either dimension, have no defined correlation and return 0.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}

	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX == 0 || varY == 0 {
		return 0
	}

	r := cov / math.Sqrt(varX*varY)
	// Guard against float drift past the mathematical bound.
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}
