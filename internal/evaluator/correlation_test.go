package evaluator

import (
	"math"
	"testing"
)

func TestPearsonPerfectPositive(t *testing.T) {
	xs := []float64{0.1, 0.2, 0.3, 0.4}
	ys := []float64{0.2, 0.4, 0.6, 0.8}
	if r := Pearson(xs, ys); math.Abs(r-1.0) > 1e-9 {
		t.Errorf("r = %v, want 1.0", r)
	}
}

func TestPearsonPerfectNegative(t *testing.T) {
	xs := []float64{0.1, 0.2, 0.3, 0.4}
	ys := []float64{0.8, 0.6, 0.4, 0.2}
	if r := Pearson(xs, ys); math.Abs(r+1.0) > 1e-9 {
		t.Errorf("r = %v, want -1.0", r)
	}
}

func TestPearsonUncorrelated(t *testing.T) {
	// Evenly spaced xs against a palindromic ys has exactly zero
	// covariance.
	xs := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	ys := []float64{0.2, 0.8, 0.4, 0.4, 0.8, 0.2}
	if r := Pearson(xs, ys); math.Abs(r) > 1e-9 {
		t.Errorf("r = %v, want 0", r)
	}
}

func TestPearsonDegenerate(t *testing.T) {
	cases := []struct {
		name   string
		xs, ys []float64
	}{
		{"too short", []float64{1}, []float64{1}},
		{"length mismatch", []float64{1, 2}, []float64{1}},
		{"constant xs", []float64{0.5, 0.5, 0.5}, []float64{0.1, 0.2, 0.3}},
		{"constant ys", []float64{0.1, 0.2, 0.3}, []float64{0.5, 0.5, 0.5}},
		{"empty", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if r := Pearson(tc.xs, tc.ys); r != 0 {
				t.Errorf("r = %v, want 0", r)
			}
		})
	}
}
