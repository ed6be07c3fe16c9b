package similarity

import (
	"math"
	"testing"
)

func TestMaxWeightAssignmentEmpty(t *testing.T) {
	assignment, total := MaxWeightAssignment(nil)
	if assignment != nil || total != 0 {
		t.Fatalf("expected nil assignment and zero total, got %v, %v", assignment, total)
	}
}

func TestMaxWeightAssignmentIdentity(t *testing.T) {
	weights := [][]float64{
		{1.0, 0.2, 0.1},
		{0.3, 1.0, 0.0},
		{0.1, 0.4, 1.0},
	}
	assignment, total := MaxWeightAssignment(weights)
	for i, j := range assignment {
		if i != j {
			t.Errorf("row %d matched to column %d, want %d", i, j, i)
		}
	}
	if math.Abs(total-3.0) > 1e-9 {
		t.Errorf("total = %v, want 3.0", total)
	}
}

func TestMaxWeightAssignmentPicksGlobalOptimum(t *testing.T) {
	// Greedy row-by-row matching would take 0.9 for row 0 and be stuck
	// with 0.1 for row 1 (total 1.0); the optimal pairing crosses.
	weights := [][]float64{
		{0.9, 0.8},
		{0.1, 0.8},
	}
	assignment, total := MaxWeightAssignment(weights)
	if assignment[0] != 1 || assignment[1] != 0 {
		t.Errorf("assignment = %v, want [1 0]", assignment)
	}
	if math.Abs(total-1.6) > 1e-9 {
		t.Errorf("total = %v, want 1.6", total)
	}
}

func TestMaxWeightAssignmentWithPadding(t *testing.T) {
	// One row is padding (all zeros); the real rows should still claim
	// their best columns.
	weights := [][]float64{
		{0.2, 0.9, 0.0},
		{0.7, 0.3, 0.0},
		{0.0, 0.0, 0.0},
	}
	_, total := MaxWeightAssignment(weights)
	if math.Abs(total-1.6) > 1e-9 {
		t.Errorf("total = %v, want 1.6", total)
	}
}
