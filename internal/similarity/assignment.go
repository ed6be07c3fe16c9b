package similarity

import "math"

// MaxWeightAssignment solves the assignment problem on a square weight
// matrix: it returns the one-to-one pairing of rows to columns that
// maximizes the total weight, together with that total.
//
// The implementation is the Hungarian algorithm with potentials, O(n³),
// run on negated weights as a min-cost assignment. assignment[i] is the
// column matched to row i. A nil or empty matrix yields a nil assignment
// and total 0.
func MaxWeightAssignment(weights [][]float64) ([]int, float64) {
	n := len(weights)
	if n == 0 {
		return nil, 0
	}

	// Potentials and matching are 1-indexed; column 0 is the virtual
	// start of each augmenting search.
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)   // p[j] = row currently matched to column j
	way := make([]int, n+1) // predecessor column on the alternating path

	cost := func(i, j int) float64 {
		return -weights[i-1][j-1]
	}

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0

			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost(i0, j) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Augment along the found path.
		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	assignment := make([]int, n)
	var total float64
	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			assignment[p[j]-1] = j - 1
			total += weights[p[j]-1][j-1]
		}
	}

	return assignment, total
}
