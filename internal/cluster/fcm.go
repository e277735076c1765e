package cluster

import (
	"math"
	"math/rand"
)

// membership tolerance for row-sum checks
const rowSumEpsilon = 1e-6

// FCMResult holds a fitted fuzzy clustering. Every membership row sums to
// 1.0 within 1e-6.
type FCMResult struct {
	K          int
	Centroids  [][]float64
	Membership [][]float64 // entities x clusters
	Iterations int
	Converged  bool
	ReducedK   bool
}

// Labels returns the hard assignment (argmax membership) per entity.
func (r *FCMResult) Labels() []int {
	labels := make([]int, len(r.Membership))
	for i, row := range r.Membership {
		best := 0
		for j, u := range row {
			if u > row[best] {
				best = j
			}
		}
		labels[i] = best
	}
	return labels
}

// FitFCM runs Fuzzy C-Means. The fuzziness exponent m controls boundary
// softness: m→1 approaches K-Means, m=2 is the working point, m>=3 blurs
// heavily. Returns NumericInstabilityError when the membership delta grows
// instead of shrinking through max_iter.
func FitFCM(X [][]float64, k int, opts Options) (*FCMResult, error) {
	if len(X) == 0 {
		return nil, ErrEmptyMatrix
	}
	if k < 1 {
		return nil, ErrInvalidK
	}
	opts = opts.withDefaults()

	reduced := false
	if distinct := distinctRows(X, k); distinct < k {
		k = distinct
		reduced = true
	}

	n := len(X)
	dims := len(X[0])
	m := opts.Fuzziness
	rng := rand.New(rand.NewSource(opts.Seed)) // #nosec G404 - reproducibility, not crypto

	// Random memberships, rows normalized to 1.
	U := make([][]float64, n)
	for i := range U {
		row := make([]float64, k)
		var sum float64
		for j := range row {
			row[j] = rng.Float64() + 1e-9
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
		U[i] = row
	}

	centroids := make([][]float64, k)
	for j := range centroids {
		centroids[j] = make([]float64, dims)
	}

	var prevDelta, firstDelta float64
	rising := 0
	for iter := 1; iter <= opts.MaxIter; iter++ {
		// Centroid update: weighted by U^m.
		for j := 0; j < k; j++ {
			var wsum float64
			num := make([]float64, dims)
			for i := 0; i < n; i++ {
				w := math.Pow(U[i][j], m)
				wsum += w
				for d := 0; d < dims; d++ {
					num[d] += w * X[i][d]
				}
			}
			if wsum == 0 {
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[j][d] = num[d] / wsum
			}
		}

		// Membership update.
		delta := 0.0
		exp := 2.0 / (m - 1.0)
		for i := 0; i < n; i++ {
			dists := make([]float64, k)
			zero := -1
			for j := 0; j < k; j++ {
				dists[j] = Euclidean(X[i], centroids[j])
				if dists[j] == 0 {
					zero = j
					break
				}
			}
			newRow := make([]float64, k)
			if zero >= 0 {
				newRow[zero] = 1.0
			} else {
				for j := 0; j < k; j++ {
					var denom float64
					for l := 0; l < k; l++ {
						denom += math.Pow(dists[j]/dists[l], exp)
					}
					newRow[j] = 1.0 / denom
				}
			}
			for j := 0; j < k; j++ {
				if d := math.Abs(newRow[j] - U[i][j]); d > delta {
					delta = d
				}
			}
			U[i] = newRow
		}

		if iter == 1 {
			firstDelta = delta
		} else if delta > prevDelta {
			rising++
		} else {
			rising = 0
		}
		prevDelta = delta

		if delta < opts.Tolerance {
			normalizeRows(U)
			return &FCMResult{
				K: k, Centroids: centroids, Membership: U,
				Iterations: iter, Converged: true, ReducedK: reduced,
			}, nil
		}
	}

	// Out of iterations. Divergence (delta trending up past its starting
	// point) is fatal for the axis; a merely slow fit is returned as-is.
	if prevDelta > firstDelta || rising >= 5 {
		return nil, NumericInstabilityError{Iterations: opts.MaxIter, Delta: prevDelta}
	}
	normalizeRows(U)
	return &FCMResult{
		K: k, Centroids: centroids, Membership: U,
		Iterations: opts.MaxIter, Converged: false, ReducedK: reduced,
	}, nil
}

// normalizeRows rescales each row to sum exactly to 1, absorbing float
// accumulation error.
func normalizeRows(U [][]float64) {
	for i, row := range U {
		var sum float64
		for _, u := range row {
			sum += u
		}
		if sum == 0 || math.Abs(sum-1) < rowSumEpsilon {
			continue
		}
		for j := range row {
			U[i][j] /= sum
		}
	}
}

// AssignFCM computes the membership row for one new point against fitted
// centroids, without refitting.
func AssignFCM(x []float64, centroids [][]float64, fuzziness float64) []float64 {
	k := len(centroids)
	row := make([]float64, k)
	if k == 0 {
		return row
	}
	if fuzziness <= 1 {
		fuzziness = 2.0
	}
	exp := 2.0 / (fuzziness - 1.0)
	dists := make([]float64, k)
	for j, c := range centroids {
		dists[j] = Euclidean(x, c)
		if dists[j] == 0 {
			row[j] = 1.0
			return row
		}
	}
	for j := 0; j < k; j++ {
		var denom float64
		for l := 0; l < k; l++ {
			denom += math.Pow(dists[j]/dists[l], exp)
		}
		row[j] = 1.0 / denom
	}
	return row
}
