// Package cluster implements the hard (K-Means) and soft (Fuzzy C-Means)
// clustering fits plus balance-aware selection of the cluster count. All
// fits are seeded and deterministic for a given input matrix.
package cluster

import (
	"math"
	"math/rand"
)

// Options controls a single clustering fit.
type Options struct {
	Seed      int64
	Restarts  int     // K-Means restarts, default 5
	MaxIter   int     // default 150
	Tolerance float64 // default 1e-5
	Fuzziness float64 // FCM exponent m, default 2.0
}

func (o Options) withDefaults() Options {
	if o.Restarts <= 0 {
		o.Restarts = 5
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 150
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-5
	}
	if o.Fuzziness <= 1 {
		o.Fuzziness = 2.0
	}
	return o
}

// KMeansResult holds a fitted hard clustering.
type KMeansResult struct {
	K         int
	Centroids [][]float64
	Labels    []int
	Inertia   float64
	ReducedK  bool // k was lowered to the number of distinct points
}

// FitKMeans runs Lloyd's algorithm with k-means++ initialization and a fixed
// number of restarts, keeping the lowest-inertia fit.
func FitKMeans(X [][]float64, k int, opts Options) (*KMeansResult, error) {
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

	rng := rand.New(rand.NewSource(opts.Seed)) // #nosec G404 - reproducibility, not crypto

	best := &KMeansResult{Inertia: math.Inf(1)}
	for r := 0; r < opts.Restarts; r++ {
		centroids := initPlusPlus(X, k, rng)
		labels := make([]int, len(X))
		var inertia float64

		for iter := 0; iter < opts.MaxIter; iter++ {
			// Assign
			inertia = 0
			moved := false
			for i, x := range X {
				j, d := nearestCentroid(x, centroids)
				if labels[i] != j {
					labels[i] = j
					moved = true
				}
				inertia += d * d
			}

			// Update
			dims := len(X[0])
			sums := make([][]float64, k)
			counts := make([]int, k)
			for j := range sums {
				sums[j] = make([]float64, dims)
			}
			for i, x := range X {
				j := labels[i]
				counts[j]++
				for d := range x {
					sums[j][d] += x[d]
				}
			}
			for j := range centroids {
				if counts[j] == 0 {
					// Re-seed an emptied cluster from a random point.
					centroids[j] = append([]float64(nil), X[rng.Intn(len(X))]...)
					continue
				}
				for d := range sums[j] {
					centroids[j][d] = sums[j][d] / float64(counts[j])
				}
			}

			if !moved && iter > 0 {
				break
			}
		}

		if inertia < best.Inertia {
			best = &KMeansResult{
				K:         k,
				Centroids: centroids,
				Labels:    labels,
				Inertia:   inertia,
				ReducedK:  reduced,
			}
		}
	}
	return best, nil
}

// initPlusPlus seeds centroids with k-means++: each subsequent centroid is
// drawn proportional to squared distance from the nearest existing one.
func initPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := X[rng.Intn(len(X))]
	centroids = append(centroids, append([]float64(nil), first...))

	dists := make([]float64, len(X))
	for len(centroids) < k {
		var total float64
		for i, x := range X {
			_, d := nearestCentroid(x, centroids)
			dists[i] = d * d
			total += dists[i]
		}
		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, append([]float64(nil), X[rng.Intn(len(X))]...))
			continue
		}
		target := rng.Float64() * total
		var cum float64
		idx := len(X) - 1
		for i, d := range dists {
			cum += d
			if cum >= target {
				idx = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), X[idx]...))
	}
	return centroids
}
