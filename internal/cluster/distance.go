package cluster

import "math"

// Euclidean returns the L2 distance between two equal-length vectors.
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// nearestCentroid returns the index and distance of the closest centroid.
func nearestCentroid(x []float64, centroids [][]float64) (int, float64) {
	best := 0
	bestDist := math.Inf(1)
	for j, c := range centroids {
		if d := squaredDistance(x, c); d < bestDist {
			best = j
			bestDist = d
		}
	}
	return best, math.Sqrt(bestDist)
}

// distinctRows counts unique rows, stopping once limit is reached.
func distinctRows(X [][]float64, limit int) int {
	var distinct [][]float64
	for _, row := range X {
		found := false
		for _, d := range distinct {
			if equalRows(row, d) {
				found = true
				break
			}
		}
		if !found {
			distinct = append(distinct, row)
			if len(distinct) >= limit {
				return len(distinct)
			}
		}
	}
	return len(distinct)
}

func equalRows(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
