package features

import (
	"math"
	"sort"
)

// Mean ignores NaN entries; returns NaN when nothing remains.
func Mean(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Stdev is the population standard deviation, NaN-aware.
func Stdev(values []float64) float64 {
	m := Mean(values)
	if math.IsNaN(m) {
		return math.NaN()
	}
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		d := v - m
		sum += d * d
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}

// Median returns the middle value, NaN-aware.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Quantile computes the q-th quantile (linear interpolation), NaN-aware.
func Quantile(values []float64, q float64) float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return math.NaN()
	}
	sort.Float64s(clean)
	if len(clean) == 1 {
		return clean[0]
	}
	pos := q * float64(len(clean)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return clean[lo]
	}
	frac := pos - float64(lo)
	return clean[lo]*(1-frac) + clean[hi]*frac
}

// CoefficientOfVariation is stdev/mean, NaN when the mean is zero or fewer
// than two values are present.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	m := Mean(values)
	if math.IsNaN(m) || m == 0 {
		return math.NaN()
	}
	return Stdev(values) / m
}

// Entropy is the Shannon entropy (base 2) of a count distribution.
func Entropy(counts []int) float64 {
	var total int
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
