package cluster

import (
	"math"
)

// KSelectOptions tunes balance-aware cluster-count selection.
type KSelectOptions struct {
	KMin             int
	KMax             int
	AdaptiveRange    bool    // cap KMax at min(sqrt(n)/2, 20, n-1)
	SilhouetteWeight float64 // default 0.4
	BalanceWeight    float64 // default 0.6
}

func (o KSelectOptions) withDefaults() KSelectOptions {
	if o.KMin <= 0 {
		o.KMin = 2
	}
	if o.KMax < o.KMin {
		o.KMax = 6
	}
	if o.SilhouetteWeight == 0 && o.BalanceWeight == 0 {
		o.SilhouetteWeight = 0.4
		o.BalanceWeight = 0.6
	}
	return o
}

// KSelection is the outcome of balance-aware k-selection.
type KSelection struct {
	K          int
	Score      float64
	Silhouette float64
	Balance    float64
	Degenerate bool // all candidates had non-positive silhouette
}

// SelectK picks the cluster count maximizing
// w_sil*silhouette + w_bal*balance over [KMin, KMax], ties to the smaller k.
// Pure silhouette optimization collapses a population into one mega-cluster
// plus noise; weighting balance keeps segments an operator can target. If
// every candidate is non-positive the axis is degenerate and k=1 wins.
func SelectK(X [][]float64, opts KSelectOptions, fit Options) (*KSelection, error) {
	if len(X) == 0 {
		return nil, ErrEmptyMatrix
	}
	opts = opts.withDefaults()
	n := len(X)

	kMax := opts.KMax
	if opts.AdaptiveRange {
		adaptive := int(math.Sqrt(float64(n)) / 2)
		if adaptive < kMax {
			kMax = adaptive
		}
		if kMax > 20 {
			kMax = 20
		}
	}
	if kMax > n-1 {
		kMax = n - 1
	}
	if kMax < opts.KMin {
		return &KSelection{K: 1, Degenerate: true}, nil
	}

	best := &KSelection{K: 1, Score: math.Inf(-1), Degenerate: true}
	for k := opts.KMin; k <= kMax; k++ {
		// Derive the trial seed from k so two runs with the same base seed
		// reproduce identical selections.
		trial := fit
		trial.Seed = fit.Seed + int64(k)
		res, err := FitKMeans(X, k, trial)
		if err != nil {
			return nil, err
		}
		if res.K < 2 {
			continue
		}

		sil := Silhouette(X, res.Labels, res.K)
		if sil <= 0 {
			continue
		}
		bal := BalanceQuality(res.Labels, res.K)
		score := opts.SilhouetteWeight*sil + opts.BalanceWeight*bal

		// Strictly greater keeps the smaller k on ties.
		if best.Degenerate || score > best.Score {
			best = &KSelection{
				K:          res.K,
				Score:      score,
				Silhouette: sil,
				Balance:    bal,
			}
		}
	}
	if best.Degenerate {
		best.Score = 0
	}
	return best, nil
}

// Silhouette computes the mean silhouette coefficient over all points,
// range [-1, 1].
func Silhouette(X [][]float64, labels []int, k int) float64 {
	n := len(X)
	if n == 0 || k < 2 {
		return 0
	}
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}

	var total float64
	var scored int
	for i := 0; i < n; i++ {
		own := labels[i]
		if counts[own] <= 1 {
			continue // silhouette undefined for singleton clusters
		}
		sums := make([]float64, k)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sums[labels[j]] += Euclidean(X[i], X[j])
		}
		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			if avg := sums[c] / float64(counts[c]); avg < b {
				b = avg
			}
		}
		if math.IsInf(b, 1) {
			continue
		}
		denom := math.Max(a, b)
		if denom == 0 {
			continue
		}
		total += (b - a) / denom
		scored++
	}
	if scored == 0 {
		return 0
	}
	return total / float64(scored)
}

// BalanceQuality is 1 - min(1, stdev(sizes)/mean(sizes)): 1.0 when clusters
// are equal-sized, trending to 0 as disparity grows.
func BalanceQuality(labels []int, k int) float64 {
	if k < 1 {
		return 0
	}
	sizes := make([]float64, k)
	for _, l := range labels {
		sizes[l]++
	}
	var sum float64
	for _, s := range sizes {
		sum += s
	}
	mean := sum / float64(k)
	if mean == 0 {
		return 0
	}
	var varSum float64
	for _, s := range sizes {
		d := s - mean
		varSum += d * d
	}
	stdev := math.Sqrt(varSum / float64(k))
	return 1 - math.Min(1, stdev/mean)
}
