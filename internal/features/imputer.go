package features

import "math"

// Imputer fills undefined (NaN) features with per-column population means,
// fitted once per calibration run. Mean imputation keeps single-order
// customers in the middle of a distribution instead of collapsing them onto
// its low end the way zero-fill would.
type Imputer struct {
	Means []float64 `json:"means"`
}

// FitImputer computes column means over the defined entries of X.
func FitImputer(X Matrix) *Imputer {
	if len(X) == 0 {
		return &Imputer{}
	}
	cols := len(X[0])
	means := make([]float64, cols)
	for j := 0; j < cols; j++ {
		col := make([]float64, 0, len(X))
		for _, row := range X {
			col = append(col, row[j])
		}
		m := Mean(col)
		if math.IsNaN(m) {
			m = 0 // whole column undefined: nothing better than zero
		}
		means[j] = m
	}
	return &Imputer{Means: means}
}

// Apply returns a copy of X with NaN entries replaced by column means.
func (im *Imputer) Apply(X Matrix) Matrix {
	out := make(Matrix, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) && j < len(im.Means) {
				r[j] = im.Means[j]
			} else {
				r[j] = v
			}
		}
		out[i] = r
	}
	return out
}
