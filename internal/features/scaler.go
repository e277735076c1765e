package features

import "math"

// RobustScaler normalizes features by median and interquartile range, with
// optional winsorization at the 99th percentile to bound outlier influence.
// Fitted parameters are persisted with the axis model so future entities can
// be assigned without refitting.
type RobustScaler struct {
	Medians   []float64 `json:"medians"`
	IQRs      []float64 `json:"iqrs"`
	P99s      []float64 `json:"p99s"`
	Winsorize bool      `json:"winsorize"`
}

// FitScaler computes per-column medians, IQRs and 99th percentiles.
func FitScaler(X Matrix, winsorize bool) *RobustScaler {
	s := &RobustScaler{Winsorize: winsorize}
	if len(X) == 0 {
		return s
	}
	cols := len(X[0])
	s.Medians = make([]float64, cols)
	s.IQRs = make([]float64, cols)
	s.P99s = make([]float64, cols)
	for j := 0; j < cols; j++ {
		col := make([]float64, 0, len(X))
		for _, row := range X {
			col = append(col, row[j])
		}
		s.Medians[j] = Quantile(col, 0.5)
		iqr := Quantile(col, 0.75) - Quantile(col, 0.25)
		if iqr == 0 || math.IsNaN(iqr) {
			iqr = 1 // constant column: pass values through centered
		}
		s.IQRs[j] = iqr
		s.P99s[j] = Quantile(col, 0.99)
	}
	return s
}

// Transform scales a matrix with the fitted parameters.
func (s *RobustScaler) Transform(X Matrix) Matrix {
	out := make(Matrix, len(X))
	for i, row := range X {
		out[i] = s.TransformVector(row)
	}
	return out
}

// TransformVector scales one vector with the fitted parameters.
func (s *RobustScaler) TransformVector(v Vector) Vector {
	out := make(Vector, len(v))
	for j, x := range v {
		if j >= len(s.Medians) {
			out[j] = x
			continue
		}
		if s.Winsorize && !math.IsNaN(s.P99s[j]) && x > s.P99s[j] {
			x = s.P99s[j]
		}
		out[j] = (x - s.Medians[j]) / s.IQRs[j]
	}
	return out
}
