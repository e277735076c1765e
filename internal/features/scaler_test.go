package features

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobustScaler(t *testing.T) {
	t.Run("centers on the median and scales by IQR", func(t *testing.T) {
		X := Matrix{{1}, {2}, {3}, {4}, {5}}
		s := FitScaler(X, false)
		require.Len(t, s.Medians, 1)
		assert.Equal(t, 3.0, s.Medians[0])
		assert.Equal(t, 2.0, s.IQRs[0])

		out := s.Transform(X)
		assert.Equal(t, 0.0, out[2][0])
		assert.Equal(t, -1.0, out[0][0])
		assert.Equal(t, 1.0, out[4][0])
	})

	t.Run("constant columns pass through centered", func(t *testing.T) {
		X := Matrix{{7, 1}, {7, 2}, {7, 3}}
		s := FitScaler(X, false)
		out := s.Transform(X)
		for i := range out {
			assert.Equal(t, 0.0, out[i][0], "row %d", i)
		}
	})

	t.Run("winsorizes extremes at p99", func(t *testing.T) {
		X := make(Matrix, 0, 101)
		for i := 0; i < 100; i++ {
			X = append(X, []float64{float64(i)})
		}
		X = append(X, []float64{1e6})

		soft := FitScaler(X, true)
		hard := FitScaler(X, false)
		assert.Less(t, soft.TransformVector(Vector{1e6})[0], hard.TransformVector(Vector{1e6})[0])
		// Values below p99 are untouched by winsorization.
		assert.Equal(t, hard.TransformVector(Vector{50})[0], soft.TransformVector(Vector{50})[0])
	})

	t.Run("fitted parameters survive a JSON round trip", func(t *testing.T) {
		s := FitScaler(Matrix{{1, 10}, {2, 20}, {3, 30}, {4, 40}}, true)
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var restored RobustScaler
		require.NoError(t, json.Unmarshal(data, &restored))
		assert.Equal(t, s.TransformVector(Vector{2.5, 25}), restored.TransformVector(Vector{2.5, 25}))
	})
}

func TestImputer(t *testing.T) {
	t.Run("fills NaN with the column mean", func(t *testing.T) {
		X := Matrix{
			{1, math.NaN()},
			{3, 10},
			{math.NaN(), 20},
		}
		im := FitImputer(X)
		require.Len(t, im.Means, 2)
		assert.Equal(t, 2.0, im.Means[0])
		assert.Equal(t, 15.0, im.Means[1])

		out := im.Apply(X)
		assert.Equal(t, 2.0, out[2][0])
		assert.Equal(t, 15.0, out[0][1])
		// Defined values are untouched, and the input is not mutated.
		assert.Equal(t, 3.0, out[1][0])
		assert.True(t, math.IsNaN(X[0][1]))
	})

	t.Run("fully undefined column falls back to zero", func(t *testing.T) {
		X := Matrix{{math.NaN()}, {math.NaN()}}
		im := FitImputer(X)
		out := im.Apply(X)
		assert.Equal(t, 0.0, out[0][0])
		assert.Equal(t, 0.0, out[1][0])
	})

	t.Run("empty matrix", func(t *testing.T) {
		im := FitImputer(nil)
		assert.Empty(t, im.Apply(nil))
	})
}
