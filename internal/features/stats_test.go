package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
	assert.Equal(t, 2.0, Mean([]float64{1, math.NaN(), 3}))
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.True(t, math.IsNaN(Mean([]float64{math.NaN()})))
}

func TestStdev(t *testing.T) {
	assert.Equal(t, 0.0, Stdev([]float64{5, 5, 5}))
	assert.InDelta(t, 2.0, Stdev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.True(t, math.IsNaN(Stdev(nil)))
}

func TestQuantile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, Median(values))
	assert.Equal(t, 1.0, Quantile(values, 0))
	assert.Equal(t, 5.0, Quantile(values, 1))
	assert.Equal(t, 2.0, Quantile(values, 0.25))
	// Interpolates between ranks for even-length inputs.
	assert.Equal(t, 2.5, Median([]float64{1, 2, 3, 4}))
	// NaNs are excluded before ranking.
	assert.Equal(t, 2.0, Median([]float64{1, math.NaN(), 2, 3}))
	assert.True(t, math.IsNaN(Median(nil)))
	assert.Equal(t, 9.0, Median([]float64{9}))
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.InDelta(t, 0.0, CoefficientOfVariation([]float64{3, 3, 3}), 1e-9)
	cv := CoefficientOfVariation([]float64{10, 20, 30})
	assert.InDelta(t, Stdev([]float64{10, 20, 30})/20, cv, 1e-9)
	assert.True(t, math.IsNaN(CoefficientOfVariation([]float64{42})))
	assert.True(t, math.IsNaN(CoefficientOfVariation([]float64{-1, 1})), "zero mean")
}

func TestEntropy(t *testing.T) {
	assert.Equal(t, 0.0, Entropy(nil))
	assert.Equal(t, 0.0, Entropy([]int{10}))
	assert.InDelta(t, 1.0, Entropy([]int{5, 5}), 1e-9)
	assert.InDelta(t, 2.0, Entropy([]int{1, 1, 1, 1}), 1e-9)
	// Zero counts contribute nothing.
	assert.InDelta(t, 1.0, Entropy([]int{5, 5, 0}), 1e-9)
}
