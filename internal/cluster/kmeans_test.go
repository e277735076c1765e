package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBlobs builds two well-separated gaussian-ish blobs of the given sizes.
func twoBlobs(t *testing.T, nA, nB int, seed int64) [][]float64 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 - test data
	X := make([][]float64, 0, nA+nB)
	for i := 0; i < nA; i++ {
		X = append(X, []float64{rng.NormFloat64() * 0.3, rng.NormFloat64() * 0.3})
	}
	for i := 0; i < nB; i++ {
		X = append(X, []float64{10 + rng.NormFloat64()*0.3, 10 + rng.NormFloat64()*0.3})
	}
	return X
}

func TestFitKMeans(t *testing.T) {
	t.Run("separates two obvious clusters", func(t *testing.T) {
		X := twoBlobs(t, 30, 30, 7)

		res, err := FitKMeans(X, 2, Options{Seed: 1})
		require.NoError(t, err)
		require.Equal(t, 2, res.K)
		require.Len(t, res.Centroids, 2)

		// All members of blob A share a label, disjoint from blob B.
		firstLabel := res.Labels[0]
		for i := 0; i < 30; i++ {
			assert.Equal(t, firstLabel, res.Labels[i])
		}
		for i := 30; i < 60; i++ {
			assert.NotEqual(t, firstLabel, res.Labels[i])
		}
	})

	t.Run("is deterministic for a fixed seed", func(t *testing.T) {
		X := twoBlobs(t, 25, 25, 11)

		a, err := FitKMeans(X, 3, Options{Seed: 42})
		require.NoError(t, err)
		b, err := FitKMeans(X, 3, Options{Seed: 42})
		require.NoError(t, err)

		assert.Equal(t, a.Labels, b.Labels)
		assert.Equal(t, a.Centroids, b.Centroids)
		assert.Equal(t, a.Inertia, b.Inertia)
	})

	t.Run("reduces k below distinct point count", func(t *testing.T) {
		X := [][]float64{{1, 1}, {1, 1}, {2, 2}, {2, 2}}

		res, err := FitKMeans(X, 4, Options{Seed: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, res.K)
		assert.True(t, res.ReducedK)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := FitKMeans(nil, 2, Options{})
		assert.ErrorIs(t, err, ErrEmptyMatrix)
	})

	t.Run("rejects invalid k", func(t *testing.T) {
		_, err := FitKMeans([][]float64{{1}}, 0, Options{})
		assert.ErrorIs(t, err, ErrInvalidK)
	})
}
