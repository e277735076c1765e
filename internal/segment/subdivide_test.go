package segment

import (
	"context"
	"math/rand"
	"testing"

	"github.com/FairForge/thumbprint/internal/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// blob appends n points around (cx, cy) with the given spread.
func blob(rng *rand.Rand, X [][]float64, n int, cx, cy, spread float64) [][]float64 {
	for i := 0; i < n; i++ {
		X = append(X, []float64{cx + rng.NormFloat64()*spread, cy + rng.NormFloat64()*spread})
	}
	return X
}

// centroidOf averages the rows at the given indices.
func centroidOf(X [][]float64, members []int) []float64 {
	c := make([]float64, len(X[0]))
	for _, i := range members {
		for d, v := range X[i] {
			c[d] += v / float64(len(members))
		}
	}
	return c
}

func indices(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func TestSubdivider_Apply(t *testing.T) {
	t.Run("splits a dominant diverse segment", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1)) // #nosec G404 - test data
		var X [][]float64
		// One "segment" that is really two distant sub-populations (61%),
		// plus a tight minority segment.
		X = blob(rng, X, 61, 0, 0, 0.4)
		X = blob(rng, X, 61, 8, 8, 0.4)
		X = blob(rng, X, 78, 30, 30, 0.4)

		bigMembers := indices(0, 122)
		smallMembers := indices(122, 200)
		segs := []Segment{
			{ID: "0", Label: "segment-0", Centroid: centroidOf(X, bigMembers), Count: 122, PopulationPct: 61},
			{ID: "1", Label: "segment-1", Centroid: centroidOf(X, smallMembers), Count: 78, PopulationPct: 39},
		}

		sub := NewSubdivider(SubdivisionOptions{
			VarianceThreshold: 0.5,
			MinSize:           100,
			MinChildSize:      30,
		}, cluster.Options{Seed: 1}, zap.NewNop())

		leaves, members := sub.Apply(context.Background(), segs, [][]int{bigMembers, smallMembers}, X)
		require.Greater(t, len(leaves), 2)

		// The 61% segment was replaced; the largest leaf is strictly smaller.
		var maxShare float64
		var totalPct float64
		totalMembers := 0
		for i, leaf := range leaves {
			if leaf.PopulationPct > maxShare {
				maxShare = leaf.PopulationPct
			}
			totalPct += leaf.PopulationPct
			totalMembers += len(members[i])
		}
		assert.Less(t, maxShare, 61.0)
		assert.InDelta(t, 100.0, totalPct, 1e-3)
		assert.Equal(t, 200, totalMembers)

		// Children carry dotted path IDs and a parent reference.
		foundChild := false
		for _, leaf := range leaves {
			if leaf.ParentID == "0" {
				foundChild = true
				assert.Equal(t, 1, leaf.Depth)
				assert.Contains(t, leaf.ID, "0.")
			}
		}
		assert.True(t, foundChild)
	})

	t.Run("never increases the maximum population share", func(t *testing.T) {
		rng := rand.New(rand.NewSource(2)) // #nosec G404 - test data
		var X [][]float64
		X = blob(rng, X, 130, 0, 0, 3.0)
		X = blob(rng, X, 70, 40, 40, 0.5)

		big := indices(0, 130)
		small := indices(130, 200)
		segs := []Segment{
			{ID: "0", Label: "segment-0", Centroid: centroidOf(X, big), Count: 130, PopulationPct: 65},
			{ID: "1", Label: "segment-1", Centroid: centroidOf(X, small), Count: 70, PopulationPct: 35},
		}

		sub := NewSubdivider(SubdivisionOptions{
			VarianceThreshold: 1.0,
			MinSize:           100,
			MinChildSize:      30,
		}, cluster.Options{Seed: 3}, zap.NewNop())

		leaves, _ := sub.Apply(context.Background(), segs, [][]int{big, small}, X)
		for _, leaf := range leaves {
			assert.LessOrEqual(t, leaf.PopulationPct, 65.0)
		}
	})

	t.Run("small segments are never subdivided", func(t *testing.T) {
		rng := rand.New(rand.NewSource(4)) // #nosec G404 - test data
		var X [][]float64
		// Diverse but tiny: below the minimum subdivision size.
		X = blob(rng, X, 30, 0, 0, 0.4)
		X = blob(rng, X, 30, 20, 20, 0.4)

		members := indices(0, 60)
		segs := []Segment{{ID: "0", Label: "segment-0", Centroid: centroidOf(X, members), Count: 60, PopulationPct: 100}}

		sub := NewSubdivider(SubdivisionOptions{
			VarianceThreshold: 0.1,
			MinSize:           100,
		}, cluster.Options{Seed: 1}, zap.NewNop())

		leaves, _ := sub.Apply(context.Background(), segs, [][]int{members}, X)
		require.Len(t, leaves, 1)
		assert.Equal(t, "0", leaves[0].ID)
	})

	t.Run("discards splits that would produce tiny children", func(t *testing.T) {
		rng := rand.New(rand.NewSource(5)) // #nosec G404 - test data
		var X [][]float64
		// 140 points in one mass plus a 10-point satellite: any 2-way split
		// yields a child under the floor.
		X = blob(rng, X, 140, 0, 0, 0.5)
		X = blob(rng, X, 10, 15, 15, 0.2)

		members := indices(0, 150)
		segs := []Segment{{ID: "0", Label: "segment-0", Centroid: centroidOf(X, members), Count: 150, PopulationPct: 100}}

		sub := NewSubdivider(SubdivisionOptions{
			VarianceThreshold: 0.5,
			MinSize:           100,
			MinChildSize:      30,
		}, cluster.Options{Seed: 1}, zap.NewNop())

		leaves, _ := sub.Apply(context.Background(), segs, [][]int{members}, X)
		require.Len(t, leaves, 1)
		assert.Equal(t, "0", leaves[0].ID)
	})

	t.Run("respects the depth limit", func(t *testing.T) {
		rng := rand.New(rand.NewSource(6)) // #nosec G404 - test data
		var X [][]float64
		X = blob(rng, X, 400, 0, 0, 10.0)

		members := indices(0, 400)
		segs := []Segment{{ID: "0", Label: "segment-0", Centroid: centroidOf(X, members), Count: 400, PopulationPct: 100}}

		sub := NewSubdivider(SubdivisionOptions{
			MaxDepth:          2,
			VarianceThreshold: 0.01, // always triggers
			MinSize:           10,
			MinChildSize:      2,
		}, cluster.Options{Seed: 1}, zap.NewNop())

		leaves, _ := sub.Apply(context.Background(), segs, [][]int{members}, X)
		for _, leaf := range leaves {
			assert.LessOrEqual(t, leaf.Depth, 2)
		}
	})
}
