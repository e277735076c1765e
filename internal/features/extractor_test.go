package features

import (
	"math"
	"testing"
	"time"

	"github.com/FairForge/thumbprint/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// history builds a sorted history with evenly spaced events.
func history(entityID string, n int, gapDays int, amount float64, category string) *events.History {
	h := &events.History{EntityID: entityID}
	start := asOf.AddDate(0, 0, -gapDays*n)
	for i := 0; i < n; i++ {
		h.Events = append(h.Events, events.Event{
			EntityID:  entityID,
			Timestamp: start.AddDate(0, 0, i*gapDays),
			Amount:    amount,
			Category:  category,
		})
	}
	return h
}

func TestExtractor_Extract(t *testing.T) {
	ex := NewExtractor(asOf)

	t.Run("is deterministic for identical histories", func(t *testing.T) {
		h := history("cust-1", 12, 14, 49.90, "books")
		for _, axis := range Axes() {
			a, err := ex.Extract(axis, h)
			require.NoError(t, err)
			b, err := ex.Extract(axis, h)
			require.NoError(t, err)
			assert.Equal(t, a, b, axis)
		}
	})

	t.Run("rejects unknown axes", func(t *testing.T) {
		_, err := ex.Extract("loyalty", history("cust-1", 3, 7, 10, "books"))
		assert.Error(t, err)
	})

	t.Run("purchase frequency", func(t *testing.T) {
		h := history("cust-1", 10, 30, 25, "books")
		v, err := ex.Extract(AxisPurchaseFrequency, h)
		require.NoError(t, err)
		require.Len(t, v, 3)
		assert.InDelta(t, 1.0, v[0], 0.1)  // roughly monthly
		assert.InDelta(t, 300, v[1], 1)    // days since first order
		assert.InDelta(t, 0.0, v[2], 1e-9) // evenly spaced: zero gap variation
	})

	t.Run("monetary value", func(t *testing.T) {
		h := &events.History{EntityID: "cust-2", Events: []events.Event{
			{EntityID: "cust-2", Timestamp: asOf.AddDate(0, 0, -60), Amount: 10},
			{EntityID: "cust-2", Timestamp: asOf.AddDate(0, 0, -30), Amount: 20},
			{EntityID: "cust-2", Timestamp: asOf.AddDate(0, 0, -10), Amount: 60},
		}}
		v, err := ex.Extract(AxisMonetaryValue, h)
		require.NoError(t, err)
		assert.Equal(t, Vector{90, 30, 60}, v)
	})

	t.Run("category breadth", func(t *testing.T) {
		h := &events.History{EntityID: "cust-3"}
		for i, cat := range []string{"books", "books", "games", "garden"} {
			h.Events = append(h.Events, events.Event{
				Timestamp: asOf.AddDate(0, 0, -100+i*10), Amount: 5, Category: cat,
			})
		}
		v, err := ex.Extract(AxisCategoryBreadth, h)
		require.NoError(t, err)
		assert.Equal(t, 3.0, v[0])
		assert.InDelta(t, 1.5, v[1], 1e-9) // entropy of {2,1,1}
		assert.Equal(t, 0.5, v[2])         // top share: books 2/4
	})

	t.Run("recency and engagement", func(t *testing.T) {
		h := history("cust-4", 6, 20, 30, "books")
		v, err := ex.Extract(AxisRecencyEngagement, h)
		require.NoError(t, err)
		assert.InDelta(t, 20, v[0], 1) // last event one gap back
		assert.Equal(t, 4.0, v[1])     // events within 90 days at 20-day spacing
		assert.Greater(t, v[2], 0.0)
		assert.LessOrEqual(t, v[2], 1.0)
	})

	t.Run("price sensitivity low ticket share", func(t *testing.T) {
		h := &events.History{EntityID: "cust-5"}
		for i, amt := range []float64{100, 100, 100, 10} {
			h.Events = append(h.Events, events.Event{
				Timestamp: asOf.AddDate(0, 0, -80+i*10), Amount: amt,
			})
		}
		v, err := ex.Extract(AxisPriceSensitivity, h)
		require.NoError(t, err)
		assert.InDelta(t, 77.5, v[0], 1e-9)
		assert.Equal(t, 0.25, v[2]) // one order below half the average ticket
	})

	t.Run("undefined features are NaN, not zero", func(t *testing.T) {
		single := history("cust-6", 1, 0, 42, "books")
		v, err := ex.Extract(AxisPurchaseFrequency, single)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(v[0]))
		assert.True(t, math.IsNaN(v[2]), "gap variation is undefined for one order")

		empty := &events.History{EntityID: "cust-7"}
		v, err = ex.Extract(AxisMonetaryValue, empty)
		require.NoError(t, err)
		for _, x := range v {
			assert.True(t, math.IsNaN(x))
		}
	})
}

func TestExtractor_ExtractMatrix(t *testing.T) {
	ex := NewExtractor(asOf)
	hs := []*events.History{
		history("a", 5, 10, 20, "books"),
		history("b", 2, 45, 80, "games"),
	}
	X, err := ex.ExtractMatrix(AxisMonetaryValue, hs)
	require.NoError(t, err)
	require.Len(t, X, 2)
	assert.Equal(t, 100.0, X[0][0])
	assert.Equal(t, 160.0, X[1][0])
}

func TestFeatureNames(t *testing.T) {
	for _, axis := range Axes() {
		names, err := FeatureNames(axis)
		require.NoError(t, err)
		assert.Len(t, names, 3, axis)
	}
	_, err := FeatureNames("nope")
	assert.Error(t, err)
}
