package segment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	t.Run("publish replaces the axis wholesale", func(t *testing.T) {
		repo := NewMemoryRepository()
		repo.Publish(&AxisModel{Axis: "monetary_value", RunID: "run-1"})
		repo.Publish(&AxisModel{Axis: "monetary_value", RunID: "run-2"})

		m, err := repo.Get("monetary_value")
		require.NoError(t, err)
		assert.Equal(t, "run-2", m.RunID)
		assert.Len(t, repo.List(), 1)
	})

	t.Run("missing axis is an error", func(t *testing.T) {
		_, err := NewMemoryRepository().Get("purchase_frequency")
		assert.Error(t, err)
	})

	t.Run("concurrent publish and read", func(t *testing.T) {
		repo := NewMemoryRepository()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					repo.Publish(&AxisModel{Axis: "monetary_value"})
					_, _ = repo.Get("monetary_value")
					repo.List()
				}
			}()
		}
		wg.Wait()
	})
}
