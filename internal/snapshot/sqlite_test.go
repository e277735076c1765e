package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "snapshots.db"), 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	day := func(d int) time.Time {
		return time.Date(2025, 3, d, 9, 0, 0, 0, time.UTC)
	}

	t.Run("create and read back", func(t *testing.T) {
		repo := newSQLiteRepo(t)
		id, err := repo.Create(ctx, "cust-1", day(10), GranularityDaily, testProfile("cust-1"))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		history, err := repo.GetHistory(ctx, "cust-1", day(1), day(31), GranularityDaily)
		require.NoError(t, err)
		require.Len(t, history, 1)

		got := history[0]
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "cust-1", got.EntityID)
		assert.Equal(t, DateOnly(day(10)), got.SnapshotDate)
		assert.Equal(t, GranularityDaily, got.Granularity)
		require.NotNil(t, got.Profile)
		assert.InDelta(t, 0.70, got.Profile.Axes["monetary_value"].Membership["1"], 1e-9)
		assert.Equal(t, 12.0, got.Profile.DerivedMetrics["order_count"])
	})

	t.Run("duplicate create is idempotent", func(t *testing.T) {
		repo := newSQLiteRepo(t)
		first, err := repo.Create(ctx, "cust-1", day(10), GranularityDaily, testProfile("cust-1"))
		require.NoError(t, err)
		second, err := repo.Create(ctx, "cust-1", day(10), GranularityDaily, testProfile("cust-1"))
		require.NoError(t, err)
		assert.Equal(t, first, second)

		history, err := repo.GetHistory(ctx, "cust-1", day(1), day(31), "")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("rejects unknown granularities", func(t *testing.T) {
		repo := newSQLiteRepo(t)
		_, err := repo.Create(ctx, "cust-1", day(10), "hourly", testProfile("cust-1"))
		assert.Error(t, err)
	})

	t.Run("latest is newest first and capped", func(t *testing.T) {
		repo := newSQLiteRepo(t)
		for _, d := range []int{3, 17, 9} {
			_, err := repo.Create(ctx, "cust-1", day(d), GranularityDaily, testProfile("cust-1"))
			require.NoError(t, err)
		}
		latest, err := repo.Latest(ctx, "cust-1", GranularityDaily, 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, DateOnly(day(17)), latest[0].SnapshotDate)
		assert.Equal(t, DateOnly(day(9)), latest[1].SnapshotDate)
	})

	t.Run("history filters by granularity and range", func(t *testing.T) {
		repo := newSQLiteRepo(t)
		_, err := repo.Create(ctx, "cust-1", day(5), GranularityDaily, testProfile("cust-1"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, "cust-1", day(5), GranularityWeekly, testProfile("cust-1"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, "cust-1", day(25), GranularityDaily, testProfile("cust-1"))
		require.NoError(t, err)

		weekly, err := repo.GetHistory(ctx, "cust-1", day(1), day(31), GranularityWeekly)
		require.NoError(t, err)
		assert.Len(t, weekly, 1)

		bounded, err := repo.GetHistory(ctx, "cust-1", day(1), day(10), "")
		require.NoError(t, err)
		assert.Len(t, bounded, 2)
	})

	t.Run("prune honors per-granularity windows", func(t *testing.T) {
		repo := newSQLiteRepo(t)
		_, err := repo.Create(ctx, "cust-1", day(1), GranularityDaily, testProfile("cust-1"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, "cust-1", day(27), GranularityDaily, testProfile("cust-1"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, "cust-1", day(1), GranularityMonthly, testProfile("cust-1"))
		require.NoError(t, err)

		policy := RetentionPolicy{
			Windows: map[string]time.Duration{GranularityDaily: 7 * 24 * time.Hour},
			Now:     func() time.Time { return day(28) },
		}
		removed, err := repo.Prune(ctx, policy)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		remaining, err := repo.GetHistory(ctx, "cust-1", day(1), day(31), "")
		require.NoError(t, err)
		assert.Len(t, remaining, 2)
	})
}
