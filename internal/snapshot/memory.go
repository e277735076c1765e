package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/thumbprint/internal/profile"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process snapshot store used in tests and
// single-shot batch runs that never persist.
type MemoryRepository struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot // keyed by entity|date|granularity
	now       func() time.Time
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		snapshots: make(map[string]*Snapshot),
		now:       time.Now,
	}
}

func key(entityID string, date time.Time, granularity string) string {
	return entityID + "|" + DateOnly(date).Format("2006-01-02") + "|" + granularity
}

// Create stores a snapshot, or returns the existing ID for a duplicate.
func (r *MemoryRepository) Create(ctx context.Context, entityID string, date time.Time, granularity string, p *profile.EntityProfile) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	// Round-trip through the codec so stored state is frozen, not shared
	// with the live profile.
	data, err := encodePayload(p)
	if err != nil {
		return uuid.Nil, err
	}
	frozen, err := decodePayload(entityID, data)
	if err != nil {
		return uuid.Nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(entityID, date, granularity)
	if existing, ok := r.snapshots[k]; ok {
		return existing.ID, nil
	}
	snap := &Snapshot{
		ID:           uuid.New(),
		EntityID:     entityID,
		SnapshotDate: DateOnly(date),
		Granularity:  granularity,
		Profile:      frozen,
		CreatedAt:    r.now(),
	}
	r.snapshots[k] = snap
	return snap.ID, nil
}

// GetHistory returns snapshots in [from, to] ordered by date ascending.
// Empty granularity matches all granularities.
func (r *MemoryRepository) GetHistory(ctx context.Context, entityID string, from, to time.Time, granularity string) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Snapshot
	for _, s := range r.snapshots {
		if s.EntityID != entityID {
			continue
		}
		if granularity != "" && s.Granularity != granularity {
			continue
		}
		if s.SnapshotDate.Before(DateOnly(from)) || s.SnapshotDate.After(DateOnly(to)) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SnapshotDate.Before(out[j].SnapshotDate)
	})
	return out, nil
}

// Latest returns up to limit newest snapshots, newest first.
func (r *MemoryRepository) Latest(ctx context.Context, entityID, granularity string, limit int) ([]*Snapshot, error) {
	all, err := r.GetHistory(ctx, entityID, time.Time{}, r.now().AddDate(100, 0, 0), granularity)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].SnapshotDate.After(all[j].SnapshotDate)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Prune removes snapshots older than their granularity's window.
func (r *MemoryRepository) Prune(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for k, s := range r.snapshots {
		cutoff, ok := policy.Cutoff(s.Granularity)
		if !ok {
			continue
		}
		if s.SnapshotDate.Before(DateOnly(cutoff)) {
			delete(r.snapshots, k)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the memory store.
func (r *MemoryRepository) Close() error { return nil }
