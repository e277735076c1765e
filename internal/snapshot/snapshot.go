// Package snapshot persists immutable, timestamped copies of entity
// profiles and serves them back for drift analysis. One snapshot exists per
// (entity_id, snapshot_date, granularity); duplicate creation attempts are
// idempotent by contract.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FairForge/thumbprint/internal/profile"
	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Snapshot granularities.
const (
	GranularityDaily     = "daily"
	GranularityWeekly    = "weekly"
	GranularityMonthly   = "monthly"
	GranularityQuarterly = "quarterly"
	GranularityYearly    = "yearly"
)

// Granularities lists every supported granularity.
func Granularities() []string {
	return []string{
		GranularityDaily,
		GranularityWeekly,
		GranularityMonthly,
		GranularityQuarterly,
		GranularityYearly,
	}
}

// ValidGranularity reports whether g is a supported granularity.
func ValidGranularity(g string) bool {
	for _, v := range Granularities() {
		if g == v {
			return true
		}
	}
	return false
}

// Snapshot is a frozen entity profile. Never mutated after creation;
// removed only by retention pruning.
type Snapshot struct {
	ID           uuid.UUID              `json:"snapshot_id"`
	EntityID     string                 `json:"entity_id"`
	SnapshotDate time.Time              `json:"snapshot_date"` // date component only
	Granularity  string                 `json:"granularity"`
	Profile      *profile.EntityProfile `json:"profile"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Repository stores and retrieves snapshots. Create is an upsert keyed on
// (entity_id, snapshot_date, granularity): a duplicate attempt returns the
// existing snapshot's ID without writing a second row.
type Repository interface {
	Create(ctx context.Context, entityID string, date time.Time, granularity string, p *profile.EntityProfile) (uuid.UUID, error)
	GetHistory(ctx context.Context, entityID string, from, to time.Time, granularity string) ([]*Snapshot, error)
	Latest(ctx context.Context, entityID, granularity string, limit int) ([]*Snapshot, error)
	Prune(ctx context.Context, policy RetentionPolicy) (int64, error)
	Close() error
}

// RetentionPolicy holds per-granularity retention windows. A zero window
// means keep forever.
type RetentionPolicy struct {
	Windows map[string]time.Duration
	Now     func() time.Time // defaults to time.Now
}

// Cutoff returns the oldest snapshot date retained for a granularity, and
// false when the granularity has no window.
func (p RetentionPolicy) Cutoff(granularity string) (time.Time, bool) {
	window, ok := p.Windows[granularity]
	if !ok || window <= 0 {
		return time.Time{}, false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().Add(-window), true
}

// DateOnly truncates a timestamp to its UTC date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// payload is the persisted body of a snapshot: the full per-axis fuzzy
// membership maps plus derived metrics, JSON-encoded and snappy-compressed
// into a single column.
type payload struct {
	Axes           map[string]profile.AxisProfile `json:"per_axis"`
	DerivedMetrics map[string]float64             `json:"derived_metrics"`
}

func encodePayload(p *profile.EntityProfile) ([]byte, error) {
	raw, err := json.Marshal(payload{
		Axes:           p.Axes,
		DerivedMetrics: p.DerivedMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot payload: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodePayload(entityID string, data []byte) (*profile.EntityProfile, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot payload: %w", err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	return &profile.EntityProfile{
		EntityID:       entityID,
		Axes:           p.Axes,
		DerivedMetrics: p.DerivedMetrics,
	}, nil
}
