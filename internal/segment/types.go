// Package segment models discovered behavioral segments, their recursive
// subdivision, and the repository serving fitted axis models.
package segment

import (
	"fmt"
	"time"

	"github.com/FairForge/thumbprint/internal/features"
)

// Segment is one discovered cluster on one axis. Subdivided segments carry
// a dotted path label ("2.0") and a parent reference; top-level segments
// have depth 0 and no parent.
type Segment struct {
	ID            string    `json:"id"` // dotted path, unique within the axis
	Label         string    `json:"label"`
	Centroid      []float64 `json:"centroid"` // in normalized feature space
	Count         int       `json:"count"`
	PopulationPct float64   `json:"population_pct"` // over the full axis population
	Depth         int       `json:"depth"`
	ParentID      string    `json:"parent_id,omitempty"`
}

// AxisModel is the published state of one behavioral axis after a
// calibration run. Models are replaced wholesale on recalibration, never
// mutated, so concurrent readers always see a complete axis.
type AxisModel struct {
	Axis         string                 `json:"axis"`
	RunID        string                 `json:"run_id"`
	Mode         string                 `json:"mode"` // "hard" or "fuzzy"
	Fuzziness    float64                `json:"fuzziness"`
	Segments     []Segment              `json:"segments"`
	Scaler       *features.RobustScaler `json:"scaler"`
	Imputer      *features.Imputer      `json:"imputer"`
	Degenerate   bool                   `json:"degenerate"` // axis fell back to a single segment
	CalibratedAt time.Time              `json:"calibrated_at"`
}

// Centroids returns the segment centroids in segment order.
func (m *AxisModel) Centroids() [][]float64 {
	out := make([][]float64, len(m.Segments))
	for i, s := range m.Segments {
		out[i] = s.Centroid
	}
	return out
}

// SegmentIDs returns segment IDs in segment order.
func (m *AxisModel) SegmentIDs() []string {
	out := make([]string, len(m.Segments))
	for i, s := range m.Segments {
		out[i] = s.ID
	}
	return out
}

// InsufficientPopulationError marks a segment too small to subdivide.
// Recoverable: the parent segment is kept intact.
type InsufficientPopulationError struct {
	SegmentID string
	Size      int
	Floor     int
}

func (e InsufficientPopulationError) Error() string {
	return fmt.Sprintf("segment %s has %d members, below subdivision floor %d",
		e.SegmentID, e.Size, e.Floor)
}
