// Package drift compares two frozen snapshots of the same entity and
// quantifies how far its behavioral thumbprint moved. The analysis is purely
// geometric; business direction (improving vs degrading) comes from a
// caller-supplied segment ordering.
package drift

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/FairForge/thumbprint/internal/snapshot"
)

// Severity bands, inclusive lower bound.
const (
	SeverityStable      = "STABLE"      // < 0.1
	SeverityMinor       = "MINOR"       // < 0.3
	SeverityModerate    = "MODERATE"    // < 0.5
	SeveritySignificant = "SIGNIFICANT" // < 0.7
	SeverityMajor       = "MAJOR"
)

// Drift direction relative to a caller-supplied segment ordering.
const (
	DirectionImproving = "IMPROVING"
	DirectionDegrading = "DEGRADING"
	DirectionNeutral   = "NEUTRAL"
)

// ErrInsufficientHistory means fewer than two snapshots exist in the
// requested window. Surfaced to the caller as "not enough data", never
// silently defaulted to zero drift.
var ErrInsufficientHistory = errors.New("insufficient snapshot history for drift analysis")

// ErrEntityMismatch means the two snapshots belong to different entities.
var ErrEntityMismatch = errors.New("snapshots belong to different entities")

// AxisDrift is the per-axis comparison.
type AxisDrift struct {
	Distance       float64 `json:"distance"` // normalized to [0, 1]
	Severity       string  `json:"severity"`
	OldDominant    string  `json:"old_dominant"`
	NewDominant    string  `json:"new_dominant"`
	SegmentChanged bool    `json:"segment_changed"`
	Direction      string  `json:"direction,omitempty"`
}

// Result is the full drift comparison between two snapshots.
type Result struct {
	EntityID     string               `json:"entity_id"`
	From         string               `json:"from"` // snapshot dates, RFC 3339 date
	To           string               `json:"to"`
	ElapsedDays  int                  `json:"elapsed_days"`
	OverallDrift float64              `json:"overall_drift"` // mean of per-axis distances
	Velocity     float64              `json:"velocity"`      // overall drift per day
	Severity     string               `json:"severity"`
	PerAxis      map[string]AxisDrift `json:"per_axis"`
}

// SegmentOrdering ranks segment IDs per axis from least to most desirable.
// Axes or segments absent from the ordering yield NEUTRAL direction.
type SegmentOrdering map[string][]string

func (o SegmentOrdering) rank(axis, segID string) (int, bool) {
	order, ok := o[axis]
	if !ok {
		return 0, false
	}
	for i, id := range order {
		if id == segID {
			return i, true
		}
	}
	return 0, false
}

// Analyzer computes drift between snapshots. An empty ordering is valid and
// leaves every axis direction NEUTRAL.
type Analyzer struct {
	ordering SegmentOrdering
}

// NewAnalyzer creates an analyzer with an optional segment ordering.
func NewAnalyzer(ordering SegmentOrdering) *Analyzer {
	return &Analyzer{ordering: ordering}
}

// Analyze compares two snapshots of the same entity. Order of arguments
// fixes the reported direction; the distance itself is symmetric.
func (a *Analyzer) Analyze(prev, curr *snapshot.Snapshot) (*Result, error) {
	if prev == nil || curr == nil {
		return nil, ErrInsufficientHistory
	}
	if prev.EntityID != curr.EntityID {
		return nil, fmt.Errorf("%w: %s vs %s", ErrEntityMismatch, prev.EntityID, curr.EntityID)
	}

	elapsed := int(curr.SnapshotDate.Sub(prev.SnapshotDate).Hours() / 24)
	if elapsed < 0 {
		elapsed = -elapsed
	}

	axes := axisUnion(prev, curr)
	perAxis := make(map[string]AxisDrift, len(axes))
	var sum float64
	for _, axis := range axes {
		oldAxis := prev.Profile.Axes[axis]
		newAxis := curr.Profile.Axes[axis]
		d := Distance(oldAxis.Membership, newAxis.Membership)
		ad := AxisDrift{
			Distance:       d,
			Severity:       Classify(d),
			OldDominant:    oldAxis.DominantSegment,
			NewDominant:    newAxis.DominantSegment,
			SegmentChanged: oldAxis.DominantSegment != newAxis.DominantSegment,
			Direction:      a.direction(axis, oldAxis.DominantSegment, newAxis.DominantSegment),
		}
		perAxis[axis] = ad
		sum += d
	}

	overall := 0.0
	if len(axes) > 0 {
		overall = sum / float64(len(axes))
	}

	days := elapsed
	if days < 1 {
		days = 1
	}

	return &Result{
		EntityID:     prev.EntityID,
		From:         prev.SnapshotDate.Format("2006-01-02"),
		To:           curr.SnapshotDate.Format("2006-01-02"),
		ElapsedDays:  elapsed,
		OverallDrift: overall,
		Velocity:     overall / float64(days),
		Severity:     Classify(overall),
		PerAxis:      perAxis,
	}, nil
}

// AnalyzeWindow pulls the two newest snapshots in a window from the store
// and compares them.
func (a *Analyzer) AnalyzeWindow(snaps []*snapshot.Snapshot) (*Result, error) {
	if len(snaps) < 2 {
		return nil, ErrInsufficientHistory
	}
	ordered := append([]*snapshot.Snapshot(nil), snaps...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SnapshotDate.Before(ordered[j].SnapshotDate)
	})
	return a.Analyze(ordered[0], ordered[len(ordered)-1])
}

// Distance is the Euclidean distance between two membership vectors over
// the union of their segment labels, divided by sqrt(2) so a complete
// reversal between two segments maps to 1.0. Missing labels count as zero
// membership.
func Distance(a, b map[string]float64) float64 {
	var sum float64
	seen := make(map[string]bool, len(a)+len(b))
	for seg, ua := range a {
		seen[seg] = true
		d := b[seg] - ua
		sum += d * d
	}
	for seg, ub := range b {
		if !seen[seg] {
			sum += ub * ub
		}
	}
	d := math.Sqrt(sum) / math.Sqrt2
	if d > 1 {
		d = 1 // guard float accumulation just past the theoretical max
	}
	return d
}

// Classify maps a normalized distance to a severity band.
func Classify(distance float64) string {
	switch {
	case distance < 0.1:
		return SeverityStable
	case distance < 0.3:
		return SeverityMinor
	case distance < 0.5:
		return SeverityModerate
	case distance < 0.7:
		return SeveritySignificant
	default:
		return SeverityMajor
	}
}

func (a *Analyzer) direction(axis, oldDominant, newDominant string) string {
	if oldDominant == newDominant {
		return DirectionNeutral
	}
	oldRank, ok1 := a.ordering.rank(axis, oldDominant)
	newRank, ok2 := a.ordering.rank(axis, newDominant)
	if !ok1 || !ok2 {
		return DirectionNeutral
	}
	switch {
	case newRank > oldRank:
		return DirectionImproving
	case newRank < oldRank:
		return DirectionDegrading
	default:
		return DirectionNeutral
	}
}

func axisUnion(prev, curr *snapshot.Snapshot) []string {
	seen := make(map[string]bool)
	var axes []string
	for axis := range prev.Profile.Axes {
		if !seen[axis] {
			seen[axis] = true
			axes = append(axes, axis)
		}
	}
	for axis := range curr.Profile.Axes {
		if !seen[axis] {
			seen[axis] = true
			axes = append(axes, axis)
		}
	}
	sort.Strings(axes)
	return axes
}
