package segment

import (
	"context"
	"fmt"
	"math"

	"github.com/FairForge/thumbprint/internal/cluster"
	"go.uber.org/zap"
)

// SubdivisionOptions bounds recursive subdivision of a diverse segment.
type SubdivisionOptions struct {
	MaxDepth          int     // default 3
	VarianceThreshold float64 // mean squared distance to centroid
	ShareCeiling      float64 // population share triggering a split, default 0.60
	MinSize           int     // never subdivide below this, default 100
	MinChildSize      int     // discard splits producing smaller children, default 30
	DiameterMode      string  // "centroid" (max member-to-centroid) or "pairwise"
	KMin              int     // narrowed k range for child fits, default 2
	KMax              int     // default 4
}

func (o SubdivisionOptions) withDefaults() SubdivisionOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.ShareCeiling <= 0 {
		o.ShareCeiling = 0.60
	}
	if o.MinSize <= 0 {
		o.MinSize = 100
	}
	if o.MinChildSize <= 0 {
		o.MinChildSize = 30
	}
	if o.DiameterMode == "" {
		o.DiameterMode = "centroid"
	}
	if o.KMin <= 0 {
		o.KMin = 2
	}
	if o.KMax < o.KMin {
		o.KMax = 4
	}
	return o
}

// Subdivider recursively re-clusters segments whose internal diversity hides
// operationally distinct sub-populations.
type Subdivider struct {
	opts   SubdivisionOptions
	fit    cluster.Options
	logger *zap.Logger
}

// NewSubdivider creates a subdivider. A nil logger is replaced with a no-op.
func NewSubdivider(opts SubdivisionOptions, fit cluster.Options, logger *zap.Logger) *Subdivider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subdivider{opts: opts.withDefaults(), fit: fit, logger: logger}
}

// Apply inspects every segment and replaces triggered ones with their leaf
// subsegments. members[i] holds the X row indices assigned to segs[i].
// Population percentages of the returned leaves are recomputed over the full
// axis population, so they still sum to 100.
func (s *Subdivider) Apply(ctx context.Context, segs []Segment, members [][]int, X [][]float64) ([]Segment, [][]int) {
	total := 0
	for _, m := range members {
		total += len(m)
	}
	if total == 0 {
		return segs, members
	}

	// Diameter trigger threshold: 95th percentile of diameters across the
	// axis's current segments.
	diameters := make([]float64, len(segs))
	for i := range segs {
		diameters[i] = s.diameter(segs[i], members[i], X)
	}
	diameterP95 := percentile(diameters, 0.95)

	var leaves []Segment
	var leafMembers [][]int
	for i := range segs {
		ls, lm := s.subdivide(ctx, segs[i], members[i], X, diameters[i], diameterP95, total, 0)
		leaves = append(leaves, ls...)
		leafMembers = append(leafMembers, lm...)
	}

	for i := range leaves {
		leaves[i].Count = len(leafMembers[i])
		leaves[i].PopulationPct = 100 * float64(len(leafMembers[i])) / float64(total)
	}
	return leaves, leafMembers
}

// subdivide returns the leaf segments for one segment, recursing while
// trigger conditions hold and bounds allow.
func (s *Subdivider) subdivide(ctx context.Context, seg Segment, members []int, X [][]float64,
	diameter, diameterP95 float64, total, depth int) ([]Segment, [][]int) {

	keep := func() ([]Segment, [][]int) {
		return []Segment{seg}, [][]int{members}
	}

	if depth >= s.opts.MaxDepth || ctx.Err() != nil {
		return keep()
	}
	if len(members) < s.opts.MinSize {
		// Small segments are never subdivided, even when nominally diverse.
		return keep()
	}
	if !s.triggered(seg, members, X, diameter, diameterP95, total) {
		return keep()
	}

	sub := make([][]float64, len(members))
	for i, idx := range members {
		sub[i] = X[idx]
	}

	sel, err := cluster.SelectK(sub, cluster.KSelectOptions{
		KMin: s.opts.KMin,
		KMax: s.opts.KMax,
	}, s.childFit(seg.ID))
	if err != nil || sel.Degenerate || sel.K < 2 {
		return keep()
	}

	res, err := cluster.FitKMeans(sub, sel.K, s.childFit(seg.ID))
	if err != nil || res.K < 2 {
		return keep()
	}

	childMembers := make([][]int, res.K)
	for i, label := range res.Labels {
		childMembers[label] = append(childMembers[label], members[i])
	}
	for _, cm := range childMembers {
		if len(cm) < s.opts.MinChildSize {
			// A split producing unusably small leaves is discarded whole.
			s.logger.Debug("discarding subdivision below child floor",
				zap.String("segment", seg.ID),
				zap.Int("child_size", len(cm)),
				zap.Int("floor", s.opts.MinChildSize))
			return keep()
		}
	}

	s.logger.Info("subdividing segment",
		zap.String("segment", seg.ID),
		zap.Int("children", res.K),
		zap.Int("depth", depth+1))

	var leaves []Segment
	var leafMembers [][]int
	for j := 0; j < res.K; j++ {
		child := Segment{
			ID:       fmt.Sprintf("%s.%d", seg.ID, j),
			Label:    fmt.Sprintf("%s.%d", seg.Label, j),
			Centroid: res.Centroids[j],
			Depth:    depth + 1,
			ParentID: seg.ID,
		}
		childDiameter := s.diameter(child, childMembers[j], X)
		ls, lm := s.subdivide(ctx, child, childMembers[j], X, childDiameter, diameterP95, total, depth+1)
		leaves = append(leaves, ls...)
		leafMembers = append(leafMembers, lm...)
	}
	return leaves, leafMembers
}

// triggered reports whether any subdivision condition holds. The minimum
// size gate is checked by the caller.
func (s *Subdivider) triggered(seg Segment, members []int, X [][]float64,
	diameter, diameterP95 float64, total int) bool {

	share := float64(len(members)) / float64(total)
	if share > s.opts.ShareCeiling {
		return true
	}
	if s.opts.VarianceThreshold > 0 && s.variance(seg, members, X) > s.opts.VarianceThreshold {
		return true
	}
	if diameterP95 > 0 && diameter > diameterP95 {
		return true
	}
	return false
}

// variance is the mean squared distance from members to the centroid.
func (s *Subdivider) variance(seg Segment, members []int, X [][]float64) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, idx := range members {
		d := cluster.Euclidean(X[idx], seg.Centroid)
		sum += d * d
	}
	return sum / float64(len(members))
}

// diameter measures segment spread. The default is max member-to-centroid
// distance; "pairwise" computes the true max pairwise distance at O(n²).
func (s *Subdivider) diameter(seg Segment, members []int, X [][]float64) float64 {
	var max float64
	if s.opts.DiameterMode == "pairwise" {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				if d := cluster.Euclidean(X[members[i]], X[members[j]]); d > max {
					max = d
				}
			}
		}
		return max
	}
	for _, idx := range members {
		if d := cluster.Euclidean(X[idx], seg.Centroid); d > max {
			max = d
		}
	}
	return max
}

// childFit derives a deterministic seed per segment path so subdivision of
// the same segment reproduces across runs.
func (s *Subdivider) childFit(segID string) cluster.Options {
	fit := s.fit
	var h int64
	for _, c := range segID {
		h = h*31 + int64(c)
	}
	fit.Seed = s.fit.Seed + h
	return fit
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
