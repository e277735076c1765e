// Package calibration orchestrates a batch calibration run: every
// behavioral axis is extracted, clustered, optionally subdivided, and
// published independently. Axes share no mutable state, so partial
// completion under cancellation is always a consistent outcome.
package calibration

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/FairForge/thumbprint/internal/cluster"
	"github.com/FairForge/thumbprint/internal/config"
	"github.com/FairForge/thumbprint/internal/events"
	"github.com/FairForge/thumbprint/internal/features"
	"github.com/FairForge/thumbprint/internal/profile"
	"github.com/FairForge/thumbprint/internal/segment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Axis calibration outcomes.
const (
	StatusOK         = "ok"
	StatusDegenerate = "degenerate"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped" // run cancelled before the axis started
)

// AxisStatus summarizes one axis's calibration for the operator report.
type AxisStatus struct {
	Axis     string        `json:"axis"`
	Status   string        `json:"status"`
	K        int           `json:"k"`
	Segments int           `json:"segments"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the operator-facing summary of a calibration run. Degenerate
// and failed axes are listed so feature quality can be investigated; they
// never abort the run.
type Report struct {
	RunID     string                            `json:"run_id"`
	StartedAt time.Time                         `json:"started_at"`
	Duration  time.Duration                     `json:"duration"`
	Entities  int                               `json:"entities"`
	Axes      []AxisStatus                      `json:"axes"`
	Profiles  map[string]*profile.EntityProfile `json:"-"`
}

// Runner executes calibration runs against a model repository.
type Runner struct {
	cfg     config.CalibrationConfig
	repo    segment.ModelRepository
	metrics *Metrics
	logger  *zap.Logger
}

// NewRunner creates a runner. A nil logger is replaced with a no-op.
func NewRunner(cfg config.CalibrationConfig, repo segment.ModelRepository, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		repo:    repo,
		metrics: NewMetrics(),
		logger:  logger,
	}
}

type axisOutcome struct {
	status   AxisStatus
	profiles []profile.AxisProfile // indexed like histories; nil when not ok/degenerate
}

// Run calibrates every registered axis over the given population. Axes run
// on a worker pool bounded by the configured worker count (default
// GOMAXPROCS); cancelling the context abandons axes not yet started while
// keeping completed ones published.
func (r *Runner) Run(ctx context.Context, histories []*events.History, asOf time.Time) (*Report, error) {
	if len(histories) == 0 {
		return nil, fmt.Errorf("no entity histories to calibrate")
	}
	start := time.Now()
	runID := uuid.New().String()
	extractor := features.NewExtractor(asOf)
	axes := features.Axes()

	r.logger.Info("starting calibration run",
		zap.String("run_id", runID),
		zap.Int("entities", len(histories)),
		zap.Int("axes", len(axes)))

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(axes) {
		workers = len(axes)
	}

	jobs := make(chan string)
	results := make(chan axisOutcome, len(axes))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for axis := range jobs {
				results <- r.calibrateAxis(ctx, runID, axis, extractor, histories)
			}
		}()
	}

	dispatched := 0
	for _, axis := range axes {
		select {
		case <-ctx.Done():
		case jobs <- axis:
			dispatched++
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	report := &Report{
		RunID:     runID,
		StartedAt: start,
		Entities:  len(histories),
		Profiles:  make(map[string]*profile.EntityProfile, len(histories)),
	}

	perAxisProfiles := make(map[string][]profile.AxisProfile)
	for outcome := range results {
		report.Axes = append(report.Axes, outcome.status)
		r.metrics.AxesCalibrated.WithLabelValues(outcome.status.Status).Inc()
		if outcome.profiles != nil {
			perAxisProfiles[outcome.status.Axis] = outcome.profiles
		}
	}
	for _, axis := range axes[dispatched:] {
		report.Axes = append(report.Axes, AxisStatus{Axis: axis, Status: StatusSkipped})
	}

	// Assemble entity thumbprints from whatever axes completed.
	for i, h := range histories {
		p := &profile.EntityProfile{
			EntityID:       h.EntityID,
			Axes:           make(map[string]profile.AxisProfile),
			DerivedMetrics: profile.DeriveMetrics(h, asOf),
		}
		for axis, axisProfiles := range perAxisProfiles {
			p.Axes[axis] = axisProfiles[i]
		}
		report.Profiles[h.EntityID] = p
	}

	report.Duration = time.Since(start)
	r.metrics.RunDuration.Observe(report.Duration.Seconds())
	r.logger.Info("calibration run complete",
		zap.String("run_id", runID),
		zap.Duration("duration", report.Duration),
		zap.Int("axes_completed", len(perAxisProfiles)))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// calibrateAxis runs the full pipeline for one axis: extract, impute,
// scale, select k, fit, subdivide, publish.
func (r *Runner) calibrateAxis(ctx context.Context, runID, axis string,
	extractor *features.Extractor, histories []*events.History) axisOutcome {

	axisStart := time.Now()
	logger := r.logger.With(zap.String("axis", axis), zap.String("run_id", runID))

	fail := func(reason string) axisOutcome {
		logger.Error("axis calibration failed, keeping prior model",
			zap.String("reason", reason))
		return axisOutcome{status: AxisStatus{
			Axis: axis, Status: StatusFailed, Reason: reason,
			Duration: time.Since(axisStart),
		}}
	}

	raw, err := extractor.ExtractMatrix(axis, histories)
	if err != nil {
		return fail(err.Error())
	}

	imputer := features.FitImputer(raw)
	imputed := imputer.Apply(raw)
	scaler := features.FitScaler(imputed, r.cfg.Winsorize)
	X := scaler.Transform(imputed)

	fit := cluster.Options{
		Seed:      r.cfg.Seed,
		MaxIter:   r.cfg.MaxIter,
		Tolerance: r.cfg.Tolerance,
		Fuzziness: r.cfg.Fuzziness,
	}
	sel, err := cluster.SelectK(X, cluster.KSelectOptions{
		KMin:             r.cfg.KSelect.KMin,
		KMax:             r.cfg.KSelect.KMax,
		AdaptiveRange:    r.cfg.KSelect.AdaptiveRange,
		SilhouetteWeight: r.cfg.KSelect.SilhouetteWeight,
		BalanceWeight:    r.cfg.KSelect.BalanceWeight,
	}, fit)
	if err != nil {
		return fail(err.Error())
	}

	if sel.Degenerate {
		derr := cluster.DegenerateAxisError{Axis: axis, Reason: "no candidate k with positive silhouette"}
		logger.Warn("axis is non-discriminating, falling back to single segment",
			zap.Error(derr))
		model, axisProfiles := r.degenerateModel(runID, axis, X, scaler, imputer, len(histories))
		r.repo.Publish(model)
		r.metrics.SegmentsPerAxis.WithLabelValues(axis).Set(1)
		return axisOutcome{
			status: AxisStatus{
				Axis: axis, Status: StatusDegenerate, K: 1, Segments: 1,
				Reason: derr.Error(), Duration: time.Since(axisStart),
			},
			profiles: axisProfiles,
		}
	}

	// Fit at the selected k. Fuzzy mode fits FCM for centroids and
	// memberships; hard labels (argmax) drive subdivision.
	var centroids [][]float64
	var labels []int
	if r.cfg.Mode == "fuzzy" {
		res, err := cluster.FitFCM(X, sel.K, fit)
		if err != nil {
			return fail(err.Error())
		}
		if res.ReducedK {
			logger.Warn("reduced k to distinct point count", zap.Int("k", res.K))
		}
		r.metrics.FCMIterations.Observe(float64(res.Iterations))
		centroids = res.Centroids
		labels = res.Labels()
	} else {
		res, err := cluster.FitKMeans(X, sel.K, fit)
		if err != nil {
			return fail(err.Error())
		}
		if res.ReducedK {
			logger.Warn("reduced k to distinct point count", zap.Int("k", res.K))
		}
		centroids = res.Centroids
		labels = res.Labels
	}

	segs, members := topSegments(centroids, labels, len(X))

	if r.cfg.Subdivision.Enabled {
		sub := segment.NewSubdivider(segment.SubdivisionOptions{
			MaxDepth:          r.cfg.Subdivision.MaxDepth,
			VarianceThreshold: r.cfg.Subdivision.VarianceThreshold,
			ShareCeiling:      r.cfg.Subdivision.ShareCeiling,
			MinSize:           r.cfg.Subdivision.MinSize,
			MinChildSize:      r.cfg.Subdivision.MinChildSize,
			DiameterMode:      r.cfg.Subdivision.DiameterMode,
			KMin:              r.cfg.Subdivision.KMin,
			KMax:              r.cfg.Subdivision.KMax,
		}, fit, logger)
		segs, members = sub.Apply(ctx, segs, members, X)
	}

	model := &segment.AxisModel{
		Axis:         axis,
		RunID:        runID,
		Mode:         r.cfg.Mode,
		Fuzziness:    r.cfg.Fuzziness,
		Segments:     segs,
		Scaler:       scaler,
		Imputer:      imputer,
		CalibratedAt: time.Now().UTC(),
	}

	axisProfiles := r.buildAxisProfiles(model, X, members)
	r.repo.Publish(model)
	r.metrics.SegmentsPerAxis.WithLabelValues(axis).Set(float64(len(segs)))
	r.metrics.AxisDuration.WithLabelValues(axis).Observe(time.Since(axisStart).Seconds())

	logger.Info("axis calibrated",
		zap.Int("k", sel.K),
		zap.Int("segments", len(segs)),
		zap.Float64("silhouette", sel.Silhouette),
		zap.Float64("balance", sel.Balance))

	return axisOutcome{
		status: AxisStatus{
			Axis: axis, Status: StatusOK, K: sel.K, Segments: len(segs),
			Duration: time.Since(axisStart),
		},
		profiles: axisProfiles,
	}
}

// topSegments builds the pre-subdivision segment list from a fit.
func topSegments(centroids [][]float64, labels []int, total int) ([]segment.Segment, [][]int) {
	k := len(centroids)
	segs := make([]segment.Segment, k)
	members := make([][]int, k)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}
	for j := 0; j < k; j++ {
		segs[j] = segment.Segment{
			ID:            fmt.Sprintf("%d", j),
			Label:         fmt.Sprintf("segment-%d", j),
			Centroid:      centroids[j],
			Count:         len(members[j]),
			PopulationPct: 100 * float64(len(members[j])) / float64(total),
		}
	}
	return segs, members
}

// buildAxisProfiles computes each entity's membership over the final leaf
// segments. Fuzzy mode re-assigns every entity against the leaf centroids;
// hard mode yields indicator memberships from the leaf member lists.
func (r *Runner) buildAxisProfiles(model *segment.AxisModel, X [][]float64, members [][]int) []profile.AxisProfile {
	n := len(X)
	out := make([]profile.AxisProfile, n)
	ids := model.SegmentIDs()

	if model.Mode == "fuzzy" {
		centroids := model.Centroids()
		for i := 0; i < n; i++ {
			row := cluster.AssignFCM(X[i], centroids, model.Fuzziness)
			m := make(profile.Membership, len(ids))
			for j, id := range ids {
				m[id] = row[j]
			}
			out[i] = profile.AxisProfile{DominantSegment: m.Dominant(), Membership: m}
		}
		return out
	}

	for j, idx := range members {
		for _, i := range idx {
			m := make(profile.Membership, len(ids))
			for _, id := range ids {
				m[id] = 0
			}
			m[ids[j]] = 1.0
			out[i] = profile.AxisProfile{DominantSegment: ids[j], Membership: m}
		}
	}
	return out
}

// degenerateModel publishes a single undifferentiated segment covering the
// whole population.
func (r *Runner) degenerateModel(runID, axis string, X [][]float64,
	scaler *features.RobustScaler, imputer *features.Imputer, n int) (*segment.AxisModel, []profile.AxisProfile) {

	dims := 0
	if len(X) > 0 {
		dims = len(X[0])
	}
	centroid := make([]float64, dims)
	for _, row := range X {
		for d, v := range row {
			centroid[d] += v / float64(len(X))
		}
	}

	model := &segment.AxisModel{
		Axis:      axis,
		RunID:     runID,
		Mode:      r.cfg.Mode,
		Fuzziness: r.cfg.Fuzziness,
		Segments: []segment.Segment{{
			ID:            "0",
			Label:         "undifferentiated",
			Centroid:      centroid,
			Count:         n,
			PopulationPct: 100,
		}},
		Scaler:       scaler,
		Imputer:      imputer,
		Degenerate:   true,
		CalibratedAt: time.Now().UTC(),
	}

	axisProfiles := make([]profile.AxisProfile, n)
	for i := range axisProfiles {
		axisProfiles[i] = profile.AxisProfile{
			DominantSegment: "0",
			Membership:      profile.Membership{"0": 1.0},
		}
	}
	return model, axisProfiles
}
