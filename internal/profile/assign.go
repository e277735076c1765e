package profile

import (
	"fmt"

	"github.com/FairForge/thumbprint/internal/cluster"
	"github.com/FairForge/thumbprint/internal/features"
	"github.com/FairForge/thumbprint/internal/segment"
)

// Assign places one raw feature vector against a fitted axis model using the
// persisted imputer and scaler, without refitting anything.
func Assign(model *segment.AxisModel, raw features.Vector) (AxisProfile, error) {
	if len(model.Segments) == 0 {
		return AxisProfile{}, fmt.Errorf("axis %s has no segments", model.Axis)
	}

	imputed := raw
	if model.Imputer != nil {
		imputed = model.Imputer.Apply(features.Matrix{raw})[0]
	}
	scaled := imputed
	if model.Scaler != nil {
		scaled = model.Scaler.TransformVector(imputed)
	}

	membership := make(Membership, len(model.Segments))
	ids := model.SegmentIDs()

	if model.Degenerate || len(model.Segments) == 1 {
		membership[ids[0]] = 1.0
		return AxisProfile{DominantSegment: ids[0], Membership: membership}, nil
	}

	switch model.Mode {
	case "fuzzy":
		row := cluster.AssignFCM(scaled, model.Centroids(), model.Fuzziness)
		for j, id := range ids {
			membership[id] = row[j]
		}
	default:
		best, bestDist := 0, -1.0
		for j, c := range model.Centroids() {
			d := cluster.Euclidean(scaled, c)
			if bestDist < 0 || d < bestDist {
				best, bestDist = j, d
			}
		}
		for _, id := range ids {
			membership[id] = 0
		}
		membership[ids[best]] = 1.0
	}

	return AxisProfile{
		DominantSegment: membership.Dominant(),
		Membership:      membership,
	}, nil
}
