// Package features turns raw transaction histories into per-axis numeric
// feature vectors and owns the normalization applied before clustering.
package features

import (
	"fmt"
	"math"
	"time"

	"github.com/FairForge/thumbprint/internal/events"
)

// Vector is one entity's features on one axis. Undefined features (e.g.
// inter-order variance for a single-order customer) are NaN until imputation
// fills them with the population mean.
type Vector []float64

// Matrix is entities x features for one axis.
type Matrix [][]float64

// Behavioral axes shipped with the engine.
const (
	AxisPurchaseFrequency = "purchase_frequency"
	AxisMonetaryValue     = "monetary_value"
	AxisCategoryBreadth   = "category_breadth"
	AxisRecencyEngagement = "recency_engagement"
	AxisPriceSensitivity  = "price_sensitivity"
)

// Axes lists every registered axis in calibration order.
func Axes() []string {
	return []string{
		AxisPurchaseFrequency,
		AxisMonetaryValue,
		AxisCategoryBreadth,
		AxisRecencyEngagement,
		AxisPriceSensitivity,
	}
}

// FeatureNames returns the ordered feature names for an axis.
func FeatureNames(axis string) ([]string, error) {
	switch axis {
	case AxisPurchaseFrequency:
		return []string{"orders_per_month", "days_since_first_order", "gap_cv"}, nil
	case AxisMonetaryValue:
		return []string{"total_amount", "avg_order_value", "max_order_value"}, nil
	case AxisCategoryBreadth:
		return []string{"distinct_categories", "category_entropy", "top_category_share"}, nil
	case AxisRecencyEngagement:
		return []string{"days_since_last_order", "orders_last_90d", "active_month_ratio"}, nil
	case AxisPriceSensitivity:
		return []string{"avg_order_value", "amount_cv", "low_ticket_share"}, nil
	default:
		return nil, fmt.Errorf("unknown axis: %s", axis)
	}
}

// Extractor computes feature vectors. AsOf anchors every time-derived
// feature so extraction is deterministic for a given history.
type Extractor struct {
	AsOf time.Time
}

// NewExtractor creates an extractor anchored at asOf.
func NewExtractor(asOf time.Time) *Extractor {
	return &Extractor{AsOf: asOf}
}

// Extract computes the feature vector for one entity on one axis. Pure:
// no side effects, identical history yields identical output.
func (e *Extractor) Extract(axis string, h *events.History) (Vector, error) {
	switch axis {
	case AxisPurchaseFrequency:
		return e.purchaseFrequency(h), nil
	case AxisMonetaryValue:
		return e.monetaryValue(h), nil
	case AxisCategoryBreadth:
		return e.categoryBreadth(h), nil
	case AxisRecencyEngagement:
		return e.recencyEngagement(h), nil
	case AxisPriceSensitivity:
		return e.priceSensitivity(h), nil
	default:
		return nil, fmt.Errorf("unknown axis: %s", axis)
	}
}

// ExtractMatrix computes the full feature matrix for one axis, entity order
// preserved.
func (e *Extractor) ExtractMatrix(axis string, histories []*events.History) (Matrix, error) {
	X := make(Matrix, 0, len(histories))
	for _, h := range histories {
		v, err := e.Extract(axis, h)
		if err != nil {
			return nil, err
		}
		X = append(X, v)
	}
	return X, nil
}

func (e *Extractor) purchaseFrequency(h *events.History) Vector {
	n := len(h.Events)
	if n == 0 {
		return Vector{math.NaN(), math.NaN(), math.NaN()}
	}
	first := h.Events[0].Timestamp
	daysSinceFirst := e.AsOf.Sub(first).Hours() / 24
	months := math.Max(daysSinceFirst/30.44, 1)
	ordersPerMonth := float64(n) / months
	gapCV := CoefficientOfVariation(h.InterEventGaps())
	return Vector{ordersPerMonth, daysSinceFirst, gapCV}
}

func (e *Extractor) monetaryValue(h *events.History) Vector {
	n := len(h.Events)
	if n == 0 {
		return Vector{math.NaN(), math.NaN(), math.NaN()}
	}
	total := h.TotalAmount()
	maxAmount := 0.0
	for _, ev := range h.Events {
		if ev.Amount > maxAmount {
			maxAmount = ev.Amount
		}
	}
	return Vector{total, total / float64(n), maxAmount}
}

func (e *Extractor) categoryBreadth(h *events.History) Vector {
	if len(h.Events) == 0 {
		return Vector{math.NaN(), math.NaN(), math.NaN()}
	}
	counts := make(map[string]int)
	for _, ev := range h.Events {
		counts[ev.Category]++
	}
	dist := make([]int, 0, len(counts))
	top := 0
	for _, c := range counts {
		dist = append(dist, c)
		if c > top {
			top = c
		}
	}
	topShare := float64(top) / float64(len(h.Events))
	return Vector{float64(len(counts)), Entropy(dist), topShare}
}

func (e *Extractor) recencyEngagement(h *events.History) Vector {
	n := len(h.Events)
	if n == 0 {
		return Vector{math.NaN(), math.NaN(), math.NaN()}
	}
	last := h.Events[n-1].Timestamp
	daysSinceLast := e.AsOf.Sub(last).Hours() / 24

	cutoff := e.AsOf.AddDate(0, 0, -90)
	recent := 0
	activeMonths := make(map[string]bool)
	for _, ev := range h.Events {
		if ev.Timestamp.After(cutoff) {
			recent++
		}
		activeMonths[ev.Timestamp.Format("2006-01")] = true
	}

	first := h.Events[0].Timestamp
	tenureMonths := math.Max(e.AsOf.Sub(first).Hours()/24/30.44, 1)
	activeRatio := math.Min(float64(len(activeMonths))/tenureMonths, 1)

	return Vector{daysSinceLast, float64(recent), activeRatio}
}

func (e *Extractor) priceSensitivity(h *events.History) Vector {
	n := len(h.Events)
	if n == 0 {
		return Vector{math.NaN(), math.NaN(), math.NaN()}
	}
	amounts := make([]float64, 0, n)
	for _, ev := range h.Events {
		amounts = append(amounts, ev.Amount)
	}
	avg := Mean(amounts)
	cv := CoefficientOfVariation(amounts)

	// Share of orders priced below half this entity's own average ticket.
	low := 0
	for _, a := range amounts {
		if a < avg/2 {
			low++
		}
	}
	return Vector{avg, cv, float64(low) / float64(n)}
}
