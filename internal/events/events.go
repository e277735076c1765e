// Package events holds the raw per-entity transaction records the engine
// consumes, plus ingest validation and loading helpers. The engine never
// reaches back to the system of record; histories arrive fully materialized.
package events

import (
	"sort"
	"time"
)

// Event is one order-like record for one entity.
type Event struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Quantity  int       `json:"quantity,omitempty"`
}

// History is one entity's events ordered by timestamp ascending.
type History struct {
	EntityID string
	Events   []Event
}

// Sort orders the events by timestamp ascending, stable on insertion order.
func (h *History) Sort() {
	sort.SliceStable(h.Events, func(i, j int) bool {
		return h.Events[i].Timestamp.Before(h.Events[j].Timestamp)
	})
}

// Span returns the time between the first and last event.
func (h *History) Span() time.Duration {
	if len(h.Events) < 2 {
		return 0
	}
	return h.Events[len(h.Events)-1].Timestamp.Sub(h.Events[0].Timestamp)
}

// TotalAmount sums event amounts.
func (h *History) TotalAmount() float64 {
	var total float64
	for _, e := range h.Events {
		total += e.Amount
	}
	return total
}

// Categories returns the distinct categories seen, in first-seen order.
func (h *History) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, e := range h.Events {
		if e.Category == "" || seen[e.Category] {
			continue
		}
		seen[e.Category] = true
		cats = append(cats, e.Category)
	}
	return cats
}

// InterEventGaps returns the gaps between consecutive events in days.
func (h *History) InterEventGaps() []float64 {
	if len(h.Events) < 2 {
		return nil
	}
	gaps := make([]float64, 0, len(h.Events)-1)
	for i := 1; i < len(h.Events); i++ {
		gap := h.Events[i].Timestamp.Sub(h.Events[i-1].Timestamp)
		gaps = append(gaps, gap.Hours()/24)
	}
	return gaps
}
