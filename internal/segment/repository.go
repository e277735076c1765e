package segment

import (
	"fmt"
	"sync"
)

// ModelRepository serves fitted axis models to readers. Models are published
// atomically per axis on calibration completion; readers never observe a
// half-updated axis.
type ModelRepository interface {
	Publish(model *AxisModel)
	Get(axis string) (*AxisModel, error)
	List() []*AxisModel
}

// MemoryRepository is the in-process model repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	models map[string]*AxisModel
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{models: make(map[string]*AxisModel)}
}

// Publish replaces the axis's model wholesale.
func (r *MemoryRepository) Publish(model *AxisModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model.Axis] = model
}

// Get returns the current model for an axis.
func (r *MemoryRepository) Get(axis string) (*AxisModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[axis]
	if !ok {
		return nil, fmt.Errorf("no model published for axis %s", axis)
	}
	return m, nil
}

// List returns every published model.
func (r *MemoryRepository) List() []*AxisModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*AxisModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}
