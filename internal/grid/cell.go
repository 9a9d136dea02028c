// Package grid provides the spatial grid cell registry and neighbor search.
// Coordinates are planar metric (projected) so Euclidean distance is meters.
package grid

import (
	"fmt"
	"log/slog"
)

// Feature is the boundary projection of one source grid feature.
// Only plain data crosses into the registry; rendering-layer handles never do.
type Feature struct {
	ID        string   `json:"id"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	HeatIndex *float64 `json:"heat_exposure"` // nil = source attribute missing
}

// Cell is one registered grid cell. Baseline is set at build time and never
// mutated; the registry's modified index table carries intervention effects.
type Cell struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Baseline float64 `json:"baseline_heat_index"`
}

// Registry holds the immutable spatial layout for one analysis session plus
// the per-cell modified heat index side table. Rebuilding for a new area
// discards all prior modified state.
type Registry struct {
	cells    []Cell             // insertion order, used for deterministic tie-breaks
	index    map[string]int     // id → position in cells
	modified map[string]float64 // id → current heat index after interventions
}

// BuildRegistry constructs a registry from source features. Features without a
// heat index are skipped — exclusion from the analysis population, not an error.
func BuildRegistry(features []Feature) *Registry {
	r := &Registry{
		index:    make(map[string]int, len(features)),
		modified: make(map[string]float64, len(features)),
	}

	skipped := 0
	for _, f := range features {
		if f.HeatIndex == nil {
			skipped++
			continue
		}
		if _, dup := r.index[f.ID]; dup {
			slog.Warn("duplicate grid cell id, keeping first", "id", f.ID)
			continue
		}
		r.index[f.ID] = len(r.cells)
		r.cells = append(r.cells, Cell{ID: f.ID, X: f.X, Y: f.Y, Baseline: *f.HeatIndex})
		r.modified[f.ID] = *f.HeatIndex
	}

	slog.Info("grid registry built", "cells", len(r.cells), "skipped", skipped)
	return r
}

// Cell returns the cell with the given id.
func (r *Registry) Cell(id string) (Cell, bool) {
	i, ok := r.index[id]
	if !ok {
		return Cell{}, false
	}
	return r.cells[i], true
}

// Cells returns all cells in insertion order. Callers must not mutate.
func (r *Registry) Cells() []Cell {
	return r.cells
}

// Count returns the number of registered cells.
func (r *Registry) Count() int {
	return len(r.cells)
}

// Modified returns the cell's current heat index after committed interventions.
func (r *Registry) Modified(id string) (float64, bool) {
	v, ok := r.modified[id]
	return v, ok
}

// SetModified overwrites the cell's current heat index. Values are clamped at
// zero; the index never goes negative no matter how much reduction stacks up.
func (r *Registry) SetModified(id string, v float64) {
	if _, ok := r.index[id]; !ok {
		return
	}
	if v < 0 {
		v = 0
	}
	r.modified[id] = v
}

// ModifiedAll returns a copy of the per-cell modified index map, the read
// projection consumed by rendering collaborators.
func (r *Registry) ModifiedAll() map[string]float64 {
	out := make(map[string]float64, len(r.modified))
	for id, v := range r.modified {
		out[id] = v
	}
	return out
}

// String returns a summary of the registry.
func (r *Registry) String() string {
	return fmt.Sprintf("Registry(cells=%d)", len(r.cells))
}
