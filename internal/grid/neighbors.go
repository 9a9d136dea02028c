package grid

import (
	"math"
	"sort"
)

// MaxNeighbors caps how many cells a single neighbor query returns.
const MaxNeighbors = 8

// Neighbor is one nearest-neighbor match.
type Neighbor struct {
	Cell     Cell
	Distance float64
}

// Distance returns the Euclidean distance between two cells.
func Distance(a, b Cell) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// NearestNeighbors returns up to MaxNeighbors cells within maxDist of the
// source cell, sorted ascending by distance. Ties keep registry insertion
// order so results are reproducible. An unknown source id or a radius smaller
// than the cell spacing both yield an empty list — "nothing found", not an error.
func (r *Registry) NearestNeighbors(sourceID string, maxDist float64) []Neighbor {
	src, ok := r.Cell(sourceID)
	if !ok {
		return nil
	}

	var found []Neighbor
	for _, c := range r.cells {
		if c.ID == sourceID {
			continue
		}
		d := Distance(src, c)
		if d > maxDist {
			continue
		}
		found = append(found, Neighbor{Cell: c, Distance: d})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Distance < found[j].Distance
	})

	if len(found) > MaxNeighbors {
		found = found[:MaxNeighbors]
	}
	return found
}
