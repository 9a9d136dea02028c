package mitigation

import (
	"log/slog"
	"math"
)

// SessionStats is the aggregate summary consumed by tabular/summary views.
type SessionStats struct {
	CoolingCenters          int     `json:"cooling_centers"`
	ParkConversions         int     `json:"park_conversions"`
	AffectedCells           int     `json:"affected_cells"`
	CumulativeCoolingArea   float64 `json:"cumulative_cooling_area"`
	CumulativeHeatReduction float64 `json:"cumulative_heat_reduction"`
	Optimised               bool    `json:"optimised"`
}

// Stats returns the current aggregate summary.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		CoolingCenters:          len(s.centers),
		ParkConversions:         len(s.conversions),
		AffectedCells:           len(s.affected),
		CumulativeCoolingArea:   s.cumulativeCoolingArea,
		CumulativeHeatReduction: s.cumulativeHeatReduction,
		Optimised:               s.optimised,
	}
}

// CoolingCenterCount returns how many committed centers are associated with
// the given grid cell.
func (s *Session) CoolingCenterCount(gridID string) int {
	count := 0
	for _, c := range s.centers {
		if c.GridID == gridID {
			count++
		}
	}
	return count
}

// CoolingCapacity returns the summed capacity of the centers associated with
// the given grid cell.
func (s *Session) CoolingCapacity(gridID string) float64 {
	total := 0.0
	for _, c := range s.centers {
		if c.GridID == gridID {
			total += c.Capacity
		}
	}
	return total
}

// PrecomputeGridImpacts scans every cell pair within a 1000-unit window in
// both x and y and sums the pairwise point-decay values, scoring how much a
// cooling center at each location could help its neighborhood. The scan is
// O(n²) over the window; for registries of a few thousand cells it completes
// well under a second.
func (s *Session) PrecomputeGridImpacts() {
	if s.reg == nil || s.reg.Count() == 0 {
		slog.Warn("grid impact precompute skipped, registry empty")
		return
	}

	const window = 1000.0

	cells := s.reg.Cells()
	impacts := make(map[string]float64, len(cells))
	for _, c := range cells {
		impacts[c.ID] = 0
	}

	for i := 0; i < len(cells); i++ {
		for j := i + 1; j < len(cells); j++ {
			a, b := cells[i], cells[j]
			if math.Abs(a.X-b.X) > window || math.Abs(a.Y-b.Y) > window {
				continue
			}
			dx := a.X - b.X
			dy := a.Y - b.Y
			reduction := s.cfg.PointReduction(math.Sqrt(dx*dx + dy*dy))
			impacts[a.ID] += reduction
			impacts[b.ID] += reduction
		}
	}

	s.gridImpacts = impacts
	slog.Info("grid impacts precomputed", "session", s.ID, "cells", len(cells))
}

// GridImpact returns the precomputed neighborhood impact score for a cell, or
// zero when the precompute has not run or the cell is unknown.
func (s *Session) GridImpact(gridID string) float64 {
	return s.gridImpacts[gridID]
}

// GridImpacts returns a copy of all precomputed impact scores.
func (s *Session) GridImpacts() map[string]float64 {
	out := make(map[string]float64, len(s.gridImpacts))
	for id, v := range s.gridImpacts {
		out[id] = v
	}
	return out
}
