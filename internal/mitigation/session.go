package mitigation

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avoin/heatplan/internal/grid"
)

// CoolingCenter is a point intervention. Capacity feeds the aggregate
// capacity queries only; the decay formula ignores it.
type CoolingCenter struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	GridID   string  `json:"grid_id,omitempty"`
	Capacity float64 `json:"capacity"`
}

// ParkConversion records one committed land-cover conversion.
type ParkConversion struct {
	SourceCellID    string  `json:"source_cell_id"`
	AreaConvertedM2 float64 `json:"area_converted_m2"`
}

// CellReduction is one applied {cell, reduction} pair in a park result.
type CellReduction struct {
	GridID        string  `json:"grid_id"`
	HeatReduction float64 `json:"heat_reduction"`
}

// ParkResult describes the effect of a single park conversion. It is a result
// object, not a persisted entity: only the per-cell index changes and the
// cumulative totals outlive the call.
type ParkResult struct {
	SourceCellID      string          `json:"source_cell_id"`
	AreaConvertedM2   float64         `json:"area_converted_m2"`
	AreaOfInfluence   float64         `json:"area_of_influence"`
	CoolingRadius     float64         `json:"cooling_radius"`
	Reductions        []CellReduction `json:"reductions"` // source first, then neighbors by distance
	SourceIndex       float64         `json:"source_index"`
	NeighborsAffected int             `json:"neighbors_affected"`
}

// Session is the impact accumulator for one analysis area. It owns the
// mutable intervention state on top of an immutable registry.
//
// The API splits into two categories: query operations are pure functions of
// current state (cooling-center effects are always recomputed fresh, never
// cached), while ApplyParkConversion is a commit operation that bakes its
// reduction into the per-cell modified index. Callers embedding a session in
// a concurrent host must serialize calls per session.
type Session struct {
	ID  string
	cfg Config
	reg *grid.Registry

	centers     []CoolingCenter // insertion order = addition order
	conversions []ParkConversion
	affected    map[string]struct{}

	cumulativeCoolingArea   float64
	cumulativeHeatReduction float64
	optimised               bool

	gridImpacts map[string]float64 // set by PrecomputeGridImpacts
}

// NewSession creates a clean session over the given registry.
func NewSession(reg *grid.Registry, cfg Config) *Session {
	return &Session{
		ID:       uuid.NewString(),
		cfg:      cfg,
		reg:      reg,
		affected: make(map[string]struct{}),
	}
}

// RestoreState carries a previously persisted session's mutable state.
type RestoreState struct {
	ID                      string
	Centers                 []CoolingCenter
	Conversions             []ParkConversion
	Affected                []string
	CumulativeCoolingArea   float64
	CumulativeHeatReduction float64
	Optimised               bool
}

// RestoreSession rebuilds a session from persisted state. The registry must
// already carry the persisted modified indices: park effects are baked into
// cell state, so restoring them is the registry loader's job, not this one's.
func RestoreSession(reg *grid.Registry, cfg Config, st RestoreState) *Session {
	s := NewSession(reg, cfg)
	if st.ID != "" {
		s.ID = st.ID
	}
	s.centers = st.Centers
	s.conversions = st.Conversions
	for _, id := range st.Affected {
		s.affected[id] = struct{}{}
	}
	s.cumulativeCoolingArea = st.CumulativeCoolingArea
	s.cumulativeHeatReduction = st.CumulativeHeatReduction
	s.optimised = st.Optimised
	return s
}

// Config returns the session's engine tunables.
func (s *Session) Config() Config {
	return s.cfg
}

// Registry returns the grid registry this session operates on.
func (s *Session) Registry() *grid.Registry {
	return s.reg
}

// AddCoolingCenter appends a center to the session. No cell state is touched:
// point effects are derived on demand so any cell can be queried about a
// hypothetical center before it is committed.
func (s *Session) AddCoolingCenter(c CoolingCenter) {
	s.centers = append(s.centers, c)
	if c.GridID != "" {
		s.MarkAffected(c.GridID)
	}
	slog.Info("cooling center added",
		"session", s.ID,
		"x", c.X, "y", c.Y,
		"grid_id", c.GridID,
		"capacity", c.Capacity,
		"total_centers", len(s.centers),
	)
}

// CoolingCenters returns the committed centers in addition order.
func (s *Session) CoolingCenters() []CoolingCenter {
	return s.centers
}

// ParkConversions returns the committed conversions in addition order.
func (s *Session) ParkConversions() []ParkConversion {
	return s.conversions
}

// CenterEffect returns the reduction one center (committed or hypothetical)
// contributes to the given cell. The ok result is false when the cell is not
// in the analysis population.
func (s *Session) CenterEffect(cellID string, c CoolingCenter) (float64, bool) {
	cell, ok := s.reg.Cell(cellID)
	if !ok {
		return 0, false
	}
	return s.cfg.PointReduction(grid.Distance(cell, grid.Cell{X: c.X, Y: c.Y})), true
}

// TotalReductionForCell sums the point-decay reduction of every committed
// cooling center on the given cell. Effects are additive across centers.
func (s *Session) TotalReductionForCell(cellID string) (float64, bool) {
	cell, ok := s.reg.Cell(cellID)
	if !ok {
		return 0, false
	}
	total := 0.0
	for _, c := range s.centers {
		total += s.cfg.PointReduction(grid.Distance(cell, grid.Cell{X: c.X, Y: c.Y}))
	}
	return total, true
}

// EffectiveHeatIndex returns the cell's current index with committed park
// effects (baked into the modified table) and all cooling centers (recomputed
// fresh) applied, clamped at zero.
func (s *Session) EffectiveHeatIndex(cellID string) (float64, bool) {
	modified, ok := s.reg.Modified(cellID)
	if !ok {
		return 0, false
	}
	reduction, _ := s.TotalReductionForCell(cellID)
	v := modified - reduction
	if v < 0 {
		v = 0
	}
	return v, true
}

// ApplyParkConversion commits a land-cover conversion at the source cell and
// diffuses its effect to up to 8 neighbors within the cooling radius. This is
// the one operation that mutates the modified index in place; it is not
// idempotent, so callers must invoke it at most once per committed conversion.
func (s *Session) ApplyParkConversion(sourceID string, areaM2 float64) (*ParkResult, error) {
	if _, ok := s.reg.Cell(sourceID); !ok {
		return nil, fmt.Errorf("grid cell %q not found", sourceID)
	}

	// Source cell: reduction compounds on the current modified index, not
	// the baseline, so successive conversions stack.
	sourceReduction := s.cfg.SourceReduction(areaM2)
	current, _ := s.reg.Modified(sourceID)
	s.reg.SetModified(sourceID, current-sourceReduction)
	newIndex, _ := s.reg.Modified(sourceID)
	s.MarkAffected(sourceID)

	areaOfInfluence := areaM2 * s.cfg.InfluenceFactor(areaM2)
	radius := CoolingRadius(areaOfInfluence)

	result := &ParkResult{
		SourceCellID:    sourceID,
		AreaConvertedM2: areaM2,
		AreaOfInfluence: areaOfInfluence,
		CoolingRadius:   radius,
		Reductions:      []CellReduction{{GridID: sourceID, HeatReduction: sourceReduction}},
		SourceIndex:     newIndex,
	}

	neighbors := s.reg.NearestNeighbors(sourceID, radius)
	for rank, n := range neighbors {
		reduction := s.cfg.NeighborReduction(rank, areaOfInfluence)
		cur, _ := s.reg.Modified(n.Cell.ID)
		s.reg.SetModified(n.Cell.ID, cur-reduction)
		s.MarkAffected(n.Cell.ID)
		result.Reductions = append(result.Reductions, CellReduction{
			GridID:        n.Cell.ID,
			HeatReduction: reduction,
		})
	}
	result.NeighborsAffected = len(neighbors)

	totalReduction := 0.0
	for _, cr := range result.Reductions {
		totalReduction += cr.HeatReduction
	}
	s.cumulativeCoolingArea += areaOfInfluence
	s.cumulativeHeatReduction += totalReduction
	s.conversions = append(s.conversions, ParkConversion{
		SourceCellID:    sourceID,
		AreaConvertedM2: areaM2,
	})

	slog.Info("park conversion applied",
		"session", s.ID,
		"source", sourceID,
		"area_m2", areaM2,
		"area_of_influence", areaOfInfluence,
		"cooling_radius", fmt.Sprintf("%.1f", radius),
		"neighbors", len(neighbors),
		"total_reduction", fmt.Sprintf("%.4f", totalReduction),
	)
	return result, nil
}

// MarkAffected records a cell as touched by some intervention. Idempotent.
func (s *Session) MarkAffected(cellID string) {
	s.affected[cellID] = struct{}{}
}

// Affected reports whether any intervention has touched the cell.
func (s *Session) Affected(cellID string) bool {
	_, ok := s.affected[cellID]
	return ok
}

// AffectedCount returns how many distinct cells interventions have touched.
func (s *Session) AffectedCount() int {
	return len(s.affected)
}

// Reset clears interventions, the affected set, cumulative totals, and the
// optimised flag. Park effects already baked into the modified index stay
// until the registry itself is rebuilt for a new area; point effects vanish
// with the center list because they were never cached.
func (s *Session) Reset() {
	s.centers = nil
	s.conversions = nil
	s.affected = make(map[string]struct{})
	s.cumulativeCoolingArea = 0
	s.cumulativeHeatReduction = 0
	s.optimised = false
	slog.Info("session reset", "session", s.ID)
}

// SetOptimised flags the session's cooling-center layout as produced by the
// external placement optimiser. The flag carries no effect on the decay math.
func (s *Session) SetOptimised(v bool) {
	s.optimised = v
}

// Optimised reports the optimiser flag.
func (s *Session) Optimised() bool {
	return s.optimised
}

// CumulativeCoolingArea returns the running total of park areas of influence.
func (s *Session) CumulativeCoolingArea() float64 {
	return s.cumulativeCoolingArea
}

// CumulativeHeatReduction returns the running total of every reduction any
// park conversion has produced in this session.
func (s *Session) CumulativeHeatReduction() float64 {
	return s.cumulativeHeatReduction
}
