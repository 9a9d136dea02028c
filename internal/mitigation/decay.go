// Package mitigation implements the heat mitigation impact engine: decay
// models for cooling centers and park conversions, and the session state
// that accumulates their effect on the grid.
package mitigation

import "math"

// OptimalEffect is the total heat reduction of the reference cooling-center
// placement produced by the external optimiser. The search itself is an
// out-of-scope collaborator; only its published result constant lives here.
const OptimalEffect = 4.64

// Config holds the engine tunables. Each session carries its own copy so
// scenarios with different calibrations can run side by side.
type Config struct {
	// Cooling center point decay.
	Reachability float64 // max distance (m) at which a center has any effect
	MaxReduction float64 // reduction at distance 0
	MinReduction float64 // reduction at distance Reachability

	// Park conversion area decay.
	ParkCoolingConstant float64 // empirical cooling per full cell converted
	GridCellArea        float64 // m² per grid cell (250m × 250m grid)

	// Converted-area thresholds (m²) mapping to influence factors 5..10;
	// anything beyond the last threshold gets factor 11.
	InfluenceThresholds [6]float64
}

// DefaultConfig returns the calibration used for the Helsinki-region grid.
func DefaultConfig() Config {
	return Config{
		Reachability:        1000,
		MaxReduction:        0.20,
		MinReduction:        0.04,
		ParkCoolingConstant: 0.177,
		GridCellArea:        62500,
		InfluenceThresholds: [6]float64{8000, 16000, 24000, 32000, 40000, 48000},
	}
}

// PointReduction returns the heat-index reduction a single cooling center
// applies at distance d: linear from MaxReduction at d=0 down to MinReduction
// at d=Reachability, hard cutoff beyond.
func (c Config) PointReduction(d float64) float64 {
	if d > c.Reachability {
		return 0
	}
	return c.MaxReduction - (d/c.Reachability)*(c.MaxReduction-c.MinReduction)
}

// InfluenceFactor maps converted area to the reach multiplier for park
// diffusion. Larger conversions cool farther.
func (c Config) InfluenceFactor(areaM2 float64) float64 {
	for i, threshold := range c.InfluenceThresholds {
		if areaM2 <= threshold {
			return float64(5 + i)
		}
	}
	return 11
}

// CoolingRadius inverts the disc area formula to turn an area of influence
// into a neighbor search radius.
func CoolingRadius(areaOfInfluence float64) float64 {
	return math.Sqrt(areaOfInfluence / math.Pi)
}

// Calibration reference areas for the neighbor tiers, derived from the grid
// spacing: a disc of half a cell side, of the cell diagonal half-span, and of
// one and a half cell sides.
func (c Config) effectingAreas() (e1, e5, e9 float64) {
	half := math.Sqrt(c.GridCellArea) / 2 // 125 m on the 250 m grid
	e1 = math.Pi * half * half
	e5 = math.Pi * (half*half + half*half)
	e9 = math.Pi * (3 * half) * (3 * half)
	return e1, e5, e9
}

// tierReduction interpolates a neighbor tier: zero at or below lo, linear
// ramp across [lo, hi], the full tier value at or above hi.
func tierReduction(areaOfInfluence, lo, hi, tier float64) float64 {
	if areaOfInfluence >= hi {
		return tier
	}
	if areaOfInfluence > lo {
		return tier * (areaOfInfluence - lo) / (hi - lo)
	}
	return 0
}

// NeighborReduction returns the park-diffusion reduction for a neighbor at
// the given closeness rank (0-based). The 4 nearest get the half tier, ranks
// 4..7 the quarter tier, each interpolated over its own calibration band.
func (c Config) NeighborReduction(rank int, areaOfInfluence float64) float64 {
	e1, e5, e9 := c.effectingAreas()
	if rank < 4 {
		return tierReduction(areaOfInfluence, e1, e5, 0.5*c.ParkCoolingConstant)
	}
	return tierReduction(areaOfInfluence, e5, e9, 0.25*c.ParkCoolingConstant)
}

// SourceReduction returns the reduction applied at the conversion cell itself:
// proportional to how much of the cell was converted.
func (c Config) SourceReduction(areaM2 float64) float64 {
	return (areaM2 / c.GridCellArea) * c.ParkCoolingConstant
}
