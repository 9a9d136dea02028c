package mitigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoin/heatplan/internal/grid"
)

func TestCoolingCenterQueries(t *testing.T) {
	s := NewSession(threeCellRegistry(), DefaultConfig())
	s.AddCoolingCenter(CoolingCenter{X: 0, Y: 0, GridID: "a", Capacity: 100})
	s.AddCoolingCenter(CoolingCenter{X: 10, Y: 0, GridID: "a", Capacity: 250})
	s.AddCoolingCenter(CoolingCenter{X: 100, Y: 0, GridID: "b", Capacity: 80})
	s.AddCoolingCenter(CoolingCenter{X: 500, Y: 500}) // no grid association

	assert.Equal(t, 2, s.CoolingCenterCount("a"))
	assert.Equal(t, 1, s.CoolingCenterCount("b"))
	assert.Equal(t, 0, s.CoolingCenterCount("c"))

	assert.Equal(t, 350.0, s.CoolingCapacity("a"))
	assert.Equal(t, 80.0, s.CoolingCapacity("b"))
	assert.Equal(t, 0.0, s.CoolingCapacity("c"))
}

func TestSessionStats(t *testing.T) {
	s := NewSession(threeCellRegistry(), DefaultConfig())
	s.AddCoolingCenter(CoolingCenter{X: 0, Y: 0, GridID: "a"})
	_, err := s.ApplyParkConversion("a", 8000)
	require.NoError(t, err)
	s.SetOptimised(true)

	stats := s.Stats()
	assert.Equal(t, 1, stats.CoolingCenters)
	assert.Equal(t, 1, stats.ParkConversions)
	assert.True(t, stats.Optimised)
	assert.Equal(t, 40000.0, stats.CumulativeCoolingArea)
	assert.Greater(t, stats.AffectedCells, 0)
}

func TestPrecomputeGridImpacts(t *testing.T) {
	t.Run("pairwise sums within the window", func(t *testing.T) {
		s := NewSession(threeCellRegistry(), DefaultConfig())
		s.PrecomputeGridImpacts()

		// a↔b are 100 apart: each gains the pairwise point decay. c sits
		// 1900 beyond b and 2000 beyond a, outside the 1000-unit window.
		assert.InDelta(t, 0.184, s.GridImpact("a"), 1e-12)
		assert.InDelta(t, 0.184, s.GridImpact("b"), 1e-12)
		assert.Equal(t, 0.0, s.GridImpact("c"))
	})

	t.Run("empty registry is a logged no-op", func(t *testing.T) {
		s := NewSession(grid.BuildRegistry(nil), DefaultConfig())
		s.PrecomputeGridImpacts()
		assert.Empty(t, s.GridImpacts())
	})

	t.Run("unknown cell scores zero", func(t *testing.T) {
		s := NewSession(threeCellRegistry(), DefaultConfig())
		s.PrecomputeGridImpacts()
		assert.Equal(t, 0.0, s.GridImpact("missing"))
	})

	t.Run("pair inside the window but beyond reachability", func(t *testing.T) {
		// 800 apart on both axes passes the window prefilter, but the
		// Euclidean distance ≈1131 exceeds reachability, so the decay
		// contribution is zero.
		reg := grid.BuildRegistry([]grid.Feature{
			{ID: "p", X: 0, Y: 0, HeatIndex: heat(0.5)},
			{ID: "q", X: 800, Y: 800, HeatIndex: heat(0.5)},
		})
		s := NewSession(reg, DefaultConfig())
		s.PrecomputeGridImpacts()
		assert.Equal(t, 0.0, s.GridImpact("p"))
		assert.Equal(t, 0.0, s.GridImpact("q"))
	})
}
