package mitigation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointReduction(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("max at distance zero", func(t *testing.T) {
		assert.Equal(t, 0.20, cfg.PointReduction(0))
	})

	t.Run("min at reachability", func(t *testing.T) {
		assert.InDelta(t, 0.04, cfg.PointReduction(1000), 1e-12)
	})

	t.Run("zero beyond reachability", func(t *testing.T) {
		assert.Equal(t, 0.0, cfg.PointReduction(1000.01))
		assert.Equal(t, 0.0, cfg.PointReduction(5000))
	})

	t.Run("linear interpolation at midpoint", func(t *testing.T) {
		// 0.20 − 0.5×(0.20−0.04) = 0.12
		assert.InDelta(t, 0.12, cfg.PointReduction(500), 1e-12)
	})

	t.Run("monotonically decreasing", func(t *testing.T) {
		prev := cfg.PointReduction(0)
		for d := 50.0; d <= 1000; d += 50 {
			cur := cfg.PointReduction(d)
			assert.Less(t, cur, prev, "distance %.0f", d)
			prev = cur
		}
	})
}

func TestInfluenceFactor(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		area   float64
		factor float64
	}{
		{1000, 5},
		{8000, 5}, // boundary is inclusive
		{8001, 6},
		{16000, 6},
		{24000, 7},
		{32000, 8},
		{40000, 9},
		{48000, 10},
		{48001, 11},
		{200000, 11},
	}
	for _, c := range cases {
		assert.Equal(t, c.factor, cfg.InfluenceFactor(c.area), "area %.0f", c.area)
	}
}

func TestCoolingRadius(t *testing.T) {
	// A 40000 m² influence disc has radius sqrt(40000/π) ≈ 112.8
	assert.InDelta(t, 112.838, CoolingRadius(40000), 0.001)
	assert.Equal(t, 0.0, CoolingRadius(0))
}

func TestSourceReduction(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("one full cell converted", func(t *testing.T) {
		assert.InDelta(t, 0.177, cfg.SourceReduction(62500), 1e-12)
	})

	t.Run("half cell converted", func(t *testing.T) {
		assert.InDelta(t, 0.0885, cfg.SourceReduction(31250), 1e-12)
	})
}

func TestNeighborReduction(t *testing.T) {
	cfg := DefaultConfig()
	e1 := math.Pi * 125 * 125          // ≈ 49087
	e5 := math.Pi * (125*125 + 125*125) // ≈ 98175
	e9 := math.Pi * 375 * 375          // ≈ 441786

	t.Run("four nearest get full half tier above effecting5", func(t *testing.T) {
		for rank := 0; rank < 4; rank++ {
			assert.InDelta(t, 0.5*0.177, cfg.NeighborReduction(rank, e5), 1e-12)
		}
	})

	t.Run("four nearest ramp between effecting1 and effecting5", func(t *testing.T) {
		mid := (e1 + e5) / 2
		assert.InDelta(t, 0.25*0.177, cfg.NeighborReduction(0, mid), 1e-9)
	})

	t.Run("four nearest get nothing at or below effecting1", func(t *testing.T) {
		assert.Equal(t, 0.0, cfg.NeighborReduction(0, e1))
		assert.Equal(t, 0.0, cfg.NeighborReduction(3, 40000))
	})

	t.Run("outer ranks use the quarter tier band", func(t *testing.T) {
		assert.InDelta(t, 0.25*0.177, cfg.NeighborReduction(4, e9), 1e-12)
		assert.InDelta(t, 0.25*0.177, cfg.NeighborReduction(7, e9+1), 1e-12)
		assert.Equal(t, 0.0, cfg.NeighborReduction(4, e5))
		assert.InDelta(t, 0.5*0.25*0.177, cfg.NeighborReduction(5, (e5+e9)/2), 1e-9)
	})

	t.Run("concrete ramp value", func(t *testing.T) {
		// factor 6 applies to a 16000 m² conversion → 96000 m² of influence
		got := cfg.NeighborReduction(0, 96000)
		assert.InDelta(t, 0.08458, got, 1e-4)
	})
}
