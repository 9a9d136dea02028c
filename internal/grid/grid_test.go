package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestBuildRegistry(t *testing.T) {
	t.Run("skips features without heat index", func(t *testing.T) {
		reg := BuildRegistry([]Feature{
			{ID: "a", X: 0, Y: 0, HeatIndex: f(0.5)},
			{ID: "b", X: 250, Y: 0}, // no heat attribute — excluded, not an error
			{ID: "c", X: 500, Y: 0, HeatIndex: f(0.8)},
		})

		assert.Equal(t, 2, reg.Count())
		_, ok := reg.Cell("b")
		assert.False(t, ok)
	})

	t.Run("initializes modified index to baseline", func(t *testing.T) {
		reg := BuildRegistry([]Feature{{ID: "a", HeatIndex: f(0.73)}})

		v, ok := reg.Modified("a")
		require.True(t, ok)
		assert.Equal(t, 0.73, v)
	})

	t.Run("keeps first on duplicate id", func(t *testing.T) {
		reg := BuildRegistry([]Feature{
			{ID: "a", X: 0, HeatIndex: f(0.4)},
			{ID: "a", X: 999, HeatIndex: f(0.9)},
		})

		require.Equal(t, 1, reg.Count())
		c, _ := reg.Cell("a")
		assert.Equal(t, 0.4, c.Baseline)
	})

	t.Run("empty input", func(t *testing.T) {
		reg := BuildRegistry(nil)
		assert.Equal(t, 0, reg.Count())
		assert.Empty(t, reg.ModifiedAll())
	})
}

func TestSetModified(t *testing.T) {
	reg := BuildRegistry([]Feature{{ID: "a", HeatIndex: f(0.5)}})

	t.Run("clamps at zero", func(t *testing.T) {
		reg.SetModified("a", -0.3)
		v, _ := reg.Modified("a")
		assert.Equal(t, 0.0, v)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		reg.SetModified("missing", 0.1)
		_, ok := reg.Modified("missing")
		assert.False(t, ok)
	})
}

func TestModifiedAllIsACopy(t *testing.T) {
	reg := BuildRegistry([]Feature{{ID: "a", HeatIndex: f(0.5)}})

	m := reg.ModifiedAll()
	m["a"] = 99

	v, _ := reg.Modified("a")
	assert.Equal(t, 0.5, v)
}
