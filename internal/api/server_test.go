package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoin/heatplan/internal/grid"
	"github.com/avoin/heatplan/internal/mitigation"
)

const testAdminKey = "test-admin-key"

func heat(v float64) *float64 { return &v }

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	reg := grid.BuildRegistry([]grid.Feature{
		{ID: "a", X: 0, Y: 0, HeatIndex: heat(0.5)},
		{ID: "b", X: 100, Y: 0, HeatIndex: heat(0.6)},
		{ID: "c", X: 2000, Y: 0, HeatIndex: heat(0.7)},
	})
	srv := &Server{
		Session:  mitigation.NewSession(reg, mitigation.DefaultConfig()),
		AdminKey: testAdminKey,
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func adminPost(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestStatus(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	decode(t, resp, &status)
	assert.Equal(t, float64(3), status["cells"])
	assert.Equal(t, false, status["optimised"])
	assert.NotEmpty(t, status["session"])
}

func TestAddCoolingCenter(t *testing.T) {
	srv, ts := testServer(t)

	resp := adminPost(t, ts.URL+"/api/v1/cooling-center", map[string]any{
		"x": 0.0, "y": 0.0, "grid_id": "a", "capacity": 120.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["total_centers"])

	r, ok := srv.Session.TotalReductionForCell("a")
	require.True(t, ok)
	assert.InDelta(t, 0.20, r, 1e-12)
}

func TestAddPark(t *testing.T) {
	srv, ts := testServer(t)

	resp := adminPost(t, ts.URL+"/api/v1/park", map[string]any{
		"source_cell_id": "a", "area_converted_m2": 62500.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result mitigation.ParkResult
	decode(t, resp, &result)
	assert.Equal(t, "a", result.SourceCellID)
	assert.Equal(t, 62500.0*11, result.AreaOfInfluence)
	assert.InDelta(t, 0.5-0.177, result.SourceIndex, 1e-12)

	v, _ := srv.Session.Registry().Modified("a")
	assert.InDelta(t, 0.323, v, 1e-12)
}

func TestAddParkUnknownCell(t *testing.T) {
	_, ts := testServer(t)

	resp := adminPost(t, ts.URL+"/api/v1/park", map[string]any{
		"source_cell_id": "missing", "area_converted_m2": 8000.0,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminAuth(t *testing.T) {
	t.Run("missing token rejected", func(t *testing.T) {
		_, ts := testServer(t)
		resp, err := http.Post(ts.URL+"/api/v1/reset", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("GET on admin endpoint rejected", func(t *testing.T) {
		_, ts := testServer(t)
		resp, err := http.Get(ts.URL + "/api/v1/reset")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("admin disabled without key", func(t *testing.T) {
		reg := grid.BuildRegistry([]grid.Feature{{ID: "a", HeatIndex: heat(0.5)}})
		srv := &Server{Session: mitigation.NewSession(reg, mitigation.DefaultConfig())}
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/reset", nil)
		req.Header.Set("Authorization", "Bearer anything")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestCells(t *testing.T) {
	_, ts := testServer(t)

	adminPost(t, ts.URL+"/api/v1/park", map[string]any{
		"source_cell_id": "a", "area_converted_m2": 8000.0,
	}).Body.Close()

	t.Run("all cells", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/cells")
		require.NoError(t, err)

		var cells []cellView
		decode(t, resp, &cells)
		require.Len(t, cells, 3)
		assert.Equal(t, "a", cells[0].ID)
		assert.Less(t, cells[0].Modified, cells[0].Baseline)
	})

	t.Run("affected filter", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/cells?affected=true")
		require.NoError(t, err)

		var cells []cellView
		decode(t, resp, &cells)
		for _, c := range cells {
			assert.True(t, c.Affected)
		}
	})
}

func TestCellDetail(t *testing.T) {
	_, ts := testServer(t)

	t.Run("known cell", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/cell/b")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var detail map[string]any
		decode(t, resp, &detail)
		assert.Equal(t, "b", detail["id"])
		assert.Equal(t, 0.6, detail["baseline_heat_index"])
	})

	t.Run("unknown cell", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/cell/zzz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestResetEndpoint(t *testing.T) {
	srv, ts := testServer(t)

	adminPost(t, ts.URL+"/api/v1/cooling-center", map[string]any{"x": 0.0, "y": 0.0}).Body.Close()
	resp := adminPost(t, ts.URL+"/api/v1/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Empty(t, srv.Session.CoolingCenters())
}

func TestOptimisedEndpoint(t *testing.T) {
	srv, ts := testServer(t)

	resp := adminPost(t, ts.URL+"/api/v1/optimised", map[string]any{"optimised": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.True(t, srv.Session.Optimised())
}

func TestPrecomputeEndpoint(t *testing.T) {
	srv, ts := testServer(t)

	resp := adminPost(t, ts.URL+"/api/v1/impacts/precompute", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Greater(t, srv.Session.GridImpact("a"), 0.0)

	impacts, err := http.Get(ts.URL + "/api/v1/impacts")
	require.NoError(t, err)
	var body map[string]any
	decode(t, impacts, &body)
	assert.Equal(t, true, body["precomputed"])
}

func TestStreamRequiresRelayKey(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
