package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/madfolio/internal/config"
	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/aristath/madfolio/internal/modules/returns"
	"github.com/aristath/madfolio/internal/modules/runs"
	"github.com/aristath/madfolio/internal/solver"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		DataDir:           t.TempDir(),
		Port:              8080,
		LogLevel:          "info",
		SolverTimeout:     30 * time.Second,
		DefaultLeverage:   optimization.DefaultLeverage,
		DefaultLowerBound: optimization.DefaultLowerBound,
		DefaultUpperBound: optimization.DefaultUpperBound,
		DefaultTolerance:  optimization.DefaultTolerance,
	}

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "madfolio.db"),
		Name: "madfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, returns.InitSchema(db.Conn()))
	require.NoError(t, runs.InitSchema(db.Conn()))

	service := optimization.NewService(solver.NewSimplex(zerolog.Nop()), cfg.SolverTimeout, zerolog.Nop())

	return New(Config{
		Log:          zerolog.Nop(),
		DB:           db,
		Config:       cfg,
		Port:         cfg.Port,
		DevMode:      true,
		Optimization: service,
		ReturnsRepo:  returns.NewRepository(db.Conn(), zerolog.Nop()),
		RunsRepo:     runs.NewRepository(db.Conn(), zerolog.Nop()),
	})
}

func serveRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := serveRequest(s, "GET", "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "madfolio", response["service"])
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.db.Close())

	rec := serveRequest(s, "GET", "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "unhealthy", response["status"])
}

func TestAPIRoutesAreMounted(t *testing.T) {
	s := newTestServer(t)

	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/api/system"},
		{"GET", "/api/system/database/stats"},
		{"GET", "/api/system/disk"},
		{"GET", "/api/returns"},
		{"GET", "/api/runs"},
		{"POST", "/api/optimization/min-mad"},
		{"POST", "/api/optimization/cardinality"},
		{"POST", "/api/optimization/ratio"},
		{"POST", "/api/optimization/all"},
	}

	for _, tc := range testCases {
		rec := serveRequest(s, tc.method, tc.path, nil)
		assert.NotEqual(t, http.StatusNotFound, rec.Code,
			"%s %s should be mounted (got %d)", tc.method, tc.path, rec.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	s := newTestServer(t)

	rec := serveRequest(s, "GET", "/api/no-such-thing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOptimizationThroughFullStack(t *testing.T) {
	s := newTestServer(t)

	// Store a returns set through the API, optimize it by id, then find the
	// run in the history. Exercises routing, handler wiring, and the shared
	// database end to end.
	setBody := `{
		"name": "full-stack",
		"labels": ["AAA", "BBB", "CCC"],
		"returns": [
			[0.058, 0.008, 0.003],
			[-0.014, 0.076, -0.009],
			[-0.007, -0.007, 0.028],
			[0.003, 0.003, 0.038]
		]
	}`
	rec := serveRequest(s, "POST", "/api/returns", []byte(setBody))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	setID := created["data"].(map[string]interface{})["id"].(string)

	rec = serveRequest(s, "POST", "/api/optimization/min-mad", []byte(`{"set_id": "`+setID+`"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var solved map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &solved))
	data := solved["data"].(map[string]interface{})
	assert.InDelta(t, 0.01, data["risk"].(float64), 1e-6)
	runID := data["run_id"].(string)

	rec = serveRequest(s, "GET", "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	run := fetched["data"].(map[string]interface{})
	assert.Equal(t, "min_mad", run["variant"])
	assert.Equal(t, "ok", run["status"])
	assert.Equal(t, setID, run["set_id"])
}

func TestRequestTimeoutTracksSolverBudget(t *testing.T) {
	s := newTestServer(t)

	// Default solver budget of 30s fits inside the baseline 60s deadline.
	assert.Equal(t, 60*time.Second, s.requestTimeout())

	s.cfg.SolverTimeout = 2 * time.Minute
	assert.Equal(t, 2*time.Minute+15*time.Second, s.requestTimeout())

	s.cfg.SolverTimeout = 0
	assert.Equal(t, 60*time.Second, s.requestTimeout())
}
