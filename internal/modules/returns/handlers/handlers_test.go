package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/madfolio/internal/modules/returns"
)

func TestHandleCreateSet_Success(t *testing.T) {
	router := setupTestRouter(t)

	body := `{
		"name": "tech-weekly",
		"labels": ["AAA", "BBB"],
		"returns": [[0.01, -0.02], [-0.015, 0.03], [0.005, 0.01]]
	}`

	w := doRequest(router, "POST", "/api/returns", []byte(body))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "tech-weekly", data["name"])
	assert.Equal(t, float64(2), data["assets"])
	assert.Equal(t, float64(3), data["scenarios"])
	assert.Contains(t, response, "metadata")
}

func TestHandleCreateSet_InvalidJSON(t *testing.T) {
	router := setupTestRouter(t)

	w := doRequest(router, "POST", "/api/returns", []byte("{not json"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeResponse(t, w)
	assert.Contains(t, response["error"], "Invalid request body")
}

func TestHandleCreateSet_MissingName(t *testing.T) {
	router := setupTestRouter(t)

	body := `{"labels": ["AAA"], "returns": [[0.01]]}`
	w := doRequest(router, "POST", "/api/returns", []byte(body))

	require.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeResponse(t, w)
	assert.Contains(t, response["error"], "name")
}

func TestHandleCreateSet_RaggedMatrix(t *testing.T) {
	router := setupTestRouter(t)

	body := `{
		"name": "bad",
		"labels": ["AAA", "BBB"],
		"returns": [[0.01, -0.02], [0.015]]
	}`
	w := doRequest(router, "POST", "/api/returns", []byte(body))

	require.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeResponse(t, w)
	assert.NotEmpty(t, response["error"])
}

func TestHandleGetSet_ReturnsStoredValues(t *testing.T) {
	router := setupTestRouter(t)

	id := createTestSet(t, router, "energy")

	w := doRequest(router, "GET", "/api/returns/"+id, nil)

	require.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})

	assert.Equal(t, id, data["id"])
	assert.Equal(t, "energy", data["name"])
	assert.Equal(t, []interface{}{"AAA", "BBB"}, data["labels"])

	rows := data["returns"].([]interface{})
	require.Len(t, rows, 3)
	firstRow := rows[0].([]interface{})
	assert.Equal(t, 0.01, firstRow[0])
	assert.Equal(t, -0.02, firstRow[1])
}

func TestHandleGetSet_NotFound(t *testing.T) {
	router := setupTestRouter(t)

	w := doRequest(router, "GET", "/api/returns/no-such-id", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	response := decodeResponse(t, w)
	assert.Contains(t, response["error"], "not found")
}

func TestHandleListSets_CountsStoredSets(t *testing.T) {
	router := setupTestRouter(t)

	createTestSet(t, router, "set-a")
	createTestSet(t, router, "set-b")

	w := doRequest(router, "GET", "/api/returns", nil)

	require.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
	assert.Len(t, data["sets"].([]interface{}), 2)
}

func TestHandleListSets_EmptyStore(t *testing.T) {
	router := setupTestRouter(t)

	w := doRequest(router, "GET", "/api/returns", nil)

	require.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["count"])
}

func TestHandleDeleteSet_ThenNotFound(t *testing.T) {
	router := setupTestRouter(t)

	id := createTestSet(t, router, "doomed")

	w := doRequest(router, "DELETE", "/api/returns/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, true, data["deleted"])

	// Second delete finds nothing
	w = doRequest(router, "DELETE", "/api/returns/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Test helpers

func setupTestRouter(t *testing.T) chi.Router {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, returns.InitSchema(db))

	repo := returns.NewRepository(db, zerolog.Nop())
	handler := NewHandler(repo, zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})

	return router
}

func doRequest(router chi.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func createTestSet(t *testing.T, router chi.Router, name string) string {
	t.Helper()

	body := `{
		"name": "` + name + `",
		"labels": ["AAA", "BBB"],
		"returns": [[0.01, -0.02], [-0.015, 0.03], [0.005, 0.01]]
	}`

	w := doRequest(router, "POST", "/api/returns", []byte(body))
	require.Equal(t, http.StatusCreated, w.Code)

	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	return data["id"].(string)
}
