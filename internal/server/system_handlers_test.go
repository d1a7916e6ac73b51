package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/madfolio/internal/database"
)

func setupSystemHandlers(t *testing.T) (*SystemHandlers, string) {
	t.Helper()

	dataDir := t.TempDir()
	db, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "madfolio.db"),
		Name: "madfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSystemHandlers(zerolog.Nop(), dataDir, db), dataDir
}

func TestHandleSystemStatus(t *testing.T) {
	handlers, _ := setupSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system", nil)
	rec := httptest.NewRecorder()

	handlers.HandleSystemStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "ok", response.Database)
	assert.GreaterOrEqual(t, response.UptimeSeconds, 0.0)
	assert.GreaterOrEqual(t, response.CPUPercent, 0.0)
	assert.LessOrEqual(t, response.CPUPercent, 100.0)
	assert.Greater(t, response.MemoryPercent, 0.0)
	assert.Greater(t, response.Goroutines, 0)
	assert.Greater(t, response.HeapAllocMB, 0.0)
	assert.NotEmpty(t, response.GoVersion)
}

func TestHandleSystemStatus_UnhealthyDatabase(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "madfolio.db"),
		Name: "madfolio",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	handlers := NewSystemHandlers(zerolog.Nop(), dataDir, db)

	req := httptest.NewRequest(http.MethodGet, "/api/system", nil)
	rec := httptest.NewRecorder()

	handlers.HandleSystemStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "unhealthy", response.Status)
	assert.NotEqual(t, "ok", response.Database)
}

func TestHandleDatabaseStats(t *testing.T) {
	handlers, _ := setupSystemHandlers(t)

	// Give the database some content so the file has pages
	_, err := handlers.db.Conn().Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := handlers.db.Conn().Exec("INSERT INTO t (v) VALUES (?)", "some value")
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/system/database/stats", nil)
	rec := httptest.NewRecorder()

	handlers.HandleDatabaseStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response DatabaseStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "madfolio", response.Name)
	assert.Greater(t, response.PageCount, int64(0))
	assert.Greater(t, response.PageSize, int64(0))
	assert.GreaterOrEqual(t, response.SizeMB, 0.0)
	assert.NotEmpty(t, response.LastChecked)
}

func TestHandleDiskUsage(t *testing.T) {
	handlers, dataDir := setupSystemHandlers(t)

	// Put a known file into the data directory
	payload := make([]byte, 256*1024)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "blob.bin"), payload, 0644))

	req := httptest.NewRequest(http.MethodGet, "/api/system/disk", nil)
	rec := httptest.NewRecorder()

	handlers.HandleDiskUsage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response DiskUsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Greater(t, response.DataDirMB, 0.2, "256KB blob should register")
	assert.Greater(t, response.DiskTotalGB, 0.0)
	assert.GreaterOrEqual(t, response.DiskPercent, 0.0)
	assert.LessOrEqual(t, response.DiskPercent, 100.0)
}

func TestGetDirSize_MissingDirectory(t *testing.T) {
	handlers, _ := setupSystemHandlers(t)

	size := handlers.getDirSize(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Equal(t, 0.0, size)
}
