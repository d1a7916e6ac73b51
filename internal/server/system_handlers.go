// Package server provides the HTTP server and routing for madfolio.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/madfolio/internal/database"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	db          *database.DB
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, db *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		db:          db,
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"`   // "healthy" or "unhealthy"
	Database      string  `json:"database"` // "ok" or the failure detail
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	GoVersion     string  `json:"go_version"`
}

// HandleSystemStatus returns process health plus host CPU and memory load
// GET /api/system
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	databaseStatus := "ok"
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Database health check failed")
		status = "unhealthy"
		databaseStatus = err.Error()
	}

	cpuPercent, memPercent := h.getSystemStats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	h.writeJSON(w, SystemStatusResponse{
		Status:        status,
		Database:      databaseStatus,
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   float64(memStats.HeapAlloc) / 1024 / 1024,
		GoVersion:     runtime.Version(),
	})
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Name          string  `json:"name"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	PageSize      int64   `json:"page_size"`
	FreelistCount int64   `json:"freelist_count"`
	LastChecked   string  `json:"last_checked"`
}

// HandleDatabaseStats returns size and page statistics of the database
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to collect database stats")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, DatabaseStatsResponse{
		Name:          h.db.Name(),
		SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
		WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
		PageCount:     stats.PageCount,
		PageSize:      stats.PageSize,
		FreelistCount: stats.FreelistCount,
		LastChecked:   time.Now().Format(time.RFC3339),
	})
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`
}

// HandleDiskUsage returns data directory and filesystem usage
// GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
	}

	if usage, err := disk.Usage(h.dataDir); err != nil {
		h.log.Warn().Err(err).Msg("Failed to read filesystem usage")
	} else {
		response.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
		response.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
		response.DiskPercent = usage.UsedPercent
	}

	h.writeJSON(w, response)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// The CPU sample uses a 100ms interval to keep the endpoint responsive
// while still producing an accurate reading.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	// Memory statistics are instant, no blocking
	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
