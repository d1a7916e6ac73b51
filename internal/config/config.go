// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/madfolio/internal/modules/optimization"
)

// Config holds application configuration
type Config struct {
	DataDir            string        // Base directory for the database (defaults to "./data", always absolute)
	Port               int           // HTTP listen port
	LogLevel           string        // zerolog level: trace, debug, info, warn, error
	DevMode            bool          // Relaxes CORS and disables response compression
	SolverTimeout      time.Duration // Per-solve wall clock budget (0 disables the timeout)
	ReoptimizeEnabled  bool          // Whether the scheduled re-optimization job runs
	ReoptimizeSchedule string        // Cron spec (with seconds) for the re-optimization job
	ReoptimizeMaxPos   int           // Cardinality budget for scheduled runs (0 = asset count of the set)

	// Optimization defaults applied when a request omits the parameter
	DefaultLeverage   float64
	DefaultLowerBound float64
	DefaultUpperBound float64
	DefaultTolerance  float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check MADFOLIO_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("MADFOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PORT", 8080),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		SolverTimeout:      time.Duration(getEnvAsInt("SOLVER_TIMEOUT_SECONDS", 30)) * time.Second,
		ReoptimizeEnabled:  getEnvAsBool("REOPTIMIZE_ENABLED", false),
		ReoptimizeSchedule: getEnv("REOPTIMIZE_SCHEDULE", "0 0 18 * * *"), // Daily at 18:00
		ReoptimizeMaxPos:   getEnvAsInt("REOPTIMIZE_MAX_POSITIONS", 0),
		DefaultLeverage:    getEnvAsFloat("DEFAULT_LEVERAGE", optimization.DefaultLeverage),
		DefaultLowerBound:  getEnvAsFloat("DEFAULT_LOWER_BOUND", optimization.DefaultLowerBound),
		DefaultUpperBound:  getEnvAsFloat("DEFAULT_UPPER_BOUND", optimization.DefaultUpperBound),
		DefaultTolerance:   getEnvAsFloat("DEFAULT_TOLERANCE", optimization.DefaultTolerance),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the path of the application database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "madfolio.db")
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}

	if c.SolverTimeout < 0 {
		return fmt.Errorf("invalid solver timeout %s: must not be negative", c.SolverTimeout)
	}

	if c.DefaultLowerBound > c.DefaultUpperBound {
		return fmt.Errorf("default lower bound %.6f exceeds default upper bound %.6f",
			c.DefaultLowerBound, c.DefaultUpperBound)
	}

	if c.DefaultTolerance < 0 {
		return fmt.Errorf("invalid default tolerance %.6f: must not be negative", c.DefaultTolerance)
	}

	if c.ReoptimizeEnabled && c.ReoptimizeSchedule == "" {
		return fmt.Errorf("re-optimization is enabled but REOPTIMIZE_SCHEDULE is empty")
	}

	if c.ReoptimizeMaxPos < 0 {
		return fmt.Errorf("invalid re-optimization position budget %d: must not be negative", c.ReoptimizeMaxPos)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
