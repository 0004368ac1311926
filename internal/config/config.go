// Package config loads dataver settings from DATAVER_* environment
// variables. Command-line flags override the loaded values.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/dataver/internal/criteria"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Backends that can serve observation queries.
const (
	BackendSQLite = "sqlite"
	BackendDuckDB = "duckdb"
)

// Config holds all settings.
type Config struct {
	// Metadata database path.
	DBPath string
	// Query backend: sqlite or duckdb.
	Backend string
	// DuckDB file mirroring observations; empty means in-memory.
	DuckDBPath string

	LogLevel  slog.Level
	LogFormat string

	// Query budgets
	QueryTimeout        time.Duration
	MaxTimePeriods      int
	MaxHierarchyProduct int

	// Version meta cache
	MetaCacheSize int
	MetaCacheTTL  time.Duration

	// Pipeline
	MappingConcurrency int
	MaxObservations    int
	StaleAfter         time.Duration

	// Preview tokens
	PreviewSweepSchedule string
	PreviewGrace         time.Duration
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DBPath = getEnvDefault("DATAVER_DB", "dataver.db")
	cfg.Backend = getEnvDefault("DATAVER_BACKEND", BackendSQLite)
	cfg.DuckDBPath = os.Getenv("DATAVER_DUCKDB")

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DATAVER_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DATAVER_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("DATAVER_LOG_FORMAT", "text")

	if cfg.QueryTimeout, err = getEnvDuration("DATAVER_QUERY_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DATAVER_QUERY_TIMEOUT: %w", err)
	}
	limits := criteria.DefaultLimits()
	if cfg.MaxTimePeriods, err = getEnvInt("DATAVER_MAX_TIME_PERIODS", limits.MaxTimePeriods); err != nil {
		return nil, fmt.Errorf("DATAVER_MAX_TIME_PERIODS: %w", err)
	}
	if cfg.MaxHierarchyProduct, err = getEnvInt("DATAVER_MAX_HIERARCHY_PRODUCT", limits.MaxHierarchyProduct); err != nil {
		return nil, fmt.Errorf("DATAVER_MAX_HIERARCHY_PRODUCT: %w", err)
	}

	if cfg.MetaCacheSize, err = getEnvInt("DATAVER_META_CACHE_SIZE", 256); err != nil {
		return nil, fmt.Errorf("DATAVER_META_CACHE_SIZE: %w", err)
	}
	if cfg.MetaCacheTTL, err = getEnvDuration("DATAVER_META_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("DATAVER_META_CACHE_TTL: %w", err)
	}

	if cfg.MappingConcurrency, err = getEnvInt("DATAVER_MAPPING_CONCURRENCY", 4); err != nil {
		return nil, fmt.Errorf("DATAVER_MAPPING_CONCURRENCY: %w", err)
	}
	if cfg.MaxObservations, err = getEnvInt("DATAVER_MAX_OBSERVATIONS", 5_000_000); err != nil {
		return nil, fmt.Errorf("DATAVER_MAX_OBSERVATIONS: %w", err)
	}
	if cfg.StaleAfter, err = getEnvDuration("DATAVER_STALE_AFTER", time.Hour); err != nil {
		return nil, fmt.Errorf("DATAVER_STALE_AFTER: %w", err)
	}

	cfg.PreviewSweepSchedule = getEnvDefault("DATAVER_PREVIEW_SWEEP_SCHEDULE", "@hourly")
	if cfg.PreviewGrace, err = getEnvDuration("DATAVER_PREVIEW_GRACE", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("DATAVER_PREVIEW_GRACE: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Call it again after applying flag
// overrides.
func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return fmt.Errorf("DATAVER_DB: path is required")
	case c.Backend != BackendSQLite && c.Backend != BackendDuckDB:
		return fmt.Errorf("DATAVER_BACKEND: invalid backend %q, allowed: %s, %s", c.Backend, BackendSQLite, BackendDuckDB)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("DATAVER_LOG_FORMAT: invalid format %q, allowed: json, text", c.LogFormat)
	case c.QueryTimeout < 0:
		return fmt.Errorf("DATAVER_QUERY_TIMEOUT: must not be negative")
	case c.MaxTimePeriods <= 0:
		return fmt.Errorf("DATAVER_MAX_TIME_PERIODS: must be > 0")
	case c.MaxHierarchyProduct <= 0:
		return fmt.Errorf("DATAVER_MAX_HIERARCHY_PRODUCT: must be > 0")
	case c.MetaCacheSize <= 0:
		return fmt.Errorf("DATAVER_META_CACHE_SIZE: must be > 0")
	case c.MetaCacheTTL <= 0:
		return fmt.Errorf("DATAVER_META_CACHE_TTL: must be > 0")
	case c.MappingConcurrency <= 0:
		return fmt.Errorf("DATAVER_MAPPING_CONCURRENCY: must be > 0")
	case c.MaxObservations <= 0:
		return fmt.Errorf("DATAVER_MAX_OBSERVATIONS: must be > 0")
	case c.StaleAfter <= 0:
		return fmt.Errorf("DATAVER_STALE_AFTER: must be > 0")
	case c.PreviewGrace < 0:
		return fmt.Errorf("DATAVER_PREVIEW_GRACE: must not be negative")
	}
	return nil
}

// Limits returns the query parse budgets.
func (c *Config) Limits() criteria.Limits {
	return criteria.Limits{MaxTimePeriods: c.MaxTimePeriods, MaxHierarchyProduct: c.MaxHierarchyProduct}
}

// SetupLogger builds the logger described by cfg, writing to w, and
// installs it as the slog default.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go syntax: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}
