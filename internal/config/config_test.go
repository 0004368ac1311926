package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/criteria"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dataver.db", cfg.DBPath)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, criteria.DefaultLimits(), cfg.Limits())
	assert.Equal(t, "@hourly", cfg.PreviewSweepSchedule)
	assert.Equal(t, 24*time.Hour, cfg.PreviewGrace)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATAVER_DB", "/var/lib/dataver/meta.db")
	t.Setenv("DATAVER_BACKEND", "duckdb")
	t.Setenv("DATAVER_LOG_LEVEL", "DEBUG")
	t.Setenv("DATAVER_LOG_FORMAT", "json")
	t.Setenv("DATAVER_MAX_TIME_PERIODS", "12")
	t.Setenv("DATAVER_META_CACHE_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/dataver/meta.db", cfg.DBPath)
	assert.Equal(t, BackendDuckDB, cfg.Backend)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 12, cfg.Limits().MaxTimePeriods)
	assert.Equal(t, 90*time.Second, cfg.MetaCacheTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, val, want string
	}{
		{"DATAVER_BACKEND", "postgres", "DATAVER_BACKEND"},
		{"DATAVER_LOG_LEVEL", "loud", "DATAVER_LOG_LEVEL"},
		{"DATAVER_LOG_FORMAT", "xml", "DATAVER_LOG_FORMAT"},
		{"DATAVER_QUERY_TIMEOUT", "soon", "DATAVER_QUERY_TIMEOUT"},
		{"DATAVER_MAX_TIME_PERIODS", "0", "DATAVER_MAX_TIME_PERIODS"},
		{"DATAVER_META_CACHE_SIZE", "many", "DATAVER_META_CACHE_SIZE"},
		{"DATAVER_MAPPING_CONCURRENCY", "-1", "DATAVER_MAPPING_CONCURRENCY"},
		{"DATAVER_STALE_AFTER", "0s", "DATAVER_STALE_AFTER"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupLogger(&Config{LogLevel: slog.LevelWarn, LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "version", "v1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"version":"v1"`)
}
