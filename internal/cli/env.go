package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/dataver/internal/config"
	"github.com/roach88/dataver/internal/duckstore"
	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/metrics"
	"github.com/roach88/dataver/internal/pipeline"
	"github.com/roach88/dataver/internal/preview"
	"github.com/roach88/dataver/internal/store"
)

var _ pipeline.ObservationSink = (*duckstore.Store)(nil)

// env is the set of services one command works with, built from the
// loaded configuration.
type env struct {
	cfg      *config.Config
	store    *store.Store
	duck     *duckstore.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	executor *executor.Executor
	previews *preview.Service
}

// openEnv opens the metadata store and, when the DuckDB backend is
// selected or a DuckDB path is configured, the columnar mirror.
func openEnv(opts *RootOptions) (*env, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	e := &env{cfg: cfg, store: st, registry: prometheus.NewRegistry()}
	e.metrics = metrics.New(e.registry)

	if cfg.Backend == config.BackendDuckDB || cfg.DuckDBPath != "" {
		path := duckPath(cfg)
		if e.duck, err = duckstore.Open(path); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	logger := opts.Logger
	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(e.metrics),
		pipeline.WithMaxObservations(cfg.MaxObservations),
		pipeline.WithMappingEngine(mapping.NewEngine(
			mapping.WithLogger(logger),
			mapping.WithMetrics(e.metrics),
			mapping.WithConcurrency(cfg.MappingConcurrency),
		)),
	}
	if e.duck != nil {
		pipeOpts = append(pipeOpts, pipeline.WithSinks(e.duck))
	}
	e.pipeline = pipeline.New(st, pipeOpts...)

	var backend executor.Backend = store.NewObservationBackend(st)
	if cfg.Backend == config.BackendDuckDB {
		backend = e.duck
	}
	e.executor = executor.New(backend,
		executor.WithLogger(logger),
		executor.WithMetrics(e.metrics),
		executor.WithTimeout(cfg.QueryTimeout),
		executor.WithLimits(cfg.Limits()),
		executor.WithMetaCache(executor.NewMetaCache(st, cfg.MetaCacheSize, cfg.MetaCacheTTL, e.metrics)),
	)

	e.previews = preview.NewService(st, preview.WithLogger(logger))
	return e, nil
}

// duckPath is the configured DuckDB file, or one next to the metadata
// database. An in-memory metadata database gets an in-memory mirror.
func duckPath(cfg *config.Config) string {
	if cfg.DuckDBPath != "" {
		return cfg.DuckDBPath
	}
	if cfg.DBPath == ":memory:" {
		return ""
	}
	return strings.TrimSuffix(cfg.DBPath, ".db") + ".duckdb"
}

// Close releases the databases.
func (e *env) Close() error {
	var errs []error
	if e.duck != nil {
		errs = append(errs, e.duck.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// withEnv opens an env, runs fn and closes the env. A failure to open is
// a command error.
func withEnv(opts *RootOptions, fn func(e *env) error) error {
	e, err := openEnv(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(e)
}
