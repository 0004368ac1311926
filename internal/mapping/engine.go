package mapping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/metrics"
)

// checkEvery is how many options are processed between context checks.
const checkEvery = 256

// Engine maps facet sets. It holds no per-mapping state and is safe for
// concurrent use.
type Engine struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConcurrency bounds how many facet kinds are mapped at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Map computes the mapping from source (the live version, nil for the
// first version of a data set) to target (the draft).
//
// Locations, filters with their options, indicators and time periods are
// mapped independently and concurrently. An option whose natural key cannot
// be derived aborts the mapping with a *MappingFailedError. Cancellation of
// ctx aborts it with ctx.Err(); no partial result is returned.
func (e *Engine) Map(ctx context.Context, source, target *facet.Set) (*Result, error) {
	if source == nil {
		source = facet.NewSet()
	}
	if target == nil {
		return nil, fmt.Errorf("map: nil target facet set")
	}
	start := time.Now()

	var locations, filters, options, indicators, periods []Entry
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	g.Go(func() error {
		var err error
		locations, err = mapLocations(gctx, source, target)
		return err
	})
	g.Go(func() error {
		var err error
		filters, err = mapFilters(gctx, source, target)
		if err != nil {
			return err
		}
		options, err = mapFilterOptions(gctx, source, target, filters)
		return err
	})
	g.Go(func() error {
		var err error
		indicators, err = mapIndicators(gctx, source, target)
		return err
	})
	g.Go(func() error {
		var err error
		periods, err = mapTimePeriods(gctx, source, target)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	r := newResult(source, target)
	r.entries[facet.KindLocation] = locations
	r.entries[facet.KindFilter] = filters
	r.entries[facet.KindFilterOption] = options
	r.entries[facet.KindIndicator] = indicators
	r.entries[facet.KindTimePeriod] = periods

	for _, kind := range facet.Kinds {
		for _, typ := range []EntryType{Mapped, New, NoMapping, AmbiguousCandidates} {
			e.metrics.AddMappingEntries(string(kind), string(typ), r.Count(kind, typ))
		}
	}
	e.logger.Debug("mapping computed",
		"locations", len(locations),
		"filters", len(filters),
		"filter_options", len(options),
		"indicators", len(indicators),
		"time_periods", len(periods),
		"unresolved", r.Unresolved(),
		"duration", time.Since(start))
	return r, nil
}

func checkpoint(ctx context.Context, i int) error {
	if i%checkEvery == 0 {
		return ctx.Err()
	}
	return nil
}
