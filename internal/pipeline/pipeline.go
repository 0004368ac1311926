package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/metrics"
	"github.com/roach88/dataver/internal/store"
	"github.com/roach88/dataver/internal/version"
)

// Stage names a pipeline step in logs, metrics and errors.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageMap      Stage = "map"
	StageClassify Stage = "classify"
	StageResolve  Stage = "resolve"
	StagePublish  Stage = "publish"
	StageRecover  Stage = "recover"
)

// DefaultMaxObservations bounds the rows of one ingestion.
const DefaultMaxObservations = 5_000_000

// ObservationSink receives the observation rows of a version in addition
// to the metadata store, e.g. a columnar query backend. DropVersion is
// called when a draft is discarded.
type ObservationSink interface {
	WriteObservations(ctx context.Context, versionID string, set *facet.Set, obs []facet.Observation) error
	DropVersion(ctx context.Context, versionID string) error
}

// Pipeline runs versions through the stages against one store.
type Pipeline struct {
	store   *store.Store
	mapper  *mapping.Engine
	sinks   []ObservationSink
	ids     IDGenerator
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	maxObservations int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records stage durations and outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithIDGenerator sets the version id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// WithClock sets the source of timestamps.
func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMappingEngine replaces the default mapping engine.
func WithMappingEngine(e *mapping.Engine) Option {
	return func(p *Pipeline) { p.mapper = e }
}

// WithSinks adds observation sinks written after the store.
func WithSinks(sinks ...ObservationSink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithMaxObservations sets the observation quota per ingestion.
//
// Default: 5,000,000 (DefaultMaxObservations).
func WithMaxObservations(n int) Option {
	return func(p *Pipeline) { p.maxObservations = n }
}

// New creates a Pipeline over s.
func New(s *store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:           s,
		ids:             UUIDv7Generator{},
		clock:           SystemClock{},
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxObservations: DefaultMaxObservations,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.mapper == nil {
		p.mapper = mapping.NewEngine(mapping.WithLogger(p.logger), mapping.WithMetrics(p.metrics))
	}
	return p
}

// observe records the outcome of a stage started at start.
func (p *Pipeline) observe(stage Stage, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	p.metrics.ObserveStage(string(stage), outcome, time.Since(start))
}

// abort moves a version out of a working status after a stage error. The
// transition uses a context detached from cancellation so a cancelled
// stage can still record that it was cancelled.
func (p *Pipeline) abort(ctx context.Context, stage Stage, versionID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	to, detail := version.StatusFailed, failureDetail(cause)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		to, detail = version.StatusCancelled, cause.Error()
	}
	if err := p.store.Transition(ctx, versionID, to, detail, p.clock.Now()); err != nil {
		p.logger.Error("failed to record stage failure",
			"stage", stage,
			"version", versionID,
			"error", err)
		return
	}
	p.logger.Warn("stage aborted",
		"stage", stage,
		"version", versionID,
		"status", to,
		"error", cause)
}

// failureDetail renders the JSON diagnostic stored on a failed version.
func failureDetail(err error) string {
	body := map[string]any{"reason": err.Error()}
	var mf *mapping.MappingFailedError
	if errors.As(err, &mf) {
		body["diagnostic"] = mf.Diagnostic
	}
	data, merr := json.Marshal(body)
	if merr != nil {
		return `{"reason":"unencodable failure"}`
	}
	return string(data)
}
