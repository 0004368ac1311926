package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/metrics"
	"github.com/roach88/dataver/internal/version"
)

// Executor runs query plans. It is safe for concurrent use.
type Executor struct {
	backend Backend
	meta    *MetaCache
	limits  criteria.Limits
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTimeout bounds each Execute call. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithLimits sets the parse budgets used by Query.
func WithLimits(l criteria.Limits) Option {
	return func(e *Executor) { e.limits = l }
}

// WithMetaCache sets the version meta source used by Query.
func WithMetaCache(c *MetaCache) Option {
	return func(e *Executor) { e.meta = c }
}

// New creates an Executor over backend.
func New(backend Backend, opts ...Option) *Executor {
	e := &Executor{
		backend: backend,
		limits:  criteria.DefaultLimits(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query binds req to versionID and executes it. Parse failures are
// returned as *criteria.ParseError.
func (e *Executor) Query(ctx context.Context, versionID string, req criteria.Request) (*Page, error) {
	if e.meta == nil {
		return nil, errors.New("query: executor has no meta cache")
	}
	meta, err := e.meta.Get(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("query version %s: %w", versionID, err)
	}
	plan, err := criteria.Parse(req, versionID, meta.Facets, e.limits)
	if err != nil {
		return nil, err
	}
	page, err := e.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	page.Meta.DataSetID = meta.DataSetID
	page.Meta.Version = meta.Label
	if meta.Status == version.StatusDeprecated {
		page.Warnings = append(page.Warnings, fmt.Sprintf("version %s is deprecated", meta.Label))
	}
	return page, nil
}

// Execute runs plan and returns the page plan.Page of size plan.PageSize.
// A page past the last one is empty, not an error.
func (e *Executor) Execute(ctx context.Context, plan *criteria.Plan) (*Page, error) {
	if plan.Page < 1 {
		return nil, &ValidationError{Field: "page", Message: fmt.Sprintf("must be at least 1, got %d", plan.Page)}
	}
	if plan.PageSize < 1 || plan.PageSize > criteria.MaxPageSize {
		return nil, &ValidationError{
			Field:   "pageSize",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", criteria.MaxPageSize, plan.PageSize),
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()

	total, err := e.backend.Count(ctx, plan.Query)
	if err != nil {
		return nil, e.fail("count", plan, start, err)
	}
	results := []Result{}
	// Compared before multiplying: page * pageSize may overflow.
	if total > 0 && plan.Page-1 <= (total-1)/plan.PageSize {
		offset := (plan.Page - 1) * plan.PageSize
		rows, err := e.backend.Select(ctx, plan.Query, plan.PageSize, offset)
		if err != nil {
			return nil, e.fail("select", plan, start, err)
		}
		results = make([]Result, len(rows))
		for i, row := range rows {
			results[i] = decorate(plan, row)
		}
	}

	e.metrics.ObserveQuery(e.backend.Name(), "ok", time.Since(start), len(results))
	e.logger.Debug("query executed",
		"version", plan.Query.From,
		"backend", e.backend.Name(),
		"total", total,
		"rows", len(results),
		"duration", time.Since(start))

	return &Page{
		Results: results,
		Paging: Paging{
			Page:         plan.Page,
			PageSize:     plan.PageSize,
			TotalResults: total,
			TotalPages:   (total + plan.PageSize - 1) / plan.PageSize,
		},
		Meta:     buildMeta(plan),
		Warnings: append([]string(nil), plan.Warnings...),
	}, nil
}

func (e *Executor) fail(op string, plan *criteria.Plan, start time.Time, err error) error {
	outcome := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		outcome = "timeout"
	}
	e.metrics.ObserveQuery(e.backend.Name(), outcome, time.Since(start), 0)
	e.logger.Warn("query failed",
		"version", plan.Query.From,
		"backend", e.backend.Name(),
		"op", op,
		"error", err)
	return &ExecutionError{Op: op, VersionID: plan.Query.From, Retryable: retryable(err), Err: err}
}
