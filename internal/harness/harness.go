package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/dataver/internal/compiler"
	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/pipeline"
	"github.com/roach88/dataver/internal/preview"
	"github.com/roach88/dataver/internal/store"
	"github.com/roach88/dataver/internal/testutil"
	"github.com/roach88/dataver/internal/version"
)

// VersionIDPrefix prefixes the version ids a scenario run assigns.
const VersionIDPrefix = "v"

// Harness executes scenario steps against one store.
type Harness struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	executor *executor.Executor
	defs     []*compiler.DataSetDef
	logger   *slog.Logger
}

// Run executes a scenario against defs and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Version ids come from a sequence generator and the clock advances one
// minute before every step, so identical scenarios produce identical
// traces.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Execute steps, checking each expect clause
// 3. Evaluate assertions against the final state
func Run(scenario *Scenario, defs []*compiler.DataSetDef) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewManualClock(testutil.Epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	meta := executor.NewMetaCache(st, 16, time.Minute, nil)
	h := &Harness{
		store: st,
		pipeline: pipeline.New(st,
			pipeline.WithIDGenerator(testutil.NewSequenceGenerator(VersionIDPrefix)),
			pipeline.WithClock(clock),
			pipeline.WithLogger(logger),
		),
		executor: executor.New(store.NewObservationBackend(st),
			executor.WithLogger(logger),
			executor.WithMetaCache(meta),
		),
		defs:   defs,
		logger: logger,
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		clock.Advance(time.Minute)
		ev := h.execute(ctx, i, step)
		result.AddTrace(ev)
		for _, msg := range checkExpect(i, step, ev) {
			result.AddError(msg)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step and records its outcome. Step errors are part of
// the outcome, not failures of the run.
func (h *Harness) execute(ctx context.Context, i int, step Step) TraceEvent {
	ev := TraceEvent{Step: i, Action: step.Action, Version: step.Version}

	var err error
	switch step.Action {
	case ActionIngest:
		err = h.ingest(ctx, step, &ev)
	case ActionChanges:
		var out *pipeline.Outcome
		if out, err = h.pipeline.Changes(ctx, step.Version); err == nil {
			recordOutcome(&ev, out)
		}
	case ActionResolve:
		err = h.resolve(ctx, step, &ev)
	case ActionPublish:
		var v store.DataSetVersion
		if v, err = h.pipeline.Publish(ctx, step.Version); err == nil {
			ev.Status = string(v.Status)
			ev.Number = v.PublicVersion()
		}
	case ActionCancel:
		err = h.pipeline.Cancel(ctx, step.Version, step.Reason)
	case ActionDeprecate:
		err = h.pipeline.Deprecate(ctx, step.Version, step.Reason)
	case ActionQuery:
		err = h.query(ctx, step, &ev)
	default:
		err = fmt.Errorf("unknown action %q", step.Action)
	}

	if err != nil {
		ev.Error = ErrorCode(err)
		h.logger.Info("step failed", "step", i, "action", step.Action, "error", err)
		return ev
	}
	if ev.Version != "" {
		if v, err := h.store.GetVersion(ctx, ev.Version); err == nil {
			ev.Status = string(v.Status)
		}
	}
	h.logger.Info("step completed", "step", i, "action", step.Action, "version", ev.Version)
	return ev
}

func (h *Harness) ingest(ctx context.Context, step Step, ev *TraceEvent) error {
	def, ok := compiler.Lookup(h.defs, step.DataSet)
	if !ok {
		return fmt.Errorf("no data set definition named %q", step.DataSet)
	}
	out, err := h.pipeline.Ingest(ctx, pipeline.IngestRequest{
		DataSet: store.DataSet{
			ID:               def.ID,
			Title:            def.Title,
			Summary:          def.Summary,
			ReleaseVersionID: def.ReleaseVersionID,
		},
		Facets:       def.Facets,
		Observations: def.Observations,
		Notes:        def.Notes,
		Patch:        step.Patch,
	})
	if err != nil {
		return err
	}
	recordOutcome(ev, out)
	return nil
}

func (h *Harness) resolve(ctx context.Context, step Step, ev *TraceEvent) error {
	resolutions := make([]mapping.Resolution, 0, len(step.Map))
	for _, m := range step.Map {
		res, err := mapping.ParseResolution(m)
		if err != nil {
			return err
		}
		resolutions = append(resolutions, res)
	}
	out, err := h.pipeline.Resolve(ctx, step.Version, resolutions)
	if err != nil {
		return err
	}
	recordOutcome(ev, out)
	return nil
}

func (h *Harness) query(ctx context.Context, step Step, ev *TraceEvent) error {
	label := step.Label
	if label == "" {
		label = "latest"
	}
	v, err := h.store.ResolveVersion(ctx, step.DataSet, label)
	if err != nil {
		return err
	}
	ev.Version = v.ID
	page, err := h.executor.Query(ctx, v.ID, *step.Query)
	if err != nil {
		return err
	}
	ev.Number = v.PublicVersion()
	ev.Total = page.Paging.TotalResults
	return nil
}

func recordOutcome(ev *TraceEvent, out *pipeline.Outcome) {
	ev.Version = out.Version.ID
	ev.Status = string(out.Version.Status)
	ev.Bump = string(out.Decision.Bump)
	ev.Blocked = out.Decision.Blocked
	ev.Reasons = out.Decision.Reasons
	if !out.Decision.Next.IsZero() {
		ev.Number = out.Decision.Next.String()
	}
}

func checkExpect(i int, step Step, ev TraceEvent) []string {
	e := step.Expect
	if e == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("steps[%d] %s: unexpected error %s", i, step.Action, ev.Error)}
		}
		return nil
	}

	var errs []string
	fail := func(field, want, got string) {
		errs = append(errs, fmt.Sprintf("steps[%d] %s: %s: expected %q, got %q", i, step.Action, field, want, got))
	}
	if e.Error != ev.Error {
		fail("error", e.Error, ev.Error)
		return errs
	}
	if e.Number != "" && e.Number != ev.Number {
		fail("number", e.Number, ev.Number)
	}
	if e.Status != "" && e.Status != ev.Status {
		fail("status", e.Status, ev.Status)
	}
	if e.Bump != "" && e.Bump != ev.Bump {
		fail("bump", e.Bump, ev.Bump)
	}
	if e.Blocked != nil && *e.Blocked != ev.Blocked {
		fail("blocked", fmt.Sprint(*e.Blocked), fmt.Sprint(ev.Blocked))
	}
	for _, reason := range e.Reasons {
		if !slices.Contains(ev.Reasons, reason) {
			fail("reasons", reason, fmt.Sprint(ev.Reasons))
		}
	}
	if e.Version != "" && e.Version != ev.Version {
		fail("version", e.Version, ev.Version)
	}
	if e.Total != nil && *e.Total != ev.Total {
		fail("total", fmt.Sprint(*e.Total), fmt.Sprint(ev.Total))
	}
	return errs
}

// Error codes recorded in traces for failed steps. Stage errors use their
// own codes (INVALID_STATE, NO_CHANGE, ...) and query parse errors use the
// parse error code.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodePublishConflict   = "PUBLISH_CONFLICT"
	ErrCodeMappingAmbiguous  = "MAPPING_AMBIGUOUS"
	ErrCodeInvalidResolution = "INVALID_RESOLUTION"
	ErrCodeInvalidQuery      = "INVALID_QUERY"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodePreviewForbidden  = "PREVIEW_FORBIDDEN"
	ErrCodeUnknown           = "ERROR"
)

// ErrorCode maps an operation error to a stable code.
func ErrorCode(err error) string {
	var stageErr *pipeline.StageError
	var parseErr *criteria.ParseError
	var transitionErr *version.TransitionError
	switch {
	case errors.As(err, &stageErr):
		return string(stageErr.Code)
	case errors.As(err, &parseErr):
		return string(parseErr.Code)
	case errors.As(err, &transitionErr):
		return ErrCodeInvalidTransition
	case executor.IsValidationError(err):
		return ErrCodeInvalidQuery
	case errors.Is(err, pipeline.ErrMappingAmbiguous):
		return ErrCodeMappingAmbiguous
	case errors.Is(err, preview.ErrPreviewForbidden):
		return ErrCodePreviewForbidden
	case errors.Is(err, store.ErrPublishConflict):
		return ErrCodePublishConflict
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, mapping.ErrUnknownSource),
		errors.Is(err, mapping.ErrUnknownTarget),
		errors.Is(err, mapping.ErrTargetTaken),
		errors.Is(err, mapping.ErrInvalidTarget),
		errors.Is(err, mapping.ErrParentUnmapped):
		return ErrCodeInvalidResolution
	}
	return ErrCodeUnknown
}
