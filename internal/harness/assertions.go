package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dataver/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var msgs []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertVersionStatus:
				err = assertVersionStatus(actx, assertion)
			case AssertLiveVersion:
				err = assertLiveVersion(actx, assertion)
			case AssertVersionCount:
				err = assertVersionCount(actx, assertion)
			case AssertResolves:
				err = assertResolves(actx, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func assertVersionStatus(actx *AssertionContext, a Assertion) error {
	v, err := actx.Store.GetVersion(actx.Ctx, a.Version)
	if err != nil {
		return &AssertionError{
			Type:     AssertVersionStatus,
			Expected: fmt.Sprintf("version %s with status %s", a.Version, a.Status),
			Actual:   err.Error(),
		}
	}
	if string(v.Status) != a.Status {
		return &AssertionError{
			Type:     AssertVersionStatus,
			Expected: fmt.Sprintf("version %s with status %s", a.Version, a.Status),
			Actual:   fmt.Sprintf("status %s", v.Status),
		}
	}
	return nil
}

func assertLiveVersion(actx *AssertionContext, a Assertion) error {
	ds, err := actx.Store.GetDataSet(actx.Ctx, a.DataSet)
	if err != nil {
		return fmt.Errorf("live_version: %w", err)
	}
	live := ""
	if ds.LatestLiveVersionID != nil {
		live = *ds.LatestLiveVersionID
	}
	if live != a.Version {
		return &AssertionError{
			Type:     AssertLiveVersion,
			Expected: fmt.Sprintf("data set %s live at %q", a.DataSet, a.Version),
			Actual:   fmt.Sprintf("live at %q", live),
		}
	}
	return nil
}

func assertVersionCount(actx *AssertionContext, a Assertion) error {
	versions, err := actx.Store.ListVersions(actx.Ctx, a.DataSet)
	if err != nil {
		return fmt.Errorf("version_count: %w", err)
	}
	if len(versions) != a.Count {
		return &AssertionError{
			Type:     AssertVersionCount,
			Expected: fmt.Sprintf("%d versions of %s", a.Count, a.DataSet),
			Actual:   fmt.Sprintf("%d versions", len(versions)),
		}
	}
	return nil
}

// assertResolves checks label resolution. An empty Version expects the
// label to resolve to nothing.
func assertResolves(actx *AssertionContext, a Assertion) error {
	v, err := actx.Store.ResolveVersion(actx.Ctx, a.DataSet, a.Label)
	got := v.ID
	switch {
	case errors.Is(err, store.ErrNotFound):
		got = ""
	case err != nil:
		return fmt.Errorf("resolves: %w", err)
	}
	if got != a.Version {
		return &AssertionError{
			Type:     AssertResolves,
			Expected: fmt.Sprintf("%s@%s resolves to %q", a.DataSet, a.Label, a.Version),
			Actual:   fmt.Sprintf("resolves to %q", got),
		}
	}
	return nil
}
