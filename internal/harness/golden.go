package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dataver/internal/compiler"
	"github.com/roach88/dataver/internal/ir"
)

// Snapshot renders a scenario's trace as canonical JSON for golden
// comparison. Equal traces always render to identical bytes.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"step":   ev.Step,
			"action": ev.Action,
		}
		optional := map[string]string{
			"version": ev.Version,
			"status":  ev.Status,
			"number":  ev.Number,
			"bump":    ev.Bump,
			"error":   ev.Error,
		}
		for k, v := range optional {
			if v != "" {
				m[k] = v
			}
		}
		if ev.Blocked {
			m["blocked"] = true
		}
		if len(ev.Reasons) > 0 {
			m["reasons"] = ev.Reasons
		}
		if ev.Action == ActionQuery && ev.Error == "" {
			m["total"] = ev.Total
		}
		trace[i] = m
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         trace,
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, defs []*compiler.DataSetDef) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, defs)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
