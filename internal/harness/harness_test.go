package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/compiler"
	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/pipeline"
	"github.com/roach88/dataver/internal/preview"
	"github.com/roach88/dataver/internal/store"
	"github.com/roach88/dataver/internal/version"
)

func loadDefs(t *testing.T) []*compiler.DataSetDef {
	t.Helper()
	v, err := compiler.Build("testdata/datasets")
	require.NoError(t, err)
	defs, errs := compiler.CompileAll(v, true)
	require.Empty(t, errs)
	require.Len(t, defs, 4)
	for _, def := range defs {
		require.Empty(t, compiler.Validate(def), def.Name)
	}
	return defs
}

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	defs := loadDefs(t)
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario, defs)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestRun_Golden(t *testing.T) {
	scenario := loadScenario(t, "minor_then_query")
	result, err := RunWithGolden(t, scenario, loadDefs(t))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Deterministic(t *testing.T) {
	defs := loadDefs(t)
	scenario := loadScenario(t, "blocked_mapping")

	first, err := Run(scenario, defs)
	require.NoError(t, err)
	second, err := Run(scenario, defs)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Expectations that do not hold",
		Steps: []Step{
			{Action: ActionIngest, DataSet: "absence_v1", Expect: &Expect{Number: "2.0", Bump: "minor"}},
			{Action: ActionPublish, Version: "v-0009"},
			{Action: ActionPublish, Version: "v-0001", Expect: &Expect{Error: ErrCodeNotFound}},
			{Action: ActionIngest, DataSet: "missing"},
		},
		Assertions: []Assertion{
			{Type: AssertLiveVersion, DataSet: "absence", Version: "v-0001"},
			{Type: AssertVersionCount, DataSet: "absence", Count: 3},
		},
	}
	result, err := Run(scenario, loadDefs(t))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		`steps[0] ingest: number: expected "2.0", got "1.0"`,
		`steps[0] ingest: bump: expected "minor", got "major"`,
		`steps[1] publish: unexpected error NOT_FOUND`,
		`steps[2] publish: error: expected "NOT_FOUND", got ""`,
		`steps[3] ingest: unexpected error ERROR`,
		"Assertion failed: version_count\n  Expected: 3 versions of absence\n  Actual: 1 versions",
	}, result.Errors)
}

func TestRun_QueryDoesNotSeeUnpublished(t *testing.T) {
	scenario := &Scenario{
		Name:        "unpublished",
		Description: "Processing versions are not queryable",
		Steps: []Step{
			{Action: ActionIngest, DataSet: "absence_v1"},
			{
				Action:  ActionQuery,
				DataSet: "absence",
				Query:   &criteria.Request{Indicators: []string{"sess"}},
				Expect:  &Expect{Error: ErrCodeNotFound},
			},
		},
		Assertions: []Assertion{
			{Type: AssertVersionStatus, Version: "v-0001", Status: "processing"},
			{Type: AssertResolves, DataSet: "absence", Label: "latest", Version: ""},
		},
	}
	result, err := Run(scenario, loadDefs(t))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&pipeline.StageError{Code: pipeline.ErrCodeNoChange}, "NO_CHANGE"},
		{fmt.Errorf("wrapped: %w", &pipeline.StageError{Code: pipeline.ErrCodeInvalidState}), "INVALID_STATE"},
		{&criteria.ParseError{Code: criteria.ErrCodeInvalidRange}, "INVALID_RANGE"},
		{fmt.Errorf("publish: %w", pipeline.ErrMappingAmbiguous), ErrCodeMappingAmbiguous},
		{fmt.Errorf("publish: %w", store.ErrPublishConflict), ErrCodePublishConflict},
		{fmt.Errorf("get: %w", store.ErrNotFound), ErrCodeNotFound},
		{fmt.Errorf("resolve: %w", mapping.ErrTargetTaken), ErrCodeInvalidResolution},
		{&version.TransitionError{From: version.StatusCancelled, To: version.StatusPublished}, ErrCodeInvalidTransition},
		{fmt.Errorf("authorize: %w", preview.ErrPreviewForbidden), ErrCodePreviewForbidden},
		{errors.New("boom"), ErrCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
