package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/compiler"
)

func TestCompileValidDataSets(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{absenceDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled 4 data set(s)")
	assert.Contains(t, output, "absence_v2 (absence): 2 indicator(s), 1 filter(s), 2 location(s), 4 row(s)")
}

func TestCompileValidDataSetsJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{absenceDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestCompileDigestIgnoresObservations(t *testing.T) {
	dir := writeCUE(t, "small.cue", smallDataSet+`
dataset: other: {
	id:    "small"
	title: "Small"
	locations: [{id: "eng", level: "NAT", label: "England", codes: {code: "E92000001"}}]
	indicators: [{id: "n", column: "pupils", label: "Pupils"}]
	time_periods: [{period: "2023", code: "AY"}]
	observations: [{location: "eng", time_period: "2023_AY", values: {pupils: 7}}]
}
`)
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--output", outputFile})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.DataSets, 2)
	assert.NotEmpty(t, result.DataSets[0].FacetDigest)
	assert.Equal(t, result.DataSets[0].FacetDigest, result.DataSets[1].FacetDigest)
}

func TestCompileOutputToFile(t *testing.T) {
	dir := writeCUE(t, "small.cue", smallDataSet)
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, "--output", outputFile})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Wrote compilation summary to")

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var result CompilationResult
	err = json.Unmarshal(data, &result)
	require.NoError(t, err)
	require.Len(t, result.DataSets, 1)
	assert.Equal(t, "small", result.DataSets[0].ID)
	assert.Equal(t, 1, result.DataSets[0].Observations)
}

func TestCompileNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "not found")
}

func TestCompileEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, buf.String(), "no CUE files found")
}

func TestCompileInvalidCUE(t *testing.T) {
	dir := writeCUE(t, "broken.cue", "package test\n\ndataset: {\n")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [")
}

func TestCompileMissingTitle(t *testing.T) {
	dir := writeCUE(t, "untitled.cue", `package test

dataset: untitled: {
	locations: [{id: "eng", level: "NAT", label: "England", codes: {code: "E92000001"}}]
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	output := buf.String()
	assert.Contains(t, output, "✗ Compilation failed")
	assert.Contains(t, output, compiler.ErrDataSetTitleEmpty)
	assert.Contains(t, output, "title is required")
}

func TestCompileFractionalValueRejection(t *testing.T) {
	dir := writeCUE(t, "rates.cue", `package test

dataset: rates: {
	title: "Rates"
	locations: [{id: "eng", level: "NAT", label: "England", codes: {code: "E92000001"}}]
	indicators: [{id: "r", column: "rate", label: "Rate"}]
	time_periods: [{period: "2023", code: "AY"}]
	observations: [{location: "eng", time_period: "2023_AY", values: {rate: 6.5}}]
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidRow, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "must be quoted strings")
}

func TestCompileVerboseOutput(t *testing.T) {
	dir := writeCUE(t, "small.cue", smallDataSet)

	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errBuf.String(), "Found 1 CUE file(s)")
	assert.Contains(t, errBuf.String(), "Compiled data set: small")
	assert.NotContains(t, buf.String(), "Found 1 CUE file(s)")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"a.cue", "nested/b.cue", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("package test\n"), 0o644))
	}

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "nested", "b.cue"),
	}, files)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"title", compiler.ErrDataSetTitleEmpty},
		{"cue", ErrCodeBuildFailed},
		{"observations[2].values.rate", ErrCodeInvalidRow},
		{"", ErrCodeGeneric},
		{"indicators[0].decimal_places", ErrCodeInvalidDefinition},
		{"id", ErrCodeInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}
