package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// absenceDir holds the absence definitions shared with the harness tests.
var absenceDir = filepath.Join("..", "harness", "testdata", "datasets")

const smallDataSet = `package test

dataset: small: {
	title: "Small"
	locations: [{id: "eng", level: "NAT", label: "England", codes: {code: "E92000001"}}]
	indicators: [{id: "n", column: "pupils", label: "Pupils"}]
	time_periods: [{period: "2023", code: "AY"}]
	observations: [{location: "eng", time_period: "2023_AY", values: {pupils: 5}}]
}
`

// writeCUE writes content to name in a fresh directory and returns it.
func writeCUE(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// executeJSON runs args with --format json and decodes the response data
// into data.
func executeJSON(t *testing.T, data any, args ...string) (CLIResponse, error) {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if data != nil && resp.Data != nil {
		raw, merr := json.Marshal(resp.Data)
		require.NoError(t, merr)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp, err
}

// tempDB returns a database path in a fresh directory.
func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "dataver.db")
}
