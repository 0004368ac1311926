package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
}

func TestBuildAndCompileAll(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "absence.cue", "package test\n"+absence)
	writeCUE(t, dir, "more.cue", `package test

dataset: absence_next: {id: "absence", title: "Pupil absence"}
`)

	v, err := Build(dir)
	require.NoError(t, err)

	defs, errs := CompileAll(v, false)
	require.Empty(t, errs)
	require.Len(t, defs, 2)

	next, ok := Lookup(defs, "absence_next")
	require.True(t, ok)
	assert.Equal(t, "absence", next.ID)
	assert.Equal(t, "absence_next", next.Name)

	_, ok = Lookup(defs, "absence_other")
	assert.False(t, ok)
}

func TestCompileAll_CollectsErrors(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "bad.cue", `package test

dataset: a: {}
dataset: b: {title: "B"}
dataset: c: {summary: "no title"}
`)
	v, err := Build(dir)
	require.NoError(t, err)

	defs, errs := CompileAll(v, false)
	assert.Len(t, defs, 1)
	assert.Len(t, errs, 2)

	defs, errs = CompileAll(v, true)
	assert.Empty(t, defs)
	assert.Len(t, errs, 1)
}

func TestCompileAll_NoDataSets(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "empty.cue", "package test\n\nother: 1\n")
	v, err := Build(dir)
	require.NoError(t, err)

	defs, errs := CompileAll(v, false)
	assert.Empty(t, defs)
	assert.Empty(t, errs)
}

func TestBuild_Errors(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "conflict.cue", "package test\n\nx: 1\nx: 2\n")
	_, err := Build(dir)
	assert.Error(t, err)

	_, err = Build(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
