package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/testutil"
	"github.com/roach88/dataver/internal/version"
)

// createTestStore opens a fresh store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(minutes int) time.Time {
	return testutil.Epoch.Add(time.Duration(minutes) * time.Minute)
}

// seedDataSet creates data set ds-1 with one draft version per id.
func seedDataSet(t *testing.T, s *Store, versionIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateDataSet(ctx, DataSet{
		ID:               "ds-1",
		Title:            "Pupil absence",
		Summary:          "Absence rates by school type",
		ReleaseVersionID: "rel-1",
		CreatedAt:        at(0),
	}))
	for i, id := range versionIDs {
		require.NoError(t, s.CreateVersion(ctx, DataSetVersion{ID: id, DataSetID: "ds-1", CreatedAt: at(i + 1)}))
	}
}

// publishVersion walks a draft through to published with number n.
func publishVersion(t *testing.T, s *Store, id string, n version.Number, expectedLive string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.AssignNumber(ctx, id, n))
	require.NoError(t, s.Transition(ctx, id, version.StatusMapping, "", at(10)))
	require.NoError(t, s.Transition(ctx, id, version.StatusProcessing, "", at(11)))
	require.NoError(t, s.Publish(ctx, id, expectedLive, at(12)))
}

func schools(t *testing.T) *facet.Set {
	return testutil.Schools().Build(t)
}
