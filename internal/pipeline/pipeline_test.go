package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/metrics"
	"github.com/roach88/dataver/internal/store"
	"github.com/roach88/dataver/internal/testutil"
	"github.com/roach88/dataver/internal/version"
)

type fixture struct {
	store   *store.Store
	clock   *testutil.ManualClock
	metrics *metrics.Metrics
	p       *Pipeline
}

func newFixture(t *testing.T, ids []string, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:   s,
		clock:   testutil.NewManualClock(testutil.Epoch),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	opts = append([]Option{
		WithIDGenerator(NewFixedGenerator(ids...)),
		WithClock(f.clock),
		WithMetrics(f.metrics),
	}, opts...)
	f.p = New(s, opts...)
	return f
}

func request(set *facet.Set) IngestRequest {
	return IngestRequest{
		DataSet:      store.DataSet{ID: "ds-1", Title: "Pupil enrolments", ReleaseVersionID: "rel-1"},
		Facets:       set,
		Observations: testutil.Observations(set),
	}
}

func (f *fixture) ingest(t *testing.T, set *facet.Set) *Outcome {
	t.Helper()
	f.clock.Advance(time.Minute)
	out, err := f.p.Ingest(context.Background(), request(set))
	require.NoError(t, err)
	return out
}

func (f *fixture) publish(t *testing.T, id string) store.DataSetVersion {
	t.Helper()
	f.clock.Advance(time.Minute)
	v, err := f.p.Publish(context.Background(), id)
	require.NoError(t, err)
	return v
}

func withAbsences(t *testing.T) *facet.Set {
	return testutil.Schools().Indicator("abs", "absences", "Absences").Build(t)
}

func TestIngest_FirstVersionIsMajor(t *testing.T) {
	f := newFixture(t, []string{"v1"})

	out := f.ingest(t, testutil.Schools().Build(t))
	assert.Equal(t, version.BumpMajor, out.Decision.Bump)
	assert.False(t, out.Blocked())
	assert.True(t, out.ChangeSet.Initial)
	assert.Empty(t, out.SourceVersionID)
	assert.Equal(t, "1.0", out.Version.PublicVersion())
	assert.Equal(t, version.StatusProcessing, out.Version.Status)

	v := f.publish(t, "v1")
	assert.Equal(t, version.StatusPublished, v.Status)

	ds, err := f.store.GetDataSet(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", *ds.LatestLiveVersionID)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.StagesTotal.WithLabelValues("ingest", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.StagesTotal.WithLabelValues("publish", "ok")))
}

func TestIngest_Bumps(t *testing.T) {
	tests := []struct {
		name    string
		next    func(t *testing.T) *facet.Set
		bump    version.Bump
		number  string
		reasons string
	}{
		{
			name:    "indicator added",
			next:    withAbsences,
			bump:    version.BumpMinor,
			number:  "1.1",
			reasons: "indicators added",
		},
		{
			name: "filter option removed",
			next: func(t *testing.T) *facet.Set {
				return testutil.NewSet().
					Location("eng", facet.LevelCountry, "England", "E92000001").
					Location("shf", facet.LevelLocalAuthority, "Sheffield", "E08000019").
					Filter("st", "school_type", "School type", "st-pri:Primary", "st-tot:Total").
					Indicator("enr", "enrolments", "Enrolments").
					Periods(2021, "AY").
					Periods(2022, "AY").
					Build(t)
			},
			bump:    version.BumpMajor,
			number:  "2.0",
			reasons: `filter option "Secondary" removed`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []string{"v1", "v2"})
			f.ingest(t, testutil.Schools().Build(t))
			f.publish(t, "v1")

			out := f.ingest(t, tt.next(t))
			assert.Equal(t, tt.bump, out.Decision.Bump)
			assert.Equal(t, "v1", out.SourceVersionID)
			assert.Equal(t, tt.number, out.Version.PublicVersion())
			assert.Contains(t, out.Decision.Reasons[0], tt.reasons)

			v := f.publish(t, "v2")
			assert.Equal(t, tt.number, v.PublicVersion())
		})
	}
}

func TestIngest_UnchangedIsDiscarded(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2", "v3"})
	ctx := context.Background()
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")

	_, err := f.p.Ingest(ctx, request(testutil.Schools().Build(t)))
	require.Error(t, err)
	assert.True(t, IsNoChange(err))
	_, err = f.store.GetVersion(ctx, "v2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	req := request(testutil.Schools().Build(t))
	req.Patch = true
	out, err := f.p.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, version.BumpPatch, out.Decision.Bump)
	assert.Equal(t, "1.0.1", out.Version.PublicVersion())
	assert.True(t, out.ChangeSet.Empty())
}

func TestIngest_AmbiguousBlocksUntilResolved(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"})
	ctx := context.Background()
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")

	recoded := testutil.NewSet().
		Location("eng", facet.LevelCountry, "England", "E92000001").
		Location("shf2", facet.LevelLocalAuthority, "Sheffield", "E08000099").
		Filter("st", "school_type", "School type", "st-pri:Primary", "st-sec:Secondary", "st-tot:Total").
		Indicator("enr", "enrolments", "Enrolments").
		Periods(2021, "AY").
		Periods(2022, "AY").
		Build(t)
	out := f.ingest(t, recoded)
	assert.True(t, out.Blocked())
	assert.Equal(t, 1, out.Decision.Unresolved)
	assert.Equal(t, version.StatusMapping, out.Version.Status)
	assert.True(t, out.Version.Number.IsZero())

	_, err := f.p.Publish(ctx, "v2")
	assert.ErrorIs(t, err, ErrMappingAmbiguous)

	t.Run("bad decision stores nothing", func(t *testing.T) {
		_, err := f.p.Resolve(ctx, "v2", []mapping.Resolution{
			{Kind: facet.KindLocation, SourceID: "nope", TargetID: "shf2"},
		})
		assert.ErrorIs(t, err, mapping.ErrUnknownSource)

		again, err := f.p.Changes(ctx, "v2")
		require.NoError(t, err)
		assert.True(t, again.Blocked())
	})

	out, err = f.p.Resolve(ctx, "v2", []mapping.Resolution{
		{Kind: facet.KindLocation, SourceID: "shf", TargetID: "shf2"},
	})
	require.NoError(t, err)
	assert.False(t, out.Blocked())
	assert.Equal(t, version.BumpMinor, out.Decision.Bump)
	assert.Equal(t, "1.1", out.Version.PublicVersion())
	assert.Equal(t, version.StatusProcessing, out.Version.Status)
	require.Len(t, out.ChangeSet.LocationOptions.Changed, 1)

	f.publish(t, "v2")

	_, err = f.p.Resolve(ctx, "v2", []mapping.Resolution{{Kind: facet.KindLocation, SourceID: "shf"}})
	assert.True(t, IsStageError(err, ErrCodeInvalidState))
}

func TestResolve_RemovedOptionIsRepointed(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"})
	ctx := context.Background()
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")

	renamed := testutil.NewSet().
		Location("eng", facet.LevelCountry, "England", "E92000001").
		Location("shf", facet.LevelLocalAuthority, "Sheffield", "E08000019").
		Filter("st", "school_type", "School type", "st-pri:Primary", "st-sch:Secondary schools", "st-tot:Total").
		Indicator("enr", "enrolments", "Enrolments").
		Periods(2021, "AY").
		Periods(2022, "AY").
		Build(t)
	out := f.ingest(t, renamed)
	require.False(t, out.Blocked())
	assert.Equal(t, version.StatusProcessing, out.Version.Status)
	assert.Equal(t, version.BumpMajor, out.Decision.Bump)
	assert.Equal(t, "2.0", out.Version.PublicVersion())

	out, err := f.p.Resolve(ctx, "v2", []mapping.Resolution{
		{Kind: facet.KindFilterOption, SourceID: "st-sec", TargetID: "st-sch"},
	})
	require.NoError(t, err)
	assert.Equal(t, version.BumpMinor, out.Decision.Bump)
	assert.Equal(t, "1.1", out.Version.PublicVersion())
	assert.Equal(t, version.StatusProcessing, out.Version.Status)

	again, err := f.p.Changes(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, "1.1", again.Decision.Next.String())

	v := f.publish(t, "v2")
	assert.Equal(t, "1.1", v.PublicVersion())
}

func TestResolve_ProcessingBadDecisionKeepsNumber(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"})
	ctx := context.Background()
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")
	out := f.ingest(t, withAbsences(t))
	require.Equal(t, version.StatusProcessing, out.Version.Status)

	_, err := f.p.Resolve(ctx, "v2", []mapping.Resolution{
		{Kind: facet.KindFilterOption, SourceID: "st-sec", TargetID: "nope"},
	})
	assert.ErrorIs(t, err, mapping.ErrUnknownTarget)

	v, err := f.store.GetVersion(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, version.StatusProcessing, v.Status)
	assert.Equal(t, "1.1", v.PublicVersion())
}

func TestChanges_Deterministic(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"})
	ctx := context.Background()
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")
	f.ingest(t, withAbsences(t))

	first, err := f.p.Changes(ctx, "v2")
	require.NoError(t, err)
	second, err := f.p.Changes(ctx, "v2")
	require.NoError(t, err)

	a, err := first.ChangeSet.Canonical()
	require.NoError(t, err)
	b, err := second.ChangeSet.Canonical()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "1.1", first.Decision.Next.String())
}

func TestIngest_MappingFailureFailsVersion(t *testing.T) {
	f := newFixture(t, []string{"v1"})
	ctx := context.Background()

	bad := testutil.Schools().
		LocationCodes("bad", facet.LevelSchool, "Nameless school", facet.LocationCodes{Code: "X1"}).
		Build(t)
	_, err := f.p.Ingest(ctx, IngestRequest{
		DataSet: store.DataSet{ID: "ds-1", Title: "Broken"},
		Facets:  bad,
	})
	require.Error(t, err)
	assert.True(t, IsStageError(err, ErrCodeMappingFailed))
	assert.True(t, mapping.IsMappingFailed(err))

	v, err := f.store.GetVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, version.StatusFailed, v.Status)
	assert.Contains(t, string(v.Failure), `"option_id":"bad"`)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.StagesTotal.WithLabelValues("map", "error")))
}

func TestIngest_Quota(t *testing.T) {
	f := newFixture(t, nil, WithMaxObservations(3))
	_, err := f.p.Ingest(context.Background(), request(testutil.Schools().Build(t)))
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Contains(t, err.Error(), "12 observations exceed the limit of 3")
}

type recordingSink struct {
	mu   sync.Mutex
	rows map[string]int
}

func (s *recordingSink) WriteObservations(_ context.Context, versionID string, _ *facet.Set, obs []facet.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[versionID] = len(obs)
	return nil
}

func (s *recordingSink) DropVersion(_ context.Context, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, versionID)
	return nil
}

func TestIngest_WritesSinks(t *testing.T) {
	sink := &recordingSink{rows: map[string]int{}}
	f := newFixture(t, []string{"v1", "v2"}, WithSinks(sink))
	f.ingest(t, testutil.Schools().Build(t))
	assert.Equal(t, map[string]int{"v1": 12}, sink.rows)

	f.publish(t, "v1")
	_, err := f.p.Ingest(context.Background(), request(testutil.Schools().Build(t)))
	assert.True(t, IsNoChange(err))
	assert.Equal(t, map[string]int{"v1": 12}, sink.rows, "discarded draft is dropped from sinks")
}

func TestPublish_Conflict(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2", "v3"})
	ctx := context.Background()
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")

	f.ingest(t, withAbsences(t))
	third := f.ingest(t, testutil.Schools().Indicator("exc", "exclusions", "Exclusions").Build(t))
	assert.Equal(t, "1.2", third.Version.PublicVersion(), "numbers never repeat across drafts")

	f.publish(t, "v2")
	_, err := f.p.Publish(ctx, "v3")
	assert.ErrorIs(t, err, store.ErrPublishConflict)

	v, err := f.store.GetVersion(ctx, "v3")
	require.NoError(t, err)
	assert.Equal(t, version.StatusProcessing, v.Status)
}

func TestPublish_WrongStatus(t *testing.T) {
	f := newFixture(t, []string{"v1"})
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")

	_, err := f.p.Publish(context.Background(), "v1")
	assert.True(t, IsStageError(err, ErrCodeInvalidState))
}

func TestCancelAndDeprecate(t *testing.T) {
	f := newFixture(t, []string{"v1", "v2"})
	ctx := context.Background()
	f.ingest(t, testutil.Schools().Build(t))
	f.publish(t, "v1")
	f.ingest(t, withAbsences(t))

	require.NoError(t, f.p.Cancel(ctx, "v2", "superseded"))
	assert.Error(t, f.p.Cancel(ctx, "v1", "too late"))

	require.NoError(t, f.p.Deprecate(ctx, "v1", "methodology changed"))
	v, err := f.store.GetVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, version.StatusDeprecated, v.Status)
	assert.True(t, v.Status.Queryable())
}

func TestRecover(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.CreateDataSet(ctx, store.DataSet{ID: "ds-1", Title: "Stuck", CreatedAt: f.clock.Now()}))
	require.NoError(t, f.store.CreateVersion(ctx, store.DataSetVersion{ID: "v1", DataSetID: "ds-1", CreatedAt: f.clock.Now()}))
	require.NoError(t, f.store.Transition(ctx, "v1", version.StatusMapping, "", f.clock.Now()))

	ids, err := f.p.Recover(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, ids)

	f.clock.Advance(2 * time.Hour)
	ids, err = f.p.Recover(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, ids)

	v, err := f.store.GetVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, version.StatusFailed, v.Status)
}

func TestFixedGenerator_Exhausted(t *testing.T) {
	g := NewFixedGenerator("a")
	assert.Equal(t, "a", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
