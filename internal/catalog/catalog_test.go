package catalog

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/executor"
	"github.com/roach88/dataver/internal/testutil"
)

type sliceSource []Entry

func (s sliceSource) PublishedDataSets(ctx context.Context, release string) ([]Entry, error) {
	var out []Entry
	for _, e := range s {
		if release == "" || e.ReleaseVersionID == release {
			out = append(out, e)
		}
	}
	return out, nil
}

type brokenSource struct{}

func (brokenSource) PublishedDataSets(context.Context, string) ([]Entry, error) {
	return nil, errors.New("disk on fire")
}

func fixture() sliceSource {
	day := func(n int) time.Time { return testutil.Epoch.AddDate(0, 0, n) }
	return sliceSource{
		{ID: "a", Title: "Pupil absence", Summary: "Absence by school type", ReleaseVersionID: "r1", Order: 2, PublishedAt: day(3)},
		{ID: "b", Title: "school workforce", Summary: "Teachers and support staff in schools", ReleaseVersionID: "r1", Order: 1, PublishedAt: day(1)},
		{ID: "c", Title: "Exclusions", Summary: "Permanent exclusions", ReleaseVersionID: "r2", Order: 1, PublishedAt: day(2)},
		{ID: "d", Title: "Attendance", Summary: "Daily attendance in schools and absence", ReleaseVersionID: "r2", Order: 2, PublishedAt: day(4)},
	}
}

func ids(res *ListResult) []string {
	var out []string
	for _, e := range res.Results {
		out = append(out, e.ID)
	}
	return out
}

func TestList_Sorts(t *testing.T) {
	tests := []struct {
		name string
		req  ListRequest
		want []string
	}{
		{"title by default", ListRequest{}, []string{"d", "c", "a", "b"}},
		{"title desc", ListRequest{Sort: SortTitle, Direction: "desc"}, []string{"b", "a", "c", "d"}},
		{"published newest first", ListRequest{Sort: SortPublished}, []string{"d", "a", "c", "b"}},
		{"published oldest first", ListRequest{Sort: SortPublished, Direction: "asc"}, []string{"b", "c", "a", "d"}},
		{"natural within release", ListRequest{Sort: SortNatural, ReleaseVersionID: criteria.Some("r1")}, []string{"b", "a"}},
		{"relevance by default with search", ListRequest{Search: "school"}, []string{"b", "d", "a"}},
		{"search terms all required", ListRequest{Search: "absence SCHOOLS"}, []string{"d"}},
		{"search with title sort", ListRequest{Search: "absence", Sort: SortTitle}, []string{"d", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Page, req.PageSize = 1, 10

			res, err := List(context.Background(), fixture(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res))
			assert.Equal(t, len(tt.want), res.Paging.TotalResults)
		})
	}
}

func TestList_Paging(t *testing.T) {
	res, err := List(context.Background(), fixture(), ListRequest{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(res))
	assert.Equal(t, executor.Paging{Page: 2, PageSize: 3, TotalResults: 4, TotalPages: 2}, res.Paging)

	res, err = List(context.Background(), fixture(), ListRequest{Page: 5, PageSize: 3})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Results)
}

func TestList_FarPageIsEmpty(t *testing.T) {
	res, err := List(context.Background(), fixture(), ListRequest{Page: math.MaxInt/20 + 2, PageSize: 20})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, 4, res.Paging.TotalResults)

	res, err = List(context.Background(), sliceSource{}, ListRequest{Page: math.MaxInt, PageSize: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Results)
}

func TestList_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   ListRequest
		field string
	}{
		{"page zero", ListRequest{PageSize: 10}, "page"},
		{"page size too large", ListRequest{Page: 1, PageSize: 41}, "pageSize"},
		{"natural without release", ListRequest{Page: 1, PageSize: 10, Sort: SortNatural}, "sort"},
		{"relevance without search", ListRequest{Page: 1, PageSize: 10, Sort: SortRelevance}, "sort"},
		{"unknown sort", ListRequest{Page: 1, PageSize: 10, Sort: "size"}, "sort"},
		{"bad direction", ListRequest{Page: 1, PageSize: 10, Direction: "up"}, "direction"},
		{"empty release", ListRequest{Page: 1, PageSize: 10, ReleaseVersionID: criteria.Some("")}, "releaseVersionId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := List(context.Background(), fixture(), tt.req)
			var ve *executor.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestList_SourceError(t *testing.T) {
	_, err := List(context.Background(), brokenSource{}, ListRequest{Page: 1, PageSize: 10})
	assert.ErrorContains(t, err, "disk on fire")
}
