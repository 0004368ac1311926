package criteria

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/ir"
	"github.com/roach88/dataver/internal/queryir"
	"github.com/roach88/dataver/internal/testutil"
)

const versionID = "v-2"

func schools(t *testing.T) *facet.Set {
	return testutil.Schools().
		Filter("ph", "phase", "Phase", "ph-prim:Primary phase", "ph-sec:Secondary phase").
		Indicator("abs", "absences", "Absences").
		Build(t)
}

func parseJSON(t *testing.T, doc string) (*Plan, error) {
	t.Helper()
	var req Request
	require.NoError(t, json.Unmarshal([]byte(doc), &req))
	return Parse(req, versionID, schools(t), DefaultLimits())
}

func mustParse(t *testing.T, doc string) *Plan {
	t.Helper()
	plan, err := parseJSON(t, doc)
	require.NoError(t, err)
	return plan
}

func requireParseError(t *testing.T, err error, code ParseErrorCode, path string) {
	t.Helper()
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, code, pe.Code, pe.Error())
	assert.Equal(t, path, pe.Path)
}

func TestParse_Defaults(t *testing.T) {
	plan := mustParse(t, `{}`)

	assert.Equal(t, versionID, plan.Query.From)
	assert.Nil(t, plan.Query.Filter)
	assert.Equal(t, 1, plan.Page)
	assert.Equal(t, DefaultPageSize, plan.PageSize)
	assert.Equal(t, []string{"i_enrolments", "i_absences"}, plan.Query.Columns)
	assert.Len(t, plan.Indicators, 2)
	assert.Empty(t, plan.Warnings)
}

func TestParse_ExplicitPagingPassesThrough(t *testing.T) {
	plan := mustParse(t, `{"page":0,"pageSize":41}`)
	assert.Equal(t, 0, plan.Page)
	assert.Equal(t, 41, plan.PageSize)
}

func TestParse_FiltersGroupedByParent(t *testing.T) {
	plan := mustParse(t, `{"criteria":{"filters":{"in":["st-pri","ph-sec","st-sec","st-pri"]}}}`)

	assert.Equal(t, queryir.And{Predicates: []queryir.Predicate{
		queryir.In{Field: "f_school_type", Values: ir.Strings("st-pri", "st-sec")},
		queryir.In{Field: "f_phase", Values: ir.Strings("ph-sec")},
	}}, plan.Query.Filter)
}

func TestParse_FilterOperators(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want queryir.Predicate
	}{
		{
			"eq",
			`{"criteria":{"filters":{"eq":"st-tot"}}}`,
			queryir.In{Field: "f_school_type", Values: ir.Strings("st-tot")},
		},
		{
			"notIn across filters",
			`{"criteria":{"filters":{"notIn":["st-tot","ph-prim"]}}}`,
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Not{Predicate: queryir.In{Field: "f_school_type", Values: ir.Strings("st-tot")}},
				queryir.Not{Predicate: queryir.In{Field: "f_phase", Values: ir.Strings("ph-prim")}},
			}},
		},
		{"empty in matches nothing", `{"criteria":{"filters":{"in":[]}}}`, queryir.Or{}},
		{"empty notIn excludes nothing", `{"criteria":{"filters":{"notIn":[]}}}`, queryir.And{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustParse(t, tt.doc).Query.Filter)
		})
	}
}

func TestParse_UnknownReferences(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"filter option", `{"criteria":{"filters":{"in":["st-pri","nope"]}}}`, "criteria.filters.in[1]"},
		{"filter option eq", `{"criteria":{"filters":{"eq":"nope"}}}`, "criteria.filters.eq"},
		{"location id", `{"criteria":{"locations":{"eq":{"id":"nope"}}}}`, "criteria.locations.eq"},
		{"location code", `{"criteria":{"locations":{"in":[{"level":"LA","code":"E09999999"}]}}}`, "criteria.locations.in[0]"},
		{"absent level", `{"criteria":{"geographicLevels":{"eq":"REG"}}}`, "criteria.geographicLevels.eq"},
		{"time period", `{"criteria":{"timePeriods":{"eq":{"period":"2019","code":"AY"}}}}`, "criteria.timePeriods.eq"},
		{"indicator", `{"indicators":["enr","nope"]}`, "indicators[1]"},
		{"legacy filter", `{"filters":["nope"]}`, "filters[0]"},
		{"hierarchy parent", `{"filterHierarchiesOptions":{"nope":[["st-pri"]]}}`, "filterHierarchiesOptions.nope"},
		{"hierarchy option", `{"filterHierarchiesOptions":{"st":[["st-pri"],["x"]]}}`, "filterHierarchiesOptions.st[1][0]"},
		{"sort filter", `{"sort":[{"field":"nope"}]}`, "sort[0].field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJSON(t, tt.doc)
			requireParseError(t, err, ErrCodeUnknownFacetReference, tt.path)
			assert.True(t, IsUnknownFacetReference(err))
		})
	}
}

func TestParse_TimePeriodRange(t *testing.T) {
	plan := mustParse(t, `{"criteria":{"timePeriods":{"range":{
		"start":{"period":"2021/2022","code":"AY"},
		"end":{"period":"2023/2024","code":"AY"}}}}}`)

	assert.Equal(t,
		queryir.In{Field: "time_period", Values: ir.Strings("2021_AY", "2022_AY", "2023_AY")},
		plan.Query.Filter, "expanded periods need not exist in the version")
}

func TestParse_TimePeriodRangeErrors(t *testing.T) {
	t.Run("end before start", func(t *testing.T) {
		_, err := parseJSON(t, `{"criteria":{"timePeriods":{"range":{
			"start":{"period":"2022","code":"AYQ4"},
			"end":{"period":"2022","code":"AYQ1"}}}}}`)
		requireParseError(t, err, ErrCodeInvalidRange, "criteria.timePeriods.range")
		assert.True(t, IsInvalidRange(err))
	})

	t.Run("different families", func(t *testing.T) {
		_, err := parseJSON(t, `{"criteria":{"timePeriods":{"range":{
			"start":{"period":"2022","code":"AY"},
			"end":{"period":"2023","code":"CY"}}}}}`)
		requireParseError(t, err, ErrCodeValidation, "criteria.timePeriods.range")
	})

	t.Run("budget", func(t *testing.T) {
		var req Request
		require.NoError(t, json.Unmarshal([]byte(`{"criteria":{"timePeriods":{"range":{
			"start":{"period":"2000","code":"M1"},
			"end":{"period":"2001","code":"M12"}}}}}`), &req))
		_, err := Parse(req, versionID, schools(t), Limits{MaxTimePeriods: 12})
		requireParseError(t, err, ErrCodeValidation, "criteria.timePeriods.range")
		assert.Contains(t, err.Error(), "more than 12")
	})

	t.Run("bad code", func(t *testing.T) {
		_, err := parseJSON(t, `{"criteria":{"timePeriods":{"gt":{"period":"2022","code":"XX"}}}}`)
		requireParseError(t, err, ErrCodeValidation, "criteria.timePeriods.gt")
	})
}

func TestParse_TimePeriodComparison(t *testing.T) {
	plan := mustParse(t, `{"criteria":{"timePeriods":{"gte":{"period":"2022/2023","code":"AY"}}}}`)

	assert.Equal(t, queryir.And{Predicates: []queryir.Predicate{
		queryir.In{Field: "time_identifier", Values: ir.Strings("AY")},
		queryir.Compare{Field: "time_ordinal", Op: queryir.OpGte, Value: ir.IRInt(2022)},
	}}, plan.Query.Filter)
}

func TestParse_Locations(t *testing.T) {
	plan := mustParse(t, `{"criteria":{"locations":{"in":[{"level":"la","code":"E08000019"},{"id":"eng"}]}}}`)
	assert.Equal(t, queryir.In{Field: "location_id", Values: ir.Strings("shf", "eng")}, plan.Query.Filter)

	plan = mustParse(t, `{"criteria":{"locations":{"notEq":{"id":"eng","level":"NAT"}}}}`)
	assert.Equal(t, queryir.Not{Predicate: queryir.Equals{Field: "location_id", Value: ir.IRString("eng")}}, plan.Query.Filter)

	tests := []struct {
		name string
		doc  string
	}{
		{"level without code", `{"criteria":{"locations":{"eq":{"level":"LA"}}}}`},
		{"two codes", `{"criteria":{"locations":{"eq":{"level":"LA","code":"E08000019","oldCode":"373"}}}}`},
		{"id and code", `{"criteria":{"locations":{"eq":{"id":"shf","code":"E08000019"}}}}`},
		{"id at other level", `{"criteria":{"locations":{"eq":{"id":"shf","level":"NAT"}}}}`},
		{"unknown level", `{"criteria":{"locations":{"eq":{"level":"XYZ","code":"1"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJSON(t, tt.doc)
			requireParseError(t, err, ErrCodeValidation, "criteria.locations.eq")
		})
	}
}

func TestParse_GeographicLevels(t *testing.T) {
	plan := mustParse(t, `{"criteria":{"geographicLevels":{"in":["la","NAT"]}}}`)
	assert.Equal(t, queryir.In{Field: "geographic_level", Values: ir.Strings("LA", "NAT")}, plan.Query.Filter)

	_, err := parseJSON(t, `{"criteria":{"geographicLevels":{"eq":"XYZ"}}}`)
	requireParseError(t, err, ErrCodeValidation, "criteria.geographicLevels.eq")
}

func TestParse_BooleanNodes(t *testing.T) {
	plan := mustParse(t, `{"criteria":{"or":[
		{"geographicLevels":{"eq":"NAT"}},
		{"not":{"filters":{"eq":"st-tot"}}}
	]}}`)

	assert.Equal(t, queryir.Or{Predicates: []queryir.Predicate{
		queryir.Equals{Field: "geographic_level", Value: ir.IRString("NAT")},
		queryir.Not{Predicate: queryir.In{Field: "f_school_type", Values: ir.Strings("st-tot")}},
	}}, plan.Query.Filter)
}

func TestParse_FacetNodeAndsSelectors(t *testing.T) {
	plan := mustParse(t, `{"criteria":{
		"filters":{"eq":"st-pri"},
		"locations":{"eq":{"id":"shf"}}
	}}`)

	assert.Equal(t, queryir.And{Predicates: []queryir.Predicate{
		queryir.In{Field: "f_school_type", Values: ir.Strings("st-pri")},
		queryir.Equals{Field: "location_id", Value: ir.IRString("shf")},
	}}, plan.Query.Filter)

	assert.Equal(t, queryir.And{}, mustParse(t, `{"criteria":{}}`).Query.Filter, "empty node matches everything")
}

func TestParse_StructureErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"mixed node", `{"criteria":{"and":[{}],"filters":{"eq":"st-pri"}}}`, "criteria"},
		{"two boolean keys", `{"criteria":{"and":[{}],"or":[{}]}}`, "criteria"},
		{"empty and", `{"criteria":{"and":[]}}`, "criteria.and"},
		{"null child", `{"criteria":{"or":[{},null]}}`, "criteria.or[1]"},
		{"empty selector", `{"criteria":{"filters":{}}}`, "criteria.filters"},
		{"null operators only", `{"criteria":{"timePeriods":{"eq":null}}}`, "criteria.timePeriods"},
		{"bad sort direction", `{"sort":[{"field":"location","direction":"sideways"}]}`, "sort[0].direction"},
		{"empty hierarchy tier", `{"filterHierarchiesOptions":{"st":[[]]}}`, "filterHierarchiesOptions.st[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJSON(t, tt.doc)
			requireParseError(t, err, ErrCodeValidation, tt.path)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestParse_DepthLimit(t *testing.T) {
	nest := func(depth int) string {
		return strings.Repeat(`{"not":`, depth-1) + `{"filters":{"eq":"st-pri"}}` + strings.Repeat(`}`, depth-1)
	}

	_, err := parseJSON(t, `{"criteria":`+nest(MaxDepth)+`}`)
	assert.NoError(t, err)

	_, err = parseJSON(t, `{"criteria":`+nest(MaxDepth+1)+`}`)
	require.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "nested deeper")
}

func TestParse_LegacyFiltersAndHierarchies(t *testing.T) {
	plan := mustParse(t, `{
		"criteria":{"locations":{"eq":{"id":"shf"}}},
		"filters":["st-pri"],
		"filterHierarchiesOptions":{"ph":[["ph-sec"]]}
	}`)

	assert.Equal(t, queryir.And{Predicates: []queryir.Predicate{
		queryir.Equals{Field: "location_id", Value: ir.IRString("shf")},
		queryir.And{Predicates: []queryir.Predicate{
			queryir.In{Field: "f_school_type", Values: ir.Strings("st-pri")},
			queryir.In{Field: "f_phase", Values: ir.Strings("ph-sec")},
		}},
	}}, plan.Query.Filter)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "deprecated")
}

func TestParse_HierarchyTiersBelongToFilters(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"option of another filter under parent", `{"filterHierarchiesOptions":{"st":[["ph-sec"]]}}`, "filterHierarchiesOptions.st[0][0]"},
		{"parent option in later tier", `{"filterHierarchiesOptions":{"st":[["st-pri"],["st-sec"]]}}`, "filterHierarchiesOptions.st[1][0]"},
		{"mixed tier", `{"filterHierarchiesOptions":{"st":[["st-pri","ph-sec"]]}}`, "filterHierarchiesOptions.st[0][1]"},
		{"filter repeated across tiers", `{"filterHierarchiesOptions":{"st":[["st-pri"],["ph-prim"],["ph-sec"]]}}`, "filterHierarchiesOptions.st[2][0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJSON(t, tt.doc)
			requireParseError(t, err, ErrCodeValidation, tt.path)
		})
	}

	_, err := parseJSON(t, `{"filterHierarchiesOptions":{"st":[["st-pri","st-sec"],["ph-sec"]]}}`)
	assert.NoError(t, err)
}

func TestParse_HierarchyBudget(t *testing.T) {
	req := Request{FilterHierarchiesOptions: map[string][][]string{
		"st": {{"st-pri", "st-sec"}, {"ph-prim", "ph-sec"}},
	}}

	_, err := Parse(req, versionID, schools(t), Limits{MaxHierarchyProduct: 3})
	requireParseError(t, err, ErrCodeValidation, "filterHierarchiesOptions")

	_, err = Parse(req, versionID, schools(t), Limits{MaxHierarchyProduct: 4})
	assert.NoError(t, err)
}

func TestParse_IndicatorsAndSort(t *testing.T) {
	plan := mustParse(t, `{
		"indicators":["abs","abs"],
		"sort":[{"field":"time_period","direction":"DESC"},{"field":"st"},{"field":"location"}]
	}`)

	assert.Equal(t, []string{"i_absences"}, plan.Query.Columns)
	assert.Equal(t, []queryir.OrderBy{
		{Field: "time_ordinal", Desc: true},
		{Field: "f_school_type"},
		{Field: "location_id"},
	}, plan.Query.OrderBy)
}

func TestParse_PlanEvaluatesAgainstObservations(t *testing.T) {
	set := testutil.Schools().Build(t)
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"criteria":{"and":[
		{"locations":{"eq":{"level":"LA","code":"E08000019"}}},
		{"filters":{"in":["st-pri","st-sec"]}},
		{"timePeriods":{"gte":{"period":"2022","code":"AY"}}}
	]}}`), &req))
	plan, err := Parse(req, versionID, set, DefaultLimits())
	require.NoError(t, err)

	var matched []int64
	for _, obs := range testutil.Observations(set) {
		row, err := obs.Columns(set)
		require.NoError(t, err)
		if queryir.Eval(plan.Query.Filter, row) {
			matched = append(matched, obs.Seq)
		}
	}
	// shf rows are 7..12; 2022 AY rows are the second three of them.
	assert.Equal(t, []int64{10, 11}, matched)
}
