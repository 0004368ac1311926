package criteria

import (
	"slices"

	"github.com/roach88/dataver/internal/facet"
)

// Paging defaults and bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 40
	MaxDepth        = 10
)

// Request is a query against one data set version.
type Request struct {
	Criteria *Node `json:"criteria,omitempty" yaml:"criteria,omitempty"`

	// Filters is the legacy flat list of filter option ids.
	Filters []string `json:"filters,omitempty" yaml:"filters,omitempty"`

	// FilterHierarchiesOptions scopes option selections under a parent
	// filter id: each inner list selects options of one hierarchy tier,
	// the first tier from the parent filter itself.
	FilterHierarchiesOptions map[string][][]string `json:"filterHierarchiesOptions,omitempty" yaml:"filterHierarchiesOptions,omitempty"`

	Indicators []string    `json:"indicators,omitempty" yaml:"indicators,omitempty"`
	Page       Option[int] `json:"page,omitzero" yaml:"page,omitempty"`
	PageSize   Option[int] `json:"pageSize,omitzero" yaml:"pageSize,omitempty"`
	Sort       []SortField `json:"sort,omitempty" yaml:"sort,omitempty"`
}

// SortField orders results by a facet. Field is "time_period",
// "geographic_level", "location" or a filter id; Direction is "asc"
// (default) or "desc".
type SortField struct {
	Field     string `json:"field" yaml:"field"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// FilterItemIDs returns the union of the flat filter option ids and the
// option ids of every hierarchy, deduplicated, in first-seen order. The
// hierarchy keys are filter ids and are never included.
func (r Request) FilterItemIDs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range r.Filters {
		add(id)
	}
	parents := make([]string, 0, len(r.FilterHierarchiesOptions))
	for p := range r.FilterHierarchiesOptions {
		parents = append(parents, p)
	}
	slices.Sort(parents)
	for _, p := range parents {
		for _, tier := range r.FilterHierarchiesOptions[p] {
			for _, id := range tier {
				add(id)
			}
		}
	}
	return out
}

// Node is one node of the criteria tree. A node is either boolean (exactly
// one of And, Or, Not) or a facet node whose set selectors are ANDed.
// A facet node with no selectors matches every row.
type Node struct {
	And Option[[]*Node] `json:"and,omitzero" yaml:"and,omitempty"`
	Or  Option[[]*Node] `json:"or,omitzero" yaml:"or,omitempty"`
	Not Option[*Node]   `json:"not,omitzero" yaml:"not,omitempty"`

	Filters          Option[Selector[string]]      `json:"filters,omitzero" yaml:"filters,omitempty"`
	GeographicLevels Option[Selector[string]]      `json:"geographicLevels,omitzero" yaml:"geographicLevels,omitempty"`
	Locations        Option[Selector[LocationRef]] `json:"locations,omitzero" yaml:"locations,omitempty"`
	TimePeriods      Option[TimePeriodSelector]    `json:"timePeriods,omitzero" yaml:"timePeriods,omitempty"`
}

// Selector is a set of operators over one facet; operators are ANDed.
type Selector[T any] struct {
	Eq    Option[T]   `json:"eq,omitzero" yaml:"eq,omitempty"`
	NotEq Option[T]   `json:"notEq,omitzero" yaml:"notEq,omitempty"`
	In    Option[[]T] `json:"in,omitzero" yaml:"in,omitempty"`
	NotIn Option[[]T] `json:"notIn,omitzero" yaml:"notIn,omitempty"`
}

func (s Selector[T]) empty() bool {
	return !s.Eq.IsSet() && !s.NotEq.IsSet() && !s.In.IsSet() && !s.NotIn.IsSet()
}

// TimePeriodSelector adds ordering comparisons and ranges to Selector.
type TimePeriodSelector struct {
	Selector[PeriodRef] `yaml:",inline"`

	Gt    Option[PeriodRef]   `json:"gt,omitzero" yaml:"gt,omitempty"`
	Gte   Option[PeriodRef]   `json:"gte,omitzero" yaml:"gte,omitempty"`
	Lt    Option[PeriodRef]   `json:"lt,omitzero" yaml:"lt,omitempty"`
	Lte   Option[PeriodRef]   `json:"lte,omitzero" yaml:"lte,omitempty"`
	Range Option[PeriodRange] `json:"range,omitzero" yaml:"range,omitempty"`
}

func (s TimePeriodSelector) empty() bool {
	return s.Selector.empty() && !s.Gt.IsSet() && !s.Gte.IsSet() &&
		!s.Lt.IsSet() && !s.Lte.IsSet() && !s.Range.IsSet()
}

// PeriodRef names a time period by year label and time identifier code,
// e.g. {period: "2022/2023", code: "AY"}.
type PeriodRef struct {
	Period string `json:"period" yaml:"period"`
	Code   string `json:"code" yaml:"code"`
}

// PeriodRange is an inclusive range of periods of one calendar family.
type PeriodRange struct {
	Start PeriodRef `json:"start" yaml:"start"`
	End   PeriodRef `json:"end" yaml:"end"`
}

// LocationRef names a location by id, or by geographic level and one code.
type LocationRef struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
	URN     string `json:"urn,omitempty" yaml:"urn,omitempty"`
	UKPRN   string `json:"ukprn,omitempty" yaml:"ukprn,omitempty"`
	LAEstab string `json:"laEstab,omitempty" yaml:"laEstab,omitempty"`
	OldCode string `json:"oldCode,omitempty" yaml:"oldCode,omitempty"`
}

// codes returns the code fields that are set, as (field, value) pairs.
func (r LocationRef) codes() [][2]string {
	var out [][2]string
	for _, c := range [][2]string{
		{facet.CodeField, r.Code},
		{facet.URNField, r.URN},
		{facet.UKPRNField, r.UKPRN},
		{facet.LAEstabField, r.LAEstab},
		{facet.OldCodeField, r.OldCode},
	} {
		if c[1] != "" {
			out = append(out, c)
		}
	}
	return out
}

// Limits bounds the work a single request can cause.
type Limits struct {
	MaxTimePeriods      int
	MaxHierarchyProduct int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxTimePeriods: 500, MaxHierarchyProduct: 10000}
}
