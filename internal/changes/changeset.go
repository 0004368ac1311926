package changes

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/mapping"
)

// State is the observable description of one facet option in one version.
// Attrs holds the kind-specific attributes that make up the description,
// e.g. a filter's column or an indicator's unit.
type State struct {
	ID    string
	Label string
	Attrs map[string]string
}

func (s State) equal(o State) bool {
	if s.Label != o.Label || len(s.Attrs) != len(o.Attrs) {
		return false
	}
	for k, v := range s.Attrs {
		if ov, ok := o.Attrs[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Change is a pair of states for an option present in both versions.
type Change struct {
	Previous State
	Current  State
}

// Section partitions the options of one facet kind.
type Section struct {
	Added   []State
	Removed []State
	Changed []Change
}

// Empty reports whether the section lists nothing.
func (s Section) Empty() bool {
	return len(s.Added) == 0 && len(s.Removed) == 0 && len(s.Changed) == 0
}

func (s *Section) sort() {
	byID := func(a, b State) int { return strings.Compare(a.ID, b.ID) }
	slices.SortFunc(s.Added, byID)
	slices.SortFunc(s.Removed, byID)
	slices.SortFunc(s.Changed, func(a, b Change) int {
		if c := byID(a.Previous, b.Previous); c != 0 {
			return c
		}
		return byID(a.Current, b.Current)
	})
}

func (s *Section) record(prev, cur State) {
	if !prev.equal(cur) {
		s.Changed = append(s.Changed, Change{Previous: prev, Current: cur})
	}
}

// ChangeSet lists what changed between a live version and a draft.
//
// Locations groups location options by geographic level: a level group is
// changed when any location under it was added, removed or changed.
// GeographicLevels only lists levels that appeared or disappeared.
type ChangeSet struct {
	Filters          Section
	FilterOptions    Section
	Indicators       Section
	IndicatorUnits   Section
	Locations        Section
	LocationOptions  Section
	GeographicLevels Section
	TimePeriods      Section

	// Initial is set when there is no live version to compare against.
	Initial bool
	// Blocked is set while mapping entries await an external decision.
	Blocked    bool
	Unresolved int
}

// Empty reports whether nothing observable changed.
func (cs *ChangeSet) Empty() bool {
	for _, s := range cs.sections() {
		if !s.section.Empty() {
			return false
		}
	}
	return true
}

type namedSection struct {
	name    string
	section *Section
}

func (cs *ChangeSet) sections() []namedSection {
	return []namedSection{
		{"filters", &cs.Filters},
		{"filter_options", &cs.FilterOptions},
		{"indicators", &cs.Indicators},
		{"indicator_units", &cs.IndicatorUnits},
		{"locations", &cs.Locations},
		{"location_options", &cs.LocationOptions},
		{"geographic_levels", &cs.GeographicLevels},
		{"time_periods", &cs.TimePeriods},
	}
}

// Build derives the ChangeSet of a mapping. Unresolved entries are counted
// but appear in no section until they are resolved.
func Build(r *mapping.Result) *ChangeSet {
	cs := &ChangeSet{
		Initial:    empty(r.Source),
		Blocked:    r.Blocked(),
		Unresolved: r.Unresolved(),
	}

	for _, e := range r.Entries(facet.KindFilter) {
		diff(&cs.Filters, e, r, func(s *facet.Set, i int) State { return filterState(s.Filters[i]) })
	}
	for _, e := range r.Entries(facet.KindFilterOption) {
		diff(&cs.FilterOptions, e, r, func(s *facet.Set, i int) State { return optionState(s.FilterOptions[i]) })
	}
	for _, e := range r.Entries(facet.KindIndicator) {
		diff(&cs.Indicators, e, r, func(s *facet.Set, i int) State { return indicatorState(s.Indicators[i]) })
		if e.Type == mapping.Mapped {
			src, tgt := r.Source.Indicators[e.Source], r.Target.Indicators[e.Target]
			if !src.SameUnit(tgt) {
				cs.IndicatorUnits.Changed = append(cs.IndicatorUnits.Changed,
					Change{Previous: unitState(src), Current: unitState(tgt)})
			}
		}
	}
	for _, e := range r.Entries(facet.KindLocation) {
		diff(&cs.LocationOptions, e, r, func(s *facet.Set, i int) State { return locationState(s.Locations[i]) })
	}
	for _, e := range r.Entries(facet.KindTimePeriod) {
		diff(&cs.TimePeriods, e, r, func(s *facet.Set, i int) State { return periodState(s.TimePeriods[i]) })
	}
	levelGroups(cs, r)

	for _, s := range cs.sections() {
		s.section.sort()
	}
	return cs
}

func diff(s *Section, e mapping.Entry, r *mapping.Result, state func(*facet.Set, int) State) {
	switch e.Type {
	case mapping.New:
		s.Added = append(s.Added, state(r.Target, e.Target))
	case mapping.NoMapping:
		s.Removed = append(s.Removed, state(r.Source, e.Source))
	case mapping.Mapped:
		s.record(state(r.Source, e.Source), state(r.Target, e.Target))
	}
}

// levelGroups fills Locations and GeographicLevels from the level sets of
// both versions and the location option changes already collected.
func levelGroups(cs *ChangeSet, r *mapping.Result) {
	before := countByLevel(r.Source)
	after := countByLevel(r.Target)

	touched := make(map[facet.GeographicLevel]bool)
	for _, e := range r.Entries(facet.KindLocation) {
		switch {
		case e.Type == mapping.New:
			touched[r.Target.Locations[e.Target].Level] = true
		case e.Type == mapping.NoMapping:
			touched[r.Source.Locations[e.Source].Level] = true
		case e.Type == mapping.Mapped:
			src, tgt := r.Source.Locations[e.Source], r.Target.Locations[e.Target]
			if !locationState(src).equal(locationState(tgt)) {
				touched[src.Level] = true
				touched[tgt.Level] = true
			}
		}
	}

	for level, n := range before {
		if _, ok := after[level]; !ok {
			cs.Locations.Removed = append(cs.Locations.Removed, levelGroupState(level, n))
			cs.GeographicLevels.Removed = append(cs.GeographicLevels.Removed, levelState(level))
		}
	}
	for level, n := range after {
		prev, ok := before[level]
		switch {
		case !ok:
			cs.Locations.Added = append(cs.Locations.Added, levelGroupState(level, n))
			cs.GeographicLevels.Added = append(cs.GeographicLevels.Added, levelState(level))
		case touched[level]:
			cs.Locations.Changed = append(cs.Locations.Changed,
				Change{Previous: levelGroupState(level, prev), Current: levelGroupState(level, n)})
		}
	}
}

func countByLevel(s *facet.Set) map[facet.GeographicLevel]int {
	out := make(map[facet.GeographicLevel]int)
	for _, l := range s.Locations {
		out[l.Level]++
	}
	return out
}

func empty(s *facet.Set) bool {
	for _, kind := range facet.Kinds {
		if s.Len(kind) > 0 {
			return false
		}
	}
	return true
}

func filterState(f *facet.Filter) State {
	attrs := map[string]string{"column": f.Column}
	if f.Hint != "" {
		attrs["hint"] = f.Hint
	}
	return State{ID: f.PublicID, Label: f.Name, Attrs: attrs}
}

func optionState(o *facet.FilterOption) State {
	attrs := map[string]string{"filter": o.FilterColumn}
	if o.IsAggregate {
		attrs["aggregate"] = "true"
	}
	return State{ID: o.PublicID, Label: o.Name, Attrs: attrs}
}

func indicatorState(i *facet.Indicator) State {
	return State{ID: i.PublicID, Label: i.Name, Attrs: map[string]string{"column": i.Column}}
}

func unitState(i *facet.Indicator) State {
	attrs := map[string]string{"unit": i.Unit}
	if i.DecimalPlaces != nil {
		attrs["decimal_places"] = strconv.Itoa(*i.DecimalPlaces)
	}
	return State{ID: i.PublicID, Label: i.Name, Attrs: attrs}
}

func locationState(l *facet.Location) State {
	attrs := map[string]string{"level": string(l.Level)}
	for _, field := range []string{facet.CodeField, facet.URNField, facet.UKPRNField, facet.LAEstabField, facet.OldCodeField} {
		if v := l.Codes.Get(field); v != "" {
			attrs[field] = v
		}
	}
	return State{ID: l.PublicID, Label: l.Name, Attrs: attrs}
}

func levelState(level facet.GeographicLevel) State {
	return State{ID: string(level), Label: level.Label()}
}

func levelGroupState(level facet.GeographicLevel, n int) State {
	return State{ID: string(level), Label: level.Label(), Attrs: map[string]string{"locations": strconv.Itoa(n)}}
}

func periodState(t *facet.TimePeriod) State {
	return State{ID: t.ID(), Label: t.Label(), Attrs: map[string]string{"code": string(t.Code)}}
}
