package facet

import (
	"fmt"
	"slices"

	"github.com/roach88/dataver/internal/ir"
)

// Set is the arena of facet options of one data set version.
//
// Indices are assigned in insertion order and never change, so mapping
// entries and filters can refer to options by index.
type Set struct {
	Locations     []*Location
	Filters       []*Filter
	FilterOptions []*FilterOption
	Indicators    []*Indicator
	TimePeriods   []*TimePeriod

	byID     map[Kind]map[string]int
	byColumn map[string]int
}

// NewSet returns an empty set.
func NewSet() *Set {
	s := &Set{
		byID:     make(map[Kind]map[string]int, len(Kinds)),
		byColumn: make(map[string]int),
	}
	for _, k := range Kinds {
		s.byID[k] = make(map[string]int)
	}
	return s
}

func (s *Set) claim(kind Kind, id string, idx int) error {
	if id == "" {
		return fmt.Errorf("%s at index %d has no id", kind, idx)
	}
	if _, dup := s.byID[kind][id]; dup {
		return fmt.Errorf("%w: %s %q", ErrDuplicateOption, kind, id)
	}
	s.byID[kind][id] = idx
	return nil
}

// AddLocation appends a location and returns its index.
func (s *Set) AddLocation(l *Location) (int, error) {
	idx := len(s.Locations)
	if err := s.claim(KindLocation, l.PublicID, idx); err != nil {
		return -1, err
	}
	s.Locations = append(s.Locations, l)
	return idx, nil
}

// AddFilter appends a filter and returns its index. Column names are unique
// within a set.
func (s *Set) AddFilter(f *Filter) (int, error) {
	idx := len(s.Filters)
	if _, dup := s.byColumn[f.Column]; dup && f.Column != "" {
		return -1, fmt.Errorf("%w: filter column %q", ErrDuplicateOption, f.Column)
	}
	if err := s.claim(KindFilter, f.PublicID, idx); err != nil {
		return -1, err
	}
	f.Options = nil
	s.Filters = append(s.Filters, f)
	if f.Column != "" {
		s.byColumn[f.Column] = idx
	}
	return idx, nil
}

// AddFilterOption appends an option under the filter at index filter.
func (s *Set) AddFilterOption(filter int, o *FilterOption) (int, error) {
	if filter < 0 || filter >= len(s.Filters) {
		return -1, fmt.Errorf("filter option %q: no filter at index %d", o.PublicID, filter)
	}
	idx := len(s.FilterOptions)
	if err := s.claim(KindFilterOption, o.PublicID, idx); err != nil {
		return -1, err
	}
	parent := s.Filters[filter]
	o.Filter = filter
	o.FilterColumn = parent.Column
	s.FilterOptions = append(s.FilterOptions, o)
	parent.Options = append(parent.Options, idx)
	return idx, nil
}

// AddIndicator appends an indicator and returns its index.
func (s *Set) AddIndicator(i *Indicator) (int, error) {
	idx := len(s.Indicators)
	if err := s.claim(KindIndicator, i.PublicID, idx); err != nil {
		return -1, err
	}
	s.Indicators = append(s.Indicators, i)
	return idx, nil
}

// AddTimePeriod appends a time period and returns its index.
func (s *Set) AddTimePeriod(p Period) (int, error) {
	if !p.Code.Valid() {
		return -1, fmt.Errorf("time period %d: unknown identifier %q", p.Year, p.Code)
	}
	idx := len(s.TimePeriods)
	if err := s.claim(KindTimePeriod, p.ID(), idx); err != nil {
		return -1, err
	}
	s.TimePeriods = append(s.TimePeriods, &TimePeriod{Period: p})
	return idx, nil
}

// Len returns the number of options of a kind.
func (s *Set) Len(kind Kind) int {
	switch kind {
	case KindLocation:
		return len(s.Locations)
	case KindFilter:
		return len(s.Filters)
	case KindFilterOption:
		return len(s.FilterOptions)
	case KindIndicator:
		return len(s.Indicators)
	case KindTimePeriod:
		return len(s.TimePeriods)
	}
	return 0
}

// Option returns the option of a kind at idx.
func (s *Set) Option(kind Kind, idx int) Option {
	switch kind {
	case KindLocation:
		return s.Locations[idx]
	case KindFilter:
		return s.Filters[idx]
	case KindFilterOption:
		return s.FilterOptions[idx]
	case KindIndicator:
		return s.Indicators[idx]
	case KindTimePeriod:
		return s.TimePeriods[idx]
	}
	panic(fmt.Sprintf("facet: unknown kind %q", kind))
}

// Lookup finds an option index by public id.
func (s *Set) Lookup(kind Kind, id string) (int, bool) {
	idx, ok := s.byID[kind][id]
	return idx, ok
}

// FilterByColumn finds a filter index by column name.
func (s *Set) FilterByColumn(column string) (int, bool) {
	idx, ok := s.byColumn[column]
	return idx, ok
}

// LocationByCode finds a location of the given level whose code field
// (CodeField, URNField...) equals value.
func (s *Set) LocationByCode(level GeographicLevel, field, value string) (int, bool) {
	for i, l := range s.Locations {
		if l.Level == level && value != "" && l.Codes.Get(field) == value {
			return i, true
		}
	}
	return -1, false
}

// OptionByLabel finds an option of the filter at index filter by label,
// compared in normalized form.
func (s *Set) OptionByLabel(filter int, label string) (int, bool) {
	want := NormalizeLabel(label)
	for _, idx := range s.Filters[filter].Options {
		if s.FilterOptions[idx].LocalKey() == want {
			return idx, true
		}
	}
	return -1, false
}

// Indices returns 0..Len(kind)-1.
func (s *Set) Indices(kind Kind) []int {
	out := make([]int, s.Len(kind))
	for i := range out {
		out[i] = i
	}
	return out
}

// GeographicLevels returns the distinct levels of the set's locations, sorted.
func (s *Set) GeographicLevels() []GeographicLevel {
	seen := make(map[GeographicLevel]bool)
	var out []GeographicLevel
	for _, l := range s.Locations {
		if !seen[l.Level] {
			seen[l.Level] = true
			out = append(out, l.Level)
		}
	}
	slices.Sort(out)
	return out
}

// Keys returns the natural keys of every option, sorted. The first key
// derivation failure is returned as an error.
func (s *Set) Keys() ([]Key, error) {
	var keys []Key
	for _, kind := range Kinds {
		for i := 0; i < s.Len(kind); i++ {
			opt := s.Option(kind, i)
			k, err := opt.NaturalKey()
			if err != nil {
				return nil, fmt.Errorf("%s %q: %w", kind, opt.ID(), err)
			}
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Digest fingerprints the set by its natural keys and display attributes,
// so relabelling an option changes the digest.
func (s *Set) Digest() (string, error) {
	keys, err := s.Keys()
	if err != nil {
		return "", err
	}
	entries := make([]string, 0, len(keys)+s.Len(KindIndicator)+s.Len(KindLocation)+s.Len(KindFilterOption))
	for _, k := range keys {
		entries = append(entries, string(k))
	}
	for _, l := range s.Locations {
		entries = append(entries, "location:"+l.PublicID+":"+l.Name)
	}
	for _, f := range s.Filters {
		entries = append(entries, "filter:"+f.PublicID+":"+f.Name)
	}
	for _, o := range s.FilterOptions {
		entries = append(entries, "filter_option:"+o.PublicID+":"+o.Name)
	}
	for _, i := range s.Indicators {
		dp := "-"
		if i.DecimalPlaces != nil {
			dp = fmt.Sprint(*i.DecimalPlaces)
		}
		entries = append(entries, "indicator:"+i.PublicID+":"+i.Name+":"+i.Unit+":"+dp)
	}
	slices.Sort(entries)
	return ir.FacetSetDigest(entries)
}

// Summary describes a set for version listings.
type Summary struct {
	GeographicLevels []GeographicLevel `json:"geographic_levels"`
	TimePeriodStart  string            `json:"time_period_start,omitempty"`
	TimePeriodEnd    string            `json:"time_period_end,omitempty"`
	Filters          int               `json:"filters"`
	Indicators       int               `json:"indicators"`
	Locations        int               `json:"locations"`
}

// Summarize computes the set's summary. The time period range spans the
// earliest and latest period by year, then by calendar position.
func (s *Set) Summarize() Summary {
	sum := Summary{
		GeographicLevels: s.GeographicLevels(),
		Filters:          len(s.Filters),
		Indicators:       len(s.Indicators),
		Locations:        len(s.Locations),
	}
	if len(s.TimePeriods) > 0 {
		periods := make([]Period, len(s.TimePeriods))
		for i, tp := range s.TimePeriods {
			periods[i] = tp.Period
		}
		slices.SortFunc(periods, func(a, b Period) int {
			if a.Year != b.Year {
				return a.Year - b.Year
			}
			return identifiers[a.Code].position - identifiers[b.Code].position
		})
		sum.TimePeriodStart = periods[0].Label()
		sum.TimePeriodEnd = periods[len(periods)-1].Label()
	}
	return sum
}
