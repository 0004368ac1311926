package facet

import (
	"fmt"
	"slices"

	"github.com/roach88/dataver/internal/ir"
)

// Option is implemented by every facet option variant.
type Option interface {
	Kind() Kind
	ID() string
	Label() string
	NaturalKey() (Key, error)
}

// LocationCodes holds the identifying codes a location may carry.
// Which of them forms the natural key depends on the geographic level.
type LocationCodes struct {
	Code    string `json:"code,omitempty"`
	URN     string `json:"urn,omitempty"`
	UKPRN   string `json:"ukprn,omitempty"`
	LAEstab string `json:"laestab,omitempty"`
	OldCode string `json:"old_code,omitempty"`
}

// Get returns the code stored under a field name (CodeField, URNField...).
func (c LocationCodes) Get(field string) string {
	switch field {
	case CodeField:
		return c.Code
	case URNField:
		return c.URN
	case UKPRNField:
		return c.UKPRN
	case LAEstabField:
		return c.LAEstab
	case OldCodeField:
		return c.OldCode
	}
	return ""
}

// Values returns the non-empty codes, sorted.
func (c LocationCodes) Values() []string {
	var out []string
	for _, v := range []string{c.Code, c.URN, c.UKPRN, c.LAEstab, c.OldCode} {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Location is a place observations are reported for.
type Location struct {
	PublicID string          `json:"id"`
	Level    GeographicLevel `json:"level"`
	Name     string          `json:"label"`
	Codes    LocationCodes   `json:"codes"`
}

func (l *Location) Kind() Kind    { return KindLocation }
func (l *Location) ID() string    { return l.PublicID }
func (l *Location) Label() string { return l.Name }

// KeyCode returns the code field and value that identify the location,
// following the precedence of its level.
func (l *Location) KeyCode() (field, value string, err error) {
	for _, f := range keyFields(l.Level) {
		if v := l.Codes.Get(f); v != "" {
			return f, v, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s location %q has no %v", ErrMalformedKey, l.Level, l.Name, keyFields(l.Level))
}

// NaturalKey is derived from the level and the first present key code.
func (l *Location) NaturalKey() (Key, error) {
	if !l.Level.Valid() {
		return "", fmt.Errorf("%w: unknown geographic level %q", ErrMalformedKey, l.Level)
	}
	field, value, err := l.KeyCode()
	if err != nil {
		return "", err
	}
	return naturalKey(KindLocation, ir.IRObject{
		"level": ir.IRString(l.Level),
		field:   ir.IRString(value),
	})
}

// Filter is a categorical column of the observation data.
type Filter struct {
	PublicID string `json:"id"`
	Column   string `json:"column"`
	Name     string `json:"label"`
	Hint     string `json:"hint,omitempty"`

	// Options holds indices into the owning Set's filter options.
	Options []int `json:"-"`
}

func (f *Filter) Kind() Kind    { return KindFilter }
func (f *Filter) ID() string    { return f.PublicID }
func (f *Filter) Label() string { return f.Name }

// NaturalKey is derived from the public column name.
func (f *Filter) NaturalKey() (Key, error) {
	if f.Column == "" {
		return "", fmt.Errorf("%w: filter %q has no column", ErrMalformedKey, f.Name)
	}
	return naturalKey(KindFilter, ir.IRObject{"column": ir.IRString(f.Column)})
}

// FilterOption is one value of a filter.
type FilterOption struct {
	PublicID     string `json:"id"`
	Name         string `json:"label"`
	IsAggregate  bool   `json:"is_aggregate,omitempty"`
	FilterColumn string `json:"filter"`

	// Filter is the index of the parent filter in the owning Set.
	Filter int `json:"-"`
}

func (o *FilterOption) Kind() Kind    { return KindFilterOption }
func (o *FilterOption) ID() string    { return o.PublicID }
func (o *FilterOption) Label() string { return o.Name }

// LocalKey identifies the option inside its parent filter.
func (o *FilterOption) LocalKey() string {
	return NormalizeLabel(o.Name)
}

// NaturalKey is derived from the parent filter column and the normalized label.
func (o *FilterOption) NaturalKey() (Key, error) {
	local := o.LocalKey()
	if o.FilterColumn == "" || local == "" {
		return "", fmt.Errorf("%w: filter option %q needs a filter column and a label", ErrMalformedKey, o.Name)
	}
	return naturalKey(KindFilterOption, ir.IRObject{
		"filter": ir.IRString(o.FilterColumn),
		"label":  ir.IRString(local),
	})
}

// Indicator is a measured column of the observation data.
type Indicator struct {
	PublicID      string `json:"id"`
	Column        string `json:"column"`
	Name          string `json:"label"`
	Unit          string `json:"unit,omitempty"`
	DecimalPlaces *int   `json:"decimal_places,omitempty"`
}

func (i *Indicator) Kind() Kind    { return KindIndicator }
func (i *Indicator) ID() string    { return i.PublicID }
func (i *Indicator) Label() string { return i.Name }

// NaturalKey is derived from the public column name.
func (i *Indicator) NaturalKey() (Key, error) {
	if i.Column == "" {
		return "", fmt.Errorf("%w: indicator %q has no column", ErrMalformedKey, i.Name)
	}
	return naturalKey(KindIndicator, ir.IRObject{"column": ir.IRString(i.Column)})
}

// SameUnit reports whether two indicators present their values identically.
func (i *Indicator) SameUnit(other *Indicator) bool {
	if i.Unit != other.Unit {
		return false
	}
	switch {
	case i.DecimalPlaces == nil && other.DecimalPlaces == nil:
		return true
	case i.DecimalPlaces == nil || other.DecimalPlaces == nil:
		return false
	}
	return *i.DecimalPlaces == *other.DecimalPlaces
}

// TimePeriod is a period observations are reported for.
type TimePeriod struct {
	Period
}

func (t *TimePeriod) Kind() Kind    { return KindTimePeriod }
func (t *TimePeriod) ID() string    { return t.Period.ID() }
func (t *TimePeriod) Label() string { return t.Period.Label() }

// NaturalKey is derived from the year and the identifier code.
func (t *TimePeriod) NaturalKey() (Key, error) {
	if !t.Code.Valid() {
		return "", fmt.Errorf("%w: unknown time identifier %q", ErrMalformedKey, t.Code)
	}
	return naturalKey(KindTimePeriod, ir.IRObject{
		"year": ir.IRInt(t.Year),
		"code": ir.IRString(t.Code),
	})
}

func naturalKey(kind Kind, attrs ir.IRObject) (Key, error) {
	k, err := ir.NaturalKey(string(kind), attrs)
	if err != nil {
		return "", err
	}
	return Key(k), nil
}
