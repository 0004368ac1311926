package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/facet"
)

// SetBuilder assembles facet sets for tests. The first error sticks and is
// reported by Build.
type SetBuilder struct {
	set *facet.Set
	err error
}

// NewSet starts an empty facet set.
func NewSet() *SetBuilder {
	return &SetBuilder{set: facet.NewSet()}
}

// Location adds a location identified by its code.
func (b *SetBuilder) Location(id string, level facet.GeographicLevel, name, code string) *SetBuilder {
	return b.LocationCodes(id, level, name, facet.LocationCodes{Code: code})
}

// LocationCodes adds a location with explicit codes.
func (b *SetBuilder) LocationCodes(id string, level facet.GeographicLevel, name string, codes facet.LocationCodes) *SetBuilder {
	if b.err == nil {
		_, b.err = b.set.AddLocation(&facet.Location{PublicID: id, Level: level, Name: name, Codes: codes})
	}
	return b
}

// Filter adds a filter and its options. Options are written "id:label".
func (b *SetBuilder) Filter(id, column, label string, options ...string) *SetBuilder {
	if b.err != nil {
		return b
	}
	fi, err := b.set.AddFilter(&facet.Filter{PublicID: id, Column: column, Name: label})
	if err != nil {
		b.err = err
		return b
	}
	for _, o := range options {
		oid, olabel, ok := strings.Cut(o, ":")
		if !ok {
			b.err = fmt.Errorf("filter option %q: want id:label", o)
			return b
		}
		if _, err := b.set.AddFilterOption(fi, &facet.FilterOption{PublicID: oid, Name: olabel}); err != nil {
			b.err = err
			return b
		}
	}
	return b
}

// Indicator adds an indicator without unit.
func (b *SetBuilder) Indicator(id, column, label string) *SetBuilder {
	return b.IndicatorUnit(id, column, label, "", nil)
}

// IndicatorUnit adds an indicator with a unit and decimal places.
func (b *SetBuilder) IndicatorUnit(id, column, label, unit string, dp *int) *SetBuilder {
	if b.err == nil {
		_, b.err = b.set.AddIndicator(&facet.Indicator{PublicID: id, Column: column, Name: label, Unit: unit, DecimalPlaces: dp})
	}
	return b
}

// Periods adds one time period per code for the given year.
func (b *SetBuilder) Periods(year int, codes ...string) *SetBuilder {
	for _, c := range codes {
		if b.err != nil {
			return b
		}
		_, b.err = b.set.AddTimePeriod(facet.Period{Year: year, Code: facet.TimeIdentifier(c)})
	}
	return b
}

// Build returns the set, failing the test on any builder error.
func (b *SetBuilder) Build(t testing.TB) *facet.Set {
	t.Helper()
	require.NoError(t, b.err)
	return b.set
}

// Schools returns the standard fixture used across package tests:
// two locations, a school type filter, an enrolments indicator and two
// academic years.
func Schools() *SetBuilder {
	return NewSet().
		Location("eng", facet.LevelCountry, "England", "E92000001").
		Location("shf", facet.LevelLocalAuthority, "Sheffield", "E08000019").
		Filter("st", "school_type", "School type", "st-pri:Primary", "st-sec:Secondary", "st-tot:Total").
		Indicator("enr", "enrolments", "Enrolments").
		Periods(2021, "AY").
		Periods(2022, "AY")
}

// Observations returns one observation per combination of location, time
// period and filter option of the first filter, with enrolments counting
// up from 1. Sequence numbers start at 1 in that order.
func Observations(s *facet.Set) []facet.Observation {
	var out []facet.Observation
	var seq int64
	for _, l := range s.Locations {
		for _, tp := range s.TimePeriods {
			optionIDs := []string{""}
			if len(s.Filters) > 0 {
				optionIDs = optionIDs[:0]
				for _, idx := range s.Filters[0].Options {
					optionIDs = append(optionIDs, s.FilterOptions[idx].PublicID)
				}
			}
			for _, oid := range optionIDs {
				seq++
				obs := facet.Observation{
					Seq:             seq,
					GeographicLevel: l.Level,
					LocationID:      l.PublicID,
					TimePeriodID:    tp.ID(),
					Filters:         map[string]string{},
					Values:          map[string]string{},
				}
				if oid != "" {
					obs.Filters[s.Filters[0].Column] = oid
				}
				for _, ind := range s.Indicators {
					obs.Values[ind.Column] = fmt.Sprint(seq)
				}
				out = append(out, obs)
			}
		}
	}
	return out
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
