package facet

import (
	"fmt"
	"regexp"

	"github.com/roach88/dataver/internal/ir"
)

// Observation is one row of a version's observation data. Facet references
// are public ids of options in the version's Set; values are keyed by
// indicator column and kept as the strings they were published as.
type Observation struct {
	Seq             int64             `json:"seq"`
	GeographicLevel GeographicLevel   `json:"geographic_level"`
	LocationID      string            `json:"location_id"`
	TimePeriodID    string            `json:"time_period"`
	Filters         map[string]string `json:"filters"`
	Values          map[string]string `json:"values"`
}

// Physical column names of observation tables.
const (
	ColumnSeq             = "row_seq"
	ColumnGeographicLevel = "geographic_level"
	ColumnLocation        = "location_id"
	ColumnTimePeriod      = "time_period"
	ColumnTimeIdentifier  = "time_identifier"
	ColumnTimeOrdinal     = "time_ordinal"
)

var columnName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidColumn reports whether name is usable as a filter or indicator
// column: lower case ASCII letters, digits and underscores.
func ValidColumn(name string) bool {
	return columnName.MatchString(name)
}

// FilterColumn is the observation table column holding option ids of a filter.
func FilterColumn(column string) string { return "f_" + column }

// IndicatorColumn is the observation table column holding indicator values.
func IndicatorColumn(column string) string { return "i_" + column }

// Columns flattens the observation into physical column values.
// Missing filter values become empty strings; missing indicator values
// become null.
func (o Observation) Columns(s *Set) (ir.IRObject, error) {
	period, err := ParsePeriodID(o.TimePeriodID)
	if err != nil {
		return nil, fmt.Errorf("observation %d: %w", o.Seq, err)
	}
	row := ir.IRObject{
		ColumnSeq:             ir.IRInt(o.Seq),
		ColumnGeographicLevel: ir.IRString(o.GeographicLevel),
		ColumnLocation:        ir.IRString(o.LocationID),
		ColumnTimePeriod:      ir.IRString(period.ID()),
		ColumnTimeIdentifier:  ir.IRString(period.Code),
		ColumnTimeOrdinal:     ir.IRInt(period.Ordinal()),
	}
	for _, f := range s.Filters {
		row[FilterColumn(f.Column)] = ir.IRString(o.Filters[f.Column])
	}
	for _, i := range s.Indicators {
		if v, ok := o.Values[i.Column]; ok {
			row[IndicatorColumn(i.Column)] = ir.IRString(v)
		} else {
			row[IndicatorColumn(i.Column)] = ir.IRNull{}
		}
	}
	return row, nil
}
