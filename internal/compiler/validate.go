package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dataver/internal/facet"
)

// Validation error codes (E100-E199)
const (
	// Data set errors (E101-E109)
	ErrDataSetTitleEmpty = "E101" // title is required
	ErrNoIndicators      = "E102" // at least one indicator required
	ErrNoTimePeriods     = "E103" // at least one time period required
	ErrNoLocations       = "E104" // at least one location required
	ErrInvalidColumn     = "E105" // filter or indicator column is not a safe identifier
	ErrEmptyFilter       = "E106" // filter without options
	ErrMixedTimeFamilies = "E107" // time periods from more than one identifier family

	// Observation errors (E110-E119)
	ErrUnknownLocation   = "E110" // location id not in the facet set
	ErrUnknownTimePeriod = "E111" // time period id not in the facet set
	ErrUnknownFilter     = "E112" // filter column or option not in the facet set
	ErrUnknownIndicator  = "E113" // value for a column that is not an indicator
	ErrLevelMismatch     = "E114" // observation level differs from its location
	ErrDuplicateRow      = "E115" // two rows for the same facet combination
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled data set definition.
// Returns all errors found (does not fail-fast).
func Validate(def *DataSetDef) []ValidationError {
	errs := validateFacets(def)
	return append(errs, validateObservations(def)...)
}

func validateFacets(def *DataSetDef) []ValidationError {
	var errs []ValidationError
	set := def.Facets

	if strings.TrimSpace(def.Title) == "" {
		errs = append(errs, ValidationError{Field: "title", Message: "title is required and must be non-empty", Code: ErrDataSetTitleEmpty})
	}
	if len(set.Indicators) == 0 {
		errs = append(errs, ValidationError{Field: "indicators", Message: "at least one indicator is required", Code: ErrNoIndicators})
	}
	if len(set.TimePeriods) == 0 {
		errs = append(errs, ValidationError{Field: "time_periods", Message: "at least one time period is required", Code: ErrNoTimePeriods})
	}
	if len(set.Locations) == 0 {
		errs = append(errs, ValidationError{Field: "locations", Message: "at least one location is required", Code: ErrNoLocations})
	}

	for i, f := range set.Filters {
		if !facet.ValidColumn(f.Column) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("filters[%d].column", i),
				Message: fmt.Sprintf("invalid column %q: use lower case letters, digits and underscores", f.Column),
				Code:    ErrInvalidColumn,
			})
		}
		if len(f.Options) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("filters[%d].options", i),
				Message: fmt.Sprintf("filter %q has no options", f.Column),
				Code:    ErrEmptyFilter,
			})
		}
	}
	for i, ind := range set.Indicators {
		if !facet.ValidColumn(ind.Column) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("indicators[%d].column", i),
				Message: fmt.Sprintf("invalid column %q: use lower case letters, digits and underscores", ind.Column),
				Code:    ErrInvalidColumn,
			})
		}
	}

	var families []facet.Family
	for _, tp := range set.TimePeriods {
		if f := tp.Code.Family(); !slices.Contains(families, f) {
			families = append(families, f)
		}
	}
	if len(families) > 1 {
		errs = append(errs, ValidationError{
			Field:   "time_periods",
			Message: fmt.Sprintf("time periods mix identifier families %v", families),
			Code:    ErrMixedTimeFamilies,
		})
	}
	return errs
}

func validateObservations(def *DataSetDef) []ValidationError {
	var errs []ValidationError
	set := def.Facets
	seen := make(map[string]int)

	for i, obs := range def.Observations {
		field := fmt.Sprintf("observations[%d]", i)

		if idx, ok := set.Lookup(facet.KindLocation, obs.LocationID); !ok {
			errs = append(errs, ValidationError{Field: field + ".location", Message: fmt.Sprintf("unknown location %q", obs.LocationID), Code: ErrUnknownLocation})
		} else if lvl := set.Locations[idx].Level; obs.GeographicLevel != lvl {
			errs = append(errs, ValidationError{
				Field:   field + ".level",
				Message: fmt.Sprintf("level %s does not match location %q at %s", obs.GeographicLevel, obs.LocationID, lvl),
				Code:    ErrLevelMismatch,
			})
		}
		if _, ok := set.Lookup(facet.KindTimePeriod, obs.TimePeriodID); !ok {
			errs = append(errs, ValidationError{Field: field + ".time_period", Message: fmt.Sprintf("unknown time period %q", obs.TimePeriodID), Code: ErrUnknownTimePeriod})
		}

		columns := make([]string, 0, len(obs.Filters))
		for column := range obs.Filters {
			columns = append(columns, column)
		}
		slices.Sort(columns)
		for _, column := range columns {
			if msg := checkFilterValue(set, column, obs.Filters[column]); msg != "" {
				errs = append(errs, ValidationError{Field: field + ".filters." + column, Message: msg, Code: ErrUnknownFilter})
			}
		}

		values := make([]string, 0, len(obs.Values))
		for column := range obs.Values {
			values = append(values, column)
		}
		slices.Sort(values)
		for _, column := range values {
			if !hasIndicator(set, column) {
				errs = append(errs, ValidationError{Field: field + ".values." + column, Message: fmt.Sprintf("no indicator with column %q", column), Code: ErrUnknownIndicator})
			}
		}

		key := rowKey(obs, columns)
		if first, dup := seen[key]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicates observations[%d]", first),
				Code:    ErrDuplicateRow,
			})
		} else {
			seen[key] = i
		}
	}
	return errs
}

func checkFilterValue(set *facet.Set, column, optionID string) string {
	fi, ok := set.FilterByColumn(column)
	if !ok {
		return fmt.Sprintf("no filter with column %q", column)
	}
	idx, ok := set.Lookup(facet.KindFilterOption, optionID)
	if !ok || set.FilterOptions[idx].Filter != fi {
		return fmt.Sprintf("filter %q has no option %q", column, optionID)
	}
	return ""
}

func hasIndicator(set *facet.Set, column string) bool {
	return slices.ContainsFunc(set.Indicators, func(ind *facet.Indicator) bool { return ind.Column == column })
}

// rowKey identifies the facet combination of an observation. columns
// must be the sorted filter columns of obs.
func rowKey(obs facet.Observation, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\x00%s", obs.LocationID, obs.TimePeriodID)
	for _, c := range columns {
		fmt.Fprintf(&b, "\x00%s=%s", c, obs.Filters[c])
	}
	return b.String()
}
