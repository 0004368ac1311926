package compiler

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dataver/internal/facet"
)

// DataSetDef is a compiled data set definition: the data set's catalog
// fields plus the facet set and observations of one ingestion.
type DataSetDef struct {
	// Name is the label of the definition's struct. Several definitions
	// may share an ID to describe successive ingestions of one data set.
	Name             string
	ID               string
	Title            string
	Summary          string
	ReleaseVersionID string
	Notes            string

	Facets       *facet.Set
	Observations []facet.Observation
}

// CompileDataSet parses a CUE value into a DataSetDef.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the data set struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`dataset: absence: { title: "Pupil absence", ... }`)
//	def, err := CompileDataSet(v.LookupPath(cue.ParsePath("dataset.absence")))
//
// The id defaults to the struct label. Observations are numbered from 1
// in declaration order.
func CompileDataSet(v cue.Value) (*DataSetDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &DataSetDef{Facets: facet.NewSet()}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		def.Name = labels[len(labels)-1].Unquoted()
		def.ID = def.Name
	}

	var err error
	if id, err := optionalString(v, "id"); err != nil {
		return nil, err
	} else if id != "" {
		def.ID = id
	}
	if def.ID == "" {
		return nil, &CompileError{Field: "id", Message: "data set id is required", Pos: v.Pos()}
	}
	if def.Title, err = requiredString(v, "title"); err != nil {
		return nil, err
	}
	if def.Summary, err = optionalString(v, "summary"); err != nil {
		return nil, err
	}
	if def.ReleaseVersionID, err = optionalString(v, "release"); err != nil {
		return nil, err
	}
	if def.Notes, err = optionalString(v, "notes"); err != nil {
		return nil, err
	}

	if err := parseLocations(v, def.Facets); err != nil {
		return nil, err
	}
	if err := parseFilters(v, def.Facets); err != nil {
		return nil, err
	}
	if err := parseIndicators(v, def.Facets); err != nil {
		return nil, err
	}
	if err := parseTimePeriods(v, def.Facets); err != nil {
		return nil, err
	}
	if def.Observations, err = parseObservations(v, def.Facets); err != nil {
		return nil, err
	}
	return def, nil
}

// each calls fn for every element of the list at field. A missing field
// is an empty list.
func each(v cue.Value, field string, fn func(i int, elem cue.Value) error) error {
	list := v.LookupPath(cue.ParsePath(field))
	if !list.Exists() {
		return nil
	}
	iter, err := list.List()
	if err != nil {
		return formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(i, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func parseLocations(v cue.Value, set *facet.Set) error {
	return each(v, "locations", func(i int, lv cue.Value) error {
		field := fmt.Sprintf("locations[%d]", i)
		l := &facet.Location{}
		var err error
		if l.PublicID, err = requiredString(lv, "id"); err != nil {
			return err
		}
		if l.Name, err = requiredString(lv, "label"); err != nil {
			return err
		}
		code, err := requiredString(lv, "level")
		if err != nil {
			return err
		}
		if l.Level, err = facet.ParseGeographicLevel(code); err != nil {
			return &CompileError{Field: field + ".level", Message: err.Error(), Pos: lv.Pos()}
		}

		codes := lv.LookupPath(cue.ParsePath("codes"))
		for _, c := range []struct {
			name string
			dst  *string
		}{
			{facet.CodeField, &l.Codes.Code},
			{facet.URNField, &l.Codes.URN},
			{facet.UKPRNField, &l.Codes.UKPRN},
			{facet.LAEstabField, &l.Codes.LAEstab},
			{facet.OldCodeField, &l.Codes.OldCode},
		} {
			if *c.dst, err = optionalString(codes, c.name); err != nil {
				return err
			}
		}

		if _, err := set.AddLocation(l); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: lv.Pos()}
		}
		return nil
	})
}

func parseFilters(v cue.Value, set *facet.Set) error {
	return each(v, "filters", func(i int, fv cue.Value) error {
		field := fmt.Sprintf("filters[%d]", i)
		f := &facet.Filter{}
		var err error
		if f.PublicID, err = requiredString(fv, "id"); err != nil {
			return err
		}
		if f.Column, err = requiredString(fv, "column"); err != nil {
			return err
		}
		if f.Name, err = requiredString(fv, "label"); err != nil {
			return err
		}
		if f.Hint, err = optionalString(fv, "hint"); err != nil {
			return err
		}
		fi, err := set.AddFilter(f)
		if err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
		}

		return each(fv, "options", func(j int, ov cue.Value) error {
			o := &facet.FilterOption{}
			var err error
			if o.PublicID, err = requiredString(ov, "id"); err != nil {
				return err
			}
			if o.Name, err = requiredString(ov, "label"); err != nil {
				return err
			}
			if agg := ov.LookupPath(cue.ParsePath("aggregate")); agg.Exists() {
				if o.IsAggregate, err = agg.Bool(); err != nil {
					return formatCUEError(err)
				}
			}
			if _, err := set.AddFilterOption(fi, o); err != nil {
				return &CompileError{Field: fmt.Sprintf("%s.options[%d]", field, j), Message: err.Error(), Pos: ov.Pos()}
			}
			return nil
		})
	})
}

func parseIndicators(v cue.Value, set *facet.Set) error {
	return each(v, "indicators", func(i int, iv cue.Value) error {
		ind := &facet.Indicator{}
		var err error
		if ind.PublicID, err = requiredString(iv, "id"); err != nil {
			return err
		}
		if ind.Column, err = requiredString(iv, "column"); err != nil {
			return err
		}
		if ind.Name, err = requiredString(iv, "label"); err != nil {
			return err
		}
		if ind.Unit, err = optionalString(iv, "unit"); err != nil {
			return err
		}
		if dp := iv.LookupPath(cue.ParsePath("decimal_places")); dp.Exists() {
			n, err := dp.Int64()
			if err != nil {
				return &CompileError{Field: fmt.Sprintf("indicators[%d].decimal_places", i), Message: "must be an int", Pos: dp.Pos()}
			}
			places := int(n)
			ind.DecimalPlaces = &places
		}
		if _, err := set.AddIndicator(ind); err != nil {
			return &CompileError{Field: fmt.Sprintf("indicators[%d]", i), Message: err.Error(), Pos: iv.Pos()}
		}
		return nil
	})
}

func parseTimePeriods(v cue.Value, set *facet.Set) error {
	return each(v, "time_periods", func(i int, tv cue.Value) error {
		field := fmt.Sprintf("time_periods[%d]", i)
		period, err := requiredString(tv, "period")
		if err != nil {
			return err
		}
		code, err := requiredString(tv, "code")
		if err != nil {
			return err
		}
		p, err := facet.ParsePeriod(period, code)
		if err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: tv.Pos()}
		}
		if _, err := set.AddTimePeriod(p); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: tv.Pos()}
		}
		return nil
	})
}

// parseObservations reads observation rows. Level defaults to the level
// of the referenced location.
func parseObservations(v cue.Value, set *facet.Set) ([]facet.Observation, error) {
	var out []facet.Observation
	err := each(v, "observations", func(i int, ov cue.Value) error {
		field := fmt.Sprintf("observations[%d]", i)
		obs := facet.Observation{
			Seq:     int64(i + 1),
			Filters: map[string]string{},
			Values:  map[string]string{},
		}
		var err error
		if obs.LocationID, err = requiredString(ov, "location"); err != nil {
			return err
		}
		if obs.TimePeriodID, err = requiredString(ov, "time_period"); err != nil {
			return err
		}
		level, err := optionalString(ov, "level")
		if err != nil {
			return err
		}
		if level != "" {
			if obs.GeographicLevel, err = facet.ParseGeographicLevel(level); err != nil {
				return &CompileError{Field: field + ".level", Message: err.Error(), Pos: ov.Pos()}
			}
		} else if idx, ok := set.Lookup(facet.KindLocation, obs.LocationID); ok {
			obs.GeographicLevel = set.Locations[idx].Level
		}

		if err := eachField(ov, "filters", func(column string, fv cue.Value) error {
			s, err := fv.String()
			if err != nil {
				return &CompileError{Field: field + ".filters." + column, Message: "filter value must be an option id string", Pos: fv.Pos()}
			}
			obs.Filters[column] = s
			return nil
		}); err != nil {
			return err
		}
		if err := eachField(ov, "values", func(column string, vv cue.Value) error {
			s, ok, err := scalarString(vv)
			if err != nil {
				return &CompileError{Field: field + ".values." + column, Message: err.Error(), Pos: vv.Pos()}
			}
			if ok {
				obs.Values[column] = s
			}
			return nil
		}); err != nil {
			return err
		}

		out = append(out, obs)
		return nil
	})
	return out, err
}

func eachField(v cue.Value, field string, fn func(label string, fv cue.Value) error) error {
	s := v.LookupPath(cue.ParsePath(field))
	if !s.Exists() {
		return nil
	}
	iter, err := s.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// scalarString renders an observation value as published. Null means a
// missing value. Fractional numbers must be written as strings so no
// precision is lost.
func scalarString(v cue.Value) (string, bool, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return "", false, nil
	case cue.StringKind:
		s, err := v.String()
		return s, err == nil, err
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return "", false, err
		}
		return strconv.FormatInt(n, 10), true, nil
	case cue.FloatKind, cue.NumberKind:
		return "", false, fmt.Errorf("fractional values must be quoted strings")
	default:
		return "", false, fmt.Errorf("unsupported value kind: %v", v.IncompleteKind())
	}
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Field: field, Message: field + " must not be empty", Pos: fv.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
