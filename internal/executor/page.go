package executor

import (
	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/ir"
)

// Page is one page of query results.
type Page struct {
	Results  []Result `json:"results"`
	Paging   Paging   `json:"paging"`
	Meta     Meta     `json:"meta"`
	Warnings []string `json:"warnings,omitempty"`
}

// Paging describes where a page sits in the full result.
type Paging struct {
	Page         int `json:"page"`
	PageSize     int `json:"pageSize"`
	TotalResults int `json:"totalResults"`
	TotalPages   int `json:"totalPages"`
}

// Result is one observation with the labels of the options it references.
type Result struct {
	GeographicLevel facet.GeographicLevel `json:"geographicLevel"`
	Location        LocationView          `json:"location"`
	TimePeriod      TimePeriodView        `json:"timePeriod"`

	// Filters maps filter ids to the option of that filter on this row.
	Filters map[string]OptionView `json:"filters"`

	// Values maps indicator ids to published values. Missing values are
	// omitted.
	Values map[string]string `json:"values"`
}

// LocationView is a resolved location reference.
type LocationView struct {
	ID    string                `json:"id"`
	Label string                `json:"label"`
	Level facet.GeographicLevel `json:"level"`
	Codes facet.LocationCodes   `json:"codes"`
}

// TimePeriodView is a resolved time period reference.
type TimePeriodView struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
}

// OptionView is a resolved filter option reference.
type OptionView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Meta describes the version a page was read from and the columns it has.
type Meta struct {
	DataSetID  string          `json:"dataSetId,omitempty"`
	VersionID  string          `json:"versionId"`
	Version    string          `json:"version,omitempty"`
	Filters    []FilterMeta    `json:"filters"`
	Indicators []IndicatorMeta `json:"indicators"`
}

// FilterMeta describes one filter of the version.
type FilterMeta struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Hint  string `json:"hint,omitempty"`
}

// IndicatorMeta describes one indicator returned in Result.Values.
type IndicatorMeta struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Unit          string `json:"unit,omitempty"`
	DecimalPlaces *int   `json:"decimalPlaces,omitempty"`
}

func buildMeta(plan *criteria.Plan) Meta {
	meta := Meta{
		VersionID:  plan.Query.From,
		Filters:    make([]FilterMeta, len(plan.Meta.Filters)),
		Indicators: make([]IndicatorMeta, len(plan.Indicators)),
	}
	for i, f := range plan.Meta.Filters {
		meta.Filters[i] = FilterMeta{ID: f.PublicID, Label: f.Name, Hint: f.Hint}
	}
	for i, ind := range plan.Indicators {
		meta.Indicators[i] = IndicatorMeta{ID: ind.PublicID, Label: ind.Name, Unit: ind.Unit, DecimalPlaces: ind.DecimalPlaces}
	}
	return meta
}

// decorate turns a physical row into a Result. References the facet set
// does not know keep their id and get an empty label.
func decorate(plan *criteria.Plan, row ir.IRObject) Result {
	set := plan.Meta
	res := Result{
		Filters: make(map[string]OptionView),
		Values:  make(map[string]string),
	}
	if level, ok := row[facet.ColumnGeographicLevel].(ir.IRString); ok {
		res.GeographicLevel = facet.GeographicLevel(level)
	}

	if id, ok := row[facet.ColumnLocation].(ir.IRString); ok {
		res.Location = LocationView{ID: string(id), Level: res.GeographicLevel}
		if idx, found := set.Lookup(facet.KindLocation, string(id)); found {
			l := set.Locations[idx]
			res.Location.Label = l.Name
			res.Location.Level = l.Level
			res.Location.Codes = l.Codes
		}
	}

	if id, ok := row[facet.ColumnTimePeriod].(ir.IRString); ok {
		res.TimePeriod.ID = string(id)
		if p, err := facet.ParsePeriodID(string(id)); err == nil {
			res.TimePeriod.Code = string(p.Code)
			res.TimePeriod.Label = p.Label()
		}
	}

	for _, f := range set.Filters {
		id, ok := row[facet.FilterColumn(f.Column)].(ir.IRString)
		if !ok || id == "" {
			continue
		}
		view := OptionView{ID: string(id)}
		if idx, found := set.Lookup(facet.KindFilterOption, string(id)); found {
			view.Label = set.FilterOptions[idx].Name
		}
		res.Filters[f.PublicID] = view
	}

	for _, ind := range plan.Indicators {
		if v, ok := row[facet.IndicatorColumn(ind.Column)].(ir.IRString); ok {
			res.Values[ind.PublicID] = string(v)
		}
	}
	return res
}
