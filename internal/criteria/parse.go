package criteria

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/ir"
	"github.com/roach88/dataver/internal/queryir"
)

// Plan is a request bound to one version, ready for execution.
type Plan struct {
	Query      queryir.Select
	Meta       *facet.Set
	Indicators []*facet.Indicator
	Page       int
	PageSize   int
	Sort       []SortField
	Warnings   []string
}

// Parse binds req to the version versionID whose facet set is facets.
//
// The criteria tree, the legacy flat filter list and the filter
// hierarchies are ANDed. Page and page size default to 1 and
// DefaultPageSize when absent; explicit values are passed through
// unchecked for the executor to validate.
func Parse(req Request, versionID string, facets *facet.Set, limits Limits) (*Plan, error) {
	b := &binder{set: facets, limits: limits}
	var preds []queryir.Predicate

	if req.Criteria != nil {
		p, err := b.node("criteria", req.Criteria, 1)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	if err := b.checkLegacyFilters(req); err != nil {
		return nil, err
	}
	if ids := req.FilterItemIDs(); len(ids) > 0 {
		p, err := b.filterIn("filters", ids, true)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	var warnings []string
	if len(req.Filters) > 0 {
		warnings = append(warnings, "filters is deprecated: use criteria.filters or filterHierarchiesOptions")
	}

	indicators, err := b.indicators(req.Indicators)
	if err != nil {
		return nil, err
	}
	orderBy, err := b.sort(req.Sort)
	if err != nil {
		return nil, err
	}

	columns := make([]string, len(indicators))
	for i, ind := range indicators {
		columns[i] = facet.IndicatorColumn(ind.Column)
	}
	sel := queryir.Select{From: versionID, Columns: columns, OrderBy: orderBy}
	switch len(preds) {
	case 0:
	case 1:
		sel.Filter = preds[0]
	default:
		sel.Filter = queryir.And{Predicates: preds}
	}
	if err := queryir.Validate(sel).Err(); err != nil {
		return nil, fmt.Errorf("criteria: bound query is malformed: %w", err)
	}

	page, ok := req.Page.Get()
	if !ok {
		page = 1
	}
	pageSize, ok := req.PageSize.Get()
	if !ok {
		pageSize = DefaultPageSize
	}

	return &Plan{
		Query:      sel,
		Meta:       facets,
		Indicators: indicators,
		Page:       page,
		PageSize:   pageSize,
		Sort:       req.Sort,
		Warnings:   warnings,
	}, nil
}

// binder resolves references against one facet set.
type binder struct {
	set    *facet.Set
	limits Limits
}

func (b *binder) node(path string, n *Node, depth int) (queryir.Predicate, error) {
	if n == nil {
		return nil, validationf(path, "empty condition")
	}
	if depth > MaxDepth {
		return nil, validationf(path, "criteria nested deeper than %d levels", MaxDepth)
	}

	boolean := 0
	for _, set := range []bool{n.And.IsSet(), n.Or.IsSet(), n.Not.IsSet()} {
		if set {
			boolean++
		}
	}
	facets := n.Filters.IsSet() || n.GeographicLevels.IsSet() || n.Locations.IsSet() || n.TimePeriods.IsSet()
	if boolean > 1 || (boolean == 1 && facets) {
		return nil, validationf(path, "a condition is either one of and, or, not or a set of facet selectors")
	}

	if children, ok := n.And.Get(); ok {
		preds, err := b.children(path+".and", children, depth)
		if err != nil {
			return nil, err
		}
		return queryir.And{Predicates: preds}, nil
	}
	if children, ok := n.Or.Get(); ok {
		preds, err := b.children(path+".or", children, depth)
		if err != nil {
			return nil, err
		}
		return queryir.Or{Predicates: preds}, nil
	}
	if child, ok := n.Not.Get(); ok {
		p, err := b.node(path+".not", child, depth+1)
		if err != nil {
			return nil, err
		}
		return queryir.Not{Predicate: p}, nil
	}

	var preds []queryir.Predicate
	if s, ok := n.Filters.Get(); ok {
		p, err := b.filters(path+".filters", s)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if s, ok := n.GeographicLevels.Get(); ok {
		p, err := b.geographicLevels(path+".geographicLevels", s)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if s, ok := n.Locations.Get(); ok {
		p, err := b.locations(path+".locations", s)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if s, ok := n.TimePeriods.Get(); ok {
		p, err := b.timePeriods(path+".timePeriods", s)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return all(preds), nil
}

func (b *binder) children(path string, nodes []*Node, depth int) ([]queryir.Predicate, error) {
	if len(nodes) == 0 {
		return nil, validationf(path, "needs at least one condition")
	}
	preds := make([]queryir.Predicate, len(nodes))
	for i, child := range nodes {
		p, err := b.node(fmt.Sprintf("%s[%d]", path, i), child, depth+1)
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	return preds, nil
}

// all ANDs preds, unwrapping a single predicate.
func all(preds []queryir.Predicate) queryir.Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return queryir.And{Predicates: preds}
}

// checkLegacyFilters resolves the flat filter list and the hierarchies
// with precise paths, and enforces the hierarchy cross product budget.
//
// The first tier of a hierarchy selects options of its parent filter.
// Every later tier selects options of one other filter, and no filter
// appears in two tiers.
func (b *binder) checkLegacyFilters(req Request) error {
	for i, id := range req.Filters {
		if _, ok := b.set.Lookup(facet.KindFilterOption, id); !ok {
			return unknownRef(fmt.Sprintf("filters[%d]", i), "filter option", id)
		}
	}

	product := 1
	for _, parent := range slices.Sorted(maps.Keys(req.FilterHierarchiesOptions)) {
		tiers := req.FilterHierarchiesOptions[parent]
		path := "filterHierarchiesOptions." + parent
		parentIdx, ok := b.set.Lookup(facet.KindFilter, parent)
		if !ok {
			return unknownRef(path, "filter", parent)
		}
		used := make(map[int]bool, len(tiers))
		for i, tier := range tiers {
			if len(tier) == 0 {
				return validationf(fmt.Sprintf("%s[%d]", path, i), "hierarchy tier selects no options")
			}
			tierFilter := -1
			for j, id := range tier {
				at := fmt.Sprintf("%s[%d][%d]", path, i, j)
				idx, ok := b.set.Lookup(facet.KindFilterOption, id)
				if !ok {
					return unknownRef(at, "filter option", id)
				}
				filter := b.set.FilterOptions[idx].Filter
				switch {
				case i == 0 && filter != parentIdx:
					return validationf(at, "option %q does not belong to filter %q", id, parent)
				case i > 0 && filter == parentIdx:
					return validationf(at, "option %q of filter %q is only allowed in the first tier", id, parent)
				case tierFilter >= 0 && filter != tierFilter:
					return validationf(at, "option %q belongs to another filter than the rest of its tier", id)
				case tierFilter < 0 && used[filter]:
					return validationf(at, "filter of option %q already has a tier", id)
				}
				tierFilter = filter
			}
			used[tierFilter] = true
			product *= len(tier)
			if limit := b.limits.MaxHierarchyProduct; limit > 0 && product > limit {
				return validationf("filterHierarchiesOptions", "hierarchy selections exceed %d combinations", limit)
			}
		}
	}
	return nil
}

func (b *binder) indicators(ids []string) ([]*facet.Indicator, error) {
	if len(ids) == 0 {
		return append([]*facet.Indicator(nil), b.set.Indicators...), nil
	}
	out := make([]*facet.Indicator, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for i, id := range ids {
		idx, ok := b.set.Lookup(facet.KindIndicator, id)
		if !ok {
			return nil, unknownRef(fmt.Sprintf("indicators[%d]", i), "indicator", id)
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, b.set.Indicators[idx])
		}
	}
	return out, nil
}

func (b *binder) sort(fields []SortField) ([]queryir.OrderBy, error) {
	out := make([]queryir.OrderBy, 0, len(fields))
	for i, f := range fields {
		path := fmt.Sprintf("sort[%d]", i)
		var desc bool
		switch strings.ToLower(f.Direction) {
		case "", "asc":
		case "desc":
			desc = true
		default:
			return nil, &ParseError{Code: ErrCodeValidation, Path: path + ".direction", Value: f.Direction, Message: "direction must be asc or desc"}
		}

		var column string
		switch f.Field {
		case "time_period":
			column = facet.ColumnTimeOrdinal
		case "geographic_level":
			column = facet.ColumnGeographicLevel
		case "location":
			column = facet.ColumnLocation
		case "":
			return nil, validationf(path+".field", "missing sort field")
		default:
			idx, ok := b.set.Lookup(facet.KindFilter, f.Field)
			if !ok {
				return nil, unknownRef(path+".field", "filter", f.Field)
			}
			column = facet.FilterColumn(b.set.Filters[idx].Column)
		}
		out = append(out, queryir.OrderBy{Field: column, Desc: desc})
	}
	return out, nil
}

func (b *binder) filters(path string, s Selector[string]) (queryir.Predicate, error) {
	if s.empty() {
		return nil, validationf(path, "selector needs at least one operator")
	}
	var preds []queryir.Predicate
	if id, ok := s.Eq.Get(); ok {
		p, err := b.filterIn(path+".eq", []string{id}, false)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if id, ok := s.NotEq.Get(); ok {
		p, err := b.filterNotIn(path+".notEq", []string{id}, false)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if ids, ok := s.In.Get(); ok {
		p, err := b.filterIn(path+".in", ids, true)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if ids, ok := s.NotIn.Get(); ok {
		p, err := b.filterNotIn(path+".notIn", ids, true)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return all(preds), nil
}

// groupOptions resolves option ids and groups them by parent filter, in
// filter order. Within a group, duplicates are dropped. indexed appends
// the element index to error paths.
func (b *binder) groupOptions(path string, ids []string, indexed bool) ([]queryir.In, error) {
	byFilter := make(map[int][]ir.IRValue)
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		idx, ok := b.set.Lookup(facet.KindFilterOption, id)
		if !ok {
			p := path
			if indexed {
				p = fmt.Sprintf("%s[%d]", path, i)
			}
			return nil, unknownRef(p, "filter option", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		f := b.set.FilterOptions[idx].Filter
		byFilter[f] = append(byFilter[f], ir.IRString(id))
	}
	var out []queryir.In
	for f, filter := range b.set.Filters {
		if vals, ok := byFilter[f]; ok {
			out = append(out, queryir.In{Field: facet.FilterColumn(filter.Column), Values: vals})
		}
	}
	return out, nil
}

// filterIn selects rows that carry one of the options of every filter
// named: OR inside a filter, AND across filters. No ids match nothing.
func (b *binder) filterIn(path string, ids []string, indexed bool) (queryir.Predicate, error) {
	groups, err := b.groupOptions(path, ids, indexed)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return queryir.Or{}, nil
	}
	preds := make([]queryir.Predicate, len(groups))
	for i, g := range groups {
		preds[i] = g
	}
	return all(preds), nil
}

// filterNotIn excludes rows carrying any of the options. No ids exclude
// nothing.
func (b *binder) filterNotIn(path string, ids []string, indexed bool) (queryir.Predicate, error) {
	groups, err := b.groupOptions(path, ids, indexed)
	if err != nil {
		return nil, err
	}
	preds := make([]queryir.Predicate, len(groups))
	for i, g := range groups {
		preds[i] = queryir.Not{Predicate: g}
	}
	if len(preds) == 0 {
		return queryir.And{}, nil
	}
	return all(preds), nil
}

func (b *binder) geographicLevels(path string, s Selector[string]) (queryir.Predicate, error) {
	if s.empty() {
		return nil, validationf(path, "selector needs at least one operator")
	}
	present := make(map[facet.GeographicLevel]bool)
	for _, l := range b.set.GeographicLevels() {
		present[l] = true
	}
	resolve := func(path, code string) (ir.IRValue, error) {
		level, err := facet.ParseGeographicLevel(code)
		if err != nil {
			return nil, &ParseError{Code: ErrCodeValidation, Path: path, Value: code, Message: "unknown geographic level"}
		}
		if !present[level] {
			return nil, unknownRef(path, "geographic level", code)
		}
		return ir.IRString(level), nil
	}
	return setPredicate(path, facet.ColumnGeographicLevel, s, resolve)
}

func (b *binder) locations(path string, s Selector[LocationRef]) (queryir.Predicate, error) {
	if s.empty() {
		return nil, validationf(path, "selector needs at least one operator")
	}
	return setPredicate(path, facet.ColumnLocation, s, b.resolveLocation)
}

func (b *binder) resolveLocation(path string, ref LocationRef) (ir.IRValue, error) {
	codes := ref.codes()
	if ref.ID != "" {
		if len(codes) > 0 {
			return nil, validationf(path, "location is named by id or by code, not both")
		}
		idx, ok := b.set.Lookup(facet.KindLocation, ref.ID)
		if !ok {
			return nil, unknownRef(path, "location", ref.ID)
		}
		if ref.Level != "" {
			level, err := facet.ParseGeographicLevel(ref.Level)
			if err != nil || level != b.set.Locations[idx].Level {
				return nil, &ParseError{Code: ErrCodeValidation, Path: path, Value: ref.Level,
					Message: fmt.Sprintf("location %s is at level %s", ref.ID, b.set.Locations[idx].Level)}
			}
		}
		return ir.IRString(ref.ID), nil
	}

	if ref.Level == "" || len(codes) != 1 {
		return nil, validationf(path, "location needs an id, or a level and exactly one code")
	}
	level, err := facet.ParseGeographicLevel(ref.Level)
	if err != nil {
		return nil, &ParseError{Code: ErrCodeValidation, Path: path, Value: ref.Level, Message: "unknown geographic level"}
	}
	field, value := codes[0][0], codes[0][1]
	idx, ok := b.set.LocationByCode(level, field, value)
	if !ok {
		return nil, unknownRef(path, fmt.Sprintf("%s location with %s", level, field), value)
	}
	return ir.IRString(b.set.Locations[idx].PublicID), nil
}

// setPredicate compiles the eq / notEq / in / notIn operators of s over
// field, resolving each element with resolve.
func setPredicate[T any](path, field string, s Selector[T], resolve func(string, T) (ir.IRValue, error)) (queryir.Predicate, error) {
	resolveAll := func(path string, refs []T) ([]ir.IRValue, error) {
		vals := make([]ir.IRValue, len(refs))
		for i, r := range refs {
			v, err := resolve(fmt.Sprintf("%s[%d]", path, i), r)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return vals, nil
	}

	var preds []queryir.Predicate
	if ref, ok := s.Eq.Get(); ok {
		v, err := resolve(path+".eq", ref)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.Equals{Field: field, Value: v})
	}
	if ref, ok := s.NotEq.Get(); ok {
		v, err := resolve(path+".notEq", ref)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.Not{Predicate: queryir.Equals{Field: field, Value: v}})
	}
	if refs, ok := s.In.Get(); ok {
		vals, err := resolveAll(path+".in", refs)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.In{Field: field, Values: vals})
	}
	if refs, ok := s.NotIn.Get(); ok {
		vals, err := resolveAll(path+".notIn", refs)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.Not{Predicate: queryir.In{Field: field, Values: vals}})
	}
	return all(preds), nil
}

func (b *binder) timePeriods(path string, s TimePeriodSelector) (queryir.Predicate, error) {
	if s.empty() {
		return nil, validationf(path, "selector needs at least one operator")
	}

	var preds []queryir.Predicate
	if !s.Selector.empty() {
		p, err := setPredicate(path, facet.ColumnTimePeriod, s.Selector, b.resolveExistingPeriod)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	for _, c := range []struct {
		name string
		ref  Option[PeriodRef]
		op   queryir.Op
	}{
		{"gt", s.Gt, queryir.OpGt},
		{"gte", s.Gte, queryir.OpGte},
		{"lt", s.Lt, queryir.OpLt},
		{"lte", s.Lte, queryir.OpLte},
	} {
		ref, ok := c.ref.Get()
		if !ok {
			continue
		}
		period, err := parsePeriod(path+"."+c.name, ref)
		if err != nil {
			return nil, err
		}
		preds = append(preds, comparePeriod(period, c.op))
	}

	if r, ok := s.Range.Get(); ok {
		p, err := b.periodRange(path+".range", r)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return all(preds), nil
}

func parsePeriod(path string, ref PeriodRef) (facet.Period, error) {
	p, err := facet.ParsePeriod(ref.Period, ref.Code)
	if err != nil {
		return facet.Period{}, &ParseError{Code: ErrCodeValidation, Path: path, Value: ref.Period + " " + ref.Code, Message: err.Error()}
	}
	return p, nil
}

func (b *binder) resolveExistingPeriod(path string, ref PeriodRef) (ir.IRValue, error) {
	p, err := parsePeriod(path, ref)
	if err != nil {
		return nil, err
	}
	if _, ok := b.set.Lookup(facet.KindTimePeriod, p.ID()); !ok {
		return nil, unknownRef(path, "time period", p.ID())
	}
	return ir.IRString(p.ID()), nil
}

// comparePeriod orders within the period's calendar family only: rows of
// other families never match.
func comparePeriod(p facet.Period, op queryir.Op) queryir.Predicate {
	codes := facet.FamilyCodes(p.Code.Family())
	vals := make([]ir.IRValue, len(codes))
	for i, c := range codes {
		vals[i] = ir.IRString(c)
	}
	return queryir.And{Predicates: []queryir.Predicate{
		queryir.In{Field: facet.ColumnTimeIdentifier, Values: vals},
		queryir.Compare{Field: facet.ColumnTimeOrdinal, Op: op, Value: ir.IRInt(p.Ordinal())},
	}}
}

// periodRange expands a range into the concrete periods it covers. The
// periods need not exist in the version.
func (b *binder) periodRange(path string, r PeriodRange) (queryir.Predicate, error) {
	start, err := parsePeriod(path+".start", r.Start)
	if err != nil {
		return nil, err
	}
	end, err := parsePeriod(path+".end", r.End)
	if err != nil {
		return nil, err
	}
	periods, err := facet.Expand(start, end, b.limits.MaxTimePeriods)
	switch {
	case errors.Is(err, facet.ErrInvalidRange):
		return nil, &ParseError{Code: ErrCodeInvalidRange, Path: path, Value: start.ID() + " to " + end.ID(), Message: "range ends before it starts"}
	case errors.Is(err, facet.ErrRangeTooLarge):
		return nil, validationf(path, "range covers more than %d time periods", b.limits.MaxTimePeriods)
	case err != nil:
		return nil, validationf(path, "%v", err)
	}
	vals := make([]ir.IRValue, len(periods))
	for i, p := range periods {
		vals[i] = ir.IRString(p.ID())
	}
	return queryir.In{Field: facet.ColumnTimePeriod, Values: vals}, nil
}
