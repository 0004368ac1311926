package mapping

import (
	"context"
	"errors"
	"slices"

	"github.com/roach88/dataver/internal/facet"
)

// keyed is an option with its natural key and the key it is matched on.
// The match key equals the natural key except for filter options, which
// match on their label inside the mapped parent filter.
type keyed struct {
	idx   int
	key   facet.Key
	match string
}

// keyOptions derives natural keys for the options at idxs. Duplicate match
// keys within one side make the mapping ambiguous at the root and fail it.
func keyOptions(ctx context.Context, set *facet.Set, kind facet.Kind, side string, idxs []int) ([]keyed, error) {
	out := make([]keyed, 0, len(idxs))
	seen := make(map[string]int, len(idxs))
	for n, idx := range idxs {
		if err := checkpoint(ctx, n); err != nil {
			return nil, err
		}
		opt := set.Option(kind, idx)
		key, err := opt.NaturalKey()
		if err != nil {
			return nil, failure(kind, side, opt, err.Error())
		}
		match := string(key)
		if fo, ok := opt.(*facet.FilterOption); ok {
			match = fo.LocalKey()
		}
		if prev, dup := seen[match]; dup {
			other := set.Option(kind, prev)
			return nil, failure(kind, side, opt, "duplicate natural key shared with "+other.ID())
		}
		seen[match] = idx
		out = append(out, keyed{idx: idx, key: key, match: match})
	}
	return out, nil
}

func failure(kind facet.Kind, side string, opt facet.Option, reason string) error {
	return &MappingFailedError{Diagnostic: Diagnostic{
		Kind:     kind,
		Side:     side,
		OptionID: opt.ID(),
		Label:    opt.Label(),
		Reason:   reason,
	}}
}

// similarFunc reports whether target option t is a plausible counterpart of
// source option s.
type similarFunc func(s, t int) bool

// match pairs source and target options of one group. Exact match keys map;
// unmatched sources collect similar unmatched targets as candidates; targets
// that are neither mapped nor candidates are new.
func match(ctx context.Context, src, tgt []keyed, similar similarFunc) ([]Entry, error) {
	bySrc := make(map[string]keyed, len(src))
	for _, s := range src {
		bySrc[s.match] = s
	}

	var entries []Entry
	matched := make(map[int]bool, len(src))
	var free []keyed
	for n, t := range tgt {
		if err := checkpoint(ctx, n); err != nil {
			return nil, err
		}
		if s, ok := bySrc[t.match]; ok {
			matched[s.idx] = true
			entries = append(entries, Entry{
				Type: Mapped, Source: s.idx, Target: t.idx,
				SourceKey: s.key, TargetKey: t.key,
			})
			continue
		}
		free = append(free, t)
	}
	slices.SortFunc(free, func(a, b keyed) int { return compareKeys(a.key, b.key) })

	for n, s := range src {
		if err := checkpoint(ctx, n); err != nil {
			return nil, err
		}
		if matched[s.idx] {
			continue
		}
		var candidates []int
		if similar != nil {
			for _, t := range free {
				if similar(s.idx, t.idx) {
					candidates = append(candidates, t.idx)
				}
			}
		}
		e := Entry{Type: NoMapping, Source: s.idx, Target: None, SourceKey: s.key}
		if len(candidates) > 0 {
			e.Type = AmbiguousCandidates
			e.Candidates = candidates
		}
		entries = append(entries, e)
	}

	return finalize(entries, tgt), nil
}

// finalize rebuilds the New entries of a group: a target is new when no
// entry maps it and no unresolved entry lists it as a candidate.
func finalize(entries []Entry, tgt []keyed) []Entry {
	taken := make(map[int]bool)
	pending := make(map[int]bool)
	out := entries[:0:0]
	for _, e := range entries {
		if e.Type == New {
			continue
		}
		if e.Type == Mapped {
			taken[e.Target] = true
		}
		if e.Type == AmbiguousCandidates {
			for _, c := range e.Candidates {
				pending[c] = true
			}
		}
		out = append(out, e)
	}
	for _, t := range tgt {
		if !taken[t.idx] && !pending[t.idx] {
			out = append(out, Entry{Type: New, Source: None, Target: t.idx, TargetKey: t.key})
		}
	}
	sortEntries(out)
	return out
}

func compareKeys(a, b facet.Key) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func mapLocations(ctx context.Context, source, target *facet.Set) ([]Entry, error) {
	src, err := keyOptions(ctx, source, facet.KindLocation, "source", source.Indices(facet.KindLocation))
	if err != nil {
		return nil, err
	}
	tgt, err := keyOptions(ctx, target, facet.KindLocation, "target", target.Indices(facet.KindLocation))
	if err != nil {
		return nil, err
	}
	return match(ctx, src, tgt, func(s, t int) bool {
		sl, tl := source.Locations[s], target.Locations[t]
		if sl.Level != tl.Level {
			return false
		}
		return facet.SimilarLabels(sl.Name, tl.Name) || shareCode(sl.Codes, tl.Codes)
	})
}

func shareCode(a, b facet.LocationCodes) bool {
	bv := b.Values()
	for _, v := range a.Values() {
		if _, found := slices.BinarySearch(bv, v); found {
			return true
		}
	}
	return false
}

func mapFilters(ctx context.Context, source, target *facet.Set) ([]Entry, error) {
	src, err := keyOptions(ctx, source, facet.KindFilter, "source", source.Indices(facet.KindFilter))
	if err != nil {
		return nil, err
	}
	tgt, err := keyOptions(ctx, target, facet.KindFilter, "target", target.Indices(facet.KindFilter))
	if err != nil {
		return nil, err
	}
	return match(ctx, src, tgt, func(s, t int) bool {
		return facet.SimilarLabels(source.Filters[s].Name, target.Filters[t].Name)
	})
}

// mapFilterOptions maps options inside each resolved filter pair. Options
// of unmapped, new and ambiguous filters inherit their parent's outcome.
// Options of a target filter that is still only a candidate get no entry
// until the parent is resolved.
func mapFilterOptions(ctx context.Context, source, target *facet.Set, filters []Entry) ([]Entry, error) {
	var out []Entry
	for _, fe := range filters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := mapOptionsUnder(ctx, source, target, fe)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	sortEntries(out)
	return out, nil
}

func mapOptionsUnder(ctx context.Context, source, target *facet.Set, fe Entry) ([]Entry, error) {
	var src, tgt []keyed
	var err error
	if fe.Source != None {
		src, err = keyOptions(ctx, source, facet.KindFilterOption, "source", source.Filters[fe.Source].Options)
		if err != nil {
			return nil, err
		}
	}
	if fe.Type == Mapped || fe.Type == New {
		tgt, err = keyOptions(ctx, target, facet.KindFilterOption, "target", target.Filters[fe.Target].Options)
		if err != nil {
			return nil, err
		}
	}

	switch fe.Type {
	case Mapped:
		return match(ctx, src, tgt, func(s, t int) bool {
			return facet.SimilarLabels(source.FilterOptions[s].Name, target.FilterOptions[t].Name)
		})
	case New:
		return finalize(nil, tgt), nil
	case NoMapping, AmbiguousCandidates:
		entries := make([]Entry, 0, len(src))
		for _, s := range src {
			entries = append(entries, Entry{Type: fe.Type, Source: s.idx, Target: None, SourceKey: s.key})
		}
		return entries, nil
	}
	return nil, errors.New("unknown filter entry type " + string(fe.Type))
}

func mapIndicators(ctx context.Context, source, target *facet.Set) ([]Entry, error) {
	src, err := keyOptions(ctx, source, facet.KindIndicator, "source", source.Indices(facet.KindIndicator))
	if err != nil {
		return nil, err
	}
	tgt, err := keyOptions(ctx, target, facet.KindIndicator, "target", target.Indices(facet.KindIndicator))
	if err != nil {
		return nil, err
	}
	return match(ctx, src, tgt, func(s, t int) bool {
		return facet.SimilarLabels(source.Indicators[s].Name, target.Indicators[t].Name)
	})
}

// mapTimePeriods matches on natural key only: a period is either present
// in both versions or it is not.
func mapTimePeriods(ctx context.Context, source, target *facet.Set) ([]Entry, error) {
	src, err := keyOptions(ctx, source, facet.KindTimePeriod, "source", source.Indices(facet.KindTimePeriod))
	if err != nil {
		return nil, err
	}
	tgt, err := keyOptions(ctx, target, facet.KindTimePeriod, "target", target.Indices(facet.KindTimePeriod))
	if err != nil {
		return nil, err
	}
	return match(ctx, src, tgt, nil)
}
