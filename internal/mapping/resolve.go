package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/dataver/internal/facet"
)

// Resolve applies an external decision and returns the updated result.
// The input result is not modified.
//
// The source option's entry, whatever its automatic type, becomes a manual
// Mapped entry (TargetID set) or a manual NoMapping entry (TargetID empty).
// Targets released by the decision become New unless another unresolved
// entry still lists them. Resolving a filter re-maps the options under it
// and re-applies earlier option decisions that are still valid.
func Resolve(r *Result, res Resolution) (*Result, error) {
	out := r.clone()
	if err := out.apply(res); err != nil {
		return nil, err
	}
	out.resolutions = append(out.resolutions, res)
	return out, nil
}

// ResolveAll applies decisions in order, stopping at the first failure.
func ResolveAll(r *Result, resolutions []Resolution) (*Result, error) {
	for i, res := range resolutions {
		next, err := Resolve(r, res)
		if err != nil {
			return nil, fmt.Errorf("resolution %d: %w", i, err)
		}
		r = next
	}
	return r, nil
}

func (r *Result) apply(res Resolution) error {
	src, ok := r.Source.Lookup(res.Kind, res.SourceID)
	if !ok {
		return fmt.Errorf("%w: %s %q", ErrUnknownSource, res.Kind, res.SourceID)
	}
	entries := r.entries[res.Kind]
	pos := -1
	for i, e := range entries {
		if e.Source == src {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: %s %q", ErrUnknownSource, res.Kind, res.SourceID)
	}

	updated := Entry{Type: NoMapping, Source: src, Target: None, SourceKey: entries[pos].SourceKey, Manual: true}
	if res.TargetID != "" {
		tgt, err := r.checkTarget(res, src, pos)
		if err != nil {
			return err
		}
		key, err := r.Target.Option(res.Kind, tgt).NaturalKey()
		if err != nil {
			return fmt.Errorf("%s %q: %w", res.Kind, res.TargetID, err)
		}
		updated = Entry{Type: Mapped, Source: src, Target: tgt, SourceKey: updated.SourceKey, TargetKey: key, Manual: true}
	}
	entries[pos] = updated

	switch res.Kind {
	case facet.KindFilterOption:
		return r.refinalizeOptions(r.Source.FilterOptions[src].Filter)
	case facet.KindFilter:
		r.entries[res.Kind] = finalize(entries, mustKeys(r.Target, res.Kind, r.Target.Indices(res.Kind)))
		return r.remapOptions()
	default:
		r.entries[res.Kind] = finalize(entries, mustKeys(r.Target, res.Kind, r.Target.Indices(res.Kind)))
	}
	return nil
}

// checkTarget validates the target of a mapping decision.
func (r *Result) checkTarget(res Resolution, src, pos int) (int, error) {
	tgt, ok := r.Target.Lookup(res.Kind, res.TargetID)
	if !ok {
		return None, fmt.Errorf("%w: %s %q", ErrUnknownTarget, res.Kind, res.TargetID)
	}
	for i, e := range r.entries[res.Kind] {
		if i != pos && e.Type == Mapped && e.Target == tgt {
			return None, fmt.Errorf("%w: %s %q", ErrTargetTaken, res.Kind, res.TargetID)
		}
	}

	switch res.Kind {
	case facet.KindLocation:
		if r.Source.Locations[src].Level != r.Target.Locations[tgt].Level {
			return None, fmt.Errorf("%w: location %q is at level %s, source is at %s",
				ErrInvalidTarget, res.TargetID, r.Target.Locations[tgt].Level, r.Source.Locations[src].Level)
		}
	case facet.KindFilterOption:
		parent, ok := r.SourceEntry(facet.KindFilter, r.Source.FilterOptions[src].Filter)
		if !ok || parent.Type != Mapped {
			return None, fmt.Errorf("%w: option %q", ErrParentUnmapped, res.SourceID)
		}
		if r.Target.FilterOptions[tgt].Filter != parent.Target {
			return None, fmt.Errorf("%w: option %q belongs to another filter", ErrInvalidTarget, res.TargetID)
		}
	case facet.KindTimePeriod:
		return None, fmt.Errorf("%w: time periods map by natural key only", ErrInvalidTarget)
	}
	return tgt, nil
}

// refinalizeOptions recomputes New entries among the options of the target
// filter mapped from the source filter at index srcFilter.
func (r *Result) refinalizeOptions(srcFilter int) error {
	parent, ok := r.SourceEntry(facet.KindFilter, srcFilter)
	if !ok || parent.Type != Mapped {
		return nil
	}
	pool := r.Target.Filters[parent.Target].Options
	inPool := make(map[int]bool, len(pool))
	for _, idx := range pool {
		inPool[idx] = true
	}

	var group, rest []Entry
	for _, e := range r.entries[facet.KindFilterOption] {
		belongs := (e.Source != None && r.Source.FilterOptions[e.Source].Filter == srcFilter) ||
			(e.Source == None && inPool[e.Target])
		if belongs {
			group = append(group, e)
		} else {
			rest = append(rest, e)
		}
	}
	all := append(rest, finalize(group, mustKeys(r.Target, facet.KindFilterOption, pool))...)
	sortEntries(all)
	r.entries[facet.KindFilterOption] = all
	return nil
}

// remapOptions recomputes every filter option entry from the filter entries
// and re-applies option decisions whose parent pair still holds.
func (r *Result) remapOptions() error {
	options, err := mapFilterOptions(context.Background(), r.Source, r.Target, r.entries[facet.KindFilter])
	if err != nil {
		return err
	}
	r.entries[facet.KindFilterOption] = options

	kept := r.resolutions[:0:0]
	for _, res := range r.resolutions {
		if res.Kind != facet.KindFilterOption {
			kept = append(kept, res)
			continue
		}
		if err := r.apply(res); err == nil {
			kept = append(kept, res)
		}
	}
	r.resolutions = kept
	return nil
}

// mustKeys re-derives keys of options that were already keyed once by Map,
// so derivation cannot fail here.
func mustKeys(set *facet.Set, kind facet.Kind, idxs []int) []keyed {
	out, err := keyOptions(context.Background(), set, kind, "target", idxs)
	if err != nil {
		panic(fmt.Sprintf("mapping: keys of mapped set changed: %v", err))
	}
	return out
}

// ParseResolution parses "kind:source=target". An empty target records
// that the source option has no counterpart:
//
//	location:E08000001=E08000099
//	filter_option:st-sec=
func ParseResolution(s string) (Resolution, error) {
	kindPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Resolution{}, fmt.Errorf("resolution %q: want kind:source=target", s)
	}
	kind, err := facet.ParseKind(kindPart)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolution %q: %w", s, err)
	}
	source, target, ok := strings.Cut(rest, "=")
	if !ok || source == "" {
		return Resolution{}, fmt.Errorf("resolution %q: want kind:source=target", s)
	}
	return Resolution{Kind: kind, SourceID: source, TargetID: target}, nil
}
