package mapping

import (
	"slices"
	"strings"

	"github.com/roach88/dataver/internal/facet"
)

// EntryType classifies one mapping entry.
type EntryType string

const (
	Mapped              EntryType = "mapped"
	New                 EntryType = "new"
	NoMapping           EntryType = "no_mapping"
	AmbiguousCandidates EntryType = "ambiguous"
)

// None marks an absent arena index.
const None = -1

// Entry relates at most one source option to at most one target option.
type Entry struct {
	Type       EntryType `json:"type"`
	Source     int       `json:"source"`
	Target     int       `json:"target"`
	Candidates []int     `json:"candidates,omitempty"`
	SourceKey  facet.Key `json:"source_key,omitempty"`
	TargetKey  facet.Key `json:"target_key,omitempty"`
	Manual     bool      `json:"manual,omitempty"`
}

// Unresolved reports whether the entry blocks publication.
func (e Entry) Unresolved() bool {
	return e.Type == AmbiguousCandidates
}

func (e Entry) sortKey() facet.Key {
	if e.Source != None {
		return e.SourceKey
	}
	return e.TargetKey
}

func compareEntries(a, b Entry) int {
	if c := strings.Compare(string(a.sortKey()), string(b.sortKey())); c != 0 {
		return c
	}
	return strings.Compare(string(a.TargetKey), string(b.TargetKey))
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, compareEntries)
}

// Resolution is an external decision for one source option: map it to the
// target option TargetID, or to nothing when TargetID is empty.
type Resolution struct {
	Kind     facet.Kind `json:"kind"`
	SourceID string     `json:"source_id"`
	TargetID string     `json:"target_id,omitempty"`
}

// Result is the mapping between two facet sets.
type Result struct {
	Source *facet.Set
	Target *facet.Set

	entries     map[facet.Kind][]Entry
	resolutions []Resolution
}

func newResult(source, target *facet.Set) *Result {
	return &Result{
		Source:  source,
		Target:  target,
		entries: make(map[facet.Kind][]Entry, len(facet.Kinds)),
	}
}

// Entries returns the entries of a kind, sorted by natural key.
// The slice must not be modified.
func (r *Result) Entries(kind facet.Kind) []Entry {
	return r.entries[kind]
}

// Resolutions returns the external decisions applied so far, in order.
func (r *Result) Resolutions() []Resolution {
	return slices.Clone(r.resolutions)
}

// Count returns how many entries of a kind have type typ.
func (r *Result) Count(kind facet.Kind, typ EntryType) int {
	n := 0
	for _, e := range r.entries[kind] {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// Unresolved counts entries awaiting an external decision, over all kinds.
func (r *Result) Unresolved() int {
	n := 0
	for _, kind := range facet.Kinds {
		for _, e := range r.entries[kind] {
			if e.Unresolved() {
				n++
			}
		}
	}
	return n
}

// Blocked reports whether any entry is unresolved. A blocked version
// cannot leave the Mapping status.
func (r *Result) Blocked() bool {
	return r.Unresolved() > 0
}

// SourceEntry finds the entry holding the source option at index src.
func (r *Result) SourceEntry(kind facet.Kind, src int) (Entry, bool) {
	for _, e := range r.entries[kind] {
		if e.Source == src {
			return e, true
		}
	}
	return Entry{}, false
}

// TargetEntry finds the entry holding the target option at index tgt as its
// mapped or new target.
func (r *Result) TargetEntry(kind facet.Kind, tgt int) (Entry, bool) {
	for _, e := range r.entries[kind] {
		if e.Target == tgt {
			return e, true
		}
	}
	return Entry{}, false
}

func (r *Result) clone() *Result {
	c := newResult(r.Source, r.Target)
	for kind, entries := range r.entries {
		cp := make([]Entry, len(entries))
		for i, e := range entries {
			e.Candidates = slices.Clone(e.Candidates)
			cp[i] = e
		}
		c.entries[kind] = cp
	}
	c.resolutions = slices.Clone(r.resolutions)
	return c
}
