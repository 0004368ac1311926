package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/dataver/internal/facet"
)

// snapshot is the persisted form of a Result. The facet sets are stored
// separately, per version.
type snapshot struct {
	Entries     map[facet.Kind][]Entry `json:"entries"`
	Resolutions []Resolution           `json:"resolutions,omitempty"`
}

// Encode serializes the entries and decisions of r.
func (r *Result) Encode() ([]byte, error) {
	data, err := json.Marshal(snapshot{Entries: r.entries, Resolutions: r.resolutions})
	if err != nil {
		return nil, fmt.Errorf("encode mapping: %w", err)
	}
	return data, nil
}

// Decode restores a Result for the given facet sets and checks that every
// index is inside the sets' arenas.
func Decode(data []byte, source, target *facet.Set) (*Result, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if source == nil {
		source = facet.NewSet()
	}
	r := newResult(source, target)
	for kind, entries := range snap.Entries {
		if _, err := facet.ParseKind(string(kind)); err != nil {
			return nil, fmt.Errorf("decode mapping: %w", err)
		}
		for i, e := range entries {
			if !inRange(e.Source, source.Len(kind)) || !inRange(e.Target, target.Len(kind)) {
				return nil, fmt.Errorf("decode mapping: %s entry %d references an option outside the facet set", kind, i)
			}
			for _, c := range e.Candidates {
				if c == None || !inRange(c, target.Len(kind)) {
					return nil, fmt.Errorf("decode mapping: %s entry %d has an invalid candidate", kind, i)
				}
			}
		}
		r.entries[kind] = entries
	}
	r.resolutions = snap.Resolutions
	return r, nil
}

func inRange(idx, n int) bool {
	return idx == None || (idx >= 0 && idx < n)
}
