package changes

import (
	"fmt"

	"github.com/roach88/dataver/internal/ir"
)

// Canonical encodes the ChangeSet as RFC 8785 canonical JSON. Every section
// is present, with empty lists where nothing changed.
func (cs *ChangeSet) Canonical() ([]byte, error) {
	data, err := ir.MarshalCanonical(cs.toCanonicalMap())
	if err != nil {
		return nil, fmt.Errorf("encode change set: %w", err)
	}
	return data, nil
}

// MarshalJSON renders the canonical form so that reports embedded in other
// JSON documents stay byte-stable.
func (cs *ChangeSet) MarshalJSON() ([]byte, error) {
	return cs.Canonical()
}

// Digest fingerprints the canonical encoding.
func (cs *ChangeSet) Digest() (string, error) {
	data, err := cs.Canonical()
	if err != nil {
		return "", err
	}
	return ir.ChangeSetDigest(data), nil
}

func (cs *ChangeSet) toCanonicalMap() map[string]any {
	m := map[string]any{
		"format_version": ir.ReportFormatVersion,
		"initial":        cs.Initial,
		"blocked":        cs.Blocked,
		"unresolved":     cs.Unresolved,
	}
	for _, s := range cs.sections() {
		m[s.name] = s.section.toCanonicalMap()
	}
	return m
}

func (s Section) toCanonicalMap() map[string]any {
	added := make([]any, len(s.Added))
	for i, st := range s.Added {
		added[i] = st.toCanonicalMap()
	}
	removed := make([]any, len(s.Removed))
	for i, st := range s.Removed {
		removed[i] = st.toCanonicalMap()
	}
	changed := make([]any, len(s.Changed))
	for i, c := range s.Changed {
		changed[i] = map[string]any{
			"previous": c.Previous.toCanonicalMap(),
			"current":  c.Current.toCanonicalMap(),
		}
	}
	return map[string]any{"added": added, "removed": removed, "changed": changed}
}

// toCanonicalMap flattens attributes next to id and label.
func (st State) toCanonicalMap() map[string]any {
	m := make(map[string]any, len(st.Attrs)+2)
	for k, v := range st.Attrs {
		m[k] = v
	}
	m["id"] = st.ID
	m["label"] = st.Label
	return m
}
