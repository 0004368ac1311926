// Package mapping computes the correspondence between the facet options of
// two consecutive data set versions.
//
// Every option of both versions ends up in exactly one entry:
//
//   - Mapped: natural keys are equal, or a person confirmed the pair
//   - New: a target option with no source counterpart
//   - NoMapping: a source option with no target counterpart
//   - AmbiguousCandidates: a source option with plausible targets that
//     need an external decision
//
// Entries hold arena indices into the source and target facet.Set. Results
// are deterministic: entries are sorted by natural key and the input order
// of options never changes the outcome.
package mapping
