// Package executor runs bound query plans against versioned observation
// storage and pages the results.
//
// An Executor owns three things: a Backend that evaluates predicates over
// one version's observation rows, a MetaCache holding the facet set of each
// version it has served, and the paging rules. Page numbers start at 1 and
// page sizes are between 1 and criteria.MaxPageSize; values outside those
// bounds are rejected with a *ValidationError, never clamped.
//
// Rows are returned in a total order: explicit sort fields first, then
// storage order. Every row is decorated with the labels of the facet
// options it references.
package executor
