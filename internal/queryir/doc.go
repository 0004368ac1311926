// Package queryir provides the predicate intermediate representation (IR)
// that bound query criteria compile to.
//
// QueryIR is the abstraction boundary between the criteria parser and the
// observation backends. A plan is parsed once and can then be executed by
// any backend without re-parsing:
//
//	[criteria] → [Query IR] → [SQLite backend]
//	                        → [DuckDB backend]
//	                        → [in-memory Eval]
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// types in this package implement it, which keeps type switches in the
// backends exhaustive:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case Compare:
//	case And, Or, Not:
//	}
//
// FIELDS:
//
// Predicates reference observation columns by name (see facet.Column*):
// row_seq, geographic_level, location_id, time_period, time_identifier,
// time_ordinal, and the f_<column> / i_<column> columns of filters and
// indicators. Backends map those names onto their storage.
//
// VALUES:
//
// All literals are ir.IRValue scalars and there are no floats. Predicate
// fields are never null in storage (a row without an option for a filter
// holds the empty string), so SQL and Eval agree under Not.
//
// EMPTY COMPOSITES:
//
// And{} is true, Or{} is false and In with no values is false. The parser
// relies on this: an explicitly empty selection matches nothing.
package queryir
