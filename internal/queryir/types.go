package queryir

import "github.com/roach88/dataver/internal/ir"

// Predicate represents a filter condition over one observation row.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal
//   - In: field IN (literals)
//   - Compare: field <op> literal
//   - And, Or, Not: boolean composition
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select is a query over the observations of one data set version.
//
// Semantics:
//
//	SELECT <all columns> FROM <version observations> WHERE <filter>
//	ORDER BY <order by>, row_seq
//
// Example:
//
//	Select{
//	  From: "0192f4c8-...",
//	  Filter: And{Predicates: []Predicate{
//	    In{Field: "location_id", Values: ir.Strings("eng", "shf")},
//	    Equals{Field: "f_school_type", Value: ir.IRString("st-pri")},
//	  }},
//	  Columns: []string{"i_enrolments"},
//	  OrderBy: []OrderBy{{Field: "time_ordinal", Desc: true}},
//	}
//
// Rows are always returned in a total order: row_seq breaks ties after the
// explicit OrderBy fields, so paging over the same version is stable.
type Select struct {
	From    string    // Data set version id; backends map it to storage
	Filter  Predicate // WHERE conditions (nil = every row)
	Columns []string  // Indicator columns to return (empty = all)
	OrderBy []OrderBy // Explicit ordering (empty = storage order)
}

// OrderBy is one sort field.
type OrderBy struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Equals represents a field-equals-literal predicate.
//
//	Equals{Field: "geographic_level", Value: ir.IRString("LA")}
//
// translates to SQL:
//
//	geographic_level = ?
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In represents set membership. An empty Values list never matches.
//
//	In{Field: "time_period", Values: ir.Strings("2021_AY", "2022_AY")}
//
// translates to SQL:
//
//	time_period IN (?, ?)
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// Op is an ordering comparison operator.
type Op string

const (
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Compare represents an ordering comparison against a literal.
//
//	Compare{Field: "time_ordinal", Op: OpGte, Value: ir.IRInt(8089)}
//
// Only strings and integers are ordered; other values never match.
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// And represents a conjunction. Empty Predicates is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction. Empty Predicates is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}
