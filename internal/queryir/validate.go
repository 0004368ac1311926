package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dataver/internal/ir"
)

// ValidationResult lists the structural problems of a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each malformed node, with its path in the tree.
	Problems []string
}

// Err returns nil for a valid query, or an error joining every problem.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New("invalid query: " + strings.Join(r.Problems, "; "))
}

// Validate checks that a Select is well formed:
//  1. From is set
//  2. Every predicate node is non-nil and references a field
//  3. Literals are scalars, never null
//  4. Compare uses a known operator on a string or integer
//  5. OrderBy fields are named
//
// Validate does not check that fields exist; backends reject unknown
// columns. It is a pure function with no side effects.
func Validate(sel Select) ValidationResult {
	v := &validator{problems: []string{}}
	if sel.From == "" {
		v.add("from", "missing source version")
	}
	if sel.Filter != nil {
		v.validatePredicate("filter", sel.Filter)
	}
	for i, c := range sel.Columns {
		if c == "" {
			v.add(fmt.Sprintf("columns[%d]", i), "empty column name")
		}
	}
	for i, o := range sel.OrderBy {
		if o.Field == "" {
			v.add(fmt.Sprintf("order_by[%d]", i), "empty field")
		}
	}
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) add(path, format string, args ...any) {
	v.problems = append(v.problems, path+": "+fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(path string, p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.add(path, "nil predicate")
	case Equals:
		v.validateField(path, pred.Field)
		v.validateScalar(path+".value", pred.Value)
	case *Equals:
		v.validatePredicate(path, *pred)
	case In:
		v.validateField(path, pred.Field)
		for i, val := range pred.Values {
			v.validateScalar(fmt.Sprintf("%s.values[%d]", path, i), val)
		}
	case *In:
		v.validatePredicate(path, *pred)
	case Compare:
		v.validateField(path, pred.Field)
		if !pred.Op.Valid() {
			v.add(path, "unknown operator %q", pred.Op)
		}
		switch pred.Value.(type) {
		case ir.IRString, ir.IRInt:
		default:
			v.add(path+".value", "cannot order %T", pred.Value)
		}
	case *Compare:
		v.validatePredicate(path, *pred)
	case And:
		for i, sub := range pred.Predicates {
			v.validatePredicate(fmt.Sprintf("%s.and[%d]", path, i), sub)
		}
	case *And:
		v.validatePredicate(path, *pred)
	case Or:
		for i, sub := range pred.Predicates {
			v.validatePredicate(fmt.Sprintf("%s.or[%d]", path, i), sub)
		}
	case *Or:
		v.validatePredicate(path, *pred)
	case Not:
		v.validatePredicate(path+".not", pred.Predicate)
	case *Not:
		v.validatePredicate(path, *pred)
	default:
		v.add(path, "unknown predicate type %T", p)
	}
}

func (v *validator) validateField(path, field string) {
	if field == "" {
		v.add(path, "empty field")
	}
}

func (v *validator) validateScalar(path string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	case nil, ir.IRNull:
		v.add(path, "null literal")
	default:
		v.add(path, "non-scalar literal %T", val)
	}
}
