package queryir

import "github.com/roach88/dataver/internal/ir"

// Eval reports whether row satisfies p. A nil predicate matches every row.
// Eval is the reference semantics that SQL backends must agree with.
func Eval(p Predicate, row ir.IRObject) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return ir.Equal(row[pred.Field], pred.Value)
	case *Equals:
		return Eval(*pred, row)
	case In:
		val := row[pred.Field]
		for _, candidate := range pred.Values {
			if ir.Equal(val, candidate) {
				return true
			}
		}
		return false
	case *In:
		return Eval(*pred, row)
	case Compare:
		c, ok := ir.Compare(row[pred.Field], pred.Value)
		if !ok {
			return false
		}
		switch pred.Op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		}
		return false
	case *Compare:
		return Eval(*pred, row)
	case And:
		for _, sub := range pred.Predicates {
			if !Eval(sub, row) {
				return false
			}
		}
		return true
	case *And:
		return Eval(*pred, row)
	case Or:
		for _, sub := range pred.Predicates {
			if Eval(sub, row) {
				return true
			}
		}
		return false
	case *Or:
		return Eval(*pred, row)
	case Not:
		return !Eval(pred.Predicate, row)
	case *Not:
		return Eval(*pred, row)
	}
	return false
}

// Fields returns the fields referenced by p, in first-seen order.
func Fields(p Predicate) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Predicate)
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	walk = func(p Predicate) {
		switch pred := p.(type) {
		case Equals:
			add(pred.Field)
		case *Equals:
			add(pred.Field)
		case In:
			add(pred.Field)
		case *In:
			add(pred.Field)
		case Compare:
			add(pred.Field)
		case *Compare:
			add(pred.Field)
		case And:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		case *And:
			walk(*pred)
		case Or:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		case *Or:
			walk(*pred)
		case Not:
			walk(pred.Predicate)
		case *Not:
			walk(*pred)
		}
	}
	walk(p)
	return out
}
