package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/dataver/internal/ir"
)

func row() ir.IRObject {
	return ir.IRObject{
		"row_seq":          ir.IRInt(7),
		"geographic_level": ir.IRString("LA"),
		"location_id":      ir.IRString("shf"),
		"time_period":      ir.IRString("2022_AY"),
		"time_ordinal":     ir.IRInt(2022),
		"f_school_type":    ir.IRString("st-pri"),
		"i_enrolments":     ir.IRNull{},
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"nil matches", nil, true},
		{"equals", Equals{Field: "location_id", Value: ir.IRString("shf")}, true},
		{"equals pointer", &Equals{Field: "location_id", Value: ir.IRString("eng")}, false},
		{"equals type mismatch", Equals{Field: "time_ordinal", Value: ir.IRString("2022")}, false},
		{"equals null", Equals{Field: "i_enrolments", Value: ir.IRString("")}, false},
		{"missing field", Equals{Field: "f_phase", Value: ir.IRString("x")}, false},
		{"in", In{Field: "time_period", Values: ir.Strings("2021_AY", "2022_AY")}, true},
		{"in empty", In{Field: "time_period"}, false},
		{"gte", Compare{Field: "time_ordinal", Op: OpGte, Value: ir.IRInt(2022)}, true},
		{"gt", Compare{Field: "time_ordinal", Op: OpGt, Value: ir.IRInt(2022)}, false},
		{"lt", Compare{Field: "time_ordinal", Op: OpLt, Value: ir.IRInt(2023)}, true},
		{"lte string", Compare{Field: "geographic_level", Op: OpLte, Value: ir.IRString("LAD")}, true},
		{"compare null", Compare{Field: "i_enrolments", Op: OpGt, Value: ir.IRInt(0)}, false},
		{"and empty", And{}, true},
		{"or empty", Or{}, false},
		{"and", And{Predicates: []Predicate{
			Equals{Field: "geographic_level", Value: ir.IRString("LA")},
			In{Field: "f_school_type", Values: ir.Strings("st-pri", "st-sec")},
		}}, true},
		{"or", &Or{Predicates: []Predicate{
			Equals{Field: "location_id", Value: ir.IRString("eng")},
			Equals{Field: "location_id", Value: ir.IRString("shf")},
		}}, true},
		{"not", Not{Predicate: Equals{Field: "location_id", Value: ir.IRString("shf")}}, false},
		{"nested", And{Predicates: []Predicate{
			Not{Predicate: In{Field: "time_period", Values: ir.Strings("2021_AY")}},
			Or{Predicates: []Predicate{Compare{Field: "row_seq", Op: OpLt, Value: ir.IRInt(10)}}},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eval(tt.pred, row()))
		})
	}
}

func TestFields(t *testing.T) {
	pred := And{Predicates: []Predicate{
		In{Field: "location_id", Values: ir.Strings("shf")},
		Not{Predicate: Equals{Field: "f_school_type", Value: ir.IRString("st-tot")}},
		Or{Predicates: []Predicate{
			Compare{Field: "time_ordinal", Op: OpGt, Value: ir.IRInt(1)},
			Equals{Field: "location_id", Value: ir.IRString("eng")},
		}},
	}}

	assert.Equal(t, []string{"location_id", "f_school_type", "time_ordinal"}, Fields(pred))
	assert.Empty(t, Fields(nil))
}
