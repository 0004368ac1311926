package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/ir"
)

func TestValidate_WellFormed(t *testing.T) {
	sel := Select{
		From: "v1",
		Filter: And{Predicates: []Predicate{
			In{Field: "location_id", Values: ir.Strings("eng")},
			Not{Predicate: Equals{Field: "geographic_level", Value: ir.IRString("NAT")}},
			Compare{Field: "time_ordinal", Op: OpGte, Value: ir.IRInt(8088)},
		}},
		OrderBy: []OrderBy{{Field: "time_ordinal", Desc: true}},
	}

	result := Validate(sel)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name    string
		sel     Select
		problem string
	}{
		{"missing from", Select{}, "from: missing source version"},
		{"nil child", Select{From: "v", Filter: And{Predicates: []Predicate{nil}}}, "filter.and[0]: nil predicate"},
		{"empty field", Select{From: "v", Filter: Equals{Value: ir.IRString("x")}}, "filter: empty field"},
		{"null literal", Select{From: "v", Filter: Equals{Field: "a", Value: ir.IRNull{}}}, "filter.value: null literal"},
		{"array literal", Select{From: "v", Filter: In{Field: "a", Values: []ir.IRValue{ir.Strings("x")}}}, "filter.values[0]: non-scalar literal"},
		{"bad op", Select{From: "v", Filter: Compare{Field: "a", Op: "~", Value: ir.IRInt(1)}}, `unknown operator "~"`},
		{"bool order", Select{From: "v", Filter: Or{Predicates: []Predicate{Compare{Field: "a", Op: OpLt, Value: ir.IRBool(true)}}}}, "filter.or[0].value: cannot order"},
		{"nested not", Select{From: "v", Filter: Not{}}, "filter.not: nil predicate"},
		{"order by", Select{From: "v", OrderBy: []OrderBy{{}}}, "order_by[0]: empty field"},
		{"column", Select{From: "v", Columns: []string{""}}, "columns[0]: empty column name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.sel)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Problems)
			assert.Contains(t, result.Problems[0], tt.problem)
			assert.ErrorContains(t, result.Err(), tt.problem)
		})
	}
}
