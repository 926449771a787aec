package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOperator(t *testing.T) {
	tests := []struct {
		input    string
		expected Operator
	}{
		{"EQ", OpEq},
		{"eq", OpEq},
		{"=eq=", OpEq},
		{"=", OpEq},
		{"|eq|", OpEq},
		{"|EQ|", OpEq},
		{"!=", OpNe},
		{">=", OpGe},
		{"=ge=", OpGe},
		{"<=", OpLe},
		{">", OpGt},
		{"<", OpLt},
		{"|lk|", OpLike},
		{"=like=", OpLike},
		{"like", OpLike},
		{"=in=", OpIn},
		{"|ou|", OpNotIn},
		{"=out=", OpNotIn},
		{"not_in", OpNotIn},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			op, ok := ParseOperator(tt.input)
			assert.True(t, ok)
			assert.Equal(t, tt.expected, op)
		})
	}

	_, ok := ParseOperator("|zz|")
	assert.False(t, ok)
}

func TestOperator_Spellings(t *testing.T) {
	assert.Equal(t, "|ge|", OpGe.Pipe())
	assert.Equal(t, "=ge=", OpGe.Alias())
	assert.Equal(t, ">=", OpGe.CommonAlias())
	assert.True(t, OpIn.MultiValued())
	assert.True(t, OpNotIn.MultiValued())
	assert.False(t, OpEq.MultiValued())
	assert.False(t, Operator("").Valid())
}

func TestParseLogicOperator(t *testing.T) {
	tests := []struct {
		input    string
		expected LogicOperator
		ok       bool
	}{
		{"_and_", LogicAnd, true},
		{"_AND_", LogicAnd, true},
		{";", LogicAnd, true},
		{"and", LogicAnd, true},
		{"_or_", LogicOr, true},
		{",", LogicOr, true},
		{"_xor_", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			op, ok := ParseLogicOperator(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, op)
		})
	}
}

func TestParseAggregateFunction(t *testing.T) {
	tests := []struct {
		input    string
		expected AggregateFunction
	}{
		{"sum", AggSum},
		{"AVG", AggAvg},
		{"count", AggCount},
		{"count_distinct", AggCountDistinct},
		{"countDistinct", AggCountDistinct},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			fn, ok := ParseAggregateFunction(tt.input)
			assert.True(t, ok)
			assert.Equal(t, tt.expected, fn)
		})
	}

	_, ok := ParseAggregateFunction("median")
	assert.False(t, ok)
}

func TestParseSortOrder(t *testing.T) {
	order, ok := ParseSortOrder("desc")
	assert.True(t, ok)
	assert.Equal(t, SortDesc, order)

	order, ok = ParseSortOrder(" Asc ")
	assert.True(t, ok)
	assert.Equal(t, SortAsc, order)

	_, ok = ParseSortOrder("up")
	assert.False(t, ok)
}
