package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestFilter_Defaults(t *testing.T) {
	rf := NewRequestFilter()

	assert.Equal(t, 20, rf.Limit())
	assert.Equal(t, 0, rf.Offset())
	assert.False(t, rf.HasValidAggregateFunction())
}

func TestRequestFilter_LimitBounds(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{"within range", 50, 50},
		{"above max", 500, 100},
		{"exactly max", 100, 100},
		{"zero", 0, 0},
		{"negative", -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewRequestFilter().SetLimit(tt.limit).Limit())
		})
	}

	assert.Equal(t, 0, NewRequestFilter().SetOffset(-3).Offset())
}

func TestRequestFilter_CustomLimits(t *testing.T) {
	rf := NewRequestFilterWithLimits(Limits{Default: 10, Max: 50})
	assert.Equal(t, 10, rf.Limit())
	assert.Equal(t, 50, rf.SetLimit(80).Limit())

	rf = NewRequestFilterWithLimits(Limits{})
	assert.Equal(t, 20, rf.Limit())
}

func TestRequestFilter_SetFilterNormalizes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"canonical untouched", "name|eq|Bob", "name|eq|Bob"},
		{"brackets stripped", "[name|eq|Bob]", "name|eq|Bob"},
		{"logic aliases", "a=1;b=2,c=3", "a|eq|1_and_b|eq|2_or_c|eq|3"},
		{"symbolic operators", "a>=1;b<=2;c!=3;d>4;e<5", "a|ge|1_and_b|le|2_and_c|ne|3_and_d|gt|4_and_e|lt|5"},
		{"word aliases", "a=eq=1;b=gt=2;c=lt=3;d=ne=4", "a|eq|1_and_b|gt|2_and_c|lt|3_and_d|ne|4"},
		{"like alias", "name=like=bo", "name|lk|bo"},
		{"in list keeps commas", "id=in=(1,2,3),age>30", "id|in|(1,2,3)_or_age|gt|30"},
		{"not in list", "id=out=(1;2)", "id|ou|(1;2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewRequestFilter().SetFilter(tt.input).Filter())
		})
	}
}

func TestRequestFilter_ListSettersStripBrackets(t *testing.T) {
	rf := NewRequestFilter().
		SetProjection("[name,country.name]").
		SetSort("[name=desc]").
		SetSum("[orders.total]").
		SetAvg("[age]").
		SetCount("[id]").
		SetCountDistinct("[country.id]").
		SetGroupBy("[country.name]")

	assert.Equal(t, "name,country.name", rf.Projection())
	assert.Equal(t, "name=desc", rf.Sort())
	assert.Equal(t, []string{"orders.total"}, rf.SumFields())
	assert.Equal(t, []string{"age"}, rf.AvgFields())
	assert.Equal(t, []string{"id"}, rf.CountFields())
	assert.Equal(t, []string{"country.id"}, rf.CountDistinctFields())
	assert.Equal(t, []string{"country.name"}, rf.GroupByFields())
	assert.True(t, rf.HasValidAggregateFunction())
}

func TestRequestFilter_HasValidAggregateFunction(t *testing.T) {
	assert.True(t, NewRequestFilter().SetSum("age").HasValidAggregateFunction())
	assert.True(t, NewRequestFilter().SetAvg("age").HasValidAggregateFunction())
	assert.True(t, NewRequestFilter().SetCount("id").HasValidAggregateFunction())
	assert.True(t, NewRequestFilter().SetCountDistinct("id").HasValidAggregateFunction())
	assert.False(t, NewRequestFilter().SetGroupBy("name").HasValidAggregateFunction())
	assert.False(t, NewRequestFilter().SetSum(" [ ] ").HasValidAggregateFunction())
}

func TestRequestFilter_Builders(t *testing.T) {
	rf := NewRequestFilter().
		AddAndFilter("name", OpEq, "Bob").
		AddAndFilter("age", OpGt, "30").
		AddOrFilter("id", OpIn, "1,2").
		AddProjection("name").
		AddProjection("country.name").
		AddSort("name", SortDesc).
		AddSum("orders.total").
		AddCount("id").
		AddGroupBy("country.name")

	assert.Equal(t, "name|eq|Bob_and_age|gt|30_or_id|in|(1,2)", rf.Filter())
	assert.Equal(t, []string{"name", "country.name"}, rf.ProjectionFields())
	assert.Equal(t, []SortSpec{{Field: "name", Order: SortDesc}}, rf.SortSpecs())

	expr := rf.Expression()
	assert.Len(t, expr.Clauses(), 3)
}

func TestRequestFilter_String(t *testing.T) {
	rf := NewRequestFilter().
		SetFilter("name=Bob").
		SetProjection("name").
		SetSort("name=desc").
		SetOffset(10).
		SetLimit(5)

	assert.Equal(t,
		"filter=[name|eq|Bob],projection=[name],sum=[],avg=[],count=[],countDistinct=[],groupBy=[],sort=[name=desc],offset=10 limit=5",
		rf.String())
}
