package mapper

import (
	"fmt"
	"reflect"

	"github.com/fluxbase-eu/restcore/internal/entity"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// addAggregate nests value under the term's path segments and merges the
// result into the aggregate map of the entity named by the function.
func addAggregate(dst reflect.Value, term query.Term, value interface{}) error {
	target, ok := dst.Interface().(entity.Aggregatable)
	if !ok {
		return fmt.Errorf("%s cannot hold aggregate results", dst.Type().Elem())
	}

	value, err := normalize(term, value)
	if err != nil {
		return err
	}
	nested := nest(term.Path.Segments(), value)

	switch term.Aggregate {
	case filter.AggSum:
		target.AddSum(nested)
	case filter.AggAvg:
		target.AddAvg(nested)
	case filter.AggCount:
		target.AddCount(nested)
	case filter.AggCountDistinct:
		target.AddCountDistinct(nested)
	default:
		return fmt.Errorf("unknown aggregate function %q", term.Aggregate)
	}
	return nil
}

// nest builds {s0: {s1: ... {sn: value}}} from the innermost segment out.
func nest(segments []string, value interface{}) map[string]interface{} {
	m := map[string]interface{}{segments[len(segments)-1]: value}
	for i := len(segments) - 2; i >= 0; i-- {
		m = map[string]interface{}{segments[i]: m}
	}
	return m
}

// normalize turns a floating point result over a decimal field into a
// decimal.
func normalize(term query.Term, value interface{}) (interface{}, error) {
	if value == nil || term.Path.Leaf().Kind != schema.KindDecimal {
		return value, nil
	}
	if term.Aggregate == filter.AggCount || term.Aggregate == filter.AggCountDistinct {
		return value, nil
	}
	switch value.(type) {
	case float64, float32, string, []byte:
		return toDecimal(value)
	}
	return value, nil
}
