package filter

import (
	"fmt"
	"strings"
)

// Limits bounds the page size of a request.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits are used by NewRequestFilter.
var DefaultLimits = Limits{Default: 20, Max: 100}

// RequestFilter holds the raw query parameters of a list request. Setters
// normalize their input; the filter string is rewritten to canonical tokens
// so that ParseExpression only has to recognize one spelling.
type RequestFilter struct {
	filter        string
	projection    string
	sort          string
	sum           string
	avg           string
	count         string
	countDistinct string
	groupBy       string
	offset        int
	limit         int
	maxLimit      int
}

// NewRequestFilter returns a filter with the default page size.
func NewRequestFilter() *RequestFilter {
	return NewRequestFilterWithLimits(DefaultLimits)
}

// NewRequestFilterWithLimits returns a filter using the given page size
// bounds. Non-positive values fall back to DefaultLimits.
func NewRequestFilterWithLimits(l Limits) *RequestFilter {
	if l.Max <= 0 {
		l.Max = DefaultLimits.Max
	}
	if l.Default <= 0 || l.Default > l.Max {
		l.Default = min(DefaultLimits.Default, l.Max)
	}
	return &RequestFilter{limit: l.Default, maxLimit: l.Max}
}

func (r *RequestFilter) Filter() string        { return r.filter }
func (r *RequestFilter) Projection() string    { return r.projection }
func (r *RequestFilter) Sort() string          { return r.sort }
func (r *RequestFilter) Sum() string           { return r.sum }
func (r *RequestFilter) Avg() string           { return r.avg }
func (r *RequestFilter) Count() string         { return r.count }
func (r *RequestFilter) CountDistinct() string { return r.countDistinct }
func (r *RequestFilter) GroupBy() string       { return r.groupBy }
func (r *RequestFilter) Offset() int           { return r.offset }
func (r *RequestFilter) Limit() int            { return r.limit }

// SetFilter stores the filter string after rewriting logic and operator
// aliases to their canonical forms.
func (r *RequestFilter) SetFilter(raw string) *RequestFilter {
	r.filter = normalizeFilter(raw)
	return r
}

func (r *RequestFilter) SetProjection(raw string) *RequestFilter {
	r.projection = stripBrackets(raw)
	return r
}

func (r *RequestFilter) SetSort(raw string) *RequestFilter {
	r.sort = stripBrackets(raw)
	return r
}

func (r *RequestFilter) SetSum(raw string) *RequestFilter {
	r.sum = stripBrackets(raw)
	return r
}

func (r *RequestFilter) SetAvg(raw string) *RequestFilter {
	r.avg = stripBrackets(raw)
	return r
}

func (r *RequestFilter) SetCount(raw string) *RequestFilter {
	r.count = stripBrackets(raw)
	return r
}

func (r *RequestFilter) SetCountDistinct(raw string) *RequestFilter {
	r.countDistinct = stripBrackets(raw)
	return r
}

func (r *RequestFilter) SetGroupBy(raw string) *RequestFilter {
	r.groupBy = stripBrackets(raw)
	return r
}

// SetOffset stores the offset; negative values become 0.
func (r *RequestFilter) SetOffset(offset int) *RequestFilter {
	r.offset = max(offset, 0)
	return r
}

// SetLimit stores the page size clamped to [0, max].
func (r *RequestFilter) SetLimit(limit int) *RequestFilter {
	r.limit = min(max(limit, 0), r.maxLimit)
	return r
}

// HasValidAggregateFunction reports whether any aggregate list is set,
// which switches a list request into aggregation mode.
func (r *RequestFilter) HasValidAggregateFunction() bool {
	return strings.TrimSpace(r.sum) != "" ||
		strings.TrimSpace(r.avg) != "" ||
		strings.TrimSpace(r.count) != "" ||
		strings.TrimSpace(r.countDistinct) != ""
}

// Expression parses the stored filter.
func (r *RequestFilter) Expression() *Expression {
	return ParseExpression(r.filter)
}

func (r *RequestFilter) ProjectionFields() []string    { return ParseFieldList(r.projection) }
func (r *RequestFilter) SumFields() []string           { return ParseFieldList(r.sum) }
func (r *RequestFilter) AvgFields() []string           { return ParseFieldList(r.avg) }
func (r *RequestFilter) CountFields() []string         { return ParseFieldList(r.count) }
func (r *RequestFilter) CountDistinctFields() []string { return ParseFieldList(r.countDistinct) }
func (r *RequestFilter) GroupByFields() []string       { return ParseFieldList(r.groupBy) }
func (r *RequestFilter) SortSpecs() []SortSpec         { return ParseSort(r.sort) }

// AddAndFilter appends a clause joined with AND.
func (r *RequestFilter) AddAndFilter(field string, op Operator, value string) *RequestFilter {
	return r.addFilter(LogicAnd, field, op, value)
}

// AddOrFilter appends a clause joined with OR.
func (r *RequestFilter) AddOrFilter(field string, op Operator, value string) *RequestFilter {
	return r.addFilter(LogicOr, field, op, value)
}

func (r *RequestFilter) addFilter(logic LogicOperator, field string, op Operator, value string) *RequestFilter {
	if op.MultiValued() && !strings.HasPrefix(value, "(") {
		value = "(" + value + ")"
	}
	clause := field + op.Pipe() + value
	if r.filter == "" {
		r.filter = clause
	} else {
		r.filter += logic.Token() + clause
	}
	return r
}

func (r *RequestFilter) AddProjection(field string) *RequestFilter {
	r.projection = appendField(r.projection, field)
	return r
}

func (r *RequestFilter) AddSum(field string) *RequestFilter {
	r.sum = appendField(r.sum, field)
	return r
}

func (r *RequestFilter) AddAvg(field string) *RequestFilter {
	r.avg = appendField(r.avg, field)
	return r
}

func (r *RequestFilter) AddCount(field string) *RequestFilter {
	r.count = appendField(r.count, field)
	return r
}

func (r *RequestFilter) AddCountDistinct(field string) *RequestFilter {
	r.countDistinct = appendField(r.countDistinct, field)
	return r
}

func (r *RequestFilter) AddGroupBy(field string) *RequestFilter {
	r.groupBy = appendField(r.groupBy, field)
	return r
}

// AddSort appends an ordering term.
func (r *RequestFilter) AddSort(field string, order SortOrder) *RequestFilter {
	r.sort = appendField(r.sort, field+"="+strings.ToLower(string(order)))
	return r
}

func appendField(list, field string) string {
	if list == "" {
		return field
	}
	return list + "," + field
}

// String returns the canonical form of the request, used as cache key.
func (r *RequestFilter) String() string {
	return fmt.Sprintf("filter=[%s],projection=[%s],sum=[%s],avg=[%s],count=[%s],countDistinct=[%s],groupBy=[%s],sort=[%s],offset=%d limit=%d",
		r.filter, r.projection, r.sum, r.avg, r.count, r.countDistinct, r.groupBy, r.sort, r.offset, r.limit)
}

// normalizeFilter strips brackets, rewrites ";" and "," outside
// parentheses to logic tokens, then rewrites operator aliases to their
// pipe form.
func normalizeFilter(raw string) string {
	raw = stripBrackets(raw)

	var b strings.Builder
	depth := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '(':
			depth++
		case c == ')' && depth > 0:
			depth--
		case depth == 0 && c == ';':
			b.WriteString(LogicAnd.Token())
			continue
		case depth == 0 && c == ',':
			b.WriteString(LogicOr.Token())
			continue
		}
		b.WriteByte(c)
	}
	out := b.String()

	// "=gt=" contains "=", so every word alias goes before any symbol.
	for _, sp := range operatorSpellings {
		out = strings.ReplaceAll(out, sp.alias, sp.pipe)
	}
	for _, sp := range operatorSpellings {
		if sp.commonAlias != sp.alias {
			out = strings.ReplaceAll(out, sp.commonAlias, sp.pipe)
		}
	}
	return out
}
