// Package filter implements the query-string grammar: logic and comparison
// tokens, the clause and expression parsers, field and sort lists, and the
// RequestFilter parameter holder.
package filter

import "strings"

// LogicOperator joins two clauses of a filter expression.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

type logicSpelling struct {
	op    LogicOperator
	token string
	alias string
}

var logicSpellings = []logicSpelling{
	{op: LogicAnd, token: "_and_", alias: ";"},
	{op: LogicOr, token: "_or_", alias: ","},
}

// Token returns the canonical spelling, e.g. "_and_".
func (l LogicOperator) Token() string {
	for _, s := range logicSpellings {
		if s.op == l {
			return s.token
		}
	}
	return ""
}

// Alias returns the short spelling, e.g. ";".
func (l LogicOperator) Alias() string {
	for _, s := range logicSpellings {
		if s.op == l {
			return s.alias
		}
	}
	return ""
}

// ParseLogicOperator looks up a logic operator by name, token or alias,
// ignoring case.
func ParseLogicOperator(s string) (LogicOperator, bool) {
	for _, sp := range logicSpellings {
		if strings.EqualFold(s, string(sp.op)) || strings.EqualFold(s, sp.token) || s == sp.alias {
			return sp.op, true
		}
	}
	return "", false
}

// Operator is a comparison operator of a field clause.
type Operator string

const (
	OpEq    Operator = "EQ"
	OpNe    Operator = "NE"
	OpGt    Operator = "GT"
	OpGe    Operator = "GE"
	OpLt    Operator = "LT"
	OpLe    Operator = "LE"
	OpLike  Operator = "LIKE"
	OpIn    Operator = "IN"
	OpNotIn Operator = "NOT_IN"
)

type operatorSpelling struct {
	op          Operator
	code        string
	alias       string
	commonAlias string
	pipe        string
}

// Order matters for alias rewriting: spellings that contain a shorter
// spelling of another operator come first.
var operatorSpellings = []operatorSpelling{
	{op: OpLe, code: "le", alias: "=le=", commonAlias: "<=", pipe: "|le|"},
	{op: OpGe, code: "ge", alias: "=ge=", commonAlias: ">=", pipe: "|ge|"},
	{op: OpNe, code: "ne", alias: "=ne=", commonAlias: "!=", pipe: "|ne|"},
	{op: OpIn, code: "in", alias: "=in=", commonAlias: "=in=", pipe: "|in|"},
	{op: OpNotIn, code: "ou", alias: "=out=", commonAlias: "=out=", pipe: "|ou|"},
	{op: OpLike, code: "lk", alias: "=like=", commonAlias: "=like=", pipe: "|lk|"},
	{op: OpEq, code: "eq", alias: "=eq=", commonAlias: "=", pipe: "|eq|"},
	{op: OpGt, code: "gt", alias: "=gt=", commonAlias: ">", pipe: "|gt|"},
	{op: OpLt, code: "lt", alias: "=lt=", commonAlias: "<", pipe: "|lt|"},
}

func (o Operator) spelling() (operatorSpelling, bool) {
	for _, s := range operatorSpellings {
		if s.op == o {
			return s, true
		}
	}
	return operatorSpelling{}, false
}

// Pipe returns the parseable form, e.g. "|eq|".
func (o Operator) Pipe() string {
	s, _ := o.spelling()
	return s.pipe
}

// Alias returns the canonical alias, e.g. "=eq=".
func (o Operator) Alias() string {
	s, _ := o.spelling()
	return s.alias
}

// CommonAlias returns the short symbolic alias, e.g. "=" or ">=".
func (o Operator) CommonAlias() string {
	s, _ := o.spelling()
	return s.commonAlias
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	_, ok := o.spelling()
	return ok
}

// MultiValued reports whether the operator takes a parenthesized value list.
func (o Operator) MultiValued() bool {
	return o == OpIn || o == OpNotIn
}

// ParseOperator looks up an operator by any of its spellings, ignoring case.
func ParseOperator(s string) (Operator, bool) {
	for _, sp := range operatorSpellings {
		if strings.EqualFold(s, string(sp.op)) ||
			strings.EqualFold(s, sp.code) ||
			strings.EqualFold(s, sp.alias) ||
			strings.EqualFold(s, sp.commonAlias) ||
			strings.EqualFold(s, sp.pipe) {
			return sp.op, true
		}
	}
	return "", false
}

// AggregateFunction names an aggregation over a field.
type AggregateFunction string

const (
	AggSum           AggregateFunction = "sum"
	AggAvg           AggregateFunction = "avg"
	AggCount         AggregateFunction = "count"
	AggCountDistinct AggregateFunction = "count_distinct"
)

// ParseAggregateFunction looks up an aggregate function by name.
func ParseAggregateFunction(s string) (AggregateFunction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return AggSum, true
	case "avg":
		return AggAvg, true
	case "count":
		return AggCount, true
	case "count_distinct", "countdistinct":
		return AggCountDistinct, true
	}
	return "", false
}

// SortOrder is the direction of an ordering.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// ParseSortOrder looks up a sort direction, ignoring case.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC":
		return SortAsc, true
	case "DESC":
		return SortDesc, true
	}
	return "", false
}
