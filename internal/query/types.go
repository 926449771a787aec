// Package query holds the backend independent query plan produced from a
// parsed request filter, the coerced value union used in its predicates,
// and the compiler that builds it.
package query

import (
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// Predicate is one of Comparison, NullCheck, Like, Membership, And, Or.
type Predicate interface {
	predicate()
}

// Comparison is an equality or ordered comparison against a coerced value.
type Comparison struct {
	Path     schema.Path
	Operator filter.Operator
	Value    Value
}

// NullCheck is "IS NULL", or "IS NOT NULL" when Negated.
type NullCheck struct {
	Path    schema.Path
	Negated bool
}

// Like is a case-insensitive substring match. Pattern is already upper
// cased and wrapped in '%'.
type Like struct {
	Path    schema.Path
	Pattern string
}

// Membership is "IN", or "NOT IN" when Negated.
type Membership struct {
	Path    schema.Path
	Values  []Value
	Negated bool
}

// And is a conjunction. An empty And matches everything.
type And struct {
	Terms []Predicate
}

// Or is a disjunction of the clauses of one OR run.
type Or struct {
	Terms []Predicate
}

func (Comparison) predicate() {}
func (NullCheck) predicate()  {}
func (Like) predicate()       {}
func (Membership) predicate() {}
func (And) predicate()        {}
func (Or) predicate()         {}

// Term is one selected output column. Aggregate is empty for plain
// projections and group-by columns.
type Term struct {
	Path      schema.Path
	Aggregate filter.AggregateFunction
	GroupBy   bool
}

// Ordering is one ORDER BY term.
type Ordering struct {
	Path  schema.Path
	Order filter.SortOrder
}

// Mode tells the engine which row shape to produce.
type Mode int

const (
	// ModeEntity returns full entities.
	ModeEntity Mode = iota
	// ModeProjection returns one value per selection term.
	ModeProjection
	// ModeAggregate returns aggregate values grouped by the group-by terms.
	ModeAggregate
)

func (m Mode) String() string {
	switch m {
	case ModeProjection:
		return "projection"
	case ModeAggregate:
		return "aggregate"
	default:
		return "entity"
	}
}

// Plan is the compiled form of a request.
type Plan struct {
	Entity    *schema.Entity
	Mode      Mode
	Where     And
	Selection []Term
	GroupBy   []schema.Path
	OrderBy   []Ordering
	Offset    int
	Limit     int
	Paginate  bool
	Filter    string
}

// Aggregated reports whether the plan runs in aggregation mode.
func (p *Plan) Aggregated() bool {
	return p.Mode == ModeAggregate
}
