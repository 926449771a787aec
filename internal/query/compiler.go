package query

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// Error codes attached to compile failures.
const (
	CodeInvalidFilter      = "INVALID_FILTER"
	CodeInvalidValue       = "INVALID_VALUE"
	CodeInvalidProjection  = "INVALID_PROJECTION"
	CodeInvalidSort        = "INVALID_SORT"
	CodeInvalidAggregation = "INVALID_AGGREGATION"
)

// Aggregates lists the paths of each aggregate parameter.
type Aggregates struct {
	Sum           []string
	Avg           []string
	Count         []string
	CountDistinct []string
	GroupBy       []string
}

// Empty reports whether no aggregate function is requested. Group-by
// alone does not count.
func (a Aggregates) Empty() bool {
	return len(a.Sum) == 0 && len(a.Avg) == 0 && len(a.Count) == 0 && len(a.CountDistinct) == 0
}

// Request is the parsed input of a compilation.
type Request struct {
	Expression *filter.Expression
	Projection []string
	Aggregates Aggregates
	Sort       []filter.SortSpec
	Offset     int
	Limit      int
	Aggregate  bool
}

// RequestFrom parses every parameter of rf.
func RequestFrom(rf *filter.RequestFilter) Request {
	return Request{
		Expression: rf.Expression(),
		Projection: rf.ProjectionFields(),
		Aggregates: Aggregates{
			Sum:           rf.SumFields(),
			Avg:           rf.AvgFields(),
			Count:         rf.CountFields(),
			CountDistinct: rf.CountDistinctFields(),
			GroupBy:       rf.GroupByFields(),
		},
		Sort:      rf.SortSpecs(),
		Offset:    rf.Offset(),
		Limit:     rf.Limit(),
		Aggregate: rf.HasValidAggregateFunction(),
	}
}

// Compiler turns parsed requests into plans. It holds no per-request state
// and is safe for concurrent use.
type Compiler struct {
	resolver schema.FieldPathResolver
}

// NewCompiler creates a compiler resolving paths with r.
func NewCompiler(r schema.FieldPathResolver) *Compiler {
	return &Compiler{resolver: r}
}

// Resolver returns the field resolver of the compiler.
func (c *Compiler) Resolver() schema.FieldPathResolver {
	return c.resolver
}

// CompileFilter parses and compiles rf against entityType.
func (c *Compiler) CompileFilter(entityType reflect.Type, rf *filter.RequestFilter) (*Plan, error) {
	return c.Compile(entityType, RequestFrom(rf))
}

// Compile builds a plan. Every failure caused by the request is a
// BadRequest carrying the offending filter or field.
func (c *Compiler) Compile(entityType reflect.Type, req Request) (*Plan, error) {
	ent, err := c.resolver.Entity(entityType)
	if err != nil {
		return nil, apierror.Internal(err, "cannot describe entity %s", entityType)
	}

	expr := req.Expression
	if expr == nil {
		expr = filter.ParseExpression("")
	}

	plan := &Plan{
		Entity:   ent,
		Mode:     ModeEntity,
		Offset:   req.Offset,
		Limit:    req.Limit,
		Paginate: true,
		Filter:   expr.Raw,
	}

	where, err := c.compileWhere(ent.Type, expr)
	if err != nil {
		return nil, err
	}
	plan.Where = where

	if req.Aggregate {
		if err := c.compileAggregates(ent.Type, req.Aggregates, plan); err != nil {
			return nil, err
		}
	} else if err := c.compileProjection(ent.Type, req.Projection, plan); err != nil {
		return nil, err
	}

	if err := c.compileSort(ent.Type, req.Sort, plan); err != nil {
		return nil, err
	}

	log.Debug().
		Str("entity", ent.Type.Name()).
		Str("filter", expr.Raw).
		Str("mode", plan.Mode.String()).
		Int("terms", len(plan.Where.Terms)).
		Int("selection", len(plan.Selection)).
		Msg("Compiled query plan")

	return plan, nil
}

// compileSort resolves the orderings. A grouped plan can only be ordered
// by its group-by paths.
func (c *Compiler) compileSort(t reflect.Type, specs []filter.SortSpec, plan *Plan) error {
	raw := sortText(specs)
	for _, s := range specs {
		if s.Order == "" {
			return apierror.BadRequest(CodeInvalidSort, nil, apierror.MsgInvalidSortOrder, raw)
		}
		p, err := c.resolve(t, s.Field, CodeInvalidSort, apierror.MsgInvalidSortOrder, raw)
		if err != nil {
			return err
		}
		if p.Leaf().Kind == schema.KindEntity || p.Collection() {
			return apierror.BadRequest(CodeInvalidSort, nil, apierror.MsgInvalidSortOrder, raw)
		}
		if plan.Aggregated() && !grouped(plan, p) {
			return apierror.BadRequest(CodeInvalidSort, nil, apierror.MsgInvalidSortOrder, raw)
		}
		plan.OrderBy = append(plan.OrderBy, Ordering{Path: p, Order: s.Order})
	}
	return nil
}

func grouped(plan *Plan, p schema.Path) bool {
	for _, g := range plan.GroupBy {
		if slices.Equal(g.Segments(), p.Segments()) {
			return true
		}
	}
	return false
}

func sortText(specs []filter.SortSpec) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.Field
		if s.Order != "" {
			parts[i] += "=" + strings.ToLower(string(s.Order))
		}
	}
	return strings.Join(parts, ",")
}

// compileWhere walks the expression once. A node joined by OR opens a run
// that collects every following node whose own logic is OR plus the node
// the run ends into; the run becomes one AND term. Any other clause is an
// AND term on its own.
func (c *Compiler) compileWhere(t reflect.Type, expr *filter.Expression) (And, error) {
	var where And
	nodes := expr.Nodes

	for i := 0; i < len(nodes); i++ {
		if nodes[i].Logic != filter.LogicOr {
			if nodes[i].Clause == nil {
				continue
			}
			p, err := c.compileClause(t, nodes[i].Clause, expr.Raw)
			if err != nil {
				return And{}, err
			}
			where.Terms = append(where.Terms, p)
			continue
		}

		var group []Predicate
		j := i
		for ; j < len(nodes) && nodes[j].Logic == filter.LogicOr; j++ {
			if nodes[j].Clause == nil {
				continue
			}
			p, err := c.compileClause(t, nodes[j].Clause, expr.Raw)
			if err != nil {
				return And{}, err
			}
			group = append(group, p)
		}
		if j < len(nodes) && nodes[j].Clause != nil {
			p, err := c.compileClause(t, nodes[j].Clause, expr.Raw)
			if err != nil {
				return And{}, err
			}
			group = append(group, p)
		}
		i = j

		switch len(group) {
		case 0:
		case 1:
			where.Terms = append(where.Terms, group[0])
		default:
			where.Terms = append(where.Terms, Or{Terms: group})
		}
	}

	return where, nil
}

func (c *Compiler) compileClause(t reflect.Type, clause *filter.Clause, raw string) (Predicate, error) {
	if !clause.Operator.Valid() || clause.Field == "" {
		return nil, apierror.BadRequest(CodeInvalidFilter, nil, apierror.MsgInvalidFilterFields, raw)
	}

	path, err := c.resolve(t, clause.Field, CodeInvalidFilter, apierror.MsgInvalidFilterFields, raw)
	if err != nil {
		return nil, err
	}
	leaf := path.Leaf()
	if leaf.Kind == schema.KindEntity || leaf.Kind == schema.KindInvalid {
		return nil, apierror.BadRequest(CodeInvalidFilter, nil, apierror.MsgInvalidFilterFields, raw)
	}

	switch clause.Operator {
	case filter.OpEq, filter.OpNe:
		if clause.Value == NullValue {
			return NullCheck{Path: path, Negated: clause.Operator == filter.OpNe}, nil
		}
	case filter.OpLike:
		return Like{Path: path, Pattern: "%" + strings.ToUpper(clause.Value) + "%"}, nil
	case filter.OpIn, filter.OpNotIn:
		values, err := coerceList(clause.Value, leaf)
		if err != nil {
			return nil, apierror.BadRequest(CodeInvalidValue, err, apierror.MsgInvalidFilterFields, raw)
		}
		return Membership{Path: path, Values: values, Negated: clause.Operator == filter.OpNotIn}, nil
	case filter.OpGt, filter.OpGe, filter.OpLt, filter.OpLe:
		if leaf.Kind == schema.KindStructured {
			return nil, apierror.BadRequest(CodeInvalidFilter, nil, apierror.MsgInvalidFilterFields, raw)
		}
	}

	v, err := Coerce(clause.Value, leaf)
	if err != nil {
		return nil, apierror.BadRequest(CodeInvalidValue, err, apierror.MsgInvalidFilterFields, raw)
	}
	return Comparison{Path: path, Operator: clause.Operator, Value: v}, nil
}

func coerceList(raw string, field schema.Field) ([]Value, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")

	parts := strings.Split(raw, ",")
	values := make([]Value, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := Coerce(part, field)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, errors.New("empty value list")
	}
	return values, nil
}

func (c *Compiler) compileProjection(t reflect.Type, fields []string, plan *Plan) error {
	if len(fields) == 0 {
		return nil
	}

	plan.Mode = ModeProjection
	for _, f := range fields {
		p, err := c.resolve(t, f, CodeInvalidProjection, apierror.MsgInvalidProjection, strings.Join(fields, ","))
		if err != nil {
			return err
		}
		// a collection cannot be selected column-wise; fall back to whole
		// entities and copy the requested fields afterwards
		if p.Collection() || p.Leaf().Kind == schema.KindEntity {
			plan.Mode = ModeEntity
		}
		plan.Selection = append(plan.Selection, Term{Path: p})
	}
	return nil
}

func (c *Compiler) compileAggregates(t reflect.Type, aggs Aggregates, plan *Plan) error {
	plan.Mode = ModeAggregate
	plan.Paginate = false

	groups := []struct {
		fn    filter.AggregateFunction
		paths []string
	}{
		{filter.AggSum, aggs.Sum},
		{filter.AggCount, aggs.Count},
		{filter.AggCountDistinct, aggs.CountDistinct},
		{filter.AggAvg, aggs.Avg},
	}

	for _, g := range groups {
		for _, f := range g.paths {
			p, err := c.resolve(t, f, CodeInvalidAggregation, apierror.MsgInvalidAggregation)
			if err != nil {
				return err
			}
			leaf := p.Leaf()
			if (g.fn == filter.AggSum || g.fn == filter.AggAvg) && !leaf.Kind.Numeric() {
				return apierror.BadRequest(CodeInvalidAggregation, nil, apierror.MsgInvalidAggregation)
			}
			if leaf.Kind == schema.KindEntity {
				return apierror.BadRequest(CodeInvalidAggregation, nil, apierror.MsgInvalidAggregation)
			}
			plan.Selection = append(plan.Selection, Term{Path: p, Aggregate: g.fn})
		}
	}

	for _, f := range aggs.GroupBy {
		p, err := c.resolve(t, f, CodeInvalidAggregation, apierror.MsgInvalidAggregation)
		if err != nil {
			return err
		}
		if p.Collection() || p.Leaf().Kind == schema.KindEntity {
			return apierror.BadRequest(CodeInvalidAggregation, nil, apierror.MsgInvalidAggregation)
		}
		plan.Selection = append(plan.Selection, Term{Path: p, GroupBy: true})
		plan.GroupBy = append(plan.GroupBy, p)
	}

	if len(plan.Selection) == 0 || aggs.Empty() {
		return apierror.BadRequest(CodeInvalidAggregation, nil, apierror.MsgInvalidAggregation)
	}
	return nil
}

// resolve maps a missing field to a BadRequest with the given message and
// any other resolver failure to an InternalError.
func (c *Compiler) resolve(t reflect.Type, path, code, format string, args ...interface{}) (schema.Path, error) {
	p, err := c.resolver.Resolve(t, path)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, schema.ErrNoSuchField) {
		return schema.Path{}, apierror.BadRequest(code, err, format, args...)
	}
	return schema.Path{}, apierror.Internal(err, apierror.MsgUnexpectedQueryError, path)
}
