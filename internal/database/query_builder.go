package database

import (
	"fmt"
	"strings"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// CodeMalformedQuery marks plans that resolve but cannot be rendered, such
// as a filter on a field without a column.
const CodeMalformedQuery = "MALFORMED_QUERY"

// rootAlias is the alias of the plan's own table.
const rootAlias = "t"

// quoteIdentifier safely quotes a PostgreSQL identifier to prevent SQL injection.
// It wraps the identifier in double quotes and escapes any embedded double quotes.
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

var comparisonOperators = map[filter.Operator]string{
	filter.OpEq: "=",
	filter.OpNe: "<>",
	filter.OpGt: ">",
	filter.OpGe: ">=",
	filter.OpLt: "<",
	filter.OpLe: "<=",
}

// QueryBuilder renders a compiled plan as a PostgreSQL statement with
// positional ($n) arguments. Nested single-valued paths become LEFT JOINs
// aliased by path; predicates that cross a collection become correlated
// EXISTS subqueries so entity rows are never duplicated.
type QueryBuilder struct {
	resolver   schema.FieldPathResolver
	plan       *query.Plan
	args       []interface{}
	subqueries int
}

// NewQueryBuilder creates a QueryBuilder for plan.
func NewQueryBuilder(resolver schema.FieldPathResolver, plan *query.Plan) *QueryBuilder {
	return &QueryBuilder{resolver: resolver, plan: plan}
}

// scope tracks the joins hanging off one FROM item.
type scope struct {
	alias  string
	entity *schema.Entity
	joins  []string
	seen   map[string]bool
}

func newScope(alias string, ent *schema.Entity) *scope {
	return &scope{alias: alias, entity: ent, seen: make(map[string]bool)}
}

func (s *scope) from() string {
	clause := fmt.Sprintf("%s AS %s", quoteIdentifier(s.entity.Table), quoteIdentifier(s.alias))
	if len(s.joins) > 0 {
		clause += " " + strings.Join(s.joins, " ")
	}
	return clause
}

// BuildSelect builds the SELECT statement for the plan's mode and returns
// the SQL string and arguments.
func (qb *QueryBuilder) BuildSelect() (string, []interface{}, error) {
	qb.args, qb.subqueries = nil, 0
	root := newScope(rootAlias, qb.plan.Entity)

	columns, err := qb.selectList(root)
	if err != nil {
		return "", nil, err
	}

	where, err := qb.predicate(root, qb.plan.Where)
	if err != nil {
		return "", nil, err
	}

	var groupBy []string
	for _, p := range qb.plan.GroupBy {
		col, err := qb.column(root, p)
		if err != nil {
			return "", nil, err
		}
		groupBy = append(groupBy, col)
	}

	var orderBy []string
	for _, o := range qb.plan.OrderBy {
		col, err := qb.column(root, o.Path)
		if err != nil {
			return "", nil, err
		}
		orderBy = append(orderBy, col+" "+string(o.Order))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), root.from())
	if where != "" {
		sql += " WHERE " + where
	}
	if len(groupBy) > 0 {
		sql += " GROUP BY " + strings.Join(groupBy, ", ")
	}
	if len(orderBy) > 0 {
		sql += " ORDER BY " + strings.Join(orderBy, ", ")
	}
	if qb.plan.Paginate {
		sql += fmt.Sprintf(" LIMIT %d OFFSET %d", qb.plan.Limit, qb.plan.Offset)
	}

	return sql, qb.args, nil
}

// BuildCount builds a COUNT(*) over the plan's filter and returns the SQL
// string and arguments.
func (qb *QueryBuilder) BuildCount() (string, []interface{}, error) {
	qb.args, qb.subqueries = nil, 0
	root := newScope(rootAlias, qb.plan.Entity)

	where, err := qb.predicate(root, qb.plan.Where)
	if err != nil {
		return "", nil, err
	}

	sql := "SELECT COUNT(*) FROM " + root.from()
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, qb.args, nil
}

func (qb *QueryBuilder) selectList(root *scope) ([]string, error) {
	if qb.plan.Mode == query.ModeEntity {
		var columns []string
		for _, f := range qb.plan.Entity.Columns() {
			columns = append(columns, quoteIdentifier(rootAlias)+"."+quoteIdentifier(f.Column))
		}
		return columns, nil
	}

	columns := make([]string, 0, len(qb.plan.Selection))
	for _, term := range qb.plan.Selection {
		col, err := qb.column(root, term.Path)
		if err != nil {
			return nil, err
		}
		switch term.Aggregate {
		case filter.AggSum:
			col = "SUM(" + col + ")"
		case filter.AggAvg:
			col = "AVG(" + col + ")"
		case filter.AggCount:
			col = "COUNT(" + col + ")"
		case filter.AggCountDistinct:
			col = "COUNT(DISTINCT " + col + ")"
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (qb *QueryBuilder) arg(v interface{}) string {
	qb.args = append(qb.args, v)
	return fmt.Sprintf("$%d", len(qb.args))
}

// predicate renders p. An empty And renders as "".
func (qb *QueryBuilder) predicate(sc *scope, p query.Predicate) (string, error) {
	switch p := p.(type) {
	case query.And:
		parts := make([]string, 0, len(p.Terms))
		for _, term := range p.Terms {
			part, err := qb.predicate(sc, term)
			if err != nil {
				return "", err
			}
			if part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, " AND "), nil

	case query.Or:
		parts := make([]string, 0, len(p.Terms))
		for _, term := range p.Terms {
			part, err := qb.predicate(sc, term)
			if err != nil {
				return "", err
			}
			if part == "" {
				part = "TRUE"
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil

	case query.Comparison:
		op, ok := comparisonOperators[p.Operator]
		if !ok {
			return "", qb.malformed(fmt.Errorf("operator %s is not a comparison", p.Operator))
		}
		return qb.condition(sc, p.Path.Steps, func(col string) string {
			return fmt.Sprintf("%s %s %s", col, op, qb.arg(p.Value.Native()))
		})

	case query.NullCheck:
		return qb.condition(sc, p.Path.Steps, func(col string) string {
			if p.Negated {
				return col + " IS NOT NULL"
			}
			return col + " IS NULL"
		})

	case query.Like:
		return qb.condition(sc, p.Path.Steps, func(col string) string {
			return fmt.Sprintf("UPPER(%s::text) LIKE %s", col, qb.arg(p.Pattern))
		})

	case query.Membership:
		return qb.condition(sc, p.Path.Steps, func(col string) string {
			placeholders := make([]string, len(p.Values))
			for i, v := range p.Values {
				placeholders[i] = qb.arg(v.Native())
			}
			op := "IN"
			if p.Negated {
				op = "NOT IN"
			}
			return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", "))
		})
	}
	return "", qb.malformed(fmt.Errorf("unsupported predicate %T", p))
}

// condition renders cond against the column at steps. The first collection
// step moves the rest of the path into an EXISTS subquery correlated on
// the collection's foreign key.
func (qb *QueryBuilder) condition(sc *scope, steps []schema.Field, cond func(col string) string) (string, error) {
	for k, step := range steps[:len(steps)-1] {
		if !step.Collection {
			continue
		}
		if step.FK == "" {
			return "", qb.malformed(fmt.Errorf("collection %s has no foreign key", step.Key))
		}
		parentAlias, parent, err := qb.join(sc, steps[:k])
		if err != nil {
			return "", err
		}
		child, err := qb.resolver.Entity(step.Type)
		if err != nil {
			return "", apierror.Internal(err, apierror.MsgUnexpectedQueryError, qb.plan.Filter)
		}

		qb.subqueries++
		sub := newScope(fmt.Sprintf("s%d", qb.subqueries), child)
		inner, err := qb.condition(sub, steps[k+1:], cond)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s.%s AND %s)",
			sub.from(),
			quoteIdentifier(sub.alias), quoteIdentifier(step.FK),
			quoteIdentifier(parentAlias), quoteIdentifier(parent.PrimaryKey),
			inner), nil
	}

	col, err := qb.leafColumn(sc, steps)
	if err != nil {
		return "", err
	}
	return cond(col), nil
}

func (qb *QueryBuilder) column(sc *scope, p schema.Path) (string, error) {
	return qb.leafColumn(sc, p.Steps)
}

func (qb *QueryBuilder) leafColumn(sc *scope, steps []schema.Field) (string, error) {
	leaf := steps[len(steps)-1]
	if !leaf.Stored {
		return "", qb.malformed(fmt.Errorf("field %s has no column", leaf.Key))
	}
	alias, _, err := qb.join(sc, steps[:len(steps)-1])
	if err != nil {
		return "", err
	}
	return quoteIdentifier(alias) + "." + quoteIdentifier(leaf.Column), nil
}

// join adds one LEFT JOIN per step not yet joined in sc and returns the
// alias and entity of the last step's table. Collections join on the
// child's foreign key, references on the parent's column.
func (qb *QueryBuilder) join(sc *scope, steps []schema.Field) (string, *schema.Entity, error) {
	alias, ent := sc.alias, sc.entity
	prefix := sc.alias
	for _, step := range steps {
		prefix += "_" + step.Key
		target, err := qb.resolver.Entity(step.Type)
		if err != nil {
			return "", nil, apierror.Internal(err, apierror.MsgUnexpectedQueryError, qb.plan.Filter)
		}

		if !sc.seen[prefix] {
			var on string
			switch {
			case step.Collection && step.FK != "":
				on = fmt.Sprintf("%s.%s = %s.%s",
					quoteIdentifier(prefix), quoteIdentifier(step.FK),
					quoteIdentifier(alias), quoteIdentifier(ent.PrimaryKey))
			case !step.Collection && step.Ref != "" && step.Column != "":
				on = fmt.Sprintf("%s.%s = %s.%s",
					quoteIdentifier(prefix), quoteIdentifier(step.Ref),
					quoteIdentifier(alias), quoteIdentifier(step.Column))
			default:
				return "", nil, qb.malformed(fmt.Errorf("field %s cannot be joined", step.Key))
			}
			sc.joins = append(sc.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s",
				quoteIdentifier(target.Table), quoteIdentifier(prefix), on))
			sc.seen[prefix] = true
		}
		alias, ent = prefix, target
	}
	return alias, ent, nil
}

func (qb *QueryBuilder) malformed(err error) error {
	return apierror.BadRequest(CodeMalformedQuery, err, apierror.MsgMalformedRequest, qb.plan.Filter)
}

// BuildInsert builds an INSERT for the given columns returning the primary
// key.
func BuildInsert(ent *schema.Entity, columns []string, values []interface{}) (string, []interface{}) {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdentifier(ent.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		quoteIdentifier(ent.PrimaryKey))
	return sql, values
}

// BuildUpdate builds an UPDATE of the given columns for one primary key.
func BuildUpdate(ent *schema.Entity, columns []string, values []interface{}, id int64) (string, []interface{}) {
	setClauses := make([]string, len(columns))
	for i, col := range columns {
		setClauses[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(col), i+1)
	}

	args := append(append([]interface{}{}, values...), id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		quoteIdentifier(ent.Table),
		strings.Join(setClauses, ", "),
		quoteIdentifier(ent.PrimaryKey),
		len(args))
	return sql, args
}

// BuildDelete builds a DELETE for one primary key.
func BuildDelete(ent *schema.Entity, id int64) (string, []interface{}) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		quoteIdentifier(ent.Table),
		quoteIdentifier(ent.PrimaryKey))
	return sql, []interface{}{id}
}

// BuildFindBy builds a single row SELECT of all stored columns matching
// column = value.
func BuildFindBy(ent *schema.Entity, column string, value interface{}) (string, []interface{}) {
	columns := make([]string, 0, len(ent.Fields))
	for _, f := range ent.Columns() {
		columns = append(columns, quoteIdentifier(rootAlias)+"."+quoteIdentifier(f.Column))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s AS %s WHERE %s.%s = $1 LIMIT 1",
		strings.Join(columns, ", "),
		quoteIdentifier(ent.Table),
		quoteIdentifier(rootAlias),
		quoteIdentifier(rootAlias),
		quoteIdentifier(column))
	return sql, []interface{}{value}
}
