package database

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/engine"
	"github.com/fluxbase-eu/restcore/internal/mapper"
	"github.com/fluxbase-eu/restcore/internal/observability"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// Engine runs compiled plans and record operations against PostgreSQL.
type Engine struct {
	db       Executor
	resolver schema.FieldPathResolver
}

var _ engine.Engine = (*Engine)(nil)

// NewEngine creates an Engine executing through db.
func NewEngine(db Executor, resolver schema.FieldPathResolver) *Engine {
	return &Engine{db: db, resolver: resolver}
}

// Execute renders plan, runs it and returns entity rows in entity mode and
// value rows otherwise. A single selected term yields scalar rows.
func (e *Engine) Execute(ctx context.Context, plan *query.Plan) (rows []mapper.Row, err error) {
	ctx, span := observability.StartDBSpan(ctx, "select", plan.Entity.Table)
	defer func() { observability.EndSpan(span, err) }()

	sql, args, err := NewQueryBuilder(e.resolver, plan).BuildSelect()
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("table", plan.Entity.Table).
		Str("mode", plan.Mode.String()).
		Str("sql", sql).
		Int("args", len(args)).
		Msg("Executing query plan")

	result, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, plan.Filter)
	}
	defer result.Close()

	for result.Next() {
		values, err := result.Values()
		if err != nil {
			return nil, classify(err, plan.Filter)
		}

		row, err := e.toRow(plan, values)
		if err != nil {
			return nil, classify(err, plan.Filter)
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, classify(err, plan.Filter)
	}

	return rows, nil
}

func (e *Engine) toRow(plan *query.Plan, values []interface{}) (mapper.Row, error) {
	if plan.Mode == query.ModeEntity {
		record, err := e.populate(plan.Entity, values)
		if err != nil {
			return nil, err
		}
		return mapper.EntityRow{Entity: record.Interface()}, nil
	}

	if err := normalizeValues(values); err != nil {
		return nil, err
	}
	if len(values) == 1 {
		return mapper.ScalarRow{Value: values[0]}, nil
	}
	return mapper.ValuesRow(values), nil
}

// Count returns the number of rows matching plan.Where.
func (e *Engine) Count(ctx context.Context, plan *query.Plan) (total int64, err error) {
	ctx, span := observability.StartDBSpan(ctx, "count", plan.Entity.Table)
	defer func() { observability.EndSpan(span, err) }()

	sql, args, err := NewQueryBuilder(e.resolver, plan).BuildCount()
	if err != nil {
		return 0, err
	}

	if err := e.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, classify(err, plan.Filter)
	}
	return total, nil
}

// Insert stores record and writes the generated primary key back.
func (e *Engine) Insert(ctx context.Context, ent *schema.Entity, record reflect.Value) (err error) {
	ctx, span := observability.StartDBSpan(ctx, "insert", ent.Table)
	defer func() { observability.EndSpan(span, err) }()

	columns, values, err := e.columnValues(ent, record)
	if err != nil {
		return err
	}
	pk, err := primaryKey(ent, record)
	if err != nil {
		return err
	}

	sql, args := BuildInsert(ent, columns, values)
	var id int64
	if err := e.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return classify(err, "")
	}
	pk.SetInt(id)

	log.Debug().Str("table", ent.Table).Int64("id", id).Msg("Inserted record")
	return nil
}

// Update overwrites the stored columns of the record with record's key.
func (e *Engine) Update(ctx context.Context, ent *schema.Entity, record reflect.Value) (err error) {
	ctx, span := observability.StartDBSpan(ctx, "update", ent.Table)
	defer func() { observability.EndSpan(span, err) }()

	columns, values, err := e.columnValues(ent, record)
	if err != nil {
		return err
	}
	pk, err := primaryKey(ent, record)
	if err != nil {
		return err
	}

	sql, args := BuildUpdate(ent, columns, values, pk.Int())
	tag, err := e.db.Exec(ctx, sql, args...)
	if err != nil {
		return classify(err, "")
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNoRows
	}
	return nil
}

// FindBy returns the first record whose column equals value.
func (e *Engine) FindBy(ctx context.Context, ent *schema.Entity, column string, value interface{}) (record reflect.Value, err error) {
	ctx, span := observability.StartDBSpan(ctx, "select", ent.Table)
	defer func() { observability.EndSpan(span, err) }()

	sql, args := BuildFindBy(ent, column, value)
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return reflect.Value{}, classify(err, "")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return reflect.Value{}, classify(err, "")
		}
		return reflect.Value{}, engine.ErrNoRows
	}
	values, err := rows.Values()
	if err != nil {
		return reflect.Value{}, classify(err, "")
	}
	record, err = e.populate(ent, values)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("scan %s: %w", ent.Table, err)
	}
	return record, nil
}

// Delete removes the record with the given key.
func (e *Engine) Delete(ctx context.Context, ent *schema.Entity, id int64) (err error) {
	ctx, span := observability.StartDBSpan(ctx, "delete", ent.Table)
	defer func() { observability.EndSpan(span, err) }()

	sql, args := BuildDelete(ent, id)
	tag, err := e.db.Exec(ctx, sql, args...)
	if err != nil {
		return classify(err, "")
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNoRows
	}
	return nil
}

// InTx runs fn with an Engine bound to a transaction on conn, committing
// when fn returns nil.
func InTx(ctx context.Context, conn *Connection, resolver schema.FieldPathResolver, fn func(*Engine) error) error {
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewEngine(txExecutor{tx}, resolver)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txExecutor adapts a pgx.Tx to Executor.
type txExecutor struct {
	pgx.Tx
}

func (t txExecutor) Health(ctx context.Context) error {
	var one int
	return t.QueryRow(ctx, "SELECT 1").Scan(&one)
}
