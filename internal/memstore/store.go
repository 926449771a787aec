// Package memstore is an in-memory engine. It evaluates compiled plans
// directly against stored Go values and backs the test suites and the CLI
// demo.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/engine"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/mapper"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// Store holds records per entity type, in insertion order.
type Store struct {
	mu     sync.RWMutex
	tables map[reflect.Type]*table
}

type table struct {
	records []reflect.Value
	nextID  int64
}

var _ engine.Engine = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{tables: make(map[reflect.Type]*table)}
}

func (s *Store) table(t reflect.Type) *table {
	tbl, ok := s.tables[t]
	if !ok {
		tbl = &table{}
		s.tables[t] = tbl
	}
	return tbl
}

// Execute evaluates plan over the stored records of plan.Entity.
func (s *Store) Execute(ctx context.Context, plan *query.Plan) ([]mapper.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.matching(plan)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("table", plan.Entity.Table).
		Str("mode", plan.Mode.String()).
		Int("matched", len(matched)).
		Msg("Evaluating query plan in memory")

	if plan.Aggregated() {
		rows, err := aggregate(plan, matched)
		if err != nil {
			return nil, err
		}
		return rows, nil
	}

	if err := order(plan.OrderBy, matched); err != nil {
		return nil, err
	}
	if plan.Paginate {
		matched = page(matched, plan.Offset, plan.Limit)
	}

	rows := make([]mapper.Row, 0, len(matched))
	for _, rec := range matched {
		rows = append(rows, toRow(plan, rec))
	}
	return rows, nil
}

func toRow(plan *query.Plan, rec reflect.Value) mapper.Row {
	if plan.Mode == query.ModeEntity {
		return mapper.EntityRow{Entity: clone(rec).Interface()}
	}

	values := make([]interface{}, len(plan.Selection))
	for i, term := range plan.Selection {
		if sl := first(rec.Elem(), term.Path.Steps); !sl.null {
			values[i] = sl.value.Native()
		}
	}
	if len(values) == 1 {
		return mapper.ScalarRow{Value: values[0]}
	}
	return mapper.ValuesRow(values)
}

// Count returns the number of records matching plan.Where.
func (s *Store) Count(ctx context.Context, plan *query.Plan) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.matching(plan)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// matching returns the records satisfying plan.Where. The slice is fresh;
// the records are shared.
func (s *Store) matching(plan *query.Plan) ([]reflect.Value, error) {
	tbl, ok := s.tables[plan.Entity.Type]
	if !ok {
		return nil, nil
	}

	ev := newEvaluator()
	var matched []reflect.Value
	for _, rec := range tbl.records {
		ok, err := ev.match(rec.Elem(), plan.Where)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", plan.Entity.Table, err)
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// order sorts records by the plan orderings. Nulls sort last ascending and
// first descending.
func order(orderings []query.Ordering, records []reflect.Value) error {
	if len(orderings) == 0 {
		return nil
	}

	var sortErr error
	slices.SortStableFunc(records, func(a, b reflect.Value) int {
		for _, o := range orderings {
			c, err := compareSlots(first(a.Elem(), o.Path.Steps), first(b.Elem(), o.Path.Steps))
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if c == 0 {
				continue
			}
			if o.Order == filter.SortDesc {
				return -c
			}
			return c
		}
		return 0
	})
	return sortErr
}

func compareSlots(a, b slot) (int, error) {
	switch {
	case a.null && b.null:
		return 0, nil
	case a.null:
		return 1, nil
	case b.null:
		return -1, nil
	}
	return query.Compare(a.value, b.value)
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Insert stores a copy of record under the next key and writes the key
// back.
func (s *Store) Insert(ctx context.Context, ent *schema.Entity, record reflect.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pk, err := primaryKey(ent, record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.table(ent.Type)
	tbl.nextID++
	pk.SetInt(tbl.nextID)
	tbl.records = append(tbl.records, clone(record))
	return nil
}

// Update replaces the stored record with the same key.
func (s *Store) Update(ctx context.Context, ent *schema.Entity, record reflect.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pk, err := primaryKey(ent, record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.table(ent.Type)
	i, ok := tbl.indexOf(ent, pk.Int())
	if !ok {
		return engine.ErrNoRows
	}
	tbl.records[i] = clone(record)
	return nil
}

// FindBy returns a copy of the first record whose column equals value.
func (s *Store) FindBy(ctx context.Context, ent *schema.Entity, column string, value interface{}) (reflect.Value, error) {
	if err := ctx.Err(); err != nil {
		return reflect.Value{}, err
	}

	var field schema.Field
	found := false
	for _, f := range ent.Columns() {
		if f.Column == column {
			field, found = f, true
			break
		}
	}
	if !found {
		return reflect.Value{}, fmt.Errorf("%s has no column %s", ent.Table, column)
	}
	want, ok := query.FromReflect(reflect.ValueOf(value), field.Kind)
	if !ok {
		return reflect.Value{}, engine.ErrNoRows
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.tables[ent.Type]
	if !ok {
		return reflect.Value{}, engine.ErrNoRows
	}
	for _, rec := range tbl.records {
		got, ok := query.FromReflect(rec.Elem().FieldByIndex(field.Index), field.Kind)
		if !ok {
			continue
		}
		if c, err := query.Compare(got, want); err == nil && c == 0 {
			return clone(rec), nil
		}
	}
	return reflect.Value{}, engine.ErrNoRows
}

// Delete removes the record with the given key.
func (s *Store) Delete(ctx context.Context, ent *schema.Entity, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.table(ent.Type)
	i, ok := tbl.indexOf(ent, id)
	if !ok {
		return engine.ErrNoRows
	}
	tbl.records = slices.Delete(tbl.records, i, i+1)
	return nil
}

// Len returns the number of records stored for t.
func (s *Store) Len(t reflect.Type) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tbl, ok := s.tables[t]; ok {
		return len(tbl.records)
	}
	return 0
}

func (t *table) indexOf(ent *schema.Entity, id int64) (int, bool) {
	for i, rec := range t.records {
		pk, err := primaryKey(ent, rec)
		if err == nil && pk.Int() == id {
			return i, true
		}
	}
	return -1, false
}

func primaryKey(ent *schema.Entity, record reflect.Value) (reflect.Value, error) {
	f, ok := ent.Field(ent.PrimaryKey)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%s has no primary key field %s", ent.Table, ent.PrimaryKey)
	}
	if record.Kind() != reflect.Pointer || record.IsNil() {
		return reflect.Value{}, fmt.Errorf("%s record must be a non-nil pointer", ent.Table)
	}
	return record.Elem().FieldByIndex(f.Index), nil
}

// clone returns a pointer to a shallow copy of the struct rec points to.
func clone(rec reflect.Value) reflect.Value {
	cp := reflect.New(rec.Type().Elem())
	cp.Elem().Set(rec.Elem())
	return cp
}
