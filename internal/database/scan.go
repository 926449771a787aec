package database

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/restcore/internal/mapper"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// normalizeValue converts driver values without a direct Go counterpart.
// Numerics become decimals so aggregates keep their precision.
func normalizeValue(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case pgtype.Numeric:
		if !n.Valid {
			return nil, nil
		}
		raw, err := n.Value()
		if err != nil {
			return nil, err
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected numeric representation %T", raw)
		}
		return decimal.NewFromString(s)
	}
	return v, nil
}

// normalizeValues applies normalizeValue to every element in place.
func normalizeValues(values []interface{}) error {
	for i, v := range values {
		n, err := normalizeValue(v)
		if err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
		values[i] = n
	}
	return nil
}

// populate builds a new entity from the values of ent.Columns(), in
// order. Reference columns hold the referenced key, which is set on a
// freshly allocated nested entity.
func (e *Engine) populate(ent *schema.Entity, values []interface{}) (reflect.Value, error) {
	cols := ent.Columns()
	if len(values) != len(cols) {
		return reflect.Value{}, fmt.Errorf("row has %d values for %d columns of %s", len(values), len(cols), ent.Table)
	}

	record := reflect.New(ent.Type)
	for i, f := range cols {
		v, err := normalizeValue(values[i])
		if err != nil {
			return reflect.Value{}, fmt.Errorf("column %s: %w", f.Column, err)
		}
		dst := record.Elem().FieldByIndex(f.Index)

		if f.Kind == schema.KindEntity {
			if v == nil {
				continue
			}
			if err := e.setReference(dst, f, v); err != nil {
				return reflect.Value{}, err
			}
			continue
		}

		if err := mapper.Assign(dst, v); err != nil {
			return reflect.Value{}, fmt.Errorf("column %s: %w", f.Column, err)
		}
	}
	return record, nil
}

func (e *Engine) setReference(dst reflect.Value, f schema.Field, key interface{}) error {
	target, err := e.resolver.Entity(f.Type)
	if err != nil {
		return err
	}
	refField, ok := referencedField(target, f.Ref)
	if !ok {
		return fmt.Errorf("%s has no column %s referenced by %s", target.Table, f.Ref, f.Key)
	}

	nested := reflect.New(f.Type)
	if err := mapper.Assign(nested.Elem().FieldByIndex(refField.Index), key); err != nil {
		return fmt.Errorf("column %s: %w", f.Column, err)
	}
	if dst.Kind() == reflect.Pointer {
		dst.Set(nested)
	} else {
		dst.Set(nested.Elem())
	}
	return nil
}

func referencedField(ent *schema.Entity, column string) (schema.Field, bool) {
	for _, f := range ent.Columns() {
		if f.Column == column {
			return f, true
		}
	}
	return schema.Field{}, false
}

// columnValues reads the stored columns of record, skipping the primary
// key. A nil pointer or an unset reference is written as NULL.
func (e *Engine) columnValues(ent *schema.Entity, record reflect.Value) ([]string, []interface{}, error) {
	record = reflect.Indirect(record)

	var (
		columns []string
		values  []interface{}
	)
	for _, f := range ent.Columns() {
		if f.Column == ent.PrimaryKey {
			continue
		}
		fv := record.FieldByIndex(f.Index)

		var v interface{}
		if f.Kind == schema.KindEntity {
			key, err := e.referenceKey(f, fv)
			if err != nil {
				return nil, nil, err
			}
			v = key
		} else if !(fv.Kind() == reflect.Pointer && fv.IsNil()) {
			v = fv.Interface()
		}

		columns = append(columns, f.Column)
		values = append(values, v)
	}
	return columns, values, nil
}

func (e *Engine) referenceKey(f schema.Field, fv reflect.Value) (interface{}, error) {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}
	target, err := e.resolver.Entity(f.Type)
	if err != nil {
		return nil, err
	}
	refField, ok := referencedField(target, f.Ref)
	if !ok {
		return nil, fmt.Errorf("%s has no column %s referenced by %s", target.Table, f.Ref, f.Key)
	}
	key := fv.FieldByIndex(refField.Index)
	if key.IsZero() {
		return nil, nil
	}
	return key.Interface(), nil
}

// primaryKey returns the settable primary key field of record.
func primaryKey(ent *schema.Entity, record reflect.Value) (reflect.Value, error) {
	f, ok := ent.Field(ent.PrimaryKey)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%s has no primary key field %s", ent.Table, ent.PrimaryKey)
	}
	return reflect.Indirect(record).FieldByIndex(f.Index), nil
}
