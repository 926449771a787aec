package mapper

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/restcore/internal/schema"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// project sets value at the end of steps below root, a pointer to the
// entity. Intermediate objects are built detached from the innermost
// step's parent outwards, then grafted level by level; an intermediate
// that already exists on the entity, left by an earlier term sharing the
// prefix, is kept and extended instead of replaced.
func project(root reflect.Value, steps []schema.Field, value interface{}) error {
	leaf := steps[len(steps)-1]
	if len(steps) == 1 {
		return assign(root.Elem().FieldByIndex(leaf.Index), value)
	}

	parents := steps[:len(steps)-1]
	chain := make([]reflect.Value, len(parents))
	for i := len(parents) - 1; i >= 0; i-- {
		chain[i] = reflect.New(parents[i].Type)
	}
	if err := assign(chain[len(chain)-1].Elem().FieldByIndex(leaf.Index), value); err != nil {
		return err
	}

	parent := root
	for i, step := range parents {
		field := parent.Elem().FieldByIndex(step.Index)
		if existing, ok := existingObject(field, step); ok {
			parent = existing
			continue
		}
		parent = graft(field, step, chain[i])
	}

	// parent is either the grafted chain end, already holding the value,
	// or a reused object that still needs it
	return assign(parent.Elem().FieldByIndex(leaf.Index), value)
}

// existingObject returns a pointer to the object already held by field.
// Collections never reuse an element.
func existingObject(field reflect.Value, step schema.Field) (reflect.Value, bool) {
	if step.Collection {
		return reflect.Value{}, false
	}
	switch field.Kind() {
	case reflect.Pointer:
		if field.IsNil() {
			return reflect.Value{}, false
		}
		return field, true
	case reflect.Struct:
		if field.IsZero() {
			return reflect.Value{}, false
		}
		return field.Addr(), true
	}
	return reflect.Value{}, false
}

// graft attaches obj, a pointer to a new intermediate, to field and
// returns the pointer through which it is reachable from the entity.
func graft(field reflect.Value, step schema.Field, obj reflect.Value) reflect.Value {
	if step.Collection {
		elemType := field.Type().Elem()
		elem := obj
		if elemType.Kind() != reflect.Pointer {
			elem = obj.Elem()
		}
		field.Set(reflect.Append(field, elem))
		last := field.Index(field.Len() - 1)
		if last.Kind() == reflect.Pointer {
			return last
		}
		return last.Addr()
	}

	if field.Kind() == reflect.Pointer {
		field.Set(obj)
		return obj
	}
	field.Set(obj.Elem())
	return field.Addr()
}

// Assign stores value into dst converting between the representations
// engines produce and the declared field type. A nil value zeroes dst.
func Assign(dst reflect.Value, value interface{}) error {
	return assign(dst, value)
}

func assign(dst reflect.Value, value interface{}) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	if dst.Kind() == reflect.Pointer {
		if src := reflect.ValueOf(value); src.Type().AssignableTo(dst.Type()) {
			dst.Set(src)
			return nil
		}
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.ValueOf(value)
	for src.Kind() == reflect.Pointer {
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		src = src.Elem()
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	switch dst.Type() {
	case decimalType:
		d, err := toDecimal(src.Interface())
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(d))
		return nil
	case timeType:
		return fmt.Errorf("cannot assign %T to a time field", value)
	}

	if d, ok := src.Interface().(decimal.Decimal); ok {
		switch dst.Kind() {
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(d.InexactFloat64())
			return nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			dst.SetInt(d.IntPart())
			return nil
		}
	}

	switch {
	case isNumber(dst.Kind()) && isNumber(src.Kind()):
		dst.Set(src.Convert(dst.Type()))
		return nil
	case dst.Kind() == reflect.String && src.Kind() == reflect.String:
		dst.SetString(src.String())
		return nil
	case dst.Kind() == reflect.Bool && src.Kind() == reflect.Bool:
		dst.SetBool(src.Bool())
		return nil
	case isNumber(dst.Kind()) && src.Kind() == reflect.String:
		f, err := strconv.ParseFloat(src.String(), 64)
		if err != nil {
			return fmt.Errorf("cannot assign %q to %s: %w", src.String(), dst.Type(), err)
		}
		dst.Set(reflect.ValueOf(f).Convert(dst.Type()))
		return nil
	}

	if schema.KindOf(dst.Type()) == schema.KindStructured || dst.Kind() == reflect.Struct {
		return assignDocument(dst, src.Interface())
	}
	return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
}

// assignDocument decodes JSON text, or re-encodes a generic value, into
// dst.
func assignDocument(dst reflect.Value, value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = b
	}
	target := reflect.New(dst.Type())
	if err := json.Unmarshal(raw, target.Interface()); err != nil {
		return fmt.Errorf("cannot decode document into %s: %w", dst.Type(), err)
	}
	dst.Set(target.Elem())
	return nil
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case string:
		return decimal.NewFromString(n)
	case []byte:
		return decimal.NewFromString(string(n))
	case json.Number:
		return decimal.NewFromString(n.String())
	}
	return decimal.Decimal{}, fmt.Errorf("cannot convert %T to decimal", v)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
