package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/restcore/internal/schema"
)

// NullValue is the literal that turns EQ and NE into null checks.
const NullValue = "null"

// DateTimeLayout is accepted for time fields besides epoch milliseconds.
const DateTimeLayout = "2006-01-02T15:04Z"

// Value is a filter value coerced to the kind of the field it is compared
// with. Only the member matching Kind is set.
type Value struct {
	Kind    schema.Kind
	Int     int64
	Uint    uint64
	Float   float64
	Decimal decimal.Decimal
	Text    string
	Bool    bool
	Time    time.Time
	Doc     interface{}
}

// Native returns the Go value suitable as a database argument.
func (v Value) Native() interface{} {
	switch v.Kind {
	case schema.KindInt:
		return v.Int
	case schema.KindUint:
		return v.Uint
	case schema.KindFloat:
		return v.Float
	case schema.KindDecimal:
		return v.Decimal
	case schema.KindString, schema.KindEnum:
		return v.Text
	case schema.KindBool:
		return v.Bool
	case schema.KindTime:
		return v.Time
	default:
		return v.Doc
	}
}

func (v Value) String() string {
	switch v.Kind {
	case schema.KindDecimal:
		return v.Decimal.String()
	case schema.KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case schema.KindStructured:
		b, _ := json.Marshal(v.Doc)
		return string(b)
	default:
		return fmt.Sprint(v.Native())
	}
}

// Coerce converts a raw filter value to the kind of field.
func Coerce(raw string, field schema.Field) (Value, error) {
	switch field.Kind {
	case schema.KindString:
		return Value{Kind: schema.KindString, Text: raw}, nil
	case schema.KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("invalid boolean %q", raw)
		}
		return Value{Kind: schema.KindBool, Bool: b}, nil
	case schema.KindInt:
		i, err := parseInt(raw, intBits(field.Type))
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: schema.KindInt, Int: i}, nil
	case schema.KindUint:
		u, err := parseUint(raw, intBits(field.Type))
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: schema.KindUint, Uint: u}, nil
	case schema.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", raw)
		}
		return Value{Kind: schema.KindFloat, Float: f}, nil
	case schema.KindDecimal:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Value{}, fmt.Errorf("invalid decimal %q", raw)
		}
		return Value{Kind: schema.KindDecimal, Decimal: d}, nil
	case schema.KindTime:
		t, err := parseTime(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: schema.KindTime, Time: t}, nil
	case schema.KindEnum:
		name, err := enumName(raw, field.Type)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: schema.KindEnum, Text: name}, nil
	case schema.KindStructured:
		target := reflect.New(field.Declared)
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		if err := dec.Decode(target.Interface()); err != nil {
			return Value{}, fmt.Errorf("invalid %s document %q: %w", field.Declared, raw, err)
		}
		return Value{Kind: schema.KindStructured, Doc: target.Elem().Interface()}, nil
	}
	return Value{}, fmt.Errorf("field %s of kind %s cannot be compared with a value", field.Key, field.Kind)
}

func parseTime(raw string) (time.Time, error) {
	if isInteger(raw) {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid epoch milliseconds %q", raw)
		}
		return time.UnixMilli(millis).UTC(), nil
	}
	if t, err := time.ParseInLocation(DateTimeLayout, raw, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected epoch milliseconds or %s", raw, DateTimeLayout)
}

func isInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func enumName(raw string, t reflect.Type) (string, error) {
	e, ok := reflect.Zero(t).Interface().(schema.Enum)
	if !ok {
		return "", fmt.Errorf("type %s is not an enum", t)
	}
	values := e.EnumValues()
	for _, v := range values {
		if v == raw {
			return v, nil
		}
	}
	for _, v := range values {
		if strings.EqualFold(v, raw) {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid value %q for %s, expected one of %s", raw, t.Name(), strings.Join(values, ", "))
}

// FromReflect reads a field value into a Value of the given kind. It
// returns false for nil pointers.
func FromReflect(rv reflect.Value, kind schema.Kind) (Value, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Value{}, false
		}
		rv = rv.Elem()
	}

	switch kind {
	case schema.KindString, schema.KindEnum:
		return Value{Kind: kind, Text: rv.String()}, true
	case schema.KindBool:
		return Value{Kind: kind, Bool: rv.Bool()}, true
	case schema.KindInt:
		return Value{Kind: kind, Int: rv.Int()}, true
	case schema.KindUint:
		return Value{Kind: kind, Uint: rv.Uint()}, true
	case schema.KindFloat:
		return Value{Kind: kind, Float: rv.Float()}, true
	case schema.KindDecimal:
		return Value{Kind: kind, Decimal: rv.Interface().(decimal.Decimal)}, true
	case schema.KindTime:
		return Value{Kind: kind, Time: rv.Interface().(time.Time)}, true
	}
	return Value{Kind: schema.KindStructured, Doc: rv.Interface()}, true
}

// Compare orders two values of the same kind. Structured values only
// support equality, reported as 0 or 1.
func Compare(a, b Value) (int, error) {
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("cannot compare %s with %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case schema.KindString, schema.KindEnum:
		return strings.Compare(a.Text, b.Text), nil
	case schema.KindBool:
		switch {
		case a.Bool == b.Bool:
			return 0, nil
		case !a.Bool:
			return -1, nil
		default:
			return 1, nil
		}
	case schema.KindInt:
		return cmpOrdered(a.Int, b.Int), nil
	case schema.KindUint:
		return cmpOrdered(a.Uint, b.Uint), nil
	case schema.KindFloat:
		return cmpOrdered(a.Float, b.Float), nil
	case schema.KindDecimal:
		return a.Decimal.Cmp(b.Decimal), nil
	case schema.KindTime:
		return a.Time.Compare(b.Time), nil
	case schema.KindStructured:
		if a.String() == b.String() {
			return 0, nil
		}
		return 1, nil
	}
	return 0, fmt.Errorf("kind %s is not comparable", a.Kind)
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}


// intBits is the width of an integer field, 64 when the type is unknown.
func intBits(t reflect.Type) int {
	if t == nil {
		return 64
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return t.Bits()
	}
	return 64
}

// parseInt accepts decimal and float notation. Fractions are truncated and
// anything outside the field's width is rejected.
func parseInt(raw string, bits int) (int64, error) {
	if i, err := strconv.ParseInt(raw, 10, bits); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	f = math.Trunc(f)
	limit := math.Ldexp(1, bits-1)
	if f < -limit || f >= limit {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return int64(f), nil
}

func parseUint(raw string, bits int) (uint64, error) {
	if u, err := strconv.ParseUint(raw, 10, bits); err == nil {
		return u, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid unsigned integer %q", raw)
	}
	f = math.Trunc(f)
	if f < 0 || f >= math.Ldexp(1, bits) {
		return 0, fmt.Errorf("invalid unsigned integer %q", raw)
	}
	return uint64(f), nil
}
