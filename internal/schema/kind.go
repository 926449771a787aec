// Package schema derives field metadata from entity struct types and
// resolves dotted field paths against it.
package schema

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the value category of a field, used to pick a coercion.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindBool
	KindInt
	KindUint
	KindFloat
	KindDecimal
	KindTime
	KindEnum
	KindEntity
	KindStructured
)

var kindNames = map[Kind]string{
	KindInvalid:    "invalid",
	KindString:     "string",
	KindBool:       "bool",
	KindInt:        "int",
	KindUint:       "uint",
	KindFloat:      "float",
	KindDecimal:    "decimal",
	KindTime:       "time",
	KindEnum:       "enum",
	KindEntity:     "entity",
	KindStructured: "structured",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Numeric reports whether values of this kind can be summed or averaged.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindUint || k == KindFloat || k == KindDecimal
}

// Enum is implemented by string-based types with a closed set of values.
type Enum interface {
	EnumValues() []string
}

var (
	enumType       = reflect.TypeOf((*Enum)(nil)).Elem()
	timeType       = reflect.TypeOf(time.Time{})
	decimalType    = reflect.TypeOf(decimal.Decimal{})
	rawMessageType = reflect.TypeOf(json.RawMessage{})
	byteSliceType  = reflect.TypeOf([]byte(nil))
)

// KindOf classifies t, looking through pointers.
func KindOf(t reflect.Type) Kind {
	t = indirect(t)
	switch {
	case t.Implements(enumType) && t.Kind() == reflect.String:
		return KindEnum
	case t == timeType:
		return KindTime
	case t == decimalType:
		return KindDecimal
	case t == rawMessageType || t == byteSliceType:
		return KindStructured
	}

	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Struct:
		return KindEntity
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Interface:
		return KindStructured
	}
	return KindInvalid
}

// collectionElem returns the element type of a slice of entities.
func collectionElem(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Slice {
		return nil, false
	}
	elem := indirect(t.Elem())
	if elem.Kind() == reflect.Struct && elem != timeType && elem != decimalType {
		return elem, true
	}
	return nil, false
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
