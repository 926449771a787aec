package schema

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// Tabler lets an entity override its table name.
type Tabler interface {
	TableName() string
}

// Field describes one exported field of an entity, including fields
// promoted from embedded structs.
//
// Struct tags:
//
//	json:"name"      path segment name (falls back to the Go field name)
//	db:"column"      column name, "-" excludes the field from storage; a
//	                 struct field with a column and no ref is a JSON document
//	ref:"id"         nested entity joined on its "id" column via this column
//	fk:"user_id"     collection joined on the child's "user_id" column
type Field struct {
	Name       string
	Key        string
	Column     string
	Index      []int
	Declared   reflect.Type
	Type       reflect.Type
	Kind       Kind
	Collection bool
	Ref        string
	FK         string
	Stored     bool
}

// Entity is the derived metadata of a struct type.
type Entity struct {
	Type       reflect.Type
	Table      string
	PrimaryKey string
	Fields     []Field

	byKey map[string]int
}

// Field looks up a field by path segment, ignoring case.
func (e *Entity) Field(key string) (Field, bool) {
	i, ok := e.byKey[strings.ToLower(key)]
	if !ok {
		return Field{}, false
	}
	return e.Fields[i], true
}

// Columns returns the stored scalar fields in declaration order.
func (e *Entity) Columns() []Field {
	cols := make([]Field, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Stored {
			cols = append(cols, f)
		}
	}
	return cols
}

// Describe derives entity metadata from a struct type.
func Describe(t reflect.Type) (*Entity, error) {
	t = indirect(t)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity type %s is not a struct", t)
	}

	e := &Entity{
		Type:       t,
		Table:      tableName(t),
		PrimaryKey: "id",
		byKey:      make(map[string]int),
	}

	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}

		f := Field{
			Name:     sf.Name,
			Key:      jsonName(sf),
			Index:    sf.Index,
			Declared: sf.Type,
			Type:     indirect(sf.Type),
			Ref:      sf.Tag.Get("ref"),
			FK:       sf.Tag.Get("fk"),
		}
		if elem, ok := collectionElem(sf.Type); ok {
			f.Type = elem
			f.Collection = true
			f.Kind = KindEntity
		} else {
			f.Kind = KindOf(sf.Type)
		}

		column := sf.Tag.Get("db")
		if f.Kind == KindEntity && !f.Collection && f.Ref == "" && column != "" && column != "-" {
			// a struct stored in its own column is a document, not a relation
			f.Kind = KindStructured
		}
		switch {
		case column == "-":
		case f.Collection:
		case f.Kind == KindEntity && f.Ref == "":
			// nested value without a join column is not stored
		default:
			if column == "" {
				column = snakeCase(sf.Name)
			}
			f.Column = column
			f.Stored = true
		}

		if _, dup := e.byKey[strings.ToLower(f.Key)]; dup {
			continue
		}
		e.byKey[strings.ToLower(f.Key)] = len(e.Fields)
		e.Fields = append(e.Fields, f)
	}

	return e, nil
}

func tableName(t reflect.Type) string {
	if tabler, ok := reflect.New(t).Interface().(Tabler); ok {
		return tabler.TableName()
	}
	return snakeCase(t.Name()) + "s"
}

func jsonName(sf reflect.StructField) string {
	if tag := sf.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return sf.Name
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
