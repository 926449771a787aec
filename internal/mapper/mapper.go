package mapper

import (
	"fmt"
	"reflect"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// Mapper turns engine rows into entities. It is stateless apart from the
// shared resolver and safe for concurrent use.
type Mapper struct {
	resolver schema.FieldPathResolver
}

// New creates a mapper reading entity metadata from r.
func New(r schema.FieldPathResolver) *Mapper {
	return &Mapper{resolver: r}
}

// MapRows rebuilds one *E per row.
func MapRows[E any](m *Mapper, rows []Row, selection []query.Term) ([]*E, error) {
	t := reflect.TypeOf((*E)(nil)).Elem()
	values, err := m.Map(t, rows, selection)
	if err != nil {
		return nil, err
	}

	out := make([]*E, len(values))
	for i, v := range values {
		out[i] = v.Interface().(*E)
	}
	return out, nil
}

// Map rebuilds one pointer to t per row.
func (m *Mapper) Map(t reflect.Type, rows []Row, selection []query.Term) ([]reflect.Value, error) {
	out := make([]reflect.Value, 0, len(rows))
	for i, r := range rows {
		var (
			v   reflect.Value
			err error
		)
		switch r := r.(type) {
		case EntityRow:
			v, err = m.fromEntity(t, r, selection)
		case ValuesRow:
			v, err = fromValues(t, r, selection)
		case ScalarRow:
			v, err = fromScalar(t, r, selection)
		default:
			err = fmt.Errorf("unsupported row type %T", r)
		}
		if err != nil {
			return nil, apierror.Internal(err, "cannot map row %d", i)
		}
		out = append(out, v)
	}
	return out, nil
}

// fromEntity returns the row itself when nothing was selected, otherwise
// a sparse copy holding only the fields named by a term's last segment.
func (m *Mapper) fromEntity(t reflect.Type, r EntityRow, selection []query.Term) (reflect.Value, error) {
	src := reflect.ValueOf(r.Entity)
	if !src.IsValid() {
		return reflect.Value{}, fmt.Errorf("nil entity row")
	}
	if src.Kind() == reflect.Pointer {
		if src.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil entity row")
		}
	} else {
		ptr := reflect.New(src.Type())
		ptr.Elem().Set(src)
		src = ptr
	}
	if src.Type().Elem() != t {
		return reflect.Value{}, fmt.Errorf("entity row of type %s, expected %s", src.Type().Elem(), t)
	}

	if len(selection) == 0 {
		return src, nil
	}

	ent, err := m.resolver.Entity(t)
	if err != nil {
		return reflect.Value{}, err
	}
	aliases := make(map[string]struct{}, len(selection))
	for _, term := range selection {
		aliases[term.Path.Alias()] = struct{}{}
	}

	dst := reflect.New(t)
	for _, f := range ent.Fields {
		if _, ok := aliases[f.Key]; !ok {
			continue
		}
		dst.Elem().FieldByIndex(f.Index).Set(src.Elem().FieldByIndex(f.Index))
	}
	return dst, nil
}

func fromValues(t reflect.Type, r ValuesRow, selection []query.Term) (reflect.Value, error) {
	if len(r) != len(selection) {
		return reflect.Value{}, fmt.Errorf("row has %d values for %d selection terms", len(r), len(selection))
	}

	dst := reflect.New(t)
	for i, term := range selection {
		if err := apply(dst, term, r[i]); err != nil {
			return reflect.Value{}, err
		}
	}
	return dst, nil
}

func fromScalar(t reflect.Type, r ScalarRow, selection []query.Term) (reflect.Value, error) {
	if len(selection) == 0 {
		return reflect.Value{}, fmt.Errorf("scalar row without selection")
	}

	dst := reflect.New(t)
	if err := apply(dst, selection[0], r.Value); err != nil {
		return reflect.Value{}, err
	}
	return dst, nil
}

func apply(dst reflect.Value, term query.Term, value interface{}) error {
	if term.Aggregate != "" {
		return addAggregate(dst, term, value)
	}
	return project(dst, term.Path.Steps, value)
}
