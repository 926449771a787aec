package memstore

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// slot is one value reached by walking a path. A nil reference on the way
// yields a null slot, like a LEFT JOIN would.
type slot struct {
	value query.Value
	null  bool
}

// collect walks steps from v, a struct value, and returns every leaf the
// path reaches. Collections fan out; an empty collection yields nothing.
func collect(v reflect.Value, steps []schema.Field) []slot {
	step := steps[0]
	fv := v.FieldByIndex(step.Index)

	if len(steps) == 1 {
		if (fv.Kind() == reflect.Slice || fv.Kind() == reflect.Map) && fv.IsNil() {
			return []slot{{null: true}}
		}
		val, ok := query.FromReflect(fv, step.Kind)
		return []slot{{value: val, null: !ok}}
	}

	if step.Collection {
		var out []slot
		for i := 0; i < fv.Len(); i++ {
			elem, ok := deref(fv.Index(i))
			if !ok {
				continue
			}
			out = append(out, collect(elem, steps[1:])...)
		}
		return out
	}

	elem, ok := deref(fv)
	if !ok {
		return []slot{{null: true}}
	}
	return collect(elem, steps[1:])
}

// first returns the first slot of a single-valued path.
func first(v reflect.Value, steps []schema.Field) slot {
	slots := collect(v, steps)
	if len(slots) == 0 {
		return slot{null: true}
	}
	return slots[0]
}

func deref(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, true
}

// evaluator matches records against a predicate tree. Like patterns are
// compiled once per evaluator.
type evaluator struct {
	likes map[string]*regexp.Regexp
}

func newEvaluator() *evaluator {
	return &evaluator{likes: make(map[string]*regexp.Regexp)}
}

// match reports whether the record v satisfies p. A predicate on a
// collection path holds when any element satisfies it.
func (ev *evaluator) match(v reflect.Value, p query.Predicate) (bool, error) {
	switch p := p.(type) {
	case query.And:
		for _, term := range p.Terms {
			ok, err := ev.match(v, term)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case query.Or:
		for _, term := range p.Terms {
			ok, err := ev.match(v, term)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil

	case query.Comparison:
		return anyOf(collect(v, p.Path.Steps), func(s slot) (bool, error) {
			if s.null {
				return false, nil
			}
			c, err := query.Compare(s.value, p.Value)
			if err != nil {
				return false, err
			}
			return satisfies(p.Operator, c)
		})

	case query.NullCheck:
		return anyOf(collect(v, p.Path.Steps), func(s slot) (bool, error) {
			return s.null != p.Negated, nil
		})

	case query.Like:
		re, err := ev.like(p.Pattern)
		if err != nil {
			return false, err
		}
		return anyOf(collect(v, p.Path.Steps), func(s slot) (bool, error) {
			return !s.null && re.MatchString(strings.ToUpper(s.value.String())), nil
		})

	case query.Membership:
		return anyOf(collect(v, p.Path.Steps), func(s slot) (bool, error) {
			if s.null {
				return false, nil
			}
			found := false
			for _, candidate := range p.Values {
				c, err := query.Compare(s.value, candidate)
				if err != nil {
					return false, err
				}
				if c == 0 {
					found = true
					break
				}
			}
			return found != p.Negated, nil
		})
	}
	return false, fmt.Errorf("unsupported predicate %T", p)
}

func anyOf(slots []slot, fn func(slot) (bool, error)) (bool, error) {
	for _, s := range slots {
		ok, err := fn(s)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func satisfies(op filter.Operator, c int) (bool, error) {
	switch op {
	case filter.OpEq:
		return c == 0, nil
	case filter.OpNe:
		return c != 0, nil
	case filter.OpGt:
		return c > 0, nil
	case filter.OpGe:
		return c >= 0, nil
	case filter.OpLt:
		return c < 0, nil
	case filter.OpLe:
		return c <= 0, nil
	}
	return false, fmt.Errorf("operator %s is not a comparison", op)
}

// like compiles a SQL LIKE pattern: % matches any run, _ one character.
func (ev *evaluator) like(pattern string) (*regexp.Regexp, error) {
	if re, ok := ev.likes[pattern]; ok {
		return re, nil
	}

	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	ev.likes[pattern] = re
	return re, nil
}
