package memstore

import (
	"fmt"
	"math/big"
	"reflect"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/mapper"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// joined is one record combined with one element per collection the
// selection reaches into. A record without elements keeps a single null
// element for that collection.
type joined struct {
	record   reflect.Value
	elements map[string]reflect.Value
}

// collectionPrefix returns the index of the first collection step of p,
// or -1.
func collectionPrefix(p schema.Path) int {
	for i, s := range p.Steps {
		if s.Collection {
			return i
		}
	}
	return -1
}

func prefixKey(p schema.Path, k int) string {
	return strings.Join(p.Segments()[:k+1], ".")
}

// expand joins rec with the elements of every collection the terms
// reference. Distinct collections multiply.
func expand(rec reflect.Value, terms []query.Term) []joined {
	rows := []joined{{record: rec, elements: map[string]reflect.Value{}}}

	seen := make(map[string]bool)
	for _, term := range terms {
		k := collectionPrefix(term.Path)
		if k < 0 {
			continue
		}
		key := prefixKey(term.Path, k)
		if seen[key] {
			continue
		}
		seen[key] = true

		elems := elements(rec, term.Path.Steps[:k+1])
		if len(elems) == 0 {
			elems = []reflect.Value{{}}
		}

		next := make([]joined, 0, len(rows)*len(elems))
		for _, row := range rows {
			for _, elem := range elems {
				m := make(map[string]reflect.Value, len(row.elements)+1)
				for name, v := range row.elements {
					m[name] = v
				}
				m[key] = elem
				next = append(next, joined{record: row.record, elements: m})
			}
		}
		rows = next
	}
	return rows
}

// elements returns the struct values of the collection at the last of
// steps, which is the only collection step.
func elements(rec reflect.Value, steps []schema.Field) []reflect.Value {
	v := rec.Elem()
	for _, step := range steps[:len(steps)-1] {
		var ok bool
		if v, ok = deref(v.FieldByIndex(step.Index)); !ok {
			return nil
		}
	}

	coll := v.FieldByIndex(steps[len(steps)-1].Index)
	out := make([]reflect.Value, 0, coll.Len())
	for i := 0; i < coll.Len(); i++ {
		if elem, ok := deref(coll.Index(i)); ok {
			out = append(out, elem)
		}
	}
	return out
}

// value reads term from a joined row.
func (j joined) value(term query.Term) slot {
	k := collectionPrefix(term.Path)
	if k < 0 {
		return first(j.record.Elem(), term.Path.Steps)
	}
	elem := j.elements[prefixKey(term.Path, k)]
	if !elem.IsValid() {
		return slot{null: true}
	}
	if k == len(term.Path.Steps)-1 {
		val, ok := query.FromReflect(elem, term.Path.Leaf().Kind)
		return slot{value: val, null: !ok}
	}
	return first(elem, term.Path.Steps[k+1:])
}

// accumulator folds the values of one selection term within a group.
type accumulator struct {
	term     query.Term
	group    interface{}
	count    int64
	intSum   int64
	floatSum float64
	decSum   decimal.Decimal
	distinct map[string]bool
}

func newAccumulator(term query.Term) *accumulator {
	return &accumulator{term: term, distinct: make(map[string]bool)}
}

func (a *accumulator) add(s slot) {
	if a.term.GroupBy {
		if !s.null {
			a.group = s.value.Native()
		}
		return
	}
	if s.null {
		return
	}

	a.count++
	switch a.term.Aggregate {
	case filter.AggCountDistinct:
		a.distinct[s.value.String()] = true
	case filter.AggSum, filter.AggAvg:
		switch s.value.Kind {
		case schema.KindInt:
			a.intSum += s.value.Int
			a.decSum = a.decSum.Add(decimal.NewFromInt(s.value.Int))
		case schema.KindUint:
			a.decSum = a.decSum.Add(decimal.NewFromBigInt(new(big.Int).SetUint64(s.value.Uint), 0))
		case schema.KindFloat:
			a.floatSum += s.value.Float
		case schema.KindDecimal:
			a.decSum = a.decSum.Add(s.value.Decimal)
		}
	}
}

// result mirrors PostgreSQL result types: SUM over integers is an integer,
// AVG over integers and any decimal arithmetic is numeric, floats stay
// floats. SUM and AVG of no values are NULL.
func (a *accumulator) result() (interface{}, error) {
	if a.term.GroupBy {
		return a.group, nil
	}

	kind := a.term.Path.Leaf().Kind
	switch a.term.Aggregate {
	case filter.AggCount:
		return a.count, nil
	case filter.AggCountDistinct:
		return int64(len(a.distinct)), nil
	case filter.AggSum:
		if a.count == 0 {
			return nil, nil
		}
		switch kind {
		case schema.KindInt:
			return a.intSum, nil
		case schema.KindFloat:
			return a.floatSum, nil
		}
		return a.decSum, nil
	case filter.AggAvg:
		if a.count == 0 {
			return nil, nil
		}
		if kind == schema.KindFloat {
			return a.floatSum / float64(a.count), nil
		}
		return a.decSum.Div(decimal.NewFromInt(a.count)), nil
	}
	return nil, fmt.Errorf("unknown aggregate function %q", a.term.Aggregate)
}

type group struct {
	keys []slot
	accs []*accumulator
}

// aggregate groups the joined rows of records by plan.GroupBy and folds
// every selection term. Without group-by there is exactly one group, even
// over no records.
func aggregate(plan *query.Plan, records []reflect.Value) ([]mapper.Row, error) {
	newGroup := func(keys []slot) *group {
		g := &group{keys: keys}
		for _, term := range plan.Selection {
			g.accs = append(g.accs, newAccumulator(term))
		}
		return g
	}

	var groups []*group
	index := make(map[string]*group)
	if len(plan.GroupBy) == 0 {
		groups = append(groups, newGroup(nil))
	}

	for _, rec := range records {
		for _, row := range expand(rec, plan.Selection) {
			var target *group
			if len(plan.GroupBy) == 0 {
				target = groups[0]
			} else {
				keys := make([]slot, len(plan.GroupBy))
				parts := make([]string, len(plan.GroupBy))
				for i, p := range plan.GroupBy {
					keys[i] = first(rec.Elem(), p.Steps)
					parts[i] = groupKey(keys[i])
				}
				key := strings.Join(parts, "\x1f")
				if target = index[key]; target == nil {
					target = newGroup(keys)
					index[key] = target
					groups = append(groups, target)
				}
			}

			for i, term := range plan.Selection {
				target.accs[i].add(row.value(term))
			}
		}
	}

	if err := orderGroups(plan, groups); err != nil {
		return nil, err
	}

	rows := make([]mapper.Row, 0, len(groups))
	for _, g := range groups {
		values := make([]interface{}, len(g.accs))
		for i, acc := range g.accs {
			v, err := acc.result()
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		if len(values) == 1 {
			rows = append(rows, mapper.ScalarRow{Value: values[0]})
		} else {
			rows = append(rows, mapper.ValuesRow(values))
		}
	}
	return rows, nil
}

func groupKey(s slot) string {
	if s.null {
		return "\x00"
	}
	return s.value.Kind.String() + ":" + s.value.String()
}

// orderGroups sorts groups by the orderings that name a group-by path.
// The compiler rejects any other ordering on a grouped plan.
func orderGroups(plan *query.Plan, groups []*group) error {
	type key struct {
		index int
		order filter.SortOrder
	}
	var keys []key
	for _, o := range plan.OrderBy {
		for i, p := range plan.GroupBy {
			if samePath(p, o.Path) {
				keys = append(keys, key{index: i, order: o.Order})
				break
			}
		}
	}
	if len(keys) == 0 {
		return nil
	}

	var sortErr error
	slices.SortStableFunc(groups, func(a, b *group) int {
		for _, k := range keys {
			c, err := compareSlots(a.keys[k.index], b.keys[k.index])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if c == 0 {
				continue
			}
			if k.order == filter.SortDesc {
				return -c
			}
			return c
		}
		return 0
	})
	return sortErr
}

func samePath(a, b schema.Path) bool {
	return slices.Equal(a.Segments(), b.Segments())
}
