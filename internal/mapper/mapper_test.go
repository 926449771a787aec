package mapper

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/entity"
	"github.com/fluxbase-eu/restcore/internal/example"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

var resolver = schema.NewReflectResolver(64)

func terms(t *testing.T, typ interface{}, descs ...string) []query.Term {
	t.Helper()
	out := make([]query.Term, 0, len(descs))
	for _, desc := range descs {
		var term query.Term
		fn, path, ok := cutAggregate(desc)
		if ok {
			term.Aggregate = fn
		} else {
			path = desc
		}
		p, err := resolver.Resolve(reflect.TypeOf(typ), path)
		require.NoError(t, err)
		term.Path = p
		out = append(out, term)
	}
	return out
}

func cutAggregate(desc string) (filter.AggregateFunction, string, bool) {
	for i := 0; i < len(desc); i++ {
		if desc[i] == ':' {
			fn, ok := filter.ParseAggregateFunction(desc[:i])
			return fn, desc[i+1:], ok
		}
	}
	return "", "", false
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestMapRows_NestedProjectionSharesObject(t *testing.T) {
	m := New(resolver)
	selection := terms(t, example.User{}, "name", "country.name", "country.code")

	users, err := MapRows[example.User](m, []Row{ValuesRow{"Bob", "Brazil", "BR"}}, selection)
	require.NoError(t, err)
	require.Len(t, users, 1)

	u := users[0]
	assert.Equal(t, "Bob", u.Name)
	require.NotNil(t, u.Country)
	assert.Equal(t, "Brazil", u.Country.Name)
	assert.Equal(t, "BR", u.Country.Code)
	assert.Zero(t, u.Age)
}

func TestMapRows_Idempotent(t *testing.T) {
	m := New(resolver)
	selection := terms(t, example.User{}, "name", "country.name", "country.area", "age")
	rows := []Row{
		ValuesRow{"Bob", "Brazil", 8515767.05, int64(35)},
		ValuesRow{"Ann", "Chile", "756102.4", int32(29)},
	}

	first, err := MapRows[example.User](m, rows, selection)
	require.NoError(t, err)
	second, err := MapRows[example.User](m, rows, selection)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second, decimalComparer))
	assert.NotSame(t, first[0], second[0])
	assert.NotSame(t, first[0].Country, second[0].Country)
	assert.True(t, decimal.RequireFromString("756102.4").Equal(second[1].Country.Area))
}

func TestMapRows_ScalarRow(t *testing.T) {
	m := New(resolver)
	users, err := MapRows[example.User](m, []Row{ScalarRow{"Bob"}, ScalarRow{"Ann"}}, terms(t, example.User{}, "name"))
	require.NoError(t, err)

	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].Name)
	assert.Equal(t, "Ann", users[1].Name)
}

func TestMapRows_EntityRow(t *testing.T) {
	m := New(resolver)
	src := &example.User{
		Name:    "Bob",
		Age:     35,
		Country: &example.Country{Name: "Brazil"},
	}
	src.ExternalID = "abc"

	t.Run("returned as is without selection", func(t *testing.T) {
		users, err := MapRows[example.User](m, []Row{EntityRow{src}}, nil)
		require.NoError(t, err)
		assert.Same(t, src, users[0])
	})

	t.Run("value row is copied", func(t *testing.T) {
		users, err := MapRows[example.User](m, []Row{EntityRow{*src}}, nil)
		require.NoError(t, err)
		assert.Equal(t, src, users[0])
		assert.NotSame(t, src, users[0])
	})

	t.Run("sparse copy by terminal segment", func(t *testing.T) {
		users, err := MapRows[example.User](m, []Row{EntityRow{src}}, terms(t, example.User{}, "age", "externalId", "addresses.street"))
		require.NoError(t, err)

		u := users[0]
		assert.NotSame(t, src, u)
		assert.Equal(t, 35, u.Age)
		assert.Equal(t, "abc", u.ExternalID)
		assert.Empty(t, u.Name)
		assert.Nil(t, u.Country)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := MapRows[example.User](m, []Row{EntityRow{&example.Country{}}}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, apierror.ErrInternalError)
	})
}

func TestMapRows_SumOverCollection(t *testing.T) {
	m := New(resolver)
	selection := terms(t, example.User{}, "sum:orders.total")

	users, err := MapRows[example.User](m, []Row{ScalarRow{200.0}}, selection)
	require.NoError(t, err)

	require.Len(t, users, 1)
	orders, ok := users[0].Sum["orders"].(map[string]interface{})
	require.True(t, ok)
	total, ok := orders["total"].(decimal.Decimal)
	require.True(t, ok, "float result over a decimal field becomes a decimal")
	assert.True(t, decimal.NewFromInt(200).Equal(total))
}

func TestMapRows_AggregateRow(t *testing.T) {
	m := New(resolver)
	selection := terms(t, example.User{},
		"sum:orders.total",
		"sum:orders.quantity",
		"count:id",
		"count_distinct:role",
		"avg:age",
		"country.name",
	)

	users, err := MapRows[example.User](m, []Row{
		ValuesRow{decimal.NewFromInt(200), int64(7), int64(3), int64(2), 31.5, "Brazil"},
	}, selection)
	require.NoError(t, err)

	u := users[0]
	assert.Empty(t, cmp.Diff(map[string]interface{}{
		"orders": map[string]interface{}{
			"total":    decimal.NewFromInt(200),
			"quantity": int64(7),
		},
	}, u.Sum, decimalComparer))
	assert.Equal(t, map[string]interface{}{"id": int64(3)}, u.Count)
	assert.Equal(t, map[string]interface{}{"role": int64(2)}, u.CountDistinct)
	assert.Equal(t, map[string]interface{}{"age": 31.5}, u.Avg)
	require.NotNil(t, u.Country)
	assert.Equal(t, "Brazil", u.Country.Name)
}

func TestMapRows_CountAndCountDistinctOnSameField(t *testing.T) {
	m := New(resolver)
	selection := terms(t, example.User{}, "count:role", "count_distinct:role")

	users, err := MapRows[example.User](m, []Row{ValuesRow{int64(5), int64(2)}}, selection)
	require.NoError(t, err)

	require.Len(t, users, 1)
	assert.Equal(t, map[string]interface{}{"role": int64(5)}, users[0].Count)
	assert.Equal(t, map[string]interface{}{"role": int64(2)}, users[0].CountDistinct)
}

func TestMapRows_Conversions(t *testing.T) {
	m := New(resolver)
	selection := terms(t, example.User{}, "email", "role", "settings", "tags", "score", "active")

	users, err := MapRows[example.User](m, []Row{
		ValuesRow{"bob@example.com", "ADMIN", []byte(`{"theme":"dark"}`), []interface{}{"a", "b"}, decimal.RequireFromString("4.5"), true},
		ValuesRow{nil, "USER", nil, nil, "2", false},
	}, selection)
	require.NoError(t, err)

	first := users[0]
	require.NotNil(t, first.Email)
	assert.Equal(t, "bob@example.com", *first.Email)
	assert.Equal(t, example.RoleAdmin, first.Role)
	require.NotNil(t, first.Settings)
	assert.Equal(t, "dark", first.Settings.Theme)
	assert.Equal(t, []string{"a", "b"}, first.Tags)
	assert.Equal(t, 4.5, first.Score)
	assert.True(t, first.Active)

	second := users[1]
	assert.Nil(t, second.Email)
	assert.Nil(t, second.Settings)
	assert.Equal(t, 2.0, second.Score)
}

func TestMapRows_Errors(t *testing.T) {
	m := New(resolver)

	tests := []struct {
		name      string
		rows      []Row
		selection []query.Term
	}{
		{"length mismatch", []Row{ValuesRow{"Bob"}}, terms(t, example.User{}, "name", "age")},
		{"scalar without selection", []Row{ScalarRow{"Bob"}}, nil},
		{"unconvertible value", []Row{ScalarRow{struct{}{}}}, terms(t, example.User{}, "age")},
		{"nil entity", []Row{EntityRow{}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapRows[example.User](m, tt.rows, tt.selection)
			require.Error(t, err)
			assert.True(t, apierror.From(err).Kind == apierror.KindInternalError)
		})
	}
}

type planet struct {
	entity.BaseEntity
	Name string `json:"name"`
}

type star struct {
	Name   string  `json:"name"`
	Planet *planet `json:"planet"`
}

type galaxy struct {
	entity.BaseEntity
	Name  string `json:"name"`
	Star  star   `json:"star"`
	Moons []moon `json:"moons"`
}

type moon struct {
	Name string `json:"name"`
}

func TestMapRows_DeepNesting(t *testing.T) {
	m := New(resolver)
	selection := terms(t, galaxy{}, "star.planet.name", "star.name", "star.planet.id", "moons.name", "moons.name")

	galaxies, err := MapRows[galaxy](m, []Row{ValuesRow{"Earth", "Sun", int64(3), "Luna", "Phobos"}}, selection)
	require.NoError(t, err)

	g := galaxies[0]
	assert.Equal(t, "Sun", g.Star.Name)
	require.NotNil(t, g.Star.Planet)
	assert.Equal(t, "Earth", g.Star.Planet.Name)
	assert.Equal(t, int64(3), g.Star.Planet.ID)
	assert.Equal(t, []moon{{Name: "Luna"}, {Name: "Phobos"}}, g.Moons)
}

func TestNest(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"age": 1}, nest([]string{"age"}, 1))
	assert.Equal(t,
		map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 1}}},
		nest([]string{"a", "b", "c"}, 1))
}
