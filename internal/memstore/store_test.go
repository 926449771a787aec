package memstore

import (
	"context"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/restcore/internal/engine"
	"github.com/fluxbase-eu/restcore/internal/example"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/mapper"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

var userType = reflect.TypeOf(example.User{})

func strPtr(s string) *string { return &s }

func orders(totals ...int64) []example.Order {
	out := make([]example.Order, len(totals))
	for i, t := range totals {
		out[i] = example.Order{Total: decimal.NewFromInt(t), Quantity: 1}
	}
	return out
}

// seed stores Ann, Bob, Carla and Roboto, in that order.
func seed(t *testing.T) (*Store, *schema.ReflectResolver) {
	t.Helper()

	resolver := schema.NewReflectResolver(0)
	ent, err := resolver.Entity(userType)
	require.NoError(t, err)

	germany := &example.Country{Name: "Germany", Code: "DE"}
	portugal := &example.Country{Name: "Portugal", Code: "PT"}

	users := []*example.User{
		{Name: "Ann", Age: 34, Score: 1.5, Role: example.RoleAdmin, Country: germany, Orders: orders(150, 50)},
		{Name: "Bob", Age: 41, Score: 3, Role: example.RoleUser},
		{Name: "Carla", Age: 25, Score: 2, Role: example.RoleUser, Email: strPtr("carla@example.com"), Country: portugal, Orders: orders(20)},
		{Name: "Roboto", Age: 28, Score: 2, Role: example.RoleAdmin},
	}

	store := New()
	for _, u := range users {
		require.NoError(t, store.Insert(context.Background(), ent, reflect.ValueOf(u)))
	}
	return store, resolver
}

func execute(t *testing.T, store *Store, resolver schema.FieldPathResolver, rf *filter.RequestFilter) []mapper.Row {
	t.Helper()
	plan, err := query.NewCompiler(resolver).CompileFilter(userType, rf)
	require.NoError(t, err)

	rows, err := store.Execute(context.Background(), plan)
	require.NoError(t, err)
	return rows
}

func names(t *testing.T, rows []mapper.Row) []string {
	t.Helper()
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		er, ok := r.(mapper.EntityRow)
		require.True(t, ok, "expected entity row, got %T", r)
		out = append(out, er.Entity.(*example.User).Name)
	}
	return out
}

func TestStore_Filter(t *testing.T) {
	store, resolver := seed(t)

	tests := []struct {
		name     string
		filter   string
		expected []string
	}{
		{name: "no filter", filter: "", expected: []string{"Ann", "Bob", "Carla", "Roboto"}},
		{name: "comparison and like", filter: "age|gt|30_and_name|lk|bo", expected: []string{"Bob"}},
		{name: "like is case insensitive", filter: "name|lk|BO", expected: []string{"Bob", "Roboto"}},
		{name: "or with enum coercion", filter: "age|ge|35_or_role|eq|admin", expected: []string{"Ann", "Bob", "Roboto"}},
		{name: "null check", filter: "email|eq|null", expected: []string{"Ann", "Bob", "Roboto"}},
		{name: "not null check", filter: "email|ne|null", expected: []string{"Carla"}},
		{name: "nested reference", filter: "country.code|eq|DE", expected: []string{"Ann"}},
		{name: "missing reference is null", filter: "country.code|eq|null", expected: []string{"Bob", "Roboto"}},
		{name: "collection matches any element", filter: "orders.total|gt|100", expected: []string{"Ann"}},
		{name: "collection with no elements never matches", filter: "orders.total|lt|1000", expected: []string{"Ann", "Carla"}},
		{name: "membership", filter: "age|in|(25,41)", expected: []string{"Bob", "Carla"}},
		{name: "negated membership", filter: "role|ou|(ADMIN)", expected: []string{"Bob", "Carla"}},
		{name: "symbolic aliases", filter: "score>=2;age<30", expected: []string{"Carla", "Roboto"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := execute(t, store, resolver, filter.NewRequestFilter().SetFilter(tt.filter))
			assert.Equal(t, tt.expected, names(t, rows))
		})
	}
}

func TestStore_SortAndPage(t *testing.T) {
	store, resolver := seed(t)

	rows := execute(t, store, resolver, filter.NewRequestFilter().SetSort("age=desc").SetOffset(1).SetLimit(2))
	assert.Equal(t, []string{"Ann", "Roboto"}, names(t, rows))

	rows = execute(t, store, resolver, filter.NewRequestFilter().SetSort("country.name=desc,name"))
	assert.Equal(t, []string{"Bob", "Roboto", "Carla", "Ann"}, names(t, rows), "nulls first when descending")
}

func TestStore_EntityRowsAreCopies(t *testing.T) {
	store, resolver := seed(t)

	rows := execute(t, store, resolver, filter.NewRequestFilter().SetFilter("name|eq|Ann"))
	require.Len(t, rows, 1)
	rows[0].(mapper.EntityRow).Entity.(*example.User).Name = "changed"

	rows = execute(t, store, resolver, filter.NewRequestFilter().SetFilter("name|eq|Ann"))
	assert.Len(t, rows, 1)
}

func TestStore_Projection(t *testing.T) {
	store, resolver := seed(t)

	rows := execute(t, store, resolver, filter.NewRequestFilter().
		SetProjection("name,age,country.code").
		SetSort("name").
		SetLimit(2))

	assert.Equal(t, []mapper.Row{
		mapper.ValuesRow{"Ann", int64(34), "DE"},
		mapper.ValuesRow{"Bob", int64(41), nil},
	}, rows)

	rows = execute(t, store, resolver, filter.NewRequestFilter().SetProjection("role").SetFilter("name|eq|Carla"))
	assert.Equal(t, []mapper.Row{mapper.ScalarRow{Value: "USER"}}, rows)
}

func TestStore_Aggregate(t *testing.T) {
	store, resolver := seed(t)

	t.Run("sum over a collection", func(t *testing.T) {
		rows := execute(t, store, resolver, filter.NewRequestFilter().SetSum("orders.total").SetFilter("name|eq|Ann"))
		require.Len(t, rows, 1)
		sum := rows[0].(mapper.ScalarRow).Value.(decimal.Decimal)
		assert.True(t, sum.Equal(decimal.NewFromInt(200)), "got %s", sum)
	})

	t.Run("sum grouped by name", func(t *testing.T) {
		rows := execute(t, store, resolver, filter.NewRequestFilter().SetSum("orders.total").SetGroupBy("name").SetSort("name"))
		require.Len(t, rows, 4)

		expected := map[string]interface{}{"Ann": decimal.NewFromInt(200), "Bob": nil, "Carla": decimal.NewFromInt(20), "Roboto": nil}
		for i, name := range []string{"Ann", "Bob", "Carla", "Roboto"} {
			values := rows[i].(mapper.ValuesRow)
			assert.Equal(t, name, values[1])
			if expected[name] == nil {
				assert.Nil(t, values[0])
				continue
			}
			assert.True(t, values[0].(decimal.Decimal).Equal(expected[name].(decimal.Decimal)))
		}
	})

	t.Run("count, distinct count and average", func(t *testing.T) {
		rows := execute(t, store, resolver, filter.NewRequestFilter().SetCount("id").SetCountDistinct("role").SetAvg("age"))
		require.Len(t, rows, 1)

		values := rows[0].(mapper.ValuesRow)
		assert.Equal(t, int64(4), values[0])
		assert.Equal(t, int64(2), values[1])
		assert.True(t, values[2].(decimal.Decimal).Equal(decimal.NewFromInt(32)))
	})

	t.Run("integer sum and float average", func(t *testing.T) {
		rows := execute(t, store, resolver, filter.NewRequestFilter().SetSum("age").SetAvg("score").SetFilter("role|eq|ADMIN"))
		values := rows[0].(mapper.ValuesRow)
		assert.Equal(t, int64(62), values[0])
		assert.Equal(t, 1.75, values[1])
	})

	t.Run("no matches still yields one row", func(t *testing.T) {
		rows := execute(t, store, resolver, filter.NewRequestFilter().SetCount("id").SetSum("age").SetFilter("age|gt|100"))
		assert.Equal(t, []mapper.Row{mapper.ValuesRow{nil, int64(0)}}, rows)
	})

	t.Run("grouped by reference", func(t *testing.T) {
		rows := execute(t, store, resolver, filter.NewRequestFilter().SetCount("id").SetGroupBy("country.code").SetSort("country.code"))
		assert.Equal(t, []mapper.Row{
			mapper.ValuesRow{int64(1), "DE"},
			mapper.ValuesRow{int64(1), "PT"},
			mapper.ValuesRow{int64(2), nil},
		}, rows)
	})
}

func TestStore_Count(t *testing.T) {
	store, resolver := seed(t)

	plan, err := query.NewCompiler(resolver).CompileFilter(userType, filter.NewRequestFilter().SetFilter("age|gt|26").SetLimit(1))
	require.NoError(t, err)

	total, err := store.Count(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestStore_Records(t *testing.T) {
	store, resolver := seed(t)
	ctx := context.Background()
	ent, err := resolver.Entity(userType)
	require.NoError(t, err)

	user := &example.User{Name: "Dora", Age: 50}
	user.ExternalID = "dora"
	require.NoError(t, store.Insert(ctx, ent, reflect.ValueOf(user)))
	assert.Equal(t, int64(5), user.ID)
	assert.Equal(t, 5, store.Len(userType))

	found, err := store.FindBy(ctx, ent, "external_id", "dora")
	require.NoError(t, err)
	assert.Equal(t, "Dora", found.Interface().(*example.User).Name)

	found, err = store.FindBy(ctx, ent, "id", int64(2))
	require.NoError(t, err)
	assert.Equal(t, "Bob", found.Interface().(*example.User).Name)

	user.Age = 51
	require.NoError(t, store.Update(ctx, ent, reflect.ValueOf(user)))
	found, err = store.FindBy(ctx, ent, "id", user.ID)
	require.NoError(t, err)
	assert.Equal(t, 51, found.Interface().(*example.User).Age)

	require.NoError(t, store.Delete(ctx, ent, user.ID))
	assert.Equal(t, 4, store.Len(userType))

	_, err = store.FindBy(ctx, ent, "external_id", "dora")
	assert.ErrorIs(t, err, engine.ErrNoRows)
	assert.ErrorIs(t, store.Delete(ctx, ent, user.ID), engine.ErrNoRows)
	assert.ErrorIs(t, store.Update(ctx, ent, reflect.ValueOf(user)), engine.ErrNoRows)

	_, err = store.FindBy(ctx, ent, "nope", 1)
	assert.Error(t, err)
}

func TestStore_CanceledContext(t *testing.T) {
	store, resolver := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan, err := query.NewCompiler(resolver).CompileFilter(userType, filter.NewRequestFilter())
	require.NoError(t, err)

	_, err = store.Execute(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.Count(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
}
