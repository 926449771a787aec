package schema

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type level string

func (level) EnumValues() []string { return []string{"LOW", "HIGH"} }

type base struct {
	ID         int64     `json:"id" db:"id"`
	ExternalID string    `json:"externalId" db:"external_id"`
	Hidden     string    `json:"-" db:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

type region struct {
	base
	Name string `json:"name"`
}

type city struct {
	base
	Name   string  `json:"name" db:"name"`
	Region *region `json:"region" db:"region_id" ref:"id"`
}

type item struct {
	Price decimal.Decimal `json:"price" db:"price"`
}

type person struct {
	base
	FullName string            `json:"fullName" db:"full_name"`
	Age      int               `json:"age"`
	Level    level             `json:"level"`
	Ratio    float32           `json:"ratio"`
	Active   bool              `json:"active"`
	City     *city             `json:"city" db:"city_id" ref:"id"`
	Items    []item            `json:"items" fk:"person_id"`
	Labels   map[string]string `json:"labels" db:"labels"`
	Prefs    struct{ A int }   `json:"prefs" db:"prefs"`
	internal int
}

func (person) TableName() string { return "people" }

func TestKindOf(t *testing.T) {
	var email *string
	tests := []struct {
		name     string
		value    interface{}
		expected Kind
	}{
		{"string", "", KindString},
		{"pointer to string", email, KindString},
		{"bool", true, KindBool},
		{"int", 1, KindInt},
		{"int64", int64(1), KindInt},
		{"uint8", uint8(1), KindUint},
		{"float64", 1.0, KindFloat},
		{"decimal", decimal.Zero, KindDecimal},
		{"time", time.Time{}, KindTime},
		{"enum", level("LOW"), KindEnum},
		{"struct", city{}, KindEntity},
		{"map", map[string]int{}, KindStructured},
		{"slice", []string{}, KindStructured},
		{"bytes", []byte{}, KindStructured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(reflect.TypeOf(tt.value)))
		})
	}
}

func TestDescribe(t *testing.T) {
	e, err := Describe(reflect.TypeOf(person{}))
	require.NoError(t, err)

	assert.Equal(t, "people", e.Table)
	assert.Equal(t, "id", e.PrimaryKey)

	id, ok := e.Field("id")
	require.True(t, ok)
	assert.Equal(t, []int{0, 0}, id.Index)
	assert.True(t, id.Stored)

	fullName, ok := e.Field("FULLNAME")
	require.True(t, ok)
	assert.Equal(t, "full_name", fullName.Column)

	age, ok := e.Field("age")
	require.True(t, ok)
	assert.Equal(t, "age", age.Column)

	created, ok := e.Field("createdAt")
	require.True(t, ok)
	assert.Equal(t, "created_at", created.Column)
	assert.Equal(t, KindTime, created.Kind)

	cityField, ok := e.Field("city")
	require.True(t, ok)
	assert.Equal(t, KindEntity, cityField.Kind)
	assert.Equal(t, "city_id", cityField.Column)
	assert.Equal(t, "id", cityField.Ref)
	assert.Equal(t, reflect.TypeOf(city{}), cityField.Type)

	items, ok := e.Field("items")
	require.True(t, ok)
	assert.True(t, items.Collection)
	assert.False(t, items.Stored)
	assert.Equal(t, "person_id", items.FK)
	assert.Equal(t, reflect.TypeOf(item{}), items.Type)

	prefs, ok := e.Field("prefs")
	require.True(t, ok)
	assert.Equal(t, KindStructured, prefs.Kind)
	assert.True(t, prefs.Stored)

	_, ok = e.Field("hidden")
	assert.True(t, ok, "json:\"-\" falls back to the Go name")
	hidden, _ := e.Field("Hidden")
	assert.False(t, hidden.Stored)

	_, ok = e.Field("internal")
	assert.False(t, ok)

	var columns []string
	for _, c := range e.Columns() {
		columns = append(columns, c.Column)
	}
	assert.Equal(t, []string{"id", "external_id", "created_at", "full_name", "age", "level", "ratio", "active", "city_id", "labels", "prefs"}, columns)
}

func TestDescribe_DefaultTableName(t *testing.T) {
	e, err := Describe(reflect.TypeOf(&city{}))
	require.NoError(t, err)
	assert.Equal(t, "citys", e.Table)

	_, err = Describe(reflect.TypeOf(42))
	assert.Error(t, err)
}

func TestReflectResolver_Resolve(t *testing.T) {
	r := NewReflectResolver(16)
	typ := reflect.TypeOf(person{})

	tests := []struct {
		name       string
		path       string
		segments   []string
		kind       Kind
		collection bool
	}{
		{"root field", "age", []string{"age"}, KindInt, false},
		{"inherited field", "externalId", []string{"externalId"}, KindString, false},
		{"nested", "city.name", []string{"city", "name"}, KindString, false},
		{"two levels", "city.region.name", []string{"city", "region", "name"}, KindString, false},
		{"collection", "items.price", []string{"items", "price"}, KindDecimal, true},
		{"enum", "level", []string{"level"}, KindEnum, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Resolve(typ, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.segments, p.Segments())
			assert.Equal(t, tt.kind, p.Leaf().Kind)
			assert.Equal(t, tt.collection, p.Collection())
			assert.Equal(t, tt.segments[len(tt.segments)-1], p.Alias())
			assert.Equal(t, len(tt.segments) > 1, p.Nested())
		})
	}
}

func TestReflectResolver_NoSuchField(t *testing.T) {
	r := NewReflectResolver(16)
	typ := reflect.TypeOf(person{})

	for _, path := range []string{"missing", "city.missing", "age.value", "", "city."} {
		t.Run(path, func(t *testing.T) {
			_, err := r.Resolve(typ, path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoSuchField)

			var nsf *NoSuchFieldError
			require.ErrorAs(t, err, &nsf)
			assert.Equal(t, path, nsf.Path)
		})
	}
}

func TestReflectResolver_ConcurrentUse(t *testing.T) {
	r := NewReflectResolver(4)
	typ := reflect.TypeOf(person{})
	paths := []string{"age", "city.name", "city.region.name", "items.price", "fullName", "level"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p, err := r.Resolve(typ, paths[(i+j)%len(paths)])
				assert.NoError(t, err)
				assert.NotEmpty(t, p.Steps)
			}
		}(i)
	}
	wg.Wait()

	e1, err := r.Entity(typ)
	require.NoError(t, err)
	e2, err := r.Entity(reflect.PointerTo(typ))
	require.NoError(t, err)
	assert.Same(t, e1, e2)
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Name":       "name",
		"ExternalID": "external_id",
		"UserID":     "user_id",
		"ID":         "id",
		"HTTPServer": "http_server",
		"PlacedAt":   "placed_at",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, snakeCase(in), in)
	}
}
