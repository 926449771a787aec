// Package engine defines the storage contract a repository runs compiled
// plans and record operations against.
package engine

import (
	"context"
	"errors"
	"reflect"

	"github.com/fluxbase-eu/restcore/internal/mapper"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// ErrNoRows is returned when a lookup, update or delete matches nothing.
var ErrNoRows = errors.New("no rows in result set")

// Engine executes plans and persists records. Records are passed and
// returned as pointers to the entity struct.
type Engine interface {
	// Execute runs plan and returns rows shaped for plan.Mode.
	Execute(ctx context.Context, plan *query.Plan) ([]mapper.Row, error)

	// Count returns the number of entities matching plan.Where, ignoring
	// selection and pagination.
	Count(ctx context.Context, plan *query.Plan) (int64, error)

	// Insert stores record and assigns its primary key.
	Insert(ctx context.Context, ent *schema.Entity, record reflect.Value) error

	// Update overwrites the stored columns of the record with the same
	// primary key.
	Update(ctx context.Context, ent *schema.Entity, record reflect.Value) error

	// FindBy returns the first record whose column equals value.
	FindBy(ctx context.Context, ent *schema.Entity, column string, value interface{}) (reflect.Value, error)

	// Delete removes the record with the given primary key.
	Delete(ctx context.Context, ent *schema.Entity, id int64) error
}
