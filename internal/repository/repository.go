// Package repository runs request filters and record operations for one
// entity type against an engine and translates failures into the
// apierror taxonomy.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/engine"
	"github.com/fluxbase-eu/restcore/internal/entity"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/mapper"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

// Error codes raised by the repository itself.
const (
	CodeNoEntities         = "NO_ENTITIES_FOUND"
	CodeEntityNotFound     = "ENTITY_NOT_FOUND"
	CodeExternalIDMismatch = "EXTERNAL_ID_MISMATCH"
)

const externalIDColumn = "external_id"

// Repository serves one entity type E. *E must implement entity.APIEntity.
type Repository[E any] struct {
	engine   engine.Engine
	compiler *query.Compiler
	mapper   *mapper.Mapper
	entity   *schema.Entity
	now      func() time.Time
}

// New creates a repository for E executing through eng.
func New[E any](eng engine.Engine, resolver schema.FieldPathResolver) (*Repository[E], error) {
	t := reflect.TypeOf((*E)(nil)).Elem()
	if _, ok := any(new(E)).(entity.APIEntity); !ok {
		return nil, fmt.Errorf("*%s does not embed entity.BaseAPIEntity", t)
	}

	ent, err := resolver.Entity(t)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", t, err)
	}

	return &Repository[E]{
		engine:   eng,
		compiler: query.NewCompiler(resolver),
		mapper:   mapper.New(resolver),
		entity:   ent,
		now:      time.Now,
	}, nil
}

// Entity returns the metadata of E.
func (r *Repository[E]) Entity() *schema.Entity {
	return r.entity
}

// Compile builds the plan for rf. A nil rf selects everything with the
// default page.
func (r *Repository[E]) Compile(rf *filter.RequestFilter) (*query.Plan, error) {
	if rf == nil {
		rf = filter.NewRequestFilter()
	}
	return r.compiler.CompileFilter(r.entity.Type, rf)
}

// FindAll returns the entities matching rf. When rf names an aggregate
// function the result holds one entity per group carrying the aggregate
// maps and group-by fields.
func (r *Repository[E]) FindAll(ctx context.Context, rf *filter.RequestFilter) ([]*E, error) {
	plan, err := r.Compile(rf)
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, plan)
}

// Find runs a plan compiled by Compile.
func (r *Repository[E]) Find(ctx context.Context, plan *query.Plan) ([]*E, error) {
	if plan.Aggregated() && len(plan.Selection) == 0 {
		return nil, apierror.BadRequest(query.CodeInvalidAggregation, nil, apierror.MsgInvalidAggregation)
	}

	rows, err := r.engine.Execute(ctx, plan)
	if err != nil {
		return nil, r.translate(err, plan.Filter)
	}

	records, err := mapper.MapRows[E](r.mapper, rows, plan.Selection)
	if err != nil {
		return nil, r.translate(err, plan.Filter)
	}
	return records, nil
}

// CountAll returns the number of entities matching the filter of rf.
func (r *Repository[E]) CountAll(ctx context.Context, rf *filter.RequestFilter) (int64, error) {
	plan, err := r.Compile(rf)
	if err != nil {
		return 0, err
	}
	return r.Count(ctx, plan)
}

// Count returns the number of entities matching the filter of plan.
func (r *Repository[E]) Count(ctx context.Context, plan *query.Plan) (int64, error) {
	total, err := r.engine.Count(ctx, plan)
	if err != nil {
		return 0, r.translate(err, plan.Filter)
	}
	return total, nil
}

// FindByID returns the entity with the given primary key.
func (r *Repository[E]) FindByID(ctx context.Context, id int64) (*E, error) {
	return r.findBy(ctx, r.entity.PrimaryKey, id)
}

// FindByExternalID returns the entity with the given external id.
func (r *Repository[E]) FindByExternalID(ctx context.Context, externalID string) (*E, error) {
	return r.findBy(ctx, externalIDColumn, externalID)
}

func (r *Repository[E]) findBy(ctx context.Context, column string, value interface{}) (*E, error) {
	record, err := r.engine.FindBy(ctx, r.entity, column, value)
	if err != nil {
		if errors.Is(err, engine.ErrNoRows) {
			return nil, apierror.NotFound(CodeEntityNotFound, apierror.MsgEntityNotFound, value)
		}
		return nil, r.translate(err, fmt.Sprint(value))
	}
	return record.Interface().(*E), nil
}

// Save inserts e, assigning an external id when missing, the insert date
// and the active flag.
func (r *Repository[E]) Save(ctx context.Context, e *E) (*E, error) {
	api := apiOf(e)
	api.MarkCreated(r.now())
	api.UpdateDate = nil
	api.DeleteDate = nil

	if err := r.engine.Insert(ctx, r.entity, reflect.ValueOf(e)); err != nil {
		return nil, r.translate(err, api.ExternalID)
	}

	log.Debug().
		Str("table", r.entity.Table).
		Str("external_id", api.ExternalID).
		Msg("Saved entity")
	return e, nil
}

// Update overwrites the entity identified by externalID with e. The
// external id of e must match. An active entity loses its delete date.
func (r *Repository[E]) Update(ctx context.Context, externalID string, e *E) (*E, error) {
	api := apiOf(e)
	if externalID == "" || api.ExternalID != externalID {
		return nil, apierror.BadRequest(CodeExternalIDMismatch, nil, apierror.MsgMalformedRequest, externalID)
	}

	if api.ID == 0 {
		stored, err := r.FindByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		api.ID = apiOf(stored).ID
	}

	api.MarkUpdated(r.now())
	if api.Active {
		api.DeleteDate = nil
	}

	if err := r.engine.Update(ctx, r.entity, reflect.ValueOf(e)); err != nil {
		if errors.Is(err, engine.ErrNoRows) {
			return nil, apierror.NotFound(CodeEntityNotFound, apierror.MsgEntityNotFound, externalID)
		}
		return nil, r.translate(err, externalID)
	}
	return e, nil
}

// Delete removes the entity identified by externalID.
func (r *Repository[E]) Delete(ctx context.Context, externalID string) error {
	stored, err := r.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}

	if err := r.engine.Delete(ctx, r.entity, apiOf(stored).ID); err != nil {
		if errors.Is(err, engine.ErrNoRows) {
			return apierror.NotFound(CodeEntityNotFound, apierror.MsgEntityNotFound, externalID)
		}
		return r.translate(err, externalID)
	}
	return nil
}

// LogicDelete deactivates the entity identified by externalID and stamps
// its delete date.
func (r *Repository[E]) LogicDelete(ctx context.Context, externalID string) (*E, error) {
	stored, err := r.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	apiOf(stored).MarkDeleted(r.now())
	if err := r.engine.Update(ctx, r.entity, reflect.ValueOf(stored)); err != nil {
		if errors.Is(err, engine.ErrNoRows) {
			return nil, apierror.NotFound(CodeEntityNotFound, apierror.MsgEntityNotFound, externalID)
		}
		return nil, r.translate(err, externalID)
	}
	return stored, nil
}

// translate maps engine failures onto the taxonomy: no rows is NotFound,
// classified errors pass through, anything else is internal with the cause
// kept.
func (r *Repository[E]) translate(err error, subject string) error {
	if errors.Is(err, engine.ErrNoRows) {
		return apierror.NotFound(CodeNoEntities, apierror.MsgNoEntitiesFound, subject)
	}

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		if apiErr.Kind == apierror.KindInternalError {
			log.Error().Err(err).Str("table", r.entity.Table).Str("filter", subject).Msg("Repository operation failed")
		}
		return apiErr
	}

	log.Error().Err(err).Str("table", r.entity.Table).Str("filter", subject).Msg("Repository operation failed")
	return apierror.Internal(err, apierror.MsgUnexpectedQueryError, subject)
}

func apiOf[E any](e *E) *entity.BaseAPIEntity {
	return any(e).(entity.APIEntity).API()
}
