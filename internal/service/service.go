// Package service wraps a repository with the list response envelope,
// response caching, metrics and tracing.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/cache"
	"github.com/fluxbase-eu/restcore/internal/entity"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/observability"
	"github.com/fluxbase-eu/restcore/internal/repository"
)

// Options configures optional collaborators of a Service. Nil fields are
// disabled.
type Options struct {
	Cache    cache.Store
	CacheTTL time.Duration
	Metrics  *observability.Metrics
	Limits   filter.Limits
}

// Service serves list and record operations for one entity type.
type Service[E any] struct {
	repo     *repository.Repository[E]
	cache    cache.Store
	cacheTTL time.Duration
	metrics  *observability.Metrics
	limits   filter.Limits
	name     string
}

// New creates a Service on top of repo.
func New[E any](repo *repository.Repository[E], opts Options) *Service[E] {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &Service[E]{
		repo:     repo,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		limits:   opts.Limits,
		name:     repo.Entity().Table,
	}
}

// Name returns the table name of the served entity.
func (s *Service[E]) Name() string {
	return s.name
}

// NewRequestFilter returns an empty filter using the configured page size
// bounds.
func (s *Service[E]) NewRequestFilter() *filter.RequestFilter {
	return filter.NewRequestFilterWithLimits(s.limits)
}

// FindAll returns the records matching rf with the page metadata. Responses
// are cached by the canonical form of rf when a cache is configured.
func (s *Service[E]) FindAll(ctx context.Context, rf *filter.RequestFilter) (*entity.Response[E], error) {
	if rf == nil {
		rf = s.NewRequestFilter()
	}
	key := s.name + ":" + rf.String()

	ctx, span := observability.StartQuerySpan(ctx, "find_all", s.name, rf.Filter())
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if resp, ok := s.cached(ctx, key); ok {
		observability.AnnotateQuery(ctx, "", true)
		return resp, nil
	}

	var resp *entity.Response[E]
	resp, err = s.findAll(ctx, rf)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, resp)
	return resp, nil
}

func (s *Service[E]) findAll(ctx context.Context, rf *filter.RequestFilter) (*entity.Response[E], error) {
	plan, err := s.repo.Compile(rf)
	if err != nil {
		s.recordCompileError(err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCompile(s.name, plan.Mode.String())
	}
	observability.AnnotateQuery(ctx, plan.Mode.String(), false)

	records, err := s.repo.Find(ctx, plan)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, plan)
	if err != nil {
		return nil, err
	}

	meta := entity.Metadata{TotalCount: total, PageOffset: rf.Offset(), PageSize: rf.Limit()}
	if rf.HasValidAggregateFunction() {
		meta.PageSize = len(records)
	}
	if records == nil {
		records = []*E{}
	}
	return &entity.Response[E]{Records: records, Metadata: meta}, nil
}

// CountAll returns the number of records matching the filter of rf.
func (s *Service[E]) CountAll(ctx context.Context, rf *filter.RequestFilter) (int64, error) {
	if rf == nil {
		rf = s.NewRequestFilter()
	}

	ctx, span := observability.StartQuerySpan(ctx, "count_all", s.name, rf.Filter())
	total, err := s.repo.CountAll(ctx, rf)
	if err != nil {
		s.recordCompileError(err)
	}
	observability.EndSpan(span, err)
	return total, err
}

// FindByExternalID returns the record with the given external id.
func (s *Service[E]) FindByExternalID(ctx context.Context, externalID string) (*E, error) {
	return s.repo.FindByExternalID(ctx, externalID)
}

// Save inserts e.
func (s *Service[E]) Save(ctx context.Context, e *E) (*E, error) {
	saved, err := s.repo.Save(ctx, e)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return saved, nil
}

// Update overwrites the record identified by externalID.
func (s *Service[E]) Update(ctx context.Context, externalID string, e *E) (*E, error) {
	updated, err := s.repo.Update(ctx, externalID, e)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes the record identified by externalID.
func (s *Service[E]) Delete(ctx context.Context, externalID string) error {
	if err := s.repo.Delete(ctx, externalID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// LogicDelete deactivates the record identified by externalID.
func (s *Service[E]) LogicDelete(ctx context.Context, externalID string) (*E, error) {
	deleted, err := s.repo.LogicDelete(ctx, externalID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return deleted, nil
}

func (s *Service[E]) cached(ctx context.Context, key string) (*entity.Response[E], bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.cacheFailure("get", key, err)
		return nil, false
	}
	if data == nil {
		if s.metrics != nil {
			s.metrics.RecordCacheMiss(s.name)
		}
		return nil, false
	}

	var resp entity.Response[E]
	if err := json.Unmarshal(data, &resp); err != nil {
		s.cacheFailure("decode", key, err)
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.RecordCacheHit(s.name)
	}
	return &resp, true
}

func (s *Service[E]) store(ctx context.Context, key string, resp *entity.Response[E]) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		s.cacheFailure("encode", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.cacheFailure("set", key, err)
	}
}

// invalidate drops every cached response after a write.
func (s *Service[E]) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Reset(ctx); err != nil {
		s.cacheFailure("reset", s.name, err)
	}
}

func (s *Service[E]) cacheFailure(operation, key string, err error) {
	log.Warn().Err(err).Str("operation", operation).Str("key", key).Msg("Response cache unavailable, bypassing")
	if s.metrics != nil {
		s.metrics.RecordCacheError(operation)
	}
}

func (s *Service[E]) recordCompileError(err error) {
	if s.metrics == nil {
		return
	}
	if apiErr := apierror.From(err); apiErr.Kind == apierror.KindBadRequest {
		s.metrics.RecordCompileError(s.name, apiErr.Code)
	}
}
