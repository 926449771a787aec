// Package entity provides the embeddable base types for entities served
// through the filter API and the response envelope returned by list calls.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Aggregatable is implemented by entities that can carry aggregate
// results. BaseEntity implements it.
type Aggregatable interface {
	AddSum(values map[string]interface{})
	AddAvg(values map[string]interface{})
	AddCount(values map[string]interface{})
	AddCountDistinct(values map[string]interface{})
}

// BaseEntity carries the numeric primary key and the nested aggregate maps
// filled in aggregation mode.
type BaseEntity struct {
	ID            int64                  `json:"id,omitempty" db:"id"`
	Sum           map[string]interface{} `json:"sum,omitempty" db:"-"`
	Avg           map[string]interface{} `json:"avg,omitempty" db:"-"`
	Count         map[string]interface{} `json:"count,omitempty" db:"-"`
	CountDistinct map[string]interface{} `json:"countDistinct,omitempty" db:"-"`
}

// AddSum merges values into the sum map.
func (e *BaseEntity) AddSum(values map[string]interface{}) {
	e.Sum = MergeNested(e.Sum, values)
}

// AddAvg merges values into the avg map.
func (e *BaseEntity) AddAvg(values map[string]interface{}) {
	e.Avg = MergeNested(e.Avg, values)
}

// AddCount merges values into the count map.
func (e *BaseEntity) AddCount(values map[string]interface{}) {
	e.Count = MergeNested(e.Count, values)
}

// AddCountDistinct merges values into the countDistinct map.
func (e *BaseEntity) AddCountDistinct(values map[string]interface{}) {
	e.CountDistinct = MergeNested(e.CountDistinct, values)
}

// GetID returns the primary key.
func (e *BaseEntity) GetID() int64 {
	return e.ID
}

// SetID sets the primary key.
func (e *BaseEntity) SetID(id int64) {
	e.ID = id
}

// MergeNested grafts src into dst. Where both sides hold a map under the
// same key the merge descends; otherwise the src value wins. Keys already
// present in dst are kept. A nil dst is allocated.
func MergeNested(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for key, value := range src {
		existing, hasExisting := dst[key].(map[string]interface{})
		incoming, isMap := value.(map[string]interface{})
		if hasExisting && isMap {
			dst[key] = MergeNested(existing, incoming)
			continue
		}
		if isMap {
			dst[key] = MergeNested(nil, incoming)
			continue
		}
		dst[key] = value
	}
	return dst
}

// BaseAPIEntity adds the public identifier, soft delete flag and audit
// dates.
type BaseAPIEntity struct {
	BaseEntity
	ExternalID string     `json:"externalId,omitempty" db:"external_id"`
	Active     bool       `json:"active" db:"active"`
	InsertDate time.Time  `json:"insertDate,omitempty" db:"insert_date"`
	UpdateDate *time.Time `json:"updateDate,omitempty" db:"update_date"`
	DeleteDate *time.Time `json:"deleteDate,omitempty" db:"delete_date"`
}

// APIEntity is implemented by any struct embedding BaseAPIEntity.
type APIEntity interface {
	Aggregatable
	GetID() int64
	SetID(id int64)
	API() *BaseAPIEntity
}

// API returns the embedded base.
func (e *BaseAPIEntity) API() *BaseAPIEntity {
	return e
}

// MarkCreated assigns a new external id when missing and stamps the insert
// date.
func (e *BaseAPIEntity) MarkCreated(now time.Time) {
	if e.ExternalID == "" {
		e.ExternalID = NewExternalID()
	}
	e.Active = true
	e.InsertDate = now.UTC()
}

// MarkUpdated stamps the update date.
func (e *BaseAPIEntity) MarkUpdated(now time.Time) {
	t := now.UTC()
	e.UpdateDate = &t
}

// MarkDeleted deactivates the entity and stamps the delete date.
func (e *BaseAPIEntity) MarkDeleted(now time.Time) {
	t := now.UTC()
	e.Active = false
	e.DeleteDate = &t
}

// NewExternalID returns a random 32 character hex identifier.
func NewExternalID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
