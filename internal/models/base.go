package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the string UUID key and timestamps shared by every table.
type Base struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns an ID when the caller did not.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// GetID returns the primary key.
func (b Base) GetID() string {
	return b.ID
}

// Keys returns the embedded Base so generic code can carry keys across copies.
func (b *Base) Keys() *Base {
	return b
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageQuery is the pageNumber/pageSize pair accepted by list endpoints.
type PageQuery struct {
	PageNumber int `query:"pageNumber"`
	PageSize   int `query:"pageSize"`
}

// Normalize clamps the query into a usable range.
func (q PageQuery) Normalize() PageQuery {
	if q.PageNumber < 1 {
		q.PageNumber = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Offset is the row offset of the first item on the page.
func (q PageQuery) Offset() int {
	q = q.Normalize()
	return (q.PageNumber - 1) * q.PageSize
}

// Page is the {items, totalCount} envelope returned by paged endpoints.
type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
}
