package repositories

import (
	"context"
	"errors"
	"fmt"

	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// NamedRepository is the data access shape shared by simple named lookup tables
// (cities, branches, categories, product types, suppliers, allergies, illnesses).
type NamedRepository[T any] interface {
	Create(ctx context.Context, entity *T) error
	GetByID(ctx context.Context, id string) (*T, error)
	FindByName(ctx context.Context, name string) (*T, error)
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q models.PageQuery) (models.Page[T], error)
	ListAll(ctx context.Context) ([]T, error)
}

// GORMNamedRepository is a GORM implementation of NamedRepository.
type GORMNamedRepository[T any] struct {
	db     *gorm.DB
	entity string
}

// NewGORMNamedRepository creates a NamedRepository for T; entity names T in error messages.
func NewGORMNamedRepository[T any](db *gorm.DB, entity string) *GORMNamedRepository[T] {
	return &GORMNamedRepository[T]{db: db, entity: entity}
}

func (r *GORMNamedRepository[T]) Create(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", r.entity, err)
	}
	return nil
}

func (r *GORMNamedRepository[T]) GetByID(ctx context.Context, id string) (*T, error) {
	var entity T
	if err := r.db.WithContext(ctx).First(&entity, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, r.entity, id)
	}
	return &entity, nil
}

// FindByName matches case-insensitively; it returns (nil, nil) when nothing matches.
func (r *GORMNamedRepository[T]) FindByName(ctx context.Context, name string) (*T, error) {
	var entity T
	err := r.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by name: %w", r.entity, err)
	}
	return &entity, nil
}

func (r *GORMNamedRepository[T]) Update(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update %s: %w", r.entity, err)
	}
	return nil
}

func (r *GORMNamedRepository[T]) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(new(T), "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s: %w", r.entity, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(r.entity, id)
	}
	return nil
}

func (r *GORMNamedRepository[T]) List(ctx context.Context, q models.PageQuery) (models.Page[T], error) {
	page := models.Page[T]{Items: []T{}}
	if err := r.db.WithContext(ctx).Model(new(T)).Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count %s: %w", r.entity, err)
	}
	if err := r.db.WithContext(ctx).Scopes(paginate(q)).Order("name").Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("failed to list %s: %w", r.entity, err)
	}
	return page, nil
}

func (r *GORMNamedRepository[T]) ListAll(ctx context.Context) ([]T, error) {
	items := []T{}
	if err := r.db.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.entity, err)
	}
	return items, nil
}
