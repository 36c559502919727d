package repositories

import (
	"context"
	"fmt"
	"strings"

	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// List retrieves one page of products matching filter, ordered by name.
func (r *GORMProductRepository) List(ctx context.Context, filter ProductFilter) (models.Page[models.Product], error) {
	page := models.Page[models.Product]{Items: []models.Product{}}
	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.Product{})
		if s := strings.TrimSpace(filter.Search); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			db = db.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
		}
		if filter.CategoryID != "" {
			db = db.Where("category_id = ?", filter.CategoryID)
		}
		if filter.ProductTypeID != "" {
			db = db.Where("product_type_id = ?", filter.ProductTypeID)
		}
		if filter.SupplierID != "" {
			db = db.Where("supplier_id = ?", filter.SupplierID)
		}
		if filter.RequiresPrescription != nil {
			db = db.Where("requires_prescription = ?", *filter.RequiresPrescription)
		}
		if filter.MinPrice != nil {
			db = db.Where("price >= ?", *filter.MinPrice)
		}
		if filter.MaxPrice != nil {
			db = db.Where("price <= ?", *filter.MaxPrice)
		}
		return db
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count products: %w", err)
	}
	if err := query().Scopes(paginate(filter.PageQuery)).Order("name").Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("failed to list products: %w", err)
	}
	return page, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "product", id)
	}
	return &product, nil
}

// GetByIDs loads the given products; missing or deleted IDs are simply absent from the result.
func (r *GORMProductRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	products := []models.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	return products, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update updates an existing product in the database.
func (r *GORMProductRepository) Update(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// Delete soft-deletes a product so past orders keep resolving it.
func (r *GORMProductRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("product", id)
	}
	return nil
}

// CountReferencing counts live products whose column equals id.
func (r *GORMProductRepository) CountReferencing(ctx context.Context, column, id string) (int64, error) {
	switch column {
	case "category_id", "product_type_id", "supplier_id":
	default:
		return 0, fmt.Errorf("unsupported product reference column %q", column)
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where(column+" = ?", id).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count products by %s: %w", column, err)
	}
	return n, nil
}
