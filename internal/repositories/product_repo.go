package repositories

import (
	"context"

	"pharmacy/internal/models"

	"github.com/shopspring/decimal"
)

// ProductFilter narrows the storefront product listing.
type ProductFilter struct {
	Search               string
	CategoryID           string
	ProductTypeID        string
	SupplierID           string
	RequiresPrescription *bool
	MinPrice             *decimal.Decimal
	MaxPrice             *decimal.Decimal
	models.PageQuery
}

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) (models.Page[models.Product], error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
	CountReferencing(ctx context.Context, column, id string) (int64, error)
}
