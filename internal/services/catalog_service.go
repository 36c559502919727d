package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"

	"github.com/shopspring/decimal"
)

// ImageExtensions are the upload types accepted for catalog images.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// FileStore persists uploaded files and returns their path relative to the upload root.
// Catalog images live in these public folders of the file store.
const (
	ProductImageFolder  = "products"
	CategoryImageFolder = "categories"
)

type FileStore interface {
	Save(folder, filename string, src io.Reader, allowed []string) (string, error)
	Delete(path string) error
	Exists(path string) bool
	Locate(path string) (string, error)
}

type namedEntity[T any] interface {
	*T
	GetID() string
	GetName() string
	Keys() *models.Base
}

// NamedCatalog manages one lookup table keyed by a case-insensitively unique name.
type NamedCatalog[T any, P namedEntity[T]] struct {
	store  *repositories.Store
	entity string
	repo   func(*repositories.Store) repositories.NamedRepository[T]
	// product column that references this table; empty when products never do
	refColumn string
}

func newNamedCatalog[T any, P namedEntity[T]](store *repositories.Store, entity, refColumn string, repo func(*repositories.Store) repositories.NamedRepository[T]) *NamedCatalog[T, P] {
	return &NamedCatalog[T, P]{store: store, entity: entity, repo: repo, refColumn: refColumn}
}

func (c *NamedCatalog[T, P]) List(ctx context.Context, q models.PageQuery) (models.Page[T], error) {
	return c.repo(c.store).List(ctx, q)
}

func (c *NamedCatalog[T, P]) All(ctx context.Context) ([]T, error) {
	return c.repo(c.store).ListAll(ctx)
}

func (c *NamedCatalog[T, P]) Get(ctx context.Context, id string) (*T, error) {
	return c.repo(c.store).GetByID(ctx, id)
}

func (c *NamedCatalog[T, P]) Create(ctx context.Context, actor Actor, entity *T) error {
	name := strings.TrimSpace(P(entity).GetName())
	if name == "" {
		return apperr.Invalid("name", "Name is required")
	}
	P(entity).Keys().ID = ""
	return c.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := c.ensureUnique(ctx, tx, name, ""); err != nil {
			return err
		}
		if err := c.repo(tx).Create(ctx, entity); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, c.action("create"), c.entity, P(entity).GetID(), name)
	})
}

// Update replaces the stored row with entity, keeping its key and creation time.
func (c *NamedCatalog[T, P]) Update(ctx context.Context, actor Actor, id string, entity *T) error {
	name := strings.TrimSpace(P(entity).GetName())
	if name == "" {
		return apperr.Invalid("name", "Name is required")
	}
	return c.store.Transaction(ctx, func(tx *repositories.Store) error {
		existing, err := c.repo(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := c.ensureUnique(ctx, tx, name, id); err != nil {
			return err
		}
		keys := P(entity).Keys()
		keys.ID = id
		keys.CreatedAt = P(existing).Keys().CreatedAt
		if err := c.repo(tx).Update(ctx, entity); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, c.action("update"), c.entity, id, name)
	})
}

// Delete removes the row unless live products still reference it.
func (c *NamedCatalog[T, P]) Delete(ctx context.Context, actor Actor, id string) error {
	return c.store.Transaction(ctx, func(tx *repositories.Store) error {
		existing, err := c.repo(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		if c.refColumn != "" {
			n, err := tx.Products.CountReferencing(ctx, c.refColumn, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return apperr.Conflictf("%s '%s' is used by %d product(s)", c.entity, P(existing).GetName(), n)
			}
		}
		if err := c.repo(tx).Delete(ctx, id); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, c.action("delete"), c.entity, id, P(existing).GetName())
	})
}

func (c *NamedCatalog[T, P]) ensureUnique(ctx context.Context, tx *repositories.Store, name, selfID string) error {
	found, err := c.repo(tx).FindByName(ctx, name)
	if err != nil {
		return err
	}
	if found != nil && P(found).GetID() != selfID {
		return apperr.Conflictf("%s '%s' already exists", c.entity, name)
	}
	return nil
}

func (c *NamedCatalog[T, P]) action(verb string) string {
	return strings.ReplaceAll(c.entity, " ", "_") + "." + verb
}

// ProductInput is the body accepted when creating or updating a product.
type ProductInput struct {
	Name                 string          `json:"name" validate:"required,max=150"`
	Description          string          `json:"description" validate:"max=1000"`
	Price                decimal.Decimal `json:"price"`
	RequiresPrescription bool            `json:"requiresPrescription"`
	CategoryID           string          `json:"categoryId"`
	ProductTypeID        string          `json:"productTypeId"`
	SupplierID           string          `json:"supplierId"`
}

// ProductHealth lists the incompatibilities and conflicts recorded for a product.
type ProductHealth struct {
	Incompatibilities []models.ProductIncompatibility `json:"incompatibilities"`
	Conflicts         []models.ProductConflict        `json:"conflicts"`
}

// CatalogService owns the storefront catalog and its lookup tables.
type CatalogService struct {
	store *repositories.Store
	files FileStore

	Categories   *NamedCatalog[models.Category, *models.Category]
	ProductTypes *NamedCatalog[models.ProductType, *models.ProductType]
	Suppliers    *NamedCatalog[models.Supplier, *models.Supplier]
	Branches     *NamedCatalog[models.Branch, *models.Branch]
	Cities       *NamedCatalog[models.City, *models.City]
	Allergies    *NamedCatalog[models.Allergy, *models.Allergy]
	Illnesses    *NamedCatalog[models.Illness, *models.Illness]
}

func NewCatalogService(store *repositories.Store, files FileStore) *CatalogService {
	return &CatalogService{
		store: store,
		files: files,
		Categories: newNamedCatalog[models.Category, *models.Category](store, "category", "category_id",
			func(s *repositories.Store) repositories.NamedRepository[models.Category] { return s.Categories }),
		ProductTypes: newNamedCatalog[models.ProductType, *models.ProductType](store, "product type", "product_type_id",
			func(s *repositories.Store) repositories.NamedRepository[models.ProductType] { return s.ProductTypes }),
		Suppliers: newNamedCatalog[models.Supplier, *models.Supplier](store, "supplier", "supplier_id",
			func(s *repositories.Store) repositories.NamedRepository[models.Supplier] { return s.Suppliers }),
		Branches: newNamedCatalog[models.Branch, *models.Branch](store, "branch", "",
			func(s *repositories.Store) repositories.NamedRepository[models.Branch] { return s.Branches }),
		Cities: newNamedCatalog[models.City, *models.City](store, "city", "",
			func(s *repositories.Store) repositories.NamedRepository[models.City] { return s.Cities }),
		Allergies: newNamedCatalog[models.Allergy, *models.Allergy](store, "allergy", "",
			func(s *repositories.Store) repositories.NamedRepository[models.Allergy] { return s.Allergies }),
		Illnesses: newNamedCatalog[models.Illness, *models.Illness](store, "illness", "",
			func(s *repositories.Store) repositories.NamedRepository[models.Illness] { return s.Illnesses }),
	}
}

// ListProducts returns the filtered, paged storefront listing.
func (s *CatalogService) ListProducts(ctx context.Context, filter repositories.ProductFilter) (models.Page[models.Product], error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return models.Page[models.Product]{}, apperr.Invalid("minPrice", "Minimum price cannot exceed maximum price")
	}
	return s.store.Products.List(ctx, filter)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.store.Products.GetByID(ctx, id)
}

func (s *CatalogService) CreateProduct(ctx context.Context, actor Actor, in ProductInput) (*models.Product, error) {
	product := &models.Product{}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := applyProductInput(ctx, tx, product, in); err != nil {
			return err
		}
		if err := tx.Products.Create(ctx, product); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "product.create", "product", product.ID, product.Name)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct changes catalog fields. Placed orders keep their own price snapshot.
func (s *CatalogService) UpdateProduct(ctx context.Context, actor Actor, id string, in ProductInput) (*models.Product, error) {
	var product *models.Product
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		product, err = tx.Products.GetByID(ctx, id)
		if err != nil {
			return err
		}
		before := product.Price
		if err := applyProductInput(ctx, tx, product, in); err != nil {
			return err
		}
		if err := tx.Products.Update(ctx, product); err != nil {
			return err
		}
		details := product.Name
		if !before.Equal(product.Price) {
			details = fmt.Sprintf("%s price %s -> %s", product.Name, before.StringFixed(3), product.Price.StringFixed(3))
		}
		return logActivity(ctx, tx, actor, "product.update", "product", id, details)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, actor Actor, id string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		product, err := tx.Products.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Products.Delete(ctx, id); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "product.delete", "product", id, product.Name)
	})
}

// SetProductImage stores an uploaded image and points the product at it.
func (s *CatalogService) SetProductImage(ctx context.Context, actor Actor, id, filename string, src io.Reader) (*models.Product, error) {
	product, err := s.store.Products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	path, err := s.saveImage(ProductImageFolder, filename, src)
	if err != nil {
		return nil, err
	}
	previous := product.ImagePath
	product.ImagePath = path
	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Products.Update(ctx, product); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "product.image", "product", id, path)
	})
	if err != nil {
		s.removeFile(path)
		return nil, err
	}
	s.removeFile(previous)
	return product, nil
}

// SetCategoryImage stores an uploaded image for a category.
func (s *CatalogService) SetCategoryImage(ctx context.Context, actor Actor, id, filename string, src io.Reader) (*models.Category, error) {
	category, err := s.store.Categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	path, err := s.saveImage(CategoryImageFolder, filename, src)
	if err != nil {
		return nil, err
	}
	previous := category.ImagePath
	category.ImagePath = path
	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Categories.Update(ctx, category); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "category.image", "category", id, path)
	})
	if err != nil {
		s.removeFile(path)
		return nil, err
	}
	s.removeFile(previous)
	return category, nil
}

// ProductHealth returns what the product is flagged against.
func (s *CatalogService) ProductHealth(ctx context.Context, id string) (*ProductHealth, error) {
	if _, err := s.store.Products.GetByID(ctx, id); err != nil {
		return nil, err
	}
	incs, err := s.store.Health.IncompatibilitiesFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	conflicts, err := s.store.Health.ConflictsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return &ProductHealth{Incompatibilities: incs, Conflicts: conflicts}, nil
}

// AddIncompatibility flags two products as not to be taken together.
func (s *CatalogService) AddIncompatibility(ctx context.Context, actor Actor, productID, otherID, note string) (*models.ProductIncompatibility, error) {
	if productID == otherID {
		return nil, apperr.Invalid("incompatibleProductId", "A product cannot be incompatible with itself")
	}
	inc := &models.ProductIncompatibility{ProductID: productID, IncompatibleProductID: otherID, Note: note}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		products, err := tx.Products.GetByIDs(ctx, []string{productID, otherID})
		if err != nil {
			return err
		}
		if len(products) != 2 {
			return apperr.NotFoundf("product with ID %s or %s not found", productID, otherID)
		}
		existing, err := tx.Health.IncompatibilitiesFor(ctx, []string{productID})
		if err != nil {
			return err
		}
		for _, e := range existing {
			if (e.ProductID == productID && e.IncompatibleProductID == otherID) ||
				(e.ProductID == otherID && e.IncompatibleProductID == productID) {
				return apperr.Conflictf("incompatibility already recorded")
			}
		}
		if err := tx.Health.CreateIncompatibility(ctx, inc); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "incompatibility.create", "product", productID, otherID)
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

func (s *CatalogService) RemoveIncompatibility(ctx context.Context, actor Actor, id string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Health.DeleteIncompatibility(ctx, id); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "incompatibility.delete", "incompatibility", id, "")
	})
}

// ConflictInput flags a product against exactly one allergy or illness.
type ConflictInput struct {
	AllergyID string `json:"allergyId"`
	IllnessID string `json:"illnessId"`
	Note      string `json:"note" validate:"max=255"`
}

func (s *CatalogService) AddConflict(ctx context.Context, actor Actor, productID string, in ConflictInput) (*models.ProductConflict, error) {
	if (in.AllergyID == "") == (in.IllnessID == "") {
		return nil, apperr.Invalid("allergyId", "Provide exactly one of allergyId and illnessId")
	}
	conflict := &models.ProductConflict{ProductID: productID, Note: in.Note}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if _, err := tx.Products.GetByID(ctx, productID); err != nil {
			return err
		}
		if in.AllergyID != "" {
			if _, err := tx.Allergies.GetByID(ctx, in.AllergyID); err != nil {
				return err
			}
			conflict.AllergyID = &in.AllergyID
		} else {
			if _, err := tx.Illnesses.GetByID(ctx, in.IllnessID); err != nil {
				return err
			}
			conflict.IllnessID = &in.IllnessID
		}
		if err := tx.Health.CreateConflict(ctx, conflict); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "conflict.create", "product", productID, in.AllergyID+in.IllnessID)
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

func (s *CatalogService) RemoveConflict(ctx context.Context, actor Actor, id string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Health.DeleteConflict(ctx, id); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "conflict.delete", "product_conflict", id, "")
	})
}

func (s *CatalogService) saveImage(folder, filename string, src io.Reader) (string, error) {
	if s.files == nil {
		return "", errors.New("file storage is not configured")
	}
	path, err := s.files.Save(folder, filename, src, ImageExtensions)
	if err != nil {
		return "", uploadError("image", err)
	}
	return path, nil
}

func (s *CatalogService) removeFile(path string) {
	if path == "" || s.files == nil {
		return
	}
	_ = s.files.Delete(path)
}

func applyProductInput(ctx context.Context, tx *repositories.Store, p *models.Product, in ProductInput) error {
	ve := newValidation()
	if strings.TrimSpace(in.Name) == "" {
		ve.Add("name", "Name is required")
	}
	if !in.Price.IsPositive() {
		ve.Add("price", "Price must be greater than zero")
	}
	refs := []struct {
		field string
		id    string
		check func() error
	}{
		{"categoryId", in.CategoryID, func() error { _, err := tx.Categories.GetByID(ctx, in.CategoryID); return err }},
		{"productTypeId", in.ProductTypeID, func() error { _, err := tx.ProductTypes.GetByID(ctx, in.ProductTypeID); return err }},
		{"supplierId", in.SupplierID, func() error { _, err := tx.Suppliers.GetByID(ctx, in.SupplierID); return err }},
	}
	for _, ref := range refs {
		if ref.id == "" {
			continue
		}
		if err := ref.check(); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			ve.Add(ref.field, "Unknown reference")
		}
	}
	if err := ve.OrNil(); err != nil {
		return err
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price.Round(3)
	p.RequiresPrescription = in.RequiresPrescription
	p.CategoryID = optional(in.CategoryID)
	p.ProductTypeID = optional(in.ProductTypeID)
	p.SupplierID = optional(in.SupplierID)
	return nil
}

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
