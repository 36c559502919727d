package repositories

import (
	"context"
	"fmt"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRepository covers per-branch stock.
type InventoryRepository interface {
	Upsert(ctx context.Context, inv *models.Inventory) error
	GetByID(ctx context.Context, id string) (*models.Inventory, error)
	Delete(ctx context.Context, id string) error
	ListByBranch(ctx context.Context, branchID string, q models.PageQuery) (models.Page[models.Inventory], error)
	ForProducts(ctx context.Context, branchID string, productIDs []string) ([]models.Inventory, error)
	TotalStock(ctx context.Context, productIDs []string) (map[string]int, error)
	Decrement(ctx context.Context, branchID, productID string, qty int) error
	Restock(ctx context.Context, id string, qty int) error
	Increment(ctx context.Context, branchID, productID string, qty int) error
	BelowThreshold(ctx context.Context) ([]models.Inventory, error)
}

// ReorderRepository tracks reorder requests raised for low stock.
type ReorderRepository interface {
	Create(ctx context.Context, req *models.ReorderRequest) error
	HasOpen(ctx context.Context, inventoryID string) (bool, error)
	Close(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (*models.ReorderRequest, error)
	List(ctx context.Context, status string, q models.PageQuery) (models.Page[models.ReorderRequest], error)
}

// GORMInventoryRepository is a GORM implementation of InventoryRepository.
type GORMInventoryRepository struct {
	db *gorm.DB
}

func NewGORMInventoryRepository(db *gorm.DB) *GORMInventoryRepository {
	return &GORMInventoryRepository{db: db}
}

// Upsert inserts the branch/product row or overwrites its quantity and reorder settings.
func (r *GORMInventoryRepository) Upsert(ctx context.Context, inv *models.Inventory) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "branch_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "reorder_threshold", "reorder_quantity", "updated_at"}),
	}).Create(inv).Error
	if err != nil {
		return fmt.Errorf("failed to upsert inventory: %w", err)
	}
	stored, err := r.get(ctx, inv.BranchID, inv.ProductID)
	if err != nil {
		return err
	}
	*inv = *stored
	return nil
}

func (r *GORMInventoryRepository) get(ctx context.Context, branchID, productID string) (*models.Inventory, error) {
	var inv models.Inventory
	err := r.db.WithContext(ctx).First(&inv, "branch_id = ? AND product_id = ?", branchID, productID).Error
	if err != nil {
		return nil, wrapFirst(err, "inventory", branchID+"/"+productID)
	}
	return &inv, nil
}

func (r *GORMInventoryRepository) GetByID(ctx context.Context, id string) (*models.Inventory, error) {
	var inv models.Inventory
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "inventory", id)
	}
	return &inv, nil
}

func (r *GORMInventoryRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Inventory{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete inventory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("inventory", id)
	}
	return nil
}

func (r *GORMInventoryRepository) ListByBranch(ctx context.Context, branchID string, q models.PageQuery) (models.Page[models.Inventory], error) {
	page := models.Page[models.Inventory]{Items: []models.Inventory{}}
	query := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Inventory{}).Where("branch_id = ?", branchID)
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count inventory: %w", err)
	}
	if err := query().Scopes(paginate(q)).Order("product_id").Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("failed to list inventory: %w", err)
	}
	return page, nil
}

func (r *GORMInventoryRepository) ForProducts(ctx context.Context, branchID string, productIDs []string) ([]models.Inventory, error) {
	items := []models.Inventory{}
	if len(productIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Where("branch_id = ? AND product_id IN ?", branchID, productIDs).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load branch inventory: %w", err)
	}
	return items, nil
}

// TotalStock sums stock across all branches per product.
func (r *GORMInventoryRepository) TotalStock(ctx context.Context, productIDs []string) (map[string]int, error) {
	totals := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return totals, nil
	}
	var rows []struct {
		ProductID string
		Total     int
	}
	err := r.db.WithContext(ctx).Model(&models.Inventory{}).
		Select("product_id, SUM(quantity) AS total").
		Where("product_id IN ?", productIDs).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum stock: %w", err)
	}
	for _, row := range rows {
		totals[row.ProductID] = row.Total
	}
	return totals, nil
}

// Decrement removes qty units at a branch, failing with a conflict when stock is short.
func (r *GORMInventoryRepository) Decrement(ctx context.Context, branchID, productID string, qty int) error {
	res := r.db.WithContext(ctx).Model(&models.Inventory{}).
		Where("branch_id = ? AND product_id = ? AND quantity >= ?", branchID, productID, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to decrement stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflictf("insufficient stock for product %s at branch %s", productID, branchID)
	}
	return nil
}

func (r *GORMInventoryRepository) Restock(ctx context.Context, id string, qty int) error {
	res := r.db.WithContext(ctx).Model(&models.Inventory{}).Where("id = ?", id).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to restock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("inventory", id)
	}
	return nil
}

// Increment returns qty units to a branch, creating the row when the branch never stocked the product.
func (r *GORMInventoryRepository) Increment(ctx context.Context, branchID, productID string, qty int) error {
	inv := models.Inventory{BranchID: branchID, ProductID: productID, Quantity: qty}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "branch_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("inventories.quantity + ?", qty),
			"updated_at": time.Now(),
		}),
	}).Create(&inv).Error
	if err != nil {
		return fmt.Errorf("failed to return stock: %w", err)
	}
	return nil
}

func (r *GORMInventoryRepository) BelowThreshold(ctx context.Context) ([]models.Inventory, error) {
	items := []models.Inventory{}
	err := r.db.WithContext(ctx).
		Where("reorder_threshold > 0 AND quantity <= reorder_threshold").
		Order("quantity").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load low stock: %w", err)
	}
	return items, nil
}

// GORMReorderRepository is a GORM implementation of ReorderRepository.
type GORMReorderRepository struct {
	db *gorm.DB
}

func NewGORMReorderRepository(db *gorm.DB) *GORMReorderRepository {
	return &GORMReorderRepository{db: db}
}

func (r *GORMReorderRepository) Create(ctx context.Context, req *models.ReorderRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create reorder request: %w", err)
	}
	return nil
}

func (r *GORMReorderRepository) HasOpen(ctx context.Context, inventoryID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ReorderRequest{}).
		Where("inventory_id = ? AND status = ?", inventoryID, models.ReorderOpen).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open reorders: %w", err)
	}
	return n > 0, nil
}

func (r *GORMReorderRepository) Close(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.ReorderRequest{}).
		Where("id = ? AND status = ?", id, models.ReorderOpen).
		Updates(map[string]any{"status": models.ReorderClosed, "closed_at": at})
	if res.Error != nil {
		return fmt.Errorf("failed to close reorder request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflictf("reorder request %s is not open", id)
	}
	return nil
}

func (r *GORMReorderRepository) GetByID(ctx context.Context, id string) (*models.ReorderRequest, error) {
	var req models.ReorderRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "reorder request", id)
	}
	return &req, nil
}

func (r *GORMReorderRepository) List(ctx context.Context, status string, q models.PageQuery) (models.Page[models.ReorderRequest], error) {
	page := models.Page[models.ReorderRequest]{Items: []models.ReorderRequest{}}
	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.ReorderRequest{})
		if status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count reorder requests: %w", err)
	}
	if err := query().Scopes(paginate(q)).Order("created_at DESC").Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("failed to list reorder requests: %w", err)
	}
	return page, nil
}
