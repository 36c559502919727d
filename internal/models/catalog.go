package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// City groups addresses and resolves a default pickup branch.
type City struct {
	Base
	Name            string  `json:"name" gorm:"type:varchar(60);not null"`
	DefaultBranchID *string `json:"defaultBranchId,omitempty" gorm:"type:varchar(36)"`
}

// Branch is a physical pharmacy that holds stock and serves pickups.
type Branch struct {
	Base
	Name    string  `json:"name" gorm:"type:varchar(100);not null"`
	CityID  *string `json:"cityId,omitempty" gorm:"type:varchar(36)"`
	Address string  `json:"address" gorm:"type:varchar(255)"`
	Phone   string  `json:"phone" gorm:"type:varchar(20)"`
	Active  bool    `json:"active"`
}

// Category groups products on the storefront.
type Category struct {
	Base
	Name        string `json:"name" gorm:"type:varchar(100);not null"`
	Description string `json:"description" gorm:"type:varchar(500)"`
	ImagePath   string `json:"imagePath" gorm:"type:varchar(255)"`
}

// ProductType classifies a product (tablet, syrup, device...).
type ProductType struct {
	Base
	Name string `json:"name" gorm:"type:varchar(100);not null"`
}

// Supplier provides products and receives reorder requests.
type Supplier struct {
	Base
	Name        string `json:"name" gorm:"type:varchar(100);not null"`
	ContactName string `json:"contactName" gorm:"type:varchar(100)"`
	Email       string `json:"email" gorm:"type:varchar(255)"`
	Phone       string `json:"phone" gorm:"type:varchar(20)"`
}

// Product represents a product in the store.
type Product struct {
	Base
	Name                 string          `json:"name" gorm:"type:varchar(150);not null;index"`
	Description          string          `json:"description" gorm:"type:varchar(1000)"`
	Price                decimal.Decimal `json:"price" gorm:"type:numeric(12,3);not null"`
	RequiresPrescription bool            `json:"requiresPrescription"`
	CategoryID           *string         `json:"categoryId,omitempty" gorm:"type:varchar(36);index"`
	ProductTypeID        *string         `json:"productTypeId,omitempty" gorm:"type:varchar(36);index"`
	SupplierID           *string         `json:"supplierId,omitempty" gorm:"type:varchar(36);index"`
	ImagePath            string          `json:"imagePath" gorm:"type:varchar(255)"`
	DeletedAt            gorm.DeletedAt  `json:"-" gorm:"index"`
}

// Inventory is the stock of one product at one branch.
type Inventory struct {
	Base
	BranchID         string `json:"branchId" gorm:"type:varchar(36);not null;uniqueIndex:idx_inventory_branch_product"`
	ProductID        string `json:"productId" gorm:"type:varchar(36);not null;uniqueIndex:idx_inventory_branch_product"`
	Quantity         int    `json:"quantity" gorm:"not null"`
	ReorderThreshold int    `json:"reorderThreshold"`
	ReorderQuantity  int    `json:"reorderQuantity"`
}

// NeedsReorder reports whether stock dropped to the reorder threshold.
func (i *Inventory) NeedsReorder() bool {
	return i.ReorderThreshold > 0 && i.Quantity <= i.ReorderThreshold
}

// ProductIncompatibility flags two products that should not be taken together.
type ProductIncompatibility struct {
	Base
	ProductID             string `json:"productId" gorm:"type:varchar(36);not null;index"`
	IncompatibleProductID string `json:"incompatibleProductId" gorm:"type:varchar(36);not null;index"`
	Note                  string `json:"note" gorm:"type:varchar(255)"`
}

// ProductConflict flags a product against an allergy or an illness.
// Exactly one of AllergyID and IllnessID is set.
type ProductConflict struct {
	Base
	ProductID string  `json:"productId" gorm:"type:varchar(36);not null;index"`
	AllergyID *string `json:"allergyId,omitempty" gorm:"type:varchar(36);index"`
	IllnessID *string `json:"illnessId,omitempty" gorm:"type:varchar(36);index"`
	Note      string  `json:"note" gorm:"type:varchar(255)"`
}

// ReorderRequest statuses.
const (
	ReorderOpen   = "open"
	ReorderClosed = "closed"
)

// ReorderRequest is raised when branch stock falls to its threshold.
type ReorderRequest struct {
	Base
	InventoryID string     `json:"inventoryId" gorm:"type:varchar(36);not null;index"`
	BranchID    string     `json:"branchId" gorm:"type:varchar(36);not null"`
	ProductID   string     `json:"productId" gorm:"type:varchar(36);not null"`
	SupplierID  *string    `json:"supplierId,omitempty" gorm:"type:varchar(36)"`
	Quantity    int        `json:"quantity"`
	Status      string     `json:"status" gorm:"type:varchar(10);index;not null"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

func (c City) GetName() string        { return c.Name }
func (b Branch) GetName() string      { return b.Name }
func (c Category) GetName() string    { return c.Name }
func (t ProductType) GetName() string { return t.Name }
func (s Supplier) GetName() string    { return s.Name }
