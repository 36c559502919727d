package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/pkg/rabbitmq"
)

// InventoryInput sets the stock of one product at one branch.
type InventoryInput struct {
	BranchID         string `json:"branchId" validate:"required"`
	ProductID        string `json:"productId" validate:"required"`
	Quantity         int    `json:"quantity" validate:"gte=0"`
	ReorderThreshold int    `json:"reorderThreshold" validate:"gte=0"`
	ReorderQuantity  int    `json:"reorderQuantity" validate:"gte=0"`
}

// UnavailableItem is a cart line a branch cannot fill.
type UnavailableItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// BranchAvailability is what one branch is missing for a cart.
type BranchAvailability struct {
	Branch      models.Branch     `json:"branch"`
	Unavailable []UnavailableItem `json:"unavailable"`
}

// ReorderEvent is published when a reorder request is raised.
type ReorderEvent struct {
	ReorderID  string `json:"reorderId"`
	BranchID   string `json:"branchId"`
	ProductID  string `json:"productId"`
	SupplierID string `json:"supplierId,omitempty"`
	Quantity   int    `json:"quantity"`
}

// InventoryService manages branch stock and raises reorder requests.
type InventoryService struct {
	store         *repositories.Store
	notifications *NotificationService
	events        EventPublisher
	now           func() time.Time
}

func NewInventoryService(store *repositories.Store, notifications *NotificationService, events EventPublisher) *InventoryService {
	return &InventoryService{store: store, notifications: notifications, events: events, now: utcNow}
}

func (s *InventoryService) ListByBranch(ctx context.Context, branchID string, q models.PageQuery) (models.Page[models.Inventory], error) {
	if _, err := s.store.Branches.GetByID(ctx, branchID); err != nil {
		return models.Page[models.Inventory]{}, err
	}
	return s.store.Inventory.ListByBranch(ctx, branchID, q)
}

// Upsert writes the stock row for a branch and product.
func (s *InventoryService) Upsert(ctx context.Context, actor Actor, in InventoryInput) (*models.Inventory, error) {
	inv := &models.Inventory{
		BranchID:         in.BranchID,
		ProductID:        in.ProductID,
		Quantity:         in.Quantity,
		ReorderThreshold: in.ReorderThreshold,
		ReorderQuantity:  in.ReorderQuantity,
	}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := checkBranch(ctx, tx, in.BranchID); err != nil {
			return err
		}
		if _, err := tx.Products.GetByID(ctx, in.ProductID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Invalid("productId", "Unknown product")
			}
			return err
		}
		if err := tx.Inventory.Upsert(ctx, inv); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "inventory.set", "inventory", inv.ID, fmt.Sprintf("quantity %d", inv.Quantity))
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Restock adds qty units to a stock row.
func (s *InventoryService) Restock(ctx context.Context, actor Actor, id string, qty int) (*models.Inventory, error) {
	if qty <= 0 {
		return nil, apperr.Invalid("quantity", "Quantity must be greater than zero")
	}
	var inv *models.Inventory
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Inventory.Restock(ctx, id, qty); err != nil {
			return err
		}
		var err error
		if inv, err = tx.Inventory.GetByID(ctx, id); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "inventory.restock", "inventory", id, fmt.Sprintf("+%d", qty))
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *InventoryService) Delete(ctx context.Context, actor Actor, id string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Inventory.Delete(ctx, id); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "inventory.delete", "inventory", id, "")
	})
}

// Availability lists, for every active branch, the cart lines it cannot fill.
func (s *InventoryService) Availability(ctx context.Context, userID string) ([]BranchAvailability, error) {
	items, err := s.store.Carts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	branches, err := s.store.Branches.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	products, err := productsByID(ctx, s.store, cartProductIDs(items))
	if err != nil {
		return nil, err
	}
	out := make([]BranchAvailability, 0, len(branches))
	for _, b := range branches {
		if !b.Active {
			continue
		}
		missing, err := unavailableAt(ctx, s.store, b.ID, items, products)
		if err != nil {
			return nil, err
		}
		out = append(out, BranchAvailability{Branch: b, Unavailable: missing})
	}
	return out, nil
}

// LowStock lists rows at or below their reorder threshold, optionally for one branch.
func (s *InventoryService) LowStock(ctx context.Context, branchID string) ([]repositories.LowStockRow, error) {
	return s.store.Reports.LowStock(ctx, branchID)
}

func (s *InventoryService) ListReorders(ctx context.Context, status string, q models.PageQuery) (models.Page[models.ReorderRequest], error) {
	return s.store.Reorders.List(ctx, status, q)
}

// CloseReorder marks a reorder request as fulfilled.
func (s *InventoryService) CloseReorder(ctx context.Context, actor Actor, id string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Reorders.Close(ctx, id, s.now()); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "reorder.close", "reorder_request", id, "")
	})
}

// RunReorderSweep raises one reorder request per low stock row that has none open,
// emails the supplier and logs the action. It returns the number of requests raised.
func (s *InventoryService) RunReorderSweep(ctx context.Context) (int, error) {
	low, err := s.store.Inventory.BelowThreshold(ctx)
	if err != nil {
		return 0, err
	}
	raised := 0
	for i := range low {
		if ctx.Err() != nil {
			return raised, ctx.Err()
		}
		event, err := s.raiseReorder(ctx, &low[i])
		if err != nil {
			slog.ErrorContext(ctx, "reorder failed", "inventory_id", low[i].ID, "error", err)
			continue
		}
		if event == nil {
			continue
		}
		raised++
		publish(ctx, s.events, rabbitmq.KeyInventoryReorder, event)
	}
	return raised, nil
}

func (s *InventoryService) raiseReorder(ctx context.Context, inv *models.Inventory) (*ReorderEvent, error) {
	var event *ReorderEvent
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		open, err := tx.Reorders.HasOpen(ctx, inv.ID)
		if err != nil || open {
			return err
		}
		product, err := tx.Products.GetByID(ctx, inv.ProductID)
		if err != nil {
			return err
		}
		branch, err := tx.Branches.GetByID(ctx, inv.BranchID)
		if err != nil {
			return err
		}
		qty := inv.ReorderQuantity
		if qty <= 0 {
			qty = inv.ReorderThreshold * 2
		}
		req := &models.ReorderRequest{
			InventoryID: inv.ID,
			BranchID:    inv.BranchID,
			ProductID:   inv.ProductID,
			SupplierID:  product.SupplierID,
			Quantity:    qty,
			Status:      models.ReorderOpen,
		}
		if err := tx.Reorders.Create(ctx, req); err != nil {
			return err
		}
		details := fmt.Sprintf("%s at %s: %d on hand, ordering %d", product.Name, branch.Name, inv.Quantity, qty)
		if product.SupplierID != nil {
			supplier, err := tx.Suppliers.GetByID(ctx, *product.SupplierID)
			if err != nil {
				return err
			}
			if err := s.notifications.Enqueue(ctx, tx, reorderEmail(supplier, branch, product, qty)); err != nil {
				return err
			}
		} else {
			details += " (no supplier)"
		}
		if err := logActivity(ctx, tx, SystemActor, "reorder.raise", "reorder_request", req.ID, details); err != nil {
			return err
		}
		event = &ReorderEvent{ReorderID: req.ID, BranchID: req.BranchID, ProductID: req.ProductID, Quantity: qty}
		if req.SupplierID != nil {
			event.SupplierID = *req.SupplierID
		}
		return nil
	})
	return event, err
}

func cartProductIDs(items []models.CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func productsByID(ctx context.Context, store *repositories.Store, ids []string) (map[string]*models.Product, error) {
	products, err := store.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

// unavailableAt reports the cart lines branchID cannot fill from its own stock.
func unavailableAt(ctx context.Context, store *repositories.Store, branchID string, items []models.CartItem, products map[string]*models.Product) ([]UnavailableItem, error) {
	stock, err := store.Inventory.ForProducts(ctx, branchID, cartProductIDs(items))
	if err != nil {
		return nil, err
	}
	onHand := make(map[string]int, len(stock))
	for _, inv := range stock {
		onHand[inv.ProductID] = inv.Quantity
	}
	missing := []UnavailableItem{}
	for _, it := range items {
		if onHand[it.ProductID] >= it.Quantity {
			continue
		}
		name := it.ProductID
		if p, ok := products[it.ProductID]; ok {
			name = p.Name
		}
		missing = append(missing, UnavailableItem{
			ProductID: it.ProductID,
			Name:      name,
			Requested: it.Quantity,
			Available: onHand[it.ProductID],
		})
	}
	return missing, nil
}
