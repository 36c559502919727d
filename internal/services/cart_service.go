package services

import (
	"context"

	"pharmacy/internal/apperr"
	"pharmacy/internal/checkout"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"

	"github.com/shopspring/decimal"
)

// CartLine is a cart line with its price and warnings resolved.
type CartLine struct {
	checkout.Line
	ImagePath string          `json:"imagePath,omitempty"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	InStock   int             `json:"inStock"`
}

// CartView is the cart as the storefront renders it.
type CartView struct {
	Lines             []CartLine      `json:"lines"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Currency          string          `json:"currency"`
	NeedsConfirmation bool            `json:"needsConfirmation"`
	Steps             []checkout.Step `json:"steps"`
}

// DraftLine is a line from a cart the client held before signing in.
type DraftLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

// CartService keeps one server-side cart per user. Every mutation is idempotent.
type CartService struct {
	store    *repositories.Store
	currency string
}

func NewCartService(store *repositories.Store, currency string) *CartService {
	return &CartService{store: store, currency: currency}
}

func (s *CartService) View(ctx context.Context, userID string) (*CartView, error) {
	items, err := s.store.Carts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines, products, err := cartLines(ctx, s.store, userID, items)
	if err != nil {
		return nil, err
	}
	stock, err := s.store.Inventory.TotalStock(ctx, cartProductIDs(items))
	if err != nil {
		return nil, err
	}

	view := &CartView{Lines: make([]CartLine, 0, len(lines)), Currency: s.currency, Subtotal: decimal.Zero}
	for _, l := range lines {
		total := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		view.Lines = append(view.Lines, CartLine{
			Line:      l,
			ImagePath: products[l.ProductID].ImagePath,
			LineTotal: total,
			InStock:   stock[l.ProductID],
		})
		view.Subtotal = view.Subtotal.Add(total)
	}
	view.NeedsConfirmation = checkout.NeedsIncompatibilityConfirmation(lines)
	view.Steps = checkout.Steps(lines)
	return view, nil
}

// Add puts productID in the cart with qty units. A product already in the cart
// is left as it is, so repeating Add has no further effect.
func (s *CartService) Add(ctx context.Context, userID, productID string, qty int) (*CartView, error) {
	if qty <= 0 {
		qty = 1
	}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		existing, err := tx.Carts.Get(ctx, userID, productID)
		if err != nil || existing != nil {
			return err
		}
		if err := checkStock(ctx, tx, productID, qty); err != nil {
			return err
		}
		return tx.Carts.SetQuantity(ctx, userID, productID, qty)
	})
	if err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

// SetQuantity writes an absolute quantity; zero removes the line.
func (s *CartService) SetQuantity(ctx context.Context, userID, productID string, qty int) (*CartView, error) {
	if qty < 0 {
		return nil, apperr.Invalid("quantity", "Quantity cannot be negative")
	}
	if qty == 0 {
		return s.Remove(ctx, userID, productID)
	}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := checkStock(ctx, tx, productID, qty); err != nil {
			return err
		}
		return tx.Carts.SetQuantity(ctx, userID, productID, qty)
	})
	if err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

func (s *CartService) Remove(ctx context.Context, userID, productID string) (*CartView, error) {
	if err := s.store.Carts.Remove(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	return s.store.Carts.Clear(ctx, userID)
}

// Reconcile merges a client-held draft into the server cart. Lines already on the
// server keep their quantity; new lines are clamped to stock and unknown or
// unavailable products are dropped.
func (s *CartService) Reconcile(ctx context.Context, userID string, draft []DraftLine) (*CartView, error) {
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		ids := make([]string, 0, len(draft))
		for _, d := range draft {
			ids = append(ids, d.ProductID)
		}
		products, err := productsByID(ctx, tx, ids)
		if err != nil {
			return err
		}
		stock, err := tx.Inventory.TotalStock(ctx, ids)
		if err != nil {
			return err
		}
		for _, d := range draft {
			if _, ok := products[d.ProductID]; !ok || d.Quantity <= 0 {
				continue
			}
			existing, err := tx.Carts.Get(ctx, userID, d.ProductID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			qty := min(d.Quantity, stock[d.ProductID])
			if qty <= 0 {
				continue
			}
			if err := tx.Carts.SetQuantity(ctx, userID, d.ProductID, qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

// WishlistService keeps saved-for-later products per user.
type WishlistService struct {
	store *repositories.Store
}

func NewWishlistService(store *repositories.Store) *WishlistService {
	return &WishlistService{store: store}
}

// List returns the wishlisted products that still exist.
func (s *WishlistService) List(ctx context.Context, userID string) ([]models.Product, error) {
	items, err := s.store.Wishlists.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return s.store.Products.GetByIDs(ctx, ids)
}

func (s *WishlistService) Add(ctx context.Context, userID, productID string) error {
	if _, err := s.store.Products.GetByID(ctx, productID); err != nil {
		return err
	}
	return s.store.Wishlists.Add(ctx, userID, productID)
}

func (s *WishlistService) Remove(ctx context.Context, userID, productID string) error {
	return s.store.Wishlists.Remove(ctx, userID, productID)
}

// MoveToCart adds the product to the cart and drops it from the wishlist together.
func (s *WishlistService) MoveToCart(ctx context.Context, userID, productID string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		existing, err := tx.Carts.Get(ctx, userID, productID)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := checkStock(ctx, tx, productID, 1); err != nil {
				return err
			}
			if err := tx.Carts.SetQuantity(ctx, userID, productID, 1); err != nil {
				return err
			}
		}
		return tx.Wishlists.Remove(ctx, userID, productID)
	})
}

// checkStock rejects quantities above what all branches hold together.
func checkStock(ctx context.Context, tx *repositories.Store, productID string, qty int) error {
	product, err := tx.Products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	stock, err := tx.Inventory.TotalStock(ctx, []string{productID})
	if err != nil {
		return err
	}
	if stock[productID] < qty {
		if stock[productID] == 0 {
			return apperr.Conflictf("%s is out of stock", product.Name)
		}
		return apperr.Conflictf("only %d of %s in stock", stock[productID], product.Name)
	}
	return nil
}

// cartLines resolves cart items into checkout lines with incompatibility warnings
// against the other lines and the user's health profile. Items whose product was
// removed from the catalog are skipped.
func cartLines(ctx context.Context, store *repositories.Store, userID string, items []models.CartItem) ([]checkout.Line, map[string]*models.Product, error) {
	ids := cartProductIDs(items)
	products, err := productsByID(ctx, store, ids)
	if err != nil {
		return nil, nil, err
	}

	lines := make([]checkout.Line, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		index[p.ID] = len(lines)
		lines = append(lines, checkout.Line{
			ProductID:         p.ID,
			Name:              p.Name,
			UnitPrice:         p.Price,
			Quantity:          it.Quantity,
			Prescribed:        p.RequiresPrescription,
			Incompatibilities: []checkout.Warning{},
		})
	}
	if len(lines) == 0 {
		return lines, products, nil
	}

	incs, err := store.Health.IncompatibilitiesFor(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, inc := range incs {
		a, okA := index[inc.ProductID]
		b, okB := index[inc.IncompatibleProductID]
		if !okA || !okB {
			continue
		}
		lines[a].Incompatibilities = append(lines[a].Incompatibilities, checkout.Warning{
			Kind: checkout.WarningProduct, RefID: lines[b].ProductID, RefName: lines[b].Name, Note: inc.Note,
		})
		lines[b].Incompatibilities = append(lines[b].Incompatibilities, checkout.Warning{
			Kind: checkout.WarningProduct, RefID: lines[a].ProductID, RefName: lines[a].Name, Note: inc.Note,
		})
	}

	conflicts, err := store.Health.ConflictsFor(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	if len(conflicts) == 0 {
		return lines, products, nil
	}
	allergies, err := healthNames(ctx, userID, store.Health.UserAllergyIDs, store.Allergies.ListAll)
	if err != nil {
		return nil, nil, err
	}
	illnesses, err := healthNames(ctx, userID, store.Health.UserIllnessIDs, store.Illnesses.ListAll)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range conflicts {
		i, ok := index[c.ProductID]
		if !ok {
			continue
		}
		switch {
		case c.AllergyID != nil:
			if name, has := allergies[*c.AllergyID]; has {
				lines[i].Incompatibilities = append(lines[i].Incompatibilities, checkout.Warning{
					Kind: checkout.WarningAllergy, RefID: *c.AllergyID, RefName: name, Note: c.Note,
				})
			}
		case c.IllnessID != nil:
			if name, has := illnesses[*c.IllnessID]; has {
				lines[i].Incompatibilities = append(lines[i].Incompatibilities, checkout.Warning{
					Kind: checkout.WarningIllness, RefID: *c.IllnessID, RefName: name, Note: c.Note,
				})
			}
		}
	}
	return lines, products, nil
}

// healthNames maps the user's allergy or illness IDs to their names.
func healthNames[T named](
	ctx context.Context,
	userID string,
	userIDs func(context.Context, string) ([]string, error),
	all func(context.Context) ([]T, error),
) (map[string]string, error) {
	mine, err := userIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(mine) == 0 {
		return map[string]string{}, nil
	}
	entries, err := all(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		names[e.GetID()] = e.GetName()
	}
	out := make(map[string]string, len(mine))
	for _, id := range mine {
		if n, ok := names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

type named interface {
	GetID() string
	GetName() string
}
