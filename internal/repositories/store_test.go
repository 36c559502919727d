package repositories_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/database"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *repositories.Store {
	t.Helper()
	db, err := database.OpenInMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repositories.NewStore(db)
}

func createProduct(t *testing.T, store *repositories.Store, name, price string) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price)}
	require.NoError(t, store.Products.Create(context.Background(), p))
	return p
}

func TestNamedRepository_FindByNameCaseInsensitive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Categories.Create(ctx, &models.Category{Name: "Vitamins"}))

	found, err := store.Categories.FindByName(ctx, "vitamins")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Vitamins", found.Name)

	missing, err := store.Categories.FindByName(ctx, "Antibiotics")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = store.Categories.GetByID(ctx, "nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.EqualError(t, err, "category with ID nope not found")
}

func TestTransaction_RollsBack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx *repositories.Store) error {
		require.NoError(t, tx.Categories.Create(ctx, &models.Category{Name: "Temp"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, err := store.Categories.FindByName(ctx, "Temp")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestProductRepository_ListFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	createProduct(t, store, "Paracetamol", "1.500")
	createProduct(t, store, "Ibuprofen", "2.000")
	rx := &models.Product{Name: "Amoxicillin", Price: decimal.RequireFromString("4.750"), RequiresPrescription: true}
	require.NoError(t, store.Products.Create(ctx, rx))

	page, err := store.Products.List(ctx, repositories.ProductFilter{Search: "para"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount)

	yes := true
	page, err = store.Products.List(ctx, repositories.ProductFilter{RequiresPrescription: &yes})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Amoxicillin", page.Items[0].Name)

	minPrice := decimal.RequireFromString("1.900")
	page, err = store.Products.List(ctx, repositories.ProductFilter{MinPrice: &minPrice, PageQuery: models.PageQuery{PageNumber: 1, PageSize: 1}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalCount)
	assert.Len(t, page.Items, 1)

	require.NoError(t, store.Products.Delete(ctx, rx.ID))
	_, err = store.Products.GetByID(ctx, rx.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInventoryRepository_DecrementNeverNegative(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := createProduct(t, store, "Paracetamol", "1.500")

	inv := &models.Inventory{BranchID: "b1", ProductID: p.ID, Quantity: 3, ReorderThreshold: 2}
	require.NoError(t, store.Inventory.Upsert(ctx, inv))
	require.NotEmpty(t, inv.ID)

	require.NoError(t, store.Inventory.Decrement(ctx, "b1", p.ID, 2))
	err := store.Inventory.Decrement(ctx, "b1", p.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := store.Inventory.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)

	low, err := store.Inventory.BelowThreshold(ctx)
	require.NoError(t, err)
	assert.Len(t, low, 1)

	// upsert overwrites instead of duplicating
	require.NoError(t, store.Inventory.Upsert(ctx, &models.Inventory{BranchID: "b1", ProductID: p.ID, Quantity: 20, ReorderThreshold: 2}))
	totals, err := store.Inventory.TotalStock(ctx, []string{p.ID})
	require.NoError(t, err)
	assert.Equal(t, 20, totals[p.ID])
}

func TestCartRepository_Idempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Carts.SetQuantity(ctx, "u1", "p1", 2))
	require.NoError(t, store.Carts.SetQuantity(ctx, "u1", "p1", 2))
	items, err := store.Carts.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	require.NoError(t, store.Carts.Remove(ctx, "u1", "p1"))
	require.NoError(t, store.Carts.Remove(ctx, "u1", "p1"))
	items, err = store.Carts.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, store.Wishlists.Add(ctx, "u1", "p1"))
	require.NoError(t, store.Wishlists.Add(ctx, "u1", "p1"))
	wish, err := store.Wishlists.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, wish, 1)
}

func TestDraftRepository_ConsumeOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	draft := &models.CheckoutDraft{SessionID: "cs_1", CustomerID: "u1", Payload: "{}", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Drafts.Create(ctx, draft))

	ok, err := store.Drafts.Consume(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Drafts.Consume(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDraftRepository_ListExpired(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, expires := range []time.Time{now.Add(-time.Minute), now.Add(-2 * time.Hour), now.Add(time.Hour)} {
		require.NoError(t, store.Drafts.Create(ctx, &models.CheckoutDraft{
			SessionID:  fmt.Sprintf("cs_%d", i),
			CustomerID: "u1",
			Payload:    "{}",
			ExpiresAt:  expires,
		}))
	}

	expired, err := store.Drafts.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, "cs_1", expired[0].SessionID)
	assert.Equal(t, "cs_0", expired[1].SessionID)

	expired, err = store.Drafts.ListExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestOrderRepository_TransitionStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	branch := "b1"

	order := &models.Order{
		CustomerID:    "u1",
		Shipping:      models.ShippingSelection{Mode: models.FulfillmentPickup, BranchID: &branch},
		Subtotal:      decimal.RequireFromString("5"),
		DeliveryFee:   decimal.Zero,
		Total:         decimal.RequireFromString("5"),
		PaymentMethod: models.PaymentCash,
		Status:        models.OrderPlaced,
		Lines: []models.OrderLine{{
			ProductID: "p1", ProductName: "Paracetamol", Quantity: 2,
			UnitPrice: decimal.RequireFromString("2.5"), LineTotal: decimal.RequireFromString("5"),
		}},
		History: []models.OrderStatusEntry{{Status: models.OrderPlaced, ActorID: "u1"}},
	}
	require.NoError(t, store.Orders.Create(ctx, order))

	ok, err := store.Orders.TransitionStatus(ctx, order.ID, models.OrderPlaced, models.OrderProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Orders.TransitionStatus(ctx, order.ID, models.OrderPlaced, models.OrderCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, got.Status)
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("2.5")))
	assert.Len(t, got.History, 1)

	page, err := store.Orders.List(ctx, repositories.OrderFilter{CustomerID: "u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount)
}
