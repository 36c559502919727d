package services_test

import (
	"context"
	"errors"
	"testing"

	"pharmacy/internal/apperr"
	"pharmacy/internal/checkout"
	"pharmacy/internal/models"
	"pharmacy/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartService_AddIsIdempotent(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCartService(w.store, "BHD")
	ctx := context.Background()

	view, err := svc.Add(ctx, w.customer.ID, w.paracetamol.ID, 2)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.Lines[0].Quantity)

	view, err = svc.Add(ctx, w.customer.ID, w.paracetamol.ID, 5)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.Lines[0].Quantity)
	assert.True(t, dec("10").Equal(view.Subtotal))
	assert.Equal(t, 10, view.Lines[0].InStock)
}

func TestCartService_StockLimits(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCartService(w.store, "BHD")
	ctx := context.Background()
	unstocked := w.product(t, "Vitamin D", "4.000", false, 0)

	_, err := svc.Add(ctx, w.customer.ID, unstocked.ID, 1)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.SetQuantity(ctx, w.customer.ID, w.paracetamol.ID, 11)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.ErrorContains(t, err, "only 10")

	_, err = svc.SetQuantity(ctx, w.customer.ID, w.paracetamol.ID, -1)
	assert.Equal(t, []string{"quantity"}, fieldNames(t, err))

	_, err = svc.Add(ctx, w.customer.ID, "missing", 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCartService_SetQuantityZeroRemoves(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCartService(w.store, "BHD")
	ctx := context.Background()
	w.addToCart(t, w.customer.ID, w.paracetamol, 3)

	view, err := svc.SetQuantity(ctx, w.customer.ID, w.paracetamol.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Lines[0].Quantity)

	view, err = svc.SetQuantity(ctx, w.customer.ID, w.paracetamol.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.True(t, view.Subtotal.IsZero())
}

func TestCartService_ReconcileKeepsServerLines(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCartService(w.store, "BHD")
	ctx := context.Background()
	w.addToCart(t, w.customer.ID, w.paracetamol, 1)

	view, err := svc.Reconcile(ctx, w.customer.ID, []services.DraftLine{
		{ProductID: w.paracetamol.ID, Quantity: 4},
		{ProductID: w.amoxicillin.ID, Quantity: 50},
		{ProductID: "missing", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)

	quantities := map[string]int{}
	for _, l := range view.Lines {
		quantities[l.ProductID] = l.Quantity
	}
	assert.Equal(t, 1, quantities[w.paracetamol.ID])
	assert.Equal(t, 10, quantities[w.amoxicillin.ID])
	assert.Contains(t, view.Steps, checkout.StepPrescription)
}

func TestCartService_WarningsFromHealthProfile(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCartService(w.store, "BHD")
	ctx := context.Background()

	penicillin := &models.Allergy{Name: "Penicillin"}
	require.NoError(t, w.store.Allergies.Create(ctx, penicillin))
	require.NoError(t, w.store.Health.CreateConflict(ctx, &models.ProductConflict{
		ProductID: w.amoxicillin.ID, AllergyID: &penicillin.ID, Note: "Penicillin class",
	}))
	w.addToCart(t, w.customer.ID, w.amoxicillin, 1)

	view, err := svc.View(ctx, w.customer.ID)
	require.NoError(t, err)
	assert.False(t, view.NeedsConfirmation, "no warning without the allergy on the profile")

	require.NoError(t, w.store.Health.SetUserAllergies(ctx, w.customer.ID, []string{penicillin.ID}))
	view, err = svc.View(ctx, w.customer.ID)
	require.NoError(t, err)
	assert.True(t, view.NeedsConfirmation)
	require.Len(t, view.Lines[0].Incompatibilities, 1)
	warning := view.Lines[0].Incompatibilities[0]
	assert.Equal(t, checkout.WarningAllergy, warning.Kind)
	assert.Equal(t, "Penicillin", warning.RefName)
}

func TestWishlistService_MoveToCart(t *testing.T) {
	w := newWorld(t)
	svc := services.NewWishlistService(w.store)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, w.customer.ID, w.paracetamol.ID))
	require.NoError(t, svc.Add(ctx, w.customer.ID, w.paracetamol.ID))
	assert.True(t, errors.Is(svc.Add(ctx, w.customer.ID, "missing"), apperr.ErrNotFound))

	products, err := svc.List(ctx, w.customer.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)

	require.NoError(t, svc.MoveToCart(ctx, w.customer.ID, w.paracetamol.ID))
	products, err = svc.List(ctx, w.customer.ID)
	require.NoError(t, err)
	assert.Empty(t, products)

	items, err := w.store.Carts.List(ctx, w.customer.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
}
