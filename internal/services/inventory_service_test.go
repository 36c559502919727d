package services_test

import (
	"context"
	"errors"
	"testing"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"
	"pharmacy/pkg/rabbitmq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInventoryService_UpsertValidatesReferences(t *testing.T) {
	w := newWorld(t)
	svc := services.NewInventoryService(w.store, w.notifications, w.events)
	ctx := context.Background()
	admin := actorOf(w.admin)

	_, err := svc.Upsert(ctx, admin, services.InventoryInput{BranchID: "missing", ProductID: w.paracetamol.ID, Quantity: 1})
	assert.Equal(t, []string{"branchId"}, fieldNames(t, err))
	_, err = svc.Upsert(ctx, admin, services.InventoryInput{BranchID: w.branch.ID, ProductID: "missing", Quantity: 1})
	assert.Equal(t, []string{"productId"}, fieldNames(t, err))

	inv, err := svc.Upsert(ctx, admin, services.InventoryInput{
		BranchID: w.emptyBranch.ID, ProductID: w.paracetamol.ID, Quantity: 4, ReorderThreshold: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, inv.Quantity)

	restocked, err := svc.Restock(ctx, admin, inv.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 10, restocked.Quantity)

	_, err = svc.Restock(ctx, admin, inv.ID, 0)
	assert.Equal(t, []string{"quantity"}, fieldNames(t, err))

	page, err := svc.ListByBranch(ctx, w.emptyBranch.ID, models.PageQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount)
}

func TestInventoryService_Availability(t *testing.T) {
	w := newWorld(t)
	svc := services.NewInventoryService(w.store, w.notifications, w.events)
	w.addToCart(t, w.customer.ID, w.paracetamol, 2)

	branches, err := svc.Availability(context.Background(), w.customer.ID)
	require.NoError(t, err)
	require.Len(t, branches, 2)

	byName := map[string]services.BranchAvailability{}
	for _, b := range branches {
		byName[b.Branch.Name] = b
	}
	assert.Empty(t, byName["Seef Branch"].Unavailable)
	require.Len(t, byName["Riffa Branch"].Unavailable, 1)
	missing := byName["Riffa Branch"].Unavailable[0]
	assert.Equal(t, w.paracetamol.ID, missing.ProductID)
	assert.Equal(t, 2, missing.Requested)
	assert.Zero(t, missing.Available)
}

func TestInventoryService_ReorderSweepRaisesOnce(t *testing.T) {
	w := newWorld(t)
	svc := services.NewInventoryService(w.store, w.notifications, w.events)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, actorOf(w.admin), services.InventoryInput{
		BranchID: w.branch.ID, ProductID: w.paracetamol.ID, Quantity: 1, ReorderThreshold: 2, ReorderQuantity: 20,
	})
	require.NoError(t, err)

	n, err := svc.RunReorderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.RunReorderSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "an open request blocks a second one")

	reorders, err := svc.ListReorders(ctx, models.ReorderOpen, models.PageQuery{})
	require.NoError(t, err)
	require.Len(t, reorders.Items, 1)
	reorder := reorders.Items[0]
	assert.Equal(t, 20, reorder.Quantity)
	require.NotNil(t, reorder.SupplierID)
	assert.Equal(t, w.supplier.ID, *reorder.SupplierID)

	queued := w.pending(t, models.NotificationPending)
	require.Len(t, queued, 1)
	assert.Equal(t, services.KindReorder, queued[0].Kind)
	assert.Equal(t, w.supplier.Email, queued[0].Recipient)
	w.events.AssertCalled(t, "Publish", mock.Anything, rabbitmq.KeyInventoryReorder, mock.Anything)

	logs, err := w.store.Logs.List(ctx, repositories.ActivityLogFilter{Action: "reorder.raise"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, logs.TotalCount)

	require.NoError(t, svc.CloseReorder(ctx, actorOf(w.admin), reorder.ID))
	n, err = svc.RunReorderSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "stock is still low once the previous request is closed")
}

func TestInventoryService_LowStock(t *testing.T) {
	w := newWorld(t)
	svc := services.NewInventoryService(w.store, w.notifications, w.events)
	ctx := context.Background()

	rows, err := svc.LowStock(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = svc.Upsert(ctx, actorOf(w.admin), services.InventoryInput{
		BranchID: w.branch.ID, ProductID: w.amoxicillin.ID, Quantity: 2, ReorderThreshold: 2,
	})
	require.NoError(t, err)
	rows, err = svc.LowStock(ctx, w.branch.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Amoxicillin 250mg", rows[0].ProductName)

	err = svc.Delete(ctx, actorOf(w.admin), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
