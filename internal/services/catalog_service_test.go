package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedCatalog_UniqueNames(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCatalogService(w.store, w.files)
	ctx := context.Background()
	admin := actorOf(w.admin)

	pain := &models.Category{Name: "Pain Relief"}
	require.NoError(t, svc.Categories.Create(ctx, admin, pain))

	err := svc.Categories.Create(ctx, admin, &models.Category{Name: "pain relief"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	err = svc.Categories.Create(ctx, admin, &models.Category{Name: "  "})
	assert.Equal(t, []string{"name"}, fieldNames(t, err))

	other := &models.Category{Name: "Vitamins"}
	require.NoError(t, svc.Categories.Create(ctx, admin, other))
	err = svc.Categories.Update(ctx, admin, other.ID, &models.Category{Name: "Pain Relief"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestNamedCatalog_UpdateKeepsCreatedAt(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCatalogService(w.store, w.files)
	ctx := context.Background()
	admin := actorOf(w.admin)

	created := &models.Category{Name: "Skin Care"}
	require.NoError(t, svc.Categories.Create(ctx, admin, created))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, svc.Categories.Update(ctx, admin, created.ID, &models.Category{Name: "Skin & Hair", Description: "Creams"}))

	stored, err := svc.Categories.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Skin & Hair", stored.Name)
	assert.Equal(t, "Creams", stored.Description)
	assert.True(t, stored.CreatedAt.Equal(created.CreatedAt), "%v vs %v", stored.CreatedAt, created.CreatedAt)

	logs, err := w.store.Logs.List(ctx, repositories.ActivityLogFilter{Action: "category.update"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, logs.TotalCount)
}

func TestNamedCatalog_DeleteReferencedSupplier(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCatalogService(w.store, w.files)
	ctx := context.Background()
	admin := actorOf(w.admin)

	err := svc.Suppliers.Delete(ctx, admin, w.supplier.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.ErrorContains(t, err, "used by 2 product(s)")

	unused := &models.Supplier{Name: "Unused Supplies"}
	require.NoError(t, svc.Suppliers.Create(ctx, admin, unused))
	require.NoError(t, svc.Suppliers.Delete(ctx, admin, unused.ID))
	_, err = svc.Suppliers.Get(ctx, unused.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCatalogService_ProductValidation(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCatalogService(w.store, w.files)
	ctx := context.Background()
	admin := actorOf(w.admin)

	_, err := svc.CreateProduct(ctx, admin, services.ProductInput{Name: "", Price: decimal.Zero, CategoryID: "missing"})
	assert.ElementsMatch(t, []string{"name", "price", "categoryId"}, fieldNames(t, err))

	p, err := svc.CreateProduct(ctx, admin, services.ProductInput{
		Name: " Ibuprofen 400mg ", Price: dec("2.4567"), SupplierID: w.supplier.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen 400mg", p.Name)
	assert.Equal(t, "2.457", p.Price.StringFixed(3))

	updated, err := svc.UpdateProduct(ctx, admin, p.ID, services.ProductInput{Name: p.Name, Price: dec("3")})
	require.NoError(t, err)
	assert.Nil(t, updated.SupplierID)

	logs, err := w.store.Logs.List(ctx, repositories.ActivityLogFilter{Action: "product.update"})
	require.NoError(t, err)
	require.Len(t, logs.Items, 1)
	assert.Contains(t, logs.Items[0].Details, "2.457 -> 3.000")

	lo, hi := dec("4"), dec("1")
	_, err = svc.ListProducts(ctx, repositories.ProductFilter{MinPrice: &lo, MaxPrice: &hi})
	assert.Equal(t, []string{"minPrice"}, fieldNames(t, err))
}

func TestCatalogService_ProductImage(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCatalogService(w.store, w.files)
	ctx := context.Background()
	admin := actorOf(w.admin)

	_, err := svc.SetProductImage(ctx, admin, w.paracetamol.ID, "box.gif", strings.NewReader("gif"))
	assert.Equal(t, []string{"image"}, fieldNames(t, err))

	first, err := svc.SetProductImage(ctx, admin, w.paracetamol.ID, "box.png", strings.NewReader("png"))
	require.NoError(t, err)
	firstPath := first.ImagePath
	assert.True(t, w.files.Exists(firstPath))

	second, err := svc.SetProductImage(ctx, admin, w.paracetamol.ID, "box.jpg", strings.NewReader("jpg"))
	require.NoError(t, err)
	assert.True(t, w.files.Exists(second.ImagePath))
	assert.False(t, w.files.Exists(firstPath), "the replaced image is removed")
}

func TestCatalogService_HealthFlags(t *testing.T) {
	w := newWorld(t)
	svc := services.NewCatalogService(w.store, w.files)
	ctx := context.Background()
	admin := actorOf(w.admin)

	_, err := svc.AddIncompatibility(ctx, admin, w.paracetamol.ID, w.paracetamol.ID, "")
	assert.Equal(t, []string{"incompatibleProductId"}, fieldNames(t, err))

	inc, err := svc.AddIncompatibility(ctx, admin, w.paracetamol.ID, w.amoxicillin.ID, "Do not combine")
	require.NoError(t, err)
	_, err = svc.AddIncompatibility(ctx, admin, w.amoxicillin.ID, w.paracetamol.ID, "")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	asthma := &models.Illness{Name: "Asthma"}
	require.NoError(t, svc.Illnesses.Create(ctx, admin, asthma))
	_, err = svc.AddConflict(ctx, admin, w.paracetamol.ID, services.ConflictInput{})
	assert.Equal(t, []string{"allergyId"}, fieldNames(t, err))
	conflict, err := svc.AddConflict(ctx, admin, w.paracetamol.ID, services.ConflictInput{IllnessID: asthma.ID})
	require.NoError(t, err)

	health, err := svc.ProductHealth(ctx, w.paracetamol.ID)
	require.NoError(t, err)
	assert.Len(t, health.Incompatibilities, 1)
	assert.Len(t, health.Conflicts, 1)

	require.NoError(t, svc.RemoveIncompatibility(ctx, admin, inc.ID))
	require.NoError(t, svc.RemoveConflict(ctx, admin, conflict.ID))
	health, err = svc.ProductHealth(ctx, w.paracetamol.ID)
	require.NoError(t, err)
	assert.Empty(t, health.Incompatibilities)
	assert.Empty(t, health.Conflicts)
}
