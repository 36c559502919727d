package services_test

import (
	"context"
	"testing"
	"time"

	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardService_Range(t *testing.T) {
	svc := services.NewDashboardService(nil)

	r, err := svc.Range("2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), r.To)

	r, err = svc.Range("", "")
	require.NoError(t, err)
	assert.InDelta(t, 30*24*time.Hour, r.To.Sub(r.From), float64(time.Second))

	_, err = svc.Range("01/03/2026", "")
	assert.Equal(t, []string{"from"}, fieldNames(t, err))

	_, err = svc.Range("2026-03-10", "2026-03-01")
	assert.Equal(t, []string{"to"}, fieldNames(t, err))
}

func TestDashboardService_Overview(t *testing.T) {
	w := newWorld(t)
	svc := services.NewDashboardService(w.store)
	ctx := context.Background()
	placeCashOrder(t, w, 2)

	r, err := svc.Range("", "")
	require.NoError(t, err)
	d, err := svc.Overview(ctx, r, 0)
	require.NoError(t, err)

	assert.EqualValues(t, 1, d.Summary.TotalOrders)
	assert.True(t, dec("10").Equal(d.Summary.Revenue), d.Summary.Revenue.String())
	assert.EqualValues(t, 1, d.Summary.Customers)
	require.Len(t, d.TopProducts, 1)
	assert.Equal(t, w.paracetamol.ID, d.TopProducts[0].ProductID)
	assert.EqualValues(t, 2, d.TopProducts[0].Quantity)
	assert.Equal(t, []repositories.StatusCount{{Status: models.OrderPlaced, Count: 1}}, d.OrdersByStatus)
}

func TestLogService_RecordAndFilter(t *testing.T) {
	w := newWorld(t)
	svc := services.NewLogService(w.store)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, actorOf(w.admin), "export.run", "report", "", "sales"))
	require.NoError(t, svc.Record(ctx, actorOf(w.pharmacist), "login", "user", w.pharmacist.ID, ""))

	page, err := svc.List(ctx, repositories.ActivityLogFilter{ActorID: w.admin.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "export.run", page.Items[0].Action)
}
