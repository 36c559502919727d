package repositories

import (
	"context"
	"fmt"
	"time"

	"pharmacy/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Summary is the headline figures of the dashboard.
type Summary struct {
	TotalOrders          int64           `json:"totalOrders"`
	Revenue              decimal.Decimal `json:"revenue"`
	Customers            int64           `json:"customers"`
	PendingPrescriptions int64           `json:"pendingPrescriptions"`
	LowStockItems        int64           `json:"lowStockItems"`
}

// DailySales is the revenue and order count of one calendar day.
type DailySales struct {
	Day     string          `json:"day"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ProductSales is the quantity sold of one product.
type ProductSales struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// StatusCount is the number of orders in a status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// LowStockRow is an inventory row at or below its reorder threshold.
type LowStockRow struct {
	InventoryID      string `json:"inventoryId"`
	BranchID         string `json:"branchId"`
	BranchName       string `json:"branchName"`
	ProductID        string `json:"productId"`
	ProductName      string `json:"productName"`
	Quantity         int    `json:"quantity"`
	ReorderThreshold int    `json:"reorderThreshold"`
}

// ReportRange bounds report queries by order creation time. Zero values are open ends.
type ReportRange struct {
	From time.Time
	To   time.Time
}

// ReportRepository runs the read-only aggregate queries behind the dashboard.
type ReportRepository interface {
	Summary(ctx context.Context, r ReportRange) (Summary, error)
	SalesByDay(ctx context.Context, r ReportRange) ([]DailySales, error)
	TopProducts(ctx context.Context, r ReportRange, limit int) ([]ProductSales, error)
	OrdersByStatus(ctx context.Context, r ReportRange) ([]StatusCount, error)
	LowStock(ctx context.Context, branchID string) ([]LowStockRow, error)
}

// GORMReportRepository builds its SQL with squirrel and runs it through gorm.
type GORMReportRepository struct {
	db *gorm.DB
}

func NewGORMReportRepository(db *gorm.DB) *GORMReportRepository {
	return &GORMReportRepository{db: db}
}

func withRange(b sq.SelectBuilder, column string, r ReportRange) sq.SelectBuilder {
	if !r.From.IsZero() {
		b = b.Where(sq.GtOrEq{column: r.From})
	}
	if !r.To.IsZero() {
		b = b.Where(sq.Lt{column: r.To})
	}
	return b
}

func (r *GORMReportRepository) raw(ctx context.Context, b sq.Sqlizer, dest any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build report query: %w", err)
	}
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error; err != nil {
		return fmt.Errorf("failed to run report query: %w", err)
	}
	return nil
}

func (r *GORMReportRepository) Summary(ctx context.Context, rng ReportRange) (Summary, error) {
	var out Summary

	var orders struct {
		Count   int64
		Revenue decimal.Decimal
	}
	ordersQ := withRange(
		sq.Select("COUNT(*) AS count", "COALESCE(SUM(total), 0) AS revenue").
			From("orders").
			Where(sq.NotEq{"status": models.OrderCancelled}),
		"created_at", rng)
	if err := r.raw(ctx, ordersQ, &orders); err != nil {
		return out, err
	}
	out.TotalOrders = orders.Count
	out.Revenue = orders.Revenue

	counts := []struct {
		dest *int64
		q    sq.SelectBuilder
	}{
		{&out.Customers, sq.Select("COUNT(*)").From("users").Where(sq.Eq{"role": models.RoleCustomer})},
		{&out.PendingPrescriptions, sq.Select("COUNT(*)").From("prescription_requests").Where(sq.Eq{"status": models.PrescriptionPending})},
		{&out.LowStockItems, sq.Select("COUNT(*)").From("inventories").Where("reorder_threshold > 0 AND quantity <= reorder_threshold")},
	}
	for _, c := range counts {
		if err := r.raw(ctx, c.q, c.dest); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (r *GORMReportRepository) dayExpr(column string) string {
	if r.db.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
	return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD')", column)
}

func (r *GORMReportRepository) SalesByDay(ctx context.Context, rng ReportRange) ([]DailySales, error) {
	day := r.dayExpr("created_at")
	q := withRange(
		sq.Select(day+" AS day", "COUNT(*) AS orders", "COALESCE(SUM(total), 0) AS revenue").
			From("orders").
			Where(sq.NotEq{"status": models.OrderCancelled}),
		"created_at", rng).
		GroupBy(day).
		OrderBy("day")
	rows := []DailySales{}
	if err := r.raw(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GORMReportRepository) TopProducts(ctx context.Context, rng ReportRange, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = 5
	}
	q := withRange(
		sq.Select(
			"order_lines.product_id AS product_id",
			"MAX(order_lines.product_name) AS product_name",
			"SUM(order_lines.quantity) AS quantity",
			"COALESCE(SUM(order_lines.line_total), 0) AS revenue",
		).
			From("order_lines").
			Join("orders ON orders.id = order_lines.order_id").
			Where(sq.NotEq{"orders.status": models.OrderCancelled}),
		"orders.created_at", rng).
		GroupBy("order_lines.product_id").
		OrderBy("quantity DESC").
		Limit(uint64(limit))
	rows := []ProductSales{}
	if err := r.raw(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GORMReportRepository) OrdersByStatus(ctx context.Context, rng ReportRange) ([]StatusCount, error) {
	q := withRange(sq.Select("status", "COUNT(*) AS count").From("orders"), "created_at", rng).
		GroupBy("status").
		OrderBy("status")
	rows := []StatusCount{}
	if err := r.raw(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GORMReportRepository) LowStock(ctx context.Context, branchID string) ([]LowStockRow, error) {
	q := sq.Select(
		"inventories.id AS inventory_id",
		"inventories.branch_id AS branch_id",
		"branches.name AS branch_name",
		"inventories.product_id AS product_id",
		"products.name AS product_name",
		"inventories.quantity AS quantity",
		"inventories.reorder_threshold AS reorder_threshold",
	).
		From("inventories").
		Join("products ON products.id = inventories.product_id").
		Join("branches ON branches.id = inventories.branch_id").
		Where("inventories.reorder_threshold > 0 AND inventories.quantity <= inventories.reorder_threshold").
		Where(sq.Eq{"products.deleted_at": nil}).
		OrderBy("inventories.quantity")
	if branchID != "" {
		q = q.Where(sq.Eq{"inventories.branch_id": branchID})
	}
	rows := []LowStockRow{}
	if err := r.raw(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
