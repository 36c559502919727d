package services

import (
	"context"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
)

const defaultReportDays = 30

// Dashboard is every back-office chart for one date range.
type Dashboard struct {
	From           time.Time                   `json:"from"`
	To             time.Time                   `json:"to"`
	Summary        repositories.Summary        `json:"summary"`
	SalesByDay     []repositories.DailySales   `json:"salesByDay"`
	TopProducts    []repositories.ProductSales `json:"topProducts"`
	OrdersByStatus []repositories.StatusCount  `json:"ordersByStatus"`
	LowStock       []repositories.LowStockRow  `json:"lowStock"`
}

// DashboardService serves the read-only report queries.
type DashboardService struct {
	store *repositories.Store
	now   func() time.Time
}

func NewDashboardService(store *repositories.Store) *DashboardService {
	return &DashboardService{store: store, now: utcNow}
}

// Range turns optional YYYY-MM-DD bounds into a report range. The default is the
// last 30 days; the end date is inclusive.
func (s *DashboardService) Range(from, to string) (repositories.ReportRange, error) {
	now := s.now()
	r := repositories.ReportRange{From: now.AddDate(0, 0, -defaultReportDays), To: now}
	ve := newValidation()
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			ve.Add("from", "Date must use YYYY-MM-DD")
		}
		r.From = t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			ve.Add("to", "Date must use YYYY-MM-DD")
		}
		r.To = t.AddDate(0, 0, 1)
	}
	if err := ve.OrNil(); err != nil {
		return r, err
	}
	if r.To.Before(r.From) {
		return r, apperr.Invalid("to", "End date must not be before start date")
	}
	return r, nil
}

func (s *DashboardService) Overview(ctx context.Context, r repositories.ReportRange, topN int) (*Dashboard, error) {
	if topN <= 0 {
		topN = 5
	}
	d := &Dashboard{From: r.From, To: r.To}
	var err error
	if d.Summary, err = s.store.Reports.Summary(ctx, r); err != nil {
		return nil, err
	}
	if d.SalesByDay, err = s.store.Reports.SalesByDay(ctx, r); err != nil {
		return nil, err
	}
	if d.TopProducts, err = s.store.Reports.TopProducts(ctx, r, topN); err != nil {
		return nil, err
	}
	if d.OrdersByStatus, err = s.store.Reports.OrdersByStatus(ctx, r); err != nil {
		return nil, err
	}
	if d.LowStock, err = s.store.Reports.LowStock(ctx, ""); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DashboardService) Summary(ctx context.Context, r repositories.ReportRange) (repositories.Summary, error) {
	return s.store.Reports.Summary(ctx, r)
}

func (s *DashboardService) SalesByDay(ctx context.Context, r repositories.ReportRange) ([]repositories.DailySales, error) {
	return s.store.Reports.SalesByDay(ctx, r)
}

func (s *DashboardService) TopProducts(ctx context.Context, r repositories.ReportRange, limit int) ([]repositories.ProductSales, error) {
	return s.store.Reports.TopProducts(ctx, r, limit)
}

func (s *DashboardService) OrdersByStatus(ctx context.Context, r repositories.ReportRange) ([]repositories.StatusCount, error) {
	return s.store.Reports.OrdersByStatus(ctx, r)
}

// LogService exposes the activity log.
type LogService struct {
	store *repositories.Store
}

func NewLogService(store *repositories.Store) *LogService {
	return &LogService{store: store}
}

// Record writes an entry outside of any other change, e.g. a sign-in.
func (s *LogService) Record(ctx context.Context, actor Actor, action, entity, entityID, details string) error {
	return logActivity(ctx, s.store, actor, action, entity, entityID, details)
}

func (s *LogService) List(ctx context.Context, filter repositories.ActivityLogFilter) (models.Page[models.ActivityLog], error) {
	return s.store.Logs.List(ctx, filter)
}
