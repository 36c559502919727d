package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

// Create inserts the order together with its lines and initial history.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID returns an order with its lines and status history.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, wrapFirst(err, "order", id)
	}
	return &order, nil
}

func (r *GORMOrderRepository) List(ctx context.Context, filter OrderFilter) (models.Page[models.Order], error) {
	page := models.Page[models.Order]{Items: []models.Order{}}
	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.Order{})
		if filter.CustomerID != "" {
			db = db.Where("customer_id = ?", filter.CustomerID)
		}
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		return db
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count orders: %w", err)
	}
	err := query().Preload("Lines").Scopes(paginate(filter.PageQuery)).Order("created_at DESC").Find(&page.Items).Error
	if err != nil {
		return page, fmt.Errorf("failed to list orders: %w", err)
	}
	return page, nil
}

// TransitionStatus moves the order from one status to another; it reports false when
// the order was no longer in the expected status.
func (r *GORMOrderRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update order status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GORMOrderRepository) AddStatusEntry(ctx context.Context, entry *models.OrderStatusEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record order status: %w", err)
	}
	return nil
}

// FindByPaymentReference returns (nil, nil) when no order carries ref.
func (r *GORMOrderRepository) FindByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Lines").First(&order, "payment_reference = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order by payment reference: %w", err)
	}
	return &order, nil
}

// GORMDraftRepository is a GORM implementation of DraftRepository.
type GORMDraftRepository struct {
	db *gorm.DB
}

func NewGORMDraftRepository(db *gorm.DB) *GORMDraftRepository {
	return &GORMDraftRepository{db: db}
}

func (r *GORMDraftRepository) Create(ctx context.Context, draft *models.CheckoutDraft) error {
	if err := r.db.WithContext(ctx).Create(draft).Error; err != nil {
		return fmt.Errorf("failed to store checkout draft: %w", err)
	}
	return nil
}

func (r *GORMDraftRepository) GetBySession(ctx context.Context, sessionID string) (*models.CheckoutDraft, error) {
	var draft models.CheckoutDraft
	if err := r.db.WithContext(ctx).First(&draft, "session_id = ?", sessionID).Error; err != nil {
		return nil, wrapFirst(err, "checkout draft", sessionID)
	}
	return &draft, nil
}

// Consume deletes the draft; it reports false when another request consumed it first.
func (r *GORMDraftRepository) Consume(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.CheckoutDraft{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to consume checkout draft: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListExpired returns up to limit drafts that expired at or before now, oldest first.
func (r *GORMDraftRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.CheckoutDraft, error) {
	drafts := []models.CheckoutDraft{}
	err := r.db.WithContext(ctx).Where("expires_at <= ?", now).Order("expires_at").Limit(limit).Find(&drafts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired drafts: %w", err)
	}
	return drafts, nil
}
