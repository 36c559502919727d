package repositories

import (
	"context"
	"fmt"
	"time"

	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// PrescriptionRepository covers prescription requests and their review state.
type PrescriptionRepository interface {
	Create(ctx context.Context, req *models.PrescriptionRequest) error
	GetByID(ctx context.Context, id string) (*models.PrescriptionRequest, error)
	List(ctx context.Context, customerID, status string, q models.PageQuery) (models.Page[models.PrescriptionRequest], error)
	Review(ctx context.Context, id, status, reviewerID, reason string, at time.Time) (bool, error)
	ListEligible(ctx context.Context, customerID string, now time.Time) ([]models.PrescriptionRequest, error)
	Consume(ctx context.Context, id, orderID string) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]models.PrescriptionRequest, error)
}

// PlanRepository covers prescription plans and their reminder bookkeeping.
type PlanRepository interface {
	Create(ctx context.Context, plan *models.PrescriptionPlan) error
	GetByID(ctx context.Context, id string) (*models.PrescriptionPlan, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.PrescriptionPlan, error)
	Delete(ctx context.Context, id string) error
	GetItem(ctx context.Context, id string) (*models.PlanItem, error)
	DueItems(ctx context.Context, before time.Time) ([]models.PlanItem, error)
	MarkReminded(ctx context.Context, itemID string, dueAt time.Time) error
	Advance(ctx context.Context, itemID string, next time.Time) error
}

// GORMPrescriptionRepository is a GORM implementation of PrescriptionRepository.
type GORMPrescriptionRepository struct {
	db *gorm.DB
}

func NewGORMPrescriptionRepository(db *gorm.DB) *GORMPrescriptionRepository {
	return &GORMPrescriptionRepository{db: db}
}

func (r *GORMPrescriptionRepository) Create(ctx context.Context, req *models.PrescriptionRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create prescription request: %w", err)
	}
	return nil
}

func (r *GORMPrescriptionRepository) GetByID(ctx context.Context, id string) (*models.PrescriptionRequest, error) {
	var req models.PrescriptionRequest
	if err := r.db.WithContext(ctx).Preload("Products").First(&req, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "prescription request", id)
	}
	return &req, nil
}

func (r *GORMPrescriptionRepository) List(ctx context.Context, customerID, status string, q models.PageQuery) (models.Page[models.PrescriptionRequest], error) {
	page := models.Page[models.PrescriptionRequest]{Items: []models.PrescriptionRequest{}}
	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.PrescriptionRequest{})
		if customerID != "" {
			db = db.Where("customer_id = ?", customerID)
		}
		if status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count prescription requests: %w", err)
	}
	err := query().Preload("Products").Scopes(paginate(q)).Order("created_at DESC").Find(&page.Items).Error
	if err != nil {
		return page, fmt.Errorf("failed to list prescription requests: %w", err)
	}
	return page, nil
}

// Review moves a pending request to status. It reports false when the request
// was no longer pending, so two reviewers cannot both decide the same request.
func (r *GORMPrescriptionRepository) Review(ctx context.Context, id, status, reviewerID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PrescriptionRequest{}).
		Where("id = ? AND status = ?", id, models.PrescriptionPending).
		Updates(map[string]any{
			"status":           status,
			"reviewer_id":      reviewerID,
			"reviewed_at":      at,
			"rejection_reason": reason,
			"updated_at":       at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to review prescription request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListEligible returns approved, unexpired, unconsumed requests of the customer.
func (r *GORMPrescriptionRepository) ListEligible(ctx context.Context, customerID string, now time.Time) ([]models.PrescriptionRequest, error) {
	items := []models.PrescriptionRequest{}
	err := r.db.WithContext(ctx).Preload("Products").
		Where("customer_id = ? AND status = ? AND expires_at > ? AND consumed_by_order_id IS NULL",
			customerID, models.PrescriptionApproved, now).
		Order("expires_at").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible prescriptions: %w", err)
	}
	return items, nil
}

// Consume binds the request to orderID exactly once.
func (r *GORMPrescriptionRepository) Consume(ctx context.Context, id, orderID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PrescriptionRequest{}).
		Where("id = ? AND status = ? AND consumed_by_order_id IS NULL", id, models.PrescriptionApproved).
		Updates(map[string]any{"consumed_by_order_id": orderID, "order_id": orderID, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to consume prescription request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExpireDue marks pending and approved-but-unused requests past their expiry as expired
// and returns the rows it changed.
func (r *GORMPrescriptionRepository) ExpireDue(ctx context.Context, now time.Time) ([]models.PrescriptionRequest, error) {
	due := []models.PrescriptionRequest{}
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ? AND consumed_by_order_id IS NULL",
			[]string{models.PrescriptionPending, models.PrescriptionApproved}, now).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due prescriptions: %w", err)
	}
	expired := make([]models.PrescriptionRequest, 0, len(due))
	for _, req := range due {
		res := r.db.WithContext(ctx).Model(&models.PrescriptionRequest{}).
			Where("id = ? AND status = ? AND consumed_by_order_id IS NULL", req.ID, req.Status).
			Updates(map[string]any{"status": models.PrescriptionExpired, "updated_at": now})
		if res.Error != nil {
			return expired, fmt.Errorf("failed to expire prescription %s: %w", req.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			req.Status = models.PrescriptionExpired
			expired = append(expired, req)
		}
	}
	return expired, nil
}

// GORMPlanRepository is a GORM implementation of PlanRepository.
type GORMPlanRepository struct {
	db *gorm.DB
}

func NewGORMPlanRepository(db *gorm.DB) *GORMPlanRepository {
	return &GORMPlanRepository{db: db}
}

func (r *GORMPlanRepository) Create(ctx context.Context, plan *models.PrescriptionPlan) error {
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("failed to create prescription plan: %w", err)
	}
	return nil
}

func (r *GORMPlanRepository) GetByID(ctx context.Context, id string) (*models.PrescriptionPlan, error) {
	var plan models.PrescriptionPlan
	if err := r.db.WithContext(ctx).Preload("Items").First(&plan, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "prescription plan", id)
	}
	return &plan, nil
}

func (r *GORMPlanRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.PrescriptionPlan, error) {
	plans := []models.PrescriptionPlan{}
	err := r.db.WithContext(ctx).Preload("Items").Where("customer_id = ?", customerID).Order("created_at").Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list prescription plans: %w", err)
	}
	return plans, nil
}

func (r *GORMPlanRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("plan_id = ?", id).Delete(&models.PlanItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete plan items: %w", err)
		}
		res := tx.Delete(&models.PrescriptionPlan{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete prescription plan: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("prescription plan", id)
		}
		return nil
	})
}

func (r *GORMPlanRepository) GetItem(ctx context.Context, id string) (*models.PlanItem, error) {
	var item models.PlanItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "plan item", id)
	}
	return &item, nil
}

// DueItems returns items of active plans due before the given time that have not
// been reminded for their current due date.
func (r *GORMPlanRepository) DueItems(ctx context.Context, before time.Time) ([]models.PlanItem, error) {
	items := []models.PlanItem{}
	err := r.db.WithContext(ctx).
		Joins("JOIN prescription_plans ON prescription_plans.id = plan_items.plan_id").
		Where("prescription_plans.active = ? AND plan_items.next_due_at <= ?", true, before).
		Where("plan_items.reminded_for IS NULL OR plan_items.reminded_for <> plan_items.next_due_at").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due plan items: %w", err)
	}
	return items, nil
}

func (r *GORMPlanRepository) MarkReminded(ctx context.Context, itemID string, dueAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.PlanItem{}).Where("id = ?", itemID).
		Updates(map[string]any{"reminded_for": dueAt, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to mark plan item reminded: %w", err)
	}
	return nil
}

func (r *GORMPlanRepository) Advance(ctx context.Context, itemID string, next time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.PlanItem{}).Where("id = ?", itemID).
		Updates(map[string]any{"next_due_at": next, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to advance plan item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("plan item", itemID)
	}
	return nil
}
