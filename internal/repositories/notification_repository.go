package repositories

import (
	"context"
	"fmt"
	"time"

	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository is the outbox of emails awaiting delivery.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	Due(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error
	MarkDead(ctx context.Context, id string, attempts int, lastErr string) error
	Requeue(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, status string, q models.PageQuery) (models.Page[models.Notification], error)
}

// ActivityLogFilter narrows the activity log listing.
type ActivityLogFilter struct {
	ActorID string
	Action  string
	Entity  string
	From    *time.Time
	To      *time.Time
	models.PageQuery
}

// ActivityLogRepository stores back-office activity records.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) (models.Page[models.ActivityLog], error)
}

// GORMNotificationRepository is a GORM implementation of NotificationRepository.
type GORMNotificationRepository struct {
	db *gorm.DB
}

func NewGORMNotificationRepository(db *gorm.DB) *GORMNotificationRepository {
	return &GORMNotificationRepository{db: db}
}

func (r *GORMNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func (r *GORMNotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "notification", id)
	}
	return &n, nil
}

// Due returns pending notifications whose next attempt is at or before now, oldest first.
func (r *GORMNotificationRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	items := []models.Notification{}
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.NotificationPending, now).
		Order("next_attempt_at").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due notifications: %w", err)
	}
	return items, nil
}

func (r *GORMNotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":     models.NotificationSent,
		"sent_at":    at,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": "",
		"updated_at": at,
	})
}

func (r *GORMNotificationRepository) MarkRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return r.update(ctx, id, map[string]any{
		"attempts":        attempts,
		"last_error":      truncate(lastErr, 500),
		"next_attempt_at": next,
		"updated_at":      time.Now(),
	})
}

func (r *GORMNotificationRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.update(ctx, id, map[string]any{
		"status":     models.NotificationDead,
		"attempts":   attempts,
		"last_error": truncate(lastErr, 500),
		"updated_at": time.Now(),
	})
}

// Requeue resets a dead notification so the delivery job picks it up again.
func (r *GORMNotificationRepository) Requeue(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status = ?", id, models.NotificationDead).
		Updates(map[string]any{
			"status":          models.NotificationPending,
			"attempts":        0,
			"next_attempt_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to requeue notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("dead notification", id)
	}
	return nil
}

func (r *GORMNotificationRepository) List(ctx context.Context, status string, q models.PageQuery) (models.Page[models.Notification], error) {
	page := models.Page[models.Notification]{Items: []models.Notification{}}
	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.Notification{})
		if status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count notifications: %w", err)
	}
	if err := query().Scopes(paginate(q)).Order("created_at DESC").Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("failed to list notifications: %w", err)
	}
	return page, nil
}

func (r *GORMNotificationRepository) update(ctx context.Context, id string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update notification %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("notification", id)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// GORMActivityLogRepository is a GORM implementation of ActivityLogRepository.
type GORMActivityLogRepository struct {
	db *gorm.DB
}

func NewGORMActivityLogRepository(db *gorm.DB) *GORMActivityLogRepository {
	return &GORMActivityLogRepository{db: db}
}

func (r *GORMActivityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.Details = truncate(entry.Details, 1000)
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}

func (r *GORMActivityLogRepository) List(ctx context.Context, filter ActivityLogFilter) (models.Page[models.ActivityLog], error) {
	page := models.Page[models.ActivityLog]{Items: []models.ActivityLog{}}
	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.ActivityLog{})
		if filter.ActorID != "" {
			db = db.Where("actor_id = ?", filter.ActorID)
		}
		if filter.Action != "" {
			db = db.Where("action = ?", filter.Action)
		}
		if filter.Entity != "" {
			db = db.Where("entity = ?", filter.Entity)
		}
		if filter.From != nil {
			db = db.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			db = db.Where("created_at < ?", *filter.To)
		}
		return db
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count activity logs: %w", err)
	}
	if err := query().Scopes(paginate(filter.PageQuery)).Order("created_at DESC").Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("failed to list activity logs: %w", err)
	}
	return page, nil
}
