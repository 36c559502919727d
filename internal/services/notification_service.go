package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/pkg/mailer"
)

// Message is an email to queue.
type Message struct {
	To      string
	Subject string
	Body    string
	Kind    string
}

// Notification kinds.
const (
	KindOrderPlaced          = "order_placed"
	KindOrderStatus          = "order_status"
	KindPrescriptionReviewed = "prescription_reviewed"
	KindPrescriptionExpired  = "prescription_expired"
	KindPlanReminder         = "plan_reminder"
	KindReorder              = "reorder"
	KindPasswordReset        = "password_reset"
)

// NotificationConfig tunes delivery.
type NotificationConfig struct {
	BatchSize  int
	MaxRetries int
	RetryBase  time.Duration
}

// NotificationService is the email outbox. Producers enqueue rows inside their
// own transaction; a job delivers them with bounded retries.
type NotificationService struct {
	store  *repositories.Store
	mailer mailer.Mailer
	cfg    NotificationConfig
	now    func() time.Time
}

func NewNotificationService(store *repositories.Store, m mailer.Mailer, cfg NotificationConfig) *NotificationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	return &NotificationService{store: store, mailer: m, cfg: cfg, now: utcNow}
}

// Enqueue writes msg to the outbox through tx, or the root store when tx is nil.
func (s *NotificationService) Enqueue(ctx context.Context, tx *repositories.Store, msg Message) error {
	if msg.To == "" {
		return nil
	}
	if tx == nil {
		tx = s.store
	}
	n := &models.Notification{
		Recipient:     msg.To,
		Subject:       msg.Subject,
		Body:          msg.Body,
		Kind:          msg.Kind,
		Status:        models.NotificationPending,
		MaxAttempts:   s.cfg.MaxRetries,
		NextAttemptAt: s.now(),
	}
	return tx.Notifications.Create(ctx, n)
}

// Backoff is the wait before the next attempt after attempts failures.
func Backoff(base time.Duration, attempts int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempts-1))) * base
}

// DeliveryResult counts what one delivery pass did.
type DeliveryResult struct {
	Sent    int
	Retried int
	Dead    int
}

// DeliverDue sends one batch of due notifications.
func (s *NotificationService) DeliverDue(ctx context.Context) (DeliveryResult, error) {
	var res DeliveryResult
	due, err := s.store.Notifications.Due(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return res, err
	}

	for _, n := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		sendErr := s.mailer.Send(ctx, n.Recipient, n.Subject, n.Body)
		if sendErr == nil {
			if err := s.store.Notifications.MarkSent(ctx, n.ID, s.now()); err != nil {
				slog.ErrorContext(ctx, "failed to mark notification sent", "notification_id", n.ID, "error", err)
			}
			res.Sent++
			continue
		}

		attempts := n.Attempts + 1
		limit := n.MaxAttempts
		if limit <= 0 {
			limit = s.cfg.MaxRetries
		}
		if attempts >= limit {
			slog.ErrorContext(ctx, "notification dead after retries",
				"notification_id", n.ID, "recipient", n.Recipient, "attempts", attempts, "error", sendErr)
			if err := s.store.Notifications.MarkDead(ctx, n.ID, attempts, sendErr.Error()); err != nil {
				slog.ErrorContext(ctx, "failed to mark notification dead", "notification_id", n.ID, "error", err)
			}
			res.Dead++
			continue
		}

		next := s.now().Add(Backoff(s.cfg.RetryBase, attempts))
		slog.WarnContext(ctx, "notification send failed, will retry",
			"notification_id", n.ID, "attempts", attempts, "next_attempt", next, "error", sendErr)
		if err := s.store.Notifications.MarkRetry(ctx, n.ID, attempts, sendErr.Error(), next); err != nil {
			slog.ErrorContext(ctx, "failed to schedule notification retry", "notification_id", n.ID, "error", err)
		}
		res.Retried++
	}
	return res, nil
}

// List returns notifications in status; dead letters are listed with NotificationDead.
func (s *NotificationService) List(ctx context.Context, status string, q models.PageQuery) (models.Page[models.Notification], error) {
	return s.store.Notifications.List(ctx, status, q)
}

// Requeue gives a dead notification a fresh set of attempts.
func (s *NotificationService) Requeue(ctx context.Context, actor Actor, id string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Notifications.Requeue(ctx, id, s.now()); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "notification.requeue", "notification", id, "")
	})
}
