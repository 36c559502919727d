package jobs

import (
	"context"
	"time"

	"pharmacy/internal/config"
	"pharmacy/internal/services"
)

// Job names.
const (
	PrescriptionExpiry   = "prescription-expiry"
	PlanReminders        = "plan-reminders"
	ReorderSweep         = "reorder-sweep"
	NotificationDelivery = "notification-delivery"
	DraftCleanup         = "draft-cleanup"
)

// Services are the collaborators the standard jobs drive.
type Services struct {
	Prescriptions *services.PrescriptionService
	Inventory     *services.InventoryService
	Notifications *services.NotificationService
	Checkout      *services.CheckoutService
}

// Standard builds the pharmacy's periodic tasks from configuration.
func Standard(cfg *config.Config, svc Services) []Task {
	return []Task{
		{Name: PrescriptionExpiry, Interval: cfg.ExpiryInterval, Run: svc.Prescriptions.ExpireDue},
		{Name: PlanReminders, Interval: cfg.ReminderInterval, Run: func(ctx context.Context) (int, error) {
			return svc.Prescriptions.RemindDue(ctx, cfg.ReminderLead)
		}},
		{Name: ReorderSweep, Interval: cfg.ReorderInterval, Run: svc.Inventory.RunReorderSweep},
		{Name: NotificationDelivery, Interval: cfg.NotifyInterval, Run: func(ctx context.Context) (int, error) {
			res, err := svc.Notifications.DeliverDue(ctx)
			return res.Sent + res.Retried + res.Dead, err
		}},
		{Name: DraftCleanup, Interval: time.Hour, Run: svc.Checkout.PurgeExpiredDrafts},
	}
}
