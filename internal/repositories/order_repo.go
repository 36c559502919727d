package repositories

import (
	"context"
	"time"

	"pharmacy/internal/models"
)

// OrderFilter narrows order listings.
type OrderFilter struct {
	CustomerID string
	Status     string
	models.PageQuery
}

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) (models.Page[models.Order], error)
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
	AddStatusEntry(ctx context.Context, entry *models.OrderStatusEntry) error
	FindByPaymentReference(ctx context.Context, ref string) (*models.Order, error)
}

// DraftRepository stores checkout drafts while the customer is at the payment provider.
type DraftRepository interface {
	Create(ctx context.Context, draft *models.CheckoutDraft) error
	GetBySession(ctx context.Context, sessionID string) (*models.CheckoutDraft, error)
	Consume(ctx context.Context, sessionID string) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.CheckoutDraft, error)
}
