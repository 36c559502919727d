package services

import (
	"context"
	"fmt"
	"log/slog"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/pkg/rabbitmq"
)

// OrderService handles business logic related to placed orders.
type OrderService struct {
	store         *repositories.Store
	notifications *NotificationService
	events        EventPublisher
}

// NewOrderService creates a new OrderService.
func NewOrderService(store *repositories.Store, notifications *NotificationService, events EventPublisher) *OrderService {
	return &OrderService{store: store, notifications: notifications, events: events}
}

// ListMine returns the customer's own orders, newest first.
func (s *OrderService) ListMine(ctx context.Context, customerID, status string, q models.PageQuery) (models.Page[models.Order], error) {
	return s.store.Orders.List(ctx, repositories.OrderFilter{CustomerID: customerID, Status: status, PageQuery: q})
}

// ListAll returns every order for the back-office.
func (s *OrderService) ListAll(ctx context.Context, status string, q models.PageQuery) (models.Page[models.Order], error) {
	return s.store.Orders.List(ctx, repositories.OrderFilter{Status: status, PageQuery: q})
}

// Get returns an order. Customers only see their own; anyone else's reads as missing.
func (s *OrderService) Get(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	order, err := s.store.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && order.CustomerID != actor.ID {
		return nil, apperr.NotFoundf("order with ID %s not found", id)
	}
	return order, nil
}

// UpdateStatus moves an order along its lifecycle and records who did it.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, id, status, note string) (*models.Order, error) {
	return s.transition(ctx, actor, id, status, note, func(o *models.Order) error {
		if !models.CanTransition(o.Status, status) {
			return apperr.Conflictf("order cannot move from %s to %s", o.Status, status)
		}
		if status == models.OrderReadyForPickup && o.Shipping.Mode != models.FulfillmentPickup {
			return apperr.Conflictf("only pickup orders can be ready for pickup")
		}
		if status == models.OrderOutForDelivery && o.Shipping.Mode != models.FulfillmentDelivery {
			return apperr.Conflictf("only delivery orders can go out for delivery")
		}
		return nil
	})
}

// Cancel lets a customer withdraw an order that nobody started working on.
func (s *OrderService) Cancel(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	return s.transition(ctx, actor, id, models.OrderCancelled, "cancelled by customer", func(o *models.Order) error {
		if o.CustomerID != actor.ID {
			return apperr.NotFoundf("order with ID %s not found", id)
		}
		if o.Status != models.OrderPlaced {
			return apperr.Conflictf("order can no longer be cancelled")
		}
		return nil
	})
}

func (s *OrderService) transition(ctx context.Context, actor Actor, id, status, note string, allow func(*models.Order) error) (*models.Order, error) {
	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		if order, err = tx.Orders.GetByID(ctx, id); err != nil {
			return err
		}
		if err := allow(order); err != nil {
			return err
		}
		from := order.Status
		ok, err := tx.Orders.TransitionStatus(ctx, id, from, status)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflictf("order %s was changed by someone else", id)
		}
		entry := &models.OrderStatusEntry{OrderID: id, Status: status, ActorID: actor.ID, Note: note}
		if err := tx.Orders.AddStatusEntry(ctx, entry); err != nil {
			return err
		}
		order.Status = status
		order.History = append(order.History, *entry)

		if status == models.OrderCancelled && order.FulfillmentBranchID != "" {
			for _, l := range order.Lines {
				if err := tx.Inventory.Increment(ctx, order.FulfillmentBranchID, l.ProductID, l.Quantity); err != nil {
					return err
				}
			}
		}

		customer, err := tx.Users.GetByID(ctx, order.CustomerID)
		if err != nil {
			return err
		}
		if err := s.notifications.Enqueue(ctx, tx, orderStatusEmail(customer, order, status)); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "order.status", "order", id, fmt.Sprintf("%s -> %s", from, status))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "order status changed", "order_id", id, "status", status, "actor_id", actor.ID)
	publish(ctx, s.events, rabbitmq.KeyOrderStatusChanged, orderEvent(order))
	return order, nil
}
