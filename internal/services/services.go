package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/pkg/storage"

	"github.com/shopspring/decimal"
)

// EventPublisher sends domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, data any) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID    string
	Email string
	Role  string
}

// IsStaff reports whether the actor holds a back-office role.
func (a Actor) IsStaff() bool {
	u := models.User{Role: a.Role}
	return u.IsStaff()
}

// SystemActor is used for changes made by background jobs.
var SystemActor = Actor{ID: "system", Email: "system", Role: models.RoleAdmin}

func utcNow() time.Time {
	return time.Now().UTC()
}

// publish sends an event after commit. Broker failures never fail the request.
func publish(ctx context.Context, events EventPublisher, key string, data any) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, key, data); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "routing_key", key, "error", err)
	}
}

// logActivity records a back-office action through tx so it commits with the change it describes.
func logActivity(ctx context.Context, tx *repositories.Store, actor Actor, action, entity, entityID, details string) error {
	entry := &models.ActivityLog{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Details:    details,
	}
	if err := tx.Logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s: %w", action, err)
	}
	return nil
}

func newValidation() *apperr.ValidationError {
	return &apperr.ValidationError{}
}

// uploadError turns a rejected upload into a field error and passes other failures through.
func uploadError(field string, err error) error {
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		return apperr.Invalid(field, "Unsupported file type")
	case errors.Is(err, storage.ErrTooLarge):
		return apperr.Invalid(field, "File is too large")
	}
	return fmt.Errorf("failed to store %s: %w", field, err)
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
