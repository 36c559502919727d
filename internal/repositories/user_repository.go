package repositories

import (
	"context"
	"time"

	"pharmacy/internal/models"
)

// UserFilter narrows staff and customer listings.
type UserFilter struct {
	Roles  []string
	Search string
	models.PageQuery
}

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter) (models.Page[models.User], error)
	SaveAddress(ctx context.Context, address *models.Address) error
}

// PasswordResetRepository stores single-use password reset tokens.
type PasswordResetRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	FindValid(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}
