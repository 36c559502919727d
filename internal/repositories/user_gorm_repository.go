package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// Create creates a new user in the database.
func (r *GORMUserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit("Address").Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByEmail retrieves a user by email. It returns (nil, nil) when no user matches.
func (r *GORMUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Address").First(&user, "email = ?", strings.ToLower(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email %s: %w", email, err)
	}
	return &user, nil
}

// GetByID retrieves a user by their ID from the database.
func (r *GORMUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("Address").First(&user, "id = ?", id).Error; err != nil {
		return nil, wrapFirst(err, "user", id)
	}
	return &user, nil
}

// Update saves the user's scalar fields.
func (r *GORMUserRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit("Address").Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *GORMUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("user", id)
	}
	return nil
}

func (r *GORMUserRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("user", id)
	}
	return nil
}

func (r *GORMUserRepository) List(ctx context.Context, filter UserFilter) (models.Page[models.User], error) {
	page := models.Page[models.User]{Items: []models.User{}}
	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.User{})
		if len(filter.Roles) > 0 {
			db = db.Where("role IN ?", filter.Roles)
		}
		if s := strings.TrimSpace(filter.Search); s != "" {
			like := "%" + strings.ToLower(s) + "%"
			db = db.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
		}
		return db
	}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return page, fmt.Errorf("failed to count users: %w", err)
	}
	if err := query().Scopes(paginate(filter.PageQuery)).Order("email").Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("failed to list users: %w", err)
	}
	return page, nil
}

// SaveAddress inserts or updates an address.
func (r *GORMUserRepository) SaveAddress(ctx context.Context, address *models.Address) error {
	db := r.db.WithContext(ctx)
	var err error
	if address.ID == "" {
		err = db.Create(address).Error
	} else {
		err = db.Save(address).Error
	}
	if err != nil {
		return fmt.Errorf("failed to save address: %w", err)
	}
	return nil
}

// GORMPasswordResetRepository is a GORM implementation of PasswordResetRepository.
type GORMPasswordResetRepository struct {
	db *gorm.DB
}

func NewGORMPasswordResetRepository(db *gorm.DB) *GORMPasswordResetRepository {
	return &GORMPasswordResetRepository{db: db}
}

func (r *GORMPasswordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to create password reset token: %w", err)
	}
	return nil
}

// FindValid returns an unused, unexpired token or (nil, nil).
func (r *GORMPasswordResetRepository) FindValid(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset token: %w", err)
	}
	return &token, nil
}

// MarkUsed consumes the token; it reports false when it was already used.
func (r *GORMPasswordResetRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PasswordResetToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark password reset token used: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
