package repositories

import (
	"context"
	"errors"
	"fmt"

	"pharmacy/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepository stores the server-owned cart of each user.
type CartRepository interface {
	List(ctx context.Context, userID string) ([]models.CartItem, error)
	Get(ctx context.Context, userID, productID string) (*models.CartItem, error)
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// WishlistRepository stores saved-for-later products.
type WishlistRepository interface {
	List(ctx context.Context, userID string) ([]models.WishlistItem, error)
	Add(ctx context.Context, userID, productID string) error
	Remove(ctx context.Context, userID, productID string) error
}

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

func (r *GORMCartRepository) List(ctx context.Context, userID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return items, nil
}

// Get returns the cart line or (nil, nil) when the product is not in the cart.
func (r *GORMCartRepository) Get(ctx context.Context, userID, productID string) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).First(&item, "user_id = ? AND product_id = ?", userID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	}
	return &item, nil
}

// SetQuantity writes an absolute quantity, so repeating the call has no further effect.
func (r *GORMCartRepository) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	item := models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&item).Error
	if err != nil {
		return fmt.Errorf("failed to set cart quantity: %w", err)
	}
	return nil
}

// Remove deletes the line; removing an absent line is not an error.
func (r *GORMCartRepository) Remove(ctx context.Context, userID, productID string) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.CartItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

func (r *GORMCartRepository) Clear(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// GORMWishlistRepository is a GORM implementation of WishlistRepository.
type GORMWishlistRepository struct {
	db *gorm.DB
}

func NewGORMWishlistRepository(db *gorm.DB) *GORMWishlistRepository {
	return &GORMWishlistRepository{db: db}
}

func (r *GORMWishlistRepository) List(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	items := []models.WishlistItem{}
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}
	return items, nil
}

func (r *GORMWishlistRepository) Add(ctx context.Context, userID, productID string) error {
	item := models.WishlistItem{UserID: userID, ProductID: productID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item).Error
	if err != nil {
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}
	return nil
}

func (r *GORMWishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.WishlistItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove wishlist item: %w", err)
	}
	return nil
}
