package repositories

import (
	"context"
	"fmt"

	"pharmacy/internal/models"

	"gorm.io/gorm"
)

// HealthRepository covers customer health profiles and the product conflict tables.
type HealthRepository interface {
	SetUserAllergies(ctx context.Context, userID string, allergyIDs []string) error
	SetUserIllnesses(ctx context.Context, userID string, illnessIDs []string) error
	UserAllergyIDs(ctx context.Context, userID string) ([]string, error)
	UserIllnessIDs(ctx context.Context, userID string) ([]string, error)

	CreateIncompatibility(ctx context.Context, inc *models.ProductIncompatibility) error
	DeleteIncompatibility(ctx context.Context, id string) error
	IncompatibilitiesFor(ctx context.Context, productIDs []string) ([]models.ProductIncompatibility, error)

	CreateConflict(ctx context.Context, conflict *models.ProductConflict) error
	DeleteConflict(ctx context.Context, id string) error
	ConflictsFor(ctx context.Context, productIDs []string) ([]models.ProductConflict, error)
}

// GORMHealthRepository is a GORM implementation of HealthRepository.
type GORMHealthRepository struct {
	db *gorm.DB
}

func NewGORMHealthRepository(db *gorm.DB) *GORMHealthRepository {
	return &GORMHealthRepository{db: db}
}

// SetUserAllergies replaces the user's allergy set.
func (r *GORMHealthRepository) SetUserAllergies(ctx context.Context, userID string, allergyIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserAllergy{}).Error; err != nil {
			return fmt.Errorf("failed to clear allergies: %w", err)
		}
		for _, id := range dedupe(allergyIDs) {
			if err := tx.Create(&models.UserAllergy{UserID: userID, AllergyID: id}).Error; err != nil {
				return fmt.Errorf("failed to add allergy %s: %w", id, err)
			}
		}
		return nil
	})
}

// SetUserIllnesses replaces the user's illness set.
func (r *GORMHealthRepository) SetUserIllnesses(ctx context.Context, userID string, illnessIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserIllness{}).Error; err != nil {
			return fmt.Errorf("failed to clear illnesses: %w", err)
		}
		for _, id := range dedupe(illnessIDs) {
			if err := tx.Create(&models.UserIllness{UserID: userID, IllnessID: id}).Error; err != nil {
				return fmt.Errorf("failed to add illness %s: %w", id, err)
			}
		}
		return nil
	})
}

func (r *GORMHealthRepository) UserAllergyIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	if err := r.db.WithContext(ctx).Model(&models.UserAllergy{}).Where("user_id = ?", userID).Pluck("allergy_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load allergies: %w", err)
	}
	return ids, nil
}

func (r *GORMHealthRepository) UserIllnessIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	if err := r.db.WithContext(ctx).Model(&models.UserIllness{}).Where("user_id = ?", userID).Pluck("illness_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load illnesses: %w", err)
	}
	return ids, nil
}

func (r *GORMHealthRepository) CreateIncompatibility(ctx context.Context, inc *models.ProductIncompatibility) error {
	if err := r.db.WithContext(ctx).Create(inc).Error; err != nil {
		return fmt.Errorf("failed to create incompatibility: %w", err)
	}
	return nil
}

func (r *GORMHealthRepository) DeleteIncompatibility(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.ProductIncompatibility{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete incompatibility: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("incompatibility", id)
	}
	return nil
}

// IncompatibilitiesFor returns every incompatibility touching any of productIDs, in either direction.
func (r *GORMHealthRepository) IncompatibilitiesFor(ctx context.Context, productIDs []string) ([]models.ProductIncompatibility, error) {
	items := []models.ProductIncompatibility{}
	if len(productIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Where("product_id IN ? OR incompatible_product_id IN ?", productIDs, productIDs).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load incompatibilities: %w", err)
	}
	return items, nil
}

func (r *GORMHealthRepository) CreateConflict(ctx context.Context, conflict *models.ProductConflict) error {
	if err := r.db.WithContext(ctx).Create(conflict).Error; err != nil {
		return fmt.Errorf("failed to create product conflict: %w", err)
	}
	return nil
}

func (r *GORMHealthRepository) DeleteConflict(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.ProductConflict{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete product conflict: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("product conflict", id)
	}
	return nil
}

func (r *GORMHealthRepository) ConflictsFor(ctx context.Context, productIDs []string) ([]models.ProductConflict, error) {
	items := []models.ProductConflict{}
	if len(productIDs) == 0 {
		return items, nil
	}
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load product conflicts: %w", err)
	}
	return items, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
