package services

import (
	"context"
	"strings"

	"pharmacy/internal/checkout"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
)

// Profile is a user with their health profile.
type Profile struct {
	*models.User
	AllergyIDs []string `json:"allergyIds"`
	IllnessIDs []string `json:"illnessIds"`
}

// ProfileInput updates the signed-in user's details. A nil Address leaves it unchanged.
type ProfileInput struct {
	FirstName string                 `json:"firstName" validate:"required,max=100"`
	LastName  string                 `json:"lastName" validate:"max=100"`
	Phone     string                 `json:"phone" validate:"omitempty,bh_phone"`
	CityID    string                 `json:"cityId"`
	Address   *checkout.AddressInput `json:"address"`
}

// HealthInput replaces the user's allergies and illnesses.
type HealthInput struct {
	AllergyIDs []string `json:"allergyIds"`
	IllnessIDs []string `json:"illnessIds"`
}

// ProfileService manages a user's own profile.
type ProfileService struct {
	store *repositories.Store
}

func NewProfileService(store *repositories.Store) *ProfileService {
	return &ProfileService{store: store}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	allergies, err := s.store.Health.UserAllergyIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	illnesses, err := s.store.Health.UserIllnessIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, AllergyIDs: allergies, IllnessIDs: illnesses}, nil
}

// Update changes names, phone and address together.
func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileInput) (*Profile, error) {
	if in.Address != nil {
		ve := newValidation()
		checkout.ValidateAddress(*in.Address, "address", ve)
		if err := ve.OrNil(); err != nil {
			return nil, err
		}
	}

	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		user, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		user.FirstName = strings.TrimSpace(in.FirstName)
		user.LastName = strings.TrimSpace(in.LastName)
		user.Phone = in.Phone

		if in.Address != nil {
			address, err := buildAddress(ctx, tx, in.CityID, *in.Address)
			if err != nil {
				return err
			}
			if user.AddressID != nil {
				address.ID = *user.AddressID
			}
			if err := tx.Users.SaveAddress(ctx, address); err != nil {
				return err
			}
			user.AddressID = &address.ID
		}
		user.Address = nil
		return tx.Users.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// SetHealth replaces the health profile used for incompatibility warnings.
func (s *ProfileService) SetHealth(ctx context.Context, userID string, in HealthInput) (*Profile, error) {
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		return setHealthProfile(ctx, tx, userID, in.AllergyIDs, in.IllnessIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// SavedAddress returns the profile address in checkout form, or nil.
func SavedAddress(user *models.User) *checkout.AddressInput {
	if user == nil || user.Address == nil {
		return nil
	}
	return &checkout.AddressInput{
		City:     user.Address.City,
		Block:    user.Address.Block,
		Road:     user.Address.Road,
		Building: user.Address.Building,
	}
}
