package services_test

import (
	"context"
	"testing"

	"pharmacy/internal/apperr"
	"pharmacy/internal/checkout"
	"pharmacy/internal/models"
	"pharmacy/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileService_UpdateAddress(t *testing.T) {
	w := newWorld(t)
	svc := services.NewProfileService(w.store)
	ctx := context.Background()

	profile, err := svc.Update(ctx, w.customer.ID, services.ProfileInput{
		FirstName: "  Mariam ",
		LastName:  "Ali",
		Phone:     "36001234",
		CityID:    w.city.ID,
		Address:   &checkout.AddressInput{Block: "301", Road: "12", Building: "45A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Mariam", profile.FirstName)
	require.NotNil(t, profile.Address)
	assert.Equal(t, "Manama", profile.Address.City)
	firstAddressID := profile.Address.ID

	// a second update rewrites the same address row
	profile, err = svc.Update(ctx, w.customer.ID, services.ProfileInput{
		FirstName: "Mariam",
		Address:   &checkout.AddressInput{City: "Riffa", Block: "901", Road: "3", Building: "7"},
	})
	require.NoError(t, err)
	require.NotNil(t, profile.Address)
	assert.Equal(t, firstAddressID, profile.Address.ID)
	assert.Equal(t, "Riffa", profile.Address.City)
	assert.Equal(t, "901", services.SavedAddress(profile.User).Block)
}

func TestProfileService_UpdateRejectsBadAddress(t *testing.T) {
	w := newWorld(t)
	svc := services.NewProfileService(w.store)

	_, err := svc.Update(context.Background(), w.customer.ID, services.ProfileInput{
		FirstName: "Mariam",
		Address:   &checkout.AddressInput{City: "Manama", Block: "1", Road: "12", Building: "45"},
	})
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "address.block", ve.Fields[0].Field)

	_, err = svc.Update(context.Background(), w.customer.ID, services.ProfileInput{
		FirstName: "Mariam",
		CityID:    "missing",
		Address:   &checkout.AddressInput{City: "Manama", Block: "301", Road: "12", Building: "45"},
	})
	ve, ok = apperr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "cityId", ve.Fields[0].Field)
}

func TestProfileService_SetHealth(t *testing.T) {
	w := newWorld(t)
	svc := services.NewProfileService(w.store)
	ctx := context.Background()

	penicillin := &models.Allergy{Name: "Penicillin"}
	require.NoError(t, w.store.Allergies.Create(ctx, penicillin))
	asthma := &models.Illness{Name: "Asthma"}
	require.NoError(t, w.store.Illnesses.Create(ctx, asthma))

	profile, err := svc.SetHealth(ctx, w.customer.ID, services.HealthInput{
		AllergyIDs: []string{penicillin.ID},
		IllnessIDs: []string{asthma.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{penicillin.ID}, profile.AllergyIDs)
	assert.Equal(t, []string{asthma.ID}, profile.IllnessIDs)

	_, err = svc.SetHealth(ctx, w.customer.ID, services.HealthInput{AllergyIDs: []string{"nope"}})
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "allergyIds", ve.Fields[0].Field)

	// the failed call left the previous profile in place
	profile, err = svc.Get(ctx, w.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{penicillin.ID}, profile.AllergyIDs)
}
