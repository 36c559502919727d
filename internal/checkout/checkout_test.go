package checkout_test

import (
	"errors"
	"testing"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/checkout"
	"pharmacy/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fees = checkout.Fees{Delivery: decimal.NewFromInt(1), Urgent: decimal.NewFromInt(1)}

func line(prescribed bool) checkout.Line {
	return checkout.Line{ProductID: "p1", Name: "Paracetamol", UnitPrice: decimal.RequireFromString("5.000"), Quantity: 1, Prescribed: prescribed}
}

func TestSteps(t *testing.T) {
	assert.Equal(t,
		[]checkout.Step{checkout.StepSummary, checkout.StepShipping, checkout.StepPayment},
		checkout.Steps([]checkout.Line{line(false)}))

	assert.Equal(t,
		[]checkout.Step{checkout.StepSummary, checkout.StepPrescription, checkout.StepShipping, checkout.StepPayment},
		checkout.Steps([]checkout.Line{line(false), line(true)}))
}

func TestNeedsIncompatibilityConfirmation(t *testing.T) {
	lines := []checkout.Line{line(false), line(false)}
	assert.False(t, checkout.NeedsIncompatibilityConfirmation(lines))

	lines[1].Incompatibilities = []checkout.Warning{{Kind: checkout.WarningAllergy, RefName: "Penicillin"}}
	assert.True(t, checkout.NeedsIncompatibilityConfirmation(lines))
}

func TestComputeTotals(t *testing.T) {
	lines := []checkout.Line{line(false)}

	pickup := checkout.ComputeTotals(lines, checkout.ModePickup, false, fees)
	assert.Equal(t, "5.000", pickup.Total.StringFixed(3))
	assert.True(t, pickup.DeliveryFee.IsZero())

	// urgent is ignored for pickup
	pickupUrgent := checkout.ComputeTotals(lines, checkout.ModePickup, true, fees)
	assert.Equal(t, "5.000", pickupUrgent.Total.StringFixed(3))

	delivery := checkout.ComputeTotals(lines, checkout.ModeDelivery, false, fees)
	assert.Equal(t, "6.000", delivery.Total.StringFixed(3))

	urgent := checkout.ComputeTotals(lines, checkout.ModeDelivery, true, fees)
	assert.Equal(t, "2", urgent.DeliveryFee.String())
	assert.Equal(t, "7.000", urgent.Total.StringFixed(3))

	multi := checkout.ComputeTotals([]checkout.Line{
		{UnitPrice: decimal.RequireFromString("1.250"), Quantity: 3},
		{UnitPrice: decimal.RequireFromString("0.500"), Quantity: 2},
	}, checkout.ModePickup, false, fees)
	assert.Equal(t, "4.750", multi.Subtotal.StringFixed(3))
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok, "expected validation error, got %v", err)
	names := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		names = append(names, f.Field)
	}
	return names
}

var goodAddress = checkout.AddressInput{City: "Manama", Block: "301", Road: "12", Building: "45A"}

func TestValidateShipping_Pickup(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	err := checkout.ValidateShipping(checkout.ShippingInput{Mode: checkout.ModePickup}, nil, nil, now)
	assert.Contains(t, fieldNames(t, err), "shipping.branchId")

	err = checkout.ValidateShipping(checkout.ShippingInput{Mode: checkout.ModePickup, BranchID: "b1"}, []string{"Paracetamol"}, nil, now)
	assert.Contains(t, fieldNames(t, err), "shipping.branchId")

	assert.NoError(t, checkout.ValidateShipping(checkout.ShippingInput{Mode: checkout.ModePickup, BranchID: "b1"}, nil, nil, now))
}

func TestValidateShipping_DeliverySchedule(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	in := checkout.ShippingInput{Mode: checkout.ModeDelivery, Address: goodAddress}

	err := checkout.ValidateShipping(in, nil, nil, now)
	assert.ElementsMatch(t, []string{"shipping.deliveryDate", "shipping.timeSlot"}, fieldNames(t, err))

	in.DeliveryDate = "2026-05-11"
	err = checkout.ValidateShipping(in, nil, nil, now)
	assert.Equal(t, []string{"shipping.timeSlot"}, fieldNames(t, err))

	in.TimeSlot = checkout.TimeSlots[0]
	assert.NoError(t, checkout.ValidateShipping(in, nil, nil, now))

	// today is still bookable, yesterday is not
	in.DeliveryDate = "2026-05-10"
	assert.NoError(t, checkout.ValidateShipping(in, nil, nil, now))
	in.DeliveryDate = "2026-05-09"
	assert.Equal(t, []string{"shipping.deliveryDate"}, fieldNames(t, checkout.ValidateShipping(in, nil, nil, now)))

	urgent := checkout.ShippingInput{Mode: checkout.ModeDelivery, Address: goodAddress, Urgent: true}
	assert.NoError(t, checkout.ValidateShipping(urgent, nil, nil, now))
}

func TestValidateShipping_Address(t *testing.T) {
	now := time.Now()
	in := checkout.ShippingInput{
		Mode:    checkout.ModeDelivery,
		Urgent:  true,
		Address: checkout.AddressInput{City: "", Block: "12", Road: "12345", Building: "12AB"},
	}
	err := checkout.ValidateShipping(in, nil, nil, now)
	assert.ElementsMatch(t,
		[]string{"shipping.address.city", "shipping.address.block", "shipping.address.road", "shipping.address.building"},
		fieldNames(t, err))

	saved := checkout.ShippingInput{Mode: checkout.ModeDelivery, Urgent: true, UseSavedAddress: true}
	assert.Equal(t, []string{"shipping.useSavedAddress"}, fieldNames(t, checkout.ValidateShipping(saved, nil, nil, now)))
	assert.NoError(t, checkout.ValidateShipping(saved, nil, &goodAddress, now))

	assert.Equal(t, []string{"shipping.mode"}, fieldNames(t, checkout.ValidateShipping(checkout.ShippingInput{Mode: "drone"}, nil, nil, now)))
}

func TestValidatePrescription(t *testing.T) {
	now := time.Now()
	lines := []checkout.Line{line(true), {ProductID: "p2", Name: "Vitamin", Quantity: 1}}
	approved := models.PrescriptionRequest{
		Base:      models.Base{ID: "rx1"},
		Status:    models.PrescriptionApproved,
		ExpiresAt: now.Add(time.Hour),
		Products:  []models.PrescriptionProduct{{ProductID: "p1"}},
	}
	expired := approved
	expired.ID = "rx2"
	expired.ExpiresAt = now.Add(-time.Hour)

	err := checkout.ValidatePrescription(lines, nil, nil, now)
	assert.Equal(t, []string{"prescriptions.p1"}, fieldNames(t, err))

	existing := []checkout.PrescriptionChoice{{ProductID: "p1", Mode: checkout.PrescriptionExisting, RequestID: "rx1"}}
	assert.NoError(t, checkout.ValidatePrescription(lines, existing, []models.PrescriptionRequest{approved}, now))

	stale := []checkout.PrescriptionChoice{{ProductID: "p1", Mode: checkout.PrescriptionExisting, RequestID: "rx2"}}
	err = checkout.ValidatePrescription(lines, stale, []models.PrescriptionRequest{approved, expired}, now)
	assert.Equal(t, []string{"prescriptions.p1.requestId"}, fieldNames(t, err))

	upload := []checkout.PrescriptionChoice{{
		ProductID: "p1", Mode: checkout.PrescriptionNew,
		CPRDocument: "prescriptions/cpr.pdf", PrescriptionDocument: "prescriptions/rx.exe",
		Address: goodAddress,
	}}
	err = checkout.ValidatePrescription(lines, upload, nil, now)
	assert.Equal(t, []string{"prescriptions.p1.prescriptionDocument"}, fieldNames(t, err))

	upload[0].PrescriptionDocument = "prescriptions/rx.png"
	assert.NoError(t, checkout.ValidatePrescription(lines, upload, nil, now))

	upload[0].Address = checkout.AddressInput{}
	err = checkout.ValidatePrescription(lines, upload, nil, now)
	assert.Len(t, fieldNames(t, err), 4)
}

func TestValidatePrescription_SingleReference(t *testing.T) {
	now := time.Now()
	a := checkout.Line{ProductID: "a", Name: "A", Prescribed: true, Quantity: 1}
	b := checkout.Line{ProductID: "b", Name: "B", Prescribed: true, Quantity: 1}
	rx := func(id string) models.PrescriptionRequest {
		return models.PrescriptionRequest{Base: models.Base{ID: id}, Status: models.PrescriptionApproved, ExpiresAt: now.Add(time.Hour)}
	}
	choices := []checkout.PrescriptionChoice{
		{ProductID: "a", Mode: checkout.PrescriptionExisting, RequestID: "r1"},
		{ProductID: "b", Mode: checkout.PrescriptionExisting, RequestID: "r2"},
	}
	err := checkout.ValidatePrescription([]checkout.Line{a, b}, choices, []models.PrescriptionRequest{rx("r1"), rx("r2")}, now)
	assert.Equal(t, []string{"prescriptions.b"}, fieldNames(t, err))

	choices[1].RequestID = "r1"
	assert.NoError(t, checkout.ValidatePrescription([]checkout.Line{a, b}, choices, []models.PrescriptionRequest{rx("r1")}, now))
}

func TestMachine(t *testing.T) {
	shippingErr := errors.New("pick a branch")
	failShipping := true
	m := checkout.NewMachine([]checkout.Line{line(false)}, func(step checkout.Step) error {
		if step == checkout.StepShipping && failShipping {
			return shippingErr
		}
		return nil
	})

	assert.Equal(t, checkout.StepSummary, m.Current())
	require.NoError(t, m.Continue())
	assert.Equal(t, checkout.StepShipping, m.Current())

	assert.ErrorIs(t, m.Continue(), shippingErr)
	assert.Equal(t, checkout.StepShipping, m.Current())
	assert.True(t, m.ShowErrors(checkout.StepShipping))

	m.Previous()
	assert.Equal(t, checkout.StepSummary, m.Current())
	assert.False(t, m.ShowErrors(checkout.StepShipping))

	failShipping = false
	step, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, checkout.StepSubmitted, step)

	m.Previous()
	assert.Equal(t, checkout.StepSubmitted, m.Current())
}

func TestParseDeliveryDate_UsesValidationLocation(t *testing.T) {
	bahrain := time.FixedZone("AST", 3*60*60)
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, bahrain)
	in := checkout.ShippingInput{
		Mode:         checkout.ModeDelivery,
		Address:      goodAddress,
		DeliveryDate: "2026-03-10",
		TimeSlot:     checkout.TimeSlots[0],
	}
	require.NoError(t, checkout.ValidateShipping(in, nil, nil, now))

	d := checkout.ParseDeliveryDate(in, now.Location())
	require.NotNil(t, d)
	assert.Equal(t, bahrain, d.Location())
	assert.True(t, d.Equal(time.Date(2026, 3, 9, 21, 0, 0, 0, time.UTC)))

	in.Urgent = true
	assert.Nil(t, checkout.ParseDeliveryDate(in, now.Location()))
}
