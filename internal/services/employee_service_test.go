package services_test

import (
	"context"
	"errors"
	"testing"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmployeeService_Create(t *testing.T) {
	w := newWorld(t)
	svc := services.NewEmployeeService(w.store)
	ctx := context.Background()
	admin := actorOf(w.admin)

	in := services.EmployeeInput{
		Email: " Nurse@Pharmacy.test ", Password: "password1", FirstName: "Noor",
		Role: models.RolePharmacist, BranchID: w.branch.ID,
	}
	user, err := svc.Create(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, "nurse@pharmacy.test", user.Email)
	require.NotNil(t, user.BranchID)
	assert.Equal(t, w.branch.ID, *user.BranchID)

	_, err = svc.Create(ctx, admin, in)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	in.Email, in.Role = "x@pharmacy.test", models.RoleCustomer
	_, err = svc.Create(ctx, admin, in)
	assert.Equal(t, []string{"role"}, fieldNames(t, err))

	in.Role, in.BranchID = models.RoleEmployee, "missing"
	_, err = svc.Create(ctx, admin, in)
	assert.Equal(t, []string{"branchId"}, fieldNames(t, err))

	logs, err := w.store.Logs.List(ctx, repositories.ActivityLogFilter{Action: "employee.create", ActorID: w.admin.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, logs.TotalCount)
}

func TestEmployeeService_ListAndGetOnlyStaff(t *testing.T) {
	w := newWorld(t)
	svc := services.NewEmployeeService(w.store)
	ctx := context.Background()

	page, err := svc.List(ctx, "", "", models.PageQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalCount)

	page, err = svc.List(ctx, models.RolePharmacist, "", models.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, w.pharmacist.ID, page.Items[0].ID)

	_, err = svc.Get(ctx, w.customer.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestEmployeeService_SelfProtection(t *testing.T) {
	w := newWorld(t)
	svc := services.NewEmployeeService(w.store)
	ctx := context.Background()
	admin := actorOf(w.admin)
	inactive := false

	_, err := svc.Update(ctx, admin, w.admin.ID, services.EmployeeUpdate{Active: &inactive})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	_, err = svc.AssignRole(ctx, admin, w.admin.ID, models.RoleEmployee)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.True(t, errors.Is(svc.Delete(ctx, admin, w.admin.ID), apperr.ErrConflict))

	updated, err := svc.Update(ctx, admin, w.pharmacist.ID, services.EmployeeUpdate{Active: &inactive, FirstName: "Huda"})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "Huda", updated.FirstName)
}

func TestEmployeeService_AssignRoleAndDelete(t *testing.T) {
	w := newWorld(t)
	svc := services.NewEmployeeService(w.store)
	ctx := context.Background()
	admin := actorOf(w.admin)

	_, err := svc.AssignRole(ctx, admin, w.customer.ID, "owner")
	assert.Equal(t, []string{"role"}, fieldNames(t, err))

	promoted, err := svc.AssignRole(ctx, admin, w.customer.ID, models.RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, models.RoleEmployee, promoted.Role)

	require.NoError(t, svc.Delete(ctx, admin, w.customer.ID))
	_, err = svc.Get(ctx, w.customer.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
