package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"

	"golang.org/x/crypto/bcrypt"
)

// EmployeeInput creates a staff account.
type EmployeeInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Phone     string `json:"phone" validate:"omitempty,bh_phone"`
	Role      string `json:"role" validate:"required,oneof=pharmacist employee admin"`
	BranchID  string `json:"branchId"`
}

// EmployeeUpdate changes a staff account. Empty fields are left alone.
type EmployeeUpdate struct {
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Phone     string `json:"phone" validate:"omitempty,bh_phone"`
	BranchID  string `json:"branchId"`
	Active    *bool  `json:"active"`
}

// EmployeeService lets admins manage back-office accounts. Every change is
// written to the activity log in the same transaction.
type EmployeeService struct {
	store *repositories.Store
}

func NewEmployeeService(store *repositories.Store) *EmployeeService {
	return &EmployeeService{store: store}
}

// List returns staff accounts, optionally narrowed to one role and a search term.
func (s *EmployeeService) List(ctx context.Context, role, search string, q models.PageQuery) (models.Page[models.User], error) {
	roles := models.StaffRoles
	if role != "" {
		roles = []string{role}
	}
	return s.store.Users.List(ctx, repositories.UserFilter{Roles: roles, Search: search, PageQuery: q})
}

func (s *EmployeeService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsStaff() {
		return nil, apperr.NotFoundf("employee with ID %s not found", id)
	}
	return user, nil
}

func (s *EmployeeService) Create(ctx context.Context, actor Actor, in EmployeeInput) (*models.User, error) {
	if !models.IsValidRole(in.Role) || in.Role == models.RoleCustomer {
		return nil, apperr.Invalid("role", "Role must be pharmacist, employee or admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        in.Phone,
		PasswordHash: string(hash),
		Role:         in.Role,
		Active:       true,
	}

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		existing, err := tx.Users.GetByEmail(ctx, user.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("email '%s' already registered", user.Email)
		}
		if in.BranchID != "" {
			if err := checkBranch(ctx, tx, in.BranchID); err != nil {
				return err
			}
			user.BranchID = &in.BranchID
		}
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "employee.create", "user", user.ID, user.Email+" as "+user.Role)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *EmployeeService) Update(ctx context.Context, actor Actor, id string, in EmployeeUpdate) (*models.User, error) {
	var user *models.User
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		user, err = s.staff(ctx, tx, id)
		if err != nil {
			return err
		}
		if in.FirstName != "" {
			user.FirstName = strings.TrimSpace(in.FirstName)
		}
		if in.LastName != "" {
			user.LastName = strings.TrimSpace(in.LastName)
		}
		if in.Phone != "" {
			user.Phone = in.Phone
		}
		if in.BranchID != "" {
			if err := checkBranch(ctx, tx, in.BranchID); err != nil {
				return err
			}
			user.BranchID = &in.BranchID
		}
		if in.Active != nil {
			if !*in.Active && user.ID == actor.ID {
				return apperr.Conflictf("you cannot deactivate your own account")
			}
			user.Active = *in.Active
		}
		user.Address = nil
		if err := tx.Users.Update(ctx, user); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "employee.update", "user", user.ID, user.Email)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AssignRole changes the role of any account, including promoting a customer.
func (s *EmployeeService) AssignRole(ctx context.Context, actor Actor, id, role string) (*models.User, error) {
	if !models.IsValidRole(role) {
		return nil, apperr.Invalid("role", "Unknown role")
	}
	if id == actor.ID && role != models.RoleAdmin {
		return nil, apperr.Conflictf("you cannot remove your own admin role")
	}
	var user *models.User
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		user, err = tx.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		previous := user.Role
		user.Role = role
		user.Address = nil
		if err := tx.Users.Update(ctx, user); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "employee.role", "user", user.ID, previous+" -> "+role)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *EmployeeService) Delete(ctx context.Context, actor Actor, id string) error {
	if id == actor.ID {
		return apperr.Conflictf("you cannot delete your own account")
	}
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		user, err := s.staff(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.Users.Delete(ctx, id); err != nil {
			return err
		}
		return logActivity(ctx, tx, actor, "employee.delete", "user", id, user.Email)
	})
}

func (s *EmployeeService) staff(ctx context.Context, tx *repositories.Store, id string) (*models.User, error) {
	user, err := tx.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsStaff() {
		return nil, apperr.NotFoundf("employee with ID %s not found", id)
	}
	return user, nil
}

func checkBranch(ctx context.Context, tx *repositories.Store, branchID string) error {
	_, err := tx.Branches.GetByID(ctx, branchID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Invalid("branchId", "Unknown branch")
	}
	return err
}
