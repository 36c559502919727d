package models

import "time"

// Roles a user account can hold.
const (
	RoleCustomer   = "customer"
	RolePharmacist = "pharmacist"
	RoleEmployee   = "employee"
	RoleAdmin      = "admin"
)

// StaffRoles are the back-office roles.
var StaffRoles = []string{RolePharmacist, RoleEmployee, RoleAdmin}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleCustomer, RolePharmacist, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// User represents a customer or staff account.
type User struct {
	Base
	Email        string   `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	FirstName    string   `json:"firstName" gorm:"type:varchar(100)"`
	LastName     string   `json:"lastName" gorm:"type:varchar(100)"`
	Phone        string   `json:"phone" gorm:"type:varchar(20)"`
	PasswordHash string   `json:"-" gorm:"type:varchar(255);not null"`
	Role         string   `json:"role" gorm:"type:varchar(20);index;not null"`
	Active       bool     `json:"active"`
	BranchID     *string  `json:"branchId,omitempty" gorm:"type:varchar(36)"`
	AddressID    *string  `json:"addressId,omitempty" gorm:"type:varchar(36)"`
	Address      *Address `json:"address,omitempty" gorm:"foreignKey:AddressID"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsStaff reports whether the user holds a back-office role.
func (u *User) IsStaff() bool {
	for _, r := range StaffRoles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// Address is a profile address. Orders copy its fields instead of referencing it.
type Address struct {
	Base
	CityID   *string `json:"cityId,omitempty" gorm:"type:varchar(36)"`
	City     string  `json:"city" gorm:"type:varchar(60)"`
	Block    string  `json:"block" gorm:"type:varchar(10)"`
	Road     string  `json:"road" gorm:"type:varchar(10)"`
	Building string  `json:"building" gorm:"type:varchar(10)"`
}

// PasswordResetToken stores the hash of a single-use reset token.
type PasswordResetToken struct {
	Base
	UserID    string     `json:"userId" gorm:"type:varchar(36);index;not null"`
	TokenHash string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// Allergy is a recorded allergy a product may conflict with.
type Allergy struct {
	Base
	Name string `json:"name" gorm:"type:varchar(100);not null"`
}

// Illness is a recorded illness a product may conflict with.
type Illness struct {
	Base
	Name string `json:"name" gorm:"type:varchar(100);not null"`
}

// UserAllergy links a user's health profile to an allergy.
type UserAllergy struct {
	UserID    string `json:"userId" gorm:"primaryKey;type:varchar(36)"`
	AllergyID string `json:"allergyId" gorm:"primaryKey;type:varchar(36)"`
}

// UserIllness links a user's health profile to an illness.
type UserIllness struct {
	UserID    string `json:"userId" gorm:"primaryKey;type:varchar(36)"`
	IllnessID string `json:"illnessId" gorm:"primaryKey;type:varchar(36)"`
}

func (a Allergy) GetName() string { return a.Name }
func (i Illness) GetName() string { return i.Name }
