package models

import "time"

// Prescription request statuses.
const (
	PrescriptionPending  = "pending"
	PrescriptionApproved = "approved"
	PrescriptionRejected = "rejected"
	PrescriptionExpired  = "expired"
)

// PrescriptionRequest is a customer-submitted prescription awaiting or holding a pharmacist decision.
// An approved request is consumed by at most one order.
type PrescriptionRequest struct {
	Base
	CustomerID           string                `json:"customerId" gorm:"type:varchar(36);not null;index"`
	OrderID              *string               `json:"orderId,omitempty" gorm:"type:varchar(36)"`
	Status               string                `json:"status" gorm:"type:varchar(10);not null;index"`
	CPRDocument          string                `json:"cprDocument" gorm:"type:varchar(255)"`
	PrescriptionDocument string                `json:"prescriptionDocument" gorm:"type:varchar(255)"`
	Notes                string                `json:"notes" gorm:"type:varchar(500)"`
	ExpiresAt            time.Time             `json:"expiresAt" gorm:"index"`
	ReviewerID           *string               `json:"reviewerId,omitempty" gorm:"type:varchar(36)"`
	ReviewedAt           *time.Time            `json:"reviewedAt,omitempty"`
	RejectionReason      string                `json:"rejectionReason,omitempty" gorm:"type:varchar(500)"`
	ConsumedByOrderID    *string               `json:"consumedByOrderId,omitempty" gorm:"type:varchar(36)"`
	Products             []PrescriptionProduct `json:"products" gorm:"foreignKey:PrescriptionRequestID"`
}

// CoversProduct reports whether the request lists productID.
func (p *PrescriptionRequest) CoversProduct(productID string) bool {
	for _, pp := range p.Products {
		if pp.ProductID == productID {
			return true
		}
	}
	return false
}

// Eligible reports whether the request may be referenced by a new order at now.
func (p *PrescriptionRequest) Eligible(now time.Time) bool {
	return p.Status == PrescriptionApproved && p.ConsumedByOrderID == nil && now.Before(p.ExpiresAt)
}

// PrescriptionProduct links a request to a product it authorizes.
type PrescriptionProduct struct {
	Base
	PrescriptionRequestID string `json:"prescriptionRequestId" gorm:"type:varchar(36);not null;index"`
	ProductID             string `json:"productId" gorm:"type:varchar(36);not null"`
}

// PrescriptionPlan is a recurring medication schedule a customer receives reminders for.
type PrescriptionPlan struct {
	Base
	CustomerID string     `json:"customerId" gorm:"type:varchar(36);not null;index"`
	Name       string     `json:"name" gorm:"type:varchar(100);not null"`
	Active     bool       `json:"active"`
	Items      []PlanItem `json:"items" gorm:"foreignKey:PlanID"`
}

// PlanItem is one product in a plan with its refill cadence.
type PlanItem struct {
	Base
	PlanID       string     `json:"planId" gorm:"type:varchar(36);not null;index"`
	ProductID    string     `json:"productId" gorm:"type:varchar(36);not null"`
	Dosage       string     `json:"dosage" gorm:"type:varchar(100)"`
	IntervalDays int        `json:"intervalDays" gorm:"not null"`
	NextDueAt    time.Time  `json:"nextDueAt" gorm:"index"`
	RemindedFor  *time.Time `json:"remindedFor,omitempty"`
}
