package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fulfillment modes.
const (
	FulfillmentPickup   = "pickup"
	FulfillmentDelivery = "delivery"
)

// Payment methods.
const (
	PaymentCash = "cash"
	PaymentCard = "card"
)

// Order statuses.
const (
	OrderPlaced         = "placed"
	OrderProcessing     = "processing"
	OrderReadyForPickup = "ready_for_pickup"
	OrderOutForDelivery = "out_for_delivery"
	OrderCompleted      = "completed"
	OrderCancelled      = "cancelled"
)

var orderTransitions = map[string][]string{
	OrderPlaced:         {OrderProcessing, OrderCancelled},
	OrderProcessing:     {OrderReadyForPickup, OrderOutForDelivery, OrderCancelled},
	OrderReadyForPickup: {OrderCompleted, OrderCancelled},
	OrderOutForDelivery: {OrderCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ShippingSelection is the fulfillment choice snapshotted into an order.
// Pickup orders carry BranchID only; delivery orders carry the address fields only.
type ShippingSelection struct {
	Mode         string     `json:"mode" gorm:"type:varchar(10);not null"`
	BranchID     *string    `json:"branchId,omitempty" gorm:"type:varchar(36)"`
	City         string     `json:"city,omitempty" gorm:"type:varchar(60)"`
	Block        string     `json:"block,omitempty" gorm:"type:varchar(10)"`
	Road         string     `json:"road,omitempty" gorm:"type:varchar(10)"`
	Building     string     `json:"building,omitempty" gorm:"type:varchar(10)"`
	Urgent       bool       `json:"isUrgent"`
	DeliveryDate *time.Time `json:"deliveryDate,omitempty"`
	TimeSlot     string     `json:"timeSlot,omitempty" gorm:"type:varchar(20)"`
}

// HasAddress reports whether any address field is populated.
func (s ShippingSelection) HasAddress() bool {
	return s.City != "" || s.Block != "" || s.Road != "" || s.Building != ""
}

// Consistent checks that exactly one of branch and address is set, matching Mode.
func (s ShippingSelection) Consistent() bool {
	switch s.Mode {
	case FulfillmentPickup:
		return s.BranchID != nil && *s.BranchID != "" && !s.HasAddress()
	case FulfillmentDelivery:
		return s.BranchID == nil && s.City != "" && s.Block != "" && s.Road != "" && s.Building != ""
	}
	return false
}

// Order represents a customer order. Core fields never change after creation;
// status changes are recorded in History.
type Order struct {
	Base
	CustomerID            string             `json:"customerId" gorm:"type:varchar(36);not null;index"`
	Shipping              ShippingSelection  `json:"shipping" gorm:"embedded;embeddedPrefix:shipping_"`
	FulfillmentBranchID   string             `json:"fulfillmentBranchId" gorm:"type:varchar(36);index"`
	Subtotal              decimal.Decimal    `json:"subtotal" gorm:"type:numeric(12,3);not null"`
	DeliveryFee           decimal.Decimal    `json:"deliveryFee" gorm:"type:numeric(12,3);not null"`
	Total                 decimal.Decimal    `json:"total" gorm:"type:numeric(12,3);not null"`
	Currency              string             `json:"currency" gorm:"type:varchar(3)"`
	PaymentMethod         string             `json:"paymentMethod" gorm:"type:varchar(10);not null"`
	PaymentReference      string             `json:"paymentReference,omitempty" gorm:"type:varchar(255);index"`
	PrescriptionRequestID *string            `json:"prescriptionRequestId,omitempty" gorm:"type:varchar(36)"`
	Status                string             `json:"status" gorm:"type:varchar(20);index;not null"`
	Lines                 []OrderLine        `json:"lines" gorm:"foreignKey:OrderID"`
	History               []OrderStatusEntry `json:"history,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderLine is a product snapshot inside an order. UnitPrice is the price at purchase time.
type OrderLine struct {
	Base
	OrderID     string          `json:"orderId" gorm:"type:varchar(36);not null;index"`
	ProductID   string          `json:"productId" gorm:"type:varchar(36);not null"`
	ProductName string          `json:"productName" gorm:"type:varchar(150)"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unitPrice" gorm:"type:numeric(12,3);not null"`
	LineTotal   decimal.Decimal `json:"lineTotal" gorm:"type:numeric(12,3);not null"`
}

// OrderStatusEntry is an append-only status change record.
type OrderStatusEntry struct {
	Base
	OrderID string `json:"orderId" gorm:"type:varchar(36);not null;index"`
	Status  string `json:"status" gorm:"type:varchar(20);not null"`
	ActorID string `json:"actorId" gorm:"type:varchar(36)"`
	Note    string `json:"note,omitempty" gorm:"type:varchar(255)"`
}

// CheckoutDraft holds a serialized checkout while the customer is at the payment provider.
type CheckoutDraft struct {
	Base
	SessionID  string    `json:"sessionId" gorm:"type:varchar(255);uniqueIndex;not null"`
	CustomerID string    `json:"customerId" gorm:"type:varchar(36);not null;index"`
	Payload    string    `json:"-" gorm:"type:text;not null"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
