// Package checkout holds the rules that turn a cart into an order: which steps a
// checkout walks through, what each step accepts, and what the order costs.
// Nothing here touches storage.
package checkout

import (
	"github.com/shopspring/decimal"
)

// Step is one screen of the checkout flow.
type Step string

const (
	StepSummary      Step = "summary"
	StepPrescription Step = "prescription"
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepSubmitted    Step = "submitted"
)

// Line is a cart line as checkout sees it.
type Line struct {
	ProductID         string          `json:"productId"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	Quantity          int             `json:"quantity"`
	Prescribed        bool            `json:"prescribed"`
	Incompatibilities []Warning       `json:"incompatibilities"`
}

// Warning is one reason a line should not be taken together with something else.
type Warning struct {
	Kind    string `json:"kind"` // product, allergy or illness
	RefID   string `json:"refId"`
	RefName string `json:"refName"`
	Note    string `json:"note,omitempty"`
}

const (
	WarningProduct = "product"
	WarningAllergy = "allergy"
	WarningIllness = "illness"
)

// Steps returns the step sequence for a cart. The prescription step is present
// only when a line requires a prescription.
func Steps(lines []Line) []Step {
	steps := []Step{StepSummary}
	if HasPrescribed(lines) {
		steps = append(steps, StepPrescription)
	}
	return append(steps, StepShipping, StepPayment)
}

// HasPrescribed reports whether any line requires a prescription.
func HasPrescribed(lines []Line) bool {
	for _, l := range lines {
		if l.Prescribed {
			return true
		}
	}
	return false
}

// NeedsIncompatibilityConfirmation reports whether the customer must confirm
// warnings before leaving the cart.
func NeedsIncompatibilityConfirmation(lines []Line) bool {
	for _, l := range lines {
		if len(l.Incompatibilities) > 0 {
			return true
		}
	}
	return false
}

// Fees are the configured delivery charges.
type Fees struct {
	Delivery decimal.Decimal
	Urgent   decimal.Decimal
}

// Totals is the priced checkout.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency,omitempty"`
}

// ComputeTotals prices lines for the chosen fulfillment. Pickup is free; delivery
// costs the delivery fee plus the urgent fee when urgent.
func ComputeTotals(lines []Line, mode string, urgent bool, fees Fees) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	fee := decimal.Zero
	if mode == ModeDelivery {
		fee = fees.Delivery
		if urgent {
			fee = fee.Add(fees.Urgent)
		}
	}
	return Totals{Subtotal: subtotal, DeliveryFee: fee, Total: subtotal.Add(fee)}
}
