package checkout

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/models"
)

const (
	ModePickup   = models.FulfillmentPickup
	ModeDelivery = models.FulfillmentDelivery
)

// Prescription selection modes.
const (
	PrescriptionExisting = "existing"
	PrescriptionNew      = "new"
)

// DateLayout is the wire format of delivery dates.
const DateLayout = "2006-01-02"

// TimeSlots are the delivery windows a customer can book.
var TimeSlots = []string{"09:00-12:00", "12:00-15:00", "15:00-18:00", "18:00-21:00"}

// DocumentExtensions are the accepted upload types for prescription documents.
var DocumentExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}

var (
	blockPattern    = regexp.MustCompile(`^\d{3,4}$`)
	roadPattern     = regexp.MustCompile(`^\d{1,4}$`)
	buildingPattern = regexp.MustCompile(`^[0-9]{1,4}[A-Za-z]?$`)
)

// AddressInput is an address typed into a checkout form.
type AddressInput struct {
	City     string `json:"city"`
	Block    string `json:"block"`
	Road     string `json:"road"`
	Building string `json:"building"`
}

// IsZero reports whether no field was filled in.
func (a AddressInput) IsZero() bool {
	return a.City == "" && a.Block == "" && a.Road == "" && a.Building == ""
}

// ValidateAddress checks the four address fields, reporting errors under prefix.
func ValidateAddress(a AddressInput, prefix string, ve *apperr.ValidationError) {
	if strings.TrimSpace(a.City) == "" {
		ve.Add(prefix+".city", "City is required")
	}
	if !blockPattern.MatchString(a.Block) {
		ve.Add(prefix+".block", "Block must be 3 or 4 digits")
	}
	if !roadPattern.MatchString(a.Road) {
		ve.Add(prefix+".road", "Road must be 1 to 4 digits")
	}
	if !buildingPattern.MatchString(a.Building) {
		ve.Add(prefix+".building", "Building must be up to 4 digits optionally followed by a letter")
	}
}

// PrescriptionChoice is how the customer covers one prescribed line.
type PrescriptionChoice struct {
	ProductID            string       `json:"productId"`
	Mode                 string       `json:"mode"`
	RequestID            string       `json:"requestId,omitempty"`
	CPRDocument          string       `json:"cprDocument,omitempty"`
	PrescriptionDocument string       `json:"prescriptionDocument,omitempty"`
	Address              AddressInput `json:"address"`
}

// ValidPrescriptionDocument reports whether path names an accepted document type.
func ValidPrescriptionDocument(path string) bool {
	if strings.TrimSpace(path) == "" || strings.Contains(path, "..") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range DocumentExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ValidatePrescription requires a valid choice for every prescribed line. An
// existing choice must reference one of the eligible requests and that request
// must cover the product; a new choice needs both documents and a complete address.
// All choices must resolve to the same prescription since an order references one.
func ValidatePrescription(lines []Line, choices []PrescriptionChoice, eligible []models.PrescriptionRequest, now time.Time) error {
	var ve apperr.ValidationError

	byProduct := make(map[string]PrescriptionChoice, len(choices))
	for _, c := range choices {
		byProduct[c.ProductID] = c
	}
	eligibleByID := make(map[string]models.PrescriptionRequest, len(eligible))
	for _, req := range eligible {
		if req.Eligible(now) {
			eligibleByID[req.ID] = req
		}
	}

	reference := ""
	for _, line := range lines {
		if !line.Prescribed {
			continue
		}
		field := "prescriptions." + line.ProductID
		choice, ok := byProduct[line.ProductID]
		if !ok || choice.Mode == "" {
			ve.Add(field, "Select an existing prescription or upload a new one for "+line.Name)
			continue
		}

		var ref string
		switch choice.Mode {
		case PrescriptionExisting:
			req, found := eligibleByID[choice.RequestID]
			if !found {
				ve.Add(field+".requestId", "Prescription is not approved or has expired")
				continue
			}
			if len(req.Products) > 0 && !req.CoversProduct(line.ProductID) {
				ve.Add(field+".requestId", "Prescription does not cover "+line.Name)
				continue
			}
			ref = PrescriptionExisting + ":" + req.ID
		case PrescriptionNew:
			before := len(ve.Fields)
			if !ValidPrescriptionDocument(choice.CPRDocument) {
				ve.Add(field+".cprDocument", "CPR document must be a PDF or image")
			}
			if !ValidPrescriptionDocument(choice.PrescriptionDocument) {
				ve.Add(field+".prescriptionDocument", "Prescription document must be a PDF or image")
			}
			ValidateAddress(choice.Address, field+".address", &ve)
			if len(ve.Fields) > before {
				continue
			}
			ref = PrescriptionNew + ":" + choice.CPRDocument + "|" + choice.PrescriptionDocument
		default:
			ve.Add(field+".mode", "Mode must be existing or new")
			continue
		}

		if reference == "" {
			reference = ref
		} else if reference != ref {
			ve.Add(field, "All prescribed items must use the same prescription")
		}
	}
	return ve.OrNil()
}

// ShippingInput is the shipping step form.
type ShippingInput struct {
	Mode            string       `json:"mode"`
	BranchID        string       `json:"branchId,omitempty"`
	UseSavedAddress bool         `json:"useSavedAddress"`
	Address         AddressInput `json:"address"`
	Urgent          bool         `json:"isUrgent"`
	DeliveryDate    string       `json:"deliveryDate,omitempty"`
	TimeSlot        string       `json:"timeSlot,omitempty"`
}

// ValidateShipping checks the shipping step. unavailable lists the cart products
// the chosen pickup branch cannot supply; savedAddress is the profile address, if any.
func ValidateShipping(in ShippingInput, unavailable []string, savedAddress *AddressInput, now time.Time) error {
	var ve apperr.ValidationError

	switch in.Mode {
	case ModePickup:
		if in.BranchID == "" {
			ve.Add("shipping.branchId", "Select a branch for pickup")
		} else if len(unavailable) > 0 {
			ve.Add("shipping.branchId", "Some items are not available at this branch: "+strings.Join(unavailable, ", "))
		}
	case ModeDelivery:
		if in.UseSavedAddress {
			if savedAddress == nil || savedAddress.IsZero() {
				ve.Add("shipping.useSavedAddress", "No saved address on your profile")
			} else {
				ValidateAddress(*savedAddress, "shipping.savedAddress", &ve)
			}
		} else {
			ValidateAddress(in.Address, "shipping.address", &ve)
		}
		if !in.Urgent {
			validateSchedule(in, now, &ve)
		}
	default:
		ve.Add("shipping.mode", "Mode must be pickup or delivery")
	}
	return ve.OrNil()
}

func validateSchedule(in ShippingInput, now time.Time, ve *apperr.ValidationError) {
	if in.DeliveryDate == "" {
		ve.Add("shipping.deliveryDate", "Select a delivery date or mark the order urgent")
	} else if date, err := time.ParseInLocation(DateLayout, in.DeliveryDate, now.Location()); err != nil {
		ve.Add("shipping.deliveryDate", "Delivery date must use YYYY-MM-DD")
	} else {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if date.Before(today) {
			ve.Add("shipping.deliveryDate", "Delivery date cannot be in the past")
		}
	}
	if in.TimeSlot == "" {
		ve.Add("shipping.timeSlot", "Select a time slot or mark the order urgent")
	} else if !validSlot(in.TimeSlot) {
		ve.Add("shipping.timeSlot", "Unknown time slot")
	}
}

func validSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// ParseDeliveryDate returns the parsed date of a validated input, or nil. loc
// must be the location ValidateShipping checked the date in.
func ParseDeliveryDate(in ShippingInput, loc *time.Location) *time.Time {
	if in.Urgent || in.DeliveryDate == "" {
		return nil
	}
	d, err := time.ParseInLocation(DateLayout, in.DeliveryDate, loc)
	if err != nil {
		return nil
	}
	return &d
}
