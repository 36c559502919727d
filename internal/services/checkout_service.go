package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/checkout"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/pkg/payment"
	"pharmacy/pkg/rabbitmq"

	"github.com/google/uuid"
)

// CheckoutRequest is everything the customer chose across the checkout steps.
type CheckoutRequest struct {
	ConfirmIncompatibilities bool                          `json:"confirmIncompatibilities"`
	Prescriptions            []checkout.PrescriptionChoice `json:"prescriptions"`
	Shipping                 checkout.ShippingInput        `json:"shipping"`
	PaymentMethod            string                        `json:"paymentMethod"`
}

// CheckoutPreview reports how far a request gets through the steps.
type CheckoutPreview struct {
	Steps  []checkout.Step  `json:"steps"`
	Step   checkout.Step    `json:"step"`
	Lines  []checkout.Line  `json:"lines"`
	Totals *checkout.Totals `json:"totals,omitempty"`
}

// CheckoutResult is the outcome of Create. Cash orders are placed at once; card
// checkouts return the hosted payment page instead.
type CheckoutResult struct {
	Order      *models.Order `json:"order,omitempty"`
	SessionID  string        `json:"sessionId,omitempty"`
	PaymentURL string        `json:"paymentUrl,omitempty"`
}

// OrderEvent is published when an order is placed or changes status.
type OrderEvent struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Status     string `json:"status"`
	Total      string `json:"total"`
	Currency   string `json:"currency"`
}

// CheckoutConfig holds pricing and payment settings.
type CheckoutConfig struct {
	Fees                 checkout.Fees
	Currency             string
	PrescriptionValidity time.Duration
	DraftTTL             time.Duration
	SuccessURL           string
	CancelURL            string
}

// CheckoutService validates checkouts and turns carts into orders.
type CheckoutService struct {
	store         *repositories.Store
	files         FileStore
	payments      payment.Gateway
	notifications *NotificationService
	events        EventPublisher
	cfg           CheckoutConfig
	now           func() time.Time
}

func NewCheckoutService(store *repositories.Store, files FileStore, payments payment.Gateway, notifications *NotificationService, events EventPublisher, cfg CheckoutConfig) *CheckoutService {
	if cfg.PrescriptionValidity <= 0 {
		cfg.PrescriptionValidity = 90 * 24 * time.Hour
	}
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = 24 * time.Hour
	}
	return &CheckoutService{
		store:         store,
		files:         files,
		payments:      payments,
		notifications: notifications,
		events:        events,
		cfg:           cfg,
		now:           utcNow,
	}
}

// resolved is a request that passed every step, with what it resolved to.
type resolved struct {
	user     *models.User
	lines    []checkout.Line
	items    []models.CartItem
	shipping models.ShippingSelection
	branchID string
	totals   checkout.Totals
	choice   *checkout.PrescriptionChoice
}

// Steps returns the step sequence for the user's current cart.
func (s *CheckoutService) Steps(ctx context.Context, userID string) ([]checkout.Step, error) {
	items, err := s.store.Carts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines, _, err := cartLines(ctx, s.store, userID, items)
	if err != nil {
		return nil, err
	}
	return checkout.Steps(lines), nil
}

// Validate walks the steps for req without writing anything. It returns the
// step the request stopped at and, when shipping passed, the totals.
func (s *CheckoutService) Validate(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutPreview, error) {
	res, machine, err := s.run(ctx, s.store, userID, req)
	preview := &CheckoutPreview{}
	if machine != nil {
		preview.Steps = machine.Steps()
		preview.Step = machine.Current()
	}
	if res != nil {
		preview.Lines = res.lines
		if res.shipping.Mode != "" {
			t := res.totals
			preview.Totals = &t
		}
	}
	return preview, err
}

// Totals prices the current cart for a fulfillment choice.
func (s *CheckoutService) Totals(ctx context.Context, userID, mode string, urgent bool) (checkout.Totals, error) {
	items, err := s.store.Carts.List(ctx, userID)
	if err != nil {
		return checkout.Totals{}, err
	}
	lines, _, err := cartLines(ctx, s.store, userID, items)
	if err != nil {
		return checkout.Totals{}, err
	}
	if mode != checkout.ModePickup && mode != checkout.ModeDelivery {
		return checkout.Totals{}, apperr.Invalid("mode", "Mode must be pickup or delivery")
	}
	t := checkout.ComputeTotals(lines, mode, urgent, s.cfg.Fees)
	t.Currency = s.cfg.Currency
	return t, nil
}

// Create submits a checkout. Cash orders are placed in one transaction; card
// checkouts open a hosted payment session and park the request as a draft until
// Confirm is called with the session ID.
func (s *CheckoutService) Create(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error) {
	switch req.PaymentMethod {
	case models.PaymentCash:
		order, err := s.placeOrder(ctx, userID, req, "")
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Order: order}, nil
	case models.PaymentCard:
		return s.startCardPayment(ctx, userID, req)
	}
	return nil, apperr.Invalid("paymentMethod", "Payment method must be cash or card")
}

func (s *CheckoutService) startCardPayment(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error) {
	res, _, err := s.run(ctx, s.store, userID, req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkout draft: %w", err)
	}

	items := make([]payment.LineItem, 0, len(res.lines)+1)
	for _, l := range res.lines {
		items = append(items, payment.LineItem{Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	if res.totals.DeliveryFee.IsPositive() {
		items = append(items, payment.LineItem{Name: "Delivery", Quantity: 1, UnitPrice: res.totals.DeliveryFee})
	}
	session, err := s.payments.CreateSession(ctx, payment.SessionRequest{
		Reference:  uuid.NewString(),
		Currency:   s.cfg.Currency,
		Amount:     res.totals.Total,
		LineItems:  items,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		Metadata:   map[string]string{"customerId": userID},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create payment session", "user_id", userID, "error", err)
		return nil, apperr.Upstreamf("payment provider failed: %v", err)
	}

	draft := &models.CheckoutDraft{
		SessionID:  session.ID,
		CustomerID: userID,
		Payload:    string(payload),
		ExpiresAt:  s.now().Add(s.cfg.DraftTTL),
	}
	if err := s.store.Drafts.Create(ctx, draft); err != nil {
		return nil, err
	}
	return &CheckoutResult{SessionID: session.ID, PaymentURL: session.URL}, nil
}

// Confirm completes a card checkout once the provider reports the session paid.
// Calling it again for the same session returns the order already placed.
func (s *CheckoutService) Confirm(ctx context.Context, userID, sessionID string) (*models.Order, error) {
	if sessionID == "" {
		return nil, apperr.Invalid("sessionId", "Session ID is required")
	}
	if order, err := s.store.Orders.FindByPaymentReference(ctx, sessionID); err != nil || order != nil {
		if order != nil && order.CustomerID != userID {
			return nil, apperr.NotFoundf("checkout session %s not found", sessionID)
		}
		return order, err
	}

	draft, err := s.store.Drafts.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft.CustomerID != userID {
		return nil, apperr.NotFoundf("checkout session %s not found", sessionID)
	}

	session, err := s.payments.GetSession(ctx, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to verify payment session", "session_id", sessionID, "error", err)
		return nil, apperr.Upstreamf("payment provider failed: %v", err)
	}
	if !session.Paid() {
		return nil, apperr.Conflictf("payment for this checkout has not been completed")
	}

	var req CheckoutRequest
	if err := json.Unmarshal([]byte(draft.Payload), &req); err != nil {
		return nil, fmt.Errorf("failed to decode checkout draft: %w", err)
	}
	req.PaymentMethod = models.PaymentCard

	order, err := s.placeOrder(ctx, userID, req, sessionID, func(o *models.Order) error {
		if !session.Amount.IsZero() && !session.Amount.Equal(o.Total) {
			slog.ErrorContext(ctx, "paid amount does not match order total",
				"session_id", sessionID, "paid", session.Amount.String(), "total", o.Total.String())
			return apperr.Conflictf("the cart changed after payment; contact support with reference %s", sessionID)
		}
		return nil
	})
	if errors.Is(err, errDraftConsumed) {
		// a concurrent confirmation won
		if order, ferr := s.store.Orders.FindByPaymentReference(ctx, sessionID); ferr == nil && order != nil {
			return order, nil
		}
		return nil, apperr.Conflictf("checkout session %s was already processed", sessionID)
	}
	return order, err
}

var errDraftConsumed = errors.New("checkout draft already consumed")

const draftPurgeBatch = 100

// PurgeExpiredDrafts removes expired card drafts whose session was never paid.
// A paid draft is kept so the customer can still confirm it, and a draft whose
// session cannot be checked is retried on the next run.
func (s *CheckoutService) PurgeExpiredDrafts(ctx context.Context) (int, error) {
	drafts, err := s.store.Drafts.ListExpired(ctx, s.now(), draftPurgeBatch)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, d := range drafts {
		session, err := s.payments.GetSession(ctx, d.SessionID)
		if err != nil {
			if ctx.Err() != nil {
				return purged, ctx.Err()
			}
			slog.WarnContext(ctx, "failed to check expired checkout session", "session_id", d.SessionID, "error", err)
			continue
		}
		if session.Paid() {
			slog.WarnContext(ctx, "expired checkout draft was paid, keeping it for confirmation",
				"session_id", d.SessionID, "customer_id", d.CustomerID)
			continue
		}
		ok, err := s.store.Drafts.Consume(ctx, d.SessionID)
		if err != nil {
			return purged, err
		}
		if ok {
			purged++
		}
	}
	return purged, nil
}

// placeOrder creates the order, its lines and first status entry, settles the
// prescription, takes the stock, clears the cart and queues the confirmation
// email in one transaction. sessionID is the paid card session, if any; its
// draft is consumed in the same transaction.
func (s *CheckoutService) placeOrder(ctx context.Context, userID string, req CheckoutRequest, sessionID string, checks ...func(*models.Order) error) (*models.Order, error) {
	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		res, _, err := s.run(ctx, tx, userID, req)
		if err != nil {
			return err
		}
		now := s.now()

		order = &models.Order{
			Base:                models.Base{ID: uuid.NewString()},
			CustomerID:          userID,
			Shipping:            res.shipping,
			FulfillmentBranchID: res.branchID,
			Subtotal:            res.totals.Subtotal,
			DeliveryFee:         res.totals.DeliveryFee,
			Total:               res.totals.Total,
			Currency:            s.cfg.Currency,
			PaymentMethod:       req.PaymentMethod,
			PaymentReference:    sessionID,
			Status:              models.OrderPlaced,
		}
		for _, l := range res.lines {
			order.Lines = append(order.Lines, models.OrderLine{
				ProductID:   l.ProductID,
				ProductName: l.Name,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
				LineTotal:   l.UnitPrice.Mul(decimalInt(l.Quantity)),
			})
		}
		order.History = []models.OrderStatusEntry{{Status: models.OrderPlaced, ActorID: userID}}
		for _, check := range checks {
			if err := check(order); err != nil {
				return err
			}
		}

		var newRequest *models.PrescriptionRequest
		if res.choice != nil {
			switch res.choice.Mode {
			case checkout.PrescriptionExisting:
				id := res.choice.RequestID
				order.PrescriptionRequestID = &id
			case checkout.PrescriptionNew:
				newRequest = &models.PrescriptionRequest{
					Base:                 models.Base{ID: uuid.NewString()},
					CustomerID:           userID,
					OrderID:              &order.ID,
					ConsumedByOrderID:    &order.ID,
					Status:               models.PrescriptionPending,
					CPRDocument:          res.choice.CPRDocument,
					PrescriptionDocument: res.choice.PrescriptionDocument,
					Notes:                addressNote(res.choice.Address),
					ExpiresAt:            now.Add(s.cfg.PrescriptionValidity),
				}
				for _, l := range res.lines {
					if l.Prescribed {
						newRequest.Products = append(newRequest.Products, models.PrescriptionProduct{ProductID: l.ProductID})
					}
				}
				order.PrescriptionRequestID = &newRequest.ID
			}
		}

		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}
		if newRequest != nil {
			if err := tx.Prescriptions.Create(ctx, newRequest); err != nil {
				return err
			}
		} else if order.PrescriptionRequestID != nil {
			ok, err := tx.Prescriptions.Consume(ctx, *order.PrescriptionRequestID, order.ID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Conflictf("prescription %s is no longer available", *order.PrescriptionRequestID)
			}
		}

		for _, l := range order.Lines {
			if err := tx.Inventory.Decrement(ctx, res.branchID, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := tx.Carts.Clear(ctx, userID); err != nil {
			return err
		}
		if sessionID != "" {
			ok, err := tx.Drafts.Consume(ctx, sessionID)
			if err != nil {
				return err
			}
			if !ok {
				return errDraftConsumed
			}
		}
		return s.notifications.Enqueue(ctx, tx, orderPlacedEmail(res.user, order))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "order placed", "order_id", order.ID, "customer_id", userID, "total", order.Total.String())
	publish(ctx, s.events, rabbitmq.KeyOrderCreated, orderEvent(order))
	return order, nil
}

// run loads the cart through store and walks the checkout machine over req.
func (s *CheckoutService) run(ctx context.Context, store *repositories.Store, userID string, req CheckoutRequest) (*resolved, *checkout.Machine, error) {
	user, err := store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	items, err := store.Carts.List(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	lines, products, err := cartLines(ctx, store, userID, items)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	res := &resolved{user: user, lines: lines, items: items}

	machine := checkout.NewMachine(lines, func(step checkout.Step) error {
		switch step {
		case checkout.StepSummary:
			if len(lines) == 0 {
				return apperr.Invalid("cart", checkout.ErrNoLines.Error())
			}
			if checkout.NeedsIncompatibilityConfirmation(lines) && !req.ConfirmIncompatibilities {
				return apperr.Invalid("confirmIncompatibilities", "Confirm the incompatibility warnings to continue")
			}
			return nil
		case checkout.StepPrescription:
			return s.checkPrescription(ctx, store, res, req.Prescriptions, now)
		case checkout.StepShipping:
			return s.checkShipping(ctx, store, res, products, req.Shipping, now)
		case checkout.StepPayment:
			if req.PaymentMethod != models.PaymentCash && req.PaymentMethod != models.PaymentCard {
				return apperr.Invalid("paymentMethod", "Payment method must be cash or card")
			}
			return nil
		}
		return nil
	})
	if _, err := machine.Run(); err != nil {
		return res, machine, err
	}
	return res, machine, nil
}

func (s *CheckoutService) checkPrescription(ctx context.Context, store *repositories.Store, res *resolved, choices []checkout.PrescriptionChoice, now time.Time) error {
	eligible, err := store.Prescriptions.ListEligible(ctx, res.user.ID, now)
	if err != nil {
		return err
	}
	if err := checkout.ValidatePrescription(res.lines, choices, eligible, now); err != nil {
		return err
	}
	for _, line := range res.lines {
		if !line.Prescribed {
			continue
		}
		for i := range choices {
			if choices[i].ProductID == line.ProductID {
				res.choice = &choices[i]
				break
			}
		}
		break
	}
	if res.choice != nil && res.choice.Mode == checkout.PrescriptionNew && s.files != nil {
		ve := newValidation()
		field := "prescriptions." + res.choice.ProductID
		if !ownsDocument(res.user.ID, res.choice.CPRDocument) || !s.files.Exists(res.choice.CPRDocument) {
			ve.Add(field+".cprDocument", "Upload the CPR document first")
		}
		if !ownsDocument(res.user.ID, res.choice.PrescriptionDocument) || !s.files.Exists(res.choice.PrescriptionDocument) {
			ve.Add(field+".prescriptionDocument", "Upload the prescription document first")
		}
		return ve.OrNil()
	}
	return nil
}

func (s *CheckoutService) checkShipping(ctx context.Context, store *repositories.Store, res *resolved, products map[string]*models.Product, in checkout.ShippingInput, now time.Time) error {
	var unavailable []string
	var branchID string
	ve := newValidation()

	saved := SavedAddress(res.user)
	switch in.Mode {
	case checkout.ModePickup:
		if in.BranchID != "" {
			branch, err := store.Branches.GetByID(ctx, in.BranchID)
			switch {
			case errors.Is(err, apperr.ErrNotFound) || (err == nil && !branch.Active):
				ve.Add("shipping.branchId", "Unknown branch")
			case err != nil:
				return err
			default:
				missing, err := unavailableAt(ctx, store, branch.ID, res.items, products)
				if err != nil {
					return err
				}
				for _, m := range missing {
					unavailable = append(unavailable, m.Name)
				}
				branchID = branch.ID
			}
		}
	case checkout.ModeDelivery:
		address := in.Address
		field := "shipping.address.city"
		if in.UseSavedAddress && saved != nil {
			address = *saved
			field = "shipping.useSavedAddress"
		}
		if address.City != "" {
			city, err := store.Cities.FindByName(ctx, address.City)
			if err != nil {
				return err
			}
			if city == nil || city.DefaultBranchID == nil {
				ve.Add(field, "Delivery is not available to "+address.City)
			} else {
				missing, err := unavailableAt(ctx, store, *city.DefaultBranchID, res.items, products)
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					names := make([]string, 0, len(missing))
					for _, m := range missing {
						names = append(names, m.Name)
					}
					ve.Add(field, fmt.Sprintf("Not available for delivery to %s: %s", address.City, strings.Join(names, ", ")))
				}
				branchID = *city.DefaultBranchID
			}
		}
	}

	if err := checkout.ValidateShipping(in, unavailable, saved, now); err != nil {
		if shipErr, ok := apperr.AsValidation(err); ok {
			ve.Fields = append(shipErr.Fields, ve.Fields...)
		} else {
			return err
		}
	}
	if err := ve.OrNil(); err != nil {
		return err
	}

	res.branchID = branchID
	res.shipping = shippingSnapshot(in, saved, now.Location())
	res.totals = checkout.ComputeTotals(res.lines, in.Mode, in.Urgent, s.cfg.Fees)
	res.totals.Currency = s.cfg.Currency
	return nil
}

// shippingSnapshot copies the chosen address into the order so later profile edits
// never change it.
func shippingSnapshot(in checkout.ShippingInput, saved *checkout.AddressInput, loc *time.Location) models.ShippingSelection {
	if in.Mode == checkout.ModePickup {
		branchID := in.BranchID
		return models.ShippingSelection{Mode: models.FulfillmentPickup, BranchID: &branchID}
	}
	address := in.Address
	if in.UseSavedAddress && saved != nil {
		address = *saved
	}
	sel := models.ShippingSelection{
		Mode:     models.FulfillmentDelivery,
		City:     address.City,
		Block:    address.Block,
		Road:     address.Road,
		Building: address.Building,
		Urgent:   in.Urgent,
	}
	if !in.Urgent {
		sel.DeliveryDate = checkout.ParseDeliveryDate(in, loc)
		sel.TimeSlot = in.TimeSlot
	}
	return sel
}

func addressNote(a checkout.AddressInput) string {
	return fmt.Sprintf("Address: %s, block %s, road %s, building %s", a.City, a.Block, a.Road, a.Building)
}

func orderEvent(o *models.Order) OrderEvent {
	return OrderEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Total:      o.Total.StringFixed(3),
		Currency:   o.Currency,
	}
}
