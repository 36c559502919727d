package services

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/checkout"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/pkg/rabbitmq"
)

// Upload is one file received from a multipart form.
type Upload struct {
	Filename string
	Content  io.Reader
}

// SubmitInput is a prescription sent for review outside of checkout.
type SubmitInput struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,dive,required"`
	Notes      string   `json:"notes" validate:"max=500"`
}

// PlanItemInput is one product in a new plan.
type PlanItemInput struct {
	ProductID    string `json:"productId" validate:"required"`
	Dosage       string `json:"dosage" validate:"max=100"`
	IntervalDays int    `json:"intervalDays" validate:"required,gte=1,lte=365"`
	StartDate    string `json:"startDate"`
}

// PlanInput creates a prescription plan.
type PlanInput struct {
	Name  string          `json:"name" validate:"required,max=100"`
	Items []PlanItemInput `json:"items" validate:"required,min=1,dive"`
}

// ReviewEvent is published when a pharmacist decides a request.
type ReviewEvent struct {
	RequestID  string `json:"requestId"`
	CustomerID string `json:"customerId"`
	Status     string `json:"status"`
	ReviewerID string `json:"reviewerId"`
}

// PrescriptionService runs the approval workflow and the customer's refill plans.
type PrescriptionService struct {
	store         *repositories.Store
	files         FileStore
	notifications *NotificationService
	events        EventPublisher
	validity      time.Duration
	now           func() time.Time
}

func NewPrescriptionService(store *repositories.Store, files FileStore, notifications *NotificationService, events EventPublisher, validity time.Duration) *PrescriptionService {
	if validity <= 0 {
		validity = 90 * 24 * time.Hour
	}
	return &PrescriptionService{
		store:         store,
		files:         files,
		notifications: notifications,
		events:        events,
		validity:      validity,
		now:           utcNow,
	}
}

// UploadDocument stores a prescription or CPR document and returns its path for a
// later checkout.
func (s *PrescriptionService) UploadDocument(ctx context.Context, customerID string, up Upload) (string, error) {
	if s.files == nil {
		return "", errors.New("file storage is not configured")
	}
	stored, err := s.files.Save(documentFolder(customerID), up.Filename, up.Content, checkout.DocumentExtensions)
	if err != nil {
		return "", uploadError("document", err)
	}
	slog.InfoContext(ctx, "prescription document stored", "customer_id", customerID, "path", stored)
	return stored, nil
}

const documentRoot = "prescriptions"

func documentFolder(customerID string) string {
	return documentRoot + "/" + customerID
}

// ownsDocument reports whether p lies in the customer's own document folder.
func ownsDocument(customerID, p string) bool {
	if customerID == "" || p == "" {
		return false
	}
	return strings.HasPrefix(path.Clean("/"+p), "/"+documentFolder(customerID)+"/")
}

// Document resolves a stored CPR or prescription scan to a file on disk. Staff
// may read any document, customers only their own.
func (s *PrescriptionService) Document(ctx context.Context, actor Actor, p string) (string, error) {
	if s.files == nil {
		return "", errors.New("file storage is not configured")
	}
	clean := path.Clean("/" + p)
	notFound := apperr.NotFoundf("document %s not found", p)
	if !strings.HasPrefix(clean, "/"+documentRoot+"/") {
		return "", notFound
	}
	if !actor.IsStaff() && !ownsDocument(actor.ID, p) {
		slog.WarnContext(ctx, "document access denied", "user_id", actor.ID, "path", clean)
		return "", notFound
	}
	full, err := s.files.Locate(clean[1:])
	if errors.Is(err, fs.ErrNotExist) {
		return "", notFound
	}
	if err != nil {
		return "", err
	}
	return full, nil
}

// Submit creates a pending request from two uploaded documents.
func (s *PrescriptionService) Submit(ctx context.Context, customerID string, in SubmitInput, cpr, prescription Upload) (*models.PrescriptionRequest, error) {
	cprPath, err := s.UploadDocument(ctx, customerID, cpr)
	if err != nil {
		return nil, prefixField(err, "cprDocument")
	}
	rxPath, err := s.UploadDocument(ctx, customerID, prescription)
	if err != nil {
		_ = s.files.Delete(cprPath)
		return nil, prefixField(err, "prescriptionDocument")
	}

	req := &models.PrescriptionRequest{
		CustomerID:           customerID,
		Status:               models.PrescriptionPending,
		CPRDocument:          cprPath,
		PrescriptionDocument: rxPath,
		Notes:                strings.TrimSpace(in.Notes),
		ExpiresAt:            s.now().Add(s.validity),
	}
	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		products, err := tx.Products.GetByIDs(ctx, in.ProductIDs)
		if err != nil {
			return err
		}
		if len(products) == 0 || len(products) != len(dedupeIDs(in.ProductIDs)) {
			return apperr.Invalid("productIds", "Unknown product")
		}
		for _, p := range products {
			req.Products = append(req.Products, models.PrescriptionProduct{ProductID: p.ID})
		}
		return tx.Prescriptions.Create(ctx, req)
	})
	if err != nil {
		_ = s.files.Delete(cprPath)
		_ = s.files.Delete(rxPath)
		return nil, err
	}
	return req, nil
}

func (s *PrescriptionService) ListMine(ctx context.Context, customerID, status string, q models.PageQuery) (models.Page[models.PrescriptionRequest], error) {
	return s.store.Prescriptions.List(ctx, customerID, status, q)
}

// ListPending is the pharmacist review queue.
func (s *PrescriptionService) ListPending(ctx context.Context, q models.PageQuery) (models.Page[models.PrescriptionRequest], error) {
	return s.store.Prescriptions.List(ctx, "", models.PrescriptionPending, q)
}

func (s *PrescriptionService) ListAll(ctx context.Context, status string, q models.PageQuery) (models.Page[models.PrescriptionRequest], error) {
	return s.store.Prescriptions.List(ctx, "", status, q)
}

func (s *PrescriptionService) Get(ctx context.Context, actor Actor, id string) (*models.PrescriptionRequest, error) {
	req, err := s.store.Prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && req.CustomerID != actor.ID {
		return nil, apperr.NotFoundf("prescription request with ID %s not found", id)
	}
	return req, nil
}

// ListEligible returns the approved, unexpired, unused requests checkout may reference.
func (s *PrescriptionService) ListEligible(ctx context.Context, customerID string) ([]models.PrescriptionRequest, error) {
	return s.store.Prescriptions.ListEligible(ctx, customerID, s.now())
}

// Approve accepts a pending request.
func (s *PrescriptionService) Approve(ctx context.Context, reviewer Actor, id string) (*models.PrescriptionRequest, error) {
	return s.review(ctx, reviewer, id, models.PrescriptionApproved, "")
}

// Reject declines a pending request.
func (s *PrescriptionService) Reject(ctx context.Context, reviewer Actor, id, reason string) (*models.PrescriptionRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "A rejection reason is required")
	}
	return s.review(ctx, reviewer, id, models.PrescriptionRejected, reason)
}

// review decides a request only while it is pending. The status check and the
// write are one conditional update, so of two concurrent reviewers exactly one wins
// and the other gets a conflict.
func (s *PrescriptionService) review(ctx context.Context, reviewer Actor, id, status, reason string) (*models.PrescriptionRequest, error) {
	var req *models.PrescriptionRequest
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		ok, err := tx.Prescriptions.Review(ctx, id, status, reviewer.ID, reason, s.now())
		if err != nil {
			return err
		}
		if req, err = tx.Prescriptions.GetByID(ctx, id); err != nil {
			return err
		}
		if !ok {
			return apperr.Conflictf("prescription request is already %s", req.Status)
		}
		customer, err := tx.Users.GetByID(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if err := s.notifications.Enqueue(ctx, tx, prescriptionReviewedEmail(customer, req)); err != nil {
			return err
		}
		return logActivity(ctx, tx, reviewer, "prescription."+status, "prescription_request", id, reason)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, rabbitmq.KeyPrescriptionReviewed, ReviewEvent{
		RequestID:  req.ID,
		CustomerID: req.CustomerID,
		Status:     req.Status,
		ReviewerID: reviewer.ID,
	})
	return req, nil
}

// ExpireDue marks pending and approved requests past their expiry as expired and
// tells the customers. It returns how many expired.
func (s *PrescriptionService) ExpireDue(ctx context.Context) (int, error) {
	var expired []models.PrescriptionRequest
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		if expired, err = tx.Prescriptions.ExpireDue(ctx, s.now()); err != nil {
			return err
		}
		for i := range expired {
			customer, err := tx.Users.GetByID(ctx, expired[i].CustomerID)
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := s.notifications.Enqueue(ctx, tx, prescriptionExpiredEmail(customer, &expired[i])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (s *PrescriptionService) CreatePlan(ctx context.Context, customerID string, in PlanInput) (*models.PrescriptionPlan, error) {
	now := s.now()
	plan := &models.PrescriptionPlan{CustomerID: customerID, Name: strings.TrimSpace(in.Name), Active: true}
	ve := newValidation()
	if plan.Name == "" {
		ve.Add("name", "Name is required")
	}
	if len(in.Items) == 0 {
		ve.Add("items", "Add at least one product")
	}
	for i, it := range in.Items {
		if it.IntervalDays < 1 {
			ve.Add(itemField(i, "intervalDays"), "Interval must be at least one day")
		}
		due := now.AddDate(0, 0, it.IntervalDays)
		if it.StartDate != "" {
			start, err := time.Parse(checkout.DateLayout, it.StartDate)
			if err != nil {
				ve.Add(itemField(i, "startDate"), "Start date must use YYYY-MM-DD")
				continue
			}
			due = start.UTC()
		}
		plan.Items = append(plan.Items, models.PlanItem{
			ProductID:    it.ProductID,
			Dosage:       it.Dosage,
			IntervalDays: it.IntervalDays,
			NextDueAt:    due,
		})
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		ids := make([]string, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.ProductID)
		}
		products, err := productsByID(ctx, tx, ids)
		if err != nil {
			return err
		}
		for i, it := range in.Items {
			if _, ok := products[it.ProductID]; !ok {
				ve.Add(itemField(i, "productId"), "Unknown product")
			}
		}
		if err := ve.OrNil(); err != nil {
			return err
		}
		return tx.Plans.Create(ctx, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *PrescriptionService) ListPlans(ctx context.Context, customerID string) ([]models.PrescriptionPlan, error) {
	return s.store.Plans.ListByCustomer(ctx, customerID)
}

func (s *PrescriptionService) GetPlan(ctx context.Context, customerID, id string) (*models.PrescriptionPlan, error) {
	plan, err := s.store.Plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.CustomerID != customerID {
		return nil, apperr.NotFoundf("prescription plan with ID %s not found", id)
	}
	return plan, nil
}

func (s *PrescriptionService) DeletePlan(ctx context.Context, customerID, id string) error {
	if _, err := s.GetPlan(ctx, customerID, id); err != nil {
		return err
	}
	return s.store.Plans.Delete(ctx, id)
}

// MarkRefilled moves a plan item's next due date one interval past today or its
// current due date, whichever is later.
func (s *PrescriptionService) MarkRefilled(ctx context.Context, customerID, itemID string) (*models.PlanItem, error) {
	item, err := s.store.Plans.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetPlan(ctx, customerID, item.PlanID); err != nil {
		return nil, apperr.NotFoundf("plan item with ID %s not found", itemID)
	}
	base := s.now()
	if item.NextDueAt.After(base) {
		base = item.NextDueAt
	}
	next := base.AddDate(0, 0, item.IntervalDays)
	if err := s.store.Plans.Advance(ctx, itemID, next); err != nil {
		return nil, err
	}
	item.NextDueAt = next
	return item, nil
}

// RemindDue queues a reminder for each plan item due within lead that was not yet
// reminded for its current due date. A failing item is logged and skipped.
func (s *PrescriptionService) RemindDue(ctx context.Context, lead time.Duration) (int, error) {
	items, err := s.store.Plans.DueItems(ctx, s.now().Add(lead))
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range items {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := s.remind(ctx, &items[i]); err != nil {
			slog.ErrorContext(ctx, "plan reminder failed", "plan_item_id", items[i].ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *PrescriptionService) remind(ctx context.Context, item *models.PlanItem) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		plan, err := tx.Plans.GetByID(ctx, item.PlanID)
		if err != nil {
			return err
		}
		customer, err := tx.Users.GetByID(ctx, plan.CustomerID)
		if err != nil {
			return err
		}
		product, err := tx.Products.GetByID(ctx, item.ProductID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err := s.notifications.Enqueue(ctx, tx, planReminderEmail(customer, plan, item, product)); err != nil {
			return err
		}
		return tx.Plans.MarkReminded(ctx, item.ID, item.NextDueAt)
	})
}

func itemField(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}

// prefixField renames the fields of an upload validation error.
func prefixField(err error, field string) error {
	if ve, ok := apperr.AsValidation(err); ok {
		out := newValidation()
		for _, f := range ve.Fields {
			out.Add(field, f.Message)
		}
		return out
	}
	return err
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
