package handlers

import (
	"strings"

	"pharmacy/internal/apperr"
	"pharmacy/internal/middleware"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// PrescriptionHandler serves prescription requests, their review and refill plans.
type PrescriptionHandler struct {
	service  *services.PrescriptionService
	validate *validator.Validate
}

func NewPrescriptionHandler(service *services.PrescriptionService, validate *validator.Validate) *PrescriptionHandler {
	return &PrescriptionHandler{service: service, validate: validate}
}

// RegisterRoutes registers the prescription and plan routes.
func (h *PrescriptionHandler) RegisterRoutes(router fiber.Router, g Guards) {
	reviewers := middleware.RequireRoles(reviewerRoles...)

	rxRoutes := router.Group("/prescriptions", g.Auth)
	rxRoutes.Post("/documents", h.HandleUploadDocument)
	rxRoutes.Get("/documents", h.HandleGetDocument)
	rxRoutes.Get("/eligible", h.HandleEligible)
	rxRoutes.Get("/pending", reviewers, h.HandlePending)
	rxRoutes.Get("/all", reviewers, h.HandleListAll)
	rxRoutes.Get("/", h.HandleListMine)
	rxRoutes.Post("/", h.HandleSubmit)
	rxRoutes.Get("/:id", h.HandleGet)
	rxRoutes.Post("/:id/approve", reviewers, h.HandleApprove)
	rxRoutes.Post("/:id/reject", reviewers, h.HandleReject)

	planRoutes := router.Group("/plans", g.Auth)
	planRoutes.Get("/", h.HandleListPlans)
	planRoutes.Post("/", h.HandleCreatePlan)
	planRoutes.Get("/:id", h.HandleGetPlan)
	planRoutes.Delete("/:id", h.HandleDeletePlan)
	planRoutes.Post("/items/:itemId/refill", h.HandleRefill)
}

// HandleUploadDocument stores one multipart "document" and returns the path a
// checkout can reference.
func (h *PrescriptionHandler) HandleUploadDocument(c *fiber.Ctx) error {
	up, done, err := formUpload(c, "document")
	if err != nil {
		return respondError(c, err)
	}
	defer done()

	path, err := h.service.UploadDocument(c.UserContext(), middleware.ActorFrom(c).ID, up)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"path": path})
}

// HandleGetDocument streams the stored document named by ?path=.
func (h *PrescriptionHandler) HandleGetDocument(c *fiber.Ctx) error {
	file, err := h.service.Document(c.UserContext(), middleware.ActorFrom(c), c.Query("path"))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderCacheControl, "private, no-store")
	return c.SendFile(file)
}

// HandleSubmit takes a multipart form with cprDocument and prescriptionDocument
// files, productIds (repeated or comma separated) and optional notes.
func (h *PrescriptionHandler) HandleSubmit(c *fiber.Ctx) error {
	var ve apperr.ValidationError
	cpr, doneCPR, _ := optionalUpload(c, "cprDocument")
	defer doneCPR()
	if cpr.Content == nil {
		ve.Add("cprDocument", "File is required")
	}
	rx, doneRx, _ := optionalUpload(c, "prescriptionDocument")
	defer doneRx()
	if rx.Content == nil {
		ve.Add("prescriptionDocument", "File is required")
	}

	in := services.SubmitInput{Notes: c.FormValue("notes")}
	if form, err := c.MultipartForm(); err == nil {
		for _, v := range form.Value["productIds"] {
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					in.ProductIDs = append(in.ProductIDs, id)
				}
			}
		}
	}
	if err := validateStruct(h.validate, &in); err != nil {
		if fields, ok := apperr.AsValidation(err); ok {
			ve.Fields = append(ve.Fields, fields.Fields...)
		} else {
			return respondError(c, err)
		}
	}
	if err := ve.OrNil(); err != nil {
		return respondError(c, err)
	}

	req, err := h.service.Submit(c.UserContext(), middleware.ActorFrom(c).ID, in, cpr, rx)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

func (h *PrescriptionHandler) HandleListMine(c *fiber.Ctx) error {
	page, err := h.service.ListMine(c.UserContext(), middleware.ActorFrom(c).ID, c.Query("status"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// HandleEligible lists approved, unexpired, unused requests for checkout.
func (h *PrescriptionHandler) HandleEligible(c *fiber.Ctx) error {
	reqs, err := h.service.ListEligible(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(reqs)
}

func (h *PrescriptionHandler) HandlePending(c *fiber.Ctx) error {
	page, err := h.service.ListPending(c.UserContext(), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *PrescriptionHandler) HandleListAll(c *fiber.Ctx) error {
	page, err := h.service.ListAll(c.UserContext(), c.Query("status"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *PrescriptionHandler) HandleGet(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// HandleApprove answers 409 when the request is no longer pending.
func (h *PrescriptionHandler) HandleApprove(c *fiber.Ctx) error {
	req, err := h.service.Approve(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *PrescriptionHandler) HandleReject(c *fiber.Ctx) error {
	var body rejectRequest
	if err := parseBody(c, h.validate, &body); err != nil {
		return respondError(c, err)
	}
	req, err := h.service.Reject(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), body.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

func (h *PrescriptionHandler) HandleListPlans(c *fiber.Ctx) error {
	plans, err := h.service.ListPlans(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(plans)
}

func (h *PrescriptionHandler) HandleCreatePlan(c *fiber.Ctx) error {
	var in services.PlanInput
	if err := parseBody(c, h.validate, &in); err != nil {
		return respondError(c, err)
	}
	plan, err := h.service.CreatePlan(c.UserContext(), middleware.ActorFrom(c).ID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (h *PrescriptionHandler) HandleGetPlan(c *fiber.Ctx) error {
	plan, err := h.service.GetPlan(c.UserContext(), middleware.ActorFrom(c).ID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(plan)
}

func (h *PrescriptionHandler) HandleDeletePlan(c *fiber.Ctx) error {
	if err := h.service.DeletePlan(c.UserContext(), middleware.ActorFrom(c).ID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleRefill records that a plan item was refilled and returns its next due date.
func (h *PrescriptionHandler) HandleRefill(c *fiber.Ctx) error {
	item, err := h.service.MarkRefilled(c.UserContext(), middleware.ActorFrom(c).ID, c.Params("itemId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}
