package handlers

import (
	"pharmacy/internal/middleware"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// InventoryHandler serves branch stock, availability and reorder requests.
type InventoryHandler struct {
	service  *services.InventoryService
	validate *validator.Validate
}

func NewInventoryHandler(service *services.InventoryService, validate *validator.Validate) *InventoryHandler {
	return &InventoryHandler{service: service, validate: validate}
}

// RegisterRoutes registers the inventory routes.
func (h *InventoryHandler) RegisterRoutes(router fiber.Router, g Guards) {
	staff := g.Staff()

	router.Get("/availability", g.Auth, h.HandleAvailability)

	inventoryRoutes := router.Group("/inventory")
	inventoryRoutes.Get("/low-stock", chain(staff, h.HandleLowStock)...)
	inventoryRoutes.Get("/branches/:branchId", chain(staff, h.HandleListByBranch)...)
	inventoryRoutes.Put("/", chain(staff, h.HandleUpsert)...)
	inventoryRoutes.Post("/:id/restock", chain(staff, h.HandleRestock)...)
	inventoryRoutes.Delete("/:id", chain(staff, h.HandleDelete)...)

	reorderRoutes := router.Group("/reorders")
	reorderRoutes.Get("/", chain(staff, h.HandleListReorders)...)
	reorderRoutes.Post("/:id/close", chain(staff, h.HandleCloseReorder)...)
}

// HandleAvailability reports, per branch, which lines of the caller's cart it cannot fill.
func (h *InventoryHandler) HandleAvailability(c *fiber.Ctx) error {
	branches, err := h.service.Availability(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(branches)
}

func (h *InventoryHandler) HandleListByBranch(c *fiber.Ctx) error {
	page, err := h.service.ListByBranch(c.UserContext(), c.Params("branchId"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *InventoryHandler) HandleLowStock(c *fiber.Ctx) error {
	rows, err := h.service.LowStock(c.UserContext(), c.Query("branchId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rows)
}

// HandleUpsert sets the stock row of a branch and product.
func (h *InventoryHandler) HandleUpsert(c *fiber.Ctx) error {
	var req services.InventoryInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	inv, err := h.service.Upsert(c.UserContext(), middleware.ActorFrom(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

func (h *InventoryHandler) HandleRestock(c *fiber.Ctx) error {
	var req restockRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	inv, err := h.service.Restock(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

func (h *InventoryHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *InventoryHandler) HandleListReorders(c *fiber.Ctx) error {
	page, err := h.service.ListReorders(c.UserContext(), c.Query("status"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *InventoryHandler) HandleCloseReorder(c *fiber.Ctx) error {
	if err := h.service.CloseReorder(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return respondOK(c)
}
