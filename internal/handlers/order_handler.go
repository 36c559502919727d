package handlers

import (
	"pharmacy/internal/middleware"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for checkout and orders.
type OrderHandler struct {
	checkout *services.CheckoutService
	orders   *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(checkout *services.CheckoutService, orders *services.OrderService, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders, validate: validate}
}

// RegisterRoutes registers the checkout and order routes.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, g Guards) {
	checkoutRoutes := router.Group("/checkout", g.Auth)
	checkoutRoutes.Get("/steps", h.HandleSteps)
	checkoutRoutes.Get("/totals", h.HandleTotals)
	checkoutRoutes.Post("/validate", h.HandleValidate)
	checkoutRoutes.Post("/", h.HandleCreate)
	checkoutRoutes.Post("/confirm", h.HandleConfirm)

	orderRoutes := router.Group("/orders", g.Auth)
	orderRoutes.Get("/all", middleware.RequireRoles(staffRoles...), h.HandleListAll)
	orderRoutes.Get("/", h.HandleListMine)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/:id/cancel", h.HandleCancel)
	orderRoutes.Patch("/:id/status", middleware.RequireRoles(staffRoles...), h.HandleUpdateOrderStatus)
}

// HandleSteps returns the checkout steps the current cart goes through.
func (h *OrderHandler) HandleSteps(c *fiber.Ctx) error {
	steps, err := h.checkout.Steps(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"steps": steps})
}

// HandleTotals prices the cart for ?mode=pickup|delivery&urgent=true.
func (h *OrderHandler) HandleTotals(c *fiber.Ctx) error {
	totals, err := h.checkout.Totals(c.UserContext(), middleware.ActorFrom(c).ID, c.Query("mode"), c.QueryBool("urgent"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(totals)
}

// HandleValidate walks the request through the steps without placing anything.
func (h *OrderHandler) HandleValidate(c *fiber.Ctx) error {
	var req services.CheckoutRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	preview, err := h.checkout.Validate(c.UserContext(), middleware.ActorFrom(c).ID, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(preview)
}

// HandleCreate submits the checkout. Cash orders answer 201 with the order;
// card checkouts answer 200 with the hosted payment URL.
func (h *OrderHandler) HandleCreate(c *fiber.Ctx) error {
	var req services.CheckoutRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	result, err := h.checkout.Create(c.UserContext(), middleware.ActorFrom(c).ID, req)
	if err != nil {
		return respondError(c, err)
	}
	if result.Order != nil {
		return c.Status(fiber.StatusCreated).JSON(result)
	}
	return c.JSON(result)
}

type confirmRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// HandleConfirm places the order for a paid card checkout.
func (h *OrderHandler) HandleConfirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	order, err := h.checkout.Confirm(c.UserContext(), middleware.ActorFrom(c).ID, req.SessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// HandleListMine returns the caller's orders, optionally filtered by ?status.
func (h *OrderHandler) HandleListMine(c *fiber.Ctx) error {
	page, err := h.orders.ListMine(c.UserContext(), middleware.ActorFrom(c).ID, c.Query("status"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *OrderHandler) HandleListAll(c *fiber.Ctx) error {
	page, err := h.orders.ListAll(c.UserContext(), c.Query("status"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// HandleGetOrderByID retrieves a single order. Customers only see their own.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.orders.Get(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

func (h *OrderHandler) HandleCancel(c *fiber.Ctx) error {
	order, err := h.orders.Cancel(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// UpdateOrderStatusRequest represents the request body for updating an order's status.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=255"`
}

// HandleUpdateOrderStatus moves an order along its fulfillment steps.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req UpdateOrderStatusRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	order, err := h.orders.UpdateStatus(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.Status, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}
