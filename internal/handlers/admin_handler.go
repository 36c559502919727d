package handlers

import (
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/middleware"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// AdminHandler serves the back-office: staff accounts, the dashboard, the
// activity log and the notification outbox.
type AdminHandler struct {
	employees     *services.EmployeeService
	dashboard     *services.DashboardService
	logs          *services.LogService
	notifications *services.NotificationService
	validate      *validator.Validate
}

func NewAdminHandler(employees *services.EmployeeService, dashboard *services.DashboardService, logs *services.LogService, notifications *services.NotificationService, validate *validator.Validate) *AdminHandler {
	return &AdminHandler{
		employees:     employees,
		dashboard:     dashboard,
		logs:          logs,
		notifications: notifications,
		validate:      validate,
	}
}

// RegisterRoutes registers the back-office routes under /admin.
func (h *AdminHandler) RegisterRoutes(router fiber.Router, g Guards) {
	adminRoutes := router.Group("/admin", g.Auth)
	adminOnly := middleware.RequireRoles(adminRoles...)
	staff := middleware.RequireRoles(staffRoles...)

	adminRoutes.Get("/dashboard", staff, h.HandleDashboard)
	adminRoutes.Get("/reports/sales", staff, h.HandleSalesByDay)
	adminRoutes.Get("/reports/top-products", staff, h.HandleTopProducts)

	adminRoutes.Get("/employees", adminOnly, h.HandleListEmployees)
	adminRoutes.Post("/employees", adminOnly, h.HandleCreateEmployee)
	adminRoutes.Get("/employees/:id", adminOnly, h.HandleGetEmployee)
	adminRoutes.Put("/employees/:id", adminOnly, h.HandleUpdateEmployee)
	adminRoutes.Put("/employees/:id/role", adminOnly, h.HandleAssignRole)
	adminRoutes.Delete("/employees/:id", adminOnly, h.HandleDeleteEmployee)

	adminRoutes.Get("/logs", adminOnly, h.HandleListLogs)
	adminRoutes.Get("/notifications", adminOnly, h.HandleListNotifications)
	adminRoutes.Post("/notifications/:id/requeue", adminOnly, h.HandleRequeue)
}

func (h *AdminHandler) reportRange(c *fiber.Ctx) (repositories.ReportRange, error) {
	return h.dashboard.Range(c.Query("from"), c.Query("to"))
}

// HandleDashboard returns every chart for ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *AdminHandler) HandleDashboard(c *fiber.Ctx) error {
	r, err := h.reportRange(c)
	if err != nil {
		return respondError(c, err)
	}
	d, err := h.dashboard.Overview(c.UserContext(), r, c.QueryInt("top", 5))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(d)
}

func (h *AdminHandler) HandleSalesByDay(c *fiber.Ctx) error {
	r, err := h.reportRange(c)
	if err != nil {
		return respondError(c, err)
	}
	rows, err := h.dashboard.SalesByDay(c.UserContext(), r)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rows)
}

func (h *AdminHandler) HandleTopProducts(c *fiber.Ctx) error {
	r, err := h.reportRange(c)
	if err != nil {
		return respondError(c, err)
	}
	rows, err := h.dashboard.TopProducts(c.UserContext(), r, c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rows)
}

func (h *AdminHandler) HandleListEmployees(c *fiber.Ctx) error {
	page, err := h.employees.List(c.UserContext(), c.Query("role"), c.Query("search"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *AdminHandler) HandleGetEmployee(c *fiber.Ctx) error {
	user, err := h.employees.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

func (h *AdminHandler) HandleCreateEmployee(c *fiber.Ctx) error {
	var req services.EmployeeInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	user, err := h.employees.Create(c.UserContext(), middleware.ActorFrom(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *AdminHandler) HandleUpdateEmployee(c *fiber.Ctx) error {
	var req services.EmployeeUpdate
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	user, err := h.employees.Update(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=pharmacist employee admin"`
}

func (h *AdminHandler) HandleAssignRole(c *fiber.Ctx) error {
	var req assignRoleRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	user, err := h.employees.AssignRole(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

func (h *AdminHandler) HandleDeleteEmployee(c *fiber.Ctx) error {
	if err := h.employees.Delete(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListLogs filters by actorId, action, entity and a from/to date range.
func (h *AdminHandler) HandleListLogs(c *fiber.Ctx) error {
	filter := repositories.ActivityLogFilter{
		ActorID:   c.Query("actorId"),
		Action:    c.Query("action"),
		Entity:    c.Query("entity"),
		PageQuery: pageQuery(c),
	}
	var ve apperr.ValidationError
	filter.From = queryDate(c, "from", &ve)
	filter.To = queryDate(c, "to", &ve)
	if filter.To != nil {
		end := filter.To.AddDate(0, 0, 1)
		filter.To = &end
	}
	if err := ve.OrNil(); err != nil {
		return respondError(c, err)
	}

	page, err := h.logs.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func queryDate(c *fiber.Ctx, key string, ve *apperr.ValidationError) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		ve.Add(key, "Date must use YYYY-MM-DD")
		return nil
	}
	return &t
}

// HandleListNotifications lists the outbox; ?status=dead shows dead letters.
func (h *AdminHandler) HandleListNotifications(c *fiber.Ctx) error {
	page, err := h.notifications.List(c.UserContext(), c.Query("status"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *AdminHandler) HandleRequeue(c *fiber.Ctx) error {
	if err := h.notifications.Requeue(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return respondOK(c)
}
