// Package app wires configuration, storage, services and handlers into a Fiber application.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pharmacy/internal/checkout"
	"pharmacy/internal/config"
	"pharmacy/internal/handlers"
	"pharmacy/internal/jobs"
	"pharmacy/internal/middleware"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"
	"pharmacy/pkg/mailer"
	"pharmacy/pkg/payment"
	"pharmacy/pkg/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const serviceName = "pharmacy"

// Integrations are the outside systems the services talk to. Nil fields fall
// back to the log mailer, the configured payment provider and no event broker.
type Integrations struct {
	Mailer   mailer.Mailer
	Payments payment.Gateway
	Events   services.EventPublisher
}

// Services is every service the handlers and jobs use.
type Services struct {
	Auth          *services.AuthService
	Profile       *services.ProfileService
	Employees     *services.EmployeeService
	Catalog       *services.CatalogService
	Inventory     *services.InventoryService
	Cart          *services.CartService
	Wishlist      *services.WishlistService
	Checkout      *services.CheckoutService
	Orders        *services.OrderService
	Prescriptions *services.PrescriptionService
	Notifications *services.NotificationService
	Dashboard     *services.DashboardService
	Logs          *services.LogService
}

// App is the assembled HTTP application.
type App struct {
	Fiber    *fiber.App
	Store    *repositories.Store
	Services Services
	cfg      *config.Config
}

// New builds the application on db.
func New(cfg *config.Config, db *gorm.DB, in Integrations) (*App, error) {
	if in.Mailer == nil {
		in.Mailer = mailer.LogMailer{}
	}
	if in.Events == nil {
		in.Events = services.NopPublisher{}
	}
	if in.Payments == nil {
		in.Payments = payment.NewClient(payment.Config{BaseURL: cfg.PaymentBaseURL, APIKey: cfg.PaymentAPIKey})
	}

	files, err := storage.NewLocal(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload directory: %w", err)
	}

	store := repositories.NewStore(db)
	svc := newServices(cfg, store, files, in)

	a := &App{Store: store, Services: svc, cfg: cfg}
	a.Fiber = fiber.New(fiber.Config{
		AppName:      serviceName,
		BodyLimit:    int(cfg.MaxUploadBytes)*2 + 1<<20,
		ErrorHandler: errorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	a.routes(files)
	return a, nil
}

func newServices(cfg *config.Config, store *repositories.Store, files *storage.Local, in Integrations) Services {
	notifications := services.NewNotificationService(store, in.Mailer, services.NotificationConfig{
		BatchSize:  cfg.NotifyBatchSize,
		MaxRetries: cfg.NotifyMaxRetries,
		RetryBase:  cfg.NotifyRetryBase,
	})
	validity := time.Duration(cfg.PrescriptionValidityDays) * 24 * time.Hour

	return Services{
		Auth:      services.NewAuthService(store, notifications, cfg.JWTSecret, cfg.SessionTTL, cfg.AppBaseURL+"/reset-password"),
		Profile:   services.NewProfileService(store),
		Employees: services.NewEmployeeService(store),
		Catalog:   services.NewCatalogService(store, files),
		Inventory: services.NewInventoryService(store, notifications, in.Events),
		Cart:      services.NewCartService(store, cfg.Currency),
		Wishlist:  services.NewWishlistService(store),
		Checkout: services.NewCheckoutService(store, files, in.Payments, notifications, in.Events, services.CheckoutConfig{
			Fees:                 checkout.Fees{Delivery: cfg.DeliveryFee, Urgent: cfg.UrgentFee},
			Currency:             cfg.Currency,
			PrescriptionValidity: validity,
			SuccessURL:           cfg.PaymentSuccessURL,
			CancelURL:            cfg.PaymentCancelURL,
		}),
		Orders:        services.NewOrderService(store, notifications, in.Events),
		Prescriptions: services.NewPrescriptionService(store, files, notifications, in.Events, validity),
		Notifications: notifications,
		Dashboard:     services.NewDashboardService(store),
		Logs:          services.NewLogService(store),
	}
}

func (a *App) routes(files *storage.Local) {
	app := a.Fiber
	svc := a.Services

	// --- Middleware ---
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowCredentials: a.cfg.CORSOrigins != "*",
	}))
	app.Use(middleware.Tracing(serviceName))
	app.Use(middleware.Metrics())

	app.Get("/health", a.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	// Only catalog images are public; prescription documents go through the API.
	for _, folder := range []string{services.ProductImageFolder, services.CategoryImageFolder} {
		app.Static("/uploads/"+folder, files.Sub(folder))
	}

	// --- API Routes ---
	apiV1 := app.Group("/api/v1")
	validate := handlers.NewValidator()
	guards := handlers.Guards{Auth: middleware.AuthRequired(svc.Auth, a.cfg.SessionCookie)}

	handlers.NewAuthHandler(svc.Auth, svc.Profile, svc.Logs, validate, handlers.CookieConfig{
		Name:   a.cfg.SessionCookie,
		Secure: a.cfg.SecureCookies,
	}).RegisterRoutes(apiV1, guards)
	handlers.NewCatalogHandler(svc.Catalog, validate).RegisterRoutes(apiV1, guards)
	handlers.NewInventoryHandler(svc.Inventory, validate).RegisterRoutes(apiV1, guards)
	handlers.NewCartHandler(svc.Cart, svc.Wishlist, validate).RegisterRoutes(apiV1, guards)
	handlers.NewOrderHandler(svc.Checkout, svc.Orders, validate).RegisterRoutes(apiV1, guards)
	handlers.NewPrescriptionHandler(svc.Prescriptions, validate).RegisterRoutes(apiV1, guards)
	handlers.NewAdminHandler(svc.Employees, svc.Dashboard, svc.Logs, svc.Notifications, validate).RegisterRoutes(apiV1, guards)
}

func (a *App) health(c *fiber.Ctx) error {
	if err := a.Store.Ping(c.UserContext()); err != nil {
		slog.ErrorContext(c.UserContext(), "health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Jobs returns the periodic tasks that run next to the HTTP server.
func (a *App) Jobs() []jobs.Task {
	return jobs.Standard(a.cfg, jobs.Services{
		Prescriptions: a.Services.Prescriptions,
		Inventory:     a.Services.Inventory,
		Notifications: a.Services.Notifications,
		Checkout:      a.Services.Checkout,
	})
}

// errorHandler answers errors that escaped a handler, such as unknown routes,
// oversized bodies and recovered panics.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
	}
	slog.ErrorContext(c.UserContext(), "unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Internal server error"})
}
