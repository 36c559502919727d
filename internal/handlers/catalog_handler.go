package handlers

import (
	"context"
	"strconv"

	"pharmacy/internal/apperr"
	"pharmacy/internal/middleware"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// lookupCatalog is the CRUD surface shared by the named lookup tables.
type lookupCatalog[T any] interface {
	List(ctx context.Context, q models.PageQuery) (models.Page[T], error)
	All(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, actor services.Actor, entity *T) error
	Update(ctx context.Context, actor services.Actor, id string, entity *T) error
	Delete(ctx context.Context, actor services.Actor, id string) error
}

// registerLookup mounts list/get/create/update/delete for one lookup table.
// Reads are public unless readGuards is set; writes need staff.
func registerLookup[T any](router fiber.Router, path string, catalog lookupCatalog[T], readGuards, writeGuards []fiber.Handler) {
	group := router.Group(path)

	group.Get("/", chain(readGuards, func(c *fiber.Ctx) error {
		if c.QueryBool("all") {
			items, err := catalog.All(c.UserContext())
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(items)
		}
		page, err := catalog.List(c.UserContext(), pageQuery(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})...)

	group.Get("/:id", chain(readGuards, func(c *fiber.Ctx) error {
		item, err := catalog.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(item)
	})...)

	group.Post("/", chain(writeGuards, func(c *fiber.Ctx) error {
		item := new(T)
		if err := c.BodyParser(item); err != nil {
			return respondError(c, apperr.Invalid("body", "Cannot parse request body"))
		}
		if err := catalog.Create(c.UserContext(), middleware.ActorFrom(c), item); err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	})...)

	group.Put("/:id", chain(writeGuards, func(c *fiber.Ctx) error {
		item := new(T)
		if err := c.BodyParser(item); err != nil {
			return respondError(c, apperr.Invalid("body", "Cannot parse request body"))
		}
		if err := catalog.Update(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), item); err != nil {
			return respondError(c, err)
		}
		return c.JSON(item)
	})...)

	group.Delete("/:id", chain(writeGuards, func(c *fiber.Ctx) error {
		if err := catalog.Delete(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})...)
}

// CatalogHandler serves products and the lookup tables around them.
type CatalogHandler struct {
	service  *services.CatalogService
	validate *validator.Validate
}

func NewCatalogHandler(service *services.CatalogService, validate *validator.Validate) *CatalogHandler {
	return &CatalogHandler{service: service, validate: validate}
}

// RegisterRoutes registers the catalog routes.
func (h *CatalogHandler) RegisterRoutes(router fiber.Router, g Guards) {
	staff := g.Staff()

	registerLookup[models.Category](router, "/categories", h.service.Categories, nil, staff)
	registerLookup[models.ProductType](router, "/product-types", h.service.ProductTypes, nil, staff)
	registerLookup[models.Supplier](router, "/suppliers", h.service.Suppliers, staff, staff)
	registerLookup[models.Branch](router, "/branches", h.service.Branches, nil, staff)
	registerLookup[models.City](router, "/cities", h.service.Cities, nil, staff)
	registerLookup[models.Allergy](router, "/allergies", h.service.Allergies, nil, staff)
	registerLookup[models.Illness](router, "/illnesses", h.service.Illnesses, nil, staff)
	router.Post("/categories/:id/image", chain(staff, h.HandleCategoryImage)...)

	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleListProducts)
	productRoutes.Get("/:id", h.HandleGetProduct)
	productRoutes.Get("/:id/health", h.HandleProductHealth)
	productRoutes.Post("/", chain(staff, h.HandleCreateProduct)...)
	productRoutes.Put("/:id", chain(staff, h.HandleUpdateProduct)...)
	productRoutes.Delete("/:id", chain(staff, h.HandleDeleteProduct)...)
	productRoutes.Post("/:id/image", chain(staff, h.HandleProductImage)...)
	productRoutes.Post("/:id/incompatibilities", chain(staff, h.HandleAddIncompatibility)...)
	productRoutes.Post("/:id/conflicts", chain(staff, h.HandleAddConflict)...)

	router.Delete("/incompatibilities/:id", chain(staff, h.HandleRemoveIncompatibility)...)
	router.Delete("/conflicts/:id", chain(staff, h.HandleRemoveConflict)...)
}

// HandleListProducts returns the storefront listing. Filters: search,
// categoryId, productTypeId, supplierId, requiresPrescription, minPrice, maxPrice.
func (h *CatalogHandler) HandleListProducts(c *fiber.Ctx) error {
	filter := repositories.ProductFilter{
		Search:        c.Query("search"),
		CategoryID:    c.Query("categoryId"),
		ProductTypeID: c.Query("productTypeId"),
		SupplierID:    c.Query("supplierId"),
		PageQuery:     pageQuery(c),
	}

	var ve apperr.ValidationError
	if raw := c.Query("requiresPrescription"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			ve.Add("requiresPrescription", "Must be true or false")
		}
		filter.RequiresPrescription = &b
	}
	filter.MinPrice = queryDecimal(c, "minPrice", &ve)
	filter.MaxPrice = queryDecimal(c, "maxPrice", &ve)
	if err := ve.OrNil(); err != nil {
		return respondError(c, err)
	}

	page, err := h.service.ListProducts(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func queryDecimal(c *fiber.Ctx, key string, ve *apperr.ValidationError) *decimal.Decimal {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		ve.Add(key, "Must be a non-negative number")
		return nil
	}
	return &d
}

func (h *CatalogHandler) HandleGetProduct(c *fiber.Ctx) error {
	product, err := h.service.GetProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(product)
}

// HandleProductHealth lists the incompatibilities and conflicts of a product.
func (h *CatalogHandler) HandleProductHealth(c *fiber.Ctx) error {
	health, err := h.service.ProductHealth(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(health)
}

func (h *CatalogHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var req services.ProductInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	product, err := h.service.CreateProduct(c.UserContext(), middleware.ActorFrom(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

func (h *CatalogHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	var req services.ProductInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	product, err := h.service.UpdateProduct(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(product)
}

func (h *CatalogHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.service.DeleteProduct(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleProductImage accepts a multipart "image" file.
func (h *CatalogHandler) HandleProductImage(c *fiber.Ctx) error {
	up, done, err := formUpload(c, "image")
	if err != nil {
		return respondError(c, err)
	}
	defer done()

	product, err := h.service.SetProductImage(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), up.Filename, up.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(product)
}

func (h *CatalogHandler) HandleCategoryImage(c *fiber.Ctx) error {
	up, done, err := formUpload(c, "image")
	if err != nil {
		return respondError(c, err)
	}
	defer done()

	category, err := h.service.SetCategoryImage(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), up.Filename, up.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(category)
}

type incompatibilityRequest struct {
	IncompatibleProductID string `json:"incompatibleProductId" validate:"required"`
	Note                  string `json:"note" validate:"max=255"`
}

func (h *CatalogHandler) HandleAddIncompatibility(c *fiber.Ctx) error {
	var req incompatibilityRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	inc, err := h.service.AddIncompatibility(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.IncompatibleProductID, req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inc)
}

func (h *CatalogHandler) HandleRemoveIncompatibility(c *fiber.Ctx) error {
	if err := h.service.RemoveIncompatibility(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CatalogHandler) HandleAddConflict(c *fiber.Ctx) error {
	var req services.ConflictInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	conflict, err := h.service.AddConflict(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conflict)
}

func (h *CatalogHandler) HandleRemoveConflict(c *fiber.Ctx) error {
	if err := h.service.RemoveConflict(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
