package handlers

import (
	"pharmacy/internal/middleware"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CartHandler serves the signed-in user's cart and wishlist.
type CartHandler struct {
	cart     *services.CartService
	wishlist *services.WishlistService
	validate *validator.Validate
}

func NewCartHandler(cart *services.CartService, wishlist *services.WishlistService, validate *validator.Validate) *CartHandler {
	return &CartHandler{cart: cart, wishlist: wishlist, validate: validate}
}

// RegisterRoutes registers the cart and wishlist routes. Every route needs a session.
func (h *CartHandler) RegisterRoutes(router fiber.Router, g Guards) {
	cartRoutes := router.Group("/cart", g.Auth)
	cartRoutes.Get("/", h.HandleView)
	cartRoutes.Delete("/", h.HandleClear)
	cartRoutes.Post("/items", h.HandleAdd)
	cartRoutes.Put("/items/:productId", h.HandleSetQuantity)
	cartRoutes.Delete("/items/:productId", h.HandleRemove)
	cartRoutes.Post("/reconcile", h.HandleReconcile)

	wishlistRoutes := router.Group("/wishlist", g.Auth)
	wishlistRoutes.Get("/", h.HandleWishlist)
	wishlistRoutes.Put("/:productId", h.HandleWishlistAdd)
	wishlistRoutes.Delete("/:productId", h.HandleWishlistRemove)
	wishlistRoutes.Post("/:productId/move-to-cart", h.HandleMoveToCart)
}

func (h *CartHandler) HandleView(c *fiber.Ctx) error {
	view, err := h.cart.View(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

type addToCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// HandleAdd adds quantity (default 1) of a product to the cart.
func (h *CartHandler) HandleAdd(c *fiber.Ctx) error {
	var req addToCartRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	view, err := h.cart.Add(c.UserContext(), middleware.ActorFrom(c).ID, req.ProductID, req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// HandleSetQuantity sets the line quantity; zero removes the line.
func (h *CartHandler) HandleSetQuantity(c *fiber.Ctx) error {
	var req setQuantityRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	view, err := h.cart.SetQuantity(c.UserContext(), middleware.ActorFrom(c).ID, c.Params("productId"), req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *CartHandler) HandleRemove(c *fiber.Ctx) error {
	view, err := h.cart.Remove(c.UserContext(), middleware.ActorFrom(c).ID, c.Params("productId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *CartHandler) HandleClear(c *fiber.Ctx) error {
	if err := h.cart.Clear(c.UserContext(), middleware.ActorFrom(c).ID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type reconcileRequest struct {
	Lines []services.DraftLine `json:"lines" validate:"dive"`
}

// HandleReconcile merges a cart the client kept before signing in.
func (h *CartHandler) HandleReconcile(c *fiber.Ctx) error {
	var req reconcileRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	view, err := h.cart.Reconcile(c.UserContext(), middleware.ActorFrom(c).ID, req.Lines)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *CartHandler) HandleWishlist(c *fiber.Ctx) error {
	products, err := h.wishlist.List(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(products)
}

func (h *CartHandler) HandleWishlistAdd(c *fiber.Ctx) error {
	if err := h.wishlist.Add(c.UserContext(), middleware.ActorFrom(c).ID, c.Params("productId")); err != nil {
		return respondError(c, err)
	}
	return respondOK(c)
}

func (h *CartHandler) HandleWishlistRemove(c *fiber.Ctx) error {
	if err := h.wishlist.Remove(c.UserContext(), middleware.ActorFrom(c).ID, c.Params("productId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleMoveToCart moves one wishlist product into the cart and returns the cart.
func (h *CartHandler) HandleMoveToCart(c *fiber.Ctx) error {
	actor := middleware.ActorFrom(c)
	if err := h.wishlist.MoveToCart(c.UserContext(), actor.ID, c.Params("productId")); err != nil {
		return respondError(c, err)
	}
	view, err := h.cart.View(c.UserContext(), actor.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}
