package handlers

import (
	"log/slog"
	"time"

	"pharmacy/internal/middleware"
	"pharmacy/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CookieConfig controls the session cookie written on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler handles registration, sessions, passwords and the user's own profile.
type AuthHandler struct {
	authService    *services.AuthService
	profileService *services.ProfileService
	logs           *services.LogService
	validate       *validator.Validate
	cookie         CookieConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, profileService *services.ProfileService, logs *services.LogService, validate *validator.Validate, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		profileService: profileService,
		logs:           logs,
		validate:       validate,
		cookie:         cookie,
	}
}

// RegisterRoutes registers the authentication and profile routes.
func (h *AuthHandler) RegisterRoutes(router fiber.Router, g Guards) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/register", h.HandleRegister)
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Post("/logout", h.HandleLogout)
	authRoutes.Post("/forgot-password", h.HandleForgotPassword)
	authRoutes.Post("/reset-password", h.HandleResetPassword)
	authRoutes.Get("/me", g.Auth, h.HandleMe)
	authRoutes.Post("/change-password", g.Auth, h.HandleChangePassword)

	profileRoutes := router.Group("/profile", g.Auth)
	profileRoutes.Get("/", h.HandleGetProfile)
	profileRoutes.Put("/", h.HandleUpdateProfile)
	profileRoutes.Put("/health", h.HandleSetHealth)
}

// HandleRegister creates a customer account.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	user, err := h.authService.Register(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    user,
	})
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin checks credentials and sets the session cookie. The token is
// also returned for clients that send it as a Bearer header.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	token, user, err := h.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.authService.TokenTTL()),
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	if user.IsStaff() && h.logs != nil {
		actor := services.Actor{ID: user.ID, Email: user.Email, Role: user.Role}
		if err := h.logs.Record(c.UserContext(), actor, "auth.login", "user", user.ID, c.IP()); err != nil {
			slog.WarnContext(c.UserContext(), "failed to record staff login", "user_id", user.ID, "error", err)
		}
	}
	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

// HandleLogout expires the session cookie.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// HandleMe returns the signed-in user.
func (h *AuthHandler) HandleMe(c *fiber.Ctx) error {
	user, err := h.authService.CurrentUser(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// HandleForgotPassword always answers 200 so the response never reveals
// whether an account exists.
func (h *AuthHandler) HandleForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.authService.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "If the email is registered, a reset link has been sent"})
}

type resetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

func (h *AuthHandler) HandleResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.authService.ResetPassword(c.UserContext(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password has been reset"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

func (h *AuthHandler) HandleChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	actor := middleware.ActorFrom(c)
	if err := h.authService.ChangePassword(c.UserContext(), actor.ID, req.CurrentPassword, req.Password, req.ConfirmPassword); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password changed"})
}

func (h *AuthHandler) HandleGetProfile(c *fiber.Ctx) error {
	profile, err := h.profileService.Get(c.UserContext(), middleware.ActorFrom(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

func (h *AuthHandler) HandleUpdateProfile(c *fiber.Ctx) error {
	var req services.ProfileInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	profile, err := h.profileService.Update(c.UserContext(), middleware.ActorFrom(c).ID, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// HandleSetHealth replaces the user's allergies and illnesses.
func (h *AuthHandler) HandleSetHealth(c *fiber.Ctx) error {
	var req services.HealthInput
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	profile, err := h.profileService.SetHealth(c.UserContext(), middleware.ActorFrom(c).ID, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}
