package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"pharmacy/internal/apperr"
	"pharmacy/internal/services"

	"github.com/gofiber/fiber/v2"
)

const actorKey = "actor"

// AuthRequired is a Fiber middleware that resolves the session token from the
// session cookie or a Bearer header and stores the acting user in Locals.
func AuthRequired(authService *services.AuthService, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(cookieName)
		if tokenString == "" {
			authHeader := c.Get(fiber.HeaderAuthorization)
			if authHeader == "" {
				return unauthorized(c, "Authentication required")
			}
			// Expected format: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if !(len(parts) == 2 && parts[0] == "Bearer") {
				return unauthorized(c, "Authorization header format must be 'Bearer <token>'")
			}
			tokenString = parts[1]
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			slog.Debug("session token rejected", "error", err)
			return unauthorized(c, "Invalid or expired session")
		}
		user, err := authService.CurrentUser(c.UserContext(), claims.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				return unauthorized(c, "Invalid or expired session")
			}
			return err
		}

		c.Locals(actorKey, services.Actor{ID: user.ID, Email: user.Email, Role: user.Role})
		return c.Next()
	}
}

// RequireRoles rejects signed-in users whose role is not listed. It must run
// after AuthRequired.
func RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := c.Locals(actorKey).(services.Actor)
		if !ok {
			return unauthorized(c, "Authentication required")
		}
		for _, r := range roles {
			if actor.Role == r {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "You do not have permission to perform this action",
		})
	}
}

// ActorFrom returns the user stored by AuthRequired.
func ActorFrom(c *fiber.Ctx) services.Actor {
	actor, _ := c.Locals(actorKey).(services.Actor)
	return actor
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": message})
}
