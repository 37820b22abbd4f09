package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/services"
)

const identityContextKey = "currentIdentity"

// Authenticator resolves a bearer token to an identity. *services.SessionService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (services.Identity, error)
}

// AuthMiddleware validates the session token and loads the caller identity into context.
func AuthMiddleware(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		id, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			return err
		}

		c.Locals(identityContextKey, id)
		c.SetUserContext(services.WithIdentity(c.UserContext(), id))
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles. It must run after AuthMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := GetIdentity(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		for _, role := range roles {
			if id.Role == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "forbidden")
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// GetIdentity extracts the authenticated identity from context.
func GetIdentity(c *fiber.Ctx) (services.Identity, bool) {
	id, ok := c.Locals(identityContextKey).(services.Identity)
	return id, ok
}
