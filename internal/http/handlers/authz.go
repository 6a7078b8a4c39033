package handlers

import (
	"errors"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"
	"starterkit/internal/services"

	"github.com/gofiber/fiber/v2"
)

// LoadUser attaches the signed-in user, if any, to Locals("user").
// An expired session clears the cookie.
func LoadUser(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(sessionCookie)
		if sid == "" {
			return c.Next()
		}
		u, err := d.Auth.CurrentUser(c.UserContext(), sid)
		switch {
		case err == nil:
			c.Locals("user", u)
			c.Locals("userID", u.ID)
		case errors.Is(err, services.ErrSessionExpired):
			applog.Info(c, "auth.session.expired", nil)
			d.clearSession(c)
		case errors.Is(err, services.ErrNoSession):
			d.clearSession(c)
		default:
			return err
		}
		return c.Next()
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			applog.Security(c, "access.denied.user", nil)
			return apperr.Unauthorized("Please sign in")
		}
		return c.Next()
	}
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := currentUser(c)
		if u == nil {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "anonymous"})
			return apperr.Unauthorized("Please sign in")
		}
		if !u.IsAdmin() {
			applog.Security(c, "access.denied.admin", map[string]any{"role": u.Role})
			return apperr.Forbidden("Access denied")
		}
		return c.Next()
	}
}
