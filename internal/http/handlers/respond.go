package handlers

import (
	"strings"
	"time"

	"starterkit/internal/apperr"
	"starterkit/internal/domain"
	applog "starterkit/internal/log"
	"starterkit/internal/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	sessionCookie = "sid"
	subjectCookie = "cid"
)

// bind parses the body into dst and runs its validate tags.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.BadRequest("Malformed request body")
	}
	return validate.Struct(dst)
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}

func clientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals(applog.ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return c.IP()
}

func (d *Deps) setSession(c *fiber.Ctx, s *domain.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   d.Config.Security.CookieSecure,
	})
}

func (d *Deps) clearSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   d.Config.Security.CookieSecure,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
}

// subject identifies the caller for flag rollout and consent: the user id
// when signed in, else the anonymous cid cookie (created when create is set).
func (d *Deps) subject(c *fiber.Ctx, create bool) string {
	if u := currentUser(c); u != nil {
		return u.ID
	}
	cid := c.Cookies(subjectCookie)
	if _, ok := validate.ID(cid); ok {
		return cid
	}
	if !create {
		return ""
	}
	cid = strings.ReplaceAll(uuid.NewString(), "-", "")
	c.Cookie(&fiber.Cookie{
		Name:     subjectCookie,
		Value:    cid,
		Path:     "/",
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   d.Config.Security.CookieSecure,
	})
	return cid
}
