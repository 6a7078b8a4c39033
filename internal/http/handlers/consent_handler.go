package handlers

import (
	"time"

	"starterkit/internal/domain"
	applog "starterkit/internal/log"
	"starterkit/internal/services"

	"github.com/gofiber/fiber/v2"
)

type ConsentHandler struct{ *Deps }

type consentRequest struct {
	Analytics   bool `json:"analytics" form:"analytics"`
	Marketing   bool `json:"marketing" form:"marketing"`
	Preferences bool `json:"preferences" form:"preferences"`
}

func consentBody(c domain.Consent) fiber.Map {
	return fiber.Map{"consent": c, "categories": c.Categories()}
}

// GET /api/v1/consent
func (h *ConsentHandler) Get(c *fiber.Ctx) error {
	cons, ok := services.ParseConsent(c.Cookies(services.ConsentCookie))
	if !ok {
		cons = domain.Consent{}
	}
	return c.JSON(consentBody(cons))
}

// POST /api/v1/consent
func (h *ConsentHandler) Save(c *fiber.Ctx) error {
	var req consentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	var userID *string
	if u := currentUser(c); u != nil {
		userID = &u.ID
	}
	cons, value, err := h.Consent.Record(c.UserContext(), h.subject(c, true), userID, domain.Consent{
		Analytics:   req.Analytics,
		Marketing:   req.Marketing,
		Preferences: req.Preferences,
	})
	if err != nil {
		return err
	}
	// Readable by the front end, so not HttpOnly.
	c.Cookie(&fiber.Cookie{
		Name:     services.ConsentCookie,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(services.ConsentMaxAge),
		MaxAge:   int(services.ConsentMaxAge.Seconds()),
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   h.Config.Security.CookieSecure,
	})
	applog.Info(c, "consent.save", map[string]any{"categories": cons.Categories()})
	return c.JSON(consentBody(cons))
}
