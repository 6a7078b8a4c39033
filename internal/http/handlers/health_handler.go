package handlers

import (
	"context"
	"time"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"

	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct{ *Deps }

// GET /healthz
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// GET /readyz
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		applog.Error(c, "health.db.fail", err, nil)
		e := apperr.New(fiber.StatusServiceUnavailable, apperr.CodeUnavailable, "Database unavailable")
		return c.Status(e.Status).JSON(e.Body())
	}
	return c.JSON(fiber.Map{"ok": true})
}
