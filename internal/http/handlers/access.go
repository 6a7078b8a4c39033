package handlers

import (
	"time"

	applog "starterkit/internal/log"

	"github.com/gofiber/fiber/v2"
)

// AccessLog writes one entry per request. Only the path is logged; query
// strings can carry invitation tokens.
func AccessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if chainErr := c.Next(); chainErr != nil {
			// Render the error now so the entry carries the final status.
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		fields := map[string]any{
			"latency_ms": time.Since(start).Milliseconds(),
			"bytes":      len(c.Response().Body()),
		}
		if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
			fields["user_agent"] = ua
		}
		applog.Info(c, "http.access", fields)
		return nil
	}
}
