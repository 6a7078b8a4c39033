package security

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
)

const defaultPermissionsPolicy = "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"

type HeadersConfig struct {
	// HSTS is only sent when enabled and the request came in over https.
	HSTS       bool
	HSTSMaxAge int
}

// Headers sets the non-CSP hardening headers through helmet.
func Headers(cfg HeadersConfig) fiber.Handler {
	maxAge := 0
	if cfg.HSTS {
		maxAge = cfg.HSTSMaxAge
		if maxAge == 0 {
			maxAge = 31536000
		}
	}
	return helmet.New(helmet.Config{
		XFrameOptions:             "DENY",
		ContentTypeNosniff:        "nosniff",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		PermissionPolicy:          defaultPermissionsPolicy,
		CrossOriginEmbedderPolicy: "unsafe-none",
		HSTSMaxAge:                maxAge,
	})
}
