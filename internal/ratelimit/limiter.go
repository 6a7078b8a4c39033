package ratelimit

import (
	"net/netip"
	"strings"
	"time"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Policy struct {
	Name   string
	Max    int
	Window time.Duration
}

// Limiter builds per-policy middleware sharing one trust set and storage.
type Limiter struct {
	Trust *ProxyTrust
	// Storage nil means fiber's in-memory store per policy.
	Storage fiber.Storage
}

func New(trust *ProxyTrust, storage fiber.Storage) *Limiter {
	return &Limiter{Trust: trust, Storage: storage}
}

// ClientIP resolves the request address once and stores it for the log
// package and every policy further down the chain.
func (l *Limiter) ClientIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(applog.ClientIPKey, ClientIP(c, l.Trust).String())
		return c.Next()
	}
}

func (l *Limiter) addr(c *fiber.Ctx) netip.Addr {
	if s, ok := c.Locals(applog.ClientIPKey).(string); ok {
		if a, err := netip.ParseAddr(s); err == nil {
			return a
		}
	}
	return ClientIP(c, l.Trust)
}

// Handler enforces p. next, when set, skips requests it returns true for.
func (l *Limiter) Handler(p Policy, next func(*fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Next:       next,
		Max:        p.Max,
		Expiration: p.Window,
		Storage:    l.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return BucketKey(p.Name, l.addr(c))
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate."+p.Name+".hit", map[string]any{"policy": p.Name, "max": p.Max})
			e := apperr.TooManyRequests("Too many requests. Please try again later.")
			return c.Status(fiber.StatusTooManyRequests).JSON(e.Body())
		},
	})
}

// SkipUnlimited is the global policy's skip list.
func SkipUnlimited(c *fiber.Ctx) bool {
	p := c.Path()
	return strings.HasPrefix(p, "/media/") || p == "/healthz" || p == "/readyz" || p == "/metrics"
}
