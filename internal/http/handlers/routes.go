package handlers

import (
	"strings"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"
	"starterkit/internal/ratelimit"
	"starterkit/internal/security"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const cspReportPath = "/api/v1/csp-report"

// CSPConfig builds the policy from config; the error reports bad CSP_EXTRA entries.
func (d *Deps) CSPConfig() (security.CSPConfig, error) {
	sec := d.Config.Security
	cfg := security.DefaultCSP()
	if err := cfg.ParseExtra(sec.CSPExtra); err != nil {
		return cfg, err
	}
	cfg.ReportURI = sec.CSPReportURI
	cfg.ReportOnly = sec.CSPReportOnly
	cfg.UseNonce = sec.CSPNonce
	cfg.Dev = !d.Config.IsProduction()
	cfg.UpgradeInsecureRequests = d.Config.IsProduction()
	if _, err := security.BuildCSP(cfg, ""); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NewApp wires middleware and routes onto a fresh fiber app.
func NewApp(d *Deps) (*fiber.App, error) {
	cspCfg, err := d.CSPConfig()
	if err != nil {
		return nil, err
	}
	rl := d.Config.RateLimit

	app := fiber.New(fiber.Config{
		AppName:      d.Config.App.Name,
		ErrorHandler: ErrorHandler,
		// multipart overhead on top of the largest accepted file
		BodyLimit: int(d.Config.Storage.MaxBytes) + 1<<20,
	})

	// ---------- Middlewares ----------
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(d.Limiter.ClientIP())
	if d.Metrics != nil {
		app.Use(d.Metrics.Middleware())
	}
	app.Use(AccessLog())
	app.Use(security.Headers(security.HeadersConfig{HSTS: d.Config.IsProduction()}))
	app.Use(security.CSP(cspCfg))
	app.Use(d.Limiter.Handler(ratelimit.Policy{Name: "global", Max: rl.GlobalMax, Window: rl.GlobalWindow}, ratelimit.SkipUnlimited))
	app.Use(LoadUser(d))
	if d.Config.Security.CSRFEnabled {
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "header:X-CSRF-Token",
			CookieName:     "csrf_",
			CookieSameSite: "Lax",
			CookieSecure:   d.Config.Security.CookieSecure,
			ContextKey:     "csrf",
			Storage:        d.SharedStorage,
			Next: func(c *fiber.Ctx) bool {
				// browsers send reports without the header
				return c.Path() == cspReportPath
			},
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				applog.Security(c, "csrf.fail", map[string]any{"reason": err.Error()})
				e := apperr.Forbidden("Security check failed. Please refresh and try again.")
				return c.Status(e.Status).JSON(e.Body())
			},
		}))
	}

	authH := &AuthHandler{d}
	adminH := &AdminHandler{d}
	inviteH := &InvitationHandler{d}
	flagH := &FlagHandler{d}
	contactH := &ContactHandler{d}
	uploadH := &UploadHandler{d}
	consentH := &ConsentHandler{d}
	reportH := &ReportHandler{d}
	healthH := &HealthHandler{d}

	limit := func(name string, p ratelimit.Policy) fiber.Handler {
		p.Name = name
		return d.Limiter.Handler(p, nil)
	}

	// Health & metrics
	app.Get("/healthz", healthH.Live)
	app.Get("/readyz", healthH.Ready)
	if d.Metrics != nil {
		app.Get("/metrics", d.Metrics.Handler())
	}
	app.Get("/media/*", uploadH.Media)

	// API
	api := app.Group("/api/v1")
	api.Get("/csrf", authH.CSRF)
	api.Post("/csp-report", limit("csp_report", ratelimit.Policy{Max: rl.ReportMax, Window: rl.ReportWindow}), reportH.CSP)

	auth := api.Group("/auth")
	auth.Post("/login", limit("login", ratelimit.Policy{Max: rl.LoginMax, Window: rl.LoginWindow}), authH.Login)
	auth.Post("/register", limit("register", ratelimit.Policy{Max: rl.LoginMax, Window: rl.LoginWindow}), authH.Register)
	auth.Post("/logout", authH.Logout)
	auth.Get("/me", RequireUser(), authH.Me)
	auth.Post("/password", RequireUser(), authH.ChangePassword)

	api.Get("/flags", flagH.Evaluate)
	api.Get("/consent", consentH.Get)
	api.Post("/consent", consentH.Save)
	api.Post("/contact", limit("contact", ratelimit.Policy{Max: rl.ContactMax, Window: rl.ContactWindow}), contactH.Submit)

	invites := api.Group("/invitations")
	invites.Get("/verify", limit("invite_verify", ratelimit.Policy{Max: rl.InviteMax, Window: rl.InviteWindow}), inviteH.Verify)
	invites.Post("/accept", limit("invite_accept", ratelimit.Policy{Max: rl.InviteMax, Window: rl.InviteWindow}), inviteH.Accept)

	uploads := api.Group("/uploads", RequireUser())
	uploads.Post("/", limit("upload", ratelimit.Policy{Max: rl.UploadMax, Window: rl.UploadWindow}), uploadH.Create)
	uploads.Get("/", uploadH.List)
	uploads.Get("/:id", uploadH.Get)
	uploads.Delete("/:id", uploadH.Delete)

	// Admin
	admin := api.Group("/admin", RequireAdmin())
	admin.Get("/stats", adminH.Stats)
	admin.Get("/users", adminH.Users)
	admin.Post("/users/:id/role", adminH.SetRole)
	admin.Delete("/users/:id", adminH.DeleteUser)
	admin.Get("/invitations", inviteH.List)
	admin.Post("/invitations", inviteH.Create)
	admin.Post("/invitations/purge", inviteH.Purge)
	admin.Post("/invitations/:id/resend", inviteH.Resend)
	admin.Delete("/invitations/:id", inviteH.Revoke)
	admin.Get("/flags", flagH.List)
	admin.Put("/flags/:key", flagH.Put)
	admin.Delete("/flags/:key", flagH.Delete)
	admin.Get("/contacts", contactH.List)
	admin.Post("/contacts/:id/handled", contactH.MarkHandled)
	admin.Delete("/contacts/:id", contactH.Delete)

	// 404
	app.Use(func(c *fiber.Ctx) error {
		msg := "Page not found"
		if strings.HasPrefix(c.Path(), "/api/") {
			msg = "Resource not found"
		}
		return apperr.NotFound(msg)
	})
	return app, nil
}
