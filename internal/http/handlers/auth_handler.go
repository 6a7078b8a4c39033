package handlers

import (
	"errors"

	applog "starterkit/internal/log"
	"starterkit/internal/services"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct{ *Deps }

type loginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,max=254"`
	Password string `json:"password" form:"password" validate:"required,max=72"`
}

type registerRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email,max=254"`
	Name     string `json:"name" form:"name" validate:"required,max=100"`
	Password string `json:"password" form:"password" validate:"required,password"`
}

type changePasswordRequest struct {
	Current string `json:"current_password" form:"current_password" validate:"required"`
	New     string `json:"new_password" form:"new_password" validate:"required,password"`
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		applog.Security(c, "auth.login.fail", map[string]any{"email": req.Email, "reason": "bad_format"})
		return services.ErrBadCreds
	}
	u, sess, err := h.Auth.Login(c.UserContext(), req.Email, req.Password, c.Cookies(sessionCookie))
	if err != nil {
		if errors.Is(err, services.ErrBadCreds) {
			applog.Security(c, "auth.login.fail", map[string]any{"email": req.Email})
		}
		return err
	}
	h.setSession(c, sess)
	c.Locals("userID", u.ID)
	applog.Audit(c, "auth.login.success", map[string]any{"email": u.Email})
	return c.JSON(fiber.Map{"user": u})
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sid := c.Cookies(sessionCookie)
	if err := h.Auth.Logout(c.UserContext(), sid); err != nil {
		return err
	}
	h.clearSession(c)
	applog.Audit(c, "auth.logout", nil)
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, sess, err := h.Auth.Register(c.UserContext(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrSignupDisabled) {
			applog.Security(c, "auth.register.closed", map[string]any{"email": req.Email})
		}
		return err
	}
	_ = h.Auth.Logout(c.UserContext(), c.Cookies(sessionCookie))
	h.setSession(c, sess)
	c.Locals("userID", u.ID)
	applog.Audit(c, "auth.register", map[string]any{"email": u.Email})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": u})
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user": currentUser(c)})
}

// POST /api/v1/auth/password
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u := currentUser(c)
	err := h.Auth.ChangePassword(c.UserContext(), u.ID, req.Current, req.New, c.Cookies(sessionCookie))
	if err != nil {
		if errors.Is(err, services.ErrBadCreds) {
			applog.Security(c, "auth.password.fail", nil)
		}
		return err
	}
	applog.Audit(c, "auth.password.change", nil)
	return c.SendStatus(fiber.StatusNoContent)
}

// GET /api/v1/csrf
func (h *AuthHandler) CSRF(c *fiber.Ctx) error {
	tok, _ := c.Locals("csrf").(string)
	return c.JSON(fiber.Map{"csrf_token": tok})
}
