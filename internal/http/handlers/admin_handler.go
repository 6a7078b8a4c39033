package handlers

import (
	"starterkit/internal/apperr"
	applog "starterkit/internal/log"
	"starterkit/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct{ *Deps }

type roleRequest struct {
	Role string `json:"role" form:"role" validate:"required,role"`
}

// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	st, err := h.Admin.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// GET /api/v1/admin/users
func (h *AdminHandler) Users(c *fiber.Ctx) error {
	users, err := h.Admin.ListUsers(c.UserContext())
	if err != nil {
		applog.Error(c, "admin.users.list.fail", err, nil)
		return err
	}
	return c.JSON(fiber.Map{"users": users})
}

// POST /api/v1/admin/users/:id/role
func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	var req roleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Admin.SetRole(c.UserContext(), currentUser(c), id, req.Role); err != nil {
		applog.Security(c, "admin.users.role.fail", map[string]any{"target_id": id, "role": req.Role})
		return err
	}
	applog.Audit(c, "admin.users.role", map[string]any{"target_id": id, "role": req.Role})
	return c.SendStatus(fiber.StatusNoContent)
}

// DELETE /api/v1/admin/users/:id
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	if err := h.Admin.DeleteUser(c.UserContext(), currentUser(c), id); err != nil {
		applog.Security(c, "admin.users.delete.fail", map[string]any{"target_id": id})
		return err
	}
	applog.Audit(c, "admin.users.delete", map[string]any{"target_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
