package handlers

import (
	"starterkit/internal/apperr"
	applog "starterkit/internal/log"
	"starterkit/internal/services"
	"starterkit/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type ContactHandler struct{ *Deps }

// POST /api/v1/contact
func (h *ContactHandler) Submit(c *fiber.Ctx) error {
	var in services.ContactInput
	if err := c.BodyParser(&in); err != nil {
		return apperr.BadRequest("Malformed request body")
	}
	sub, dropped, err := h.Contacts.Submit(c.UserContext(), in, clientIP(c))
	if err != nil {
		return err
	}
	if dropped {
		applog.Security(c, "contact.honeypot", nil)
	} else {
		applog.Info(c, "contact.submit", map[string]any{"contact_id": sub.ID, "email": sub.Email})
	}
	// Same answer for honeypot hits so bots learn nothing.
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// GET /api/v1/admin/contacts?status=
func (h *ContactHandler) List(c *fiber.Ctx) error {
	list, err := h.Contacts.List(c.UserContext(), c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"contacts": list})
}

// POST /api/v1/admin/contacts/:id/handled
func (h *ContactHandler) MarkHandled(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	if err := h.Contacts.MarkHandled(c.UserContext(), id); err != nil {
		return err
	}
	applog.Audit(c, "contact.handled", map[string]any{"contact_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// DELETE /api/v1/admin/contacts/:id
func (h *ContactHandler) Delete(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	if err := h.Contacts.Delete(c.UserContext(), id); err != nil {
		return err
	}
	applog.Audit(c, "contact.delete", map[string]any{"contact_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
