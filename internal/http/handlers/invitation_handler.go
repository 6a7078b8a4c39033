package handlers

import (
	"errors"
	"time"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"
	"starterkit/internal/services"
	"starterkit/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type InvitationHandler struct{ *Deps }

type inviteRequest struct {
	Email string `json:"email" form:"email" validate:"required,email,max=254"`
	Role  string `json:"role" form:"role" validate:"omitempty,role"`
}

type acceptRequest struct {
	Token    string `json:"token" form:"token" validate:"required"`
	Name     string `json:"name" form:"name" validate:"required,max=100"`
	Password string `json:"password" form:"password" validate:"required,password"`
}

func (h *InvitationHandler) result(c *fiber.Ctx, status int, res *services.InviteResult) error {
	body := fiber.Map{
		"invitation": services.InvitationView{
			Invitation: *res.Invitation,
			Status:     res.Invitation.Status(time.Now()),
		},
		"email_sent": res.EmailSent,
	}
	// Outside production the link is handed back so invites work without SMTP.
	if !h.Config.IsProduction() {
		body["accept_url"] = res.AcceptURL
	}
	return c.Status(status).JSON(body)
}

// POST /api/v1/admin/invitations
func (h *InvitationHandler) Create(c *fiber.Ctx) error {
	var req inviteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.Invites.Create(c.UserContext(), currentUser(c), req.Email, req.Role)
	if err != nil {
		return err
	}
	applog.Audit(c, "invite.create", map[string]any{
		"invitation_id": res.Invitation.ID,
		"email":         res.Invitation.Email,
		"role":          res.Invitation.Role,
		"email_sent":    res.EmailSent,
	})
	return h.result(c, fiber.StatusCreated, res)
}

// GET /api/v1/admin/invitations
func (h *InvitationHandler) List(c *fiber.Ctx) error {
	list, err := h.Invites.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"invitations": list})
}

// POST /api/v1/admin/invitations/:id/resend
func (h *InvitationHandler) Resend(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	res, err := h.Invites.Resend(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	applog.Audit(c, "invite.resend", map[string]any{"invitation_id": id, "email_sent": res.EmailSent})
	return h.result(c, fiber.StatusOK, res)
}

// DELETE /api/v1/admin/invitations/:id
func (h *InvitationHandler) Revoke(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	if err := h.Invites.Revoke(c.UserContext(), id); err != nil {
		return err
	}
	applog.Audit(c, "invite.revoke", map[string]any{"invitation_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /api/v1/admin/invitations/purge
func (h *InvitationHandler) Purge(c *fiber.Ctx) error {
	n, err := h.Invites.PurgeExpired(c.UserContext(), time.Now())
	if err != nil {
		return err
	}
	applog.Audit(c, "invite.purge", map[string]any{"deleted": n})
	return c.JSON(fiber.Map{"deleted": n})
}

// GET /api/v1/invitations/verify?token=
func (h *InvitationHandler) Verify(c *fiber.Ctx) error {
	inv, err := h.Invites.Verify(c.UserContext(), c.Query("token"))
	if err != nil {
		h.logTokenFailure(c, "invite.verify.fail", err)
		return err
	}
	return c.JSON(fiber.Map{
		"email":      inv.Email,
		"role":       inv.Role,
		"expires_at": inv.ExpiresAt,
	})
}

// POST /api/v1/invitations/accept
func (h *InvitationHandler) Accept(c *fiber.Ctx) error {
	var req acceptRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, sess, err := h.Invites.Accept(c.UserContext(), req.Token, req.Name, req.Password)
	if err != nil {
		h.logTokenFailure(c, "invite.accept.fail", err)
		return err
	}
	_ = h.Auth.Logout(c.UserContext(), c.Cookies(sessionCookie))
	h.setSession(c, sess)
	c.Locals("userID", u.ID)
	applog.Audit(c, "invite.accept", map[string]any{"email": u.Email, "role": u.Role})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": u})
}

func (h *InvitationHandler) logTokenFailure(c *fiber.Ctx, action string, err error) {
	reason := ""
	switch {
	case errors.Is(err, services.ErrInvalidToken):
		reason = "invalid"
	case errors.Is(err, services.ErrTokenUsed):
		reason = "used"
	case errors.Is(err, services.ErrTokenExpired):
		reason = "expired"
	default:
		return
	}
	applog.Security(c, action, map[string]any{"reason": reason})
}
