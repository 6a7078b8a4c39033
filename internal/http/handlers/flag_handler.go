package handlers

import (
	"starterkit/internal/apperr"
	"starterkit/internal/domain"
	applog "starterkit/internal/log"
	"starterkit/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type FlagHandler struct{ *Deps }

type flagRequest struct {
	Description    string `json:"description" form:"description" validate:"max=500"`
	Enabled        bool   `json:"enabled" form:"enabled"`
	RolloutPercent *int   `json:"rollout_percent" form:"rollout_percent" validate:"omitempty,min=0,max=100"`
}

// GET /api/v1/flags
func (h *FlagHandler) Evaluate(c *fiber.Ctx) error {
	flags, err := h.Flags.All(c.UserContext(), h.subject(c, false))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"flags": flags})
}

// GET /api/v1/admin/flags
func (h *FlagHandler) List(c *fiber.Ctx) error {
	flags, err := h.Flags.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"flags": flags})
}

// PUT /api/v1/admin/flags/:key
func (h *FlagHandler) Put(c *fiber.Ctx) error {
	key := c.Params("key")
	if !validate.FlagKey(key) {
		return apperr.Validation("Invalid flag key")
	}
	var req flagRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pct := 100
	if req.RolloutPercent != nil {
		pct = *req.RolloutPercent
	}
	f, err := h.Flags.Upsert(c.UserContext(), domain.FeatureFlag{
		Key:            key,
		Description:    req.Description,
		Enabled:        req.Enabled,
		RolloutPercent: pct,
	})
	if err != nil {
		return err
	}
	applog.Audit(c, "flag.upsert", map[string]any{"key": f.Key, "enabled": f.Enabled, "rollout_percent": f.RolloutPercent})
	return c.JSON(f)
}

// DELETE /api/v1/admin/flags/:key
func (h *FlagHandler) Delete(c *fiber.Ctx) error {
	key := c.Params("key")
	if !validate.FlagKey(key) {
		return apperr.Validation("Invalid flag key")
	}
	if err := h.Flags.Delete(c.UserContext(), key); err != nil {
		return err
	}
	applog.Audit(c, "flag.delete", map[string]any{"key": key})
	return c.SendStatus(fiber.StatusNoContent)
}
