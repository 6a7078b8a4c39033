package handlers

import (
	"errors"
	"path/filepath"
	"strings"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"
	"starterkit/internal/services"
	"starterkit/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type UploadHandler struct{ *Deps }

// POST /api/v1/uploads (multipart field "file")
func (h *UploadHandler) Create(c *fiber.Ctx) error {
	u := currentUser(c)
	if !h.Flags.IsEnabled(c.UserContext(), "uploads", u.ID) {
		return apperr.Forbidden("Uploads are disabled")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.BadRequest("Missing file")
	}
	if fh.Size > h.Config.Storage.MaxBytes {
		applog.Security(c, "upload.reject", map[string]any{"reason": "too_large", "size": fh.Size})
		return services.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	up, err := h.Uploads.Upload(c.UserContext(), u.ID, fh.Filename, fh.Header.Get(fiber.HeaderContentType), f)
	if err != nil {
		if reason := rejectReason(err); reason != "" {
			applog.Security(c, "upload.reject", map[string]any{"reason": reason, "filename": fh.Filename})
		}
		return err
	}
	applog.Audit(c, "upload.create", map[string]any{
		"upload_id":    up.ID,
		"content_type": up.ContentType,
		"size":         up.Size,
	})
	return c.Status(fiber.StatusCreated).JSON(up)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, services.ErrTooLarge):
		return "too_large"
	case errors.Is(err, services.ErrEmptyFile):
		return "empty"
	case errors.Is(err, services.ErrUnsupportedType):
		return "type_not_allowed"
	case errors.Is(err, services.ErrTypeMismatch):
		return "type_mismatch"
	}
	return ""
}

// GET /api/v1/uploads
func (h *UploadHandler) List(c *fiber.Ctx) error {
	list, err := h.Uploads.List(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"uploads": list})
}

// GET /api/v1/uploads/:id
func (h *UploadHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	up, err := h.Uploads.Get(c.UserContext(), id, currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(up)
}

// DELETE /api/v1/uploads/:id
func (h *UploadHandler) Delete(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apperr.BadRequest("Invalid id")
	}
	if err := h.Uploads.Delete(c.UserContext(), id, currentUser(c)); err != nil {
		return err
	}
	applog.Audit(c, "upload.delete", map[string]any{"upload_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// GET /media/* serves locally stored objects, guarded against traversal.
func (h *UploadHandler) Media(c *fiber.Ctx) error {
	if h.Deps.Media == nil {
		return fiber.ErrNotFound
	}
	p := c.Params("*")
	rawLower := strings.ToLower(p)
	// Block encoded traversal attempts as well as raw .. or null bytes
	if strings.Contains(rawLower, "..") || strings.Contains(rawLower, "%2e") || strings.Contains(rawLower, "\x00") {
		applog.Security(c, "media.traversal.block", map[string]any{"path": p})
		return fiber.ErrNotFound
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
		applog.Security(c, "media.traversal.block", map[string]any{"path": p})
		return fiber.ErrNotFound
	}
	full, err := h.Deps.Media.Path(clean)
	if err != nil {
		applog.Security(c, "media.traversal.block", map[string]any{"path": p})
		return fiber.ErrNotFound
	}
	return c.SendFile(full, false)
}
