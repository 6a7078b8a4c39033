package handlers

import (
	"errors"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"
	"starterkit/internal/repos"
	"starterkit/internal/services"
	"starterkit/internal/validate"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the app-wide fiber error handler: typed errors keep their
// status, everything else becomes a generic 500 and is logged.
func ErrorHandler(c *fiber.Ctx, err error) error {
	e := toAppErr(err)
	if e.Status >= fiber.StatusInternalServerError {
		applog.Error(c, "server.error", err, nil)
	}
	return c.Status(e.Status).JSON(e.Body())
}

func toAppErr(err error) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		msg := fe.Message
		if fe.Code >= fiber.StatusInternalServerError {
			return apperr.Internal(err)
		}
		return apperr.New(fe.Code, apperr.CodeForStatus(fe.Code), msg)
	}
	var ve validate.Errors
	if errors.As(err, &ve) {
		return apperr.ValidationFields("Invalid input", ve)
	}

	switch {
	case errors.Is(err, services.ErrBadCreds):
		return apperr.Unauthorized("Invalid email or password")
	case errors.Is(err, services.ErrNoSession), errors.Is(err, services.ErrSessionExpired):
		return apperr.Unauthorized("Please sign in")
	case errors.Is(err, services.ErrSignupDisabled):
		return apperr.Forbidden("Registration is closed")
	case errors.Is(err, services.ErrWeakPassword):
		return apperr.ValidationFields("Invalid input", []string{
			"field 'password' must be 8-72 bytes with lower, upper, digit and symbol",
		})
	case errors.Is(err, services.ErrInvalidEmail):
		return apperr.ValidationFields("Invalid input", []string{"field 'email' must be a valid email address"})
	case errors.Is(err, services.ErrInvalidRole):
		return apperr.ValidationFields("Invalid input", []string{"field 'role' has an unsupported value"})
	case errors.Is(err, services.ErrInvalidName):
		return apperr.ValidationFields("Invalid input", []string{"field 'name' is not valid"})
	case errors.Is(err, services.ErrInvalidFlag):
		return apperr.Validation("Invalid feature flag")
	case errors.Is(err, services.ErrEmailTaken):
		return apperr.Conflict("An account with this email already exists")
	case errors.Is(err, services.ErrInvalidToken):
		return apperr.BadRequest("This invitation link is not valid")
	case errors.Is(err, services.ErrTokenUsed):
		return apperr.Conflict("This invitation has already been used")
	case errors.Is(err, services.ErrTokenExpired):
		return apperr.Gone("This invitation has expired")
	case errors.Is(err, services.ErrNotPending):
		return apperr.Conflict("Invitation is no longer pending")
	case errors.Is(err, services.ErrEmptyFile):
		return apperr.BadRequest("File is empty")
	case errors.Is(err, services.ErrTooLarge):
		return apperr.TooLarge("File is too large")
	case errors.Is(err, services.ErrUnsupportedType), errors.Is(err, services.ErrTypeMismatch):
		return apperr.UnsupportedMedia("File type is not allowed")
	case errors.Is(err, services.ErrForbidden):
		return apperr.Forbidden("Access denied")
	case errors.Is(err, services.ErrSelf):
		return apperr.Forbidden("You cannot change or delete your own account")
	case errors.Is(err, services.ErrNotFound), errors.Is(err, repos.ErrNotFound):
		return apperr.NotFound("Not found")
	}
	return apperr.Internal(err)
}
