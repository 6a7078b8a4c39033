package services

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBadCreds       = errors.New("invalid email or password")
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
	ErrSignupDisabled = errors.New("registration is closed")
	ErrWeakPassword   = errors.New("password does not meet the policy")
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidEmail   = errors.New("invalid email")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidName    = errors.New("invalid name")

	ErrInvalidToken = errors.New("invitation token is invalid")
	ErrTokenUsed    = errors.New("invitation token already used")
	ErrTokenExpired = errors.New("invitation token expired")
	ErrNotPending   = errors.New("invitation is not pending")

	ErrInvalidFlag = errors.New("invalid feature flag")

	ErrEmptyFile       = errors.New("empty file")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("file type not allowed")
	ErrTypeMismatch    = errors.New("declared content type does not match file")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrSelf      = errors.New("admins cannot change or delete their own account")
)

type TransactionManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
