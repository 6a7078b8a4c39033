package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"starterkit/internal/domain"
	applog "starterkit/internal/log"
	"starterkit/internal/mail"
	"starterkit/internal/repos"
	"starterkit/internal/validate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContactInput struct {
	Name    string `json:"name" form:"name" validate:"required,max=100"`
	Email   string `json:"email" form:"email" validate:"required,email,max=254"`
	Subject string `json:"subject" form:"subject" validate:"max=150"`
	Message string `json:"message" form:"message" validate:"required,min=10,max=5000"`
	// Honeypot: hidden from humans, filled in by bots.
	Website string `json:"website" form:"website"`
}

type ContactService struct {
	Contacts  *repos.ContactRepo
	Mailer    mail.Mailer
	Templates *mail.Renderer
	AppName   string
	NotifyTo  string
	Now       func() time.Time
}

// HashIP keeps submissions correlatable per sender without storing the address.
func (s *ContactService) HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip + s.AppName))
	return hex.EncodeToString(sum[:])
}

// Submit validates and stores a submission. dropped reports a honeypot hit;
// callers answer those as if accepted.
func (s *ContactService) Submit(ctx context.Context, in ContactInput, ip string) (sub *domain.ContactSubmission, dropped bool, err error) {
	if strings.TrimSpace(in.Website) != "" {
		return nil, true, nil
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if err := validate.Struct(in); err != nil {
		return nil, false, err
	}
	sub = &domain.ContactSubmission{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Subject:   in.Subject,
		Message:   in.Message,
		IPHash:    s.HashIP(ip),
		Status:    domain.ContactNew,
		CreatedAt: clock(s.Now).now(),
	}
	if err := s.Contacts.Create(ctx, sub); err != nil {
		return nil, false, err
	}
	s.notify(ctx, sub)
	return sub, false, nil
}

func (s *ContactService) notify(ctx context.Context, sub *domain.ContactSubmission) {
	if s.NotifyTo == "" || s.Mailer == nil || s.Templates == nil {
		return
	}
	subject := "New contact message"
	if sub.Subject != "" {
		subject += ": " + sub.Subject
	}
	msg, err := s.Templates.Render(s.NotifyTo, subject, "contact", map[string]any{
		"AppName":        s.AppName,
		"Name":           sub.Name,
		"Email":          sub.Email,
		"ContactSubject": sub.Subject,
		"Message":        sub.Message,
	})
	if err == nil {
		err = s.Mailer.Send(ctx, msg)
	}
	if err != nil {
		applog.L().Error("contact.notify.fail", zap.String("contact_id", sub.ID), zap.Error(err))
	}
}

func (s *ContactService) List(ctx context.Context, status string) ([]domain.ContactSubmission, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && status != domain.ContactNew && status != domain.ContactHandled {
		return nil, ErrNotFound
	}
	return s.Contacts.List(ctx, status, 200)
}

func (s *ContactService) MarkHandled(ctx context.Context, id string) error {
	return notFound(s.Contacts.SetStatus(ctx, id, domain.ContactHandled))
}

func (s *ContactService) Delete(ctx context.Context, id string) error {
	return notFound(s.Contacts.Delete(ctx, id))
}

func notFound(err error) error {
	if errors.Is(err, repos.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
