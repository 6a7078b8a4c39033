package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"regexp"
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

const tokenBytes = 32

// 32 bytes in unpadded base64url.
var reToken = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// NewToken returns a raw invitation token and the hash that gets stored.
func NewToken() (raw, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashToken(raw), nil
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type InvitationService struct {
	Invites   *repos.InvitationRepo
	Users     *repos.UserRepo
	Auth      *AuthService
	Tx        TransactionManager
	Mailer    mail.Mailer
	Templates *mail.Renderer
	AppName   string
	BaseURL   string
	TTL       time.Duration
	Now       func() time.Time
}

// InviteResult carries the raw token; it exists only here and in the email.
type InviteResult struct {
	Invitation *domain.Invitation
	Token      string
	AcceptURL  string
	EmailSent  bool
}

// InvitationView is an invitation with its computed status.
type InvitationView struct {
	domain.Invitation
	Status string `json:"status"`
}

func (s *InvitationService) acceptURL(raw string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/invite/accept?token=" + url.QueryEscape(raw)
}

// Create issues an invitation for email. Earlier open invitations to the
// same address are revoked.
func (s *InvitationService) Create(ctx context.Context, inviter *domain.User, email, role string) (*InviteResult, error) {
	email, ok := validate.Email(email)
	if !ok {
		return nil, ErrInvalidEmail
	}
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	raw, hash, err := NewToken()
	if err != nil {
		return nil, err
	}
	now := clock(s.Now).now()
	inv := &domain.Invitation{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		TokenHash: hash,
		InvitedBy: inviter.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	}
	err = s.Tx.Do(ctx, func(ctx context.Context) error {
		if _, err := s.Users.ByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, repos.ErrNotFound) {
			return err
		}
		if _, err := s.Invites.RevokeOpenForEmail(ctx, email, now); err != nil {
			return err
		}
		return s.Invites.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	res := &InviteResult{Invitation: inv, Token: raw, AcceptURL: s.acceptURL(raw)}
	res.EmailSent = s.send(ctx, inviter, inv, res.AcceptURL)
	return res, nil
}

func (s *InvitationService) send(ctx context.Context, inviter *domain.User, inv *domain.Invitation, link string) bool {
	if s.Mailer == nil || s.Templates == nil {
		return false
	}
	inviterName := s.AppName
	if inviter != nil && inviter.Name != "" {
		inviterName = inviter.Name
	}
	msg, err := s.Templates.Render(inv.Email, "You're invited to "+s.AppName, "invitation", map[string]any{
		"AppName":   s.AppName,
		"Inviter":   inviterName,
		"Role":      strings.ToLower(inv.Role),
		"AcceptURL": link,
		"ExpiresAt": inv.ExpiresAt.Format("2006-01-02 15:04 MST"),
	})
	if err == nil {
		err = s.Mailer.Send(ctx, msg)
	}
	if err != nil {
		applog.L().Error("invite.mail.fail", zap.String("invitation_id", inv.ID), zap.Error(err))
		return false
	}
	return true
}

// Verify resolves a raw token to a pending invitation.
func (s *InvitationService) Verify(ctx context.Context, raw string) (*domain.Invitation, error) {
	if !reToken.MatchString(raw) {
		return nil, ErrInvalidToken
	}
	hash := HashToken(raw)
	inv, err := s.Invites.ByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(inv.TokenHash), []byte(hash)) != 1 {
		return nil, ErrInvalidToken
	}
	switch inv.Status(clock(s.Now).now()) {
	case domain.InviteAccepted:
		return nil, ErrTokenUsed
	case domain.InviteRevoked:
		return nil, ErrInvalidToken
	case domain.InviteExpired:
		return nil, ErrTokenExpired
	}
	return inv, nil
}

// Accept consumes the token, creates the account and logs it in.
func (s *InvitationService) Accept(ctx context.Context, raw, name, password string) (*domain.User, *domain.Session, error) {
	inv, err := s.Verify(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	name, ok := validate.Name(name)
	if !ok {
		return nil, nil, ErrInvalidName
	}
	// Hash outside the transaction; bcrypt is slow and sqlite has one writer.
	hash, err := s.Auth.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	now := clock(s.Now).now()
	u := &domain.User{
		ID:        uuid.NewString(),
		Email:     inv.Email,
		Name:      name,
		Hash:      hash,
		Role:      inv.Role,
		CreatedAt: now,
	}
	var sess *domain.Session
	err = s.Tx.Do(ctx, func(ctx context.Context) error {
		ok, err := s.Invites.MarkAccepted(ctx, inv.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTokenUsed
		}
		if err := s.Users.Create(ctx, u); err != nil {
			if errors.Is(err, repos.ErrDuplicate) {
				return ErrEmailTaken
			}
			return err
		}
		sess, err = s.Auth.StartSession(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

// Resend rotates the token of a pending or expired invitation and mails it again.
func (s *InvitationService) Resend(ctx context.Context, inviter *domain.User, id string) (*InviteResult, error) {
	inv, err := s.Invites.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	switch inv.Status(clock(s.Now).now()) {
	case domain.InviteAccepted, domain.InviteRevoked:
		return nil, ErrNotPending
	}
	raw, hash, err := NewToken()
	if err != nil {
		return nil, err
	}
	expires := clock(s.Now).now().Add(s.TTL)
	ok, err := s.Invites.Rotate(ctx, inv.ID, hash, expires)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}
	inv.TokenHash, inv.ExpiresAt = hash, expires
	res := &InviteResult{Invitation: inv, Token: raw, AcceptURL: s.acceptURL(raw)}
	res.EmailSent = s.send(ctx, inviter, inv, res.AcceptURL)
	return res, nil
}

// Revoke cancels a pending invitation.
func (s *InvitationService) Revoke(ctx context.Context, id string) error {
	inv, err := s.Invites.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if inv.Status(clock(s.Now).now()) != domain.InvitePending {
		return ErrNotPending
	}
	ok, err := s.Invites.Revoke(ctx, id, clock(s.Now).now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}
	return nil
}

func (s *InvitationService) List(ctx context.Context) ([]InvitationView, error) {
	invs, err := s.Invites.List(ctx)
	if err != nil {
		return nil, err
	}
	now := clock(s.Now).now()
	out := make([]InvitationView, len(invs))
	for i := range invs {
		out[i] = InvitationView{Invitation: invs[i], Status: invs[i].Status(now)}
	}
	return out, nil
}

// CountPending counts invitations that can still be accepted.
func (s *InvitationService) CountPending(ctx context.Context) (int, error) {
	open, err := s.Invites.Open(ctx)
	if err != nil {
		return 0, err
	}
	now := clock(s.Now).now()
	n := 0
	for i := range open {
		if open[i].Status(now) == domain.InvitePending {
			n++
		}
	}
	return n, nil
}

// PurgeExpired deletes unaccepted invitations whose expiry is before cutoff.
func (s *InvitationService) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	invs, err := s.Invites.List(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for i := range invs {
		if invs[i].AcceptedAt == nil && invs[i].ExpiresAt.Before(cutoff) {
			ids = append(ids, invs[i].ID)
		}
	}
	return s.Invites.DeleteIDs(ctx, ids)
}

// RunJanitor purges expired invitations every interval until ctx ends.
func (s *InvitationService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PurgeExpired(ctx, clock(s.Now).now())
			if err != nil {
				applog.L().Error("invite.purge.fail", zap.Error(err))
				continue
			}
			if n > 0 {
				applog.L().Info("invite.purge", zap.Int64("deleted", n))
			}
		}
	}
}
